package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Traffic: исходы аутентификации (anonymous, authenticated, rejected)
	AuthOutcomes *prometheus.CounterVec

	// Latency: время проверки токена и загрузки принципала
	AuthDuration *prometheus.HistogramVec

	// Кэш принципалов: hit, miss, error
	PrincipalCache *prometheus.CounterVec

	// Saturation: состояние Circuit Breaker хранилища пользователей (0 - closed, 1 - open, 2 - half-open)
	ResolverBreakerState prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		AuthOutcomes: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "authgate_auth_outcomes_total",
			Help: "Total number of authentication attempts by outcome.",
		}, []string{"outcome"}),

		AuthDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "authgate_auth_duration_seconds",
			Help:    "Histogram of authentication latencies.",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"outcome"}),

		PrincipalCache: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "authgate_principal_cache_total",
			Help: "Principal cache lookups by result.",
		}, []string{"result"}),

		ResolverBreakerState: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "authgate_resolver_breaker_state",
			Help: "Current state of the user store circuit breaker (0=closed, 1=open, 2=half-open).",
		}),
	}
}

// ObserveAuthentication реализует auth.Observer.
func (m *Metrics) ObserveAuthentication(outcome string, elapsed time.Duration) {
	m.AuthOutcomes.WithLabelValues(outcome).Inc()
	m.AuthDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func (m *Metrics) CacheResult(result string) {
	m.PrincipalCache.WithLabelValues(result).Inc()
}

func (m *Metrics) BreakerState(state float64) {
	m.ResolverBreakerState.Set(state)
}
