package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"github.com/xela07ax/authgate/internal/domain"
	"golang.org/x/time/rate"
)

type ProtectionConfig struct {
	RateLimit        float64 // запросов в секунду к хранилищу
	RateBurst        int
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration // через сколько CB попробует "закрыться"
	ConsecutiveFails uint32
}

// ProtectedProvider оборачивает UserProvider лимитером и предохранителем,
// чтобы поток запросов с токенами не добивал упавшую базу. Повторов нет.
type ProtectedProvider struct {
	next    UserProvider
	cb      *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

func NewProtectedProvider(next UserProvider, cfg ProtectionConfig, metrics Metrics) *ProtectedProvider {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	trigger := cfg.ConsecutiveFails
	if trigger == 0 {
		trigger = 5
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "user-store",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= trigger
		},
		// Неизвестный пользователь — нормальный ответ базы, а не сбой
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, domain.ErrUserNotFound)
		},
		OnStateChange: func(_ string, _, to gobreaker.State) {
			metrics.BreakerState(breakerGauge(to))
		},
	})

	return &ProtectedProvider{
		next:    next,
		cb:      cb,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
	}
}

func (p *ProtectedProvider) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("user store rate limit: %w", err)
	}

	res, err := p.cb.Execute(func() (interface{}, error) {
		return p.next.GetUserByUsername(ctx, username)
	})
	if err != nil {
		return nil, err
	}
	return res.(*domain.User), nil
}

func (p *ProtectedProvider) State() gobreaker.State {
	return p.cb.State()
}

func breakerGauge(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 2
	default:
		return 0
	}
}
