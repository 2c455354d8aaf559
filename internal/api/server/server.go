package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/xela07ax/authgate/internal/api/handler"
	"github.com/xela07ax/authgate/internal/engine"
	"github.com/xela07ax/authgate/internal/infra/auth"
	"go.uber.org/zap"
)

type Server struct {
	router *chi.Mux
	logger *zap.Logger

	authn          *auth.Authenticator
	adminAuthority string
	gatherer       prometheus.Gatherer

	revocationHandler *handler.RevocationHandler // /v1/admin/tokens
}

func NewServer(
	logger *zap.Logger,
	authn *auth.Authenticator,
	adminAuthority string,
	gatherer prometheus.Gatherer,
	revocationH *handler.RevocationHandler,
) *Server {
	s := &Server{
		router:            chi.NewRouter(),
		logger:            logger.Named("api"),
		authn:             authn,
		adminAuthority:    adminAuthority,
		gatherer:          gatherer,
		revocationHandler: revocationH,
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router

	// --- 1. Глобальные Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(engine.TracingMiddleware)
	r.Use(engine.RequestLogger(s.logger))
	r.Use(middleware.Recoverer)

	// --- 2. Служебные роуты (без аутентификации) ---
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	// --- 3. Периметр: токен проверяется, если он есть ---
	authenticated := engine.Compose(s.authn.Handler)
	r.With(authenticated).Get("/v1/me", handler.Me)

	// Управление отзывом токенов только для администраторов
	admin := engine.Compose(
		s.authn.Handler,
		auth.RequireAuthority(s.adminAuthority, s.authn.RejectionMessage(), s.logger),
	)
	r.Route("/v1/admin", func(r chi.Router) {
		r.Use(admin)
		r.Post("/tokens/revoke", s.revocationHandler.Revoke)
		r.Post("/tokens/restore", s.revocationHandler.Restore)
	})
}

// ServeHTTP позволяет использовать Server как стандартный http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
