// Package resolver загружает принципалов по субъекту токена:
// кэш в Redis, затем хранилище пользователей под защитой лимитера и Circuit Breaker.
package resolver

import (
	"context"
	"errors"
	"fmt"

	"github.com/xela07ax/authgate/internal/domain"
	"go.uber.org/zap"
)

// UserProvider — источник правды о пользователях (Postgres).
type UserProvider interface {
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
}

// Cache хранит уже разрешённых принципалов. Промах — (nil, nil).
type Cache interface {
	Get(ctx context.Context, subject string) (*domain.Principal, error)
	Set(ctx context.Context, subject string, p *domain.Principal) error
}

// Metrics — то, что резолвер сообщает наружу.
type Metrics interface {
	CacheResult(result string)
	BreakerState(state float64)
}

type nopMetrics struct{}

func (nopMetrics) CacheResult(string)   {}
func (nopMetrics) BreakerState(float64) {}

type Service struct {
	users   UserProvider
	cache   Cache
	metrics Metrics
	logger  *zap.Logger
}

// NewService собирает резолвер. cache и metrics могут быть nil.
func NewService(users UserProvider, cache Cache, metrics Metrics, logger *zap.Logger) *Service {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		users:   users,
		cache:   cache,
		metrics: metrics,
		logger:  logger.Named("resolver"),
	}
}

// LoadBySubject реализует auth.PrincipalResolver.
// Ошибки кэша не фатальны: идём в хранилище и пишем предупреждение.
func (s *Service) LoadBySubject(ctx context.Context, subject string) (*domain.Principal, error) {
	if subject == "" {
		return nil, errors.New("resolver: empty subject")
	}

	if s.cache != nil {
		p, err := s.cache.Get(ctx, subject)
		switch {
		case err != nil:
			s.metrics.CacheResult("error")
			s.logger.Warn("principal cache read failed", zap.String("sub", subject), zap.Error(err))
		case p != nil:
			s.metrics.CacheResult("hit")
			return p, nil
		default:
			s.metrics.CacheResult("miss")
		}
	}

	user, err := s.users.GetUserByUsername(ctx, subject)
	if err != nil {
		return nil, fmt.Errorf("resolver: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("resolver: %s: %w", subject, domain.ErrUserNotFound)
	}
	if !user.Enabled {
		return nil, fmt.Errorf("resolver: %s: %w", subject, domain.ErrUserDisabled)
	}

	p := user.Principal()
	if s.cache != nil {
		if err := s.cache.Set(ctx, subject, p); err != nil {
			s.logger.Warn("principal cache write failed", zap.String("sub", subject), zap.Error(err))
		}
	}
	return p, nil
}
