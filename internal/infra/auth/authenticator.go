package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xela07ax/authgate/internal/domain"
	"github.com/xela07ax/authgate/internal/infra"
	"go.uber.org/zap"
)

// DefaultRejectionMessage отдаётся клиенту при любом отказе, причина остаётся в логах.
const DefaultRejectionMessage = "invalid or expired token"

// PrincipalResolver загружает принципала по субъекту токена.
type PrincipalResolver interface {
	LoadBySubject(ctx context.Context, subject string) (*domain.Principal, error)
}

// Observer получает исход каждой аутентификации (метрики).
type Observer interface {
	ObserveAuthentication(outcome string, elapsed time.Duration)
}

type Outcome int

const (
	OutcomeAnonymous Outcome = iota
	OutcomeAuthenticated
	OutcomeRejected
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAnonymous:
		return "anonymous"
	case OutcomeAuthenticated:
		return "authenticated"
	case OutcomeRejected:
		return "rejected"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result — явный итог аутентификации вместо исключений.
// Для OutcomeAuthenticated заполнен Context, для OutcomeRejected — Err.
type Result struct {
	Outcome Outcome
	Context SecurityContext
	Err     *RejectionError
}

// Reason возвращает метку причины отказа для логов и метрик.
func (r Result) Reason() string {
	if r.Err == nil {
		return ""
	}
	if errors.Is(r.Err.Kind, ErrInvalidToken) {
		return "invalid_token"
	}
	return "principal_resolution"
}

type Authenticator struct {
	validator TokenValidator
	resolver  PrincipalResolver
	observer  Observer
	logger    *zap.Logger
	message   string
}

type Option func(*Authenticator)

func WithObserver(o Observer) Option {
	return func(a *Authenticator) { a.observer = o }
}

func WithRejectionMessage(msg string) Option {
	return func(a *Authenticator) {
		if msg != "" {
			a.message = msg
		}
	}
}

func NewAuthenticator(v TokenValidator, r PrincipalResolver, logger *zap.Logger, opts ...Option) *Authenticator {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Authenticator{
		validator: v,
		resolver:  r,
		logger:    logger.Named("authenticator"),
		message:   DefaultRejectionMessage,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// RejectionMessage — текст, который уходит клиенту в теле отказа.
func (a *Authenticator) RejectionMessage() string { return a.message }

// Authenticate проверяет уже извлечённый токен. Пустой токен — анонимный запрос.
// fields дописываются в лог отказа (path для HTTP, method для gRPC).
func (a *Authenticator) Authenticate(ctx context.Context, token string, fields ...zap.Field) Result {
	start := time.Now()
	res := a.authenticate(ctx, token)

	if a.observer != nil {
		a.observer.ObserveAuthentication(res.Outcome.String(), time.Since(start))
	}
	if res.Outcome == OutcomeRejected {
		a.logger.Warn("authentication rejected", append([]zap.Field{
			zap.String("trace_id", infra.TraceID(ctx)),
			zap.String("reason", res.Reason()),
			zap.Error(res.Err.Err),
		}, fields...)...)
	}
	return res
}

func (a *Authenticator) authenticate(ctx context.Context, token string) Result {
	if token == "" {
		return Result{Outcome: OutcomeAnonymous, Context: NewSecurityContext()}
	}

	if err := a.validator.Validate(ctx, token); err != nil {
		return rejected(ErrInvalidToken, err)
	}

	claims, err := a.validator.DecodeClaims(token)
	if err != nil {
		return rejected(ErrPrincipalResolution, fmt.Errorf("decode claims: %w", err))
	}

	principal, err := a.resolver.LoadBySubject(ctx, claims.Subject)
	if err != nil {
		return rejected(ErrPrincipalResolution, fmt.Errorf("load %q: %w", claims.Subject, err))
	}
	if principal == nil {
		return rejected(ErrPrincipalResolution, fmt.Errorf("load %q: %w", claims.Subject, domain.ErrUserNotFound))
	}

	sc := NewSecurityContext().WithAuthentication(NewAuthentication(principal))
	a.logger.Debug("authentication successful",
		zap.String("trace_id", infra.TraceID(ctx)),
		zap.String("sub", claims.Subject),
		zap.Strings("authorities", principal.Authorities))

	return Result{Outcome: OutcomeAuthenticated, Context: sc}
}

func rejected(kind, err error) Result {
	return Result{Outcome: OutcomeRejected, Err: reject(kind, err)}
}
