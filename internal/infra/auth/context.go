package auth

import (
	"context"

	"github.com/xela07ax/authgate/internal/domain"
)

// Authentication — результат успешной аутентификации: принципал и его права.
// Учётные данные (сам токен) сюда не попадают.
type Authentication struct {
	principal   domain.Principal
	authorities []string
}

// NewAuthentication копирует принципала, чтобы дальнейшие изменения
// исходной структуры не протекли в контекст запроса.
func NewAuthentication(p *domain.Principal) Authentication {
	authorities := append([]string(nil), p.Authorities...)
	principal := *p
	principal.Authorities = append([]string(nil), p.Authorities...)
	return Authentication{principal: principal, authorities: authorities}
}

func (a Authentication) Name() string { return a.principal.Username }

func (a Authentication) Principal() domain.Principal {
	p := a.principal
	p.Authorities = append([]string(nil), a.principal.Authorities...)
	return p
}

func (a Authentication) Authorities() []string {
	return append([]string(nil), a.authorities...)
}

func (a Authentication) HasAuthority(authority string) bool {
	for _, granted := range a.authorities {
		if granted == authority {
			return true
		}
	}
	return false
}

// SecurityContext — неизменяемое состояние безопасности одного запроса.
// Нулевое значение означает анонимный запрос.
type SecurityContext struct {
	authentication *Authentication
}

// NewSecurityContext создаёт пустой контекст.
func NewSecurityContext() SecurityContext {
	return SecurityContext{}
}

// WithAuthentication возвращает новый контекст, исходный не меняется.
func (sc SecurityContext) WithAuthentication(a Authentication) SecurityContext {
	return SecurityContext{authentication: &a}
}

func (sc SecurityContext) Authentication() (Authentication, bool) {
	if sc.authentication == nil {
		return Authentication{}, false
	}
	return *sc.authentication, true
}

func (sc SecurityContext) IsAuthenticated() bool {
	return sc.authentication != nil
}

type contextKey struct{}

// WithSecurityContext устанавливает контекст безопасности в context.Context запроса.
func WithSecurityContext(ctx context.Context, sc SecurityContext) context.Context {
	return context.WithValue(ctx, contextKey{}, sc)
}

// FromContext возвращает контекст безопасности запроса или пустой, если его нет.
func FromContext(ctx context.Context) SecurityContext {
	if sc, ok := ctx.Value(contextKey{}).(SecurityContext); ok {
		return sc
	}
	return NewSecurityContext()
}

// PrincipalFrom — сокращение для обработчиков, которым нужен только принципал.
func PrincipalFrom(ctx context.Context) (domain.Principal, bool) {
	a, ok := FromContext(ctx).Authentication()
	if !ok {
		return domain.Principal{}, false
	}
	return a.Principal(), true
}
