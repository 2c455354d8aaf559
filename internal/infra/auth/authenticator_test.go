package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/authgate/internal/domain"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type MockTokenValidator struct {
	mock.Mock
}

func (m *MockTokenValidator) ExtractToken(r *http.Request) (string, bool) {
	args := m.Called(r)
	return args.String(0), args.Bool(1)
}

func (m *MockTokenValidator) Validate(ctx context.Context, token string) error {
	return m.Called(ctx, token).Error(0)
}

func (m *MockTokenValidator) DecodeClaims(token string) (*domain.Claims, error) {
	args := m.Called(token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Claims), args.Error(1)
}

type MockPrincipalResolver struct {
	mock.Mock
}

func (m *MockPrincipalResolver) LoadBySubject(ctx context.Context, subject string) (*domain.Principal, error) {
	args := m.Called(ctx, subject)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Principal), args.Error(1)
}

type recordingObserver struct {
	outcomes []string
}

func (o *recordingObserver) ObserveAuthentication(outcome string, _ time.Duration) {
	o.outcomes = append(o.outcomes, outcome)
}

// headerValidator достаёт токен из Authorization как есть, остальное делегирует моку.
type headerValidator struct {
	*MockTokenValidator
}

func (v headerValidator) ExtractToken(r *http.Request) (string, bool) {
	t := r.Header.Get("Authorization")
	return t, t != ""
}

func claimsFor(sub string) *domain.Claims {
	return &domain.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: sub}}
}

func decodeRejection(t *testing.T, w *httptest.ResponseRecorder) Rejection {
	t.Helper()
	var body Rejection
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestAuthenticatorHandler(t *testing.T) {
	logger := zap.NewNop()

	t.Run("missing token passes request through unchanged", func(t *testing.T) {
		validator := new(MockTokenValidator)
		resolver := new(MockPrincipalResolver)
		obs := &recordingObserver{}
		authn := NewAuthenticator(headerValidator{validator}, resolver, logger, WithObserver(obs))

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		calls := 0
		handler := authn.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			assert.Same(t, req, r)
			assert.False(t, FromContext(r.Context()).IsAuthenticated())
			w.WriteHeader(http.StatusOK)
		}))

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 1, calls)
		assert.Equal(t, []string{"anonymous"}, obs.outcomes)
		validator.AssertNotCalled(t, "Validate", mock.Anything, mock.Anything)
		resolver.AssertNotCalled(t, "LoadBySubject", mock.Anything, mock.Anything)
	})

	t.Run("empty token value is anonymous", func(t *testing.T) {
		validator := new(MockTokenValidator)
		validator.On("ExtractToken", mock.Anything).Return("", false)
		authn := NewAuthenticator(validator, new(MockPrincipalResolver), logger)

		called := false
		handler := authn.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
			_, ok := PrincipalFrom(r.Context())
			assert.False(t, ok)
		}))

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Authorization", "")
		handler.ServeHTTP(httptest.NewRecorder(), req)

		assert.True(t, called)
		validator.AssertNotCalled(t, "Validate", mock.Anything, mock.Anything)
	})

	t.Run("invalid token is rejected with 403 and chain is not invoked", func(t *testing.T) {
		validator := new(MockTokenValidator)
		validator.On("Validate", mock.Anything, "bad.token.value").Return(errors.New("signature is invalid"))
		resolver := new(MockPrincipalResolver)
		obs := &recordingObserver{}
		authn := NewAuthenticator(headerValidator{validator}, resolver, logger, WithObserver(obs))

		handler := authn.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not be called")
		}))

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Authorization", "bad.token.value")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
		assert.JSONEq(t, `{"statusCode":403,"msg":"invalid or expired token"}`, w.Body.String())
		assert.Equal(t, []string{"rejected"}, obs.outcomes)
		validator.AssertNotCalled(t, "DecodeClaims", mock.Anything)
		resolver.AssertNotCalled(t, "LoadBySubject", mock.Anything, mock.Anything)
	})

	t.Run("unknown subject is rejected with 403", func(t *testing.T) {
		validator := new(MockTokenValidator)
		validator.On("Validate", mock.Anything, "valid-token-for-bob").Return(nil)
		validator.On("DecodeClaims", "valid-token-for-bob").Return(claimsFor("bob"), nil)
		resolver := new(MockPrincipalResolver)
		resolver.On("LoadBySubject", mock.Anything, "bob").Return(nil, domain.ErrUserNotFound)
		authn := NewAuthenticator(headerValidator{validator}, resolver, logger, WithRejectionMessage("token rejected"))

		handler := authn.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not be called")
		}))

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Authorization", "valid-token-for-bob")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, Rejection{StatusCode: 403, Msg: "token rejected"}, decodeRejection(t, w))
		resolver.AssertExpectations(t)
	})

	t.Run("claims decoding failure is rejected with 403", func(t *testing.T) {
		validator := new(MockTokenValidator)
		validator.On("Validate", mock.Anything, "no-subject").Return(nil)
		validator.On("DecodeClaims", "no-subject").Return(nil, errMissingSubject)
		resolver := new(MockPrincipalResolver)
		authn := NewAuthenticator(headerValidator{validator}, resolver, logger)

		handler := authn.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not be called")
		}))

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Authorization", "no-subject")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, 403, decodeRejection(t, w).StatusCode)
		resolver.AssertNotCalled(t, "LoadBySubject", mock.Anything, mock.Anything)
	})

	t.Run("valid token installs principal and invokes chain once", func(t *testing.T) {
		validator := new(MockTokenValidator)
		validator.On("Validate", mock.Anything, "valid-token-for-alice").Return(nil)
		validator.On("DecodeClaims", "valid-token-for-alice").Return(claimsFor("alice"), nil)
		resolver := new(MockPrincipalResolver)
		resolver.On("LoadBySubject", mock.Anything, "alice").
			Return(&domain.Principal{UserID: "u-1", Username: "alice", Authorities: []string{"USER"}}, nil)
		obs := &recordingObserver{}
		authn := NewAuthenticator(headerValidator{validator}, resolver, logger, WithObserver(obs))

		calls := 0
		handler := authn.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			a, ok := FromContext(r.Context()).Authentication()
			require.True(t, ok)
			assert.Equal(t, "alice", a.Name())
			assert.Equal(t, []string{"USER"}, a.Authorities())
			w.WriteHeader(http.StatusNoContent)
		}))

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Authorization", "valid-token-for-alice")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, 1, calls)
		assert.Equal(t, []string{"authenticated"}, obs.outcomes)
		validator.AssertExpectations(t)
		resolver.AssertExpectations(t)
	})

	t.Run("same token on two requests yields independent contexts", func(t *testing.T) {
		validator := new(MockTokenValidator)
		validator.On("Validate", mock.Anything, "valid-token-for-alice").Return(nil)
		validator.On("DecodeClaims", "valid-token-for-alice").Return(claimsFor("alice"), nil)
		resolver := new(MockPrincipalResolver)
		resolver.On("LoadBySubject", mock.Anything, "alice").
			Return(&domain.Principal{Username: "alice", Authorities: []string{"USER"}}, nil)
		authn := NewAuthenticator(headerValidator{validator}, resolver, logger)

		var seen []SecurityContext
		handler := authn.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sc := FromContext(r.Context())
			seen = append(seen, sc)
			if len(seen) == 1 {
				// Попытка испортить данные первого запроса не должна затронуть второй
				a, _ := sc.Authentication()
				auths := a.Authorities()
				auths[0] = "ADMIN"
			}
		}))

		for i := 0; i < 2; i++ {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			req.Header.Set("Authorization", "valid-token-for-alice")
			handler.ServeHTTP(httptest.NewRecorder(), req)
		}

		require.Len(t, seen, 2)
		first, _ := seen[0].Authentication()
		second, _ := seen[1].Authentication()
		assert.Equal(t, first.Principal(), second.Principal())
		assert.Equal(t, []string{"USER"}, first.Authorities())
		assert.NotSame(t, seen[0].authentication, seen[1].authentication)
	})
}

func TestAuthenticateResult(t *testing.T) {
	t.Run("rejected result carries error kind", func(t *testing.T) {
		validator := new(MockTokenValidator)
		validator.On("Validate", mock.Anything, "expired").Return(jwt.ErrTokenExpired)
		authn := NewAuthenticator(validator, new(MockPrincipalResolver), nil)

		res := authn.Authenticate(context.Background(), "expired")

		assert.Equal(t, OutcomeRejected, res.Outcome)
		require.NotNil(t, res.Err)
		assert.ErrorIs(t, res.Err, ErrInvalidToken)
		assert.ErrorIs(t, res.Err, jwt.ErrTokenExpired)
		assert.Equal(t, "invalid_token", res.Reason())
	})

	t.Run("resolver error is a principal resolution failure", func(t *testing.T) {
		validator := new(MockTokenValidator)
		validator.On("Validate", mock.Anything, "tok").Return(nil)
		validator.On("DecodeClaims", "tok").Return(claimsFor("carol"), nil)
		resolver := new(MockPrincipalResolver)
		resolver.On("LoadBySubject", mock.Anything, "carol").Return(nil, errors.New("connection refused"))
		authn := NewAuthenticator(validator, resolver, nil)

		res := authn.Authenticate(context.Background(), "tok")

		assert.Equal(t, OutcomeRejected, res.Outcome)
		assert.ErrorIs(t, res.Err, ErrPrincipalResolution)
		assert.False(t, errors.Is(res.Err, ErrInvalidToken))
		assert.Equal(t, "principal_resolution", res.Reason())
	})

	t.Run("nil principal without error is rejected", func(t *testing.T) {
		validator := new(MockTokenValidator)
		validator.On("Validate", mock.Anything, "tok").Return(nil)
		validator.On("DecodeClaims", "tok").Return(claimsFor("ghost"), nil)
		resolver := new(MockPrincipalResolver)
		resolver.On("LoadBySubject", mock.Anything, "ghost").Return(nil, nil)
		authn := NewAuthenticator(validator, resolver, nil)

		res := authn.Authenticate(context.Background(), "tok")

		assert.Equal(t, OutcomeRejected, res.Outcome)
		assert.ErrorIs(t, res.Err, domain.ErrUserNotFound)
	})

	t.Run("empty token is anonymous", func(t *testing.T) {
		authn := NewAuthenticator(new(MockTokenValidator), new(MockPrincipalResolver), nil)

		res := authn.Authenticate(context.Background(), "")

		assert.Equal(t, OutcomeAnonymous, res.Outcome)
		assert.False(t, res.Context.IsAuthenticated())
		assert.Nil(t, res.Err)
	})
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "anonymous", OutcomeAnonymous.String())
	assert.Equal(t, "authenticated", OutcomeAuthenticated.String())
	assert.Equal(t, "rejected", OutcomeRejected.String())
	assert.Equal(t, "outcome(9)", Outcome(9).String())
}

func TestRejectionLogCarriesPath(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	validator := new(MockTokenValidator)
	validator.On("Validate", mock.Anything, "forged").Return(errors.New("signature is invalid"))
	authn := NewAuthenticator(headerValidator{validator}, new(MockPrincipalResolver), zap.New(core))

	req := httptest.NewRequest(http.MethodGet, "/v1/orders", nil)
	req.Header.Set("Authorization", "forged")
	authn.Handler(http.NotFoundHandler()).ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.FilterMessage("authentication rejected").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "/v1/orders", fields["path"])
	assert.Equal(t, "invalid_token", fields["reason"])
}
