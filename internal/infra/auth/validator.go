package auth

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/xela07ax/authgate/internal/domain"
	"go.uber.org/zap"
)

// TokenValidator — всё, что аутентификатору нужно знать о токенах.
type TokenValidator interface {
	// ExtractToken достаёт токен из запроса; false — токена нет.
	ExtractToken(r *http.Request) (string, bool)
	// Validate проверяет подпись, срок жизни и отзыв.
	Validate(ctx context.Context, token string) error
	// DecodeClaims разбирает claims уже проверенного токена.
	DecodeClaims(token string) (*domain.Claims, error)
}

// RevocationChecker отвечает, отозван ли токен с данным jti.
type RevocationChecker interface {
	IsRevoked(jti string) bool
}

var errMissingSubject = errors.New("token has no subject")

type ValidatorConfig struct {
	Header string // "Authorization"
	Scheme string // "Bearer"; пусто — заголовок содержит голый токен

	// Ровно один источник ключа: PublicKey (RS256), HMACSecret (HS256) или KeyFunc (JWKS).
	PublicKey  *rsa.PublicKey
	HMACSecret []byte
	KeyFunc    jwt.Keyfunc

	Issuer string
	Leeway time.Duration
}

// JWTValidator проверяет JWT, подписанные RS256 (ключ или JWKS) либо HS256.
type JWTValidator struct {
	header  string
	scheme  string
	keyFunc jwt.Keyfunc
	parser  *jwt.Parser
	revoked RevocationChecker
}

// NewJWTValidator собирает валидатор. revoked может быть nil — тогда отзыв не проверяется.
func NewJWTValidator(cfg ValidatorConfig, revoked RevocationChecker) (*JWTValidator, error) {
	if cfg.Header == "" {
		cfg.Header = "Authorization"
	}

	var (
		keyFunc jwt.Keyfunc
		methods []string
	)
	switch {
	case cfg.KeyFunc != nil:
		keyFunc = cfg.KeyFunc
		methods = []string{jwt.SigningMethodRS256.Alg()}
	case cfg.PublicKey != nil:
		pub := cfg.PublicKey
		keyFunc = func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return pub, nil
		}
		methods = []string{jwt.SigningMethodRS256.Alg()}
	case len(cfg.HMACSecret) > 0:
		secret := cfg.HMACSecret
		keyFunc = func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return secret, nil
		}
		methods = []string{jwt.SigningMethodHS256.Alg()}
	default:
		return nil, errors.New("validator: no verification key configured")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods(methods),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	return &JWTValidator{
		header:  cfg.Header,
		scheme:  cfg.Scheme,
		keyFunc: keyFunc,
		parser:  jwt.NewParser(opts...),
		revoked: revoked,
	}, nil
}

// ExtractToken возвращает токен из заголовка. Заголовок без нужной схемы
// считается отсутствием токена, а не ошибкой.
func (v *JWTValidator) ExtractToken(r *http.Request) (string, bool) {
	raw := strings.TrimSpace(r.Header.Get(v.header))
	if raw == "" {
		return "", false
	}
	if v.scheme == "" {
		return raw, true
	}

	scheme, token, ok := strings.Cut(raw, " ")
	if !ok || !strings.EqualFold(scheme, v.scheme) {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func (v *JWTValidator) Validate(_ context.Context, token string) error {
	claims, err := v.parse(token)
	if err != nil {
		return err
	}
	if v.revoked != nil && claims.ID != "" && v.revoked.IsRevoked(claims.ID) {
		return fmt.Errorf("token %s has been revoked", claims.ID)
	}
	return nil
}

// DecodeClaims разбирает токен повторно: claims не кэшируются между вызовами.
func (v *JWTValidator) DecodeClaims(token string) (*domain.Claims, error) {
	claims, err := v.parse(token)
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, errMissingSubject
	}
	return claims, nil
}

func (v *JWTValidator) parse(tokenStr string) (*domain.Claims, error) {
	token, err := v.parser.ParseWithClaims(tokenStr, &domain.Claims{}, v.keyFunc)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("token is not valid")
	}
	claims, ok := token.Claims.(*domain.Claims)
	if !ok {
		return nil, errors.New("invalid claims")
	}
	return claims, nil
}

// NewJWKS подгружает набор ключей и обновляет его в фоне.
// Вызывающий обязан вызвать EndBackground при остановке.
func NewJWKS(ctx context.Context, url string, logger *zap.Logger) (*keyfunc.JWKS, error) {
	jwks, err := keyfunc.Get(url, keyfunc.Options{
		Ctx: ctx,
		RefreshErrorHandler: func(err error) {
			logger.Warn("jwks background refresh failed", zap.String("url", url), zap.Error(err))
		},
		RefreshInterval:   time.Hour,
		RefreshRateLimit:  5 * time.Minute,
		RefreshTimeout:    10 * time.Second,
		RefreshUnknownKID: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load jwks from %s: %w", url, err)
	}
	return jwks, nil
}

// ParseRSAPublicKey превращает PEM в объект для проверки подписи
func ParseRSAPublicKey(data []byte) (*rsa.PublicKey, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("public key data is empty")
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	return key, nil
}
