package auth

import (
	"net/http"

	"go.uber.org/zap"
)

// RequireAuthority пропускает дальше только запросы, чей принципал обладает authority.
// Анонимные запросы получают тот же 403, что и при неверном токене.
func RequireAuthority(authority, msg string, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if msg == "" {
		msg = "access denied"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			a, ok := FromContext(r.Context()).Authentication()
			if !ok || !a.HasAuthority(authority) {
				logger.Warn("insufficient authority",
					zap.String("path", r.URL.Path),
					zap.String("required", authority),
					zap.Bool("authenticated", ok))
				_ = WriteRejection(w, msg)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
