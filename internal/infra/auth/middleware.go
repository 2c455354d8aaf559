package auth

import (
	"net/http"

	"go.uber.org/zap"
)

// Handler — стадия HTTP-пайплайна. Анонимный запрос проходит без изменений,
// аутентифицированный получает SecurityContext в r.Context(),
// при отказе цепочка обрывается ответом 403.
func (a *Authenticator) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, _ := a.validator.ExtractToken(r)

		res := a.Authenticate(r.Context(), token, zap.String("path", r.URL.Path))
		switch res.Outcome {
		case OutcomeAnonymous:
			next.ServeHTTP(w, r)
		case OutcomeAuthenticated:
			ctx := WithSecurityContext(r.Context(), res.Context)
			next.ServeHTTP(w, r.WithContext(ctx))
		default:
			if err := WriteRejection(w, a.message); err != nil {
				a.logger.Error("failed to write rejection", zap.Error(err))
			}
		}
	})
}
