package engine

import (
	"context"
	"strings"

	"github.com/xela07ax/authgate/internal/infra/auth"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// UnaryAuthInterceptor — та же стадия аутентификации для gRPC.
// Токен берётся из метаданных "authorization" (gRPC приводит ключи к нижнему регистру)
// с той же схемой, что и HTTP заголовок; пустая схема — голый токен.
func UnaryAuthInterceptor(authn *auth.Authenticator, scheme string) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		res := authn.Authenticate(ctx, tokenFromMetadata(ctx, scheme), zap.String("method", info.FullMethod))

		switch res.Outcome {
		case auth.OutcomeAnonymous:
			return handler(ctx, req)
		case auth.OutcomeAuthenticated:
			return handler(auth.WithSecurityContext(ctx, res.Context), req)
		default:
			return nil, status.Error(codes.PermissionDenied, authn.RejectionMessage())
		}
	}
}

func tokenFromMetadata(ctx context.Context, scheme string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get("authorization")
	if len(values) == 0 {
		return ""
	}

	raw := strings.TrimSpace(values[0])
	if scheme == "" {
		return raw
	}

	got, token, found := strings.Cut(raw, " ")
	if !found || !strings.EqualFold(got, scheme) {
		return ""
	}
	return strings.TrimSpace(token)
}
