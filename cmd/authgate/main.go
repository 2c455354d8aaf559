package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/authgate/internal/api/handler"
	"github.com/xela07ax/authgate/internal/api/server"
	"github.com/xela07ax/authgate/internal/engine"
	"github.com/xela07ax/authgate/internal/infra"
	"github.com/xela07ax/authgate/internal/infra/auth"
	"github.com/xela07ax/authgate/internal/repository/postgres"
	"github.com/xela07ax/authgate/internal/resolver"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	// Контекст для фоновых горутин (listener отзыва, обновление JWKS)
	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Хранилище пользователей
	db, err := postgres.Open(cfg.Database.URL, postgres.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()

	users := postgres.NewUserRepo(db)
	if err := infra.WaitReady(appCtx, logger, "postgres", cfg.Database.ConnectAttempts, users.Ping); err != nil {
		logger.Fatal("database unreachable", zap.Error(err))
	}

	// 2. Redis: revocation list и кэш принципалов
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	if err := infra.WaitReady(appCtx, logger, "redis", cfg.Redis.ConnectAttempts, func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}); err != nil {
		logger.Fatal("redis unreachable", zap.Error(err))
	}

	revocations := auth.NewRevocationList(rdb, logger)
	if err := revocations.Init(appCtx); err != nil {
		logger.Fatal("failed to init revocation list", zap.Error(err))
	}
	go revocations.StartListener(appCtx)

	// 3. Метрики
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := engine.NewMetrics(reg)

	// 4. Резолвер принципалов: кэш -> лимитер + CB -> Postgres
	protected := resolver.NewProtectedProvider(users, resolver.ProtectionConfig{
		RateLimit:        cfg.Resolver.RateLimit,
		RateBurst:        cfg.Resolver.RateBurst,
		MaxRequests:      cfg.Resolver.CBMaxRequests,
		Interval:         cfg.Resolver.CBInterval,
		Timeout:          cfg.Resolver.CBTimeout,
		ConsecutiveFails: cfg.Resolver.CBFailureTrigger,
	}, metrics)

	var cache resolver.Cache
	if cfg.Resolver.CacheTTL > 0 {
		cache = resolver.NewRedisCache(rdb, cfg.Resolver.CacheTTL)
	}
	principals := resolver.NewService(protected, cache, metrics, logger)

	// 5. Проверка токенов
	validator, stopKeys, err := buildValidator(appCtx, cfg.Auth, revocations, logger)
	if err != nil {
		logger.Fatal("failed to build token validator", zap.Error(err))
	}
	defer stopKeys()

	authn := auth.NewAuthenticator(validator, principals, logger,
		auth.WithObserver(metrics),
		auth.WithRejectionMessage(cfg.Auth.RejectionMessage),
	)

	// 6. HTTP
	api := server.NewServer(logger, authn, cfg.Auth.AdminAuthority, reg,
		handler.NewRevocationHandler(revocations, cfg.Auth.MaxTokenTTL, logger))

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 7. gRPC: тот же аутентификатор через interceptor
	grpcSrv := grpc.NewServer(grpc.UnaryInterceptor(engine.UnaryAuthInterceptor(authn, cfg.Auth.Scheme)))
	healthpb.RegisterHealthServer(grpcSrv, health.NewServer())

	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.GRPCPort)
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			logger.Fatal("failed to listen gRPC", zap.String("addr", addr), zap.Error(err))
		}
		logger.Info("gRPC server started", zap.String("addr", addr))
		if err := grpcSrv.Serve(lis); err != nil {
			logger.Error("gRPC server stopped", zap.Error(err))
		}
	}()

	// 8. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("authgate started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	<-stop
	logger.Info("authgate stopping...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	grpcSrv.GracefulStop()
	cancel()
	logger.Info("authgate exited properly")
}

// buildValidator выбирает источник ключа: JWKS, публичный RSA ключ или HMAC секрет.
// Возвращаемая функция останавливает фоновое обновление ключей.
func buildValidator(ctx context.Context, cfg infra.AuthConfig, revoked auth.RevocationChecker, logger *zap.Logger) (*auth.JWTValidator, func(), error) {
	vc := auth.ValidatorConfig{
		Header: cfg.Header,
		Scheme: cfg.Scheme,
		Issuer: cfg.Issuer,
		Leeway: cfg.Leeway,
	}
	stop := func() {}

	switch {
	case cfg.JWKSURL != "":
		jwks, err := auth.NewJWKS(ctx, cfg.JWKSURL, logger)
		if err != nil {
			return nil, nil, err
		}
		vc.KeyFunc = jwks.Keyfunc
		stop = jwks.EndBackground
	case strings.EqualFold(cfg.Algorithm, "HS256"):
		vc.HMACSecret = cfg.HMACSecret
	default:
		pub, err := auth.ParseRSAPublicKey(cfg.PublicKey)
		if err != nil {
			return nil, nil, err
		}
		vc.PublicKey = pub
	}

	v, err := auth.NewJWTValidator(vc, revoked)
	if err != nil {
		stop()
		return nil, nil, err
	}
	return v, stop, nil
}
