package auth

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/authgate/internal/infra"
	"go.uber.org/zap"
)

// RevocationList — L1 (RAM) копия отозванных jti, синхронизируемая через Redis.
// Источник правды — sorted set в Redis (score = exp токена), изменения
// доходят до всех инстансов через Pub/Sub.
type RevocationList struct {
	mu      sync.RWMutex
	revoked map[string]time.Time // jti -> exp
	rdb     *redis.Client
	logger  *zap.Logger
	now     func() time.Time
}

func NewRevocationList(rdb *redis.Client, logger *zap.Logger) *RevocationList {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RevocationList{
		revoked: make(map[string]time.Time),
		rdb:     rdb,
		logger:  logger.Named("revocation"),
		now:     time.Now,
	}
}

// Init загружает текущее состояние при старте и после переподключения.
// Заодно вычищает из Redis записи токенов, которые уже истекли сами.
func (l *RevocationList) Init(ctx context.Context) error {
	now := l.now().Unix()
	if err := l.rdb.ZRemRangeByScore(ctx, infra.RedisKeyRevokedTokens, "-inf", strconv.FormatInt(now, 10)).Err(); err != nil {
		return fmt.Errorf("revocation: prune expired: %w", err)
	}

	entries, err := l.rdb.ZRangeByScoreWithScores(ctx, infra.RedisKeyRevokedTokens, &redis.ZRangeBy{
		Min: "(" + strconv.FormatInt(now, 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return fmt.Errorf("revocation: load: %w", err)
	}

	fresh := make(map[string]time.Time, len(entries))
	for _, z := range entries {
		jti, ok := z.Member.(string)
		if !ok {
			continue
		}
		fresh[jti] = time.Unix(int64(z.Score), 0)
	}

	l.mu.Lock()
	l.revoked = fresh
	l.mu.Unlock()

	l.logger.Info("revocation list loaded", zap.Int("count", len(fresh)))
	return nil
}

// IsRevoked — горячий путь, работает только с памятью.
func (l *RevocationList) IsRevoked(jti string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.revoked[jti]
	return ok
}

// Revoke сохраняет отзыв в Redis и оповещает остальные инстансы.
// Токены с exp в прошлом не сохраняются: они и так не пройдут проверку.
func (l *RevocationList) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	if !expiresAt.After(l.now()) {
		return nil
	}

	pipe := l.rdb.TxPipeline()
	pipe.ZAdd(ctx, infra.RedisKeyRevokedTokens, redis.Z{Score: float64(expiresAt.Unix()), Member: jti})
	pipe.Publish(ctx, infra.RedisChanRevocation, jti+":true")
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("revocation: revoke %s: %w", jti, err)
	}

	l.markRevoked(jti, expiresAt)
	l.logger.Info("token revoked", zap.String("jti", jti), zap.Time("expires_at", expiresAt))
	return nil
}

// Restore снимает отзыв (например, отозвали по ошибке).
func (l *RevocationList) Restore(ctx context.Context, jti string) error {
	pipe := l.rdb.TxPipeline()
	pipe.ZRem(ctx, infra.RedisKeyRevokedTokens, jti)
	pipe.Publish(ctx, infra.RedisChanRevocation, jti+":false")
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("revocation: restore %s: %w", jti, err)
	}

	l.unmark(jti)
	return nil
}

// StartListener держит подписку на сигналы отзыва до отмены ctx.
func (l *RevocationList) StartListener(ctx context.Context) {
	l.logger.Info("revocation listener started")
	infra.ListenResilient(ctx, l.rdb, l.logger, infra.RedisChanRevocation,
		func() error { return l.Init(ctx) },
		func(jti string, revoked bool) {
			if revoked {
				// Точный exp знает только Redis; до следующего Init держим запись бессрочно
				l.markRevoked(jti, time.Time{})
				return
			}
			l.unmark(jti)
		},
	)
	l.logger.Info("revocation listener stopped")
}

func (l *RevocationList) markRevoked(jti string, expiresAt time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if prev, ok := l.revoked[jti]; ok && expiresAt.IsZero() {
		expiresAt = prev
	}
	l.revoked[jti] = expiresAt
}

func (l *RevocationList) unmark(jti string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.revoked, jti)
}

// Size — количество записей в L1, для метрик и тестов.
func (l *RevocationList) Size() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.revoked)
}
