package infra

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go/v5"
	"go.uber.org/zap"
)

// WaitReady ждёт, пока зависимость (Postgres, Redis) начнёт отвечать на ping.
// Используется только на старте: на горячем пути ничего не ретраится.
func WaitReady(ctx context.Context, logger *zap.Logger, name string, attempts uint, ping func(ctx context.Context) error) error {
	if attempts == 0 {
		attempts = 1
	}

	var attempt uint
	r := retry.New(
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(200*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
	)

	err := r.Do(func() error {
		attempt++
		pCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		if err := ping(pCtx); err != nil {
			logger.Warn("dependency not ready",
				zap.String("dependency", name),
				zap.Uint("attempt", attempt),
				zap.Error(err))
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s unreachable after %d attempts: %w", name, attempt, err)
	}

	logger.Info("dependency ready", zap.String("dependency", name))
	return nil
}
