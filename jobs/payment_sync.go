package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// PaymentSyncer сверяет ожидающие оплаты с провайдером.
type PaymentSyncer interface {
	SyncPendingPayments(ctx context.Context) (int, error)
}

// StartPaymentSync запускает периодическую сверку платежей. Первый прогон сразу после старта,
// следующий не начнется, пока не закончился предыдущий.
// Вызывающий отвечает за Shutdown планировщика.
func StartPaymentSync(ctx context.Context, syncer PaymentSyncer, interval, runTimeout time.Duration, logger *slog.Logger) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			runCtx, cancel := context.WithTimeout(ctx, runTimeout)
			defer cancel()

			updated, err := syncer.SyncPendingPayments(runCtx)
			if err != nil {
				logger.Error("payment sync failed", slog.Any("error", err))
				return
			}
			logger.Debug("payment sync finished", slog.Int("updated", updated))
		}),
		gocron.WithName("payment-sync"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, fmt.Errorf("failed to schedule payment sync: %w", err)
	}

	sched.Start()
	logger.Info("payment sync scheduled", slog.Duration("interval", interval))
	return sched, nil
}
