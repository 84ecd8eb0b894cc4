package workers

import (
	"chat-presence/contract"
	"context"
	"log/slog"
	"time"
)

var _ contract.Worker = (*RetentionWorker)(nil)

// RetentionWorker prunes messages older than the configured age on a fixed
// interval, so the log store does not grow without bound between manual
// purge calls.
type RetentionWorker struct {
	log      *slog.Logger
	messages contract.IMessageLog
	maxAge   time.Duration
	interval time.Duration
}

func NewRetentionWorker(log *slog.Logger, messages contract.IMessageLog,
	maxAge, interval time.Duration) *RetentionWorker {
	return &RetentionWorker{log: log, messages: messages, maxAge: maxAge, interval: interval}
}

func (w *RetentionWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Stopping worker")
			return ctx.Err()
		case <-ticker.C:
			count, err := w.messages.PurgeOlderThan(w.maxAge)
			if err != nil {
				w.log.Error("retention pruning failed", "error", err)
				continue
			}
			if count > 0 {
				w.log.Info("retention pruning done", "purged", count, "max_age", w.maxAge)
			}
		}
	}
}
