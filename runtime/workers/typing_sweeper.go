package workers

import (
	"chat-presence/contract"
	"chat-presence/domain/event"
	"context"
	"log/slog"
	"time"
)

var _ contract.Worker = (*TypingSweeper)(nil)

// TypingSweeper expires stale typing entries and rebroadcasts the typing set
// of each room that changed. This is the server-side backstop for clients
// whose debounce timer never fired (crashed tab, dropped network).
type TypingSweeper struct {
	log      *slog.Logger
	typing   contract.ITypingTracker
	rooms    contract.IRoomPublisher
	interval time.Duration
}

func NewTypingSweeper(log *slog.Logger, typing contract.ITypingTracker,
	rooms contract.IRoomPublisher, interval time.Duration) *TypingSweeper {
	return &TypingSweeper{log: log, typing: typing, rooms: rooms, interval: interval}
}

func (w *TypingSweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Stopping worker")
			return ctx.Err()
		case now := <-ticker.C:
			for _, room := range w.typing.SweepExpired(now) {
				w.rooms.Publish(ctx, event.TypingUpdate{
					Room:   room,
					Typing: w.typing.Active(room),
				}, "")
			}
		}
	}
}
