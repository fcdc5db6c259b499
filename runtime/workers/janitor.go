package workers

import (
	"context"
	"log/slog"
	"time"

	"chat-relay/contract"
)

// JanitorWorker periodically deletes activated rooms whose member list
// drained to zero. Deletion is best-effort: a failed room is retried on
// the next sweep.
type JanitorWorker struct {
	log      *slog.Logger
	rooms    contract.IRoomStore
	interval time.Duration
}

func NewJanitorWorker(log *slog.Logger, rooms contract.IRoomStore,
	interval time.Duration) *JanitorWorker {
	return &JanitorWorker{log: log, rooms: rooms, interval: interval}
}

func (w *JanitorWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping janitor")
			return nil
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

func (w *JanitorWorker) Sweep(ctx context.Context) {
	rooms, err := w.rooms.FindEmptyActivated(ctx)
	if err != nil {
		w.log.Error("Janitor sweep failed", "err", err)
		return
	}
	for _, room := range rooms {
		if err := w.rooms.Delete(ctx, room.ID); err != nil {
			w.log.Error("Empty room not deleted", "room", room.ID, "err", err)
			continue
		}
		w.log.Info("Deleted empty chatroom", "room", room.ID, "name", room.Name)
	}
}
