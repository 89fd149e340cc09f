package history

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// ErrStorageDegraded reports a backend write or read failure. Chat keeps
// running; only backfill completeness suffers.
var ErrStorageDegraded = errors.New("history backend degraded")

// Event is one chat message. Presence signals (join/leave/typing) are
// never stored.
type Event struct {
	RoomKey string    `json:"room_key"`
	ConnID  string    `json:"conn_id"`
	Nick    string    `json:"nick"`
	Text    string    `json:"text"`
	Ts      time.Time `json:"ts"`
}

type IHistoryService interface {
	// Append stores a message event. With retention disabled it is a no-op.
	Append(ctx context.Context, ev Event) error
	// Recent returns up to limit events for a room, oldest first.
	Recent(ctx context.Context, roomKey string, limit int) ([]Event, error)
	// Prune drops events older than the retention window. Idempotent.
	Prune(ctx context.Context, now time.Time) error
}

// RunPruner sweeps expired events on a fixed interval until ctx is done.
// It runs independently of room activity and never touches room state.
func RunPruner(ctx context.Context, svc IHistoryService, interval time.Duration) {
	tk := time.NewTicker(interval)
	go func() {
		defer tk.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tk.C:
				if err := svc.Prune(ctx, time.Now()); err != nil {
					zap.L().Warn("history.prune", zap.Error(err))
				}
			}
		}
	}()
}
