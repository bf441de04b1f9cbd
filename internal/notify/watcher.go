package notify

import (
	"context"
	"sort"

	"breakout-trader/internal/models"
)

// Run sends an entry notification the first time a trade appears in a
// snapshot and an exit notification when it is first seen closed. It returns
// when snaps is closed or ctx is cancelled.
//
// Snapshots dropped by the hub only delay detection: the next snapshot still
// carries every trade of the session.
func (n *Notifier) Run(ctx context.Context, snaps <-chan models.Snapshot) {
	seen := make(map[string]models.TradeStatus)
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snaps:
			if !ok {
				return
			}
			for _, msg := range tradeEvents(seen, snap) {
				_ = n.Send(ctx, msg)
			}
		}
	}
}

func tradeEvents(seen map[string]models.TradeStatus, snap models.Snapshot) []Notification {
	keys := make([]models.InstrumentKey, 0, len(snap.Trades))
	for key := range snap.Trades {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	var out []Notification
	for _, key := range keys {
		t := snap.Trades[key]
		if t == nil {
			continue
		}
		id := t.ID
		if id == "" {
			id = string(key)
		}
		prev, known := seen[id]
		if !known {
			out = append(out, EntryNotification(t))
		}
		if t.Status == models.TradeClosed && prev != models.TradeClosed {
			out = append(out, ExitNotification(t))
		}
		seen[id] = t.Status
	}
	return out
}
