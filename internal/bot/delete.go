package bot

import (
	"context"
	"fmt"
	"strconv"

	"threadbot/internal/domain"
	"threadbot/internal/metrics"
)

// cascadeDelete removes the bot's replies that follow a deleted message in
// its thread. A failed delete is logged and the rest still go.
func (h *Handler) cascadeDelete(ctx context.Context, ev domain.ChatEvent) error {
	prev := ev.PreviousMessage
	if prev == nil || prev.ThreadTS == "" || prev.SubType == domain.SubTypeTombstone {
		return nil
	}
	deletedTS := prev.TS
	if deletedTS == "" {
		deletedTS = ev.DeletedTS
	}
	cutoff, err := parseTS(deletedTS)
	if err != nil {
		return fmt.Errorf("deleted message ts: %w", err)
	}

	thread, err := h.chat.FetchThread(ctx, ev.ChannelID, prev.ThreadTS)
	if err != nil {
		return err
	}

	start := -1
	for i, m := range thread {
		ts, err := parseTS(m.TS)
		if err != nil {
			continue
		}
		if ts >= cutoff {
			start = i
			break
		}
	}
	if start < 0 {
		return nil
	}

	deleted := 0
	for _, m := range thread[start:] {
		if m.User != h.botUserID {
			continue
		}
		if err := h.chat.DeleteMessage(ctx, ev.ChannelID, m.TS); err != nil {
			h.logger.Error("delete reply failed", "thread", prev.ThreadTS, "ts", m.TS, "err", err)
			continue
		}
		deleted++
		metrics.DeletedReplies.Inc()
	}
	h.logger.Info("cascade delete", "thread", prev.ThreadTS, "deleted_ts", deletedTS, "removed", deleted)
	return nil
}

// parseTS reads a Slack timestamp ("1700000000.000100") as seconds.
func parseTS(ts string) (float64, error) {
	return strconv.ParseFloat(ts, 64)
}
