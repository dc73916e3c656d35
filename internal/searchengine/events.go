package searchengine

import (
	"context"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/pkg/kafka"
)

// EventHandler consumes index-complete events: each one is applied to svc,
// then every hook runs (query cache invalidation, for example). Undecodable
// events are logged and skipped.
func EventHandler(svc *Service, hooks ...func(ctx context.Context) error) kafka.MessageHandler {
	logger := slog.Default().With("component", "index-events")
	return func(ctx context.Context, key []byte, value []byte) error {
		ev, err := kafka.DecodeJSON[kafka.IndexEvent](value)
		if err != nil {
			logger.Error("dropping undecodable index event", "key", string(key), "error", err)
			return nil
		}
		if err := svc.ApplyIndexEvent(ctx, ev); err != nil {
			return err
		}
		for _, hook := range hooks {
			if err := hook(ctx); err != nil {
				logger.Warn("index event hook failed", "paper_id", ev.PaperID, "error", err)
			}
		}
		return nil
	}
}
