package ranking

import (
	"context"
	"log/slog"

	"confessions/internal/models"
)

// CommentCounter reports how many comments a confession has.
type CommentCounter interface {
	CommentCountFor(ctx context.Context, confessionID int64) (int, error)
}

// CommentCounts asks counter for every item. Lookup failures degrade to zero
// and are logged; ranking never fails because of them.
func CommentCounts(ctx context.Context, counter CommentCounter, items []models.Confession, logger *slog.Logger) map[int64]int {
	counts := make(map[int64]int, len(items))
	if counter == nil {
		return counts
	}
	for _, c := range items {
		if _, done := counts[c.ID]; done {
			continue
		}
		n, err := counter.CommentCountFor(ctx, c.ID)
		if err != nil {
			if logger != nil {
				logger.WarnContext(ctx, "comment count unavailable, using zero",
					slog.Int64("confession_id", c.ID),
					slog.String("error", err.Error()))
			}
			n = 0
		}
		counts[c.ID] = n
	}
	return counts
}
