package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"confessions/internal/cache"
	"confessions/internal/models"
	"confessions/internal/notifications"
	"confessions/internal/observability"
)

var statuses = []models.ConfessionStatus{models.StatusPending, models.StatusApproved, models.StatusRejected}

// Warm loads the persisted snapshot, if any, and then refreshes from the
// store. A failed refresh leaves the snapshot state in place.
func (s *ConfessionService) Warm(ctx context.Context) error {
	s.LoadSnapshot(ctx)
	return s.Refresh(ctx)
}

// LoadSnapshot replaces local state with the persisted snapshot. Missing or
// unreadable snapshots are ignored. It reports whether state was loaded.
func (s *ConfessionService) LoadSnapshot(ctx context.Context) bool {
	if s.snapshots == nil {
		return false
	}
	snap, err := s.snapshots.Load(ctx)
	if err != nil {
		if errors.Is(err, cache.ErrSnapshotMissing) {
			s.logger.InfoContext(ctx, "no persisted snapshot")
		} else {
			s.logger.WarnContext(ctx, "ignoring persisted snapshot", slog.String("error", err.Error()))
		}
		return false
	}

	items := make([]models.Confession, 0, len(snap.Pending)+len(snap.Approved)+len(snap.Rejected))
	for _, part := range [][]*models.Confession{snap.Pending, snap.Approved, snap.Rejected} {
		for _, c := range part {
			if c != nil {
				items = append(items, *c)
			}
		}
	}
	liked := make(map[string]map[int64]struct{}, len(snap.LikedIDs))
	for user, ids := range snap.LikedIDs {
		set := make(map[int64]struct{}, len(ids))
		for _, id := range ids {
			set[id] = struct{}{}
		}
		liked[user] = set
	}
	s.ingest(items, liked)

	s.logger.InfoContext(ctx, "loaded persisted snapshot",
		slog.Time("saved_at", snap.SavedAt), slog.Int("confessions", len(items)))
	return true
}

// Refresh replaces local state wholesale with what the store holds.
// Overlapping calls run one after another.
func (s *ConfessionService) Refresh(ctx context.Context) (err error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	span, ctx := observability.NewSpan(ctx, "ConfessionService.Refresh")
	start := time.Now()
	defer func() {
		observability.RefreshDuration.WithLabelValues(observability.Result(err)).Observe(time.Since(start).Seconds())
		span.SetError(err)
		span.End()
	}()

	if s.reconcile {
		fixed, err := remoteCall(ctx, s.retry, s.logger, "reconcile_like_counts", s.repo.ReconcileLikeCounts)
		if err != nil {
			s.logger.WarnContext(ctx, "like count reconciliation failed", slog.String("error", err.Error()))
		} else if fixed > 0 {
			s.logger.InfoContext(ctx, "reconciled like counts", slog.Int64("confessions", fixed))
		}
	}

	var items []models.Confession
	for _, status := range statuses {
		part, err := remoteCall(ctx, s.retry, s.logger, "list_by_status", func(ctx context.Context) ([]models.Confession, error) {
			return s.repo.ListByStatus(ctx, status)
		})
		if err != nil {
			s.logger.ErrorContext(ctx, "refresh failed", slog.String("status", string(status)), slog.String("error", err.Error()))
			return fmt.Errorf("refresh %s confessions: %w", status, err)
		}
		items = append(items, part...)
	}

	likes, err := remoteCall(ctx, s.retry, s.logger, "list_likes", s.repo.ListLikes)
	if err != nil {
		s.logger.ErrorContext(ctx, "refresh failed", slog.String("error", err.Error()))
		return fmt.Errorf("refresh likes: %w", err)
	}
	liked := make(map[string]map[int64]struct{})
	for _, l := range likes {
		set := liked[l.UserID]
		if set == nil {
			set = map[int64]struct{}{}
			liked[l.UserID] = set
		}
		set[l.ConfessionID] = struct{}{}
	}

	maxID, err := remoteCall(ctx, s.retry, s.logger, "max_local_id", s.repo.MaxLocalID)
	if err != nil {
		return fmt.Errorf("refresh id sequence: %w", err)
	}
	s.raiseSequence(maxID)

	s.ingest(items, liked)
	s.logger.InfoContext(ctx, "confessions refreshed", slog.Int("confessions", len(items)), slog.Int("likes", len(likes)))
	s.persist(ctx)
	return nil
}

// ingest normalizes affiliations and swaps local state in one step.
func (s *ConfessionService) ingest(items []models.Confession, liked map[string]map[int64]struct{}) {
	var maxID int64
	for i := range items {
		items[i].Affiliation = s.catalog.Normalize(items[i].Affiliation)
		if items[i].ID > maxID {
			maxID = items[i].ID
		}
	}
	s.raiseSequence(maxID)

	s.mu.Lock()
	s.reset(items, liked)
	s.observePartitions()
	s.mu.Unlock()
}

// persist writes the advisory snapshot. Failures are logged only.
func (s *ConfessionService) persist(ctx context.Context) {
	if s.snapshots == nil {
		return
	}

	s.mu.RLock()
	snap := &cache.Snapshot{
		SavedAt:  s.now(),
		Pending:  pointers(s.partitionCopy(models.StatusPending)),
		Approved: pointers(s.partitionCopy(models.StatusApproved)),
		Rejected: pointers(s.partitionCopy(models.StatusRejected)),
		LikedIDs: make(map[string][]int64, len(s.liked)),
	}
	for user := range s.liked {
		if ids := s.likedCopy(user); len(ids) > 0 {
			snap.LikedIDs[user] = ids
		}
	}
	s.mu.RUnlock()

	if err := s.snapshots.Save(ctx, snap); err != nil {
		s.logger.WarnContext(ctx, "failed to persist snapshot", slog.String("error", err.Error()))
	}
}

func pointers(items []models.Confession) []*models.Confession {
	out := make([]*models.Confession, len(items))
	for i := range items {
		out[i] = &items[i]
	}
	return out
}

// RequestRefresh schedules a refresh on the Run loop. Requests made while
// one is already queued are merged.
func (s *ConfessionService) RequestRefresh() {
	select {
	case s.refreshCh <- struct{}{}:
	default:
	}
}

// HandleSyncEvent reacts to a lifecycle event from another instance.
func (s *ConfessionService) HandleSyncEvent(ev notifications.Event) {
	s.logger.Debug("lifecycle event from peer",
		slog.String("type", string(ev.Type)),
		slog.Int64("confession_id", ev.ConfessionID),
		slog.String("instance", ev.Instance))
	s.RequestRefresh()
}

// Run serves refresh requests until ctx is done. A positive interval also
// refreshes periodically.
func (s *ConfessionService) Run(ctx context.Context, interval time.Duration) {
	var tick <-chan time.Time
	if interval > 0 {
		t := time.NewTicker(interval)
		defer t.Stop()
		tick = t.C
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.refreshCh:
		case <-tick:
		}
		if err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
			s.logger.WarnContext(ctx, "background refresh failed", slog.String("error", err.Error()))
		}
	}
}
