package service

import (
	"context"
	"log/slog"

	"confessions/internal/models"
	"confessions/internal/notifications"
	"confessions/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

// LikeResult is the outcome of a toggle.
type LikeResult struct {
	ConfessionID int64 `json:"confession_id"`
	Liked        bool  `json:"liked"`
	LikeCount    int   `json:"like_count"`
}

// likeToggle is one in-flight toggle: the optimistic local flip, the store
// commit, and the revert used when the commit fails.
type likeToggle struct {
	userID string
	id     int64
	ref    string
	liked  bool
	// delta is what the optimistic flip added to the local count.
	delta int
}

func (t likeToggle) direction() string {
	if t.liked {
		return "like"
	}
	return "unlike"
}

// ToggleLike flips the current user's like on an approved confession.
func (s *ConfessionService) ToggleLike(ctx context.Context, id int64) (res LikeResult, err error) {
	span, ctx := observability.NewSpan(ctx, "ConfessionService.ToggleLike")
	span.AddAttributes(attribute.Int64("confession.id", id))
	defer func() {
		span.SetError(err)
		span.End()
	}()

	// Resolved on every call; identity may change between requests.
	u := s.identity.CurrentUser(ctx)
	if u == nil {
		s.logger.WarnContext(ctx, "like toggle without identity", slog.Int64("confession_id", id))
		return LikeResult{}, models.NewUnauthenticatedError("Authentication required")
	}

	t, err := s.applyLocalOptimistic(u.ID, id)
	if err != nil {
		s.logger.WarnContext(ctx, "like toggle target not found", slog.Int64("confession_id", id))
		return LikeResult{}, err
	}
	defer func() {
		observability.LikeToggles.WithLabelValues(t.direction(), observability.Result(err)).Inc()
	}()

	if t.ref == "" {
		if t.ref, err = s.ResolveRemoteRef(ctx, id); err != nil {
			s.reconcileOnFailure(t)
			return LikeResult{}, err
		}
	}

	count, err := s.commitRemote(ctx, t)
	if err != nil {
		s.reconcileOnFailure(t)
		s.logger.ErrorContext(ctx, "failed to store like toggle",
			slog.Int64("confession_id", id), slog.String("error", err.Error()))
		return LikeResult{}, asWriteError("like", err)
	}

	s.mu.Lock()
	s.settle(t)
	if c, ok := s.partitions[models.StatusApproved][id]; ok {
		// other toggles still in flight stay visible on top of the stored count
		c.LikeCount = max(count+s.pendingLikes[id], 0)
		count = c.LikeCount
	}
	s.mu.Unlock()

	s.committed(ctx, notifications.EventLikeToggled, id)
	return LikeResult{ConfessionID: id, Liked: t.liked, LikeCount: count}, nil
}

// applyLocalOptimistic flips membership and adjusts the local count before
// the store is contacted.
func (s *ConfessionService) applyLocalOptimistic(userID string, id int64) (likeToggle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.partitions[models.StatusApproved][id]
	if !ok {
		return likeToggle{}, models.NewNotFoundError("confession", id)
	}

	set := s.liked[userID]
	if set == nil {
		set = map[int64]struct{}{}
		s.liked[userID] = set
	}
	_, already := set[id]
	t := likeToggle{userID: userID, id: id, ref: c.RemoteRef, liked: !already}

	if t.liked {
		set[id] = struct{}{}
		t.delta = 1
	} else {
		delete(set, id)
		if c.LikeCount > 0 {
			t.delta = -1
		}
	}
	c.LikeCount += t.delta
	s.pendingLikes[id] += t.delta
	return t, nil
}

// settle removes t from the in-flight deltas. Callers hold mu.
func (s *ConfessionService) settle(t likeToggle) {
	if s.pendingLikes[t.id] -= t.delta; s.pendingLikes[t.id] == 0 {
		delete(s.pendingLikes, t.id)
	}
}

func (s *ConfessionService) commitRemote(ctx context.Context, t likeToggle) (int, error) {
	if t.liked {
		return remoteCall(ctx, s.retry, s.logger, "add_like", func(ctx context.Context) (int, error) {
			return s.repo.AddLike(ctx, t.ref, t.id, t.userID)
		})
	}
	return remoteCall(ctx, s.retry, s.logger, "remove_like", func(ctx context.Context) (int, error) {
		return s.repo.RemoveLike(ctx, t.ref, t.userID)
	})
}

// reconcileOnFailure undoes the optimistic flip. Only this toggle's delta is
// reverted; toggles by other users committed meanwhile stay counted.
func (s *ConfessionService) reconcileOnFailure(t likeToggle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.settle(t)
	set := s.liked[t.userID]
	if t.liked {
		delete(set, t.id)
	} else if set != nil {
		set[t.id] = struct{}{}
	}
	if c, ok := s.partitions[models.StatusApproved][t.id]; ok {
		c.LikeCount = max(c.LikeCount-t.delta, 0)
	}
}
