package service

import (
	"context"
	"log/slog"
	"strings"

	"confessions/internal/identity"
	"confessions/internal/models"
	"confessions/internal/notifications"
	"confessions/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

// Approve publishes confession id on behalf of the current moderator.
func (s *ConfessionService) Approve(ctx context.Context, id int64) (*models.Confession, error) {
	return s.moderate(ctx, id, models.StatusApproved, "")
}

// Reject hides confession id. A blank reason is stored as null.
func (s *ConfessionService) Reject(ctx context.Context, id int64, reason string) (*models.Confession, error) {
	return s.moderate(ctx, id, models.StatusRejected, reason)
}

func (s *ConfessionService) currentModerator(ctx context.Context) (*identity.User, error) {
	u := s.identity.CurrentUser(ctx)
	if u == nil {
		return nil, models.NewUnauthenticatedError("Moderator identity required")
	}
	if !u.IsModerator() {
		return nil, models.NewUnauthorizedError("Moderator access required")
	}
	return u, nil
}

// moderate commits the transition to the store first (status columns and
// audit event together) and only then moves the local copy.
func (s *ConfessionService) moderate(ctx context.Context, id int64, target models.ConfessionStatus, reason string) (out *models.Confession, err error) {
	span, ctx := observability.NewSpan(ctx, "ConfessionService.moderate")
	span.AddAttributes(attribute.Int64("confession.id", id), attribute.String("confession.target", string(target)))
	defer func() {
		observability.Transitions.WithLabelValues(string(target), observability.Result(err)).Inc()
		span.SetError(err)
		span.End()
	}()

	u, err := s.currentModerator(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "moderation refused",
			slog.Int64("confession_id", id), slog.String("error", err.Error()))
		return nil, err
	}
	mod := u.AsModerator()

	s.mu.RLock()
	cur, ok := s.find(id)
	var snapshot models.Confession
	if ok {
		snapshot = cur.Clone()
	}
	s.mu.RUnlock()
	if !ok {
		s.logger.WarnContext(ctx, "moderation target not found", slog.Int64("confession_id", id))
		return nil, models.NewNotFoundError("confession", id)
	}

	ref := snapshot.RemoteRef
	if ref == "" {
		if ref, err = s.ResolveRemoteRef(ctx, id); err != nil {
			return nil, err
		}
		snapshot.RemoteRef = ref
	}

	var (
		upd models.ModerationUpdate
		ev  models.ModerationEvent
	)
	if target == models.StatusApproved {
		upd, ev = snapshot.PlanApproval(mod, s.now())
	} else {
		upd, ev = snapshot.PlanRejection(mod, reason, s.now())
	}

	err = remoteExec(ctx, s.retry, s.logger, "record_moderation", func(ctx context.Context) error {
		return s.repo.RecordModeration(ctx, ref, upd, ev)
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to store moderation action",
			slog.Int64("confession_id", id),
			slog.String("action", string(target)),
			slog.String("error", err.Error()))
		return nil, asWriteError("moderation action", err)
	}

	s.mu.Lock()
	// Append to whatever log is current now; a concurrent action may have
	// added newer events since the snapshot above, and Apply retimes ours.
	live, ok := s.find(id)
	if !ok {
		live = &snapshot
	}
	live.RemoteRef = ref
	live.Apply(upd, ev)
	s.place(live)
	result := live.Clone()
	s.observePartitions()
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "confession moderated",
		slog.Int64("confession_id", id),
		slog.String("status", string(target)),
		slog.String("moderator_id", mod.ID))

	typ := notifications.EventApproved
	if target == models.StatusRejected {
		typ = notifications.EventRejected
	}
	s.committed(ctx, typ, id)
	return &result, nil
}

// ModerationLog returns a copy of the audit trail of confession id.
func (s *ConfessionService) ModerationLog(ctx context.Context, id int64) ([]models.ModerationEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.find(id)
	if !ok {
		return nil, models.NewNotFoundError("confession", id)
	}
	return c.Clone().ModerationLog, nil
}

// ResolveRemoteRef maps a local id onto its store document. The local copy
// is used when it carries a ref; otherwise the store is queried by id and
// must hold exactly one match.
func (s *ConfessionService) ResolveRemoteRef(ctx context.Context, id int64) (string, error) {
	s.mu.RLock()
	if c, ok := s.find(id); ok && strings.TrimSpace(c.RemoteRef) != "" {
		ref := c.RemoteRef
		s.mu.RUnlock()
		return ref, nil
	}
	s.mu.RUnlock()

	doc, err := remoteCall(ctx, s.retry, s.logger, "find_by_local_id", func(ctx context.Context) (*models.Confession, error) {
		return s.repo.FindByLocalID(ctx, id)
	})
	if err != nil {
		s.logger.WarnContext(ctx, "could not resolve remote ref",
			slog.Int64("confession_id", id), slog.String("error", err.Error()))
		return "", err
	}

	s.mu.Lock()
	if c, ok := s.find(id); ok && c.RemoteRef == "" {
		c.RemoteRef = doc.RemoteRef
	}
	s.mu.Unlock()
	return doc.RemoteRef, nil
}
