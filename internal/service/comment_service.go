package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"confessions/internal/cache"
	"confessions/internal/identity"
	"confessions/internal/models"
	"confessions/internal/repository"
)

// ApprovedLookup finds a published confession by local id and maps it onto
// its store ref.
type ApprovedLookup interface {
	GetApproved(ctx context.Context, id int64) (*models.Confession, error)
	ResolveRemoteRef(ctx context.Context, id int64) (string, error)
}

// CommentService manages comments on published confessions and supplies
// comment counts to the feed ranking.
type CommentService struct {
	commentRepo repository.CommentRepository
	confessions ApprovedLookup
	identity    identity.Provider
}

const (
	maxCommentLen    = 500
	defaultPageLimit = 50
	maxPageLimit     = 200
)

// CreateCommentInput is a new comment on confession ConfessionID.
type CreateCommentInput struct {
	ConfessionID int64
	Content      string
}

func NewCommentService(
	commentRepo repository.CommentRepository,
	confessions ApprovedLookup,
	provider identity.Provider,
) *CommentService {
	if provider == nil {
		provider = identity.ContextProvider{}
	}
	return &CommentService{
		commentRepo: commentRepo,
		confessions: confessions,
		identity:    provider,
	}
}

func (s *CommentService) CreateComment(ctx context.Context, in CreateCommentInput) (*models.Comment, error) {
	u := s.identity.CurrentUser(ctx)
	if u == nil {
		return nil, models.NewUnauthenticatedError("Authentication required")
	}
	ref, err := s.approvedRef(ctx, in.ConfessionID)
	if err != nil {
		return nil, err
	}

	content := strings.TrimSpace(in.Content)
	if content == "" {
		return nil, models.NewValidationError("Content is required")
	}
	if utf8.RuneCountInString(content) > maxCommentLen {
		return nil, models.NewValidationError("Comment too long (max 500 characters)")
	}

	comment := &models.Comment{
		ConfessionRef: ref,
		ConfessionID:  in.ConfessionID,
		AuthorID:      u.ID,
		Content:       content,
	}
	if err := s.commentRepo.Create(ctx, comment); err != nil {
		return nil, asWriteError("comment", err)
	}
	cache.InvalidateCommentCount(ctx, ref)
	return comment, nil
}

// approvedRef returns the store ref of published confession id. Comments
// are keyed by ref so two documents sharing a local id never share comments.
func (s *CommentService) approvedRef(ctx context.Context, id int64) (string, error) {
	if _, err := s.confessions.GetApproved(ctx, id); err != nil {
		return "", err
	}
	return s.confessions.ResolveRemoteRef(ctx, id)
}

// ListComments returns comments oldest first.
func (s *CommentService) ListComments(ctx context.Context, confessionID int64, limit, offset int) ([]*models.Comment, error) {
	ref, err := s.approvedRef(ctx, confessionID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.commentRepo.ListByConfession(ctx, ref, limit, offset)
}

// CommentCountFor implements ranking.CommentCounter. Counts are cached in
// Redis for a short TTL.
func (s *CommentService) CommentCountFor(ctx context.Context, confessionID int64) (int, error) {
	ref, err := s.approvedRef(ctx, confessionID)
	if err != nil {
		return 0, err
	}
	var n int64
	err = cache.CacheAside(ctx, cache.CommentCountKey(ref), &n, cache.CommentCountTTL, func() error {
		var err error
		n, err = s.commentRepo.CountByConfession(ctx, ref)
		return err
	})
	return int(n), err
}
