package repository

import (
	"context"

	"confessions/internal/models"

	"gorm.io/gorm"
)

// CommentRepository defines interface for comment operations
type CommentRepository interface {
	Create(ctx context.Context, comment *models.Comment) error
	ListByConfession(ctx context.Context, ref string, limit, offset int) ([]*models.Comment, error)
	CountByConfession(ctx context.Context, ref string) (int64, error)
}

type commentRepository struct {
	db *gorm.DB
}

// NewCommentRepository creates a new CommentRepository
func NewCommentRepository(db *gorm.DB) CommentRepository {
	return &commentRepository{db: db}
}

func (r *commentRepository) Create(ctx context.Context, comment *models.Comment) error {
	ctx, done := track(ctx, r.db, "create", "confession_comments")
	defer done()
	return r.db.WithContext(ctx).Create(comment).Error
}

func (r *commentRepository) ListByConfession(
	ctx context.Context,
	ref string,
	limit, offset int,
) ([]*models.Comment, error) {
	ctx, done := track(ctx, r.db, "list_by_confession", "confession_comments")
	defer done()
	var comments []*models.Comment
	err := r.db.WithContext(ctx).
		Where("confession_ref = ?", ref).
		Order("created_at asc, id asc").
		Limit(limit).
		Offset(offset).
		Find(&comments).Error
	return comments, err
}

func (r *commentRepository) CountByConfession(ctx context.Context, ref string) (int64, error) {
	ctx, done := track(ctx, r.db, "count_by_confession", "confession_comments")
	defer done()
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Comment{}).Where("confession_ref = ?", ref).Count(&n).Error
	return n, err
}
