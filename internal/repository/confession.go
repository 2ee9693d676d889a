package repository

import (
	"context"
	"fmt"

	"confessions/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const confessionsTable = "confessions"

// ConfessionRepository is the document store for confessions, their audit
// trail and like records.
type ConfessionRepository interface {
	// Create assigns RemoteRef when empty and inserts c without its log.
	Create(ctx context.Context, c *models.Confession) error
	ListByStatus(ctx context.Context, status models.ConfessionStatus) ([]models.Confession, error)
	// FindByLocalID returns the single document with the given local id. Zero
	// matches is NOT_FOUND, more than one is CONFLICT.
	FindByLocalID(ctx context.Context, id int64) (*models.Confession, error)
	MaxLocalID(ctx context.Context) (int64, error)
	// RecordModeration writes the status columns and appends ev atomically.
	// An event older than the newest stored one takes that newest timestamp.
	RecordModeration(ctx context.Context, ref string, upd models.ModerationUpdate, ev models.ModerationEvent) error
	// AddLike and RemoveLike are idempotent and return the stored like count.
	AddLike(ctx context.Context, ref string, confessionID int64, userID string) (int, error)
	RemoveLike(ctx context.Context, ref, userID string) (int, error)
	ListLikes(ctx context.Context) ([]models.Like, error)
	// ReconcileLikeCounts rewrites like_count from the like records and
	// returns how many confessions were corrected.
	ReconcileLikeCounts(ctx context.Context) (int64, error)
}

type confessionRepository struct {
	db *gorm.DB
}

// NewConfessionRepository creates a new ConfessionRepository
func NewConfessionRepository(db *gorm.DB) ConfessionRepository {
	return &confessionRepository{db: db}
}

func withLog(db *gorm.DB) *gorm.DB {
	return db.Preload("ModerationLog", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("id asc")
	})
}

func (r *confessionRepository) Create(ctx context.Context, c *models.Confession) error {
	ctx, done := track(ctx, r.db, "create", confessionsTable)
	defer done()
	if c.RemoteRef == "" {
		c.RemoteRef = uuid.NewString()
	}
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(c).Error
}

func (r *confessionRepository) ListByStatus(ctx context.Context, status models.ConfessionStatus) ([]models.Confession, error) {
	ctx, done := track(ctx, r.db, "list_by_status", confessionsTable)
	defer done()
	var out []models.Confession
	err := withLog(r.db.WithContext(ctx)).
		Where("status = ?", status).
		Order("published_at desc, id desc").
		Find(&out).Error
	return out, err
}

func (r *confessionRepository) FindByLocalID(ctx context.Context, id int64) (*models.Confession, error) {
	ctx, done := track(ctx, r.db, "find_by_local_id", confessionsTable)
	defer done()
	var rows []models.Confession
	if err := withLog(r.db.WithContext(ctx)).Where("id = ?", id).Limit(2).Find(&rows).Error; err != nil {
		return nil, err
	}
	switch len(rows) {
	case 0:
		return nil, models.NewNotFoundError("confession", id)
	case 1:
		return &rows[0], nil
	default:
		return nil, models.NewConflictError(fmt.Sprintf("confession id %d is not unique in the store", id))
	}
}

func (r *confessionRepository) MaxLocalID(ctx context.Context) (int64, error) {
	ctx, done := track(ctx, r.db, "max_local_id", confessionsTable)
	defer done()
	var maxID int64
	err := r.db.WithContext(ctx).Model(&models.Confession{}).Select("COALESCE(MAX(id), 0)").Scan(&maxID).Error
	return maxID, err
}

func (r *confessionRepository) RecordModeration(ctx context.Context, ref string, upd models.ModerationUpdate, ev models.ModerationEvent) error {
	ctx, done := track(ctx, r.db, "record_moderation", confessionsTable)
	defer done()
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Confession{}).Where("remote_ref = ?", ref).Updates(upd.Columns())
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return models.NewNotFoundError("confession", ref)
		}

		// The update above holds the row lock, so the newest event is stable.
		var last models.ModerationEvent
		if err := tx.Where("confession_ref = ?", ref).Order("occurred_at desc, id desc").
			Limit(1).Find(&last).Error; err != nil {
			return err
		}
		if last.ID != 0 && ev.Timestamp.Before(last.Timestamp) {
			upd = upd.Retime(last.Timestamp)
			ev.Timestamp = last.Timestamp
			if err := tx.Model(&models.Confession{}).Where("remote_ref = ?", ref).
				Updates(upd.Columns()).Error; err != nil {
				return err
			}
		}

		ev.ID = 0
		ev.ConfessionRef = ref
		return tx.Create(&ev).Error
	})
}

func (r *confessionRepository) AddLike(ctx context.Context, ref string, confessionID int64, userID string) (int, error) {
	ctx, done := track(ctx, r.db, "add_like", "confession_likes")
	defer done()
	var count int
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := likeCount(tx, ref)
		if err != nil {
			return err
		}
		like := models.Like{ConfessionRef: ref, UserID: userID, ConfessionID: confessionID}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&like)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			count = current
			return nil
		}
		if err := tx.Model(&models.Confession{}).Where("remote_ref = ?", ref).
			UpdateColumn("like_count", gorm.Expr("like_count + 1")).Error; err != nil {
			return err
		}
		count, err = likeCount(tx, ref)
		return err
	})
	return count, err
}

func (r *confessionRepository) RemoveLike(ctx context.Context, ref, userID string) (int, error) {
	ctx, done := track(ctx, r.db, "remove_like", "confession_likes")
	defer done()
	var count int
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := likeCount(tx, ref); err != nil {
			return err
		}
		res := tx.Where("confession_ref = ? AND user_id = ?", ref, userID).Delete(&models.Like{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			if err := tx.Model(&models.Confession{}).Where("remote_ref = ?", ref).
				UpdateColumn("like_count", gorm.Expr("CASE WHEN like_count > 0 THEN like_count - 1 ELSE 0 END")).Error; err != nil {
				return err
			}
		}
		var err error
		count, err = likeCount(tx, ref)
		return err
	})
	return count, err
}

func likeCount(tx *gorm.DB, ref string) (int, error) {
	var c models.Confession
	if err := tx.Select("remote_ref", "like_count").Where("remote_ref = ?", ref).Take(&c).Error; err != nil {
		return 0, notFound(err, "confession", ref)
	}
	return c.LikeCount, nil
}

func (r *confessionRepository) ListLikes(ctx context.Context) ([]models.Like, error) {
	ctx, done := track(ctx, r.db, "list_likes", "confession_likes")
	defer done()
	var likes []models.Like
	err := r.db.WithContext(ctx).Order("created_at asc").Find(&likes).Error
	return likes, err
}

func (r *confessionRepository) ReconcileLikeCounts(ctx context.Context) (int64, error) {
	ctx, done := track(ctx, r.db, "reconcile_like_counts", confessionsTable)
	defer done()
	res := r.db.WithContext(ctx).Exec(`
		UPDATE confessions
		SET like_count = (SELECT COUNT(*) FROM confession_likes l WHERE l.confession_ref = confessions.remote_ref)
		WHERE like_count <> (SELECT COUNT(*) FROM confession_likes l WHERE l.confession_ref = confessions.remote_ref)`)
	return res.RowsAffected, res.Error
}
