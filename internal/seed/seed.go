// Package seed provides helpers to create demo confessions for development
// and testing. Data goes through the repository layer so stored documents
// look exactly like ones written by the API.
package seed

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"confessions/internal/affiliation"
	"confessions/internal/models"
	"confessions/internal/repository"

	"github.com/brianvoe/gofakeit/v6"
	"gorm.io/gorm"
)

// Options configures the seeder.
type Options struct {
	Count int
	// PendingPercent of the generated confessions stay in the queue.
	PendingPercent int
	MaxDays        int
	MaxLikes       int
	Clean          bool
}

// DefaultOptions mirrors the demo data set used in development.
func DefaultOptions() Options {
	return Options{Count: 40, PendingPercent: 20, MaxDays: 14, MaxLikes: 12, Clean: true}
}

// SeedModerator is recorded as approver on seeded confessions.
const SeedModerator = "Seed"

// Seeder writes generated confessions and likes.
type Seeder struct {
	db      *gorm.DB
	repo    repository.ConfessionRepository
	catalog *affiliation.Catalog
	opts    Options
	now     func() time.Time
}

// NewSeeder creates a Seeder bound to db.
func NewSeeder(db *gorm.DB, opts Options) *Seeder {
	gofakeit.Seed(time.Now().UnixNano())
	if opts.MaxDays <= 0 {
		opts.MaxDays = 14
	}
	if opts.PendingPercent < 0 {
		opts.PendingPercent = 0
	}
	return &Seeder{
		db:      db,
		repo:    repository.NewConfessionRepository(db),
		catalog: affiliation.Default(),
		opts:    opts,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// ClearAll removes every confession, audit event, like and comment.
func (s *Seeder) ClearAll() error {
	log.Println("🧹 Clearing existing confession data...")
	for _, m := range []any{&models.Like{}, &models.Comment{}, &models.ModerationEvent{}, &models.Confession{}} {
		if err := s.db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(m).Error; err != nil {
			return fmt.Errorf("clear %T: %w", m, err)
		}
	}
	return nil
}

// BuildConfession generates a confession with local id id without storing
// it. Approved confessions carry the seed moderator and an empty log.
func (s *Seeder) BuildConfession(id int64, approved bool) (*models.Confession, error) {
	created := s.now().Add(-time.Duration(gofakeit.Number(0, s.opts.MaxDays*24*60)) * time.Minute)

	var affil string
	if programs := s.catalog.Programs(); len(programs) > 0 && gofakeit.Number(0, 3) > 0 {
		affil = programs[gofakeit.Number(0, len(programs)-1)]
	}
	category := models.Categories[gofakeit.Number(0, len(models.Categories)-1)]

	c, err := models.NewPendingConfession(id, content(), category, affil, "", created)
	if err != nil {
		return nil, err
	}
	if approved {
		at := created.Add(time.Duration(gofakeit.Number(1, 120)) * time.Minute)
		by := SeedModerator
		c.Status = models.StatusApproved
		c.PublishedAt = at
		c.ApprovedAt = &at
		c.ApprovedBy = &by
	}
	return c, nil
}

// SeedConfessions stores opts.Count confessions, continuing after the
// largest local id already stored, and likes on the approved ones.
func (s *Seeder) SeedConfessions(ctx context.Context) ([]*models.Confession, error) {
	if s.opts.Clean {
		if err := s.ClearAll(); err != nil {
			return nil, err
		}
	}

	maxID, err := s.repo.MaxLocalID(ctx)
	if err != nil {
		return nil, fmt.Errorf("read max id: %w", err)
	}

	out := make([]*models.Confession, 0, s.opts.Count)
	for i := 0; i < s.opts.Count; i++ {
		approved := gofakeit.Number(1, 100) > s.opts.PendingPercent
		c, err := s.BuildConfession(maxID+int64(i)+1, approved)
		if err != nil {
			return out, err
		}
		if err := s.repo.Create(ctx, c); err != nil {
			return out, fmt.Errorf("create confession %d: %w", c.ID, err)
		}
		if approved && s.opts.MaxLikes > 0 {
			for n := gofakeit.Number(0, s.opts.MaxLikes); n > 0; n-- {
				count, err := s.repo.AddLike(ctx, c.RemoteRef, c.ID, "seed-"+gofakeit.UUID())
				if err != nil {
					return out, fmt.Errorf("like confession %d: %w", c.ID, err)
				}
				c.LikeCount = count
			}
		}
		out = append(out, c)
	}

	log.Printf("✓ %d confessions seeded", len(out))
	return out, nil
}

// content returns trimmed text within the accepted length bounds.
func content() string {
	text := strings.TrimSpace(gofakeit.Sentence(gofakeit.Number(4, 40)))
	for utf8.RuneCountInString(text) < models.MinContentLength {
		text = strings.TrimSpace(text + " " + gofakeit.Sentence(5))
	}
	if utf8.RuneCountInString(text) > models.MaxContentLength {
		text = strings.TrimSpace(string([]rune(text)[:models.MaxContentLength]))
	}
	return text
}
