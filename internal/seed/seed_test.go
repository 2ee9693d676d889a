package seed

import (
	"context"
	"testing"
	"unicode/utf8"

	"confessions/internal/database"
	"confessions/internal/models"
	"confessions/internal/repository"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(database.PersistentModels()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestContent_WithinBounds(t *testing.T) {
	for i := 0; i < 200; i++ {
		c := content()
		n := utf8.RuneCountInString(c)
		if n < models.MinContentLength || n > models.MaxContentLength {
			t.Fatalf("content length %d out of bounds: %q", n, c)
		}
	}
}

func TestBuildConfession_Approved(t *testing.T) {
	s := NewSeeder(nil, DefaultOptions())

	c, err := s.BuildConfession(7, true)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if c.ID != 7 || c.Status != models.StatusApproved {
		t.Fatalf("unexpected confession: id=%d status=%s", c.ID, c.Status)
	}
	if c.ApprovedBy == nil || *c.ApprovedBy != SeedModerator {
		t.Fatalf("expected approver %q", SeedModerator)
	}
	if c.ApprovedAt == nil || !c.ApprovedAt.Equal(c.PublishedAt) {
		t.Fatalf("approved_at should equal published_at")
	}
	if len(c.ModerationLog) != 0 {
		t.Fatalf("seeded confessions start with an empty log")
	}

	p, err := s.BuildConfession(8, false)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if p.Status != models.StatusPending || p.ApprovedAt != nil {
		t.Fatalf("expected a plain pending confession, got %+v", p)
	}
}

func TestSeedConfessions_StoresConsistentData(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	repo := repository.NewConfessionRepository(db)

	seeder := NewSeeder(db, Options{Count: 12, PendingPercent: 25, MaxDays: 3, MaxLikes: 4, Clean: true})
	first, err := seeder.SeedConfessions(ctx)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if len(first) != 12 {
		t.Fatalf("expected 12 confessions, got %d", len(first))
	}

	fixed, err := repo.ReconcileLikeCounts(ctx)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if fixed != 0 {
		t.Fatalf("like counts drifted from like records on %d confessions", fixed)
	}

	// a second run without cleaning continues the id sequence
	seeder = NewSeeder(db, Options{Count: 3, MaxLikes: 0})
	more, err := seeder.SeedConfessions(ctx)
	if err != nil {
		t.Fatalf("seed again: %v", err)
	}
	if more[0].ID != 13 {
		t.Fatalf("expected ids to continue at 13, got %d", more[0].ID)
	}

	// and cleaning starts over
	seeder = NewSeeder(db, Options{Count: 2, Clean: true})
	if _, err := seeder.SeedConfessions(ctx); err != nil {
		t.Fatalf("seed clean: %v", err)
	}
	maxID, err := repo.MaxLocalID(ctx)
	if err != nil {
		t.Fatalf("max id: %v", err)
	}
	if maxID != 2 {
		t.Fatalf("expected max id 2 after clean seed, got %d", maxID)
	}
	var likes int64
	if err := db.Model(&models.Like{}).Count(&likes).Error; err != nil {
		t.Fatalf("count likes: %v", err)
	}
	if likes != 0 {
		t.Fatalf("expected likes to be cleared, got %d", likes)
	}
}
