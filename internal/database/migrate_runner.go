package database

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"confessions/internal/middleware"

	"gorm.io/gorm"
)

// SchemaMigration is the ledger row written for every applied migration.
type SchemaMigration struct {
	Version   int    `gorm:"primaryKey;autoIncrement:false"`
	Name      string `gorm:"size:255;not null"`
	Tables    string `gorm:"size:512"`
	AppliedAt time.Time
}

// TableName returns the ledger table name.
func (SchemaMigration) TableName() string {
	return "confession_schema_migrations"
}

func appliedMigrations(ctx context.Context, db *gorm.DB) ([]SchemaMigration, error) {
	if err := db.WithContext(ctx).AutoMigrate(&SchemaMigration{}); err != nil {
		return nil, fmt.Errorf("ensure migration ledger: %w", err)
	}
	var rows []SchemaMigration
	if err := db.WithContext(ctx).Order("version asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("read migration ledger: %w", err)
	}
	return rows, nil
}

// RunMigrations applies every pending migration, each in its own transaction
// together with its ledger row, and returns the ones applied.
func RunMigrations(ctx context.Context, db *gorm.DB) ([]Migration, error) {
	all, err := Migrations()
	if err != nil {
		return nil, err
	}
	applied, err := appliedMigrations(ctx, db)
	if err != nil {
		return nil, err
	}
	if err := validateAppliedVersions(applied, all); err != nil {
		return nil, err
	}

	done := make(map[int]bool, len(applied))
	for _, row := range applied {
		done[row.Version] = true
	}

	var ran []Migration
	for _, m := range all {
		if done[m.Version] {
			continue
		}
		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Exec(m.Up).Error; err != nil {
				return err
			}
			return tx.Create(&SchemaMigration{
				Version:   m.Version,
				Name:      m.Name,
				Tables:    strings.Join(m.Tables, ","),
				AppliedAt: time.Now().UTC(),
			}).Error
		})
		if err != nil {
			return ran, fmt.Errorf("apply migration %s: %w", m.Label(), err)
		}
		middleware.Logger.Info("migration applied",
			slog.String("migration", m.Label()),
			slog.Any("tables", m.Tables))
		ran = append(ran, m)
	}
	return ran, nil
}

// validateAppliedVersions refuses ledgers that mention versions this build
// does not know, which means the database was migrated by a newer build.
func validateAppliedVersions(applied []SchemaMigration, known []Migration) error {
	var unknown []string
	for _, row := range applied {
		if _, ok := migrationByVersion(known, row.Version); !ok {
			unknown = append(unknown, fmt.Sprintf("%06d_%s", row.Version, row.Name))
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	slices.Sort(unknown)
	return fmt.Errorf("confession schema has migrations unknown to this build: %s", strings.Join(unknown, ", "))
}

// RollbackMigration runs the down script of an applied migration and drops
// its ledger row.
func RollbackMigration(ctx context.Context, db *gorm.DB, version int) error {
	all, err := Migrations()
	if err != nil {
		return err
	}
	m, ok := migrationByVersion(all, version)
	if !ok {
		return fmt.Errorf("migration version %d not found", version)
	}
	applied, err := appliedMigrations(ctx, db)
	if err != nil {
		return err
	}
	if !slices.ContainsFunc(applied, func(row SchemaMigration) bool { return row.Version == version }) {
		return fmt.Errorf("migration %s has not been applied", m.Label())
	}

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(m.Down).Error; err != nil {
			return err
		}
		return tx.Delete(&SchemaMigration{}, "version = ?", version).Error
	})
	if err != nil {
		return fmt.Errorf("roll back migration %s: %w", m.Label(), err)
	}
	middleware.Logger.Warn("migration rolled back",
		slog.String("migration", m.Label()),
		slog.Any("tables", m.Tables))
	return nil
}
