package database

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"confessions/internal/config"
	"confessions/internal/middleware"

	"gorm.io/gorm"
)

// DB_SCHEMA_MODE values.
const (
	SchemaModeHybrid = "hybrid"
	SchemaModeSQL    = "sql"
	SchemaModeAuto   = "auto"
)

// TableStatus describes one confession table.
type TableStatus struct {
	Name   string
	Exists bool
	Rows   int64
}

// SchemaStatus is what `migrate status` prints.
type SchemaStatus struct {
	Mode               string
	Environment        string
	WillRunSQL         bool
	WillRunAutoMigrate bool
	Applied            []SchemaMigration
	Pending            []Migration
	Tables             []TableStatus
}

// schemaPolicy decides how the confession schema is maintained. SQLite only
// ever uses AutoMigrate; the SQL scripts target postgres.
func schemaPolicy(cfg *config.Config) (runSQL, runAuto bool, err error) {
	if cfg.DBDriver == "sqlite" {
		return false, true, nil
	}

	mode := cfg.DBSchemaMode
	if mode == "" {
		mode = SchemaModeHybrid
	}
	switch mode {
	case SchemaModeSQL:
		return true, false, nil
	case SchemaModeAuto:
		if prodLike(cfg.Env) && !cfg.DBAutoMigrateAllowDestructive {
			return false, false, fmt.Errorf("refusing DB_SCHEMA_MODE=auto in %q without DB_AUTOMIGRATE_ALLOW_DESTRUCTIVE=true", cfg.Env)
		}
		return false, true, nil
	case SchemaModeHybrid:
		return true, !prodLike(cfg.Env), nil
	default:
		return false, false, fmt.Errorf("unsupported DB_SCHEMA_MODE %q", mode)
	}
}

func prodLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "production", "prod", "staging", "stage":
		return true
	}
	return false
}

// ApplySchema brings the confession tables up to date according to the
// configured mode.
func ApplySchema(ctx context.Context, db *gorm.DB, cfg *config.Config) error {
	runSQL, runAuto, err := schemaPolicy(cfg)
	if err != nil {
		return err
	}

	if runSQL {
		if _, err := RunMigrations(ctx, db); err != nil {
			return fmt.Errorf("run sql migrations: %w", err)
		}
	}
	if runAuto {
		middleware.Logger.Info("auto-migrating confession tables",
			slog.String("driver", cfg.DBDriver), slog.String("env", cfg.Env))
		if err := db.WithContext(ctx).AutoMigrate(PersistentModels()...); err != nil {
			return fmt.Errorf("auto-migrate: %w", err)
		}
	}
	return nil
}

// GetSchemaStatus reports the policy, the migration ledger and the row count
// of every confession table.
func GetSchemaStatus(ctx context.Context, db *gorm.DB, cfg *config.Config) (*SchemaStatus, error) {
	runSQL, runAuto, err := schemaPolicy(cfg)
	if err != nil {
		return nil, err
	}
	status := &SchemaStatus{
		Mode:               cfg.DBSchemaMode,
		Environment:        cfg.Env,
		WillRunSQL:         runSQL,
		WillRunAutoMigrate: runAuto,
	}
	if status.Mode == "" {
		status.Mode = SchemaModeHybrid
	}

	if runSQL {
		all, err := Migrations()
		if err != nil {
			return nil, err
		}
		if status.Applied, err = appliedMigrations(ctx, db); err != nil {
			return nil, err
		}
		done := make(map[int]bool, len(status.Applied))
		for _, row := range status.Applied {
			done[row.Version] = true
		}
		for _, m := range all {
			if !done[m.Version] {
				status.Pending = append(status.Pending, m)
			}
		}
	}

	if status.Tables, err = tableStatuses(ctx, db); err != nil {
		return nil, err
	}
	return status, nil
}

func tableStatuses(ctx context.Context, db *gorm.DB) ([]TableStatus, error) {
	migrator := db.WithContext(ctx).Migrator()
	var out []TableStatus
	for _, model := range PersistentModels() {
		stmt := &gorm.Statement{DB: db}
		if err := stmt.Parse(model); err != nil {
			return nil, fmt.Errorf("parse %T: %w", model, err)
		}
		name := stmt.Schema.Table
		ts := TableStatus{Name: name, Exists: migrator.HasTable(name)}
		if ts.Exists {
			if err := db.WithContext(ctx).Table(name).Count(&ts.Rows).Error; err != nil {
				return nil, fmt.Errorf("count %s: %w", name, err)
			}
		}
		out = append(out, ts)
	}
	return out, nil
}
