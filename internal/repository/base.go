// Package repository provides data access layer implementations for the application.
package repository

import (
	"context"
	"errors"
	"time"

	"confessions/internal/models"
	"confessions/internal/observability"

	"gorm.io/gorm"
)

// track opens a span for one store call and records its latency when the
// returned func runs.
func track(ctx context.Context, db *gorm.DB, operation, table string) (context.Context, func()) {
	start := time.Now()
	ctx, span := observability.TraceRepositoryMethod(ctx, db.Dialector.Name(), operation, table)
	return ctx, func() {
		span.End()
		observability.DatabaseQueryLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
	}
}

func notFound(err error, resource string, id any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.NewNotFoundError(resource, id)
	}
	return err
}
