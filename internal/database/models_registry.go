package database

import "confessions/internal/models"

// PersistentModels returns the authoritative set of schema-managed GORM models.
func PersistentModels() []interface{} {
	return []interface{}{
		&models.Confession{},
		&models.ModerationEvent{},
		&models.Like{},
		&models.Comment{},
	}
}
