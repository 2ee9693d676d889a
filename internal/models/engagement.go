package models

import "time"

// Like records that a user currently likes a confession. The composite
// primary key makes the pair unique.
type Like struct {
	ConfessionRef string    `gorm:"primaryKey;size:36" json:"confession_ref"`
	UserID        string    `gorm:"primaryKey;size:128" json:"user_id"`
	ConfessionID  int64     `gorm:"not null;index" json:"confession_id"`
	CreatedAt     time.Time `json:"created_at"`
}

// TableName keeps likes separate from any other liked entity.
func (Like) TableName() string {
	return "confession_likes"
}

// Comment is a reader reply on an approved confession. Like likes it is
// keyed by the store ref; ConfessionID is informational.
type Comment struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	ConfessionRef string    `gorm:"size:36;not null;index" json:"-"`
	ConfessionID  int64     `gorm:"not null" json:"confession_id"`
	AuthorID      string    `gorm:"size:128;not null" json:"author_id"`
	Content       string    `gorm:"type:text;not null" json:"content"`
	CreatedAt     time.Time `json:"created_at"`
}

// TableName returns the comments table name.
func (Comment) TableName() string {
	return "confession_comments"
}
