// Package models contains data structures for the application's domain models.
package models

import (
	"strings"
	"time"
	"unicode/utf8"
)

// ConfessionStatus is the moderation state of a confession.
type ConfessionStatus string

const (
	StatusPending  ConfessionStatus = "pending"
	StatusApproved ConfessionStatus = "approved"
	StatusRejected ConfessionStatus = "rejected"
)

// Valid reports whether s is one of the three lifecycle states.
func (s ConfessionStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Content length bounds, counted in runes after trimming.
const (
	MinContentLength = 10
	MaxContentLength = 500
)

// Confession is an anonymous post moving through moderation.
//
// RemoteRef is the store's primary key. ID is the locally generated numeric
// identifier used by clients; it is indexed but not unique in the store.
type Confession struct {
	RemoteRef        string            `gorm:"column:remote_ref;primaryKey;size:36" json:"remote_ref,omitempty"`
	ID               int64             `gorm:"column:id;index;not null" json:"id"`
	Content          string            `gorm:"type:text;not null" json:"content"`
	Category         Category          `gorm:"size:32;not null;index" json:"category"`
	Affiliation      string            `gorm:"size:128;index" json:"affiliation"`
	MediaURL         string            `gorm:"column:media_url" json:"media_url,omitempty"`
	Status           ConfessionStatus  `gorm:"size:16;not null;index" json:"status"`
	LikeCount        int               `gorm:"not null;default:0" json:"like_count"`
	CreatedAt        time.Time         `json:"created_at"`
	PublishedAt      time.Time         `json:"published_at"`
	ApprovedAt       *time.Time        `json:"approved_at,omitempty"`
	ApprovedBy       *string           `gorm:"size:128" json:"approved_by,omitempty"`
	RejectedAt       *time.Time        `json:"rejected_at,omitempty"`
	ModerationReason *string           `json:"moderation_reason,omitempty"`
	ModerationLog    []ModerationEvent `gorm:"foreignKey:ConfessionRef;references:RemoteRef" json:"moderation_log"`
}

// Moderator identifies who performed a moderation action. Either part may be
// empty when the identity provider did not supply it.
type Moderator struct {
	ID          string `gorm:"column:id;size:128" json:"id"`
	DisplayName string `gorm:"column:display_name;size:128" json:"display_name,omitempty"`
}

// ModerationEvent is one immutable entry of a confession's audit trail.
type ModerationEvent struct {
	ID            uint             `gorm:"primaryKey" json:"-"`
	ConfessionRef string           `gorm:"size:36;not null;index" json:"-"`
	Action        ConfessionStatus `gorm:"size:16;not null" json:"action"`
	Timestamp     time.Time        `gorm:"column:occurred_at;not null" json:"timestamp"`
	Moderator     Moderator        `gorm:"embedded;embeddedPrefix:moderator_" json:"moderator"`
	Reason        *string          `json:"reason,omitempty"`
}

// ModerationUpdate is the set of status columns written by a moderation action.
type ModerationUpdate struct {
	Status           ConfessionStatus
	PublishedAt      time.Time
	ApprovedAt       *time.Time
	ApprovedBy       *string
	RejectedAt       *time.Time
	ModerationReason *string
}

// Columns returns the update as a column map suitable for gorm Updates, so
// that nil pointers are written as NULL.
func (u ModerationUpdate) Columns() map[string]any {
	return map[string]any{
		"status":            u.Status,
		"published_at":      u.PublishedAt,
		"approved_at":       u.ApprovedAt,
		"approved_by":       u.ApprovedBy,
		"rejected_at":       u.RejectedAt,
		"moderation_reason": u.ModerationReason,
	}
}

// NewPendingConfession builds a freshly submitted confession. Content must
// already be trimmed; it is never truncated here.
func NewPendingConfession(id int64, content string, category Category, affiliation, mediaURL string, now time.Time) (*Confession, error) {
	if err := ValidateContent(content); err != nil {
		return nil, err
	}
	if !category.Valid() {
		return nil, NewValidationError("unknown category " + string(category))
	}
	return &Confession{
		ID:            id,
		Content:       content,
		Category:      category,
		Affiliation:   affiliation,
		MediaURL:      strings.TrimSpace(mediaURL),
		Status:        StatusPending,
		CreatedAt:     now,
		PublishedAt:   now,
		ModerationLog: []ModerationEvent{},
	}, nil
}

// ValidateContent checks the rune length of already trimmed content.
func ValidateContent(content string) error {
	n := utf8.RuneCountInString(content)
	if n < MinContentLength || n > MaxContentLength {
		return NewValidationError("content must be between 10 and 500 characters")
	}
	return nil
}

// PlanApproval computes the status update and audit event for approving c at
// now without mutating it.
func (c *Confession) PlanApproval(mod Moderator, now time.Time) (ModerationUpdate, ModerationEvent) {
	at := c.nextEventTime(now)
	upd := ModerationUpdate{
		Status:      StatusApproved,
		PublishedAt: at,
		ApprovedAt:  &at,
	}
	if name := strings.TrimSpace(mod.DisplayName); name != "" {
		upd.ApprovedBy = &name
	}
	return upd, ModerationEvent{
		ConfessionRef: c.RemoteRef,
		Action:        StatusApproved,
		Timestamp:     at,
		Moderator:     mod,
	}
}

// PlanRejection is the rejecting counterpart of PlanApproval. A blank reason
// is stored as null.
func (c *Confession) PlanRejection(mod Moderator, reason string, now time.Time) (ModerationUpdate, ModerationEvent) {
	at := c.nextEventTime(now)
	var r *string
	if trimmed := strings.TrimSpace(reason); trimmed != "" {
		r = &trimmed
	}
	upd := ModerationUpdate{
		Status:           StatusRejected,
		PublishedAt:      at,
		RejectedAt:       &at,
		ModerationReason: r,
	}
	return upd, ModerationEvent{
		ConfessionRef: c.RemoteRef,
		Action:        StatusRejected,
		Timestamp:     at,
		Moderator:     mod,
		Reason:        r,
	}
}

// Retime moves every timestamp of u to at.
func (u ModerationUpdate) Retime(at time.Time) ModerationUpdate {
	u.PublishedAt = at
	if u.ApprovedAt != nil {
		a := at
		u.ApprovedAt = &a
	}
	if u.RejectedAt != nil {
		r := at
		u.RejectedAt = &r
	}
	return u
}

// Apply writes a committed moderation update onto c and appends the event
// to the existing log. Events already present are kept. An event planned
// before a newer one was appended is moved up to the newest timestamp.
func (c *Confession) Apply(upd ModerationUpdate, ev ModerationEvent) {
	if at := c.nextEventTime(ev.Timestamp); !at.Equal(ev.Timestamp) {
		upd = upd.Retime(at)
		ev.Timestamp = at
	}
	c.Status = upd.Status
	c.PublishedAt = upd.PublishedAt
	c.ApprovedAt = upd.ApprovedAt
	c.ApprovedBy = upd.ApprovedBy
	c.RejectedAt = upd.RejectedAt
	c.ModerationReason = upd.ModerationReason
	if ev.ConfessionRef == "" {
		ev.ConfessionRef = c.RemoteRef
	}
	c.ModerationLog = append(c.ModerationLog, ev)
}

// nextEventTime keeps audit timestamps non-decreasing when the clock is
// behind the last recorded event.
func (c *Confession) nextEventTime(now time.Time) time.Time {
	if n := len(c.ModerationLog); n > 0 {
		if last := c.ModerationLog[n-1].Timestamp; now.Before(last) {
			return last
		}
	}
	return now
}

// SortTime is the timestamp used for recency ordering.
func (c *Confession) SortTime() time.Time {
	if !c.PublishedAt.IsZero() {
		return c.PublishedAt
	}
	return c.CreatedAt
}

// Clone returns a deep copy of c.
func (c *Confession) Clone() Confession {
	out := *c
	out.ApprovedAt = cloneTime(c.ApprovedAt)
	out.RejectedAt = cloneTime(c.RejectedAt)
	out.ApprovedBy = cloneString(c.ApprovedBy)
	out.ModerationReason = cloneString(c.ModerationReason)
	if c.ModerationLog != nil {
		out.ModerationLog = make([]ModerationEvent, len(c.ModerationLog))
		for i, ev := range c.ModerationLog {
			ev.Reason = cloneString(ev.Reason)
			out.ModerationLog[i] = ev
		}
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
