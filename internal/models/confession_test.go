package models

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pending(t *testing.T) *Confession {
	t.Helper()
	c, err := NewPendingConfession(7, "This is a test confession with enough length", CategoryAcademic, "Computer Science", "", time.Unix(1000, 0))
	require.NoError(t, err)
	c.RemoteRef = "ref-7"
	return c
}

func TestNewPendingConfession(t *testing.T) {
	c := pending(t)
	assert.Equal(t, StatusPending, c.Status)
	assert.Equal(t, 0, c.LikeCount)
	assert.Empty(t, c.ModerationLog)
	assert.Nil(t, c.ApprovedAt)
	assert.Nil(t, c.RejectedAt)
}

func TestNewPendingConfession_Validation(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		category Category
	}{
		{"too short", "short", CategoryLove},
		{"too long", strings.Repeat("a", 501), CategoryLove},
		{"unknown category", "long enough content here", Category("gossip")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPendingConfession(1, tt.content, tt.category, "", "", time.Now())
			require.Error(t, err)
			assert.True(t, HasCode(err, CodeValidation))
		})
	}
}

func TestValidateContent_CountsRunes(t *testing.T) {
	assert.NoError(t, ValidateContent(strings.Repeat("ñ", 500)))
	assert.Error(t, ValidateContent(strings.Repeat("ñ", 9)))
}

func TestApproveThenReject(t *testing.T) {
	c := pending(t)
	t1 := time.Unix(2000, 0)
	upd, ev := c.PlanApproval(Moderator{ID: "m1", DisplayName: "Mod One"}, t1)
	assert.Equal(t, StatusPending, c.Status, "planning must not mutate")
	c.Apply(upd, ev)

	assert.Equal(t, StatusApproved, c.Status)
	require.NotNil(t, c.ApprovedAt)
	require.NotNil(t, c.ApprovedBy)
	assert.Equal(t, "Mod One", *c.ApprovedBy)
	assert.Nil(t, c.RejectedAt)
	require.Len(t, c.ModerationLog, 1)
	assert.Equal(t, StatusApproved, c.ModerationLog[0].Action)
	assert.Equal(t, Moderator{ID: "m1", DisplayName: "Mod One"}, c.ModerationLog[0].Moderator)
	assert.Equal(t, "ref-7", c.ModerationLog[0].ConfessionRef)

	upd, ev = c.PlanRejection(Moderator{ID: "m2"}, "duplicate", time.Unix(3000, 0))
	c.Apply(upd, ev)

	assert.Equal(t, StatusRejected, c.Status)
	assert.Nil(t, c.ApprovedAt)
	assert.Nil(t, c.ApprovedBy)
	require.NotNil(t, c.ModerationReason)
	assert.Equal(t, "duplicate", *c.ModerationReason)
	require.Len(t, c.ModerationLog, 2)
	assert.Equal(t, StatusApproved, c.ModerationLog[0].Action)
	assert.Equal(t, StatusRejected, c.ModerationLog[1].Action)
	assert.Equal(t, "", c.ModerationLog[1].Moderator.DisplayName)
}

func TestPlanRejection_BlankReasonIsNull(t *testing.T) {
	c := pending(t)
	upd, ev := c.PlanRejection(Moderator{ID: "m"}, "   ", time.Now())
	assert.Nil(t, upd.ModerationReason)
	assert.Nil(t, ev.Reason)
}

func TestEventTimestampsNeverGoBackwards(t *testing.T) {
	c := pending(t)
	c.Apply(c.PlanApproval(Moderator{ID: "m"}, time.Unix(5000, 0)))
	c.Apply(c.PlanRejection(Moderator{ID: "m"}, "", time.Unix(4000, 0)))

	require.Len(t, c.ModerationLog, 2)
	assert.False(t, c.ModerationLog[1].Timestamp.Before(c.ModerationLog[0].Timestamp))
}

func TestApply_StalePlanTakesNewestTimestamp(t *testing.T) {
	c := pending(t)
	stale := c.Clone()
	upd, ev := stale.PlanApproval(Moderator{ID: "m1"}, time.Unix(2000, 0))

	c.Apply(c.PlanRejection(Moderator{ID: "m2"}, "duplicate", time.Unix(3000, 0)))
	c.Apply(upd, ev)

	require.Len(t, c.ModerationLog, 2)
	assert.Equal(t, StatusApproved, c.Status)
	assert.Equal(t, StatusApproved, c.ModerationLog[1].Action)
	assert.True(t, c.ModerationLog[1].Timestamp.Equal(time.Unix(3000, 0)))
	require.NotNil(t, c.ApprovedAt)
	assert.True(t, c.ApprovedAt.Equal(time.Unix(3000, 0)))
	assert.True(t, c.PublishedAt.Equal(time.Unix(3000, 0)))
	assert.Nil(t, c.RejectedAt)
}

func TestRetime(t *testing.T) {
	c := pending(t)
	upd, _ := c.PlanRejection(Moderator{ID: "m"}, "", time.Unix(10, 0))
	moved := upd.Retime(time.Unix(20, 0))

	assert.True(t, moved.PublishedAt.Equal(time.Unix(20, 0)))
	require.NotNil(t, moved.RejectedAt)
	assert.True(t, moved.RejectedAt.Equal(time.Unix(20, 0)))
	assert.Nil(t, moved.ApprovedAt)
	assert.True(t, upd.RejectedAt.Equal(time.Unix(10, 0)))
}

func TestReapproveAppends(t *testing.T) {
	c := pending(t)
	c.Apply(c.PlanApproval(Moderator{ID: "m"}, time.Unix(10, 0)))
	c.Apply(c.PlanApproval(Moderator{ID: "m"}, time.Unix(20, 0)))
	assert.Len(t, c.ModerationLog, 2)
	assert.Equal(t, StatusApproved, c.ModerationLog[len(c.ModerationLog)-1].Action)
}

func TestClone_IsDeep(t *testing.T) {
	c := pending(t)
	c.Apply(c.PlanRejection(Moderator{ID: "m"}, "spam", time.Unix(10, 0)))

	cp := c.Clone()
	*cp.ModerationReason = "changed"
	cp.ModerationLog[0].Action = StatusApproved

	assert.Equal(t, "spam", *c.ModerationReason)
	assert.Equal(t, StatusRejected, c.ModerationLog[0].Action)
}

func TestParseCategory(t *testing.T) {
	tests := map[string]Category{
		"love":      CategoryLove,
		" Academic": CategoryAcademic,
		"amor":      CategoryLove,
		"carrera":   CategoryProgram,
		"FACULTAD":  CategoryFaculty,
	}
	for in, want := range tests {
		got, ok := ParseCategory(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := ParseCategory("gossip")
	assert.False(t, ok)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, 400, StatusFor(NewValidationError("x")))
	assert.Equal(t, 404, StatusFor(NewNotFoundError("confession", 1)))
	assert.Equal(t, 401, StatusFor(NewUnauthenticatedError("x")))
	assert.Equal(t, 403, StatusFor(NewUnauthorizedError("x")))
	assert.Equal(t, 409, StatusFor(NewConflictError("x")))
	assert.Equal(t, 502, StatusFor(NewRemoteWriteError("approve", assert.AnError)))
	assert.Equal(t, 500, StatusFor(assert.AnError))
}
