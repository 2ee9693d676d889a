package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"confessions/internal/identity"
	"confessions/internal/models"
	"confessions/internal/notifications"

	"github.com/google/uuid"
	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// confessionRepoStub is a stub for repository.ConfessionRepository. The
// defaults from newMemRepo keep state in memory; tests override single
// functions to inject failures.
type confessionRepoStub struct {
	createFn           func(context.Context, *models.Confession) error
	listByStatusFn     func(context.Context, models.ConfessionStatus) ([]models.Confession, error)
	findByLocalIDFn    func(context.Context, int64) (*models.Confession, error)
	maxLocalIDFn       func(context.Context) (int64, error)
	recordModerationFn func(context.Context, string, models.ModerationUpdate, models.ModerationEvent) error
	addLikeFn          func(context.Context, string, int64, string) (int, error)
	removeLikeFn       func(context.Context, string, string) (int, error)
	listLikesFn        func(context.Context) ([]models.Like, error)
	reconcileFn        func(context.Context) (int64, error)
}

func (s *confessionRepoStub) Create(ctx context.Context, c *models.Confession) error {
	return s.createFn(ctx, c)
}
func (s *confessionRepoStub) ListByStatus(ctx context.Context, st models.ConfessionStatus) ([]models.Confession, error) {
	return s.listByStatusFn(ctx, st)
}
func (s *confessionRepoStub) FindByLocalID(ctx context.Context, id int64) (*models.Confession, error) {
	return s.findByLocalIDFn(ctx, id)
}
func (s *confessionRepoStub) MaxLocalID(ctx context.Context) (int64, error) {
	return s.maxLocalIDFn(ctx)
}
func (s *confessionRepoStub) RecordModeration(ctx context.Context, ref string, upd models.ModerationUpdate, ev models.ModerationEvent) error {
	return s.recordModerationFn(ctx, ref, upd, ev)
}
func (s *confessionRepoStub) AddLike(ctx context.Context, ref string, id int64, userID string) (int, error) {
	return s.addLikeFn(ctx, ref, id, userID)
}
func (s *confessionRepoStub) RemoveLike(ctx context.Context, ref, userID string) (int, error) {
	return s.removeLikeFn(ctx, ref, userID)
}
func (s *confessionRepoStub) ListLikes(ctx context.Context) ([]models.Like, error) {
	return s.listLikesFn(ctx)
}
func (s *confessionRepoStub) ReconcileLikeCounts(ctx context.Context) (int64, error) {
	return s.reconcileFn(ctx)
}

// memStore backs newMemRepo.
type memStore struct {
	mu    sync.Mutex
	docs  map[string]*models.Confession
	likes map[string]map[string]int64 // ref -> user -> confession id
	calls map[string]int
}

func (m *memStore) count(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

func (m *memStore) hit(op string) {
	m.calls[op]++
}

// put stores c directly, bypassing the service.
func (m *memStore) put(c models.Confession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.RemoteRef == "" {
		c.RemoteRef = uuid.NewString()
	}
	cp := c.Clone()
	m.docs[c.RemoteRef] = &cp
}

func (m *memStore) doc(id int64) *models.Confession {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.docs {
		if d.ID == id {
			cp := d.Clone()
			return &cp
		}
	}
	return nil
}

func (m *memStore) likeRecords(ref string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.likes[ref])
}

func newMemRepo() (*confessionRepoStub, *memStore) {
	m := &memStore{
		docs:  map[string]*models.Confession{},
		likes: map[string]map[string]int64{},
		calls: map[string]int{},
	}
	stub := &confessionRepoStub{
		createFn: func(_ context.Context, c *models.Confession) error {
			m.mu.Lock()
			defer m.mu.Unlock()
			m.hit("create")
			if c.RemoteRef == "" {
				c.RemoteRef = uuid.NewString()
			}
			cp := c.Clone()
			cp.ModerationLog = nil
			m.docs[c.RemoteRef] = &cp
			return nil
		},
		listByStatusFn: func(_ context.Context, st models.ConfessionStatus) ([]models.Confession, error) {
			m.mu.Lock()
			defer m.mu.Unlock()
			m.hit("list_by_status")
			var out []models.Confession
			for _, d := range m.docs {
				if d.Status == st {
					out = append(out, d.Clone())
				}
			}
			return out, nil
		},
		findByLocalIDFn: func(_ context.Context, id int64) (*models.Confession, error) {
			m.mu.Lock()
			defer m.mu.Unlock()
			m.hit("find_by_local_id")
			var found []*models.Confession
			for _, d := range m.docs {
				if d.ID == id {
					found = append(found, d)
				}
			}
			switch len(found) {
			case 0:
				return nil, models.NewNotFoundError("confession", id)
			case 1:
				cp := found[0].Clone()
				return &cp, nil
			default:
				return nil, models.NewConflictError("duplicate id")
			}
		},
		maxLocalIDFn: func(_ context.Context) (int64, error) {
			m.mu.Lock()
			defer m.mu.Unlock()
			var maxID int64
			for _, d := range m.docs {
				maxID = max(maxID, d.ID)
			}
			return maxID, nil
		},
		recordModerationFn: func(_ context.Context, ref string, upd models.ModerationUpdate, ev models.ModerationEvent) error {
			m.mu.Lock()
			defer m.mu.Unlock()
			m.hit("record_moderation")
			d, ok := m.docs[ref]
			if !ok {
				return models.NewNotFoundError("confession", ref)
			}
			d.Apply(upd, ev)
			return nil
		},
		addLikeFn: func(_ context.Context, ref string, id int64, userID string) (int, error) {
			m.mu.Lock()
			defer m.mu.Unlock()
			m.hit("add_like")
			d, ok := m.docs[ref]
			if !ok {
				return 0, models.NewNotFoundError("confession", ref)
			}
			if m.likes[ref] == nil {
				m.likes[ref] = map[string]int64{}
			}
			if _, exists := m.likes[ref][userID]; !exists {
				m.likes[ref][userID] = id
				d.LikeCount++
			}
			return d.LikeCount, nil
		},
		removeLikeFn: func(_ context.Context, ref, userID string) (int, error) {
			m.mu.Lock()
			defer m.mu.Unlock()
			m.hit("remove_like")
			d, ok := m.docs[ref]
			if !ok {
				return 0, models.NewNotFoundError("confession", ref)
			}
			if _, exists := m.likes[ref][userID]; exists {
				delete(m.likes[ref], userID)
				if d.LikeCount > 0 {
					d.LikeCount--
				}
			}
			return d.LikeCount, nil
		},
		listLikesFn: func(_ context.Context) ([]models.Like, error) {
			m.mu.Lock()
			defer m.mu.Unlock()
			var out []models.Like
			for ref, users := range m.likes {
				for user, id := range users {
					out = append(out, models.Like{ConfessionRef: ref, UserID: user, ConfessionID: id})
				}
			}
			return out, nil
		},
		reconcileFn: func(_ context.Context) (int64, error) {
			m.mu.Lock()
			defer m.mu.Unlock()
			m.hit("reconcile")
			var fixed int64
			for ref, d := range m.docs {
				if n := len(m.likes[ref]); d.LikeCount != n {
					d.LikeCount = n
					fixed++
				}
			}
			return fixed, nil
		},
	}
	return stub, m
}

// publisherStub records published events.
type publisherStub struct {
	mu     sync.Mutex
	events []notifications.Event
	err    error
}

func (p *publisherStub) Publish(_ context.Context, ev notifications.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *publisherStub) types() []notifications.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]notifications.EventType, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

// counterStub implements ranking.CommentCounter.
type counterStub map[int64]int

func (c counterStub) CommentCountFor(_ context.Context, id int64) (int, error) {
	n, ok := c[id]
	if !ok {
		return 0, errors.New("comment store unavailable")
	}
	return n, nil
}

var errTransient = errors.New("connection reset by peer")

var testNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func testRetry() RetryPolicy {
	return RetryPolicy{
		Timeout:         time.Second,
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	}
}

func newTestService(t *testing.T, repo *confessionRepoStub, mutate ...func(*ConfessionDeps)) *ConfessionService {
	t.Helper()
	deps := ConfessionDeps{
		Repo:   repo,
		Logger: slogt.New(t),
		Retry:  testRetry(),
		Now:    func() time.Time { return testNow },
	}
	for _, fn := range mutate {
		fn(&deps)
	}
	return NewConfessionService(deps)
}

func asUser(id, name, role string) context.Context {
	return identity.WithUser(context.Background(), &identity.User{ID: id, DisplayName: name, Role: role})
}

func asModerator(id, name string) context.Context {
	return asUser(id, name, identity.RoleModerator)
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, code, appErr.Code)
}

// submitApproved submits content and approves it as a moderator.
func submitApproved(t *testing.T, svc *ConfessionService, content, aff string) *models.Confession {
	t.Helper()
	c, err := svc.Submit(context.Background(), SubmitInput{Content: content, Category: "random", Affiliation: aff})
	require.NoError(t, err)
	out, err := svc.Approve(asModerator("m1", "Mod One"), c.ID)
	require.NoError(t, err)
	return out
}
