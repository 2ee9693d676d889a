package service

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"confessions/internal/affiliation"
	"confessions/internal/cache"
	"confessions/internal/featureflags"
	"confessions/internal/identity"
	"confessions/internal/models"
	"confessions/internal/notifications"
	"confessions/internal/observability"
	"confessions/internal/ranking"
	"confessions/internal/repository"

	"go.opentelemetry.io/otel/attribute"
)

// SnapshotStore persists the advisory copy of local state.
type SnapshotStore interface {
	Load(ctx context.Context) (*cache.Snapshot, error)
	Save(ctx context.Context, snap *cache.Snapshot) error
}

// EventPublisher announces committed operations to other instances.
type EventPublisher interface {
	Publish(ctx context.Context, ev notifications.Event) error
}

// ConfessionDeps are the collaborators of a ConfessionService. Only Repo is
// required.
type ConfessionDeps struct {
	Repo      repository.ConfessionRepository
	Identity  identity.Provider
	Snapshots SnapshotStore
	Publisher EventPublisher
	Comments  ranking.CommentCounter
	Flags     *featureflags.Manager
	Catalog   *affiliation.Catalog
	Logger    *slog.Logger
	Retry     RetryPolicy
	// ReconcileLikes rewrites stored like counts from like records before
	// every refresh.
	ReconcileLikes bool
	Now            func() time.Time
}

// ConfessionService is the single owner of confession state in this process.
// Its methods are the only way state changes; readers receive copies.
type ConfessionService struct {
	repo      repository.ConfessionRepository
	identity  identity.Provider
	snapshots SnapshotStore
	publisher EventPublisher
	comments  ranking.CommentCounter
	flags     *featureflags.Manager
	catalog   *affiliation.Catalog
	logger    *slog.Logger
	retry     RetryPolicy
	reconcile bool
	now       func() time.Time

	mu         sync.RWMutex
	partitions map[models.ConfessionStatus]map[int64]*models.Confession
	liked      map[string]map[int64]struct{}
	// pendingLikes sums the deltas of like toggles not yet settled, by id.
	pendingLikes map[int64]int

	idSeq     atomic.Int64
	refreshMu sync.Mutex
	refreshCh chan struct{}
}

// NewConfessionService builds an empty state container. Call Warm to load
// state before serving.
func NewConfessionService(deps ConfessionDeps) *ConfessionService {
	s := &ConfessionService{
		repo:      deps.Repo,
		identity:  deps.Identity,
		snapshots: deps.Snapshots,
		publisher: deps.Publisher,
		comments:  deps.Comments,
		flags:     deps.Flags,
		catalog:   deps.Catalog,
		logger:    deps.Logger,
		retry:     deps.Retry,
		reconcile: deps.ReconcileLikes,
		now:       deps.Now,
		refreshCh: make(chan struct{}, 1),

		pendingLikes: map[int64]int{},
	}
	if s.identity == nil {
		s.identity = identity.ContextProvider{}
	}
	if s.catalog == nil {
		s.catalog = affiliation.Default()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.retry == (RetryPolicy{}) {
		s.retry = DefaultRetryPolicy()
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	s.reset(nil, nil)
	return s
}

// SetCommentCounter installs the feed's comment counter. The comment service
// itself looks up confessions here, so it is wired after construction and
// before serving.
func (s *ConfessionService) SetCommentCounter(c ranking.CommentCounter) {
	s.comments = c
}

// reset replaces all local state. Callers hold mu or own s exclusively.
func (s *ConfessionService) reset(items []models.Confession, liked map[string]map[int64]struct{}) {
	parts := map[models.ConfessionStatus]map[int64]*models.Confession{
		models.StatusPending:  {},
		models.StatusApproved: {},
		models.StatusRejected: {},
	}
	for i := range items {
		c := items[i].Clone()
		if !c.Status.Valid() {
			continue
		}
		for _, p := range parts {
			delete(p, c.ID)
		}
		parts[c.Status][c.ID] = &c
	}
	for id, d := range s.pendingLikes {
		if c, ok := parts[models.StatusApproved][id]; ok {
			c.LikeCount = max(c.LikeCount+d, 0)
		}
	}
	if liked == nil {
		liked = map[string]map[int64]struct{}{}
	}
	s.partitions = parts
	s.liked = liked
}

// find returns the local confession with id from any partition. Callers hold mu.
func (s *ConfessionService) find(id int64) (*models.Confession, bool) {
	for _, p := range s.partitions {
		if c, ok := p[id]; ok {
			return c, true
		}
	}
	return nil, false
}

// place moves c into the partition matching its status, removing it from
// every other partition. Callers hold mu.
func (s *ConfessionService) place(c *models.Confession) {
	for status, p := range s.partitions {
		if status != c.Status {
			delete(p, c.ID)
		}
	}
	s.partitions[c.Status][c.ID] = c
}

func (s *ConfessionService) observePartitions() {
	for status, p := range s.partitions {
		observability.PartitionSize.WithLabelValues(string(status)).Set(float64(len(p)))
	}
}

// nextID hands out local ids. The sequence only moves forward and is raised
// to the highest id seen in the store on every refresh.
func (s *ConfessionService) nextID() int64 {
	return s.idSeq.Add(1)
}

func (s *ConfessionService) raiseSequence(floor int64) {
	for {
		cur := s.idSeq.Load()
		if cur >= floor || s.idSeq.CompareAndSwap(cur, floor) {
			return
		}
	}
}

// SubmitInput is a confession submission after HTTP decoding.
type SubmitInput struct {
	Content     string
	Category    string
	Affiliation string
	MediaURL    string
}

// Submit creates a pending confession. The local partition is only updated
// once the store has accepted the document.
func (s *ConfessionService) Submit(ctx context.Context, in SubmitInput) (*models.Confession, error) {
	span, ctx := observability.NewSpan(ctx, "ConfessionService.Submit")
	defer span.End()

	category, ok := models.ParseCategory(in.Category)
	if !ok {
		err := models.NewValidationError("unknown category " + strings.TrimSpace(in.Category))
		s.logger.WarnContext(ctx, "submission rejected", slog.String("error", err.Error()))
		observability.Submissions.WithLabelValues(observability.ResultError).Inc()
		return nil, err
	}

	c, err := models.NewPendingConfession(
		s.nextID(),
		strings.TrimSpace(in.Content),
		category,
		s.catalog.Normalize(in.Affiliation),
		in.MediaURL,
		s.now(),
	)
	if err != nil {
		s.logger.WarnContext(ctx, "submission rejected", slog.String("error", err.Error()))
		observability.Submissions.WithLabelValues(observability.ResultError).Inc()
		return nil, err
	}
	span.AddAttributes(attribute.Int64("confession.id", c.ID))

	ref, err := remoteCall(ctx, s.retry, s.logger, "create", func(ctx context.Context) (string, error) {
		doc := c.Clone()
		if err := s.repo.Create(ctx, &doc); err != nil {
			return "", err
		}
		return doc.RemoteRef, nil
	})
	if err != nil {
		span.SetError(err)
		observability.Submissions.WithLabelValues(observability.ResultError).Inc()
		s.logger.ErrorContext(ctx, "failed to store submission",
			slog.Int64("confession_id", c.ID), slog.String("error", err.Error()))
		return nil, asWriteError("submission", err)
	}
	c.RemoteRef = ref

	s.mu.Lock()
	s.place(c)
	out := c.Clone()
	s.observePartitions()
	s.mu.Unlock()

	observability.Submissions.WithLabelValues(observability.ResultOK).Inc()
	s.logger.InfoContext(ctx, "confession submitted", slog.Int64("confession_id", out.ID))
	s.committed(ctx, notifications.EventSubmitted, out.ID)
	return &out, nil
}

// View is a read-only copy of local state as seen by one user.
type View struct {
	Pending  []models.Confession `json:"pending"`
	Approved []models.Confession `json:"approved"`
	Rejected []models.Confession `json:"rejected"`
	LikedIDs []int64             `json:"liked_ids"`
}

// Snapshot returns copies of all three partitions, newest first, and the
// current user's liked ids.
func (s *ConfessionService) Snapshot(ctx context.Context) View {
	var userID string
	if u := s.identity.CurrentUser(ctx); u != nil {
		userID = u.ID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return View{
		Pending:  s.partitionCopy(models.StatusPending),
		Approved: s.partitionCopy(models.StatusApproved),
		Rejected: s.partitionCopy(models.StatusRejected),
		LikedIDs: s.likedCopy(userID),
	}
}

// partitionCopy returns deep copies sorted newest first. Callers hold mu.
func (s *ConfessionService) partitionCopy(status models.ConfessionStatus) []models.Confession {
	p := s.partitions[status]
	out := make([]models.Confession, 0, len(p))
	for _, c := range p {
		out = append(out, c.Clone())
	}
	slices.SortFunc(out, func(a, b models.Confession) int {
		if c := b.SortTime().Compare(a.SortTime()); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return out
}

// likedCopy returns userID's liked ids in ascending order. Callers hold mu.
func (s *ConfessionService) likedCopy(userID string) []int64 {
	set := s.liked[userID]
	out := make([]int64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// LikedIDs returns the ids the current user likes.
func (s *ConfessionService) LikedIDs(ctx context.Context) ([]int64, error) {
	u := s.identity.CurrentUser(ctx)
	if u == nil {
		return nil, models.NewUnauthenticatedError("Authentication required")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.likedCopy(u.ID), nil
}

// GetApproved returns one published confession.
func (s *ConfessionService) GetApproved(ctx context.Context, id int64) (*models.Confession, error) {
	s.mu.RLock()
	c, ok := s.partitions[models.StatusApproved][id]
	var out models.Confession
	if ok {
		out = c.Clone()
	}
	s.mu.RUnlock()
	if !ok {
		return nil, models.NewNotFoundError("confession", id)
	}
	return &out, nil
}

// FeedInput selects and orders the published feed.
type FeedInput struct {
	Interests   []string
	Mode        ranking.Mode
	Category    string
	Affiliation string
}

// FeedItem is a ranked confession annotated for the viewer.
type FeedItem struct {
	models.Confession
	CommentCount int  `json:"comment_count"`
	Liked        bool `json:"liked"`
}

// FeedResult is the ranked feed and the mode actually used.
type FeedResult struct {
	Mode  ranking.Mode `json:"mode"`
	Items []FeedItem   `json:"items"`
}

// Feed ranks the approved partition for the current viewer. Trending is
// served only to viewers inside the trending_feed rollout.
func (s *ConfessionService) Feed(ctx context.Context, in FeedInput) (FeedResult, error) {
	span, ctx := observability.NewSpan(ctx, "ConfessionService.Feed")
	defer span.End()

	var userID string
	if u := s.identity.CurrentUser(ctx); u != nil {
		userID = u.ID
	}

	var category models.Category
	if strings.TrimSpace(in.Category) != "" {
		c, ok := models.ParseCategory(in.Category)
		if !ok {
			return FeedResult{}, models.NewValidationError("unknown category " + strings.TrimSpace(in.Category))
		}
		category = c
	}

	mode := in.Mode
	if mode == ranking.ModeTrending && s.flags != nil && !s.flags.Enabled(featureflags.TrendingFeed, userID) {
		mode = ranking.ModeRecent
	}
	span.AddAttributes(attribute.String("feed.mode", string(mode)))

	s.mu.RLock()
	approved := s.partitionCopy(models.StatusApproved)
	liked := make(map[int64]struct{}, len(s.liked[userID]))
	for id := range s.liked[userID] {
		liked[id] = struct{}{}
	}
	s.mu.RUnlock()

	filtered := ranking.Filter(approved, category, s.catalog.Normalize(in.Affiliation))
	counts := ranking.CommentCounts(ctx, s.comments, filtered, s.logger)

	ranked := ranking.Rank(filtered, ranking.Options{
		Interests:     s.catalog.Expand(in.Interests),
		Mode:          mode,
		Now:           s.now(),
		CommentCounts: counts,
	})

	items := make([]FeedItem, len(ranked))
	for i, c := range ranked {
		_, isLiked := liked[c.ID]
		items[i] = FeedItem{Confession: c, CommentCount: counts[c.ID], Liked: isLiked}
	}
	return FeedResult{Mode: mode, Items: items}, nil
}

// committed publishes ev to other instances and refreshes the persisted
// snapshot. Both are best effort.
func (s *ConfessionService) committed(ctx context.Context, typ notifications.EventType, id int64) {
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, notifications.Event{Type: typ, ConfessionID: id}); err != nil {
			s.logger.WarnContext(ctx, "failed to publish lifecycle event",
				slog.String("type", string(typ)), slog.String("error", err.Error()))
		}
	}
	s.persist(ctx)
}
