package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"confessions/internal/models"

	"github.com/redis/go-redis/v9"
)

// SnapshotVersion is bumped whenever the persisted layout changes. Blobs
// written with another version are discarded on load.
const SnapshotVersion = 1

var (
	ErrSnapshotMissing = errors.New("snapshot not found")
	ErrSnapshotInvalid = errors.New("snapshot unreadable")
)

// Snapshot is the advisory copy of local state used to warm a fresh process
// before the first refresh completes.
type Snapshot struct {
	Version  int                  `json:"version"`
	SavedAt  time.Time            `json:"saved_at"`
	Pending  []*models.Confession `json:"pending"`
	Approved []*models.Confession `json:"approved"`
	Rejected []*models.Confession `json:"rejected"`
	LikedIDs map[string][]int64   `json:"liked_ids"`
}

// SnapshotStore keeps one snapshot blob per namespace.
type SnapshotStore struct {
	rdb       *redis.Client
	namespace string
	ttl       time.Duration
}

// NewSnapshotStore returns a store writing under confessions:snapshot:<namespace>.
// A nil client yields a store that never finds a snapshot and drops writes.
func NewSnapshotStore(rdb *redis.Client, namespace string) *SnapshotStore {
	return &SnapshotStore{rdb: rdb, namespace: namespace, ttl: SnapshotTTL}
}

func (s *SnapshotStore) key() string {
	return SnapshotKey(s.namespace)
}

// Load returns the stored snapshot. ErrSnapshotMissing and ErrSnapshotInvalid
// tell the caller to ignore persisted state and rely on a refresh.
func (s *SnapshotStore) Load(ctx context.Context) (*Snapshot, error) {
	if s == nil || s.rdb == nil {
		return nil, ErrSnapshotMissing
	}
	raw, err := s.rdb.Get(ctx, s.key()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSnapshotMissing
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", s.key(), err)
	}

	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotInvalid, err)
	}
	if snap.Version != SnapshotVersion {
		return nil, fmt.Errorf("%w: version %d, want %d", ErrSnapshotInvalid, snap.Version, SnapshotVersion)
	}
	return &snap, nil
}

// Save overwrites the stored snapshot, stamping version and time.
func (s *SnapshotStore) Save(ctx context.Context, snap *Snapshot) error {
	if s == nil || s.rdb == nil || snap == nil {
		return nil
	}
	snap.Version = SnapshotVersion
	if snap.SavedAt.IsZero() {
		snap.SavedAt = time.Now().UTC()
	}
	b, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return s.rdb.Set(ctx, s.key(), b, s.ttl).Err()
}

// Clear removes the stored snapshot.
func (s *SnapshotStore) Clear(ctx context.Context) error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Del(ctx, s.key()).Err()
}
