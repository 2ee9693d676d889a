// Package ranking orders approved confessions for the feed.
package ranking

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"confessions/internal/affiliation"
	"confessions/internal/models"
)

// Mode selects the ordering strategy.
type Mode string

const (
	ModeRecent   Mode = "recent"
	ModeTrending Mode = "trending"
)

// ParseMode maps a query value onto a Mode, defaulting to recent.
func ParseMode(raw string) Mode {
	if Mode(strings.ToLower(strings.TrimSpace(raw))) == ModeTrending {
		return ModeTrending
	}
	return ModeRecent
}

// Trending score weights.
const (
	CommentWeight = 2
	DayBonus      = 10
	WeekBonus     = 5
	DayWindow     = 24 * time.Hour
	WeekWindow    = 7 * 24 * time.Hour
)

// Options configure a single Rank call.
type Options struct {
	// Interests are canonical affiliation names; see affiliation.Catalog.Expand.
	Interests []string
	Mode      Mode
	// Category and Affiliation filter the set before ordering. Zero values
	// disable the filter.
	Category    models.Category
	Affiliation string
	Now         time.Time
	// CommentCounts is keyed by confession ID. Missing entries count as zero.
	CommentCounts map[int64]int
}

// Rank filters and orders items. The input slice is never modified and the
// result is fully determined by items and opts.
func Rank(items []models.Confession, opts Options) []models.Confession {
	out := Filter(items, opts.Category, opts.Affiliation)

	switch opts.Mode {
	case ModeTrending:
		now := opts.Now
		if now.IsZero() {
			now = time.Now()
		}
		scores := make([]int, len(out))
		for i := range out {
			scores[i] = Score(out[i], opts.CommentCounts[out[i].ID], now)
		}
		idx := indexes(len(out))
		slices.SortStableFunc(idx, func(a, b int) int {
			if c := cmp.Compare(scores[b], scores[a]); c != 0 {
				return c
			}
			return newestFirst(out[a], out[b])
		})
		return permute(out, idx)
	default:
		interests := make(map[string]struct{}, len(opts.Interests))
		for _, in := range opts.Interests {
			if k := affiliation.Key(in); k != "" {
				interests[k] = struct{}{}
			}
		}
		slices.SortStableFunc(out, func(a, b models.Confession) int {
			ia, ib := matches(a, interests), matches(b, interests)
			if ia != ib {
				if ia {
					return -1
				}
				return 1
			}
			return newestFirst(a, b)
		})
		return out
	}
}

// Filter returns a copy of items restricted to category and affiliation.
func Filter(items []models.Confession, category models.Category, aff string) []models.Confession {
	affKey := affiliation.Key(aff)
	out := make([]models.Confession, 0, len(items))
	for _, c := range items {
		if category != "" && c.Category != category {
			continue
		}
		if affKey != "" && affiliation.Key(c.Affiliation) != affKey {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Score is the trending score of c at now.
func Score(c models.Confession, comments int, now time.Time) int {
	score := c.LikeCount + CommentWeight*comments
	age := now.Sub(c.SortTime())
	switch {
	case age <= DayWindow:
		score += DayBonus
	case age <= WeekWindow:
		score += WeekBonus
	}
	return score
}

func matches(c models.Confession, interests map[string]struct{}) bool {
	if len(interests) == 0 {
		return false
	}
	_, ok := interests[affiliation.Key(c.Affiliation)]
	return ok
}

func newestFirst(a, b models.Confession) int {
	if c := b.SortTime().Compare(a.SortTime()); c != 0 {
		return c
	}
	return cmp.Compare(b.ID, a.ID)
}

func indexes(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}

func permute(items []models.Confession, idx []int) []models.Confession {
	out := make([]models.Confession, len(idx))
	for i, j := range idx {
		out[i] = items[j]
	}
	return out
}
