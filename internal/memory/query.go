package memory

import (
	"sort"
	"strings"
	"time"

	"github.com/dotcommander/claude-flow/internal/models"
)

// Query filters recall results. Zero-valued fields match everything.
type Query struct {
	AgentID     string
	Type        models.MemoryType
	TaskID      string
	ObjectiveID string
	Tags        []string
	Since       time.Time
	Until       time.Time
	ShareLevel  models.ShareLevel
	Limit       int
}

func (q Query) matches(e models.MemoryEntry) bool {
	if q.AgentID != "" && e.AgentID != q.AgentID {
		return false
	}
	if q.Type != "" && e.Type != q.Type {
		return false
	}
	if q.TaskID != "" && e.Metadata.TaskID != q.TaskID {
		return false
	}
	if q.ObjectiveID != "" && e.Metadata.ObjectiveID != q.ObjectiveID {
		return false
	}
	if q.ShareLevel != "" && e.Metadata.ShareLevel != q.ShareLevel {
		return false
	}
	if !q.Since.IsZero() && e.Timestamp.Before(q.Since) {
		return false
	}
	if !q.Until.IsZero() && e.Timestamp.After(q.Until) {
		return false
	}
	if len(q.Tags) > 0 && !tagsOverlap(q.Tags, e.Metadata.Tags) {
		return false
	}
	return true
}

// tagsOverlap reports whether any query tag equals any entry tag,
// case-insensitively.
func tagsOverlap(want, have []string) bool {
	for _, w := range want {
		for _, h := range have {
			if strings.EqualFold(w, h) {
				return true
			}
		}
	}
	return false
}

// Recall returns matching entries ordered newest-first, truncated to
// q.Limit when positive. Recall does not bump LRU recency: queries must
// not skew eviction toward unqueried entries.
func (s *Substrate) Recall(q Query) []models.MemoryEntry {
	s.mu.Lock()
	var out []models.MemoryEntry
	s.entries.Range(func(_ string, e models.MemoryEntry) bool {
		if q.matches(e) {
			out = append(out, e)
		}
		return true
	})
	s.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}
