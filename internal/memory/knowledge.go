package memory

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dotcommander/claude-flow/internal/models"
)

// CreateKnowledgeBase registers a new knowledge base and returns its id.
func (s *Substrate) CreateKnowledgeBase(name, description, domain string, expertise []string) string {
	kb := models.KnowledgeBase{
		ID:          models.NewID("kb"),
		Name:        name,
		Description: description,
		Metadata: models.KnowledgeBaseMetadata{
			Domain:      domain,
			Expertise:   expertise,
			LastUpdated: time.Now(),
		},
	}

	s.mu.Lock()
	s.bases[kb.ID] = kb
	s.mu.Unlock()
	return kb.ID
}

// KnowledgeBase returns a copy of the base by id.
func (s *Substrate) KnowledgeBase(id string) (models.KnowledgeBase, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kb, ok := s.bases[id]
	return kb, ok
}

// UpdateKnowledgeBase attaches the entry to the base regardless of tag
// overlap and records the contributing agent.
func (s *Substrate) UpdateKnowledgeBase(kbID, entryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kb, ok := s.bases[kbID]
	if !ok {
		return fmt.Errorf("knowledge base not found: %s", kbID)
	}
	entry, ok := s.entries.Peek(entryID)
	if !ok {
		return fmt.Errorf("memory entry not found: %s", entryID)
	}

	s.appendToBase(&kb, entry)
	s.bases[kbID] = kb
	return nil
}

// attachToBasesLocked adds the entry to every base whose expertise
// overlaps its tags. Caller holds s.mu.
func (s *Substrate) attachToBasesLocked(entry models.MemoryEntry) {
	if len(entry.Metadata.Tags) == 0 {
		return
	}
	for id, kb := range s.bases {
		if expertiseOverlap(entry.Metadata.Tags, kb.Metadata.Expertise) {
			s.appendToBase(&kb, entry)
			s.bases[id] = kb
		}
	}
}

func (s *Substrate) appendToBase(kb *models.KnowledgeBase, entry models.MemoryEntry) {
	kb.Entries = append(kb.Entries, entry)
	kb.Metadata.LastUpdated = time.Now()
	if !containsString(kb.Metadata.Contributors, entry.AgentID) {
		kb.Metadata.Contributors = append(kb.Metadata.Contributors, entry.AgentID)
	}
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

// expertiseOverlap reports whether any tag and any expertise term overlap
// as case-insensitive substrings, in either direction.
func expertiseOverlap(tags, expertise []string) bool {
	for _, tag := range tags {
		lt := strings.ToLower(tag)
		for _, exp := range expertise {
			le := strings.ToLower(exp)
			if strings.Contains(lt, le) || strings.Contains(le, lt) {
				return true
			}
		}
	}
	return false
}

// SearchKnowledge returns entries from matching bases whose content or tags
// contain text (case-insensitive). domain filters bases exactly; expertise
// filters bases by overlap. Results are newest-first.
func (s *Substrate) SearchKnowledge(text, domain string, expertise []string) []models.MemoryEntry {
	lt := strings.ToLower(text)

	s.mu.Lock()
	var out []models.MemoryEntry
	seen := make(map[string]bool)
	for _, kb := range s.bases {
		if domain != "" && kb.Metadata.Domain != domain {
			continue
		}
		if len(expertise) > 0 && !expertiseOverlap(expertise, kb.Metadata.Expertise) {
			continue
		}
		for _, entry := range kb.Entries {
			if seen[entry.ID] {
				continue
			}
			if lt == "" || strings.Contains(strings.ToLower(entry.Content), lt) ||
				tagsContain(entry.Metadata.Tags, lt) {
				seen[entry.ID] = true
				out = append(out, entry)
			}
		}
	}
	s.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}

func tagsContain(tags []string, lowered string) bool {
	for _, tag := range tags {
		if strings.Contains(strings.ToLower(tag), lowered) {
			return true
		}
	}
	return false
}
