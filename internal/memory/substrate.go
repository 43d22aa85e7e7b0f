// Package memory is the shared memory substrate: per-agent and cross-agent
// entries with share levels, knowledge bases, batched persistence, and
// pressure-driven truncation. All collections are bounded; overflow evicts
// and reports, it never fails the caller.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dotcommander/claude-flow/internal/batch"
	"github.com/dotcommander/claude-flow/internal/events"
	"github.com/dotcommander/claude-flow/internal/models"
	"github.com/dotcommander/claude-flow/internal/persist"
	"github.com/dotcommander/claude-flow/pkg/bounded"
)

// Config bounds the substrate.
type Config struct {
	// MaxEntries caps the entry map.
	MaxEntries int
	// MaxEntriesPerAgent caps each agent's index set.
	MaxEntriesPerAgent int
	// HighWaterFraction is the fill ratio the substrate truncates to when
	// memory pressure triggers (0 < f <= 1).
	HighWaterFraction float64
	// KnowledgeBaseTrim is the entry-list suffix kept per knowledge base
	// under pressure.
	KnowledgeBaseTrim int
	// Batch tunes the persistence write coalescing.
	Batch batch.Config
}

// DefaultConfig sizes the substrate for a single-process swarm.
func DefaultConfig() Config {
	return Config{
		MaxEntries:         10000,
		MaxEntriesPerAgent: 1000,
		HighWaterFraction:  0.7,
		KnowledgeBaseTrim:  100,
		Batch:              batch.DefaultConfig(),
	}
}

// Substrate is the namespaced store over bounded collections. Reads hit the
// in-memory view; writes are additionally enqueued through the batch
// processor into the injected backend.
type Substrate struct {
	mu  sync.Mutex
	cfg Config

	entries    *bounded.Map[string, models.MemoryEntry]
	agentIndex map[string]*bounded.Set[string]
	bases      map[string]models.KnowledgeBase

	bus       *events.Bus
	proc      *batch.Processor[models.MemoryEntry, struct{}]
	evictions int
}

// New returns a substrate. backend may be nil (no persistence); bus may be
// nil (no events).
func New(cfg Config, backend persist.Backend, bus *events.Bus) *Substrate {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultConfig().MaxEntries
	}
	if cfg.MaxEntriesPerAgent <= 0 {
		cfg.MaxEntriesPerAgent = DefaultConfig().MaxEntriesPerAgent
	}
	if cfg.HighWaterFraction <= 0 || cfg.HighWaterFraction > 1 {
		cfg.HighWaterFraction = DefaultConfig().HighWaterFraction
	}
	if cfg.KnowledgeBaseTrim <= 0 {
		cfg.KnowledgeBaseTrim = DefaultConfig().KnowledgeBaseTrim
	}

	s := &Substrate{
		cfg:        cfg,
		agentIndex: make(map[string]*bounded.Set[string]),
		bases:      make(map[string]models.KnowledgeBase),
		bus:        bus,
	}
	s.entries = bounded.NewMap[string, models.MemoryEntry](cfg.MaxEntries, bounded.LRU, s.onEvict)

	if backend != nil {
		s.proc = batch.New(cfg.Batch, func(items []models.MemoryEntry) ([]struct{}, error) {
			if err := backend.SaveEntries(context.Background(), items); err != nil {
				return nil, err
			}
			s.emit(models.EventMemorySynced, map[string]any{"count": len(items)})
			return make([]struct{}, len(items)), nil
		}, func(dropped models.MemoryEntry) {
			slog.Warn("memory persistence queue overflow, entry not persisted",
				"entry_id", dropped.ID)
		})
	}
	return s
}

func (s *Substrate) emit(kind string, data map[string]any) {
	if s.bus != nil {
		s.bus.Emit(kind, data)
	}
}

// onEvict keeps the agent index consistent and reports the eviction. Runs
// under s.mu (all entry writes hold it).
func (s *Substrate) onEvict(id string, entry models.MemoryEntry) {
	s.evictions++
	if idx, ok := s.agentIndex[entry.AgentID]; ok {
		idx.Remove(id)
	}
	s.emit(models.EventMemoryEvicted, map[string]any{
		"entry_id": id,
		"agent_id": entry.AgentID,
	})
}

// Remember records a new entry for the agent and returns its id.
func (s *Substrate) Remember(agentID string, entryType models.MemoryType, content string, meta models.MemoryMetadata) string {
	if meta.ShareLevel == "" {
		meta.ShareLevel = models.ShareLevelPrivate
	}
	entry := models.MemoryEntry{
		ID:        models.NewID("mem"),
		AgentID:   agentID,
		Type:      entryType,
		Content:   content,
		Timestamp: time.Now(),
		Metadata:  meta,
	}

	s.mu.Lock()
	s.insertLocked(entry)
	s.mu.Unlock()

	s.emit(models.EventMemoryAdded, map[string]any{
		"entry_id": entry.ID,
		"agent_id": agentID,
		"type":     string(entryType),
	})
	if entryType == models.MemoryTypeCommunication {
		s.emit(models.EventAgentMessage, map[string]any{
			"entry_id": entry.ID,
			"agent_id": agentID,
		})
	}
	return entry.ID
}

// insertLocked stores the entry, indexes it, attaches it to matching
// knowledge bases, and enqueues persistence. Caller holds s.mu.
func (s *Substrate) insertLocked(entry models.MemoryEntry) {
	s.entries.Put(entry.ID, entry)

	idx, ok := s.agentIndex[entry.AgentID]
	if !ok {
		idx = bounded.NewSet[string](s.cfg.MaxEntriesPerAgent, bounded.FIFO, nil)
		s.agentIndex[entry.AgentID] = idx
	}
	idx.Add(entry.ID)

	s.attachToBasesLocked(entry)

	if s.proc != nil {
		// Fire and forget: the batch processor resolves the promise after the
		// backend write; persistence failures surface in its error channel
		// and must not fail the remember path.
		ch := s.proc.Submit(entry)
		go func(id string) {
			if out := <-ch; out.Err != nil {
				slog.Warn("memory entry persistence failed", "entry_id", id, "error", out.Err)
			}
		}(entry.ID)
	}
}

// Get returns the entry by id.
func (s *Substrate) Get(id string) (models.MemoryEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries.Peek(id)
}

// Share copies the entry to the target agent, returning the new entry.
// The original is never mutated; sharing a private entry is a caller
// error. Sharing to self is allowed and still produces a distinct entry.
func (s *Substrate) Share(entryID, targetAgent string) (models.MemoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shareLocked(entryID, targetAgent)
}

func (s *Substrate) shareLocked(entryID, targetAgent string) (models.MemoryEntry, error) {
	original, ok := s.entries.Peek(entryID)
	if !ok {
		return models.MemoryEntry{}, fmt.Errorf("memory entry not found: %s", entryID)
	}
	if original.IsPrivate() {
		return models.MemoryEntry{}, &models.PrivateEntryError{EntryID: entryID, AgentID: original.AgentID}
	}

	now := time.Now()
	shared := original
	shared.ID = models.NewID("mem")
	shared.AgentID = targetAgent
	shared.Timestamp = now
	shared.Metadata.OriginalID = original.ID
	shared.Metadata.SharedFrom = original.AgentID
	shared.Metadata.SharedTo = targetAgent
	shared.Metadata.SharedAt = &now

	s.insertLocked(shared)
	s.emit(models.EventMemoryShared, map[string]any{
		"entry_id":    shared.ID,
		"original_id": original.ID,
		"from":        original.AgentID,
		"to":          targetAgent,
	})
	return shared, nil
}

// Broadcast shares the entry with every target (all indexed agents except
// the owner when targets is empty). Returns the new entry ids.
func (s *Substrate) Broadcast(entryID string, targets []string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.entries.Peek(entryID)
	if !ok {
		return nil, fmt.Errorf("memory entry not found: %s", entryID)
	}
	if original.IsPrivate() {
		return nil, &models.PrivateEntryError{EntryID: entryID, AgentID: original.AgentID}
	}

	if len(targets) == 0 {
		for agentID := range s.agentIndex {
			if agentID != original.AgentID {
				targets = append(targets, agentID)
			}
		}
	}

	ids := make([]string, 0, len(targets))
	for _, target := range targets {
		shared, err := s.shareLocked(entryID, target)
		if err != nil {
			return ids, err
		}
		ids = append(ids, shared.ID)
	}
	return ids, nil
}

// AgentSnapshot returns the agent's entries (all entries when agentID is
// empty), newest first.
func (s *Substrate) AgentSnapshot(agentID string) []models.MemoryEntry {
	return s.Recall(Query{AgentID: agentID})
}

// Clear removes the agent's entries, or everything when agentID is empty.
func (s *Substrate) Clear(agentID string) int {
	s.mu.Lock()
	removed := 0
	if agentID == "" {
		removed = s.entries.Len()
		s.entries.Clear()
		s.agentIndex = make(map[string]*bounded.Set[string])
	} else if idx, ok := s.agentIndex[agentID]; ok {
		for _, id := range idx.Members() {
			if s.entries.Delete(id) {
				removed++
			}
		}
		delete(s.agentIndex, agentID)
	}
	s.mu.Unlock()

	if removed > 0 {
		s.emit(models.EventMemoryCleaned, map[string]any{
			"agent_id": agentID,
			"removed":  removed,
		})
	}
	return removed
}

// Stats describes the substrate's current footprint.
type Stats struct {
	Entries        int            `json:"entries"`
	ByAgent        map[string]int `json:"by_agent"`
	KnowledgeBases int            `json:"knowledge_bases"`
	Evictions      int            `json:"evictions"`
}

// Stats returns the current footprint.
func (s *Substrate) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	byAgent := make(map[string]int, len(s.agentIndex))
	for agentID, idx := range s.agentIndex {
		byAgent[agentID] = idx.Len()
	}
	return Stats{
		Entries:        s.entries.Len(),
		ByAgent:        byAgent,
		KnowledgeBases: len(s.bases),
		Evictions:      s.evictions,
	}
}

// Pressure truncates the substrate to the high-water mark and trims each
// knowledge base's entry list to its bounded suffix. Registered with the
// pressure monitor; never fails.
func (s *Substrate) Pressure() {
	s.mu.Lock()

	target := int(float64(s.cfg.MaxEntries) * s.cfg.HighWaterFraction)
	dropped := 0
	// Evict from the LRU tail until at or below the high-water mark. Keys()
	// is most-recent-first, so walk it backwards.
	for s.entries.Len() > target {
		keys := s.entries.Keys()
		victim := keys[len(keys)-1]
		if entry, ok := s.entries.Peek(victim); ok {
			s.onEvict(victim, entry)
		}
		s.entries.Delete(victim)
		dropped++
	}

	for id, kb := range s.bases {
		if len(kb.Entries) > s.cfg.KnowledgeBaseTrim {
			kb.Entries = append([]models.MemoryEntry(nil),
				kb.Entries[len(kb.Entries)-s.cfg.KnowledgeBaseTrim:]...)
			s.bases[id] = kb
		}
	}
	s.mu.Unlock()

	if dropped > 0 {
		s.emit(models.EventMemoryCleaned, map[string]any{
			"reason":  "pressure",
			"removed": dropped,
		})
	}
}

// Flush forces queued persistence writes to complete.
func (s *Substrate) Flush() {
	if s.proc != nil {
		s.proc.FlushAll()
	}
}

// Close flushes and stops the persistence processor.
func (s *Substrate) Close() {
	if s.proc != nil {
		s.proc.Close()
	}
}
