package models

import (
	"time"
)

// ID Strategy:
// - Objectives, tasks, agents, memory entries, and snapshots use prefixed
//   string IDs ("obj_...", "task_...") generated from a nanosecond timestamp
//   plus a crypto-random suffix (see id.go). Collision-free without
//   coordination, sortable by creation time.
// - State change records reuse the same scheme with a "chg" prefix so the
//   change log stays ordered even across restarts.

// ObjectiveStatus represents the lifecycle state of an objective.
type ObjectiveStatus string

// Objective status constants.
const (
	ObjectiveStatusPlanning  ObjectiveStatus = "planning"
	ObjectiveStatusExecuting ObjectiveStatus = "executing"
	ObjectiveStatusCompleted ObjectiveStatus = "completed"
	ObjectiveStatusFailed    ObjectiveStatus = "failed"
)

// IsTerminal returns true if the objective reached a final state.
func (s ObjectiveStatus) IsTerminal() bool {
	return s == ObjectiveStatusCompleted || s == ObjectiveStatusFailed
}

// Strategy selects the decomposition template applied to an objective.
type Strategy string

// Decomposition strategies.
const (
	StrategyAuto        Strategy = "auto"
	StrategyResearch    Strategy = "research"
	StrategyDevelopment Strategy = "development"
	StrategyAnalysis    Strategy = "analysis"
)

// Valid reports whether the strategy is one of the supported templates.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyAuto, StrategyResearch, StrategyDevelopment, StrategyAnalysis:
		return true
	}
	return false
}

// Objective is a user-level goal decomposed into a dependency graph of tasks.
type Objective struct {
	ID          string          `json:"id"`
	Description string          `json:"description"`
	Strategy    Strategy        `json:"strategy"`
	TaskIDs     []string        `json:"task_ids"`
	Status      ObjectiveStatus `json:"status"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// TaskStatus represents the current state of a task.
type TaskStatus string

// Task status constants.
const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// IsTerminal returns true if the task is in a final state.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// IsPending returns true if the task is awaiting dispatch.
func (s TaskStatus) IsPending() bool {
	return s == TaskStatusPending
}

// Task is a unit of work with dependencies, priority, timeout, and a retry
// budget. Invariants: status=running implies AssignedTo and StartedAt are
// set; RetryCount never exceeds MaxRetries; dependencies form a DAG within
// the owning objective.
type Task struct {
	ID           string        `json:"id"`
	ObjectiveID  string        `json:"objective_id,omitempty"`
	Type         string        `json:"type"`
	Description  string        `json:"description"`
	Priority     int           `json:"priority"`
	Dependencies []string      `json:"dependencies,omitempty"`
	AssignedTo   string        `json:"assigned_to,omitempty"`
	Status       TaskStatus    `json:"status"`
	Result       string        `json:"result,omitempty"`
	Error        string        `json:"error,omitempty"`
	RetryCount   int           `json:"retry_count"`
	MaxRetries   int           `json:"max_retries"`
	Timeout      time.Duration `json:"timeout_ms"`
	CreatedAt    time.Time     `json:"created_at"`
	StartedAt    *time.Time    `json:"started_at,omitempty"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
}

// IsAssigned returns true if the task has been bound to an agent.
func (t *Task) IsAssigned() bool {
	return t.AssignedTo != ""
}

// DependsOn returns true if id appears in the task's dependency set.
func (t *Task) DependsOn(id string) bool {
	for _, dep := range t.Dependencies {
		if dep == id {
			return true
		}
	}
	return false
}

// AgentType classifies a worker by the task family it specialises in.
type AgentType string

// Agent type constants. Coordinators match any task type.
const (
	AgentTypeResearcher  AgentType = "researcher"
	AgentTypeDeveloper   AgentType = "developer"
	AgentTypeAnalyzer    AgentType = "analyzer"
	AgentTypeCoordinator AgentType = "coordinator"
	AgentTypeReviewer    AgentType = "reviewer"
)

// Valid reports whether the agent type is known.
func (t AgentType) Valid() bool {
	switch t {
	case AgentTypeResearcher, AgentTypeDeveloper, AgentTypeAnalyzer,
		AgentTypeCoordinator, AgentTypeReviewer:
		return true
	}
	return false
}

// AgentStatus represents the availability state of an agent.
type AgentStatus string

// Agent status constants.
const (
	AgentStatusIdle      AgentStatus = "idle"
	AgentStatusBusy      AgentStatus = "busy"
	AgentStatusFailed    AgentStatus = "failed"
	AgentStatusCompleted AgentStatus = "completed"
)

// AgentMetrics accumulates per-agent execution statistics.
// TasksCompleted+TasksFailed is monotonic.
type AgentMetrics struct {
	TasksCompleted int           `json:"tasks_completed"`
	TasksFailed    int           `json:"tasks_failed"`
	TotalDuration  time.Duration `json:"total_duration_ms"`
	LastActivity   time.Time     `json:"last_activity"`
}

// SuccessRatio is the dispatch-ordering score: completed / (failed + 1).
func (m AgentMetrics) SuccessRatio() float64 {
	return float64(m.TasksCompleted) / float64(m.TasksFailed+1)
}

// Agent is a worker with a type, capability set, and performance metrics.
// Invariant: Status=busy iff CurrentTask is non-empty; an agent appears in
// at most one running task's AssignedTo at a time.
type Agent struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Type         AgentType    `json:"type"`
	Status       AgentStatus  `json:"status"`
	Capabilities []string     `json:"capabilities,omitempty"`
	CurrentTask  string       `json:"current_task,omitempty"`
	Metrics      AgentMetrics `json:"metrics"`
}

// IsIdle returns true if the agent can accept a task.
func (a *Agent) IsIdle() bool {
	return a.Status == AgentStatusIdle
}

// ShareLevel is the visibility class of a memory entry.
type ShareLevel string

// Share level constants. Private entries must never be shared or broadcast.
const (
	ShareLevelPrivate ShareLevel = "private"
	ShareLevelTeam    ShareLevel = "team"
	ShareLevelPublic  ShareLevel = "public"
)

// MemoryType categorises what a memory entry records.
type MemoryType string

// Memory type constants.
const (
	MemoryTypeKnowledge     MemoryType = "knowledge"
	MemoryTypeResult        MemoryType = "result"
	MemoryTypeState         MemoryType = "state"
	MemoryTypeCommunication MemoryType = "communication"
	MemoryTypeError         MemoryType = "error"
)

// MemoryMetadata carries the queryable attributes of a memory entry.
// Sharing writes the provenance fields (OriginalID, SharedFrom, SharedTo,
// SharedAt) on the new entry; the original entry is never mutated.
type MemoryMetadata struct {
	TaskID      string     `json:"task_id,omitempty"`
	ObjectiveID string     `json:"objective_id,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	Priority    int        `json:"priority"`
	ShareLevel  ShareLevel `json:"share_level"`
	OriginalID  string     `json:"original_id,omitempty"`
	SharedFrom  string     `json:"shared_from,omitempty"`
	SharedTo    string     `json:"shared_to,omitempty"`
	SharedAt    *time.Time `json:"shared_at,omitempty"`
}

// MemoryEntry is a single record in the memory substrate.
type MemoryEntry struct {
	ID        string         `json:"id"`
	AgentID   string         `json:"agent_id"`
	Type      MemoryType     `json:"type"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  MemoryMetadata `json:"metadata"`
}

// IsPrivate returns true if the entry must not leave its owning agent.
func (e *MemoryEntry) IsPrivate() bool {
	return e.Metadata.ShareLevel == ShareLevelPrivate
}

// KnowledgeBaseMetadata describes the domain a knowledge base curates.
type KnowledgeBaseMetadata struct {
	Domain       string    `json:"domain"`
	Expertise    []string  `json:"expertise,omitempty"`
	Contributors []string  `json:"contributors,omitempty"`
	LastUpdated  time.Time `json:"last_updated"`
}

// KnowledgeBase is a curated, domain-tagged bundle of memory entries.
// An entry attaches when any of its tags overlaps (case-insensitive
// substring, either direction) the base's expertise.
type KnowledgeBase struct {
	ID          string                `json:"id"`
	Name        string                `json:"name"`
	Description string                `json:"description"`
	Entries     []MemoryEntry         `json:"entries,omitempty"`
	Metadata    KnowledgeBaseMetadata `json:"metadata"`
}

// Expectation declares the exit outcome a verification command must produce.
type Expectation string

// Expectation constants.
const (
	ExpectSuccess Expectation = "success"
	ExpectFailure Expectation = "failure"
)

// VerificationCommand is an external command whose observed exit code must
// match the declared expectation.
type VerificationCommand struct {
	Command     string        `json:"command"`
	Expectation Expectation   `json:"expectation"`
	Description string        `json:"description,omitempty"`
	Critical    bool          `json:"critical"`
	Timeout     time.Duration `json:"timeout_ms,omitempty"`
}

// VerificationResult records the observed outcome of one command.
type VerificationResult struct {
	Command            string        `json:"command"`
	ExitCode           int           `json:"exit_code"`
	Stdout             string        `json:"stdout,omitempty"`
	Stderr             string        `json:"stderr,omitempty"`
	Duration           time.Duration `json:"duration_ms"`
	MatchesExpectation bool          `json:"matches_expectation"`
}

// StatusDocument is the on-disk contract an agent signs to claim completion.
// Contract: Ok=true implies Errors=0; an absent or malformed document is a
// verification failure.
type StatusDocument struct {
	Ok                   bool      `json:"ok"`
	Errors               int       `json:"errors"`
	Spawned              int       `json:"spawned"`
	Timestamp            time.Time `json:"timestamp"`
	VerificationCommands []string  `json:"verification_commands"`
	Details              string    `json:"details,omitempty"`
	ErrorDetails         []string  `json:"error_details,omitempty"`
}

// Passing reports whether the document satisfies the acceptance contract.
func (d *StatusDocument) Passing() bool {
	return d.Ok && d.Errors == 0
}

// Snapshot is a timestamped immutable dump of the entire core state.
type Snapshot struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	State     []byte    `json:"state"`
}
