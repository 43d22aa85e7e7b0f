package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// CoordError is implemented by enriched errors that carry a stable code and
// structured context. The output and coordinator packages both use this
// interface to avoid an import cycle.
type CoordError interface {
	error
	ErrorCode() string
	Context() map[string]string
	SuggestedAction() string
}

// Sentinel errors for errors.Is matching across packages.
var (
	ErrTaskTimeout          = errors.New("task exceeded its timeout")
	ErrCircuitOpen          = errors.New("circuit open for agent")
	ErrVerificationFailed   = errors.New("verification failed")
	ErrStatusMissing        = errors.New("status document missing or invalid")
	ErrPersistenceExhausted = errors.New("all persistence backends failed")
	ErrInvalidStrategy      = errors.New("invalid strategy")
	ErrInvalidObjective     = errors.New("invalid objective")
	ErrDependencyCycle      = errors.New("dependency cycle detected")
	ErrAgentBusy            = errors.New("agent is busy")
	ErrPrivateEntry         = errors.New("entry is private")
)

// TaskTimeoutError is raised when a running task outlives its timeout budget.
type TaskTimeoutError struct {
	TaskID    string
	AgentID   string
	TimeoutMS int64
}

func (e *TaskTimeoutError) Error() string {
	return fmt.Sprintf("task %s timed out after %dms", e.TaskID, e.TimeoutMS)
}
func (e *TaskTimeoutError) ErrorCode() string { return "task-timeout" }
func (e *TaskTimeoutError) Context() map[string]string {
	return map[string]string{
		"task_id":    e.TaskID,
		"agent_id":   e.AgentID,
		"timeout_ms": strconv.FormatInt(e.TimeoutMS, 10),
	}
}
func (e *TaskTimeoutError) SuggestedAction() string {
	return "raise the task timeout or split the task into smaller units"
}
func (e *TaskTimeoutError) Is(target error) bool { return target == ErrTaskTimeout }

// CircuitOpenError reports dispatch refusal because an agent's breaker is open.
type CircuitOpenError struct {
	AgentID  string
	Failures int
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit open for agent %s after %d failures", e.AgentID, e.Failures)
}
func (e *CircuitOpenError) ErrorCode() string { return "circuit-open" }
func (e *CircuitOpenError) Context() map[string]string {
	return map[string]string{
		"agent_id": e.AgentID,
		"failures": strconv.Itoa(e.Failures),
	}
}
func (e *CircuitOpenError) SuggestedAction() string {
	return "wait for the breaker reset timeout or register additional agents"
}
func (e *CircuitOpenError) Is(target error) bool { return target == ErrCircuitOpen }

// DependencyError is fatal at decomposition: a task references a missing or
// cycling dependency. The objective fails; intent is never guessed.
type DependencyError struct {
	ObjectiveID string
	TaskID      string
	DependsOn   string
	Cycle       bool
}

func (e *DependencyError) Error() string {
	if e.Cycle {
		return fmt.Sprintf("dependency cycle detected: %s -> %s", e.TaskID, e.DependsOn)
	}
	return fmt.Sprintf("task %s depends on unknown task %s", e.TaskID, e.DependsOn)
}
func (e *DependencyError) ErrorCode() string { return "dependency-cycle" }
func (e *DependencyError) Context() map[string]string {
	return map[string]string{
		"objective_id": e.ObjectiveID,
		"task_id":      e.TaskID,
		"depends_on":   e.DependsOn,
		"cycle":        strconv.FormatBool(e.Cycle),
	}
}
func (e *DependencyError) SuggestedAction() string {
	return "fix the decomposition template so dependencies form a DAG"
}
func (e *DependencyError) Is(target error) bool { return target == ErrDependencyCycle }

// InvalidStrategyError reports an unknown decomposition strategy.
type InvalidStrategyError struct {
	Strategy string
}

func (e *InvalidStrategyError) Error() string {
	return fmt.Sprintf("invalid strategy %q (supported: auto, research, development, analysis)", e.Strategy)
}
func (e *InvalidStrategyError) ErrorCode() string { return "invalid-strategy" }
func (e *InvalidStrategyError) Context() map[string]string {
	return map[string]string{"strategy": e.Strategy}
}
func (e *InvalidStrategyError) SuggestedAction() string {
	return "use one of: auto, research, development, analysis"
}
func (e *InvalidStrategyError) Is(target error) bool { return target == ErrInvalidStrategy }

// InvalidObjectiveError guards the API against degenerate objectives.
type InvalidObjectiveError struct {
	Reason string
}

func (e *InvalidObjectiveError) Error() string {
	return "invalid objective: " + e.Reason
}
func (e *InvalidObjectiveError) ErrorCode() string { return "invalid-objective" }
func (e *InvalidObjectiveError) Context() map[string]string {
	return map[string]string{"reason": e.Reason}
}
func (e *InvalidObjectiveError) SuggestedAction() string {
	return "provide a non-empty description and a supported strategy"
}
func (e *InvalidObjectiveError) Is(target error) bool { return target == ErrInvalidObjective }

// AgentBusyError surfaces coordinator misuse: assigning to a busy agent.
// State is unchanged when this is returned.
type AgentBusyError struct {
	AgentID     string
	CurrentTask string
}

func (e *AgentBusyError) Error() string {
	return fmt.Sprintf("agent %s is busy with task %s", e.AgentID, e.CurrentTask)
}
func (e *AgentBusyError) ErrorCode() string { return "agent-busy" }
func (e *AgentBusyError) Context() map[string]string {
	return map[string]string{
		"agent_id":     e.AgentID,
		"current_task": e.CurrentTask,
	}
}
func (e *AgentBusyError) SuggestedAction() string {
	return "wait for the current task to finish or pick another agent"
}
func (e *AgentBusyError) Is(target error) bool { return target == ErrAgentBusy }

// PrivateEntryError surfaces an attempt to share or broadcast a private
// memory entry. The original entry is left untouched.
type PrivateEntryError struct {
	EntryID string
	AgentID string
}

func (e *PrivateEntryError) Error() string {
	return fmt.Sprintf("memory entry %s is private and cannot be shared", e.EntryID)
}
func (e *PrivateEntryError) ErrorCode() string { return "private-entry" }
func (e *PrivateEntryError) Context() map[string]string {
	return map[string]string{
		"entry_id": e.EntryID,
		"agent_id": e.AgentID,
	}
}
func (e *PrivateEntryError) SuggestedAction() string {
	return "re-record the entry with share_level team or public"
}
func (e *PrivateEntryError) Is(target error) bool { return target == ErrPrivateEntry }

// PersistenceExhaustedError is returned when every configured backend failed
// a save or load. Partial failure (at least one success) is a warning, not
// an error.
type PersistenceExhaustedError struct {
	Op       string
	Failures []string
}

func (e *PersistenceExhaustedError) Error() string {
	return fmt.Sprintf("persistence %s failed on all backends: %s", e.Op, strings.Join(e.Failures, "; "))
}
func (e *PersistenceExhaustedError) ErrorCode() string { return "persistence-exhausted" }
func (e *PersistenceExhaustedError) Context() map[string]string {
	return map[string]string{
		"op":       e.Op,
		"failures": strings.Join(e.Failures, "; "),
	}
}
func (e *PersistenceExhaustedError) SuggestedAction() string {
	return "check backend paths and permissions, then retry"
}
func (e *PersistenceExhaustedError) Is(target error) bool { return target == ErrPersistenceExhausted }
