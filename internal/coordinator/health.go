package coordinator

import (
	"log/slog"
	"time"

	"github.com/dotcommander/claude-flow/internal/breaker"
	"github.com/dotcommander/claude-flow/internal/models"
	"github.com/dotcommander/claude-flow/internal/state"
)

// healthTick recovers agents stuck past their task budget. The per-task
// context already enforces the timeout; this sweep is the independent
// backstop for runners that never return.
func (c *Coordinator) healthTick() {
	c.mu.Lock()
	defer c.mu.Unlock()

	snapshot := c.store.GetState()
	now := time.Now()
	recovered := 0

	for _, task := range snapshot.Tasks {
		if task.Status != models.TaskStatusRunning || task.StartedAt == nil {
			continue
		}
		budget := task.Timeout
		if budget <= 0 {
			budget = c.cfg.TaskTimeout
		}
		if now.Sub(*task.StartedAt) <= budget {
			continue
		}

		slog.Warn("task stuck past its budget, recovering agent",
			"task_id", task.ID, "agent_id", task.AssignedTo,
			"running_for", now.Sub(*task.StartedAt).String())
		recovered++

		if cancel, ok := c.cancels[task.ID]; ok {
			// Signal the runner; its goroutine routes into the failure path.
			cancel()
			continue
		}
		// No live runner goroutine (lost during a restore): promote the
		// failure path directly.
		c.failLocked(task, &models.TaskTimeoutError{
			TaskID:    task.ID,
			AgentID:   task.AssignedTo,
			TimeoutMS: budget.Milliseconds(),
		})
	}

	health := state.Health{
		Healthy:       true,
		LastCheckAt:   now,
		StuckRecovers: snapshot.Health.StuckRecovers + recovered,
	}
	if err := c.store.Dispatch(state.SetHealth{Health: health}); err != nil {
		slog.Warn("failed to record health check", "error", err)
	}
}

// failLocked is failTask's body for callers already holding c.mu.
func (c *Coordinator) failLocked(task models.Task, cause error) {
	agentID := task.AssignedTo
	c.mu.Unlock()
	defer c.mu.Lock()
	c.failTask(task.ID, agentID, 0, cause)
}

// rebalanceTick samples agent loads (busy=1, idle=0), feeds the
// work-stealer, and surfaces its advisory suggestions as monitor alerts.
// Nothing is reassigned; dispatch naturally prefers unloaded agents.
func (c *Coordinator) rebalanceTick() {
	c.mu.Lock()
	snapshot := c.store.GetState()
	c.mu.Unlock()

	loads := make(map[string]float64, len(snapshot.Agents))
	for id, agent := range snapshot.Agents {
		if agent.Status == models.AgentStatusBusy {
			loads[id] = 1.0
		} else {
			loads[id] = 0.0
		}
	}
	c.stealer.ReplaceLoads(loads)

	for _, suggestion := range c.stealer.Suggest() {
		c.emit(models.EventMonitorAlert, map[string]any{
			"kind": "work-stealing-suggestion",
			"from": suggestion.From,
			"to":   suggestion.To,
		})
	}
}

// Stats is the coordinator's operator-facing summary.
type Stats struct {
	Swarm       state.SwarmMeta `json:"swarm"`
	Agents      int             `json:"agents"`
	IdleAgents  int             `json:"idle_agents"`
	Tasks       map[string]int  `json:"tasks"`
	Objectives  map[string]int  `json:"objectives"`
	Metrics     state.Metrics   `json:"metrics"`
	Health      state.Health    `json:"health"`
	CircuitOpen []string        `json:"circuit_open,omitempty"`
	MemoryStats map[string]int  `json:"memory,omitempty"`
}

// Stats summarises the current swarm.
func (c *Coordinator) Stats() Stats {
	snapshot := c.store.GetState()

	stats := Stats{
		Swarm:      snapshot.Swarm,
		Agents:     len(snapshot.Agents),
		Tasks:      make(map[string]int),
		Objectives: make(map[string]int),
		Metrics:    snapshot.Metrics,
		Health:     snapshot.Health,
	}
	for _, agent := range snapshot.Agents {
		if agent.IsIdle() {
			stats.IdleAgents++
		}
	}
	for _, task := range snapshot.Tasks {
		stats.Tasks[string(task.Status)]++
	}
	for _, objective := range snapshot.Orchestration.Objectives {
		stats.Objectives[string(objective.Status)]++
	}
	for agentID, circuitState := range c.circuits.States() {
		if circuitState != breaker.StateClosed {
			stats.CircuitOpen = append(stats.CircuitOpen, agentID)
		}
	}
	if c.substrate != nil {
		mem := c.substrate.Stats()
		stats.MemoryStats = map[string]int{
			"entries":         mem.Entries,
			"knowledge_bases": mem.KnowledgeBases,
			"evictions":       mem.Evictions,
		}
	}
	return stats
}
