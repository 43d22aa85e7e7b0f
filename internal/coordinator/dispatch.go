package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dotcommander/claude-flow/internal/models"
	"github.com/dotcommander/claude-flow/internal/state"
	"github.com/dotcommander/claude-flow/internal/verify"
)

// typeFamilies maps task types to the agent type that specialises in them.
// Unlisted task types accept any agent; coordinators accept any task.
var typeFamilies = map[string]models.AgentType{
	"research":       models.AgentTypeResearcher,
	"exploration":    models.AgentTypeResearcher,
	"implementation": models.AgentTypeDeveloper,
	"execution":      models.AgentTypeDeveloper,
	"development":    models.AgentTypeDeveloper,
	"analysis":       models.AgentTypeAnalyzer,
	"collection":     models.AgentTypeAnalyzer,
	"review":         models.AgentTypeReviewer,
	"validation":     models.AgentTypeReviewer,
}

// dispatchTick is one pass of the background dispatcher: enumerate ready
// tasks, bind each to the best eligible idle agent, and launch execution.
func (c *Coordinator) dispatchTick() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.draining {
		return
	}

	snapshot := c.store.GetState()
	ready := readyTasks(snapshot)
	if len(ready) == 0 {
		return
	}

	// Eligible agents: idle and not circuit-open. The breaker inquiry also
	// performs the lazy open -> half-open transition.
	idle := make(map[string]models.Agent)
	for id, agent := range snapshot.Agents {
		if agent.IsIdle() && c.circuits.CanExecute(id) {
			idle[id] = agent
		}
	}

	for _, task := range ready {
		agent, ok := selectAgent(task, idle)
		if !ok {
			// No compatible idle agent is not an error; the task stays
			// pending for a later tick.
			continue
		}
		delete(idle, agent.ID)

		if err := c.assignLocked(task, agent); err != nil {
			slog.Warn("assignment failed", "task_id", task.ID, "agent_id", agent.ID, "error", err)
			continue
		}
	}
}

// readyTasks returns pending tasks whose dependencies are all completed,
// ordered by priority descending then age ascending.
func readyTasks(snapshot state.Unified) []models.Task {
	var ready []models.Task
	for _, task := range snapshot.Tasks {
		if !task.Status.IsPending() {
			continue
		}
		blocked := false
		for _, dep := range task.Dependencies {
			if snapshot.Tasks[dep].Status != models.TaskStatusCompleted {
				blocked = true
				break
			}
		}
		if !blocked {
			ready = append(ready, task)
		}
	}
	sort.Slice(ready, func(i, j int) bool {
		if ready[i].Priority != ready[j].Priority {
			return ready[i].Priority > ready[j].Priority
		}
		return ready[i].CreatedAt.Before(ready[j].CreatedAt)
	})
	return ready
}

// selectAgent picks the best idle agent for the task: prefer the task's
// type family (coordinators match anything), then the best success ratio,
// then the longest-idle agent.
func selectAgent(task models.Task, idle map[string]models.Agent) (models.Agent, bool) {
	family := typeFamilies[task.Type]

	var matched []models.Agent
	var fallback []models.Agent
	for _, agent := range idle {
		if agent.Type == models.AgentTypeCoordinator || (family != "" && agent.Type == family) {
			matched = append(matched, agent)
		}
		fallback = append(fallback, agent)
	}
	candidates := matched
	if len(candidates) == 0 {
		candidates = fallback
	}
	if len(candidates) == 0 {
		return models.Agent{}, false
	}

	sort.Slice(candidates, func(i, j int) bool {
		ri, rj := candidates[i].Metrics.SuccessRatio(), candidates[j].Metrics.SuccessRatio()
		if ri != rj {
			return ri > rj
		}
		if !candidates[i].Metrics.LastActivity.Equal(candidates[j].Metrics.LastActivity) {
			return candidates[i].Metrics.LastActivity.Before(candidates[j].Metrics.LastActivity)
		}
		return candidates[i].ID < candidates[j].ID
	})
	return candidates[0], true
}

// assignLocked transitions the task to running on the agent and launches
// execution. Caller holds c.mu. Assigning to a non-idle agent is refused
// with state unchanged.
func (c *Coordinator) assignLocked(task models.Task, agent models.Agent) error {
	if !agent.IsIdle() {
		return &models.AgentBusyError{AgentID: agent.ID, CurrentTask: agent.CurrentTask}
	}

	now := time.Now()
	task.Status = models.TaskStatusRunning
	task.AssignedTo = agent.ID
	task.StartedAt = &now
	agent.Status = models.AgentStatusBusy
	agent.CurrentTask = task.ID
	agent.Metrics.LastActivity = now

	err := c.store.Transaction([]state.Action{
		state.PutTask{Task: task},
		state.PutAgent{Agent: agent},
		state.UpdateMetrics{Update: func(m *state.Metrics) { m.TasksDispatched++ }},
	})
	if err != nil {
		return err
	}

	c.emit(models.EventTaskAssigned, map[string]any{
		"task_id":  task.ID,
		"agent_id": agent.ID,
		"type":     task.Type,
	})

	runCtx, cancel := context.WithTimeout(context.Background(), task.Timeout)
	c.cancels[task.ID] = cancel

	c.inflight.Add(1)
	go c.executeTask(runCtx, cancel, task, agent)
	return nil
}

// executeTask runs the task through the injected runner and routes the
// outcome into the completion or failure path. Runs off the coordinator
// mutex; only the two paths re-acquire it.
func (c *Coordinator) executeTask(ctx context.Context, cancel context.CancelFunc, task models.Task, agent models.Agent) {
	defer c.inflight.Done()
	defer cancel()

	start := time.Now()
	result, err := c.runner.Execute(ctx, task, agent)
	duration := time.Since(start)

	c.mu.Lock()
	delete(c.cancels, task.ID)
	c.mu.Unlock()

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = &models.TaskTimeoutError{
				TaskID:    task.ID,
				AgentID:   agent.ID,
				TimeoutMS: task.Timeout.Milliseconds(),
			}
		}
		c.failTask(task.ID, agent.ID, duration, err)
		return
	}

	if c.cfg.VerificationEnabled && c.verifier != nil {
		commands := c.cfg.VerifyCommands
		if len(commands) == 0 {
			commands = verify.DefaultCommands("typescript")
		}
		if _, verr := c.verifier.EnforceAgent(ctx, verify.Requirement{
			AgentID:    agent.ID,
			Commands:   commands,
			WorkingDir: c.cfg.VerifyWorkingDir,
		}); verr != nil {
			// Verification failures are never recovered here; they flow into
			// the ordinary failure path and its retry accounting.
			c.failTask(task.ID, agent.ID, duration, verr)
			return
		}
	}

	c.completeTask(task.ID, agent.ID, result, duration)
}

// completeTask is the completion path: record the result, free the agent,
// persist the result to memory, and check the owning objective.
func (c *Coordinator) completeTask(taskID, agentID, result string, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snapshot := c.store.GetState()
	task, ok := snapshot.Tasks[taskID]
	if !ok || task.Status != models.TaskStatusRunning || task.AssignedTo != agentID {
		// Already released (health check or drain got here first).
		slog.Warn("stale completion ignored", "task_id", taskID, "agent_id", agentID)
		return
	}
	agent := snapshot.Agents[agentID]

	now := time.Now()
	task.Status = models.TaskStatusCompleted
	task.CompletedAt = &now
	task.Result = result
	agent.Status = models.AgentStatusIdle
	agent.CurrentTask = ""
	agent.Metrics.TasksCompleted++
	agent.Metrics.TotalDuration += duration
	agent.Metrics.LastActivity = now

	err := c.store.Transaction([]state.Action{
		state.PutTask{Task: task},
		state.PutAgent{Agent: agent},
		state.UpdateMetrics{Update: func(m *state.Metrics) { m.TasksCompleted++ }},
	})
	if err != nil {
		slog.Error("failed to record task completion", "task_id", taskID, "error", err)
		return
	}

	c.circuits.RecordSuccess(agentID)
	if c.substrate != nil {
		c.substrate.Remember(agentID, models.MemoryTypeResult, result, models.MemoryMetadata{
			TaskID:      task.ID,
			ObjectiveID: task.ObjectiveID,
			Priority:    task.Priority,
			ShareLevel:  models.ShareLevelTeam,
		})
	}
	c.emit(models.EventTaskCompleted, map[string]any{
		"task_id":  taskID,
		"agent_id": agentID,
	})

	c.checkObjectiveLocked(task.ObjectiveID)
}

// failTask is the failure path: count the attempt, requeue the task while
// retries remain, otherwise mark it failed; free the agent either way.
func (c *Coordinator) failTask(taskID, agentID string, duration time.Duration, cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snapshot := c.store.GetState()
	task, ok := snapshot.Tasks[taskID]
	if !ok || task.Status != models.TaskStatusRunning || task.AssignedTo != agentID {
		slog.Warn("stale failure ignored", "task_id", taskID, "agent_id", agentID)
		return
	}
	agent := snapshot.Agents[agentID]

	now := time.Now()
	task.Error = cause.Error()
	retrying := task.RetryCount < task.MaxRetries
	if retrying {
		task.RetryCount++
		task.Status = models.TaskStatusPending
		task.AssignedTo = ""
		task.StartedAt = nil
	} else {
		task.Status = models.TaskStatusFailed
		task.CompletedAt = &now
	}

	agent.Status = models.AgentStatusIdle
	agent.CurrentTask = ""
	agent.Metrics.TasksFailed++
	agent.Metrics.TotalDuration += duration
	agent.Metrics.LastActivity = now

	err := c.store.Transaction([]state.Action{
		state.PutTask{Task: task},
		state.PutAgent{Agent: agent},
		state.UpdateMetrics{Update: func(m *state.Metrics) {
			if retrying {
				m.TasksRetried++
			} else {
				m.TasksFailed++
			}
		}},
	})
	if err != nil {
		slog.Error("failed to record task failure", "task_id", taskID, "error", err)
		return
	}

	c.circuits.RecordFailure(agentID)
	if c.substrate != nil {
		c.substrate.Remember(agentID, models.MemoryTypeError, cause.Error(), models.MemoryMetadata{
			TaskID:      task.ID,
			ObjectiveID: task.ObjectiveID,
			ShareLevel:  models.ShareLevelTeam,
		})
	}

	if retrying {
		// Retries are silent; exhaustion is loud.
		c.emit(models.EventTaskRetry, map[string]any{
			"task_id":     taskID,
			"agent_id":    agentID,
			"retry_count": task.RetryCount,
		})
		return
	}

	slog.Warn("task failed permanently", "task_id", taskID, "agent_id", agentID, "error", cause)
	c.emit(models.EventTaskFailed, map[string]any{
		"task_id":  taskID,
		"agent_id": agentID,
		"error":    cause.Error(),
	})
	c.failDependentsLocked(task.ID)
	c.checkObjectiveLocked(task.ObjectiveID)
}

// failDependentsLocked fails every pending task that can no longer run
// because a task in its dependency chain failed. Caller holds c.mu.
func (c *Coordinator) failDependentsLocked(failedTaskID string) {
	snapshot := c.store.GetState()
	now := time.Now()

	dead := map[string]bool{failedTaskID: true}
	for changed := true; changed; {
		changed = false
		for _, task := range snapshot.Tasks {
			if dead[task.ID] || !task.Status.IsPending() {
				continue
			}
			for _, dep := range task.Dependencies {
				if dead[dep] || snapshot.Tasks[dep].Status == models.TaskStatusFailed {
					dead[task.ID] = true
					changed = true
					break
				}
			}
		}
	}
	delete(dead, failedTaskID)

	for id := range dead {
		task := snapshot.Tasks[id]
		task.Status = models.TaskStatusFailed
		task.Error = "dependency task failed: " + failedTaskID
		task.CompletedAt = &now
		err := c.store.Transaction([]state.Action{
			state.PutTask{Task: task},
			state.UpdateMetrics{Update: func(m *state.Metrics) { m.TasksFailed++ }},
		})
		if err != nil {
			slog.Warn("failed to cascade task failure", "task_id", id, "error", err)
			continue
		}
		c.emit(models.EventTaskFailed, map[string]any{
			"task_id": id,
			"error":   task.Error,
		})
	}
}

// checkObjectiveLocked transitions the objective once every task is
// terminal: completed only when all tasks completed and every participating
// agent re-verifies; failed otherwise. Caller holds c.mu.
func (c *Coordinator) checkObjectiveLocked(objectiveID string) {
	if objectiveID == "" {
		return
	}
	snapshot := c.store.GetState()
	objective, ok := snapshot.Orchestration.Objectives[objectiveID]
	if !ok || objective.Status.IsTerminal() {
		return
	}

	allCompleted := true
	var participants []string
	seen := make(map[string]bool)
	for _, taskID := range objective.TaskIDs {
		task := snapshot.Tasks[taskID]
		if !task.Status.IsTerminal() {
			return
		}
		if task.Status == models.TaskStatusFailed {
			allCompleted = false
		}
		if task.AssignedTo != "" && !seen[task.AssignedTo] {
			seen[task.AssignedTo] = true
			participants = append(participants, task.AssignedTo)
		}
	}

	now := time.Now()
	objective.CompletedAt = &now
	objective.Status = models.ObjectiveStatusCompleted
	if !allCompleted {
		objective.Status = models.ObjectiveStatusFailed
		objective.Error = "one or more tasks failed"
	}
	// Re-verification runs whenever the objective goes terminal so the
	// report is on record even for already-failed objectives.
	if c.cfg.VerificationEnabled && c.verifier != nil {
		report := c.verifier.EnforceObjective(objectiveID, participants)
		c.recordObjectiveVerification(report)
		if !report.Passed() && objective.Status == models.ObjectiveStatusCompleted {
			objective.Status = models.ObjectiveStatusFailed
			objective.Error = "objective verification failed"
		}
	}

	err := c.store.Transaction([]state.Action{
		state.PutObjective{Objective: objective},
		state.UpdateMetrics{Update: func(m *state.Metrics) {
			if objective.Status == models.ObjectiveStatusCompleted {
				m.ObjectivesCompleted++
			} else {
				m.ObjectivesFailed++
			}
		}},
	})
	if err != nil {
		slog.Error("failed to record objective transition", "objective_id", objectiveID, "error", err)
		return
	}

	kind := models.EventObjectiveCompleted
	if objective.Status == models.ObjectiveStatusFailed {
		kind = models.EventObjectiveFailed
	}
	c.emit(kind, map[string]any{
		"objective_id": objectiveID,
		"status":       string(objective.Status),
	})
}

// ReleaseAgent frees an agent outside the normal paths. Releasing an idle
// agent is a warning-level no-op; releasing a busy agent is refused while
// its task is still running.
func (c *Coordinator) ReleaseAgent(agentID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	snapshot := c.store.GetState()
	agent, ok := snapshot.Agents[agentID]
	if !ok {
		return fmt.Errorf("agent not found: %s", agentID)
	}
	if agent.IsIdle() {
		slog.Warn("release of already-idle agent ignored", "agent_id", agentID)
		return nil
	}
	if task, running := snapshot.Tasks[agent.CurrentTask]; running && task.Status == models.TaskStatusRunning {
		return &models.AgentBusyError{AgentID: agentID, CurrentTask: agent.CurrentTask}
	}

	agent.Status = models.AgentStatusIdle
	agent.CurrentTask = ""
	return c.store.Dispatch(state.PutAgent{Agent: agent})
}
