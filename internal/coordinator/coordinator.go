// Package coordinator is the swarm scheduler: it decomposes objectives into
// dependency-gated tasks, binds ready tasks to idle agents, executes them
// through the injected task runner under retry and timeout policies, and
// gates completion on the verification pipeline.
//
// All state mutations funnel through the state store behind the
// coordinator's mutex, so the swarm observes one change at a time.
package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dotcommander/claude-flow/internal/breaker"
	"github.com/dotcommander/claude-flow/internal/events"
	"github.com/dotcommander/claude-flow/internal/memory"
	"github.com/dotcommander/claude-flow/internal/models"
	"github.com/dotcommander/claude-flow/internal/state"
	"github.com/dotcommander/claude-flow/internal/verify"
)

// TaskRunner executes one task on one agent. Implementations must honour
// ctx cancellation promptly; the coordinator cancels it on timeout.
type TaskRunner interface {
	Execute(ctx context.Context, task models.Task, agent models.Agent) (string, error)
}

// Config tunes the coordinator's timers and budgets.
type Config struct {
	// SwarmName labels this swarm instance.
	SwarmName string
	// BackgroundInterval is the dispatch tick.
	BackgroundInterval time.Duration
	// HealthCheckInterval is the stuck-agent sweep tick.
	HealthCheckInterval time.Duration
	// RebalanceInterval is the work-stealing sample tick.
	RebalanceInterval time.Duration
	// TaskTimeout is the default per-task budget and the stuck threshold.
	TaskTimeout time.Duration
	// MaxRetries is the default task retry budget.
	MaxRetries int
	// DrainTimeout bounds how long Stop waits for in-flight tasks.
	DrainTimeout time.Duration
	// VerificationEnabled gates task completion on the verifier.
	VerificationEnabled bool
	// VerifyCommands are enforced for each agent on task completion when
	// verification is enabled. Empty falls back to the typescript-focus
	// default set, verify.DefaultCommands("typescript").
	VerifyCommands []models.VerificationCommand
	// VerifyWorkingDir is where verification commands run.
	VerifyWorkingDir string
}

// DefaultConfig suits an interactive swarm.
func DefaultConfig() Config {
	return Config{
		SwarmName:           "claude-flow",
		BackgroundInterval:  250 * time.Millisecond,
		HealthCheckInterval: 5 * time.Second,
		RebalanceInterval:   10 * time.Second,
		TaskTimeout:         5 * time.Minute,
		MaxRetries:          3,
		DrainTimeout:        30 * time.Second,
	}
}

// Coordinator wires the scheduler to its collaborators. Construct with New;
// the zero value is not usable.
type Coordinator struct {
	cfg       Config
	store     *state.Store
	substrate *memory.Substrate
	circuits  *breaker.CircuitBreaker
	stealer   *breaker.WorkStealer
	verifier  *verify.Verifier
	bus       *events.Bus
	runner    TaskRunner

	// mu serializes every scheduling decision and state transition.
	mu       sync.Mutex
	started  bool
	draining bool
	cancels  map[string]context.CancelFunc // task id -> runner cancel

	runCtx    context.Context
	runCancel context.CancelFunc
	tickers   sync.WaitGroup
	inflight  sync.WaitGroup
}

// New wires a coordinator. verifier may be nil only when verification is
// disabled; bus may be nil.
func New(cfg Config, store *state.Store, substrate *memory.Substrate,
	circuits *breaker.CircuitBreaker, stealer *breaker.WorkStealer,
	verifier *verify.Verifier, bus *events.Bus, taskRunner TaskRunner) *Coordinator {
	if cfg.BackgroundInterval <= 0 {
		cfg.BackgroundInterval = DefaultConfig().BackgroundInterval
	}
	if cfg.HealthCheckInterval <= 0 {
		cfg.HealthCheckInterval = DefaultConfig().HealthCheckInterval
	}
	if cfg.RebalanceInterval <= 0 {
		cfg.RebalanceInterval = DefaultConfig().RebalanceInterval
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = DefaultConfig().TaskTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = DefaultConfig().DrainTimeout
	}
	return &Coordinator{
		cfg:       cfg,
		store:     store,
		substrate: substrate,
		circuits:  circuits,
		stealer:   stealer,
		verifier:  verifier,
		bus:       bus,
		runner:    taskRunner,
		cancels:   make(map[string]context.CancelFunc),
	}
}

func (c *Coordinator) emit(kind string, data map[string]any) {
	if c.bus != nil {
		c.bus.Emit(kind, data)
	}
}

// Start registers the swarm session and launches the dispatch, health, and
// rebalance timers. Starting a started coordinator is a no-op.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	c.runCtx, c.runCancel = context.WithCancel(ctx)
	c.mu.Unlock()

	now := time.Now()
	err := c.store.Transaction([]state.Action{
		state.SetSwarm{Swarm: state.SwarmMeta{
			ID:        models.NewID("swarm"),
			Name:      c.cfg.SwarmName,
			StartedAt: now,
		}},
		state.PutSession{Session: state.Session{
			ID:        models.NewID("sess"),
			StartedAt: now,
		}},
		state.SetHealth{Health: state.Health{Healthy: true, LastCheckAt: now}},
	})
	if err != nil {
		return fmt.Errorf("failed to record session start: %w", err)
	}

	c.startTicker(c.cfg.BackgroundInterval, c.dispatchTick)
	c.startTicker(c.cfg.HealthCheckInterval, c.healthTick)
	c.startTicker(c.cfg.RebalanceInterval, c.rebalanceTick)

	c.emit(models.EventCoordinatorStarted, map[string]any{"swarm": c.cfg.SwarmName})
	return nil
}

func (c *Coordinator) startTicker(interval time.Duration, tick func()) {
	c.tickers.Add(1)
	go func() {
		defer c.tickers.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-c.runCtx.Done():
				return
			case <-ticker.C:
				tick()
			}
		}
	}()
}

// Stop drains the coordinator: timers stop, new objectives are refused,
// in-flight tasks get until DrainTimeout to finish, remaining running
// tasks are cancelled and remaining pending tasks failed, and the final
// state is persisted.
func (c *Coordinator) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.started || c.draining {
		c.mu.Unlock()
		return nil
	}
	c.draining = true
	c.mu.Unlock()

	c.runCancel()
	c.tickers.Wait()

	done := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(c.cfg.DrainTimeout):
		slog.Warn("drain timeout, cancelling in-flight tasks")
		c.mu.Lock()
		for _, cancel := range c.cancels {
			cancel()
		}
		c.mu.Unlock()
		<-done
	}

	c.failRemainingPending()
	c.emit(models.EventCoordinatorCleanup, nil)

	if c.substrate != nil {
		c.substrate.Flush()
	}
	if err := c.store.Persist(ctx); err != nil {
		slog.Warn("final state persist failed", "error", err)
	}

	c.mu.Lock()
	c.started = false
	c.mu.Unlock()

	c.emit(models.EventCoordinatorStopped, nil)
	return nil
}

// failRemainingPending marks every non-terminal, unassigned task failed at
// drain time.
func (c *Coordinator) failRemainingPending() {
	c.mu.Lock()
	defer c.mu.Unlock()

	snapshot := c.store.GetState()
	now := time.Now()
	for _, task := range snapshot.Tasks {
		if task.Status != models.TaskStatusPending {
			continue
		}
		task.Status = models.TaskStatusFailed
		task.Error = "coordinator drained before dispatch"
		task.CompletedAt = &now
		if err := c.store.Dispatch(state.PutTask{Task: task}); err != nil {
			slog.Warn("failed to fail pending task at drain", "task_id", task.ID, "error", err)
			continue
		}
		c.emit(models.EventTaskFailed, map[string]any{"task_id": task.ID, "reason": "drain"})
	}
	for _, task := range snapshot.Tasks {
		if task.ObjectiveID != "" {
			c.checkObjectiveLocked(task.ObjectiveID)
		}
	}
}

// RegisterAgent adds a worker to the pool.
func (c *Coordinator) RegisterAgent(name string, agentType models.AgentType, capabilities []string) (models.Agent, error) {
	if !agentType.Valid() {
		return models.Agent{}, fmt.Errorf("unknown agent type %q", agentType)
	}
	agent := models.Agent{
		ID:           models.NewID("agent"),
		Name:         name,
		Type:         agentType,
		Status:       models.AgentStatusIdle,
		Capabilities: capabilities,
		Metrics:      models.AgentMetrics{LastActivity: time.Now()},
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.Dispatch(state.PutAgent{Agent: agent}); err != nil {
		return models.Agent{}, err
	}
	c.emit(models.EventAgentRegistered, map[string]any{
		"agent_id": agent.ID,
		"name":     name,
		"type":     string(agentType),
	})
	return agent, nil
}

// Agent returns the agent by id.
func (c *Coordinator) Agent(id string) (models.Agent, bool) {
	agent, ok := c.store.GetState().Agents[id]
	return agent, ok
}

// Task returns the task by id.
func (c *Coordinator) Task(id string) (models.Task, bool) {
	task, ok := c.store.GetState().Tasks[id]
	return task, ok
}

// Objective returns the objective by id.
func (c *Coordinator) Objective(id string) (models.Objective, bool) {
	obj, ok := c.store.GetState().Orchestration.Objectives[id]
	return obj, ok
}

// recordObjectiveVerification persists the verification report to memory
// under a stable key so operators can audit objective acceptance.
func (c *Coordinator) recordObjectiveVerification(report verify.ObjectiveReport) {
	if c.substrate == nil {
		return
	}
	content, err := json.Marshal(report)
	if err != nil {
		slog.Warn("failed to serialize verification report", "error", err)
		return
	}
	c.substrate.Remember("coordinator", models.MemoryTypeResult, string(content), models.MemoryMetadata{
		ObjectiveID: report.ObjectiveID,
		Tags:        []string{"objective-verification"},
		Priority:    1,
		ShareLevel:  models.ShareLevelTeam,
	})
}
