package commands

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/dotcommander/claude-flow/internal/app"
	"github.com/dotcommander/claude-flow/internal/batch"
	"github.com/dotcommander/claude-flow/internal/breaker"
	"github.com/dotcommander/claude-flow/internal/coordinator"
	"github.com/dotcommander/claude-flow/internal/events"
	"github.com/dotcommander/claude-flow/internal/memory"
	"github.com/dotcommander/claude-flow/internal/models"
	"github.com/dotcommander/claude-flow/internal/persist"
	"github.com/dotcommander/claude-flow/internal/runner"
	"github.com/dotcommander/claude-flow/internal/state"
	"github.com/dotcommander/claude-flow/internal/verify"
	"github.com/dotcommander/claude-flow/pkg/bounded"
)

// stack is the fully wired runtime behind each CLI invocation: persistence
// backends, state store, memory substrate, and coordinator.
type stack struct {
	settings  app.CoordinatorSettings
	backend   *persist.Multi
	store     *state.Store
	bus       *events.Bus
	substrate *memory.Substrate
	circuits  *breaker.CircuitBreaker
	stealer   *breaker.WorkStealer
	verifier  *verify.Verifier
	monitor   *bounded.PressureMonitor
	coord     *coordinator.Coordinator
}

// buildStack wires the runtime from settings and loads any persisted state.
func buildStack(ctx context.Context) (*stack, error) {
	settings := app.EffectiveCoordinatorSettings()

	dbPath, err := app.GetDBPath()
	if err != nil {
		return nil, err
	}
	sqlite, err := persist.NewSQLiteBackend(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite backend: %w", err)
	}
	file, err := persist.NewFileBackend(filepath.Join(app.DataDir(), "state"))
	if err != nil {
		_ = sqlite.Close()
		return nil, fmt.Errorf("failed to open file backend: %w", err)
	}
	backend, err := persist.NewMulti("sqlite", sqlite, file)
	if err != nil {
		_ = sqlite.Close()
		return nil, err
	}

	bus := events.NewBus()
	store := state.New(backend)
	if _, err := store.LoadPersisted(ctx); err != nil {
		return nil, fmt.Errorf("failed to load persisted state: %w", err)
	}

	memCfg := memory.DefaultConfig()
	memCfg.MaxEntries = settings.MemoryMaxEntries
	memCfg.Batch = batch.DefaultConfig()
	substrate := memory.New(memCfg, backend, bus)

	circuits := breaker.New(breaker.Config{
		FailureThreshold: settings.BreakerThreshold,
		ResetTimeout:     settings.BreakerReset,
	})
	stealer := breaker.NewWorkStealer()
	verifier := verify.New(verify.Config{
		StatusDir: settings.StatusDir,
		FailFast:  true,
	}, runner.NewExec())

	cfg := coordinator.Config{
		SwarmName:           settings.SwarmName,
		BackgroundInterval:  settings.BackgroundInterval,
		HealthCheckInterval: settings.HealthInterval,
		RebalanceInterval:   settings.RebalanceInterval,
		TaskTimeout:         settings.TaskTimeout,
		MaxRetries:          settings.MaxRetries,
		VerificationEnabled: settings.VerificationEnabled,
		VerifyCommands:      verify.DefaultCommands(settings.VerifyFocus),
	}
	taskRunner := &coordinator.CommandRunner{
		Exec:    runner.NewExec(),
		Command: settings.TaskCommand,
	}

	// Pressure monitor: truncate the substrate when the heap passes 512MB.
	monitor := bounded.NewPressureMonitor(30*time.Second, 512<<20)
	monitor.OnPressure(substrate.Pressure)

	return &stack{
		settings:  settings,
		backend:   backend,
		store:     store,
		bus:       bus,
		substrate: substrate,
		circuits:  circuits,
		stealer:   stealer,
		verifier:  verifier,
		monitor:   monitor,
		coord: coordinator.New(cfg, store, substrate, circuits, stealer,
			verifier, bus, taskRunner),
	}, nil
}

// close persists final state and releases resources.
func (s *stack) close(ctx context.Context) {
	s.monitor.Stop()
	s.substrate.Flush()
	_ = s.store.Persist(ctx)
	s.substrate.Close()
	s.store.Close()
	s.bus.Close()
	_ = s.backend.Close()
}

// logEvents mirrors bus events onto stderr for operator visibility while a
// swarm runs in the foreground.
func (s *stack) logEvents(kinds ...string) func() {
	ch, unsub := s.bus.Subscribe(kinds...)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range ch {
			data := make([]any, 0, len(ev.Data)*2+2)
			data = append(data, "kind", ev.Kind)
			for k, v := range ev.Data {
				data = append(data, k, v)
			}
			logEvent(data...)
		}
	}()
	return func() {
		unsub()
		<-done
	}
}

func logEvent(args ...any) {
	slog.Info("swarm event", args...)
}

// agentTypeFlag parses a --type flag value.
func agentTypeFlag(value string) (models.AgentType, error) {
	t := models.AgentType(value)
	if !t.Valid() {
		return "", fmt.Errorf("unknown agent type %q (supported: researcher, developer, analyzer, coordinator, reviewer)", value)
	}
	return t, nil
}
