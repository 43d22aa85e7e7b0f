package state

import (
	"fmt"

	"github.com/dotcommander/claude-flow/internal/models"
)

// PutAgent inserts or replaces an agent.
type PutAgent struct {
	Agent models.Agent
}

func (a PutAgent) Name() string { return "agent/put" }

func (a PutAgent) Apply(s *Unified) (string, any, any, error) {
	if a.Agent.ID == "" {
		return "", nil, nil, fmt.Errorf("agent id is required")
	}
	path := "agents." + a.Agent.ID
	var prev any
	if old, ok := s.Agents[a.Agent.ID]; ok {
		prev = old
	}
	s.Agents[a.Agent.ID] = a.Agent
	return path, prev, a.Agent, nil
}

// RemoveAgent deletes an agent.
type RemoveAgent struct {
	AgentID string
}

func (a RemoveAgent) Name() string { return "agent/remove" }

func (a RemoveAgent) Apply(s *Unified) (string, any, any, error) {
	path := "agents." + a.AgentID
	old, ok := s.Agents[a.AgentID]
	if !ok {
		return "", nil, nil, fmt.Errorf("agent not found: %s", a.AgentID)
	}
	delete(s.Agents, a.AgentID)
	return path, old, nil, nil
}

// PutTask inserts or replaces a task.
type PutTask struct {
	Task models.Task
}

func (a PutTask) Name() string { return "task/put" }

func (a PutTask) Apply(s *Unified) (string, any, any, error) {
	if a.Task.ID == "" {
		return "", nil, nil, fmt.Errorf("task id is required")
	}
	path := "tasks." + a.Task.ID
	var prev any
	if old, ok := s.Tasks[a.Task.ID]; ok {
		prev = old
	}
	s.Tasks[a.Task.ID] = a.Task
	return path, prev, a.Task, nil
}

// RemoveTask deletes a task.
type RemoveTask struct {
	TaskID string
}

func (a RemoveTask) Name() string { return "task/remove" }

func (a RemoveTask) Apply(s *Unified) (string, any, any, error) {
	path := "tasks." + a.TaskID
	old, ok := s.Tasks[a.TaskID]
	if !ok {
		return "", nil, nil, fmt.Errorf("task not found: %s", a.TaskID)
	}
	delete(s.Tasks, a.TaskID)
	return path, old, nil, nil
}

// PutObjective inserts or replaces an objective.
type PutObjective struct {
	Objective models.Objective
}

func (a PutObjective) Name() string { return "objective/put" }

func (a PutObjective) Apply(s *Unified) (string, any, any, error) {
	if a.Objective.ID == "" {
		return "", nil, nil, fmt.Errorf("objective id is required")
	}
	path := "orchestration.objectives." + a.Objective.ID
	var prev any
	if old, ok := s.Orchestration.Objectives[a.Objective.ID]; ok {
		prev = old
	}
	s.Orchestration.Objectives[a.Objective.ID] = a.Objective
	return path, prev, a.Objective, nil
}

// PutSession inserts or replaces a session record.
type PutSession struct {
	Session Session
}

func (a PutSession) Name() string { return "session/put" }

func (a PutSession) Apply(s *Unified) (string, any, any, error) {
	if a.Session.ID == "" {
		return "", nil, nil, fmt.Errorf("session id is required")
	}
	path := "sessions." + a.Session.ID
	var prev any
	if old, ok := s.Sessions[a.Session.ID]; ok {
		prev = old
	}
	s.Sessions[a.Session.ID] = a.Session
	return path, prev, a.Session, nil
}

// SetSwarm replaces the swarm metadata.
type SetSwarm struct {
	Swarm SwarmMeta
}

func (a SetSwarm) Name() string { return "swarm/set" }

func (a SetSwarm) Apply(s *Unified) (string, any, any, error) {
	prev := s.Swarm
	s.Swarm = a.Swarm
	return "swarm", prev, a.Swarm, nil
}

// SetHealth replaces the health view.
type SetHealth struct {
	Health Health
}

func (a SetHealth) Name() string { return "health/set" }

func (a SetHealth) Apply(s *Unified) (string, any, any, error) {
	prev := s.Health
	s.Health = a.Health
	return "health", prev, a.Health, nil
}

// UpdateMetrics applies a delta function to the metrics counters.
type UpdateMetrics struct {
	Update func(m *Metrics)
}

func (a UpdateMetrics) Name() string { return "metrics/update" }

func (a UpdateMetrics) Apply(s *Unified) (string, any, any, error) {
	if a.Update == nil {
		return "", nil, nil, fmt.Errorf("metrics update function is required")
	}
	prev := s.Metrics
	a.Update(&s.Metrics)
	return "metrics", prev, s.Metrics, nil
}

// SetMemoryStats replaces the substrate footprint view.
type SetMemoryStats struct {
	Stats MemoryStats
}

func (a SetMemoryStats) Name() string { return "memory/stats" }

func (a SetMemoryStats) Apply(s *Unified) (string, any, any, error) {
	prev := s.Memory
	s.Memory = a.Stats
	return "memory", prev, a.Stats, nil
}

// SetConfig sets one config key.
type SetConfig struct {
	Key   string
	Value string
}

func (a SetConfig) Name() string { return "config/set" }

func (a SetConfig) Apply(s *Unified) (string, any, any, error) {
	if a.Key == "" {
		return "", nil, nil, fmt.Errorf("config key is required")
	}
	path := "config." + a.Key
	var prev any
	if old, ok := s.Config[a.Key]; ok {
		prev = old
	}
	s.Config[a.Key] = a.Value
	return path, prev, a.Value, nil
}
