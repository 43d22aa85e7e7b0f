package models

// Event kinds emitted by the coordinator and its subsystems. Subscribers
// must tolerate slow sinks; the bus drops rather than blocks (see
// internal/events).
const (
	EventCoordinatorStarted = "coordinator:started"
	EventCoordinatorStopped = "coordinator:stopped"
	EventCoordinatorCleanup = "coordinator:cleanup"

	EventObjectiveCreated   = "objective:created"
	EventObjectiveStarted   = "objective:started"
	EventObjectiveCompleted = "objective:completed"
	EventObjectiveFailed    = "objective:failed"

	EventTaskAssigned  = "task:assigned"
	EventTaskCompleted = "task:completed"
	EventTaskFailed    = "task:failed"
	EventTaskRetry     = "task:retry"

	EventAgentRegistered = "agent:registered"
	EventAgentMessage    = "agent:message"

	EventMemoryAdded   = "memory:added"
	EventMemoryShared  = "memory:shared"
	EventMemoryCleaned = "memory:cleaned"
	EventMemorySynced  = "memory:synced"
	EventMemoryEvicted = "memory:evicted"

	EventMonitorAlert = "monitor:alert"
)
