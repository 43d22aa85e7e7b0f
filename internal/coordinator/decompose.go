package coordinator

import (
	"time"

	"github.com/dotcommander/claude-flow/internal/models"
	"github.com/dotcommander/claude-flow/internal/state"
)

// taskTemplate declares one task of a decomposition template. Dependencies
// reference earlier template entries by index.
type taskTemplate struct {
	taskType  string
	label     string
	priority  int
	dependsOn []int
}

// templates maps each strategy to its fixed task pipeline. Auto is the
// canonical five-step pipeline; development fans documentation out beside
// testing and joins both at review.
var templates = map[models.Strategy][]taskTemplate{
	models.StrategyAuto: {
		{taskType: "exploration", label: "exploration", priority: 1},
		{taskType: "planning", label: "planning", priority: 2, dependsOn: []int{0}},
		{taskType: "execution", label: "execution", priority: 3, dependsOn: []int{1}},
		{taskType: "validation", label: "validation", priority: 4, dependsOn: []int{2}},
		{taskType: "completion", label: "completion", priority: 5, dependsOn: []int{3}},
	},
	models.StrategyResearch: {
		{taskType: "research", label: "research", priority: 1},
		{taskType: "analysis", label: "analysis", priority: 2, dependsOn: []int{0}},
		{taskType: "synthesis", label: "synthesis", priority: 3, dependsOn: []int{1}},
	},
	models.StrategyDevelopment: {
		{taskType: "planning", label: "planning", priority: 1},
		{taskType: "implementation", label: "implementation", priority: 2, dependsOn: []int{0}},
		{taskType: "testing", label: "testing", priority: 3, dependsOn: []int{1}},
		{taskType: "documentation", label: "documentation", priority: 2, dependsOn: []int{1}},
		{taskType: "review", label: "review", priority: 4, dependsOn: []int{2, 3}},
	},
	models.StrategyAnalysis: {
		{taskType: "collection", label: "collection", priority: 1},
		{taskType: "analysis", label: "analysis", priority: 2, dependsOn: []int{0}},
		{taskType: "reporting", label: "reporting", priority: 3, dependsOn: []int{1}},
	},
}

// CreateObjective decomposes the objective per its strategy and registers
// it with its tasks in one transaction. A dependency error at decomposition
// is fatal: nothing is registered and the structured error is returned.
func (c *Coordinator) CreateObjective(description string, strategy models.Strategy) (models.Objective, error) {
	if description == "" {
		return models.Objective{}, &models.InvalidObjectiveError{Reason: "description is required"}
	}
	if !strategy.Valid() {
		return models.Objective{}, &models.InvalidStrategyError{Strategy: string(strategy)}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.draining || !c.started {
		return models.Objective{}, &models.InvalidObjectiveError{Reason: "coordinator is not accepting objectives"}
	}

	now := time.Now()
	objective := models.Objective{
		ID:          models.NewID("obj"),
		Description: description,
		Strategy:    strategy,
		Status:      models.ObjectiveStatusPlanning,
		CreatedAt:   now,
	}

	tasks := c.expandTemplate(objective.ID, description, templates[strategy], now)
	if len(tasks) == 0 {
		return models.Objective{}, &models.InvalidObjectiveError{Reason: "decomposition produced no tasks"}
	}
	if err := validateDependencies(objective.ID, tasks); err != nil {
		return models.Objective{}, err
	}

	actions := make([]state.Action, 0, len(tasks)+1)
	for _, task := range tasks {
		objective.TaskIDs = append(objective.TaskIDs, task.ID)
		actions = append(actions, state.PutTask{Task: task})
	}
	objective.Status = models.ObjectiveStatusExecuting
	actions = append(actions, state.PutObjective{Objective: objective})

	if err := c.store.Transaction(actions); err != nil {
		return models.Objective{}, err
	}

	c.emit(models.EventObjectiveCreated, map[string]any{
		"objective_id": objective.ID,
		"strategy":     string(strategy),
		"tasks":        len(tasks),
	})
	c.emit(models.EventObjectiveStarted, map[string]any{"objective_id": objective.ID})
	return objective, nil
}

func (c *Coordinator) expandTemplate(objectiveID, description string, tmpl []taskTemplate, now time.Time) []models.Task {
	tasks := make([]models.Task, len(tmpl))
	for i, t := range tmpl {
		tasks[i] = models.Task{
			ID:          models.NewID("task"),
			ObjectiveID: objectiveID,
			Type:        t.taskType,
			Description: t.label + ": " + description,
			Priority:    t.priority,
			Status:      models.TaskStatusPending,
			MaxRetries:  c.cfg.MaxRetries,
			Timeout:     c.cfg.TaskTimeout,
			CreatedAt:   now,
		}
	}
	for i, t := range tmpl {
		for _, dep := range t.dependsOn {
			tasks[i].Dependencies = append(tasks[i].Dependencies, tasks[dep].ID)
		}
	}
	return tasks
}

// SubmitTask registers a standalone task outside any objective. Unknown
// dependencies are rejected; the dispatcher picks the task up once its
// dependencies complete.
func (c *Coordinator) SubmitTask(taskType, description string, priority int, dependencies []string) (models.Task, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.draining || !c.started {
		return models.Task{}, &models.InvalidObjectiveError{Reason: "coordinator is not accepting tasks"}
	}

	snapshot := c.store.GetState()
	task := models.Task{
		ID:           models.NewID("task"),
		Type:         taskType,
		Description:  description,
		Priority:     priority,
		Dependencies: dependencies,
		Status:       models.TaskStatusPending,
		MaxRetries:   c.cfg.MaxRetries,
		Timeout:      c.cfg.TaskTimeout,
		CreatedAt:    time.Now(),
	}
	for _, dep := range dependencies {
		if _, ok := snapshot.Tasks[dep]; !ok {
			return models.Task{}, &models.DependencyError{TaskID: task.ID, DependsOn: dep}
		}
	}

	if err := c.store.Dispatch(state.PutTask{Task: task}); err != nil {
		return models.Task{}, err
	}
	return task, nil
}

// validateDependencies rejects references to unknown tasks, self-references,
// and cycles. Cycle detection is a BFS from each dependency looking for a
// path back to the depending task, bounded to guard against runaway graphs.
func validateDependencies(objectiveID string, tasks []models.Task) error {
	const maxNodes = 1000

	byID := make(map[string]models.Task, len(tasks))
	for _, task := range tasks {
		byID[task.ID] = task
	}

	for _, task := range tasks {
		for _, dep := range task.Dependencies {
			if dep == task.ID {
				return &models.DependencyError{ObjectiveID: objectiveID, TaskID: task.ID, DependsOn: dep, Cycle: true}
			}
			if _, ok := byID[dep]; !ok {
				return &models.DependencyError{ObjectiveID: objectiveID, TaskID: task.ID, DependsOn: dep}
			}

			visited := map[string]bool{dep: true}
			queue := []string{dep}
			examined := 0
			for len(queue) > 0 && examined < maxNodes {
				current := queue[0]
				queue = queue[1:]
				examined++
				for _, next := range byID[current].Dependencies {
					if next == task.ID {
						return &models.DependencyError{ObjectiveID: objectiveID, TaskID: task.ID, DependsOn: dep, Cycle: true}
					}
					if !visited[next] {
						visited[next] = true
						queue = append(queue, next)
					}
				}
			}
		}
	}
	return nil
}
