package coordinator

import (
	"context"
	"fmt"

	"github.com/dotcommander/claude-flow/internal/models"
	"github.com/dotcommander/claude-flow/internal/runner"
)

// CommandRunner executes each task by running a configured shell command
// with the task's identity in its environment. It is the production
// TaskRunner behind the CLI; tests inject in-memory runners instead.
type CommandRunner struct {
	// Exec performs the subprocess invocation.
	Exec runner.Runner
	// Command is the shell line run per task, e.g. a worker script that
	// reads CLAUDE_FLOW_TASK_DESCRIPTION and does the work.
	Command string
	// Dir is the working directory for task commands.
	Dir string
}

// Execute runs the configured command for the task. A non-zero exit is a
// task failure carrying the command's stderr.
func (r *CommandRunner) Execute(ctx context.Context, task models.Task, agent models.Agent) (string, error) {
	req := runner.Shell(r.Command)
	req.Dir = r.Dir
	req.Env = map[string]string{
		"CLAUDE_FLOW_TASK_ID":          task.ID,
		"CLAUDE_FLOW_TASK_TYPE":        task.Type,
		"CLAUDE_FLOW_TASK_DESCRIPTION": task.Description,
		"CLAUDE_FLOW_OBJECTIVE_ID":     task.ObjectiveID,
		"CLAUDE_FLOW_AGENT_ID":         agent.ID,
		"CLAUDE_FLOW_AGENT_TYPE":       string(agent.Type),
	}

	res, err := r.Exec.Run(ctx, req)
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("task command exited %d: %s", res.ExitCode, res.Stderr)
	}
	return res.Stdout, nil
}
