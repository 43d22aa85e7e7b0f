package commands

import (
	"sort"

	"github.com/spf13/cobra"

	"github.com/dotcommander/claude-flow/internal/models"
)

// NewTaskCmd inspects persisted tasks.
func NewTaskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Inspect tasks",
	}
	cmd.AddCommand(newTaskListCmd())
	return cmd
}

func newTaskListCmd() *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks, optionally filtered by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := buildStack(ctx)
			if err != nil {
				return fail(err)
			}
			defer s.close(ctx)

			snapshot := s.store.GetState()
			tasks := make([]models.Task, 0, len(snapshot.Tasks))
			for _, task := range snapshot.Tasks {
				if status != "" && string(task.Status) != status {
					continue
				}
				tasks = append(tasks, task)
			}
			sort.Slice(tasks, func(i, j int) bool {
				if tasks[i].Priority != tasks[j].Priority {
					return tasks[i].Priority > tasks[j].Priority
				}
				return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
			})
			return printSuccess(tasks)
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status (pending, running, completed, failed)")
	return cmd
}
