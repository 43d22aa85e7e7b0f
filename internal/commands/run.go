package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dotcommander/claude-flow/internal/models"
)

// NewRunCmd runs one objective to completion in the foreground.
func NewRunCmd() *cobra.Command {
	var description, strategy string
	var waitTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Create an objective and run the swarm until it is terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := buildStack(ctx)
			if err != nil {
				return fail(err)
			}
			defer s.close(ctx)

			if len(s.store.GetState().Agents) == 0 {
				return fail(&models.InvalidObjectiveError{
					Reason: "no agents registered; run 'claude-flow agent add' first",
				})
			}

			stopLogging := s.logEvents(
				models.EventTaskAssigned, models.EventTaskCompleted,
				models.EventTaskFailed, models.EventTaskRetry,
				models.EventObjectiveCompleted, models.EventObjectiveFailed,
				models.EventMonitorAlert,
			)
			defer stopLogging()

			s.monitor.Start(ctx)
			if err := s.coord.Start(ctx); err != nil {
				return fail(err)
			}

			objective, err := s.coord.CreateObjective(description, models.Strategy(strategy))
			if err != nil {
				_ = s.coord.Stop(ctx)
				return fail(err)
			}

			deadline := time.Now().Add(waitTimeout)
			ticker := time.NewTicker(100 * time.Millisecond)
			defer ticker.Stop()
			for {
				obj, _ := s.coord.Objective(objective.ID)
				if obj.Status.IsTerminal() {
					break
				}
				if time.Now().After(deadline) {
					_ = s.coord.Stop(ctx)
					return fail(fmt.Errorf("objective %s still %s after %s", objective.ID, obj.Status, waitTimeout))
				}
				select {
				case <-ctx.Done():
					_ = s.coord.Stop(ctx)
					return fail(ctx.Err())
				case <-ticker.C:
				}
			}

			if err := s.coord.Stop(ctx); err != nil {
				return fail(err)
			}

			obj, _ := s.coord.Objective(objective.ID)
			type resp struct {
				Objective models.Objective `json:"objective"`
				Tasks     []models.Task    `json:"tasks"`
			}
			out := resp{Objective: obj}
			for _, taskID := range obj.TaskIDs {
				if task, ok := s.coord.Task(taskID); ok {
					out.Tasks = append(out.Tasks, task)
				}
			}
			return printSuccess(out)
		},
	}

	cmd.Flags().StringVar(&description, "description", "", "Objective description")
	cmd.Flags().StringVar(&strategy, "strategy", "auto", "Strategy (auto, research, development, analysis)")
	cmd.Flags().DurationVar(&waitTimeout, "wait", 30*time.Minute, "Maximum time to wait for completion")
	_ = cmd.MarkFlagRequired("description")
	return cmd
}
