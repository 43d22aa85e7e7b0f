package commands

import (
	"sort"

	"github.com/spf13/cobra"

	"github.com/dotcommander/claude-flow/internal/models"
)

// NewObjectiveCmd inspects persisted objectives.
func NewObjectiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "objective",
		Short: "Inspect objectives",
	}
	cmd.AddCommand(newObjectiveListCmd())
	cmd.AddCommand(newObjectiveShowCmd())
	return cmd
}

func newObjectiveListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List objectives",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := buildStack(ctx)
			if err != nil {
				return fail(err)
			}
			defer s.close(ctx)

			snapshot := s.store.GetState()
			objectives := make([]models.Objective, 0, len(snapshot.Orchestration.Objectives))
			for _, obj := range snapshot.Orchestration.Objectives {
				objectives = append(objectives, obj)
			}
			sort.Slice(objectives, func(i, j int) bool {
				return objectives[i].CreatedAt.Before(objectives[j].CreatedAt)
			})
			return printSuccess(objectives)
		},
	}
}

func newObjectiveShowCmd() *cobra.Command {
	var id string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show an objective with its tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := buildStack(ctx)
			if err != nil {
				return fail(err)
			}
			defer s.close(ctx)

			snapshot := s.store.GetState()
			obj, ok := snapshot.Orchestration.Objectives[id]
			if !ok {
				return fail(&models.InvalidObjectiveError{Reason: "objective not found: " + id})
			}

			type resp struct {
				Objective models.Objective `json:"objective"`
				Tasks     []models.Task    `json:"tasks"`
			}
			out := resp{Objective: obj}
			for _, taskID := range obj.TaskIDs {
				if task, ok := snapshot.Tasks[taskID]; ok {
					out.Tasks = append(out.Tasks, task)
				}
			}
			return printSuccess(out)
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Objective id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}
