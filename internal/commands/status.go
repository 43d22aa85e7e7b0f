package commands

import (
	"github.com/spf13/cobra"
)

// NewStatusCmd prints the swarm's persisted state summary.
func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show swarm state: agents, tasks, objectives, memory",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := buildStack(ctx)
			if err != nil {
				return fail(err)
			}
			defer s.close(ctx)

			return printSuccess(s.coord.Stats())
		},
	}
}
