package commands

import (
	"sort"

	"github.com/spf13/cobra"

	"github.com/dotcommander/claude-flow/internal/models"
	"github.com/dotcommander/claude-flow/internal/state"
)

// NewAgentCmd manages the persisted agent pool.
func NewAgentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Manage swarm agents",
	}
	cmd.AddCommand(newAgentAddCmd())
	cmd.AddCommand(newAgentListCmd())
	return cmd
}

func newAgentAddCmd() *cobra.Command {
	var name, typeName string
	var capabilities []string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register an agent in the pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			agentType, err := agentTypeFlag(typeName)
			if err != nil {
				return fail(err)
			}

			s, err := buildStack(ctx)
			if err != nil {
				return fail(err)
			}
			defer s.close(ctx)

			agent := models.Agent{
				ID:           models.NewID("agent"),
				Name:         name,
				Type:         agentType,
				Status:       models.AgentStatusIdle,
				Capabilities: capabilities,
			}
			if err := s.store.Dispatch(state.PutAgent{Agent: agent}); err != nil {
				return fail(err)
			}
			return printSuccess(agent)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Agent name")
	cmd.Flags().StringVar(&typeName, "type", "developer", "Agent type")
	cmd.Flags().StringSliceVar(&capabilities, "capability", nil, "Agent capability (repeatable)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newAgentListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := buildStack(ctx)
			if err != nil {
				return fail(err)
			}
			defer s.close(ctx)

			snapshot := s.store.GetState()
			agents := make([]models.Agent, 0, len(snapshot.Agents))
			for _, agent := range snapshot.Agents {
				agents = append(agents, agent)
			}
			sort.Slice(agents, func(i, j int) bool { return agents[i].ID < agents[j].ID })
			return printSuccess(agents)
		},
	}
}
