package commands

import (
	"github.com/spf13/cobra"

	"github.com/dotcommander/claude-flow/internal/models"
)

// NewMemoryCmd queries the persisted memory substrate.
func NewMemoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Query persisted swarm memory",
	}
	cmd.AddCommand(newMemoryQueryCmd())
	cmd.AddCommand(newMemoryStatsCmd())
	return cmd
}

func newMemoryQueryCmd() *cobra.Command {
	var agentID, entryType, taskID, objectiveID string
	var limit int

	cmd := &cobra.Command{
		Use:   "query",
		Short: "List memory entries, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := buildStack(ctx)
			if err != nil {
				return fail(err)
			}
			defer s.close(ctx)

			entries, err := s.backend.LoadEntries(ctx)
			if err != nil {
				return fail(err)
			}

			filtered := make([]models.MemoryEntry, 0, len(entries))
			// LoadEntries is oldest-first; walk backwards for newest-first.
			for i := len(entries) - 1; i >= 0; i-- {
				e := entries[i]
				if agentID != "" && e.AgentID != agentID {
					continue
				}
				if entryType != "" && string(e.Type) != entryType {
					continue
				}
				if taskID != "" && e.Metadata.TaskID != taskID {
					continue
				}
				if objectiveID != "" && e.Metadata.ObjectiveID != objectiveID {
					continue
				}
				filtered = append(filtered, e)
				if limit > 0 && len(filtered) >= limit {
					break
				}
			}
			return printSuccess(filtered)
		},
	}

	cmd.Flags().StringVar(&agentID, "agent", "", "Filter by agent id")
	cmd.Flags().StringVar(&entryType, "type", "", "Filter by entry type")
	cmd.Flags().StringVar(&taskID, "task", "", "Filter by task id")
	cmd.Flags().StringVar(&objectiveID, "objective", "", "Filter by objective id")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum entries returned")
	return cmd
}

func newMemoryStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show memory substrate statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := buildStack(ctx)
			if err != nil {
				return fail(err)
			}
			defer s.close(ctx)

			entries, err := s.backend.LoadEntries(ctx)
			if err != nil {
				return fail(err)
			}
			byAgent := make(map[string]int)
			byType := make(map[string]int)
			for _, e := range entries {
				byAgent[e.AgentID]++
				byType[string(e.Type)]++
			}
			type resp struct {
				Entries int            `json:"entries"`
				ByAgent map[string]int `json:"by_agent"`
				ByType  map[string]int `json:"by_type"`
			}
			return printSuccess(resp{Entries: len(entries), ByAgent: byAgent, ByType: byType})
		},
	}
}
