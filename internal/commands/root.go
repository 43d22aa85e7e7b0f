package commands

import (
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dotcommander/claude-flow/internal/app"
	"github.com/dotcommander/claude-flow/internal/output"
)

// printedError marks errors already rendered as a JSON envelope so the
// root handler does not log them twice.
type printedError struct{ err error }

func (p printedError) Error() string { return p.err.Error() }
func (p printedError) Unwrap() error { return p.err }

// fail renders the error envelope and wraps the error as printed.
func fail(err error) error {
	_ = output.PrintError(err)
	return printedError{err: err}
}

func printSuccess(data interface{}) error {
	return output.PrintSuccess(data)
}

// Execute runs the CLI application.
func Execute(version string) error {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	root := &cobra.Command{
		Use:           "claude-flow",
		Short:         "Swarm coordination runtime (objectives, agents, tasks, memory, verification)",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			showVersion, _ := cmd.Flags().GetBool("version")
			if showVersion {
				type resp struct {
					Version string `json:"version"`
				}
				return output.PrintSuccess(resp{Version: version})
			}
			return cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := app.EnsureConfigDir(); err != nil {
				return err
			}
			if dbPath, err := cmd.Flags().GetString("db-path"); err == nil && dbPath != "" {
				app.SetDBPathOverride(dbPath)
			}
			return nil
		},
	}

	root.PersistentFlags().String("db-path", "", "Override persistence database path")
	root.Flags().BoolP("version", "v", false, "version for claude-flow")

	root.AddCommand(NewAgentCmd())
	root.AddCommand(NewObjectiveCmd())
	root.AddCommand(NewTaskCmd())
	root.AddCommand(NewRunCmd())
	root.AddCommand(NewStatusCmd())
	root.AddCommand(NewMemoryCmd())
	root.AddCommand(NewSnapshotCmd())

	err := root.Execute()
	if err != nil {
		var pe printedError
		if !errors.As(err, &pe) {
			slog.Default().Error("command failed", "error", err.Error())
		}
	}
	return err
}
