package commands

import (
	"github.com/spf13/cobra"
)

// NewSnapshotCmd manages full-state snapshots.
func NewSnapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Save, list, restore, and delete state snapshots",
	}
	cmd.AddCommand(newSnapshotSaveCmd())
	cmd.AddCommand(newSnapshotListCmd())
	cmd.AddCommand(newSnapshotRestoreCmd())
	cmd.AddCommand(newSnapshotDeleteCmd())
	return cmd
}

func newSnapshotSaveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "save",
		Short: "Snapshot the current state to all backends",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := buildStack(ctx)
			if err != nil {
				return fail(err)
			}
			defer s.close(ctx)

			snap, err := s.store.Snapshot()
			if err != nil {
				return fail(err)
			}
			if err := s.backend.SaveSnapshot(ctx, snap); err != nil {
				return fail(err)
			}

			type resp struct {
				ID        string `json:"id"`
				Timestamp string `json:"timestamp"`
			}
			return printSuccess(resp{ID: snap.ID, Timestamp: snap.Timestamp.Format("2006-01-02T15:04:05Z07:00")})
		},
	}
}

func newSnapshotListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := buildStack(ctx)
			if err != nil {
				return fail(err)
			}
			defer s.close(ctx)

			snaps, err := s.backend.ListSnapshots(ctx)
			if err != nil {
				return fail(err)
			}
			type item struct {
				ID        string `json:"id"`
				Timestamp string `json:"timestamp"`
				Version   string `json:"version"`
			}
			items := make([]item, 0, len(snaps))
			for _, snap := range snaps {
				items = append(items, item{
					ID:        snap.ID,
					Timestamp: snap.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
					Version:   snap.Version,
				})
			}
			return printSuccess(items)
		},
	}
}

func newSnapshotRestoreCmd() *cobra.Command {
	var id string

	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Replace the current state with a snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := buildStack(ctx)
			if err != nil {
				return fail(err)
			}
			defer s.close(ctx)

			snap, err := s.backend.LoadSnapshot(ctx, id)
			if err != nil {
				return fail(err)
			}
			if err := s.store.Restore(snap); err != nil {
				return fail(err)
			}
			if err := s.store.Persist(ctx); err != nil {
				return fail(err)
			}

			type resp struct {
				Restored string `json:"restored"`
			}
			return printSuccess(resp{Restored: snap.ID})
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Snapshot id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func newSnapshotDeleteCmd() *cobra.Command {
	var id string

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a snapshot from all backends",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := buildStack(ctx)
			if err != nil {
				return fail(err)
			}
			defer s.close(ctx)

			if err := s.backend.DeleteSnapshot(ctx, id); err != nil {
				return fail(err)
			}
			type resp struct {
				Deleted string `json:"deleted"`
			}
			return printSuccess(resp{Deleted: id})
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Snapshot id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}
