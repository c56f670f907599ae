package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSnapshotCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot",
		Short: "Dump the callout table to the configured snapshot file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := client.Post("/api/v1/snapshot", nil); err != nil {
				return fmt.Errorf("snapshot: %w", err)
			}
			fmt.Println("Snapshot written.")
			return nil
		},
	}
}
