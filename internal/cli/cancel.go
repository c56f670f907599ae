package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <object> <handle>",
		Short: "Cancel a pending callout",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := strconv.ParseUint(args[1], 10, 16); err != nil {
				return fmt.Errorf("handle must be a 16-bit integer: %w", err)
			}

			if _, err := client.Delete("/api/v1/callouts/" + args[0] + "/" + args[1]); err != nil {
				return fmt.Errorf("cancel: %w", err)
			}
			fmt.Printf("Cancelled %s handle %s\n", args[0], args[1])
			return nil
		},
	}
}
