package cli

import (
	"encoding/json"
	"fmt"

	"github.com/me/mudd/pkg/model"
	"github.com/spf13/cobra"
)

func newCalloutsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "callouts",
		Short: "List pending callouts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Get("/api/v1/callouts/")
			if err != nil {
				return fmt.Errorf("list callouts: %w", err)
			}

			var cos []model.CalloutView
			if err := json.Unmarshal(resp.Data, &cos); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			if len(cos) == 0 {
				fmt.Println("No pending callouts.")
				return nil
			}
			fmt.Printf("%-20s %-8s %-20s %s\n", "OBJECT", "HANDLE", "METHOD", "LEFT")
			for _, co := range cos {
				fmt.Printf("%-20s %-8d %-20s %.3fs\n", co.Object, co.Handle, co.Method, co.Left)
			}
			return nil
		},
	}
}
