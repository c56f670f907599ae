package cli

import (
	"encoding/json"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/me/mudd/pkg/model"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show driver status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Get("/api/v1/status")
			if err != nil {
				return fmt.Errorf("get status: %w", err)
			}

			var st model.DriverStatus
			if err := json.Unmarshal(resp.Data, &st); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			fmt.Printf("Uptime:    %s\n", st.Uptime)
			fmt.Printf("Objects:   %s\n", humanize.Comma(int64(st.Objects)))
			fmt.Printf("Callouts:  %s short-term, %s queued\n",
				humanize.Comma(int64(st.NShort)), humanize.Comma(int64(st.NLong)))
			switch {
			case st.NextDelay < 0:
				fmt.Printf("Next fire: none pending\n")
			case st.NextDelay == 0:
				fmt.Printf("Next fire: now\n")
			default:
				fmt.Printf("Next fire: in %.3fs\n", st.NextDelay)
			}
			fmt.Printf("Swap rate: %d/min, %d/5min\n", st.SwapRate1, st.SwapRate5)
			return nil
		},
	}
}
