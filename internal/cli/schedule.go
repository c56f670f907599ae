package cli

import (
	"encoding/json"
	"fmt"

	"github.com/me/mudd/pkg/model"
	"github.com/spf13/cobra"
)

func newScheduleCmd() *cobra.Command {
	var (
		delaySec int32
		delayMs  int32
		argsJSON string
	)

	cmd := &cobra.Command{
		Use:   "schedule <object> <method>",
		Short: "Schedule a callout on an object",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := model.ScheduleRequest{
				Object:   args[0],
				Method:   args[1],
				DelaySec: delaySec,
			}
			if delayMs >= 0 {
				ms := uint16(delayMs)
				req.DelayMs = &ms
			}
			if argsJSON != "" {
				if err := json.Unmarshal([]byte(argsJSON), &req.Args); err != nil {
					return fmt.Errorf("parse --args: %w", err)
				}
			}

			resp, err := client.Post("/api/v1/callouts/", req)
			if err != nil {
				return fmt.Errorf("schedule: %w", err)
			}

			var res model.ScheduleResult
			if err := json.Unmarshal(resp.Data, &res); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}
			fmt.Printf("Scheduled %s.%s (handle %d)\n", res.Object, args[1], res.Handle)
			return nil
		},
	}

	cmd.Flags().Int32Var(&delaySec, "delay", 0, "Delay in whole seconds")
	cmd.Flags().Int32Var(&delayMs, "delay-ms", -1, "Additional millisecond delay (-1 for second precision)")
	cmd.Flags().StringVar(&argsJSON, "args", "", "Method arguments as a JSON array")
	return cmd
}
