package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/me/mudd/pkg/model"
	"github.com/spf13/cobra"
)

func newObjectsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "objects",
		Short: "Manage scripted objects",
	}
	cmd.AddCommand(newObjectsListCmd(), newObjectsCreateCmd())
	return cmd
}

func newObjectsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List scripted objects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Get("/api/v1/objects/")
			if err != nil {
				return fmt.Errorf("list objects: %w", err)
			}

			var objs []model.Object
			if err := json.Unmarshal(resp.Data, &objs); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			if len(objs) == 0 {
				fmt.Println("No objects.")
				return nil
			}
			fmt.Printf("%-6s %-20s %-10s %s\n", "ID", "NAME", "SOURCE", "CREATED")
			for _, o := range objs {
				fmt.Printf("%-6d %-20s %-10s %s\n",
					o.ID, o.Name, humanize.Bytes(uint64(len(o.Source))), humanize.Time(o.CreatedAt))
			}
			return nil
		},
	}
}

func newObjectsCreateCmd() *cobra.Command {
	var sourceFile string

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a scripted object from a JavaScript source file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := os.ReadFile(sourceFile)
			if err != nil {
				return fmt.Errorf("read source: %w", err)
			}

			resp, err := client.Post("/api/v1/objects/", map[string]any{
				"name":   args[0],
				"source": string(source),
			})
			if err != nil {
				return fmt.Errorf("create object: %w", err)
			}

			var obj model.Object
			if err := json.Unmarshal(resp.Data, &obj); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}
			fmt.Printf("Created object %s (id %d)\n", obj.Name, obj.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&sourceFile, "source", "", "Path to the JavaScript source file (required)")
	cmd.MarkFlagRequired("source")
	return cmd
}
