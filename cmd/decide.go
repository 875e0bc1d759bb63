// File: cmd/decide.go
package cmd

import (
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/iwa/api/schemas"
	"github.com/xkilldash9x/iwa/internal/observability"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	decideTaskFile     string
	decideSnapshotFile string
	decideURL          string
	decideStep         int
)

// decideCmd runs a single decision step outside the HTTP service: task
// JSON plus a snapshot file in, action JSON on stdout. Useful for replay
// and debugging of recorded sandbox steps.
var decideCmd = &cobra.Command{
	Use:   "decide",
	Short: "Run one decision step from files and print the action JSON.",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := observability.GetLogger()

		taskRaw, err := os.ReadFile(decideTaskFile)
		if err != nil {
			return fmt.Errorf("failed to read task file: %w", err)
		}
		var task schemas.Task
		if err := json.Unmarshal(taskRaw, &task); err != nil {
			return fmt.Errorf("task file is not valid task JSON: %w", err)
		}

		snapshot, err := os.ReadFile(decideSnapshotFile)
		if err != nil {
			return fmt.Errorf("failed to read snapshot file: %w", err)
		}

		url := decideURL
		if url == "" {
			url = task.URL
		}

		pipeline, closeClient, err := buildPipeline(cmd.Context(), logger)
		if err != nil {
			return err
		}
		defer closeClient()

		actions := pipeline.Decide(cmd.Context(), schemas.DecisionRequest{
			Task:         task,
			SnapshotHTML: string(snapshot),
			URL:          url,
			StepIndex:    decideStep,
		})

		out, err := json.MarshalIndent(actions, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal actions: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

func init() {
	decideCmd.Flags().StringVar(&decideTaskFile, "task", "", "path to the task JSON file (required)")
	decideCmd.Flags().StringVar(&decideSnapshotFile, "snapshot", "", "path to the HTML snapshot file (required)")
	decideCmd.Flags().StringVar(&decideURL, "url", "", "current page URL (defaults to the task's url)")
	decideCmd.Flags().IntVar(&decideStep, "step", 0, "zero-based step index")
	_ = decideCmd.MarkFlagRequired("task")
	_ = decideCmd.MarkFlagRequired("snapshot")
	rootCmd.AddCommand(decideCmd)
}
