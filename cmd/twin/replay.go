package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/behavior-twin/internal/replay"
)

var replayCmd = &cobra.Command{
	Use:   "replay <file>",
	Short: "Replay an activity log through the twin and print the report",
	Long: `Replay an activity log through the twin and print the report as JSON.

The file is either JSONL (one activity record per line) or a JSON fixture
with expected results, in which case mismatches fail the command.

Examples:
  twin replay ./activity.jsonl
  twin replay --save=false ./testdata/single_habit.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		save, _ := cmd.Flags().GetBool("save")
		ctx := cmd.Context()

		path := args[0]
		var fixture *replay.Fixture
		if strings.HasSuffix(path, ".json") {
			fixture, err = replay.LoadFixture(path)
		} else {
			var f replay.Fixture
			f.Records, err = replay.LoadRecords(path)
			fixture = &f
		}
		if err != nil {
			return err
		}

		a, err := openApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		summary, err := replay.Replay(ctx, a.pipeline, fixture.Records)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			return fmt.Errorf("encode summary: %w", err)
		}

		if save {
			version, err := a.pipeline.Save(ctx)
			if err != nil {
				return fmt.Errorf("save twin: %w", err)
			}
			fmt.Fprintf(os.Stderr, "saved twin version %s\n", version)
		}

		if mm := replay.Check(summary.Report, fixture.Expected); len(mm) > 0 {
			for _, m := range mm {
				fmt.Fprintf(os.Stderr, "mismatch %s: expected %s, got %s\n", m.Field, m.Expected, m.Actual)
			}
			return fmt.Errorf("%d fixture expectations failed", len(mm))
		}
		return nil
	},
}

func init() {
	replayCmd.Flags().Bool("save", true, "save the twin after replaying")
}
