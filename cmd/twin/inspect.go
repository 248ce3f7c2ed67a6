package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/behavior-twin/internal/logging"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Inspect saved twin state",
}

var inspectVersionsCmd = &cobra.Command{
	Use:   "versions",
	Short: "List saved snapshot versions, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openInspect(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		if a.db == nil {
			return fmt.Errorf("snapshot versions need the SQLite store; %s keeps only the latest", a.cfg.Storage.SnapshotFile)
		}
		limit, _ := cmd.Flags().GetInt("limit")
		versions, err := a.db.ListVersions(cmd.Context(), limit)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "VERSION\tPARENT\tEVENTS\tCREATED")
		for _, v := range versions {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", v.VersionID, orDash(v.ParentID), v.Events, v.CreatedAt.Format(time.RFC3339))
		}
		return w.Flush()
	},
}

var inspectReportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "List logged insight reports, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openInspect(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		if a.db == nil {
			return fmt.Errorf("the report log needs the SQLite store")
		}
		limit, _ := cmd.Flags().GetInt("limit")
		reports, err := logging.ListReports(cmd.Context(), a.db.DB(), limit)
		if err != nil {
			return err
		}
		return printReports(cmd.OutOrStdout(), reports)
	},
}

var inspectTwinCmd = &cobra.Command{
	Use:   "twin",
	Short: "Print the restored twin's queries as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openInspect(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(a.pipeline.Twin().Queries())
	},
}

func init() {
	inspectVersionsCmd.Flags().Int("limit", 20, "maximum versions to list")
	inspectReportsCmd.Flags().Int("limit", 20, "maximum reports to list")
	inspectCmd.AddCommand(inspectVersionsCmd, inspectReportsCmd, inspectTwinCmd)
}

func openInspect(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return openApp(cmd.Context(), cfg)
}

func printReports(out io.Writer, reports []logging.ReportEntry) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "REPORT\tSNAPSHOT\tALGORITHM\tTIER\tCLUSTERS\tANOMALIES\tLOW\tCREATED")
	for _, r := range reports {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%t\t%s\n",
			r.ReportID, orDash(r.SnapshotVersion), r.Algorithm, r.ForecastTier,
			r.Clusters, r.Anomalies, r.LowConfidence, r.CreatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
