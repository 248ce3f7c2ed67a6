package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/behavior-twin/internal/rpc"
)

var remoteCmd = &cobra.Command{
	Use:   "remote",
	Short: "Talk to a running twin server",
}

var remoteReportCmd = &cobra.Command{
	Use:   "report",
	Short: "Ask the server for an insight report",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := dialRemote(cmd)
		if err != nil {
			return err
		}
		defer client.Close()

		snap, err := client.Report(cmd.Context())
		if err != nil {
			return err
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		}
		for _, line := range snap.Insights {
			fmt.Fprintln(cmd.OutOrStdout(), line)
		}
		return nil
	},
}

var remoteSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Ask the server to save its twin now",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := dialRemote(cmd)
		if err != nil {
			return err
		}
		defer client.Close()

		version, err := client.Save(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "saved twin version %s\n", version)
		return nil
	},
}

func init() {
	remoteCmd.PersistentFlags().String("addr", "", "server address (default: server.addr from config)")
	remoteReportCmd.Flags().Bool("json", false, "print the full report as JSON")
	remoteCmd.AddCommand(remoteReportCmd, remoteSaveCmd)
}

func dialRemote(cmd *cobra.Command) (*rpc.Client, error) {
	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return nil, err
		}
		addr = cfg.Server.Addr
	}
	return rpc.NewClient(addr)
}
