package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pulsegrid/pulsegrid/internal/metric"
)

// gatewayURLFromEnv returns the durable gateway base URL from PULSEGRID_HTTP
// or a local default.
func gatewayURLFromEnv() string {
	if v := os.Getenv("PULSEGRID_HTTP"); v != "" {
		return v
	}
	return "http://127.0.0.1:4000"
}

// newPublishCommand constructs the `client publish` subcommand.
func newPublishCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish one metric event to the durable gateway",
		RunE: func(cmd *cobra.Command, _ []string) error {
			source, _ := cmd.Flags().GetString("source")
			cpu, _ := cmd.Flags().GetFloat64("cpu")
			memory, _ := cmd.Flags().GetFloat64("memory")
			disk, _ := cmd.Flags().GetFloat64("disk")
			netIn, _ := cmd.Flags().GetFloat64("network-in")
			netOut, _ := cmd.Flags().GetFloat64("network-out")
			ts, _ := cmd.Flags().GetInt64("timestamp")
			url, _ := cmd.Flags().GetString("url")

			if url == "" {
				url = gatewayURLFromEnv()
			}
			if ts == 0 {
				ts = time.Now().UnixMilli()
			}
			ev := metric.Event{
				SourceID:  source,
				Timestamp: ts,
				Metrics: metric.Metrics{
					CPU: cpu, Memory: memory, Disk: disk,
					Network: &metric.Network{In: netIn, Out: netOut},
				},
			}
			body, err := ev.Encode()
			if err != nil {
				return err
			}
			resp, err := http.Post(url+"/metrics", "application/json", bytes.NewReader(body))
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			out, _ := io.ReadAll(resp.Body)
			if resp.StatusCode != http.StatusAccepted {
				return fmt.Errorf("gateway returned %d: %s", resp.StatusCode, out)
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().String("url", "", "gateway base URL (default $PULSEGRID_HTTP or http://127.0.0.1:4000)")
	cmd.Flags().String("source", "", "source identifier")
	cmd.Flags().Float64("cpu", 0, "cpu utilization percent")
	cmd.Flags().Float64("memory", 0, "memory utilization percent")
	cmd.Flags().Float64("disk", 0, "disk utilization percent")
	cmd.Flags().Float64("network-in", 0, "inbound network throughput")
	cmd.Flags().Float64("network-out", 0, "outbound network throughput")
	cmd.Flags().Int64("timestamp", 0, "sample timestamp in epoch ms (default now)")
	_ = cmd.MarkFlagRequired("source")
	return cmd
}

// printJSON re-indents a JSON body for terminal output; non-JSON passes
// through unchanged.
func printJSON(w io.Writer, body []byte) error {
	var v any
	if json.Unmarshal(body, &v) == nil {
		pretty, err := json.MarshalIndent(v, "", "  ")
		if err == nil {
			_, err = fmt.Fprintln(w, string(pretty))
			return err
		}
	}
	_, err := fmt.Fprintln(w, string(body))
	return err
}
