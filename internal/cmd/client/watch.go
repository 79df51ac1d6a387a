package client

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	wsserver "github.com/pulsegrid/pulsegrid/internal/server/ws"
)

// wsURLFromEnv returns the dashboard WebSocket URL from PULSEGRID_WS or a
// local default.
func wsURLFromEnv() string {
	if v := os.Getenv("PULSEGRID_WS"); v != "" {
		return v
	}
	return "ws://127.0.0.1:4002/ws"
}

func dialWS(cmd *cobra.Command) (*websocket.Conn, error) {
	url, _ := cmd.Flags().GetString("url")
	if url == "" {
		url = wsURLFromEnv()
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return conn, nil
}

// newWatchCommand constructs the `client watch` subcommand: register as a
// dashboard and print every update until interrupted.
func newWatchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream live metric updates to the terminal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			source, _ := cmd.Flags().GetString("source")
			filter, _ := cmd.Flags().GetString("filter")

			conn, err := dialWS(cmd)
			if err != nil {
				return err
			}
			defer conn.Close()

			reg := map[string]any{"type": wsserver.TypeRegister, "role": "dashboard"}
			if source != "" {
				reg["sourceId"] = source
			}
			if filter != "" {
				reg["filter"] = filter
			}
			if err := conn.WriteJSON(reg); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				_ = conn.Close()
			}()

			for {
				_, data, err := conn.ReadMessage()
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return err
				}
				if err := printJSON(cmd.OutOrStdout(), data); err != nil {
					return err
				}
			}
		},
	}
	cmd.Flags().String("url", "", "WebSocket URL (default $PULSEGRID_WS or ws://127.0.0.1:4002/ws)")
	cmd.Flags().String("source", "", "only updates for this source")
	cmd.Flags().String("filter", "", "CEL filter, e.g. 'cpu > 90.0'")
	return cmd
}

// newSnapshotCommand constructs the `client snapshot` subcommand: request the
// current state for one source or all sources and print the reply.
func newSnapshotCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Fetch the latest state for one source or all sources",
		RunE: func(cmd *cobra.Command, _ []string) error {
			source, _ := cmd.Flags().GetString("source")

			conn, err := dialWS(cmd)
			if err != nil {
				return err
			}
			defer conn.Close()

			req := map[string]any{"type": wsserver.TypeSnapshotRequest}
			if source != "" {
				req["sourceId"] = source
			}
			if err := conn.WriteJSON(req); err != nil {
				return err
			}
			// the server acks the connection first, then answers the request
			for {
				_, data, err := conn.ReadMessage()
				if err != nil {
					return err
				}
				var frame struct {
					Type string `json:"type"`
				}
				_ = json.Unmarshal(data, &frame)
				if frame.Type == wsserver.TypeConnectionAck {
					continue
				}
				return printJSON(cmd.OutOrStdout(), data)
			}
		},
	}
	cmd.Flags().String("url", "", "WebSocket URL (default $PULSEGRID_WS or ws://127.0.0.1:4002/ws)")
	cmd.Flags().String("source", "", "limit the snapshot to one source")
	return cmd
}
