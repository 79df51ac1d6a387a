package client

import (
	"github.com/spf13/cobra"
)

// NewRoot constructs the `client` command group: publish, watch, snapshot.
func NewRoot() *cobra.Command {
	root := &cobra.Command{
		Use:   "client",
		Short: "PulseGrid client commands",
	}
	root.AddCommand(newPublishCommand())
	root.AddCommand(newWatchCommand())
	root.AddCommand(newSnapshotCommand())
	return root
}
