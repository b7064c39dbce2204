// Command peerdrivectl is a small cobra-based CLI exercising the client
// library end-to-end: connect, inspect mounts, peek documents, read
// attachments, and watch for changes.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "peerdrivectl",
		Short: "Inspect and drive a PeerDrive daemon over its client protocol",
	}
	root.PersistentFlags().String("addr", "", "daemon host:port (skips discovery)")
	root.PersistentFlags().String("config", "", "client tunables config file (YAML)")
	root.PersistentFlags().String("debug-addr", "", "if set, serve the read-only debug introspection HTTP API on this address")
	root.PersistentFlags().String("log-level", "warn", "log verbosity (trace|debug|info|warn|error)")

	root.AddCommand(mountsCmd)
	root.AddCommand(peekCmd)
	root.AddCommand(catCmd)
	root.AddCommand(watchCmd)
	root.AddCommand(progressCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
