package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/orbaslabs/peerdrive/client"
)

func progressLine(kind string, e client.ProgressEntry) string {
	return fmt.Sprintf("%s tag=%d permille=%d paused=%t", kind, e.Tag, e.Permille, e.Paused)
}

func progressHandler(cmd *cobra.Command, _ []string) error {
	cl, closer, err := connect(cmd)
	if err != nil {
		return err
	}
	defer closer()

	sub, err := cl.Progress(cmd.Context())
	if err != nil {
		return err
	}
	defer sub.Close()

	out := cmd.OutOrStdout()
	for ev := range sub.Events() {
		switch ev.Kind {
		case client.ProgressStarted:
			fmt.Fprintln(out, progressLine("started", ev.Entry))
		case client.ProgressChanged:
			fmt.Fprintln(out, progressLine("changed", ev.Entry))
		case client.ProgressFinished:
			fmt.Fprintln(out, progressLine("finished", ev.Entry))
		}
	}
	return nil
}

var progressCmd = &cobra.Command{
	Use:   "progress",
	Short: "Subscribe to the progress tracker, seeded by the catch-up query",
	Args:  cobra.NoArgs,
	RunE:  progressHandler,
}
