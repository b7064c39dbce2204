package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/orbaslabs/peerdrive/client"
	"github.com/orbaslabs/peerdrive/link"
)

func watchHandler(cmd *cobra.Command, args []string) error {
	l, err := link.ParseURI(args[0])
	if err != nil {
		return err
	}

	cl, closer, err := connect(cmd)
	if err != nil {
		return err
	}
	defer closer()

	kind, element := client.WatchDoc, l.Doc().Bytes()
	if l.Kind() == link.RevLinkKind {
		kind, element = client.WatchRev, l.Rev().Bytes()
	}

	w, err := cl.Watch(cmd.Context(), kind, element)
	if err != nil {
		return err
	}
	defer w.Close()

	out := cmd.OutOrStdout()
	for ev := range w.Events() {
		fmt.Fprintf(out, "%s\n", ev.Type)
	}
	return nil
}

var watchCmd = &cobra.Command{
	Use:   "watch <doc-or-rev-uri>",
	Short: "Subscribe and print events until interrupted",
	Args:  cobra.ExactArgs(1),
	RunE:  watchHandler,
}
