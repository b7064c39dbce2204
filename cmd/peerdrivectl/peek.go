package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/orbaslabs/peerdrive/client"
	"github.com/orbaslabs/peerdrive/document"
	"github.com/orbaslabs/peerdrive/link"
)

// openForReading opens l read-only: Peek for a concrete revision, Update for
// a doc-head (closed without committing once the caller is done — see
// note on peekHandler).
func openForReading(ctx context.Context, cl *client.Client, l link.Link) (*document.Session, error) {
	return document.Open(ctx, cl, l)
}

func peekHandler(cmd *cobra.Command, args []string) error {
	l, err := link.ParseURI(args[0])
	if err != nil {
		return fmt.Errorf("peerdrivectl: %w", err)
	}

	cl, closer, err := connect(cmd)
	if err != nil {
		return err
	}
	defer closer()

	ctx := cmd.Context()
	sess, err := openForReading(ctx, cl, l)
	if err != nil {
		return err
	}
	// A doc-head link opens via Update to resolve its head; since this
	// command never writes, Close (not Commit) discards the handle.
	defer sess.Close(ctx)

	typ, err := sess.Type(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "type: %s\n", typ)

	if len(args) < 2 {
		return nil
	}
	v, err := sess.Get(ctx, args[1])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[1], v.Kind())
	return nil
}

var peekCmd = &cobra.Command{
	Use:   "peek <link-uri> [path]",
	Short: "Open a read-only session and optionally print the kind of a structured value",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  peekHandler,
}
