package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func mountsHandler(cmd *cobra.Command, _ []string) error {
	cl, closer, err := connect(cmd)
	if err != nil {
		return err
	}
	defer closer()

	mounts, err := cl.Mounts(cmd.Context())
	if err != nil {
		return err
	}
	for _, m := range mounts {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\n", m.SID.Hex(), m.Label, m.Type, m.Src)
	}
	return nil
}

var mountsCmd = &cobra.Command{
	Use:   "mounts",
	Short: "List the daemon's currently mounted stores",
	Args:  cobra.NoArgs,
	RunE:  mountsHandler,
}
