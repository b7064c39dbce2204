package main

import (
	"github.com/spf13/cobra"

	"github.com/orbaslabs/peerdrive/ids"
	"github.com/orbaslabs/peerdrive/link"
)

func catHandler(cmd *cobra.Command, args []string) error {
	l, err := link.ParseURI(args[0])
	if err != nil {
		return err
	}
	part := ids.NewPartId([]byte(args[1]))

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
	defer sess.Close(ctx)

	const readSize = 1 << 20
	out := cmd.OutOrStdout()
	for offset := uint64(0); ; {
		chunk, err := sess.ReadAttachment(ctx, part, offset, readSize)
		if err != nil {
			return err
		}
		if len(chunk) == 0 {
			return nil
		}
		if _, err := out.Write(chunk); err != nil {
			return err
		}
		offset += uint64(len(chunk))
		if len(chunk) < readSize {
			return nil
		}
	}
}

var catCmd = &cobra.Command{
	Use:   "cat <link-uri> <attachment>",
	Short: "Read an attachment to stdout in max_packet_size chunks",
	Args:  cobra.ExactArgs(2),
	RunE:  catHandler,
}
