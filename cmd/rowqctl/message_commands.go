package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newSendCommand(newClient clientFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "send <queue> <body>",
		Short: "Send a message to a queue",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := newClient().Send(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Printf("sent message %d (md5 %s)\n", m.ID, m.MD5)
			return nil
		},
	}
}

func newReceiveCommand(newClient clientFactory) *cobra.Command {
	var (
		max   int
		lease time.Duration
	)

	cmd := &cobra.Command{
		Use:   "receive <queue>",
		Short: "Lease messages from a queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			batch, err := newClient().Receive(cmd.Context(), args[0], max, lease)
			if err != nil {
				return err
			}
			if len(batch) == 0 {
				fmt.Println("no messages available")
				return nil
			}
			for _, m := range batch {
				handle := ""
				if m.Handle != nil {
					handle = *m.Handle
				}
				fmt.Printf("id=%d handle=%s body=%s\n", m.ID, handle, m.Body)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&max, "max", 1, "maximum messages to lease")
	cmd.Flags().DurationVar(&lease, "lease", 0, "lease duration (queue default when omitted)")
	return cmd
}

func newDoneCommand(newClient clientFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "done <handle>",
		Short: "Delete a leased message by its handle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := newClient().DeleteMessage(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println("handle not found (already deleted, or lease expired and reclaimed)")
				return nil
			}
			fmt.Println("deleted")
			return nil
		},
	}
}
