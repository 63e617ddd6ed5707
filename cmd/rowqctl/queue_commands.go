package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rowqueue/rowq/pkg/client"
)

type clientFactory func() *client.Client

func newQueueCommand(newClient clientFactory) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Manage queues",
	}

	queueCmd.AddCommand(newQueueCreateCommand(newClient))
	queueCmd.AddCommand(newQueueDeleteCommand(newClient))
	queueCmd.AddCommand(newQueueListCommand(newClient))
	queueCmd.AddCommand(newQueueStatsCommand(newClient))
	queueCmd.AddCommand(newQueuePurgeCommand(newClient))

	return queueCmd
}

func newQueueCreateCommand(newClient clientFactory) *cobra.Command {
	var lease time.Duration

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			created, err := newClient().CreateQueue(cmd.Context(), args[0], lease)
			if err != nil {
				return err
			}
			if !created {
				fmt.Printf("queue %q already exists\n", args[0])
				return nil
			}
			fmt.Printf("created queue %q\n", args[0])
			return nil
		},
	}
	cmd.Flags().DurationVar(&lease, "lease", 0, "default lease duration (server default when omitted)")
	return cmd
}

func newQueueDeleteCommand(newClient clientFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a queue (messages are left behind; purge first to drop them)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := newClient().DeleteQueue(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				fmt.Printf("queue %q not found\n", args[0])
				return nil
			}
			fmt.Printf("deleted queue %q\n", args[0])
			return nil
		},
	}
}

func newQueueListCommand(newClient clientFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List queues",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := newClient().Queues(cmd.Context())
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Println(name)
			}
			return nil
		},
	}
}

func newQueueStatsCommand(newClient clientFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "stats <name>",
		Short: "Show message count for a queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := newClient().Count(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s: %d message(s)\n", args[0], n)
			return nil
		},
	}
}

func newQueuePurgeCommand(newClient clientFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "purge <name>",
		Short: "Delete all messages in a queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := newClient().Purge(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("purged %d message(s) from %q\n", n, args[0])
			return nil
		},
	}
}
