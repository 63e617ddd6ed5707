package main

import (
	"github.com/spf13/cobra"

	"github.com/rowqueue/rowq/pkg/client"
)

func newRootCommand() *cobra.Command {
	var serverFlag string

	rootCmd := &cobra.Command{
		Use:           "rowqctl",
		Short:         "rowq command line client",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&serverFlag, "server", "http://localhost:8080", "rowq server URL")

	newClient := func() *client.Client {
		return client.New(serverFlag)
	}

	rootCmd.AddCommand(newQueueCommand(newClient))
	rootCmd.AddCommand(newSendCommand(newClient))
	rootCmd.AddCommand(newReceiveCommand(newClient))
	rootCmd.AddCommand(newDoneCommand(newClient))

	return rootCmd
}
