package main

import (
	"github.com/spf13/cobra"
)

var cleanupFlags struct {
	clientConfig
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove expired aliases",
	Long:  `Remove every expired alias from the store and report how many went away.`,
	RunE:  runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)

	addClientFlags(cleanupCmd, &cleanupFlags.clientConfig)
}

func runCleanup(cmd *cobra.Command, args []string) error {
	c, err := cleanupFlags.newClient()
	if err != nil {
		return err
	}

	resp, err := c.Cleanup()
	if err != nil {
		return err
	}
	return printJSON(cmd, resp)
}
