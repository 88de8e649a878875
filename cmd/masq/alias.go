package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/getmasq/masq/internal/api"
)

var redactFlags struct {
	clientConfig
	store  string
	format string
}

var redactCmd = &cobra.Command{
	Use:   "redact <value>...",
	Short: "Exchange values for aliases",
	Long: `Exchange one or more sensitive values for public aliases, creating
them as needed. Redacting a value again returns its existing alias.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRedact,
}

var revealFlags struct {
	clientConfig
}

var revealCmd = &cobra.Command{
	Use:   "reveal <alias>...",
	Short: "Resolve aliases back to their values",
	Long: `Resolve one or more public aliases back to their original values.
Unknown or expired aliases are omitted from the output.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runReveal,
}

func init() {
	rootCmd.AddCommand(redactCmd)
	rootCmd.AddCommand(revealCmd)

	addClientFlags(redactCmd, &redactFlags.clientConfig)
	redactCmd.Flags().StringVar(&redactFlags.store, "store", "", "alias store (PERSISTENT|VOLATILE, default PERSISTENT)")
	redactCmd.Flags().StringVar(&redactFlags.format, "format", "", "generation scheme (default UUID)")

	addClientFlags(revealCmd, &revealFlags.clientConfig)
}

func runRedact(cmd *cobra.Command, args []string) error {
	c, err := redactFlags.newClient()
	if err != nil {
		return err
	}

	entries := make([]api.RedactEntry, 0, len(args))
	for _, value := range args {
		entries = append(entries, api.RedactEntry{
			Value:  value,
			Format: redactFlags.format,
			Store:  redactFlags.store,
		})
	}

	resp, err := c.Redact(entries)
	if err != nil {
		return err
	}
	return printJSON(cmd, resp)
}

func runReveal(cmd *cobra.Command, args []string) error {
	c, err := revealFlags.newClient()
	if err != nil {
		return err
	}

	resp, err := c.Reveal(args)
	if err != nil {
		return err
	}
	return printJSON(cmd, resp)
}

func printJSON(cmd *cobra.Command, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return err
}
