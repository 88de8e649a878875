package main

import (
	"fmt"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/getmasq/masq/internal/api"
)

var rewriteFlags struct {
	clientConfig
	phase string
}

var rewriteCmd = &cobra.Command{
	Use:   "rewrite <route-id> [body]",
	Short: "Preview a route's rewrite rules against a body",
	Long: `Run a route's rewrite rules over a body and print the result. The
body is taken from the second argument, or from stdin when omitted.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runRewrite,
}

func init() {
	rootCmd.AddCommand(rewriteCmd)

	addClientFlags(rewriteCmd, &rewriteFlags.clientConfig)
	rewriteCmd.Flags().StringVar(&rewriteFlags.phase, "phase", "request", "rewrite phase (request|response)")
}

func runRewrite(cmd *cobra.Command, args []string) error {
	c, err := rewriteFlags.newClient()
	if err != nil {
		return err
	}

	var body string
	if len(args) == 2 {
		body = args[1]
	} else {
		raw, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return errors.Wrap(err, "read body from stdin")
		}
		body = string(raw)
	}

	resp, err := c.Rewrite(api.RewriteRequest{
		RouteID: args[0],
		Phase:   rewriteFlags.phase,
		Body:    body,
	})
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), resp.Body)
	return err
}
