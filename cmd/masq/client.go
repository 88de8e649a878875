// Package main implements the masq CLI.
package main

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/getmasq/masq/internal/client"
)

type clientConfig struct {
	apiKey string
	apiURL string
}

func addClientFlags(cmd *cobra.Command, cfg *clientConfig) {
	cmd.Flags().StringVar(&cfg.apiKey, "api-key", os.Getenv("MASQ_API_KEY"), "API key for authentication")
	cmd.Flags().StringVar(&cfg.apiURL, "api-url", getEnv("MASQ_API_URL", "http://localhost:8089"), "management API URL")
}

// newClient builds an API client. The key may be empty; a daemon with
// no keys provisioned accepts unauthenticated requests.
func (cfg *clientConfig) newClient() (*client.Client, error) {
	if cfg.apiURL == "" {
		return nil, errors.New("API URL required (use --api-url flag or MASQ_API_URL env var)")
	}
	return client.NewClient(cfg.apiURL, cfg.apiKey), nil
}
