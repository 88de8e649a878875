package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/getmasq/masq/internal/auth"
	"github.com/getmasq/masq/internal/config"
	"github.com/getmasq/masq/internal/db"
)

var apikeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Manage management API keys",
	Long: `Manage the keys protecting the management API. The API accepts
unauthenticated requests until the first key exists; generating a key
switches it to Bearer authentication.`,
}

var apikeyGenerateFlags struct {
	configPath string
	dbPath     string
	label      string
}

var apikeyGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a new API key",
	Long: `Generate a new API key and store its hash. The key itself is printed
once and cannot be recovered afterwards. Writes to the database
directly, so it works while the daemon is stopped.`,
	RunE: runAPIKeyGenerate,
}

var apikeyListFlags struct {
	configPath string
	dbPath     string
}

var apikeyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List API keys",
	RunE:  runAPIKeyList,
}

var apikeyRevokeFlags struct {
	configPath string
	dbPath     string
}

var apikeyRevokeCmd = &cobra.Command{
	Use:   "revoke <prefix>",
	Short: "Revoke an API key by its prefix",
	Args:  cobra.ExactArgs(1),
	RunE:  runAPIKeyRevoke,
}

func init() {
	rootCmd.AddCommand(apikeyCmd)
	apikeyCmd.AddCommand(apikeyGenerateCmd)
	apikeyCmd.AddCommand(apikeyListCmd)
	apikeyCmd.AddCommand(apikeyRevokeCmd)

	apikeyGenerateCmd.Flags().StringVar(&apikeyGenerateFlags.configPath, "config", "", "path to config file (default ~/.masq/config.yml)")
	apikeyGenerateCmd.Flags().StringVar(&apikeyGenerateFlags.dbPath, "db", "", "database path (overrides config)")
	apikeyGenerateCmd.Flags().StringVar(&apikeyGenerateFlags.label, "label", "", "optional label for the key")

	apikeyListCmd.Flags().StringVar(&apikeyListFlags.configPath, "config", "", "path to config file (default ~/.masq/config.yml)")
	apikeyListCmd.Flags().StringVar(&apikeyListFlags.dbPath, "db", "", "database path (overrides config)")

	apikeyRevokeCmd.Flags().StringVar(&apikeyRevokeFlags.configPath, "config", "", "path to config file (default ~/.masq/config.yml)")
	apikeyRevokeCmd.Flags().StringVar(&apikeyRevokeFlags.dbPath, "db", "", "database path (overrides config)")
}

// openKeyDB opens the database the same way serve does. API key commands
// talk to the database directly so they work while the daemon is stopped.
func openKeyDB(configPath, dbPath string) (*sql.DB, error) {
	if dbPath == "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		dbPath = cfg.DBPath
	}

	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, errors.Wrapf(err, "create data directory %s", dir)
		}
	}

	database, err := db.Open(dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	return database, nil
}

func runAPIKeyGenerate(cmd *cobra.Command, args []string) error {
	database, err := openKeyDB(apikeyGenerateFlags.configPath, apikeyGenerateFlags.dbPath)
	if err != nil {
		return err
	}
	defer database.Close()

	key, err := auth.GenerateAPIKey()
	if err != nil {
		return errors.Wrap(err, "generate API key")
	}

	var label *string
	if apikeyGenerateFlags.label != "" {
		label = &apikeyGenerateFlags.label
	}
	if _, err := db.CreateAPIKey(context.Background(), database, key.Prefix, key.Hash, label); err != nil {
		return errors.Wrap(err, "store API key")
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "=============================================================")
	fmt.Fprintln(out, "API KEY CREATED (save this, it will not be shown again):")
	fmt.Fprintln(out, key.Display)
	fmt.Fprintln(out, "=============================================================")
	return nil
}

func runAPIKeyList(cmd *cobra.Command, args []string) error {
	database, err := openKeyDB(apikeyListFlags.configPath, apikeyListFlags.dbPath)
	if err != nil {
		return err
	}
	defer database.Close()

	keys, err := db.ListAPIKeys(context.Background(), database)
	if err != nil {
		return errors.Wrap(err, "list API keys")
	}

	if len(keys) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No API keys found.")
		return nil
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%-12s  %-20s  %-19s  %s\n", "PREFIX", "LABEL", "CREATED", "REVOKED")
	for _, k := range keys {
		label := "-"
		if k.Label != nil {
			label = *k.Label
		}
		revoked := "-"
		if k.RevokedAt != nil {
			revoked = time.UnixMilli(*k.RevokedAt).UTC().Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%-12s  %-20s  %-19s  %s\n",
			k.KeyPrefix, label,
			time.UnixMilli(k.CreatedAt).UTC().Format("2006-01-02 15:04:05"), revoked)
	}
	return nil
}

func runAPIKeyRevoke(cmd *cobra.Command, args []string) error {
	database, err := openKeyDB(apikeyRevokeFlags.configPath, apikeyRevokeFlags.dbPath)
	if err != nil {
		return err
	}
	defer database.Close()

	prefix := args[0]
	revoked, err := db.RevokeAPIKey(context.Background(), database, prefix)
	if err != nil {
		return errors.Wrap(err, "revoke API key")
	}
	if !revoked {
		return errors.Newf("no active key with prefix %q", prefix)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Revoked key %s.\n", prefix)
	return nil
}
