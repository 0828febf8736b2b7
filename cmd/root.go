package cmd

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/devportal/chatstore/internal"
	"github.com/spf13/cobra"
)

var (
	verbose    bool
	dbPath     string
	quotaBytes int64
	version    string = "dev"
	commit     string = "unknown"
	date       string = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "chatstore",
	Short: "Manage the local chat history store",
	Long: `A CLI for the capacity-bounded local chat history store.

The store keeps conversations and messages in a SQLite database under a
hard ceiling on record count and storage footprint: at most 200
conversations, at most 300 messages per conversation, and an estimated
byte budget derived from the storage quota. Every write is followed by
an eviction pass that trims the oldest history first.

Quick Start:
  chatstore list                  # List all conversations
  chatstore show <id>             # View one conversation
  chatstore stats                 # Storage usage and record counts
  chatstore export --format json  # Export the full archive`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		internal.SetVerbose(verbose)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (default ~/.chatstore/history.db, or $CHATSTORE_DB)")
	rootCmd.PersistentFlags().Int64Var(&quotaBytes, "quota", 0, "Storage quota in bytes (default 50 MiB)")

	// Set version template to ensure --version flag works
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}

// openStore opens the configured database and wraps it in a Store with a
// file-based quota oracle. The returned cleanup closes the database.
func openStore() (*internal.Store, func(), error) {
	path := dbPath
	if path == "" {
		var err error
		path, err = internal.DefaultDatabasePath()
		if err != nil {
			return nil, nil, err
		}
	}

	db, err := internal.OpenDatabase(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open store: %w", err)
	}

	store := internal.NewStore(db, internal.NewFileQuota(path, quotaBytes))
	cleanup := func() { closeQuietly(db) }
	return store, cleanup, nil
}

func closeQuietly(db *sql.DB) {
	if err := db.Close(); err != nil {
		internal.LogWarn("failed to close database: %v", err)
	}
}
