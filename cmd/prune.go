package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// pruneCmd represents the prune command
var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Run one eviction pass",
	Long: `Run the three-tier eviction pass manually: conversation-count cap,
per-conversation message cap, then the global byte budget. The pass is
idempotent, so re-running it on a store within limits changes nothing.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, cleanup, err := openStore()
		if err != nil {
			return err
		}
		defer cleanup()

		before, err := store.StorageInfo(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to get storage info: %w", err)
		}
		if err := store.EnforceLimits(cmd.Context()); err != nil {
			return fmt.Errorf("eviction pass failed: %w", err)
		}
		after, err := store.StorageInfo(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to get storage info: %w", err)
		}

		fmt.Printf("Conversations: %d -> %d\n", before.ConversationCount, after.ConversationCount)
		fmt.Printf("Messages:      %d -> %d\n", before.MessageCount, after.MessageCount)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pruneCmd)
}
