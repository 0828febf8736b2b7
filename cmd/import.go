package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/devportal/chatstore/internal"
	"github.com/spf13/cobra"
)

// importCmd represents the import command
var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import an archive, replacing all existing data",
	Long: `Import a JSON archive produced by 'chatstore export'. The import is
destructive: existing conversations, messages, and kv entries are
replaced by the archive's contents, and one eviction pass runs after.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read archive: %w", err)
		}

		var archive internal.Archive
		if err := json.Unmarshal(data, &archive); err != nil {
			return fmt.Errorf("failed to parse archive: %w", err)
		}

		store, cleanup, err := openStore()
		if err != nil {
			return err
		}
		defer cleanup()

		if err := store.Import(cmd.Context(), &archive); err != nil {
			return err
		}

		fmt.Printf("Imported %d conversation(s), %d message(s), %d kv entr(ies)\n",
			len(archive.Conversations), len(archive.Messages), len(archive.KV))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
}
