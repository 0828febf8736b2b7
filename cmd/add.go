package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/devportal/chatstore/internal"
	"github.com/spf13/cobra"
)

var (
	addRole  string
	addTitle string
	addMeta  string
)

// addCmd represents the add command
var addCmd = &cobra.Command{
	Use:   "add <conversation-id> <content>",
	Short: "Append a message to a conversation",
	Long: `Append a message to a conversation, creating the conversation if it
does not exist yet. An eviction pass runs after the write.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		switch addRole {
		case internal.RoleUser, internal.RoleAssistant, internal.RoleSystem:
		default:
			return fmt.Errorf("invalid role %q (valid: user, assistant, system)", addRole)
		}

		var meta json.RawMessage
		if addMeta != "" {
			if !json.Valid([]byte(addMeta)) {
				return fmt.Errorf("--meta is not valid JSON")
			}
			meta = json.RawMessage(addMeta)
		}

		store, cleanup, err := openStore()
		if err != nil {
			return err
		}
		defer cleanup()

		msg, err := store.AddMessage(cmd.Context(), args[0], addRole, args[1], meta, addTitle)
		if err != nil {
			return fmt.Errorf("failed to add message: %w", err)
		}

		fmt.Printf("Added message %s to conversation %s\n", msg.ID, msg.ConversationID)
		return nil
	},
}

func init() {
	addCmd.Flags().StringVar(&addRole, "role", internal.RoleUser, "Message role (user, assistant, system)")
	addCmd.Flags().StringVar(&addTitle, "title", "", "Title to use if the conversation is created")
	addCmd.Flags().StringVar(&addMeta, "meta", "", "Opaque JSON metadata stored with the message")
	rootCmd.AddCommand(addCmd)
}
