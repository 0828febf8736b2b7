package cmd

import (
	"fmt"
	"time"

	"github.com/devportal/chatstore/internal"
	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show <conversation-id>",
	Short: "Show a conversation's messages",
	Long:  `Print one conversation's messages, oldest first.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, cleanup, err := openStore()
		if err != nil {
			return err
		}
		defer cleanup()

		conv, err := store.GetConversation(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to get conversation: %w", err)
		}
		if conv == nil {
			return fmt.Errorf("conversation %q not found", args[0])
		}

		messages, err := store.GetMessages(cmd.Context(), conv.ID)
		if err != nil {
			return fmt.Errorf("failed to get messages: %w", err)
		}

		fmt.Println(titleStyle.Render(conv.Title))
		fmt.Println(idStyle.Render(conv.ID))
		fmt.Println()

		for _, msg := range messages {
			ts := time.UnixMilli(msg.CreatedAt).Local().Format("2006-01-02 15:04:05")
			role := msg.Role
			if role == internal.RoleSummary {
				role = "summary (compacted history)"
			}
			fmt.Printf("%s %s\n%s\n\n",
				countStyle.Render(role+":"),
				dateStyle.Render(ts),
				msg.Content)
		}

		fmt.Printf("%d message(s)\n", len(messages))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(showCmd)
}
