package cmd

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/devportal/chatstore/internal"
	"github.com/spf13/cobra"
)

var (
	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("62")).
			Bold(true).
			Underline(true)
)

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show storage usage and record counts",
	Long: `Report the store's estimated usage against its quota, with the soft
(40%) and hard (60%) eviction thresholds, plus record counts per table.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, cleanup, err := openStore()
		if err != nil {
			return err
		}
		defer cleanup()

		info, err := store.StorageInfo(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to get storage info: %w", err)
		}

		fmt.Println(sectionStyle.Render("Chat Store Storage"))
		fmt.Println()

		usageLine := fmt.Sprintf("Usage: %s of %s (%.1f%%)", info.Used, info.Quota, info.UsedPercent)
		switch {
		case info.UsedPercent >= internal.HardBytesRatio*100:
			fmt.Println(errorStyle.Render(usageLine), "- over the hard eviction threshold")
		case info.UsedPercent >= internal.SoftBytesRatio*100:
			fmt.Println(warningStyle.Render(usageLine), "- over the soft eviction threshold")
		default:
			fmt.Println(successStyle.Render(usageLine))
		}

		fmt.Println()
		fmt.Printf("Conversations: %d (cap %d)\n", info.ConversationCount, internal.MaxConversations)
		fmt.Printf("Messages:      %d\n", info.MessageCount)
		fmt.Printf("KV entries:    %d\n", info.KVCount)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
