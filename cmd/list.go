package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	// Styles
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	idStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Italic(true)

	countStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	dateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations",
	Long:  `List all conversations in the store, most recently updated first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, cleanup, err := openStore()
		if err != nil {
			return err
		}
		defer cleanup()

		conversations, err := store.ListConversations(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list conversations: %w", err)
		}

		if len(conversations) == 0 {
			fmt.Println("No conversations found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TITLE\tID\tUPDATED\tSIZE")
		for _, conv := range conversations {
			updated := time.UnixMilli(conv.UpdatedAt).Local().Format("2006-01-02 15:04")
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				titleStyle.Render(conv.Title),
				idStyle.Render(conv.ID),
				dateStyle.Render(updated),
				humanize.IBytes(uint64(conv.ApproxBytes)))
		}
		if err := w.Flush(); err != nil {
			return err
		}

		fmt.Println()
		fmt.Printf("%s conversation(s)\n", countStyle.Render(fmt.Sprintf("%d", len(conversations))))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
