package cmd

import (
	"fmt"
	"os"

	"github.com/devportal/chatstore/internal/export"
	"github.com/spf13/cobra"
)

var (
	exportFormat string
	exportOutput string
)

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the store to a file",
	Long: `Export all conversations, messages, and kv entries as a versioned
archive. The json format round-trips through 'chatstore import'; jsonl,
yaml, and md are for reading and tooling.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, cleanup, err := openStore()
		if err != nil {
			return err
		}
		defer cleanup()

		exporter, err := export.NewExporter(exportFormat)
		if err != nil {
			return err
		}

		archive, err := store.Export(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to export: %w", err)
		}

		out := os.Stdout
		if exportOutput != "" {
			f, err := os.Create(exportOutput)
			if err != nil {
				return fmt.Errorf("failed to create output file: %w", err)
			}
			defer func() { _ = f.Close() }()
			out = f
		}

		if err := exporter.Export(archive, out); err != nil {
			return fmt.Errorf("failed to write archive: %w", err)
		}

		if exportOutput != "" {
			fmt.Fprintf(os.Stderr, "Exported %d conversation(s), %d message(s) to %s\n",
				len(archive.Conversations), len(archive.Messages), exportOutput)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "json", "Output format (json, jsonl, yaml, md)")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (default stdout)")
	rootCmd.AddCommand(exportCmd)
}
