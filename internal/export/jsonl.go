package export

import (
	"encoding/json"
	"io"

	"github.com/devportal/chatstore/internal"
)

// JSONLExporter writes one JSON object per line: a header record, then
// every conversation, message, and kv entry tagged with its kind.
// Convenient for piping into jq or loading into analytics tools.
type JSONLExporter struct{}

type jsonlRecord struct {
	Kind string      `json:"kind"`
	Data interface{} `json:"data"`
}

// Export writes the archive to JSONL format
func (e *JSONLExporter) Export(archive *internal.Archive, w io.Writer) error {
	enc := json.NewEncoder(w)

	header := struct {
		Kind       string `json:"kind"`
		Version    int    `json:"version"`
		ExportDate string `json:"exportDate"`
	}{"header", archive.Version, archive.ExportDate}
	if err := enc.Encode(header); err != nil {
		return err
	}

	for _, conv := range archive.Conversations {
		if err := enc.Encode(jsonlRecord{Kind: "conversation", Data: conv}); err != nil {
			return err
		}
	}
	for _, msg := range archive.Messages {
		if err := enc.Encode(jsonlRecord{Kind: "message", Data: msg}); err != nil {
			return err
		}
	}
	for _, entry := range archive.KV {
		if err := enc.Encode(jsonlRecord{Kind: "kv", Data: entry}); err != nil {
			return err
		}
	}

	return nil
}

// Extension returns the file extension for this format
func (e *JSONLExporter) Extension() string {
	return "jsonl"
}
