package export

import (
	"encoding/json"
	"io"

	"github.com/devportal/chatstore/internal"
)

// JSONExporter writes the archive as pretty-printed JSON. This is the
// canonical format: its output round-trips through Store.Import.
type JSONExporter struct{}

// Export writes the archive to JSON format
func (e *JSONExporter) Export(archive *internal.Archive, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(archive)
}

// Extension returns the file extension for this format
func (e *JSONExporter) Extension() string {
	return "json"
}
