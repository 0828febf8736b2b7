package internal

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultDatabasePath resolves the on-disk location of the chat history
// database: $CHATSTORE_DB when set, otherwise ~/.chatstore/history.db.
func DefaultDatabasePath() (string, error) {
	if p := os.Getenv("CHATSTORE_DB"); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".chatstore", "history.db"), nil
}
