package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/devportal/chatstore/internal"
)

// MarkdownExporter writes the archive as a human-readable transcript,
// one section per conversation with messages oldest-first.
type MarkdownExporter struct{}

// Export writes the archive to Markdown format
func (e *MarkdownExporter) Export(archive *internal.Archive, w io.Writer) error {
	_, _ = fmt.Fprintf(w, "# Chat History Export\n\n")
	_, _ = fmt.Fprintf(w, "**Exported:** %s  \n", archive.ExportDate)
	_, _ = fmt.Fprintf(w, "**Conversations:** %d  \n", len(archive.Conversations))
	_, _ = fmt.Fprintf(w, "**Messages:** %d\n\n", len(archive.Messages))

	byConversation := make(map[string][]internal.Message)
	for _, msg := range archive.Messages {
		byConversation[msg.ConversationID] = append(byConversation[msg.ConversationID], msg)
	}

	for _, conv := range archive.Conversations {
		_, _ = fmt.Fprintf(w, "## %s\n\n", conv.Title)
		_, _ = fmt.Fprintf(w, "**Updated:** %s  \n", formatMillis(conv.UpdatedAt))
		if conv.DeploymentID != "" {
			_, _ = fmt.Fprintf(w, "**Deployment:** %s  \n", conv.DeploymentID)
		}
		msgs := byConversation[conv.ID]
		_, _ = fmt.Fprintf(w, "**Messages:** %d\n\n", len(msgs))

		for i, msg := range msgs {
			_, _ = fmt.Fprintf(w, "**%s:** (%s)\n\n%s\n\n", msg.Role,
				formatMillis(msg.CreatedAt), escapeMarkdown(msg.Content))
			if i < len(msgs)-1 {
				_, _ = fmt.Fprintf(w, "---\n\n")
			}
		}
	}

	return nil
}

func formatMillis(millis int64) string {
	if millis == 0 {
		return "unknown"
	}
	return time.UnixMilli(millis).UTC().Format(time.RFC3339)
}

// escapeMarkdown escapes markdown special characters outside code blocks
func escapeMarkdown(text string) string {
	lines := strings.Split(text, "\n")
	var result []string
	inCodeBlock := false

	for _, line := range lines {
		if strings.HasPrefix(line, "```") {
			inCodeBlock = !inCodeBlock
			result = append(result, line)
		} else if inCodeBlock {
			result = append(result, line)
		} else {
			line = strings.ReplaceAll(line, "**", "\\*\\*")
			line = strings.ReplaceAll(line, "__", "\\_\\_")
			result = append(result, line)
		}
	}

	return strings.Join(result, "\n")
}

// Extension returns the file extension for this format
func (e *MarkdownExporter) Extension() string {
	return "md"
}
