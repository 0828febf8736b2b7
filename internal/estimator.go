package internal

import (
	"encoding/json"
	"math"
	"unicode/utf8"
)

// estimateOverhead is a flat fudge factor for storage-engine bookkeeping.
const estimateOverhead = 1.15

// EstimateBytes returns a heuristic storage footprint for a message:
// two bytes per character of content (UTF-16-style accounting, matching
// how browsers hold strings) plus the serialized meta payload, with 15%
// overhead. Deliberately an approximation: callers must not treat it as
// an exact on-disk size.
func EstimateBytes(content string, meta json.RawMessage) int64 {
	chars := utf8.RuneCountInString(content) + len(meta)
	return int64(math.Round(float64(chars) * 2 * estimateOverhead))
}

// EstimateMessage computes the footprint of a fully-formed message.
func EstimateMessage(msg *Message) int64 {
	return EstimateBytes(msg.Content, msg.Meta)
}
