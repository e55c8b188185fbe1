package session

import (
	"fmt"
	"strconv"
	"strings"
)

// Event ids have the layout "<seq>#<streamID>". The sequence number is
// monotonic per stream starting at 1; no ordering is defined across streams.

// FormatEventID renders an event id for the given sequence number and stream.
func FormatEventID(seq uint64, streamID string) string {
	return fmt.Sprintf("%d#%s", seq, streamID)
}

// ParseEventID splits an event id back into its sequence number and stream
// id. The split happens at the first '#': the numeric sequence prefix cannot
// contain the separator, so stream ids are free to.
func ParseEventID(eventID string) (uint64, string, error) {
	idx := strings.IndexByte(eventID, '#')
	if idx < 0 {
		return 0, "", fmt.Errorf("invalid event id %q: missing '#' separator", eventID)
	}
	streamID := eventID[idx+1:]
	if streamID == "" {
		return 0, "", fmt.Errorf("invalid event id %q: empty stream id", eventID)
	}
	seq, err := strconv.ParseUint(eventID[:idx], 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("invalid event id %q: bad sequence number: %w", eventID, err)
	}
	if seq < 1 {
		return 0, "", fmt.Errorf("invalid event id %q: sequence number must be >= 1", eventID)
	}
	return seq, streamID, nil
}
