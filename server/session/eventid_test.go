package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventID_RoundTrip(t *testing.T) {
	id := FormatEventID(42, "stream-a")
	assert.Equal(t, "42#stream-a", id)

	seq, streamID, err := ParseEventID(id)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), seq)
	assert.Equal(t, "stream-a", streamID)
}

func TestParseEventID_SplitsAtFirstSeparator(t *testing.T) {
	// Stream ids may themselves contain '#'; the numeric prefix disambiguates.
	seq, streamID, err := ParseEventID("7#a#b")
	require.NoError(t, err)
	assert.Equal(t, uint64(7), seq)
	assert.Equal(t, "a#b", streamID)
}

func TestParseEventID_Invalid(t *testing.T) {
	cases := []string{
		"",
		"42",          // no separator
		"42#",         // empty stream id
		"#stream",     // empty sequence
		"abc#stream",  // non-numeric sequence
		"-1#stream",   // negative
		"0#stream",    // sequence numbers start at 1
		"1.5#stream",  // not an integer
		"42 #stream",  // whitespace
	}
	for _, c := range cases {
		_, _, err := ParseEventID(c)
		assert.Error(t, err, "expected %q to be rejected", c)
	}
}
