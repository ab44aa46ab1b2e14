package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNetstringRoundTrip(t *testing.T) {
	framed := Netstring([]byte("hello"))
	assert.Equal(t, "5:hello,", string(framed))

	payload, trailer, err := SplitNetstring(framed)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(payload))
	assert.Empty(t, trailer)
}

func TestNetstringEmptyPayload(t *testing.T) {
	framed := Netstring(nil)
	assert.Equal(t, "0:,", string(framed))

	payload, _, err := SplitNetstring(framed)
	require.NoError(t, err)
	assert.Empty(t, payload)
}

func TestSplitNetstringLeavesTrailer(t *testing.T) {
	data := append(Netstring([]byte("first")), []byte("rest")...)
	payload, trailer, err := SplitNetstring(data)
	require.NoError(t, err)
	assert.Equal(t, "first", string(payload))
	assert.Equal(t, "rest", string(trailer))
}

func TestSplitNetstringRejectsMissingColon(t *testing.T) {
	_, _, err := SplitNetstring([]byte("12345"))
	assert.Error(t, err)
}

func TestSplitNetstringRejectsNonDigitPrefix(t *testing.T) {
	_, _, err := SplitNetstring([]byte("ab:cd,"))
	assert.Error(t, err)
}

func TestSplitNetstringRejectsTruncatedPayload(t *testing.T) {
	_, _, err := SplitNetstring([]byte("10:short,"))
	assert.Error(t, err)
}

func TestSplitNetstringRejectsMissingTrailingComma(t *testing.T) {
	_, _, err := SplitNetstring([]byte("5:hello."))
	assert.Error(t, err)
}

func TestSplitMessagesEmptyStringYieldsEmptySet(t *testing.T) {
	set := SplitMessages("")
	assert.Empty(t, set)
	_, hasEmpty := set[""]
	assert.False(t, hasEmpty)
}

func TestSplitMessagesAndJoinMessagesRoundTrip(t *testing.T) {
	set := SplitMessages("r0:aa,r0:bb,r0:cc")
	assert.Len(t, set, 3)
	assert.Contains(t, set, "r0:aa")
	assert.Contains(t, set, "r0:bb")
	assert.Contains(t, set, "r0:cc")

	joined := JoinMessages(set)
	assert.ElementsMatch(t, []string{"r0:aa", "r0:bb", "r0:cc"}, splitJoined(joined))
}

func splitJoined(s string) []string {
	set := SplitMessages(s)
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}

func TestSetDifference(t *testing.T) {
	a := SplitMessages("x,y,z")
	b := SplitMessages("y")
	diff := SetDifference(a, b)
	assert.Len(t, diff, 2)
	assert.Contains(t, diff, "x")
	assert.Contains(t, diff, "z")
	assert.NotContains(t, diff, "y")
}

func TestSetUnion(t *testing.T) {
	a := SplitMessages("x,y")
	b := SplitMessages("y,z")
	union := SetUnion(a, b)
	assert.Len(t, union, 3)
	assert.Contains(t, union, "x")
	assert.Contains(t, union, "y")
	assert.Contains(t, union, "z")
}
