// Package wire implements the small self-delimiting framing helpers the
// invitation and channel protocols layer their envelopes with: netstrings
// (`len:payload,`) and the message-set bookkeeping used by the invitation
// resend rule.
package wire

import (
	"fmt"
	"strconv"
	"strings"
)

// Netstring frames payload as `len:payload,`.
func Netstring(payload []byte) []byte {
	prefix := strconv.Itoa(len(payload))
	out := make([]byte, 0, len(prefix)+1+len(payload)+1)
	out = append(out, prefix...)
	out = append(out, ':')
	out = append(out, payload...)
	out = append(out, ',')
	return out
}

// SplitNetstring parses a single leading netstring off data and returns the
// payload plus whatever trailer bytes follow the closing comma.
func SplitNetstring(data []byte) (payload, trailer []byte, err error) {
	colon := -1
	for i, b := range data {
		if b == ':' {
			colon = i
			break
		}
		if b < '0' || b > '9' {
			return nil, nil, fmt.Errorf("wire: netstring missing length prefix")
		}
	}
	if colon < 0 {
		return nil, nil, fmt.Errorf("wire: netstring missing ':'")
	}
	n, err := strconv.Atoi(string(data[:colon]))
	if err != nil || n < 0 {
		return nil, nil, fmt.Errorf("wire: invalid netstring length")
	}
	start := colon + 1
	end := start + n
	if end+1 > len(data) {
		return nil, nil, fmt.Errorf("wire: netstring truncated")
	}
	if data[end] != ',' {
		return nil, nil, fmt.Errorf("wire: netstring missing trailing comma")
	}
	return data[start:end], data[end+1:], nil
}

// SplitMessages turns a comma-joined blob of hex/text tokens (as stored in
// the invitations.myMessages / theirMessages columns) into a set. An empty
// string yields the empty set, not a set containing "" — this matches the
// original implementation exactly and several invariants depend on it.
func SplitMessages(s string) map[string]struct{} {
	out := make(map[string]struct{})
	if s == "" {
		return out
	}
	for _, part := range strings.Split(s, ",") {
		out[part] = struct{}{}
	}
	return out
}

// JoinMessages is the inverse of SplitMessages.
func JoinMessages(set map[string]struct{}) string {
	parts := make([]string, 0, len(set))
	for m := range set {
		parts = append(parts, m)
	}
	return strings.Join(parts, ",")
}

// SetDifference returns the elements of a not present in b.
func SetDifference(a, b map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{})
	for k := range a {
		if _, ok := b[k]; !ok {
			out[k] = struct{}{}
		}
	}
	return out
}

// SetUnion returns the union of a and b.
func SetUnion(a, b map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		out[k] = struct{}{}
	}
	for k := range b {
		out[k] = struct{}{}
	}
	return out
}
