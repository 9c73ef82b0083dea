// Package domain defines the records that flow through the call intelligence
// pipeline: stored transcripts, per-call analyses and team digests. The types
// are plain JSON-serialisable structs; persistence is handled by kvstore.
package domain

import (
	"strings"
	"unicode/utf8"
)

// Direction values reported by the telephony provider.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Transcript is one stored call transcript.
//
// Fields:
//   - CallID: telephony call identifier; immutable key.
//   - AgentName / ContactName: display names at the time of the call.
//   - Duration: call length in seconds.
//   - Direction: "inbound" or "outbound".
//   - StartedAt: unix seconds; the chronological index score.
//   - Transcript: full text body.
//   - WordCount: derived from Transcript at store time, never taken from input.
//   - CreatedAt: RFC 3339 timestamp stamped when the record was written.
type Transcript struct {
	CallID      int64  `json:"callId"`
	AgentName   string `json:"agentName"`
	ContactName string `json:"contactName"`
	Duration    int    `json:"duration"`
	Direction   string `json:"direction"`
	StartedAt   int64  `json:"startedAt"`
	Transcript  string `json:"transcript"`
	WordCount   int    `json:"wordCount"`
	CreatedAt   string `json:"createdAt"`
}

// CallMeta describes a completed call as supplied by the telephony provider.
type CallMeta struct {
	CallID      int64  `json:"callId"`
	AgentName   string `json:"agentName"`
	ContactName string `json:"contactName"`
	Duration    int    `json:"duration"`
	Direction   string `json:"direction"`
	StartedAt   int64  `json:"startedAt"`
	Answered    bool   `json:"answered"`
}

// Meta returns the call metadata carried by a stored transcript. Stored
// transcripts only exist for answered calls.
func (t Transcript) Meta() CallMeta {
	return CallMeta{
		CallID:      t.CallID,
		AgentName:   t.AgentName,
		ContactName: t.ContactName,
		Duration:    t.Duration,
		Direction:   t.Direction,
		StartedAt:   t.StartedAt,
		Answered:    true,
	}
}

// ValidDirection reports whether d is a known call direction.
func ValidDirection(d string) bool {
	return d == DirectionInbound || d == DirectionOutbound
}

// CountWords returns the number of whitespace-delimited tokens longer than one
// rune. Single letters ("a", "I") are not counted.
func CountWords(text string) int {
	n := 0
	for _, tok := range strings.Fields(text) {
		if utf8.RuneCountInString(tok) > 1 {
			n++
		}
	}
	return n
}
