package msgindex

import (
	"strconv"
	"strings"
	"time"

	"github.com/lithammer/shortuuid/v4"
)

// ID is a parsed client message identifier. The concrete type is either
// TimestampDashID or ConversationUnderscoreID.
type ID interface {
	// Timestamp is the creation time in milliseconds embedded in the id.
	Timestamp() int64
	String() string
	isID()
}

// TimestampDashID is an id of the form "<timestampMs>-<random>".
type TimestampDashID struct {
	Raw string
	Ts  int64
}

func (id TimestampDashID) Timestamp() int64 { return id.Ts }
func (id TimestampDashID) String() string   { return id.Raw }
func (TimestampDashID) isID()               {}

// ConversationUnderscoreID is an id of the form
// "<conversationId>_<timestampMs>_<random>".
type ConversationUnderscoreID struct {
	Raw            string
	ConversationID string
	Ts             int64
}

func (id ConversationUnderscoreID) Timestamp() int64 { return id.Ts }
func (id ConversationUnderscoreID) String() string   { return id.Raw }
func (ConversationUnderscoreID) isID()               {}

// ParseID recognises the two identifier conventions. The dash form is tried
// first; an id that fits neither, or whose timestamp is zero, is reported as
// not parsed. Nothing else in the id is interpreted.
func ParseID(raw string) (ID, bool) {
	if ts, ok := dashTimestamp(raw); ok {
		return TimestampDashID{Raw: raw, Ts: ts}, true
	}
	if ts, at, ok := underscoreTimestamp(raw); ok {
		return ConversationUnderscoreID{Raw: raw, ConversationID: raw[:at], Ts: ts}, true
	}
	return nil, false
}

// ExtractTimestamp returns the timestamp embedded in a client id.
func ExtractTimestamp(raw string) (int64, bool) {
	id, ok := ParseID(raw)
	if !ok {
		return 0, false
	}
	return id.Timestamp(), true
}

// dashTimestamp matches a leading run of digits followed by '-'.
func dashTimestamp(raw string) (int64, bool) {
	end := leadingDigits(raw)
	if end == 0 || end >= len(raw) || raw[end] != '-' {
		return 0, false
	}
	return positive(raw[:end])
}

// underscoreTimestamp finds the leftmost "_<digits>_" and returns the
// timestamp together with the position of the opening underscore. Only the
// leftmost occurrence is considered.
func underscoreTimestamp(raw string) (int64, int, bool) {
	for at := strings.IndexByte(raw, '_'); at >= 0; {
		rest := raw[at+1:]
		end := leadingDigits(rest)
		if end > 0 && end < len(rest) && rest[end] == '_' {
			ts, ok := positive(rest[:end])
			return ts, at, ok
		}
		next := strings.IndexByte(rest, '_')
		if next < 0 {
			break
		}
		at += next + 1
	}
	return 0, 0, false
}

func leadingDigits(s string) int {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	return i
}

func positive(digits string) (int64, bool) {
	v, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

// NewMessageID returns a fresh "<timestampMs>-<random>" identifier.
func NewMessageID(timestampMs int64) string {
	return strconv.FormatInt(timestampMs, 10) + "-" + strings.ToLower(shortuuid.New())
}

// NewConversationID returns a conversation id derived from t.
func NewConversationID(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

// ConversationCreatedAt recovers the creation time in milliseconds from the
// leading digits of a conversation id.
func ConversationCreatedAt(conversationID string) (int64, bool) {
	end := leadingDigits(conversationID)
	if end == 0 {
		return 0, false
	}
	v, err := strconv.ParseInt(conversationID[:end], 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
