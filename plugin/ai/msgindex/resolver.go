package msgindex

import (
	"log/slog"
	"math"
	"unicode/utf8"
)

const (
	// exactToleranceMs is the timestamp distance accepted on the first hit.
	exactToleranceMs = 500
	// closeToleranceMs bounds the closest-timestamp fallback.
	closeToleranceMs = 10_000
	// maxPageSize is the largest client window treated as a page.
	maxPageSize = 50
	// closeTextMinLen and closeTextPrefix define a "close" text match.
	closeTextMinLen = 20
	closeTextPrefix = 100
	// recentAfterMs is how long after creation a conversation counts as old.
	recentAfterMs = 3_600_000
	// recentWindow is the number of trailing role entries inspected.
	recentWindow = 5
	// recentToleranceMs bounds the recency estimate.
	recentToleranceMs = 30_000
)

// Request is a single resolution query.
type Request struct {
	ConversationID string
	MessageID      string
	Role           Role
	// Log is the full conversation log, freshly read.
	Log []LogEntry
	// View is the optional client window the id was taken from.
	View []ClientMessage

	parsed    bool
	timestamp int64
	hasTs     bool
}

// Timestamp returns the timestamp embedded in MessageID, parsed once.
func (r *Request) Timestamp() (int64, bool) {
	if !r.parsed {
		r.timestamp, r.hasTs = ExtractTimestamp(r.MessageID)
		r.parsed = true
	}
	return r.timestamp, r.hasTs
}

// Matcher is one resolution strategy. It returns the log position of the
// entry it identified.
type Matcher struct {
	Name  string
	Match func(req *Request) (int, bool)
}

// DefaultMatchers returns the strategies in priority order.
func DefaultMatchers() []Matcher {
	return []Matcher{
		{Name: "timestamp", Match: MatchTimestamp},
		{Name: "content", Match: MatchContent},
		{Name: "recency", Match: MatchRecency},
	}
}

// Resolver runs matchers in order; the first to identify an entry wins.
type Resolver struct {
	matchers []Matcher
	logger   *slog.Logger
}

// NewResolver creates a resolver. With no matchers the default cascade is used.
func NewResolver(logger *slog.Logger, matchers ...Matcher) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	if len(matchers) == 0 {
		matchers = DefaultMatchers()
	}
	return &Resolver{matchers: matchers, logger: logger}
}

// Resolve returns the role-index of the entry req.MessageID refers to, or
// NotFound. NotFound must never be followed by a mutation.
func (r *Resolver) Resolve(req Request) int {
	if len(req.Log) == 0 || !req.Role.Valid() {
		r.logger.Warn("nothing to resolve against",
			"conversation_id", req.ConversationID,
			"message_id", req.MessageID,
			"role", req.Role,
			"log_size", len(req.Log),
		)
		return NotFound
	}

	for _, m := range r.matchers {
		pos, ok := m.Match(&req)
		if !ok {
			continue
		}
		roleIndex := RoleIndexOf(req.Log, pos, req.Role)
		if roleIndex == NotFound {
			continue
		}
		r.logger.Debug("message resolved",
			"conversation_id", req.ConversationID,
			"message_id", req.MessageID,
			"role", req.Role,
			"strategy", m.Name,
			"global_index", pos,
			"role_index", roleIndex,
		)
		return roleIndex
	}

	r.logger.Warn("no reliable match for message",
		"conversation_id", req.ConversationID,
		"message_id", req.MessageID,
		"role", req.Role,
		"log_size", len(req.Log),
		"view_size", len(req.View),
	)
	return NotFound
}

// MatchTimestamp picks the first entry within exactToleranceMs of the id's
// timestamp, scanning forward. Several entries inside the tolerance are not
// ranked by distance: log order decides. Failing that, the closest entry
// wins if it is within closeToleranceMs.
func MatchTimestamp(req *Request) (int, bool) {
	ts, ok := req.Timestamp()
	if !ok {
		return 0, false
	}

	best, bestDiff := -1, int64(math.MaxInt64)
	for i, entry := range req.Log {
		if !counted(entry, req.Role) || entry.TimestampMs == 0 {
			continue
		}
		diff := absDiff(entry.TimestampMs, ts)
		if diff < exactToleranceMs {
			return i, true
		}
		if diff < bestDiff {
			best, bestDiff = i, diff
		}
	}
	if best >= 0 && bestDiff < closeToleranceMs {
		return best, true
	}
	return 0, false
}

type contentCandidate struct {
	pos           int
	exactText     bool
	closeText     bool
	positionMatch bool
}

// MatchContent locates the message in the client view and matches its text
// and relative position against the log.
func MatchContent(req *Request) (int, bool) {
	if len(req.View) == 0 {
		return 0, false
	}
	target := -1
	for i, m := range req.View {
		if m.ID == req.MessageID {
			target = i
			break
		}
	}
	if target < 0 {
		return 0, false
	}

	text := req.View[target].Text
	localPreceding := 0
	for _, m := range req.View[:target] {
		if m.sentBy(req.Role) {
			localPreceding++
		}
	}
	paginated := len(req.View) < len(req.Log) && len(req.View) <= maxPageSize

	candidates := contentCandidates(req.Log, req.Role, text, localPreceding)
	c, ok := selectCandidate(candidates, paginated)
	if !ok {
		return 0, false
	}
	return c.pos, true
}

func contentCandidates(log []LogEntry, role Role, text string, localPreceding int) []contentCandidate {
	var candidates []contentCandidate
	globalPreceding := 0
	for i, entry := range log {
		if !counted(entry, role) {
			continue
		}
		exact := entry.Text == text
		closeMatch := utf8.RuneCountInString(entry.Text) > closeTextMinLen &&
			utf8.RuneCountInString(text) > closeTextMinLen &&
			prefix(entry.Text, closeTextPrefix) == prefix(text, closeTextPrefix)
		if exact || closeMatch {
			candidates = append(candidates, contentCandidate{
				pos:           i,
				exactText:     exact,
				closeText:     closeMatch,
				positionMatch: globalPreceding == localPreceding,
			})
		}
		globalPreceding++
	}
	return candidates
}

// selectCandidate applies the preference order. In a paginated view local
// positions say nothing about global ones, so only text is used.
func selectCandidate(candidates []contentCandidate, paginated bool) (contentCandidate, bool) {
	var preferences []func(contentCandidate) bool
	if paginated {
		preferences = []func(contentCandidate) bool{
			func(c contentCandidate) bool { return c.exactText },
			func(c contentCandidate) bool { return c.closeText },
		}
	} else {
		preferences = []func(contentCandidate) bool{
			func(c contentCandidate) bool { return c.exactText && c.positionMatch },
			func(c contentCandidate) bool { return c.exactText },
			func(c contentCandidate) bool { return c.closeText && c.positionMatch },
			func(c contentCandidate) bool { return c.closeText },
		}
	}
	for _, want := range preferences {
		for _, c := range candidates {
			if want(c) {
				return c, true
			}
		}
	}
	return contentCandidate{}, false
}

// MatchRecency assumes that a message created well after the conversation
// started is one of the last few of its role.
func MatchRecency(req *Request) (int, bool) {
	ts, ok := req.Timestamp()
	if !ok {
		return 0, false
	}
	positions := roleEntries(req.Log, req.Role)
	if len(positions) == 0 {
		return 0, false
	}
	createdAt, ok := ConversationCreatedAt(req.ConversationID)
	if !ok || ts-createdAt <= recentAfterMs {
		return 0, false
	}

	start := len(positions) - recentWindow
	if start < 0 {
		start = 0
	}
	for _, pos := range positions[start:] {
		entry := req.Log[pos]
		if entry.TimestampMs != 0 && absDiff(entry.TimestampMs, ts) < recentToleranceMs {
			return pos, true
		}
	}
	return 0, false
}

func absDiff(a, b int64) int64 {
	if a > b {
		return a - b
	}
	return b - a
}

// prefix returns the first n characters of s.
func prefix(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
