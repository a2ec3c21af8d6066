package msgindex

import (
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testConversationID = strconv.FormatInt(testBaseTs, 10)

func toView(entries []LogEntry, id func(LogEntry) string) []ClientMessage {
	view := make([]ClientMessage, 0, len(entries))
	for _, e := range entries {
		view = append(view, ClientMessage{
			ID:           id(e),
			Text:         e.Text,
			Sender:       SenderFor(e.Role),
			Timestamp:    e.TimestampMs,
			MessageIndex: e.GlobalIndex,
		})
	}
	return view
}

func opaqueID(e LogEntry) string { return fmt.Sprintf("view-%d", e.GlobalIndex) }

func roleOf(e LogEntry) Role {
	if e.Role == RoleUser {
		return RoleUser
	}
	return RoleModel
}

func TestResolver_Timestamp(t *testing.T) {
	r := NewResolver(nil)
	log := alternatingLog(21)

	t.Run("ExactMatch", func(t *testing.T) {
		got := r.Resolve(Request{
			ConversationID: testConversationID,
			MessageID:      NewMessageID(log[9].TimestampMs + 200),
			Role:           RoleUser,
			Log:            log,
		})
		assert.Equal(t, 5, got)
	})

	t.Run("UnderscoreConvention", func(t *testing.T) {
		id := fmt.Sprintf("%s_%d_%s", testConversationID, log[6].TimestampMs, "r4nd0m")
		got := r.Resolve(Request{ConversationID: testConversationID, MessageID: id, Role: RoleModel, Log: log})
		assert.Equal(t, 3, got)
	})

	t.Run("CloseMatch", func(t *testing.T) {
		got := r.Resolve(Request{
			ConversationID: testConversationID,
			MessageID:      NewMessageID(log[8].TimestampMs - 3_000),
			Role:           RoleModel,
			Log:            log,
		})
		assert.Equal(t, 4, got)
	})

	t.Run("FirstWithinToleranceWins", func(t *testing.T) {
		crowded := []LogEntry{
			{Role: RoleModel, IsFirstMes: true, TimestampMs: 1_000, GlobalIndex: 0},
			{Role: RoleUser, Text: "a", TimestampMs: 10_000, GlobalIndex: 1},
			{Role: RoleUser, Text: "b", TimestampMs: 10_400, GlobalIndex: 2},
		}
		got := r.Resolve(Request{MessageID: "10390-x", Role: RoleUser, Log: crowded})
		assert.Equal(t, 1, got, "log order decides inside the tolerance, not proximity")
	})

	t.Run("FirstMesNeverMatched", func(t *testing.T) {
		got := r.Resolve(Request{
			ConversationID: testConversationID,
			MessageID:      NewMessageID(log[0].TimestampMs),
			Role:           RoleModel,
			Log:            log,
		})
		assert.Equal(t, NotFound, got)
	})

	t.Run("EntriesWithoutTimestampSkipped", func(t *testing.T) {
		untimed := []LogEntry{
			{Role: RoleUser, Text: "a", GlobalIndex: 0},
			{Role: RoleUser, Text: "b", TimestampMs: 50_000, GlobalIndex: 1},
		}
		got := r.Resolve(Request{MessageID: "50100-x", Role: RoleUser, Log: untimed})
		assert.Equal(t, 2, got)
	})
}

func TestResolver_NotFoundBoundary(t *testing.T) {
	r := NewResolver(nil)
	log := alternatingLog(21)

	t.Run("TimestampTooFar", func(t *testing.T) {
		got := r.Resolve(Request{
			ConversationID: testConversationID,
			MessageID:      NewMessageID(log[9].TimestampMs + 10_000),
			Role:           RoleUser,
			Log:            log,
		})
		assert.Equal(t, NotFound, got)
	})

	t.Run("NoTimestampNoView", func(t *testing.T) {
		got := r.Resolve(Request{ConversationID: testConversationID, MessageID: "abc", Role: RoleUser, Log: log})
		assert.Equal(t, NotFound, got)
	})

	t.Run("TextDoesNotMatch", func(t *testing.T) {
		view := []ClientMessage{{ID: "ghost", Text: "never written", Sender: SenderUser}}
		got := r.Resolve(Request{ConversationID: testConversationID, MessageID: "ghost", Role: RoleUser, Log: log, View: view})
		assert.Equal(t, NotFound, got)
	})

	t.Run("EmptyLog", func(t *testing.T) {
		got := r.Resolve(Request{MessageID: NewMessageID(testBaseTs), Role: RoleUser})
		assert.Equal(t, NotFound, got)
	})

	t.Run("UnknownRole", func(t *testing.T) {
		got := r.Resolve(Request{MessageID: NewMessageID(log[1].TimestampMs), Role: "system", Log: log})
		assert.Equal(t, NotFound, got)
	})
}

func TestResolver_FreshIDsResolveToManualCount(t *testing.T) {
	r := NewResolver(nil)
	log := alternatingLog(61)
	ids := make(map[int]string, len(log))
	view := toView(log, func(e LogEntry) string {
		id := NewMessageID(e.TimestampMs)
		ids[e.GlobalIndex] = id
		return id
	})

	users, models := 0, 0
	for i, entry := range log {
		if entry.IsFirstMes {
			continue
		}
		want := 0
		if entry.Role == RoleUser {
			users++
			want = users
		} else {
			models++
			want = models
		}
		got := r.Resolve(Request{
			ConversationID: testConversationID,
			MessageID:      ids[i],
			Role:           roleOf(entry),
			Log:            log,
			View:           view,
		})
		require.Equal(t, want, got, "entry %d", i)
	}
}

func TestResolver_Content(t *testing.T) {
	r := NewResolver(nil)

	t.Run("DuplicateTextUsesPosition", func(t *testing.T) {
		log := []LogEntry{
			{Role: RoleModel, IsFirstMes: true, Text: "hello", GlobalIndex: 0},
			{Role: RoleUser, Text: "ok", GlobalIndex: 1},
			{Role: RoleModel, Text: "fine", GlobalIndex: 2},
			{Role: RoleUser, Text: "ok", GlobalIndex: 3},
			{Role: RoleModel, Text: "great", GlobalIndex: 4},
		}
		view := toView(log, opaqueID)
		got := r.Resolve(Request{MessageID: "view-3", Role: RoleUser, Log: log, View: view})
		assert.Equal(t, 2, got)

		got = r.Resolve(Request{MessageID: "view-1", Role: RoleUser, Log: log, View: view})
		assert.Equal(t, 1, got)
	})

	t.Run("CloseTextMatch", func(t *testing.T) {
		long := strings.Repeat("The storm rolls over the hills. ", 5)
		log := []LogEntry{
			{Role: RoleUser, Text: "hi", GlobalIndex: 0},
			{Role: RoleModel, Text: long + "persisted tail", GlobalIndex: 1},
		}
		view := []ClientMessage{
			{ID: "u", Text: "hi", Sender: SenderUser},
			{ID: "m", Text: long + "edited tail", Sender: SenderBot},
		}
		got := r.Resolve(Request{MessageID: "m", Role: RoleModel, Log: log, View: view})
		assert.Equal(t, 1, got)
	})

	t.Run("ShortTextNeedsExactMatch", func(t *testing.T) {
		log := []LogEntry{{Role: RoleUser, Text: "short text here", GlobalIndex: 0}}
		view := []ClientMessage{{ID: "u", Text: "short text", Sender: SenderUser}}
		got := r.Resolve(Request{MessageID: "u", Role: RoleUser, Log: log, View: view})
		assert.Equal(t, NotFound, got)
	})

	t.Run("IDMissingFromView", func(t *testing.T) {
		log := alternatingLog(5)
		view := toView(log, opaqueID)
		got := r.Resolve(Request{MessageID: "view-99", Role: RoleUser, Log: log, View: view})
		assert.Equal(t, NotFound, got)
	})
}

func TestResolver_PaginationInvariance(t *testing.T) {
	r := NewResolver(nil)
	log := alternatingLog(85)
	full := toView(log, opaqueID)

	for _, bounds := range [][2]int{{55, 85}, {25, 55}, {0, 25}, {40, 41}} {
		page := full[bounds[0]:bounds[1]]
		for _, m := range page {
			entry := log[m.MessageIndex]
			if entry.IsFirstMes {
				continue
			}
			role := roleOf(entry)
			paged := r.Resolve(Request{ConversationID: testConversationID, MessageID: m.ID, Role: role, Log: log, View: page})
			whole := r.Resolve(Request{ConversationID: testConversationID, MessageID: m.ID, Role: role, Log: log, View: full})
			require.NotEqual(t, NotFound, paged, "entry %d", m.MessageIndex)
			require.Equal(t, whole, paged, "entry %d", m.MessageIndex)
			require.Equal(t, RoleIndexOf(log, m.MessageIndex, role), paged)
		}
	}
}

func TestResolver_PageTwoOfThree(t *testing.T) {
	log := alternatingLog(85)
	page2 := toView(log[25:55], func(e LogEntry) string { return fmt.Sprintf("p2-%d", e.GlobalIndex) })
	target := 31

	local := 0
	for _, m := range page2 {
		if m.MessageIndex == target {
			break
		}
		if m.Sender == SenderUser {
			local++
		}
	}
	global := CountPreceding(log, target, RoleUser)
	require.NotEqual(t, local, global, "scenario needs differing preceding counts")

	req := &Request{ConversationID: testConversationID, MessageID: "p2-31", Role: RoleUser, Log: log, View: page2}
	_, ok := MatchTimestamp(req)
	require.False(t, ok)

	candidates := contentCandidates(log, RoleUser, log[target].Text, local)
	require.Len(t, candidates, 1)
	assert.False(t, candidates[0].positionMatch)

	got := NewResolver(nil).Resolve(*req)
	assert.Equal(t, 16, got)
	assert.Equal(t, RoleIndexOf(log, target, RoleUser), got)
}

func TestSelectCandidate(t *testing.T) {
	candidates := []contentCandidate{
		{pos: 1, closeText: true, positionMatch: true},
		{pos: 2, exactText: true},
		{pos: 3, exactText: true, positionMatch: true},
	}

	c, ok := selectCandidate(candidates, false)
	require.True(t, ok)
	assert.Equal(t, 3, c.pos)

	c, ok = selectCandidate(candidates, true)
	require.True(t, ok)
	assert.Equal(t, 2, c.pos)

	c, ok = selectCandidate(candidates[:1], false)
	require.True(t, ok)
	assert.Equal(t, 1, c.pos)

	_, ok = selectCandidate(nil, true)
	assert.False(t, ok)
}

func TestResolver_Recency(t *testing.T) {
	r := NewResolver(nil)
	hour := int64(3_600_000)
	log := []LogEntry{
		{Role: RoleModel, IsFirstMes: true, TimestampMs: testBaseTs, GlobalIndex: 0},
		{Role: RoleUser, Text: "u1", TimestampMs: testBaseTs + 1_000, GlobalIndex: 1},
		{Role: RoleModel, Text: "m1", TimestampMs: testBaseTs + 2_000, GlobalIndex: 2},
		{Role: RoleUser, Text: "u2", TimestampMs: testBaseTs + 2*hour, GlobalIndex: 3},
		{Role: RoleModel, Text: "m2", TimestampMs: testBaseTs + 2*hour + 5_000, GlobalIndex: 4},
	}
	id := NewMessageID(log[4].TimestampMs + 15_000)

	t.Run("OldConversation", func(t *testing.T) {
		req := &Request{ConversationID: testConversationID, MessageID: id, Role: RoleModel, Log: log}
		_, ok := MatchTimestamp(req)
		require.False(t, ok)
		assert.Equal(t, 2, r.Resolve(*req))
	})

	t.Run("YoungConversation", func(t *testing.T) {
		young := strconv.FormatInt(log[4].TimestampMs-60_000, 10)
		assert.Equal(t, NotFound, r.Resolve(Request{ConversationID: young, MessageID: id, Role: RoleModel, Log: log}))
	})

	t.Run("ConversationIDWithoutTimestamp", func(t *testing.T) {
		assert.Equal(t, NotFound, r.Resolve(Request{ConversationID: "tavern", MessageID: id, Role: RoleModel, Log: log}))
	})

	t.Run("OnlyTrailingEntries", func(t *testing.T) {
		long := alternatingLog(41)
		// one minute apart; entry 10 is far from the tail
		oldID := NewMessageID(long[10].TimestampMs + 20_000)
		base := strconv.FormatInt(long[0].TimestampMs-2*hour, 10)
		assert.Equal(t, NotFound, r.Resolve(Request{ConversationID: base, MessageID: oldID, Role: RoleModel, Log: long}))

		tailID := NewMessageID(long[40].TimestampMs + 20_000)
		assert.Equal(t, 20, r.Resolve(Request{ConversationID: base, MessageID: tailID, Role: RoleModel, Log: long}))
	})
}

func TestResolver_CustomPipeline(t *testing.T) {
	log := alternatingLog(5)
	var calls []string
	never := Matcher{Name: "never", Match: func(*Request) (int, bool) {
		calls = append(calls, "never")
		return 0, false
	}}
	third := Matcher{Name: "third", Match: func(*Request) (int, bool) {
		calls = append(calls, "third")
		return 3, true
	}}
	unreached := Matcher{Name: "unreached", Match: func(*Request) (int, bool) {
		calls = append(calls, "unreached")
		return 1, true
	}}

	got := NewResolver(nil, never, third, unreached).Resolve(Request{MessageID: "x", Role: RoleUser, Log: log})
	assert.Equal(t, 2, got)
	assert.Equal(t, []string{"never", "third"}, calls)
}
