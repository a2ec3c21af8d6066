package chathistory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AliceSyndrome285/CradleAI/plugin/ai"
	"github.com/AliceSyndrome285/CradleAI/plugin/ai/msgindex"
	mutationerrors "github.com/AliceSyndrome285/CradleAI/server/internal/errors"
	"github.com/AliceSyndrome285/CradleAI/server/service/message"
	"github.com/AliceSyndrome285/CradleAI/store"
	"github.com/AliceSyndrome285/CradleAI/store/test"
)

const conversationID = "1700000000000"

var fixedNow = time.UnixMilli(1700009999000)

func newTestHistory(ctx context.Context, t *testing.T, count int) (*History, *store.Store) {
	t.Helper()
	ts := test.NewTestingStore(ctx, t, "sqlite")
	h := New(ts, WithClock(func() time.Time { return fixedNow }))
	_, err := h.CreateTestChatHistory(ctx, conversationID, count)
	require.NoError(t, err)
	return h, ts
}

type chatRequest struct {
	Stream   bool `json:"stream"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

// llmSettings points the settings at a fake chat completion endpoint that
// answers every request with reply.
func llmSettings(t *testing.T, reply string, seen func(chatRequest)) *ai.APISettings {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if seen != nil {
			seen(req)
		}
		if req.Stream {
			w.Header().Set("Content-Type", "text/event-stream")
			for _, part := range []string{reply[:len(reply)/2], reply[len(reply)/2:]} {
				chunk, _ := json.Marshal(map[string]any{
					"id":      "chatcmpl-1",
					"object":  "chat.completion.chunk",
					"choices": []map[string]any{{"index": 0, "delta": map[string]any{"content": part}}},
				})
				_, _ = fmt.Fprintf(w, "data: %s\n\n", chunk)
			}
			_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": reply},
				"finish_reason": "stop",
			}},
		})
	}))
	t.Cleanup(server.Close)
	return &ai.APISettings{Provider: "openai", APIKey: "sk-test", BaseURL: server.URL, Model: "gpt-4o-mini"}
}

func TestGetCleanChatHistory(t *testing.T) {
	ctx := context.Background()
	h, _ := newTestHistory(ctx, t, 7)

	log, err := h.GetCleanChatHistory(ctx, conversationID)
	require.NoError(t, err)
	require.Len(t, log, 7)
	assert.True(t, log[0].IsFirstMes)
	assert.Equal(t, msgindex.RoleModel, log[0].Role)
	for i, entry := range log {
		assert.Equal(t, i, entry.GlobalIndex)
		assert.Equal(t, int64(1700000000000)+int64(i)*60_000, entry.TimestampMs)
		if i > 0 {
			assert.Equal(t, i%2 == 1, entry.Role == msgindex.RoleUser)
		}
	}

	_, err = h.GetCleanChatHistory(ctx, "1699999999999")
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestEditByIndex(t *testing.T) {
	ctx := context.Background()
	h, ts := newTestHistory(ctx, t, 7)

	ok, err := h.EditUserMessageByIndex(ctx, conversationID, 2, "edited user line", nil)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = h.EditAIMessageByIndex(ctx, conversationID, 1, "edited model line", nil)
	require.NoError(t, err)
	assert.True(t, ok)

	log, err := h.GetCleanChatHistory(ctx, conversationID)
	require.NoError(t, err)
	assert.Equal(t, "edited user line", log[3].Text)
	assert.Equal(t, "edited model line", log[2].Text)
	assert.Equal(t, "Greetings, traveler. The fire is warm tonight.", log[0].Text)

	conversation, err := ts.GetChatConversation(ctx, conversationID)
	require.NoError(t, err)
	assert.Equal(t, fixedNow.UnixMilli(), conversation.UpdatedTs)

	ok, err = h.EditUserMessageByIndex(ctx, conversationID, 4, "missing", nil)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = h.EditAIMessageByIndex(ctx, conversationID, 0, "first_mes is not addressable", nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteByIndex(t *testing.T) {
	ctx := context.Background()
	h, _ := newTestHistory(ctx, t, 7)
	before, err := h.GetCleanChatHistory(ctx, conversationID)
	require.NoError(t, err)

	ok, err := h.DeleteAIMessageByIndex(ctx, conversationID, 1, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	after, err := h.GetCleanChatHistory(ctx, conversationID)
	require.NoError(t, err)
	require.Len(t, after, 6)
	assert.Equal(t, before[4].Text, after[3].Text)

	ok, err = h.DeleteUserMessageByIndex(ctx, conversationID, 3, nil)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = h.DeleteUserMessageByIndex(ctx, conversationID, 3, nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRegenerate(t *testing.T) {
	ctx := context.Background()
	h, _ := newTestHistory(ctx, t, 9)

	var prompt chatRequest
	settings := llmSettings(t, "The road north is open again.", func(req chatRequest) { prompt = req })
	text, err := h.RegenerateAIMessageByIndex(ctx, &message.RegenerateByIndex{
		ConversationID: conversationID,
		RoleIndex:      2,
		Settings:       settings,
		CharacterID:    "Aria",
		UserNickname:   "Sam",
	})
	require.NoError(t, err)
	assert.Equal(t, "The road north is open again.", text)

	require.Len(t, prompt.Messages, 5)
	assert.False(t, prompt.Stream)
	assert.Contains(t, prompt.Messages[0].Content, "Aria")
	assert.Contains(t, prompt.Messages[0].Content, "Sam")
	var roles []string
	for _, m := range prompt.Messages {
		roles = append(roles, m.Role)
	}
	assert.Equal(t, []string{"system", "assistant", "user", "assistant", "user"}, roles)

	log, err := h.GetCleanChatHistory(ctx, conversationID)
	require.NoError(t, err)
	require.Len(t, log, 5)
	assert.Equal(t, "The road north is open again.", log[4].Text)
}

func TestRegenerateStream(t *testing.T) {
	ctx := context.Background()
	h, _ := newTestHistory(ctx, t, 5)

	var chunks []string
	text, err := h.RegenerateAIMessageByIndex(ctx, &message.RegenerateByIndex{
		ConversationID: conversationID,
		RoleIndex:      2,
		Settings:       llmSettings(t, "Snow again", nil),
		CharacterID:    "Aria",
		UserNickname:   "Sam",
		OnStream:       func(chunk string) { chunks = append(chunks, chunk) },
	})
	require.NoError(t, err)
	assert.Equal(t, "Snow again", text)
	assert.Equal(t, []string{"Snow ", "again"}, chunks)

	log, err := h.GetCleanChatHistory(ctx, conversationID)
	require.NoError(t, err)
	require.Len(t, log, 5)
	assert.Equal(t, "Snow again", log[4].Text)
}

func TestRegenerateFailures(t *testing.T) {
	ctx := context.Background()
	h, _ := newTestHistory(ctx, t, 5)

	// Out of range: no LLM call.
	text, err := h.RegenerateAIMessageByIndex(ctx, &message.RegenerateByIndex{
		ConversationID: conversationID,
		RoleIndex:      3,
		Settings:       &ai.APISettings{Provider: "openai", APIKey: "sk-test", BaseURL: "http://127.0.0.1:1"},
	})
	require.NoError(t, err)
	assert.Empty(t, text)

	_, err = h.RegenerateAIMessageByIndex(ctx, &message.RegenerateByIndex{
		ConversationID: conversationID,
		RoleIndex:      1,
		Settings:       &ai.APISettings{Provider: "unknown", APIKey: "sk-test"},
	})
	assert.Error(t, err)

	text, err = h.RegenerateAIMessageByIndex(ctx, &message.RegenerateByIndex{
		ConversationID: conversationID,
		RoleIndex:      1,
		Settings:       llmSettings(t, "", nil),
	})
	require.NoError(t, err)
	assert.Empty(t, text)

	log, err := h.GetCleanChatHistory(ctx, conversationID)
	require.NoError(t, err)
	assert.Len(t, log, 5)
}

func TestBuildPrompt(t *testing.T) {
	log := []msgindex.LogEntry{
		{Role: msgindex.RoleModel, Text: "hello", IsFirstMes: true},
		{Role: msgindex.RoleUser, Text: "hi"},
		{Role: msgindex.RoleAssistant, Text: "welcome"},
	}

	prompt := BuildPrompt(log, "Aria", "Sam")
	require.Len(t, prompt, 4)
	assert.Equal(t, "system", prompt[0].Role)
	assert.Equal(t, ai.AssistantMessage("hello"), prompt[1])
	assert.Equal(t, ai.UserMessage("hi"), prompt[2])
	assert.Equal(t, ai.AssistantMessage("welcome"), prompt[3])
}

func TestServiceOverStore(t *testing.T) {
	ctx := context.Background()
	h, _ := newTestHistory(ctx, t, 61)
	svc := message.NewService(h)

	log, err := h.GetCleanChatHistory(ctx, conversationID)
	require.NoError(t, err)
	target := msgindex.GlobalIndexOf(log, 5, msgindex.RoleUser)
	next := msgindex.GlobalIndexOf(log, 6, msgindex.RoleUser)

	messages, err := svc.DeleteUser(ctx, &message.DeleteRequest{
		ConversationID: conversationID,
		MessageID:      msgindex.NewMessageID(log[target].TimestampMs),
		Settings:       &ai.APISettings{Provider: "openai", APIKey: "sk-test"},
	})
	require.NoError(t, err)
	require.Len(t, messages, 60)
	// The model reply after the deleted message moved into its slot.
	assert.Equal(t, log[target+1].Text, messages[target].Text)
	assert.Equal(t, log[next].Text, messages[next-1].Text)
	assert.Equal(t, next-1, messages[next-1].MessageIndex)
}

func TestMutationOnUnknownConversation(t *testing.T) {
	ctx := context.Background()
	h, _ := newTestHistory(ctx, t, 7)
	svc := message.NewService(h)

	_, err := svc.DeleteAI(ctx, &message.DeleteRequest{
		ConversationID: "1699999999999",
		MessageID:      "1699999999999-abc",
		Settings:       &ai.APISettings{Provider: "openai", APIKey: "sk-test"},
	})
	require.Error(t, err)
	assert.True(t, mutationerrors.IsCode(err, mutationerrors.ErrCodeMessageNotFound))

	log, err := h.GetCleanChatHistory(ctx, conversationID)
	require.NoError(t, err)
	assert.Len(t, log, 7)
}

func TestEditSurvivesTouchFailure(t *testing.T) {
	ctx := context.Background()
	h, ts := newTestHistory(ctx, t, 7)
	_, err := ts.GetDriver().GetDB().ExecContext(ctx,
		`CREATE TRIGGER conversation_read_only BEFORE UPDATE ON chat_conversation BEGIN SELECT RAISE(ABORT, 'read only'); END`)
	require.NoError(t, err)

	ok, err := h.EditUserMessageByIndex(ctx, conversationID, 2, "edited anyway", nil)
	require.NoError(t, err)
	assert.True(t, ok)

	log, err := h.GetCleanChatHistory(ctx, conversationID)
	require.NoError(t, err)
	assert.Equal(t, "edited anyway", log[3].Text)

	conv, err := ts.GetChatConversation(ctx, conversationID)
	require.NoError(t, err)
	assert.NotEqual(t, fixedNow.UnixMilli(), conv.UpdatedTs)
}

func TestDiagnosticsOverStore(t *testing.T) {
	ctx := context.Background()
	h, _ := newTestHistory(ctx, t, 0)
	diagnostics := message.NewDiagnostics(message.NewService(h), h)

	report, err := diagnostics.RunPaginationCheck(ctx, conversationID, 30)
	require.NoError(t, err)
	assert.True(t, report.Success, "%v", report.Lines)

	integration, err := diagnostics.VerifyStorageIntegration(ctx, conversationID)
	require.NoError(t, err)
	assert.Equal(t, 85, integration.MessageCount)

	require.NoError(t, diagnostics.CleanupTestData(ctx, conversationID))
	_, err = h.GetCleanChatHistory(ctx, conversationID)
	assert.Error(t, err)
}
