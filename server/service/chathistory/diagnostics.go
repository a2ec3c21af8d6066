package chathistory

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/AliceSyndrome285/CradleAI/plugin/ai/msgindex"
	"github.com/AliceSyndrome285/CradleAI/store"
)

// TestCharacterID owns conversations created by CreateTestChatHistory.
const TestCharacterID = "index-test"

// CreateTestChatHistory replaces the conversation with count synthetic
// entries: a first_mes greeting followed by alternating user and model
// lines one minute apart, starting at the creation time in the id.
func (h *History) CreateTestChatHistory(ctx context.Context, conversationID string, count int) ([]msgindex.LogEntry, error) {
	created, ok := msgindex.ConversationCreatedAt(conversationID)
	if !ok {
		return nil, errors.Errorf("conversation id %s carries no creation time", conversationID)
	}
	if err := h.CleanupTestData(ctx, conversationID); err != nil {
		return nil, err
	}

	last := created
	if count > 0 {
		last = created + int64(count-1)*60_000
	}
	if _, err := h.store.CreateChatConversation(ctx, &store.ChatConversation{
		ID:          conversationID,
		CharacterID: TestCharacterID,
		Title:       fmt.Sprintf("Index test (%d messages)", count),
		CreatedTs:   created,
		UpdatedTs:   last,
	}); err != nil {
		return nil, errors.Wrap(err, "failed to create test conversation")
	}

	for i := 0; i < count; i++ {
		row := &store.ChatMessage{
			ConversationID: conversationID,
			CreatedTs:      created + int64(i)*60_000,
		}
		switch {
		case i == 0:
			row.Role = store.ChatMessageRoleModel
			row.IsFirstMes = true
			row.Content = "Greetings, traveler. The fire is warm tonight."
		case i%2 == 1:
			row.Role = store.ChatMessageRoleUser
			row.Content = fmt.Sprintf("Test user message %d about the journey ahead.", i)
		default:
			row.Role = store.ChatMessageRoleModel
			row.Content = fmt.Sprintf("Test model reply %d describing the road north.", i)
		}
		if _, err := h.store.CreateChatMessage(ctx, row); err != nil {
			return nil, errors.Wrapf(err, "failed to create test message %d", i)
		}
	}
	return h.GetCleanChatHistory(ctx, conversationID)
}

func (h *History) GetTestMessageIndexMap(ctx context.Context, conversationID string) (*msgindex.IndexMap, error) {
	log, err := h.GetCleanChatHistory(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return msgindex.BuildIndexMap(log), nil
}

// VerifyMessageIndexLookup resolves messageID by timestamp only.
func (h *History) VerifyMessageIndexLookup(ctx context.Context, conversationID, messageID string, role msgindex.Role) (int, error) {
	log, err := h.GetCleanChatHistory(ctx, conversationID)
	if err != nil {
		return msgindex.NotFound, err
	}
	resolver := msgindex.NewResolver(h.logger, msgindex.Matcher{Name: "timestamp", Match: msgindex.MatchTimestamp})
	return resolver.Resolve(msgindex.Request{
		ConversationID: conversationID,
		MessageID:      messageID,
		Role:           role,
		Log:            log,
	}), nil
}

// CleanupTestData removes the conversation and its messages. A missing
// conversation is not an error.
func (h *History) CleanupTestData(ctx context.Context, conversationID string) error {
	err := h.store.DeleteChatConversation(ctx, &store.DeleteChatConversation{ID: conversationID})
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return errors.Wrap(err, "failed to remove test conversation")
	}
	return nil
}
