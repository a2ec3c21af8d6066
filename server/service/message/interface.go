package message

import (
	"context"

	"github.com/AliceSyndrome285/CradleAI/plugin/ai"
	"github.com/AliceSyndrome285/CradleAI/plugin/ai/msgindex"
)

// ChatHistory is the persisted conversation store as seen by the dispatcher.
// Mutating primitives address entries by role-index; a false result means
// the store refused the mutation.
type ChatHistory interface {
	// GetCleanChatHistory returns the full, ordered log of the conversation.
	GetCleanChatHistory(ctx context.Context, conversationID string) ([]msgindex.LogEntry, error)

	EditUserMessageByIndex(ctx context.Context, conversationID string, roleIndex int, text string, settings *ai.APISettings) (bool, error)
	EditAIMessageByIndex(ctx context.Context, conversationID string, roleIndex int, text string, settings *ai.APISettings) (bool, error)
	DeleteUserMessageByIndex(ctx context.Context, conversationID string, roleIndex int, settings *ai.APISettings) (bool, error)
	DeleteAIMessageByIndex(ctx context.Context, conversationID string, roleIndex int, settings *ai.APISettings) (bool, error)

	// RegenerateAIMessageByIndex returns the new text. An empty result is a failure.
	RegenerateAIMessageByIndex(ctx context.Context, req *RegenerateByIndex) (string, error)
}

// RegenerateByIndex is the collaborator-level regenerate request.
type RegenerateByIndex struct {
	ConversationID string
	RoleIndex      int
	Settings       *ai.APISettings
	CharacterID    string
	UserNickname   string
	// OnStream receives generated chunks when set.
	OnStream func(chunk string)
}

// TestHistory is the verification surface of the store used by Diagnostics.
type TestHistory interface {
	ChatHistory

	// CreateTestChatHistory replaces the conversation with count synthetic entries.
	CreateTestChatHistory(ctx context.Context, conversationID string, count int) ([]msgindex.LogEntry, error)
	GetTestMessageIndexMap(ctx context.Context, conversationID string) (*msgindex.IndexMap, error)
	// VerifyMessageIndexLookup resolves messageID by timestamp alone.
	VerifyMessageIndexLookup(ctx context.Context, conversationID, messageID string, role msgindex.Role) (int, error)
	CleanupTestData(ctx context.Context, conversationID string) error
}

// EditRequest edits the text of one message.
type EditRequest struct {
	ConversationID string
	MessageID      string
	Text           string
	Settings       *ai.APISettings
	View           []msgindex.ClientMessage
}

// DeleteRequest deletes one message.
type DeleteRequest struct {
	ConversationID string
	MessageID      string
	Settings       *ai.APISettings
	View           []msgindex.ClientMessage
}

// RegenerateRequest regenerates one AI message.
type RegenerateRequest struct {
	ConversationID string
	MessageID      string
	CharacterID    string
	UserNickname   string
	Settings       *ai.APISettings
	View           []msgindex.ClientMessage
	OnStream       func(chunk string)
}
