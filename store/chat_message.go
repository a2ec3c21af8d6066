package store

// ChatMessageRole is the raw role tag persisted with a message.
type ChatMessageRole string

const (
	ChatMessageRoleUser      ChatMessageRole = "user"
	ChatMessageRoleModel     ChatMessageRole = "model"
	ChatMessageRoleAssistant ChatMessageRole = "assistant"
)

// ChatMessage is one log entry. Messages of a conversation are ordered by ID.
type ChatMessage struct {
	ID             int64
	ConversationID string
	Role           ChatMessageRole
	Content        string
	IsFirstMes     bool
	CreatedTs      int64
}

type FindChatMessage struct {
	ID             *int64
	ConversationID *string
}

type UpdateChatMessage struct {
	ID      int64
	Content *string
}

type DeleteChatMessage struct {
	ID             *int64
	ConversationID *string
	// AfterID deletes every message of ConversationID with a greater ID.
	AfterID *int64
}
