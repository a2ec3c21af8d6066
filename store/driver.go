package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for store driver.
// It contains all methods that store database driver should implement.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	IsInitialized(ctx context.Context) (bool, error)

	// ChatConversation model related methods.
	CreateChatConversation(ctx context.Context, create *ChatConversation) (*ChatConversation, error)
	ListChatConversations(ctx context.Context, find *FindChatConversation) ([]*ChatConversation, error)
	UpdateChatConversation(ctx context.Context, update *UpdateChatConversation) (*ChatConversation, error)
	DeleteChatConversation(ctx context.Context, delete *DeleteChatConversation) error

	// ChatMessage model related methods.
	CreateChatMessage(ctx context.Context, create *ChatMessage) (*ChatMessage, error)
	ListChatMessages(ctx context.Context, find *FindChatMessage) ([]*ChatMessage, error)
	UpdateChatMessage(ctx context.Context, update *UpdateChatMessage) (*ChatMessage, error)
	// DeleteChatMessage returns the number of deleted rows.
	DeleteChatMessage(ctx context.Context, delete *DeleteChatMessage) (int64, error)
	// TruncateChatMessage updates a message and deletes every later message of
	// its conversation in one transaction. It returns the number of deleted rows.
	TruncateChatMessage(ctx context.Context, update *UpdateChatMessage) (int64, error)
}
