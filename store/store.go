package store

import (
	"context"

	"github.com/pkg/errors"

	"github.com/AliceSyndrome285/CradleAI/internal/profile"
)

// ErrNotFound is returned when a lookup by id matches nothing.
var ErrNotFound = errors.New("not found")

// Store provides database access to all raw objects.
type Store struct {
	profile *profile.Profile
	driver  Driver
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	return &Store{
		driver:  driver,
		profile: profile,
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Close() error {
	return s.driver.Close()
}

func (s *Store) CreateChatConversation(ctx context.Context, create *ChatConversation) (*ChatConversation, error) {
	return s.driver.CreateChatConversation(ctx, create)
}

func (s *Store) ListChatConversations(ctx context.Context, find *FindChatConversation) ([]*ChatConversation, error) {
	return s.driver.ListChatConversations(ctx, find)
}

// GetChatConversation returns the conversation with id or ErrNotFound.
func (s *Store) GetChatConversation(ctx context.Context, id string) (*ChatConversation, error) {
	list, err := s.driver.ListChatConversations(ctx, &FindChatConversation{ID: &id})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, errors.Wrapf(ErrNotFound, "conversation %s", id)
	}
	return list[0], nil
}

func (s *Store) UpdateChatConversation(ctx context.Context, update *UpdateChatConversation) (*ChatConversation, error) {
	return s.driver.UpdateChatConversation(ctx, update)
}

func (s *Store) DeleteChatConversation(ctx context.Context, delete *DeleteChatConversation) error {
	return s.driver.DeleteChatConversation(ctx, delete)
}

func (s *Store) CreateChatMessage(ctx context.Context, create *ChatMessage) (*ChatMessage, error) {
	return s.driver.CreateChatMessage(ctx, create)
}

func (s *Store) ListChatMessages(ctx context.Context, find *FindChatMessage) ([]*ChatMessage, error) {
	return s.driver.ListChatMessages(ctx, find)
}

func (s *Store) UpdateChatMessage(ctx context.Context, update *UpdateChatMessage) (*ChatMessage, error) {
	return s.driver.UpdateChatMessage(ctx, update)
}

func (s *Store) DeleteChatMessage(ctx context.Context, delete *DeleteChatMessage) (int64, error) {
	return s.driver.DeleteChatMessage(ctx, delete)
}

func (s *Store) TruncateChatMessage(ctx context.Context, update *UpdateChatMessage) (int64, error) {
	return s.driver.TruncateChatMessage(ctx, update)
}
