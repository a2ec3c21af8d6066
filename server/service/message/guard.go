package message

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Guard serializes mutations. Acquire blocks until the caller may mutate
// conversationID and returns the matching release.
type Guard interface {
	Acquire(ctx context.Context, conversationID string) (release func(), err error)
}

// ConversationGuard allows one mutation per conversation at a time.
type ConversationGuard struct {
	mu    sync.Mutex
	slots map[string]*guardSlot
}

type guardSlot struct {
	sem  *semaphore.Weighted
	refs int
}

// NewConversationGuard creates an empty per-conversation guard.
func NewConversationGuard() *ConversationGuard {
	return &ConversationGuard{slots: make(map[string]*guardSlot)}
}

func (g *ConversationGuard) Acquire(ctx context.Context, conversationID string) (func(), error) {
	slot := g.ref(conversationID)
	if err := slot.sem.Acquire(ctx, 1); err != nil {
		g.unref(conversationID)
		return nil, err
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			slot.sem.Release(1)
			g.unref(conversationID)
		})
	}, nil
}

func (g *ConversationGuard) ref(conversationID string) *guardSlot {
	g.mu.Lock()
	defer g.mu.Unlock()
	slot, ok := g.slots[conversationID]
	if !ok {
		slot = &guardSlot{sem: semaphore.NewWeighted(1)}
		g.slots[conversationID] = slot
	}
	slot.refs++
	return slot
}

func (g *ConversationGuard) unref(conversationID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	slot, ok := g.slots[conversationID]
	if !ok {
		return
	}
	slot.refs--
	if slot.refs == 0 {
		delete(g.slots, conversationID)
	}
}

// Len returns the number of conversations with a pending or running mutation.
func (g *ConversationGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.slots)
}
