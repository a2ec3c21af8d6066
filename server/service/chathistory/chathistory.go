// Package chathistory implements the conversation store behind the message
// dispatcher on top of store.Store, with regeneration through an LLM.
package chathistory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/AliceSyndrome285/CradleAI/plugin/ai"
	"github.com/AliceSyndrome285/CradleAI/plugin/ai/msgindex"
	"github.com/AliceSyndrome285/CradleAI/plugin/ai/timeout"
	"github.com/AliceSyndrome285/CradleAI/server/internal/observability"
	"github.com/AliceSyndrome285/CradleAI/server/service/message"
	"github.com/AliceSyndrome285/CradleAI/store"
)

// LLMFactory builds the LLM client used for one regeneration.
type LLMFactory func(settings *ai.APISettings) (ai.LLMService, error)

// DefaultLLMFactory validates settings and builds an OpenAI compatible client.
func DefaultLLMFactory(settings *ai.APISettings) (ai.LLMService, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return ai.NewLLMService(settings.LLMConfig())
}

// History is a message.TestHistory backed by the store.
type History struct {
	store  *store.Store
	llm    LLMFactory
	logger *slog.Logger
	now    func() time.Time
}

var _ message.TestHistory = (*History)(nil)

// Option configures a History.
type Option func(*History)

// WithLLMFactory replaces DefaultLLMFactory.
func WithLLMFactory(f LLMFactory) Option {
	return func(h *History) { h.llm = f }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *History) { h.logger = logger }
}

// WithClock overrides the clock used for updated_ts.
func WithClock(now func() time.Time) Option {
	return func(h *History) { h.now = now }
}

// New creates a History over s.
func New(s *store.Store, opts ...Option) *History {
	h := &History{
		store:  s,
		llm:    DefaultLLMFactory,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// GetCleanChatHistory returns the messages of the conversation in id order.
func (h *History) GetCleanChatHistory(ctx context.Context, conversationID string) ([]msgindex.LogEntry, error) {
	log, _, err := h.load(ctx, conversationID)
	return log, err
}

func (h *History) load(ctx context.Context, conversationID string) ([]msgindex.LogEntry, []*store.ChatMessage, error) {
	if _, err := h.store.GetChatConversation(ctx, conversationID); err != nil {
		return nil, nil, err
	}
	rows, err := h.store.ListChatMessages(ctx, &store.FindChatMessage{ConversationID: &conversationID})
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to list chat messages")
	}
	log := make([]msgindex.LogEntry, 0, len(rows))
	for i, row := range rows {
		log = append(log, msgindex.LogEntry{
			Role:        msgindex.Role(row.Role),
			Text:        row.Content,
			TimestampMs: row.CreatedTs,
			IsFirstMes:  row.IsFirstMes,
			GlobalIndex: i,
		})
	}
	return log, rows, nil
}

// locate returns the stored row holding the roleIndex-th entry of role, or
// nil when there is none.
func (h *History) locate(ctx context.Context, conversationID string, roleIndex int, role msgindex.Role) ([]msgindex.LogEntry, []*store.ChatMessage, *store.ChatMessage, error) {
	log, rows, err := h.load(ctx, conversationID)
	if err != nil {
		return nil, nil, nil, err
	}
	pos := msgindex.GlobalIndexOf(log, roleIndex, role)
	if pos == msgindex.NotFound {
		h.loggerFor(ctx).Warn("role-index out of range",
			slog.String("conversation_id", conversationID),
			slog.String("role", string(role)),
			slog.Int("role_index", roleIndex))
		return log, rows, nil, nil
	}
	return log, rows, rows[pos], nil
}

func (h *History) EditUserMessageByIndex(ctx context.Context, conversationID string, roleIndex int, text string, _ *ai.APISettings) (bool, error) {
	return h.edit(ctx, conversationID, roleIndex, msgindex.RoleUser, text)
}

func (h *History) EditAIMessageByIndex(ctx context.Context, conversationID string, roleIndex int, text string, _ *ai.APISettings) (bool, error) {
	return h.edit(ctx, conversationID, roleIndex, msgindex.RoleModel, text)
}

func (h *History) DeleteUserMessageByIndex(ctx context.Context, conversationID string, roleIndex int, _ *ai.APISettings) (bool, error) {
	return h.delete(ctx, conversationID, roleIndex, msgindex.RoleUser)
}

func (h *History) DeleteAIMessageByIndex(ctx context.Context, conversationID string, roleIndex int, _ *ai.APISettings) (bool, error) {
	return h.delete(ctx, conversationID, roleIndex, msgindex.RoleModel)
}

func (h *History) edit(ctx context.Context, conversationID string, roleIndex int, role msgindex.Role, text string) (bool, error) {
	_, _, row, err := h.locate(ctx, conversationID, roleIndex, role)
	if err != nil || row == nil {
		return false, err
	}
	if _, err := h.store.UpdateChatMessage(ctx, &store.UpdateChatMessage{ID: row.ID, Content: &text}); err != nil {
		return false, errors.Wrap(err, "failed to update chat message")
	}
	h.touch(ctx, conversationID)
	return true, nil
}

func (h *History) delete(ctx context.Context, conversationID string, roleIndex int, role msgindex.Role) (bool, error) {
	_, _, row, err := h.locate(ctx, conversationID, roleIndex, role)
	if err != nil || row == nil {
		return false, err
	}
	deleted, err := h.store.DeleteChatMessage(ctx, &store.DeleteChatMessage{ID: &row.ID})
	if err != nil {
		return false, errors.Wrap(err, "failed to delete chat message")
	}
	if deleted == 0 {
		return false, nil
	}
	h.touch(ctx, conversationID)
	return true, nil
}

// RegenerateAIMessageByIndex asks the LLM for a new reply given everything
// before the target, replaces the target text and drops every later entry.
func (h *History) RegenerateAIMessageByIndex(ctx context.Context, req *message.RegenerateByIndex) (string, error) {
	log, rows, row, err := h.locate(ctx, req.ConversationID, req.RoleIndex, msgindex.RoleModel)
	if err != nil || row == nil {
		return "", err
	}
	llm, err := h.llm(req.Settings)
	if err != nil {
		return "", errors.Wrap(err, "failed to create LLM service")
	}

	pos := 0
	for pos < len(rows) && rows[pos].ID != row.ID {
		pos++
	}
	prompt := BuildPrompt(log[:pos], req.CharacterID, req.UserNickname)

	ctx, cancel := context.WithTimeout(ctx, timeout.RegenerateTimeout)
	defer cancel()

	var text string
	if req.OnStream != nil {
		contentChan, errChan := llm.ChatStream(ctx, prompt)
		text, err = ai.CollectStream(contentChan, errChan, req.OnStream)
	} else {
		text, err = llm.Chat(ctx, prompt)
	}
	if err != nil {
		return "", errors.Wrap(err, "failed to generate reply")
	}
	if text == "" {
		return "", nil
	}

	dropped, err := h.store.TruncateChatMessage(ctx, &store.UpdateChatMessage{ID: row.ID, Content: &text})
	if err != nil {
		return "", errors.Wrap(err, "failed to store regenerated reply")
	}
	h.loggerFor(ctx).Info("regenerated AI message",
		slog.String("conversation_id", req.ConversationID),
		slog.Int("role_index", req.RoleIndex),
		slog.Int64("dropped", dropped),
		slog.Int("length", len(text)))
	h.touch(ctx, req.ConversationID)
	return text, nil
}

// BuildPrompt renders the conversation before a regenerated reply as chat
// messages: a system line naming the character and the user, then every
// earlier entry.
func BuildPrompt(log []msgindex.LogEntry, characterID, userNickname string) []ai.Message {
	messages := make([]ai.Message, 0, len(log)+1)
	messages = append(messages, ai.SystemPrompt(fmt.Sprintf(
		"You are %s, chatting with %s. Stay in character and write only your next reply.",
		characterID, userNickname)))
	for _, entry := range log {
		if entry.Role == msgindex.RoleUser {
			messages = append(messages, ai.UserMessage(entry.Text))
		} else {
			messages = append(messages, ai.AssistantMessage(entry.Text))
		}
	}
	return messages
}

// loggerFor tags log lines with the dispatcher's request id when present.
func (h *History) loggerFor(ctx context.Context) *slog.Logger {
	if rc, ok := observability.FromContext(ctx); ok {
		return h.logger.With(slog.String(observability.LogFieldRequestID, rc.RequestID))
	}
	return h.logger
}

// touch bumps updated_ts. The mutation is already stored, so a failure is
// only logged.
func (h *History) touch(ctx context.Context, conversationID string) {
	ts := h.now().UnixMilli()
	if _, err := h.store.UpdateChatConversation(ctx, &store.UpdateChatConversation{ID: conversationID, UpdatedTs: &ts}); err != nil {
		h.loggerFor(ctx).Warn("failed to touch conversation",
			slog.String("conversation_id", conversationID),
			slog.String("error", err.Error()))
	}
}
