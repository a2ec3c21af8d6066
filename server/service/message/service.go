// Package message executes edit, delete and regenerate requests against a
// conversation log when the caller only holds an ephemeral client message id.
//
// Every call re-reads the full log, resolves the id to a role-index, hands
// the role-index to the ChatHistory collaborator and finally rebuilds the
// client message list from a fresh read. Nothing is mutated unless the id
// resolves.
package message

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/AliceSyndrome285/CradleAI/plugin/ai"
	"github.com/AliceSyndrome285/CradleAI/plugin/ai/msgindex"
	mutationerrors "github.com/AliceSyndrome285/CradleAI/server/internal/errors"
	"github.com/AliceSyndrome285/CradleAI/server/internal/observability"
	"github.com/AliceSyndrome285/CradleAI/store"
)

// DefaultUserNickname is used by regenerate when the request names no user.
const DefaultUserNickname = "User"

const (
	OperationEditUser   = "edit_user"
	OperationEditAI     = "edit_ai"
	OperationDeleteUser = "delete_user"
	OperationDeleteAI   = "delete_ai"
	OperationRegenerate = "regenerate"
)

// Service is the mutation dispatcher.
type Service struct {
	history  ChatHistory
	resolver *msgindex.Resolver
	guard    Guard
	observer PhaseObserver
	metrics  *observability.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithGuard serializes mutations through g.
func WithGuard(g Guard) Option {
	return func(s *Service) { s.guard = g }
}

// WithResolver replaces the default matcher pipeline.
func WithResolver(r *msgindex.Resolver) Option {
	return func(s *Service) { s.resolver = r }
}

// WithPhaseObserver reports phase transitions to fn.
func WithPhaseObserver(fn PhaseObserver) Option {
	return func(s *Service) { s.observer = fn }
}

// WithMetrics records every call in m.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithClock overrides the clock used for ids of untimed entries.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a dispatcher over history.
func NewService(history ChatHistory, opts ...Option) *Service {
	s := &Service{
		history: history,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.resolver == nil {
		s.resolver = msgindex.NewResolver(s.logger)
	}
	return s
}

// operation binds a mutation to the role it resolves against.
type operation struct {
	name     string
	role     msgindex.Role
	dispatch func(ctx context.Context, roleIndex int) error
}

type target struct {
	conversationID string
	messageID      string
	settings       *ai.APISettings
	view           []msgindex.ClientMessage
}

// EditUser replaces the text of a user message.
func (s *Service) EditUser(ctx context.Context, req *EditRequest) ([]msgindex.ClientMessage, error) {
	return s.execute(ctx, editTarget(req), operation{
		name: OperationEditUser,
		role: msgindex.RoleUser,
		dispatch: func(ctx context.Context, roleIndex int) error {
			ok, err := s.history.EditUserMessageByIndex(ctx, req.ConversationID, roleIndex, req.Text, req.Settings)
			return rejected("failed to edit user message", ok, err)
		},
	})
}

// EditAI replaces the text of an AI message.
func (s *Service) EditAI(ctx context.Context, req *EditRequest) ([]msgindex.ClientMessage, error) {
	return s.execute(ctx, editTarget(req), operation{
		name: OperationEditAI,
		role: msgindex.RoleModel,
		dispatch: func(ctx context.Context, roleIndex int) error {
			ok, err := s.history.EditAIMessageByIndex(ctx, req.ConversationID, roleIndex, req.Text, req.Settings)
			return rejected("failed to edit AI message", ok, err)
		},
	})
}

// DeleteUser deletes a user message.
func (s *Service) DeleteUser(ctx context.Context, req *DeleteRequest) ([]msgindex.ClientMessage, error) {
	return s.execute(ctx, deleteTarget(req), operation{
		name: OperationDeleteUser,
		role: msgindex.RoleUser,
		dispatch: func(ctx context.Context, roleIndex int) error {
			ok, err := s.history.DeleteUserMessageByIndex(ctx, req.ConversationID, roleIndex, req.Settings)
			return rejected("failed to delete user message", ok, err)
		},
	})
}

// DeleteAI deletes an AI message.
func (s *Service) DeleteAI(ctx context.Context, req *DeleteRequest) ([]msgindex.ClientMessage, error) {
	return s.execute(ctx, deleteTarget(req), operation{
		name: OperationDeleteAI,
		role: msgindex.RoleModel,
		dispatch: func(ctx context.Context, roleIndex int) error {
			ok, err := s.history.DeleteAIMessageByIndex(ctx, req.ConversationID, roleIndex, req.Settings)
			return rejected("failed to delete AI message", ok, err)
		},
	})
}

// Regenerate asks the collaborator to rewrite an AI message.
func (s *Service) Regenerate(ctx context.Context, req *RegenerateRequest) ([]msgindex.ClientMessage, error) {
	if req.ConversationID != "" && req.Settings.HasCredentials() && req.CharacterID == "" {
		return nil, mutationerrors.MissingConversationOrCredentials("character id is required to regenerate")
	}
	nickname := req.UserNickname
	if nickname == "" {
		nickname = DefaultUserNickname
	}
	t := target{
		conversationID: req.ConversationID,
		messageID:      req.MessageID,
		settings:       req.Settings,
		view:           req.View,
	}
	onStream := req.OnStream
	if onStream != nil && s.metrics != nil {
		onStream = func(chunk string) {
			s.metrics.RecordStreamChunk()
			req.OnStream(chunk)
		}
	}
	return s.execute(ctx, t, operation{
		name: OperationRegenerate,
		role: msgindex.RoleModel,
		dispatch: func(ctx context.Context, roleIndex int) error {
			text, err := s.history.RegenerateAIMessageByIndex(ctx, &RegenerateByIndex{
				ConversationID: req.ConversationID,
				RoleIndex:      roleIndex,
				Settings:       req.Settings,
				CharacterID:    req.CharacterID,
				UserNickname:   nickname,
				OnStream:       onStream,
			})
			return rejected("failed to regenerate AI message", text != "", err)
		},
	})
}

// ResolveIndex resolves messageID against a fresh read of the log without
// mutating anything. It returns msgindex.NotFound when the id cannot be
// identified.
func (s *Service) ResolveIndex(ctx context.Context, conversationID, messageID string, role msgindex.Role, view []msgindex.ClientMessage) (int, error) {
	log, err := s.history.GetCleanChatHistory(ctx, conversationID)
	if err != nil {
		return msgindex.NotFound, mutationerrors.Unexpected("failed to read conversation history", err)
	}
	return s.resolver.Resolve(msgindex.Request{
		ConversationID: conversationID,
		MessageID:      messageID,
		Role:           role,
		Log:            log,
		View:           view,
	}), nil
}

// Messages returns the conversation as client messages with fresh ids.
func (s *Service) Messages(ctx context.Context, conversationID string) ([]msgindex.ClientMessage, error) {
	log, err := s.history.GetCleanChatHistory(ctx, conversationID)
	if err != nil {
		return nil, mutationerrors.Unexpected("failed to read conversation history", err)
	}
	return ToClientMessages(log, s.now()), nil
}

func (s *Service) execute(ctx context.Context, t target, op operation) ([]msgindex.ClientMessage, error) {
	if s.metrics == nil {
		return s.run(ctx, t, op)
	}
	start := time.Now()
	s.metrics.RecordRequest(op.name)
	messages, err := s.run(ctx, t, op)
	s.metrics.RecordDuration(op.name, time.Since(start))
	if err != nil {
		s.metrics.RecordFailure(op.name, string(mutationerrors.GetCodeFromError(err, mutationerrors.ErrCodeUnexpected)))
	}
	return messages, err
}

func (s *Service) run(ctx context.Context, t target, op operation) ([]msgindex.ClientMessage, error) {
	rc := observability.NewRequestContext(s.logger, op.name, t.conversationID, t.messageID)
	ctx = observability.WithRequestContext(ctx, rc)

	if t.conversationID == "" {
		return nil, mutationerrors.MissingConversationOrCredentials("conversation id is required")
	}
	if !t.settings.HasCredentials() {
		rc.Warn("mutation refused without credentials")
		return nil, mutationerrors.MissingConversationOrCredentials("API key not found in settings")
	}
	if err := ctx.Err(); err != nil {
		return nil, mutationerrors.ContextCanceled(err)
	}
	if s.guard != nil {
		release, err := s.guard.Acquire(ctx, t.conversationID)
		if err != nil {
			return nil, mutationerrors.ContextCanceled(err)
		}
		defer release()
	}

	phase := PhaseIdle
	transition := func(to Phase) {
		rc.Debug("phase transition",
			slog.String(observability.LogFieldPhase, to.String()),
			slog.String("from", phase.String()))
		if s.observer != nil {
			s.observer(op.name, t.conversationID, phase, to)
		}
		phase = to
	}
	fail := func(err error) ([]msgindex.ClientMessage, error) {
		transition(PhaseIdle)
		rc.Error("message mutation failed", err,
			slog.String(observability.LogFieldErrorCode, string(mutationerrors.GetCodeFromError(err, mutationerrors.ErrCodeUnexpected))),
			slog.Int64(observability.LogFieldDuration, rc.DurationMs()))
		return nil, err
	}

	transition(PhaseResolving)
	log, err := s.history.GetCleanChatHistory(ctx, t.conversationID)
	if errors.Is(err, store.ErrNotFound) {
		// An unknown conversation holds no message to resolve.
		return fail(mutationerrors.MessageNotFound(t.messageID))
	}
	if err != nil {
		return fail(mutationerrors.Unexpected("failed to read conversation history", err))
	}
	roleIndex := s.resolver.Resolve(msgindex.Request{
		ConversationID: t.conversationID,
		MessageID:      t.messageID,
		Role:           op.role,
		Log:            log,
		View:           t.view,
	})
	if roleIndex == msgindex.NotFound {
		return fail(mutationerrors.MessageNotFound(t.messageID))
	}

	transition(PhaseDispatching)
	if err := op.dispatch(ctx, roleIndex); err != nil {
		if me, ok := err.(*mutationerrors.MutationError); ok {
			me.WithContext(observability.LogFieldRoleIndex, roleIndex)
		}
		return fail(err)
	}

	transition(PhaseReconciling)
	messages := s.reconcile(ctx, rc, t.conversationID)
	transition(PhaseIdle)

	rc.Info("message mutation completed",
		slog.Int(observability.LogFieldRoleIndex, roleIndex),
		slog.Int("message_count", len(messages)),
		slog.Int64(observability.LogFieldDuration, rc.DurationMs()))
	return messages, nil
}

// reconcile re-reads the log after a successful mutation. A failed read does
// not turn the mutation into a failure; the caller gets an empty list.
func (s *Service) reconcile(ctx context.Context, rc *observability.RequestContext, conversationID string) []msgindex.ClientMessage {
	log, err := s.history.GetCleanChatHistory(ctx, conversationID)
	if err != nil {
		rc.Error("failed to read messages after mutation", err)
		return []msgindex.ClientMessage{}
	}
	return ToClientMessages(log, s.now())
}

// rejected converts a collaborator result into a MUTATION_REJECTED error.
func rejected(msg string, ok bool, err error) error {
	if err != nil {
		return mutationerrors.MutationRejected(msg, err)
	}
	if !ok {
		return mutationerrors.MutationRejected(msg, nil)
	}
	return nil
}

func editTarget(req *EditRequest) target {
	return target{conversationID: req.ConversationID, messageID: req.MessageID, settings: req.Settings, view: req.View}
}

func deleteTarget(req *DeleteRequest) target {
	return target{conversationID: req.ConversationID, messageID: req.MessageID, settings: req.Settings, view: req.View}
}

// ToClientMessages maps log entries to client messages, each with a freshly
// generated "<timestamp>-<random>" id. Untimed entries take now.
func ToClientMessages(log []msgindex.LogEntry, now time.Time) []msgindex.ClientMessage {
	messages := make([]msgindex.ClientMessage, 0, len(log))
	for _, entry := range log {
		ts := entry.TimestampMs
		if ts == 0 {
			ts = now.UnixMilli()
		}
		messages = append(messages, msgindex.ClientMessage{
			ID:           msgindex.NewMessageID(ts),
			Text:         entry.Text,
			Sender:       msgindex.SenderFor(entry.Role),
			IsLoading:    false,
			Timestamp:    ts,
			MessageIndex: entry.GlobalIndex,
		})
	}
	return messages
}
