package message

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/mock"

	"github.com/AliceSyndrome285/CradleAI/plugin/ai"
	"github.com/AliceSyndrome285/CradleAI/plugin/ai/msgindex"
)

const testConversationID = "1700000000000"

// MockChatHistory is a mock for ChatHistory.
type MockChatHistory struct {
	mock.Mock
}

func (m *MockChatHistory) GetCleanChatHistory(ctx context.Context, conversationID string) ([]msgindex.LogEntry, error) {
	args := m.Called(ctx, conversationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]msgindex.LogEntry), args.Error(1)
}

func (m *MockChatHistory) EditUserMessageByIndex(ctx context.Context, conversationID string, roleIndex int, text string, settings *ai.APISettings) (bool, error) {
	args := m.Called(ctx, conversationID, roleIndex, text, settings)
	return args.Bool(0), args.Error(1)
}

func (m *MockChatHistory) EditAIMessageByIndex(ctx context.Context, conversationID string, roleIndex int, text string, settings *ai.APISettings) (bool, error) {
	args := m.Called(ctx, conversationID, roleIndex, text, settings)
	return args.Bool(0), args.Error(1)
}

func (m *MockChatHistory) DeleteUserMessageByIndex(ctx context.Context, conversationID string, roleIndex int, settings *ai.APISettings) (bool, error) {
	args := m.Called(ctx, conversationID, roleIndex, settings)
	return args.Bool(0), args.Error(1)
}

func (m *MockChatHistory) DeleteAIMessageByIndex(ctx context.Context, conversationID string, roleIndex int, settings *ai.APISettings) (bool, error) {
	args := m.Called(ctx, conversationID, roleIndex, settings)
	return args.Bool(0), args.Error(1)
}

func (m *MockChatHistory) RegenerateAIMessageByIndex(ctx context.Context, req *RegenerateByIndex) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

// fakeHistory is an in-memory TestHistory.
type fakeHistory struct {
	mu            sync.Mutex
	conversations map[string][]msgindex.LogEntry
	regenerated   []*RegenerateByIndex
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{conversations: make(map[string][]msgindex.LogEntry)}
}

func (f *fakeHistory) set(conversationID string, log []msgindex.LogEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conversations[conversationID] = reindex(append([]msgindex.LogEntry(nil), log...))
}

func (f *fakeHistory) get(conversationID string) []msgindex.LogEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]msgindex.LogEntry(nil), f.conversations[conversationID]...)
}

func reindex(log []msgindex.LogEntry) []msgindex.LogEntry {
	for i := range log {
		log[i].GlobalIndex = i
	}
	return log
}

func (f *fakeHistory) GetCleanChatHistory(_ context.Context, conversationID string) ([]msgindex.LogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	log, ok := f.conversations[conversationID]
	if !ok {
		return nil, errors.Errorf("conversation %s not found", conversationID)
	}
	return append([]msgindex.LogEntry(nil), log...), nil
}

func (f *fakeHistory) position(conversationID string, roleIndex int, role msgindex.Role) int {
	return msgindex.GlobalIndexOf(f.conversations[conversationID], roleIndex, role)
}

func (f *fakeHistory) edit(conversationID string, roleIndex int, role msgindex.Role, text string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pos := f.position(conversationID, roleIndex, role)
	if pos == msgindex.NotFound {
		return false, nil
	}
	f.conversations[conversationID][pos].Text = text
	return true, nil
}

func (f *fakeHistory) remove(conversationID string, roleIndex int, role msgindex.Role) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pos := f.position(conversationID, roleIndex, role)
	if pos == msgindex.NotFound {
		return false, nil
	}
	log := f.conversations[conversationID]
	f.conversations[conversationID] = reindex(append(log[:pos:pos], log[pos+1:]...))
	return true, nil
}

func (f *fakeHistory) EditUserMessageByIndex(_ context.Context, conversationID string, roleIndex int, text string, _ *ai.APISettings) (bool, error) {
	return f.edit(conversationID, roleIndex, msgindex.RoleUser, text)
}

func (f *fakeHistory) EditAIMessageByIndex(_ context.Context, conversationID string, roleIndex int, text string, _ *ai.APISettings) (bool, error) {
	return f.edit(conversationID, roleIndex, msgindex.RoleModel, text)
}

func (f *fakeHistory) DeleteUserMessageByIndex(_ context.Context, conversationID string, roleIndex int, _ *ai.APISettings) (bool, error) {
	return f.remove(conversationID, roleIndex, msgindex.RoleUser)
}

func (f *fakeHistory) DeleteAIMessageByIndex(_ context.Context, conversationID string, roleIndex int, _ *ai.APISettings) (bool, error) {
	return f.remove(conversationID, roleIndex, msgindex.RoleModel)
}

func (f *fakeHistory) RegenerateAIMessageByIndex(_ context.Context, req *RegenerateByIndex) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.regenerated = append(f.regenerated, req)
	pos := f.position(req.ConversationID, req.RoleIndex, msgindex.RoleModel)
	if pos == msgindex.NotFound {
		return "", nil
	}
	text := fmt.Sprintf("regenerated reply %d for %s", req.RoleIndex, req.UserNickname)
	if req.OnStream != nil {
		req.OnStream(text)
	}
	log := f.conversations[req.ConversationID][:pos+1]
	log[pos].Text = text
	f.conversations[req.ConversationID] = log
	return text, nil
}

func (f *fakeHistory) CreateTestChatHistory(_ context.Context, conversationID string, count int) ([]msgindex.LogEntry, error) {
	created, ok := msgindex.ConversationCreatedAt(conversationID)
	if !ok {
		return nil, errors.Errorf("conversation id %s carries no creation time", conversationID)
	}
	log := testHistory(created, count)
	f.set(conversationID, log)
	return f.get(conversationID), nil
}

func (f *fakeHistory) GetTestMessageIndexMap(_ context.Context, conversationID string) (*msgindex.IndexMap, error) {
	return msgindex.BuildIndexMap(f.get(conversationID)), nil
}

func (f *fakeHistory) VerifyMessageIndexLookup(_ context.Context, conversationID, messageID string, role msgindex.Role) (int, error) {
	resolver := msgindex.NewResolver(nil, msgindex.Matcher{Name: "timestamp", Match: msgindex.MatchTimestamp})
	return resolver.Resolve(msgindex.Request{ConversationID: conversationID, MessageID: messageID, Role: role, Log: f.get(conversationID)}), nil
}

func (f *fakeHistory) CleanupTestData(_ context.Context, conversationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.conversations, conversationID)
	return nil
}

// testHistory builds a first_mes model line followed by alternating
// user/model entries one minute apart.
func testHistory(createdTs int64, count int) []msgindex.LogEntry {
	log := make([]msgindex.LogEntry, 0, count)
	for i := 0; i < count; i++ {
		entry := msgindex.LogEntry{TimestampMs: createdTs + int64(i)*60_000, GlobalIndex: i}
		switch {
		case i == 0:
			entry.Role = msgindex.RoleModel
			entry.IsFirstMes = true
			entry.Text = "The innkeeper looks up as you enter."
		case i%2 == 1:
			entry.Role = msgindex.RoleUser
			entry.Text = fmt.Sprintf("User line %d: what news from the road?", i)
		default:
			entry.Role = msgindex.RoleModel
			entry.Text = fmt.Sprintf("Model line %d: the pass is snowed in again.", i)
		}
		log = append(log, entry)
	}
	return log
}

func settings() *ai.APISettings {
	return &ai.APISettings{Provider: "openai", APIKey: "sk-test", Model: "gpt-4o-mini"}
}
