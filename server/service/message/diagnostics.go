package message

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/AliceSyndrome285/CradleAI/plugin/ai/msgindex"
)

// paginationCheckSize is the number of entries created by RunPaginationCheck.
const paginationCheckSize = 85

// paginationPassRate is the share of lookups RunPaginationCheck must resolve.
const paginationPassRate = 0.8

// Diagnostics runs resolution self-tests against a disposable conversation.
type Diagnostics struct {
	service *Service
	history TestHistory
}

// NewDiagnostics creates diagnostics over a service built on history.
func NewDiagnostics(service *Service, history TestHistory) *Diagnostics {
	return &Diagnostics{service: service, history: history}
}

// LookupCase is one expected resolution.
type LookupCase struct {
	MessageID     string        `json:"messageId"`
	Role          msgindex.Role `json:"role"`
	ExpectedIndex int           `json:"expectedIndex"`
	Timestamp     int64         `json:"timestamp,omitempty"`
	Text          string        `json:"text,omitempty"`
}

// LookupResult is the outcome of a LookupCase.
type LookupResult struct {
	LookupCase
	ActualIndex int    `json:"actualIndex"`
	Success     bool   `json:"success"`
	Error       string `json:"error,omitempty"`
}

// IntegrationReport summarizes what the store returns for a conversation.
type IntegrationReport struct {
	MessageCount     int                `json:"messageCount"`
	UserMessageCount int                `json:"userMessageCount"`
	AIMessageCount   int                `json:"aiMessageCount"`
	IndexMap         *msgindex.IndexMap `json:"indexMap"`
}

// PaginationReport is the outcome of RunPaginationCheck.
type PaginationReport struct {
	Total   int      `json:"total"`
	Passed  int      `json:"passed"`
	Success bool     `json:"success"`
	Lines   []string `json:"lines"`
}

func (r *PaginationReport) logf(format string, args ...any) {
	r.Lines = append(r.Lines, fmt.Sprintf(format, args...))
}

// CreateTestMessages fills conversationID with count synthetic entries.
func (d *Diagnostics) CreateTestMessages(ctx context.Context, conversationID string, count int) ([]msgindex.LogEntry, error) {
	log, err := d.history.CreateTestChatHistory(ctx, conversationID, count)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create test messages")
	}
	return log, nil
}

// CheckIndexLookup resolves every case without a client view.
func (d *Diagnostics) CheckIndexLookup(ctx context.Context, conversationID string, cases []LookupCase) []LookupResult {
	results := make([]LookupResult, 0, len(cases))
	for _, c := range cases {
		result := LookupResult{LookupCase: c, ActualIndex: msgindex.NotFound}
		actual, err := d.service.ResolveIndex(ctx, conversationID, c.MessageID, c.Role, nil)
		if err != nil {
			result.Error = err.Error()
		} else {
			result.ActualIndex = actual
			result.Success = actual == c.ExpectedIndex
		}
		results = append(results, result)
	}
	return results
}

// VerifyStorageIntegration checks that the store returns the conversation.
func (d *Diagnostics) VerifyStorageIntegration(ctx context.Context, conversationID string) (*IntegrationReport, error) {
	indexMap, err := d.history.GetTestMessageIndexMap(ctx, conversationID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get index map")
	}
	log, err := d.history.GetCleanChatHistory(ctx, conversationID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get chat history")
	}

	report := &IntegrationReport{MessageCount: len(log), IndexMap: indexMap}
	for _, entry := range log {
		if entry.Role == msgindex.RoleUser {
			report.UserMessageCount++
		} else {
			report.AIMessageCount++
		}
	}
	return report, nil
}

// GenerateTestCases samples about sampleCount lookups, half of them user
// messages, with ids built from the stored timestamps.
func (d *Diagnostics) GenerateTestCases(ctx context.Context, conversationID string, sampleCount int) ([]LookupCase, error) {
	if sampleCount <= 0 {
		return []LookupCase{}, nil
	}
	indexMap, err := d.history.GetTestMessageIndexMap(ctx, conversationID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get index map")
	}

	cases := make([]LookupCase, 0, sampleCount)
	userSample := sampleCount / 2
	cases = sample(cases, indexMap.UserMessages, userSample, msgindex.RoleUser, "test-user")
	cases = sample(cases, indexMap.AIMessages, sampleCount, msgindex.RoleModel, "test-ai")
	return cases, nil
}

func sample(cases []LookupCase, entries []msgindex.IndexedEntry, limit int, role msgindex.Role, suffix string) []LookupCase {
	if len(entries) == 0 || len(cases) >= limit {
		return cases
	}
	step := len(entries) / (limit - len(cases))
	if step < 1 {
		step = 1
	}
	for i := 0; i < len(entries) && len(cases) < limit; i += step {
		e := entries[i]
		cases = append(cases, LookupCase{
			MessageID:     fmt.Sprintf("%d-%s", e.Timestamp, suffix),
			Role:          role,
			ExpectedIndex: e.RoleIndex,
			Timestamp:     e.Timestamp,
			Text:          e.Text,
		})
	}
	return cases
}

// CleanupTestData removes the test conversation.
func (d *Diagnostics) CleanupTestData(ctx context.Context, conversationID string) error {
	return d.history.CleanupTestData(ctx, conversationID)
}

// RunPaginationCheck creates an 85 entry conversation, splits it into
// pages of pageSize counted from the newest entry and resolves the first,
// middle and last message of each page with only that page as client view.
// It also checks a single-message page and an empty view. The check passes
// when at least 80% of the lookups resolve to the expected role-index.
func (d *Diagnostics) RunPaginationCheck(ctx context.Context, conversationID string, pageSize int) (*PaginationReport, error) {
	if pageSize <= 0 {
		return nil, errors.Errorf("invalid page size %d", pageSize)
	}
	report := &PaginationReport{Lines: []string{}}

	if _, err := d.CreateTestMessages(ctx, conversationID, paginationCheckSize); err != nil {
		return nil, err
	}
	integration, err := d.VerifyStorageIntegration(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	report.logf("storage integration: %d messages", integration.MessageCount)

	log, err := d.history.GetCleanChatHistory(ctx, conversationID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get chat history")
	}
	pages := paginate(log, pageSize, 3)
	report.logf("pages: %d/%d/%d messages", len(pages[0]), len(pages[1]), len(pages[2]))

	check := func(name string, entry msgindex.LogEntry, view []msgindex.ClientMessage, messageID string) {
		role := entry.Role.Normalize()
		want := msgindex.RoleIndexOf(log, entry.GlobalIndex, role)
		got, err := d.service.ResolveIndex(ctx, conversationID, messageID, role, view)
		report.Total++
		switch {
		case err != nil:
			report.logf("FAIL %s %s: %v", name, role, err)
		case got == want:
			report.Passed++
			report.logf("ok   %s %s: role-index %d", name, role, got)
		default:
			report.logf("FAIL %s %s: want %d, got %d", name, role, want, got)
			if direct, err := d.history.VerifyMessageIndexLookup(ctx, conversationID, messageID, role); err == nil {
				report.logf("     timestamp-only lookup: %d", direct)
			}
		}
	}

	for p, page := range pages {
		if len(page) == 0 {
			report.logf("page %d: empty, skipped", p+1)
			continue
		}
		view := pageView(page)
		for _, i := range []int{0, len(page) / 2, len(page) - 1} {
			if page[i].IsFirstMes {
				continue
			}
			check(fmt.Sprintf("page %d #%d", p+1, i), page[i], view, view[i].ID)
		}
	}

	if oldest := pages[2]; len(oldest) > 0 && !oldest[0].IsFirstMes {
		view := pageView(oldest[:1])
		check("single-message page", oldest[0], view, view[0].ID)
	}
	if len(log) > 1 {
		last := log[len(log)-1]
		check("empty view", last, nil, msgindex.NewMessageID(last.TimestampMs))
	}

	report.Success = report.Total > 0 && float64(report.Passed) >= paginationPassRate*float64(report.Total)
	report.logf("passed %d/%d", report.Passed, report.Total)
	return report, nil
}

// paginate splits log into count pages of size, newest page first.
func paginate(log []msgindex.LogEntry, size, count int) [][]msgindex.LogEntry {
	pages := make([][]msgindex.LogEntry, count)
	end := len(log)
	for p := 0; p < count; p++ {
		start := end - size
		if start < 0 {
			start = 0
		}
		pages[p] = log[start:end]
		end = start
	}
	return pages
}

// pageView renders a page the way a client would, ids included.
func pageView(page []msgindex.LogEntry) []msgindex.ClientMessage {
	view := make([]msgindex.ClientMessage, 0, len(page))
	for _, entry := range page {
		view = append(view, msgindex.ClientMessage{
			ID:           msgindex.NewMessageID(entry.TimestampMs),
			Text:         entry.Text,
			Sender:       msgindex.SenderFor(entry.Role),
			Timestamp:    entry.TimestampMs,
			MessageIndex: entry.GlobalIndex,
		})
	}
	return view
}
