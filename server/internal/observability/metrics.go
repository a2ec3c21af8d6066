package observability

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics aggregates outcomes of message mutations per operation.
type Metrics struct {
	mu         sync.Mutex
	operations map[string]*OperationMetrics

	requestTotal  atomic.Int64
	requestFailed atomic.Int64
	streamChunks  atomic.Int64
}

// OperationMetrics holds the counters of one operation.
type OperationMetrics struct {
	executionCount atomic.Int64
	errorCount     atomic.Int64
	totalDuration  atomic.Int64 // milliseconds

	mu         sync.Mutex
	errorCodes map[string]int64
}

// NewMetrics creates an empty collector.
func NewMetrics() *Metrics {
	return &Metrics{operations: make(map[string]*OperationMetrics)}
}

func (m *Metrics) operation(name string) *OperationMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	om, ok := m.operations[name]
	if !ok {
		om = &OperationMetrics{errorCodes: make(map[string]int64)}
		m.operations[name] = om
	}
	return om
}

// RecordRequest counts one call of operation.
func (m *Metrics) RecordRequest(operation string) {
	m.requestTotal.Add(1)
	m.operation(operation).executionCount.Add(1)
}

// RecordFailure counts one failed call of operation with its error code.
func (m *Metrics) RecordFailure(operation, code string) {
	m.requestFailed.Add(1)
	om := m.operation(operation)
	om.errorCount.Add(1)
	om.mu.Lock()
	om.errorCodes[code]++
	om.mu.Unlock()
}

// RecordDuration adds the duration of one call of operation.
func (m *Metrics) RecordDuration(operation string, d time.Duration) {
	m.operation(operation).totalDuration.Add(d.Milliseconds())
}

// RecordStreamChunk counts one streamed regenerate chunk.
func (m *Metrics) RecordStreamChunk() {
	m.streamChunks.Add(1)
}

// Reset clears every counter.
func (m *Metrics) Reset() {
	m.requestTotal.Store(0)
	m.requestFailed.Store(0)
	m.streamChunks.Store(0)

	m.mu.Lock()
	m.operations = make(map[string]*OperationMetrics)
	m.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the counters.
func (m *Metrics) Snapshot() *MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := &MetricsSnapshot{
		RequestTotal:  m.requestTotal.Load(),
		RequestFailed: m.requestFailed.Load(),
		StreamChunks:  m.streamChunks.Load(),
		Operations:    make(map[string]*OperationSnapshot, len(m.operations)),
	}
	for name, om := range m.operations {
		count := om.executionCount.Load()
		op := &OperationSnapshot{
			ExecutionCount: count,
			ErrorCount:     om.errorCount.Load(),
			TotalDuration:  om.totalDuration.Load(),
			ErrorCodes:     make(map[string]int64),
		}
		if count > 0 {
			op.AverageDuration = op.TotalDuration / count
		}
		om.mu.Lock()
		for code, n := range om.errorCodes {
			op.ErrorCodes[code] = n
		}
		om.mu.Unlock()
		snapshot.Operations[name] = op
	}
	return snapshot
}

// OperationNames returns the recorded operations in name order.
func (s *MetricsSnapshot) OperationNames() []string {
	names := make([]string, 0, len(s.Operations))
	for name := range s.Operations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MetricsSnapshot is a point-in-time copy of Metrics.
type MetricsSnapshot struct {
	RequestTotal  int64                         `json:"request_total"`
	RequestFailed int64                         `json:"request_failed"`
	StreamChunks  int64                         `json:"stream_chunks"`
	Operations    map[string]*OperationSnapshot `json:"operations"`
}

// OperationSnapshot is the copy of one operation's counters.
type OperationSnapshot struct {
	ExecutionCount  int64            `json:"execution_count"`
	ErrorCount      int64            `json:"error_count"`
	TotalDuration   int64            `json:"total_duration_ms"`
	AverageDuration int64            `json:"avg_duration_ms"`
	ErrorCodes      map[string]int64 `json:"error_codes"`
}
