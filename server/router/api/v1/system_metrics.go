package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// MetricsOverviewResponse summarizes message mutations since start.
type MetricsOverviewResponse struct {
	TotalRequests int64            `json:"total_requests"`
	SuccessRate   float64          `json:"success_rate"`
	ErrorCount    int64            `json:"error_count"`
	StreamChunks  int64            `json:"stream_chunks"`
	Operations    []OperationStats `json:"operations"`
}

// OperationStats is the summary of one mutation kind.
type OperationStats struct {
	Operation    string           `json:"operation"`
	Requests     int64            `json:"requests"`
	Errors       int64            `json:"errors"`
	AvgLatencyMs int64            `json:"avg_latency_ms"`
	ErrorCodes   map[string]int64 `json:"error_codes"`
}

// GetMetrics returns the mutation metrics.
// GET /api/v1/system/metrics
func (s *APIV1Service) GetMetrics(c echo.Context) error {
	if s.Metrics == nil {
		return c.JSON(http.StatusOK, MetricsOverviewResponse{Operations: []OperationStats{}})
	}
	snapshot := s.Metrics.Snapshot()
	resp := MetricsOverviewResponse{
		TotalRequests: snapshot.RequestTotal,
		ErrorCount:    snapshot.RequestFailed,
		StreamChunks:  snapshot.StreamChunks,
		Operations:    make([]OperationStats, 0, len(snapshot.Operations)),
	}
	if snapshot.RequestTotal > 0 {
		resp.SuccessRate = float64(snapshot.RequestTotal-snapshot.RequestFailed) / float64(snapshot.RequestTotal)
	}
	for _, name := range snapshot.OperationNames() {
		op := snapshot.Operations[name]
		resp.Operations = append(resp.Operations, OperationStats{
			Operation:    name,
			Requests:     op.ExecutionCount,
			Errors:       op.ErrorCount,
			AvgLatencyMs: op.AverageDuration,
			ErrorCodes:   op.ErrorCodes,
		})
	}
	return c.JSON(http.StatusOK, resp)
}
