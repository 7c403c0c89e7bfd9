// Package metrics records round-trip latency of chat client operations.
package metrics

import (
	"context"
	"time"
)

// Recorder receives one sample per outgoing call.
type Recorder interface {
	// RecordRequest records request metrics. errorCode is empty on success.
	RecordRequest(ctx context.Context, operation string, latency time.Duration, errorCode string)
}

// Stats represents aggregated request metrics.
type Stats struct {
	RequestCount int64                     `json:"request_count"`
	SuccessCount int64                     `json:"success_count"`
	LatencyP50   time.Duration             `json:"latency_p50"`
	LatencyP95   time.Duration             `json:"latency_p95"`
	Operations   map[string]*OperationStat `json:"operations"`
	ErrorsByCode map[string]int64          `json:"errors_by_code"`
}

// OperationStat represents statistics for a single operation.
type OperationStat struct {
	Count       int64         `json:"count"`
	SuccessRate float32       `json:"success_rate"`
	AvgLatency  time.Duration `json:"avg_latency"`
	LatencyP95  time.Duration `json:"latency_p95"`
}

// Nop discards all samples.
type Nop struct{}

// RecordRequest implements Recorder.
func (Nop) RecordRequest(context.Context, string, time.Duration, string) {}
