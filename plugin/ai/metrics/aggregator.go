package metrics

import (
	"context"
	"sort"
	"sync"
	"time"
)

// maxSamples bounds the latency samples kept per operation.
const maxSamples = 1000

// Aggregator aggregates request metrics in memory.
type Aggregator struct {
	mu sync.RWMutex

	operations map[string]*opBucket
	errors     map[string]int64
}

type opBucket struct {
	requestCount int64
	successCount int64
	latencySum   int64   // in milliseconds, all samples
	latencies    []int64 // in milliseconds, most recent maxSamples
}

// NewAggregator creates a new metrics aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		operations: make(map[string]*opBucket),
		errors:     make(map[string]int64),
	}
}

// RecordRequest implements Recorder.
func (a *Aggregator) RecordRequest(_ context.Context, operation string, latency time.Duration, errorCode string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	bucket, exists := a.operations[operation]
	if !exists {
		bucket = &opBucket{latencies: make([]int64, 0, 64)}
		a.operations[operation] = bucket
	}

	ms := latency.Milliseconds()
	bucket.requestCount++
	bucket.latencySum += ms
	if errorCode == "" {
		bucket.successCount++
	} else {
		a.errors[errorCode]++
	}

	if len(bucket.latencies) >= maxSamples {
		bucket.latencies = bucket.latencies[1:]
	}
	bucket.latencies = append(bucket.latencies, ms)
}

// Stats returns a snapshot of everything recorded so far.
func (a *Aggregator) Stats() *Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := &Stats{
		Operations:   make(map[string]*OperationStat, len(a.operations)),
		ErrorsByCode: make(map[string]int64, len(a.errors)),
	}

	allLatencies := make([]int64, 0)
	for name, bucket := range a.operations {
		stats.RequestCount += bucket.requestCount
		stats.SuccessCount += bucket.successCount
		allLatencies = append(allLatencies, bucket.latencies...)

		opStat := &OperationStat{Count: bucket.requestCount}
		if bucket.requestCount > 0 {
			opStat.SuccessRate = float32(bucket.successCount) / float32(bucket.requestCount)
			opStat.AvgLatency = time.Duration(bucket.latencySum/bucket.requestCount) * time.Millisecond
		}
		opStat.LatencyP95 = time.Duration(percentile(bucket.latencies, 95)) * time.Millisecond
		stats.Operations[name] = opStat
	}
	for code, n := range a.errors {
		stats.ErrorsByCode[code] = n
	}

	stats.LatencyP50 = time.Duration(percentile(allLatencies, 50)) * time.Millisecond
	stats.LatencyP95 = time.Duration(percentile(allLatencies, 95)) * time.Millisecond

	return stats
}

// Reset drops all recorded samples.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.operations = make(map[string]*opBucket)
	a.errors = make(map[string]int64)
}

// OperationNames returns the recorded operation names in sorted order.
func (s *Stats) OperationNames() []string {
	names := make([]string, 0, len(s.Operations))
	for name := range s.Operations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func percentile(latencies []int64, p int) int64 {
	if len(latencies) == 0 {
		return 0
	}

	sorted := make([]int64, len(latencies))
	copy(sorted, latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := (len(sorted) - 1) * p / 100
	return sorted[idx]
}
