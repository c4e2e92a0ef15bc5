package collector

import (
	"math"
	"slices"
	"time"

	"volley/internal/core"
)

// Metrics summarizes a run.
type Metrics struct {
	TestDuration time.Duration

	SessionsStarted   int
	SessionsCompleted int
	SessionsFailed    int
	// SuccessRate is the percentage of completed sessions without error.
	SuccessRate    float64
	SessionsPerSec float64

	MessagesSent   int64
	SendErrors     int64
	MessagesPerSec float64

	// Duration is computed over session durations.
	Duration DurationMetrics

	Errors   map[string]int
	Counters map[string]int64
	// Rates holds every rate as occurrences per second.
	Rates map[string]float64
}

// SendFailureRate returns the percentage of sends that failed.
func (m *Metrics) SendFailureRate() float64 {
	if m.MessagesSent == 0 {
		return 0
	}
	return float64(m.SendErrors) / float64(m.MessagesSent) * 100
}

// DurationMetrics holds latency statistics.
type DurationMetrics struct {
	Min time.Duration
	Max time.Duration
	Avg time.Duration
	P50 time.Duration
	P90 time.Duration
	P95 time.Duration
	P99 time.Duration
}

// ComputeMetrics computes metrics from a snapshot. Pure function, no side effects.
func ComputeMetrics(s Snapshot, testDuration time.Duration) *Metrics {
	m := &Metrics{
		TestDuration: testDuration,
		Errors:       make(map[string]int, len(s.Errors)),
		Counters:     make(map[string]int64, len(s.Counters)),
		Rates:        make(map[string]float64, len(s.Rates)),
	}

	m.SessionsStarted = s.Events[core.EventStarted]
	m.MessagesSent = s.Counters[core.CounterMessagesSent]
	m.SendErrors = s.Counters[core.CounterSendErrors]

	for k, v := range s.Errors {
		m.Errors[k] = v
	}
	for k, v := range s.Counters {
		m.Counters[k] = v
	}

	durations := make([]time.Duration, 0, len(s.Sessions))
	for _, res := range s.Sessions {
		m.SessionsCompleted++
		if !res.Success() {
			m.SessionsFailed++
		}
		durations = append(durations, res.Duration)
	}

	if m.SessionsCompleted > 0 {
		m.SuccessRate = float64(m.SessionsCompleted-m.SessionsFailed) / float64(m.SessionsCompleted) * 100
	}

	if secs := testDuration.Seconds(); secs > 0 {
		m.SessionsPerSec = float64(m.SessionsCompleted) / secs
		m.MessagesPerSec = float64(m.MessagesSent) / secs
		for name, n := range s.Rates {
			m.Rates[name] = float64(n) / secs
		}
	}

	m.Duration = ComputeDurationMetrics(durations)
	return m
}

// ComputeDurationMetrics computes min, max, mean and percentiles of
// durations. The input is not modified.
func ComputeDurationMetrics(durations []time.Duration) DurationMetrics {
	if len(durations) == 0 {
		return DurationMetrics{}
	}

	sorted := slices.Clone(durations)
	slices.Sort(sorted)

	var total time.Duration
	for _, d := range sorted {
		total += d
	}

	return DurationMetrics{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: total / time.Duration(len(sorted)),
		P50: percentile(sorted, 0.50),
		P90: percentile(sorted, 0.90),
		P95: percentile(sorted, 0.95),
		P99: percentile(sorted, 0.99),
	}
}

// ComputePercentile returns the nearest-rank percentile p (0..1) of
// durations.
func ComputePercentile(durations []time.Duration, p float64) time.Duration {
	if len(durations) == 0 {
		return 0
	}
	sorted := slices.Clone(durations)
	slices.Sort(sorted)
	return percentile(sorted, p)
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	rank := int(math.Ceil(p*float64(len(sorted)))) - 1
	rank = max(0, min(rank, len(sorted)-1))
	return sorted[rank]
}
