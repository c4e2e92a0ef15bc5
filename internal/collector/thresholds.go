package collector

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Thresholds defines pass/fail criteria for the test.
type Thresholds struct {
	SessionDuration *DurationThresholds `yaml:"session_duration"`
	SessionFailed   *FailureThresholds  `yaml:"session_failed"`
	SendFailed      *FailureThresholds  `yaml:"send_failed"`
	MessageRate     *RateThresholds     `yaml:"message_rate"`
}

// DurationThresholds defines latency limits.
type DurationThresholds struct {
	Avg time.Duration `yaml:"avg"`
	P50 time.Duration `yaml:"p50"`
	P90 time.Duration `yaml:"p90"`
	P95 time.Duration `yaml:"p95"`
	P99 time.Duration `yaml:"p99"`
}

// FailureThresholds defines error rate limits.
type FailureThresholds struct {
	Rate string `yaml:"rate"`
}

// RateThresholds defines throughput floors.
type RateThresholds struct {
	// Min is the lowest acceptable messages per second.
	Min float64 `yaml:"min"`
}

// ThresholdResult represents the outcome of a single threshold check.
type ThresholdResult struct {
	Name      string `json:"name"`
	Passed    bool   `json:"passed"`
	// Op is the comparison the actual value must satisfy; empty means "<".
	Op        string `json:"op,omitempty"`
	Threshold string `json:"threshold"`
	Actual    string `json:"actual"`
}

func (r ThresholdResult) operator() string {
	if r.Op == "" {
		return "<"
	}
	return r.Op
}

// ThresholdResults contains all threshold check results.
type ThresholdResults struct {
	Passed  bool              `json:"passed"`
	Results []ThresholdResult `json:"results"`
}

// Validate reports malformed rates.
func (t *Thresholds) Validate() error {
	if t == nil {
		return nil
	}
	for name, f := range map[string]*FailureThresholds{
		"session_failed": t.SessionFailed,
		"send_failed":    t.SendFailed,
	} {
		if f == nil || f.Rate == "" {
			continue
		}
		if _, err := parsePercentage(f.Rate); err != nil {
			return fmt.Errorf("thresholds.%s: %w", name, err)
		}
	}
	if t.MessageRate != nil && t.MessageRate.Min < 0 {
		return fmt.Errorf("thresholds.message_rate: min %v must not be negative", t.MessageRate.Min)
	}
	return nil
}

// Check evaluates all thresholds against computed metrics.
func (t *Thresholds) Check(m *Metrics) *ThresholdResults {
	results := &ThresholdResults{Passed: true}
	if t == nil {
		return results
	}

	if d := t.SessionDuration; d != nil {
		results.duration("avg", d.Avg, m.Duration.Avg)
		results.duration("p50", d.P50, m.Duration.P50)
		results.duration("p90", d.P90, m.Duration.P90)
		results.duration("p95", d.P95, m.Duration.P95)
		results.duration("p99", d.P99, m.Duration.P99)
	}
	if t.SessionFailed != nil && t.SessionFailed.Rate != "" {
		failed := 0.0
		if m.SessionsCompleted > 0 {
			failed = 100.0 - m.SuccessRate
		}
		results.failureRate("session_failed.rate", t.SessionFailed.Rate, failed)
	}
	if t.SendFailed != nil && t.SendFailed.Rate != "" {
		results.failureRate("send_failed.rate", t.SendFailed.Rate, m.SendFailureRate())
	}
	if t.MessageRate != nil && t.MessageRate.Min > 0 {
		results.append(ThresholdResult{
			Name:      "message_rate.min",
			Passed:    m.MessagesPerSec >= t.MessageRate.Min,
			Op:        ">=",
			Threshold: fmt.Sprintf("%.1f/s", t.MessageRate.Min),
			Actual:    fmt.Sprintf("%.1f/s", m.MessagesPerSec),
		})
	}

	return results
}

func (r *ThresholdResults) append(res ThresholdResult) {
	if !res.Passed {
		r.Passed = false
	}
	r.Results = append(r.Results, res)
}

// add records an upper-bound check.
func (r *ThresholdResults) add(name string, passed bool, threshold, actual string) {
	r.append(ThresholdResult{Name: name, Passed: passed, Threshold: threshold, Actual: actual})
}

// duration checks one session duration statistic; a zero limit is unset.
func (r *ThresholdResults) duration(stat string, limit, actual time.Duration) {
	if limit == 0 {
		return
	}
	r.add("session_duration."+stat, actual < limit, FormatDuration(limit), FormatDuration(actual))
}

func (r *ThresholdResults) failureRate(name, threshold string, actualRate float64) {
	limit, err := parsePercentage(threshold)
	if err != nil {
		return
	}
	r.add(name, actualRate < limit, threshold, fmt.Sprintf("%.2f%%", actualRate))
}

func parsePercentage(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if !strings.HasSuffix(s, "%") {
		return 0, fmt.Errorf("invalid percentage format: %s", s)
	}
	s = strings.TrimSuffix(s, "%")
	return strconv.ParseFloat(s, 64)
}

// FormatDuration formats a duration for display.
func FormatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return d.Round(time.Second).String()
}

// Violations returns only the failed threshold results.
func (r *ThresholdResults) Violations() []ThresholdResult {
	var violations []ThresholdResult
	for _, result := range r.Results {
		if !result.Passed {
			violations = append(violations, result)
		}
	}
	return violations
}
