package collector

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"time"
)

// FormatText writes metrics in human-readable format.
func FormatText(w io.Writer, m *Metrics, thresholds *ThresholdResults) {
	if m.SessionsStarted == 0 && m.SessionsCompleted == 0 {
		fmt.Fprintln(w, "No sessions run")
		return
	}

	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Volley - Load Test Results")
	fmt.Fprintln(w, "==============================")
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "Duration:       %v\n", m.TestDuration.Round(time.Millisecond))
	fmt.Fprintf(w, "Sessions:       %s started, %s completed, %s failed\n",
		formatNumber(m.SessionsStarted), formatNumber(m.SessionsCompleted), formatNumber(m.SessionsFailed))
	fmt.Fprintf(w, "Success Rate:   %.1f%%\n", m.SuccessRate)
	fmt.Fprintf(w, "Sessions/sec:   %.1f\n", m.SessionsPerSec)
	fmt.Fprintf(w, "Messages Sent:  %s (%.1f/sec, %s failed)\n",
		formatNumber(int(m.MessagesSent)), m.MessagesPerSec, formatNumber(int(m.SendErrors)))
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Session Duration:")
	fmt.Fprintf(w, "  Min:    %s\n", FormatDuration(m.Duration.Min))
	fmt.Fprintf(w, "  Avg:    %s\n", FormatDuration(m.Duration.Avg))
	fmt.Fprintf(w, "  P50:    %s\n", FormatDuration(m.Duration.P50))
	fmt.Fprintf(w, "  P90:    %s\n", FormatDuration(m.Duration.P90))
	fmt.Fprintf(w, "  P95:    %s\n", FormatDuration(m.Duration.P95))
	fmt.Fprintf(w, "  P99:    %s\n", FormatDuration(m.Duration.P99))
	fmt.Fprintf(w, "  Max:    %s\n", FormatDuration(m.Duration.Max))

	if len(m.Errors) > 0 {
		fmt.Fprintln(w, "")
		fmt.Fprintln(w, "Errors:")
		for _, code := range slices.Sorted(maps.Keys(m.Errors)) {
			fmt.Fprintf(w, "  %-30s %s\n", code, formatNumber(m.Errors[code]))
		}
	}

	if len(m.Counters) > 0 {
		fmt.Fprintln(w, "")
		fmt.Fprintln(w, "Counters:")
		for _, name := range slices.Sorted(maps.Keys(m.Counters)) {
			fmt.Fprintf(w, "  %-30s %d\n", name, m.Counters[name])
		}
	}

	if len(m.Rates) > 0 {
		fmt.Fprintln(w, "")
		fmt.Fprintln(w, "Rates:")
		for _, name := range slices.Sorted(maps.Keys(m.Rates)) {
			fmt.Fprintf(w, "  %-30s %.1f/sec\n", name, m.Rates[name])
		}
	}

	if thresholds != nil && len(thresholds.Results) > 0 {
		fmt.Fprintln(w, "")
		fmt.Fprintln(w, "Thresholds:")
		for _, result := range thresholds.Results {
			symbol := "✓"
			if !result.Passed {
				symbol = "✗"
			}
			fmt.Fprintf(w, "  %s %s %s %s (actual: %s)\n",
				symbol, result.Name, result.operator(), result.Threshold, result.Actual)
		}
	}
}

// FormatJSON writes metrics in JSON format.
func FormatJSON(w io.Writer, m *Metrics, thresholds *ThresholdResults) {
	output := struct {
		Duration          string              `json:"duration"`
		SessionsStarted   int                 `json:"sessionsStarted"`
		SessionsCompleted int                 `json:"sessionsCompleted"`
		SessionsFailed    int                 `json:"sessionsFailed"`
		SuccessRate       float64             `json:"successRate"`
		SessionsPerSec    float64             `json:"sessionsPerSec"`
		MessagesSent      int64               `json:"messagesSent"`
		SendErrors        int64               `json:"sendErrors"`
		MessagesPerSec    float64             `json:"messagesPerSec"`
		Durations         jsonDurationMetrics `json:"sessionDurations"`
		Errors            map[string]int      `json:"errors"`
		Counters          map[string]int64    `json:"counters"`
		Rates             map[string]float64  `json:"rates"`
		Thresholds        *ThresholdResults   `json:"thresholds,omitempty"`
	}{
		Duration:          m.TestDuration.Round(time.Millisecond).String(),
		SessionsStarted:   m.SessionsStarted,
		SessionsCompleted: m.SessionsCompleted,
		SessionsFailed:    m.SessionsFailed,
		SuccessRate:       m.SuccessRate,
		SessionsPerSec:    m.SessionsPerSec,
		MessagesSent:      m.MessagesSent,
		SendErrors:        m.SendErrors,
		MessagesPerSec:    m.MessagesPerSec,
		Durations:         toJSONDurationMetrics(m.Duration),
		Errors:            m.Errors,
		Counters:          m.Counters,
		Rates:             m.Rates,
		Thresholds:        thresholds,
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	_ = encoder.Encode(output) // stdout errors are unrecoverable
}

type jsonDurationMetrics struct {
	Min string `json:"min"`
	Max string `json:"max"`
	Avg string `json:"avg"`
	P50 string `json:"p50"`
	P90 string `json:"p90"`
	P95 string `json:"p95"`
	P99 string `json:"p99"`
}

func toJSONDurationMetrics(d DurationMetrics) jsonDurationMetrics {
	return jsonDurationMetrics{
		Min: FormatDuration(d.Min),
		Max: FormatDuration(d.Max),
		Avg: FormatDuration(d.Avg),
		P50: FormatDuration(d.P50),
		P90: FormatDuration(d.P90),
		P95: FormatDuration(d.P95),
		P99: FormatDuration(d.P99),
	}
}

func formatNumber(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%d,%03d", n/1000, n%1000)
	}
	return fmt.Sprintf("%d,%03d,%03d", n/1000000, n/1000%1000, n%1000)
}
