package collector

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func sampleMetrics() *Metrics {
	return &Metrics{
		TestDuration:      10 * time.Second,
		SessionsStarted:   100,
		SessionsCompleted: 100,
		SessionsFailed:    5,
		SuccessRate:       95.0,
		SessionsPerSec:    10.0,
		MessagesSent:      300,
		SendErrors:        2,
		MessagesPerSec:    30.0,
		Duration: DurationMetrics{
			Min: 10 * time.Millisecond,
			Max: 100 * time.Millisecond,
			Avg: 50 * time.Millisecond,
			P50: 45 * time.Millisecond,
			P90: 80 * time.Millisecond,
			P95: 90 * time.Millisecond,
			P99: 98 * time.Millisecond,
		},
		Errors:   map[string]int{"ECONNREFUSED": 5},
		Counters: map[string]int64{"engine.ws.messages_sent": 300},
		Rates:    map[string]float64{"engine.ws.send_rate": 30},
	}
}

func TestFormatText_BasicOutput(t *testing.T) {
	var buf bytes.Buffer
	FormatText(&buf, sampleMetrics(), nil)

	output := buf.String()

	for _, want := range []string{
		"Volley - Load Test Results",
		"Sessions:       100 started, 100 completed, 5 failed",
		"Success Rate:   95.0%",
		"Sessions/sec:   10.0",
		"Messages Sent:  300 (30.0/sec, 2 failed)",
		"Session Duration:",
		"P95:    90ms",
		"Errors:",
		"ECONNREFUSED",
		"Counters:",
		"engine.ws.messages_sent",
		"Rates:",
		"30.0/sec",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}
	if strings.Contains(output, "Thresholds:") {
		t.Errorf("unexpected thresholds section, got: %s", output)
	}
}

func TestFormatText_NoSessions(t *testing.T) {
	var buf bytes.Buffer
	FormatText(&buf, &Metrics{}, nil)

	if !strings.Contains(buf.String(), "No sessions run") {
		t.Errorf("expected 'No sessions run' message, got: %s", buf.String())
	}
}

func TestFormatText_WithThresholds(t *testing.T) {
	thresholds := &ThresholdResults{
		Passed: false,
		Results: []ThresholdResult{
			{Name: "session_duration.p95", Passed: true, Threshold: "100ms", Actual: "90ms"},
			{Name: "session_failed.rate", Passed: false, Threshold: "1%", Actual: "5.00%"},
			{Name: "message_rate.min", Passed: true, Op: ">=", Threshold: "50.0/s", Actual: "61.2/s"},
		},
	}

	var buf bytes.Buffer
	FormatText(&buf, sampleMetrics(), thresholds)

	output := buf.String()
	if !strings.Contains(output, "Thresholds:") {
		t.Errorf("expected Thresholds section, got: %s", output)
	}
	if !strings.Contains(output, "✓ session_duration.p95") {
		t.Errorf("expected passed threshold with checkmark, got: %s", output)
	}
	if !strings.Contains(output, "✗ session_failed.rate < 1%") {
		t.Errorf("expected failed threshold with X, got: %s", output)
	}
	if !strings.Contains(output, "✓ message_rate.min >= 50.0/s (actual: 61.2/s)") {
		t.Errorf("expected rate floor rendered with >=, got: %s", output)
	}
}

func TestFormatJSON_BasicOutput(t *testing.T) {
	var buf bytes.Buffer
	FormatJSON(&buf, sampleMetrics(), nil)

	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, buf.String())
	}

	if out["sessionsCompleted"] != 100.0 {
		t.Errorf("expected sessionsCompleted 100, got %v", out["sessionsCompleted"])
	}
	if out["messagesSent"] != 300.0 {
		t.Errorf("expected messagesSent 300, got %v", out["messagesSent"])
	}
	durations, ok := out["sessionDurations"].(map[string]any)
	if !ok || durations["p95"] != "90ms" {
		t.Errorf("expected sessionDurations.p95 90ms, got %v", out["sessionDurations"])
	}
	if _, ok := out["thresholds"]; ok {
		t.Error("thresholds should be omitted when nil")
	}
}

func TestFormatJSON_WithThresholds(t *testing.T) {
	thresholds := &ThresholdResults{
		Passed: true,
		Results: []ThresholdResult{
			{Name: "test_threshold", Passed: true, Threshold: "100ms", Actual: "10ms"},
		},
	}

	var buf bytes.Buffer
	FormatJSON(&buf, sampleMetrics(), thresholds)

	output := buf.String()
	if !strings.Contains(output, `"thresholds"`) {
		t.Errorf("expected thresholds in JSON, got: %s", output)
	}
	if !strings.Contains(output, `"test_threshold"`) {
		t.Errorf("expected threshold name in JSON, got: %s", output)
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		input    int
		expected string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{12345, "12,345"},
		{999999, "999,999"},
		{1234567, "1,234,567"},
	}

	for _, tt := range tests {
		if got := formatNumber(tt.input); got != tt.expected {
			t.Errorf("formatNumber(%d) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		input    time.Duration
		expected string
	}{
		{500 * time.Microsecond, "500µs"},
		{15 * time.Millisecond, "15ms"},
		{1500 * time.Millisecond, "1.5s"},
		{90 * time.Second, "1m30s"},
	}

	for _, tt := range tests {
		if got := FormatDuration(tt.input); got != tt.expected {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}
