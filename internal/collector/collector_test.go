package collector

import (
	"errors"
	"sync"
	"testing"
	"time"

	"volley/internal/core"
)

type codedErr struct{ code string }

func (e codedErr) Error() string { return "coded " + e.code }
func (e codedErr) Code() string  { return e.code }

func TestCollector_AggregatesEmitterCalls(t *testing.T) {
	c := NewCollector()
	c.Event(core.EventStarted, nil)
	c.Counter(core.CounterMessagesSent, 1)
	c.Counter(core.CounterMessagesSent, 2)
	c.Rate(core.RateSend)
	c.Rate(core.RateSend)
	c.Event(core.EventCompleted, core.SessionResult{ID: 1, Duration: 10 * time.Millisecond})
	c.Close()

	s := c.Snapshot()
	if s.Events[core.EventStarted] != 1 {
		t.Errorf("expected 1 started event, got %d", s.Events[core.EventStarted])
	}
	if s.Counters[core.CounterMessagesSent] != 3 {
		t.Errorf("expected counter 3, got %d", s.Counters[core.CounterMessagesSent])
	}
	if s.Rates[core.RateSend] != 2 {
		t.Errorf("expected 2 rate ticks, got %d", s.Rates[core.RateSend])
	}
	if len(s.Sessions) != 1 {
		t.Fatalf("expected 1 session result, got %d", len(s.Sessions))
	}
}

func TestCollector_GroupsErrors(t *testing.T) {
	c := NewCollector()
	c.Event(core.EventError, "ECONNREFUSED")
	c.Event(core.EventError, "ECONNREFUSED")
	c.Event(core.EventError, errors.New("broken pipe"))
	c.Event(core.EventError, codedErr{code: "ETIMEDOUT"})
	c.Event(core.EventError, nil)
	c.Close()

	errs := c.Snapshot().Errors
	want := map[string]int{"ECONNREFUSED": 2, "broken pipe": 1, "ETIMEDOUT": 1, "unknown": 1}
	for k, v := range want {
		if errs[k] != v {
			t.Errorf("errors[%q] = %d, want %d", k, errs[k], v)
		}
	}
}

func TestCollector_Compute(t *testing.T) {
	c := NewCollector()
	for i := 0; i < 3; i++ {
		c.Event(core.EventStarted, nil)
	}
	c.Event(core.EventCompleted, core.SessionResult{ID: 1, Duration: 10 * time.Millisecond})
	c.Event(core.EventCompleted, core.SessionResult{ID: 2, Duration: 20 * time.Millisecond})
	c.Event(core.EventCompleted, core.SessionResult{ID: 3, Duration: 30 * time.Millisecond, Err: errors.New("x")})
	c.Close()

	m := c.Compute()
	if m.SessionsStarted != 3 {
		t.Errorf("expected 3 started, got %d", m.SessionsStarted)
	}
	if m.SessionsCompleted != 3 {
		t.Errorf("expected 3 completed, got %d", m.SessionsCompleted)
	}
	if m.SessionsFailed != 1 {
		t.Errorf("expected 1 failed, got %d", m.SessionsFailed)
	}
}

func TestComputePercentile(t *testing.T) {
	durations := []time.Duration{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}
	p50 := ComputePercentile(durations, 0.50)
	if p50 != 50 {
		t.Errorf("expected p50=50, got %d", p50)
	}
	p90 := ComputePercentile(durations, 0.90)
	if p90 != 90 {
		t.Errorf("expected p90=90, got %d", p90)
	}
	if got := ComputePercentile(nil, 0.5); got != 0 {
		t.Errorf("expected 0 for empty input, got %d", got)
	}
}

func TestCollector_ThreadSafety(t *testing.T) {
	c := NewCollector()
	var wg sync.WaitGroup
	numGoroutines := 50
	eventsPerGoroutine := 20

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < eventsPerGoroutine; j++ {
				c.Counter(core.CounterMessagesSent, 1)
				c.Event(core.EventCompleted, core.SessionResult{ID: id, Duration: time.Millisecond})
			}
		}(i)
	}

	wg.Wait()
	c.Close()

	s := c.Snapshot()
	total := s.Counters[core.CounterMessagesSent] + int64(len(s.Sessions)) + c.DroppedEvents()
	if want := int64(numGoroutines * eventsPerGoroutine * 2); total != want {
		t.Errorf("expected %d calls accounted for, got %d", want, total)
	}
}

func TestCollector_AfterClose(t *testing.T) {
	c := NewCollector()
	c.Close()
	c.Close()

	c.Counter("late", 1)
	if c.DroppedEvents() != 1 {
		t.Errorf("expected late call to be dropped, got %d dropped", c.DroppedEvents())
	}
	if c.Snapshot().Counters["late"] != 0 {
		t.Error("late counter must not be recorded")
	}
}

func TestCollector_HandlesNoEvents(t *testing.T) {
	c := NewCollector()
	c.Close()

	m := c.Compute()
	if m.SessionsCompleted != 0 {
		t.Errorf("expected 0 sessions, got %d", m.SessionsCompleted)
	}
}

func TestCollector_SnapshotIsCopy(t *testing.T) {
	c := NewCollector()
	c.Counter("a", 1)
	c.Close()

	s := c.Snapshot()
	s.Counters["a"] = 100
	if c.Snapshot().Counters["a"] != 1 {
		t.Error("modifying a snapshot must not affect the collector")
	}
}

func TestCollector_Duration(t *testing.T) {
	c := NewCollector()
	time.Sleep(10 * time.Millisecond)
	c.Close()

	d := c.Duration()
	if d < 10*time.Millisecond {
		t.Errorf("expected duration >= 10ms, got %v", d)
	}
	time.Sleep(5 * time.Millisecond)
	if c.Duration() != d {
		t.Error("duration must be fixed after Close")
	}
}

func BenchmarkCollectorCounter(b *testing.B) {
	c := NewCollector()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Counter(core.CounterMessagesSent, 1)
	}
	b.StopTimer()
	c.Close()
}
