// Package collector aggregates session events and computes metrics.
package collector

import (
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"volley/internal/core"
)

const bufferSize = 4096

type recordKind int

const (
	kindEvent recordKind = iota
	kindCounter
	kindRate
)

type record struct {
	kind    recordKind
	name    string
	payload any
	delta   int64
}

// Snapshot is the raw aggregate state of a Collector.
type Snapshot struct {
	Events   map[string]int
	Counters map[string]int64
	Rates    map[string]int
	// Errors counts error events by code or message.
	Errors   map[string]int
	Sessions []core.SessionResult
}

func newSnapshot() Snapshot {
	return Snapshot{
		Events:   make(map[string]int),
		Counters: make(map[string]int64),
		Rates:    make(map[string]int),
		Errors:   make(map[string]int),
	}
}

func (s Snapshot) clone() Snapshot {
	return Snapshot{
		Events:   maps.Clone(s.Events),
		Counters: maps.Clone(s.Counters),
		Rates:    maps.Clone(s.Rates),
		Errors:   maps.Clone(s.Errors),
		Sessions: slices.Clone(s.Sessions),
	}
}

// Collector is a core.Emitter aggregating everything sessions publish.
// Emitting never blocks; calls made while the buffer is full or after
// Close are dropped and counted.
type Collector struct {
	ch      chan record
	done    chan struct{}
	dropped atomic.Int64

	// closeMu guards closed and the close of ch.
	closeMu sync.RWMutex
	closed  bool

	mu        sync.Mutex
	snap      Snapshot
	startTime time.Time
	endTime   time.Time
}

// NewCollector creates a new Collector and starts its collection goroutine.
func NewCollector() *Collector {
	c := &Collector{
		ch:        make(chan record, bufferSize),
		done:      make(chan struct{}),
		snap:      newSnapshot(),
		startTime: time.Now(),
	}
	go c.collect()
	return c
}

func (c *Collector) collect() {
	for r := range c.ch {
		c.mu.Lock()
		c.apply(r)
		c.mu.Unlock()
	}
	close(c.done)
}

func (c *Collector) apply(r record) {
	switch r.kind {
	case kindCounter:
		c.snap.Counters[r.name] += r.delta
	case kindRate:
		c.snap.Rates[r.name]++
	case kindEvent:
		c.snap.Events[r.name]++
		switch r.name {
		case core.EventError:
			c.snap.Errors[core.ErrorKey(r.payload)]++
		case core.EventCompleted:
			if res, ok := r.payload.(core.SessionResult); ok {
				c.snap.Sessions = append(c.snap.Sessions, res)
			}
		}
	}
}

func (c *Collector) push(r record) {
	c.closeMu.RLock()
	defer c.closeMu.RUnlock()
	if c.closed {
		c.dropped.Add(1)
		return
	}
	select {
	case c.ch <- r:
	default:
		c.dropped.Add(1)
	}
}

func (c *Collector) Event(name string, payload any) {
	c.push(record{kind: kindEvent, name: name, payload: payload})
}

func (c *Collector) Counter(name string, delta int64) {
	c.push(record{kind: kindCounter, name: name, delta: delta})
}

func (c *Collector) Rate(name string) {
	c.push(record{kind: kindRate, name: name})
}

// Close stops accepting events and waits for the buffer to drain.
// It is safe to call more than once.
func (c *Collector) Close() {
	c.closeMu.Lock()
	if c.closed {
		c.closeMu.Unlock()
		return
	}
	c.closed = true
	close(c.ch)
	c.closeMu.Unlock()

	<-c.done
	c.mu.Lock()
	c.endTime = time.Now()
	c.mu.Unlock()
}

// Snapshot returns a copy of the aggregated state.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap.clone()
}

// Compute returns metrics over everything collected so far.
func (c *Collector) Compute() *Metrics {
	return ComputeMetrics(c.Snapshot(), c.Duration())
}

// DroppedEvents returns how many calls were discarded.
func (c *Collector) DroppedEvents() int64 {
	return c.dropped.Load()
}

// Duration returns the test duration.
// If the collector is closed, returns the duration from start to end.
// If still running, returns the duration from start to now.
func (c *Collector) Duration() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.endTime.IsZero() {
		return c.endTime.Sub(c.startTime)
	}
	return time.Since(c.startTime)
}
