// Package progress prints a live status line while a test runs.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"volley/internal/collector"
)

// DefaultInterval is how often the status line refreshes.
const DefaultInterval = time.Second

// clearLine erases the current terminal line.
const clearLine = "\033[K"

// Source supplies the metrics shown on the status line.
type Source interface {
	Compute() *collector.Metrics
}

// Progress redraws a status line on one writer and prints messages above
// it. A quiet Progress prints nothing.
type Progress struct {
	source   Source
	interval time.Duration
	quiet    bool

	mu  sync.Mutex
	out io.Writer

	started time.Time
	done    chan struct{}
	wg      sync.WaitGroup
	stop    sync.Once
}

func NewProgress(src Source, quiet bool) *Progress {
	return &Progress{
		source:   src,
		interval: DefaultInterval,
		quiet:    quiet,
		out:      os.Stderr,
	}
}

func (p *Progress) SetOutput(w io.Writer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.out = w
}

// SetInterval changes the refresh period. Call it before Start.
func (p *Progress) SetInterval(d time.Duration) {
	if d > 0 {
		p.interval = d
	}
}

// Start begins refreshing the status line in the background.
func (p *Progress) Start() {
	if p.quiet {
		return
	}
	p.started = time.Now()
	p.done = make(chan struct{})
	p.wg.Add(1)
	go p.refresh()
}

func (p *Progress) refresh() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			line := StatusLine(p.source.Compute(), time.Since(p.started))
			p.write(line + "\r")
		}
	}
}

// Stop ends the refresh and clears the status line. Only the first call
// after Start has any effect.
func (p *Progress) Stop() {
	if p.quiet || p.done == nil {
		return
	}
	p.stop.Do(func() {
		close(p.done)
		p.wg.Wait()
		p.write("")
	})
}

// Print writes message on its own line above the status line.
func (p *Progress) Print(message string) {
	if p.quiet {
		return
	}
	p.write(message + "\n")
}

func (p *Progress) Printf(format string, args ...any) {
	p.Print(fmt.Sprintf(format, args...))
}

func (p *Progress) write(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = io.WriteString(p.out, clearLine+s)
}

// StatusLine renders one status line for m after elapsed.
func StatusLine(m *collector.Metrics, elapsed time.Duration) string {
	elapsed = elapsed.Round(time.Second)
	mins := int(elapsed.Minutes())
	secs := int(elapsed.Seconds()) % 60

	active := max(0, m.SessionsStarted-m.SessionsCompleted)
	failedPct := 0.0
	if m.SessionsCompleted > 0 {
		failedPct = float64(m.SessionsFailed) / float64(m.SessionsCompleted) * 100
	}

	return fmt.Sprintf("[%02d:%02d] Sessions: %d active, %d done | Messages: %d (%.1f/s) | Failed: %d (%.1f%%)",
		mins, secs, active, m.SessionsCompleted, m.MessagesSent, m.MessagesPerSec, m.SessionsFailed, failedPct)
}
