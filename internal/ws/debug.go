package ws

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

const maxFrameLogSize = 1024

// DebugLogger writes connection handshakes and frames in a human-readable
// form. A nil *DebugLogger discards everything.
type DebugLogger struct {
	out io.Writer
	mu  sync.Mutex
}

func NewDebugLogger(out io.Writer) *DebugLogger {
	return &DebugLogger{out: out}
}

func (d *DebugLogger) LogConnect(sessionID int, target string, protocols []string, header http.Header) {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "\n[Session %d] >>> CONNECT %s\n", sessionID, target)
	fmt.Fprintf(&buf, "  Subprotocols: %s\n", strings.Join(protocols, ", "))
	if len(header) > 0 {
		buf.WriteString("  Headers:\n")
		for name, values := range header {
			fmt.Fprintf(&buf, "    %s: %s\n", name, strings.Join(values, ", "))
		}
	}
	fmt.Fprint(d.out, buf.String())
}

func (d *DebugLogger) LogConnected(sessionID int, protocol string, duration time.Duration) {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	fmt.Fprintf(d.out, "[Session %d] <<< CONNECTED (%s) protocol=%q\n",
		sessionID, duration.Round(time.Millisecond), protocol)
}

// LogFrame logs a text frame. Direction is ">>>" for outbound and "<<<" for
// inbound frames.
func (d *DebugLogger) LogFrame(sessionID int, direction string, payload []byte) {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	fmt.Fprintf(d.out, "[Session %d] %s FRAME %s\n", sessionID, direction, truncateFrame(payload))
}

func (d *DebugLogger) LogError(sessionID int, op string, errMsg string, duration time.Duration) {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	fmt.Fprintf(d.out, "[Session %d] !!! ERROR: %s (%s)\n  %s\n",
		sessionID, op, duration.Round(time.Millisecond), errMsg)
}

func truncateFrame(payload []byte) string {
	if len(payload) <= maxFrameLogSize {
		return string(payload)
	}
	return string(payload[:maxFrameLogSize]) + fmt.Sprintf("... (truncated, %d bytes total)", len(payload))
}
