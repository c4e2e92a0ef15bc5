package ws

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const closeTimeout = time.Second

var ErrClosed = errors.New("connection closed")

// Conn is a text-message connection. Inbound frames are read and discarded
// so control frames keep being processed.
type Conn struct {
	ws        *websocket.Conn
	sessionID int
	debug     *DebugLogger

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
	closed    chan struct{}
	readDone  chan struct{}
}

func newConn(ws *websocket.Conn, sessionID int, debug *DebugLogger) *Conn {
	c := &Conn{
		ws:        ws,
		sessionID: sessionID,
		debug:     debug,
		closed:    make(chan struct{}),
		readDone:  make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Subprotocol returns the protocol negotiated during the handshake.
func (c *Conn) Subprotocol() string {
	return c.ws.Subprotocol()
}

// Send writes payload as one text frame. The write is bounded by ctx's
// deadline, if any.
func (c *Conn) Send(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline, _ := ctx.Deadline()
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return err
	}

	stop := context.AfterFunc(ctx, func() {
		_ = c.ws.NetConn().SetWriteDeadline(time.Now())
	})
	defer stop()

	if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	c.debug.LogFrame(c.sessionID, ">>>", payload)
	return nil
}

// Close sends a close frame and closes the underlying connection. Only the
// first call has an effect.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeTimeout))

		select {
		case <-c.readDone:
		case <-time.After(closeTimeout):
		}
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}

func (c *Conn) readLoop() {
	defer close(c.readDone)
	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		c.debug.LogFrame(c.sessionID, "<<<", msg)
	}
}
