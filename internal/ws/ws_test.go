package ws

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu       sync.Mutex
	messages []string
	protocol string
	header   http.Header
	received chan struct{}
}

func newRecordingServer(t *testing.T) (*httptest.Server, *recorder) {
	t.Helper()
	rec := &recorder{received: make(chan struct{}, 16)}
	upgrader := websocket.Upgrader{Subprotocols: []string{"graphql-ws", "graphql-transport-ws"}}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		rec.mu.Lock()
		rec.protocol = conn.Subprotocol()
		rec.header = r.Header.Clone()
		rec.mu.Unlock()

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			rec.mu.Lock()
			rec.messages = append(rec.messages, string(msg))
			rec.mu.Unlock()
			rec.received <- struct{}{}
		}
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestDialer_SendAndClose(t *testing.T) {
	srv, rec := newRecordingServer(t)

	var debug bytes.Buffer
	d := NewDialer(Options{Debug: NewDebugLogger(&debug)})

	header := http.Header{}
	header.Set("X-Portal", "22")
	conn, err := d.Dial(context.Background(), wsURL(srv), []string{"graphql-ws"}, header)
	require.NoError(t, err)

	require.NoError(t, conn.Send(context.Background(), []byte(`{"type":"start"}`)))
	select {
	case <-rec.received:
	case <-time.After(2 * time.Second):
		t.Fatal("message not received")
	}

	require.NoError(t, conn.Close())
	assert.NoError(t, conn.Close())

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []string{`{"type":"start"}`}, rec.messages)
	assert.Equal(t, "graphql-ws", rec.protocol)
	assert.Equal(t, "22", rec.header.Get("X-Portal"))

	assert.Contains(t, debug.String(), "CONNECT")
	assert.Contains(t, debug.String(), `>>> FRAME {"type":"start"}`)
}

func TestConn_SendAfterClose(t *testing.T) {
	srv, _ := newRecordingServer(t)
	conn, err := NewDialer(Options{}).Dial(context.Background(), wsURL(srv), nil, nil)
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	assert.ErrorIs(t, conn.Send(context.Background(), []byte("x")), ErrClosed)
}

func TestConn_SendCanceled(t *testing.T) {
	srv, _ := newRecordingServer(t)
	conn, err := NewDialer(Options{}).Dial(context.Background(), wsURL(srv), nil, nil)
	require.NoError(t, err)
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, conn.Send(ctx, []byte("x")), context.Canceled)
}

func TestDialer_Refused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	_, err = NewDialer(Options{}).Dial(context.Background(), "ws://"+addr, nil, nil)
	require.Error(t, err)

	var dialErr *DialError
	require.True(t, errors.As(err, &dialErr))
	assert.Equal(t, CodeConnRefused, dialErr.Code())
}

func TestDialer_HandshakeRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewDialer(Options{}).Dial(context.Background(), wsURL(srv), nil, nil)
	var dialErr *DialError
	require.True(t, errors.As(err, &dialErr))
	assert.Equal(t, http.StatusForbidden, dialErr.Status)
	assert.Equal(t, CodeHandshake, dialErr.Code())
}

func TestDialer_InvalidURL(t *testing.T) {
	for _, target := range []string{"http://example.com", "ws://", "::bad"} {
		_, err := NewDialer(Options{}).Dial(context.Background(), target, nil, nil)
		var dialErr *DialError
		require.True(t, errors.As(err, &dialErr), target)
		assert.Equal(t, CodeInvalidURL, dialErr.Code(), target)
	}
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{context.Canceled, CodeCanceled},
		{context.DeadlineExceeded, CodeTimeout},
		{&net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, CodeConnRefused},
		{&net.OpError{Op: "read", Err: syscall.ECONNRESET}, CodeConnReset},
		{&net.DNSError{Name: "nowhere.invalid", IsNotFound: true}, CodeNotFound},
		{&net.DNSError{Name: "slow", IsTimeout: true}, CodeTimeout},
		{websocket.ErrBadHandshake, CodeHandshake},
		{errors.New("odd"), CodeUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ErrorCode(tt.err), "%v", tt.err)
	}
}

func TestSubprotocols(t *testing.T) {
	tests := []struct {
		name      string
		explicit  []string
		headers   map[string]string
		want      []string
		wantOther int
	}{
		{name: "default", want: []string{"graphql-ws"}},
		{name: "explicit", explicit: []string{"a", "b"}, want: []string{"a", "b"}},
		{
			name:     "header appended and deduplicated",
			explicit: []string{"a"},
			headers:  map[string]string{"sec-websocket-protocol": "b, a ,c", "X-Id": "1"},
			want:     []string{"a", "b", "c"}, wantOther: 1,
		},
		{
			name:    "header only",
			headers: map[string]string{"Sec-WebSocket-Protocol": "graphql-transport-ws"},
			want:    []string{"graphql-transport-ws"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, rest := Subprotocols(tt.explicit, tt.headers)
			assert.Equal(t, tt.want, got)
			assert.Len(t, rest, tt.wantOther)
			assert.Empty(t, rest.Get("Sec-WebSocket-Protocol"))
		})
	}
}

func TestMergeTLS(t *testing.T) {
	yes, no := true, false
	base := TLSOptions{InsecureSkipVerify: &yes, ServerName: "base", CAFile: "ca.pem"}
	override := TLSOptions{InsecureSkipVerify: &no, ServerName: "override"}

	got := MergeTLS(base, override)
	assert.False(t, *got.InsecureSkipVerify)
	assert.Equal(t, "override", got.ServerName)
	assert.Equal(t, "ca.pem", got.CAFile)

	assert.Equal(t, base, MergeTLS(base, TLSOptions{}))
}

func TestTLSOptions_Config(t *testing.T) {
	cfg, err := TLSOptions{}.Config()
	require.NoError(t, err)
	assert.Nil(t, cfg)

	yes := true
	cfg, err = TLSOptions{InsecureSkipVerify: &yes, ServerName: "example"}.Config()
	require.NoError(t, err)
	assert.True(t, cfg.InsecureSkipVerify)
	assert.Equal(t, "example", cfg.ServerName)

	_, err = TLSOptions{CAFile: filepath.Join(t.TempDir(), "missing.pem")}.Config()
	assert.Error(t, err)

	empty := filepath.Join(t.TempDir(), "empty.pem")
	require.NoError(t, os.WriteFile(empty, []byte("not a cert"), 0o644))
	_, err = TLSOptions{CAFile: empty}.Config()
	assert.Error(t, err)
}

func TestDialer_TLS(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	target := "wss" + strings.TrimPrefix(srv.URL, "https")

	_, err := NewDialer(Options{}).Dial(context.Background(), target, nil, nil)
	require.Error(t, err, "self-signed certificate must be rejected by default")

	yes := true
	tlsCfg, err := TLSOptions{InsecureSkipVerify: &yes}.Config()
	require.NoError(t, err)
	conn, err := NewDialer(Options{TLS: tlsCfg}).Dial(context.Background(), target, nil, nil)
	require.NoError(t, err)
	assert.NoError(t, conn.Close())
}

func TestDebugLogger_Nil(t *testing.T) {
	var d *DebugLogger
	d.LogConnect(1, "ws://x", nil, nil)
	d.LogConnected(1, "", time.Second)
	d.LogFrame(1, ">>>", []byte("x"))
	d.LogError(1, "send", "boom", time.Second)
}

func TestDebugLogger_Truncates(t *testing.T) {
	var buf bytes.Buffer
	d := NewDebugLogger(&buf)
	d.LogFrame(3, "<<<", bytes.Repeat([]byte("a"), maxFrameLogSize+10))

	out := buf.String()
	assert.Contains(t, out, "[Session 3] <<< FRAME")
	assert.Contains(t, out, "truncated, 1034 bytes total")
}
