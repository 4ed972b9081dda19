package live

import (
	"context"
	"encoding/binary"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"hftsim/internal/backtest/event"
)

// rawIntDecoder decodes an 8-byte little-endian price tick into a minimal
// buy-side depth Event, for test purposes only.
type rawIntDecoder struct{}

func (rawIntDecoder) Decode(raw []byte) (event.Event, bool, error) {
	if len(raw) != 8 {
		return event.Event{}, false, nil
	}
	tick := int64(binary.LittleEndian.Uint64(raw))
	return event.Event{Ev: event.Local | event.Exch | event.Depth | event.Buy, Px: float64(tick), Qty: 1}, true, nil
}

func newTestServer(t *testing.T, onConnect func(*websocket.Conn)) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		onConnect(conn)
		// Keep the connection open so the client's read loop blocks until
		// it is closed from the client side (context cancel) or the test
		// server shuts down.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestFeedDecodesEvents(t *testing.T) {
	url := newTestServer(t, func(c *websocket.Conn) {
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, 42)
		c.WriteMessage(websocket.BinaryMessage, buf)
	})

	logger := slog.New(slog.NewTextHandler(testWriter{t}, nil))
	feed := NewFeed(url, rawIntDecoder{}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go feed.Run(ctx)

	select {
	case e, ok := <-feed.Events():
		if !ok {
			t.Fatal("Events channel closed before delivering the decoded event")
		}
		if e.Px != 42 {
			t.Fatalf("e.Px = %v, want 42", e.Px)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for decoded event")
	}
}

func TestFeedClosesEventsOnContextCancel(t *testing.T) {
	url := newTestServer(t, func(c *websocket.Conn) {})

	logger := slog.New(slog.NewTextHandler(testWriter{t}, nil))
	feed := NewFeed(url, rawIntDecoder{}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	go feed.Run(ctx)

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case _, ok := <-feed.Events():
		if ok {
			t.Fatal("expected Events channel to be closed, got a value instead")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Events to close")
	}
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) { return len(p), nil }
