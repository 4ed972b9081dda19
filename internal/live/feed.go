// Package live is the interface-boundary shim promised in spec.md §5: a
// Bot implementation that satisfies pkg/bot.Bot by bridging a
// gorilla/websocket connection into the same proc.Local used on the
// backtest side, so strategy code is identical in both modes. It does not
// implement any real exchange's wire protocol — that connector layer is
// explicitly out of scope (SPEC_FULL.md §5) — and instead exposes a
// generic Decoder the caller supplies.
package live

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"hftsim/internal/backtest/event"
)

const (
	pingInterval     = 50 * time.Second
	readTimeout      = 90 * time.Second
	maxReconnectWait = 30 * time.Second
	writeTimeout     = 10 * time.Second
	eventBufferSize  = 256
)

// Decoder turns one raw websocket frame into an Event, reporting ok=false
// for frames that carry no event (heartbeats, acks, unrelated channels).
// Connector-specific wire formats live entirely behind this interface.
type Decoder interface {
	Decode(raw []byte) (e event.Event, ok bool, err error)
}

// Feed dials url and maintains a reconnecting websocket connection,
// decoding each inbound frame via decoder and publishing it on Events().
// Same dial/reconnect/ping/read-deadline shape as a typical exchange
// websocket client, trimmed of any subscription-tracking and
// per-message-type routing that belongs to one particular wire protocol
// (left to the Decoder implementation).
type Feed struct {
	url     string
	decoder Decoder
	logger  *slog.Logger

	connMu sync.Mutex
	conn   *websocket.Conn

	events chan event.Event
}

// NewFeed constructs a Feed that will decode frames from url with decoder
// once Run is called.
func NewFeed(url string, decoder Decoder, logger *slog.Logger) *Feed {
	return &Feed{
		url:     url,
		decoder: decoder,
		logger:  logger.With("component", "live_feed"),
		events:  make(chan event.Event, eventBufferSize),
	}
}

// Events returns the channel of decoded events. It is closed once Run
// returns (ctx canceled), signaling permanent exhaustion to a caller
// draining it the way MultiAssetHBT drains a reader.
func (f *Feed) Events() <-chan event.Event { return f.events }

// Run connects and maintains the connection with exponential backoff,
// blocking until ctx is canceled. It closes Events() before returning.
func (f *Feed) Run(ctx context.Context) error {
	defer close(f.events)
	backoff := time.Second

	for {
		err := f.connectAndRead(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		f.logger.Warn("live feed disconnected, reconnecting", "error", err, "backoff", backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxReconnectWait {
			backoff = maxReconnectWait
		}
	}
}

// Close closes the underlying connection, if any, unblocking a pending
// read and triggering a reconnect attempt (or a clean exit, if ctx has
// already been canceled).
func (f *Feed) Close() error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn != nil {
		return f.conn.Close()
	}
	return nil
}

func (f *Feed) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	f.connMu.Lock()
	f.conn = conn
	f.connMu.Unlock()

	defer func() {
		f.connMu.Lock()
		conn.Close()
		f.conn = nil
		f.connMu.Unlock()
	}()

	f.logger.Info("live feed connected")

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go f.pingLoop(pingCtx)

	// ReadMessage blocks up to readTimeout with no way to pass it a
	// context, so closing the connection is what unblocks it promptly on
	// shutdown instead of waiting out the read deadline.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		e, ok, err := f.decoder.Decode(msg)
		if err != nil {
			f.logger.Error("decode live event", "error", err)
			continue
		}
		if !ok {
			continue
		}
		select {
		case f.events <- e:
		default:
			f.logger.Warn("event channel full, dropping event")
		}
	}
}

func (f *Feed) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.connMu.Lock()
			conn := f.conn
			f.connMu.Unlock()
			if conn == nil {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				f.logger.Warn("ping failed", "error", err)
				return
			}
		}
	}
}
