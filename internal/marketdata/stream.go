package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"intraday-backtest-lab/internal/domain"
	"intraday-backtest-lab/internal/observability"
)

// StreamConfig configures WebSocket bar stream behavior.
type StreamConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
}

// DefaultStreamConfig returns default stream configuration.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// BarUpdate is one closed bar delivered by the stream.
type BarUpdate struct {
	InstrumentID string
	Bar          domain.PriceBar
}

// StreamClient consumes closed OHLCV bars for a set of instruments
// over WebSocket. It reconnects with exponential backoff and
// resubscribes after a drop; delivery to Updates is blocking, bars are
// never silently discarded.
type StreamClient struct {
	endpoint    string
	config      StreamConfig
	instruments []string

	conn   *websocket.Conn
	connMu sync.Mutex
	closed atomic.Bool

	updates chan BarUpdate

	done chan struct{}
	wg   sync.WaitGroup

	reconnecting atomic.Bool
}

// DialStream connects to the endpoint and subscribes to bars for the
// given instruments.
func DialStream(ctx context.Context, endpoint string, instruments []string, config *StreamConfig) (*StreamClient, error) {
	cfg := DefaultStreamConfig()
	if config != nil {
		cfg = *config
	}

	c := &StreamClient{
		endpoint:    endpoint,
		config:      cfg,
		instruments: instruments,
		updates:     make(chan BarUpdate, 1024),
		done:        make(chan struct{}),
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	if err := c.subscribe(); err != nil {
		c.Close()
		return nil, err
	}

	c.wg.Add(1)
	go c.readLoop()

	c.wg.Add(1)
	go c.pingLoop()

	return c, nil
}

// Updates returns the bar delivery channel. Closed when the client
// shuts down.
func (c *StreamClient) Updates() <-chan BarUpdate {
	return c.updates
}

// Close closes the connection and stops all loops.
func (c *StreamClient) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
	c.connMu.Unlock()

	c.wg.Wait()
	close(c.updates)
	return nil
}

func (c *StreamClient) connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	c.conn = conn
	return nil
}

// subscribe sends the instrument subscription on the current connection.
func (c *StreamClient) subscribe() error {
	req := streamRequest{
		ID:          uuid.NewString(),
		Op:          "subscribe",
		Channel:     "bars",
		Instruments: c.instruments,
	}

	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("not connected")
	}

	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	if err := c.conn.WriteJSON(req); err != nil {
		return fmt.Errorf("write subscribe: %w", err)
	}
	return nil
}

// readLoop reads messages and dispatches bar updates.
func (c *StreamClient) readLoop() {
	defer c.wg.Done()

	reconnectDelay := c.config.ReconnectDelay

	for !c.closed.Load() {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}

			// Connection error - attempt reconnect with exponential backoff
			if !c.reconnecting.Swap(true) {
				go c.reconnect(reconnectDelay)
			}

			reconnectDelay = reconnectDelay * 2
			if reconnectDelay > c.config.MaxReconnectDelay {
				reconnectDelay = c.config.MaxReconnectDelay
			}

			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		// Reset delay on successful read
		reconnectDelay = c.config.ReconnectDelay

		c.handleMessage(message)
	}
}

// reconnect attempts to reconnect and resubscribe.
func (c *StreamClient) reconnect(delay time.Duration) {
	defer c.reconnecting.Store(false)

	if c.closed.Load() {
		return
	}

	observability.RecordStreamReconnect()

	select {
	case <-c.done:
		return
	case <-time.After(delay):
	}

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.connect(ctx); err != nil {
		// Reconnect failed, will retry on next read error
		return
	}

	if err := c.subscribe(); err != nil {
		log.Printf("[stream] resubscribe failed: %v", err)
	}
}

// handleMessage parses one message and delivers bar payloads.
func (c *StreamClient) handleMessage(message []byte) {
	var msg streamMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		log.Printf("[stream] malformed message: %v", err)
		return
	}
	if msg.Type != "bar" {
		return
	}

	update := BarUpdate{
		InstrumentID: msg.InstrumentID,
		Bar: domain.PriceBar{
			TimestampMs: msg.TimestampMs,
			Open:        msg.Open,
			High:        msg.High,
			Low:         msg.Low,
			Close:       msg.Close,
			Volume:      msg.Volume,
		},
	}

	// Block until the consumer takes the bar - never drop
	select {
	case c.updates <- update:
	case <-c.done:
	}
}

// pingLoop sends periodic ping frames to keep the connection alive.
func (c *StreamClient) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil {
				c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
				if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					// Connection might be dead, reader will handle reconnect
				}
			}
			c.connMu.Unlock()
		}
	}
}

// Stream wire types

type streamRequest struct {
	ID          string   `json:"id"`
	Op          string   `json:"op"`
	Channel     string   `json:"channel"`
	Instruments []string `json:"instruments,omitempty"`
}

type streamMessage struct {
	Type         string  `json:"type"`
	InstrumentID string  `json:"instrument_id"`
	TimestampMs  int64   `json:"timestamp_ms"`
	Open         float64 `json:"open"`
	High         float64 `json:"high"`
	Low          float64 `json:"low"`
	Close        float64 `json:"close"`
	Volume       float64 `json:"volume"`
}
