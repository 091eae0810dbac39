package solana

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"solana-swap-indexer/internal/logger"
	"solana-swap-indexer/internal/observability"
)

const slotBufferSize = 256

// ErrClientClosed is returned by subscriptions on a closed client.
var ErrClientClosed = errors.New("websocket client closed")

var errNotConnected = errors.New("websocket not connected")

// WSClientConfig configures WebSocket client behavior.
type WSClientConfig struct {
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
	// SubscribeTimeout bounds the wait for a subscription confirmation.
	SubscribeTimeout time.Duration
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSClientConfig {
	return WSClientConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		SubscribeTimeout:  30 * time.Second,
	}
}

// WSClient implements SlotSubscriber using gorilla/websocket.
type WSClient struct {
	endpoint string
	config   WSClientConfig
	log      *zap.SugaredLogger

	conn      *websocket.Conn
	connMu    sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64

	// subs maps server subscription ID to the consumer channel
	subs   map[uint64]chan SlotNotification
	subsMu sync.RWMutex

	// pendingSubs maps request ID to channel waiting for subscription ID
	pendingSubs   map[uint64]chan uint64
	pendingSubsMu sync.Mutex

	done chan struct{}
	wg   sync.WaitGroup

	// reconnected is signalled once a reconnect has installed a fresh connection.
	reconnected chan struct{}
}

var _ SlotSubscriber = (*WSClient)(nil)

// NewWSClient creates a new WebSocket client and connects to the endpoint.
func NewWSClient(ctx context.Context, endpoint string, config *WSClientConfig, log *zap.SugaredLogger) (*WSClient, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}

	c := &WSClient{
		endpoint:    endpoint,
		config:      cfg,
		log:         logger.Nop(log),
		subs:        make(map[uint64]chan SlotNotification),
		pendingSubs: make(map[uint64]chan uint64),
		done:        make(chan struct{}),
		reconnected: make(chan struct{}, 1),
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	c.wg.Add(2)
	go c.readLoop()
	go c.pingLoop()

	return c, nil
}

func (c *WSClient) connect(ctx context.Context) error {
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

// SubscribeSlots subscribes to slot updates.
// Notifications are dropped when the consumer falls behind by slotBufferSize updates.
func (c *WSClient) SubscribeSlots(ctx context.Context) (<-chan SlotNotification, error) {
	subID, err := c.subscribe(ctx)
	if err != nil {
		return nil, err
	}

	ch := make(chan SlotNotification, slotBufferSize)
	c.subsMu.Lock()
	c.subs[subID] = ch
	c.subsMu.Unlock()

	return ch, nil
}

// subscribe sends slotSubscribe and waits for the subscription ID.
func (c *WSClient) subscribe(ctx context.Context) (uint64, error) {
	if c.closed.Load() {
		return 0, ErrClientClosed
	}

	reqID := c.requestID.Add(1)
	req := wsRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  "slotSubscribe",
	}

	confirmCh := make(chan uint64, 1)
	c.pendingSubsMu.Lock()
	c.pendingSubs[reqID] = confirmCh
	c.pendingSubsMu.Unlock()

	forget := func() {
		c.pendingSubsMu.Lock()
		delete(c.pendingSubs, reqID)
		c.pendingSubsMu.Unlock()
	}

	c.connMu.Lock()
	if c.conn == nil {
		c.connMu.Unlock()
		forget()
		return 0, errNotConnected
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	err := c.conn.WriteJSON(req)
	c.connMu.Unlock()

	if err != nil {
		forget()
		return 0, fmt.Errorf("write subscribe: %w", err)
	}

	select {
	case subID, ok := <-confirmCh:
		if !ok {
			return 0, ErrClientClosed
		}
		return subID, nil
	case <-time.After(c.config.SubscribeTimeout):
		forget()
		return 0, fmt.Errorf("subscription timeout after %v", c.config.SubscribeTimeout)
	case <-c.done:
		return 0, ErrClientClosed
	case <-ctx.Done():
		forget()
		return 0, ctx.Err()
	}
}

// Close closes the WebSocket connection.
func (c *WSClient) Close() error {
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

	c.subsMu.Lock()
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
	c.subsMu.Unlock()

	c.pendingSubsMu.Lock()
	for id, ch := range c.pendingSubs {
		close(ch)
		delete(c.pendingSubs, id)
	}
	c.pendingSubsMu.Unlock()

	return nil
}

// readLoop reads messages from WebSocket and dispatches to subscribers.
// A failed connection is never read again; the loop waits for its replacement.
func (c *WSClient) readLoop() {
	defer c.wg.Done()

	for !c.closed.Load() {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			if !c.awaitReconnect(errNotConnected) {
				return
			}
			continue
		}

		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}
			c.dropConn(conn)
			if !c.awaitReconnect(err) {
				return
			}
			continue
		}

		c.handleMessage(message)
	}
}

// dropConn closes broken unless it was already replaced.
func (c *WSClient) dropConn(broken *websocket.Conn) {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == broken {
		c.conn.Close()
		c.conn = nil
	}
}

// awaitReconnect starts a reconnect and blocks until it succeeds. It returns false
// when the client is closed first.
func (c *WSClient) awaitReconnect(cause error) bool {
	c.log.Warnw("websocket disconnected, reconnecting", "err", cause)
	go c.reconnect()

	select {
	case <-c.done:
		return false
	case <-c.reconnected:
		return true
	}
}

// reconnect dials with exponential backoff until a connection is up, hands it to
// readLoop and then resubscribes every consumer.
func (c *WSClient) reconnect() {
	delays := &backoff.ExponentialBackOff{
		InitialInterval:     c.config.ReconnectDelay,
		RandomizationFactor: 0.1,
		Multiplier:          2,
		MaxInterval:         c.config.MaxReconnectDelay,
	}
	delays.Reset()

	for {
		delay := delays.NextBackOff()
		select {
		case <-c.done:
			return
		case <-time.After(delay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := c.connect(ctx)
		cancel()
		if err == nil {
			break
		}
		c.log.Warnw("websocket reconnect failed", "err", err)
	}
	if c.closed.Load() {
		c.connMu.Lock()
		c.conn.Close()
		c.connMu.Unlock()
		return
	}
	observability.RecordWSReconnect()

	// resubscribe needs readLoop to consume the confirmations
	select {
	case c.reconnected <- struct{}{}:
	default:
	}
	c.resubscribeAll()
}

// resubscribeAll moves every consumer channel onto a fresh subscription.
func (c *WSClient) resubscribeAll() {
	c.subsMu.RLock()
	channels := make(map[uint64]chan SlotNotification, len(c.subs))
	for id, ch := range c.subs {
		channels[id] = ch
	}
	c.subsMu.RUnlock()

	for oldSubID, ch := range channels {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		newSubID, err := c.subscribe(ctx)
		cancel()

		if err != nil {
			c.log.Warnw("resubscribe failed", "subscription", oldSubID, "err", err)
			continue
		}

		c.subsMu.Lock()
		delete(c.subs, oldSubID)
		c.subs[newSubID] = ch
		c.subsMu.Unlock()
	}
}

// handleMessage processes incoming WebSocket message.
func (c *WSClient) handleMessage(message []byte) {
	var resp wsSubscribeResponse
	if err := json.Unmarshal(message, &resp); err == nil && resp.ID > 0 && resp.Result != nil {
		c.handleSubscribeResponse(resp.ID, *resp.Result)
		return
	}

	var notif wsNotification
	if err := json.Unmarshal(message, &notif); err == nil && notif.Method == "slotNotification" {
		c.handleSlotNotification(&notif)
		return
	}

	var errResp struct {
		ID    uint64 `json:"id"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(message, &errResp); err == nil && errResp.Error != nil {
		c.log.Warnw("websocket error response", "id", errResp.ID, "code", errResp.Error.Code, "msg", errResp.Error.Message)
	}
}

func (c *WSClient) handleSubscribeResponse(reqID, subID uint64) {
	c.pendingSubsMu.Lock()
	ch, ok := c.pendingSubs[reqID]
	if ok {
		delete(c.pendingSubs, reqID)
	}
	c.pendingSubsMu.Unlock()

	if ok {
		select {
		case ch <- subID:
		default:
		}
	}
}

func (c *WSClient) handleSlotNotification(notif *wsNotification) {
	if notif.Params == nil {
		return
	}

	c.subsMu.RLock()
	ch, ok := c.subs[notif.Params.Subscription]
	c.subsMu.RUnlock()
	if !ok {
		return
	}

	v := notif.Params.Result
	select {
	case ch <- SlotNotification{Slot: v.Slot, Parent: v.Parent, Root: v.Root}:
	default:
		// consumer is behind; a newer slot will follow
	}
}

// pingLoop sends periodic ping frames to keep connection alive.
func (c *WSClient) pingLoop() {
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
					c.log.Debugw("ping failed", "err", err)
				}
			}
			c.connMu.Unlock()
		}
	}
}

// WebSocket message types

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type wsSubscribeResponse struct {
	JSONRPC string  `json:"jsonrpc"`
	ID      uint64  `json:"id"`
	Result  *uint64 `json:"result"` // subscription ID
}

type wsNotification struct {
	JSONRPC string                `json:"jsonrpc"`
	Method  string                `json:"method"`
	Params  *wsNotificationParams `json:"params"`
}

type wsNotificationParams struct {
	Subscription uint64      `json:"subscription"`
	Result       wsSlotValue `json:"result"`
}

type wsSlotValue struct {
	Slot   uint64 `json:"slot"`
	Parent uint64 `json:"parent"`
	Root   uint64 `json:"root"`
}
