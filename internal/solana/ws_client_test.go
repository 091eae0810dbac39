package solana

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// slotServer answers slotSubscribe with an incrementing subscription ID and
// exposes the latest server-side connection.
type slotServer struct {
	t      *testing.T
	mu     sync.Mutex
	conn   *websocket.Conn
	nextID atomic.Uint64
	subs   atomic.Int32
	dials  atomic.Int32
	reject atomic.Int32 // upgrades to refuse before accepting again
	server *httptest.Server
}

func newSlotServer(t *testing.T) *slotServer {
	s := &slotServer{t: t}
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.dials.Add(1)
		if s.reject.Add(-1) >= 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		s.reject.Store(0)
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		s.mu.Lock()
		s.conn = c
		s.mu.Unlock()

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				return
			}
			var req wsRequest
			if err := json.Unmarshal(msg, &req); err != nil {
				continue
			}
			if req.Method != "slotSubscribe" {
				continue
			}
			s.subs.Add(1)
			subID := 100 + s.nextID.Add(1)
			s.mu.Lock()
			c.WriteJSON(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": subID})
			s.mu.Unlock()
		}
	}))
	return s
}

func (s *slotServer) url() string {
	return "ws" + strings.TrimPrefix(s.server.URL, "http")
}

func (s *slotServer) notify(subID, slot uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.WriteJSON(map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  "slotNotification",
		"params": map[string]interface{}{
			"subscription": subID,
			"result":       map[string]uint64{"slot": slot, "parent": slot - 1, "root": slot - 32},
		},
	})
}

func (s *slotServer) dropConnection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.Close()
}

func testWSConfig() *WSClientConfig {
	cfg := DefaultWSConfig()
	cfg.ReconnectDelay = 10 * time.Millisecond
	cfg.MaxReconnectDelay = 50 * time.Millisecond
	cfg.SubscribeTimeout = 2 * time.Second
	return &cfg
}

func receiveSlot(t *testing.T, ch <-chan SlotNotification) SlotNotification {
	t.Helper()
	select {
	case n, ok := <-ch:
		if !ok {
			t.Fatal("channel closed")
		}
		return n
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for slot notification")
	}
	return SlotNotification{}
}

func TestWSClient_Connect(t *testing.T) {
	s := newSlotServer(t)
	defer s.server.Close()

	client, err := NewWSClient(context.Background(), s.url(), testWSConfig(), nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	if client.closed.Load() {
		t.Error("client should not be closed")
	}
}

func TestWSClient_ConnectFails(t *testing.T) {
	_, err := NewWSClient(context.Background(), "ws://127.0.0.1:1", testWSConfig(), nil)
	if err == nil {
		t.Fatal("expected dial error")
	}
}

func TestWSClient_SubscribeSlots(t *testing.T) {
	s := newSlotServer(t)
	defer s.server.Close()

	client, err := NewWSClient(context.Background(), s.url(), testWSConfig(), nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	ch, err := client.SubscribeSlots(context.Background())
	if err != nil {
		t.Fatalf("SubscribeSlots: %v", err)
	}

	s.notify(101, 5000)
	s.notify(999, 6000) // unknown subscription is ignored
	s.notify(101, 5001)

	if n := receiveSlot(t, ch); n.Slot != 5000 || n.Parent != 4999 || n.Root != 4968 {
		t.Errorf("unexpected notification %+v", n)
	}
	if n := receiveSlot(t, ch); n.Slot != 5001 {
		t.Errorf("expected slot 5001, got %d", n.Slot)
	}
}

func TestWSClient_ResubscribesAfterReconnect(t *testing.T) {
	s := newSlotServer(t)
	defer s.server.Close()

	client, err := NewWSClient(context.Background(), s.url(), testWSConfig(), nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	ch, err := client.SubscribeSlots(context.Background())
	if err != nil {
		t.Fatalf("SubscribeSlots: %v", err)
	}

	s.dropConnection()

	deadline := time.Now().Add(3 * time.Second)
	for s.subs.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("client did not resubscribe")
		}
		time.Sleep(10 * time.Millisecond)
	}
	// Wait for the client to swap the subscription mapping.
	for {
		client.subsMu.RLock()
		_, ok := client.subs[102]
		client.subsMu.RUnlock()
		if ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("subscription mapping not updated")
		}
		time.Sleep(10 * time.Millisecond)
	}

	s.notify(102, 7000)
	if n := receiveSlot(t, ch); n.Slot != 7000 {
		t.Errorf("expected slot 7000, got %d", n.Slot)
	}
}

func TestWSClient_ReconnectRetriesUntilAccepted(t *testing.T) {
	s := newSlotServer(t)
	defer s.server.Close()

	cfg := testWSConfig()
	cfg.ReconnectDelay = 100 * time.Millisecond
	cfg.MaxReconnectDelay = 100 * time.Millisecond
	client, err := NewWSClient(context.Background(), s.url(), cfg, nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	ch, err := client.SubscribeSlots(context.Background())
	if err != nil {
		t.Fatalf("SubscribeSlots: %v", err)
	}

	s.reject.Store(2)
	s.dropConnection()

	// The broken connection is released at once instead of being read again.
	deadline := time.Now().Add(80 * time.Millisecond)
	for {
		client.connMu.Lock()
		released := client.conn == nil
		client.connMu.Unlock()
		if released {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("broken connection still installed")
		}
		time.Sleep(2 * time.Millisecond)
	}

	deadline = time.Now().Add(3 * time.Second)
	for s.subs.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("client did not resubscribe")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if d := s.dials.Load(); d != 4 {
		t.Errorf("expected 4 dials (initial, 2 refused, accepted), got %d", d)
	}

	for {
		client.subsMu.RLock()
		_, ok := client.subs[102]
		client.subsMu.RUnlock()
		if ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("subscription mapping not updated")
		}
		time.Sleep(10 * time.Millisecond)
	}
	s.notify(102, 8000)
	if n := receiveSlot(t, ch); n.Slot != 8000 {
		t.Errorf("expected slot 8000, got %d", n.Slot)
	}
}

func TestWSClient_CloseClosesChannels(t *testing.T) {
	s := newSlotServer(t)
	defer s.server.Close()

	client, err := NewWSClient(context.Background(), s.url(), testWSConfig(), nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}

	ch, err := client.SubscribeSlots(context.Background())
	if err != nil {
		t.Fatalf("SubscribeSlots: %v", err)
	}

	if err := client.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}

	if _, err := client.SubscribeSlots(context.Background()); !errors.Is(err, ErrClientClosed) {
		t.Errorf("expected ErrClientClosed, got %v", err)
	}
}
