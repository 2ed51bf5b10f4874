package hub

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/teslashibe/go-glide/pkg/protocol"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	h := New("test")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

// addClient registers a bare client with a chosen queue depth. The pumps
// never run, so queued messages stay put until the test drains them.
func addClient(h *Hub, buffer int) *Client {
	c := &Client{hub: h, send: make(chan Message, buffer)}
	h.register <- c
	return c
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal(msg)
}

func TestHubRegisterUnregister(t *testing.T) {
	h := startHub(t)

	c1 := addClient(h, 4)
	addClient(h, 4)
	waitFor(t, func() bool { return h.ClientCount() == 2 }, "expected 2 clients")

	h.unregister <- c1
	waitFor(t, func() bool { return h.ClientCount() == 1 }, "expected 1 client after unregister")

	// The hub closes the send channel of departed clients
	if _, ok := <-c1.send; ok {
		t.Error("Expected closed send channel after unregister")
	}
}

func TestHubBroadcastJSON(t *testing.T) {
	h := startHub(t)

	c1 := addClient(h, 8)
	c2 := addClient(h, 8)
	waitFor(t, func() bool { return h.ClientCount() == 2 }, "expected 2 clients")

	if err := h.BroadcastJSON(map[string]string{"message": "person nearby"}); err != nil {
		t.Fatalf("BroadcastJSON failed: %v", err)
	}

	for _, c := range []*Client{c1, c2} {
		select {
		case msg := <-c.send:
			if msg.Type != JSONMessage {
				t.Errorf("Expected JSON message, got %v", msg.Type)
			}
			if !strings.Contains(string(msg.Data), "person nearby") {
				t.Errorf("Unexpected payload: %s", msg.Data)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("Timed out waiting for broadcast")
		}
	}

	waitFor(t, func() bool { return h.Stats().Broadcasts == 1 }, "expected 1 broadcast counted")
}

func TestHubBroadcastProtocol(t *testing.T) {
	h := startHub(t)

	c := addClient(h, 8)
	waitFor(t, func() bool { return h.ClientCount() == 1 }, "expected 1 client")

	alert, err := protocol.NewAlertMessage("person nearby on the left", "low", "person", 1.8, "left")
	if err != nil {
		t.Fatalf("NewAlertMessage failed: %v", err)
	}
	if err := h.BroadcastProtocol(alert); err != nil {
		t.Fatalf("BroadcastProtocol failed: %v", err)
	}

	select {
	case msg := <-c.send:
		parsed, err := protocol.ParseMessage(msg.Data)
		if err != nil {
			t.Fatalf("ParseMessage failed: %v", err)
		}
		if parsed.Type != protocol.TypeAlert {
			t.Errorf("Expected alert type, got %s", parsed.Type)
		}
		data, err := parsed.GetAlertData()
		if err != nil {
			t.Fatalf("GetAlertData failed: %v", err)
		}
		if data.Message != "person nearby on the left" {
			t.Errorf("Unexpected message: %s", data.Message)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for broadcast")
	}
}

func TestHubDropSlowClient(t *testing.T) {
	h := startHub(t)

	fast := addClient(h, 8)
	slow := addClient(h, 1)
	waitFor(t, func() bool { return h.ClientCount() == 2 }, "expected 2 clients")

	// First broadcast fills the slow client's single-slot buffer;
	// the second finds it full and drops the client.
	h.BroadcastBinary([]byte{0x01})
	h.BroadcastBinary([]byte{0x02})

	waitFor(t, func() bool { return h.ClientCount() == 1 }, "expected slow client dropped")

	stats := h.Stats()
	if stats.Dropped != 1 {
		t.Errorf("Expected 1 dropped client, got %d", stats.Dropped)
	}
	if stats.Broadcasts != 2 {
		t.Errorf("Expected 2 broadcasts, got %d", stats.Broadcasts)
	}

	// Fast client got both messages
	for want := byte(0x01); want <= 0x02; want++ {
		select {
		case msg := <-fast.send:
			if msg.Data[0] != want {
				t.Errorf("Expected %v, got %v", want, msg.Data[0])
			}
		case <-time.After(2 * time.Second):
			t.Fatal("Timed out draining fast client")
		}
	}

	// Slow client kept its one queued message, then the channel closed
	if msg, ok := <-slow.send; !ok || msg.Data[0] != 0x01 {
		t.Errorf("Expected queued message before close, got ok=%v", ok)
	}
	if _, ok := <-slow.send; ok {
		t.Error("Expected closed channel for dropped client")
	}
}

func TestHubShutdown(t *testing.T) {
	h := New("test")
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- h.Run(ctx) }()

	c := addClient(h, 4)
	waitFor(t, func() bool { return h.ClientCount() == 1 }, "expected 1 client")

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if _, ok := <-c.send; ok {
		t.Error("Expected closed send channel after shutdown")
	}
}
