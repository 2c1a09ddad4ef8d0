package websocket

import (
	"encoding/json"
	"testing"
	"time"
)

// fakeClient implements ClientInterface and records delivered messages.
type fakeClient struct {
	id       string
	owner    string
	received chan []byte
	sendErr  error
}

func newFakeClient(id, owner string) *fakeClient {
	return &fakeClient{id: id, owner: owner, received: make(chan []byte, 16)}
}

func (c *fakeClient) ID() string           { return c.id }
func (c *fakeClient) OwnerAddress() string { return c.owner }
func (c *fakeClient) Close() error         { return nil }

func (c *fakeClient) Send(data []byte) error {
	if c.sendErr != nil {
		return c.sendErr
	}
	c.received <- data
	return nil
}

func (c *fakeClient) waitForMessage(t *testing.T) []byte {
	t.Helper()
	select {
	case data := <-c.received:
		return data
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func (c *fakeClient) expectNoMessage(t *testing.T) {
	t.Helper()
	select {
	case <-c.received:
		t.Error("received unexpected message")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_BroadcastReachesOwnerOnly(t *testing.T) {
	hub := NewHub()
	alice := newFakeClient("c1", "0xAAAA")
	bob := newFakeClient("c2", "0xBBBB")
	hub.Register(alice)
	hub.Register(bob)

	hub.Broadcast("0xaaaa", BatchJobCompleted(map[string]string{"jobId": "j1"}))

	data := alice.waitForMessage(t)
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		t.Fatalf("failed to decode event: %v", err)
	}
	if event.Type != "batch_job.completed" {
		t.Errorf("unexpected event type %s", event.Type)
	}
	if event.Entity != EntityTypeBatchJob {
		t.Errorf("unexpected entity %s", event.Entity)
	}

	bob.expectNoMessage(t)
}

func TestHub_AddressMatchingIsCaseInsensitive(t *testing.T) {
	hub := NewHub()
	client := newFakeClient("c1", "0xAbCd")
	hub.Register(client)

	hub.Broadcast("0xABCD", ScheduledPaymentExecuted(map[string]string{"scheduleId": "s1"}))
	client.waitForMessage(t)

	if hub.ClientCount("0xabcd") != 1 {
		t.Errorf("expected 1 client for lowercased address, got %d", hub.ClientCount("0xabcd"))
	}
}

func TestHub_MultipleClientsPerOwner(t *testing.T) {
	hub := NewHub()
	first := newFakeClient("c1", "0xaaaa")
	second := newFakeClient("c2", "0xaaaa")
	hub.Register(first)
	hub.Register(second)

	hub.Broadcast("0xaaaa", SettlementCreated(map[string]string{"id": "STL-20260310-001"}))

	first.waitForMessage(t)
	second.waitForMessage(t)
	if hub.ClientCount("0xaaaa") != 2 {
		t.Errorf("expected 2 clients, got %d", hub.ClientCount("0xaaaa"))
	}
}

func TestHub_UnregisterCleansUp(t *testing.T) {
	hub := NewHub()
	client := newFakeClient("c1", "0xaaaa")
	hub.Register(client)
	hub.Unregister(client)

	if hub.ClientCount("0xaaaa") != 0 {
		t.Errorf("expected 0 clients, got %d", hub.ClientCount("0xaaaa"))
	}
	if hub.TotalClientCount() != 0 {
		t.Errorf("expected empty hub, got %d", hub.TotalClientCount())
	}

	hub.Broadcast("0xaaaa", BatchJobFailed(map[string]string{"jobId": "j1"}))
	client.expectNoMessage(t)
}

func TestHub_BroadcastToUnknownOwnerIsNoOp(t *testing.T) {
	hub := NewHub()
	// Must not panic or block.
	hub.Broadcast("0xnobody", BatchJobProgress(map[string]int{"processed": 1}))
}
