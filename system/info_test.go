package system

import "testing"

func TestTrackerClientCounts(t *testing.T) {
	tr := NewTracker("test")

	tr.ClientConnected()
	tr.ClientConnected()
	tr.ClientDisconnected(false)

	info := tr.Clone()
	if info.ClientsConnected != 1 {
		t.Fatalf("expected 1 connected client, got %d", info.ClientsConnected)
	}
	if info.ClientsMaximum != 2 {
		t.Fatalf("expected max of 2 connected clients, got %d", info.ClientsMaximum)
	}
	if info.ClientsTotal != 1 {
		t.Fatalf("expected total of 1 after one clean disconnect, got %d", info.ClientsTotal)
	}
}

func TestTrackerPersistentDisconnect(t *testing.T) {
	tr := NewTracker("test")
	tr.ClientConnected()
	tr.ClientDisconnected(true)

	info := tr.Clone()
	if info.ClientsDisconnected != 1 {
		t.Fatalf("expected 1 persistent disconnected client, got %d", info.ClientsDisconnected)
	}
	if info.ClientsTotal != 1 {
		t.Fatalf("expected total to remain 1 for a persistent session, got %d", info.ClientsTotal)
	}
}

func TestTrackerMessageAndPacketCounters(t *testing.T) {
	tr := NewTracker("test")
	tr.MessageReceived()
	tr.MessageSent()
	tr.MessageDropped()
	tr.PacketReceived()
	tr.PacketSent()
	tr.SetRetained(3)
	tr.SetSubscriptions(5)
	tr.InflightDelta(2)
	tr.InflightDelta(-1)

	info := tr.Clone()
	if info.MessagesReceived != 1 || info.MessagesSent != 1 || info.MessagesDropped != 1 {
		t.Fatalf("unexpected message counters: %+v", info)
	}
	if info.PacketsReceived != 1 || info.PacketsSent != 1 {
		t.Fatalf("unexpected packet counters: %+v", info)
	}
	if info.Retained != 3 || info.Subscriptions != 5 {
		t.Fatalf("unexpected gauges: %+v", info)
	}
	if info.Inflight != 1 {
		t.Fatalf("expected inflight delta to net to 1, got %d", info.Inflight)
	}
}
