package broker

import (
	"testing"

	"github.com/nymea-go/mqttgo/packets"
)

func TestInflightSetGetDelete(t *testing.T) {
	i := NewInflight()
	pk := &packets.PublishPacket{PacketID: 5}

	if !i.Set(pk) {
		t.Fatal("expected Set to report a new entry")
	}
	if i.Set(pk) {
		t.Fatal("expected Set to report an existing entry the second time")
	}

	got, ok := i.Get(5)
	if !ok || got != packets.Packet(pk) {
		t.Fatal("expected Get to return the tracked packet")
	}

	if !i.Delete(5) {
		t.Fatal("expected Delete to report an existing entry")
	}
	if i.Delete(5) {
		t.Fatal("expected Delete to report no entry the second time")
	}
}

func TestInflightPubrelSentReplacesStoredPublish(t *testing.T) {
	i := NewInflight()
	i.Set(&packets.PublishPacket{PacketID: 9, TopicName: "a/b"})

	if i.PubrelSent(9) {
		t.Fatal("expected PubrelSent false before MarkPubrelSent")
	}
	i.MarkPubrelSent(9)
	if !i.PubrelSent(9) {
		t.Fatal("expected PubrelSent true after MarkPubrelSent")
	}

	stored, ok := i.Get(9)
	if !ok {
		t.Fatal("expected entry to still exist after MarkPubrelSent")
	}
	if _, ok := stored.(*packets.PubrelPacket); !ok {
		t.Fatalf("expected the stored packet to become a PUBREL so a resume resends it, got %T", stored)
	}
}

func TestInflightAllPreservesInsertionOrder(t *testing.T) {
	i := NewInflight()
	i.Set(&packets.PublishPacket{PacketID: 7})
	i.Set(&packets.PublishPacket{PacketID: 3})
	i.Set(&packets.PublishPacket{PacketID: 9})
	i.Set(&packets.PublishPacket{PacketID: 7}) // resend shouldn't move it

	all := i.All()
	if len(all) != 3 || all[0].(*packets.PublishPacket).PacketID != 7 || all[1].(*packets.PublishPacket).PacketID != 3 || all[2].(*packets.PublishPacket).PacketID != 9 {
		t.Fatalf("expected ids in insertion order [7 3 9], got %v", all)
	}

	i.Delete(3)
	all = i.All()
	if len(all) != 2 || all[0].(*packets.PublishPacket).PacketID != 7 || all[1].(*packets.PublishPacket).PacketID != 9 {
		t.Fatalf("expected ids [7 9] after deleting 3, got %v", all)
	}
}

func TestPacketIDsNeverZeroAndWraps(t *testing.T) {
	p := &PacketIDs{next: 65535}
	if id := p.Next(); id != 1 {
		t.Fatalf("expected wraparound to skip 0 and return 1, got %d", id)
	}

	p2 := &PacketIDs{}
	if id := p2.Next(); id != 1 {
		t.Fatalf("expected first id to be 1, got %d", id)
	}
}
