package client

import (
	"net"
	"strconv"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/nymea-go/mqttgo/packets"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeBroker accepts exactly one connection, performs the CONNECT handshake
// and then hands the caller the parser to drive the rest of the exchange.
func fakeBroker(t *testing.T) (addr string, connCh chan *packets.Parser) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	connCh = make(chan *packets.Parser, 1)

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		p := packets.NewParser(conn)
		pk, err := p.ReadPacket()
		if err != nil {
			return
		}
		if _, ok := pk.(*packets.ConnectPacket); !ok {
			return
		}
		p.WritePacket(&packets.ConnackPacket{
			FixedHeader: packets.NewFixedHeader(packets.Connack),
			ReturnCode:  packets.CodeConnectionAccepted.Code,
		})
		connCh <- p
	}()

	t.Cleanup(func() { ln.Close() })
	return ln.Addr().String(), connCh
}

func hostPort(t *testing.T, addr string) (string, uint16) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatal(err)
	}
	return host, uint16(port)
}

type recordingSink struct {
	NoopEventSink
	connected  chan bool
	messages   chan [2]string
	subscribed chan uint16
}

func newRecordingSink() *recordingSink {
	return &recordingSink{
		connected:  make(chan bool, 1),
		messages:   make(chan [2]string, 4),
		subscribed: make(chan uint16, 1),
	}
}

func (s *recordingSink) Connected(sessionPresent bool) { s.connected <- sessionPresent }
func (s *recordingSink) MessageReceived(topic string, payload []byte, retained bool) {
	s.messages <- [2]string{topic, string(payload)}
}
func (s *recordingSink) Subscribed(packetID uint16, grantedQos []byte) { s.subscribed <- packetID }

func TestClientConnectHandshake(t *testing.T) {
	addr, connCh := fakeBroker(t)
	host, port := hostPort(t, addr)

	sink := newRecordingSink()
	c := New(Options{ClientID: "c1", Sink: sink})
	if err := c.Connect(host, port, true); err != nil {
		t.Fatal(err)
	}
	defer c.Disconnect()

	select {
	case <-connCh:
	case <-time.After(2 * time.Second):
		t.Fatal("broker never received CONNECT")
	}

	select {
	case sp := <-sink.connected:
		if sp {
			t.Fatal("expected session present to be false for a fresh session")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected Connected callback")
	}

	if !c.IsConnected() {
		t.Fatal("expected client to report connected")
	}
}

func TestClientSubscribeAndReceivesPublish(t *testing.T) {
	addr, connCh := fakeBroker(t)
	host, port := hostPort(t, addr)

	sink := newRecordingSink()
	c := New(Options{ClientID: "c1", Sink: sink})
	if err := c.Connect(host, port, true); err != nil {
		t.Fatal(err)
	}
	defer c.Disconnect()

	var p *packets.Parser
	select {
	case p = <-connCh:
	case <-time.After(2 * time.Second):
		t.Fatal("broker never received CONNECT")
	}

	if _, err := c.Subscribe("a/b", 0); err != nil {
		t.Fatal(err)
	}

	sub, err := p.ReadPacket()
	if err != nil {
		t.Fatal(err)
	}
	subPk, ok := sub.(*packets.SubscribePacket)
	if !ok {
		t.Fatalf("expected SUBSCRIBE, got %T", sub)
	}
	p.WritePacket(&packets.SubackPacket{
		FixedHeader: packets.NewFixedHeader(packets.Suback),
		PacketID:    subPk.PacketID,
		ReturnCodes: []byte{packets.SubackGrantedQoS0},
	})

	select {
	case <-sink.subscribed:
	case <-time.After(2 * time.Second):
		t.Fatal("expected Subscribed callback")
	}

	p.WritePacket(&packets.PublishPacket{
		FixedHeader: packets.FixedHeader{Type: packets.Publish},
		TopicName:   "a/b",
		Payload:     []byte("hello"),
	})

	select {
	case msg := <-sink.messages:
		if msg[0] != "a/b" || msg[1] != "hello" {
			t.Fatalf("unexpected message: %+v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected MessageReceived callback")
	}
}

func TestClientCompletesInboundQoS2HandshakeOnce(t *testing.T) {
	addr, connCh := fakeBroker(t)
	host, port := hostPort(t, addr)

	sink := newRecordingSink()
	c := New(Options{ClientID: "c1", Sink: sink})
	if err := c.Connect(host, port, true); err != nil {
		t.Fatal(err)
	}
	defer c.Disconnect()

	var p *packets.Parser
	select {
	case p = <-connCh:
	case <-time.After(2 * time.Second):
		t.Fatal("broker never received CONNECT")
	}

	publish := &packets.PublishPacket{
		FixedHeader: packets.FixedHeader{Type: packets.Publish, Qos: 2},
		PacketID:    7,
		TopicName:   "a/b",
		Payload:     []byte("hello"),
	}
	p.WritePacket(publish)

	pubrec, err := p.ReadPacket()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := pubrec.(*packets.PubrecPacket); !ok {
		t.Fatalf("expected PUBREC, got %T", pubrec)
	}

	select {
	case msg := <-sink.messages:
		if msg[0] != "a/b" || msg[1] != "hello" {
			t.Fatalf("unexpected message: %+v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected MessageReceived callback")
	}

	// A DUP retransmit of the same PUBLISH must re-ack but not redeliver.
	publish.Dup = true
	p.WritePacket(publish)
	if _, err := p.ReadPacket(); err != nil { // PUBREC again
		t.Fatal(err)
	}
	select {
	case msg := <-sink.messages:
		t.Fatalf("expected no second MessageReceived for a DUP retransmit, got %+v", msg)
	case <-time.After(200 * time.Millisecond):
	}

	p.WritePacket(&packets.PubrelPacket{FixedHeader: packets.NewFixedHeader(packets.Pubrel), PacketID: 7})
	pubcomp, err := p.ReadPacket()
	if err != nil {
		t.Fatal(err)
	}
	if pc, ok := pubcomp.(*packets.PubcompPacket); !ok || pc.PacketID != 7 {
		t.Fatalf("expected PUBCOMP for packet id 7, got %+v", pubcomp)
	}
}

func TestClientPublishQoS0HasNoPacketID(t *testing.T) {
	addr, connCh := fakeBroker(t)
	host, port := hostPort(t, addr)

	c := New(Options{ClientID: "c1"})
	if err := c.Connect(host, port, true); err != nil {
		t.Fatal(err)
	}
	defer c.Disconnect()
	<-connCh

	id, err := c.Publish("a/b", []byte("x"), 0, false)
	if err != nil {
		t.Fatal(err)
	}
	if id != 0 {
		t.Fatalf("expected QoS 0 publish to carry packet id 0, got %d", id)
	}
}
