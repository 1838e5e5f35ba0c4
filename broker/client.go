package broker

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/nymea-go/mqttgo/packets"
)

const defaultOutboundQueue = 32

// Will is a client's last will and testament, published by the broker if
// the session ends without a clean DISCONNECT.
type Will struct {
	Topic   string
	Payload []byte
	Qos     byte
	Retain  bool
}

// ClientContext holds everything the broker knows about one connected
// client. It is reachable only through the broker's flat clients map, keyed
// on the client id; it never holds a pointer back to the broker or to any
// other client, so tearing one down never requires walking an object graph
// to find what references it.
type ClientContext struct {
	ID       string
	Username string
	Listener string

	parser *packets.Parser

	mu           sync.RWMutex
	cleanSession bool
	keepalive    uint16
	will         *Will
	connectedAt  time.Time

	packetIDs *PacketIDs
	// inflightOut tracks PUBLISH packets the broker has sent to this client
	// and is still awaiting acknowledgement for (unacked_out). inflightIn
	// tracks PUBLISH packets this client has sent at QoS 2 that the broker
	// has PUBREC'd but not yet released via PUBREL (unacked_in). Both
	// survive a session takeover so a reconnect with clean-session=0 picks
	// up exactly where the previous connection left off.
	inflightOut *Inflight
	inflightIn  *Inflight

	outbound  chan packets.Packet
	closeOnce sync.Once
	closed    chan struct{}

	takenOver int32
}

// NewClientContext builds session state for a freshly accepted connection.
// The CONNECT packet's fields seed the session; a zero-length client id is
// replaced by a generated one, and a zero keepalive is left as zero (no
// deadline, per MQTT-3.1.2-24).
func NewClientContext(parser *packets.Parser, listener string, connect *packets.ConnectPacket, generatedID string) *ClientContext {
	id := connect.ClientIdentifier
	if id == "" {
		id = generatedID
	}

	cl := &ClientContext{
		ID:           id,
		Username:     connect.Username,
		Listener:     listener,
		parser:       parser,
		cleanSession: connect.CleanSession,
		keepalive:    connect.Keepalive,
		packetIDs:    &PacketIDs{},
		inflightOut:  NewInflight(),
		inflightIn:   NewInflight(),
		outbound:     make(chan packets.Packet, defaultOutboundQueue),
		closed:       make(chan struct{}),
		connectedAt:  time.Now(),
	}

	if connect.WillFlag {
		cl.will = &Will{
			Topic:   connect.WillTopic,
			Payload: connect.WillMessage,
			Qos:     connect.WillQos,
			Retain:  connect.WillRetain,
		}
	}

	return cl
}

// CleanSession reports whether this session should be discarded, rather
// than resumed, once the connection ends.
func (cl *ClientContext) CleanSession() bool {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return cl.cleanSession
}

// Keepalive returns the negotiated keepalive interval in seconds.
func (cl *ClientContext) Keepalive() uint16 {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return cl.keepalive
}

// Will returns the client's last will, or nil if none was set.
func (cl *ClientContext) Will() *Will {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return cl.will
}

// ClearWill discards the client's will, called once it has either been
// published or the client disconnected cleanly.
func (cl *ClientContext) ClearWill() {
	cl.mu.Lock()
	cl.will = nil
	cl.mu.Unlock()
}

// NextPacketID allocates the next outbound packet id for this session.
func (cl *ClientContext) NextPacketID() uint16 {
	return cl.packetIDs.Next()
}

// InflightOut returns this session's tracker for PUBLISH packets the broker
// has sent to it and is awaiting acknowledgement for.
func (cl *ClientContext) InflightOut() *Inflight {
	return cl.inflightOut
}

// InflightIn returns this session's tracker for QoS 2 PUBLISH packets
// received from it that have been PUBREC'd but not yet released.
func (cl *ClientContext) InflightIn() *Inflight {
	return cl.inflightIn
}

// adopt migrates in-flight QoS state and the packet-id counter from a
// session this one is resuming, so a reconnect with clean-session=0 picks
// up exactly where the previous connection left off. Must only be called
// before cl is published to the broker's client registry, since neither
// Inflight nor PacketIDs guards the swap itself.
func (cl *ClientContext) adopt(previous *ClientContext) {
	cl.packetIDs = previous.packetIDs
	cl.inflightOut = previous.inflightOut
	cl.inflightIn = previous.inflightIn
}

// RefreshDeadline resets the connection's read deadline based on the
// session's negotiated keepalive.
func (cl *ClientContext) RefreshDeadline() {
	cl.parser.RefreshDeadline(cl.Keepalive())
}

// ReadPacket reads and decodes the next packet from the connection. It
// blocks until a full packet has arrived, the read deadline expires, or the
// connection is closed.
func (cl *ClientContext) ReadPacket() (packets.Packet, error) {
	return cl.parser.ReadPacket()
}

// Enqueue queues a packet for delivery to this client's write loop. It
// never blocks: if the client's outbound queue is full, the packet is
// dropped and false is returned, so one slow client can't stall the
// goroutine fanning a publish out to every subscriber.
func (cl *ClientContext) Enqueue(pk packets.Packet) bool {
	select {
	case cl.outbound <- pk:
		return true
	default:
		return false
	}
}

// WriteLoop drains the outbound queue onto the connection until the client
// is closed. It runs in its own goroutine per client so a client's reads
// and writes never block each other.
func (cl *ClientContext) WriteLoop() {
	for {
		select {
		case pk, ok := <-cl.outbound:
			if !ok {
				return
			}
			if err := cl.parser.WritePacket(pk); err != nil {
				cl.Close()
				return
			}
		case <-cl.closed:
			return
		}
	}
}

// WritePacket writes a single packet synchronously, bypassing the outbound
// queue. Used for packets that must be sent inline with processing, such as
// CONNACK.
func (cl *ClientContext) WritePacket(pk packets.Packet) error {
	return cl.parser.WritePacket(pk)
}

// TakeOver marks the session as superseded by a newer connection with the
// same client id, so its own read/write loop exits quietly instead of
// treating the resulting close as an unexpected disconnect.
func (cl *ClientContext) TakeOver() {
	atomic.StoreInt32(&cl.takenOver, 1)
	cl.Close()
}

// IsTakenOver reports whether TakeOver has been called on this session.
func (cl *ClientContext) IsTakenOver() bool {
	return atomic.LoadInt32(&cl.takenOver) == 1
}

// Close closes the underlying connection and signals the write loop to
// stop. Safe to call more than once and from more than one goroutine.
func (cl *ClientContext) Close() {
	cl.closeOnce.Do(func() {
		close(cl.closed)
		cl.parser.Conn.Close()
	})
}

