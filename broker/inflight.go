package broker

import (
	"sync"

	"github.com/nymea-go/mqttgo/packets"
)

// inflightMessage is a packet a session is tracking through a QoS 1 or 2
// handshake, either inbound (a PUBLISH the broker is acking) or outbound (a
// PUBLISH the broker sent and is waiting to be acked).
type inflightMessage struct {
	packet packets.Packet
}

// Inflight tracks packets in the middle of a QoS 1 or 2 handshake, keyed by
// packet id. A session owns two: one for messages it sends and awaits acks
// for, and one for the ids of QoS 2 messages it has received but not yet
// released.
type Inflight struct {
	mu       sync.Mutex
	internal map[uint16]inflightMessage
	// order records the packet ids in the sequence they were first Set, so
	// All can walk them in insertion order rather than Go's randomized map
	// order. A resent id is not moved, since it was already in flight.
	order []uint16
}

// NewInflight returns an empty Inflight tracker.
func NewInflight() *Inflight {
	return &Inflight{internal: map[uint16]inflightMessage{}}
}

// identifiedPacket is implemented by packet types that carry a packet id.
type identifiedPacket interface {
	GetPacketID() uint16
}

// Set records or replaces the packet tracked under its packet id. Reports
// whether the id was new.
func (i *Inflight) Set(pk packets.Packet) bool {
	id := pk.(identifiedPacket).GetPacketID()

	i.mu.Lock()
	defer i.mu.Unlock()
	_, existed := i.internal[id]
	i.internal[id] = inflightMessage{packet: pk}
	if !existed {
		i.order = append(i.order, id)
	}
	return !existed
}

// Get returns the packet tracked under id, if any.
func (i *Inflight) Get(id uint16) (packets.Packet, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	m, ok := i.internal[id]
	return m.packet, ok
}

// MarkPubrelSent replaces the stored QoS 2 outbound message with a PUBREL:
// once its PUBREC has arrived, resending on session resume must retransmit
// the PUBREL, not the original PUBLISH, keeping the handshake's identity
// ([MQTT-4.3.3-1]).
func (i *Inflight) MarkPubrelSent(id uint16) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if _, ok := i.internal[id]; ok {
		i.internal[id] = inflightMessage{packet: &packets.PubrelPacket{
			FixedHeader: packets.NewFixedHeader(packets.Pubrel),
			PacketID:    id,
		}}
	}
}

// PubrelSent reports whether id has already had its PUBREL sent.
func (i *Inflight) PubrelSent(id uint16) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	_, ok := i.internal[id].packet.(*packets.PubrelPacket)
	return ok
}

// Delete removes a tracked packet, reporting whether it existed.
func (i *Inflight) Delete(id uint16) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	_, ok := i.internal[id]
	delete(i.internal, id)
	if ok {
		for idx, existing := range i.order {
			if existing == id {
				i.order = append(i.order[:idx], i.order[idx+1:]...)
				break
			}
		}
	}
	return ok
}

// Len returns the number of packets currently in flight.
func (i *Inflight) Len() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.internal)
}

// All returns every packet currently in flight, in the order it was first
// tracked, for use when resending after a session is resumed
// ([MQTT-4.4.0-1]).
func (i *Inflight) All() []packets.Packet {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]packets.Packet, 0, len(i.order))
	for _, id := range i.order {
		out = append(out, i.internal[id].packet)
	}
	return out
}

// PacketIDs allocates non-zero 16-bit packet identifiers for a single
// session. Each session owns its own counter: two sessions publishing
// concurrently never contend on or observe each other's ids, unlike a
// package-level counter shared across every connection.
type PacketIDs struct {
	mu   sync.Mutex
	next uint16
}

// Next returns the next packet id for this session, wrapping from 65535
// back to 1 - id 0 is reserved and never allocated. [MQTT-2.3.1-1]
func (p *PacketIDs) Next() uint16 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	if p.next == 0 {
		p.next = 1
	}
	return p.next
}
