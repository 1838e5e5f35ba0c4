package client

import (
	"sync"

	"github.com/nymea-go/mqttgo/packets"
)

// packetIDs allocates non-zero 16-bit packet identifiers for this client's
// own session, independent of any other client or connection sharing the
// process.
type packetIDs struct {
	mu   sync.Mutex
	next uint16
}

func (p *packetIDs) next16() uint16 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	if p.next == 0 {
		p.next = 1
	}
	return p.next
}

// inflight tracks this client's own outbound QoS 1/2 publishes awaiting
// acknowledgement, and outbound SUBSCRIBE/UNSUBSCRIBE awaiting their ack,
// keyed by packet id.
type inflight struct {
	mu      sync.Mutex
	publish map[uint16]*packets.PublishPacket
	// order records publish packet ids in the sequence trackPublish first
	// saw them, so all can resend in insertion order rather than Go's
	// randomized map order.
	order []uint16
	sub   map[uint16]struct{}
	unsub map[uint16]struct{}

	// received holds packet ids of inbound QoS 2 PUBLISH messages already
	// delivered to the sink but not yet released by PUBREL, so a DUP
	// retransmit of the same PUBLISH is acked again without a second
	// MessageReceived call.
	received map[uint16]struct{}
}

func newInflight() *inflight {
	return &inflight{
		publish:  map[uint16]*packets.PublishPacket{},
		sub:      map[uint16]struct{}{},
		unsub:    map[uint16]struct{}{},
		received: map[uint16]struct{}{},
	}
}

func (i *inflight) trackPublish(pk *packets.PublishPacket) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if _, existed := i.publish[pk.PacketID]; !existed {
		i.order = append(i.order, pk.PacketID)
	}
	i.publish[pk.PacketID] = pk
}

func (i *inflight) resolvePublish(id uint16) (*packets.PublishPacket, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	pk, ok := i.publish[id]
	if ok {
		delete(i.publish, id)
		for idx, existing := range i.order {
			if existing == id {
				i.order = append(i.order[:idx], i.order[idx+1:]...)
				break
			}
		}
	}
	return pk, ok
}

func (i *inflight) trackSubscribe(id uint16) {
	i.mu.Lock()
	i.sub[id] = struct{}{}
	i.mu.Unlock()
}

func (i *inflight) resolveSubscribe(id uint16) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	_, ok := i.sub[id]
	delete(i.sub, id)
	return ok
}

func (i *inflight) trackUnsubscribe(id uint16) {
	i.mu.Lock()
	i.unsub[id] = struct{}{}
	i.mu.Unlock()
}

func (i *inflight) resolveUnsubscribe(id uint16) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	_, ok := i.unsub[id]
	delete(i.unsub, id)
	return ok
}

// markReceived records id as an inbound QoS 2 PUBLISH delivered to the sink,
// returning false if it was already recorded (a DUP retransmit).
func (i *inflight) markReceived(id uint16) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if _, exists := i.received[id]; exists {
		return false
	}
	i.received[id] = struct{}{}
	return true
}

// releaseReceived forgets id once its PUBREL arrives, completing the
// exactly-once inbound QoS 2 handshake.
func (i *inflight) releaseReceived(id uint16) {
	i.mu.Lock()
	delete(i.received, id)
	i.mu.Unlock()
}

// all returns every outbound publish still awaiting acknowledgement, in the
// order it was first sent, for resending after a reconnect
// ([MQTT-4.4.0-1] with Dup set).
func (i *inflight) all() []*packets.PublishPacket {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]*packets.PublishPacket, 0, len(i.order))
	for _, id := range i.order {
		out = append(out, i.publish[id])
	}
	return out
}
