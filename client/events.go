package client

// EventSink is the client's single capability interface for observing
// connection lifecycle and message flow, replacing a Qt-style bundle of
// independent signals with one interface a caller implements (or partially
// overrides by embedding NoopEventSink).
type EventSink interface {
	// Connected is called once a CONNACK accepting the connection has been
	// received, reporting whether the broker resumed a prior session. A
	// rejecting CONNACK calls neither Connected nor Disconnected; the dial
	// fails with an error carrying the return code instead.
	Connected(sessionPresent bool)

	// Disconnected is called when the connection ends, for any reason.
	// err is nil for a caller-initiated Disconnect.
	Disconnected(err error)

	// Subscribed is called once a SUBACK arrives for a SUBSCRIBE issued by
	// Subscribe, reporting the granted QoS (or failure) for each filter.
	Subscribed(packetID uint16, grantedQos []byte)

	// Unsubscribed is called once an UNSUBACK arrives for an UNSUBSCRIBE.
	Unsubscribed(packetID uint16)

	// Published is called once a QoS 1 or 2 publish has been fully
	// acknowledged. For a QoS 0 publish it is called with packet id 0, on its
	// own goroutine, once Publish has written the packet.
	Published(packetID uint16)

	// MessageReceived is called for every PUBLISH delivered to this
	// client, whether from a live publish or a retained-message replay.
	MessageReceived(topic string, payload []byte, retained bool)
}

// NoopEventSink implements EventSink with no-op methods.
type NoopEventSink struct{}

func (NoopEventSink) Connected(sessionPresent bool)                        {}
func (NoopEventSink) Disconnected(err error)                               {}
func (NoopEventSink) Subscribed(packetID uint16, grantedQos []byte)        {}
func (NoopEventSink) Unsubscribed(packetID uint16)                         {}
func (NoopEventSink) Published(packetID uint16)                            {}
func (NoopEventSink) MessageReceived(topic string, payload []byte, retained bool) {}

var _ EventSink = NoopEventSink{}
