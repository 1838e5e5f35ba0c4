package broker

// EventSink is the broker's single capability interface for observing
// session lifecycle and message flow. A broker holds exactly one sink; it
// never walks a dynamic list of independently-registered hooks deciding at
// runtime which ones "provide" a given event; callers that want to observe
// several concerns compose them into one EventSink implementation (or embed
// NoopEventSink and override only what they need).
type EventSink interface {
	// ClientConnected is called once a CONNECT has been accepted and the
	// session is live.
	ClientConnected(clientID string, sessionPresent bool)

	// ClientDisconnected is called when a client's connection ends, for
	// any reason including a network error, DISCONNECT, or takeover.
	ClientDisconnected(clientID string, err error)

	// Subscribed is called after a client's SUBSCRIBE has been applied to
	// the topic index.
	Subscribed(clientID, filter string, qos byte)

	// Unsubscribed is called after a client's UNSUBSCRIBE has been applied.
	Unsubscribed(clientID, filter string)

	// Published is called for every PUBLISH accepted from a client, once its
	// fan-out to subscribers has been queued.
	Published(clientID, topic string, qos byte, retain bool)

	// WillPublished is called when a client's last will is delivered
	// because its session ended without a clean DISCONNECT.
	WillPublished(clientID, topic string)
}

// NoopEventSink implements EventSink with no-op methods. Embed it in a
// partial sink to only override the events you care about.
type NoopEventSink struct{}

func (NoopEventSink) ClientConnected(clientID string, sessionPresent bool)    {}
func (NoopEventSink) ClientDisconnected(clientID string, err error)          {}
func (NoopEventSink) Subscribed(clientID, filter string, qos byte)           {}
func (NoopEventSink) Unsubscribed(clientID, filter string)                   {}
func (NoopEventSink) Published(clientID, topic string, qos byte, retain bool) {}
func (NoopEventSink) WillPublished(clientID, topic string)                   {}

var _ EventSink = NoopEventSink{}
