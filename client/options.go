package client

import "time"

// Will is the last will and testament a session registers at CONNECT time.
type Will struct {
	Topic   string
	Message []byte
	Qos     byte
	Retain  bool
}

// Options configures a Client. ClientID is the only field without a usable
// zero value; every other field falls back to a default in New.
type Options struct {
	ClientID string
	Username string
	Password string

	// Keepalive is the interval in seconds at which the client sends
	// PINGREQ. Defaults to 60. The ping timer runs at a fixed interval; it
	// is not restarted when other packets are sent or received.
	Keepalive uint16

	Will *Will

	// AutoReconnect keeps the client redialing the broker with backoff
	// after an unexpected disconnect, until Disconnect is called. It is off
	// unless set.
	AutoReconnect bool

	// ReconnectMinBackoff and ReconnectMaxBackoff bound the exponential
	// backoff AutoReconnect uses between attempts. Defaults to 1s and 30s.
	ReconnectMinBackoff time.Duration
	ReconnectMaxBackoff time.Duration

	Sink EventSink
}

func (o *Options) setDefaults() {
	if o.Keepalive == 0 {
		o.Keepalive = 60
	}
	if o.ReconnectMinBackoff == 0 {
		o.ReconnectMinBackoff = time.Second
	}
	if o.ReconnectMaxBackoff == 0 {
		o.ReconnectMaxBackoff = 30 * time.Second
	}
	if o.Sink == nil {
		o.Sink = NoopEventSink{}
	}
}
