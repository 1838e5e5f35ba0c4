// Package client implements an MQTT 3.1.1 client: connecting to a broker,
// publishing and subscribing, and optionally reconnecting with backoff
// after an unexpected disconnect, mirroring the connect/publish/subscribe
// surface of a Qt-style MQTT client but expressed as blocking Go calls plus
// an EventSink for asynchronous notification.
package client

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nymea-go/mqttgo/packets"
)

// ErrNotConnected is returned by calls that require an active connection.
var ErrNotConnected = errors.New("client: not connected")

// Client is an MQTT client session. The zero value is not usable; construct
// one with New.
type Client struct {
	opts Options
	log  *slog.Logger

	mu       sync.Mutex
	conn     net.Conn
	parser   *packets.Parser
	connected int32

	packetIDs *packetIDs
	inflight  *inflight

	closing chan struct{}
	done    chan struct{}
}

// New returns a Client configured with opts. ClientID should be set; every
// other field falls back to a default.
func New(opts Options) *Client {
	opts.setDefaults()
	return &Client{
		opts:      opts,
		log:       slog.Default().With("client", opts.ClientID),
		packetIDs: &packetIDs{},
		inflight:  newInflight(),
	}
}

// IsConnected reports whether the client currently holds a live connection.
func (c *Client) IsConnected() bool {
	return atomic.LoadInt32(&c.connected) == 1
}

// Connect dials host:port and performs the MQTT CONNECT handshake. If
// AutoReconnect is set, the client keeps retrying with exponential backoff
// after later disconnects until Disconnect is called; Connect itself only
// tries once.
func (c *Client) Connect(host string, port uint16, cleanSession bool) error {
	if err := c.dial(host, port, cleanSession); err != nil {
		return err
	}

	c.closing = make(chan struct{})
	c.done = make(chan struct{})
	go c.run(host, port, cleanSession)

	return nil
}

func (c *Client) dial(host string, port uint16, cleanSession bool) error {
	addr := net.JoinHostPort(host, strconv.Itoa(int(port)))
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return err
	}

	parser := packets.NewParser(conn)
	connect := &packets.ConnectPacket{
		FixedHeader:      packets.NewFixedHeader(packets.Connect),
		ProtocolName:     "MQTT",
		ProtocolVersion:  4,
		CleanSession:     cleanSession,
		ClientIdentifier: c.opts.ClientID,
		Keepalive:        c.opts.Keepalive,
	}
	if c.opts.Username != "" {
		connect.UsernameFlag = true
		connect.Username = c.opts.Username
		if c.opts.Password != "" {
			connect.PasswordFlag = true
			connect.Password = c.opts.Password
		}
	}
	if c.opts.Will != nil {
		connect.WillFlag = true
		connect.WillTopic = c.opts.Will.Topic
		connect.WillMessage = c.opts.Will.Message
		connect.WillQos = c.opts.Will.Qos
		connect.WillRetain = c.opts.Will.Retain
	}

	parser.RefreshDeadline(c.opts.Keepalive)
	if err := parser.WritePacket(connect); err != nil {
		conn.Close()
		return err
	}

	pk, err := parser.ReadPacket()
	if err != nil {
		conn.Close()
		return err
	}
	ack, ok := pk.(*packets.ConnackPacket)
	if !ok {
		conn.Close()
		return fmt.Errorf("client: expected CONNACK, got %T", pk)
	}
	if ack.ReturnCode != packets.CodeConnectionAccepted.Code {
		conn.Close()
		return fmt.Errorf("client: connect rejected: %d", ack.ReturnCode)
	}

	c.mu.Lock()
	c.conn = conn
	c.parser = parser
	c.mu.Unlock()
	atomic.StoreInt32(&c.connected, 1)

	c.opts.Sink.Connected(ack.SessionPresent)

	if !cleanSession {
		for _, pk := range c.inflight.all() {
			pk.Dup = true
			c.parser.WritePacket(pk)
		}
	}

	return nil
}

// run owns the read loop and keepalive ticking for one connection, and -
// when AutoReconnect is set - the reconnect loop across connections.
func (c *Client) run(host string, port uint16, cleanSession bool) {
	defer close(c.done)

	for {
		err := c.session()
		atomic.StoreInt32(&c.connected, 0)
		select {
		case <-c.closing:
			err = nil // caller-initiated Disconnect
		default:
		}
		c.opts.Sink.Disconnected(err)

		select {
		case <-c.closing:
			return
		default:
		}

		if !c.opts.AutoReconnect {
			return
		}

		c.log.Warn("connection lost, reconnecting", "error", err)
		if !c.reconnectLoop(host, port, cleanSession) {
			return
		}
	}
}

// reconnectLoop retries dial with exponential backoff until it succeeds or
// the client is closed, reporting false in the latter case.
func (c *Client) reconnectLoop(host string, port uint16, cleanSession bool) bool {
	backoff := c.opts.ReconnectMinBackoff
	for {
		select {
		case <-c.closing:
			return false
		case <-time.After(jitter(backoff)):
		}

		if err := c.dial(host, port, cleanSession); err == nil {
			return true
		}

		backoff *= 2
		if backoff > c.opts.ReconnectMaxBackoff {
			backoff = c.opts.ReconnectMaxBackoff
		}
	}
}

func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	return d/2 + time.Duration(rand.Int63n(int64(d)/2+1))
}

// session runs the keepalive ticker and read loop for the current
// connection, returning once the connection ends.
func (c *Client) session() error {
	c.mu.Lock()
	parser := c.parser
	keepalive := c.opts.Keepalive
	c.mu.Unlock()

	stop := make(chan struct{})
	var pingErr atomic.Value
	if keepalive > 0 {
		go c.keepaliveLoop(parser, keepalive, stop, &pingErr)
	}

	err := c.readLoop(parser)
	close(stop)
	if err == nil {
		if v := pingErr.Load(); v != nil {
			err, _ = v.(error)
		}
	}
	return err
}

func (c *Client) keepaliveLoop(parser *packets.Parser, keepalive uint16, stop chan struct{}, pingErr *atomic.Value) {
	interval := time.Duration(keepalive) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := parser.WritePacket(&packets.PingreqPacket{FixedHeader: packets.NewFixedHeader(packets.Pingreq)}); err != nil {
				pingErr.Store(err)
				c.conn.Close()
				return
			}
		}
	}
}

func (c *Client) readLoop(parser *packets.Parser) error {
	for {
		parser.RefreshDeadline(c.opts.Keepalive)
		pk, err := parser.ReadPacket()
		if err != nil {
			return err
		}
		c.dispatch(pk)
	}
}

func (c *Client) dispatch(pk packets.Packet) {
	switch p := pk.(type) {
	case *packets.PublishPacket:
		c.handlePublish(p)
	case *packets.PubackPacket:
		if _, ok := c.inflight.resolvePublish(p.PacketID); ok {
			c.opts.Sink.Published(p.PacketID)
		}
	case *packets.PubrecPacket:
		c.parser.WritePacket(&packets.PubrelPacket{FixedHeader: packets.NewFixedHeader(packets.Pubrel), PacketID: p.PacketID})
	case *packets.PubcompPacket:
		if _, ok := c.inflight.resolvePublish(p.PacketID); ok {
			c.opts.Sink.Published(p.PacketID)
		}
	case *packets.PubrelPacket:
		c.inflight.releaseReceived(p.PacketID)
		c.parser.WritePacket(&packets.PubcompPacket{FixedHeader: packets.NewFixedHeader(packets.Pubcomp), PacketID: p.PacketID})
	case *packets.SubackPacket:
		if c.inflight.resolveSubscribe(p.PacketID) {
			c.opts.Sink.Subscribed(p.PacketID, p.ReturnCodes)
		}
	case *packets.UnsubackPacket:
		if c.inflight.resolveUnsubscribe(p.PacketID) {
			c.opts.Sink.Unsubscribed(p.PacketID)
		}
	case *packets.PingrespPacket:
		// no-op: keepalive round trip completed.
	}
}

func (c *Client) handlePublish(p *packets.PublishPacket) {
	switch p.Qos {
	case 1:
		c.parser.WritePacket(&packets.PubackPacket{FixedHeader: packets.NewFixedHeader(packets.Puback), PacketID: p.PacketID})
	case 2:
		// A DUP retransmit of a QoS 2 PUBLISH still needs its PUBREC replied
		// to (the broker may itself be resending after a lost PUBREC), but
		// markReceived keeps MessageReceived from firing twice for it.
		delivered := c.inflight.markReceived(p.PacketID)
		c.parser.WritePacket(&packets.PubrecPacket{FixedHeader: packets.NewFixedHeader(packets.Pubrec), PacketID: p.PacketID})
		if !delivered {
			return
		}
	}
	c.opts.Sink.MessageReceived(p.TopicName, p.Payload, p.Retain)
}

// Publish sends a PUBLISH. For QoS 0 the returned packet id is always 0
// ([MQTT-2.3.1-5]); for QoS 1/2 it is the id Published/dropped-connection
// bookkeeping will reference.
func (c *Client) Publish(topic string, payload []byte, qos byte, retain bool) (uint16, error) {
	if !c.IsConnected() {
		return 0, ErrNotConnected
	}

	pk := &packets.PublishPacket{
		FixedHeader: packets.FixedHeader{Type: packets.Publish, Qos: qos, Retain: retain},
		TopicName:   topic,
		Payload:     payload,
	}
	if qos > 0 {
		pk.PacketID = c.packetIDs.next16()
		c.inflight.trackPublish(pk)
	}

	if err := c.parser.WritePacket(pk); err != nil {
		return pk.PacketID, err
	}

	if qos == 0 {
		// A QoS 0 publish has no handshake to wait on, but the sink still
		// gets a Published(0) so callers can treat every publish uniformly;
		// it is dispatched on its own goroutine so it is never called
		// synchronously from inside Publish.
		go c.opts.Sink.Published(0)
	}

	return pk.PacketID, nil
}

// Subscribe registers interest in a single topic filter.
func (c *Client) Subscribe(filter string, qos byte) (uint16, error) {
	return c.SubscribeMany([]string{filter}, []byte{qos})
}

// SubscribeMany registers interest in several topic filters in one
// SUBSCRIBE packet.
func (c *Client) SubscribeMany(filters []string, qoss []byte) (uint16, error) {
	if !c.IsConnected() {
		return 0, ErrNotConnected
	}

	id := c.packetIDs.next16()
	c.inflight.trackSubscribe(id)

	pk := &packets.SubscribePacket{
		FixedHeader: packets.NewFixedHeader(packets.Subscribe),
		PacketID:    id,
		Topics:      filters,
		Qoss:        qoss,
	}
	if err := c.parser.WritePacket(pk); err != nil {
		return id, err
	}
	return id, nil
}

// Unsubscribe removes interest in a topic filter.
func (c *Client) Unsubscribe(filter string) (uint16, error) {
	if !c.IsConnected() {
		return 0, ErrNotConnected
	}

	id := c.packetIDs.next16()
	c.inflight.trackUnsubscribe(id)

	pk := &packets.UnsubscribePacket{
		FixedHeader: packets.NewFixedHeader(packets.Unsubscribe),
		PacketID:    id,
		Topics:      []string{filter},
	}
	if err := c.parser.WritePacket(pk); err != nil {
		return id, err
	}
	return id, nil
}

// Disconnect sends DISCONNECT and closes the connection, disabling any
// pending reconnect.
func (c *Client) Disconnect() error {
	if c.closing != nil {
		select {
		case <-c.closing:
		default:
			close(c.closing)
		}
	}

	c.mu.Lock()
	conn, parser := c.conn, c.parser
	c.mu.Unlock()

	if parser != nil {
		parser.WritePacket(&packets.DisconnectPacket{FixedHeader: packets.NewFixedHeader(packets.Disconnect)})
	}
	atomic.StoreInt32(&c.connected, 0)
	if conn != nil {
		conn.Close()
	}

	if c.done != nil {
		<-c.done
	}
	return nil
}
