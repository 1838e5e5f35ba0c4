// Package broker implements the MQTT 3.1.1 broker core: accepting client
// connections from one or more listeners, running the session state
// machine and QoS delivery engine per client, and fanning PUBLISH packets
// out to matching subscribers.
package broker

import (
	"errors"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/jinzhu/copier"
	"github.com/rs/xid"

	"github.com/nymea-go/mqttgo/auth"
	"github.com/nymea-go/mqttgo/listeners"
	"github.com/nymea-go/mqttgo/packets"
	"github.com/nymea-go/mqttgo/system"
	"github.com/nymea-go/mqttgo/topics"
	"github.com/nymea-go/mqttgo/topics/trie"
)

// Version is the broker version reported in $SYS statistics.
const Version = "1.0.0"

// Options configures a Server. The zero value is usable: every field falls
// back to a sane default in NewServer.
type Options struct {
	// Auth authenticates CONNECTs and authorizes PUBLISH/SUBSCRIBE. Defaults
	// to auth.Allow{}, which accepts everything.
	Auth auth.Controller

	// MaximumClients caps concurrent sessions. Zero means unlimited.
	MaximumClients int64

	// MaximumQos caps the QoS the broker will grant or forward, downgrading
	// anything higher. Defaults to 2.
	MaximumQos byte

	// FanPoolSize is the number of columns in the packet-processing fan
	// pool. Defaults to 16.
	FanPoolSize uint64

	// FanPoolQueue is the per-column queue depth of the fan pool. Defaults
	// to 128.
	FanPoolQueue uint64

	// Log receives structured broker events. Defaults to slog.Default().
	Log *slog.Logger

	// Sink receives session lifecycle and message-flow events. Defaults to
	// NoopEventSink.
	Sink EventSink
}

func (o *Options) setDefaults() {
	if o.Auth == nil {
		o.Auth = auth.Allow{}
	}
	if o.MaximumQos == 0 {
		o.MaximumQos = 2
	}
	if o.FanPoolSize == 0 {
		o.FanPoolSize = 16
	}
	if o.FanPoolQueue == 0 {
		o.FanPoolQueue = 128
	}
	if o.Log == nil {
		o.Log = slog.Default()
	}
	if o.Sink == nil {
		o.Sink = NoopEventSink{}
	}
}

// Server is the broker: it owns the set of listeners, the live client
// registry, the topic/subscription index and the retained-message store.
type Server struct {
	opts Options
	log  *slog.Logger

	listeners   *listeners.Listeners
	listenerIDs []string
	clients     *Clients
	subs        *trie.Index
	retained    *topics.RetainedStore
	fanPool     *FanPool
	stats       *system.Tracker

	connectedCount int64
}

// New returns a Server configured with opts.
func New(opts Options) *Server {
	opts.setDefaults()
	return &Server{
		opts:      opts,
		log:       opts.Log,
		listeners: listeners.New(),
		clients:   NewClients(),
		subs:      trie.New(),
		retained:  topics.NewRetainedStore(),
		fanPool:   NewFanPool(opts.FanPoolSize, opts.FanPoolQueue),
		stats:     system.NewTracker(Version),
	}
}

func (s *Server) sink() EventSink { return s.opts.Sink }

// Stats returns a snapshot of the broker's runtime statistics, suitable for
// publishing under a $SYS topic tree.
func (s *Server) Stats() *system.Info {
	s.stats.SetSubscriptions(int64(s.subs.Len()))
	s.stats.SetRetained(int64(s.retained.Len()))
	return s.stats.Clone()
}

// AddListener registers l with the broker. It does not start serving; call
// Serve to start every registered listener.
func (s *Server) AddListener(l listeners.Listener) error {
	if err := l.Init(s.log); err != nil {
		return err
	}
	s.listeners.Add(l)
	s.listenerIDs = append(s.listenerIDs, l.ID())
	return nil
}

// Serve starts every registered listener accepting connections, each bound
// to its own id so accepted connections can be traced back to the listener
// they arrived on. It returns once all listeners have been told to start;
// it does not block for the lifetime of the broker.
func (s *Server) Serve() error {
	for _, id := range s.listenerIDs {
		listenerID := id
		if err := s.listeners.Serve(listenerID, func(conn net.Conn) error {
			return s.attachClient(conn, listenerID)
		}); err != nil {
			return err
		}
	}
	return nil
}

// Close stops every listener and disconnects every client.
func (s *Server) Close() error {
	s.listeners.CloseAll(s.closeListenerClients)
	s.fanPool.Close()
	return nil
}

func (s *Server) closeListenerClients(listenerID string) {
	for _, id := range s.clients.IDs() {
		if cl, ok := s.clients.Get(id); ok && cl.Listener == listenerID {
			cl.Close()
		}
	}
}

// attachClient performs the CONNECT handshake for a freshly accepted
// connection and, once the session is established, reads packets from it
// until the connection ends or a fatal error occurs.
func (s *Server) attachClient(conn net.Conn, listenerID string) error {
	parser := packets.NewParser(conn)
	conn.SetDeadline(time.Now().Add(10 * time.Second)) // a client has 10 seconds to send CONNECT

	fh := new(packets.FixedHeader)
	if err := parser.ReadFixedHeader(fh); err != nil {
		conn.Close()
		return err
	}
	if fh.Type != packets.Connect {
		conn.Close()
		return packets.ErrProtocolViolation
	}

	// Decode, not Read: a CONNECT that fails validation still needs the
	// decoded fields below to pick the right CONNACK code ([MQTT-3.1.4-1],
	// [MQTT-3.1.4-2]), rather than being dropped silently.
	pk, err := parser.Decode()
	if err != nil {
		conn.Close()
		return err
	}
	connect, ok := pk.(*packets.ConnectPacket)
	if !ok {
		conn.Close()
		return packets.ErrProtocolViolation
	}
	if code, err := connect.Validate(); err != nil {
		if code != packets.CodeProtocolViolation.Code {
			s.sendConnack(parser, packets.Code{Code: code}, false)
		}
		conn.Close()
		return err
	}

	if s.opts.MaximumClients > 0 && atomic.LoadInt64(&s.connectedCount) >= s.opts.MaximumClients {
		s.sendConnack(parser, packets.CodeServerUnavailable, false)
		conn.Close()
		return packets.CodeServerUnavailable
	}

	if !s.opts.Auth.Auth(connect.Username, connect.Password) {
		s.sendConnack(parser, packets.CodeBadUsernameOrPassword, false)
		conn.Close()
		return packets.CodeBadUsernameOrPassword
	}

	cl := NewClientContext(parser, listenerID, connect, xid.New().String())

	// [MQTT-3.1.2-4]: whether the resumed session is a fresh one is decided
	// by this CONNECT's clean-session flag, not by whatever flag the
	// previous connection was established with.
	resume := !connect.CleanSession
	previous, hadPrevious := s.clients.Add(cl, resume)
	sessionPresent := hadPrevious && resume
	if hadPrevious {
		// [MQTT-3.1.4-2]: a second CONNECT with the same client id closes
		// the existing session.
		previous.TakeOver()
		if !sessionPresent {
			s.subs.UnsubscribeAll(cl.ID)
		}
	}

	atomic.AddInt64(&s.connectedCount, 1)
	defer atomic.AddInt64(&s.connectedCount, -1)

	go cl.WriteLoop()

	if err := s.sendConnack(parser, packets.CodeConnectionAccepted, sessionPresent); err != nil {
		s.clients.Delete(cl.ID, cl)
		cl.Close()
		return err
	}

	s.sink().ClientConnected(cl.ID, sessionPresent)
	s.stats.ClientConnected()

	if sessionPresent {
		s.resendInflight(cl)
	}

	readErr := s.readLoop(cl)

	if !cl.IsTakenOver() {
		if will := cl.Will(); will != nil {
			s.sendWill(cl)
		}
		// A clean-session client's state expires the moment it disconnects
		// ([MQTT-3.1.2-6]); a clean-session=0 client stays registered,
		// offline, so a later reconnect can adopt its unacked_out,
		// unacked_in and subscriptions ([MQTT-3.1.2-4]).
		if cl.CleanSession() {
			s.subs.UnsubscribeAll(cl.ID)
			s.clients.Delete(cl.ID, cl)
		}
	}

	s.stats.ClientDisconnected(!cl.CleanSession())
	s.sink().ClientDisconnected(cl.ID, readErr)
	cl.Close()
	return readErr
}

// resendInflight retransmits every PUBLISH the adopted session left
// unacknowledged, marked DUP, in the order it was originally sent
// ([MQTT-4.4.0-1], invariant 3).
func (s *Server) resendInflight(cl *ClientContext) {
	for _, pk := range cl.InflightOut().All() {
		switch p := pk.(type) {
		case *packets.PublishPacket:
			p.Dup = true
			if !cl.Enqueue(p) {
				s.stats.MessageDropped()
				s.log.Warn("dropped resent publish, outbound queue full", "client", cl.ID, "topic", p.TopicName)
			}
		case *packets.PubrelPacket:
			if !cl.Enqueue(p) {
				s.stats.MessageDropped()
				s.log.Warn("dropped resent pubrel, outbound queue full", "client", cl.ID, "packet_id", p.PacketID)
			}
		}
	}
}

func (s *Server) sendConnack(parser *packets.Parser, code packets.Code, sessionPresent bool) error {
	ack := &packets.ConnackPacket{
		FixedHeader:    packets.NewFixedHeader(packets.Connack),
		SessionPresent: sessionPresent,
		ReturnCode:     code.Code,
	}
	return parser.WritePacket(ack)
}

// readLoop is the per-client packet loop: it reads one packet, dispatches
// it, and reads the next. It is a plain loop, not a recursive call chain -
// a client sending thousands of packets never grows the call stack.
func (s *Server) readLoop(cl *ClientContext) error {
	for {
		cl.RefreshDeadline()

		pk, err := cl.ReadPacket()
		if err != nil {
			return err
		}
		s.stats.PacketReceived()

		if err := s.processPacket(cl, pk); err != nil {
			if err == errDisconnectRequested {
				return nil
			}
			return err
		}
	}
}

func (s *Server) processPacket(cl *ClientContext, pk packets.Packet) error {
	switch p := pk.(type) {
	case *packets.PingreqPacket:
		return cl.WritePacket(&packets.PingrespPacket{FixedHeader: packets.NewFixedHeader(packets.Pingresp)})
	case *packets.PublishPacket:
		return s.processPublish(cl, p)
	case *packets.PubackPacket:
		cl.InflightOut().Delete(p.PacketID)
		return nil
	case *packets.PubrecPacket:
		return s.processPubrec(cl, p)
	case *packets.PubrelPacket:
		return s.processPubrel(cl, p)
	case *packets.PubcompPacket:
		cl.InflightOut().Delete(p.PacketID)
		return nil
	case *packets.SubscribePacket:
		return s.processSubscribe(cl, p)
	case *packets.UnsubscribePacket:
		return s.processUnsubscribe(cl, p)
	case *packets.DisconnectPacket:
		cl.ClearWill() // [MQTT-3.1.2-10]: a clean DISCONNECT discards the will
		return errDisconnectRequested
	default:
		return packets.ErrUnknownPacketType
	}
}

// errDisconnectRequested signals that the client sent DISCONNECT; it is not
// a failure and readLoop treats it as a clean session end.
var errDisconnectRequested = errors.New("client requested disconnect")

func (s *Server) processPublish(cl *ClientContext, pk *packets.PublishPacket) error {
	s.stats.MessageReceived()
	if !topics.ValidateTopicName(pk.TopicName) {
		return packets.ErrProtocolViolation
	}
	if !s.opts.Auth.ACL(cl.Username, pk.TopicName, true) {
		if pk.Qos == 0 {
			return nil
		}
		return s.ackPublish(cl, pk)
	}

	if pk.Qos == 2 {
		if _, exists := cl.InflightIn().Get(pk.PacketID); exists {
			if !pk.Dup {
				// A client must not reuse an id already awaiting PUBREL
				// without setting DUP; this can only mean the client and
				// broker have diverged on packet-id state.
				return packets.ErrProtocolViolation
			}
			// Retransmit of a QoS 2 publish already delivered: re-ack
			// without delivering it to subscribers a second time.
			return cl.WritePacket(&packets.PubrecPacket{FixedHeader: packets.NewFixedHeader(packets.Pubrec), PacketID: pk.PacketID})
		}
		cl.InflightIn().Set(pk)
	}

	if err := s.ackPublish(cl, pk); err != nil {
		return err
	}

	if pk.Retain {
		s.retained.Set(pk.TopicName, pk.Payload, pk.Qos)
	}

	// Delivery happens on the initial PUBLISH for every QoS level: the
	// InflightIn dedup above already stops a QoS 2 DUP retransmit from
	// reaching here a second time, so there's no need to wait for PUBREL.
	s.publish(pk.TopicName, pk.Payload, pk.Qos, false)
	s.sink().Published(cl.ID, pk.TopicName, pk.Qos, pk.Retain)

	return nil
}

func (s *Server) ackPublish(cl *ClientContext, pk *packets.PublishPacket) error {
	switch pk.Qos {
	case 0:
		return nil
	case 1:
		return cl.WritePacket(&packets.PubackPacket{FixedHeader: packets.NewFixedHeader(packets.Puback), PacketID: pk.PacketID})
	case 2:
		return cl.WritePacket(&packets.PubrecPacket{FixedHeader: packets.NewFixedHeader(packets.Pubrec), PacketID: pk.PacketID})
	}
	return nil
}

func (s *Server) processPubrec(cl *ClientContext, pk *packets.PubrecPacket) error {
	cl.InflightOut().MarkPubrelSent(pk.PacketID)
	return cl.WritePacket(&packets.PubrelPacket{FixedHeader: packets.NewFixedHeader(packets.Pubrel), PacketID: pk.PacketID})
}

func (s *Server) processPubrel(cl *ClientContext, pk *packets.PubrelPacket) error {
	// Delivery already happened on the initial PUBLISH; PUBREL only releases
	// the id so it can be reused ([MQTT-4.3.3-1]).
	cl.InflightIn().Delete(pk.PacketID)
	return cl.WritePacket(&packets.PubcompPacket{FixedHeader: packets.NewFixedHeader(packets.Pubcomp), PacketID: pk.PacketID})
}

func (s *Server) processSubscribe(cl *ClientContext, pk *packets.SubscribePacket) error {
	codes := make([]byte, len(pk.Topics))
	for i, filter := range pk.Topics {
		if !topics.ValidateFilter(filter) || !s.opts.Auth.ACL(cl.Username, filter, false) {
			codes[i] = packets.SubackFailure
			continue
		}

		qos := pk.Qoss[i]
		if qos > s.opts.MaximumQos {
			qos = s.opts.MaximumQos
		}

		s.subs.Subscribe(filter, cl.ID, qos)
		codes[i] = packets.QosCodes[qos]
		s.sink().Subscribed(cl.ID, filter, qos)
	}

	if err := cl.WritePacket(&packets.SubackPacket{
		FixedHeader: packets.NewFixedHeader(packets.Suback),
		PacketID:    pk.PacketID,
		ReturnCodes: codes,
	}); err != nil {
		return err
	}

	// Retained messages are replayed only once the SUBACK has been written;
	// a granted code is the granted QoS.
	for i, filter := range pk.Topics {
		if codes[i] != packets.SubackFailure {
			s.deliverRetained(cl, filter, codes[i])
		}
	}
	return nil
}

func (s *Server) deliverRetained(cl *ClientContext, filter string, qos byte) {
	for _, r := range s.retained.Match(filter) {
		out := r.QoS
		if out > qos {
			out = qos
		}
		template := &packets.PublishPacket{
			FixedHeader: packets.NewFixedHeader(packets.Publish),
			TopicName:   r.Topic,
			Payload:     r.Payload,
		}
		template.Retain = true
		s.deliverTo(cl, template, out)
	}
}

func (s *Server) processUnsubscribe(cl *ClientContext, pk *packets.UnsubscribePacket) error {
	for _, filter := range pk.Topics {
		s.subs.Unsubscribe(filter, cl.ID)
		s.sink().Unsubscribed(cl.ID, filter)
	}
	return cl.WritePacket(&packets.UnsubackPacket{
		FixedHeader: packets.NewFixedHeader(packets.Unsuback),
		PacketID:    pk.PacketID,
	})
}

// Publish injects a message as if it had been published by an internal,
// non-networked client, for embedding the broker in a process that needs to
// publish $SYS-style data or application events directly. As with a client
// publish, retain only decides whether the message is stored; live
// subscribers receive it with RETAIN clear.
func (s *Server) Publish(topic string, payload []byte, qos byte, retain bool) error {
	if !topics.ValidateTopicName(topic) {
		return packets.ErrProtocolViolation
	}
	if retain {
		s.retained.Set(topic, payload, qos)
	}
	s.publish(topic, payload, qos, false)
	return nil
}

// publish fans a message out to every subscriber whose filter matches
// topic, running each recipient's delivery on the fan pool column keyed by
// that recipient's client id so one slow subscriber can't block delivery to
// the rest.
func (s *Server) publish(topic string, payload []byte, qos byte, retain bool) {
	template := &packets.PublishPacket{
		FixedHeader: packets.NewFixedHeader(packets.Publish),
		TopicName:   topic,
		Payload:     payload,
	}
	template.Retain = retain

	for _, sub := range s.subs.Subscribers(topic) {
		clientID := sub.ClientID
		out := sub.QoS
		if out > qos {
			out = qos
		}
		s.fanPool.Enqueue(clientID, func() {
			if cl, ok := s.clients.Get(clientID); ok {
				s.deliverTo(cl, template, out)
			}
		})
	}
}

// deliverTo clones template for a single recipient, so the packet id and
// per-connection inflight bookkeeping never leak between the N deliveries a
// single publish fans out to.
func (s *Server) deliverTo(cl *ClientContext, template *packets.PublishPacket, qos byte) {
	pk := &packets.PublishPacket{}
	if err := copier.Copy(pk, template); err != nil {
		s.log.Error("failed to copy publish packet for delivery", "client", cl.ID, "error", err)
		return
	}
	pk.Qos = qos

	if qos > 0 {
		pk.PacketID = cl.NextPacketID()
		cl.InflightOut().Set(pk)
	}

	if !cl.Enqueue(pk) {
		s.stats.MessageDropped()
		s.log.Warn("dropped publish, outbound queue full", "client", cl.ID, "topic", pk.TopicName)
		return
	}
	s.stats.MessageSent()
}

