package packets

import (
	"bufio"
	"encoding/binary"
	"io"
	"net"
	"sync"
	"time"

	"github.com/nymea-go/mqttgo/mempool"
)

// Parser reads and writes MQTT packets over a single net.Conn, buffering
// reads through a bufio.Reader. It holds no packet-id or session state of
// its own; that lives on the caller's session.
type Parser struct {
	Conn net.Conn
	R    *bufio.Reader

	// FixedHeader is the fixed header of the packet most recently read by
	// ReadFixedHeader, kept so Read knows which concrete type to allocate.
	FixedHeader FixedHeader

	// wmu serializes WritePacket calls: a session may write both from its
	// own read loop (acks) and from a separate write-loop goroutine
	// (fanned-out publishes), and two interleaved writes on the same
	// net.Conn would corrupt the stream.
	wmu sync.Mutex
}

// NewParser returns a Parser reading from and writing to c.
func NewParser(c net.Conn) *Parser {
	return &Parser{
		Conn: c,
		R:    bufio.NewReaderSize(c, 512),
	}
}

// RefreshDeadline pushes the connection's read/write deadline out by 1.5x
// the negotiated keepalive interval, per MQTT 3.1.1 section 3.1.2.10: a
// server that hasn't heard from a client within one and a half times the
// keepalive period must close the connection. A keepalive of 0 disables the
// deadline entirely.
func (p *Parser) RefreshDeadline(keepalive uint16) {
	if keepalive == 0 {
		p.Conn.SetDeadline(time.Time{})
		return
	}
	expiry := time.Duration(keepalive) * time.Second * 3 / 2
	p.Conn.SetDeadline(time.Now().Add(expiry))
}

// ReadFixedHeader reads the next packet's fixed header from the stream. It
// peeks byte-by-byte through the variable-length remaining-length field so
// that a malformed length never consumes bytes the caller can't recover
// from; a remaining-length field wider than four bytes is a protocol
// violation ([MQTT-1.5.3]) that terminates the connection.
func (p *Parser) ReadFixedHeader(fh *FixedHeader) error {
	first, err := p.R.Peek(1)
	if err != nil {
		return err
	}

	if err := fh.Decode(first[0]); err != nil {
		return ErrInvalidFlags
	}

	lenBytes := make([]byte, 0, 4)
	for i := 1; ; i++ {
		if i > 4 {
			return ErrOversizedLengthIndicator
		}
		peeked, err := p.R.Peek(1 + i)
		if err != nil {
			return err
		}
		b := peeked[i]
		lenBytes = append(lenBytes, b)
		if b < 0x80 {
			break
		}
	}

	remaining, n := binary.Uvarint(lenBytes)
	if n <= 0 || remaining > 268435455 {
		return ErrOversizedLengthIndicator
	}
	fh.Remaining = int(remaining)

	p.R.Discard(1 + len(lenBytes))
	p.FixedHeader = *fh

	return nil
}

// Decode allocates and decodes the packet body following the most recently
// read fixed header, without validating it. Most callers want Read instead;
// Decode exists for the CONNECT handshake, where the caller needs the
// decoded packet even when it fails validation, so it can inspect the
// specific reason and reply with the matching CONNACK code before closing.
func (p *Parser) Decode() (Packet, error) {
	pk := New(p.FixedHeader.Type)
	if pk == nil {
		return nil, ErrUnknownPacketType
	}
	// PUBLISH carries its QoS, DUP and RETAIN in the header flags read from
	// the wire, and its body layout depends on the QoS.
	if pub, ok := pk.(*PublishPacket); ok {
		pub.FixedHeader = p.FixedHeader
	}

	body := make([]byte, p.FixedHeader.Remaining)
	if p.FixedHeader.Remaining > 0 {
		if _, err := io.ReadFull(p.R, body); err != nil {
			return nil, err
		}
	}

	if err := pk.Decode(body); err != nil {
		return nil, err
	}

	return pk, nil
}

// Read allocates and decodes the packet body following the most recently
// read fixed header, validating it before returning.
func (p *Parser) Read() (Packet, error) {
	pk, err := p.Decode()
	if err != nil {
		return nil, err
	}

	if _, err := pk.Validate(); err != nil {
		return nil, err
	}

	return pk, nil
}

// ReadPacket reads one full MQTT packet from the stream: its fixed header
// followed by its body. Each call blocks on exactly one packet boundary, so
// a caller loops over ReadPacket for as long as the connection lives -
// there is no recursion into the parser itself.
func (p *Parser) ReadPacket() (Packet, error) {
	var fh FixedHeader
	if err := p.ReadFixedHeader(&fh); err != nil {
		return nil, err
	}
	return p.Read()
}

// WritePacket encodes pk and writes it to the connection in a single Write
// call, so a partially-sent packet can never interleave with another
// goroutine's write on the same connection.
func (p *Parser) WritePacket(pk Packet) error {
	buf := mempool.GetBuffer()
	defer mempool.PutBuffer(buf)

	if err := pk.Encode(buf); err != nil {
		return err
	}

	p.wmu.Lock()
	defer p.wmu.Unlock()
	_, err := p.Conn.Write(buf.Bytes())
	return err
}
