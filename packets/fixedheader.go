package packets

import "bytes"

// FixedHeader contains the values of the fixed header portion of an MQTT
// control packet: the two-nibble type/flags byte and the variable-length
// remaining-length field.
type FixedHeader struct {
	// Type is the packet type (CONNECT, PUBLISH, ...) from bits 7-4 of byte 1.
	Type byte

	// Dup indicates the packet is a retransmission (PUBLISH only).
	Dup bool

	// Qos is the quality-of-service level; only meaningful for PUBLISH,
	// where it is the message's QoS, and for SUBSCRIBE, UNSUBSCRIBE and
	// PUBREL, which carry a fixed QoS 1 pattern in their flag bits.
	Qos byte

	// Retain indicates a PUBLISH should be stored as the topic's retained
	// message.
	Retain bool

	// Remaining is the number of bytes following the fixed header.
	Remaining int
}

// Encode writes the fixed header's type/flags byte and remaining-length
// varint to buf.
func (fh *FixedHeader) Encode(buf *bytes.Buffer) {
	buf.WriteByte(fh.Type<<4 | encodeBool(fh.Dup)<<3 | fh.Qos<<1 | encodeBool(fh.Retain))
	encodeLength(buf, fh.Remaining)
}

// Decode extracts the packet type and flag bits from the first header byte.
// [MQTT-2.2.2-1]: reserved flag bits must be zero for packet types that
// don't define a use for them; [MQTT-2.2.2-2] requires closing the
// connection if that's violated.
func (fh *FixedHeader) Decode(headerByte byte) error {
	fh.Type = headerByte >> 4

	switch fh.Type {
	case Publish:
		fh.Dup = (headerByte>>3)&0x01 > 0
		fh.Qos = (headerByte >> 1) & 0x03
		fh.Retain = headerByte&0x01 > 0
	case Pubrel, Subscribe, Unsubscribe:
		fh.Qos = (headerByte >> 1) & 0x03
	default:
		if (headerByte>>3)&0x01 > 0 || (headerByte>>1)&0x03 > 0 || headerByte&0x01 > 0 {
			return ErrInvalidFlags
		}
	}

	return nil
}

// encodeLength writes length as an MQTT variable byte integer (up to four
// bytes, base-128 with a continuation bit), per section 2.2.3.
func encodeLength(buf *bytes.Buffer, length int) {
	for {
		digit := byte(length % 128)
		length /= 128
		if length > 0 {
			digit |= 0x80
		}
		buf.WriteByte(digit)
		if length == 0 {
			break
		}
	}
}
