package packets

import "bytes"

// ConnackPacket contains the values of an MQTT CONNACK packet.
type ConnackPacket struct {
	FixedHeader

	SessionPresent bool
	ReturnCode     byte
}

// Encode encodes and writes the packet to buf.
func (pk *ConnackPacket) Encode(buf *bytes.Buffer) error {
	pk.FixedHeader.Remaining = 2
	pk.FixedHeader.Encode(buf)
	buf.WriteByte(encodeBool(pk.SessionPresent))
	buf.WriteByte(pk.ReturnCode)
	return nil
}

// Decode extracts the data values from the packet.
func (pk *ConnackPacket) Decode(buf []byte) error {
	var offset int
	var err error

	pk.SessionPresent, offset, err = decodeByteBool(buf, 0)
	if err != nil {
		return ErrMalformedSessionPresent
	}

	pk.ReturnCode, _, err = decodeByte(buf, offset)
	if err != nil {
		return ErrMalformedReturnCode
	}

	return nil
}

// Validate ensures the packet is compliant.
func (pk *ConnackPacket) Validate() (byte, error) {
	// [MQTT-3.2.2-4]: SessionPresent must be 0 when ReturnCode is not 0.
	if pk.ReturnCode != Accepted && pk.SessionPresent {
		return Failed, ErrProtocolViolation
	}
	return Accepted, nil
}
