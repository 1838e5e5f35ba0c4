package packets

import "bytes"

// SubackPacket contains the values of an MQTT SUBACK packet.
type SubackPacket struct {
	FixedHeader

	PacketID    uint16
	ReturnCodes []byte
}

// Encode encodes and writes the packet to buf.
func (pk *SubackPacket) Encode(buf *bytes.Buffer) error {
	var body bytes.Buffer
	body.Write(encodeUint16(pk.PacketID))
	body.Write(pk.ReturnCodes)

	pk.FixedHeader.Remaining = body.Len()
	pk.FixedHeader.Encode(buf)
	buf.Write(body.Bytes())

	return nil
}

// Decode extracts the data values from the packet.
func (pk *SubackPacket) Decode(buf []byte) error {
	var offset int
	var err error

	pk.PacketID, offset, err = decodeUint16(buf, 0)
	if err != nil {
		return ErrMalformedPacketID
	}

	pk.ReturnCodes = append([]byte(nil), buf[offset:]...)

	return nil
}

// Validate ensures the packet is compliant.
func (pk *SubackPacket) Validate() (byte, error) {
	if pk.PacketID == 0 {
		return Failed, ErrMissingPacketID
	}
	return Accepted, nil
}

// GetPacketID returns the packet's identifier, for code that needs it
// without knowing the concrete packet type.
func (pk *SubackPacket) GetPacketID() uint16 { return pk.PacketID }
