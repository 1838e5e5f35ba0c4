package packets

import "bytes"

// PubrelPacket contains the values of an MQTT PUBREL packet: the second
// half of the QoS 2 acknowledgement handshake.
type PubrelPacket struct {
	FixedHeader

	PacketID uint16
}

// Encode encodes and writes the packet to buf.
func (pk *PubrelPacket) Encode(buf *bytes.Buffer) error {
	pk.FixedHeader.Remaining = 2
	pk.FixedHeader.Encode(buf)
	buf.Write(encodeUint16(pk.PacketID))
	return nil
}

// Decode extracts the data values from the packet.
func (pk *PubrelPacket) Decode(buf []byte) error {
	var err error
	pk.PacketID, _, err = decodeUint16(buf, 0)
	if err != nil {
		return ErrMalformedPacketID
	}
	return nil
}

// Validate ensures the packet is compliant.
func (pk *PubrelPacket) Validate() (byte, error) {
	if pk.PacketID == 0 {
		return Failed, ErrMissingPacketID
	}
	return Accepted, nil
}

// GetPacketID returns the packet's identifier, for code that needs it
// without knowing the concrete packet type.
func (pk *PubrelPacket) GetPacketID() uint16 { return pk.PacketID }
