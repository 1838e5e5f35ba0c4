package packets

import "bytes"

// PubcompPacket contains the values of an MQTT PUBCOMP packet: the final
// message in the QoS 2 acknowledgement handshake.
type PubcompPacket struct {
	FixedHeader

	PacketID uint16
}

// Encode encodes and writes the packet to buf.
func (pk *PubcompPacket) Encode(buf *bytes.Buffer) error {
	pk.FixedHeader.Remaining = 2
	pk.FixedHeader.Encode(buf)
	buf.Write(encodeUint16(pk.PacketID))
	return nil
}

// Decode extracts the data values from the packet.
func (pk *PubcompPacket) Decode(buf []byte) error {
	var err error
	pk.PacketID, _, err = decodeUint16(buf, 0)
	if err != nil {
		return ErrMalformedPacketID
	}
	return nil
}

// Validate ensures the packet is compliant.
func (pk *PubcompPacket) Validate() (byte, error) {
	if pk.PacketID == 0 {
		return Failed, ErrMissingPacketID
	}
	return Accepted, nil
}

// GetPacketID returns the packet's identifier, for code that needs it
// without knowing the concrete packet type.
func (pk *PubcompPacket) GetPacketID() uint16 { return pk.PacketID }
