package packets

import "bytes"

// PingreqPacket contains the values of an MQTT PINGREQ packet.
type PingreqPacket struct {
	FixedHeader
}

// Encode encodes and writes the packet to buf.
func (pk *PingreqPacket) Encode(buf *bytes.Buffer) error {
	pk.FixedHeader.Remaining = 0
	pk.FixedHeader.Encode(buf)
	return nil
}

// Decode extracts the data values from the packet. PINGREQ carries no payload.
func (pk *PingreqPacket) Decode(buf []byte) error {
	return nil
}

// Validate ensures the packet is compliant.
func (pk *PingreqPacket) Validate() (byte, error) {
	return Accepted, nil
}
