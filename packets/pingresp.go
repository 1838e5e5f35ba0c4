package packets

import "bytes"

// PingrespPacket contains the values of an MQTT PINGRESP packet.
type PingrespPacket struct {
	FixedHeader
}

// Encode encodes and writes the packet to buf.
func (pk *PingrespPacket) Encode(buf *bytes.Buffer) error {
	pk.FixedHeader.Remaining = 0
	pk.FixedHeader.Encode(buf)
	return nil
}

// Decode extracts the data values from the packet. PINGRESP carries no payload.
func (pk *PingrespPacket) Decode(buf []byte) error {
	return nil
}

// Validate ensures the packet is compliant.
func (pk *PingrespPacket) Validate() (byte, error) {
	return Accepted, nil
}
