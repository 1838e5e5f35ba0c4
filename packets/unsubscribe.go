package packets

import "bytes"

// UnsubscribePacket contains the values of an MQTT UNSUBSCRIBE packet.
type UnsubscribePacket struct {
	FixedHeader

	PacketID uint16
	Topics   []string
}

// Encode encodes and writes the packet to buf.
func (pk *UnsubscribePacket) Encode(buf *bytes.Buffer) error {
	// [MQTT-2.3.1-1]
	if pk.PacketID == 0 {
		return ErrMissingPacketID
	}

	var body bytes.Buffer
	body.Write(encodeUint16(pk.PacketID))
	for _, topic := range pk.Topics {
		body.Write(encodeString(topic))
	}

	pk.FixedHeader.Remaining = body.Len()
	pk.FixedHeader.Encode(buf)
	buf.Write(body.Bytes())

	return nil
}

// Decode extracts the data values from the packet.
func (pk *UnsubscribePacket) Decode(buf []byte) error {
	var offset int
	var err error

	pk.PacketID, offset, err = decodeUint16(buf, 0)
	if err != nil {
		return ErrMalformedPacketID
	}

	for offset < len(buf) {
		var topic string
		topic, offset, err = decodeString(buf, offset)
		if err != nil {
			return ErrMalformedTopic
		}
		pk.Topics = append(pk.Topics, topic)
	}

	return nil
}

// Validate ensures the packet is compliant.
func (pk *UnsubscribePacket) Validate() (byte, error) {
	if pk.PacketID == 0 {
		return Failed, ErrMissingPacketID
	}
	if len(pk.Topics) == 0 {
		return Failed, ErrProtocolViolation
	}
	return Accepted, nil
}

// GetPacketID returns the packet's identifier, for code that needs it
// without knowing the concrete packet type.
func (pk *UnsubscribePacket) GetPacketID() uint16 { return pk.PacketID }
