package packets

import "bytes"

// PublishPacket contains the values of an MQTT PUBLISH packet.
type PublishPacket struct {
	FixedHeader

	TopicName string
	PacketID  uint16
	Payload   []byte
}

// Encode encodes and writes the packet to buf.
func (pk *PublishPacket) Encode(buf *bytes.Buffer) error {
	var body bytes.Buffer
	body.Write(encodeString(pk.TopicName))

	// [MQTT-2.3.1-5]: a PUBLISH must not contain a packet id if QoS is 0.
	if pk.Qos > 0 {
		// [MQTT-2.3.1-1]
		if pk.PacketID == 0 {
			return ErrMissingPacketID
		}
		body.Write(encodeUint16(pk.PacketID))
	}

	pk.FixedHeader.Remaining = body.Len() + len(pk.Payload)
	pk.FixedHeader.Encode(buf)
	buf.Write(body.Bytes())
	buf.Write(pk.Payload)

	return nil
}

// Decode extracts the data values from the packet.
func (pk *PublishPacket) Decode(buf []byte) error {
	var offset int
	var err error

	pk.TopicName, offset, err = decodeString(buf, 0)
	if err != nil {
		return ErrMalformedTopic
	}

	if pk.Qos > 0 {
		pk.PacketID, offset, err = decodeUint16(buf, offset)
		if err != nil {
			return ErrMalformedPacketID
		}
	}

	pk.Payload = append([]byte(nil), buf[offset:]...)

	return nil
}

// Validate ensures the packet is compliant.
func (pk *PublishPacket) Validate() (byte, error) {
	// [MQTT-2.3.1-1]
	if pk.Qos > 0 && pk.PacketID == 0 {
		return Failed, ErrMissingPacketID
	}

	// [MQTT-2.3.1-5]
	if pk.Qos == 0 && pk.PacketID > 0 {
		return Failed, ErrSurplusPacketID
	}

	if !validateQoS(pk.Qos) {
		return Failed, ErrMalformedQoS
	}

	return Accepted, nil
}

// GetPacketID returns the packet's identifier, for code that needs it
// without knowing the concrete packet type.
func (pk *PublishPacket) GetPacketID() uint16 { return pk.PacketID }
