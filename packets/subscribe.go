package packets

import "bytes"

// SubscribePacket contains the values of an MQTT SUBSCRIBE packet.
type SubscribePacket struct {
	FixedHeader

	PacketID uint16
	Topics   []string
	Qoss     []byte
}

// Encode encodes and writes the packet to buf.
func (pk *SubscribePacket) Encode(buf *bytes.Buffer) error {
	// [MQTT-2.3.1-1]
	if pk.PacketID == 0 {
		return ErrMissingPacketID
	}

	var body bytes.Buffer
	body.Write(encodeUint16(pk.PacketID))
	for i, topic := range pk.Topics {
		body.Write(encodeString(topic))
		body.WriteByte(pk.Qoss[i])
	}

	pk.FixedHeader.Remaining = body.Len()
	pk.FixedHeader.Encode(buf)
	buf.Write(body.Bytes())

	return nil
}

// Decode extracts the data values from the packet.
func (pk *SubscribePacket) Decode(buf []byte) error {
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

		var qos byte
		qos, offset, err = decodeByte(buf, offset)
		if err != nil || !validateQoS(qos) {
			return ErrMalformedQoS
		}

		pk.Topics = append(pk.Topics, topic)
		pk.Qoss = append(pk.Qoss, qos)
	}

	return nil
}

// Validate ensures the packet is compliant.
func (pk *SubscribePacket) Validate() (byte, error) {
	// [MQTT-2.3.1-1]
	if pk.PacketID == 0 {
		return Failed, ErrMissingPacketID
	}

	// [MQTT-3.8.3-3]: a SUBSCRIBE must contain at least one filter.
	if len(pk.Topics) == 0 {
		return Failed, ErrProtocolViolation
	}

	return Accepted, nil
}

// GetPacketID returns the packet's identifier, for code that needs it
// without knowing the concrete packet type.
func (pk *SubscribePacket) GetPacketID() uint16 { return pk.PacketID }
