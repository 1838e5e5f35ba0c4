package packets

import "bytes"

// ConnectPacket contains the values of an MQTT CONNECT packet.
type ConnectPacket struct {
	FixedHeader

	ProtocolName     string
	ProtocolVersion  byte
	CleanSession     bool
	WillFlag         bool
	WillQos          byte
	WillRetain       bool
	UsernameFlag     bool
	PasswordFlag     bool
	ReservedBit      byte
	Keepalive        uint16
	ClientIdentifier string
	WillTopic        string
	WillMessage      []byte
	Username         string
	Password         string
}

// Encode encodes and writes the packet to buf.
func (pk *ConnectPacket) Encode(buf *bytes.Buffer) error {
	protoName := encodeString(pk.ProtocolName)
	keepalive := encodeUint16(pk.Keepalive)
	clientID := encodeString(pk.ClientIdentifier)
	flag := encodeBool(pk.CleanSession)<<1 | encodeBool(pk.WillFlag)<<2 | pk.WillQos<<3 |
		encodeBool(pk.WillRetain)<<5 | encodeBool(pk.PasswordFlag)<<6 | encodeBool(pk.UsernameFlag)<<7

	var willTopic, willMessage, username, password []byte
	if pk.WillFlag {
		willTopic = encodeString(pk.WillTopic)
		willMessage = encodeBytes(pk.WillMessage)
	}
	if pk.UsernameFlag {
		username = encodeString(pk.Username)
	}
	if pk.PasswordFlag {
		password = encodeString(pk.Password)
	}

	pk.FixedHeader.Remaining = len(protoName) + 1 + 1 + len(keepalive) + len(clientID) +
		len(willTopic) + len(willMessage) + len(username) + len(password)
	pk.FixedHeader.Encode(buf)

	buf.Write(protoName)
	buf.WriteByte(pk.ProtocolVersion)
	buf.WriteByte(flag)
	buf.Write(keepalive)
	buf.Write(clientID)
	buf.Write(willTopic)
	buf.Write(willMessage)
	buf.Write(username)
	buf.Write(password)

	return nil
}

// Decode extracts the data values from the packet.
func (pk *ConnectPacket) Decode(buf []byte) error {
	var offset int
	var err error

	pk.ProtocolName, offset, err = decodeString(buf, 0)
	if err != nil {
		return ErrMalformedProtocolName
	}

	pk.ProtocolVersion, offset, err = decodeByte(buf, offset)
	if err != nil {
		return ErrMalformedProtocolVersion
	}

	flags, offset, err := decodeByte(buf, offset)
	if err != nil {
		return ErrMalformedFlags
	}
	pk.ReservedBit = 1 & flags
	pk.CleanSession = 1&(flags>>1) > 0
	pk.WillFlag = 1&(flags>>2) > 0
	pk.WillQos = 3 & (flags >> 3)
	pk.WillRetain = 1&(flags>>5) > 0
	pk.PasswordFlag = 1&(flags>>6) > 0
	pk.UsernameFlag = 1&(flags>>7) > 0

	pk.Keepalive, offset, err = decodeUint16(buf, offset)
	if err != nil {
		return ErrMalformedKeepalive
	}

	pk.ClientIdentifier, offset, err = decodeString(buf, offset)
	if err != nil {
		return ErrMalformedClientID
	}

	if pk.WillFlag {
		pk.WillTopic, offset, err = decodeString(buf, offset)
		if err != nil {
			return ErrMalformedWillTopic
		}

		pk.WillMessage, offset, err = decodeBytes(buf, offset)
		if err != nil {
			return ErrMalformedWillMessage
		}
	}

	if pk.UsernameFlag {
		pk.Username, offset, err = decodeString(buf, offset)
		if err != nil {
			return ErrMalformedUsername
		}
	}

	if pk.PasswordFlag {
		pk.Password, _, err = decodeString(buf, offset)
		if err != nil {
			return ErrMalformedPassword
		}
	}

	return nil
}

// Validate ensures the packet is compliant, returning the CONNACK return
// code to send if it isn't.
func (pk *ConnectPacket) Validate() (byte, error) {
	if pk.ProtocolName != "MQIsdp" && pk.ProtocolName != "MQTT" {
		return CodeProtocolViolation.Code, ErrProtocolViolation
	}

	// [MQTT-3.1.2-2]
	if (pk.ProtocolName == "MQIsdp" && pk.ProtocolVersion != 3) ||
		(pk.ProtocolName == "MQTT" && pk.ProtocolVersion != 4) {
		return CodeBadProtocolVersion.Code, CodeBadProtocolVersion
	}

	// [MQTT-3.1.2-3]
	if pk.ReservedBit != 0 {
		return CodeProtocolViolation.Code, ErrProtocolViolation
	}

	if len(pk.ClientIdentifier) > 65535 || len(pk.Username) > 65535 || len(pk.Password) > 65535 {
		return CodeProtocolViolation.Code, ErrProtocolViolation
	}

	// [MQTT-3.1.2-22]
	if pk.PasswordFlag && !pk.UsernameFlag {
		return CodeProtocolViolation.Code, ErrProtocolViolation
	}

	// [MQTT-3.1.3-7]: a zero-length client id is only allowed with clean session.
	if !pk.CleanSession && len(pk.ClientIdentifier) == 0 {
		return CodeClientIDRejected.Code, CodeClientIDRejected
	}

	if pk.WillFlag && !validateQoS(pk.WillQos) {
		return CodeProtocolViolation.Code, ErrProtocolViolation
	}

	return Accepted, nil
}
