package packets

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func testAckRoundTrip(t *testing.T, pk Packet, decoded Packet, getID func(Packet) uint16) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, pk.Encode(&buf))

	_, ln, err := DecodeRemainingLength(buf.Bytes()[1:])
	require.NoError(t, err)

	require.NoError(t, decoded.Decode(buf.Bytes()[1+ln:]))
	require.Equal(t, getID(pk), getID(decoded))
}

func TestPubackRoundTrip(t *testing.T) {
	testAckRoundTrip(t,
		&PubackPacket{FixedHeader: NewFixedHeader(Puback), PacketID: 5},
		&PubackPacket{},
		func(p Packet) uint16 { return p.(*PubackPacket).PacketID },
	)
}

func TestPubrecRoundTrip(t *testing.T) {
	testAckRoundTrip(t,
		&PubrecPacket{FixedHeader: NewFixedHeader(Pubrec), PacketID: 6},
		&PubrecPacket{},
		func(p Packet) uint16 { return p.(*PubrecPacket).PacketID },
	)
}

func TestPubrelRoundTrip(t *testing.T) {
	testAckRoundTrip(t,
		&PubrelPacket{FixedHeader: NewFixedHeader(Pubrel), PacketID: 7},
		&PubrelPacket{},
		func(p Packet) uint16 { return p.(*PubrelPacket).PacketID },
	)
}

func TestPubcompRoundTrip(t *testing.T) {
	testAckRoundTrip(t,
		&PubcompPacket{FixedHeader: NewFixedHeader(Pubcomp), PacketID: 8},
		&PubcompPacket{},
		func(p Packet) uint16 { return p.(*PubcompPacket).PacketID },
	)
}

func TestUnsubackRoundTrip(t *testing.T) {
	testAckRoundTrip(t,
		&UnsubackPacket{FixedHeader: NewFixedHeader(Unsuback), PacketID: 9},
		&UnsubackPacket{},
		func(p Packet) uint16 { return p.(*UnsubackPacket).PacketID },
	)
}

func TestAckPacketsRejectMissingPacketID(t *testing.T) {
	_, err := (&PubackPacket{}).Validate()
	require.ErrorIs(t, err, ErrMissingPacketID)

	_, err = (&PubrecPacket{}).Validate()
	require.ErrorIs(t, err, ErrMissingPacketID)

	_, err = (&PubrelPacket{}).Validate()
	require.ErrorIs(t, err, ErrMissingPacketID)

	_, err = (&PubcompPacket{}).Validate()
	require.ErrorIs(t, err, ErrMissingPacketID)
}
