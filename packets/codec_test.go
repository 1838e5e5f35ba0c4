package packets

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeString(t *testing.T) {
	b := encodeString("hello/world")
	s, n, err := decodeString(b, 0)
	require.NoError(t, err)
	require.Equal(t, "hello/world", s)
	require.Equal(t, len(b), n)
}

func TestDecodeStringRejectsInvalidUTF8(t *testing.T) {
	b := encodeBytes([]byte{0xff, 0xfe})
	_, _, err := decodeString(b, 0)
	require.ErrorIs(t, err, ErrOffsetStrInvalidUTF8)
}

func TestDecodeStringRejectsEmbeddedNull(t *testing.T) {
	b := encodeBytes([]byte("a\x00b"))
	_, _, err := decodeString(b, 0)
	require.ErrorIs(t, err, ErrOffsetStrInvalidUTF8)
}

func TestDecodeBytesOutOfRange(t *testing.T) {
	_, _, err := decodeBytes([]byte{0x00, 0x05, 'a'}, 0)
	require.ErrorIs(t, err, ErrOffsetBytesOutOfRange)
}

func TestEncodeDecodeUint16RoundTrip(t *testing.T) {
	b := encodeUint16(4321)
	v, n, err := decodeUint16(b, 0)
	require.NoError(t, err)
	require.Equal(t, uint16(4321), v)
	require.Equal(t, 2, n)
}

func TestValidateQoS(t *testing.T) {
	require.True(t, validateQoS(0))
	require.True(t, validateQoS(1))
	require.True(t, validateQoS(2))
	require.False(t, validateQoS(3))
}
