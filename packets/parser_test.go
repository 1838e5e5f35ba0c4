package packets

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParserReadWritePacketRoundTrip(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	sp := NewParser(server)
	cp := NewParser(client)

	want := &PublishPacket{
		FixedHeader: FixedHeader{Type: Publish, Qos: 1},
		TopicName:   "a/b/c",
		PacketID:    42,
		Payload:     []byte("payload"),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- cp.WritePacket(want)
	}()

	got, err := sp.ReadPacket()
	require.NoError(t, err)
	require.NoError(t, <-errCh)

	pub, ok := got.(*PublishPacket)
	require.True(t, ok)
	require.Equal(t, want.TopicName, pub.TopicName)
	require.Equal(t, want.PacketID, pub.PacketID)
	require.Equal(t, want.Payload, pub.Payload)
}

func TestParserReadFixedHeaderOversizedLength(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	sp := NewParser(server)

	go func() {
		// type=PUBLISH, then five continuation bytes: an oversized varint.
		client.Write([]byte{Publish << 4, 0xFF, 0xFF, 0xFF, 0xFF, 0x7F})
	}()

	var fh FixedHeader
	err := sp.ReadFixedHeader(&fh)
	require.ErrorIs(t, err, ErrOversizedLengthIndicator)
}

func TestParserRefreshDeadlineZeroKeepaliveDisablesDeadline(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	p := NewParser(server)
	p.RefreshDeadline(0)

	// A zero keepalive clears the deadline; the connection should tolerate
	// an otherwise-instant read timeout window.
	done := make(chan struct{})
	go func() {
		time.Sleep(10 * time.Millisecond)
		client.Write([]byte{Pingreq << 4, 0x00})
		close(done)
	}()

	buf := make([]byte, 2)
	_, err := server.Read(buf)
	require.NoError(t, err)
	<-done
}
