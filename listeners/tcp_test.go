package listeners

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewTCP(t *testing.T) {
	l := NewTCP("t1", ":18883")
	require.Equal(t, "t1", l.id)
	require.Equal(t, ":18883", l.address)
	require.NotNil(t, l.end)
	require.NotNil(t, l.done)
}

func TestTCPIDAddressProtocol(t *testing.T) {
	l := NewTCP("t1", ":18883")
	require.Equal(t, "t1", l.ID())
	require.Equal(t, ":18883", l.Address())
	require.Equal(t, "tcp", l.Protocol())
}

func TestTCPSetConfig(t *testing.T) {
	l := NewTCP("t1", ":18883")
	l.SetConfig(new(Config))
	require.NotNil(t, l.config)
}

func TestTCPListen(t *testing.T) {
	l := NewTCP("t1", ":18884")
	require.NoError(t, l.Listen())
	defer l.listen.Close()

	l2 := NewTCP("t2", ":18884")
	require.Error(t, l2.Listen())
}

func TestTCPServe(t *testing.T) {
	l := NewTCP("t1", ":18885")
	require.NoError(t, l.Listen())

	o := make(chan bool)
	go func() {
		l.Serve(MockEstablisher)
		o <- true
	}()

	time.Sleep(time.Millisecond)
	var closed bool
	l.Close(func(id string) {
		closed = true
		require.Equal(t, "t1", id)
	})
	require.True(t, closed)
	<-o
}

func TestTCPServeAcceptEstablish(t *testing.T) {
	l := NewTCP("t1", ":18886")
	require.NoError(t, l.Listen())

	o := make(chan bool)
	ok := make(chan bool, 1)
	go func() {
		l.Serve(func(c net.Conn) error {
			ok <- true
			c.Close()
			return errors.New("testing")
		})
		o <- true
	}()

	time.Sleep(time.Millisecond)
	conn, err := net.Dial(l.protocol, l.listen.Addr().String())
	require.NoError(t, err)
	conn.Close()

	require.True(t, <-ok)
	l.Close(MockCloser)
	<-o
}

func TestTCPCloseBrokenListener(t *testing.T) {
	l := NewTCP("t1", ":18887")
	require.NoError(t, l.Listen())

	o := make(chan bool)
	go func() {
		l.Serve(MockEstablisher)
		o <- true
	}()

	time.Sleep(time.Millisecond)
	l.listen.Close()
	l.Close(MockCloser)
	<-o
}
