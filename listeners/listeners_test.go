package listeners

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const testAddr = ":18882"

func TestListenersAddGetLen(t *testing.T) {
	ls := New()
	ls.Add(NewMockListener("t1", testAddr))
	require.Equal(t, 1, ls.Len())

	l, ok := ls.Get("t1")
	require.True(t, ok)
	require.Equal(t, "t1", l.ID())

	_, ok = ls.Get("missing")
	require.False(t, ok)
}

func TestListenersDelete(t *testing.T) {
	ls := New()
	ls.Add(NewMockListener("t1", testAddr))
	ls.Delete("t1")
	require.Equal(t, 0, ls.Len())
}

func TestListenersServeAllAndCloseAll(t *testing.T) {
	ls := New()
	ls.Add(NewMockListener("t1", testAddr))
	ls.Add(NewMockListener("t2", testAddr))

	require.NoError(t, ls.ServeAll(MockEstablisher))

	closed := map[string]bool{}
	ls.CloseAll(func(id string) {
		closed[id] = true
	})

	require.True(t, closed["t1"])
	require.True(t, closed["t2"])
}

func TestListenersServeUnknownID(t *testing.T) {
	ls := New()
	require.NoError(t, ls.Serve("missing", MockEstablisher))
}

func TestListenersCloseUnknownID(t *testing.T) {
	ls := New()
	ls.Close("missing", MockCloser) // must not panic
}
