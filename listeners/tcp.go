package listeners

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"
)

// TCP is a listener that accepts client connections over plain TCP. It has
// no notion of MQTT, sessions or auth - it accepts a net.Conn and hands it
// to whatever EstablishFunc Serve was given.
type TCP struct {
	id       string
	protocol string
	address  string
	config   *Config
	log      *slog.Logger

	mu      sync.Mutex
	listen  net.Listener
	conns   int32
	limiter *rate.Limiter

	done   chan bool
	end    *sync.Once
	ctx    context.Context
	cancel context.CancelFunc
}

// acceptCtx returns the context that bounds rate-limiter waits in Serve,
// so a pending Wait unblocks as soon as the listener is closed.
func (l *TCP) acceptCtx() context.Context {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ctx == nil {
		l.ctx, l.cancel = context.WithCancel(context.Background())
	}
	return l.ctx
}

// NewTCP returns a new TCP listener bound to id, not yet listening. Call
// Listen to bind the network address.
func NewTCP(id, address string) *TCP {
	return &TCP{
		id:       id,
		protocol: "tcp",
		address:  address,
		done:     make(chan bool),
		end:      new(sync.Once),
	}
}

// ID returns the listener's id.
func (l *TCP) ID() string { return l.id }

// Address returns the address the listener binds to.
func (l *TCP) Address() string { return l.address }

// Protocol returns the network the listener serves.
func (l *TCP) Protocol() string { return l.protocol }

// Init wires a logger into the listener.
func (l *TCP) Init(log *slog.Logger) error {
	l.log = log
	return nil
}

// SetConfig applies Config values to the listener.
func (l *TCP) SetConfig(config *Config) {
	l.mu.Lock()
	l.config = config
	l.limiter = nil
	if config != nil && config.AcceptRate > 0 {
		burst := config.AcceptBurst
		if burst <= 0 {
			burst = 1
		}
		l.limiter = rate.NewLimiter(rate.Limit(config.AcceptRate), burst)
	}
	l.mu.Unlock()
}

// Listen binds the listener's network address.
func (l *TCP) Listen() error {
	ln, err := net.Listen(l.protocol, l.address)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.listen = ln
	l.mu.Unlock()
	return nil
}

// Serve accepts connections until Close is called, handing each to
// establish in its own goroutine so a slow or malicious client can't
// starve the accept loop.
func (l *TCP) Serve(establish EstablishFunc) {
	for {
		select {
		case <-l.done:
			return
		default:
		}

		conn, err := l.listen.Accept()
		if err != nil {
			select {
			case <-l.done:
				return
			default:
				continue
			}
		}

		l.mu.Lock()
		max := 0
		if l.config != nil {
			max = l.config.MaxConnections
		}
		limiter := l.limiter
		l.mu.Unlock()

		if max > 0 && atomic.LoadInt32(&l.conns) >= int32(max) {
			conn.Close()
			continue
		}

		if limiter != nil {
			if err := limiter.Wait(l.acceptCtx()); err != nil {
				conn.Close()
				return
			}
		}

		atomic.AddInt32(&l.conns, 1)
		go func() {
			defer atomic.AddInt32(&l.conns, -1)
			establish(conn)
		}()
	}
}

// Close stops the listener from accepting new connections and calls
// closeClients once to let the caller tear down clients it owns.
func (l *TCP) Close(closeClients CloseFunc) {
	l.end.Do(func() {
		closeClients(l.id)
		close(l.done)
		l.mu.Lock()
		if l.cancel != nil {
			l.cancel()
		}
		l.mu.Unlock()
	})

	l.mu.Lock()
	ln := l.listen
	l.mu.Unlock()
	if ln == nil {
		return
	}

	addr := ln.Addr().String()
	ln.Close()

	// Unblock a goroutine parked in Accept() by dialing the (now closing)
	// listener once ourselves.
	if c, err := net.Dial(l.protocol, addr); err == nil {
		c.Close()
	}
}
