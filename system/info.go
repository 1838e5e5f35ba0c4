// Package system holds the broker's runtime statistics, the kind of thing a
// production MQTT server publishes under its own $SYS/broker/# topics.
package system

import (
	"runtime"
	"sync/atomic"
	"time"
)

// Info holds atomic counters and gauges describing one broker's runtime
// state, modeled on the $SYS topic tree conventions most MQTT brokers
// share (https://github.com/mqtt/mqtt.org/wiki/SYS-Topics). Every field is
// updated with the atomic package directly rather than through a mutex, so
// Tracker's increment methods can be called from any goroutine handling a
// client without contending with each other.
type Info struct {
	Version             string `json:"version"`
	Started             int64  `json:"started"`
	Uptime              int64  `json:"uptime"`
	ClientsConnected    int64  `json:"clients_connected"`
	ClientsDisconnected int64  `json:"clients_disconnected"`
	ClientsMaximum      int64  `json:"clients_maximum"`
	ClientsTotal        int64  `json:"clients_total"`
	MessagesReceived    int64  `json:"messages_received"`
	MessagesSent        int64  `json:"messages_sent"`
	MessagesDropped     int64  `json:"messages_dropped"`
	Retained            int64  `json:"retained"`
	Inflight            int64  `json:"inflight"`
	Subscriptions       int64  `json:"subscriptions"`
	PacketsReceived     int64  `json:"packets_received"`
	PacketsSent         int64  `json:"packets_sent"`
	MemoryAlloc         int64  `json:"memory_alloc"`
	Threads             int64  `json:"threads"`
}

// Clone takes an atomic snapshot of a live Tracker's counters.
func (t *Tracker) Clone() *Info {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	started := atomic.LoadInt64(&t.info.Started)

	return &Info{
		Version:             t.info.Version,
		Started:             started,
		Uptime:              time.Now().Unix() - started,
		ClientsConnected:    atomic.LoadInt64(&t.info.ClientsConnected),
		ClientsDisconnected: atomic.LoadInt64(&t.info.ClientsDisconnected),
		ClientsMaximum:      atomic.LoadInt64(&t.info.ClientsMaximum),
		ClientsTotal:        atomic.LoadInt64(&t.info.ClientsTotal),
		MessagesReceived:    atomic.LoadInt64(&t.info.MessagesReceived),
		MessagesSent:        atomic.LoadInt64(&t.info.MessagesSent),
		MessagesDropped:     atomic.LoadInt64(&t.info.MessagesDropped),
		Retained:            atomic.LoadInt64(&t.info.Retained),
		Inflight:            atomic.LoadInt64(&t.info.Inflight),
		Subscriptions:       atomic.LoadInt64(&t.info.Subscriptions),
		PacketsReceived:     atomic.LoadInt64(&t.info.PacketsReceived),
		PacketsSent:         atomic.LoadInt64(&t.info.PacketsSent),
		MemoryAlloc:         int64(mem.Alloc),
		Threads:             int64(runtime.NumGoroutine()),
	}
}

// Tracker is the live, mutable counter set a broker updates as it runs.
// Info itself stays a plain data struct so it can be marshaled straight
// onto a $SYS PUBLISH; Tracker is what accumulates into it.
type Tracker struct {
	info Info
}

// NewTracker returns a Tracker stamped with the given version and the
// current time as its start time.
func NewTracker(version string) *Tracker {
	t := &Tracker{}
	t.info.Version = version
	atomic.StoreInt64(&t.info.Started, time.Now().Unix())
	return t
}

func (t *Tracker) ClientConnected() {
	atomic.AddInt64(&t.info.ClientsConnected, 1)
	atomic.AddInt64(&t.info.ClientsTotal, 1)
	for {
		cur := atomic.LoadInt64(&t.info.ClientsConnected)
		max := atomic.LoadInt64(&t.info.ClientsMaximum)
		if cur <= max || atomic.CompareAndSwapInt64(&t.info.ClientsMaximum, max, cur) {
			break
		}
	}
}

func (t *Tracker) ClientDisconnected(persistent bool) {
	atomic.AddInt64(&t.info.ClientsConnected, -1)
	if persistent {
		atomic.AddInt64(&t.info.ClientsDisconnected, 1)
	} else {
		atomic.AddInt64(&t.info.ClientsTotal, -1)
	}
}

func (t *Tracker) MessageReceived() { atomic.AddInt64(&t.info.MessagesReceived, 1) }
func (t *Tracker) MessageSent()     { atomic.AddInt64(&t.info.MessagesSent, 1) }
func (t *Tracker) MessageDropped()  { atomic.AddInt64(&t.info.MessagesDropped, 1) }
func (t *Tracker) PacketReceived()  { atomic.AddInt64(&t.info.PacketsReceived, 1) }
func (t *Tracker) PacketSent()      { atomic.AddInt64(&t.info.PacketsSent, 1) }

func (t *Tracker) SetRetained(n int64)      { atomic.StoreInt64(&t.info.Retained, n) }
func (t *Tracker) SetSubscriptions(n int64) { atomic.StoreInt64(&t.info.Subscriptions, n) }
func (t *Tracker) InflightDelta(n int64)    { atomic.AddInt64(&t.info.Inflight, n) }
