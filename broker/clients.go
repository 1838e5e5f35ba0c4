package broker

import "sync"

// Clients is the broker's single source of truth for which sessions are
// live, keyed on client id. It is a flat map, not a tree of client structs
// referencing each other or referencing the broker: closing a client only
// ever means deleting its entry here, never chasing back-pointers to
// unregister it from other objects that might hold on to it.
type Clients struct {
	mu       sync.RWMutex
	internal map[string]*ClientContext
}

// NewClients returns an empty client registry.
func NewClients() *Clients {
	return &Clients{internal: map[string]*ClientContext{}}
}

// Add registers cl, keyed on its client id, returning the session it
// replaced if one with the same id was already connected (a session
// takeover). If resume is true and a previous session existed, cl adopts
// the previous session's in-flight QoS state and packet-id counter before
// being published to the registry, so a concurrent Get can never observe a
// half-adopted client.
func (c *Clients) Add(cl *ClientContext, resume bool) (previous *ClientContext, hadPrevious bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	previous, hadPrevious = c.internal[cl.ID]
	if hadPrevious && resume {
		cl.adopt(previous)
	}
	c.internal[cl.ID] = cl
	return previous, hadPrevious
}

// Get returns the client registered under id.
func (c *Clients) Get(id string) (*ClientContext, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cl, ok := c.internal[id]
	return cl, ok
}

// Delete removes id from the registry. It is a no-op if current does not
// match the currently registered session, which guards against a session
// that has already been superseded by a takeover deleting the newer one's
// entry.
func (c *Clients) Delete(id string, current *ClientContext) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cl, ok := c.internal[id]; ok && cl == current {
		delete(c.internal, id)
	}
}

// Len returns the number of connected clients.
func (c *Clients) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.internal)
}

// IDs returns a snapshot of every connected client id, for use where a
// caller needs to iterate without holding the registry lock.
func (c *Clients) IDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.internal))
	for id := range c.internal {
		ids = append(ids, id)
	}
	return ids
}
