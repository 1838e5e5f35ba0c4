// Package trie implements the subscription index the broker uses to find,
// in a single tree walk, every client subscribed to a filter that matches
// an incoming PUBLISH topic.
package trie

import "strings"

// Subscriber is one client's subscription to whatever filter led to this
// leaf, at the QoS it was granted.
type Subscriber struct {
	ClientID string
	QoS      byte
}

// Index is a tree of topic levels; a client subscribed to "a/b/c" is
// recorded on the leaf reached by walking "a" -> "b" -> "c" from the root,
// mirroring the filter's own level structure. Matching a published topic is
// then a single walk of the tree, branching into the topic's own level,
// "+" and "#" at each step.
type Index struct {
	root *node
}

type node struct {
	key      string
	parent   *node
	children map[string]*node
	subs     map[string]byte // clientID -> QoS
}

func newNode(key string, parent *node) *node {
	return &node{
		key:      key,
		parent:   parent,
		children: make(map[string]*node),
		subs:     make(map[string]byte),
	}
}

// New returns an empty subscription index.
func New() *Index {
	return &Index{root: newNode("", nil)}
}

// Subscribe records that client is subscribed to filter at qos, replacing
// any previous subscription client held on the same filter.
func (x *Index) Subscribe(filter, client string, qos byte) {
	n := x.root
	for _, part := range strings.Split(filter, "/") {
		child, ok := n.children[part]
		if !ok {
			child = newNode(part, n)
			n.children[part] = child
		}
		n = child
	}
	n.subs[client] = qos
}

// Unsubscribe removes client's subscription to filter, pruning leaf nodes
// left with no subscribers and no children. It reports whether a
// subscription existed.
func (x *Index) Unsubscribe(filter, client string) bool {
	n := x.root
	for _, part := range strings.Split(filter, "/") {
		child, ok := n.children[part]
		if !ok {
			return false
		}
		n = child
	}

	if _, ok := n.subs[client]; !ok {
		return false
	}
	delete(n.subs, client)

	for n.parent != nil && len(n.subs) == 0 && len(n.children) == 0 {
		key := n.key
		n = n.parent
		delete(n.children, key)
	}

	return true
}

// UnsubscribeAll removes every filter subscription held by client, used
// when a session ends, without requiring the caller to track which filters
// the client held.
func (x *Index) UnsubscribeAll(client string) {
	x.root.removeClient(client)
}

func (n *node) removeClient(client string) {
	delete(n.subs, client)
	for key, child := range n.children {
		child.removeClient(client)
		if len(child.subs) == 0 && len(child.children) == 0 {
			delete(n.children, key)
		}
	}
}

// Len returns the total number of individual filter subscriptions held
// across every client, for reporting broker-wide statistics.
func (x *Index) Len() int {
	return x.root.count()
}

func (n *node) count() int {
	total := len(n.subs)
	for _, child := range n.children {
		total += child.count()
	}
	return total
}

// Subscribers returns every client subscribed to a filter matching topic,
// branching into '+' and '#' at each level, and excluding '$'-prefixed
// topics from any wildcard-only branch: a subscription to "#" or "+/x"
// never sees a publish to "$SYS/...". [MQTT-4.7.2-1]
// A client can hold more than one filter that matches the same topic (for
// example "a/#" and "a/b" both match "a/b"). When that happens the client
// receives the publish once, at the highest QoS any of its matching
// subscriptions was granted.
func (x *Index) Subscribers(topic string) []Subscriber {
	parts := strings.Split(topic, "/")
	isSystem := strings.HasPrefix(topic, "$")

	var raw []Subscriber
	x.root.scan(parts, 0, isSystem, &raw)

	best := make(map[string]byte, len(raw))
	for _, s := range raw {
		if qos, ok := best[s.ClientID]; !ok || s.QoS > qos {
			best[s.ClientID] = s.QoS
		}
	}

	out := make([]Subscriber, 0, len(best))
	for client, qos := range best {
		out = append(out, Subscriber{ClientID: client, QoS: qos})
	}
	return out
}

func (n *node) scan(parts []string, depth int, isSystem bool, out *[]Subscriber) {
	last := depth == len(parts)-1

	branches := []string{parts[depth], "+", "#"}
	if isSystem && depth == 0 {
		// A '$'-prefixed topic's first level only matches itself.
		branches = []string{parts[depth]}
	}

	for _, particle := range branches {
		child, ok := n.children[particle]
		if !ok {
			continue
		}

		if particle == "#" {
			child.collect(out)
			continue
		}

		if last {
			for client, qos := range child.subs {
				*out = append(*out, Subscriber{ClientID: client, QoS: qos})
			}
			// "a/b/#" also matches the exact topic "a/b".
			if tail, ok := child.children["#"]; ok {
				tail.collect(out)
			}
			continue
		}

		child.scan(parts, depth+1, isSystem, out)
	}
}

// collect appends every subscriber recorded on n; used for a "#" branch,
// which swallows everything beneath it regardless of remaining depth.
func (n *node) collect(out *[]Subscriber) {
	for client, qos := range n.subs {
		*out = append(*out, Subscriber{ClientID: client, QoS: qos})
	}
}
