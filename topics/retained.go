package topics

import "sync"

// Retained is a single retained message: the payload most recently
// published to a topic with the RETAIN flag set.
type Retained struct {
	Topic   string
	Payload []byte
	QoS     byte
}

// RetainedStore holds the retained messages published to each topic, keyed
// by the exact topic name they were published to (never a filter).
// [MQTT-3.3.1-5]
//
// A topic keeps an ordered list rather than a single message: a QoS 0
// publish replaces whatever was retained for the topic, but a QoS 1 or 2
// publish appends, so more than one retained message can coexist on the
// same topic. A zero-length payload always clears every message retained
// for the topic, regardless of QoS. [MQTT-3.3.1-6], [MQTT-3.3.1-7]
type RetainedStore struct {
	mu   sync.RWMutex
	msgs map[string][]Retained
}

// NewRetainedStore returns an empty retained-message store.
func NewRetainedStore() *RetainedStore {
	return &RetainedStore{msgs: make(map[string][]Retained)}
}

// Set stores, appends, or clears the retained message(s) for topic. A
// zero-length payload clears the topic entirely. A QoS 0 payload replaces
// whatever was retained; a QoS 1 or 2 payload appends alongside it. It
// reports whether the store's contents changed.
func (s *RetainedStore) Set(topic string, payload []byte, qos byte) (changed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(payload) == 0 {
		_, existed := s.msgs[topic]
		delete(s.msgs, topic)
		return existed
	}

	msg := Retained{Topic: topic, Payload: payload, QoS: qos}
	if qos == 0 {
		s.msgs[topic] = []Retained{msg}
	} else {
		s.msgs[topic] = append(s.msgs[topic], msg)
	}
	return true
}

// Match returns every retained message whose topic satisfies filter, for
// replay immediately after a successful SUBSCRIBE. [MQTT-3.3.1-9]
func (s *RetainedStore) Match(filter string) []Retained {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Retained
	for topic, msgs := range s.msgs {
		if Matches(topic, filter) {
			out = append(out, msgs...)
		}
	}
	return out
}

// Len returns the number of topics currently holding at least one retained
// message.
func (s *RetainedStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.msgs)
}
