// Package topics implements MQTT topic name and filter validation, wildcard
// matching, and the retained-message store used by the broker. The
// trie-based subscriber index is in package topics/trie.
package topics

import "strings"

const (
	wildcardSingle = "+"
	wildcardMulti  = "#"
)

// ValidateTopicName reports whether topic is a legal PUBLISH topic name: a
// non-empty UTF-8 string that contains neither wildcard character.
// [MQTT-4.7.1-1], [MQTT-4.7.3-1]
func ValidateTopicName(topic string) bool {
	if topic == "" {
		return false
	}
	return !strings.ContainsAny(topic, wildcardSingle+wildcardMulti)
}

// ValidateFilter reports whether filter is a legal SUBSCRIBE/UNSUBSCRIBE
// topic filter: non-empty, and using '+' and '#' only where the spec
// allows them. [MQTT-4.7.1-2], [MQTT-4.7.1-3]
func ValidateFilter(filter string) bool {
	if filter == "" {
		return false
	}

	parts := strings.Split(filter, "/")
	for i, part := range parts {
		switch {
		case part == wildcardMulti:
			// '#' is only legal as the very last level of the filter.
			if i != len(parts)-1 {
				return false
			}
		case strings.Contains(part, wildcardMulti):
			// e.g. "a#" - '#' must occupy the whole level, not share it.
			return false
		case part == wildcardSingle:
			// '+' alone is fine, at any level.
		case strings.Contains(part, wildcardSingle):
			// e.g. "a+" - '+' must occupy the whole level, not share it.
			return false
		}
	}

	return true
}

// IsSystemTopic reports whether topic or filter begins with the reserved
// '$' prefix used for broker-internal topics such as "$SYS/...". System
// topics are excluded from every wildcard match that doesn't name them
// explicitly. [MQTT-4.7.2-1]
func IsSystemTopic(topicOrFilter string) bool {
	return strings.HasPrefix(topicOrFilter, "$")
}

// Matches reports whether topic satisfies filter, applying '+' (single
// level) and '#' (multi-level tail) wildcard semantics.
//
// A filter level and a topic level match only if they are exactly equal, or
// the filter level is '+', or the filter level is a trailing '#'. There is
// no fuzzy or prefix matching of non-wildcard levels: "a/bb" does not match
// filter "a/b", even though the original implementation this broker is
// descended from matched it due to an off-by-one in its level-length
// comparison. That behavior is not reproduced here.
//
// A topic beginning with '$' only matches a filter whose first level names
// that same '$'-prefixed level literally; a leading '+' or '#' never
// crosses into '$' territory. [MQTT-4.7.2-1]
func Matches(topic, filter string) bool {
	if IsSystemTopic(topic) && !strings.HasPrefix(filter, "$") {
		return false
	}

	topicParts := strings.Split(topic, "/")
	filterParts := strings.Split(filter, "/")

	var t, f int
	for t < len(topicParts) && f < len(filterParts) {
		fp := filterParts[f]

		if fp == wildcardMulti {
			return true
		}

		if fp != wildcardSingle && fp != topicParts[t] {
			return false
		}

		t++
		f++
	}

	if f < len(filterParts) && filterParts[f] == wildcardMulti && f == len(filterParts)-1 {
		return true
	}

	return t == len(topicParts) && f == len(filterParts)
}
