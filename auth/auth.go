// Package auth defines the pluggable authentication and access-control
// capability the broker consults during CONNECT and every PUBLISH or
// SUBSCRIBE, without needing to know anything about how credentials are
// actually verified.
package auth

// Controller decides whether a client may connect, and whether a connected
// client may read or write a given topic. The broker never validates
// credentials itself; it always delegates to a Controller, defaulting to
// Allow when the caller supplies none.
type Controller interface {
	// Auth reports whether the given username/password pair may establish
	// a session. Called once, during CONNECT.
	Auth(user, pass string) bool

	// ACL reports whether user may perform the given operation on topic.
	// write is true for PUBLISH, false for SUBSCRIBE.
	ACL(user, topic string, write bool) bool
}
