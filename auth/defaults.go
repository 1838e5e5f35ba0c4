package auth

// Allow is a Controller that authenticates and authorizes everything. It's
// the broker's default when no Controller is configured.
type Allow struct{}

func (Allow) Auth(user, pass string) bool             { return true }
func (Allow) ACL(user, topic string, write bool) bool { return true }

// Disallow is a Controller that rejects everything, useful for locking a
// broker down entirely or as a base to compose more selective rules from.
type Disallow struct{}

func (Disallow) Auth(user, pass string) bool             { return false }
func (Disallow) ACL(user, topic string, write bool) bool { return false }
