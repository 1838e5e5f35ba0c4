package auth

import (
	"strings"
	"sync"

	"github.com/nymea-go/mqttgo/topics"
)

// Access is the read/write permission granted by an ACL rule.
type Access byte

const (
	Deny Access = iota
	ReadOnly
	WriteOnly
	ReadWrite
)

// Pattern is a rule value matched against a username: exact equality, "*"
// matching anything, or a "prefix*" glob matching anything sharing that
// prefix.
type Pattern string

// Matches reports whether p matches s.
func (p Pattern) Matches(s string) bool {
	rule := string(p)
	if rule == "" || rule == "*" || rule == s {
		return true
	}
	if i := strings.Index(rule, "*"); i > 0 && len(s) >= i && rule[:i] == s[:i] {
		return true
	}
	return false
}

// Filters maps a topic filter to the access it grants.
type Filters map[string]Access

// UserRule is one user's fixed credential and ACL entry.
type UserRule struct {
	Password Pattern `yaml:"password" json:"password"`
	ACL      Filters `yaml:"acl,omitempty" json:"acl,omitempty"`
	Disallow bool    `yaml:"disallow,omitempty" json:"disallow,omitempty"`
}

// AuthRule is a general connect rule, checked only when no fixed user entry
// exists for the connecting username; an existing entry decides alone.
type AuthRule struct {
	Username Pattern `yaml:"username,omitempty" json:"username,omitempty"`
	Password Pattern `yaml:"password,omitempty" json:"password,omitempty"`
	Allow    bool    `yaml:"allow" json:"allow"`
}

// ACLRule is a general topic access rule, checked only when the username has
// no fixed user entry with a non-empty ACL; such an ACL decides alone.
type ACLRule struct {
	Username Pattern `yaml:"username,omitempty" json:"username,omitempty"`
	Filters  Filters `yaml:"filters,omitempty" json:"filters,omitempty"`
}

// Ledger is an auth.Controller backed by a fixed set of per-user
// credentials plus fallback rule lists, the kind of thing a broker operator
// hand-writes into a config file rather than wiring up a database for.
type Ledger struct {
	mu sync.RWMutex

	Users     map[string]UserRule `yaml:"users,omitempty" json:"users,omitempty"`
	AuthRules []AuthRule          `yaml:"auth,omitempty" json:"auth,omitempty"`
	ACLRules  []ACLRule           `yaml:"acl,omitempty" json:"acl,omitempty"`
}

// NewLedger returns an empty Ledger. The zero value is also usable, but
// rejects every connection: an empty Users map and empty Auth list means no
// rule ever grants access.
func NewLedger() *Ledger {
	return &Ledger{Users: map[string]UserRule{}}
}

// Update replaces the ledger's rules, for reloading credentials without
// restarting the broker.
func (l *Ledger) Update(users map[string]UserRule, auth []AuthRule, acl []ACLRule) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Users = users
	l.AuthRules = auth
	l.ACLRules = acl
}

// Auth implements auth.Controller.
func (l *Ledger) Auth(user, pass string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if u, ok := l.Users[user]; ok {
		return !u.Disallow && string(u.Password) == pass
	}

	for _, rule := range l.AuthRules {
		if rule.Username.Matches(user) && rule.Password.Matches(pass) {
			return rule.Allow
		}
	}

	return false
}

// ACL implements auth.Controller.
func (l *Ledger) ACL(user, topic string, write bool) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if u, ok := l.Users[user]; ok && len(u.ACL) > 0 {
		return filtersAllow(u.ACL, topic, write)
	}

	for _, rule := range l.ACLRules {
		if !rule.Username.Matches(user) {
			continue
		}
		if len(rule.Filters) == 0 {
			return true
		}
		return filtersAllow(rule.Filters, topic, write)
	}

	return true
}

func filtersAllow(filters Filters, topic string, write bool) bool {
	for filter, access := range filters {
		if !topics.Matches(topic, filter) {
			continue
		}
		if write {
			return access == WriteOnly || access == ReadWrite
		}
		return access == ReadOnly || access == ReadWrite
	}
	return true
}

var _ Controller = (*Ledger)(nil)
