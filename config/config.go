// Package config loads broker configuration from a YAML or JSON file: which
// listeners to bind, the access-control ledger to authenticate and
// authorize clients with, and the broker's own tunables.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/nymea-go/mqttgo/auth"
	"github.com/nymea-go/mqttgo/broker"
	"github.com/nymea-go/mqttgo/listeners"
)

// ListenerConfig describes one listener to bind at startup.
type ListenerConfig struct {
	Type    string `yaml:"type" json:"type"`
	ID      string `yaml:"id" json:"id"`
	Address string `yaml:"address" json:"address"`

	// MaxConnections caps concurrent connections on this listener. Zero
	// means unlimited.
	MaxConnections int `yaml:"max_connections,omitempty" json:"max_connections,omitempty"`

	// AcceptRate caps how many connections per second the listener hands
	// off for the CONNECT handshake, smoothing out connect storms. Zero
	// means unlimited.
	AcceptRate  float64 `yaml:"accept_rate,omitempty" json:"accept_rate,omitempty"`
	AcceptBurst int     `yaml:"accept_burst,omitempty" json:"accept_burst,omitempty"`
}

// BrokerConfig holds the broker's own tunables, mirroring broker.Options.
type BrokerConfig struct {
	MaximumClients int64  `yaml:"maximum_clients,omitempty" json:"maximum_clients,omitempty"`
	MaximumQos     byte   `yaml:"maximum_qos,omitempty" json:"maximum_qos,omitempty"`
	FanPoolSize    uint64 `yaml:"fan_pool_size,omitempty" json:"fan_pool_size,omitempty"`
	FanPoolQueue   uint64 `yaml:"fan_pool_queue,omitempty" json:"fan_pool_queue,omitempty"`
}

// AuthConfig selects how the broker authenticates and authorizes clients.
// AllowAll takes precedence over a Ledger definition when both are set.
type AuthConfig struct {
	AllowAll bool                     `yaml:"allow_all,omitempty" json:"allow_all,omitempty"`
	Users    map[string]auth.UserRule `yaml:"users,omitempty" json:"users,omitempty"`
	Rules    []auth.AuthRule          `yaml:"auth,omitempty" json:"auth,omitempty"`
	ACL      []auth.ACLRule           `yaml:"acl,omitempty" json:"acl,omitempty"`
}

// Config is the top-level structure parsed from a config file.
type Config struct {
	Listeners []ListenerConfig `yaml:"listeners" json:"listeners"`
	Auth      *AuthConfig      `yaml:"auth,omitempty" json:"auth,omitempty"`
	Broker    BrokerConfig     `yaml:"broker,omitempty" json:"broker,omitempty"`
}

// LoadFile reads and parses the config file at path.
func LoadFile(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromBytes(b)
}

// FromBytes parses JSON or YAML config data, distinguishing the two by
// whether the first byte opens a JSON object.
func FromBytes(b []byte) (*Config, error) {
	c := &Config{}
	if len(b) == 0 {
		return c, nil
	}

	if b[0] == '{' {
		if err := json.Unmarshal(b, c); err != nil {
			return nil, err
		}
		return c, nil
	}

	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, err
	}
	return c, nil
}

// BuildListeners constructs a listeners.Listener for every entry in the
// config. Only the "tcp" type is currently supported.
func (c *Config) BuildListeners() ([]listeners.Listener, error) {
	out := make([]listeners.Listener, 0, len(c.Listeners))
	for _, lc := range c.Listeners {
		switch lc.Type {
		case "tcp", "":
			tcp := listeners.NewTCP(lc.ID, lc.Address)
			tcp.SetConfig(&listeners.Config{
				MaxConnections: lc.MaxConnections,
				AcceptRate:     lc.AcceptRate,
				AcceptBurst:    lc.AcceptBurst,
			})
			out = append(out, tcp)
		default:
			return nil, fmt.Errorf("config: unknown listener type %q", lc.Type)
		}
	}
	return out, nil
}

// BuildAuth constructs the auth.Controller the config describes, defaulting
// to auth.Allow{} when no Auth section is present.
func (c *Config) BuildAuth() auth.Controller {
	if c.Auth == nil {
		return auth.Allow{}
	}
	if c.Auth.AllowAll {
		return auth.Allow{}
	}

	ledger := auth.NewLedger()
	ledger.Update(c.Auth.Users, c.Auth.Rules, c.Auth.ACL)
	return ledger
}

// BrokerOptions builds broker.Options from the config's Broker section, with
// Auth from BuildAuth, leaving Log and Sink for the caller to fill in.
func (c *Config) BrokerOptions() broker.Options {
	return broker.Options{
		Auth:           c.BuildAuth(),
		MaximumClients: c.Broker.MaximumClients,
		MaximumQos:     c.Broker.MaximumQos,
		FanPoolSize:    c.Broker.FanPoolSize,
		FanPoolQueue:   c.Broker.FanPoolQueue,
	}
}
