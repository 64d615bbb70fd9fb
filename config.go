package raknet

import (
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Config holds every tunable an Endpoint needs at construction time. It is
// deliberately flat and yaml-tagged so it can double as the on-disk
// configuration format for the reference server/client commands, the way
// HimbeerserverDE-multiserver's own config.go does for the higher-level game
// server built on top of this transport.
type Config struct {
	// BindAddress is the local "host:port" to listen on. Empty binds a
	// wildcard address on an ephemeral port.
	BindAddress string `yaml:"bind_address"`

	// MaximumTransferUnit caps the MTU this Endpoint will ever negotiate or
	// offer (spec.md §4.2 MTU negotiation). Clamped to at least MinMTU.
	MaximumTransferUnit int `yaml:"max_mtu"`

	// MaxConnections bounds concurrent peers a server-role Endpoint will
	// accept; a negative value means unlimited.
	MaxConnections int `yaml:"max_connections"`

	// Identifier is the byte string returned in UnconnectedPong's server
	// identifier field (e.g. a MOTD/status string).
	Identifier []byte `yaml:"-"`

	// IdentifierText is the yaml-friendly string form of Identifier.
	IdentifierText string `yaml:"identifier"`

	// BroadcastingEnabled controls whether UnconnectedPing is answered at
	// all (spec.md §4.5 unconnected ping/pong).
	BroadcastingEnabled bool `yaml:"broadcasting_enabled"`

	// Timeout is how long a Peer may go without a received datagram before
	// it is force-disconnected with ReasonTimeout.
	Timeout time.Duration `yaml:"timeout"`

	// MaxPacketsPerSecond bounds inbound datagrams per Peer per second
	// before flood eviction kicks in (spec.md §4.6 liveness). Zero is
	// replaced by the default; a negative value disables the check.
	MaxPacketsPerSecond int `yaml:"max_packets_per_second"`

	// FloodBlockDuration is how long an IP stays on the block list after a
	// flood eviction.
	FloodBlockDuration time.Duration `yaml:"flood_block_duration"`

	// BanStorePath, if non-empty, persists the ban list to a sqlite
	// database at this path across restarts (see banstore.go).
	BanStorePath string `yaml:"ban_store_path"`
}

// DefaultConfig returns the configuration a bare NewEndpoint call uses.
func DefaultConfig() Config {
	return Config{
		MaximumTransferUnit: DefaultMTU,
		MaxConnections:      -1,
		IdentifierText:      "raknet;Unnamed Server;",
		BroadcastingEnabled: true,
		Timeout:             DefaultTimeout,
		MaxPacketsPerSecond: 1200,
		FloodBlockDuration:  time.Minute,
	}
}

// withDefaults fills any zero-valued field of cfg with DefaultConfig's
// value, so a caller can populate only what they care about.
func (cfg Config) withDefaults() Config {
	def := DefaultConfig()
	if cfg.MaximumTransferUnit == 0 {
		cfg.MaximumTransferUnit = def.MaximumTransferUnit
	}
	if cfg.MaximumTransferUnit < MinMTU {
		cfg.MaximumTransferUnit = MinMTU
	}
	if cfg.MaxConnections == 0 {
		cfg.MaxConnections = def.MaxConnections
	}
	if cfg.IdentifierText == "" {
		cfg.IdentifierText = def.IdentifierText
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxPacketsPerSecond == 0 {
		cfg.MaxPacketsPerSecond = def.MaxPacketsPerSecond
	}
	if cfg.FloodBlockDuration == 0 {
		cfg.FloodBlockDuration = def.FloodBlockDuration
	}
	cfg.Identifier = []byte(cfg.IdentifierText)
	return cfg
}

// LoadConfigFile reads and parses a yaml configuration file, applying
// defaults to anything left unset (grounded on
// HimbeerserverDE-multiserver's config.go, which does the same
// read-yaml-then-fill-defaults dance for its own server config).
func LoadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg.withDefaults(), nil
}
