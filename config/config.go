// Package config loads and validates the agent's TOML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Server configures the listening endpoint.
type Server struct {
	BindHost string
	BindPort int
	// AdvertisedHost is the address embedded in the pairing code, which may
	// differ from the bind address behind NAT.
	AdvertisedHost string
	// TokenTTLSeconds bounds session lifetime.
	TokenTTLSeconds int
	// SweepIntervalSeconds is how often expired sessions are reaped.
	// 0 disables the background sweep; lookups still expire lazily.
	SweepIntervalSeconds int
}

// STT configures the transcription backend.
type STT struct {
	// Backend selects the transcriber. Only "openai" is implemented.
	Backend string
	// BaseURL points at an OpenAI-compatible endpoint; empty means the
	// hosted API.
	BaseURL string
	APIKey  string
	Model   string
	// Language is an ISO 639-1 hint, empty for auto-detect.
	Language string
	// MaxWorkers caps concurrent transcriptions.
	MaxWorkers int
}

// Risk configures transcript screening.
type Risk struct {
	// Keywords overrides the default destructive-verb list when non-empty.
	Keywords            []string
	RequireConfirmation bool
	// ConfirmTimeoutSeconds bounds how long a confirmation prompt may wait
	// before it is treated as declined.
	ConfirmTimeoutSeconds int
}

// Injection configures text delivery.
type Injection struct {
	// TargetApp names the application window to focus before typing.
	TargetApp string
	// AutoSend appends a submit keystroke after the injected text.
	AutoSend bool
}

// Config is the top-level agent configuration.
type Config struct {
	LogLevel string
	// AuditDBPath is where the append-only audit trail lives.
	AuditDBPath string
	// ShowPairCode renders the pairing QR at startup.
	ShowPairCode bool

	Server    Server
	STT       STT
	Risk      Risk
	Injection Injection
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		LogLevel:     "INFO",
		AuditDBPath:  "data/audit.db",
		ShowPairCode: true,
		Server: Server{
			BindHost:             "0.0.0.0",
			BindPort:             8765,
			AdvertisedHost:       "127.0.0.1",
			TokenTTLSeconds:      900,
			SweepIntervalSeconds: 300,
		},
		STT: STT{
			Backend:    "openai",
			Model:      "whisper-1",
			Language:   "en",
			MaxWorkers: 2,
		},
		Risk: Risk{
			RequireConfirmation:   true,
			ConfirmTimeoutSeconds: 30,
		},
		Injection: Injection{
			TargetApp: "Claude",
			AutoSend:  true,
		},
	}
}

// Validate returns nil if the config is valid and an error otherwise.
func (cfg *Config) Validate() error {
	if cfg.Server.BindPort <= 0 || cfg.Server.BindPort > 65535 {
		return fmt.Errorf("config: BindPort %d out of range", cfg.Server.BindPort)
	}
	if cfg.Server.TokenTTLSeconds <= 0 {
		return errors.New("config: TokenTTLSeconds must be positive")
	}
	if cfg.Server.AdvertisedHost == "" {
		return errors.New("config: AdvertisedHost is not set")
	}
	if cfg.AuditDBPath == "" {
		return errors.New("config: AuditDBPath is not set")
	}
	if cfg.STT.Backend != "openai" {
		return fmt.Errorf("config: unknown STT backend %q", cfg.STT.Backend)
	}
	if cfg.STT.MaxWorkers <= 0 {
		return errors.New("config: STT MaxWorkers must be positive")
	}
	if cfg.Risk.ConfirmTimeoutSeconds <= 0 {
		return errors.New("config: ConfirmTimeoutSeconds must be positive")
	}
	if cfg.Injection.TargetApp == "" {
		return errors.New("config: TargetApp is not set")
	}
	return nil
}

// TokenTTL returns the session TTL as a duration.
func (cfg *Config) TokenTTL() time.Duration {
	return time.Duration(cfg.Server.TokenTTLSeconds) * time.Second
}

// ConfirmTimeout returns the confirmation deadline as a duration.
func (cfg *Config) ConfirmTimeout() time.Duration {
	return time.Duration(cfg.Risk.ConfirmTimeoutSeconds) * time.Second
}

// BindAddr returns the host:port to listen on.
func (cfg *Config) BindAddr() string {
	return fmt.Sprintf("%s:%d", cfg.Server.BindHost, cfg.Server.BindPort)
}

// WSURL returns the websocket URL clients should dial, for the pairing code.
func (cfg *Config) WSURL() string {
	return fmt.Sprintf("ws://%s:%d/ws", cfg.Server.AdvertisedHost, cfg.Server.BindPort)
}

// Load parses and validates the provided buffer b as a config file body.
// Fields not present keep their defaults.
func Load(b []byte) (*Config, error) {
	cfg := Default()
	md, err := toml.Decode(string(b), cfg)
	if err != nil {
		return nil, fmt.Errorf("config: decoding TOML: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) != 0 {
		return nil, fmt.Errorf("config: undecoded keys: %v", undecoded)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads and parses the TOML file at path.
func LoadFile(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	return Load(b)
}
