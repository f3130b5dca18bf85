package bollywood

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// SystemConfig is the runtime's top-level configuration, loadable from
// YAML (the corpus's preferred configuration format, e.g. the
// teacher's own utils/config.go) or built programmatically with
// DefaultSystemConfig.
type SystemConfig struct {
	// DeadLetterCapacity bounds the dead-letter queue (§4.9).
	DeadLetterCapacity int `yaml:"deadLetterCapacity"`
	// DeadLetterTTL is how long a retained dead letter survives
	// cleanup sweeps.
	DeadLetterTTL time.Duration `yaml:"deadLetterTTL"`
	// DeadLetterCleanupInterval is how often the TTL sweep runs.
	DeadLetterCleanupInterval time.Duration `yaml:"deadLetterCleanupInterval"`

	// DefaultMailbox is applied to actors spawned without an explicit
	// Props.Mailbox.
	DefaultMailbox MailboxConfig `yaml:"-"`

	// DefaultAskTimeout is used by Ask callers that pass a zero
	// timeout.
	DefaultAskTimeout time.Duration `yaml:"defaultAskTimeout"`

	// LogLevel controls the default slog handler's minimum level when
	// Logger is left nil.
	LogLevel string `yaml:"logLevel"`

	// Logger overrides the system's logger entirely; not serializable,
	// so it is never populated from YAML.
	Logger *slog.Logger `yaml:"-"`
}

// DefaultSystemConfig returns the runtime's documented defaults.
func DefaultSystemConfig() SystemConfig {
	return SystemConfig{
		DeadLetterCapacity:        1000,
		DeadLetterTTL:             24 * time.Hour,
		DeadLetterCleanupInterval: time.Hour,
		DefaultMailbox:            DefaultMailboxConfig(),
		DefaultAskTimeout:         5 * time.Second,
		LogLevel:                  "info",
	}
}

// withDefaults fills any zero-valued field in cfg with the documented
// default, and builds a Logger from LogLevel if none was supplied.
func (cfg SystemConfig) withDefaults() SystemConfig {
	defaults := DefaultSystemConfig()
	if cfg.DeadLetterCapacity <= 0 {
		cfg.DeadLetterCapacity = defaults.DeadLetterCapacity
	}
	if cfg.DeadLetterTTL <= 0 {
		cfg.DeadLetterTTL = defaults.DeadLetterTTL
	}
	if cfg.DeadLetterCleanupInterval <= 0 {
		cfg.DeadLetterCleanupInterval = defaults.DeadLetterCleanupInterval
	}
	if cfg.DefaultMailbox.Capacity <= 0 {
		cfg.DefaultMailbox = defaults.DefaultMailbox
	}
	if cfg.DefaultAskTimeout <= 0 {
		cfg.DefaultAskTimeout = defaults.DefaultAskTimeout
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaults.LogLevel
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: parseLogLevel(cfg.LogLevel),
		}))
	}
	return cfg
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LoadSystemConfigYAML reads and parses a SystemConfig from a YAML
// file at path, applying documented defaults to anything left unset.
func LoadSystemConfigYAML(path string) (SystemConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SystemConfig{}, fmt.Errorf("bollywood: reading config %s: %w", path, err)
	}
	var cfg SystemConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return SystemConfig{}, fmt.Errorf("bollywood: parsing config %s: %w", path, err)
	}
	return cfg.withDefaults(), nil
}
