package config

import (
	"errors"
	"os"
	"time"

	pkgerrors "github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigFile = "msdscript.yaml"
	HistoryDirName    = "history"
)

type Limits struct {
	MaxParseDepth int           `yaml:"maxParseDepth"`
	MaxEvalDepth  int           `yaml:"maxEvalDepth"`
	EvalTimeout   time.Duration `yaml:"evalTimeout"` // zero disables the timeout
}

type Cache struct {
	TTL      time.Duration `yaml:"ttl"`
	Capacity uint64        `yaml:"capacity"`
}

type History struct {
	Dir        string `yaml:"dir"` // empty keeps history in memory only
	MaxEntries int    `yaml:"maxEntries"`
}

type REPL struct {
	Prompt               string `yaml:"prompt"`
	ActiveCursorSymbol   string `yaml:"activeCursorSymbol"`
	InactiveCursorSymbol string `yaml:"inactiveCursorSymbol"`
}

type RateLimiterConfig struct {
	Limit float64 `yaml:"limit"` // Requests per second
	Burst int     `yaml:"burst"` // Burst size
}

type Service struct {
	HttpBinding              string            `yaml:"httpBinding"`
	RateLimit                RateLimiterConfig `yaml:"rateLimit"`
	WebSocketReadBufferSize  int               `yaml:"webSocketReadBufferSize"`
	WebSocketWriteBufferSize int               `yaml:"webSocketWriteBufferSize"`
	MaxConnections           int               `yaml:"maxConnections"`
}

type SSH struct {
	Binding        string   `yaml:"binding"`
	HostKeyPath    string   `yaml:"hostKeyPath"`
	AuthorizedKeys []string `yaml:"authorizedKeys"` // authorized_keys lines; empty accepts any key
}

type Batch struct {
	Concurrency int `yaml:"concurrency"`
}

type Config struct {
	LogLevel string  `yaml:"logLevel"`
	Limits   Limits  `yaml:"limits"`
	Cache    Cache   `yaml:"cache"`
	History  History `yaml:"history"`
	REPL     REPL    `yaml:"repl"`
	Service  Service `yaml:"service"`
	SSH      SSH     `yaml:"ssh"`
	Batch    Batch   `yaml:"batch"`
}

var (
	ErrConfigFileUnreadable                   = errors.New("config file is unreadable")
	ErrConfigFileUnmarshallable               = errors.New("config file is unmarshallable")
	ErrLogLevelInvalid                        = errors.New("logLevel must be one of debug, info, warn, error")
	ErrLimitsMaxParseDepthMissing             = errors.New("limits.maxParseDepth is missing or invalid in config")
	ErrLimitsMaxEvalDepthMissing              = errors.New("limits.maxEvalDepth is missing or invalid in config")
	ErrLimitsEvalTimeoutInvalid               = errors.New("limits.evalTimeout must not be negative")
	ErrCacheTTLMissing                        = errors.New("cache.ttl is missing in config")
	ErrCacheCapacityMissing                   = errors.New("cache.capacity is missing in config")
	ErrHistoryMaxEntriesMissing               = errors.New("history.maxEntries is missing or invalid in config")
	ErrREPLPromptMissing                      = errors.New("repl.prompt is missing in config")
	ErrServiceHttpBindingMissing              = errors.New("service.httpBinding is missing in config")
	ErrServiceRateLimitMissing                = errors.New("service.rateLimit.limit is missing in config")
	ErrServiceWebSocketReadBufferSizeMissing  = errors.New("service.webSocketReadBufferSize is missing or invalid in config")
	ErrServiceWebSocketWriteBufferSizeMissing = errors.New("service.webSocketWriteBufferSize is missing or invalid in config")
	ErrServiceMaxConnectionsMissing           = errors.New("service.maxConnections is missing or invalid in config")
	ErrSSHBindingMissing                      = errors.New("ssh.binding is missing in config")
	ErrSSHHostKeyPathMissing                  = errors.New("ssh.hostKeyPath is missing in config")
	ErrBatchConcurrencyMissing                = errors.New("batch.concurrency is missing or invalid in config")
)

func LoadConfig(configFile string) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, ErrConfigFileUnreadable
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, ErrConfigFileUnmarshallable
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) Validate() error {
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return ErrLogLevelInvalid
	}

	if cfg.Limits.MaxParseDepth <= 0 {
		return ErrLimitsMaxParseDepthMissing
	}
	if cfg.Limits.MaxEvalDepth <= 0 {
		return ErrLimitsMaxEvalDepthMissing
	}
	if cfg.Limits.EvalTimeout < 0 {
		return ErrLimitsEvalTimeoutInvalid
	}

	if cfg.Cache.TTL == 0 {
		return ErrCacheTTLMissing
	}
	if cfg.Cache.Capacity == 0 {
		return ErrCacheCapacityMissing
	}

	if cfg.History.MaxEntries <= 0 {
		return ErrHistoryMaxEntriesMissing
	}

	if cfg.REPL.Prompt == "" {
		return ErrREPLPromptMissing
	}

	if cfg.Service.HttpBinding == "" {
		return ErrServiceHttpBindingMissing
	}
	if cfg.Service.RateLimit.Limit == 0 {
		return ErrServiceRateLimitMissing
	}
	if cfg.Service.WebSocketReadBufferSize <= 0 {
		return ErrServiceWebSocketReadBufferSizeMissing
	}
	if cfg.Service.WebSocketWriteBufferSize <= 0 {
		return ErrServiceWebSocketWriteBufferSizeMissing
	}
	if cfg.Service.MaxConnections <= 0 {
		return ErrServiceMaxConnectionsMissing
	}

	if cfg.SSH.Binding == "" {
		return ErrSSHBindingMissing
	}
	if cfg.SSH.HostKeyPath == "" {
		return ErrSSHHostKeyPathMissing
	}

	if cfg.Batch.Concurrency <= 0 {
		return ErrBatchConcurrencyMissing
	}
	return nil
}

// GenerateConfig returns the defaults used when no config file is given.
func GenerateConfig() *Config {
	return &Config{
		LogLevel: "info",
		Limits: Limits{
			MaxParseDepth: 10000,
			MaxEvalDepth:  10000,
			EvalTimeout:   5 * time.Second,
		},
		Cache: Cache{
			TTL:      10 * time.Minute,
			Capacity: 1024,
		},
		History: History{
			Dir:        "data/" + HistoryDirName,
			MaxEntries: 500,
		},
		REPL: REPL{
			Prompt:               "msd> ",
			ActiveCursorSymbol:   "█",
			InactiveCursorSymbol: " ",
		},
		Service: Service{
			HttpBinding:              "127.0.0.1:7080",
			RateLimit:                RateLimiterConfig{Limit: 50.0, Burst: 100},
			WebSocketReadBufferSize:  4096,
			WebSocketWriteBufferSize: 4096,
			MaxConnections:           100,
		},
		SSH: SSH{
			Binding:     "127.0.0.1:7022",
			HostKeyPath: "data/ssh_host_ed25519",
		},
		Batch: Batch{
			Concurrency: 8,
		},
	}
}

func WriteConfig(configFile string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to marshal config")
	}
	if err := os.WriteFile(configFile, data, 0o644); err != nil {
		return pkgerrors.Wrapf(err, "failed to write config to %s", configFile)
	}
	return nil
}
