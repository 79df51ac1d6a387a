package config

import (
	"encoding/json"
	"os"
	"time"
)

// LogConfig selects the process logger's level and format.
type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// Config is the top-level configuration loaded from file/env. Durations are
// expressed in milliseconds so JSON and env values stay plain integers.
type Config struct {
	HTTPAddr   string `json:"httpAddr"`
	WSAddr     string `json:"wsAddr"`
	DirectAddr string `json:"directAddr"`
	DataDir    string `json:"dataDir"`

	Stream        string `json:"stream"`
	ConsumerGroup string `json:"consumerGroup"`
	Workers       int    `json:"workers"`
	PollBatch     int    `json:"pollBatch"`
	PollBlockMs   int    `json:"pollBlockMs"`
	ClaimTimeoutMs int   `json:"claimTimeoutMs"`

	RetainMaxAgeMs int64 `json:"retainMaxAgeMs"`
	RetainMaxBytes int64 `json:"retainMaxBytes"`
	TrimIntervalMs int   `json:"trimIntervalMs"`

	WindowBaseMs      int   `json:"windowBaseMs"`
	WindowMultipliers []int `json:"windowMultipliers"`
	BufferCapacity    int   `json:"bufferCapacity"`

	HeartbeatIntervalMs int `json:"heartbeatIntervalMs"`
	ShutdownTimeoutMs   int `json:"shutdownTimeoutMs"`

	Fsync           string `json:"fsync"`
	FsyncIntervalMs int    `json:"fsyncIntervalMs"`

	Log LogConfig `json:"log"`
}

// Default returns built-in defaults matching the dashboard's stock ports and
// tunables.
func Default() Config {
	return Config{
		HTTPAddr:            ":4000",
		WSAddr:              ":4002",
		DirectAddr:          ":4100",
		Stream:              "metrics",
		ConsumerGroup:       "processors",
		Workers:             2,
		PollBatch:           10,
		PollBlockMs:         5000,
		ClaimTimeoutMs:      30000,
		RetainMaxAgeMs:      (24 * time.Hour).Milliseconds(),
		RetainMaxBytes:      256 << 20,
		TrimIntervalMs:      60000,
		WindowBaseMs:        1000,
		WindowMultipliers:   []int{1, 5, 10},
		BufferCapacity:      500,
		HeartbeatIntervalMs: 30000,
		ShutdownTimeoutMs:   10000,
		Fsync:               "always",
		Log:                 LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads configuration from a JSON file layered over defaults. An empty
// path returns defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Duration accessors for the millisecond fields.

func (c Config) PollBlock() time.Duration         { return time.Duration(c.PollBlockMs) * time.Millisecond }
func (c Config) ClaimTimeout() time.Duration      { return time.Duration(c.ClaimTimeoutMs) * time.Millisecond }
func (c Config) TrimInterval() time.Duration      { return time.Duration(c.TrimIntervalMs) * time.Millisecond }
func (c Config) WindowBase() time.Duration        { return time.Duration(c.WindowBaseMs) * time.Millisecond }
func (c Config) HeartbeatInterval() time.Duration { return time.Duration(c.HeartbeatIntervalMs) * time.Millisecond }
func (c Config) ShutdownTimeout() time.Duration   { return time.Duration(c.ShutdownTimeoutMs) * time.Millisecond }
func (c Config) FsyncInterval() time.Duration     { return time.Duration(c.FsyncIntervalMs) * time.Millisecond }
