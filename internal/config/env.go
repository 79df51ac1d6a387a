package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads a .env file into the process environment without
// overriding variables that are already set. An empty path means ./.env;
// a missing file is not an error.
func LoadDotEnv(path string) {
	if path == "" {
		path = ".env"
	}
	_ = godotenv.Load(path)
}

// FromEnv overlays PULSEGRID_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	setStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setInt64 := func(key string, dst *int64) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				*dst = n
			}
		}
	}

	setStr("PULSEGRID_HTTP_ADDR", &cfg.HTTPAddr)
	setStr("PULSEGRID_WS_ADDR", &cfg.WSAddr)
	setStr("PULSEGRID_DIRECT_ADDR", &cfg.DirectAddr)
	setStr("PULSEGRID_DATA_DIR", &cfg.DataDir)
	setStr("PULSEGRID_STREAM", &cfg.Stream)
	setStr("PULSEGRID_CONSUMER_GROUP", &cfg.ConsumerGroup)
	setInt("PULSEGRID_WORKERS", &cfg.Workers)
	setInt("PULSEGRID_POLL_BATCH", &cfg.PollBatch)
	setInt("PULSEGRID_POLL_BLOCK_MS", &cfg.PollBlockMs)
	setInt("PULSEGRID_CLAIM_TIMEOUT_MS", &cfg.ClaimTimeoutMs)
	setInt64("PULSEGRID_RETAIN_MAX_AGE_MS", &cfg.RetainMaxAgeMs)
	setInt64("PULSEGRID_RETAIN_MAX_BYTES", &cfg.RetainMaxBytes)
	setInt("PULSEGRID_TRIM_INTERVAL_MS", &cfg.TrimIntervalMs)
	setInt("PULSEGRID_WINDOW_BASE_MS", &cfg.WindowBaseMs)
	setInt("PULSEGRID_BUFFER_CAPACITY", &cfg.BufferCapacity)
	setInt("PULSEGRID_HEARTBEAT_INTERVAL_MS", &cfg.HeartbeatIntervalMs)
	setInt("PULSEGRID_SHUTDOWN_TIMEOUT_MS", &cfg.ShutdownTimeoutMs)
	setStr("PULSEGRID_FSYNC", &cfg.Fsync)
	setInt("PULSEGRID_FSYNC_INTERVAL_MS", &cfg.FsyncIntervalMs)
	setStr("PULSEGRID_LOG_LEVEL", &cfg.Log.Level)
	setStr("PULSEGRID_LOG_FORMAT", &cfg.Log.Format)

	if v := os.Getenv("PULSEGRID_WINDOW_MULTIPLIERS"); v != "" {
		var mults []int
		for _, p := range strings.Split(v, ",") {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			if n, err := strconv.Atoi(p); err == nil && n > 0 {
				mults = append(mults, n)
			}
		}
		if mults != nil {
			cfg.WindowMultipliers = mults
		}
	}
}
