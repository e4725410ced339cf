package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

type AppConfig struct {
	EngineBackend  string
	StockfishPath  string
	EngineThreads  int
	EngineHashMB   int
	EnginePoolSize int

	SearchPreset     string
	SearchDepth      int
	SearchNodes      int64
	SearchMoveTimeMS int

	RedisURL       string
	SnapshotTTLSec int
	DatabaseURL    string

	HTTPAddr    string
	WSAddr      string
	WSOrigins   []string
	MessagesDir string
}

// SnapshotTTL returns the snapshot expiry as a duration.
func (c *AppConfig) SnapshotTTL() time.Duration {
	return time.Duration(c.SnapshotTTLSec) * time.Second
}

// SearchMoveTime returns the per-search wall clock bound, zero when unset.
func (c *AppConfig) SearchMoveTime() time.Duration {
	return time.Duration(c.SearchMoveTimeMS) * time.Millisecond
}

func defaults() *AppConfig {
	return &AppConfig{
		EngineBackend:  "builtin",
		EngineThreads:  1,
		EngineHashMB:   16,
		EnginePoolSize: 1,
		SearchPreset:   "fixed",
		SearchDepth:    20,
		SnapshotTTLSec: 86400,
		HTTPAddr:       ":8080",
		WSAddr:         ":8081",
	}
}

// Load builds the configuration from defaults, then CONFIG_FILE (YAML, same
// keys as the environment), then environment variables.
func Load() (*AppConfig, error) {
	cfg := defaults()

	values := map[string]string{}
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		fileValues, err := readFile(path)
		if err != nil {
			return nil, err
		}
		values = fileValues
	}
	for _, key := range knownKeys {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			values[key] = v
		}
	}

	if err := cfg.apply(values); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var knownKeys = []string{
	"ENGINE_BACKEND",
	"STOCKFISH_PATH",
	"ENGINE_THREADS",
	"ENGINE_HASH_MB",
	"ENGINE_POOL_SIZE",
	"SEARCH_PRESET",
	"SEARCH_DEPTH",
	"SEARCH_NODES",
	"SEARCH_MOVETIME_MS",
	"REDIS_URL",
	"SNAPSHOT_TTL_SEC",
	"DATABASE_URL",
	"HTTP_ADDR",
	"WS_ADDR",
	"WS_ORIGINS",
	"MESSAGES_DIR",
}

func readFile(path string) (map[string]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	out := make(map[string]string, len(doc))
	for k, v := range doc {
		key := strings.ToUpper(strings.TrimSpace(k))
		switch val := v.(type) {
		case nil:
			continue
		case []any:
			// YAML 리스트는 콤마 목록으로
			parts := make([]string, 0, len(val))
			for _, item := range val {
				parts = append(parts, fmt.Sprint(item))
			}
			out[key] = strings.Join(parts, ",")
		default:
			out[key] = strings.TrimSpace(fmt.Sprint(val))
		}
	}
	return out, nil
}

func (c *AppConfig) apply(values map[string]string) error {
	if v := values["ENGINE_BACKEND"]; v != "" {
		c.EngineBackend = strings.ToLower(v)
	}
	c.StockfishPath = values["STOCKFISH_PATH"]
	if v := values["SEARCH_PRESET"]; v != "" {
		c.SearchPreset = strings.ToLower(v)
	}
	c.RedisURL = values["REDIS_URL"]
	c.DatabaseURL = values["DATABASE_URL"]
	if v := values["HTTP_ADDR"]; v != "" {
		c.HTTPAddr = v
	}
	if v := values["WS_ADDR"]; v != "" {
		c.WSAddr = v
	}
	c.MessagesDir = values["MESSAGES_DIR"]
	c.WSOrigins = splitList(values["WS_ORIGINS"])

	ints := []struct {
		key string
		dst *int
		min int
	}{
		{"ENGINE_THREADS", &c.EngineThreads, 1},
		{"ENGINE_HASH_MB", &c.EngineHashMB, 1},
		{"ENGINE_POOL_SIZE", &c.EnginePoolSize, 1},
		{"SEARCH_DEPTH", &c.SearchDepth, 1},
		{"SEARCH_MOVETIME_MS", &c.SearchMoveTimeMS, 0},
		{"SNAPSHOT_TTL_SEC", &c.SnapshotTTLSec, 1},
	}
	for _, it := range ints {
		v := values[it.key]
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < it.min {
			return fmt.Errorf("%s must be an integer >= %d: %q", it.key, it.min, v)
		}
		*it.dst = n
	}
	if v := values["SEARCH_NODES"]; v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			return fmt.Errorf("SEARCH_NODES must be a non-negative integer: %q", v)
		}
		c.SearchNodes = n
	}
	return nil
}

func (c *AppConfig) Validate() error {
	switch c.EngineBackend {
	case "builtin":
	case "uci":
		if c.StockfishPath == "" {
			return errors.New("STOCKFISH_PATH is required for the uci backend")
		}
	default:
		return fmt.Errorf("ENGINE_BACKEND must be builtin or uci: %q", c.EngineBackend)
	}
	if c.HTTPAddr == "" {
		return errors.New("HTTP_ADDR is required")
	}
	return nil
}

// splitList parses a comma-separated list, dropping empty entries.
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
