// Package config defines the engine configuration struct (spec §6
// "Configuration options") and a TOML loader in the teacher's layered
// "typed struct + file overlay" style.
package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// IsolationLevel is the configured isolation for Store.BeginTx; the other
// transaction entry points name their isolation explicitly.
type IsolationLevel string

const (
	IsolationSnapshot     IsolationLevel = "snapshot"
	IsolationSerializable IsolationLevel = "serializable"
)

// CounterEndianness controls how Session.Increase encodes the fixed-width
// counter value (spec §6 "counter_endianness").
type CounterEndianness string

const (
	EndiannessHost   CounterEndianness = "host"
	EndiannessLittle CounterEndianness = "little"
	EndiannessBig    CounterEndianness = "big"
)

// Config is the full set of options the core recognizes (spec §6
// "Configuration options"). The zero value is accepted by every consumer but
// is not Default(): for example CounterRetryAttempts 0 makes Session.Increase
// try once.
type Config struct {
	IsolationLevel IsolationLevel `toml:"isolation_level"`

	// TransactionTimeoutMS is 0 for "unbounded" (spec §6
	// "transaction_timeout_ms: positive integer or 'unbounded'"); the core
	// itself never enforces it (spec §5 "The core does not impose a
	// timeout"), it is only threaded through for a caller-side watchdog.
	TransactionTimeoutMS int `toml:"transaction_timeout_ms"`

	// BatchMaxOps is loaded from "batch_max_ops" (spec §6). No session reads
	// it: a session's write buffer is flushed only by Commit (or by
	// Increase, which commits first), however many ops it holds.
	BatchMaxOps int `toml:"batch_max_ops"`

	CounterEndianness CounterEndianness `toml:"counter_endianness"`

	// CounterRetryAttempts bounds Session.Increase's internal retry loop
	// on WriteConflict (SPEC_FULL.md §D "Bounded internal retry for
	// counter conflicts").
	CounterRetryAttempts int `toml:"counter_retry_attempts"`

	// CacheMaxEntries <= 0 disables the query-result cache entirely
	// (spec §6 "cache_max_entries, cache_ttl_ms").
	CacheMaxEntries int `toml:"cache_max_entries"`
	CacheTTLMS      int `toml:"cache_ttl_ms"`

	// LogFilePath, if set, routes zap output through a rotating
	// lumberjack sink instead of stderr.
	LogFilePath string `toml:"log_file_path"`
}

// Default returns the configuration used when a caller supplies none.
func Default() Config {
	return Config{
		IsolationLevel:        IsolationSnapshot,
		TransactionTimeoutMS:  0,
		BatchMaxOps:           1000,
		CounterEndianness:     EndiannessLittle,
		CounterRetryAttempts:  3,
		CacheMaxEntries:       0,
		CacheTTLMS:            0,
	}
}

// Load reads a TOML file at path and overlays it onto Default().
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := toml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
