// Copyright 2026 The NSB Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config binds the command-line flags and an optional TOML overlay
// file into a process.Config.
package config

import (
	"flag"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/talismancer/nsb/internal/process"
)

// Config is the CLI-facing settings surface. It's kept separate from
// process.Config because flag registration and TOML tags don't belong on
// the orchestrator's own type, but ToProcessConfig below is the only place
// the two ever need to agree with each other.
type Config struct {
	MaxAttempts          int    `toml:"max_attempts"`
	InitialBackoffMillis int    `toml:"initial_backoff_ms"`
	MaxBackoffMillis     int    `toml:"max_backoff_ms"`
	LockDir              string `toml:"lock_dir"`
	LogLevel             string `toml:"log_level"`
	LogJSON              bool   `toml:"log_json"`
}

// Default mirrors process.DefaultConfig, plus the ambient logging knobs.
func Default() Config {
	pc := process.DefaultConfig()
	return Config{
		MaxAttempts:          pc.MaxAttempts,
		InitialBackoffMillis: pc.InitialBackoffMillis,
		MaxBackoffMillis:     pc.MaxBackoffMillis,
		LockDir:              pc.LockDir,
		LogLevel:             "info",
	}
}

// RegisterFlags binds c's fields onto fs, with c's current values (already
// populated by Default and any overlay) serving as the flag defaults.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.MaxAttempts, "max-attempts", c.MaxAttempts, "maximum suspend retry attempts before giving up")
	fs.IntVar(&c.InitialBackoffMillis, "initial-backoff-ms", c.InitialBackoffMillis, "initial backoff between suspend retries, in milliseconds")
	fs.IntVar(&c.MaxBackoffMillis, "max-backoff-ms", c.MaxBackoffMillis, "backoff cap between suspend retries, in milliseconds")
	fs.StringVar(&c.LockDir, "lock-dir", c.LockDir, "directory for per-pid session locks (disabled if empty)")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level: debug, info, warning, error")
	fs.BoolVar(&c.LogJSON, "log-json", c.LogJSON, "emit logs as JSON")
}

// LoadOverlay merges a TOML file's values over c, if path is non-empty. Only
// fields present in the file are overridden, so an overlay only ever sets
// defaults, never clobbers a flag the caller later sets explicitly.
func (c *Config) LoadOverlay(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if _, err := toml.DecodeFile(path, c); err != nil {
		return fmt.Errorf("config: %s: %w", path, err)
	}
	return nil
}

// ToProcessConfig projects the CLI-facing fields the orchestrator actually
// consumes.
func (c Config) ToProcessConfig() process.Config {
	return process.Config{
		MaxAttempts:          c.MaxAttempts,
		InitialBackoffMillis: c.InitialBackoffMillis,
		MaxBackoffMillis:     c.MaxBackoffMillis,
		LockDir:              c.LockDir,
	}
}
