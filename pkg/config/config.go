// Copyright 2024 VexDB
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the engine tuning knobs from TOML.
package config

import (
	"github.com/BurntSushi/toml"

	"github.com/vexdb/vex/pkg/common/moerr"
	"github.com/vexdb/vex/pkg/logutil"
)

const (
	CompressionNone = "none"
	CompressionLZ4  = "lz4"
)

type MemoryConfig struct {
	// PoolLimitMB caps one operator's pool; 0 means unlimited.
	PoolLimitMB int64 `toml:"pool-limit-mb"`
}

type SpillConfig struct {
	// Compression applied to staged spill cells: "none" or "lz4".
	Compression string `toml:"compression"`
}

type Config struct {
	Memory MemoryConfig      `toml:"memory"`
	Spill  SpillConfig       `toml:"spill"`
	Log    logutil.LogConfig `toml:"log"`
}

func Default() Config {
	return Config{
		Memory: MemoryConfig{PoolLimitMB: 0},
		Spill:  SpillConfig{Compression: CompressionLZ4},
		Log:    logutil.LogConfig{Level: "info", Format: "console"},
	}
}

// Decode parses TOML on top of the defaults.
func Decode(data string) (Config, error) {
	cfg := Default()
	if _, err := toml.Decode(data, &cfg); err != nil {
		return cfg, moerr.NewInvalidInputf("bad config: %v", err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// DecodeFile parses a TOML file on top of the defaults.
func DecodeFile(path string) (Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, moerr.NewInvalidInputf("bad config file %s: %v", path, err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Memory.PoolLimitMB < 0 {
		return moerr.NewInvalidInputf("memory.pool-limit-mb is negative: %d", c.Memory.PoolLimitMB)
	}
	switch c.Spill.Compression {
	case CompressionNone, CompressionLZ4:
	default:
		return moerr.NewInvalidInputf("spill.compression %q is not supported", c.Spill.Compression)
	}
	return nil
}

// PoolLimit returns the memory cap in bytes, 0 for unlimited.
func (c *Config) PoolLimit() int64 {
	return c.Memory.PoolLimitMB << 20
}

// SetupLogging installs the configured global logger.
func (c *Config) SetupLogging() {
	logutil.Setup(c.Log)
}
