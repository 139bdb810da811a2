// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads orchestrator configuration from environment
// variables with an optional YAML overlay.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the orchestrator service configuration.
//
// Description:
//
//	Every field has a safe default, so a zero-configuration start works
//	with in-process built-ins, a local catalog, and no model backend.
//	Synthesis and parsing degrade to their deterministic engines when
//	SynthAPIKey is empty.
//
// Thread Safety: Immutable after Load; safe for concurrent use.
type Config struct {
	// Port is the HTTP listen port.
	Port int `yaml:"port" validate:"gt=0,lte=65535"`

	// CatalogPath is the badger directory for the persistent tool
	// catalog. Empty selects an in-memory catalog.
	CatalogPath string `yaml:"catalog_path"`

	// StaticDir, when set, receives a plain-text source mirror of every
	// persisted tool, one file per tool.
	StaticDir string `yaml:"static_dir"`

	// SynthModel / SynthAPIKey / SynthAPIBase configure the
	// OpenAI-compatible model used for plan parsing, chat replies, and
	// tool synthesis. An empty key disables the model paths.
	SynthModel   string `yaml:"synth_model"`
	SynthAPIKey  string `yaml:"synth_api_key"`
	SynthAPIBase string `yaml:"synth_api_base"`

	// SynthPerMinute rate-limits synthesis calls.
	SynthPerMinute int `yaml:"synth_per_minute" validate:"gte=0"`

	// MaxSynthDepth caps synthesized tools per plan run.
	MaxSynthDepth int `yaml:"max_synth_depth" validate:"gte=0"`

	// NodeTimeout bounds one tool invocation. Zero means unbounded.
	NodeTimeout time.Duration `yaml:"node_timeout" validate:"gte=0"`
}

// Load reads RELAY_* environment variables, applies the YAML overlay at
// RELAY_CONFIG_FILE if set, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Port:           envInt("RELAY_PORT", 8085),
		CatalogPath:    os.Getenv("RELAY_CATALOG_PATH"),
		StaticDir:      os.Getenv("RELAY_STATIC_DIR"),
		SynthModel:     envStr("RELAY_SYNTH_MODEL", "gpt-4o-mini"),
		SynthAPIKey:    os.Getenv("RELAY_SYNTH_API_KEY"),
		SynthAPIBase:   os.Getenv("RELAY_SYNTH_API_BASE"),
		SynthPerMinute: envInt("RELAY_SYNTH_PER_MINUTE", 30),
		MaxSynthDepth:  envInt("RELAY_MAX_SYNTH_DEPTH", 5),
		NodeTimeout:    envDuration("RELAY_NODE_TIMEOUT", 60*time.Second),
	}

	if path := os.Getenv("RELAY_CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// ModelEnabled reports whether the LLM-backed parser, responder, and
// synthesis backend should be constructed.
func (c *Config) ModelEnabled() bool {
	return c.SynthAPIKey != ""
}

func (c *Config) applyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("config file %s: %w", path, err)
	}
	return nil
}

func envStr(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}
