/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package config loads and validates service configuration from a file or
// the environment, selected by CONFIG_SOURCE.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/serialgate/serialgate/pkg/logger"
)

var errInvalidConfigSource = errors.New("invalid CONFIG_SOURCE value")

const (
	configSourceFile = "file"
	configSourceEnv  = "env"

	defaultEnvPrefix = "SERIALGATE_"
)

// Config holds the configuration loading dependencies.
type Config struct {
	defaultLoader ConfigLoader
	logger        logger.Logger
}

// NewConfig initializes a new Config instance with a default file loader.
// If log is nil, a basic stderr logger is used so loading can be traced
// before the real logger is configured.
func NewConfig(log logger.Logger) *Config {
	if log == nil {
		log = createBasicLogger()
	}

	return &Config{
		defaultLoader: &FileConfigLoader{},
		logger:        log,
	}
}

// ValidateConfig validates a configuration if it implements Validator.
func ValidateConfig(cfg interface{}) error {
	v, ok := cfg.(Validator)
	if !ok {
		return nil
	}

	return v.Validate()
}

// LoadAndValidate loads a configuration using the source selected by
// CONFIG_SOURCE and validates it.
func (c *Config) LoadAndValidate(ctx context.Context, path string, cfg interface{}) error {
	source := strings.ToLower(os.Getenv("CONFIG_SOURCE"))

	var loader ConfigLoader

	switch source {
	case configSourceEnv:
		prefix := os.Getenv("CONFIG_ENV_PREFIX")
		if prefix == "" {
			prefix = defaultEnvPrefix
		}

		loader = NewEnvConfigLoader(c.logger, prefix)
	case configSourceFile, "":
		loader = c.defaultLoader
	default:
		return fmt.Errorf("%w: %s (expected '%s' or '%s')",
			errInvalidConfigSource, source, configSourceFile, configSourceEnv)
	}

	if err := loader.Load(ctx, path, cfg); err != nil {
		return err
	}

	return ValidateConfig(cfg)
}

// basicLogger implements a simple logger for config loading without circular imports
type basicLogger struct {
	logger zerolog.Logger
}

// createBasicLogger creates a simple logger for config loading
func createBasicLogger() logger.Logger {
	zlog := zerolog.New(os.Stderr).
		Level(zerolog.WarnLevel).
		With().
		Timestamp().
		Logger()

	return &basicLogger{logger: zlog}
}

func (b *basicLogger) Trace() *zerolog.Event { return b.logger.Trace() }
func (b *basicLogger) Debug() *zerolog.Event { return b.logger.Debug() }
func (b *basicLogger) Info() *zerolog.Event  { return b.logger.Info() }
func (b *basicLogger) Warn() *zerolog.Event  { return b.logger.Warn() }
func (b *basicLogger) Error() *zerolog.Event { return b.logger.Error() }
func (b *basicLogger) Fatal() *zerolog.Event { return b.logger.Fatal() }
func (b *basicLogger) Panic() *zerolog.Event { return b.logger.Panic() }
func (b *basicLogger) With() zerolog.Context { return b.logger.With() }

func (b *basicLogger) WithComponent(component string) zerolog.Logger {
	return b.logger.With().Str("component", component).Logger()
}

func (b *basicLogger) WithFields(fields map[string]interface{}) zerolog.Logger {
	return b.logger.With().Fields(fields).Logger()
}

func (b *basicLogger) SetLevel(level zerolog.Level) {
	b.logger = b.logger.Level(level)
}

func (b *basicLogger) SetDebug(debug bool) {
	if debug {
		b.SetLevel(zerolog.DebugLevel)
	} else {
		b.SetLevel(zerolog.InfoLevel)
	}
}
