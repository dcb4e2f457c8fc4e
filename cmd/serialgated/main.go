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

package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/serialgate/serialgate/pkg/config"
	"github.com/serialgate/serialgate/pkg/grantsvc"
	"github.com/serialgate/serialgate/pkg/identity"
	"github.com/serialgate/serialgate/pkg/kv"
	"github.com/serialgate/serialgate/pkg/logger"
	"github.com/serialgate/serialgate/pkg/models"
	"github.com/serialgate/serialgate/pkg/natsports"
	"github.com/serialgate/serialgate/pkg/permissions"
)

var errNATSURLRequired = errors.New("nats_url is required")

const defaultBucket = "serial-permissions"

// Config is the daemon configuration.
type Config struct {
	NATSURL   string             `json:"nats_url"`
	Bucket    string             `json:"bucket,omitempty"`
	BucketTTL models.Duration    `json:"bucket_ttl,omitempty"`
	Platform  string             `json:"platform,omitempty"`
	Ports     natsports.Subjects `json:"ports,omitempty"`
	Service   grantsvc.Config    `json:"service,omitempty"`
	Logging   *logger.Config     `json:"logging,omitempty"`
}

func (c *Config) Validate() error {
	if c.NATSURL == "" {
		return errNATSURLRequired
	}

	return nil
}

func main() {
	configPath := flag.String("config", "/etc/serialgate/serialgated.json", "Path to config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfgLoader := config.NewConfig(nil)

	var cfg Config
	if err := cfgLoader.LoadAndValidate(ctx, *configPath, &cfg); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	mainLogger, err := logger.NewComponentLogger("serialgated", cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	goos := cfg.Platform
	if goos == "" {
		goos = runtime.GOOS
	}

	keySet := identity.KeySetForOS(goos)
	classifier := identity.NewClassifier(keySet)

	nc, err := nats.Connect(cfg.NATSURL, nats.Name("serialgated"))
	if err != nil {
		mainLogger.Fatal().Err(err).Str("url", cfg.NATSURL).Msg("Failed to connect to NATS")
	}
	defer nc.Close()

	bucket := cfg.Bucket
	if bucket == "" {
		bucket = defaultBucket
	}

	store, err := kv.NewNatsStore(ctx, nc, bucket, time.Duration(cfg.BucketTTL))
	if err != nil {
		mainLogger.Fatal().Err(err).Str("bucket", bucket).Msg("Failed to open KV bucket")
	}
	defer func() { _ = store.Close() }()

	objectStore := permissions.NewKVObjectStore(store)
	binder := natsports.NewBinder(nc, cfg.Ports, mainLogger)
	manager := permissions.NewManager(objectStore, binder, classifier, mainLogger)

	// Bind eagerly so hotplug events flow from startup. A failure here is
	// not fatal: the binding is re-established on the next use.
	if _, err := manager.PortManager(); err != nil {
		mainLogger.Warn().Err(err).Msg("Port event transport not yet available")
	}

	svc := grantsvc.New(nc, manager, cfg.Service, mainLogger)
	if err := svc.Start(ctx); err != nil {
		mainLogger.Fatal().Err(err).Msg("Failed to start permission service")
	}

	mainLogger.Info().
		Str("nats_url", cfg.NATSURL).
		Str("bucket", bucket).
		Str("key_set", keySet.String()).
		Msg("serialgated ready")

	<-ctx.Done()

	mainLogger.Info().Msg("Shutting down")

	if err := svc.Stop(); err != nil {
		mainLogger.Warn().Err(err).Msg("Failed to stop permission service cleanly")
	}
}
