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

//go:generate mockgen -destination=mock_kv.go -package=kv github.com/serialgate/serialgate/pkg/kv KVStore

// Package kv abstracts the key-value backend holding durable permission
// state.
package kv

import (
	"context"
)

// KVStore defines the interface for the key-value store backing the
// durable permission tier.
type KVStore interface {
	// Get retrieves the value associated with the given key.
	// Returns the value as a byte slice, a boolean indicating if the key
	// was found, and an error if the operation fails.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Put stores a value under the given key, replacing any previous
	// value.
	Put(ctx context.Context, key string, value []byte) error

	// Delete removes the key and its associated value from the store.
	Delete(ctx context.Context, key string) error

	// Close shuts down the KV store, releasing any resources.
	Close() error
}
