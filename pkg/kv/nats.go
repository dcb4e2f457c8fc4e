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

package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NatsStore implements KVStore on a NATS JetStream KeyValue bucket. The
// caller owns the connection; Close releases only the store's use of it.
type NatsStore struct {
	nc *nats.Conn
	kv jetstream.KeyValue
}

// NewNatsStore creates (or opens) the named KV bucket on an established
// NATS connection. A non-zero ttl applies at the bucket level.
func NewNatsStore(ctx context.Context, nc *nats.Conn, bucket string, ttl time.Duration) (*NatsStore, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	config := jetstream.KeyValueConfig{
		Bucket: bucket,
	}

	if ttl > 0 {
		config.TTL = ttl
	}

	kv, err := js.CreateOrUpdateKeyValue(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create KV bucket: %w", err)
	}

	return &NatsStore{
		nc: nc,
		kv: kv,
	}, nil
}

func (n *NatsStore) Get(ctx context.Context, key string) (value []byte, found bool, err error) {
	var entry jetstream.KeyValueEntry

	entry, err = n.kv.Get(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("failed to get key %s: %w", key, err)
	}

	return entry.Value(), true, nil
}

func (n *NatsStore) Put(ctx context.Context, key string, value []byte) error {
	_, err := n.kv.Put(ctx, key, value)
	if err != nil {
		return fmt.Errorf("failed to put key %s: %w", key, err)
	}

	return nil
}

func (n *NatsStore) Delete(ctx context.Context, key string) error {
	err := n.kv.Delete(ctx, key)
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}

	return nil
}

// Close detaches from the bucket. The NATS connection stays open for the
// owner to reuse or close.
func (n *NatsStore) Close() error {
	n.kv = nil
	return nil
}
