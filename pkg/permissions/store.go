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

package permissions

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/serialgate/serialgate/pkg/kv"
	"github.com/serialgate/serialgate/pkg/models"
)

// KVObjectStore implements ObjectStore on a key-value backend: one key per
// (setting key, origin) holding the ordered JSON array of granted records.
// Grants append; nothing here merges or deduplicates.
type KVObjectStore struct {
	store kv.KVStore
}

// NewKVObjectStore wraps the given KV backend.
func NewKVObjectStore(store kv.KVStore) *KVObjectStore {
	return &KVObjectStore{store: store}
}

// objectKey builds the storage path for an origin's granted list. Origins
// contain characters KV backends reject (':', '%'), so the origin segment
// is URL-safe base64.
func objectKey(settingKey string, origin models.Origin) string {
	return fmt.Sprintf("%s/%s",
		strings.Trim(settingKey, "/"),
		base64.RawURLEncoding.EncodeToString([]byte(origin)))
}

func (s *KVObjectStore) GrantObjectPermission(ctx context.Context, origin models.Origin, record json.RawMessage, settingKey string) error {
	key := objectKey(settingKey, origin)

	objects, err := s.readList(ctx, key)
	if err != nil {
		return err
	}

	objects = append(objects, record)

	data, err := json.Marshal(objects)
	if err != nil {
		return fmt.Errorf("failed to marshal granted objects for %s: %w", key, err)
	}

	if err := s.store.Put(ctx, key, data); err != nil {
		return fmt.Errorf("failed to store granted objects for %s: %w", key, err)
	}

	return nil
}

func (s *KVObjectStore) GetGrantedObjects(ctx context.Context, origin models.Origin, settingKey string) ([]json.RawMessage, error) {
	return s.readList(ctx, objectKey(settingKey, origin))
}

func (s *KVObjectStore) readList(ctx context.Context, key string) ([]json.RawMessage, error) {
	data, found, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to load granted objects for %s: %w", key, err)
	}

	if !found || len(data) == 0 {
		return nil, nil
	}

	var objects []json.RawMessage
	if err := json.Unmarshal(data, &objects); err != nil {
		return nil, fmt.Errorf("failed to unmarshal granted objects for %s: %w", key, err)
	}

	return objects, nil
}
