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

//go:generate mockgen -destination=mock_store.go -package=permissions github.com/serialgate/serialgate/pkg/permissions ObjectStore

// Package permissions is the serial-device permission broker: it decides
// whether a web origin may access a physical serial port, tracking durable
// grants that survive restarts and ephemeral grants scoped to the current
// process lifetime.
package permissions

import (
	"context"
	"encoding/json"

	"github.com/serialgate/serialgate/pkg/models"
)

// ObjectStore is the durable per-origin object-permission store. Records
// are opaque keyed maps to the store; it never interprets the identity
// fields inside them.
type ObjectStore interface {
	// GrantObjectPermission appends a record to the origin's granted list
	// under the given setting key.
	GrantObjectPermission(ctx context.Context, origin models.Origin, record json.RawMessage, settingKey string) error

	// GetGrantedObjects returns the origin's granted records in insertion
	// order.
	GetGrantedObjects(ctx context.Context, origin models.Origin, settingKey string) ([]json.RawMessage, error)
}

// PortManagerClient receives hotplug callbacks from the enumeration
// transport.
type PortManagerClient interface {
	OnPortAdded(port *models.SerialPort)
	OnPortRemoved(port *models.SerialPort)
}

// PortManagerHandle is one live binding to the enumeration transport.
// Device enumeration itself happens on the far side; the broker only
// registers itself for callbacks and watches for disconnection.
type PortManagerHandle interface {
	SetClient(client PortManagerClient) error
	SetDisconnectHandler(fn func())
	Close() error
}

// PortManagerBinder establishes transport bindings on demand.
type PortManagerBinder interface {
	BindPortManager() (PortManagerHandle, error)
}

// PortObserver is notified when ports appear or disappear. Observers are
// called in registration order.
type PortObserver interface {
	OnPortAdded(port *models.SerialPort)
	OnPortRemoved(port *models.SerialPort)
}
