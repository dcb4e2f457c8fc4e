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
	"fmt"
	"sync"

	"github.com/serialgate/serialgate/pkg/identity"
	"github.com/serialgate/serialgate/pkg/logger"
	"github.com/serialgate/serialgate/pkg/models"
	"github.com/serialgate/serialgate/pkg/token"
)

// SettingKeySerialGrantedDevices namespaces serial grants in the durable
// object-permission store.
const SettingKeySerialGrantedDevices = "serial-granted-devices"

// connState tracks the transport binding lifecycle. The binding is lazy:
// Disconnected until first use, Connecting while establishing, Connected
// until an error drops it back to Disconnected.
type connState int

const (
	stateDisconnected connState = iota
	stateConnecting
	stateConnected
)

func (s connState) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// ObserverRegistration is the capability returned by AddPortObserver.
// Passing it back to RemovePortObserver withdraws the observer; it grants
// no other authority.
type ObserverRegistration struct {
	id uint64
}

type observerEntry struct {
	id       uint64
	observer PortObserver
}

// Manager is the permission broker. Durable grants live in the
// ObjectStore; ephemeral grants are a per-origin set of live port tokens
// held only in memory and wiped on transport disconnection.
//
// The enumeration transport delivers callbacks on its own goroutines, so
// all volatile state is mutex-guarded. No collaborator call happens while
// the lock is held.
type Manager struct {
	store      ObjectStore
	binder     PortManagerBinder
	classifier identity.Classifier
	logger     logger.Logger

	mu         sync.Mutex
	state      connState
	handle     PortManagerHandle
	observers  []observerEntry
	nextObsID  uint64
	portInfo   map[token.Token]identity.Record
	ephemerals map[models.Origin]map[token.Token]struct{}
}

// NewManager creates a broker over the given durable store and transport
// binder. The classifier fixes the platform key set for the process
// lifetime.
func NewManager(store ObjectStore, binder PortManagerBinder, classifier identity.Classifier, log logger.Logger) *Manager {
	return &Manager{
		store:      store,
		binder:     binder,
		classifier: classifier,
		logger:     log,
		portInfo:   make(map[token.Token]identity.Record),
		ephemerals: make(map[models.Origin]map[token.Token]struct{}),
	}
}

// GrantPortPermission records that origin may access port. Ports with a
// stable identity go to the durable tier; the rest go to the ephemeral
// token set. A port is never written to both tiers.
func (m *Manager) GrantPortPermission(ctx context.Context, origin models.Origin, port *models.SerialPort) error {
	rec := m.classifier.ToRecord(port)

	// Cached for observer bookkeeping regardless of tier; eviction
	// happens on port removal or connection loss.
	m.mu.Lock()
	m.portInfo[port.Token] = rec
	m.mu.Unlock()

	if m.classifier.CanStorePersistentEntry(port) {
		data, err := identity.MarshalRecord(&rec)
		if err != nil {
			return fmt.Errorf("permissions: failed to encode record: %w", err)
		}

		if err := m.store.GrantObjectPermission(ctx, origin, data, SettingKeySerialGrantedDevices); err != nil {
			return fmt.Errorf("permissions: failed to persist grant: %w", err)
		}

		m.logger.Info().
			Str("origin", string(origin)).
			Str("name", rec.Name).
			Msg("Persisted durable port grant")

		return nil
	}

	m.mu.Lock()
	set := m.ephemerals[origin]
	if set == nil {
		set = make(map[token.Token]struct{})
		m.ephemerals[origin] = set
	}
	set[port.Token] = struct{}{}
	m.mu.Unlock()

	m.logger.Debug().
		Str("origin", string(origin)).
		Str("name", rec.Name).
		Msg("Recorded ephemeral port grant")

	return nil
}

// HasPortPermission reports whether origin holds a grant matching port.
// The ephemeral tier is checked first by live token; ports without a
// stable identity can only ever match there. Otherwise the origin's
// durable records are scanned in order for a field-exact identity match.
func (m *Manager) HasPortPermission(ctx context.Context, origin models.Origin, port *models.SerialPort) (bool, error) {
	m.mu.Lock()
	if set, ok := m.ephemerals[origin]; ok {
		if _, ok := set[port.Token]; ok {
			m.mu.Unlock()
			return true, nil
		}
	}
	m.mu.Unlock()

	if !m.classifier.CanStorePersistentEntry(port) {
		return false, nil
	}

	objects, err := m.store.GetGrantedObjects(ctx, origin, SettingKeySerialGrantedDevices)
	if err != nil {
		return false, fmt.Errorf("permissions: failed to load grants: %w", err)
	}

	keySet := m.classifier.KeySet()

	for _, raw := range objects {
		rec, err := identity.UnmarshalRecord(raw)
		if err != nil {
			return false, fmt.Errorf("permissions: corrupt grant record: %w", err)
		}

		if rec.MatchesPort(port, keySet) {
			return true, nil
		}
	}

	return false, nil
}

// AddPortObserver registers an observer for hotplug notifications and
// returns the registration used to remove it. Observers are notified in
// registration order.
func (m *Manager) AddPortObserver(observer PortObserver) ObserverRegistration {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextObsID++
	reg := ObserverRegistration{id: m.nextObsID}
	m.observers = append(m.observers, observerEntry{id: reg.id, observer: observer})

	return reg
}

// RemovePortObserver withdraws a registration. Removing an already-removed
// registration is a no-op.
func (m *Manager) RemovePortObserver(reg ObserverRegistration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, entry := range m.observers {
		if entry.id == reg.id {
			m.observers = append(m.observers[:i], m.observers[i+1:]...)
			return
		}
	}
}

func (m *Manager) snapshotObservers() []PortObserver {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]PortObserver, 0, len(m.observers))
	for _, entry := range m.observers {
		out = append(out, entry.observer)
	}

	return out
}

// OnPortAdded implements PortManagerClient, fanning the event out to all
// registered observers.
func (m *Manager) OnPortAdded(port *models.SerialPort) {
	for _, observer := range m.snapshotObservers() {
		observer.OnPortAdded(port)
	}
}

// OnPortRemoved implements PortManagerClient. The cached record is evicted
// after the fan-out so observers still see it during their callback.
func (m *Manager) OnPortRemoved(port *models.SerialPort) {
	for _, observer := range m.snapshotObservers() {
		observer.OnPortRemoved(port)
	}

	m.mu.Lock()
	delete(m.portInfo, port.Token)
	m.mu.Unlock()
}

// CachedPortRecord returns the record cached at grant time for a live
// token, if any.
func (m *Manager) CachedPortRecord(tok token.Token) (identity.Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.portInfo[tok]

	return rec, ok
}

// PortManager returns the live transport binding, establishing it on first
// use. On a bind failure the state returns to disconnected and the next
// call retries.
func (m *Manager) PortManager() (PortManagerHandle, error) {
	m.mu.Lock()
	if m.state == stateConnected {
		handle := m.handle
		m.mu.Unlock()

		return handle, nil
	}
	m.state = stateConnecting
	m.mu.Unlock()

	handle, err := m.binder.BindPortManager()
	if err != nil {
		m.setDisconnected()
		return nil, fmt.Errorf("permissions: failed to bind port manager: %w", err)
	}

	if err := handle.SetClient(m); err != nil {
		_ = handle.Close()
		m.setDisconnected()

		return nil, fmt.Errorf("permissions: failed to register port client: %w", err)
	}

	handle.SetDisconnectHandler(m.OnConnectionError)

	m.mu.Lock()
	m.handle = handle
	m.state = stateConnected
	m.mu.Unlock()

	m.logger.Info().Msg("Port manager connection established")

	return handle, nil
}

func (m *Manager) setDisconnected() {
	m.mu.Lock()
	m.state = stateDisconnected
	m.mu.Unlock()
}

// OnConnectionError handles transport disconnection: the binding and the
// client registration are released and all volatile state is reset — the
// record index and every origin's ephemeral grants. Durable grants are
// untouched; they are not a function of a live connection. The next call
// needing the transport rebinds from scratch.
func (m *Manager) OnConnectionError() {
	m.mu.Lock()
	handle := m.handle
	m.handle = nil
	m.state = stateDisconnected
	m.portInfo = make(map[token.Token]identity.Record)
	m.ephemerals = make(map[models.Origin]map[token.Token]struct{})
	m.mu.Unlock()

	if handle != nil {
		_ = handle.Close()
	}

	m.logger.Warn().Msg("Port manager connection lost; ephemeral grants cleared")
}
