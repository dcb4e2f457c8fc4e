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

// Package natsports binds the permission broker to port hotplug events
// published over NATS by an edge agent. It is one implementation of the
// broker's enumeration-transport contract; device enumeration itself
// happens on the agent side.
package natsports

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/serialgate/serialgate/pkg/logger"
	"github.com/serialgate/serialgate/pkg/models"
	"github.com/serialgate/serialgate/pkg/permissions"
)

var errMissingToken = errors.New("natsports: port event carries no token")

// Subjects names the event subjects the edge agent publishes on.
type Subjects struct {
	Added   string `json:"added,omitempty"`
	Removed string `json:"removed,omitempty"`
}

// DefaultSubjects returns the standard subject names.
func DefaultSubjects() Subjects {
	return Subjects{
		Added:   "serial.ports.added",
		Removed: "serial.ports.removed",
	}
}

func (s Subjects) withDefaults() Subjects {
	defaults := DefaultSubjects()

	if s.Added == "" {
		s.Added = defaults.Added
	}

	if s.Removed == "" {
		s.Removed = defaults.Removed
	}

	return s
}

// Binder implements permissions.PortManagerBinder on an established NATS
// connection. Each bind yields a fresh handle; the broker re-binds after
// a connection error.
type Binder struct {
	nc       *nats.Conn
	subjects Subjects
	logger   logger.Logger
}

// NewBinder creates a binder. Subjects may be overridden per deployment;
// zero-value fields fall back to DefaultSubjects.
func NewBinder(nc *nats.Conn, subjects Subjects, log logger.Logger) *Binder {
	return &Binder{
		nc:       nc,
		subjects: subjects.withDefaults(),
		logger:   log,
	}
}

// BindPortManager implements permissions.PortManagerBinder.
func (b *Binder) BindPortManager() (permissions.PortManagerHandle, error) {
	if b.nc == nil || b.nc.IsClosed() {
		return nil, nats.ErrConnectionClosed
	}

	return &handle{
		nc:       b.nc,
		subjects: b.subjects,
		logger:   b.logger,
	}, nil
}

// handle is one live binding: two subscriptions plus the connection's
// disconnect handler.
type handle struct {
	nc       *nats.Conn
	subjects Subjects
	logger   logger.Logger

	mu   sync.Mutex
	subs []*nats.Subscription
}

func (h *handle) SetClient(client permissions.PortManagerClient) error {
	addedSub, err := h.nc.Subscribe(h.subjects.Added, func(msg *nats.Msg) {
		h.dispatch(msg, client.OnPortAdded)
	})
	if err != nil {
		return fmt.Errorf("natsports: failed to subscribe %s: %w", h.subjects.Added, err)
	}

	removedSub, err := h.nc.Subscribe(h.subjects.Removed, func(msg *nats.Msg) {
		h.dispatch(msg, client.OnPortRemoved)
	})
	if err != nil {
		_ = addedSub.Unsubscribe()
		return fmt.Errorf("natsports: failed to subscribe %s: %w", h.subjects.Removed, err)
	}

	h.mu.Lock()
	h.subs = []*nats.Subscription{addedSub, removedSub}
	h.mu.Unlock()

	return nil
}

func (h *handle) dispatch(msg *nats.Msg, deliver func(*models.SerialPort)) {
	port, err := decodePort(msg.Data)
	if err != nil {
		h.logger.Warn().
			Err(err).
			Str("subject", msg.Subject).
			Msg("Dropping malformed port event")

		return
	}

	deliver(port)
}

func (h *handle) SetDisconnectHandler(fn func()) {
	h.nc.SetDisconnectErrHandler(func(_ *nats.Conn, err error) {
		if err != nil {
			h.logger.Warn().Err(err).Msg("NATS connection error")
		}

		fn()
	})
}

func (h *handle) Close() error {
	h.mu.Lock()
	subs := h.subs
	h.subs = nil
	h.mu.Unlock()

	h.nc.SetDisconnectErrHandler(nil)

	var firstErr error

	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil &&
			!errors.Is(err, nats.ErrConnectionClosed) && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

func decodePort(data []byte) (*models.SerialPort, error) {
	var port models.SerialPort
	if err := json.Unmarshal(data, &port); err != nil {
		return nil, fmt.Errorf("natsports: invalid port event: %w", err)
	}

	if port.Token.IsNil() {
		return nil, errMissingToken
	}

	return &port, nil
}
