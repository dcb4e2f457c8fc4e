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

// Package grantsvc exposes the permission broker to other processes over
// NATS request/reply. It carries no policy of its own: requests are
// validated, handed to the broker, and answered with a definite boolean.
package grantsvc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/serialgate/serialgate/pkg/logger"
	"github.com/serialgate/serialgate/pkg/models"
)

var (
	errMissingOrigin = errors.New("grantsvc: origin is required")
	errMissingPort   = errors.New("grantsvc: port descriptor is required")
	errMissingToken  = errors.New("grantsvc: port token is required")
)

// Broker is the slice of the permission manager the service needs.
type Broker interface {
	GrantPortPermission(ctx context.Context, origin models.Origin, port *models.SerialPort) error
	HasPortPermission(ctx context.Context, origin models.Origin, port *models.SerialPort) (bool, error)
}

// Config names the request subjects.
type Config struct {
	GrantSubject string `json:"grant_subject,omitempty"`
	QuerySubject string `json:"query_subject,omitempty"`
}

func (c Config) withDefaults() Config {
	if c.GrantSubject == "" {
		c.GrantSubject = "serial.permissions.grant"
	}

	if c.QuerySubject == "" {
		c.QuerySubject = "serial.permissions.query"
	}

	return c
}

// Request is the wire form of a grant or query call.
type Request struct {
	Origin models.Origin      `json:"origin"`
	Port   *models.SerialPort `json:"port"`
}

func (r *Request) validate() error {
	if r.Origin == "" {
		return errMissingOrigin
	}

	if r.Port == nil {
		return errMissingPort
	}

	if r.Port.Token.IsNil() {
		return errMissingToken
	}

	return nil
}

// Response is the wire form of a reply. Error is set only for malformed
// requests or broker failures; Granted is then meaningless.
type Response struct {
	Granted bool   `json:"granted"`
	Error   string `json:"error,omitempty"`
}

// Service owns the two subscriptions.
type Service struct {
	nc     *nats.Conn
	broker Broker
	config Config
	logger logger.Logger

	mu      sync.Mutex
	baseCtx context.Context
	subs    []*nats.Subscription
}

// New creates the service; Start subscribes it.
func New(nc *nats.Conn, broker Broker, config Config, log logger.Logger) *Service {
	return &Service{
		nc:     nc,
		broker: broker,
		config: config.withDefaults(),
		logger: log,
	}
}

// Start subscribes the grant and query subjects. The context bounds the
// handlers' calls into the broker's durable store.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	grantSub, err := s.nc.Subscribe(s.config.GrantSubject, func(msg *nats.Msg) {
		s.respond(msg, s.handle(msg.Data, s.grant))
	})
	if err != nil {
		return fmt.Errorf("grantsvc: failed to subscribe %s: %w", s.config.GrantSubject, err)
	}

	querySub, err := s.nc.Subscribe(s.config.QuerySubject, func(msg *nats.Msg) {
		s.respond(msg, s.handle(msg.Data, s.query))
	})
	if err != nil {
		_ = grantSub.Unsubscribe()
		return fmt.Errorf("grantsvc: failed to subscribe %s: %w", s.config.QuerySubject, err)
	}

	s.mu.Lock()
	s.subs = []*nats.Subscription{grantSub, querySub}
	s.mu.Unlock()

	s.logger.Info().
		Str("grant_subject", s.config.GrantSubject).
		Str("query_subject", s.config.QuerySubject).
		Msg("Permission service listening")

	return nil
}

// Stop drains the subscriptions.
func (s *Service) Stop() error {
	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()

	var firstErr error

	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil &&
			!errors.Is(err, nats.ErrConnectionClosed) && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

func (s *Service) handle(data []byte, op func(context.Context, *Request) Response) Response {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return Response{Error: fmt.Sprintf("invalid request: %v", err)}
	}

	if err := req.validate(); err != nil {
		return Response{Error: err.Error()}
	}

	s.mu.Lock()
	ctx := s.baseCtx
	s.mu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}

	return op(ctx, &req)
}

func (s *Service) grant(ctx context.Context, req *Request) Response {
	if err := s.broker.GrantPortPermission(ctx, req.Origin, req.Port); err != nil {
		s.logger.Error().Err(err).Str("origin", string(req.Origin)).Msg("Grant failed")
		return Response{Error: err.Error()}
	}

	return Response{Granted: true}
}

func (s *Service) query(ctx context.Context, req *Request) Response {
	has, err := s.broker.HasPortPermission(ctx, req.Origin, req.Port)
	if err != nil {
		s.logger.Error().Err(err).Str("origin", string(req.Origin)).Msg("Query failed")
		return Response{Error: err.Error()}
	}

	return Response{Granted: has}
}

func (s *Service) respond(msg *nats.Msg, resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode reply")
		return
	}

	if err := msg.Respond(data); err != nil {
		s.logger.Warn().Err(err).Str("subject", msg.Subject).Msg("Failed to send reply")
	}
}
