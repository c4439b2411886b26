/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus bridges the in-process event bus to NATS so multiple
// instances see each other's schedule and cache invalidation events.
package eventbus

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/friendsincode/gradehall/internal/events"
)

const subjectPrefix = "gradehall.events."

// NATSBus fans events out across instances over NATS. Local subscribers use
// the embedded in-process bus; published events also go to the wire, and
// remote events are re-published locally. If NATS is unavailable the bus
// degrades to in-process delivery only.
type NATSBus struct {
	logger zerolog.Logger
	local  *events.Bus
	conn   *nats.Conn
	sub    *nats.Subscription
	nodeID string
}

// NATSConfig contains NATS connection configuration.
type NATSConfig struct {
	URL           string
	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultNATSConfig returns default NATS configuration.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// NewNATSBus connects to NATS and wires the fan-out. A connection failure is
// logged, not fatal: the returned bus still delivers in-process.
func NewNATSBus(cfg NATSConfig, logger zerolog.Logger) (*NATSBus, error) {
	nb := &NATSBus{
		logger: logger.With().Str("component", "eventbus").Logger(),
		local:  events.NewBus(),
		nodeID: generateNodeID(),
	}

	conn, err := nats.Connect(cfg.URL,
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
	)
	if err != nil {
		nb.logger.Warn().Err(err).Str("url", cfg.URL).Msg("NATS unavailable, events stay in-process")
		return nb, nil
	}
	nb.conn = conn

	sub, err := conn.Subscribe(subjectPrefix+">", nb.handleRemote)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe events: %w", err)
	}
	nb.sub = sub

	nb.logger.Info().Str("url", cfg.URL).Str("node_id", nb.nodeID).Msg("NATS event bus connected")
	return nb, nil
}

// Subscribe registers a local subscriber for an event type.
func (nb *NATSBus) Subscribe(eventType events.EventType) events.Subscriber {
	return nb.local.Subscribe(eventType)
}

// Unsubscribe removes a local subscriber.
func (nb *NATSBus) Unsubscribe(eventType events.EventType, sub events.Subscriber) {
	nb.local.Unsubscribe(eventType, sub)
}

// Publish delivers locally and forwards to NATS when connected.
func (nb *NATSBus) Publish(eventType events.EventType, payload events.Payload) {
	nb.local.Publish(eventType, payload)

	if nb.conn == nil {
		return
	}
	data, err := json.Marshal(natsMessage{
		EventType: eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		NodeID:    nb.nodeID,
	})
	if err != nil {
		nb.logger.Debug().Err(err).Msg("marshal event for NATS")
		return
	}
	if err := nb.conn.Publish(subjectPrefix+string(eventType), data); err != nil {
		nb.logger.Debug().Err(err).Str("event", string(eventType)).Msg("publish event to NATS")
	}
}

// handleRemote re-publishes events from other nodes into the local bus.
func (nb *NATSBus) handleRemote(msg *nats.Msg) {
	var m natsMessage
	if err := json.Unmarshal(msg.Data, &m); err != nil {
		nb.logger.Debug().Err(err).Msg("unmarshal NATS event")
		return
	}
	if m.NodeID == nb.nodeID {
		return // our own publish echoing back
	}
	nb.local.Publish(m.EventType, m.Payload)
}

// Close drains the subscription and closes the connection.
func (nb *NATSBus) Close() error {
	if nb.sub != nil {
		if err := nb.sub.Unsubscribe(); err != nil {
			nb.logger.Debug().Err(err).Msg("unsubscribe NATS events")
		}
	}
	if nb.conn != nil {
		nb.conn.Close()
	}
	return nil
}

// natsMessage represents a message published to NATS.
type natsMessage struct {
	EventType events.EventType `json:"event_type"`
	Payload   events.Payload   `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
	NodeID    string           `json:"node_id"`
}

func generateNodeID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "node"
	}
	return host + "-" + uuid.New().String()[:8]
}
