// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/mia-platform/logrelay/internal/info"
	"github.com/mia-platform/logrelay/internal/logentry"
	"github.com/mia-platform/logrelay/internal/logger"
)

const (
	// DefaultSubject is the subject failed deliveries are published on.
	DefaultSubject = "logrelay.delivery.failed"

	natsLoggerName = "logrelay:notify:nats"
)

var _ Notifier = &NATSPublisher{}

// NATSPublisher publishes every failed record as a JSON message.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
}

// NewNATSPublisher connects to natsURL. Connection state changes are reported on the context logger.
func NewNATSPublisher(ctx context.Context, natsURL, subject string) (*NATSPublisher, error) {
	log := logger.Named(ctx, natsLoggerName)
	if subject == "" {
		subject = DefaultSubject
	}

	conn, err := nats.Connect(natsURL,
		nats.Name(info.UserAgent()),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", "error", err.Error())
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	return &NATSPublisher{
		conn:    conn,
		subject: subject,
	}, nil
}

// DeliveryFailed implements Notifier.
func (p *NATSPublisher) DeliveryFailed(_ context.Context, record logentry.FailedRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("failed to publish record: %w", err)
	}
	return nil
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Drain()
}
