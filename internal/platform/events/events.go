// Package events publishes tenant lifecycle events. Delivery is best effort:
// the registry row is the source of truth and a lost event is never retried.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

const (
	SubjectTenantCreated       = "phc.tenant.created"
	SubjectTenantStatusChanged = "phc.tenant.status_changed"
	SubjectTenantActivated     = "phc.tenant.activated"
)

// TenantEvent is the payload of every tenant lifecycle subject.
type TenantEvent struct {
	TenantID       uuid.UUID `json:"tenant_id"`
	LicenseNumber  string    `json:"license_number"`
	Partition      string    `json:"partition"`
	Status         string    `json:"status"`
	PreviousStatus string    `json:"previous_status,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, subject string, event TenantEvent) error
	Close()
}

// PublishObserver is told the outcome of every publish. telemetry.Metrics
// implements it.
type PublishObserver interface {
	ObservePublish(subject string, err error)
}

// conn is the part of *nats.Conn the publisher uses.
type conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

type NATSPublisher struct {
	nc     conn
	logger zerolog.Logger
	obs    PublishObserver
}

// Connect dials url and returns a publisher on the connection.
func Connect(url string, logger zerolog.Logger, obs PublishObserver) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("phc-server"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			logger.Error().Err(err).Msg("nats error")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return newNATSPublisher(nc, logger, obs), nil
}

func newNATSPublisher(nc conn, logger zerolog.Logger, obs PublishObserver) *NATSPublisher {
	return &NATSPublisher{nc: nc, logger: logger, obs: obs}
}

func (p *NATSPublisher) Publish(_ context.Context, subject string, event TenantEvent) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", subject, err)
	}
	err = p.nc.Publish(subject, data)
	if p.obs != nil {
		p.obs.ObservePublish(subject, err)
	}
	if err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() {
	if err := p.nc.Drain(); err != nil {
		p.logger.Warn().Err(err).Msg("nats drain failed")
	}
}

// Nop discards events. Used when NATS_URL is unset.
type Nop struct{}

func (Nop) Publish(context.Context, string, TenantEvent) error { return nil }
func (Nop) Close()                                             {}
