package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// Publisher is the subset of *nats.Conn the notifier needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

type NATSConfig struct {
	URL           string
	Subject       string
	MaxReconnects int
	ReconnectWait time.Duration
}

func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		Subject:       "focusroom.notifications",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
	}
}

// ConnectNATS dials the broker with reconnect logging.
func ConnectNATS(cfg NATSConfig) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name("focusroom"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return nc, nil
}

type cancelCommand struct {
	RequestedAt time.Time `json:"requested_at"`
}

// NATSNotifier publishes schedule and cancel commands for an external
// delivery agent on <subject>.schedule and <subject>.cancel.
type NATSNotifier struct {
	pub     Publisher
	subject string
	clock   clockwork.Clock
}

func NewNATSNotifier(pub Publisher, subject string, clock clockwork.Clock) *NATSNotifier {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &NATSNotifier{pub: pub, subject: subject, clock: clock}
}

func (n *NATSNotifier) Schedule(ctx context.Context, notification Notification) (string, error) {
	if notification.ID == "" {
		notification.ID = uuid.NewString()
	}
	data, err := json.Marshal(notification)
	if err != nil {
		return "", fmt.Errorf("failed to marshal notification: %w", err)
	}
	if err := n.pub.Publish(n.subject+".schedule", data); err != nil {
		return "", fmt.Errorf("failed to publish notification: %w", err)
	}

	log.Debug().
		Str("notification_id", notification.ID).
		Str("subject", n.subject+".schedule").
		Msg("notification published")
	return notification.ID, nil
}

func (n *NATSNotifier) CancelAll(ctx context.Context) error {
	data, err := json.Marshal(cancelCommand{RequestedAt: n.clock.Now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to marshal cancel command: %w", err)
	}
	if err := n.pub.Publish(n.subject+".cancel", data); err != nil {
		return fmt.Errorf("failed to publish cancel command: %w", err)
	}
	return nil
}
