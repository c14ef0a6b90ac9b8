// Package events publishes settled rounds to NATS so other services can
// follow results without polling history.
package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Ashenafi-pixel/gamecrafter-round-engine/round"

	"github.com/nats-io/nats.go"
)

const EventRoundSettled = "round.settled"

// Event is the envelope published for every settled round.
type Event struct {
	Type      string        `json:"type"`
	Kind      round.Kind    `json:"kind"`
	Data      *round.Result `json:"data"`
	Timestamp int64         `json:"timestamp"`
}

// Conn is the part of *nats.Conn the publisher needs.
type Conn interface {
	Publish(subject string, data []byte) error
}

// Publisher implements round.Sink over NATS, one subject per game kind:
// <prefix>.<kind>.
type Publisher struct {
	conn          Conn
	subjectPrefix string
	closer        func()
}

func NewPublisher(conn Conn, subjectPrefix string) *Publisher {
	return &Publisher{conn: conn, subjectPrefix: subjectPrefix}
}

// Connect dials natsURL, retrying reconnects forever.
func Connect(natsURL, subjectPrefix string, log *slog.Logger) (*Publisher, error) {
	nc, err := Dial(natsURL, "rgs-round-engine", log)
	if err != nil {
		return nil, err
	}
	p := NewPublisher(nc, subjectPrefix)
	p.closer = func() {
		_ = nc.Drain()
	}
	return p, nil
}

// Dial connects with reconnect logging. An empty natsURL uses the default.
func Dial(natsURL, name string, log *slog.Logger) (*nats.Conn, error) {
	if log == nil {
		log = slog.Default()
	}
	opts := []nats.Option{
		nats.Name(name),
		nats.MaxReconnects(-1), // retry forever
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("Disconnected from NATS", "err", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("Reconnected to NATS", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			log.Info("NATS connection closed")
		}),
	}
	if natsURL == "" {
		natsURL = nats.DefaultURL
	}
	nc, err := nats.Connect(natsURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return nc, nil
}

// Subject returns the subject results of kind are published on.
func (p *Publisher) Subject(kind round.Kind) string {
	return p.subjectPrefix + "." + string(kind)
}

func (p *Publisher) Append(kind round.Kind, r *round.Result) error {
	data, err := json.Marshal(Event{
		Type:      EventRoundSettled,
		Kind:      kind,
		Data:      r,
		Timestamp: r.SettledAt.UnixMilli(),
	})
	if err != nil {
		return err
	}
	if err := p.conn.Publish(p.Subject(kind), data); err != nil {
		return fmt.Errorf("publish %s round %s: %w", kind, r.RoundID, err)
	}
	return nil
}

// Close drains the connection when the publisher owns it.
func (p *Publisher) Close() {
	if p.closer != nil {
		p.closer()
	}
}
