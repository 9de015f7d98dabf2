// Package publish forwards reader events to other processes over NATS.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/nedpals/nfc-watch-agent/event"
	"github.com/nedpals/nfc-watch-agent/reader"
)

// Subjects reader events are published on.
const (
	SubjectWatch  = "nfc.reader.watch"
	SubjectStatus = "nfc.reader.status"
)

// Publisher sends JSON-encodable values to subjects.
type Publisher interface {
	Publish(ctx context.Context, subject string, v any) error
	Close() error
}

// Envelope is the published form of a reader event.
type Envelope struct {
	Type   string    `json:"type"`
	Source string    `json:"source"`
	Detail any       `json:"detail"`
	Time   time.Time `json:"time"`
}

// NATSPublisher publishes JSON payloads to a NATS server.
type NATSPublisher struct {
	conn *nats.Conn
}

// NewNATSPublisher connects to url. The connection reconnects forever.
func NewNATSPublisher(url string, opts ...nats.Option) (*NATSPublisher, error) {
	defaults := []nats.Option{
		nats.Name("nfc-watch-agent"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	}
	nc, err := nats.Connect(url, append(defaults, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return &NATSPublisher{conn: nc}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, subject string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s payload: %w", subject, err)
	}
	return p.conn.Publish(subject, data)
}

// Flush waits until the server has processed everything published so far.
func (p *NATSPublisher) Flush() error {
	return p.conn.Flush()
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
	return nil
}

// NoopPublisher discards everything. It is used when no broker is set.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, string, any) error { return nil }
func (NoopPublisher) Close() error                               { return nil }

// Forward publishes every reader event reaching target. Call the returned
// func to stop.
func Forward(target *event.Target, pub Publisher, logger *log.Logger) func() {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	listener := func(subject string) event.Listener {
		return func(e *event.Event) {
			env := Envelope{
				Type:   e.Type,
				Source: e.Target().Name,
				Detail: e.Detail,
				Time:   time.Now().UTC(),
			}
			if err := pub.Publish(context.Background(), subject, env); err != nil {
				logger.Printf("Failed to publish %s: %v", e.Type, err)
			}
		}
	}
	removeWatch := target.AddListener(reader.EventWatch, listener(SubjectWatch))
	removeStatus := target.AddListener(reader.EventStatus, listener(SubjectStatus))
	return func() {
		removeWatch()
		removeStatus()
	}
}
