package nfc

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"
)

// DefaultPollInterval is how often a polling provider checks the field.
const DefaultPollInterval = 250 * time.Millisecond

// Tag is a tag found in the reader's field.
type Tag interface {
	UID() []byte
	// ReadNDEF returns the raw NDEF message stored on the tag, or nil when
	// the tag holds none.
	ReadNDEF() ([]byte, error)
}

// TagSource is an opened reader device that can be polled for tags.
type TagSource interface {
	Tags() ([]Tag, error)
	Close() error
}

// SourceOpener opens the device behind a polling provider.
type SourceOpener func() (TagSource, error)

// PollerConfig configures a Poller.
type PollerConfig struct {
	Open     SourceOpener
	Interval time.Duration
	Clock    Clock
	Logger   *log.Logger
}

// Poller is a Watcher for readers without tag events. The device is opened
// when the first subscription is added and closed when the last one is
// cancelled. A tag is delivered once per presence: it must leave the field
// before it is delivered again.
type Poller struct {
	open     SourceOpener
	interval time.Duration
	clock    Clock
	logger   *log.Logger

	dispatcher Dispatcher

	mu      sync.Mutex
	source  TagSource
	stop    context.CancelFunc
	done    chan struct{}
	present map[string]bool
}

// NewPoller creates a polling watcher.
func NewPoller(cfg PollerConfig) *Poller {
	p := &Poller{
		open:     cfg.Open,
		interval: cfg.Interval,
		clock:    cfg.Clock,
		logger:   cfg.Logger,
	}
	if p.interval <= 0 {
		p.interval = DefaultPollInterval
	}
	if p.clock == nil {
		p.clock = NewRealClock()
	}
	if p.logger == nil {
		p.logger = log.New(io.Discard, "", 0)
	}
	p.dispatcher.OnIdle = p.shutdown
	return p
}

// Watch registers handler and starts polling if this is the first
// subscription.
func (p *Poller) Watch(ctx context.Context, opts WatchOptions, handler MessageHandler) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, WrapError(ErrCodeAborted, "Watch", "watch aborted", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.source == nil {
		src, err := p.open()
		if err != nil {
			if GetErrorCode(err) != 0 {
				return nil, err
			}
			return nil, NewNotReadableError("Watch", err)
		}
		p.source = src
		p.present = make(map[string]bool)

		loopCtx, cancel := context.WithCancel(context.Background())
		p.stop = cancel
		p.done = make(chan struct{})
		go p.loop(loopCtx, p.clock.NewTicker(p.interval), p.done)
		p.logger.Println("Polling started")
	}

	return p.dispatcher.Add(opts, handler), nil
}

// Subscribers returns the number of live subscriptions.
func (p *Poller) Subscribers() int {
	return p.dispatcher.Len()
}

func (p *Poller) loop(ctx context.Context, ticker Ticker, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()

	p.poll()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			p.poll()
		}
	}
}

func (p *Poller) poll() {
	p.mu.Lock()
	src := p.source
	p.mu.Unlock()
	if src == nil {
		return
	}

	tags, err := src.Tags()
	if err != nil {
		p.logger.Printf("Failed to poll for tags: %v", err)
		return
	}

	seen := make(map[string]bool, len(tags))
	var fresh []Tag
	p.mu.Lock()
	for _, tag := range tags {
		uid := FormatSerialNumber(tag.UID())
		seen[uid] = true
		if !p.present[uid] {
			fresh = append(fresh, tag)
		}
	}
	p.present = seen
	p.mu.Unlock()

	for _, tag := range fresh {
		msg, err := p.read(tag)
		if err != nil {
			p.logger.Printf("Failed to read tag %s: %v", FormatSerialNumber(tag.UID()), err)
			continue
		}
		n := p.dispatcher.Deliver(msg)
		p.logger.Printf("Tag %s: %d records, delivered to %d subscribers", msg.SerialNumber, len(msg.Records), n)
	}
}

func (p *Poller) read(tag Tag) (Message, error) {
	serial := FormatSerialNumber(tag.UID())
	raw, err := tag.ReadNDEF()
	if err != nil {
		return Message{}, fmt.Errorf("read NDEF: %w", err)
	}
	if len(raw) == 0 {
		return Message{SerialNumber: serial}, nil
	}
	msg, err := DecodeMessage(raw)
	if err != nil {
		return Message{}, err
	}
	msg.SerialNumber = serial
	return msg, nil
}

func (p *Poller) shutdown() {
	p.mu.Lock()
	src, stop, done := p.source, p.stop, p.done
	p.source, p.stop, p.done = nil, nil, nil
	p.mu.Unlock()

	if stop == nil {
		return
	}
	stop()
	<-done
	if err := src.Close(); err != nil {
		p.logger.Printf("Failed to close device: %v", err)
	}
	p.logger.Println("Polling stopped")
}
