// Package reader implements the NFC watch bridge: it subscribes to an NFC
// capability with options built from its configuration, re-emits every
// received record as a "reader-watch" event, optionally beeps, and reports
// subscription status as "reader-status" events when verbose.
package reader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"

	"github.com/nedpals/nfc-watch-agent/event"
	"github.com/nedpals/nfc-watch-agent/nfc"
	"github.com/nedpals/nfc-watch-agent/tone"
)

// Event names.
const (
	EventWatch  = "reader-watch"
	EventStatus = "reader-status"
)

// Status kinds.
const (
	StatusInfo  = "info"
	StatusError = "error"
)

// Status messages.
const (
	MsgNotSupported   = "WebNFC not supported"
	MsgWatchAdded     = "Added nfc.watch(); tap a tag to read."
	MsgWatchFailedFmt = "Failed adding nfc.watch(); %s"
)

// ErrClosed is returned by Update after Close.
var ErrClosed = errors.New("reader closed")

// Status is the payload of a status notification.
type Status struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// StatusDetail is the detail of a reader-status event.
type StatusDetail struct {
	Status Status `json:"status"`
}

// WatchDetail is the detail of a reader-watch event.
type WatchDetail struct {
	Record nfc.Record `json:"record"`
}

// Beeper plays the feedback tone.
type Beeper interface {
	Beep() error
	Close() error
}

// Reader is a watch bridge. It is also the event target its events are
// dispatched on; attach it under a parent target to let them bubble.
//
// Listeners run synchronously on the delivering goroutine and must not call
// Update or Close.
type Reader struct {
	*event.Target

	watcher nfc.Watcher
	beeper  Beeper
	logger  *log.Logger

	opMu   sync.Mutex // serializes subscribe, update and close
	emitMu sync.Mutex // serializes event emission
	mu     sync.RWMutex
	cfg    Config
	sub    nfc.Subscription
	closed bool
	gen    atomic.Uint64
}

// WithBeeper sets the tone player. By default a tone.Generator on the
// system audio device is used.
func WithBeeper(b Beeper) Option {
	return func(r *Reader) {
		r.beeper = b
	}
}

// WithLogger sets the reader's logger.
func WithLogger(l *log.Logger) Option {
	return func(r *Reader) {
		r.logger = l
	}
}

// WithParent attaches the reader's event target under parent.
func WithParent(parent *event.Target) Option {
	return func(r *Reader) {
		r.SetParent(parent)
	}
}

// New creates a reader and subscribes it to watcher. A nil watcher means
// the platform has no NFC capability. Failures are reported through status
// events, never returned.
func New(ctx context.Context, watcher nfc.Watcher, opts ...Option) *Reader {
	r := &Reader{
		Target:  event.NewTarget("nfc-reader"),
		watcher: watcher,
		cfg:     DefaultConfig(),
		logger:  log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.beeper == nil {
		r.beeper = tone.NewGenerator(nil, tone.WithLogger(r.logger))
	}

	r.opMu.Lock()
	r.initWatch(ctx)
	r.opMu.Unlock()
	return r
}

// Config returns a snapshot of the configuration.
func (r *Reader) Config() Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg
}

// Update applies fn to the configuration. When a watch field (URL,
// RecordType, MediaType or Mode) changes, the current subscription is
// cancelled and a new one is registered with the new options. Verbose and
// Sound take effect immediately. Without a watcher only the configuration
// changes.
func (r *Reader) Update(ctx context.Context, fn func(*Config)) error {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	before := r.cfg.WatchOptions()
	fn(&r.cfg)
	after := r.cfg.WatchOptions()
	r.mu.Unlock()

	if before == after || r.watcher == nil {
		return nil
	}
	r.logger.Printf("Watch options changed, resubscribing (mode=%s)", after.Mode)
	r.cancel()
	r.initWatch(ctx)
	return nil
}

// Close cancels the subscription and releases the tone generator. Messages
// delivered by a stale subscription afterwards emit nothing.
func (r *Reader) Close() error {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	r.cancel()

	// Wait out a handler that passed the generation check before cancel.
	r.emitMu.Lock()
	r.emitMu.Unlock()
	return r.beeper.Close()
}

// Subscribed reports whether a subscription is active.
func (r *Reader) Subscribed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sub != nil
}

// initWatch expects opMu to be held.
func (r *Reader) initWatch(ctx context.Context) {
	if r.watcher == nil {
		r.status(StatusError, MsgNotSupported)
		return
	}

	opts := r.Config().WatchOptions()
	gen := r.gen.Add(1)

	sub, err := r.watcher.Watch(ctx, opts, r.handler(gen))
	if err != nil {
		r.logger.Printf("Watch failed: %v", err)
		r.status(StatusError, fmt.Sprintf(MsgWatchFailedFmt, nfc.ErrorName(err)))
		return
	}

	r.mu.Lock()
	r.sub = sub
	r.mu.Unlock()
	r.logger.Printf("Subscribed %s (mode=%s url=%q recordType=%q mediaType=%q)",
		sub.ID(), opts.Mode, opts.URL, opts.RecordType, opts.MediaType)
	r.status(StatusInfo, MsgWatchAdded)
}

// cancel expects opMu to be held.
func (r *Reader) cancel() {
	r.gen.Add(1)

	r.mu.Lock()
	sub := r.sub
	r.sub = nil
	r.mu.Unlock()

	if sub == nil {
		return
	}
	if err := sub.Cancel(); err != nil {
		r.logger.Printf("Failed to cancel subscription %s: %v", sub.ID(), err)
	}
}

func (r *Reader) handler(gen uint64) nfc.MessageHandler {
	return func(msg nfc.Message) {
		r.emitMu.Lock()
		defer r.emitMu.Unlock()

		for _, rec := range msg.Records {
			if r.gen.Load() != gen {
				return
			}
			if r.Config().Sound {
				if err := r.beeper.Beep(); err != nil {
					r.logger.Printf("Beep failed: %v", err)
				}
			}
			r.Dispatch(event.New(EventWatch, WatchDetail{Record: rec}))
		}
	}
}

func (r *Reader) status(kind, message string) {
	r.logger.Printf("%s: %s", kind, message)
	if !r.Config().Verbose {
		return
	}

	r.emitMu.Lock()
	defer r.emitMu.Unlock()
	r.Dispatch(event.New(EventStatus, StatusDetail{Status: Status{Type: kind, Message: message}}))
}
