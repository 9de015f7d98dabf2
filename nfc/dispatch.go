package nfc

import (
	"encoding/hex"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Dispatcher keeps the subscriptions of a provider and fans messages out to
// them, applying each subscription's options. Providers embed it so that one
// polling loop serves every subscriber.
type Dispatcher struct {
	mu   sync.RWMutex
	subs map[string]*dispatchSub
	// OnIdle, if set, runs after the last subscription is cancelled.
	OnIdle func()
}

type dispatchSub struct {
	id      string
	opts    WatchOptions
	handler MessageHandler
	d       *Dispatcher
	once    sync.Once
}

// Add registers a handler and returns its subscription.
func (d *Dispatcher) Add(opts WatchOptions, handler MessageHandler) Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.subs == nil {
		d.subs = make(map[string]*dispatchSub)
	}
	s := &dispatchSub{
		id:      uuid.New().String(),
		opts:    opts,
		handler: handler,
		d:       d,
	}
	d.subs[s.id] = s
	return s
}

// Len returns the number of live subscriptions.
func (d *Dispatcher) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subs)
}

// Deliver filters msg per subscription and invokes the matching handlers.
// It returns how many handlers received the message.
func (d *Dispatcher) Deliver(msg Message) int {
	d.mu.RLock()
	subs := make([]*dispatchSub, 0, len(d.subs))
	for _, s := range d.subs {
		subs = append(subs, s)
	}
	d.mu.RUnlock()

	delivered := 0
	for _, s := range subs {
		out, ok := s.opts.Filter(msg)
		if !ok {
			continue
		}
		s.handler(out)
		delivered++
	}
	return delivered
}

func (s *dispatchSub) ID() string {
	return s.id
}

func (s *dispatchSub) Cancel() error {
	s.once.Do(func() {
		s.d.mu.Lock()
		delete(s.d.subs, s.id)
		idle := len(s.d.subs) == 0
		onIdle := s.d.OnIdle
		s.d.mu.Unlock()

		if idle && onIdle != nil {
			onIdle()
		}
	})
	return nil
}

// FormatSerialNumber renders a UID as colon-separated uppercase hex, the
// serial number format of delivered messages.
func FormatSerialNumber(uid []byte) string {
	if len(uid) == 0 {
		return ""
	}
	parts := make([]string, len(uid))
	for i, b := range uid {
		parts[i] = strings.ToUpper(hex.EncodeToString([]byte{b}))
	}
	return strings.Join(parts, ":")
}
