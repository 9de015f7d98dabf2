package nfc

import (
	"context"
	"fmt"
	"sync"
)

// MockWatcher is a test implementation of Watcher that simulates a platform
// NFC capability.
//
// Example:
//
//	watcher := nfc.NewMockWatcher()
//	sub, _ := watcher.Watch(ctx, opts, handler)
//	watcher.Deliver(nfc.Message{Records: []nfc.Record{{RecordType: "text", Data: []byte("hi")}}})
type MockWatcher struct {
	// WatchError, if set, will be returned by Watch()
	WatchError error

	// ApplyFilter makes Deliver apply each subscription's options before
	// invoking its handler, the way a real provider does.
	ApplyFilter bool

	// CallLog tracks all method calls for verification in tests
	CallLog []string

	// Options records the options of every Watch call in order
	Options []WatchOptions

	subs   []*MockSubscription
	nextID int
	mu     sync.Mutex
}

// NewMockWatcher creates a new MockWatcher with default values.
func NewMockWatcher() *MockWatcher {
	return &MockWatcher{
		CallLog: make([]string, 0),
	}
}

// Watch simulates registering a watch.
func (m *MockWatcher) Watch(ctx context.Context, opts WatchOptions, handler MessageHandler) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CallLog = append(m.CallLog, fmt.Sprintf("Watch(%s)", opts.Mode))
	m.Options = append(m.Options, opts)

	if err := ctx.Err(); err != nil {
		return nil, WrapError(ErrCodeAborted, "Watch", "watch aborted", err)
	}
	if m.WatchError != nil {
		return nil, m.WatchError
	}

	m.nextID++
	sub := &MockSubscription{
		id:      fmt.Sprintf("mock-%d", m.nextID),
		opts:    opts,
		handler: handler,
		owner:   m,
	}
	m.subs = append(m.subs, sub)
	return sub, nil
}

// Deliver invokes the handler of every active subscription with msg, on the
// calling goroutine.
func (m *MockWatcher) Deliver(msg Message) {
	m.mu.Lock()
	active := make([]*MockSubscription, 0, len(m.subs))
	for _, s := range m.subs {
		if !s.cancelled {
			active = append(active, s)
		}
	}
	applyFilter := m.ApplyFilter
	m.CallLog = append(m.CallLog, fmt.Sprintf("Deliver(%d records)", len(msg.Records)))
	m.mu.Unlock()

	for _, s := range active {
		out := msg
		if applyFilter {
			var ok bool
			if out, ok = s.opts.Filter(msg); !ok {
				continue
			}
		}
		s.handler(out)
	}
}

// ActiveSubscriptions returns the number of subscriptions not yet cancelled.
func (m *MockWatcher) ActiveSubscriptions() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, s := range m.subs {
		if !s.cancelled {
			n++
		}
	}
	return n
}

// Subscriptions returns every subscription ever created, in creation order.
func (m *MockWatcher) Subscriptions() []*MockSubscription {
	m.mu.Lock()
	defer m.mu.Unlock()

	subsCopy := make([]*MockSubscription, len(m.subs))
	copy(subsCopy, m.subs)
	return subsCopy
}

// GetCallLog returns a copy of the call log for verification.
func (m *MockWatcher) GetCallLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	logCopy := make([]string, len(m.CallLog))
	copy(logCopy, m.CallLog)
	return logCopy
}

// MockSubscription is the Subscription handed out by MockWatcher.
type MockSubscription struct {
	id        string
	opts      WatchOptions
	handler   MessageHandler
	owner     *MockWatcher
	cancelled bool
}

// ID returns the subscription identifier.
func (s *MockSubscription) ID() string {
	return s.id
}

// Options returns the options the subscription was registered with.
func (s *MockSubscription) Options() WatchOptions {
	return s.opts
}

// Cancel marks the subscription inactive.
func (s *MockSubscription) Cancel() error {
	s.owner.mu.Lock()
	defer s.owner.mu.Unlock()

	if !s.cancelled {
		s.cancelled = true
		s.owner.CallLog = append(s.owner.CallLog, fmt.Sprintf("Cancel(%s)", s.id))
	}
	return nil
}

// Deliver invokes the subscription's handler even after Cancel, emulating a
// provider whose delivery races with cancellation.
func (s *MockSubscription) Deliver(msg Message) {
	s.handler(msg)
}

// Cancelled reports whether Cancel has been called.
func (s *MockSubscription) Cancelled() bool {
	s.owner.mu.Lock()
	defer s.owner.mu.Unlock()
	return s.cancelled
}
