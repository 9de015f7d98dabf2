// Package event provides a small DOM-style event target. Events are
// dispatched synchronously to the listeners of a target and, when they
// bubble, to the listeners of each ancestor. A target can be marked as a
// shadow root; events that are not composed stop there.
package event

import "sync"

// Event is a named notification carrying an arbitrary detail value.
type Event struct {
	Type     string
	Detail   any
	Bubbles  bool
	Composed bool

	target        *Target
	currentTarget *Target
	stopped       bool
}

// New creates an event that bubbles and crosses shadow boundaries, the shape
// of every event the reader emits.
func New(typ string, detail any) *Event {
	return &Event{Type: typ, Detail: detail, Bubbles: true, Composed: true}
}

// Target returns the target the event was dispatched on.
func (e *Event) Target() *Target { return e.target }

// CurrentTarget returns the target whose listeners are running.
func (e *Event) CurrentTarget() *Target { return e.currentTarget }

// StopPropagation prevents the event from reaching further targets. The
// remaining listeners of the current target still run.
func (e *Event) StopPropagation() { e.stopped = true }

// Listener handles a dispatched event.
type Listener func(*Event)

type registration struct {
	fn Listener
}

// Target receives events and forwards bubbling events to its parent.
type Target struct {
	Name string

	mu         sync.RWMutex
	parent     *Target
	shadowRoot bool
	listeners  map[string][]*registration
}

// NewTarget creates a detached target.
func NewTarget(name string) *Target {
	return &Target{Name: name}
}

// SetParent attaches t below parent. A nil parent detaches it.
func (t *Target) SetParent(parent *Target) {
	t.mu.Lock()
	t.parent = parent
	t.mu.Unlock()
}

// Parent returns the target's parent, or nil.
func (t *Target) Parent() *Target {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.parent
}

// SetShadowRoot marks t as the root of a shadow tree.
func (t *Target) SetShadowRoot(v bool) {
	t.mu.Lock()
	t.shadowRoot = v
	t.mu.Unlock()
}

// AddListener registers fn for events of type typ and returns a func that
// removes the registration.
func (t *Target) AddListener(typ string, fn Listener) (remove func()) {
	reg := &registration{fn: fn}

	t.mu.Lock()
	if t.listeners == nil {
		t.listeners = make(map[string][]*registration)
	}
	t.listeners[typ] = append(t.listeners[typ], reg)
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		regs := t.listeners[typ]
		for i, r := range regs {
			if r == reg {
				t.listeners[typ] = append(regs[:i:i], regs[i+1:]...)
				return
			}
		}
	}
}

// ListenerCount returns the number of listeners registered for typ.
func (t *Target) ListenerCount(typ string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.listeners[typ])
}

// Dispatch delivers e to t and, if e bubbles, to its ancestors. It reports
// whether any listener ran.
func (t *Target) Dispatch(e *Event) bool {
	e.target = t
	e.stopped = false
	handled := false

	for cur := t; cur != nil; {
		handled = cur.invoke(e) || handled
		if e.stopped || !e.Bubbles {
			break
		}

		cur.mu.RLock()
		next, boundary := cur.parent, cur.shadowRoot
		cur.mu.RUnlock()
		if boundary && !e.Composed {
			break
		}
		cur = next
	}

	e.currentTarget = nil
	return handled
}

func (t *Target) invoke(e *Event) bool {
	t.mu.RLock()
	regs := make([]*registration, len(t.listeners[e.Type]))
	copy(regs, t.listeners[e.Type])
	t.mu.RUnlock()

	e.currentTarget = t
	for _, r := range regs {
		r.fn(e)
	}
	return len(regs) > 0
}
