package tone

import "math"

type automation int

const (
	setValue automation = iota
	exponentialRamp
)

type paramEvent struct {
	kind  automation
	value float64
	time  float64
}

// Param is an automatable node parameter. Events are expected in ascending
// time order.
type Param struct {
	ctx    *Context
	value  float64
	events []paramEvent
}

// SetValue sets the value used before any scheduled event.
func (p *Param) SetValue(v float64) {
	p.ctx.mu.Lock()
	p.value = v
	p.ctx.mu.Unlock()
}

// SetValueAtTime schedules an instant change to v at context time t.
func (p *Param) SetValueAtTime(v, t float64) {
	p.ctx.mu.Lock()
	p.events = append(p.events, paramEvent{kind: setValue, value: v, time: t})
	p.ctx.mu.Unlock()
}

// ExponentialRampToValueAtTime schedules an exponential approach from the
// previous event's value to v, reaching it at context time t. Both ends
// must be non-zero and share a sign; otherwise the value jumps at t.
func (p *Param) ExponentialRampToValueAtTime(v, t float64) {
	p.ctx.mu.Lock()
	p.events = append(p.events, paramEvent{kind: exponentialRamp, value: v, time: t})
	p.ctx.mu.Unlock()
}

// ValueAt returns the parameter value at context time t.
func (p *Param) ValueAt(t float64) float64 {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	return p.valueAt(t)
}

// valueAt expects ctx.mu to be held.
func (p *Param) valueAt(t float64) float64 {
	v := p.value
	prevT, prevV := 0.0, p.value
	for _, ev := range p.events {
		if t < ev.time {
			if ev.kind == exponentialRamp && prevV*ev.value > 0 && ev.time > prevT {
				ratio := (t - prevT) / (ev.time - prevT)
				return prevV * math.Pow(ev.value/prevV, ratio)
			}
			return v
		}
		v = ev.value
		prevT, prevV = ev.time, ev.value
	}
	return v
}
