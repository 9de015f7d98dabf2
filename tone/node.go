package tone

import "math"

// Node is a unit of the audio graph. Sources produce samples, processing
// nodes transform the sum of their inputs.
type Node interface {
	base() *node
	sample(t float64) float64
}

type node struct {
	ctx *Context
	ins []Node
}

func (n *node) base() *node { return n }

func (n *node) sumInputs(t float64) float64 {
	var s float64
	for _, in := range n.ins {
		s += in.sample(t)
	}
	return s
}

// connect and disconnect expect ctx.mu to be held.
func connect(src, dst Node) {
	d := dst.base()
	for _, in := range d.ins {
		if in == src {
			return
		}
	}
	d.ins = append(d.ins, src)
}

func disconnect(src, dst Node) {
	d := dst.base()
	for i, in := range d.ins {
		if in == src {
			d.ins = append(d.ins[:i:i], d.ins[i+1:]...)
			return
		}
	}
}

// Destination is the final node of a context. Everything connected to it is
// mixed into the rendered output.
type Destination struct {
	node
}

func (d *Destination) sample(t float64) float64 {
	return d.sumInputs(t)
}

// Inputs returns the number of nodes connected to the destination.
func (d *Destination) Inputs() int {
	d.ctx.mu.Lock()
	defer d.ctx.mu.Unlock()
	return len(d.ins)
}

// Gain scales the sum of its inputs by an automatable gain value.
type Gain struct {
	node
	Gain *Param
}

func (g *Gain) sample(t float64) float64 {
	return g.Gain.valueAt(t) * g.sumInputs(t)
}

// Connect routes the gain output into dst.
func (g *Gain) Connect(dst Node) {
	g.ctx.mu.Lock()
	connect(g, dst)
	g.ctx.mu.Unlock()
}

// Disconnect removes the route from the gain to dst.
func (g *Gain) Disconnect(dst Node) {
	g.ctx.mu.Lock()
	disconnect(g, dst)
	g.ctx.mu.Unlock()
}

// Inputs returns the number of nodes connected to the gain.
func (g *Gain) Inputs() int {
	g.ctx.mu.Lock()
	defer g.ctx.mu.Unlock()
	return len(g.ins)
}

// Waveform selects the shape an Oscillator produces.
type Waveform string

const (
	Sine     Waveform = "sine"
	Square   Waveform = "square"
	Sawtooth Waveform = "sawtooth"
	Triangle Waveform = "triangle"
)

// Oscillator is a periodic source that plays between its start and stop
// times.
type Oscillator struct {
	node
	Type      Waveform
	Frequency *Param

	start, stop float64
	started     bool
	ended       bool
	onEnded     func()
}

func (o *Oscillator) sample(t float64) float64 {
	if !o.started || o.ended || t < o.start || t >= o.stop {
		return 0
	}
	phase := o.Frequency.valueAt(t) * (t - o.start)
	phase -= math.Floor(phase)

	switch o.Type {
	case Square:
		if phase < 0.5 {
			return 1
		}
		return -1
	case Sawtooth:
		return 2*phase - 1
	case Triangle:
		return 1 - 4*math.Abs(phase-0.5)
	default:
		return math.Sin(2 * math.Pi * phase)
	}
}

// Connect routes the oscillator output into dst.
func (o *Oscillator) Connect(dst Node) {
	o.ctx.mu.Lock()
	connect(o, dst)
	o.ctx.mu.Unlock()
}

// Disconnect removes the route from the oscillator to dst.
func (o *Oscillator) Disconnect(dst Node) {
	o.ctx.mu.Lock()
	disconnect(o, dst)
	o.ctx.mu.Unlock()
}

// Start schedules playback at context time when.
func (o *Oscillator) Start(when float64) {
	o.ctx.mu.Lock()
	defer o.ctx.mu.Unlock()
	o.start = when
	o.started = true
	o.ctx.sources = append(o.ctx.sources, o)
}

// Stop schedules the end of playback at context time when. The ended
// callback fires once rendering has passed that time.
func (o *Oscillator) Stop(when float64) {
	o.ctx.mu.Lock()
	o.stop = when
	o.ctx.mu.Unlock()
}

// OnEnded sets the callback run when the oscillator has finished playing.
func (o *Oscillator) OnEnded(fn func()) {
	o.ctx.mu.Lock()
	o.onEnded = fn
	o.ctx.mu.Unlock()
}

// Ended reports whether the oscillator has finished playing.
func (o *Oscillator) Ended() bool {
	o.ctx.mu.Lock()
	defer o.ctx.mu.Unlock()
	return o.ended
}
