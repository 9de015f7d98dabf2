// Package tone renders short feedback tones. A Context is a small audio
// graph (oscillators, gains and a destination) evaluated in sample time;
// a Generator builds the reader's beep on top of it.
package tone

import (
	"encoding/binary"
	"io"
	"math"
	"sync"
)

// DefaultSampleRate is the rate used by NewOtoContext.
const DefaultSampleRate = 44100

// Context owns an audio graph and its clock. Time advances only as frames
// are rendered, so an offline context is fully deterministic.
type Context struct {
	mu          sync.Mutex
	sampleRate  int
	frames      int64
	destination *Destination
	sources     []*Oscillator
	closed      bool
	output      io.Closer
}

// NewContext creates an offline context. Nothing is played until frames are
// pulled with Render or Read.
func NewContext(sampleRate int) *Context {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	c := &Context{sampleRate: sampleRate}
	c.destination = &Destination{node: node{ctx: c}}
	return c
}

// SampleRate returns the frames per second of the context.
func (c *Context) SampleRate() int {
	return c.sampleRate
}

// CurrentTime returns the context time in seconds: frames rendered divided by
// the sample rate.
func (c *Context) CurrentTime() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentTime()
}

func (c *Context) currentTime() float64 {
	return float64(c.frames) / float64(c.sampleRate)
}

// Destination returns the node whose inputs are rendered.
func (c *Context) Destination() *Destination {
	return c.destination
}

// NewOscillator creates an unconnected sine oscillator at 440 Hz.
func (c *Context) NewOscillator() *Oscillator {
	o := &Oscillator{
		node: node{ctx: c},
		Type: Sine,
		stop: math.Inf(1),
	}
	o.Frequency = &Param{ctx: c, value: 440}
	return o
}

// NewGain creates an unconnected gain node with unity gain.
func (c *Context) NewGain() *Gain {
	g := &Gain{node: node{ctx: c}}
	g.Gain = &Param{ctx: c, value: 1}
	return g
}

// ActiveSources returns the number of started oscillators that have not
// ended.
func (c *Context) ActiveSources() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sources)
}

// Render fills buf with mono samples clamped to [-1, 1] and advances the
// context clock. Ended callbacks run after the frames are produced, outside
// the context lock.
func (c *Context) Render(buf []float32) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		clear(buf)
		return
	}

	rate := float64(c.sampleRate)
	for i := range buf {
		t := float64(c.frames+int64(i)) / rate
		s := c.destination.sample(t)
		buf[i] = float32(max(-1, min(1, s)))
	}
	c.frames += int64(len(buf))

	now := c.currentTime()
	var ended []func()
	live := c.sources[:0]
	for _, o := range c.sources {
		if o.stop <= now {
			o.ended = true
			if o.onEnded != nil {
				ended = append(ended, o.onEnded)
			}
			continue
		}
		live = append(live, o)
	}
	clear(c.sources[len(live):])
	c.sources = live
	c.mu.Unlock()

	for _, fn := range ended {
		fn()
	}
}

// RenderDuration renders d seconds of audio and discards it.
func (c *Context) RenderDuration(seconds float64) {
	n := int(math.Ceil(seconds * float64(c.sampleRate)))
	buf := make([]float32, 1024)
	for n > 0 {
		chunk := min(n, len(buf))
		c.Render(buf[:chunk])
		n -= chunk
	}
}

// Read implements io.Reader, producing little-endian float32 mono frames.
func (c *Context) Read(p []byte) (int, error) {
	frames := len(p) / 4
	if frames == 0 {
		return 0, nil
	}
	buf := make([]float32, frames)
	c.Render(buf)
	for i, s := range buf {
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(s))
	}
	return frames * 4, nil
}

// Close releases the context: every node still playing is dropped without
// its ended callback, and the output, if any, is closed. Close is
// idempotent.
func (c *Context) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	for _, o := range c.sources {
		o.ended = true
	}
	c.sources = nil
	c.destination.ins = nil
	out := c.output
	c.output = nil
	c.mu.Unlock()

	if out != nil {
		return out.Close()
	}
	return nil
}

// Closed reports whether Close has been called.
func (c *Context) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
