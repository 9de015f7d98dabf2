package tone

import (
	"fmt"
	"io"
	"log"
	"sync"
)

// Beep parameters.
const (
	BeepFrequency = 600.0
	BeepDuration  = 0.2
	BeepStartGain = 20.0
	BeepEndGain   = 0.00001
)

// ContextFactory creates the audio context a Generator plays through.
type ContextFactory func() (*Context, error)

// Generator plays the reader's feedback beep. The context is created on the
// first Beep and reused until Close.
type Generator struct {
	newContext ContextFactory
	logger     *log.Logger

	mu      sync.Mutex
	ctx     *Context
	created int
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithLogger sets the generator's logger.
func WithLogger(l *log.Logger) GeneratorOption {
	return func(g *Generator) {
		g.logger = l
	}
}

// NewGenerator creates a generator that obtains its context from factory.
// A nil factory plays through the default audio device.
func NewGenerator(factory ContextFactory, opts ...GeneratorOption) *Generator {
	if factory == nil {
		factory = NewOtoContext
	}
	g := &Generator{
		newContext: factory,
		logger:     log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Generator) context() (*Context, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.ctx != nil {
		return g.ctx, nil
	}
	ctx, err := g.newContext()
	if err != nil {
		return nil, fmt.Errorf("failed to create audio context: %w", err)
	}
	g.ctx = ctx
	g.created++
	g.logger.Printf("Audio context created (%d Hz)", ctx.SampleRate())
	return ctx, nil
}

// Beep schedules a 0.2 s square tone at 600 Hz whose gain decays
// exponentially from 20 to near silence. It returns once the tone is
// scheduled; the nodes disconnect themselves when the oscillator ends.
func (g *Generator) Beep() error {
	ctx, err := g.context()
	if err != nil {
		return err
	}

	osc := ctx.NewOscillator()
	gain := ctx.NewGain()
	dest := ctx.Destination()

	osc.Type = Square
	osc.Frequency.SetValue(BeepFrequency)
	osc.Connect(gain)
	gain.Connect(dest)

	now := ctx.CurrentTime()
	gain.Gain.SetValueAtTime(BeepStartGain, now)
	gain.Gain.ExponentialRampToValueAtTime(BeepEndGain, now+BeepDuration)

	osc.OnEnded(func() {
		gain.Disconnect(dest)
		osc.Disconnect(gain)
	})
	osc.Start(now)
	osc.Stop(now + BeepDuration)
	return nil
}

// Context returns the generator's context, or nil before the first Beep.
func (g *Generator) Context() *Context {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ctx
}

// ContextsCreated returns how many times the factory produced a context.
func (g *Generator) ContextsCreated() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.created
}

// Close releases the audio context. A later Beep creates a new one.
func (g *Generator) Close() error {
	g.mu.Lock()
	ctx := g.ctx
	g.ctx = nil
	g.mu.Unlock()

	if ctx == nil {
		return nil
	}
	return ctx.Close()
}
