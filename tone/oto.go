package tone

import (
	"fmt"
	"sync"

	"github.com/ebitengine/oto/v3"
)

// oto allows a single device context per process; every tone.Context
// attaches its own player to it.
var (
	otoOnce sync.Once
	otoCtx  *oto.Context
	otoErr  error
)

func sharedOtoContext(sampleRate int) (*oto.Context, error) {
	otoOnce.Do(func() {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: 1,
			Format:       oto.FormatFloat32LE,
		})
		if err != nil {
			otoErr = fmt.Errorf("failed to open audio device: %w", err)
			return
		}
		<-ready
		otoCtx = ctx
	})
	return otoCtx, otoErr
}

// NewOtoContext creates a context that plays its graph on the default audio
// device. The device is opened on the first call; later contexts reuse it
// at the same sample rate.
func NewOtoContext() (*Context, error) {
	dev, err := sharedOtoContext(DefaultSampleRate)
	if err != nil {
		return nil, err
	}

	c := NewContext(DefaultSampleRate)
	player := dev.NewPlayer(c)
	player.Play()
	c.output = player
	return c, nil
}
