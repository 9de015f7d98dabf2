package main

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
)

// Tray icons, one filled circle per agent state.
var (
	iconIdle    = circleIcon(color.NRGBA{0x9e, 0x9e, 0x9e, 0xff})
	iconRunning = circleIcon(color.NRGBA{0x2e, 0x7d, 0x32, 0xff})
	iconRead    = circleIcon(color.NRGBA{0x15, 0x65, 0xc0, 0xff})
	iconError   = circleIcon(color.NRGBA{0xc6, 0x28, 0x28, 0xff})
)

func circleIcon(c color.NRGBA) []byte {
	const size = 22
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	center, radius := size/2, size/2-2
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			dx, dy := x-center, y-center
			if dx*dx+dy*dy <= radius*radius {
				img.SetNRGBA(x, y, c)
			}
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
