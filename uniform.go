package shaderlive

import (
	"encoding/binary"
	"errors"
	"math"
)

// UniformBufferSize is the size in bytes of the encoded UniformFrame.
const UniformBufferSize = 48

// Byte offsets of the UniformFrame fields. The layout matches a WGSL
// struct of f32, f32, u32, vec2<f32>, vec2<f32>, vec2<f32>, u32.
const (
	offsetTime        = 0
	offsetTimeDelta   = 4
	offsetFrame       = 8
	offsetResolutionW = 16
	offsetResolutionH = 20
	offsetMouseX      = 24
	offsetMouseY      = 28
	offsetClickX      = 32
	offsetClickY      = 36
	offsetButtons     = 40
)

// ErrShortUniform is returned when decoding fewer than UniformBufferSize bytes.
var ErrShortUniform = errors.New("shaderlive: uniform data shorter than 48 bytes")

// UniformFrame is the per-frame record fed to every shader.
type UniformFrame struct {
	// Time is the elapsed time since start or last reset, in seconds.
	Time float32
	// TimeDelta is the time since the previous frame, in seconds.
	TimeDelta float32
	// Frame counts rendered frames; the first frame is 0.
	Frame uint32

	// Width and Height are the surface size in device pixels.
	Width  float32
	Height float32

	Pointer PointerState
}

// Encode writes the frame into dst using the little-endian uniform layout.
// dst must be at least UniformBufferSize bytes; padding bytes are zeroed.
func (f UniformFrame) Encode(dst []byte) {
	_ = dst[UniformBufferSize-1]
	clear(dst[:UniformBufferSize])

	le := binary.LittleEndian
	le.PutUint32(dst[offsetTime:], math.Float32bits(f.Time))
	le.PutUint32(dst[offsetTimeDelta:], math.Float32bits(f.TimeDelta))
	le.PutUint32(dst[offsetFrame:], f.Frame)
	le.PutUint32(dst[offsetResolutionW:], math.Float32bits(f.Width))
	le.PutUint32(dst[offsetResolutionH:], math.Float32bits(f.Height))
	le.PutUint32(dst[offsetMouseX:], math.Float32bits(f.Pointer.X))
	le.PutUint32(dst[offsetMouseY:], math.Float32bits(f.Pointer.Y))
	le.PutUint32(dst[offsetClickX:], math.Float32bits(f.Pointer.ClickX))
	le.PutUint32(dst[offsetClickY:], math.Float32bits(f.Pointer.ClickY))
	le.PutUint32(dst[offsetButtons:], uint32(f.Pointer.Buttons))
}

// Bytes returns a freshly allocated encoding of the frame.
func (f UniformFrame) Bytes() []byte {
	b := make([]byte, UniformBufferSize)
	f.Encode(b)
	return b
}

// DecodeUniformFrame reads a frame previously written by Encode.
func DecodeUniformFrame(src []byte) (UniformFrame, error) {
	if len(src) < UniformBufferSize {
		return UniformFrame{}, ErrShortUniform
	}
	le := binary.LittleEndian
	f32 := func(off int) float32 { return math.Float32frombits(le.Uint32(src[off:])) }
	return UniformFrame{
		Time:      f32(offsetTime),
		TimeDelta: f32(offsetTimeDelta),
		Frame:     le.Uint32(src[offsetFrame:]),
		Width:     f32(offsetResolutionW),
		Height:    f32(offsetResolutionH),
		Pointer: PointerState{
			X:       f32(offsetMouseX),
			Y:       f32(offsetMouseY),
			ClickX:  f32(offsetClickX),
			ClickY:  f32(offsetClickY),
			Buttons: Buttons(le.Uint32(src[offsetButtons:])),
		},
	}, nil
}
