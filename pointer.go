package shaderlive

import "strings"

// Buttons is the pointer button bitmask written to the uniform record.
// Bit values match gpucontext.Buttons.
type Buttons uint32

const (
	ButtonPrimary   Buttons = 1 << 0
	ButtonSecondary Buttons = 1 << 1
	ButtonMiddle    Buttons = 1 << 2
)

// Has reports whether all bits of b are set.
func (m Buttons) Has(b Buttons) bool {
	return m&b == b
}

// String lists the pressed buttons, e.g. "primary|middle".
func (m Buttons) String() string {
	if m == 0 {
		return "none"
	}
	var parts []string
	if m.Has(ButtonPrimary) {
		parts = append(parts, "primary")
	}
	if m.Has(ButtonSecondary) {
		parts = append(parts, "secondary")
	}
	if m.Has(ButtonMiddle) {
		parts = append(parts, "middle")
	}
	if rest := m &^ (ButtonPrimary | ButtonSecondary | ButtonMiddle); rest != 0 || len(parts) == 0 {
		parts = append(parts, "other")
	}
	return strings.Join(parts, "|")
}

// PointerState is the pointer portion of the uniform record.
//
// Positions are normalized to the surface with the origin at the bottom
// left. They are not clamped, so a pointer outside the surface produces
// values below 0 or above 1.
type PointerState struct {
	X, Y           float32
	ClickX, ClickY float32
	Buttons        Buttons
}

// Normalize converts a surface-space position (origin top left, pixels)
// into the uniform convention (origin bottom left, 0..1).
// A zero-sized surface yields (0, 0).
func Normalize(x, y, width, height float64) (float32, float32) {
	if width <= 0 || height <= 0 {
		return 0, 0
	}
	return float32(x / width), float32(1 - y/height)
}
