package fixed

import "fmt"

// Format identifies a fixed-point encoding.
type Format int

const (
	// Fixed16x16 is the fully specified Q16.16 encoding implemented by this
	// package: a 32-bit signed integer with 16 fractional bits.
	Fixed16x16 Format = iota

	// Fixed32x32 is a placeholder for a wider encoding. It is declared so
	// call sites can name it, but selecting it is always an error; nothing
	// silently falls back to Fixed16x16.
	Fixed32x32
)

func (f Format) String() string {
	switch f {
	case Fixed16x16:
		return "fixed16x16"
	case Fixed32x32:
		return "fixed32x32"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// Supported reports whether the format is implemented.
func (f Format) Supported() bool {
	return f == Fixed16x16
}

// FracBits returns the number of fractional bits in the encoding.
func (f Format) FracBits() int {
	switch f {
	case Fixed16x16:
		return 16
	case Fixed32x32:
		return 32
	default:
		return 0
	}
}

// Bits returns the total width of the encoding in bits.
func (f Format) Bits() int {
	switch f {
	case Fixed16x16:
		return 32
	case Fixed32x32:
		return 64
	default:
		return 0
	}
}
