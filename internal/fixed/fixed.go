// Package fixed implements the Q16.16 fixed-point numeric domain used by the
// shader transform pipeline.
//
// A Fixed value is a 32-bit signed integer holding a real number scaled by
// 65536. The arithmetic here is deliberately approximate: division and square
// root use reciprocal multiplication so that 32-bit targets without hardware
// divide or FPU can run the same algorithms. Generated code and natively
// compiled helpers must agree bit-for-bit with these routines, so a more
// accurate replacement is a regression, not an improvement.
package fixed

import "math"

// Fixed is a Q16.16 fixed-point value: 16 integer bits, 16 fractional bits.
type Fixed int32

const (
	// Shift is the number of fractional bits.
	Shift = 16
	// Scale is the value of 1.0 in the Q16.16 encoding.
	Scale = 1 << Shift

	// Max is the largest representable value, roughly 32767.99998.
	Max Fixed = math.MaxInt32
	// Min is the smallest representable value, exactly -32768.0.
	Min Fixed = math.MinInt32

	// One is 1.0 in the Q16.16 encoding.
	One Fixed = Scale
	// Epsilon is the smallest positive step, 1/65536.
	Epsilon Fixed = 1
)

// FromFloat32 converts a float to Q16.16, rounding to the nearest
// representable value. Out-of-range inputs saturate to Max or Min instead of
// wrapping.
func FromFloat32(f float32) Fixed {
	v := math.Round(float64(f) * Scale)
	switch {
	case v > float64(Max):
		return Max
	case v < float64(Min):
		return Min
	}
	return Fixed(v)
}

// Float32 converts back to a float. The result differs from the value the
// Fixed was built from by less than 1/65536 for in-range inputs.
func (x Fixed) Float32() float32 {
	return float32(x) / Scale
}

// FromInt converts an integer to Q16.16 by shifting in sixteen fractional
// zero bits.
func FromInt(i int32) Fixed {
	return Fixed(i << Shift)
}

// Int truncates toward negative infinity, not toward zero: the conversion is
// an arithmetic right shift, so Fixed(-1.5).Int() == -2.
func (x Fixed) Int() int32 {
	return int32(x >> Shift)
}

// Bits returns the raw integer encoding.
func (x Fixed) Bits() int32 { return int32(x) }

// FromBits reinterprets a raw integer encoding as a Fixed value.
func FromBits(bits int32) Fixed { return Fixed(bits) }

// Add is plain integer addition; both operands share the same scale so no
// rescale is needed. Overflow wraps like the underlying int32.
func (x Fixed) Add(y Fixed) Fixed { return x + y }

// Sub is plain integer subtraction.
func (x Fixed) Sub(y Fixed) Fixed { return x - y }

// Mul widens both operands to 64 bits, multiplies, and shifts the doubled
// scale back out before narrowing.
func (x Fixed) Mul(y Fixed) Fixed {
	return Fixed(int32((int64(x) * int64(y)) >> Shift))
}

// Div divides using reciprocal multiplication rather than a 64-by-64 divide:
//
//	recip    = 0x8000_0000 / |divisor|        (one 32-bit unsigned division)
//	quotient = (|dividend| * recip * 2) >> 16 (64-bit multiplies)
//
// with the sign applied as the XOR of the operand signs. Typical error is
// around 0.01%, degrading to 2-3% near saturation or for very small divisors.
// That degradation is part of the contract. A zero divisor behaves as the
// smallest representable positive step.
func (x Fixed) Div(y Fixed) Fixed {
	negative := (x ^ y) < 0

	dividend := uint32(abs32(int32(x)))
	divisor := uint32(abs32(int32(y)))
	if divisor == 0 {
		divisor = 1
	}

	recip := uint64(0x8000_0000 / divisor)
	quotient := (uint64(dividend) * recip * 2) >> Shift

	out := Fixed(int32(uint32(quotient)))
	if negative {
		out = -out
	}
	return out
}

// Sqrt computes the square root with Newton-Raphson on the value pre-scaled
// by an extra sixteen bits, using the same reciprocal trick as Div for the
// per-iteration division. Non-positive inputs return zero; that is a silent,
// permissive policy, never an error.
func (x Fixed) Sqrt() Fixed {
	if x <= 0 {
		return 0
	}

	// x_scaled = x << 16, kept in 64 bits for precision.
	xScaled := int64(x) << Shift

	guess := xScaled >> 9
	if guess < 1 {
		guess = 1
	}

	// Six iterations of guess = (guess + x_scaled/guess) >> 1.
	for range 6 {
		guess = (guess + recipDiv64(xScaled, guess)) >> 1
		if guess == 0 {
			guess = 1
		}
	}

	// Rescale the converged guess back to Q16.16.
	return Fixed(int32(guess >> 8))
}

// recipDiv64 approximates x/guess in the sqrt iteration. The guess is
// truncated to 32 bits for the reciprocal lookup and the multiplies saturate,
// both deliberate precision losses shared with the embedded helper.
func recipDiv64(x, guess int64) int64 {
	g := guess
	if g < 0 {
		g = -g
	}
	if g > math.MaxInt32 {
		g = math.MaxInt32
	}
	ug := uint32(g)
	if ug == 0 {
		ug = 1
	}
	recip := uint64(0x8000_0000 / ug)

	xa := uint64(x)
	if x < 0 {
		xa = uint64(-x)
	}
	quotient := int64(satMul64(satMul64(xa, recip), 2) >> Shift)

	if (x < 0) != (guess < 0) {
		quotient = -quotient
	}
	return quotient
}

func satMul64(a, b uint64) uint64 {
	if a == 0 || b == 0 {
		return 0
	}
	if a > math.MaxUint64/b {
		return math.MaxUint64
	}
	return a * b
}

// Neg negates the raw encoding.
func (x Fixed) Neg() Fixed { return -x }

// Abs returns the magnitude of the raw encoding. Fixed-point ordering equals
// integer ordering, so no rescale is involved.
func (x Fixed) Abs() Fixed {
	if x < 0 {
		return -x
	}
	return x
}

// Min returns the smaller operand by integer comparison.
func (x Fixed) Min(y Fixed) Fixed {
	if y < x {
		return y
	}
	return x
}

// Max returns the larger operand by integer comparison.
func (x Fixed) Max(y Fixed) Fixed {
	if y > x {
		return y
	}
	return x
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
