package builtins

import (
	"math"

	"github.com/lightpixel/lpsl/internal/fixed"
)

// Vec3 is a fixed-point 3-vector used by the Q16.16 builtin bodies.
type Vec3 struct {
	X, Y, Z fixed.Fixed
}

// Dot is the fixed-point dot product.
func (v Vec3) Dot(o Vec3) fixed.Fixed {
	return v.X.Mul(o.X).Add(v.Y.Mul(o.Y)).Add(v.Z.Mul(o.Z))
}

// Length is sqrt(v . v) using the shared approximate square root.
func (v Vec3) Length() fixed.Fixed {
	return v.Dot(v).Sqrt()
}

// Normalize scales the vector to unit length with the reciprocal-based
// division. A zero-length vector normalizes to zero.
func (v Vec3) Normalize() Vec3 {
	l := v.Length()
	if l == 0 {
		return Vec3{}
	}
	return Vec3{X: v.X.Div(l), Y: v.Y.Div(l), Z: v.Z.Div(l)}
}

func norm3FloatImpl(args []uint32) []uint32 {
	x := wordFloat(args[0])
	y := wordFloat(args[1])
	z := wordFloat(args[2])
	l := float32(math.Sqrt(float64(x*x + y*y + z*z)))
	if l == 0 {
		return []uint32{0, 0, 0}
	}
	return []uint32{floatWord(x / l), floatWord(y / l), floatWord(z / l)}
}

func norm3FixedImpl(args []uint32) []uint32 {
	v := Vec3{X: wordFixed(args[0]), Y: wordFixed(args[1]), Z: wordFixed(args[2])}
	n := v.Normalize()
	return []uint32{fixedWord(n.X), fixedWord(n.Y), fixedWord(n.Z)}
}
