package builtins

import (
	"math"

	"github.com/lightpixel/lpsl/internal/fixed"
)

// Color space conversions, after the lygia shader library forms. Each routine
// exists twice: the float body runs on the host preview, the fixed body on
// the embedded target, and both must track each other closely enough that
// the two renders agree visually.

func floatWord(f float32) uint32 { return math.Float32bits(f) }

func wordFloat(w uint32) float32 { return math.Float32frombits(w) }

func fixedWord(x fixed.Fixed) uint32 { return uint32(x.Bits()) }

func wordFixed(w uint32) fixed.Fixed { return fixed.FromBits(int32(w)) }

func saturate32(f float32) float32 {
	return min(max(f, 0), 1)
}

func saturateQ(x fixed.Fixed) fixed.Fixed {
	return x.Max(0).Min(fixed.One)
}

// hue2rgb32 maps a hue in [0,1] to RGB:
//
//	R = |h*6 - 3| - 1,  G = 2 - |h*6 - 2|,  B = 2 - |h*6 - 4|
//
// all saturated to [0,1].
func hue2rgb32(h float32) (r, g, b float32) {
	h6 := h * 6
	r = saturate32(abs32(h6-3) - 1)
	g = saturate32(2 - abs32(h6-2))
	b = saturate32(2 - abs32(h6-4))
	return r, g, b
}

func abs32(f float32) float32 {
	if f < 0 {
		return -f
	}
	return f
}

func hue2rgbQ(h fixed.Fixed) (r, g, b fixed.Fixed) {
	const (
		two   = 2 * fixed.One
		three = 3 * fixed.One
		four  = 4 * fixed.One
		six   = 6 * fixed.One
	)
	h6 := h.Mul(six)
	r = saturateQ(h6.Sub(three).Abs().Sub(fixed.One))
	g = saturateQ(two.Sub(h6.Sub(two).Abs()))
	b = saturateQ(two.Sub(h6.Sub(four).Abs()))
	return r, g, b
}

// hsv2rgb32 converts HSV to RGB: ((hue2rgb(h) - 1) * s + 1) * v.
func hsv2rgb32(h, s, v float32) (r, g, b float32) {
	hr, hg, hb := hue2rgb32(h)
	r = ((hr-1)*s + 1) * v
	g = ((hg-1)*s + 1) * v
	b = ((hb-1)*s + 1) * v
	return r, g, b
}

func hsv2rgbQ(h, s, v fixed.Fixed) (r, g, b fixed.Fixed) {
	hr, hg, hb := hue2rgbQ(h)
	r = hr.Sub(fixed.One).Mul(s).Add(fixed.One).Mul(v)
	g = hg.Sub(fixed.One).Mul(s).Add(fixed.One).Mul(v)
	b = hb.Sub(fixed.One).Mul(s).Add(fixed.One).Mul(v)
	return r, g, b
}

// rgb2hsv32 is Sam Hocevar's branch-reduced RGB to HSV conversion.
func rgb2hsv32(r, g, b float32) (h, s, v float32) {
	const eps = 1.0e-10

	var px, py, pz, pw float32
	if g < b {
		px, py, pz, pw = b, g, -1, 2.0/3.0
	} else {
		px, py, pz, pw = g, b, 0, -1.0/3.0
	}

	var qx, qy, qz, qw float32
	if r < px {
		qx, qy, qz, qw = px, py, pw, r
	} else {
		qx, qy, qz, qw = r, py, pz, px
	}

	d := qx - min(qw, qy)
	h = abs32(qz + (qw-qy)/(6*d+eps))
	s = d / (qx + eps)
	v = qx
	return h, s, v
}

func rgb2hsvQ(r, g, b fixed.Fixed) (h, s, v fixed.Fixed) {
	// Epsilon is one Q16.16 step; the float epsilon is below the format's
	// resolution.
	const (
		eps = fixed.Epsilon
		six = 6 * fixed.One
		kY  = fixed.Fixed(-21845) // -1/3
		kZ  = fixed.Fixed(43690)  // 2/3
		kW  = -fixed.One
	)

	var px, py, pz, pw fixed.Fixed
	if g < b {
		px, py, pz, pw = b, g, kW, kZ
	} else {
		px, py, pz, pw = g, b, 0, kY
	}

	var qx, qy, qz, qw fixed.Fixed
	if r < px {
		qx, qy, qz, qw = px, py, pw, r
	} else {
		qx, qy, qz, qw = r, py, pz, px
	}

	d := qx.Sub(qw.Min(qy))
	h = qz.Add(qw.Sub(qy).Div(six.Mul(d).Add(eps))).Abs()
	s = d.Div(qx.Add(eps))
	v = qx
	return h, s, v
}

// Register-level wrappers.

func hue2rgbFloatImpl(args []uint32) []uint32 {
	r, g, b := hue2rgb32(wordFloat(args[0]))
	return []uint32{floatWord(r), floatWord(g), floatWord(b)}
}

func hue2rgbFixedImpl(args []uint32) []uint32 {
	r, g, b := hue2rgbQ(wordFixed(args[0]))
	return []uint32{fixedWord(r), fixedWord(g), fixedWord(b)}
}

func hsv2rgbFloatImpl(args []uint32) []uint32 {
	r, g, b := hsv2rgb32(wordFloat(args[0]), wordFloat(args[1]), wordFloat(args[2]))
	return []uint32{floatWord(r), floatWord(g), floatWord(b)}
}

func hsv2rgbFixedImpl(args []uint32) []uint32 {
	r, g, b := hsv2rgbQ(wordFixed(args[0]), wordFixed(args[1]), wordFixed(args[2]))
	return []uint32{fixedWord(r), fixedWord(g), fixedWord(b)}
}

func rgb2hsvFloatImpl(args []uint32) []uint32 {
	h, s, v := rgb2hsv32(wordFloat(args[0]), wordFloat(args[1]), wordFloat(args[2]))
	return []uint32{floatWord(h), floatWord(s), floatWord(v)}
}

func rgb2hsvFixedImpl(args []uint32) []uint32 {
	h, s, v := rgb2hsvQ(wordFixed(args[0]), wordFixed(args[1]), wordFixed(args[2]))
	return []uint32{fixedWord(h), fixedWord(s), fixedWord(v)}
}
