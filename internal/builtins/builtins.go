// Package builtins is the build-time catalog of shader builtin routines.
//
// Every numeric-variant-dependent builtin ships as a pair: one Float
// implementation for the host preview target and one FixedPoint (Q16.16)
// implementation for FPU-less embedded targets. Registry construction
// validates the pairing once; after that, lookup is a pure read.
package builtins

import (
	"fmt"
	"strings"

	"github.com/lightpixel/lpsl/internal/ir"
)

// Variant tags which numeric domain an implementation belongs to.
type Variant uint8

const (
	VariantFloat Variant = iota
	VariantFixedPoint
)

func (v Variant) String() string {
	switch v {
	case VariantFloat:
		return "float"
	case VariantFixedPoint:
		return "fixedpoint"
	default:
		return fmt.Sprintf("Variant(%d)", uint8(v))
	}
}

// Type is the logical (source-level) type of a builtin parameter or return.
// Vectors flatten to scalars in the compiled signature.
type Type uint8

const (
	TFloat Type = iota
	TUint
	TVec2
	TVec3
)

func (t Type) String() string {
	switch t {
	case TFloat:
		return "float"
	case TUint:
		return "uint"
	case TVec2:
		return "vec2"
	case TVec3:
		return "vec3"
	default:
		return fmt.Sprintf("Type(%d)", uint8(t))
	}
}

// ScalarCount is the number of 32-bit scalars the type flattens to.
func (t Type) ScalarCount() int {
	switch t {
	case TVec2:
		return 2
	case TVec3:
		return 3
	default:
		return 1
	}
}

// Qualifier is a parameter passing qualifier in the logical signature.
type Qualifier uint8

const (
	QualIn Qualifier = iota
	QualOut
)

func (q Qualifier) String() string {
	if q == QualOut {
		return "out"
	}
	return "in"
}

// Param is one logical parameter: a type plus its qualifier. Parameter names
// are not part of the logical signature.
type Param struct {
	Type Type
	Qual Qualifier
}

// Impl is the native implementation behind a builtin symbol. Arguments and
// results are flattened 32-bit words: IEEE float bits for the Float variant,
// Q16.16 bits for the FixedPoint variant, raw bits for integers. This mirrors
// the register-level view the generated code has of the helper.
type Impl func(args []uint32) []uint32

// Decl is one discovered builtin implementation: a logical signature, a
// numeric variant tag, and the symbol plus code behind it.
type Decl struct {
	// Name is the source-level function name, for example "lpfx_hsv2rgb".
	Name string
	// Params and Return form the logical signature. The variant tag is
	// excluded from the signature for pairing purposes.
	Params []Param
	Return Type
	// NumericDependent marks the declaration as needing a Float/FixedPoint
	// pair. Integer-only builtins leave it false and ship one implementation.
	NumericDependent bool
	// Variant is meaningful only when NumericDependent is set.
	Variant Variant
	// Symbol is the linker-level name of the compiled implementation.
	Symbol string
	// Site names where the declaration lives, for duplicate diagnostics.
	Site string

	Impl Impl
}

func (d *Decl) String() string {
	parts := make([]string, len(d.Params))
	for i, p := range d.Params {
		if p.Qual == QualOut {
			parts[i] = "out " + p.Type.String()
		} else {
			parts[i] = p.Type.String()
		}
	}
	return fmt.Sprintf("%s %s(%s)", d.Return, d.Name, strings.Join(parts, ", "))
}

// ConcreteSignature flattens the logical signature into the instruction-IR
// signature the compiled symbol exposes, with floats re-typed per variant.
func ConcreteSignature(params []Param, ret Type, v Variant) ir.Signature {
	scalar := func(t Type) ir.Type {
		switch t {
		case TUint:
			return ir.I32
		default:
			if v == VariantFixedPoint {
				return ir.I32
			}
			return ir.F32
		}
	}
	var sig ir.Signature
	for _, p := range params {
		for range p.Type.ScalarCount() {
			sig.Params = append(sig.Params, ir.Param{Type: scalar(p.Type)})
		}
	}
	for range ret.ScalarCount() {
		sig.Returns = append(sig.Returns, ir.Param{Type: scalar(ret)})
	}
	return sig
}
