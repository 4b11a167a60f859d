// Package ir defines the typed SSA instruction representation exchanged
// between the shader frontend, the numeric-domain transforms, and the
// code-emission backends.
//
// A Function is an ordered list of Blocks; a Block is an ordered list of
// typed parameters and Instructions ending in exactly one control-transfer
// instruction. Every Value is produced exactly once, either by a block
// parameter or by an instruction result, and is never mutated afterwards.
package ir

import "fmt"

// Type is the scalar type of a Value.
type Type uint8

const (
	TypeInvalid Type = iota
	// F32 is a 32-bit IEEE float, the numeric domain the frontend emits.
	F32
	// I32 is a 32-bit signed integer. Fixed-point Q16.16 values and
	// addresses on 32-bit targets use this type.
	I32
	// I64 is a 64-bit signed integer, used by widened fixed-point
	// multiplication sequences.
	I64
	// B1 is a boolean.
	B1
)

// Ptr is the address type on the 32-bit targets this pipeline emits for.
const Ptr = I32

func (t Type) String() string {
	switch t {
	case F32:
		return "f32"
	case I32:
		return "i32"
	case I64:
		return "i64"
	case B1:
		return "b1"
	default:
		return fmt.Sprintf("Type(%d)", uint8(t))
	}
}

// Bytes returns the in-memory size of the type.
func (t Type) Bytes() int32 {
	switch t {
	case F32, I32:
		return 4
	case I64:
		return 8
	case B1:
		return 1
	default:
		return 0
	}
}

// TypeFromString parses the textual form produced by Type.String.
func TypeFromString(s string) (Type, bool) {
	switch s {
	case "f32":
		return F32, true
	case "i32":
		return I32, true
	case "i64":
		return I64, true
	case "b1":
		return B1, true
	default:
		return TypeInvalid, false
	}
}

// Value is an opaque handle to an SSA value inside one Function. Handles are
// only meaningful relative to the Function that created them.
type Value uint32

func (v Value) String() string { return fmt.Sprintf("v%d", uint32(v)) }

// BlockID identifies a Block by its position in the Function. Block identity
// and order are invariant across transforms.
type BlockID int

func (b BlockID) String() string { return fmt.Sprintf("block%d", int(b)) }

// SlotID identifies an explicit stack slot.
type SlotID int

func (s SlotID) String() string { return fmt.Sprintf("ss%d", int(s)) }

// FuncRef identifies an external function declared inside a Function.
type FuncRef int

func (f FuncRef) String() string { return fmt.Sprintf("fn%d", int(f)) }

// Purpose tags a signature parameter with its ABI role.
type Purpose uint8

const (
	// Normal parameters carry ordinary argument values.
	Normal Purpose = iota
	// StructReturn marks a caller-allocated buffer address through which
	// the callee writes its return values.
	StructReturn
)

// Param is one typed slot in a Signature.
type Param struct {
	Type    Type
	Purpose Purpose
}

// Signature describes the ordered parameters and returns of a function.
type Signature struct {
	Params  []Param
	Returns []Param
}

// HasStructReturn reports whether any parameter carries the StructReturn
// purpose.
func (s Signature) HasStructReturn() bool {
	for _, p := range s.Params {
		if p.Purpose == StructReturn {
			return true
		}
	}
	return false
}

// Equal reports structural equality of two signatures.
func (s Signature) Equal(o Signature) bool {
	if len(s.Params) != len(o.Params) || len(s.Returns) != len(o.Returns) {
		return false
	}
	for i := range s.Params {
		if s.Params[i] != o.Params[i] {
			return false
		}
	}
	for i := range s.Returns {
		if s.Returns[i] != o.Returns[i] {
			return false
		}
	}
	return true
}

// StackSlot is an explicit, fixed-size region of the function frame used for
// array and aggregate storage and for struct-return scratch buffers.
type StackSlot struct {
	Size  int32
	Align int32
}
