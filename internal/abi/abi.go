// Package abi decides how multi-value returns travel for a given target:
// in return registers, or through a caller-allocated struct-return buffer.
//
// The decision must reproduce, bit for bit, the calling convention the
// native toolchain chose when it compiled the builtin helpers, because
// generated code calls those helpers directly by address with no adapter.
// Getting it wrong is silent memory corruption, not a visible fault.
package abi

import (
	"fmt"

	"github.com/lightpixel/lpsl/internal/ir"
)

// Convention says where a callee's return values live after the call.
type Convention uint8

const (
	// ReturnInRegisters: one ordinary call result per return slot.
	ReturnInRegisters Convention = iota
	// ReturnViaBuffer: the caller allocates a scratch buffer, passes its
	// address as the struct-return parameter, and reads each value back at
	// index * element size.
	ReturnViaBuffer
)

func (c Convention) String() string {
	if c == ReturnViaBuffer {
		return "struct-return"
	}
	return "registers"
}

// Target describes the calling-convention facts of one compilation target.
type Target struct {
	// Name identifies the target, for example "embedded-riscv32".
	Name string `yaml:"name"`
	// PointerBytes is the width of an address.
	PointerBytes int `yaml:"pointer_bytes"`
	// ElementBytes is the size of one scalar return slot in a struct-return
	// buffer.
	ElementBytes int `yaml:"element_bytes"`
	// ReturnRegisters is how many scalar return values fit in registers
	// before the convention switches to a struct-return buffer.
	ReturnRegisters int `yaml:"return_registers"`
}

func (t *Target) validate() error {
	if t.Name == "" {
		return fmt.Errorf("target missing name")
	}
	if t.PointerBytes != 4 && t.PointerBytes != 8 {
		return fmt.Errorf("target %q: pointer_bytes must be 4 or 8, got %d", t.Name, t.PointerBytes)
	}
	if t.ElementBytes <= 0 {
		return fmt.Errorf("target %q: element_bytes must be positive", t.Name)
	}
	if t.ReturnRegisters < 1 {
		return fmt.Errorf("target %q: return_registers must be at least 1", t.Name)
	}
	return nil
}

// CallPlan is the resolved call sequence for one callee signature on one
// target.
type CallPlan struct {
	Convention Convention
	// ReturnCount is the number of logical return values.
	ReturnCount int
	// BufferSize and BufferAlign describe the scratch buffer for
	// ReturnViaBuffer plans.
	BufferSize  int32
	BufferAlign int32
	// Offsets[i] is where return i is read back from the buffer.
	Offsets []int32
}

// Resolve inspects a callee's signature and decides the return convention.
// A signature that already carries a struct-return parameter keeps it; an
// unresolved multi-return beyond the target's register budget gains one.
// The decision is a pure function of (signature, target).
func (t *Target) Resolve(sig ir.Signature) CallPlan {
	n := len(sig.Returns)
	if !sig.HasStructReturn() && n <= t.ReturnRegisters {
		return CallPlan{Convention: ReturnInRegisters, ReturnCount: n}
	}

	plan := CallPlan{
		Convention:  ReturnViaBuffer,
		ReturnCount: n,
		BufferSize:  int32(n * t.ElementBytes),
		BufferAlign: int32(t.ElementBytes),
		Offsets:     make([]int32, n),
	}
	for i := range plan.Offsets {
		plan.Offsets[i] = int32(i * t.ElementBytes)
	}
	return plan
}

// ConcreteSignature rewrites a logical callee signature into the one the
// compiled symbol actually exposes under the plan: for struct-return plans
// the returns move into a leading buffer-address parameter.
func (t *Target) ConcreteSignature(sig ir.Signature) ir.Signature {
	plan := t.Resolve(sig)
	if plan.Convention == ReturnInRegisters || sig.HasStructReturn() {
		return sig
	}
	out := ir.Signature{
		Params: append([]ir.Param{{Type: ir.Ptr, Purpose: ir.StructReturn}}, sig.Params...),
	}
	return out
}

// Emitter is the slice of a function-under-construction that BuildCall
// needs: instruction emission and scratch slot allocation.
type Emitter interface {
	Emit(in ir.Instr) []ir.Value
	AddSlot(size, align int32) ir.SlotID
}

// BuildCall emits the call sequence for a callee whose concrete signature
// was resolved into plan. It returns one value per logical return slot.
//
// On the struct-return path the sequence is: allocate the scratch slot, take
// its address, pass that address as the struct-return argument, call, then
// load each return back at its offset. On the register path it is a single
// call instruction.
func BuildCall(e Emitter, plan CallPlan, callee ir.FuncRef, retType ir.Type, args []ir.Value) ([]ir.Value, error) {
	if plan.Convention == ReturnInRegisters {
		results := e.Emit(ir.Instr{Op: ir.OpCall, Callee: callee, Args: args})
		if len(results) != plan.ReturnCount {
			return nil, fmt.Errorf("callee %v produced %d results, plan expects %d",
				callee, len(results), plan.ReturnCount)
		}
		return results, nil
	}

	slot := e.AddSlot(plan.BufferSize, plan.BufferAlign)
	addr := e.Emit(ir.Instr{Op: ir.OpStackAddr, Type: ir.Ptr, Slot: slot})[0]

	callArgs := append([]ir.Value{addr}, args...)
	e.Emit(ir.Instr{Op: ir.OpCall, Callee: callee, Args: callArgs})

	results := make([]ir.Value, plan.ReturnCount)
	for i, off := range plan.Offsets {
		results[i] = e.Emit(ir.Instr{Op: ir.OpLoad, Type: retType, Args: []ir.Value{addr}, Offset: off})[0]
	}
	return results, nil
}
