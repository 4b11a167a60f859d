// Package transform rewrites instruction-IR functions from one numeric
// domain to another.
//
// The driver owns the generic rewrite shape: create every new block in
// original order first, then walk instructions in original order and
// dispatch each to the transform. A rewrite either succeeds completely,
// returning a fully rewritten function, or fails atomically with one
// descriptive error; there is no partial output.
package transform

import (
	"fmt"

	"github.com/lightpixel/lpsl/internal/ir"
)

// Transform is one instruction-level rewrite: the identity copy used as the
// structural reference, or the fixed-point numeric-domain conversion.
type Transform interface {
	Name() string

	// Signature rewrites a function or callee signature into the target
	// domain.
	Signature(sig ir.Signature) ir.Signature

	// ValueType rewrites the type of a block parameter or intermediate
	// value.
	ValueType(t ir.Type) ir.Type

	// Instruction rewrites one instruction into the function under
	// construction. Implementations read operands only through the
	// rewriter's map lookups and bind every old result to a new value.
	Instruction(rw *Rewriter, in *ir.Instr) error
}

// Rewriter is the driver's view of one function rewrite handed to the
// transform's instruction hook.
type Rewriter struct {
	Old *ir.Function
	New *ir.Function
	Ctx *Context

	cur     ir.BlockID
	externs map[string]ir.FuncRef
	mod     *moduleState
}

// Emit appends an instruction to the block currently being rewritten and
// returns its result values.
func (rw *Rewriter) Emit(in ir.Instr) []ir.Value {
	return rw.New.Append(rw.cur, in)
}

// AddSlot allocates a scratch stack slot in the new function.
func (rw *Rewriter) AddSlot(size, align int32) ir.SlotID {
	return rw.New.AddSlot(size, align)
}

// Bind records old-to-new result value correspondences.
func (rw *Rewriter) Bind(old, new []ir.Value) error {
	if len(old) != len(new) {
		return fmt.Errorf("binding %d old results to %d new", len(old), len(new))
	}
	for i := range old {
		rw.Ctx.BindValue(old[i], new[i])
	}
	return nil
}

// Alias makes an old result refer to an existing new value without emitting
// anything, used when an instruction becomes a no-op in the target domain.
func (rw *Rewriter) Alias(old, new ir.Value) {
	rw.Ctx.BindValue(old, new)
}

// Extern declares (or reuses) an external callee in the new function.
func (rw *Rewriter) Extern(name string, sig ir.Signature, symbol string) ir.FuncRef {
	if ref, ok := rw.externs[symbol]; ok {
		return ref
	}
	ref := rw.New.DeclareExtern(name, sig, symbol)
	rw.externs[symbol] = ref
	return ref
}

// Sibling resolves a callee name against the module being transformed, when
// this rewrite is part of a module pass. The bool is false for standalone
// function rewrites.
func (rw *Rewriter) Sibling(name string) (*ir.Function, bool) {
	if rw.mod == nil {
		return nil, false
	}
	fn := rw.mod.source.Lookup(name)
	return fn, fn != nil
}

// Apply rewrites one function. The returned function preserves block count
// and order, per-block parameter arity, and the stack-slot layout of the
// input; on any converter failure the whole rewrite is abandoned and only
// the error is returned.
func Apply(t Transform, old *ir.Function) (*ir.Function, error) {
	return apply(t, old, nil)
}

func apply(t Transform, old *ir.Function, mod *moduleState) (*ir.Function, error) {
	newFn := ir.NewFunction(old.Name, t.Signature(old.Sig))
	ctx := newContext()

	// Stack slots first: every old slot gets a same-size, same-alignment
	// counterpart.
	for i, slot := range old.Slots {
		ctx.slots[ir.SlotID(i)] = newFn.AddSlot(slot.Size, slot.Align)
	}

	// Then every block, in original order, before touching any instruction
	// body. Branch targets resolve through the block map regardless of
	// whether they point forwards or backwards.
	for i, blk := range old.Blocks {
		paramTypes := make([]ir.Type, len(blk.Params))
		for j, p := range blk.Params {
			paramTypes[j] = t.ValueType(old.ValueType(p))
		}
		nb := newFn.AddBlock(paramTypes...)
		ctx.blocks[ir.BlockID(i)] = nb
		for j, p := range blk.Params {
			ctx.BindValue(p, newFn.Block(nb).Params[j])
		}
	}

	rw := &Rewriter{
		Old:     old,
		New:     newFn,
		Ctx:     ctx,
		externs: make(map[string]ir.FuncRef),
		mod:     mod,
	}

	for i, blk := range old.Blocks {
		rw.cur = ctx.Block(ir.BlockID(i))
		for j := range blk.Instrs {
			if err := t.Instruction(rw, &blk.Instrs[j]); err != nil {
				return nil, fmt.Errorf("%s transform: %w", t.Name(), err)
			}
		}
	}

	if err := newFn.Validate(); err != nil {
		return nil, fmt.Errorf("%s transform produced invalid IR: %w", t.Name(), err)
	}
	return newFn, nil
}

type moduleState struct {
	source *ir.Module
}

// ApplyModule rewrites every function in a module. Calls between sibling
// functions are redirected to the rewritten callees; any per-function
// failure aborts the whole module pass.
func ApplyModule(t Transform, m *ir.Module) (*ir.Module, error) {
	return ApplyModuleObserved(t, m, nil)
}

// ApplyModuleObserved is ApplyModule with a per-function completion hook,
// for progress reporting over large modules. A nil hook is ignored.
func ApplyModuleObserved(t Transform, m *ir.Module, done func(*ir.Function)) (*ir.Module, error) {
	mod := &moduleState{source: m}
	out := &ir.Module{}
	for _, fn := range m.Funcs {
		newFn, err := apply(t, fn, mod)
		if err != nil {
			return nil, err
		}
		out.Funcs = append(out.Funcs, newFn)
		if done != nil {
			done(newFn)
		}
	}
	return out, nil
}
