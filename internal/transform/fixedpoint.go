package transform

import (
	"fmt"

	"github.com/lightpixel/lpsl/internal/abi"
	"github.com/lightpixel/lpsl/internal/builtins"
	"github.com/lightpixel/lpsl/internal/fixed"
	"github.com/lightpixel/lpsl/internal/ir"
)

// FixedPointConfig selects the numeric format, builtin catalog, and call
// target for a fixed-point rewrite. Zero fields take the defaults.
type FixedPointConfig struct {
	Format   fixed.Format
	Registry *builtins.Registry
	Target   *abi.Target
}

// FixedPoint rewrites float instructions into Q16.16 integer equivalents.
// Float values become i32 holding scaled fixed-point bits; float arithmetic
// becomes integer arithmetic, widened through i64 where products need the
// extra range; division and square root become calls to natively compiled
// runtime helpers. Integer, boolean, memory, and control instructions pass
// through with operands remapped.
type FixedPoint struct {
	format   fixed.Format
	registry *builtins.Registry
	target   *abi.Target
}

// NewFixedPoint validates the configuration and builds the transform.
// Registry validation errors surface here, before any function is touched.
func NewFixedPoint(cfg FixedPointConfig) (*FixedPoint, error) {
	if !cfg.Format.Supported() {
		return nil, fmt.Errorf("fixed-point format %s is not implemented", cfg.Format)
	}
	reg := cfg.Registry
	if reg == nil {
		var err error
		if reg, err = builtins.Default(); err != nil {
			return nil, fmt.Errorf("builtin registry: %w", err)
		}
	}
	target := cfg.Target
	if target == nil {
		var err error
		if target, err = abi.HostTarget(); err != nil {
			return nil, fmt.Errorf("abi target: %w", err)
		}
	}
	return &FixedPoint{format: cfg.Format, registry: reg, target: target}, nil
}

func (fp *FixedPoint) Name() string { return "fixedpoint" }

func (fp *FixedPoint) ValueType(t ir.Type) ir.Type {
	if t == ir.F32 {
		return ir.I32
	}
	return t
}

func (fp *FixedPoint) Signature(sig ir.Signature) ir.Signature {
	out := ir.Signature{
		Params:  make([]ir.Param, len(sig.Params)),
		Returns: make([]ir.Param, len(sig.Returns)),
	}
	for i, p := range sig.Params {
		out.Params[i] = ir.Param{Type: fp.ValueType(p.Type), Purpose: p.Purpose}
	}
	for i, r := range sig.Returns {
		out.Returns[i] = ir.Param{Type: fp.ValueType(r.Type), Purpose: r.Purpose}
	}
	return out
}

func (fp *FixedPoint) Instruction(rw *Rewriter, in *ir.Instr) error {
	switch in.Op {
	case ir.OpFconst:
		v := rw.Emit(ir.Instr{
			Op:   ir.OpIconst,
			Type: ir.I32,
			IImm: int64(fixed.FromFloat32(in.FImm)),
		})
		return rw.Bind(in.Results, v)

	case ir.OpFadd, ir.OpFsub, ir.OpFneg, ir.OpFabs, ir.OpFmin, ir.OpFmax:
		v := rw.Emit(ir.Instr{
			Op:   fixedIntOp(in.Op),
			Type: ir.I32,
			Args: rw.Ctx.Values(in.Args),
		})
		return rw.Bind(in.Results, v)

	case ir.OpFmul:
		return fp.convertMul(rw, in)

	case ir.OpFdiv:
		return fp.convertHelperCall(rw, in, builtins.SymbolFixedDiv, 2)

	case ir.OpFsqrt:
		return fp.convertHelperCall(rw, in, builtins.SymbolFixedSqrt, 1)

	case ir.OpFcmp:
		// Q16.16 is order-preserving: signed integer comparison of the raw
		// bits agrees with the float comparison it replaces.
		v := rw.Emit(ir.Instr{
			Op:   ir.OpIcmp,
			Type: ir.B1,
			Pred: in.Pred,
			Args: rw.Ctx.Values(in.Args),
		})
		return rw.Bind(in.Results, v)

	case ir.OpFcvtToInt:
		// Arithmetic right shift, so the conversion floors. -0.5 becomes -1
		// here where float truncation would give 0.
		sh := rw.Emit(ir.Instr{Op: ir.OpIconst, Type: ir.I32, IImm: fixed.Shift})
		v := rw.Emit(ir.Instr{
			Op:   ir.OpSshr,
			Type: ir.I32,
			Args: []ir.Value{rw.Ctx.Value(in.Args[0]), sh[0]},
		})
		return rw.Bind(in.Results, v)

	case ir.OpFcvtFromInt:
		sh := rw.Emit(ir.Instr{Op: ir.OpIconst, Type: ir.I32, IImm: fixed.Shift})
		v := rw.Emit(ir.Instr{
			Op:   ir.OpIshl,
			Type: ir.I32,
			Args: []ir.Value{rw.Ctx.Value(in.Args[0]), sh[0]},
		})
		return rw.Bind(in.Results, v)

	case ir.OpFixedFromFloat, ir.OpFixedToFloat:
		// The domain boundary disappears: both sides are already Q16.16
		// bits, so the conversion is a pure rename.
		rw.Alias(in.Results[0], rw.Ctx.Value(in.Args[0]))
		return nil

	case ir.OpCall:
		return fp.convertCall(rw, in)

	case ir.OpIconst, ir.OpBconst,
		ir.OpIadd, ir.OpIsub, ir.OpImul, ir.OpIneg, ir.OpIabs,
		ir.OpSmin, ir.OpSmax, ir.OpIshl, ir.OpSshr, ir.OpSextend, ir.OpIreduce,
		ir.OpIcmp, ir.OpBand, ir.OpBor, ir.OpBxor, ir.OpBnot,
		ir.OpStackAddr, ir.OpLoad, ir.OpStore,
		ir.OpJump, ir.OpBrif, ir.OpReturn:
		return fp.passThrough(rw, in)

	default:
		return &UnsupportedError{Function: rw.Old.Name, Op: in.Op}
	}
}

// passThrough copies a numeric-domain-independent instruction, remapping
// operands, branch targets, and slots. Loads of former float values retype
// to i32 through ValueType.
func (fp *FixedPoint) passThrough(rw *Rewriter, in *ir.Instr) error {
	out := in.Clone()
	out.Type = fp.ValueType(in.Type)
	out.Args = rw.Ctx.Values(in.Args)
	out.Slot = rw.Ctx.Slot(in.Slot)
	for i := range out.Blocks {
		out.Blocks[i].Block = rw.Ctx.Block(in.Blocks[i].Block)
		out.Blocks[i].Args = rw.Ctx.Values(in.Blocks[i].Args)
	}
	out.Results = nil
	return rw.Bind(in.Results, rw.Emit(out))
}

// convertMul lowers a float multiply to a widened integer multiply: both
// Q16.16 operands sign-extend to 64 bits, the full product shifts right by
// the fractional width, and the result truncates back to 32 bits.
func (fp *FixedPoint) convertMul(rw *Rewriter, in *ir.Instr) error {
	if len(in.Args) != 2 {
		return &ShapeError{Function: rw.Old.Name, Op: in.Op, Reason: fmt.Sprintf("want 2 operands, have %d", len(in.Args))}
	}
	lhs := rw.Emit(ir.Instr{Op: ir.OpSextend, Type: ir.I64, Args: []ir.Value{rw.Ctx.Value(in.Args[0])}})
	rhs := rw.Emit(ir.Instr{Op: ir.OpSextend, Type: ir.I64, Args: []ir.Value{rw.Ctx.Value(in.Args[1])}})
	prod := rw.Emit(ir.Instr{Op: ir.OpImul, Type: ir.I64, Args: []ir.Value{lhs[0], rhs[0]}})
	sh := rw.Emit(ir.Instr{Op: ir.OpIconst, Type: ir.I64, IImm: fixed.Shift})
	shifted := rw.Emit(ir.Instr{Op: ir.OpSshr, Type: ir.I64, Args: []ir.Value{prod[0], sh[0]}})
	v := rw.Emit(ir.Instr{Op: ir.OpIreduce, Type: ir.I32, Args: shifted})
	return rw.Bind(in.Results, v)
}

// convertHelperCall lowers an instruction to a call of a natively compiled
// fixed-point runtime helper.
func (fp *FixedPoint) convertHelperCall(rw *Rewriter, in *ir.Instr, symbol string, arity int) error {
	if len(in.Args) != arity {
		return &ShapeError{Function: rw.Old.Name, Op: in.Op, Reason: fmt.Sprintf("want %d operands, have %d", arity, len(in.Args))}
	}
	sig := ir.Signature{Returns: []ir.Param{{Type: ir.I32}}}
	for range arity {
		sig.Params = append(sig.Params, ir.Param{Type: ir.I32})
	}
	ref := rw.Extern(symbol, sig, symbol)
	v := rw.Emit(ir.Instr{Op: ir.OpCall, Callee: ref, Args: rw.Ctx.Values(in.Args)})
	return rw.Bind(in.Results, v)
}

// convertCall redirects a call site. A callee that names a sibling function
// in the module under transformation calls the rewritten sibling; anything
// else must be a registered builtin and is redirected to its fixed-point
// implementation under the target's return convention.
func (fp *FixedPoint) convertCall(rw *Rewriter, in *ir.Instr) error {
	ext := rw.Old.Extern(in.Callee)

	if sibling, ok := rw.Sibling(ext.Name); ok {
		ref := rw.Extern(sibling.Name, fp.Signature(sibling.Sig), ext.Symbol)
		v := rw.Emit(ir.Instr{Op: ir.OpCall, Callee: ref, Args: rw.Ctx.Values(in.Args)})
		return rw.Bind(in.Results, v)
	}

	entry, ok := fp.registry.FindScalarArity(ext.Name, len(in.Args))
	if !ok {
		return &UnknownBuiltinError{Function: rw.Old.Name, Callee: ext.Name}
	}
	symbol, ok := fp.registry.ImplementationFor(entry, builtins.VariantFixedPoint)
	if !ok {
		return &UnknownBuiltinError{Function: rw.Old.Name, Callee: ext.Name}
	}

	logical := builtins.ConcreteSignature(entry.Params, entry.Return, builtins.VariantFixedPoint)
	plan := fp.target.Resolve(logical)
	ref := rw.Extern(entry.Name, fp.target.ConcreteSignature(logical), symbol)

	results, err := abi.BuildCall(rw, plan, ref, ir.I32, rw.Ctx.Values(in.Args))
	if err != nil {
		return fmt.Errorf("function %q: call to %q: %w", rw.Old.Name, ext.Name, err)
	}
	return rw.Bind(in.Results, results)
}

func fixedIntOp(op ir.Opcode) ir.Opcode {
	switch op {
	case ir.OpFadd:
		return ir.OpIadd
	case ir.OpFsub:
		return ir.OpIsub
	case ir.OpFneg:
		return ir.OpIneg
	case ir.OpFabs:
		return ir.OpIabs
	case ir.OpFmin:
		return ir.OpSmin
	case ir.OpFmax:
		return ir.OpSmax
	default:
		panic(fmt.Sprintf("transform: %v has no integer counterpart", op))
	}
}
