package transform

import (
	"errors"
	"math"
	"testing"

	"github.com/lightpixel/lpsl/internal/abi"
	"github.com/lightpixel/lpsl/internal/builtins"
	"github.com/lightpixel/lpsl/internal/eval"
	"github.com/lightpixel/lpsl/internal/fixed"
	"github.com/lightpixel/lpsl/internal/ir"
)

func newFixedPoint(t *testing.T) *FixedPoint {
	t.Helper()
	fp, err := NewFixedPoint(FixedPointConfig{
		Target: &abi.Target{Name: "test", PointerBytes: 4, ElementBytes: 4, ReturnRegisters: 2},
	})
	if err != nil {
		t.Fatalf("NewFixedPoint: %v", err)
	}
	return fp
}

// branchy builds a function with a loop, a conditional, and a stack slot, to
// exercise every structural element the rewrite must preserve.
func branchy(t *testing.T) *ir.Function {
	t.Helper()
	fn := ir.NewFunction("branchy", ir.Signature{
		Params:  []ir.Param{{Type: ir.F32}, {Type: ir.I32}},
		Returns: []ir.Param{{Type: ir.F32}},
	})
	slot := fn.AddSlot(8, 4)

	entry := fn.AddBlock(ir.F32, ir.I32)
	loop := fn.AddBlock(ir.F32, ir.I32)
	exit := fn.AddBlock(ir.F32)

	x := fn.Block(entry).Params[0]
	n := fn.Block(entry).Params[1]
	addr := fn.Append(entry, ir.Instr{Op: ir.OpStackAddr, Type: ir.Ptr, Slot: slot})[0]
	fn.Append(entry, ir.Instr{Op: ir.OpStore, Type: ir.I32, Args: []ir.Value{n, addr}})
	fn.Append(entry, ir.Instr{Op: ir.OpJump, Blocks: []ir.BlockCall{{Block: loop, Args: []ir.Value{x, n}}}})

	acc := fn.Block(loop).Params[0]
	i := fn.Block(loop).Params[1]
	doubled := fn.Append(loop, ir.Instr{Op: ir.OpFadd, Type: ir.F32, Args: []ir.Value{acc, acc}})[0]
	one := fn.Append(loop, ir.Instr{Op: ir.OpIconst, Type: ir.I32, IImm: 1})[0]
	next := fn.Append(loop, ir.Instr{Op: ir.OpIsub, Type: ir.I32, Args: []ir.Value{i, one}})[0]
	zero := fn.Append(loop, ir.Instr{Op: ir.OpIconst, Type: ir.I32, IImm: 0})[0]
	done := fn.Append(loop, ir.Instr{Op: ir.OpIcmp, Type: ir.B1, Pred: ir.PredLe, Args: []ir.Value{next, zero}})[0]
	fn.Append(loop, ir.Instr{Op: ir.OpBrif, Args: []ir.Value{done}, Blocks: []ir.BlockCall{
		{Block: exit, Args: []ir.Value{doubled}},
		{Block: loop, Args: []ir.Value{doubled, next}},
	}})

	fn.Append(exit, ir.Instr{Op: ir.OpReturn, Args: []ir.Value{fn.Block(exit).Params[0]}})

	if err := fn.Validate(); err != nil {
		t.Fatalf("branchy invalid: %v", err)
	}
	return fn
}

func checkStructure(t *testing.T, old, new *ir.Function) {
	t.Helper()
	if len(new.Blocks) != len(old.Blocks) {
		t.Fatalf("block count %d, want %d", len(new.Blocks), len(old.Blocks))
	}
	for i := range old.Blocks {
		if len(new.Blocks[i].Params) != len(old.Blocks[i].Params) {
			t.Errorf("block %d params = %d, want %d", i,
				len(new.Blocks[i].Params), len(old.Blocks[i].Params))
		}
	}
	if len(new.Slots) != len(old.Slots) {
		t.Fatalf("slot count %d, want %d", len(new.Slots), len(old.Slots))
	}
	for i := range old.Slots {
		if new.Slots[i] != old.Slots[i] {
			t.Errorf("slot %d = %+v, want %+v", i, new.Slots[i], old.Slots[i])
		}
	}
}

func TestIdentityStructure(t *testing.T) {
	old := branchy(t)
	new, err := Apply(Identity{}, old)
	if err != nil {
		t.Fatalf("identity transform failed: %v", err)
	}
	checkStructure(t, old, new)
	if !new.Sig.Equal(old.Sig) {
		t.Errorf("identity changed the signature to %s", new.Sig)
	}
	if new.Format() != old.Format() {
		t.Errorf("identity changed the text:\n--- old\n%s\n--- new\n%s", old.Format(), new.Format())
	}
}

func TestFixedPointStructure(t *testing.T) {
	old := branchy(t)
	new, err := Apply(newFixedPoint(t), old)
	if err != nil {
		t.Fatalf("fixedpoint transform failed: %v", err)
	}
	checkStructure(t, old, new)

	for _, p := range new.Sig.Params {
		if p.Type == ir.F32 {
			t.Error("float parameter survived the rewrite")
		}
	}
	for _, blk := range new.Blocks {
		for _, in := range blk.Instrs {
			switch in.Op {
			case ir.OpFconst, ir.OpFadd, ir.OpFsub, ir.OpFmul, ir.OpFdiv,
				ir.OpFneg, ir.OpFabs, ir.OpFmin, ir.OpFmax, ir.OpFsqrt, ir.OpFcmp:
				t.Errorf("float instruction %v survived the rewrite", in.Op)
			}
		}
	}
}

func TestConstantConversion(t *testing.T) {
	fn := ir.NewFunction("c", ir.Signature{Returns: []ir.Param{{Type: ir.F32}}})
	entry := fn.AddBlock()
	v := fn.Append(entry, ir.Instr{Op: ir.OpFconst, Type: ir.F32, FImm: 1.5})[0]
	fn.Append(entry, ir.Instr{Op: ir.OpReturn, Args: []ir.Value{v}})

	new, err := Apply(newFixedPoint(t), fn)
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	first := new.Blocks[0].Instrs[0]
	if first.Op != ir.OpIconst {
		t.Fatalf("constant became %v, want iconst", first.Op)
	}
	if first.IImm != int64(fixed.FromFloat32(1.5)) {
		t.Errorf("immediate = %d, want %d", first.IImm, int64(fixed.FromFloat32(1.5)))
	}

	// Out-of-range constants saturate rather than wrap.
	fn2 := ir.NewFunction("c", ir.Signature{Returns: []ir.Param{{Type: ir.F32}}})
	e2 := fn2.AddBlock()
	v2 := fn2.Append(e2, ir.Instr{Op: ir.OpFconst, Type: ir.F32, FImm: 1e9})[0]
	fn2.Append(e2, ir.Instr{Op: ir.OpReturn, Args: []ir.Value{v2}})
	new2, err := Apply(newFixedPoint(t), fn2)
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	if got := new2.Blocks[0].Instrs[0].IImm; got != int64(fixed.Max) {
		t.Errorf("saturating immediate = %d, want %d", got, int64(fixed.Max))
	}
}

func TestArithmeticMapping(t *testing.T) {
	cases := []struct {
		op    ir.Opcode
		arity int
		want  ir.Opcode
	}{
		{ir.OpFadd, 2, ir.OpIadd},
		{ir.OpFsub, 2, ir.OpIsub},
		{ir.OpFneg, 1, ir.OpIneg},
		{ir.OpFabs, 1, ir.OpIabs},
		{ir.OpFmin, 2, ir.OpSmin},
		{ir.OpFmax, 2, ir.OpSmax},
	}
	for _, c := range cases {
		fn := ir.NewFunction("a", ir.Signature{
			Params:  []ir.Param{{Type: ir.F32}, {Type: ir.F32}},
			Returns: []ir.Param{{Type: ir.F32}},
		})
		entry := fn.AddBlock(ir.F32, ir.F32)
		args := fn.Block(entry).Params[:c.arity]
		v := fn.Append(entry, ir.Instr{Op: c.op, Type: ir.F32, Args: args})[0]
		fn.Append(entry, ir.Instr{Op: ir.OpReturn, Args: []ir.Value{v}})

		new, err := Apply(newFixedPoint(t), fn)
		if err != nil {
			t.Fatalf("%v: %v", c.op, err)
		}
		if got := new.Blocks[0].Instrs[0].Op; got != c.want {
			t.Errorf("%v became %v, want %v", c.op, got, c.want)
		}
		if got := new.Blocks[0].Instrs[0].Type; got != ir.I32 {
			t.Errorf("%v result type = %v, want i32", c.op, got)
		}
	}
}

func TestMulExpansion(t *testing.T) {
	fn := ir.NewFunction("m", ir.Signature{
		Params:  []ir.Param{{Type: ir.F32}, {Type: ir.F32}},
		Returns: []ir.Param{{Type: ir.F32}},
	})
	entry := fn.AddBlock(ir.F32, ir.F32)
	p := fn.Block(entry).Params
	v := fn.Append(entry, ir.Instr{Op: ir.OpFmul, Type: ir.F32, Args: []ir.Value{p[0], p[1]}})[0]
	fn.Append(entry, ir.Instr{Op: ir.OpReturn, Args: []ir.Value{v}})

	new, err := Apply(newFixedPoint(t), fn)
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	want := []ir.Opcode{ir.OpSextend, ir.OpSextend, ir.OpImul, ir.OpIconst, ir.OpSshr, ir.OpIreduce, ir.OpReturn}
	instrs := new.Blocks[0].Instrs
	if len(instrs) != len(want) {
		t.Fatalf("multiply expanded to %d instructions, want %d:\n%s", len(instrs), len(want), new.Format())
	}
	for i, op := range want {
		if instrs[i].Op != op {
			t.Errorf("instruction %d = %v, want %v", i, instrs[i].Op, op)
		}
	}
	if instrs[2].Type != ir.I64 {
		t.Errorf("widened multiply type = %v, want i64", instrs[2].Type)
	}
}

func TestDivSqrtBecomeHelperCalls(t *testing.T) {
	fn := ir.NewFunction("d", ir.Signature{
		Params:  []ir.Param{{Type: ir.F32}, {Type: ir.F32}},
		Returns: []ir.Param{{Type: ir.F32}},
	})
	entry := fn.AddBlock(ir.F32, ir.F32)
	p := fn.Block(entry).Params
	q := fn.Append(entry, ir.Instr{Op: ir.OpFdiv, Type: ir.F32, Args: []ir.Value{p[0], p[1]}})[0]
	r := fn.Append(entry, ir.Instr{Op: ir.OpFsqrt, Type: ir.F32, Args: []ir.Value{q}})[0]
	fn.Append(entry, ir.Instr{Op: ir.OpReturn, Args: []ir.Value{r}})

	new, err := Apply(newFixedPoint(t), fn)
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	var symbols []string
	for _, in := range new.Blocks[0].Instrs {
		if in.Op == ir.OpCall {
			symbols = append(symbols, new.Extern(in.Callee).Symbol)
		}
	}
	if len(symbols) != 2 || symbols[0] != builtins.SymbolFixedDiv || symbols[1] != builtins.SymbolFixedSqrt {
		t.Errorf("helper calls = %v", symbols)
	}
}

func TestComparisonKeepsPredicate(t *testing.T) {
	fn := ir.NewFunction("cmp", ir.Signature{
		Params:  []ir.Param{{Type: ir.F32}, {Type: ir.F32}},
		Returns: []ir.Param{{Type: ir.B1}},
	})
	entry := fn.AddBlock(ir.F32, ir.F32)
	p := fn.Block(entry).Params
	v := fn.Append(entry, ir.Instr{Op: ir.OpFcmp, Type: ir.B1, Pred: ir.PredLe, Args: []ir.Value{p[0], p[1]}})[0]
	fn.Append(entry, ir.Instr{Op: ir.OpReturn, Args: []ir.Value{v}})

	new, err := Apply(newFixedPoint(t), fn)
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	first := new.Blocks[0].Instrs[0]
	if first.Op != ir.OpIcmp || first.Pred != ir.PredLe {
		t.Errorf("comparison became %v %v, want icmp le", first.Op, first.Pred)
	}
}

func TestFloatToIntFloors(t *testing.T) {
	// The float program truncates toward zero; the rewritten program uses
	// an arithmetic shift and floors. For -0.5 that is 0 versus -1, and the
	// floor is the contractual answer.
	fn := ir.NewFunction("cvt", ir.Signature{
		Params:  []ir.Param{{Type: ir.F32}},
		Returns: []ir.Param{{Type: ir.I32}},
	})
	entry := fn.AddBlock(ir.F32)
	v := fn.Append(entry, ir.Instr{Op: ir.OpFcvtToInt, Type: ir.I32, Args: []ir.Value{fn.Block(entry).Params[0]}})[0]
	fn.Append(entry, ir.Instr{Op: ir.OpReturn, Args: []ir.Value{v}})

	new, err := Apply(newFixedPoint(t), fn)
	if err != nil {
		t.Fatalf("transform: %v", err)
	}

	reg, err := builtins.Default()
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	m := eval.NewMachine(reg)
	if err := m.LoadModule(&ir.Module{Funcs: []*ir.Function{new}}); err != nil {
		t.Fatalf("load: %v", err)
	}

	cases := []struct {
		in   float32
		want int32
	}{
		{-0.5, -1},
		{-1.5, -2},
		{2.75, 2},
		{3, 3},
	}
	for _, c := range cases {
		out, err := m.Run("cvt", []uint64{uint64(uint32(fixed.FromFloat32(c.in).Bits()))})
		if err != nil {
			t.Fatalf("run(%v): %v", c.in, err)
		}
		if got := int32(uint32(out[0])); got != c.want {
			t.Errorf("fixed-to-int of %v = %d, want %d (floor)", c.in, got, c.want)
		}
	}
}

func TestUnsupportedOpcode(t *testing.T) {
	fn := ir.NewFunction("u", ir.Signature{})
	fn.AddBlock()
	// Hand-build an opcode the converter set does not know.
	fn.Blocks[0].Instrs = []ir.Instr{
		{Op: ir.OpInvalid},
		{Op: ir.OpReturn},
	}

	_, err := Apply(newFixedPoint(t), fn)
	var unsupported *UnsupportedError
	if !errors.As(err, &unsupported) {
		t.Fatalf("err = %v, want UnsupportedError", err)
	}
	if unsupported.Function != "u" {
		t.Errorf("Function = %q", unsupported.Function)
	}
}

func TestUnknownBuiltin(t *testing.T) {
	fn := ir.NewFunction("k", ir.Signature{Returns: []ir.Param{{Type: ir.F32}}})
	entry := fn.AddBlock()
	callee := fn.DeclareExtern("mystery", ir.Signature{
		Returns: []ir.Param{{Type: ir.F32}},
	}, "__mystery")
	v := fn.Append(entry, ir.Instr{Op: ir.OpCall, Callee: callee})[0]
	fn.Append(entry, ir.Instr{Op: ir.OpReturn, Args: []ir.Value{v}})

	_, err := Apply(newFixedPoint(t), fn)
	var unknown *UnknownBuiltinError
	if !errors.As(err, &unknown) {
		t.Fatalf("err = %v, want UnknownBuiltinError", err)
	}
	if unknown.Callee != "mystery" {
		t.Errorf("Callee = %q", unknown.Callee)
	}
}

func TestFixed32x32Rejected(t *testing.T) {
	_, err := NewFixedPoint(FixedPointConfig{Format: fixed.Fixed32x32})
	if err == nil {
		t.Fatal("NewFixedPoint accepted the placeholder format")
	}
}

func TestEndToEnd(t *testing.T) {
	// result = (a + b) * c with a=1.5, b=2.5, c=2.0 must come out as 8.0
	// after the rewrite, within one Q16.16 step.
	fn := ir.NewFunction("expr", ir.Signature{
		Params:  []ir.Param{{Type: ir.F32}, {Type: ir.F32}, {Type: ir.F32}},
		Returns: []ir.Param{{Type: ir.F32}},
	})
	entry := fn.AddBlock(ir.F32, ir.F32, ir.F32)
	p := fn.Block(entry).Params
	sum := fn.Append(entry, ir.Instr{Op: ir.OpFadd, Type: ir.F32, Args: []ir.Value{p[0], p[1]}})[0]
	prod := fn.Append(entry, ir.Instr{Op: ir.OpFmul, Type: ir.F32, Args: []ir.Value{sum, p[2]}})[0]
	fn.Append(entry, ir.Instr{Op: ir.OpReturn, Args: []ir.Value{prod}})

	new, err := Apply(newFixedPoint(t), fn)
	if err != nil {
		t.Fatalf("transform: %v", err)
	}

	reg, err := builtins.Default()
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	m := eval.NewMachine(reg)
	if err := m.LoadModule(&ir.Module{Funcs: []*ir.Function{new}}); err != nil {
		t.Fatalf("load: %v", err)
	}
	out, err := m.Run("expr", []uint64{
		uint64(uint32(fixed.FromFloat32(1.5).Bits())),
		uint64(uint32(fixed.FromFloat32(2.5).Bits())),
		uint64(uint32(fixed.FromFloat32(2.0).Bits())),
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	got := float64(fixed.FromBits(int32(uint32(out[0]))).Float32())
	if math.Abs(got-8.0) >= 1.0/65536 {
		t.Errorf("(1.5+2.5)*2.0 = %v, want 8.0 within 1/65536", got)
	}
}

func TestSiblingRedirection(t *testing.T) {
	// helper(x) = x + x; main(x) = helper(x) * 0.5. The module pass must
	// redirect main's call to the rewritten helper.
	helper := ir.NewFunction("helper", ir.Signature{
		Params:  []ir.Param{{Type: ir.F32}},
		Returns: []ir.Param{{Type: ir.F32}},
	})
	he := helper.AddBlock(ir.F32)
	hx := helper.Block(he).Params[0]
	hsum := helper.Append(he, ir.Instr{Op: ir.OpFadd, Type: ir.F32, Args: []ir.Value{hx, hx}})[0]
	helper.Append(he, ir.Instr{Op: ir.OpReturn, Args: []ir.Value{hsum}})

	main := ir.NewFunction("main", ir.Signature{
		Params:  []ir.Param{{Type: ir.F32}},
		Returns: []ir.Param{{Type: ir.F32}},
	})
	me := main.AddBlock(ir.F32)
	callee := main.DeclareExtern("helper", helper.Sig, "helper")
	doubled := main.Append(me, ir.Instr{Op: ir.OpCall, Callee: callee, Args: []ir.Value{main.Block(me).Params[0]}})[0]
	half := main.Append(me, ir.Instr{Op: ir.OpFconst, Type: ir.F32, FImm: 0.5})[0]
	prod := main.Append(me, ir.Instr{Op: ir.OpFmul, Type: ir.F32, Args: []ir.Value{doubled, half}})[0]
	main.Append(me, ir.Instr{Op: ir.OpReturn, Args: []ir.Value{prod}})

	mod := &ir.Module{Funcs: []*ir.Function{helper, main}}
	out, err := ApplyModule(newFixedPoint(t), mod)
	if err != nil {
		t.Fatalf("module transform: %v", err)
	}

	newMain := out.Lookup("main")
	if newMain == nil {
		t.Fatal("main missing from transformed module")
	}
	ext := newMain.Extern(0)
	if len(ext.Sig.Params) != 1 || ext.Sig.Params[0].Type != ir.I32 {
		t.Errorf("sibling callee signature not rewritten: %s", ext.Sig)
	}

	reg, err := builtins.Default()
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	m := eval.NewMachine(reg)
	if err := m.LoadModule(out); err != nil {
		t.Fatalf("load: %v", err)
	}
	res, err := m.Run("main", []uint64{uint64(uint32(fixed.FromFloat32(3).Bits()))})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	got := float64(fixed.FromBits(int32(uint32(res[0]))).Float32())
	if math.Abs(got-3.0) >= 2.0/65536 {
		t.Errorf("main(3.0) = %v, want 3.0", got)
	}
}

func TestBuiltinCallRegisterAndBufferPaths(t *testing.T) {
	reg, err := builtins.Default()
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	build := func() *ir.Function {
		fn := ir.NewFunction("shade", ir.Signature{
			Params:  []ir.Param{{Type: ir.F32}, {Type: ir.F32}, {Type: ir.F32}},
			Returns: []ir.Param{{Type: ir.F32}, {Type: ir.F32}, {Type: ir.F32}},
		})
		entry := fn.AddBlock(ir.F32, ir.F32, ir.F32)
		callee := fn.DeclareExtern("lpfx_hsv2rgb",
			builtins.ConcreteSignature([]builtins.Param{{Type: builtins.TVec3}}, builtins.TVec3, builtins.VariantFloat),
			"__lpfx_hsv2rgb_f32")
		rgb := fn.Append(entry, ir.Instr{Op: ir.OpCall, Callee: callee, Args: fn.Block(entry).Params})
		fn.Append(entry, ir.Instr{Op: ir.OpReturn, Args: rgb})
		return fn
	}

	hsv := [3]float32{0.5, 1, 1} // cyan
	wantRGB := [3]float64{0, 1, 1}

	targets := map[string]*abi.Target{
		"registers": {Name: "wide", PointerBytes: 8, ElementBytes: 4, ReturnRegisters: 4},
		"buffer":    {Name: "narrow", PointerBytes: 4, ElementBytes: 4, ReturnRegisters: 2},
	}
	for name, target := range targets {
		t.Run(name, func(t *testing.T) {
			fp, err := NewFixedPoint(FixedPointConfig{Registry: reg, Target: target})
			if err != nil {
				t.Fatalf("NewFixedPoint: %v", err)
			}
			new, err := Apply(fp, build())
			if err != nil {
				t.Fatalf("transform: %v", err)
			}

			wantBuffer := name == "buffer"
			if got := new.Extern(0).Sig.HasStructReturn(); got != wantBuffer {
				t.Errorf("callee sret = %v, want %v", got, wantBuffer)
			}

			m := eval.NewMachine(reg)
			if err := m.LoadModule(&ir.Module{Funcs: []*ir.Function{new}}); err != nil {
				t.Fatalf("load: %v", err)
			}
			args := make([]uint64, 3)
			for i, v := range hsv {
				args[i] = uint64(uint32(fixed.FromFloat32(v).Bits()))
			}
			out, err := m.Run("shade", args)
			if err != nil {
				t.Fatalf("run: %v", err)
			}
			if len(out) != 3 {
				t.Fatalf("got %d results", len(out))
			}

			// The generated caller must agree with a direct invocation of
			// the same native implementation.
			impl, ok := reg.SymbolImpl("__lpfx_hsv2rgb_q32")
			if !ok {
				t.Fatal("fixed hsv2rgb symbol missing")
			}
			directOut := impl([]uint32{uint32(args[0]), uint32(args[1]), uint32(args[2])})
			for i := range out {
				if uint32(out[i]) != directOut[i] {
					t.Errorf("result %d = %#x, direct call gives %#x", i, uint32(out[i]), directOut[i])
				}
				got := float64(fixed.FromBits(int32(uint32(out[i]))).Float32())
				if math.Abs(got-wantRGB[i]) > 0.01 {
					t.Errorf("rgb[%d] = %v, want %v", i, got, wantRGB[i])
				}
			}
		})
	}
}
