package ir

import (
	"strings"
	"testing"
)

func buildSample(t *testing.T) *Function {
	t.Helper()
	fn := NewFunction("sample", Signature{
		Params:  []Param{{Type: F32}, {Type: F32}},
		Returns: []Param{{Type: F32}},
	})

	entry := fn.AddBlock(F32, F32)
	then := fn.AddBlock(F32)
	a := fn.Block(entry).Params[0]
	b := fn.Block(entry).Params[1]

	cond := fn.Append(entry, Instr{Op: OpFcmp, Type: B1, Pred: PredLt, Args: []Value{a, b}})[0]
	fn.Append(entry, Instr{
		Op: OpBrif, Args: []Value{cond},
		Blocks: []BlockCall{{Block: then, Args: []Value{a}}, {Block: then, Args: []Value{b}}},
	})

	x := fn.Block(then).Params[0]
	sum := fn.Append(then, Instr{Op: OpFadd, Type: F32, Args: []Value{x, x}})[0]
	fn.Append(then, Instr{Op: OpReturn, Args: []Value{sum}})

	if err := fn.Validate(); err != nil {
		t.Fatalf("sample function invalid: %v", err)
	}
	return fn
}

func TestAppendAllocatesResults(t *testing.T) {
	fn := buildSample(t)
	if n := fn.NumValues(); n != 5 {
		t.Errorf("NumValues = %d, want 5", n)
	}
	if got := fn.ValueType(fn.Block(0).Params[0]); got != F32 {
		t.Errorf("param type = %v, want f32", got)
	}
}

func TestValidateEmptyBlock(t *testing.T) {
	fn := NewFunction("empty", Signature{})
	fn.AddBlock()
	if err := fn.Validate(); err == nil {
		t.Fatal("Validate accepted a block without a terminator")
	}
}

func TestValidateBranchArity(t *testing.T) {
	fn := NewFunction("bad", Signature{})
	entry := fn.AddBlock()
	target := fn.AddBlock(I32)
	// Hand-build the jump with no arguments to bypass the builder.
	fn.Block(entry).Instrs = append(fn.Block(entry).Instrs, Instr{
		Op:     OpJump,
		Blocks: []BlockCall{{Block: target}},
	})
	fn.Append(target, Instr{Op: OpReturn})
	err := fn.Validate()
	if err == nil || !strings.Contains(err.Error(), "passes 0 args") {
		t.Fatalf("Validate error = %v, want branch arity complaint", err)
	}
}

func TestValidateBranchArgType(t *testing.T) {
	fn := NewFunction("bad", Signature{})
	entry := fn.AddBlock()
	target := fn.AddBlock(I32)
	v := fn.Append(entry, Instr{Op: OpBconst, Type: B1, BImm: true})[0]
	fn.Block(entry).Instrs = append(fn.Block(entry).Instrs, Instr{
		Op:     OpJump,
		Blocks: []BlockCall{{Block: target, Args: []Value{v}}},
	})
	fn.Append(target, Instr{Op: OpReturn})
	if err := fn.Validate(); err == nil {
		t.Fatal("Validate accepted a branch argument of the wrong type")
	}
}

func TestAppendAfterTerminatorPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("Append after a terminator did not panic")
		}
	}()
	fn := NewFunction("bad", Signature{})
	entry := fn.AddBlock()
	fn.Append(entry, Instr{Op: OpReturn})
	fn.Append(entry, Instr{Op: OpIconst, Type: I32, IImm: 1})
}

func TestDeclareExternDedup(t *testing.T) {
	fn := NewFunction("f", Signature{})
	sig := Signature{Params: []Param{{Type: I32}}, Returns: []Param{{Type: I32}}}
	r1 := fn.DeclareExtern("helper", sig, "__helper")
	r2 := fn.DeclareExtern("helper", sig, "__helper")
	if r1 != r2 {
		t.Errorf("same symbol declared twice got %v and %v", r1, r2)
	}
	if len(fn.Externs) != 1 {
		t.Errorf("Externs = %d, want 1", len(fn.Externs))
	}
}

func TestFormatParseRoundTrip(t *testing.T) {
	fn := buildSample(t)
	text := fn.Format()

	parsed, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse of formatted function failed: %v\n%s", err, text)
	}
	if again := parsed.Format(); again != text {
		t.Errorf("round trip changed the text:\n--- first\n%s\n--- second\n%s", text, again)
	}
}

func TestParseFull(t *testing.T) {
	src := `
function %shade(f32, i32) -> f32 {
    ss0 = slot 12, align 4
    fn0 = %lpfx_hue2rgb sig(sret i32, i32) symbol __lpfx_hue2rgb_q32

block0(v0: f32, v1: i32):
    v2 = iconst.i32 4
    v3 = stack_addr.i32 ss0
    store.i32 v2, v3+4
    v4 = load.i32 v3+4
    v5 = icmp.b1 lt v4, v2
    brif v5, block1(v0), block2

block1(v6: f32):
    v7 = fmul.f32 v6, v6
    jump block2

block2:
    v8 = fconst.f32 0.5
    return v8
}
`
	fn, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if fn.Name != "shade" {
		t.Errorf("name = %q", fn.Name)
	}
	if len(fn.Blocks) != 3 {
		t.Errorf("blocks = %d, want 3", len(fn.Blocks))
	}
	if len(fn.Slots) != 1 || fn.Slots[0].Size != 12 || fn.Slots[0].Align != 4 {
		t.Errorf("slots = %+v", fn.Slots)
	}
	if len(fn.Externs) != 1 || fn.Externs[0].Symbol != "__lpfx_hue2rgb_q32" {
		t.Errorf("externs = %+v", fn.Externs)
	}
	if !fn.Externs[0].Sig.HasStructReturn() {
		t.Error("extern signature lost its sret parameter")
	}

	// Formatting the parsed function and parsing again must be stable.
	text := fn.Format()
	fn2, err := Parse(text)
	if err != nil {
		t.Fatalf("reparse failed: %v\n%s", err, text)
	}
	if fn2.Format() != text {
		t.Error("format/parse round trip is not stable")
	}
}

func TestParseModuleMultiple(t *testing.T) {
	src := `
; helper squares its input
function %square(f32) -> f32 {
block0(v0: f32):
    v1 = fmul.f32 v0, v0
    return v1
}

function %main(f32) -> f32 {
    fn0 = %square sig(f32) -> f32 symbol square

block0(v0: f32):
    v1 = call fn0(v0)
    return v1
}
`
	m, err := ParseModule(src)
	if err != nil {
		t.Fatalf("ParseModule failed: %v", err)
	}
	if len(m.Funcs) != 2 {
		t.Fatalf("functions = %d, want 2", len(m.Funcs))
	}
	if m.Lookup("square") == nil || m.Lookup("main") == nil {
		t.Error("Lookup missed a parsed function")
	}
	if m.Lookup("absent") != nil {
		t.Error("Lookup invented a function")
	}
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		name string
		src  string
	}{
		{"garbage", "not a function"},
		{"undefined value", "function %f() -> i32 {\nblock0:\n    return v9\n}"},
		{"bad type", "function %f(q99) {\nblock0(v0: q99):\n    return\n}"},
		{"missing terminator", "function %f() {\nblock0:\n    v0 = iconst.i32 1\n}"},
	}
	for _, c := range cases {
		if _, err := Parse(c.src); err == nil {
			t.Errorf("%s: Parse accepted malformed input", c.name)
		}
	}
}

func TestSignatureEqual(t *testing.T) {
	a := Signature{Params: []Param{{Type: F32}}, Returns: []Param{{Type: F32}}}
	b := Signature{Params: []Param{{Type: F32}}, Returns: []Param{{Type: F32}}}
	c := Signature{Params: []Param{{Type: I32}}, Returns: []Param{{Type: F32}}}
	if !a.Equal(b) {
		t.Error("identical signatures compare unequal")
	}
	if a.Equal(c) {
		t.Error("different signatures compare equal")
	}
}
