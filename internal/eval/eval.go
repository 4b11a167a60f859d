// Package eval is the reference evaluator: an interpreter over the
// instruction IR that stands in for a code-generating backend. It exists so
// transformed functions can be executed and compared against their float
// originals without a native toolchain in the loop. It is deliberately slow
// and simple; nothing here is a production backend.
package eval

import (
	"fmt"
	"math"

	"github.com/lightpixel/lpsl/internal/builtins"
	"github.com/lightpixel/lpsl/internal/ir"
)

// maxSteps bounds one function invocation. Shader functions terminate
// quickly; hitting the bound means a malformed loop, not a slow program.
const maxSteps = 1 << 22

// Machine executes IR functions. The lifecycle mirrors a backend: Declare
// every function, Define bodies in any order, Finalize once, then Run. The
// split exists so mutually recursive siblings can reference each other
// before any body is present.
type Machine struct {
	registry  *builtins.Registry
	sigs      map[string]ir.Signature
	funcs     map[string]*ir.Function
	finalized bool
}

// NewMachine creates an empty machine dispatching builtin symbols through
// the given registry.
func NewMachine(reg *builtins.Registry) *Machine {
	return &Machine{
		registry: reg,
		sigs:     make(map[string]ir.Signature),
		funcs:    make(map[string]*ir.Function),
	}
}

// Declare registers a function name and signature ahead of its body.
func (m *Machine) Declare(name string, sig ir.Signature) error {
	if m.finalized {
		return fmt.Errorf("eval: declare %q after finalize", name)
	}
	if _, ok := m.sigs[name]; ok {
		return fmt.Errorf("eval: %q declared twice", name)
	}
	m.sigs[name] = sig
	return nil
}

// Define supplies the body for a declared function. The body's signature
// must match the declaration.
func (m *Machine) Define(name string, fn *ir.Function) error {
	if m.finalized {
		return fmt.Errorf("eval: define %q after finalize", name)
	}
	sig, ok := m.sigs[name]
	if !ok {
		return fmt.Errorf("eval: define %q without declaration", name)
	}
	if !sig.Equal(fn.Sig) {
		return fmt.Errorf("eval: %q defined with signature %s, declared %s",
			name, fn.Sig, sig)
	}
	if _, ok := m.funcs[name]; ok {
		return fmt.Errorf("eval: %q defined twice", name)
	}
	if err := fn.Validate(); err != nil {
		return fmt.Errorf("eval: %w", err)
	}
	m.funcs[name] = fn
	return nil
}

// Finalize checks that every declaration got a body and freezes the machine.
// After Finalize the machine is read-only and Run is safe for concurrent use.
func (m *Machine) Finalize() error {
	if m.finalized {
		return fmt.Errorf("eval: finalize called twice")
	}
	for name := range m.sigs {
		if _, ok := m.funcs[name]; !ok {
			return fmt.Errorf("eval: %q declared but never defined", name)
		}
	}
	m.finalized = true
	return nil
}

// LoadModule declares, defines, and finalizes every function of a module.
func (m *Machine) LoadModule(mod *ir.Module) error {
	for _, fn := range mod.Funcs {
		if err := m.Declare(fn.Name, fn.Sig); err != nil {
			return err
		}
	}
	for _, fn := range mod.Funcs {
		if err := m.Define(fn.Name, fn); err != nil {
			return err
		}
	}
	return m.Finalize()
}

// Run executes a function with raw word arguments, one word per parameter,
// and returns one word per result. Float values travel as their IEEE bit
// patterns, fixed-point values as their Q16.16 bits.
func (m *Machine) Run(name string, args []uint64) ([]uint64, error) {
	if !m.finalized {
		return nil, fmt.Errorf("eval: run before finalize")
	}
	fn, ok := m.funcs[name]
	if !ok {
		return nil, fmt.Errorf("eval: unknown function %q", name)
	}
	if len(args) != len(fn.Sig.Params) {
		return nil, fmt.Errorf("eval: %q takes %d arguments, got %d",
			name, len(fn.Sig.Params), len(args))
	}
	budget := maxSteps
	return m.call(fn, args, &budget)
}

// frame is one invocation's state: the value table plus a byte arena backing
// the function's stack slots.
type frame struct {
	fn       *ir.Function
	values   []uint64
	mem      []byte
	slotBase []int64
}

func newFrame(fn *ir.Function) *frame {
	f := &frame{
		fn:       fn,
		values:   make([]uint64, fn.NumValues()),
		slotBase: make([]int64, len(fn.Slots)),
	}
	// Offset 0 stays unused so a slot address is never zero.
	off := int64(8)
	for i, slot := range fn.Slots {
		a := int64(slot.Align)
		off = (off + a - 1) / a * a
		f.slotBase[i] = off
		off += int64(slot.Size)
	}
	f.mem = make([]byte, off)
	return f
}

func (f *frame) get(v ir.Value) uint64 { return f.values[v] }

func (f *frame) set(v ir.Value, w uint64) { f.values[v] = w }

func (f *frame) addr(a uint64, off, n int32) (int64, error) {
	p := int64(a) + int64(off)
	if p < 8 || p+int64(n) > int64(len(f.mem)) {
		return 0, fmt.Errorf("eval: %d-byte access at %d outside frame of %q", n, p, f.fn.Name)
	}
	return p, nil
}

func (m *Machine) call(fn *ir.Function, args []uint64, budget *int) ([]uint64, error) {
	f := newFrame(fn)

	cur := ir.BlockID(0)
	entry := fn.Block(cur)
	if len(entry.Params) != len(args) {
		return nil, fmt.Errorf("eval: %q entry takes %d values, got %d",
			fn.Name, len(entry.Params), len(args))
	}
	for i, p := range entry.Params {
		f.set(p, args[i])
	}

	for {
		blk := fn.Block(cur)
		for i := range blk.Instrs {
			*budget--
			if *budget < 0 {
				return nil, fmt.Errorf("eval: %q exceeded the step budget", fn.Name)
			}
			in := &blk.Instrs[i]
			switch in.Op {
			case ir.OpReturn:
				out := make([]uint64, len(in.Args))
				for j, a := range in.Args {
					out[j] = f.get(a)
				}
				return out, nil

			case ir.OpJump:
				cur = m.branch(f, &in.Blocks[0])

			case ir.OpBrif:
				if f.get(in.Args[0]) != 0 {
					cur = m.branch(f, &in.Blocks[0])
				} else {
					cur = m.branch(f, &in.Blocks[1])
				}

			case ir.OpCall:
				if err := m.evalCall(f, in, budget); err != nil {
					return nil, err
				}

			default:
				if err := m.evalInstr(f, in); err != nil {
					return nil, err
				}
			}
		}
	}
}

func (m *Machine) branch(f *frame, bc *ir.BlockCall) ir.BlockID {
	// Read every argument before writing any parameter: a branch may pass a
	// target block's own parameter back to it.
	words := make([]uint64, len(bc.Args))
	for i, a := range bc.Args {
		words[i] = f.get(a)
	}
	for i, p := range f.fn.Block(bc.Block).Params {
		f.set(p, words[i])
	}
	return bc.Block
}

func (m *Machine) evalCall(f *frame, in *ir.Instr, budget *int) error {
	ext := f.fn.Extern(in.Callee)

	if callee, ok := m.funcs[ext.Name]; ok {
		args := make([]uint64, len(in.Args))
		for i, a := range in.Args {
			args[i] = f.get(a)
		}
		results, err := m.call(callee, args, budget)
		if err != nil {
			return err
		}
		if len(results) != len(in.Results) {
			return fmt.Errorf("eval: %q returned %d values, call site expects %d",
				ext.Name, len(results), len(in.Results))
		}
		for i, r := range in.Results {
			f.set(r, results[i])
		}
		return nil
	}

	impl, ok := m.registry.SymbolImpl(ext.Symbol)
	if !ok {
		return fmt.Errorf("eval: %q calls unknown symbol %q", f.fn.Name, ext.Symbol)
	}

	// Struct-return callees take the buffer address first and return
	// nothing through registers; the machine performs the write-through the
	// native helper would.
	if ext.Sig.HasStructReturn() {
		base := f.get(in.Args[0])
		words := make([]uint32, len(in.Args)-1)
		for i, a := range in.Args[1:] {
			words[i] = uint32(f.get(a))
		}
		out := impl(words)
		for i, w := range out {
			p, err := f.addr(base, int32(i*4), 4)
			if err != nil {
				return err
			}
			storeBytes(f.mem, p, uint64(w), 4)
		}
		return nil
	}

	words := make([]uint32, len(in.Args))
	for i, a := range in.Args {
		words[i] = uint32(f.get(a))
	}
	out := impl(words)
	if len(out) != len(in.Results) {
		return fmt.Errorf("eval: symbol %q returned %d words, call site expects %d",
			ext.Symbol, len(out), len(in.Results))
	}
	for i, r := range in.Results {
		f.set(r, uint64(out[i]))
	}
	return nil
}

func (m *Machine) evalInstr(f *frame, in *ir.Instr) error {
	switch in.Op {
	case ir.OpFconst:
		f.set(in.Results[0], w32f(in.FImm))
	case ir.OpIconst:
		if in.Type == ir.I64 {
			f.set(in.Results[0], uint64(in.IImm))
		} else {
			f.set(in.Results[0], w32(int32(in.IImm)))
		}
	case ir.OpBconst:
		f.set(in.Results[0], b2w(in.BImm))

	case ir.OpFadd:
		f.set(in.Results[0], w32f(f32(f, in.Args[0])+f32(f, in.Args[1])))
	case ir.OpFsub:
		f.set(in.Results[0], w32f(f32(f, in.Args[0])-f32(f, in.Args[1])))
	case ir.OpFmul:
		f.set(in.Results[0], w32f(f32(f, in.Args[0])*f32(f, in.Args[1])))
	case ir.OpFdiv:
		f.set(in.Results[0], w32f(f32(f, in.Args[0])/f32(f, in.Args[1])))
	case ir.OpFneg:
		f.set(in.Results[0], w32f(-f32(f, in.Args[0])))
	case ir.OpFabs:
		f.set(in.Results[0], w32f(float32(math.Abs(float64(f32(f, in.Args[0]))))))
	case ir.OpFmin:
		f.set(in.Results[0], w32f(float32(math.Min(float64(f32(f, in.Args[0])), float64(f32(f, in.Args[1]))))))
	case ir.OpFmax:
		f.set(in.Results[0], w32f(float32(math.Max(float64(f32(f, in.Args[0])), float64(f32(f, in.Args[1]))))))
	case ir.OpFsqrt:
		f.set(in.Results[0], w32f(float32(math.Sqrt(float64(f32(f, in.Args[0]))))))

	case ir.OpIadd, ir.OpIsub, ir.OpImul, ir.OpSmin, ir.OpSmax, ir.OpIshl, ir.OpSshr:
		if in.Type == ir.I64 {
			f.set(in.Results[0], uint64(intBinop(in.Op, int64(f.get(in.Args[0])), int64(f.get(in.Args[1])))))
		} else {
			x := int64(i32(f, in.Args[0]))
			y := int64(i32(f, in.Args[1]))
			f.set(in.Results[0], w32(int32(intBinop(in.Op, x, y))))
		}
	case ir.OpIneg:
		if in.Type == ir.I64 {
			f.set(in.Results[0], uint64(-int64(f.get(in.Args[0]))))
		} else {
			f.set(in.Results[0], w32(-i32(f, in.Args[0])))
		}
	case ir.OpIabs:
		if in.Type == ir.I64 {
			v := int64(f.get(in.Args[0]))
			if v < 0 {
				v = -v
			}
			f.set(in.Results[0], uint64(v))
		} else {
			v := i32(f, in.Args[0])
			if v < 0 {
				v = -v
			}
			f.set(in.Results[0], w32(v))
		}
	case ir.OpSextend:
		f.set(in.Results[0], uint64(int64(i32(f, in.Args[0]))))
	case ir.OpIreduce:
		f.set(in.Results[0], w32(int32(uint32(f.get(in.Args[0])))))

	case ir.OpFcmp:
		f.set(in.Results[0], b2w(cmpOrdered(in.Pred,
			float64(f32(f, in.Args[0])), float64(f32(f, in.Args[1])))))
	case ir.OpIcmp:
		var x, y int64
		if f.fn.ValueType(in.Args[0]) == ir.I64 {
			x, y = int64(f.get(in.Args[0])), int64(f.get(in.Args[1]))
		} else {
			x, y = int64(i32(f, in.Args[0])), int64(i32(f, in.Args[1]))
		}
		f.set(in.Results[0], b2w(intCmpExact(in.Pred, x, y)))

	case ir.OpBand:
		f.set(in.Results[0], f.get(in.Args[0])&f.get(in.Args[1])&1)
	case ir.OpBor:
		f.set(in.Results[0], (f.get(in.Args[0])|f.get(in.Args[1]))&1)
	case ir.OpBxor:
		f.set(in.Results[0], (f.get(in.Args[0])^f.get(in.Args[1]))&1)
	case ir.OpBnot:
		f.set(in.Results[0], (f.get(in.Args[0])^1)&1)

	case ir.OpFcvtToInt:
		f.set(in.Results[0], w32(int32(f32(f, in.Args[0]))))
	case ir.OpFcvtFromInt:
		f.set(in.Results[0], w32f(float32(i32(f, in.Args[0]))))
	case ir.OpFixedFromFloat, ir.OpFixedToFloat:
		// Pre-transform IR keeps the domain boundary explicit; the machine
		// treats the bits as already converted only after the transform has
		// run, so here the ops perform the real scaling.
		if in.Op == ir.OpFixedFromFloat {
			f.set(in.Results[0], w32(int32(math.Round(float64(f32(f, in.Args[0]))*65536))))
		} else {
			f.set(in.Results[0], w32f(float32(i32(f, in.Args[0]))/65536))
		}

	case ir.OpStackAddr:
		base := f.slotBase[in.Slot]
		f.set(in.Results[0], uint64(base+int64(in.Offset)))

	case ir.OpLoad:
		p, err := f.addr(f.get(in.Args[0]), in.Offset, in.Type.Bytes())
		if err != nil {
			return err
		}
		w := loadBytes(f.mem, p, in.Type.Bytes())
		if in.Type != ir.I64 {
			w = w32(int32(uint32(w)))
		}
		f.set(in.Results[0], w)

	case ir.OpStore:
		p, err := f.addr(f.get(in.Args[1]), in.Offset, in.Type.Bytes())
		if err != nil {
			return err
		}
		storeBytes(f.mem, p, f.get(in.Args[0]), in.Type.Bytes())

	default:
		return fmt.Errorf("eval: %q: no interpretation for %q", f.fn.Name, in.Op)
	}
	return nil
}

func intBinop(op ir.Opcode, x, y int64) int64 {
	switch op {
	case ir.OpIadd:
		return x + y
	case ir.OpIsub:
		return x - y
	case ir.OpImul:
		return x * y
	case ir.OpSmin:
		return min(x, y)
	case ir.OpSmax:
		return max(x, y)
	case ir.OpIshl:
		return x << (uint64(y) & 63)
	case ir.OpSshr:
		return x >> (uint64(y) & 63)
	default:
		panic(fmt.Sprintf("eval: %v is not an integer binop", op))
	}
}

func intCmpExact(p ir.Pred, x, y int64) bool {
	switch p {
	case ir.PredEq:
		return x == y
	case ir.PredNe:
		return x != y
	case ir.PredLt:
		return x < y
	case ir.PredLe:
		return x <= y
	case ir.PredGt:
		return x > y
	default:
		return x >= y
	}
}

func cmpOrdered(p ir.Pred, x, y float64) bool {
	switch p {
	case ir.PredEq:
		return x == y
	case ir.PredNe:
		return x != y
	case ir.PredLt:
		return x < y
	case ir.PredLe:
		return x <= y
	case ir.PredGt:
		return x > y
	default:
		return x >= y
	}
}

func f32(f *frame, v ir.Value) float32 {
	return math.Float32frombits(uint32(f.get(v)))
}

func i32(f *frame, v ir.Value) int32 {
	return int32(uint32(f.get(v)))
}

func w32(v int32) uint64 { return uint64(uint32(v)) }

func w32f(v float32) uint64 { return uint64(math.Float32bits(v)) }

func b2w(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func loadBytes(mem []byte, p int64, n int32) uint64 {
	var w uint64
	for i := int32(0); i < n; i++ {
		w |= uint64(mem[p+int64(i)]) << (8 * i)
	}
	return w
}

func storeBytes(mem []byte, p int64, w uint64, n int32) {
	for i := int32(0); i < n; i++ {
		mem[p+int64(i)] = byte(w >> (8 * i))
	}
}
