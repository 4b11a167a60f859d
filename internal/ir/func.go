package ir

import (
	"fmt"
	"slices"
)

// BlockCall names a branch target together with the arguments bound to the
// target block's parameters.
type BlockCall struct {
	Block BlockID
	Args  []Value
}

// Instr is one instruction: an opcode, ordered operand values, and zero or
// more result values. Fields beyond Op are meaningful only for the opcodes
// that document them.
type Instr struct {
	Op   Opcode
	Type Type // result type for value-producing ops; operand type for stores

	Args    []Value
	Results []Value

	FImm float32 // OpFconst
	IImm int64   // OpIconst
	BImm bool    // OpBconst
	Pred Pred    // OpFcmp, OpIcmp

	Slot   SlotID // OpStackAddr
	Offset int32  // OpStackAddr, OpLoad, OpStore

	Callee FuncRef // OpCall

	Blocks []BlockCall // OpJump, OpBrif
}

// Clone returns a deep copy of the instruction.
func (in Instr) Clone() Instr {
	out := in
	out.Args = slices.Clone(in.Args)
	out.Results = slices.Clone(in.Results)
	out.Blocks = make([]BlockCall, len(in.Blocks))
	for i, bc := range in.Blocks {
		out.Blocks[i] = BlockCall{Block: bc.Block, Args: slices.Clone(bc.Args)}
	}
	return out
}

// Block is an ordered list of typed parameters and instructions, terminated
// by exactly one control-transfer instruction.
type Block struct {
	Params []Value
	Instrs []Instr
}

// Terminator returns the block's final instruction. It panics on an empty
// block; Validate reports that case as an error instead.
func (b *Block) Terminator() *Instr {
	if len(b.Instrs) == 0 {
		panic("ir: terminator of empty block")
	}
	return &b.Instrs[len(b.Instrs)-1]
}

// ExternFunc declares a function callable from this one but defined
// elsewhere: a builtin helper or a sibling function in the same module.
type ExternFunc struct {
	Name   string
	Sig    Signature
	Symbol string
}

// Function is a signature plus an ordered sequence of blocks. The first
// block is the entry block and its parameters are the function parameters.
type Function struct {
	Name    string
	Sig     Signature
	Blocks  []*Block
	Slots   []StackSlot
	Externs []ExternFunc

	valueTypes []Type
}

// NewFunction creates an empty function with the given signature. Blocks,
// slots, and externs are added through the builder methods.
func NewFunction(name string, sig Signature) *Function {
	return &Function{Name: name, Sig: sig}
}

// NewValue allocates a fresh SSA value of the given type.
func (f *Function) NewValue(t Type) Value {
	if t == TypeInvalid {
		panic("ir: NewValue with invalid type")
	}
	f.valueTypes = append(f.valueTypes, t)
	return Value(len(f.valueTypes) - 1)
}

// ValueType returns the type a value was created with.
func (f *Function) ValueType(v Value) Type {
	if int(v) >= len(f.valueTypes) {
		panic(fmt.Sprintf("ir: %v not defined in function %q", v, f.Name))
	}
	return f.valueTypes[v]
}

// NumValues returns the number of values allocated so far.
func (f *Function) NumValues() int { return len(f.valueTypes) }

// AddBlock appends a block with parameters of the given types and returns
// its id. Block ids are dense and ordered.
func (f *Function) AddBlock(paramTypes ...Type) BlockID {
	blk := &Block{}
	for _, t := range paramTypes {
		blk.Params = append(blk.Params, f.NewValue(t))
	}
	f.Blocks = append(f.Blocks, blk)
	return BlockID(len(f.Blocks) - 1)
}

// Block returns the block with the given id.
func (f *Function) Block(id BlockID) *Block {
	if int(id) < 0 || int(id) >= len(f.Blocks) {
		panic(fmt.Sprintf("ir: %v not defined in function %q", id, f.Name))
	}
	return f.Blocks[id]
}

// AddSlot declares an explicit stack slot and returns its id.
func (f *Function) AddSlot(size, align int32) SlotID {
	if size <= 0 || align <= 0 {
		panic("ir: stack slot needs positive size and alignment")
	}
	f.Slots = append(f.Slots, StackSlot{Size: size, Align: align})
	return SlotID(len(f.Slots) - 1)
}

// DeclareExtern records an external callee and returns a reference to it.
// Declaring the same symbol twice returns the existing reference.
func (f *Function) DeclareExtern(name string, sig Signature, symbol string) FuncRef {
	for i, ext := range f.Externs {
		if ext.Symbol == symbol {
			return FuncRef(i)
		}
	}
	f.Externs = append(f.Externs, ExternFunc{Name: name, Sig: sig, Symbol: symbol})
	return FuncRef(len(f.Externs) - 1)
}

// Extern returns the declaration behind a reference.
func (f *Function) Extern(ref FuncRef) ExternFunc {
	if int(ref) < 0 || int(ref) >= len(f.Externs) {
		panic(fmt.Sprintf("ir: %v not declared in function %q", ref, f.Name))
	}
	return f.Externs[ref]
}

// Append adds an instruction to a block, allocating its result values from
// the opcode's shape: none for stores and terminators, one of Instr.Type for
// ordinary ops, and one per callee return for calls. It returns the results.
func (f *Function) Append(id BlockID, in Instr) []Value {
	blk := f.Block(id)
	if len(blk.Instrs) > 0 && blk.Instrs[len(blk.Instrs)-1].Op.IsTerminator() {
		panic(fmt.Sprintf("ir: append %v after terminator in %v of %q", in.Op, id, f.Name))
	}

	switch opTable[in.Op].results {
	case resultsOne:
		in.Results = []Value{f.NewValue(in.Type)}
	case resultsCall:
		sig := f.Extern(in.Callee).Sig
		in.Results = make([]Value, len(sig.Returns))
		for i, r := range sig.Returns {
			in.Results[i] = f.NewValue(r.Type)
		}
	}

	blk.Instrs = append(blk.Instrs, in)
	return in.Results
}

// Validate checks the structural invariants every pipeline stage relies on:
// each block ends in exactly one terminator, every value is assigned exactly
// once, operands reference defined values, and branch arguments match the
// target block's parameter list.
func (f *Function) Validate() error {
	if len(f.Blocks) == 0 {
		return fmt.Errorf("function %q has no blocks", f.Name)
	}

	defined := make([]bool, len(f.valueTypes))
	define := func(v Value, where string) error {
		if int(v) >= len(f.valueTypes) {
			return fmt.Errorf("function %q: %s defines unknown value %v", f.Name, where, v)
		}
		if defined[v] {
			return fmt.Errorf("function %q: %s assigns %v twice", f.Name, where, v)
		}
		defined[v] = true
		return nil
	}

	for bid, blk := range f.Blocks {
		for _, p := range blk.Params {
			if err := define(p, BlockID(bid).String()); err != nil {
				return err
			}
		}
	}

	for bid, blk := range f.Blocks {
		if len(blk.Instrs) == 0 {
			return fmt.Errorf("function %q: %v is empty", f.Name, BlockID(bid))
		}
		for i, in := range blk.Instrs {
			last := i == len(blk.Instrs)-1
			if in.Op.IsTerminator() != last {
				return fmt.Errorf("function %q: %v instruction %d (%v) misplaces the terminator",
					f.Name, BlockID(bid), i, in.Op)
			}
			for _, a := range in.Args {
				if int(a) >= len(f.valueTypes) {
					return fmt.Errorf("function %q: %v references unknown value %v",
						f.Name, BlockID(bid), a)
				}
			}
			for _, r := range in.Results {
				if err := define(r, fmt.Sprintf("%v instruction %d", BlockID(bid), i)); err != nil {
					return err
				}
			}
			for _, bc := range in.Blocks {
				if int(bc.Block) < 0 || int(bc.Block) >= len(f.Blocks) {
					return fmt.Errorf("function %q: branch to unknown %v", f.Name, bc.Block)
				}
				target := f.Blocks[bc.Block]
				if len(bc.Args) != len(target.Params) {
					return fmt.Errorf("function %q: branch to %v passes %d args, block takes %d",
						f.Name, bc.Block, len(bc.Args), len(target.Params))
				}
				for j, a := range bc.Args {
					if f.ValueType(a) != f.ValueType(target.Params[j]) {
						return fmt.Errorf("function %q: branch to %v arg %d is %v, block param is %v",
							f.Name, bc.Block, j, f.ValueType(a), f.ValueType(target.Params[j]))
					}
				}
			}
		}
	}
	return nil
}

// Module is an ordered collection of functions compiled together. Order
// matters for sibling-call redirection during transforms.
type Module struct {
	Funcs []*Function
}

// Lookup finds a function by name, or nil.
func (m *Module) Lookup(name string) *Function {
	for _, fn := range m.Funcs {
		if fn.Name == name {
			return fn
		}
	}
	return nil
}
