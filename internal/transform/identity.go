package transform

import "github.com/lightpixel/lpsl/internal/ir"

// Identity copies a function without changing its semantics. It exists as
// the structural baseline: the rewritten output must be behaviorally
// indistinguishable from its input, which makes it the reference pass for
// exercising the driver's block, slot, and value plumbing.
type Identity struct{}

func (Identity) Name() string { return "identity" }

func (Identity) Signature(sig ir.Signature) ir.Signature { return sig }

func (Identity) ValueType(t ir.Type) ir.Type { return t }

func (Identity) Instruction(rw *Rewriter, in *ir.Instr) error {
	out := in.Clone()
	out.Args = rw.Ctx.Values(in.Args)
	out.Slot = rw.Ctx.Slot(in.Slot)
	for i := range out.Blocks {
		out.Blocks[i].Block = rw.Ctx.Block(in.Blocks[i].Block)
		out.Blocks[i].Args = rw.Ctx.Values(in.Blocks[i].Args)
	}
	if in.Op == ir.OpCall {
		ext := rw.Old.Extern(in.Callee)
		out.Callee = rw.Extern(ext.Name, ext.Sig, ext.Symbol)
	}
	out.Results = nil
	results := rw.Emit(out)
	return rw.Bind(in.Results, results)
}
