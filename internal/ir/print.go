package ir

import (
	"fmt"
	"strconv"
	"strings"
)

// Format renders the function in the textual form accepted by Parse.
func (f *Function) Format() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "function %%%s%s {\n", f.Name, f.Sig.format())

	for i, slot := range f.Slots {
		fmt.Fprintf(&sb, "    %v = slot %d, align %d\n", SlotID(i), slot.Size, slot.Align)
	}
	for i, ext := range f.Externs {
		fmt.Fprintf(&sb, "    %v = %%%s sig%s symbol %s\n", FuncRef(i), ext.Name, ext.Sig.format(), ext.Symbol)
	}
	if len(f.Slots) > 0 || len(f.Externs) > 0 {
		sb.WriteString("\n")
	}

	for bid, blk := range f.Blocks {
		if bid > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(BlockID(bid).String())
		if len(blk.Params) > 0 {
			parts := make([]string, len(blk.Params))
			for i, p := range blk.Params {
				parts[i] = fmt.Sprintf("%v: %v", p, f.ValueType(p))
			}
			fmt.Fprintf(&sb, "(%s)", strings.Join(parts, ", "))
		}
		sb.WriteString(":\n")
		for i := range blk.Instrs {
			fmt.Fprintf(&sb, "    %s\n", f.formatInstr(&blk.Instrs[i]))
		}
	}

	sb.WriteString("}\n")
	return sb.String()
}

// String renders the signature in its textual-IR form.
func (s Signature) String() string { return s.format() }

func (s Signature) format() string {
	var sb strings.Builder
	sb.WriteString("(")
	for i, p := range s.Params {
		if i > 0 {
			sb.WriteString(", ")
		}
		if p.Purpose == StructReturn {
			sb.WriteString("sret ")
		}
		sb.WriteString(p.Type.String())
	}
	sb.WriteString(")")
	if len(s.Returns) > 0 {
		sb.WriteString(" -> ")
		for i, r := range s.Returns {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(r.Type.String())
		}
	}
	return sb.String()
}

func (f *Function) formatInstr(in *Instr) string {
	var sb strings.Builder

	if len(in.Results) > 0 {
		parts := make([]string, len(in.Results))
		for i, r := range in.Results {
			parts[i] = r.String()
		}
		sb.WriteString(strings.Join(parts, ", "))
		sb.WriteString(" = ")
	}

	sb.WriteString(in.Op.String())
	// Stores carry the operand width even though they produce no result.
	if opTable[in.Op].results == resultsOne || in.Op == OpStore {
		sb.WriteString(".")
		sb.WriteString(in.Type.String())
	}

	switch in.Op {
	case OpFconst:
		fmt.Fprintf(&sb, " %s", strconv.FormatFloat(float64(in.FImm), 'g', -1, 32))
	case OpIconst:
		fmt.Fprintf(&sb, " %d", in.IImm)
	case OpBconst:
		fmt.Fprintf(&sb, " %t", in.BImm)
	case OpFcmp, OpIcmp:
		fmt.Fprintf(&sb, " %v %s", in.Pred, joinValues(in.Args))
	case OpStackAddr:
		fmt.Fprintf(&sb, " %v%s", in.Slot, formatOffset(in.Offset))
	case OpLoad:
		fmt.Fprintf(&sb, " %v%s", in.Args[0], formatOffset(in.Offset))
	case OpStore:
		fmt.Fprintf(&sb, " %v, %v%s", in.Args[0], in.Args[1], formatOffset(in.Offset))
	case OpJump:
		fmt.Fprintf(&sb, " %s", formatBlockCall(in.Blocks[0]))
	case OpBrif:
		fmt.Fprintf(&sb, " %v, %s, %s", in.Args[0], formatBlockCall(in.Blocks[0]), formatBlockCall(in.Blocks[1]))
	case OpCall:
		fmt.Fprintf(&sb, " %v(%s)", in.Callee, joinValues(in.Args))
	default:
		if len(in.Args) > 0 {
			sb.WriteString(" ")
			sb.WriteString(joinValues(in.Args))
		}
	}

	return sb.String()
}

func joinValues(vals []Value) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = v.String()
	}
	return strings.Join(parts, ", ")
}

func formatOffset(off int32) string {
	if off == 0 {
		return ""
	}
	return fmt.Sprintf("%+d", off)
}

func formatBlockCall(bc BlockCall) string {
	if len(bc.Args) == 0 {
		return bc.Block.String()
	}
	return fmt.Sprintf("%s(%s)", bc.Block, joinValues(bc.Args))
}
