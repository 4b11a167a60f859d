package ir

import "fmt"

// Opcode enumerates every instruction the pipeline understands. The set is
// closed: transforms dispatch over it exhaustively and fail loudly on
// anything they do not handle.
type Opcode uint8

const (
	OpInvalid Opcode = iota

	// Constants.
	OpFconst // FImm
	OpIconst // IImm, width from Type
	OpBconst // BImm

	// Float arithmetic.
	OpFadd
	OpFsub
	OpFmul
	OpFdiv
	OpFneg
	OpFabs
	OpFmin
	OpFmax
	OpFsqrt

	// Integer arithmetic.
	OpIadd
	OpIsub
	OpImul
	OpIneg
	OpIabs
	OpSmin
	OpSmax
	OpIshl    // logical shift left, amount in second operand
	OpSshr    // arithmetic shift right, amount in second operand
	OpSextend // sign-extend i32 to i64
	OpIreduce // truncate i64 to i32

	// Comparisons, result B1, predicate in Pred.
	OpFcmp
	OpIcmp

	// Booleans.
	OpBand
	OpBor
	OpBxor
	OpBnot

	// Conversions.
	OpFcvtToInt      // f32 -> i32
	OpFcvtFromInt    // i32 -> f32
	OpFixedFromFloat // numeric-domain boundary: float in, fixed out
	OpFixedToFloat   // numeric-domain boundary: fixed in, float out

	// Memory.
	OpStackAddr // Slot, Offset; result is an address
	OpLoad      // Type; operand address, Offset
	OpStore     // operands value, address; Offset

	// Control transfer.
	OpJump   // Blocks[0]
	OpBrif   // operand condition; Blocks[0] then, Blocks[1] else
	OpReturn // operands are the return values

	// Calls.
	OpCall // Callee; results per callee signature

	numOpcodes
)

// Pred is a comparison predicate shared by OpFcmp and OpIcmp. Icmp is always
// signed; fixed-point ordering equals integer ordering.
type Pred uint8

const (
	PredInvalid Pred = iota
	PredEq
	PredNe
	PredLt
	PredLe
	PredGt
	PredGe
)

func (p Pred) String() string {
	switch p {
	case PredEq:
		return "eq"
	case PredNe:
		return "ne"
	case PredLt:
		return "lt"
	case PredLe:
		return "le"
	case PredGt:
		return "gt"
	case PredGe:
		return "ge"
	default:
		return fmt.Sprintf("Pred(%d)", uint8(p))
	}
}

// PredFromString parses the textual form produced by Pred.String.
func PredFromString(s string) (Pred, bool) {
	for p := PredEq; p <= PredGe; p++ {
		if p.String() == s {
			return p, true
		}
	}
	return PredInvalid, false
}

type resultKind uint8

const (
	resultsNone resultKind = iota
	resultsOne             // one result of Instr.Type
	resultsCall            // results from the callee signature
)

type opInfo struct {
	name       string
	results    resultKind
	terminator bool
}

var opTable = [numOpcodes]opInfo{
	OpFconst:         {name: "fconst", results: resultsOne},
	OpIconst:         {name: "iconst", results: resultsOne},
	OpBconst:         {name: "bconst", results: resultsOne},
	OpFadd:           {name: "fadd", results: resultsOne},
	OpFsub:           {name: "fsub", results: resultsOne},
	OpFmul:           {name: "fmul", results: resultsOne},
	OpFdiv:           {name: "fdiv", results: resultsOne},
	OpFneg:           {name: "fneg", results: resultsOne},
	OpFabs:           {name: "fabs", results: resultsOne},
	OpFmin:           {name: "fmin", results: resultsOne},
	OpFmax:           {name: "fmax", results: resultsOne},
	OpFsqrt:          {name: "fsqrt", results: resultsOne},
	OpIadd:           {name: "iadd", results: resultsOne},
	OpIsub:           {name: "isub", results: resultsOne},
	OpImul:           {name: "imul", results: resultsOne},
	OpIneg:           {name: "ineg", results: resultsOne},
	OpIabs:           {name: "iabs", results: resultsOne},
	OpSmin:           {name: "smin", results: resultsOne},
	OpSmax:           {name: "smax", results: resultsOne},
	OpIshl:           {name: "ishl", results: resultsOne},
	OpSshr:           {name: "sshr", results: resultsOne},
	OpSextend:        {name: "sextend", results: resultsOne},
	OpIreduce:        {name: "ireduce", results: resultsOne},
	OpFcmp:           {name: "fcmp", results: resultsOne},
	OpIcmp:           {name: "icmp", results: resultsOne},
	OpBand:           {name: "band", results: resultsOne},
	OpBor:            {name: "bor", results: resultsOne},
	OpBxor:           {name: "bxor", results: resultsOne},
	OpBnot:           {name: "bnot", results: resultsOne},
	OpFcvtToInt:      {name: "fcvt_to_int", results: resultsOne},
	OpFcvtFromInt:    {name: "fcvt_from_int", results: resultsOne},
	OpFixedFromFloat: {name: "fixed_from_float", results: resultsOne},
	OpFixedToFloat:   {name: "fixed_to_float", results: resultsOne},
	OpStackAddr:      {name: "stack_addr", results: resultsOne},
	OpLoad:           {name: "load", results: resultsOne},
	OpStore:          {name: "store", results: resultsNone},
	OpJump:           {name: "jump", results: resultsNone, terminator: true},
	OpBrif:           {name: "brif", results: resultsNone, terminator: true},
	OpReturn:         {name: "return", results: resultsNone, terminator: true},
	OpCall:           {name: "call", results: resultsCall},
}

func (op Opcode) String() string {
	if op < numOpcodes && opTable[op].name != "" {
		return opTable[op].name
	}
	return fmt.Sprintf("Opcode(%d)", uint8(op))
}

// IsTerminator reports whether the opcode transfers control out of a block.
func (op Opcode) IsTerminator() bool {
	return op < numOpcodes && opTable[op].terminator
}

// OpcodeFromString parses the textual form produced by Opcode.String.
func OpcodeFromString(s string) (Opcode, bool) {
	for op := Opcode(1); op < numOpcodes; op++ {
		if opTable[op].name == s {
			return op, true
		}
	}
	return OpInvalid, false
}
