package transform

import (
	"fmt"

	"github.com/lightpixel/lpsl/internal/ir"
)

// UnsupportedError reports an opcode with no registered converter. The
// driver fails the whole function rewrite rather than passing the
// instruction through, because silent pass-through would corrupt numeric
// semantics.
type UnsupportedError struct {
	Function string
	Op       ir.Opcode
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("function %q: no converter for instruction %q", e.Function, e.Op)
}

// ShapeError reports an instruction whose operand layout violates a
// converter's precondition. It guards against upstream IR-invariant
// violations, not against anything this package produces itself.
type ShapeError struct {
	Function string
	Op       ir.Opcode
	Reason   string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("function %q: instruction %q: %s", e.Function, e.Op, e.Reason)
}

// UnknownBuiltinError reports a call site referencing a function that is
// neither a sibling in the module nor a registered builtin.
type UnknownBuiltinError struct {
	Function string
	Callee   string
}

func (e *UnknownBuiltinError) Error() string {
	return fmt.Sprintf("function %q: call to unknown builtin %q", e.Function, e.Callee)
}
