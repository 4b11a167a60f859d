package builtins

// Runtime helper symbols. These are not source-callable builtins; the
// fixed-point transform lowers fdiv and fsqrt instructions to direct calls
// on them, and the embedded runtime links the same routines by these names.
const (
	SymbolFixedDiv  = "__lp_fixed32_div"
	SymbolFixedSqrt = "__lp_fixed32_sqrt"
)

func runtimeSymbols() map[string]Impl {
	return map[string]Impl{
		SymbolFixedDiv: func(args []uint32) []uint32 {
			q := wordFixed(args[0]).Div(wordFixed(args[1]))
			return []uint32{fixedWord(q)}
		},
		SymbolFixedSqrt: func(args []uint32) []uint32 {
			return []uint32{fixedWord(wordFixed(args[0]).Sqrt())}
		},
	}
}
