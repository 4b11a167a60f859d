// Command lpsl is the developer tool for the fixed-point shader pipeline:
// it transforms textual IR modules, executes functions before and after the
// rewrite, and inspects the builtin and target catalogs.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/x/ansi"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/lightpixel/lpsl/internal/abi"
	"github.com/lightpixel/lpsl/internal/builtins"
	"github.com/lightpixel/lpsl/internal/eval"
	"github.com/lightpixel/lpsl/internal/fixed"
	"github.com/lightpixel/lpsl/internal/ir"
	"github.com/lightpixel/lpsl/internal/transform"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "lpsl: %s\n", errorText(err))
		os.Exit(1)
	}
}

func run() error {
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <command> [args...]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  transform <file.lpir>   Rewrite a module to fixed-point and print it\n")
		fmt.Fprintf(os.Stderr, "  run <file.lpir>         Evaluate a function before and after the rewrite\n")
		fmt.Fprintf(os.Stderr, "  registry                Validate and list the builtin catalog\n")
		fmt.Fprintf(os.Stderr, "  targets                 List the ABI target catalog\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *debug {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		return fmt.Errorf("command required")
	}

	switch args[0] {
	case "transform":
		return cmdTransform(args[1:])
	case "run":
		return cmdRun(args[1:])
	case "registry":
		return cmdRegistry(args[1:])
	case "targets":
		return cmdTargets(args[1:])
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func cmdTransform(args []string) error {
	fs := flag.NewFlagSet("transform", flag.ExitOnError)
	identity := fs.Bool("identity", false, "Apply the identity transform instead of fixed-point")
	targetName := fs.String("target", "", "ABI target name (default: host)")
	fs.Parse(args)

	if fs.NArg() != 1 {
		return fmt.Errorf("transform: exactly one module file required")
	}
	mod, err := loadModule(fs.Arg(0))
	if err != nil {
		return err
	}

	t, err := buildTransform(*identity, *targetName)
	if err != nil {
		return err
	}

	var done func(*ir.Function)
	if len(mod.Funcs) > 1 && term.IsTerminal(int(os.Stderr.Fd())) {
		bar := progressbar.Default(int64(len(mod.Funcs)), "transform")
		done = func(*ir.Function) { bar.Add(1) }
	}

	out, err := transform.ApplyModuleObserved(t, mod, done)
	if err != nil {
		return err
	}
	for _, fn := range out.Funcs {
		fmt.Print(fn.Format())
	}
	return nil
}

func cmdRun(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	fnName := fs.String("fn", "", "Function to evaluate (default: first in the module)")
	argList := fs.String("args", "", "Comma-separated arguments, floats for f32 parameters")
	targetName := fs.String("target", "", "ABI target name (default: host)")
	fs.Parse(args)

	if fs.NArg() != 1 {
		return fmt.Errorf("run: exactly one module file required")
	}
	mod, err := loadModule(fs.Arg(0))
	if err != nil {
		return err
	}

	name := *fnName
	if name == "" {
		name = mod.Funcs[0].Name
	}
	fn := mod.Lookup(name)
	if fn == nil {
		return fmt.Errorf("run: module has no function %q", name)
	}

	floats, err := parseArgs(*argList, len(fn.Sig.Params))
	if err != nil {
		return err
	}

	reg, err := builtins.Default()
	if err != nil {
		return err
	}

	// Float side first.
	floatMachine := eval.NewMachine(reg)
	if err := floatMachine.LoadModule(mod); err != nil {
		return err
	}
	floatWords := make([]uint64, len(floats))
	for i, p := range fn.Sig.Params {
		floatWords[i] = encodeArg(p.Type, floats[i], false)
	}
	floatOut, err := floatMachine.Run(name, floatWords)
	if err != nil {
		return fmt.Errorf("float evaluation: %w", err)
	}
	printResult("float", fn.Sig, floatOut, false)

	// Then the fixed-point rewrite of the same module.
	t, err := buildTransform(false, *targetName)
	if err != nil {
		return err
	}
	fixedMod, err := transform.ApplyModule(t, mod)
	if err != nil {
		return err
	}
	fixedMachine := eval.NewMachine(reg)
	if err := fixedMachine.LoadModule(fixedMod); err != nil {
		return err
	}
	fixedWords := make([]uint64, len(floats))
	for i, p := range fn.Sig.Params {
		fixedWords[i] = encodeArg(p.Type, floats[i], true)
	}
	fixedOut, err := fixedMachine.Run(name, fixedWords)
	if err != nil {
		return fmt.Errorf("fixed-point evaluation: %w", err)
	}
	printResult("fixed", fn.Sig, fixedOut, true)
	return nil
}

func cmdRegistry(args []string) error {
	fs := flag.NewFlagSet("registry", flag.ExitOnError)
	addrs := fs.Bool("addrs", false, "Resolve builtin symbols against the host process")
	fs.Parse(args)

	reg, err := builtins.Default()
	if err != nil {
		return fmt.Errorf("builtin catalog is invalid: %w", err)
	}

	for _, e := range reg.Entries() {
		params := make([]string, len(e.Params))
		for i, p := range e.Params {
			params[i] = p.Type.String()
		}
		fmt.Printf("%s(%s) -> %s\n", e.Name, strings.Join(params, ", "), e.Return)
		variants := []builtins.Variant{builtins.VariantFloat}
		if e.NumericDependent() {
			variants = append(variants, builtins.VariantFixedPoint)
		}
		for _, v := range variants {
			symbol, ok := reg.ImplementationFor(e, v)
			if !ok {
				continue
			}
			line := fmt.Sprintf("  %-12s %s", v, symbol)
			if *addrs {
				if addr, err := abi.HostSymbol(symbol); err == nil {
					line += fmt.Sprintf("  0x%x", addr)
				} else {
					line += "  (not loaded)"
				}
			}
			fmt.Println(line)
		}
	}
	return nil
}

func cmdTargets(args []string) error {
	fs := flag.NewFlagSet("targets", flag.ExitOnError)
	fs.Parse(args)

	cat, err := abi.DefaultCatalog()
	if err != nil {
		return err
	}

	// A vec3-returning signature shows where each target flips to
	// struct-return.
	vec3 := ir.Signature{Returns: []ir.Param{{Type: ir.I32}, {Type: ir.I32}, {Type: ir.I32}}}
	fmt.Printf("%-18s %8s %8s %8s  %s\n", "target", "ptr", "elem", "regs", "vec3 return")
	for _, t := range cat.Targets {
		plan := t.Resolve(vec3)
		fmt.Printf("%-18s %8d %8d %8d  %s\n",
			t.Name, t.PointerBytes, t.ElementBytes, t.ReturnRegisters, plan.Convention)
	}
	return nil
}

func buildTransform(identity bool, targetName string) (transform.Transform, error) {
	if identity {
		return transform.Identity{}, nil
	}
	cfg := transform.FixedPointConfig{Format: fixed.Fixed16x16}
	if targetName != "" {
		t, err := abi.DefaultTarget(targetName)
		if err != nil {
			return nil, err
		}
		cfg.Target = t
	}
	return transform.NewFixedPoint(cfg)
}

func loadModule(path string) (*ir.Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	mod, err := ir.ParseModule(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(mod.Funcs) == 0 {
		return nil, fmt.Errorf("%s: module is empty", path)
	}
	return mod, nil
}

func parseArgs(list string, want int) ([]float64, error) {
	var out []float64
	if list != "" {
		for _, part := range strings.Split(list, ",") {
			v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
			if err != nil {
				return nil, fmt.Errorf("argument %q: %w", part, err)
			}
			out = append(out, v)
		}
	}
	if len(out) != want {
		return nil, fmt.Errorf("function takes %d arguments, got %d", want, len(out))
	}
	return out, nil
}

func encodeArg(t ir.Type, v float64, fixedDomain bool) uint64 {
	switch t {
	case ir.F32:
		if fixedDomain {
			return uint64(uint32(fixed.FromFloat32(float32(v)).Bits()))
		}
		return uint64(math.Float32bits(float32(v)))
	case ir.B1:
		if v != 0 {
			return 1
		}
		return 0
	default:
		return uint64(uint32(int32(v)))
	}
}

func printResult(label string, sig ir.Signature, words []uint64, fixedDomain bool) {
	parts := make([]string, len(words))
	for i, w := range words {
		t := ir.I32
		if i < len(sig.Returns) {
			t = sig.Returns[i].Type
		}
		switch {
		case t == ir.F32 && fixedDomain:
			parts[i] = strconv.FormatFloat(float64(fixed.FromBits(int32(uint32(w))).Float32()), 'g', -1, 32)
		case t == ir.F32:
			parts[i] = strconv.FormatFloat(float64(math.Float32frombits(uint32(w))), 'g', -1, 32)
		case t == ir.B1:
			parts[i] = strconv.FormatBool(w != 0)
		default:
			parts[i] = strconv.FormatInt(int64(int32(uint32(w))), 10)
		}
	}
	fmt.Printf("%-6s %s\n", label+":", strings.Join(parts, ", "))
}

func errorText(err error) string {
	if term.IsTerminal(int(os.Stderr.Fd())) {
		return ansi.Style{}.ForegroundColor(ansi.Red).Styled(err.Error())
	}
	return err.Error()
}
