package ir

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
)

// ParseModule reads one or more textual functions, in the format produced by
// Function.Format, into a Module. Lines starting with ';' are comments.
func ParseModule(src string) (*Module, error) {
	m := &Module{}
	sc := bufio.NewScanner(strings.NewReader(src))
	lineNo := 0

	var cur []string
	var startLine int
	flush := func() error {
		if cur == nil {
			return nil
		}
		fn, err := parseFunction(cur, startLine)
		if err != nil {
			return err
		}
		m.Funcs = append(m.Funcs, fn)
		cur = nil
		return nil
	}

	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "function ") {
			if err := flush(); err != nil {
				return nil, err
			}
			startLine = lineNo
		}
		if cur == nil && !strings.HasPrefix(line, "function ") {
			return nil, fmt.Errorf("line %d: expected function header, got %q", lineNo, line)
		}
		cur = append(cur, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if err := flush(); err != nil {
		return nil, err
	}
	if len(m.Funcs) == 0 {
		return nil, fmt.Errorf("no functions found")
	}
	return m, nil
}

// Parse reads a single textual function.
func Parse(src string) (*Function, error) {
	m, err := ParseModule(src)
	if err != nil {
		return nil, err
	}
	if len(m.Funcs) != 1 {
		return nil, fmt.Errorf("expected one function, found %d", len(m.Funcs))
	}
	return m.Funcs[0], nil
}

type parser struct {
	fn     *Function
	values map[string]Value
	line   int
}

func parseFunction(lines []string, startLine int) (*Function, error) {
	header := lines[0]
	body := lines[1:]
	if strings.HasSuffix(header, "{") {
		header = strings.TrimSpace(strings.TrimSuffix(header, "{"))
	}
	rest, ok := strings.CutPrefix(header, "function %")
	if !ok {
		return nil, fmt.Errorf("line %d: malformed function header %q", startLine, header)
	}
	open := strings.Index(rest, "(")
	if open < 0 {
		return nil, fmt.Errorf("line %d: function header missing signature", startLine)
	}
	name := rest[:open]
	sig, err := parseSignature(rest[open:])
	if err != nil {
		return nil, fmt.Errorf("line %d: %w", startLine, err)
	}

	p := &parser{fn: NewFunction(name, sig), values: make(map[string]Value)}

	// The preamble (slots, externs) and block headers come first so branch
	// targets and block parameters resolve regardless of order.
	var blockBodies [][]string
	var curBody []string
	inBlocks := false
	for i, line := range body {
		p.line = startLine + 1 + i
		switch {
		case line == "}":
			// end of function
		case strings.HasPrefix(line, "block"):
			inBlocks = true
			if curBody != nil {
				blockBodies = append(blockBodies, curBody)
			}
			curBody = []string{}
			if err := p.parseBlockHeader(line); err != nil {
				return nil, err
			}
		case !inBlocks:
			if err := p.parsePreamble(line); err != nil {
				return nil, err
			}
		default:
			curBody = append(curBody, line)
		}
	}
	if curBody != nil {
		blockBodies = append(blockBodies, curBody)
	}
	if len(blockBodies) != len(p.fn.Blocks) {
		return nil, fmt.Errorf("line %d: function %q has mismatched block bodies", startLine, name)
	}

	for bid, bodyLines := range blockBodies {
		for _, line := range bodyLines {
			if err := p.parseInstr(BlockID(bid), line); err != nil {
				return nil, err
			}
		}
	}

	if err := p.fn.Validate(); err != nil {
		return nil, err
	}
	return p.fn, nil
}

func parseSignature(s string) (Signature, error) {
	s = strings.TrimSpace(s)
	open := strings.Index(s, "(")
	closing := strings.Index(s, ")")
	if open != 0 || closing < 0 {
		return Signature{}, fmt.Errorf("malformed signature %q", s)
	}
	var sig Signature
	for _, part := range splitList(s[1:closing]) {
		p := Param{}
		if rest, ok := strings.CutPrefix(part, "sret "); ok {
			p.Purpose = StructReturn
			part = rest
		}
		t, ok := TypeFromString(strings.TrimSpace(part))
		if !ok {
			return Signature{}, fmt.Errorf("unknown type %q in signature", part)
		}
		p.Type = t
		sig.Params = append(sig.Params, p)
	}
	rest := strings.TrimSpace(s[closing+1:])
	if rest != "" {
		rets, ok := strings.CutPrefix(rest, "->")
		if !ok {
			return Signature{}, fmt.Errorf("malformed signature tail %q", rest)
		}
		for _, part := range splitList(rets) {
			t, ok := TypeFromString(strings.TrimSpace(part))
			if !ok {
				return Signature{}, fmt.Errorf("unknown return type %q", part)
			}
			sig.Returns = append(sig.Returns, Param{Type: t})
		}
	}
	return sig, nil
}

func (p *parser) parsePreamble(line string) error {
	name, def, ok := strings.Cut(line, " = ")
	if !ok {
		return fmt.Errorf("line %d: malformed preamble %q", p.line, line)
	}
	switch {
	case strings.HasPrefix(name, "ss"):
		var size, align int32
		if _, err := fmt.Sscanf(def, "slot %d, align %d", &size, &align); err != nil {
			return fmt.Errorf("line %d: malformed slot %q", p.line, line)
		}
		p.fn.AddSlot(size, align)
	case strings.HasPrefix(name, "fn"):
		rest, ok := strings.CutPrefix(def, "%")
		if !ok {
			return fmt.Errorf("line %d: malformed extern %q", p.line, line)
		}
		extName, sigPart, ok := strings.Cut(rest, " sig")
		if !ok {
			return fmt.Errorf("line %d: extern missing signature %q", p.line, line)
		}
		sigText, symbol, ok := strings.Cut(sigPart, " symbol ")
		if !ok {
			return fmt.Errorf("line %d: extern missing symbol %q", p.line, line)
		}
		sig, err := parseSignature(sigText)
		if err != nil {
			return fmt.Errorf("line %d: %w", p.line, err)
		}
		p.fn.DeclareExtern(extName, sig, strings.TrimSpace(symbol))
	default:
		return fmt.Errorf("line %d: unrecognized preamble %q", p.line, line)
	}
	return nil
}

func (p *parser) parseBlockHeader(line string) error {
	line = strings.TrimSuffix(line, ":")
	var paramTypes []Type
	var paramNames []string
	if open := strings.Index(line, "("); open >= 0 {
		inner := strings.TrimSuffix(line[open+1:], ")")
		for _, part := range splitList(inner) {
			name, tname, ok := strings.Cut(part, ":")
			if !ok {
				return fmt.Errorf("line %d: malformed block parameter %q", p.line, part)
			}
			t, okT := TypeFromString(strings.TrimSpace(tname))
			if !okT {
				return fmt.Errorf("line %d: unknown type in block parameter %q", p.line, part)
			}
			paramTypes = append(paramTypes, t)
			paramNames = append(paramNames, strings.TrimSpace(name))
		}
	}
	bid := p.fn.AddBlock(paramTypes...)
	for i, name := range paramNames {
		if _, dup := p.values[name]; dup {
			return fmt.Errorf("line %d: value %s defined twice", p.line, name)
		}
		p.values[name] = p.fn.Block(bid).Params[i]
	}
	return nil
}

func (p *parser) parseInstr(bid BlockID, line string) error {
	var resultNames []string
	if lhs, rhs, ok := strings.Cut(line, " = "); ok && strings.HasPrefix(lhs, "v") {
		resultNames = splitList(lhs)
		line = rhs
	}

	opWord, rest, _ := strings.Cut(line, " ")
	opName, typeName, hasType := strings.Cut(opWord, ".")
	op, ok := OpcodeFromString(opName)
	if !ok {
		return fmt.Errorf("line %d: unknown opcode %q", p.line, opName)
	}
	in := Instr{Op: op}
	if hasType {
		t, okT := TypeFromString(typeName)
		if !okT {
			return fmt.Errorf("line %d: unknown type suffix %q", p.line, typeName)
		}
		in.Type = t
	}
	rest = strings.TrimSpace(rest)

	var err error
	switch op {
	case OpFconst:
		var v float64
		v, err = strconv.ParseFloat(rest, 32)
		in.FImm = float32(v)
	case OpIconst:
		in.IImm, err = strconv.ParseInt(rest, 0, 64)
	case OpBconst:
		in.BImm, err = strconv.ParseBool(rest)
	case OpFcmp, OpIcmp:
		predName, operands, okP := strings.Cut(rest, " ")
		if !okP {
			return fmt.Errorf("line %d: comparison needs predicate and operands", p.line)
		}
		pred, okPred := PredFromString(predName)
		if !okPred {
			return fmt.Errorf("line %d: unknown predicate %q", p.line, predName)
		}
		in.Pred = pred
		in.Args, err = p.resolveValues(splitList(operands))
	case OpStackAddr:
		base, off := splitOffset(rest)
		var slot int
		if _, err = fmt.Sscanf(base, "ss%d", &slot); err != nil {
			return fmt.Errorf("line %d: malformed stack_addr %q", p.line, rest)
		}
		in.Slot, in.Offset = SlotID(slot), off
	case OpLoad:
		base, off := splitOffset(rest)
		in.Offset = off
		in.Args, err = p.resolveValues([]string{base})
	case OpStore:
		parts := splitList(rest)
		if len(parts) != 2 {
			return fmt.Errorf("line %d: store needs value and address", p.line)
		}
		base, off := splitOffset(parts[1])
		in.Offset = off
		in.Args, err = p.resolveValues([]string{parts[0], base})
	case OpJump:
		var bc BlockCall
		bc, err = p.parseBlockCall(rest)
		in.Blocks = []BlockCall{bc}
	case OpBrif:
		cond, targets, okB := strings.Cut(rest, ", ")
		if !okB {
			return fmt.Errorf("line %d: brif needs condition and targets", p.line)
		}
		if in.Args, err = p.resolveValues([]string{cond}); err != nil {
			break
		}
		thenPart, elsePart, okT := cutTopLevel(targets)
		if !okT {
			return fmt.Errorf("line %d: brif needs two targets", p.line)
		}
		var thenBC, elseBC BlockCall
		if thenBC, err = p.parseBlockCall(thenPart); err != nil {
			break
		}
		if elseBC, err = p.parseBlockCall(elsePart); err != nil {
			break
		}
		in.Blocks = []BlockCall{thenBC, elseBC}
	case OpCall:
		open := strings.Index(rest, "(")
		if open < 0 || !strings.HasSuffix(rest, ")") {
			return fmt.Errorf("line %d: malformed call %q", p.line, rest)
		}
		var ref int
		if _, err = fmt.Sscanf(rest[:open], "fn%d", &ref); err != nil {
			return fmt.Errorf("line %d: malformed callee %q", p.line, rest[:open])
		}
		in.Callee = FuncRef(ref)
		in.Args, err = p.resolveValues(splitList(rest[open+1 : len(rest)-1]))
	default:
		if rest != "" {
			in.Args, err = p.resolveValues(splitList(rest))
		}
	}
	if err != nil {
		return fmt.Errorf("line %d: %w", p.line, err)
	}

	results := p.fn.Append(bid, in)
	if len(results) != len(resultNames) {
		return fmt.Errorf("line %d: %v produces %d results, %d named", p.line, op, len(results), len(resultNames))
	}
	for i, name := range resultNames {
		if _, dup := p.values[name]; dup {
			return fmt.Errorf("line %d: value %s defined twice", p.line, name)
		}
		p.values[name] = results[i]
	}
	return nil
}

func (p *parser) parseBlockCall(s string) (BlockCall, error) {
	s = strings.TrimSpace(s)
	var bc BlockCall
	argPart := ""
	if open := strings.Index(s, "("); open >= 0 {
		argPart = strings.TrimSuffix(s[open+1:], ")")
		s = s[:open]
	}
	var id int
	if _, err := fmt.Sscanf(s, "block%d", &id); err != nil {
		return bc, fmt.Errorf("malformed block target %q", s)
	}
	bc.Block = BlockID(id)
	args, err := p.resolveValues(splitList(argPart))
	if err != nil {
		return bc, err
	}
	bc.Args = args
	return bc, nil
}

func (p *parser) resolveValues(names []string) ([]Value, error) {
	if len(names) == 0 {
		return nil, nil
	}
	out := make([]Value, len(names))
	for i, name := range names {
		v, ok := p.values[strings.TrimSpace(name)]
		if !ok {
			return nil, fmt.Errorf("use of undefined value %q", name)
		}
		out[i] = v
	}
	return out, nil
}

// splitList splits a comma-separated list, ignoring commas inside parens.
func splitList(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	var out []string
	depth, start := 0, 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	out = append(out, strings.TrimSpace(s[start:]))
	return out
}

// cutTopLevel splits on the first top-level ", " outside parentheses.
func cutTopLevel(s string) (string, string, bool) {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				return strings.TrimSpace(s[:i]), strings.TrimSpace(s[i+1:]), true
			}
		}
	}
	return s, "", false
}

// splitOffset separates "v4+8" into its base and offset.
func splitOffset(s string) (string, int32) {
	s = strings.TrimSpace(s)
	for i := 1; i < len(s); i++ {
		if s[i] == '+' || s[i] == '-' {
			off, err := strconv.ParseInt(s[i:], 10, 32)
			if err != nil {
				break
			}
			return s[:i], int32(off)
		}
	}
	return s, 0
}
