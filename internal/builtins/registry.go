package builtins

import (
	"fmt"
	"strings"
	"sync"
)

// MissingVariantError reports a numeric-variant-dependent builtin that lacks
// one half of its Float/FixedPoint pair.
type MissingVariantError struct {
	Function string
	Missing  Variant
	Found    []Variant
}

func (e *MissingVariantError) Error() string {
	found := make([]string, len(e.Found))
	for i, v := range e.Found {
		found[i] = v.String()
	}
	return fmt.Sprintf("builtin %q is missing its %s implementation (found: %s)",
		e.Function, e.Missing, strings.Join(found, ", "))
}

// DuplicateVariantError reports two implementations claiming the same logical
// signature and variant.
type DuplicateVariantError struct {
	Function string
	Variant  Variant
	Sites    [2]string
}

func (e *DuplicateVariantError) Error() string {
	return fmt.Sprintf("builtin %q has duplicate %s implementations at %s and %s",
		e.Function, e.Variant, e.Sites[0], e.Sites[1])
}

// SignatureMismatchError reports a Float/FixedPoint pair whose shapes
// disagree.
type SignatureMismatchError struct {
	Function string
	A, B     string // full formatted signatures
}

func (e *SignatureMismatchError) Error() string {
	return fmt.Sprintf("builtin %q variants disagree on signature: %q vs %q",
		e.Function, e.A, e.B)
}

// Entry is one validated logical builtin: a signature plus its
// implementations, keyed by variant when numeric-dependent.
type Entry struct {
	Name   string
	Params []Param
	Return Type

	variants map[Variant]*Decl
	shared   *Decl
}

// NumericDependent reports whether the entry carries a Float/FixedPoint pair.
func (e *Entry) NumericDependent() bool { return e.shared == nil }

// ScalarParams is the flattened parameter count of the compiled signature.
func (e *Entry) ScalarParams() int {
	n := 0
	for _, p := range e.Params {
		n += p.Type.ScalarCount()
	}
	return n
}

// Registry is the immutable, validated builtin catalog. Construct it with
// NewRegistry; after that every method is a pure read and safe for
// concurrent use.
type Registry struct {
	entries   []*Entry
	bySymbol  map[string]*Decl
	runtimeFn map[string]Impl
}

// NewRegistry groups declarations by logical signature and validates the
// numeric-variant pairing rules. Any violation aborts construction; an
// invalid registry is never returned.
func NewRegistry(decls []*Decl) (*Registry, error) {
	r := &Registry{
		bySymbol:  make(map[string]*Decl),
		runtimeFn: runtimeSymbols(),
	}

	// Pairing key: name plus parameter base types. Return type and
	// qualifiers are deliberately excluded so a pair that disagrees on them
	// surfaces as a signature mismatch rather than as two half-pairs.
	key := func(d *Decl) string {
		var sb strings.Builder
		sb.WriteString(d.Name)
		for _, p := range d.Params {
			sb.WriteString(":")
			sb.WriteString(p.Type.String())
		}
		return sb.String()
	}

	groups := make(map[string][]*Decl)
	var order []string
	for _, d := range decls {
		k := key(d)
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		groups[k] = append(groups[k], d)
	}

	for _, k := range order {
		group := groups[k]
		entry, err := buildEntry(group)
		if err != nil {
			return nil, err
		}
		r.entries = append(r.entries, entry)
		for _, d := range group {
			if prev, dup := r.bySymbol[d.Symbol]; dup {
				return nil, fmt.Errorf("symbol %q declared by both %s and %s", d.Symbol, prev.Site, d.Site)
			}
			r.bySymbol[d.Symbol] = d
		}
	}
	return r, nil
}

func buildEntry(group []*Decl) (*Entry, error) {
	first := group[0]
	entry := &Entry{Name: first.Name, Params: first.Params, Return: first.Return}

	dependent := false
	for _, d := range group {
		if d.NumericDependent {
			dependent = true
		}
	}

	if !dependent {
		if len(group) > 1 {
			return nil, &DuplicateVariantError{
				Function: first.Name,
				Variant:  group[1].Variant,
				Sites:    [2]string{group[0].Site, group[1].Site},
			}
		}
		entry.shared = first
		return entry, nil
	}

	entry.variants = make(map[Variant]*Decl)
	var found []Variant
	for _, d := range group {
		if prev, dup := entry.variants[d.Variant]; dup {
			return nil, &DuplicateVariantError{
				Function: d.Name,
				Variant:  d.Variant,
				Sites:    [2]string{prev.Site, d.Site},
			}
		}
		entry.variants[d.Variant] = d
		found = append(found, d.Variant)
	}

	for _, want := range []Variant{VariantFloat, VariantFixedPoint} {
		if _, ok := entry.variants[want]; !ok {
			return nil, &MissingVariantError{Function: first.Name, Missing: want, Found: found}
		}
	}

	// Paired shapes must match structurally; names may differ, these don't.
	fl, fx := entry.variants[VariantFloat], entry.variants[VariantFixedPoint]
	if !sameShape(fl, fx) {
		return nil, &SignatureMismatchError{Function: first.Name, A: fl.String(), B: fx.String()}
	}
	return entry, nil
}

func sameShape(a, b *Decl) bool {
	if a.Return != b.Return || len(a.Params) != len(b.Params) {
		return false
	}
	for i := range a.Params {
		if a.Params[i] != b.Params[i] {
			return false
		}
	}
	return true
}

// Find looks a builtin up by name and logical argument types. A miss means
// "unknown function", never a fallback guess.
func (r *Registry) Find(name string, args []Type) (*Entry, bool) {
	for _, e := range r.entries {
		if e.Name != name || len(e.Params) != len(args) {
			continue
		}
		match := true
		for i, p := range e.Params {
			if p.Type != args[i] {
				match = false
				break
			}
		}
		if match {
			return e, true
		}
	}
	return nil, false
}

// FindScalarArity looks a builtin up by name and flattened scalar argument
// count, the view a call site in the instruction IR has of the callee.
func (r *Registry) FindScalarArity(name string, scalarArgs int) (*Entry, bool) {
	for _, e := range r.entries {
		if e.Name == name && e.ScalarParams() == scalarArgs {
			return e, true
		}
	}
	return nil, false
}

// ImplementationFor returns the symbol implementing the entry in the given
// numeric variant, or false if no such implementation exists.
func (r *Registry) ImplementationFor(e *Entry, v Variant) (string, bool) {
	if e.shared != nil {
		return e.shared.Symbol, true
	}
	d, ok := e.variants[v]
	if !ok {
		return "", false
	}
	return d.Symbol, true
}

// SymbolImpl resolves a symbol to its native implementation: a registered
// builtin or one of the fixed-point runtime helpers.
func (r *Registry) SymbolImpl(symbol string) (Impl, bool) {
	if d, ok := r.bySymbol[symbol]; ok {
		return d.Impl, true
	}
	impl, ok := r.runtimeFn[symbol]
	return impl, ok
}

// Entries returns the validated entries in declaration order.
func (r *Registry) Entries() []*Entry {
	return append([]*Entry(nil), r.entries...)
}

var defaultRegistry = sync.OnceValues(func() (*Registry, error) {
	return NewRegistry(StandardDecls())
})

// Default returns the registry of standard builtins. The first call runs the
// validation pass; later calls are pure reads of the same instance.
func Default() (*Registry, error) {
	return defaultRegistry()
}
