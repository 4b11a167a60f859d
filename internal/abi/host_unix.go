//go:build linux || darwin || freebsd

package abi

import (
	"fmt"

	"github.com/ebitengine/purego"
)

// HostSymbol resolves a natively compiled helper's address in the running
// process, the address generated code on the host JIT target calls through
// with no adapter. Symbols come from the builtin runtime objects linked into
// the process.
func HostSymbol(name string) (uintptr, error) {
	addr, err := purego.Dlsym(purego.RTLD_DEFAULT, name)
	if err != nil {
		return 0, fmt.Errorf("resolve host symbol %q: %w", name, err)
	}
	if addr == 0 {
		return 0, fmt.Errorf("host symbol %q resolved to null", name)
	}
	return addr, nil
}
