//go:build !linux && !darwin && !freebsd

package abi

import "fmt"

// HostSymbol is unavailable on platforms without dlsym; the host JIT target
// is not supported there.
func HostSymbol(name string) (uintptr, error) {
	return 0, fmt.Errorf("host symbol resolution is not supported on this platform")
}
