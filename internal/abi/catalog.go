package abi

import (
	_ "embed"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"
)

// ToolVersion is the version of this compiler build, checked against the
// catalog's min_tool gate.
const ToolVersion = "v0.2.0"

//go:embed targets.yaml
var targetsYAML []byte

// Catalog is the set of known targets.
type Catalog struct {
	// MinTool is the lowest compiler version this catalog is written for.
	MinTool string    `yaml:"min_tool"`
	Targets []*Target `yaml:"targets"`
}

// ParseCatalog reads and validates a YAML target catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse target catalog: %w", err)
	}
	if !semver.IsValid(c.MinTool) {
		return nil, fmt.Errorf("target catalog min_tool %q is not a valid semver", c.MinTool)
	}
	if semver.Compare(ToolVersion, c.MinTool) < 0 {
		return nil, fmt.Errorf("target catalog needs tool %s or newer, this is %s", c.MinTool, ToolVersion)
	}
	if len(c.Targets) == 0 {
		return nil, fmt.Errorf("target catalog declares no targets")
	}
	seen := make(map[string]bool)
	for _, t := range c.Targets {
		if err := t.validate(); err != nil {
			return nil, err
		}
		if seen[t.Name] {
			return nil, fmt.Errorf("target %q declared twice", t.Name)
		}
		seen[t.Name] = true
	}
	return &c, nil
}

// Lookup finds a target by name.
func (c *Catalog) Lookup(name string) (*Target, bool) {
	for _, t := range c.Targets {
		if t.Name == name {
			return t, true
		}
	}
	return nil, false
}

var defaultCatalog = sync.OnceValues(func() (*Catalog, error) {
	return ParseCatalog(targetsYAML)
})

// DefaultCatalog returns the embedded target catalog.
func DefaultCatalog() (*Catalog, error) {
	return defaultCatalog()
}

// HostTarget returns the catalog target matching the machine this process
// runs on, used when rewritten code is executed in-process for checking.
func HostTarget() (*Target, error) {
	switch runtime.GOARCH {
	case "amd64":
		return DefaultTarget("host-amd64")
	case "arm64":
		return DefaultTarget("host-arm64")
	default:
		return nil, fmt.Errorf("no host target for %s", runtime.GOARCH)
	}
}

// DefaultTarget returns a target from the embedded catalog by name.
func DefaultTarget(name string) (*Target, error) {
	c, err := DefaultCatalog()
	if err != nil {
		return nil, err
	}
	t, ok := c.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("unknown target %q", name)
	}
	return t, nil
}
