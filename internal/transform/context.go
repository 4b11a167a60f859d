package transform

import "github.com/lightpixel/lpsl/internal/ir"

// Context is the per-function rewrite state: the old-to-new maps a single
// function rewrite builds up. It is scoped to exactly one rewrite and
// discarded afterwards; nothing here is shared across functions.
type Context struct {
	// values maps old values to their replacements. Entries are only ever
	// added during a rewrite, never changed.
	values map[ir.Value]ir.Value
	// blocks is fully populated before any instruction is rewritten, so
	// forward and backward branch targets resolve regardless of visit order.
	blocks map[ir.BlockID]ir.BlockID
	slots  map[ir.SlotID]ir.SlotID
}

func newContext() *Context {
	return &Context{
		values: make(map[ir.Value]ir.Value),
		blocks: make(map[ir.BlockID]ir.BlockID),
		slots:  make(map[ir.SlotID]ir.SlotID),
	}
}

// BindValue records the replacement for an old value.
func (c *Context) BindValue(old, new ir.Value) {
	c.values[old] = new
}

// Value maps an old value to its replacement. Untouched values map to
// themselves: a pure-integer or boolean value needs no conversion, and
// falling back to the original guarantees the rewritten function never
// references a stale pre-transform value by accident.
func (c *Context) Value(old ir.Value) ir.Value {
	if v, ok := c.values[old]; ok {
		return v
	}
	return old
}

// Values maps a slice of operands through the value map.
func (c *Context) Values(old []ir.Value) []ir.Value {
	if old == nil {
		return nil
	}
	out := make([]ir.Value, len(old))
	for i, v := range old {
		out[i] = c.Value(v)
	}
	return out
}

// Block maps an old block id to the corresponding new block.
func (c *Context) Block(old ir.BlockID) ir.BlockID {
	if b, ok := c.blocks[old]; ok {
		return b
	}
	return old
}

// Slot maps an old stack slot to its counterpart.
func (c *Context) Slot(old ir.SlotID) ir.SlotID {
	if s, ok := c.slots[old]; ok {
		return s
	}
	return old
}
