package emit

import (
	"slices"

	"github.com/wippyai/ilemit/cil"
	"github.com/wippyai/ilemit/errors"
	"github.com/wippyai/ilemit/types"
)

// Local is a declared local variable slot.
type Local struct {
	Type  *types.Type
	Name  string
	Index int
}

// DeclareLocal returns a slot of type t, reusing a released slot of the
// same type when one is available.
func (c *Context) DeclareLocal(t *types.Type, name string) Local {
	for i, idx := range c.free {
		if types.Equal(c.locals[idx].Type, t) {
			c.free = slices.Delete(c.free, i, i+1)
			return Local{Index: idx, Type: t, Name: c.locals[idx].Name}
		}
	}
	idx := len(c.locals)
	c.locals = append(c.locals, cil.Local{Index: idx, Type: t, Name: name})
	return Local{Index: idx, Type: t, Name: name}
}

// ReleaseLocal returns l to the pool. It must not be used afterwards.
func (c *Context) ReleaseLocal(l Local) {
	if l.Index < 0 || l.Index >= len(c.locals) || slices.Contains(c.free, l.Index) {
		panic(errors.InvalidState(errors.PhaseEmit, "release of a local that is not in use"))
	}
	c.free = append(c.free, l.Index)
}

// LoadLocal emits a load of l and pushes its type.
func (c *Context) LoadLocal(l Local) {
	c.Append(cil.Ldloc(l.Index))
	c.stack.Push(l.Type)
}

// StoreLocal pops the top of the stack into l.
func (c *Context) StoreLocal(l Local) {
	c.stack.Pop()
	c.Append(cil.Stloc(l.Index))
}

// LoadLocalAddress emits ldloca for l and pushes a pointer type.
func (c *Context) LoadLocalAddress(l Local) {
	c.Append(cil.Ldloca(l.Index))
	c.stack.Push(types.PointerTo(l.Type))
}

// Locals returns the declared local slots.
func (c *Context) Locals() []cil.Local {
	return slices.Clone(c.locals)
}
