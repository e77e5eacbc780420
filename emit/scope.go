package emit

import (
	"github.com/wippyai/ilemit/cil"
	"github.com/wippyai/ilemit/errors"
	"github.com/wippyai/ilemit/types"
)

// Scope is a flow-control scope: a loop or labeled block that break and
// continue can target. The bottom scope is the method itself, where break
// returns and continue is invalid.
type Scope struct {
	ctx      *Context
	Tag      any
	Break    Label
	Continue Label // NoLabel when the scope cannot be continued
	regions  int
	global   bool
}

// Jump is a resolved transfer of control out of a scope.
type Jump struct {
	Label  Label
	Op     cil.Opcode // br or leave
	Return bool       // return from the method instead of branching
}

// PushFlowControl opens a scope identified by tag.
func (c *Context) PushFlowControl(tag any, breakLabel, continueLabel Label) *Scope {
	s := &Scope{
		ctx:      c,
		Tag:      tag,
		Break:    breakLabel,
		Continue: continueLabel,
		regions:  c.regions,
	}
	c.scopes = append(c.scopes, s)
	return s
}

// PopFlowControl closes the innermost scope.
func (c *Context) PopFlowControl() {
	if len(c.scopes) <= 1 {
		panic(errors.InvalidScope("pop of the method scope"))
	}
	c.scopes = c.scopes[:len(c.scopes)-1]
}

// Resolve finds the innermost scope tagged tag. A nil tag selects the
// innermost scope, which is the method scope when no loop is open.
func (c *Context) Resolve(tag any) *Scope {
	if tag == nil {
		return c.scopes[len(c.scopes)-1]
	}
	for i := len(c.scopes) - 1; i > 0; i-- {
		if c.scopes[i].Tag == tag {
			return c.scopes[i]
		}
	}
	panic(errors.InvalidScope("no enclosing scope tagged " + tagString(tag)))
}

func tagString(tag any) string {
	if s, ok := tag.(string); ok {
		return s
	}
	return "<tag>"
}

// IsGlobal reports whether s is the method scope.
func (s *Scope) IsGlobal() bool {
	return s.global
}

func (s *Scope) jump(l Label) Jump {
	op := cil.OpBr
	if s.ctx.regions > s.regions {
		op = cil.OpLeave
	}
	return Jump{Op: op, Label: l}
}

// CreateBreak returns the jump that exits s.
func (s *Scope) CreateBreak() Jump {
	if s.global {
		return Jump{Return: true, Label: NoLabel}
	}
	return s.jump(s.Break)
}

// CreateContinue returns the jump that restarts s.
func (s *Scope) CreateContinue() Jump {
	if s.global {
		panic(errors.InvalidScope("continue outside of a loop"))
	}
	if s.Continue == NoLabel {
		panic(errors.InvalidScope("scope " + tagString(s.Tag) + " cannot be continued"))
	}
	return s.jump(s.Continue)
}

// EmitJump emits j.
func (c *Context) EmitJump(j Jump) {
	if j.Return {
		c.EmitReturn()
		return
	}
	c.EmitBranch(j.Op, j.Label)
}

// EmitReturn returns from the method. A non-void method's return value
// must be on top of the operand stack. Inside an exception region the
// value is stored in a return local and control leaves to the epilogue.
func (c *Context) EmitReturn() {
	ret := c.method.Return
	if !ret.IsVoid() {
		c.stack.Pop()
	}
	if c.regions == 0 {
		c.Emit(cil.OpRet)
		return
	}
	if c.retLabel == NoLabel {
		c.retLabel = c.CreateNamedLabel("return")
	}
	if !ret.IsVoid() {
		if c.retLocal < 0 {
			c.retLocal = c.DeclareLocal(ret, "$ret").Index
		}
		c.Append(cil.Stloc(c.retLocal))
	}
	c.EmitBranch(cil.OpLeave, c.retLabel)
}

// Epilogue terminates the method body. It adds a return when control can
// fall off the end and emits the shared return sequence used by returns
// from inside exception regions.
func (c *Context) Epilogue() {
	if c.regions != 0 {
		panic(errors.InvalidState(errors.PhaseEmit, "epilogue inside an open exception region"))
	}
	if c.FallsThrough() {
		ret := c.method.Return
		if ret.IsVoid() || c.stack.Len() > 0 {
			c.EmitReturn()
		} else {
			// unreachable fall-through in a value-returning method
			c.Emit(cil.OpLdnull)
			c.Emit(cil.OpThrow)
		}
	}
	if c.retLabel != NoLabel {
		c.MarkLabel(c.retLabel)
		if c.retLocal >= 0 {
			c.Append(cil.Ldloc(c.retLocal))
		}
		c.Emit(cil.OpRet)
	}
}

// FallsThrough reports whether control can reach the next appended
// instruction from the code emitted so far.
func (c *Context) FallsThrough() bool {
	if len(c.marks) > 0 || c.code.tail == NoHandle {
		return true
	}
	n := c.code.at(c.code.tail)
	if n.placeholder {
		for _, p := range c.patches {
			if p.at == c.code.tail {
				return !p.op.IsUnconditional()
			}
		}
	}
	return !n.ins.Op.IsUnconditional()
}

// ReturnType returns the declared return type of the method.
func (c *Context) ReturnType() *types.Type {
	return c.method.Return
}
