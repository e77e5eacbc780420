package emit

import (
	"github.com/wippyai/ilemit/cil"
	"github.com/wippyai/ilemit/errors"
	"github.com/wippyai/ilemit/types"
)

// CreateCatchHandler queues a catch clause record. It is added to the
// handler table once all four labels are bound, whatever the order in
// which they are marked.
func (c *Context) CreateCatchHandler(tryStart, tryEnd, handlerStart, handlerEnd Label, catchType *types.Type) {
	c.createHandler(cil.HandlerCatch, tryStart, tryEnd, handlerStart, handlerEnd, catchType)
}

// CreateFinallyHandler queues a finally clause record.
func (c *Context) CreateFinallyHandler(tryStart, tryEnd, handlerStart, handlerEnd Label) {
	c.createHandler(cil.HandlerFinally, tryStart, tryEnd, handlerStart, handlerEnd, nil)
}

func (c *Context) createHandler(kind cil.HandlerKind, tryStart, tryEnd, handlerStart, handlerEnd Label, catchType *types.Type) {
	h := &cil.Handler{
		Kind:         kind,
		CatchType:    catchType,
		TryStart:     int(tryStart),
		TryEnd:       int(tryEnd),
		HandlerStart: int(handlerStart),
		HandlerEnd:   int(handlerEnd),
	}
	c.enqueue(&patch{
		kind:   patchRegion,
		region: h,
		deps:   []Label{tryStart, tryEnd, handlerStart, handlerEnd},
	})
	c.drain()
}

// EnterRegion opens a protected or handler region at the current position.
// Peephole windows never span the boundary, and jumps out of the region
// use leave.
func (c *Context) EnterRegion() {
	c.fence()
	c.regions++
}

// ExitRegion closes the innermost region.
func (c *Context) ExitRegion() {
	if c.regions == 0 {
		panic(errors.InvalidState(errors.PhaseEmit, "exit of a region that was never entered"))
	}
	c.fence()
	c.regions--
}

// InRegion reports whether emission is inside an exception region.
func (c *Context) InRegion() bool {
	return c.regions > 0
}

func (c *Context) fence() {
	if c.code.tail != NoHandle {
		c.code.at(c.code.tail).barrier = true
	}
}

// Catch is one catch clause for EmitTry. Body runs with the exception
// object on the operand stack and must consume it.
type Catch struct {
	Type *types.Type
	Body func()
}

// EmitTry emits a protected region with its catch clauses and an optional
// finally. With both catches and a finally, the catches are nested inside
// a try/finally. A finally that emits nothing is elided: no endfinally,
// no handler record and no leave.
func (c *Context) EmitTry(body func(), catches []Catch, finally func()) {
	if len(catches) == 0 && finally == nil {
		panic(errors.InvalidState(errors.PhaseEmit, "try without catch or finally"))
	}
	if len(catches) > 0 && finally != nil {
		c.EmitTry(func() { c.EmitTry(body, catches, nil) }, nil, finally)
		return
	}

	depth := c.stack.Len()
	tryStart := c.CreateNamedLabel("try")
	tryEnd := c.CreateNamedLabel("try.end")
	end := c.CreateNamedLabel("try.exit")

	c.MarkLabel(tryStart)
	c.EnterRegion()
	body()
	c.checkDepth("try body", depth)
	leave, leavePatch := c.placeBranch(cil.OpLeave, end)
	c.ExitRegion()
	c.MarkLabel(tryEnd)

	if finally != nil {
		c.emitFinally(tryStart, tryEnd, leave, leavePatch, depth, finally)
	} else {
		handlerStart := tryEnd
		for _, cc := range catches {
			handlerEnd := c.CreateNamedLabel("catch.end")
			c.EnterRegion()
			c.stack.Push(cc.Type)
			cc.Body()
			c.checkDepth("catch handler", depth)
			c.placeBranch(cil.OpLeave, end)
			c.ExitRegion()
			c.MarkLabel(handlerEnd)
			c.CreateCatchHandler(tryStart, tryEnd, handlerStart, handlerEnd, cc.Type)
			handlerStart = handlerEnd
		}
	}
	c.MarkLabel(end)
}

func (c *Context) emitFinally(tryStart, tryEnd Label, leave Handle, leavePatch int, depth int, finally func()) {
	c.EnterRegion()
	finally()
	c.checkDepth("finally handler", depth)
	if c.code.tail == leave {
		// nothing was emitted: drop the speculative leave
		c.regions--
		c.unmark(tryEnd)
		c.cancel(leavePatch)
		wasTarget := c.code.at(leave).target
		c.removeNode(leave)
		if wasTarget {
			c.redirects = append(c.redirects, leave)
		}
		c.stats.Rewrites["empty-finally"]++
		return
	}
	c.Emit(cil.OpEndfinally)
	c.ExitRegion()
	handlerEnd := c.CreateNamedLabel("finally.end")
	c.MarkLabel(handlerEnd)
	c.CreateFinallyHandler(tryStart, tryEnd, tryEnd, handlerEnd)
}

func (c *Context) checkDepth(what string, want int) {
	if got := c.stack.Len(); got != want {
		panic(errors.StackMismatch(what, want, got))
	}
}
