package emit

import (
	"testing"

	"github.com/wippyai/ilemit/cil"
	"github.com/wippyai/ilemit/errors"
	"github.com/wippyai/ilemit/types"
)

func TestGlobalScope(t *testing.T) {
	c := newPlain()
	s := c.Resolve(nil)
	if !s.IsGlobal() {
		t.Fatal("innermost scope of a fresh context should be the method scope")
	}
	if j := s.CreateBreak(); !j.Return {
		t.Errorf("break at method scope = %+v, want a return", j)
	}
	expectPanic(t, errors.KindInvalidScope, func() { s.CreateContinue() })
	expectPanic(t, errors.KindInvalidScope, func() { c.PopFlowControl() })
}

func TestScopeResolution(t *testing.T) {
	c := newPlain()
	b1, c1 := c.CreateLabel(), c.CreateLabel()
	b2, c2 := c.CreateLabel(), c.CreateLabel()
	c.PushFlowControl("outer", b1, c1)
	c.PushFlowControl("inner", b2, c2)

	if got := c.Resolve(nil).CreateBreak(); got.Label != b2 || got.Op != cil.OpBr {
		t.Errorf("innermost break = %+v", got)
	}
	if got := c.Resolve("outer").CreateContinue(); got.Label != c1 {
		t.Errorf("outer continue = %+v", got)
	}
	expectPanic(t, errors.KindInvalidScope, func() { c.Resolve("missing") })

	c.PopFlowControl()
	if got := c.Resolve(nil).CreateBreak(); got.Label != b1 {
		t.Errorf("break after pop = %+v", got)
	}
}

func TestBlockScopeCannotContinue(t *testing.T) {
	c := newPlain()
	c.PushFlowControl("block", c.CreateLabel(), NoLabel)
	expectPanic(t, errors.KindInvalidScope, func() { c.Resolve("block").CreateContinue() })
}

func TestJumpOutOfRegionUsesLeave(t *testing.T) {
	c := newPlain()
	brk, cont := c.CreateLabel(), c.CreateLabel()
	c.PushFlowControl(nil, brk, cont)

	c.EnterRegion()
	if j := c.Resolve(nil).CreateBreak(); j.Op != cil.OpLeave {
		t.Errorf("break from inside a region = %v, want leave", j.Op)
	}
	inner := c.PushFlowControl("inner", c.CreateLabel(), c.CreateLabel())
	if j := inner.CreateContinue(); j.Op != cil.OpBr {
		t.Errorf("continue within the same region = %v, want br", j.Op)
	}
	c.PopFlowControl()
	c.ExitRegion()

	if j := c.Resolve(nil).CreateContinue(); j.Op != cil.OpBr {
		t.Errorf("continue after the region = %v, want br", j.Op)
	}
}

func TestEmitJump(t *testing.T) {
	c := newPlain()
	brk := c.CreateLabel()
	s := c.PushFlowControl("loop", brk, NoLabel)
	c.EmitJump(s.CreateBreak())
	c.PopFlowControl()
	c.EmitJump(c.Resolve(nil).CreateBreak())
	c.MarkLabel(brk)
	c.Epilogue()

	body := finish(t, c)
	wantOps(t, body.Opcodes(), cil.OpBr, cil.OpRet, cil.OpRet)
	if got := targetOf(t, body, 0); got != 2 {
		t.Errorf("break target = %d, want 2", got)
	}
}

func TestEpilogue(t *testing.T) {
	tests := []struct {
		name  string
		ret   *types.Type
		emit  func(c *Context)
		want  []cil.Opcode
		depth int
	}{
		{
			name: "void falls through",
			ret:  types.Void,
			emit: func(c *Context) { c.Emit(cil.OpNop) },
			want: []cil.Opcode{cil.OpNop, cil.OpRet},
		},
		{
			name: "empty void",
			ret:  types.Void,
			emit: func(*Context) {},
			want: []cil.Opcode{cil.OpRet},
		},
		{
			name: "already returned",
			ret:  types.Void,
			emit: func(c *Context) { c.EmitReturn() },
			want: []cil.Opcode{cil.OpRet},
		},
		{
			name: "value on stack",
			ret:  types.Int32,
			emit: func(c *Context) {
				c.Append(cil.LdcI4(5))
				c.Stack().Push(types.Int32)
			},
			want: []cil.Opcode{cil.OpLdcI45, cil.OpRet},
		},
		{
			name: "value method without value",
			ret:  types.Int32,
			emit: func(c *Context) { c.Emit(cil.OpNop) },
			want: []cil.Opcode{cil.OpNop, cil.OpLdnull, cil.OpThrow},
		},
		{
			name: "ends in throw",
			ret:  types.Int32,
			emit: func(c *Context) {
				c.Emit(cil.OpLdnull)
				c.Emit(cil.OpThrow)
			},
			want: []cil.Opcode{cil.OpLdnull, cil.OpThrow},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewContext(&types.Method{Name: "M", Static: true, Return: tt.ret}, Config{})
			tt.emit(c)
			c.Epilogue()
			wantOps(t, finish(t, c).Opcodes(), tt.want...)
			if c.Stack().Len() != tt.depth {
				t.Errorf("depth = %d after epilogue", c.Stack().Len())
			}
		})
	}
}

func TestEpilogueAfterPendingForwardBranch(t *testing.T) {
	c := newPlain()
	l := c.CreateLabel()
	c.Append(cil.Ldarg(0))
	c.EmitBranch(cil.OpBrtrue, l)
	c.EmitBranch(cil.OpBr, l)
	c.MarkLabel(l)
	c.Epilogue()

	body := finish(t, c)
	wantOps(t, body.Opcodes(), cil.OpLdarg0, cil.OpBrtrue, cil.OpBr, cil.OpRet)
}
