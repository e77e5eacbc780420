package emit

import (
	"slices"
	"testing"

	"github.com/wippyai/ilemit/cil"
	"github.com/wippyai/ilemit/errors"
	"github.com/wippyai/ilemit/types"
)

var testMethod = &types.Method{
	Name:          "Test",
	DeclaringType: types.Class("Tests"),
	Params:        []*types.Type{types.Int32, types.Int32},
	Return:        types.Void,
	Static:        true,
}

func newPlain() *Context {
	return NewContext(testMethod, Config{})
}

func newOptimizing() *Context {
	return NewContext(testMethod, DefaultConfig())
}

func finish(t *testing.T, c *Context) *cil.Body {
	t.Helper()
	if err := c.Flush(); err != nil {
		t.Fatalf("Flush() = %v", err)
	}
	return c.Body()
}

func opsOf(c *Context) []cil.Opcode {
	ins := c.Instructions()
	out := make([]cil.Opcode, len(ins))
	for i, in := range ins {
		out[i] = in.Op
	}
	return out
}

func wantOps(t *testing.T, got []cil.Opcode, want ...cil.Opcode) {
	t.Helper()
	if !slices.Equal(got, want) {
		t.Errorf("opcodes = %v, want %v", got, want)
	}
}

func targetOf(t *testing.T, body *cil.Body, i int) int {
	t.Helper()
	tgt, ok := body.Instructions[i].Target()
	if !ok {
		t.Fatalf("instruction %d (%v) has no branch target", i, body.Instructions[i])
	}
	return tgt
}

func expectPanic(t *testing.T, kind errors.Kind, fn func()) *errors.Error {
	t.Helper()
	var got *errors.Error
	func() {
		defer func() {
			r := recover()
			if r == nil {
				t.Fatalf("expected panic with kind %s", kind)
			}
			e, ok := r.(*errors.Error)
			if !ok {
				t.Fatalf("panic = %v, want *errors.Error", r)
			}
			got = e
		}()
		fn()
	}()
	if got.Kind != kind {
		t.Errorf("panic kind = %s, want %s (%v)", got.Kind, kind, got)
	}
	return got
}
