package irfile

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/wippyai/ilemit/block"
	"github.com/wippyai/ilemit/cil"
	"github.com/wippyai/ilemit/compiler"
	"github.com/wippyai/ilemit/errors"
	"github.com/wippyai/ilemit/types"
)

const sample = `
types:
  Money: struct
  Widget: class
  Exception: class
  Console: class
externs:
  - {class: Money, name: op_Addition, params: [Money, Money], returns: Money}
  - {class: Console, name: WriteLine, params: [object]}
  - {class: Widget, name: .ctor, params: [int32], ctor: true}
fields:
  - {class: Widget, name: count, type: int32, static: true}
operators:
  - {op: "+", left: Money, right: Money, method: "Money::op_Addition"}
methods:
  - class: Math
    name: Abs
    params: [int32]
    returns: int32
    body:
      seq:
        - if:
            cond: {lt: [{arg: 0}, {int: 0}]}
            then: {return: {sub: [{int: 0}, {arg: 0}]}}
        - return: {arg: 0}
  - class: Math
    name: Sum
    params: [Money, Money]
    returns: Money
    body:
      return: {add: [{arg: 0}, {arg: 1}]}
  - class: Math
    name: Count
    params: [int32]
    body:
      - let:
          name: i
          type: int32
          value: {int: 0}
          body:
            while:
              tag: outer
              cond: {lt: [{get: i}, {arg: 0}]}
              body:
                - store: {field: "Widget::count", value: {add: [{field: {field: "Widget::count"}}, {int: 1}]}}
                - set: {name: i, value: {add: [{get: i}, {int: 1}]}}
      - call: {method: "Console::WriteLine", args: [{str: done}]}
  - class: Math
    name: Guarded
    params: [int32]
    body:
      try:
        body: {pop: {call: {method: "Widget::.ctor", args: [{arg: 0}]}}}
        catch:
          - {type: Exception, var: ex, body: {throw: {get: ex}}}
        finally:
`

func TestParse(t *testing.T) {
	f, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	var names []string
	for _, m := range f.Methods {
		names = append(names, m.Name())
	}
	want := []string{"Math::Abs", "Math::Sum", "Math::Count", "Math::Guarded"}
	if !slices.Equal(names, want) {
		t.Fatalf("methods = %v, want %v", names, want)
	}

	abs, ok := f.Method("Abs")
	if !ok {
		t.Fatal("Method(Abs) not found")
	}
	seq, ok := abs.Body.(block.Seq)
	if !ok || len(seq.Blocks) != 2 {
		t.Fatalf("Abs body = %#v", abs.Body)
	}
	cond := seq.Blocks[0].(block.If).Cond.(block.Binary)
	if cond.Op != types.OpLt {
		t.Errorf("condition op = %s, want <", cond.Op)
	}

	guarded, _ := f.Method("Math::Guarded")
	try := guarded.Body.(block.Try)
	if len(try.Catches) != 1 || try.Catches[0].Var != "ex" || try.Finally == nil {
		t.Errorf("try = %#v", try)
	}
	if _, ok := f.Resolver.ResolveBinary(types.OpAdd, types.Struct("Money"), types.Struct("Money")); !ok {
		t.Error("operator overload not registered")
	}
}

func TestCompileParsedMethods(t *testing.T) {
	f, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	cfg := compiler.DefaultConfig()
	cfg.Resolver = f.Resolver
	for _, m := range f.Methods {
		t.Run(m.Name(), func(t *testing.T) {
			c, err := compiler.Compile(m, cfg)
			if err != nil {
				t.Fatalf("Compile() error = %v", err)
			}
			if len(c.Body.Instructions) == 0 {
				t.Error("empty body")
			}
		})
	}

	sum, _ := f.Method("Sum")
	c, err := compiler.Compile(sum, cfg)
	if err != nil {
		t.Fatal(err)
	}
	want := []cil.Opcode{cil.OpLdarg0, cil.OpLdarg1, cil.OpCall, cil.OpRet}
	if got := c.Body.Opcodes(); !slices.Equal(got, want) {
		t.Errorf("Sum opcodes = %v, want %v", got, want)
	}

	guarded, _ := f.Method("Guarded")
	c, err = compiler.Compile(guarded, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if len(c.Body.Handlers) != 1 || c.Body.Handlers[0].Kind != cil.HandlerCatch {
		t.Errorf("handlers = %+v, want one catch with the empty finally elided", c.Body.Handlers)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		kind errors.Kind
		want string
	}{
		{
			name: "malformed yaml",
			src:  "methods: [",
			kind: errors.KindInvalidData,
			want: "parse yaml",
		},
		{
			name: "unknown block",
			src:  "methods:\n  - name: M\n    body: {jump: 1}\n",
			kind: errors.KindInvalidData,
			want: `line 3: unknown block kind "jump"`,
		},
		{
			name: "two keys",
			src:  "methods:\n  - name: M\n    body: {arg: 0, int: 1}\n",
			kind: errors.KindInvalidData,
			want: "exactly one key",
		},
		{
			name: "operand count",
			src:  "methods:\n  - name: M\n    body: {add: [{int: 1}]}\n",
			kind: errors.KindInvalidData,
			want: "two operands",
		},
		{
			name: "unknown type",
			src:  "methods:\n  - name: M\n    params: [Foo]\n",
			kind: errors.KindNotFound,
			want: `type "Foo"`,
		},
		{
			name: "unknown method",
			src:  "methods:\n  - name: M\n    body: {call: {method: \"X::Y\"}}\n",
			kind: errors.KindNotFound,
			want: `method "X::Y"`,
		},
		{
			name: "unexpected key",
			src:  "methods:\n  - name: M\n    body: {if: {cond: {bool: true}, otherwise: {int: 1}}}\n",
			kind: errors.KindInvalidData,
			want: `unexpected key "otherwise"`,
		},
		{
			name: "duplicate method",
			src:  "methods:\n  - name: M\n  - name: M\n",
			kind: errors.KindInvalidData,
			want: "duplicate method M",
		},
		{
			name: "try without handlers",
			src:  "methods:\n  - name: M\n    body: {try: {body: {int: 1}}}\n",
			kind: errors.KindInvalidData,
			want: "try without catch or finally",
		},
		{
			name: "bad type kind",
			src:  "types: {Foo: union}\n",
			kind: errors.KindInvalidData,
			want: "want class or struct",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src))
			if err == nil {
				t.Fatal("Parse() succeeded")
			}
			e, ok := err.(*errors.Error)
			if !ok {
				t.Fatalf("error = %T %v, want *errors.Error", err, err)
			}
			if e.Kind != tt.kind || e.Phase != errors.PhaseParse {
				t.Errorf("error = %s/%s, want parse/%s", e.Phase, e.Kind, tt.kind)
			}
			if !strings.Contains(e.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", e.Error(), tt.want)
			}
		})
	}
}

func TestConstLiterals(t *testing.T) {
	src := `
methods:
  - name: M
    body:
      - pop: {const: {type: int8, value: -3}}
      - pop: {const: {type: uint64, value: 18446744073709551615}}
      - pop: {const: {type: float32, value: 1.5}}
      - pop: {const: {type: string, value: ~}}
      - pop: {long: 5000000000}
`
	f, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	var got []block.Const
	for _, b := range f.Methods[0].Body.(block.Seq).Blocks {
		got = append(got, b.(block.Pop).Value.(block.Const))
	}
	want := []block.Const{
		{Value: int64(-3), Type: types.Int8},
		{Value: uint64(18446744073709551615), Type: types.UInt64},
		{Value: 1.5, Type: types.Float32},
		{Type: types.String},
		{Value: int64(5000000000), Type: types.Int64},
	}
	if !slices.Equal(got, want) {
		t.Errorf("constants = %+v, want %+v", got, want)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "abs.yaml")
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(f.Methods) != 4 {
		t.Errorf("%d methods, want 4", len(f.Methods))
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() of a missing file succeeded")
	}
}
