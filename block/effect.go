package block

import (
	"github.com/wippyai/ilemit/emit"
	"github.com/wippyai/ilemit/types"
)

// Effect returns the stack-effect contract of b.
func (e *Emitter) Effect(b Block) emit.Effect {
	switch b := b.(type) {
	case nil:
		return emit.None()
	case Seq:
		parts := make([]emit.Effect, 0, len(b.Blocks))
		for _, x := range b.Blocks {
			parts = append(parts, e.Effect(x))
		}
		return emit.Sequence(parts...)
	case Const, Arg, Get:
		return emit.Push(e.TypeOf(b))
	case StoreArg:
		return emit.Sequence(e.Effect(b.Value), emit.PopN(1))
	case Set:
		return emit.Sequence(e.Effect(b.Value), emit.PopN(1))
	case Let:
		var body emit.Effect
		e.declared(b, func() { body = e.Effect(b.Body) })
		if b.Value == nil {
			return body
		}
		return emit.Sequence(e.Effect(b.Value), emit.PopN(1), body)
	case Binary:
		if m, ok := e.overload(b.Op, e.TypeOf(b.Left), e.TypeOf(b.Right), false); ok {
			return emit.Call(emit.None(), m.Return, e.Effect(b.Left), e.Effect(b.Right))
		}
		return emit.Sequence(e.Effect(b.Left), e.Effect(b.Right), emit.PopN(2), emit.Push(e.TypeOf(b)))
	case Unary:
		return emit.Sequence(e.Effect(b.Value), emit.PopN(1), emit.Push(e.TypeOf(b)))
	case Convert:
		return emit.Sequence(e.Effect(b.Value), emit.PopN(1), emit.Push(b.Type))
	case If:
		return emit.Sequence(e.Effect(b.Cond), emit.PopN(1),
			emit.SymmetricChoice(e.Effect(b.Then), e.Effect(b.Else)))
	case While, DoWhile, Break, Continue, Try:
		return emit.None()
	case Return:
		if b.Value == nil {
			return emit.None()
		}
		return emit.Sequence(e.Effect(b.Value), emit.PopN(1))
	case Call:
		args := make([]emit.Effect, 0, len(b.Args)+1)
		if hasReceiver(b.Method) && b.Receiver != nil {
			args = append(args, e.Effect(b.Receiver))
		}
		for _, a := range b.Args {
			args = append(args, e.Effect(a))
		}
		return emit.Call(emit.None(), callResult(b.Method), args...)
	case FieldGet:
		if b.Field.Static {
			return emit.Push(b.Field.Type)
		}
		return emit.Sequence(e.Effect(b.Target), emit.PopN(1), emit.Push(b.Field.Type))
	case FieldSet:
		if b.Field.Static {
			return emit.Sequence(e.Effect(b.Value), emit.PopN(1))
		}
		return emit.Sequence(e.Effect(b.Target), e.Effect(b.Value), emit.PopN(2))
	case NewArray:
		return emit.Sequence(e.Effect(b.Length), emit.PopN(1), emit.Push(types.ArrayOf(b.Elem)))
	case Index:
		return emit.Sequence(e.Effect(b.Array), e.Effect(b.Index), emit.PopN(2), emit.Push(e.TypeOf(b)))
	case Length:
		return emit.Sequence(e.Effect(b.Array), emit.PopN(1), emit.Push(types.NativeInt))
	case IsInst:
		return emit.Sequence(e.Effect(b.Value), emit.PopN(1), emit.Push(types.Bool))
	case Pop:
		if e.TypeOf(b.Value).IsVoid() {
			return e.Effect(b.Value)
		}
		return emit.Sequence(e.Effect(b.Value), emit.PopN(1))
	case Throw:
		return emit.Sequence(e.Effect(b.Value), emit.PopN(1))
	}
	panic(unsupportedBlock(b))
}

// TypeOf returns the type of the value b leaves on the stack, or void.
func (e *Emitter) TypeOf(b Block) *types.Type {
	switch b := b.(type) {
	case Seq:
		if len(b.Blocks) == 0 {
			return types.Void
		}
		return e.TypeOf(b.Blocks[len(b.Blocks)-1])
	case Const:
		return constType(b)
	case Arg:
		return e.ctx.ArgType(b.Index)
	case Let:
		t := types.Void
		if b.Body != nil {
			e.declared(b, func() { t = e.TypeOf(b.Body) })
		}
		return t
	case Get:
		return e.local(b.Name).Type
	case Binary:
		if subtractFromZero(b) {
			return e.TypeOf(b.Right)
		}
		lt, rt := e.TypeOf(b.Left), e.TypeOf(b.Right)
		if m, ok := e.overload(b.Op, lt, rt, false); ok {
			return callResult(m)
		}
		return binaryResult(b.Op, lt)
	case Unary:
		return e.TypeOf(b.Value)
	case Convert:
		return b.Type
	case If:
		if b.Then == nil || b.Else == nil {
			return types.Void
		}
		return e.TypeOf(b.Then)
	case Call:
		return callResult(b.Method)
	case FieldGet:
		return b.Field.Type
	case NewArray:
		return types.ArrayOf(b.Elem)
	case Index:
		return elementType(e.TypeOf(b.Array))
	case Length:
		return types.NativeInt
	case IsInst:
		return types.Bool
	}
	return types.Void
}

// declared binds the name of a Let to a placeholder slot while fn
// computes types or effects of its body.
func (e *Emitter) declared(b Let, fn func()) {
	e.scoped(b.Name, emit.Local{Type: e.letType(b), Name: b.Name, Index: -1}, fn)
}
