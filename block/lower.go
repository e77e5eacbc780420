package block

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/wippyai/ilemit/cil"
	"github.com/wippyai/ilemit/emit"
	"github.com/wippyai/ilemit/errors"
	"github.com/wippyai/ilemit/types"
)

// Emitter lowers blocks onto one emission context. It owns the variable
// table of the method being compiled and is discarded with the context.
type Emitter struct {
	ctx      *emit.Context
	resolver types.Resolver
	vars     map[string]emit.Local
}

// NewEmitter returns an Emitter for ctx. A nil resolver never finds
// operator overloads.
func NewEmitter(ctx *emit.Context, resolver types.Resolver) *Emitter {
	if resolver == nil {
		resolver = types.NopResolver{}
	}
	return &Emitter{
		ctx:      ctx,
		resolver: resolver,
		vars:     make(map[string]emit.Local),
	}
}

// Context returns the emission context.
func (e *Emitter) Context() *emit.Context {
	return e.ctx
}

// Emit lowers b and verifies that the operand stack changed by exactly
// the block's declared effect. Verification failures panic with
// *errors.Error.
func (e *Emitter) Emit(b Block) {
	e.ctx.Verify(e.Effect(b), func() { e.emit(b) })
}

func (e *Emitter) emitOptional(b Block) {
	if b != nil {
		e.Emit(b)
	}
}

func (e *Emitter) emit(b Block) {
	c := e.ctx
	switch b := b.(type) {
	case Seq:
		for _, x := range b.Blocks {
			e.Emit(x)
		}
	case Const:
		e.emitConst(b)
	case Arg:
		c.Append(cil.Ldarg(b.Index))
		c.Apply(emit.Push(c.ArgType(b.Index)))
	case StoreArg:
		e.Emit(b.Value)
		e.coerce(e.TypeOf(b.Value), c.ArgType(b.Index))
		c.Append(cil.Starg(b.Index))
		c.Apply(emit.PopN(1))
	case Let:
		e.emitLet(b)
	case Get:
		c.LoadLocal(e.local(b.Name))
	case Set:
		l := e.local(b.Name)
		e.Emit(b.Value)
		e.coerce(e.TypeOf(b.Value), l.Type)
		c.StoreLocal(l)
	case Binary:
		e.emitBinary(b)
	case Unary:
		e.emitUnary(b)
	case Convert:
		e.emitConvert(b)
	case If:
		e.emitIf(b)
	case While:
		e.emitWhile(b)
	case DoWhile:
		e.emitDoWhile(b)
	case Break:
		c.EmitJump(c.Resolve(scopeTag(b.Tag)).CreateBreak())
	case Continue:
		c.EmitJump(c.Resolve(scopeTag(b.Tag)).CreateContinue())
	case Return:
		e.emitReturn(b)
	case Call:
		e.emitCall(b)
	case FieldGet:
		e.emitFieldGet(b)
	case FieldSet:
		e.emitFieldSet(b)
	case NewArray:
		e.Emit(b.Length)
		c.Append(cil.WithType(cil.OpNewarr, b.Elem))
		c.Apply(emit.Sequence(emit.PopN(1), emit.Push(types.ArrayOf(b.Elem))))
	case Index:
		elem := elementType(e.TypeOf(b.Array))
		e.Emit(b.Array)
		e.Emit(b.Index)
		c.Append(cil.WithType(cil.OpLdelem, elem))
		c.Apply(emit.Sequence(emit.PopN(2), emit.Push(elem)))
	case Length:
		e.Emit(b.Array)
		c.Emit(cil.OpLdlen)
		c.Apply(emit.Sequence(emit.PopN(1), emit.Push(types.NativeInt)))
	case IsInst:
		e.Emit(b.Value)
		c.Append(cil.WithType(cil.OpIsinst, b.Type))
		c.Emit(cil.OpLdnull)
		c.Emit(cil.OpCgtUn)
		c.Apply(emit.Sequence(emit.PopN(1), emit.Push(types.Bool)))
	case Try:
		e.emitTry(b)
	case Pop:
		e.Emit(b.Value)
		if !e.TypeOf(b.Value).IsVoid() {
			c.Emit(cil.OpPop)
			c.Apply(emit.PopN(1))
		}
	case Throw:
		e.Emit(b.Value)
		c.Emit(cil.OpThrow)
		c.Apply(emit.PopN(1))
	default:
		panic(unsupportedBlock(b))
	}
}

func unsupportedBlock(b Block) *errors.Error {
	return errors.Unsupported(errors.PhaseLower, fmt.Sprintf("block %T", b))
}

func scopeTag(tag string) any {
	if tag == "" {
		return nil
	}
	return tag
}

func (e *Emitter) local(name string) emit.Local {
	l, ok := e.vars[name]
	if !ok {
		panic(errors.NotFound(errors.PhaseLower, "local", name))
	}
	return l
}

// scoped binds name to l while fn runs.
func (e *Emitter) scoped(name string, l emit.Local, fn func()) {
	prev, had := e.vars[name]
	e.vars[name] = l
	defer func() {
		if had {
			e.vars[name] = prev
		} else {
			delete(e.vars, name)
		}
	}()
	fn()
}

func (e *Emitter) letType(b Let) *types.Type {
	if b.Type != nil {
		return b.Type
	}
	if b.Value == nil {
		panic(errors.InvalidData(errors.PhaseLower, []string{b.Name}, "local without type or initial value"))
	}
	return e.TypeOf(b.Value)
}

func (e *Emitter) emitLet(b Let) {
	c := e.ctx
	t := e.letType(b)
	slot := c.DeclareLocal(t, b.Name)
	if b.Value != nil {
		e.Emit(b.Value)
		e.coerce(e.TypeOf(b.Value), t)
		c.StoreLocal(slot)
	}
	e.scoped(b.Name, slot, func() { e.emitOptional(b.Body) })
	c.ReleaseLocal(slot)
}

// coerce boxes a value type passed where a reference is expected.
func (e *Emitter) coerce(from, to *types.Type) {
	if from.IsVoid() || to.IsVoid() || !from.IsValueType() || !to.IsReference() {
		return
	}
	e.ctx.Append(cil.WithType(cil.OpBox, from))
	e.ctx.Apply(emit.Sequence(emit.PopN(1), emit.Push(to)))
}

func (e *Emitter) emitConst(b Const) {
	c := e.ctx
	t := constType(b)
	switch {
	case b.Value == nil && (t.IsReference() || t.Kind == types.KindNull):
		c.Emit(cil.OpLdnull)
	case t.Kind == types.KindString:
		s, ok := b.Value.(string)
		if !ok {
			panic(badLiteral(b))
		}
		c.Append(cil.Ldstr(s))
	case t.Kind == types.KindFloat32:
		c.Append(cil.LdcR4(float32(floatValue(b))))
	case t.Kind == types.KindFloat64:
		c.Append(cil.LdcR8(floatValue(b)))
	case t.Kind == types.KindInt64 || t.Kind == types.KindUInt64:
		c.Append(cil.LdcI8(intValue(b)))
	case t.Kind == types.KindNativeInt:
		c.Append(cil.LdcI8(intValue(b)))
		c.Emit(cil.OpConvI)
	case t.IsInteger():
		c.Append(cil.LdcI4(int32(intValue(b))))
	default:
		panic(badLiteral(b))
	}
	c.Apply(emit.Push(t))
}

func badLiteral(b Const) *errors.Error {
	return errors.New(errors.PhaseLower, errors.KindInvalidData).
		Type(constType(b).String()).
		Value(b.Value).
		Detail("literal does not match its type").
		Build()
}

func constType(b Const) *types.Type {
	if b.Type != nil {
		return b.Type
	}
	switch v := b.Value.(type) {
	case nil:
		return types.Null
	case bool:
		return types.Bool
	case string:
		return types.String
	case float32:
		return types.Float32
	case float64:
		return types.Float64
	case uint64:
		return types.UInt64
	case int64:
		if v >= math.MinInt32 && v <= math.MaxInt32 {
			return types.Int32
		}
		return types.Int64
	case int:
		if v >= math.MinInt32 && v <= math.MaxInt32 {
			return types.Int32
		}
		return types.Int64
	}
	return types.Object
}

func intValue(b Const) int64 {
	switch v := b.Value.(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case uint64:
		return int64(v)
	case bool:
		if v {
			return 1
		}
		return 0
	case float64:
		if v == math.Trunc(v) {
			return int64(v)
		}
	}
	panic(badLiteral(b))
}

func floatValue(b Const) float64 {
	switch v := b.Value.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int64:
		return float64(v)
	case int:
		return float64(v)
	}
	panic(badLiteral(b))
}

// fits reports whether v is representable in the integer type t.
func fits(v int64, t *types.Type) bool {
	switch t.Kind {
	case types.KindInt8:
		return v >= math.MinInt8 && v <= math.MaxInt8
	case types.KindUInt8:
		return v >= 0 && v <= math.MaxUint8
	case types.KindInt16:
		return v >= math.MinInt16 && v <= math.MaxInt16
	case types.KindUInt16, types.KindChar:
		return v >= 0 && v <= math.MaxUint16
	}
	return false
}

// negatedLiteral folds 0 - literal.
func negatedLiteral(b Binary) (Const, bool) {
	if b.Op != types.OpSubtract {
		return Const{}, false
	}
	if zero, ok := int32Literal(b.Left); !ok || zero != 0 {
		return Const{}, false
	}
	v, ok := int32Literal(b.Right)
	if !ok {
		return Const{}, false
	}
	return Const{Value: -v, Type: constType(b.Right.(Const))}, true
}

func subtractFromZero(b Binary) bool {
	if b.Op != types.OpSubtract {
		return false
	}
	zero, ok := int32Literal(b.Left)
	return ok && zero == 0
}

// overload finds a user-defined operator. Primitive operands always use
// the intrinsic lowering.
func (e *Emitter) overload(op types.Operator, a, b *types.Type, warn bool) (*types.Method, bool) {
	if isPrimitive(a) && isPrimitive(b) {
		return nil, false
	}
	if m, ok := e.resolver.ResolveBinary(op, a, b); ok {
		return m, true
	}
	if warn {
		e.ctx.Logger().Warn("no operator overload, using intrinsic lowering",
			zap.String("op", string(op)),
			zap.Stringer("left", a),
			zap.Stringer("right", b))
	}
	return nil, false
}

func isPrimitive(t *types.Type) bool {
	return t.IsNumeric()
}

func (e *Emitter) emitBinary(b Binary) {
	c := e.ctx
	if lit, ok := negatedLiteral(b); ok {
		e.emitConst(lit)
		return
	}
	if subtractFromZero(b) {
		t := e.TypeOf(b.Right)
		if !t.IsNumeric() || isBool(t) {
			panic(errors.Unsupported(errors.PhaseLower, "negation of "+t.String()))
		}
		e.Emit(b.Right)
		c.Emit(cil.OpNeg)
		return
	}

	lt, rt := e.TypeOf(b.Left), e.TypeOf(b.Right)
	if m, ok := e.overload(b.Op, lt, rt, true); ok {
		e.emitCall(Call{Method: m, Args: []Block{b.Left, b.Right}})
		return
	}
	code, ok := intrinsic(b.Op, lt, rt)
	if !ok {
		panic(errors.New(errors.PhaseLower, errors.KindUnsupported).
			Method(c.Method().FullName()).
			Detail("operator %s on %s and %s", b.Op, lt, rt).
			Build())
	}
	e.Emit(b.Left)
	e.Emit(b.Right)
	for _, in := range code {
		c.Append(in)
	}
	c.Apply(emit.Sequence(emit.PopN(2), emit.Push(binaryResult(b.Op, lt))))
}

func (e *Emitter) emitUnary(b Unary) {
	c := e.ctx
	t := e.TypeOf(b.Value)
	var code []cil.Instruction
	switch {
	case b.Op == types.OpNeg && t.IsNumeric() && !isBool(t):
		code = []cil.Instruction{cil.Op(cil.OpNeg)}
	case b.Op == types.OpNot && isBool(t):
		code = booleanNot()
	case b.Op == types.OpNot && t.IsInteger():
		code = []cil.Instruction{cil.Op(cil.OpNot)}
	default:
		panic(errors.Unsupported(errors.PhaseLower, fmt.Sprintf("unary %s on %s", b.Op, t)))
	}
	e.Emit(b.Value)
	for _, in := range code {
		c.Append(in)
	}
}

// literalRetype reports whether converting b needs no instruction: an
// int32 literal converted to a narrower integer type it fits is retyped.
func literalRetype(b Convert) (Const, bool) {
	v, ok := int32Literal(b.Value)
	if !ok || !b.Type.IsInteger() || b.Type.Magnitude() >= 4 || !fits(v, b.Type) {
		return Const{}, false
	}
	return Const{Value: v, Type: b.Type}, true
}

func (e *Emitter) emitConvert(b Convert) {
	c := e.ctx
	if lit, ok := literalRetype(b); ok {
		e.emitConst(lit)
		return
	}
	from := e.TypeOf(b.Value)
	code, ok := conversion(from, b.Type)
	if !ok {
		panic(errors.Unsupported(errors.PhaseLower, fmt.Sprintf("conversion from %s to %s", from, b.Type)))
	}
	e.Emit(b.Value)
	for _, in := range code {
		c.Append(in)
	}
	c.Apply(emit.Sequence(emit.PopN(1), emit.Push(b.Type)))
}

// condition emits a branch condition, which must push one value a
// conditional branch can test.
func (e *Emitter) condition(b Block) {
	t := e.TypeOf(b)
	if net := e.Effect(b).Net(); net != 1 || !(t.IsInteger() || t.IsReference()) {
		panic(errors.TypeMismatch(nil, "bool", t.String()))
	}
	e.Emit(b)
}

func (e *Emitter) emitIf(b If) {
	c := e.ctx
	elseLabel := c.CreateNamedLabel("if.else")
	end := c.CreateNamedLabel("if.end")

	e.condition(b.Cond)
	c.EmitBranch(cil.OpBrfalse, elseLabel)
	c.Apply(emit.PopN(1))
	jumped := false
	c.Choice(func() {
		e.emitOptional(b.Then)
		if b.Else != nil && c.FallsThrough() {
			c.EmitBranch(cil.OpBr, end)
			jumped = true
		}
	}, func() {
		c.MarkLabel(elseLabel)
		e.emitOptional(b.Else)
	})
	// both arms may leave unconditionally
	if jumped || c.FallsThrough() {
		c.MarkLabel(end)
	}
}

func (e *Emitter) loopBody(b Block) {
	if b == nil {
		return
	}
	e.ctx.Verify(emit.None(), func() { e.Emit(b) })
}

func (e *Emitter) emitWhile(b While) {
	c := e.ctx
	top := c.CreateNamedLabel("while.top")
	end := c.CreateNamedLabel("while.end")

	c.PushFlowControl(scopeTag(b.Tag), end, top)
	c.MarkLabel(top)
	e.condition(b.Cond)
	c.EmitBranch(cil.OpBrfalse, end)
	c.Apply(emit.PopN(1))
	e.loopBody(b.Body)
	c.EmitBranch(cil.OpBr, top)
	c.PopFlowControl()
	c.MarkLabel(end)
}

func (e *Emitter) emitDoWhile(b DoWhile) {
	c := e.ctx
	top := c.CreateNamedLabel("do.top")
	next := c.CreateNamedLabel("do.cond")
	end := c.CreateNamedLabel("do.end")

	c.PushFlowControl(scopeTag(b.Tag), end, next)
	c.MarkLabel(top)
	e.loopBody(b.Body)
	c.MarkLabel(next)
	e.condition(b.Cond)
	c.EmitBranch(cil.OpBrtrue, top)
	c.Apply(emit.PopN(1))
	c.PopFlowControl()
	c.MarkLabel(end)
}

func (e *Emitter) emitReturn(b Return) {
	c := e.ctx
	ret := c.ReturnType()
	switch {
	case b.Value != nil && ret.IsVoid():
		panic(errors.TypeMismatch(nil, "void", e.TypeOf(b.Value).String()))
	case b.Value == nil && !ret.IsVoid():
		panic(errors.TypeMismatch(nil, ret.String(), "void"))
	case b.Value != nil:
		e.Emit(b.Value)
		e.coerce(e.TypeOf(b.Value), ret)
	}
	c.EmitReturn()
}

func callResult(m *types.Method) *types.Type {
	if m.Constructor {
		return m.DeclaringType
	}
	if m.Return == nil {
		return types.Void
	}
	return m.Return
}

func hasReceiver(m *types.Method) bool {
	return !m.Static && !m.Constructor
}

func (e *Emitter) emitCall(b Call) {
	c := e.ctx
	m := b.Method
	if len(b.Args) != len(m.Params) {
		panic(errors.New(errors.PhaseLower, errors.KindTypeMismatch).
			Method(m.FullName()).
			Detail("%d arguments for %d parameters", len(b.Args), len(m.Params)).
			Build())
	}
	n := len(b.Args)
	if hasReceiver(m) {
		if b.Receiver == nil {
			panic(errors.InvalidData(errors.PhaseLower, []string{m.FullName()}, "instance call without receiver"))
		}
		e.Emit(b.Receiver)
		n++
	}
	for i, a := range b.Args {
		e.Emit(a)
		e.coerce(e.TypeOf(a), m.Params[i])
	}
	if m.Constructor {
		c.Append(cil.Newobj(m))
	} else {
		c.Append(cil.Call(m))
	}
	c.Apply(emit.PopN(n))
	if t := callResult(m); !t.IsVoid() {
		c.Apply(emit.Push(t))
	}
}

func (e *Emitter) emitFieldGet(b FieldGet) {
	c := e.ctx
	if b.Field.Static {
		c.Append(cil.WithField(cil.OpLdsfld, b.Field))
	} else {
		e.Emit(b.Target)
		c.Append(cil.WithField(cil.OpLdfld, b.Field))
		c.Apply(emit.PopN(1))
	}
	c.Apply(emit.Push(b.Field.Type))
}

func (e *Emitter) emitFieldSet(b FieldSet) {
	c := e.ctx
	n := 1
	if !b.Field.Static {
		e.Emit(b.Target)
		n++
	}
	e.Emit(b.Value)
	e.coerce(e.TypeOf(b.Value), b.Field.Type)
	if b.Field.Static {
		c.Append(cil.WithField(cil.OpStsfld, b.Field))
	} else {
		c.Append(cil.WithField(cil.OpStfld, b.Field))
	}
	c.Apply(emit.PopN(n))
}

func elementType(t *types.Type) *types.Type {
	if t.Kind != types.KindArray || t.Elem == nil {
		panic(errors.TypeMismatch(nil, "array", t.String()))
	}
	return t.Elem
}

func (e *Emitter) emitTry(b Try) {
	c := e.ctx
	catches := make([]emit.Catch, 0, len(b.Catches))
	for _, cc := range b.Catches {
		t := cc.Type
		if t == nil {
			t = types.Object
		}
		catches = append(catches, emit.Catch{Type: t, Body: func() {
			if cc.Var == "" {
				c.Emit(cil.OpPop)
				c.Apply(emit.PopN(1))
				e.emitOptional(cc.Body)
				return
			}
			slot := c.DeclareLocal(t, cc.Var)
			c.StoreLocal(slot)
			e.scoped(cc.Var, slot, func() { e.emitOptional(cc.Body) })
			c.ReleaseLocal(slot)
		}})
	}
	var finally func()
	if b.Finally != nil {
		finally = func() { e.emitOptional(b.Finally) }
	}
	c.EmitTry(func() { e.emitOptional(b.Body) }, catches, finally)
}
