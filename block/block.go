// Package block defines the block IR that front ends hand to the emitter
// and lowers it onto an emit.Context.
//
// Block is a closed set of node kinds. Each kind is a plain struct that
// carries only its own payload; lowering and stack-effect computation are
// single type switches in Emitter.Emit and Emitter.Effect.
package block

import "github.com/wippyai/ilemit/types"

// Block is an IR node. The set of implementations is closed.
type Block interface {
	block()
}

// Seq evaluates its blocks in order.
type Seq struct {
	Blocks []Block
}

// Const pushes a literal. Value is an int64, uint64, float64, bool, string
// or nil for the null reference.
type Const struct {
	Value any
	Type  *types.Type
}

// Arg pushes method argument Index, counting this for instance methods.
type Arg struct {
	Index int
}

// StoreArg stores Value into argument Index.
type StoreArg struct {
	Value Block
	Index int
}

// Let declares a local named Name for the extent of Body. Value, when
// set, initializes it.
type Let struct {
	Type  *types.Type
	Value Block
	Body  Block
	Name  string
}

// Get pushes the local named Name.
type Get struct {
	Name string
}

// Set stores Value into the local named Name.
type Set struct {
	Value Block
	Name  string
}

// Binary applies a binary operator.
type Binary struct {
	Left  Block
	Right Block
	Op    types.Operator
}

// Unary applies types.OpNeg or types.OpNot.
type Unary struct {
	Value Block
	Op    types.Operator
}

// Convert converts Value to Type.
type Convert struct {
	Value Block
	Type  *types.Type
}

// If branches on Cond. With an Else both arms must leave the same stack
// depth, which makes If usable as an expression.
type If struct {
	Cond Block
	Then Block
	Else Block
}

// While tests Cond before each iteration. Tag names the loop for Break
// and Continue.
type While struct {
	Cond Block
	Body Block
	Tag  string
}

// DoWhile tests Cond after each iteration.
type DoWhile struct {
	Body Block
	Cond Block
	Tag  string
}

// Break exits the loop tagged Tag, or the innermost loop when Tag is empty.
// Outside any loop it returns from a void method.
type Break struct {
	Tag string
}

// Continue restarts the loop tagged Tag, or the innermost loop.
type Continue struct {
	Tag string
}

// Return returns from the method, with Value for non-void methods.
type Return struct {
	Value Block
}

// Call invokes Method. Receiver is required for instance methods and
// ignored for constructors, which push the new object.
type Call struct {
	Method   *types.Method
	Receiver Block
	Args     []Block
}

// FieldGet loads Field from Target, or the static field when Target is nil.
type FieldGet struct {
	Field  *types.Field
	Target Block
}

// FieldSet stores Value into Field.
type FieldSet struct {
	Field  *types.Field
	Target Block
	Value  Block
}

// NewArray allocates a one-dimensional array of Elem.
type NewArray struct {
	Elem   *types.Type
	Length Block
}

// Index loads an array element.
type Index struct {
	Array Block
	Index Block
}

// Length pushes the length of an array as a native int.
type Length struct {
	Array Block
}

// IsInst tests whether Value is an instance of Type.
type IsInst struct {
	Value Block
	Type  *types.Type
}

// Try protects Body with catch clauses and an optional finally.
type Try struct {
	Body    Block
	Finally Block
	Catches []Catch
}

// Catch is a catch clause. When Var is set the exception is stored in a
// local of that name for the handler body.
type Catch struct {
	Type *types.Type
	Body Block
	Var  string
}

// Pop evaluates Value and discards its result.
type Pop struct {
	Value Block
}

// Throw throws the exception object produced by Value.
type Throw struct {
	Value Block
}

func (Seq) block()      {}
func (Const) block()    {}
func (Arg) block()      {}
func (StoreArg) block() {}
func (Let) block()      {}
func (Get) block()      {}
func (Set) block()      {}
func (Binary) block()   {}
func (Unary) block()    {}
func (Convert) block()  {}
func (If) block()       {}
func (While) block()    {}
func (DoWhile) block()  {}
func (Break) block()    {}
func (Continue) block() {}
func (Return) block()   {}
func (Call) block()     {}
func (FieldGet) block() {}
func (FieldSet) block() {}
func (NewArray) block() {}
func (Index) block()    {}
func (Length) block()   {}
func (IsInst) block()   {}
func (Try) block()      {}
func (Pop) block()      {}
func (Throw) block()    {}

// Int returns an int32 literal.
func Int(v int64) Const {
	return Const{Value: v, Type: types.Int32}
}

// Bool returns a boolean literal.
func Bool(v bool) Const {
	return Const{Value: v, Type: types.Bool}
}

// Str returns a string literal.
func Str(s string) Const {
	return Const{Value: s, Type: types.String}
}

// Null returns the null reference.
func Null() Const {
	return Const{Type: types.Null}
}

// int32Literal reports the value of an integer literal that fits a 32-bit
// load.
func int32Literal(b Block) (int64, bool) {
	c, ok := b.(Const)
	if !ok || c.Type == nil || !c.Type.IsInteger() || c.Type.Magnitude() > 4 {
		return 0, false
	}
	switch v := c.Value.(type) {
	case int64:
		return v, true
	case uint64:
		return int64(int32(uint32(v))), true
	case int:
		return int64(v), true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}
