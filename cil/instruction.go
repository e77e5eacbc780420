package cil

import (
	"fmt"
	"strconv"

	"github.com/wippyai/ilemit/types"
)

// Instruction is a single CIL instruction with its inline operand.
type Instruction struct {
	Operand any
	Op      Opcode
}

// Int32Imm holds the operand of ldc.i4 and ldc.i4.s.
type Int32Imm struct {
	Value int32
}

// Int64Imm holds the operand of ldc.i8.
type Int64Imm struct {
	Value int64
}

// Float32Imm holds the operand of ldc.r4.
type Float32Imm struct {
	Value float32
}

// Float64Imm holds the operand of ldc.r8.
type Float64Imm struct {
	Value float64
}

// StringImm holds the operand of ldstr.
type StringImm struct {
	Value string
}

// TypeImm holds a type token.
type TypeImm struct {
	Type *types.Type
}

// MethodImm holds a method token for call, callvirt and newobj.
type MethodImm struct {
	Method *types.Method
}

// FieldImm holds a field token.
type FieldImm struct {
	Field *types.Field
}

// LocalImm holds a local variable index.
type LocalImm struct {
	Index uint16
}

// ArgImm holds an argument index.
type ArgImm struct {
	Index uint16
}

// TargetImm holds a branch target. While a method is being emitted the
// target is an instruction handle; in a finished Body it is an index into
// Body.Instructions.
type TargetImm struct {
	Target int
}

// SwitchImm holds the targets of a switch, with the same addressing as TargetImm.
type SwitchImm struct {
	Targets []int
}

// Is reports whether the instruction has opcode op.
func (i Instruction) Is(op Opcode) bool {
	return i.Op == op
}

// PopCount returns how many operand stack values the instruction consumes.
// returnsValue only matters for ret, whose pop count depends on the
// enclosing method.
func (i Instruction) PopCount(returnsValue bool) int {
	info := i.Op.Info()
	if info.Pops != Variadic {
		return info.Pops
	}
	switch i.Op {
	case OpRet:
		if returnsValue {
			return 1
		}
		return 0
	case OpCall, OpCallvirt:
		m := i.Method()
		if m == nil {
			return 0
		}
		n := len(m.Params)
		if !m.Static {
			n++
		}
		return n
	case OpNewobj:
		if m := i.Method(); m != nil {
			return len(m.Params)
		}
	}
	return 0
}

// PushCount returns how many operand stack values the instruction produces.
func (i Instruction) PushCount() int {
	info := i.Op.Info()
	if info.Pushes != Variadic {
		return info.Pushes
	}
	if m := i.Method(); m != nil && !m.Return.IsVoid() {
		return 1
	}
	return 0
}

// Method returns the method operand, if any.
func (i Instruction) Method() *types.Method {
	if imm, ok := i.Operand.(MethodImm); ok {
		return imm.Method
	}
	return nil
}

// TypeOperand returns the type token operand, if any.
func (i Instruction) TypeOperand() *types.Type {
	if imm, ok := i.Operand.(TypeImm); ok {
		return imm.Type
	}
	return nil
}

// Target returns the single branch target of the instruction.
func (i Instruction) Target() (int, bool) {
	if imm, ok := i.Operand.(TargetImm); ok {
		return imm.Target, true
	}
	return 0, false
}

// IntConstant returns the value pushed by an integer constant load.
func (i Instruction) IntConstant() (int64, bool) {
	switch i.Op {
	case OpLdcI4M1:
		return -1, true
	case OpLdcI40, OpLdcI41, OpLdcI42, OpLdcI43, OpLdcI44, OpLdcI45, OpLdcI46, OpLdcI47, OpLdcI48:
		return int64(i.Op - OpLdcI40), true
	case OpLdcI4S, OpLdcI4:
		if imm, ok := i.Operand.(Int32Imm); ok {
			return int64(imm.Value), true
		}
	case OpLdcI8:
		if imm, ok := i.Operand.(Int64Imm); ok {
			return imm.Value, true
		}
	}
	return 0, false
}

// LocalIndex returns the local variable a ldloc/stloc/ldloca form refers to.
func (i Instruction) LocalIndex() (int, bool) {
	switch i.Op {
	case OpLdloc0, OpLdloc1, OpLdloc2, OpLdloc3:
		return int(i.Op - OpLdloc0), true
	case OpStloc0, OpStloc1, OpStloc2, OpStloc3:
		return int(i.Op - OpStloc0), true
	case OpLdlocS, OpLdloc, OpStlocS, OpStloc, OpLdlocaS, OpLdloca:
		if imm, ok := i.Operand.(LocalImm); ok {
			return int(imm.Index), true
		}
	}
	return 0, false
}

// IsLoadLocal reports whether the instruction loads a local's value.
func (i Instruction) IsLoadLocal() bool {
	switch i.Op {
	case OpLdloc0, OpLdloc1, OpLdloc2, OpLdloc3, OpLdlocS, OpLdloc:
		return true
	}
	return false
}

// IsStoreLocal reports whether the instruction stores to a local.
func (i Instruction) IsStoreLocal() bool {
	switch i.Op {
	case OpStloc0, OpStloc1, OpStloc2, OpStloc3, OpStlocS, OpStloc:
		return true
	}
	return false
}

// Size returns the encoded size of the instruction in bytes.
func (i Instruction) Size() int {
	n := i.Op.Size()
	switch i.Op.Info().Operand {
	case OperandShortVar, OperandShortInt, OperandShortBranch:
		n++
	case OperandVar:
		n += 2
	case OperandInt32, OperandFloat32, OperandString, OperandType, OperandMethod, OperandField, OperandBranch:
		n += 4
	case OperandInt64, OperandFloat64:
		n += 8
	case OperandSwitch:
		n += 4
		if imm, ok := i.Operand.(SwitchImm); ok {
			n += 4 * len(imm.Targets)
		}
	}
	return n
}

// OperandString formats the operand for listings. Branch targets are
// rendered by the caller, which knows how to map them to offsets.
func (i Instruction) OperandString() string {
	switch imm := i.Operand.(type) {
	case nil:
		return ""
	case Int32Imm:
		return strconv.FormatInt(int64(imm.Value), 10)
	case Int64Imm:
		return strconv.FormatInt(imm.Value, 10)
	case Float32Imm:
		return strconv.FormatFloat(float64(imm.Value), 'g', -1, 32)
	case Float64Imm:
		return strconv.FormatFloat(imm.Value, 'g', -1, 64)
	case StringImm:
		return strconv.Quote(imm.Value)
	case TypeImm:
		return imm.Type.String()
	case MethodImm:
		return imm.Method.String()
	case FieldImm:
		return imm.Field.Type.String() + " " + imm.Field.FullName()
	case LocalImm:
		return "V_" + strconv.Itoa(int(imm.Index))
	case ArgImm:
		return strconv.Itoa(int(imm.Index))
	case TargetImm:
		return "#" + strconv.Itoa(imm.Target)
	case SwitchImm:
		return fmt.Sprintf("%d targets", len(imm.Targets))
	default:
		return fmt.Sprint(imm)
	}
}

func (i Instruction) String() string {
	if s := i.OperandString(); s != "" {
		return i.Op.String() + " " + s
	}
	return i.Op.String()
}

// Short-form constructors. Each picks the most compact encoding.

// Op returns an operand-less instruction.
func Op(op Opcode) Instruction {
	return Instruction{Op: op}
}

// LdcI4 loads a 32-bit integer constant.
func LdcI4(v int32) Instruction {
	switch {
	case v == -1:
		return Instruction{Op: OpLdcI4M1}
	case v >= 0 && v <= 8:
		return Instruction{Op: OpLdcI40 + Opcode(v)}
	case v >= -128 && v <= 127:
		return Instruction{Op: OpLdcI4S, Operand: Int32Imm{Value: v}}
	}
	return Instruction{Op: OpLdcI4, Operand: Int32Imm{Value: v}}
}

// LdcI8 loads a 64-bit integer constant.
func LdcI8(v int64) Instruction {
	return Instruction{Op: OpLdcI8, Operand: Int64Imm{Value: v}}
}

// LdcR4 loads a 32-bit float constant.
func LdcR4(v float32) Instruction {
	return Instruction{Op: OpLdcR4, Operand: Float32Imm{Value: v}}
}

// LdcR8 loads a 64-bit float constant.
func LdcR8(v float64) Instruction {
	return Instruction{Op: OpLdcR8, Operand: Float64Imm{Value: v}}
}

// Ldstr loads a string literal.
func Ldstr(s string) Instruction {
	return Instruction{Op: OpLdstr, Operand: StringImm{Value: s}}
}

// Ldloc loads local n.
func Ldloc(n int) Instruction {
	switch {
	case n <= 3:
		return Instruction{Op: OpLdloc0 + Opcode(n)}
	case n <= 255:
		return Instruction{Op: OpLdlocS, Operand: LocalImm{Index: uint16(n)}}
	}
	return Instruction{Op: OpLdloc, Operand: LocalImm{Index: uint16(n)}}
}

// Stloc stores to local n.
func Stloc(n int) Instruction {
	switch {
	case n <= 3:
		return Instruction{Op: OpStloc0 + Opcode(n)}
	case n <= 255:
		return Instruction{Op: OpStlocS, Operand: LocalImm{Index: uint16(n)}}
	}
	return Instruction{Op: OpStloc, Operand: LocalImm{Index: uint16(n)}}
}

// Ldloca loads the address of local n.
func Ldloca(n int) Instruction {
	if n <= 255 {
		return Instruction{Op: OpLdlocaS, Operand: LocalImm{Index: uint16(n)}}
	}
	return Instruction{Op: OpLdloca, Operand: LocalImm{Index: uint16(n)}}
}

// Ldarg loads argument n.
func Ldarg(n int) Instruction {
	switch {
	case n <= 3:
		return Instruction{Op: OpLdarg0 + Opcode(n)}
	case n <= 255:
		return Instruction{Op: OpLdargS, Operand: ArgImm{Index: uint16(n)}}
	}
	return Instruction{Op: OpLdarg, Operand: ArgImm{Index: uint16(n)}}
}

// Starg stores to argument n.
func Starg(n int) Instruction {
	if n <= 255 {
		return Instruction{Op: OpStargS, Operand: ArgImm{Index: uint16(n)}}
	}
	return Instruction{Op: OpStarg, Operand: ArgImm{Index: uint16(n)}}
}

// Ldarga loads the address of argument n.
func Ldarga(n int) Instruction {
	if n <= 255 {
		return Instruction{Op: OpLdargaS, Operand: ArgImm{Index: uint16(n)}}
	}
	return Instruction{Op: OpLdarga, Operand: ArgImm{Index: uint16(n)}}
}

// Call calls m, using callvirt for virtual instance methods.
func Call(m *types.Method) Instruction {
	op := OpCall
	if m.Virtual && !m.Static {
		op = OpCallvirt
	}
	return Instruction{Op: op, Operand: MethodImm{Method: m}}
}

// Newobj constructs an object with constructor m.
func Newobj(m *types.Method) Instruction {
	return Instruction{Op: OpNewobj, Operand: MethodImm{Method: m}}
}

// WithType returns an instruction with a type token operand.
func WithType(op Opcode, t *types.Type) Instruction {
	return Instruction{Op: op, Operand: TypeImm{Type: t}}
}

// WithField returns an instruction with a field token operand.
func WithField(op Opcode, f *types.Field) Instruction {
	return Instruction{Op: op, Operand: FieldImm{Field: f}}
}

// Branch returns a branch instruction to target.
func Branch(op Opcode, target int) Instruction {
	return Instruction{Op: op, Operand: TargetImm{Target: target}}
}
