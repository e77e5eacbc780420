package cil

import "fmt"

// Opcode is a CIL opcode. Two-byte opcodes carry the 0xFE prefix in the
// high byte.
type Opcode uint16

// Single-byte opcodes.
const (
	OpNop        Opcode = 0x00
	OpLdarg0     Opcode = 0x02
	OpLdarg1     Opcode = 0x03
	OpLdarg2     Opcode = 0x04
	OpLdarg3     Opcode = 0x05
	OpLdloc0     Opcode = 0x06
	OpLdloc1     Opcode = 0x07
	OpLdloc2     Opcode = 0x08
	OpLdloc3     Opcode = 0x09
	OpStloc0     Opcode = 0x0A
	OpStloc1     Opcode = 0x0B
	OpStloc2     Opcode = 0x0C
	OpStloc3     Opcode = 0x0D
	OpLdargS     Opcode = 0x0E
	OpLdargaS    Opcode = 0x0F
	OpStargS     Opcode = 0x10
	OpLdlocS     Opcode = 0x11
	OpLdlocaS    Opcode = 0x12
	OpStlocS     Opcode = 0x13
	OpLdnull     Opcode = 0x14
	OpLdcI4M1    Opcode = 0x15
	OpLdcI40     Opcode = 0x16
	OpLdcI41     Opcode = 0x17
	OpLdcI42     Opcode = 0x18
	OpLdcI43     Opcode = 0x19
	OpLdcI44     Opcode = 0x1A
	OpLdcI45     Opcode = 0x1B
	OpLdcI46     Opcode = 0x1C
	OpLdcI47     Opcode = 0x1D
	OpLdcI48     Opcode = 0x1E
	OpLdcI4S     Opcode = 0x1F
	OpLdcI4      Opcode = 0x20
	OpLdcI8      Opcode = 0x21
	OpLdcR4      Opcode = 0x22
	OpLdcR8      Opcode = 0x23
	OpDup        Opcode = 0x25
	OpPop        Opcode = 0x26
	OpCall       Opcode = 0x28
	OpRet        Opcode = 0x2A
	OpBrS        Opcode = 0x2B
	OpBrfalseS   Opcode = 0x2C
	OpBrtrueS    Opcode = 0x2D
	OpBeqS       Opcode = 0x2E
	OpBgeS       Opcode = 0x2F
	OpBgtS       Opcode = 0x30
	OpBleS       Opcode = 0x31
	OpBltS       Opcode = 0x32
	OpBneUnS     Opcode = 0x33
	OpBgeUnS     Opcode = 0x34
	OpBgtUnS     Opcode = 0x35
	OpBleUnS     Opcode = 0x36
	OpBltUnS     Opcode = 0x37
	OpBr         Opcode = 0x38
	OpBrfalse    Opcode = 0x39
	OpBrtrue     Opcode = 0x3A
	OpBeq        Opcode = 0x3B
	OpBge        Opcode = 0x3C
	OpBgt        Opcode = 0x3D
	OpBle        Opcode = 0x3E
	OpBlt        Opcode = 0x3F
	OpBneUn      Opcode = 0x40
	OpBgeUn      Opcode = 0x41
	OpBgtUn      Opcode = 0x42
	OpBleUn      Opcode = 0x43
	OpBltUn      Opcode = 0x44
	OpSwitch     Opcode = 0x45
	OpAdd        Opcode = 0x58
	OpSub        Opcode = 0x59
	OpMul        Opcode = 0x5A
	OpDiv        Opcode = 0x5B
	OpDivUn      Opcode = 0x5C
	OpRem        Opcode = 0x5D
	OpRemUn      Opcode = 0x5E
	OpAnd        Opcode = 0x5F
	OpOr         Opcode = 0x60
	OpXor        Opcode = 0x61
	OpShl        Opcode = 0x62
	OpShr        Opcode = 0x63
	OpShrUn      Opcode = 0x64
	OpNeg        Opcode = 0x65
	OpNot        Opcode = 0x66
	OpConvI1     Opcode = 0x67
	OpConvI2     Opcode = 0x68
	OpConvI4     Opcode = 0x69
	OpConvI8     Opcode = 0x6A
	OpConvR4     Opcode = 0x6B
	OpConvR8     Opcode = 0x6C
	OpConvU4     Opcode = 0x6D
	OpConvU8     Opcode = 0x6E
	OpCallvirt   Opcode = 0x6F
	OpLdstr      Opcode = 0x72
	OpNewobj     Opcode = 0x73
	OpCastclass  Opcode = 0x74
	OpIsinst     Opcode = 0x75
	OpConvRUn    Opcode = 0x76
	OpThrow      Opcode = 0x7A
	OpLdfld      Opcode = 0x7B
	OpLdflda     Opcode = 0x7C
	OpStfld      Opcode = 0x7D
	OpLdsfld     Opcode = 0x7E
	OpStsfld     Opcode = 0x80
	OpBox        Opcode = 0x8C
	OpNewarr     Opcode = 0x8D
	OpLdlen      Opcode = 0x8E
	OpLdelem     Opcode = 0xA3
	OpStelem     Opcode = 0xA4
	OpUnboxAny   Opcode = 0xA5
	OpConvU2     Opcode = 0xD1
	OpConvU1     Opcode = 0xD2
	OpConvI      Opcode = 0xD3
	OpEndfinally Opcode = 0xDC
	OpLeave      Opcode = 0xDD
	OpLeaveS     Opcode = 0xDE
)

// Two-byte (0xFE prefixed) opcodes.
const (
	OpCeq         Opcode = 0xFE01
	OpCgt         Opcode = 0xFE02
	OpCgtUn       Opcode = 0xFE03
	OpClt         Opcode = 0xFE04
	OpCltUn       Opcode = 0xFE05
	OpLdarg       Opcode = 0xFE09
	OpLdarga      Opcode = 0xFE0A
	OpStarg       Opcode = 0xFE0B
	OpLdloc       Opcode = 0xFE0C
	OpLdloca      Opcode = 0xFE0D
	OpStloc       Opcode = 0xFE0E
	OpEndfilter   Opcode = 0xFE11
	OpInitobj     Opcode = 0xFE15
	OpConstrained Opcode = 0xFE16
	OpRethrow     Opcode = 0xFE1A
	OpSizeof      Opcode = 0xFE1C
)

// FlowControl describes how an opcode transfers control.
type FlowControl uint8

const (
	FlowNext FlowControl = iota
	FlowBranch
	FlowCondBranch
	FlowCall
	FlowReturn
	FlowThrow
	FlowMeta
)

// OperandKind describes the inline operand an opcode carries.
type OperandKind uint8

const (
	OperandNone OperandKind = iota
	OperandShortVar
	OperandVar
	OperandShortInt
	OperandInt32
	OperandInt64
	OperandFloat32
	OperandFloat64
	OperandString
	OperandType
	OperandMethod
	OperandField
	OperandShortBranch
	OperandBranch
	OperandSwitch
)

// Variadic marks a pop or push count that depends on the operand.
const Variadic = -1

// Info is the static description of an opcode.
type Info struct {
	Name    string
	Pops    int
	Pushes  int
	Flow    FlowControl
	Operand OperandKind
}

var opcodeInfo = map[Opcode]Info{
	OpNop:    {"nop", 0, 0, FlowNext, OperandNone},
	OpLdarg0: {"ldarg.0", 0, 1, FlowNext, OperandNone},
	OpLdarg1: {"ldarg.1", 0, 1, FlowNext, OperandNone},
	OpLdarg2: {"ldarg.2", 0, 1, FlowNext, OperandNone},
	OpLdarg3: {"ldarg.3", 0, 1, FlowNext, OperandNone},
	OpLdloc0: {"ldloc.0", 0, 1, FlowNext, OperandNone},
	OpLdloc1: {"ldloc.1", 0, 1, FlowNext, OperandNone},
	OpLdloc2: {"ldloc.2", 0, 1, FlowNext, OperandNone},
	OpLdloc3: {"ldloc.3", 0, 1, FlowNext, OperandNone},
	OpStloc0: {"stloc.0", 1, 0, FlowNext, OperandNone},
	OpStloc1: {"stloc.1", 1, 0, FlowNext, OperandNone},
	OpStloc2: {"stloc.2", 1, 0, FlowNext, OperandNone},
	OpStloc3: {"stloc.3", 1, 0, FlowNext, OperandNone},

	OpLdargS:  {"ldarg.s", 0, 1, FlowNext, OperandShortVar},
	OpLdargaS: {"ldarga.s", 0, 1, FlowNext, OperandShortVar},
	OpStargS:  {"starg.s", 1, 0, FlowNext, OperandShortVar},
	OpLdlocS:  {"ldloc.s", 0, 1, FlowNext, OperandShortVar},
	OpLdlocaS: {"ldloca.s", 0, 1, FlowNext, OperandShortVar},
	OpStlocS:  {"stloc.s", 1, 0, FlowNext, OperandShortVar},

	OpLdnull:  {"ldnull", 0, 1, FlowNext, OperandNone},
	OpLdcI4M1: {"ldc.i4.m1", 0, 1, FlowNext, OperandNone},
	OpLdcI40:  {"ldc.i4.0", 0, 1, FlowNext, OperandNone},
	OpLdcI41:  {"ldc.i4.1", 0, 1, FlowNext, OperandNone},
	OpLdcI42:  {"ldc.i4.2", 0, 1, FlowNext, OperandNone},
	OpLdcI43:  {"ldc.i4.3", 0, 1, FlowNext, OperandNone},
	OpLdcI44:  {"ldc.i4.4", 0, 1, FlowNext, OperandNone},
	OpLdcI45:  {"ldc.i4.5", 0, 1, FlowNext, OperandNone},
	OpLdcI46:  {"ldc.i4.6", 0, 1, FlowNext, OperandNone},
	OpLdcI47:  {"ldc.i4.7", 0, 1, FlowNext, OperandNone},
	OpLdcI48:  {"ldc.i4.8", 0, 1, FlowNext, OperandNone},
	OpLdcI4S:  {"ldc.i4.s", 0, 1, FlowNext, OperandShortInt},
	OpLdcI4:   {"ldc.i4", 0, 1, FlowNext, OperandInt32},
	OpLdcI8:   {"ldc.i8", 0, 1, FlowNext, OperandInt64},
	OpLdcR4:   {"ldc.r4", 0, 1, FlowNext, OperandFloat32},
	OpLdcR8:   {"ldc.r8", 0, 1, FlowNext, OperandFloat64},
	OpDup:     {"dup", 1, 2, FlowNext, OperandNone},
	OpPop:     {"pop", 1, 0, FlowNext, OperandNone},

	OpCall:     {"call", Variadic, Variadic, FlowCall, OperandMethod},
	OpCallvirt: {"callvirt", Variadic, Variadic, FlowCall, OperandMethod},
	OpNewobj:   {"newobj", Variadic, 1, FlowCall, OperandMethod},
	OpRet:      {"ret", Variadic, 0, FlowReturn, OperandNone},

	OpBrS:      {"br.s", 0, 0, FlowBranch, OperandShortBranch},
	OpBrfalseS: {"brfalse.s", 1, 0, FlowCondBranch, OperandShortBranch},
	OpBrtrueS:  {"brtrue.s", 1, 0, FlowCondBranch, OperandShortBranch},
	OpBeqS:     {"beq.s", 2, 0, FlowCondBranch, OperandShortBranch},
	OpBgeS:     {"bge.s", 2, 0, FlowCondBranch, OperandShortBranch},
	OpBgtS:     {"bgt.s", 2, 0, FlowCondBranch, OperandShortBranch},
	OpBleS:     {"ble.s", 2, 0, FlowCondBranch, OperandShortBranch},
	OpBltS:     {"blt.s", 2, 0, FlowCondBranch, OperandShortBranch},
	OpBneUnS:   {"bne.un.s", 2, 0, FlowCondBranch, OperandShortBranch},
	OpBgeUnS:   {"bge.un.s", 2, 0, FlowCondBranch, OperandShortBranch},
	OpBgtUnS:   {"bgt.un.s", 2, 0, FlowCondBranch, OperandShortBranch},
	OpBleUnS:   {"ble.un.s", 2, 0, FlowCondBranch, OperandShortBranch},
	OpBltUnS:   {"blt.un.s", 2, 0, FlowCondBranch, OperandShortBranch},
	OpBr:       {"br", 0, 0, FlowBranch, OperandBranch},
	OpBrfalse:  {"brfalse", 1, 0, FlowCondBranch, OperandBranch},
	OpBrtrue:   {"brtrue", 1, 0, FlowCondBranch, OperandBranch},
	OpBeq:      {"beq", 2, 0, FlowCondBranch, OperandBranch},
	OpBge:      {"bge", 2, 0, FlowCondBranch, OperandBranch},
	OpBgt:      {"bgt", 2, 0, FlowCondBranch, OperandBranch},
	OpBle:      {"ble", 2, 0, FlowCondBranch, OperandBranch},
	OpBlt:      {"blt", 2, 0, FlowCondBranch, OperandBranch},
	OpBneUn:    {"bne.un", 2, 0, FlowCondBranch, OperandBranch},
	OpBgeUn:    {"bge.un", 2, 0, FlowCondBranch, OperandBranch},
	OpBgtUn:    {"bgt.un", 2, 0, FlowCondBranch, OperandBranch},
	OpBleUn:    {"ble.un", 2, 0, FlowCondBranch, OperandBranch},
	OpBltUn:    {"blt.un", 2, 0, FlowCondBranch, OperandBranch},
	OpSwitch:   {"switch", 1, 0, FlowCondBranch, OperandSwitch},
	OpLeave:    {"leave", 0, 0, FlowBranch, OperandBranch},
	OpLeaveS:   {"leave.s", 0, 0, FlowBranch, OperandShortBranch},

	OpAdd:   {"add", 2, 1, FlowNext, OperandNone},
	OpSub:   {"sub", 2, 1, FlowNext, OperandNone},
	OpMul:   {"mul", 2, 1, FlowNext, OperandNone},
	OpDiv:   {"div", 2, 1, FlowNext, OperandNone},
	OpDivUn: {"div.un", 2, 1, FlowNext, OperandNone},
	OpRem:   {"rem", 2, 1, FlowNext, OperandNone},
	OpRemUn: {"rem.un", 2, 1, FlowNext, OperandNone},
	OpAnd:   {"and", 2, 1, FlowNext, OperandNone},
	OpOr:    {"or", 2, 1, FlowNext, OperandNone},
	OpXor:   {"xor", 2, 1, FlowNext, OperandNone},
	OpShl:   {"shl", 2, 1, FlowNext, OperandNone},
	OpShr:   {"shr", 2, 1, FlowNext, OperandNone},
	OpShrUn: {"shr.un", 2, 1, FlowNext, OperandNone},
	OpNeg:   {"neg", 1, 1, FlowNext, OperandNone},
	OpNot:   {"not", 1, 1, FlowNext, OperandNone},

	OpConvI1:  {"conv.i1", 1, 1, FlowNext, OperandNone},
	OpConvI2:  {"conv.i2", 1, 1, FlowNext, OperandNone},
	OpConvI4:  {"conv.i4", 1, 1, FlowNext, OperandNone},
	OpConvI8:  {"conv.i8", 1, 1, FlowNext, OperandNone},
	OpConvR4:  {"conv.r4", 1, 1, FlowNext, OperandNone},
	OpConvR8:  {"conv.r8", 1, 1, FlowNext, OperandNone},
	OpConvU1:  {"conv.u1", 1, 1, FlowNext, OperandNone},
	OpConvU2:  {"conv.u2", 1, 1, FlowNext, OperandNone},
	OpConvU4:  {"conv.u4", 1, 1, FlowNext, OperandNone},
	OpConvU8:  {"conv.u8", 1, 1, FlowNext, OperandNone},
	OpConvRUn: {"conv.r.un", 1, 1, FlowNext, OperandNone},
	OpConvI:   {"conv.i", 1, 1, FlowNext, OperandNone},

	OpLdstr:     {"ldstr", 0, 1, FlowNext, OperandString},
	OpCastclass: {"castclass", 1, 1, FlowNext, OperandType},
	OpIsinst:    {"isinst", 1, 1, FlowNext, OperandType},
	OpBox:       {"box", 1, 1, FlowNext, OperandType},
	OpUnboxAny:  {"unbox.any", 1, 1, FlowNext, OperandType},
	OpNewarr:    {"newarr", 1, 1, FlowNext, OperandType},
	OpLdlen:     {"ldlen", 1, 1, FlowNext, OperandNone},
	OpLdelem:    {"ldelem", 2, 1, FlowNext, OperandType},
	OpStelem:    {"stelem", 3, 0, FlowNext, OperandType},
	OpThrow:     {"throw", 1, 0, FlowThrow, OperandNone},
	OpLdfld:     {"ldfld", 1, 1, FlowNext, OperandField},
	OpLdflda:    {"ldflda", 1, 1, FlowNext, OperandField},
	OpStfld:     {"stfld", 2, 0, FlowNext, OperandField},
	OpLdsfld:    {"ldsfld", 0, 1, FlowNext, OperandField},
	OpStsfld:    {"stsfld", 1, 0, FlowNext, OperandField},

	OpEndfinally: {"endfinally", 0, 0, FlowReturn, OperandNone},

	OpCeq:         {"ceq", 2, 1, FlowNext, OperandNone},
	OpCgt:         {"cgt", 2, 1, FlowNext, OperandNone},
	OpCgtUn:       {"cgt.un", 2, 1, FlowNext, OperandNone},
	OpClt:         {"clt", 2, 1, FlowNext, OperandNone},
	OpCltUn:       {"clt.un", 2, 1, FlowNext, OperandNone},
	OpLdarg:       {"ldarg", 0, 1, FlowNext, OperandVar},
	OpLdarga:      {"ldarga", 0, 1, FlowNext, OperandVar},
	OpStarg:       {"starg", 1, 0, FlowNext, OperandVar},
	OpLdloc:       {"ldloc", 0, 1, FlowNext, OperandVar},
	OpLdloca:      {"ldloca", 0, 1, FlowNext, OperandVar},
	OpStloc:       {"stloc", 1, 0, FlowNext, OperandVar},
	OpEndfilter:   {"endfilter", 1, 0, FlowReturn, OperandNone},
	OpInitobj:     {"initobj", 1, 0, FlowNext, OperandType},
	OpConstrained: {"constrained.", 0, 0, FlowMeta, OperandType},
	OpRethrow:     {"rethrow", 0, 0, FlowThrow, OperandNone},
	OpSizeof:      {"sizeof", 0, 1, FlowNext, OperandType},
}

var opcodeByName map[string]Opcode

func init() {
	opcodeByName = make(map[string]Opcode, len(opcodeInfo))
	for op, info := range opcodeInfo {
		opcodeByName[info.Name] = op
	}
}

// Lookup returns the static description of op.
func Lookup(op Opcode) (Info, bool) {
	info, ok := opcodeInfo[op]
	return info, ok
}

// ByName returns the opcode with the given mnemonic.
func ByName(name string) (Opcode, bool) {
	op, ok := opcodeByName[name]
	return op, ok
}

func (op Opcode) String() string {
	if info, ok := opcodeInfo[op]; ok {
		return info.Name
	}
	return fmt.Sprintf("op(%#x)", uint16(op))
}

// Info returns the static description of op. Unknown opcodes yield a zero Info.
func (op Opcode) Info() Info {
	return opcodeInfo[op]
}

// Size returns the encoded size of the opcode itself (1 or 2 bytes).
func (op Opcode) Size() int {
	if op > 0xFF {
		return 2
	}
	return 1
}

// Flow returns the flow-control class of op.
func (op Opcode) Flow() FlowControl {
	return opcodeInfo[op].Flow
}

// IsBranch reports whether op carries a single branch target.
func (op Opcode) IsBranch() bool {
	k := opcodeInfo[op].Operand
	return k == OperandBranch || k == OperandShortBranch
}

// IsConditionalBranch reports whether op is a conditional single-target branch.
func (op Opcode) IsConditionalBranch() bool {
	return op.IsBranch() && opcodeInfo[op].Flow == FlowCondBranch
}

// IsUnconditional reports whether control never falls through op.
func (op Opcode) IsUnconditional() bool {
	switch opcodeInfo[op].Flow {
	case FlowBranch, FlowReturn, FlowThrow:
		return true
	}
	return false
}

// IsLeave reports whether op is leave or leave.s.
func (op Opcode) IsLeave() bool {
	return op == OpLeave || op == OpLeaveS
}

// IsCompare reports whether op is a two-operand comparison producing 0 or 1.
func (op Opcode) IsCompare() bool {
	switch op {
	case OpCeq, OpCgt, OpCgtUn, OpClt, OpCltUn:
		return true
	}
	return false
}

var shortToLong = map[Opcode]Opcode{
	OpBrS: OpBr, OpBrfalseS: OpBrfalse, OpBrtrueS: OpBrtrue,
	OpBeqS: OpBeq, OpBgeS: OpBge, OpBgtS: OpBgt, OpBleS: OpBle, OpBltS: OpBlt,
	OpBneUnS: OpBneUn, OpBgeUnS: OpBgeUn, OpBgtUnS: OpBgtUn, OpBleUnS: OpBleUn, OpBltUnS: OpBltUn,
	OpLeaveS: OpLeave,
}

var longToShort = func() map[Opcode]Opcode {
	m := make(map[Opcode]Opcode, len(shortToLong))
	for s, l := range shortToLong {
		m[l] = s
	}
	return m
}()

// LongForm returns the 32-bit-offset form of a branch opcode.
func LongForm(op Opcode) Opcode {
	if l, ok := shortToLong[op]; ok {
		return l
	}
	return op
}

// ShortForm returns the 8-bit-offset form of a branch opcode.
func ShortForm(op Opcode) Opcode {
	if s, ok := longToShort[op]; ok {
		return s
	}
	return op
}

// NegateBranch returns the branch taken exactly when op is not taken.
// Only brtrue/brfalse have an exact negation for every operand type.
func NegateBranch(op Opcode) (Opcode, bool) {
	switch LongForm(op) {
	case OpBrtrue:
		return OpBrfalse, true
	case OpBrfalse:
		return OpBrtrue, true
	}
	return op, false
}
