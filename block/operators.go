package block

import (
	"github.com/wippyai/ilemit/cil"
	"github.com/wippyai/ilemit/types"
)

// signed and unsigned opcodes for the arithmetic and bitwise operators
var arithmetic = map[types.Operator][2]cil.Opcode{
	types.OpAdd:       {cil.OpAdd, cil.OpAdd},
	types.OpSubtract:  {cil.OpSub, cil.OpSub},
	types.OpMultiply:  {cil.OpMul, cil.OpMul},
	types.OpDivide:    {cil.OpDiv, cil.OpDivUn},
	types.OpRemainder: {cil.OpRem, cil.OpRemUn},
	types.OpAnd:       {cil.OpAnd, cil.OpAnd},
	types.OpOr:        {cil.OpOr, cil.OpOr},
	types.OpXor:       {cil.OpXor, cil.OpXor},
	types.OpShl:       {cil.OpShl, cil.OpShl},
	types.OpShr:       {cil.OpShr, cil.OpShrUn},
}

// comparisons without a direct opcode are the negation of one that has
type comparison struct {
	signed, unsigned, float cil.Opcode
	negate                  bool
}

var comparisons = map[types.Operator]comparison{
	types.OpEq: {cil.OpCeq, cil.OpCeq, cil.OpCeq, false},
	types.OpNe: {cil.OpCeq, cil.OpCeq, cil.OpCeq, true},
	types.OpLt: {cil.OpClt, cil.OpCltUn, cil.OpClt, false},
	types.OpGt: {cil.OpCgt, cil.OpCgtUn, cil.OpCgt, false},
	types.OpLe: {cil.OpCgt, cil.OpCgtUn, cil.OpCgtUn, true},
	types.OpGe: {cil.OpClt, cil.OpCltUn, cil.OpCltUn, true},
}

func isBool(t *types.Type) bool {
	return t.Kind == types.KindBool
}

// operandsAllowed reports whether the intrinsic lowering accepts op on a and b.
func operandsAllowed(op types.Operator, a, b *types.Type) bool {
	switch op {
	case types.OpAnd, types.OpOr, types.OpXor:
		return a.IsInteger() && b.IsInteger()
	case types.OpShl, types.OpShr:
		return a.IsInteger() && !isBool(a) && b.IsInteger() && !isBool(b)
	case types.OpEq, types.OpNe:
		if a.IsReference() && b.IsReference() {
			return true
		}
		if isBool(a) || isBool(b) {
			return isBool(a) && isBool(b)
		}
		return a.IsNumeric() && b.IsNumeric()
	}
	return a.IsNumeric() && b.IsNumeric() && !isBool(a) && !isBool(b)
}

// intrinsic returns the instructions that apply op to a and b directly.
func intrinsic(op types.Operator, a, b *types.Type) ([]cil.Instruction, bool) {
	if !operandsAllowed(op, a, b) {
		return nil, false
	}
	if pair, ok := arithmetic[op]; ok {
		unsigned := a.IsUnsigned() && b.IsUnsigned()
		if op == types.OpShr {
			unsigned = a.IsUnsigned()
		}
		if unsigned {
			return []cil.Instruction{cil.Op(pair[1])}, true
		}
		return []cil.Instruction{cil.Op(pair[0])}, true
	}
	cmp, ok := comparisons[op]
	if !ok {
		return nil, false
	}
	code := cmp.signed
	switch {
	case a.IsFloat() || b.IsFloat():
		code = cmp.float
	case a.IsUnsigned() && b.IsUnsigned():
		code = cmp.unsigned
	}
	out := []cil.Instruction{cil.Op(code)}
	if cmp.negate {
		out = append(out, booleanNot()...)
	}
	return out, true
}

func booleanNot() []cil.Instruction {
	return []cil.Instruction{cil.LdcI4(0), cil.Op(cil.OpCeq)}
}

// binaryResult returns the type an intrinsic binary operation pushes.
func binaryResult(op types.Operator, a *types.Type) *types.Type {
	if op.IsComparison() {
		return types.Bool
	}
	return a
}

// conversion returns the instructions converting a value of type from to
// type to.
func conversion(from, to *types.Type) ([]cil.Instruction, bool) {
	if types.Equal(from, to) {
		return nil, true
	}
	switch {
	case from.IsValueType() && to.IsReference():
		return []cil.Instruction{cil.WithType(cil.OpBox, from)}, true
	case from.IsReference() && to.IsValueType():
		return []cil.Instruction{cil.WithType(cil.OpUnboxAny, to)}, true
	case from.IsReference() && to.IsReference():
		if from.Kind == types.KindNull || to.Kind == types.KindObject {
			return nil, true
		}
		return []cil.Instruction{cil.WithType(cil.OpCastclass, to)}, true
	}
	if !from.IsNumeric() || !to.IsNumeric() {
		return nil, false
	}

	var code cil.Opcode
	switch to.Kind {
	case types.KindInt8:
		code = cil.OpConvI1
	case types.KindInt16:
		code = cil.OpConvI2
	case types.KindInt32:
		code = cil.OpConvI4
	case types.KindInt64:
		code = cil.OpConvI8
	case types.KindBool, types.KindUInt8:
		code = cil.OpConvU1
	case types.KindChar, types.KindUInt16:
		code = cil.OpConvU2
	case types.KindUInt32:
		code = cil.OpConvU4
	case types.KindUInt64:
		code = cil.OpConvU8
	case types.KindNativeInt:
		code = cil.OpConvI
	case types.KindFloat32:
		code = cil.OpConvR4
	case types.KindFloat64:
		if from.IsUnsigned() {
			return []cil.Instruction{cil.Op(cil.OpConvRUn), cil.Op(cil.OpConvR8)}, true
		}
		code = cil.OpConvR8
	default:
		return nil, false
	}
	return []cil.Instruction{cil.Op(code)}, true
}
