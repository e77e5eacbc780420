package emit

import "github.com/wippyai/ilemit/cil"

// Rule and branch rule names, as counted in Stats.Rewrites.
const (
	RuleDoubleNegation = "double-negation"
	RuleDupUsePop      = "dup-use-pop"
	RuleCompareAndOne  = "compare-and-one"
	RuleDupPop         = "dup-pop"
	RuleAddZero        = "identity-zero"
	RuleMulOne         = "identity-one"
	RuleNegNeg         = "neg-neg"
	RuleNotNot         = "not-not"
	RuleStoreLoad      = "store-load"

	RuleBoolCompareBranch = "bool-compare-branch"
	RuleNullCompareBranch = "null-compare-branch"
	RuleCompareBranch     = "compare-branch"
	RuleConstBranch       = "const-branch"
	RuleZeroCompareBranch = "zero-compare-branch"
)

func opIs(ins cil.Instruction, ops ...cil.Opcode) bool {
	for _, op := range ops {
		if ins.Op == op {
			return true
		}
	}
	return false
}

func isConst(ins cil.Instruction, v int64) bool {
	got, ok := ins.IntConstant()
	return ok && got == v && ins.Op != cil.OpLdcI8
}

func drop([]cil.Instruction) []cil.Instruction {
	return nil
}

// DefaultRules returns the append-time rule catalogue.
func DefaultRules() []Rule {
	return []Rule{
		{
			// boolean negation applied twice to a comparison result; any
			// other value is normalized to 0 or 1 by the pair
			Name: RuleDoubleNegation,
			Size: 5,
			Match: func(w []cil.Instruction) bool {
				return w[0].Op.IsCompare() &&
					isConst(w[1], 0) && w[2].Op == cil.OpCeq && isConst(w[3], 0) && w[4].Op == cil.OpCeq
			},
			Rewrite: func(w []cil.Instruction) []cil.Instruction {
				return []cil.Instruction{w[0]}
			},
		},
		{
			Name: RuleDupUsePop,
			Size: 3,
			Match: func(w []cil.Instruction) bool {
				mid := w[1]
				return w[0].Op == cil.OpDup && w[2].Op == cil.OpPop &&
					mid.Op.Flow() == cil.FlowNext && mid.PopCount(false) == 1 && mid.PushCount() == 0
			},
			Rewrite: func(w []cil.Instruction) []cil.Instruction {
				return []cil.Instruction{w[1]}
			},
		},
		{
			// comparisons already produce 0 or 1
			Name: RuleCompareAndOne,
			Size: 3,
			Match: func(w []cil.Instruction) bool {
				return w[0].Op.IsCompare() && isConst(w[1], 1) && w[2].Op == cil.OpAnd
			},
			Rewrite: func(w []cil.Instruction) []cil.Instruction {
				return []cil.Instruction{w[0]}
			},
		},
		{
			Name: RuleDupPop,
			Size: 2,
			Match: func(w []cil.Instruction) bool {
				return w[0].Op == cil.OpDup && w[1].Op == cil.OpPop
			},
			Rewrite: drop,
		},
		{
			Name: RuleAddZero,
			Size: 2,
			Match: func(w []cil.Instruction) bool {
				return isConst(w[0], 0) && opIs(w[1], cil.OpAdd, cil.OpSub, cil.OpOr, cil.OpXor, cil.OpShl, cil.OpShr, cil.OpShrUn)
			},
			Rewrite: drop,
		},
		{
			Name: RuleMulOne,
			Size: 2,
			Match: func(w []cil.Instruction) bool {
				return isConst(w[0], 1) && opIs(w[1], cil.OpMul, cil.OpDiv)
			},
			Rewrite: drop,
		},
		{
			Name: RuleNegNeg,
			Size: 2,
			Match: func(w []cil.Instruction) bool {
				return w[0].Op == cil.OpNeg && w[1].Op == cil.OpNeg
			},
			Rewrite: drop,
		},
		{
			Name: RuleNotNot,
			Size: 2,
			Match: func(w []cil.Instruction) bool {
				return w[0].Op == cil.OpNot && w[1].Op == cil.OpNot
			},
			Rewrite: drop,
		},
		{
			Name: RuleStoreLoad,
			Size: 2,
			Match: func(w []cil.Instruction) bool {
				if !w[0].IsStoreLocal() || !w[1].IsLoadLocal() {
					return false
				}
				a, _ := w[0].LocalIndex()
				b, _ := w[1].LocalIndex()
				return a == b
			},
			Rewrite: func(w []cil.Instruction) []cil.Instruction {
				return []cil.Instruction{cil.Op(cil.OpDup), w[0]}
			},
		},
	}
}

// compareBranches maps a comparison to the branch taken when it is true
// and when it is false.
var compareBranches = map[cil.Opcode][2]cil.Opcode{
	cil.OpCeq:   {cil.OpBeq, cil.OpBneUn},
	cil.OpClt:   {cil.OpBlt, cil.OpBge},
	cil.OpCltUn: {cil.OpBltUn, cil.OpBgeUn},
	cil.OpCgt:   {cil.OpBgt, cil.OpBle},
	cil.OpCgtUn: {cil.OpBgtUn, cil.OpBleUn},
}

func onBool(op cil.Opcode) bool {
	return op == cil.OpBrtrue || op == cil.OpBrfalse
}

// DefaultBranchRules returns the branch fusion catalogue.
func DefaultBranchRules() []BranchRule {
	return []BranchRule{
		{
			// x == false branches like !x for any x; x == true branches
			// like x only when x is a comparison result
			Name: RuleBoolCompareBranch,
			Size: 3,
			Fuse: func(w []cil.Instruction, op cil.Opcode) ([]cil.Instruction, cil.Opcode, bool) {
				if !onBool(op) || w[2].Op != cil.OpCeq {
					return nil, 0, false
				}
				switch {
				case isConst(w[1], 1) && w[0].Op.IsCompare():
					return w[:1], op, true
				case isConst(w[1], 0):
					neg, _ := cil.NegateBranch(op)
					return w[:1], neg, true
				}
				return nil, 0, false
			},
		},
		{
			// isinst T; ldnull; cgt.un is the "is T" idiom
			Name: RuleNullCompareBranch,
			Size: 2,
			Fuse: func(w []cil.Instruction, op cil.Opcode) ([]cil.Instruction, cil.Opcode, bool) {
				if !onBool(op) || w[0].Op != cil.OpLdnull {
					return nil, 0, false
				}
				switch w[1].Op {
				case cil.OpCgtUn:
					return nil, op, true
				case cil.OpCeq:
					neg, _ := cil.NegateBranch(op)
					return nil, neg, true
				}
				return nil, 0, false
			},
		},
		{
			Name: RuleCompareBranch,
			Size: 1,
			Fuse: func(w []cil.Instruction, op cil.Opcode) ([]cil.Instruction, cil.Opcode, bool) {
				pair, ok := compareBranches[w[0].Op]
				if !ok || !onBool(op) {
					return nil, 0, false
				}
				if op == cil.OpBrtrue {
					return nil, pair[0], true
				}
				return nil, pair[1], true
			},
		},
		{
			Name: RuleConstBranch,
			Size: 1,
			Fuse: func(w []cil.Instruction, op cil.Opcode) ([]cil.Instruction, cil.Opcode, bool) {
				if !onBool(op) {
					return nil, 0, false
				}
				var nonzero bool
				if w[0].Op == cil.OpLdnull {
					nonzero = false
				} else if v, ok := w[0].IntConstant(); ok && w[0].Op != cil.OpLdcI8 {
					nonzero = v != 0
				} else {
					return nil, 0, false
				}
				if nonzero == (op == cil.OpBrtrue) {
					return nil, cil.OpBr, true
				}
				return nil, cil.OpNop, true
			},
		},
		{
			Name: RuleZeroCompareBranch,
			Size: 1,
			Fuse: func(w []cil.Instruction, op cil.Opcode) ([]cil.Instruction, cil.Opcode, bool) {
				if !isConst(w[0], 0) {
					return nil, 0, false
				}
				switch op {
				case cil.OpBeq:
					return nil, cil.OpBrfalse, true
				case cil.OpBneUn:
					return nil, cil.OpBrtrue, true
				}
				return nil, 0, false
			},
		},
	}
}
