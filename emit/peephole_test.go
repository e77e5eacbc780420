package emit

import (
	"slices"
	"testing"

	"github.com/wippyai/ilemit/cil"
)

func TestRules(t *testing.T) {
	// start is the index in `in` of the first instruction of the rewritten
	// window and landing the instruction a branch to it must reach after the
	// rewrite.
	tests := []struct {
		name    string
		rule    string
		in      []cil.Instruction
		want    []cil.Opcode
		start   int
		landing cil.Opcode
	}{
		{
			name: "double negation",
			rule: RuleDoubleNegation,
			in: []cil.Instruction{
				cil.Ldarg(0), cil.Ldarg(1), cil.Op(cil.OpClt), cil.LdcI4(0), cil.Op(cil.OpCeq), cil.LdcI4(0), cil.Op(cil.OpCeq),
			},
			want:    []cil.Opcode{cil.OpLdarg0, cil.OpLdarg1, cil.OpClt},
			start:   2,
			landing: cil.OpClt,
		},
		{
			name:    "dup store pop",
			rule:    RuleDupUsePop,
			in:      []cil.Instruction{cil.Ldarg(0), cil.Op(cil.OpDup), cil.Stloc(0), cil.Op(cil.OpPop)},
			want:    []cil.Opcode{cil.OpLdarg0, cil.OpStloc0},
			start:   1,
			landing: cil.OpStloc0,
		},
		{
			name:    "compare and one",
			rule:    RuleCompareAndOne,
			in:      []cil.Instruction{cil.Ldarg(0), cil.Ldarg(1), cil.Op(cil.OpClt), cil.LdcI4(1), cil.Op(cil.OpAnd)},
			want:    []cil.Opcode{cil.OpLdarg0, cil.OpLdarg1, cil.OpClt},
			start:   2,
			landing: cil.OpClt,
		},
		{
			name:    "dup pop",
			rule:    RuleDupPop,
			in:      []cil.Instruction{cil.Ldarg(0), cil.Op(cil.OpDup), cil.Op(cil.OpPop)},
			want:    []cil.Opcode{cil.OpLdarg0},
			start:   1,
			landing: cil.OpNop,
		},
		{
			name:    "add zero",
			rule:    RuleAddZero,
			in:      []cil.Instruction{cil.Ldarg(0), cil.LdcI4(0), cil.Op(cil.OpAdd)},
			want:    []cil.Opcode{cil.OpLdarg0},
			start:   1,
			landing: cil.OpNop,
		},
		{
			name:    "shift by zero",
			rule:    RuleAddZero,
			in:      []cil.Instruction{cil.Ldarg(0), cil.LdcI4(0), cil.Op(cil.OpShrUn)},
			want:    []cil.Opcode{cil.OpLdarg0},
			start:   1,
			landing: cil.OpNop,
		},
		{
			name:    "multiply by one",
			rule:    RuleMulOne,
			in:      []cil.Instruction{cil.Ldarg(0), cil.LdcI4(1), cil.Op(cil.OpMul)},
			want:    []cil.Opcode{cil.OpLdarg0},
			start:   1,
			landing: cil.OpNop,
		},
		{
			name:    "divide by one",
			rule:    RuleMulOne,
			in:      []cil.Instruction{cil.Ldarg(0), cil.LdcI4(1), cil.Op(cil.OpDiv)},
			want:    []cil.Opcode{cil.OpLdarg0},
			start:   1,
			landing: cil.OpNop,
		},
		{
			name:    "neg neg",
			rule:    RuleNegNeg,
			in:      []cil.Instruction{cil.Ldarg(0), cil.Op(cil.OpNeg), cil.Op(cil.OpNeg)},
			want:    []cil.Opcode{cil.OpLdarg0},
			start:   1,
			landing: cil.OpNop,
		},
		{
			name:    "not not",
			rule:    RuleNotNot,
			in:      []cil.Instruction{cil.Ldarg(0), cil.Op(cil.OpNot), cil.Op(cil.OpNot)},
			want:    []cil.Opcode{cil.OpLdarg0},
			start:   1,
			landing: cil.OpNop,
		},
		{
			name:    "store then load",
			rule:    RuleStoreLoad,
			in:      []cil.Instruction{cil.Ldarg(0), cil.Stloc(1), cil.Ldloc(1)},
			want:    []cil.Opcode{cil.OpLdarg0, cil.OpDup, cil.OpStloc1},
			start:   1,
			landing: cil.OpDup,
		},
		{
			name: "cascade",
			rule: RuleNegNeg,
			in: []cil.Instruction{
				cil.Ldarg(0), cil.Op(cil.OpNeg), cil.Op(cil.OpNot), cil.Op(cil.OpNot), cil.Op(cil.OpNeg),
			},
			want:    []cil.Opcode{cil.OpLdarg0},
			start:   1,
			landing: cil.OpNop,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newOptimizing()
			for _, in := range tt.in {
				c.Append(in)
			}
			wantOps(t, opsOf(c), tt.want...)
			if c.Stats().Rewrites[tt.rule] == 0 {
				t.Errorf("rule %s did not fire: %v", tt.rule, c.Stats().Rewrites)
			}
		})

		t.Run(tt.name+" with branch to window", func(t *testing.T) {
			c := newOptimizing()
			l := c.CreateLabel()
			for i, in := range tt.in {
				if i == tt.start {
					c.MarkLabel(l)
				}
				c.Append(in)
			}
			c.EmitBranch(cil.OpBr, l)

			body := finish(t, c)
			if c.Stats().Rewrites[tt.rule] == 0 {
				t.Errorf("rule %s did not fire: %v", tt.rule, c.Stats().Rewrites)
			}
			last := len(body.Instructions) - 1
			if body.Instructions[last].Op != cil.OpBr {
				t.Fatalf("opcodes = %v, want a trailing br", body.Opcodes())
			}
			got := targetOf(t, body, last)
			if got != tt.start {
				t.Errorf("br target = %d, want %d (%v)", got, tt.start, body.Opcodes())
			}
			if op := body.Instructions[got].Op; op != tt.landing {
				t.Errorf("br lands on %s, want %s", op, tt.landing)
			}
			h, _ := c.LabelTarget(l)
			if op := c.Instruction(h).Op; op != tt.landing {
				t.Errorf("label resolves to %s, want %s", op, tt.landing)
			}
		})
	}
}

func TestRulesLeaveOtherCodeAlone(t *testing.T) {
	tests := []struct {
		name string
		in   []cil.Instruction
	}{
		{"store load of different locals", []cil.Instruction{cil.Ldarg(0), cil.Stloc(1), cil.Ldloc(2)}},
		{"add one", []cil.Instruction{cil.Ldarg(0), cil.LdcI4(1), cil.Op(cil.OpAdd)}},
		{"long zero", []cil.Instruction{cil.Ldarg(0), cil.LdcI8(0), cil.Op(cil.OpAdd)}},
		{"subtract from zero", []cil.Instruction{cil.LdcI4(0), cil.Ldarg(0), cil.Op(cil.OpSub)}},
		{"dup ret pop", []cil.Instruction{cil.Ldarg(0), cil.Op(cil.OpDup), cil.Op(cil.OpRet), cil.Op(cil.OpPop)}},
		{"double negation of an int", []cil.Instruction{
			cil.Ldarg(0), cil.LdcI4(0), cil.Op(cil.OpCeq), cil.LdcI4(0), cil.Op(cil.OpCeq),
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newOptimizing()
			var want []cil.Opcode
			for _, in := range tt.in {
				c.Append(in)
				want = append(want, in.Op)
			}
			wantOps(t, opsOf(c), want...)
		})
	}
}

func TestRewriteRedirectsBranchToWindowStart(t *testing.T) {
	c := newOptimizing()
	l := c.CreateLabel()
	c.Append(cil.Ldarg(0))
	c.MarkLabel(l)
	c.Append(cil.Stloc(1))
	c.Append(cil.Ldloc(1))
	c.EmitBranch(cil.OpBr, l)

	body := finish(t, c)
	wantOps(t, body.Opcodes(), cil.OpLdarg0, cil.OpDup, cil.OpStloc1, cil.OpBr)
	if got := targetOf(t, body, 3); got != 1 {
		t.Errorf("br target = %d, want 1 (the dup)", got)
	}
	h, _ := c.LabelTarget(l)
	if c.Instruction(h).Op != cil.OpDup {
		t.Errorf("label resolves to %v, want dup", c.Instruction(h))
	}
}

func TestRewriteRedirectsPendingForwardBranch(t *testing.T) {
	c := newOptimizing()
	l := c.CreateLabel()
	c.EmitBranch(cil.OpBr, l)
	c.Append(cil.Ldarg(0))
	c.MarkLabel(l)
	c.Append(cil.Stloc(1))
	c.Append(cil.Ldloc(1))
	c.Emit(cil.OpRet)

	body := finish(t, c)
	wantOps(t, body.Opcodes(), cil.OpBr, cil.OpLdarg0, cil.OpDup, cil.OpStloc1, cil.OpRet)
	if got := targetOf(t, body, 0); got != 2 {
		t.Errorf("br target = %d, want 2", got)
	}
}

func TestTargetInsideWindowBlocksRewrite(t *testing.T) {
	c := newOptimizing()
	l := c.CreateLabel()
	c.Append(cil.Ldarg(0))
	c.Append(cil.Stloc(1))
	c.MarkLabel(l)
	c.Append(cil.Ldloc(1))
	c.EmitBranch(cil.OpBr, l)

	wantOps(t, opsOf(c), cil.OpLdarg0, cil.OpStloc1, cil.OpLdloc1, cil.OpBr)
	if c.Stats().Rewrites[RuleStoreLoad] != 0 {
		t.Error("store-load fired across a branch target")
	}
}

func TestRegionBoundaryBlocksRewrite(t *testing.T) {
	c := newOptimizing()
	c.Append(cil.Ldarg(0))
	c.Append(cil.Stloc(1))
	c.EnterRegion()
	c.Append(cil.Ldloc(1))

	wantOps(t, opsOf(c), cil.OpLdarg0, cil.OpStloc1, cil.OpLdloc1)
}

func TestPlaceholderBlocksRewrite(t *testing.T) {
	c := newOptimizing()
	l := c.CreateLabel()
	c.Append(cil.Ldarg(0))
	c.EmitBranch(cil.OpBrtrue, l)
	c.Emit(cil.OpPop)
	wantOps(t, opsOf(c), cil.OpLdarg0, cil.OpNop, cil.OpPop)
}

func TestBranchFusion(t *testing.T) {
	tests := []struct {
		name   string
		rule   string
		before []cil.Instruction
		op     cil.Opcode
		want   []cil.Opcode
	}{
		{"ceq brtrue", RuleCompareBranch, []cil.Instruction{cil.Ldarg(0), cil.Ldarg(1), cil.Op(cil.OpCeq)}, cil.OpBrtrue,
			[]cil.Opcode{cil.OpLdarg0, cil.OpLdarg1, cil.OpBeq}},
		{"ceq brfalse", RuleCompareBranch, []cil.Instruction{cil.Ldarg(0), cil.Ldarg(1), cil.Op(cil.OpCeq)}, cil.OpBrfalse,
			[]cil.Opcode{cil.OpLdarg0, cil.OpLdarg1, cil.OpBneUn}},
		{"clt brtrue", RuleCompareBranch, []cil.Instruction{cil.Ldarg(0), cil.Ldarg(1), cil.Op(cil.OpClt)}, cil.OpBrtrue,
			[]cil.Opcode{cil.OpLdarg0, cil.OpLdarg1, cil.OpBlt}},
		{"clt brfalse", RuleCompareBranch, []cil.Instruction{cil.Ldarg(0), cil.Ldarg(1), cil.Op(cil.OpClt)}, cil.OpBrfalse,
			[]cil.Opcode{cil.OpLdarg0, cil.OpLdarg1, cil.OpBge}},
		{"clt.un brfalse", RuleCompareBranch, []cil.Instruction{cil.Ldarg(0), cil.Ldarg(1), cil.Op(cil.OpCltUn)}, cil.OpBrfalse,
			[]cil.Opcode{cil.OpLdarg0, cil.OpLdarg1, cil.OpBgeUn}},
		{"cgt brtrue", RuleCompareBranch, []cil.Instruction{cil.Ldarg(0), cil.Ldarg(1), cil.Op(cil.OpCgt)}, cil.OpBrtrue,
			[]cil.Opcode{cil.OpLdarg0, cil.OpLdarg1, cil.OpBgt}},
		{"cgt brfalse", RuleCompareBranch, []cil.Instruction{cil.Ldarg(0), cil.Ldarg(1), cil.Op(cil.OpCgt)}, cil.OpBrfalse,
			[]cil.Opcode{cil.OpLdarg0, cil.OpLdarg1, cil.OpBle}},
		{"cgt.un brtrue", RuleCompareBranch, []cil.Instruction{cil.Ldarg(0), cil.Ldarg(1), cil.Op(cil.OpCgtUn)}, cil.OpBrtrue,
			[]cil.Opcode{cil.OpLdarg0, cil.OpLdarg1, cil.OpBgtUn}},
		{"negated compare", RuleBoolCompareBranch,
			[]cil.Instruction{cil.Ldarg(0), cil.Ldarg(1), cil.Op(cil.OpClt), cil.LdcI4(0), cil.Op(cil.OpCeq)}, cil.OpBrtrue,
			[]cil.Opcode{cil.OpLdarg0, cil.OpLdarg1, cil.OpBge}},
		{"compare with true", RuleBoolCompareBranch,
			[]cil.Instruction{cil.Ldarg(0), cil.Ldarg(1), cil.Op(cil.OpClt), cil.LdcI4(1), cil.Op(cil.OpCeq)}, cil.OpBrfalse,
			[]cil.Opcode{cil.OpLdarg0, cil.OpLdarg1, cil.OpBge}},
		{"int with false", RuleBoolCompareBranch,
			[]cil.Instruction{cil.Ldarg(0), cil.LdcI4(0), cil.Op(cil.OpCeq)}, cil.OpBrtrue,
			[]cil.Opcode{cil.OpLdarg0, cil.OpBrfalse}},
		{"int with one", RuleCompareBranch,
			[]cil.Instruction{cil.Ldarg(0), cil.LdcI4(1), cil.Op(cil.OpCeq)}, cil.OpBrfalse,
			[]cil.Opcode{cil.OpLdarg0, cil.OpLdcI41, cil.OpBneUn}},
		{"is instance", RuleNullCompareBranch,
			[]cil.Instruction{cil.Ldarg(0), cil.Op(cil.OpLdnull), cil.Op(cil.OpCgtUn)}, cil.OpBrtrue,
			[]cil.Opcode{cil.OpLdarg0, cil.OpBrtrue}},
		{"is null", RuleNullCompareBranch,
			[]cil.Instruction{cil.Ldarg(0), cil.Op(cil.OpLdnull), cil.Op(cil.OpCeq)}, cil.OpBrtrue,
			[]cil.Opcode{cil.OpLdarg0, cil.OpBrfalse}},
		{"always taken", RuleConstBranch, []cil.Instruction{cil.LdcI4(7)}, cil.OpBrtrue,
			[]cil.Opcode{cil.OpBr}},
		{"never taken", RuleConstBranch, []cil.Instruction{cil.Ldarg(0), cil.LdcI4(0)}, cil.OpBrtrue,
			[]cil.Opcode{cil.OpLdarg0}},
		{"null is false", RuleConstBranch, []cil.Instruction{cil.Op(cil.OpLdnull)}, cil.OpBrfalse,
			[]cil.Opcode{cil.OpBr}},
		{"equals zero", RuleZeroCompareBranch, []cil.Instruction{cil.Ldarg(0), cil.LdcI4(0)}, cil.OpBeq,
			[]cil.Opcode{cil.OpLdarg0, cil.OpBrfalse}},
		{"not equal zero", RuleZeroCompareBranch, []cil.Instruction{cil.Ldarg(0), cil.LdcI4(0)}, cil.OpBneUn,
			[]cil.Opcode{cil.OpLdarg0, cil.OpBrtrue}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newOptimizing()
			l := c.CreateLabel()
			for _, in := range tt.before {
				c.Append(in)
			}
			c.EmitBranch(tt.op, l)
			c.MarkLabel(l)
			c.Emit(cil.OpRet)

			body := finish(t, c)
			want := append(slices.Clone(tt.want), cil.OpRet)
			wantOps(t, body.Opcodes(), want...)
			if c.Stats().Rewrites[tt.rule] == 0 {
				t.Errorf("rule %s did not fire: %v", tt.rule, c.Stats().Rewrites)
			}
			last := len(tt.want) - 1
			if tt.want[last].IsBranch() {
				if got := targetOf(t, body, last); got != len(tt.want) {
					t.Errorf("target = %d, want %d", got, len(tt.want))
				}
			}
		})
	}
}

func TestBranchFusionSkippedWithPendingMark(t *testing.T) {
	c := newOptimizing()
	l, here := c.CreateLabel(), c.CreateLabel()
	c.Append(cil.Ldarg(0))
	c.Append(cil.Ldarg(1))
	c.Emit(cil.OpCeq)
	c.MarkLabel(here)
	c.EmitBranch(cil.OpBrtrue, l)
	c.MarkLabel(l)
	c.Emit(cil.OpRet)

	body := finish(t, c)
	wantOps(t, body.Opcodes(), cil.OpLdarg0, cil.OpLdarg1, cil.OpCeq, cil.OpBrtrue, cil.OpRet)
}

func TestBranchFusionKeepsTargetOnCondition(t *testing.T) {
	c := newOptimizing()
	l, cond := c.CreateLabel(), c.CreateLabel()
	c.Append(cil.Ldarg(0))
	c.Append(cil.Ldarg(1))
	c.MarkLabel(cond)
	c.Emit(cil.OpCeq)
	c.EmitBranch(cil.OpBrtrue, l)
	c.MarkLabel(l)
	c.Emit(cil.OpRet)

	body := finish(t, c)
	wantOps(t, body.Opcodes(), cil.OpLdarg0, cil.OpLdarg1, cil.OpBeq, cil.OpRet)
	h, _ := c.LabelTarget(cond)
	if c.Instruction(h).Op != cil.OpBeq {
		t.Errorf("condition label resolves to %v, want the fused beq", c.Instruction(h))
	}
}

func TestBranchFusionDisabled(t *testing.T) {
	c := newPlain()
	l := c.CreateLabel()
	c.Append(cil.Ldarg(0))
	c.Append(cil.Ldarg(1))
	c.Emit(cil.OpCeq)
	c.EmitBranch(cil.OpBrtrue, l)
	c.MarkLabel(l)
	c.Emit(cil.OpRet)
	body := finish(t, c)
	wantOps(t, body.Opcodes(), cil.OpLdarg0, cil.OpLdarg1, cil.OpCeq, cil.OpBrtrue, cil.OpRet)
}
