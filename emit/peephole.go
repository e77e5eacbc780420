package emit

import (
	"go.uber.org/zap"

	"github.com/wippyai/ilemit/cil"
)

// Rule is a peephole rewrite over the trailing Size instructions.
// Rules are stateless; Match and Rewrite see a copy of the window.
type Rule struct {
	Match   func(window []cil.Instruction) bool
	Rewrite func(window []cil.Instruction) []cil.Instruction
	Name    string
	Size    int
}

// BranchRule fuses the trailing Size instructions into a conditional branch
// that is about to be emitted. Fuse returns the instructions that replace
// the window and the branch to emit after them; cil.OpNop drops the branch.
type BranchRule struct {
	Fuse func(window []cil.Instruction, op cil.Opcode) (replacement []cil.Instruction, branch cil.Opcode, ok bool)
	Name string
	Size int
}

// window returns the trailing n instructions if a rule may rewrite them.
// With beforeBranch set the window is followed by a branch that is not yet
// appended, so a region boundary after the last instruction also blocks it.
func (c *Context) window(n int, beforeBranch bool) ([]Handle, []cil.Instruction, bool) {
	if len(c.redirects) > 0 {
		return nil, nil, false
	}
	hs := c.code.last(n)
	if hs == nil {
		return nil, nil, false
	}
	ins := make([]cil.Instruction, n)
	for i, h := range hs {
		nd := c.code.at(h)
		if nd.placeholder {
			return nil, nil, false
		}
		if i > 0 && nd.target {
			return nil, nil, false
		}
		if nd.barrier && (i < n-1 || beforeBranch) {
			return nil, nil, false
		}
		ins[i] = nd.ins
	}
	return hs, ins, true
}

// optimize applies the first matching rule to the tail of the buffer.
func (c *Context) optimize() {
	for i := range c.rules {
		r := &c.rules[i]
		hs, ins, ok := c.window(r.Size, false)
		if !ok || !r.Match(ins) {
			continue
		}
		repl := r.Rewrite(ins)
		wasTarget := c.excise(r.Name, hs, len(repl))
		for _, in := range repl {
			c.Append(in)
		}
		if wasTarget && len(repl) == 0 {
			c.appendRaw(cil.Op(cil.OpNop))
		}
		return
	}
}

// excise removes a matched window. If its first instruction was a branch
// target, references to it are forwarded to the next instruction appended.
func (c *Context) excise(rule string, hs []Handle, replacement int) bool {
	wasTarget := c.code.at(hs[0]).target
	for _, h := range hs {
		c.removeNode(h)
	}
	if wasTarget {
		c.redirects = append(c.redirects, hs[0])
	}
	c.stats.Rewrites[rule]++
	c.log.Debug("peephole rewrite",
		zap.String("rule", rule),
		zap.Int("window", len(hs)),
		zap.Int("replacement", replacement),
		zap.Bool("target", wasTarget))
	return wasTarget
}

// fuseBranch tries the branch rules for a conditional branch to l.
func (c *Context) fuseBranch(op cil.Opcode, l Label) bool {
	if len(c.marks) > 0 {
		// the branch itself is about to become a label target
		return false
	}
	for i := range c.branchRules {
		r := &c.branchRules[i]
		hs, ins, ok := c.window(r.Size, true)
		if !ok {
			continue
		}
		repl, branch, ok := r.Fuse(ins, op)
		if !ok {
			continue
		}
		wasTarget := c.excise(r.Name, hs, len(repl))
		for _, in := range repl {
			c.Append(in)
		}
		switch {
		case branch == cil.OpNop:
			if wasTarget && len(repl) == 0 {
				c.appendRaw(cil.Op(cil.OpNop))
			}
		case len(c.redirects) > 0:
			// the fused branch becomes the forwarded target
			c.placeBranch(cil.LongForm(branch), l)
		default:
			c.EmitBranch(branch, l)
		}
		return true
	}
	return false
}
