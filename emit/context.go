package emit

import (
	"slices"

	"go.uber.org/zap"

	"github.com/wippyai/ilemit/cil"
	"github.com/wippyai/ilemit/errors"
	"github.com/wippyai/ilemit/types"
)

// Config controls a Context.
type Config struct {
	// Logger overrides the package logger when set.
	Logger *zap.Logger

	// Rules are the append-time peephole rules.
	Rules []Rule

	// BranchRules fuse condition computations into conditional branches.
	BranchRules []BranchRule

	// Optimize enables both rule sets.
	Optimize bool

	// StrictFlush makes Flush return an error when patches are discarded.
	StrictFlush bool
}

// DefaultConfig returns a configuration with the default rule catalogue enabled.
func DefaultConfig() Config {
	return Config{
		Optimize:    true,
		Rules:       DefaultRules(),
		BranchRules: DefaultBranchRules(),
	}
}

// Stats counts what a Context did.
type Stats struct {
	Rewrites  map[string]int // peephole and branch rule applications by name
	Appended  int
	Removed   int
	Patches   int // patches applied
	Discarded int // patches discarded at Flush
}

// Context is the emission context for one method body. It is not safe for
// concurrent use; compile independent methods with independent Contexts.
type Context struct {
	log    *zap.Logger
	method *types.Method
	stack  *TypeStack

	forward   map[Handle]Handle
	patches   map[int]*patch
	waiting   map[Label][]int
	redirects []Handle // removed branch targets waiting for the next instruction
	marks     []Label  // marked labels waiting for an instruction
	ready     []int

	rules       []Rule
	branchRules []BranchRule
	labels      []labelState
	handlers    []cil.Handler
	scopes      []*Scope
	locals      []cil.Local
	free        []int

	stats   Stats
	code    arena
	cfg     Config
	nextID  int
	regions int

	retLabel Label
	retLocal int

	draining bool
	flushed  bool
}

// NewContext creates a Context for emitting the body of m.
func NewContext(m *types.Method, cfg Config) *Context {
	log := cfg.Logger
	if log == nil {
		log = Logger()
	}
	if m == nil {
		m = &types.Method{Name: "<anonymous>", Static: true, Return: types.Void}
	}
	c := &Context{
		cfg:      cfg,
		log:      log.With(zap.String("method", m.FullName())),
		method:   m,
		stack:    NewTypeStack(),
		code:     newArena(),
		forward:  make(map[Handle]Handle),
		patches:  make(map[int]*patch),
		waiting:  make(map[Label][]int),
		stats:    Stats{Rewrites: make(map[string]int)},
		retLabel: NoLabel,
		retLocal: -1,
	}
	if cfg.Optimize {
		c.rules = slices.Clone(cfg.Rules)
		slices.SortStableFunc(c.rules, func(a, b Rule) int { return b.Size - a.Size })
		c.branchRules = slices.Clone(cfg.BranchRules)
		slices.SortStableFunc(c.branchRules, func(a, b BranchRule) int { return b.Size - a.Size })
	}
	c.scopes = []*Scope{{ctx: c, global: true, Break: NoLabel, Continue: NoLabel}}
	return c
}

// Method returns the method being emitted.
func (c *Context) Method() *types.Method {
	return c.method
}

// Logger returns the logger bound to this method.
func (c *Context) Logger() *zap.Logger {
	return c.log
}

// Stats returns the counters collected so far.
func (c *Context) Stats() Stats {
	return c.stats
}

// Append appends ins, applies every patch that became ready and runs the
// peephole rules. The returned handle may already have been rewritten away
// by the time Append returns.
func (c *Context) Append(ins cil.Instruction) Handle {
	h := c.appendRaw(ins)
	c.drain()
	if c.cfg.Optimize {
		c.optimize()
	}
	return h
}

// Emit appends an operand-less instruction.
func (c *Context) Emit(op cil.Opcode) Handle {
	return c.Append(cil.Op(op))
}

func (c *Context) appendRaw(ins cil.Instruction) Handle {
	if c.flushed {
		panic(errors.InvalidState(errors.PhaseEmit, "append after flush"))
	}
	h := c.code.push(ins)
	c.stats.Appended++
	if len(c.redirects) > 0 {
		for _, old := range c.redirects {
			c.redirect(old, h)
		}
		c.redirects = c.redirects[:0]
	}
	return h
}

// removeNode unlinks h, re-anchoring any pending label mark that sat on it.
func (c *Context) removeNode(h Handle) {
	prev := c.code.at(h).prev
	for _, l := range c.marks {
		if c.labels[l].anchor == h {
			c.labels[l].anchor = prev
		}
	}
	c.code.remove(h)
	c.stats.Removed++
}

// redirect forwards every reference to old onto h.
func (c *Context) redirect(old, h Handle) {
	if old == h {
		return
	}
	c.forward[old] = h
	c.code.at(h).target = true
}

// resolve follows forwarding from removed instructions.
func (c *Context) resolve(h Handle) Handle {
	for {
		next, ok := c.forward[h]
		if !ok {
			return h
		}
		h = next
	}
}

// Len returns the number of live instructions.
func (c *Context) Len() int {
	return c.code.live
}

// Last returns the last live instruction.
func (c *Context) Last() (cil.Instruction, bool) {
	if c.code.tail == NoHandle {
		return cil.Instruction{}, false
	}
	return c.code.at(c.code.tail).ins, true
}

// Instruction returns the instruction h currently refers to, following forwarding.
func (c *Context) Instruction(h Handle) cil.Instruction {
	return c.code.at(c.resolve(h)).ins
}

// Instructions returns the live instruction sequence. Branch operands hold
// handles until the body is finished.
func (c *Context) Instructions() []cil.Instruction {
	order := c.code.order()
	out := make([]cil.Instruction, len(order))
	for i, h := range order {
		out[i] = c.code.at(h).ins
	}
	return out
}

// Stack returns the operand type stack.
func (c *Context) Stack() *TypeStack {
	return c.stack
}

// Apply applies e to the operand type stack.
func (c *Context) Apply(e Effect) {
	e.Apply(c.stack)
}

// Verify runs emit and checks that it changed the stack depth by exactly
// e.Net().
func (c *Context) Verify(e Effect, emit func()) {
	before := c.stack.Len()
	emit()
	if got, want := c.stack.Len(), before+e.Net(); got != want {
		panic(errors.StackMismatch("block effect", want, got))
	}
}

// Choice emits two mutually exclusive arms. The left arm runs on the real
// stack and the right arm on a clone of the stack as it was before the
// left arm; both must end at the same depth.
func (c *Context) Choice(left, right func()) {
	saved := c.stack.Clone()
	left()
	leftStack := c.stack
	c.stack = saved
	right()
	if leftStack.Len() != c.stack.Len() {
		panic(errors.StackMismatch("conditional arms", leftStack.Len(), c.stack.Len()))
	}
	if c.stack.max > leftStack.max {
		leftStack.max = c.stack.max
	}
	c.stack = leftStack
}

// ArgType returns the type of argument i, counting this for instance methods.
func (c *Context) ArgType(i int) *types.Type {
	m := c.method
	if !m.Static {
		if i == 0 {
			if m.DeclaringType != nil {
				return m.DeclaringType
			}
			return types.Object
		}
		i--
	}
	if i < 0 || i >= len(m.Params) {
		panic(errors.New(errors.PhaseEmit, errors.KindNotFound).
			Method(m.FullName()).
			Detail("argument %d out of range", i).
			Build())
	}
	return m.Params[i]
}

// Flush applies every patch that can still be applied and discards the
// rest. It must be called once after the last instruction is appended.
func (c *Context) Flush() error {
	if c.flushed {
		return nil
	}
	c.drain()
	if len(c.redirects) > 0 {
		c.appendRaw(cil.Op(cil.OpNop))
		c.drain()
	}

	ids := make([]int, 0, len(c.patches))
	for id := range c.patches {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	var kinds []string
	for _, id := range ids {
		p := c.patches[id]
		c.discard(p)
		delete(c.patches, id)
		kinds = append(kinds, p.kind.String())
	}
	for _, l := range c.marks {
		c.labels[l].marked = false
		c.log.Warn("label marked at end of method never bound", zap.String("label", c.labelName(l)))
	}
	c.marks = nil
	c.flushed = true

	if len(kinds) > 0 && c.cfg.StrictFlush {
		return errors.UnresolvedLabels(len(kinds), kinds)
	}
	return nil
}

func (c *Context) discard(p *patch) {
	c.stats.Discarded++
	names := make([]string, len(p.deps))
	for i, l := range p.deps {
		names[i] = c.labelName(l)
	}
	c.log.Warn("discarding unresolved patch",
		zap.String("kind", p.kind.String()),
		zap.String("op", p.op.String()),
		zap.Strings("labels", names))

	switch p.kind {
	case patchBranch:
		n := c.code.at(p.at)
		n.placeholder = false
		if p.op.IsUnconditional() {
			if !n.target {
				c.removeNode(p.at)
				return
			}
			if next := c.code.successor(p.at); next != NoHandle {
				c.removeNode(p.at)
				c.redirect(p.at, next)
			}
			// a target with nothing after it stays as the nop
			return
		}
		pops := cil.Branch(p.op, 0).PopCount(false)
		n.ins = cil.Op(cil.OpPop)
		for i := 1; i < pops; i++ {
			c.code.insertAfter(p.at, cil.Op(cil.OpPop))
		}
	case patchSwitch:
		n := c.code.at(p.at)
		n.placeholder = false
		n.ins = cil.Op(cil.OpPop)
	case patchRegion:
		// no record
	}
}

// Body produces the finished method body. Flush must have been called.
func (c *Context) Body() *cil.Body {
	if !c.flushed {
		panic(errors.InvalidState(errors.PhaseFlush, "body requested before flush"))
	}
	order := c.code.order()
	index := make(map[Handle]int, len(order))
	for i, h := range order {
		index[h] = i
	}
	lookup := func(h Handle) int {
		r := c.resolve(h)
		i, ok := index[r]
		if !ok {
			panic(errors.New(errors.PhasePatch, errors.KindInvalidState).
				Method(c.method.FullName()).
				Detail("reference to instruction #%d which is not in the body", h).
				Build())
		}
		return i
	}

	body := &cil.Body{Instructions: make([]cil.Instruction, len(order))}
	for i, h := range order {
		ins := c.code.at(h).ins
		switch imm := ins.Operand.(type) {
		case cil.TargetImm:
			ins.Operand = cil.TargetImm{Target: lookup(Handle(imm.Target))}
		case cil.SwitchImm:
			targets := make([]int, len(imm.Targets))
			for j, t := range imm.Targets {
				targets[j] = lookup(Handle(t))
			}
			ins.Operand = cil.SwitchImm{Targets: targets}
		}
		body.Instructions[i] = ins
	}
	for _, h := range c.handlers {
		h.TryStart = lookup(Handle(h.TryStart))
		h.TryEnd = lookup(Handle(h.TryEnd))
		h.HandlerStart = lookup(Handle(h.HandlerStart))
		h.HandlerEnd = lookup(Handle(h.HandlerEnd))
		body.Handlers = append(body.Handlers, h)
	}
	body.Locals = slices.Clone(c.locals)
	body.InitLocals = len(body.Locals) > 0
	body.MaxStack = c.stack.Max()
	return body
}
