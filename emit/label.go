package emit

import (
	"slices"
	"strconv"

	"github.com/wippyai/ilemit/cil"
	"github.com/wippyai/ilemit/errors"
)

// Label is a forward-referenceable instruction position.
type Label int32

// NoLabel is the absent label.
const NoLabel Label = -1

type labelState struct {
	name   string
	anchor Handle // instruction the mark follows; NoHandle for the method start
	target Handle
	marked bool
	bound  bool
}

type patchKind uint8

const (
	patchBranch patchKind = iota
	patchSwitch
	patchRegion
)

func (k patchKind) String() string {
	switch k {
	case patchBranch:
		return "branch"
	case patchSwitch:
		return "switch"
	case patchRegion:
		return "region"
	}
	return "unknown"
}

// patch is a deferred edit waiting for labels to be bound.
type patch struct {
	region *cil.Handler // region patches: label-valued bounds
	deps   []Label
	id     int
	unmet  int
	at     Handle // placeholder for branch and switch patches
	op     cil.Opcode
	kind   patchKind
}

// CreateLabel returns a new unbound label.
func (c *Context) CreateLabel() Label {
	return c.CreateNamedLabel("")
}

// CreateNamedLabel returns a new unbound label with a name used in diagnostics.
func (c *Context) CreateNamedLabel(name string) Label {
	l := Label(len(c.labels))
	c.labels = append(c.labels, labelState{name: name, anchor: NoHandle, target: NoHandle})
	return l
}

func (c *Context) label(l Label) *labelState {
	if l < 0 || int(l) >= len(c.labels) {
		panic(errors.New(errors.PhaseEmit, errors.KindNotFound).
			Method(c.method.FullName()).
			Detail("unknown label %d", l).
			Build())
	}
	return &c.labels[l]
}

func (c *Context) labelName(l Label) string {
	if st := c.label(l); st.name != "" {
		return st.name
	}
	return "L" + strconv.Itoa(int(l))
}

// MarkLabel marks the current position: l binds to the next instruction
// appended. A label can be marked once.
func (c *Context) MarkLabel(l Label) {
	st := c.label(l)
	if st.marked {
		panic(errors.InvalidState(errors.PhaseEmit, "label "+c.labelName(l)+" marked twice"))
	}
	st.marked = true
	st.anchor = c.code.tail
	c.marks = append(c.marks, l)
	c.drain()
}

// unmark withdraws a pending mark.
func (c *Context) unmark(l Label) {
	st := c.label(l)
	i := slices.Index(c.marks, l)
	if i < 0 {
		panic(errors.InvalidState(errors.PhaseEmit, "label "+c.labelName(l)+" is not pending"))
	}
	c.marks = slices.Delete(c.marks, i, i+1)
	st.marked = false
	st.anchor = NoHandle
}

// IsBound reports whether l is bound to an instruction.
func (c *Context) IsBound(l Label) bool {
	return c.label(l).bound
}

// IsMarked reports whether MarkLabel was called for l.
func (c *Context) IsMarked(l Label) bool {
	return c.label(l).marked
}

// LabelTarget returns the instruction l is bound to, after forwarding.
func (c *Context) LabelTarget(l Label) (Handle, bool) {
	st := c.label(l)
	if !st.bound {
		return NoHandle, false
	}
	return c.resolve(st.target), true
}

// drain binds every pending mark that now has an instruction after it and
// applies the patches that became ready, oldest first.
func (c *Context) drain() {
	if c.draining {
		return
	}
	c.draining = true
	defer func() { c.draining = false }()

	for len(c.marks) > 0 {
		l := c.marks[0]
		next := c.code.successor(c.labels[l].anchor)
		if next == NoHandle {
			break
		}
		c.marks = c.marks[1:]
		c.bind(l, next)
	}

	for len(c.ready) > 0 {
		slices.Sort(c.ready)
		id := c.ready[0]
		c.ready = c.ready[1:]
		if p, ok := c.patches[id]; ok {
			delete(c.patches, id)
			c.applyPatch(p)
		}
	}
}

func (c *Context) bind(l Label, h Handle) {
	st := &c.labels[l]
	st.bound = true
	st.target = h
	c.code.at(h).target = true
	for _, id := range c.waiting[l] {
		p, ok := c.patches[id]
		if !ok {
			continue
		}
		p.unmet--
		if p.unmet == 0 {
			c.ready = append(c.ready, id)
		}
	}
	delete(c.waiting, l)
}

// enqueue registers p and indexes it under each unbound dependency.
func (c *Context) enqueue(p *patch) int {
	p.id = c.nextID
	c.nextID++
	c.patches[p.id] = p
	seen := make(map[Label]bool, len(p.deps))
	for _, l := range p.deps {
		if seen[l] {
			continue
		}
		seen[l] = true
		if c.label(l).bound {
			continue
		}
		p.unmet++
		c.waiting[l] = append(c.waiting[l], p.id)
	}
	if p.unmet == 0 {
		c.ready = append(c.ready, p.id)
	}
	return p.id
}

// cancel drops a pending patch without applying or discarding it.
func (c *Context) cancel(id int) {
	delete(c.patches, id)
}

func (c *Context) target(l Label) Handle {
	return c.labels[l].target
}

func (c *Context) applyPatch(p *patch) {
	c.stats.Patches++
	switch p.kind {
	case patchBranch:
		n := c.code.at(p.at)
		n.ins = cil.Branch(p.op, int(c.target(p.deps[0])))
		n.placeholder = false
	case patchSwitch:
		targets := make([]int, len(p.deps))
		for i, l := range p.deps {
			targets[i] = int(c.target(l))
		}
		n := c.code.at(p.at)
		n.ins = cil.Instruction{Op: cil.OpSwitch, Operand: cil.SwitchImm{Targets: targets}}
		n.placeholder = false
	case patchRegion:
		h := *p.region
		h.TryStart = int(c.target(Label(h.TryStart)))
		h.TryEnd = int(c.target(Label(h.TryEnd)))
		h.HandlerStart = int(c.target(Label(h.HandlerStart)))
		h.HandlerEnd = int(c.target(Label(h.HandlerEnd)))
		c.handlers = append(c.handlers, h)
	}
}

// EmitBranch emits a branch to l. Conditional branches first go through
// the branch rules, which may fuse the branch with the instructions that
// computed its condition.
func (c *Context) EmitBranch(op cil.Opcode, l Label) {
	c.label(l)
	op = cil.LongForm(op)
	if !op.IsBranch() {
		panic(errors.Unsupported(errors.PhaseEmit, op.String()+" is not a branch"))
	}
	if c.cfg.Optimize && op.IsConditionalBranch() && c.fuseBranch(op, l) {
		return
	}
	c.placeBranch(op, l)
}

// placeBranch appends a placeholder and queues the branch patch.
func (c *Context) placeBranch(op cil.Opcode, l Label) (Handle, int) {
	h := c.appendRaw(cil.Op(cil.OpNop))
	c.code.at(h).placeholder = true
	id := c.enqueue(&patch{kind: patchBranch, op: op, at: h, deps: []Label{l}})
	c.drain()
	return h, id
}

// EmitSwitch emits a switch over labels.
func (c *Context) EmitSwitch(labels []Label) {
	for _, l := range labels {
		c.label(l)
	}
	h := c.appendRaw(cil.Op(cil.OpNop))
	c.code.at(h).placeholder = true
	c.enqueue(&patch{kind: patchSwitch, op: cil.OpSwitch, at: h, deps: slices.Clone(labels)})
	c.drain()
}

// Pending returns the number of patches still waiting on labels.
func (c *Context) Pending() int {
	return len(c.patches)
}
