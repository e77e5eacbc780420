package cil

import (
	"fmt"
	"io"
	"strings"

	"github.com/wippyai/ilemit/types"
)

// HandlerKind distinguishes exception handler clauses.
type HandlerKind uint8

const (
	HandlerCatch HandlerKind = iota
	HandlerFinally
	HandlerFault
)

func (k HandlerKind) String() string {
	switch k {
	case HandlerCatch:
		return "catch"
	case HandlerFinally:
		return "finally"
	case HandlerFault:
		return "fault"
	}
	return "unknown"
}

// Handler is an exception handling clause. Bounds are instruction indices;
// End bounds are exclusive.
type Handler struct {
	CatchType    *types.Type // catch clauses only
	Kind         HandlerKind
	TryStart     int
	TryEnd       int
	HandlerStart int
	HandlerEnd   int
}

// Local is a declared local variable slot.
type Local struct {
	Type  *types.Type
	Name  string
	Index int
}

// Body is a finished method body.
type Body struct {
	Instructions []Instruction
	Handlers     []Handler
	Locals       []Local
	MaxStack     int
	InitLocals   bool
}

// Offsets returns the byte offset of every instruction, plus a final entry
// holding the total code size.
func (b *Body) Offsets() []int {
	offs := make([]int, len(b.Instructions)+1)
	pos := 0
	for i, ins := range b.Instructions {
		offs[i] = pos
		pos += ins.Size()
	}
	offs[len(b.Instructions)] = pos
	return offs
}

// CodeSize returns the encoded size of the body's instruction stream.
func (b *Body) CodeSize() int {
	offs := b.Offsets()
	return offs[len(offs)-1]
}

// ShortenBranches rewrites branches whose displacement fits in a signed
// byte to their short forms. Shrinking one branch can bring others into
// range, so it iterates to a fixed point. It returns the number of
// branches shortened.
func (b *Body) ShortenBranches() int {
	for i, ins := range b.Instructions {
		if ins.Op.IsBranch() {
			b.Instructions[i].Op = LongForm(ins.Op)
		}
	}

	total := 0
	for {
		offs := b.Offsets()
		changed := 0
		for i, ins := range b.Instructions {
			if ins.Op.Info().Operand != OperandBranch {
				continue
			}
			target, ok := ins.Target()
			if !ok || target < 0 || target >= len(offs) {
				continue
			}
			short := ShortForm(ins.Op)
			if short == ins.Op {
				continue
			}
			// the short form ends 3 bytes earlier than the long form
			next := offs[i] + ins.Op.Size() + 1
			delta := offs[target] - next
			if target > i {
				delta -= 3
			}
			if delta >= -128 && delta <= 127 {
				b.Instructions[i].Op = short
				changed++
			}
		}
		if changed == 0 {
			return total
		}
		total += changed
	}
}

// Line is one rendered instruction in a listing.
type Line struct {
	Opcode  string
	Operand string
	Offset  int
	Index   int
	Branch  bool
}

// Lines renders every instruction with byte offsets and resolved targets.
func (b *Body) Lines() []Line {
	offs := b.Offsets()
	lines := make([]Line, len(b.Instructions))
	for i, ins := range b.Instructions {
		l := Line{Index: i, Offset: offs[i], Opcode: ins.Op.String()}
		switch imm := ins.Operand.(type) {
		case TargetImm:
			l.Branch = true
			l.Operand = label(offs, imm.Target)
		case SwitchImm:
			l.Branch = true
			parts := make([]string, len(imm.Targets))
			for j, t := range imm.Targets {
				parts[j] = label(offs, t)
			}
			l.Operand = "(" + strings.Join(parts, ", ") + ")"
		default:
			l.Operand = ins.OperandString()
		}
		lines[i] = l
	}
	return lines
}

func label(offs []int, idx int) string {
	if idx < 0 || idx >= len(offs) {
		return fmt.Sprintf("IL_????(%d)", idx)
	}
	return fmt.Sprintf("IL_%04x", offs[idx])
}

// HandlerLines renders the exception clauses.
func (b *Body) HandlerLines() []string {
	offs := b.Offsets()
	out := make([]string, 0, len(b.Handlers))
	for _, h := range b.Handlers {
		clause := h.Kind.String()
		if h.Kind == HandlerCatch && h.CatchType != nil {
			clause += " " + h.CatchType.String()
		}
		out = append(out, fmt.Sprintf(".try %s to %s %s handler %s to %s",
			label(offs, h.TryStart), label(offs, h.TryEnd), clause,
			label(offs, h.HandlerStart), label(offs, h.HandlerEnd)))
	}
	return out
}

// WriteTo writes a textual listing of the body.
func (b *Body) WriteTo(w io.Writer) (int64, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, ".maxstack %d\n", b.MaxStack)
	if len(b.Locals) > 0 {
		sb.WriteString(".locals init (")
		for i, l := range b.Locals {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "[%d] %s", l.Index, l.Type)
			if l.Name != "" {
				sb.WriteString(" " + l.Name)
			}
		}
		sb.WriteString(")\n")
	}
	for _, l := range b.Lines() {
		fmt.Fprintf(&sb, "IL_%04x: %s", l.Offset, l.Opcode)
		if l.Operand != "" {
			sb.WriteString(" " + l.Operand)
		}
		sb.WriteByte('\n')
	}
	for _, h := range b.HandlerLines() {
		sb.WriteString(h)
		sb.WriteByte('\n')
	}
	n, err := io.WriteString(w, sb.String())
	return int64(n), err
}

func (b *Body) String() string {
	var sb strings.Builder
	_, _ = b.WriteTo(&sb)
	return sb.String()
}

// Opcodes returns the opcode sequence, mostly useful in tests.
func (b *Body) Opcodes() []Opcode {
	ops := make([]Opcode, len(b.Instructions))
	for i, ins := range b.Instructions {
		ops[i] = ins.Op
	}
	return ops
}
