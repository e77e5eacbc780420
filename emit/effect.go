package emit

import (
	"github.com/wippyai/ilemit/errors"
	"github.com/wippyai/ilemit/types"
)

// Effect is a stack-effect contract: a declarative description of how a
// block changes the operand stack.
type Effect interface {
	// Apply performs the effect on s.
	Apply(s *TypeStack)
	// Net is the change in depth Apply produces.
	Net() int
}

type pushEffect struct {
	t *types.Type
}

// Push pushes one value of type t.
func Push(t *types.Type) Effect {
	return pushEffect{t: t}
}

func (e pushEffect) Apply(s *TypeStack) { s.Push(e.t) }
func (e pushEffect) Net() int           { return 1 }

type popEffect struct {
	n int
}

// PopN pops n values regardless of their types.
func PopN(n int) Effect {
	return popEffect{n: n}
}

func (e popEffect) Apply(s *TypeStack) { s.PopN(e.n) }
func (e popEffect) Net() int           { return -e.n }

type sequenceEffect struct {
	parts []Effect
}

// Sequence applies each effect in order.
func Sequence(parts ...Effect) Effect {
	return sequenceEffect{parts: parts}
}

// None leaves the stack unchanged.
func None() Effect {
	return sequenceEffect{}
}

func (e sequenceEffect) Apply(s *TypeStack) {
	for _, p := range e.parts {
		p.Apply(s)
	}
}

func (e sequenceEffect) Net() int {
	n := 0
	for _, p := range e.parts {
		n += p.Net()
	}
	return n
}

type callEffect struct {
	callee Effect
	ret    *types.Type
	args   []Effect
}

// Call applies the callee's effect and every argument's effect, pops one
// value per argument and pushes ret unless it is void.
func Call(callee Effect, ret *types.Type, args ...Effect) Effect {
	if callee == nil {
		callee = None()
	}
	return callEffect{callee: callee, ret: ret, args: args}
}

func (e callEffect) Apply(s *TypeStack) {
	e.callee.Apply(s)
	for _, a := range e.args {
		a.Apply(s)
	}
	s.PopN(len(e.args))
	if !e.ret.IsVoid() {
		s.Push(e.ret)
	}
}

func (e callEffect) Net() int {
	n := e.callee.Net() - len(e.args)
	for _, a := range e.args {
		n += a.Net()
	}
	if !e.ret.IsVoid() {
		n++
	}
	return n
}

type symmetricEffect struct {
	left, right Effect
}

// SymmetricChoice applies left to the stack and right to a clone of it.
// Both arms must leave the same depth; a mismatch is a verification failure.
func SymmetricChoice(left, right Effect) Effect {
	return symmetricEffect{left: left, right: right}
}

func (e symmetricEffect) Apply(s *TypeStack) {
	clone := s.Clone()
	e.left.Apply(s)
	e.right.Apply(clone)
	if s.Len() != clone.Len() {
		panic(errors.StackMismatch("symmetric choice", s.Len(), clone.Len()))
	}
	if clone.max > s.max {
		s.max = clone.max
	}
}

func (e symmetricEffect) Net() int {
	return e.left.Net()
}
