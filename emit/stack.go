package emit

import (
	"strings"

	"github.com/wippyai/ilemit/errors"
	"github.com/wippyai/ilemit/types"
)

// TypeStack is the symbolic operand stack of semantic types.
//
// Popping past the bottom is a verification failure and panics with an
// *errors.Error.
type TypeStack struct {
	items []*types.Type
	max   int
}

// NewTypeStack creates a stack holding the given types, bottom first.
func NewTypeStack(items ...*types.Type) *TypeStack {
	s := &TypeStack{items: append([]*types.Type(nil), items...)}
	s.max = len(s.items)
	return s
}

// Push pushes t.
func (s *TypeStack) Push(t *types.Type) {
	s.items = append(s.items, t)
	if len(s.items) > s.max {
		s.max = len(s.items)
	}
}

// Pop removes and returns the top type.
func (s *TypeStack) Pop() *types.Type {
	if len(s.items) == 0 {
		panic(errors.StackUnderflow(1, 0))
	}
	t := s.items[len(s.items)-1]
	s.items = s.items[:len(s.items)-1]
	return t
}

// PopN removes the top n types and returns them bottom first.
func (s *TypeStack) PopN(n int) []*types.Type {
	if n > len(s.items) {
		panic(errors.StackUnderflow(n, len(s.items)))
	}
	out := append([]*types.Type(nil), s.items[len(s.items)-n:]...)
	s.items = s.items[:len(s.items)-n]
	return out
}

// Peek returns the top type without removing it.
func (s *TypeStack) Peek() *types.Type {
	if len(s.items) == 0 {
		panic(errors.StackUnderflow(1, 0))
	}
	return s.items[len(s.items)-1]
}

// Len returns the current depth.
func (s *TypeStack) Len() int {
	return len(s.items)
}

// Max returns the deepest the stack has been.
func (s *TypeStack) Max() int {
	return s.max
}

// Clone returns an independent copy.
func (s *TypeStack) Clone() *TypeStack {
	return &TypeStack{items: append([]*types.Type(nil), s.items...), max: s.max}
}

func (s *TypeStack) String() string {
	parts := make([]string, len(s.items))
	for i, t := range s.items {
		parts[i] = t.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}
