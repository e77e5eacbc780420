package emit

import "github.com/wippyai/ilemit/cil"

// Handle addresses an instruction in a Context. Handles stay valid for the
// lifetime of the Context: removing an instruction unlinks it from the
// instruction order but never reuses its slot.
type Handle int32

// NoHandle is the absent handle.
const NoHandle Handle = -1

type node struct {
	ins         cil.Instruction
	prev, next  Handle
	removed     bool
	placeholder bool // pending branch or switch patch
	target      bool // known branch target
	barrier     bool // a region boundary follows this instruction
}

// arena is an append-only instruction store with a doubly linked order list.
type arena struct {
	nodes []node
	head  Handle
	tail  Handle
	live  int
}

func newArena() arena {
	return arena{head: NoHandle, tail: NoHandle}
}

func (a *arena) at(h Handle) *node {
	return &a.nodes[h]
}

func (a *arena) push(ins cil.Instruction) Handle {
	h := Handle(len(a.nodes))
	a.nodes = append(a.nodes, node{ins: ins, prev: a.tail, next: NoHandle})
	if a.tail != NoHandle {
		a.nodes[a.tail].next = h
	} else {
		a.head = h
	}
	a.tail = h
	a.live++
	return h
}

// insertAfter links a new instruction directly after h.
func (a *arena) insertAfter(h Handle, ins cil.Instruction) Handle {
	if h == a.tail {
		return a.push(ins)
	}
	n := Handle(len(a.nodes))
	next := a.nodes[h].next
	a.nodes = append(a.nodes, node{ins: ins, prev: h, next: next})
	a.nodes[h].next = n
	a.nodes[next].prev = n
	a.live++
	return n
}

func (a *arena) remove(h Handle) {
	n := &a.nodes[h]
	if n.removed {
		return
	}
	if n.prev != NoHandle {
		a.nodes[n.prev].next = n.next
	} else {
		a.head = n.next
	}
	if n.next != NoHandle {
		a.nodes[n.next].prev = n.prev
	} else {
		a.tail = n.prev
	}
	n.removed = true
	n.prev, n.next = NoHandle, NoHandle
	a.live--
}

// successor returns the live instruction after h, or the head for NoHandle.
func (a *arena) successor(h Handle) Handle {
	if h == NoHandle {
		return a.head
	}
	return a.nodes[h].next
}

// last returns the trailing n live handles in order, or nil if fewer exist.
func (a *arena) last(n int) []Handle {
	if n <= 0 || n > a.live {
		return nil
	}
	out := make([]Handle, n)
	h := a.tail
	for i := n - 1; i >= 0; i-- {
		out[i] = h
		h = a.nodes[h].prev
	}
	return out
}

// order returns every live handle in instruction order.
func (a *arena) order() []Handle {
	out := make([]Handle, 0, a.live)
	for h := a.head; h != NoHandle; h = a.nodes[h].next {
		out = append(out, h)
	}
	return out
}
