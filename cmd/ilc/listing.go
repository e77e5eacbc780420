package main

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/ilemit/compiler"
	"github.com/wippyai/ilemit/emit"
)

type styles struct {
	header  lipgloss.Style
	label   lipgloss.Style
	opcode  lipgloss.Style
	branch  lipgloss.Style
	operand lipgloss.Style
	meta    lipgloss.Style
	err     lipgloss.Style
}

func plainStyles() styles {
	s := lipgloss.NewStyle()
	return styles{header: s, label: s, opcode: s, branch: s, operand: s, meta: s, err: s}
}

func colorStyles() styles {
	return styles{
		header:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FAFAFA")),
		label:   lipgloss.NewStyle().Foreground(lipgloss.Color("#666666")),
		opcode:  lipgloss.NewStyle().Foreground(lipgloss.Color("#98FB98")),
		branch:  lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB86C")),
		operand: lipgloss.NewStyle().Foreground(lipgloss.Color("#87CEEB")),
		meta:    lipgloss.NewStyle().Foreground(lipgloss.Color("#BD93F9")),
		err:     lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")),
	}
}

// render formats a compiled method as an IL listing.
func render(c *compiler.Compiled, st styles) string {
	var b strings.Builder
	body := c.Body

	b.WriteString(st.header.Render(".method " + c.Method.String()))
	b.WriteByte('\n')
	b.WriteString(st.meta.Render(fmt.Sprintf(".maxstack %d", body.MaxStack)))
	b.WriteByte('\n')
	if len(body.Locals) > 0 {
		parts := make([]string, len(body.Locals))
		for i, l := range body.Locals {
			parts[i] = fmt.Sprintf("[%d] %s", l.Index, l.Type)
			if l.Name != "" {
				parts[i] += " " + l.Name
			}
		}
		b.WriteString(st.meta.Render(".locals init (" + strings.Join(parts, ", ") + ")"))
		b.WriteByte('\n')
	}

	for _, l := range body.Lines() {
		b.WriteString(st.label.Render(fmt.Sprintf("IL_%04x:", l.Offset)))
		b.WriteByte(' ')
		op := st.opcode
		if l.Branch {
			op = st.branch
		}
		b.WriteString(op.Render(l.Opcode))
		if l.Operand != "" {
			b.WriteByte(' ')
			b.WriteString(st.operand.Render(l.Operand))
		}
		b.WriteByte('\n')
	}
	for _, h := range body.HandlerLines() {
		b.WriteString(st.meta.Render(h))
		b.WriteByte('\n')
	}
	return b.String()
}

func renderStats(s emit.Stats, st styles) string {
	var b strings.Builder
	fmt.Fprintf(&b, "// appended %d, removed %d, patched %d, discarded %d\n",
		s.Appended, s.Removed, s.Patches, s.Discarded)
	for _, name := range slices.Sorted(maps.Keys(s.Rewrites)) {
		fmt.Fprintf(&b, "//   %-22s %d\n", name, s.Rewrites[name])
	}
	return st.meta.Render(b.String())
}
