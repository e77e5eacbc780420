package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/wippyai/ilemit/compiler"
	"github.com/wippyai/ilemit/irfile"
)

const absSource = `
methods:
  - class: Math
    name: Abs
    params: [int32]
    returns: int32
    body:
      - if:
          cond: {lt: [{arg: 0}, {int: 0}]}
          then: {return: {sub: [{int: 0}, {arg: 0}]}}
      - return: {arg: 0}
  - class: Math
    name: Twice
    params: [int32]
    returns: int32
    body:
      let: {name: x, type: int32, value: {arg: 0}, body: {return: {add: [{get: x}, {get: x}]}}}
`

func writeSource(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "math.yaml")
	if err := os.WriteFile(path, []byte(absSource), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRender(t *testing.T) {
	f, err := irfile.Parse([]byte(absSource))
	if err != nil {
		t.Fatal(err)
	}
	opts := options{optimize: true, short: true}
	abs, _ := f.Method("Abs")
	c, err := compiler.Compile(abs, opts.config(f))
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	out := render(c, plainStyles())
	for _, want := range []string{
		".method int32 Math::Abs(int32)",
		".maxstack 2",
		"IL_0000: ldarg.0",
		"IL_0002: bge.s IL_0007",
		"IL_0005: neg",
		"IL_0008: ret",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("listing missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, ".locals") {
		t.Errorf("listing has locals:\n%s", out)
	}

	stats := renderStats(c.Stats, plainStyles())
	if !strings.Contains(stats, "compare-branch") {
		t.Errorf("stats missing compare-branch:\n%s", stats)
	}

	twice, _ := f.Method("Twice")
	c, err = compiler.Compile(twice, opts.config(f))
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if out := render(c, plainStyles()); !strings.Contains(out, ".locals init ([0] int32 x)") {
		t.Errorf("listing missing locals:\n%s", out)
	}
}

func TestOptions(t *testing.T) {
	f, err := irfile.Parse([]byte(absSource))
	if err != nil {
		t.Fatal(err)
	}

	cfg := options{optimize: false, strict: true}.config(f)
	if cfg.Emit.Optimize || len(cfg.Emit.Rules) != 0 || !cfg.Emit.StrictFlush {
		t.Errorf("unoptimized config = %+v", cfg.Emit)
	}
	if cfg := (options{optimize: true}).config(f); !cfg.Emit.Optimize {
		t.Error("optimized config has Optimize unset")
	}

	if got := (options{method: "Tw"}).selected(f); len(got) != 1 || got[0].Name() != "Math::Twice" {
		t.Errorf("selected = %v", got)
	}
	if got := (options{}).selected(f); len(got) != 2 {
		t.Errorf("selected %d methods, want 2", len(got))
	}
}

func TestRun(t *testing.T) {
	path := writeSource(t)

	failed, err := run(options{file: path, optimize: true})
	if err != nil || failed != 0 {
		t.Errorf("run() = %d, %v", failed, err)
	}

	if _, err := run(options{file: path, method: "Nope"}); err == nil {
		t.Error("run() with no matching method succeeded")
	}
	if _, err := run(options{file: filepath.Join(t.TempDir(), "missing.yaml")}); err == nil {
		t.Error("run() of a missing file succeeded")
	}
}

func TestInteractiveModel(t *testing.T) {
	path := writeSource(t)
	m := newInteractiveModel(options{file: path, optimize: true})

	msg := m.load()
	m.Update(msg)
	if m.file == nil || len(m.visible) != 2 {
		t.Fatalf("after load: file=%v visible=%v err=%v", m.file, m.visible, m.err)
	}

	m.Update(tea.KeyMsg{Type: tea.KeyDown})
	if m.selected != 1 {
		t.Errorf("selected = %d, want 1", m.selected)
	}
	m.Update(tea.KeyMsg{Type: tea.KeyDown})
	if m.selected != 1 {
		t.Errorf("selected moved past the end: %d", m.selected)
	}

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("enter did not schedule a compile")
	}
	m.Update(cmd())
	if m.state != stateListing || m.err != nil {
		t.Fatalf("state = %d, err = %v", m.state, m.err)
	}
	if !strings.Contains(m.View(), "Math::Twice") {
		t.Errorf("view does not show the listing:\n%s", m.View())
	}

	m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if m.state != stateSelectMethod {
		t.Errorf("esc left state %d", m.state)
	}

	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'/'}})
	if m.state != stateFilter {
		t.Fatalf("state = %d, want filter", m.state)
	}
	for _, r := range "Abs" {
		m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	if len(m.visible) != 1 || m.selected != 0 {
		t.Errorf("filtered visible = %v selected = %d", m.visible, m.selected)
	}
}
