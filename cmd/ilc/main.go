package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/ilemit/compiler"
	"github.com/wippyai/ilemit/emit"
	"github.com/wippyai/ilemit/irfile"
)

type options struct {
	file     string
	method   string
	workers  int
	optimize bool
	strict   bool
	short    bool
	stats    bool
}

func main() {
	var (
		opts        options
		interactive bool
		verbose     bool
	)
	flag.StringVar(&opts.file, "file", "", "Path to the YAML IR file")
	flag.StringVar(&opts.method, "method", "", "Compile only methods whose name contains this string")
	flag.IntVar(&opts.workers, "j", 0, "Parallel workers (0 = GOMAXPROCS)")
	flag.BoolVar(&opts.optimize, "O", true, "Enable peephole and branch fusion rules")
	flag.BoolVar(&opts.strict, "strict", false, "Fail methods that leave unresolved labels")
	flag.BoolVar(&opts.short, "short", false, "Use short branch forms where they fit")
	flag.BoolVar(&opts.stats, "stats", false, "Print rewrite statistics per method")
	flag.BoolVar(&interactive, "i", false, "Interactive mode with TUI")
	flag.BoolVar(&verbose, "v", false, "Verbose logging")
	flag.Parse()

	if opts.file == "" {
		fmt.Fprintln(os.Stderr, "Usage: ilc -file <methods.yaml> [-method name] [-O=false] [-strict] [-short] [-j n]")
		fmt.Fprintln(os.Stderr, "       ilc -file <methods.yaml> -i  (interactive mode)")
		os.Exit(1)
	}

	if verbose {
		log, err := zap.NewDevelopment()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = log.Sync() }()
		emit.SetLogger(log)
		compiler.SetLogger(log)
	}

	if interactive {
		if err := runInteractive(opts); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	failed, err := run(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if failed > 0 {
		os.Exit(2)
	}
}

func (o options) config(f *irfile.File) compiler.Config {
	cfg := compiler.Config{
		Resolver:      f.Resolver,
		Workers:       o.workers,
		ShortBranches: o.short,
	}
	if o.optimize {
		cfg.Emit = emit.DefaultConfig()
	}
	cfg.Emit.StrictFlush = o.strict
	return cfg
}

func (o options) selected(f *irfile.File) []compiler.Method {
	if o.method == "" {
		return f.Methods
	}
	var out []compiler.Method
	for _, m := range f.Methods {
		if strings.Contains(m.Name(), o.method) {
			out = append(out, m)
		}
	}
	return out
}

// run compiles the selected methods and prints their listings. It returns
// the number of methods that failed.
func run(opts options) (int, error) {
	f, err := irfile.Load(opts.file)
	if err != nil {
		return 0, err
	}
	methods := opts.selected(f)
	if len(methods) == 0 {
		return 0, fmt.Errorf("no method matches %q", opts.method)
	}

	results, err := compiler.CompileAll(context.Background(), methods, opts.config(f))
	if err != nil {
		return 0, err
	}

	st := plainStyles()
	if term.IsTerminal(int(os.Stdout.Fd())) {
		st = colorStyles()
	}

	failed := 0
	for i, r := range results {
		if i > 0 {
			fmt.Println()
		}
		if r.Err != nil {
			failed++
			fmt.Fprintln(os.Stderr, st.err.Render(fmt.Sprintf("%s: %v", r.Name, r.Err)))
			continue
		}
		fmt.Print(render(r.Compiled, st))
		if opts.stats {
			fmt.Print(renderStats(r.Compiled.Stats, st))
		}
	}
	return failed, nil
}
