// Package compiler drives code generation for whole methods.
//
// Compile lowers one method body through its own emit.Context, appends the
// epilogue, flushes pending patches and finalizes the body. Verification
// failures raised while emitting unwind to Compile and are returned as
// internal compiler errors; they never affect other methods.
//
// CompileAll compiles independent methods in parallel, one Context per
// goroutine.
package compiler

import (
	"context"
	"runtime"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/ilemit/block"
	"github.com/wippyai/ilemit/cil"
	"github.com/wippyai/ilemit/emit"
	"github.com/wippyai/ilemit/errors"
	"github.com/wippyai/ilemit/types"
)

// Method is a method signature with the block tree of its body.
type Method struct {
	Signature *types.Method
	Body      block.Block
}

// Name returns the full name of the method.
func (m Method) Name() string {
	if m.Signature == nil {
		return "<anonymous>"
	}
	return m.Signature.FullName()
}

// Config controls compilation.
type Config struct {
	// Resolver supplies operator overloads. Nil resolves nothing.
	Resolver types.Resolver

	// Emit configures every emission context.
	Emit emit.Config

	// Workers bounds CompileAll parallelism. Zero means GOMAXPROCS.
	Workers int

	// ShortBranches rewrites branches to their short forms where the
	// displacement fits.
	ShortBranches bool
}

// DefaultConfig returns a configuration with peephole optimization enabled.
func DefaultConfig() Config {
	return Config{Emit: emit.DefaultConfig()}
}

// Compiled is a finished method.
type Compiled struct {
	Method *types.Method
	Body   *cil.Body
	Stats  emit.Stats
}

// Compile generates the body of m.
func Compile(m Method, cfg Config) (out *Compiled, err error) {
	name := m.Name()
	log := Logger().With(zap.String("method", name))
	if m.Signature == nil {
		return nil, errors.InvalidData(errors.PhaseCompile, []string{name}, "method without signature")
	}

	ctx := emit.NewContext(m.Signature, cfg.Emit)
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		e, ok := r.(*errors.Error)
		if !ok {
			panic(r)
		}
		out = nil
		err = errors.Internal(name, e)
		log.Debug("compile failed", zap.Error(err))
	}()

	start := time.Now()
	log.Debug("compile start")

	if m.Body != nil {
		block.NewEmitter(ctx, cfg.Resolver).Emit(m.Body)
	}
	ctx.Epilogue()
	if ferr := ctx.Flush(); ferr != nil {
		if e, ok := ferr.(*errors.Error); ok {
			e.Method = name
		}
		return nil, ferr
	}

	body := ctx.Body()
	shortened := 0
	if cfg.ShortBranches {
		shortened = body.ShortenBranches()
	}

	stats := ctx.Stats()
	log.Debug("compile finished",
		zap.Int("instructions", len(body.Instructions)),
		zap.Int("max_stack", body.MaxStack),
		zap.Int("discarded", stats.Discarded),
		zap.Int("shortened", shortened),
		zap.Duration("elapsed", time.Since(start)))

	return &Compiled{Method: m.Signature, Body: body, Stats: stats}, nil
}

// Result is the outcome of compiling one method in CompileAll.
type Result struct {
	Compiled *Compiled
	Err      error
	Name     string
}

// CompileAll compiles methods in parallel. Results are in input order and
// carry per-method errors; a failing method does not stop the others. The
// returned error is non-nil only when ctx is cancelled.
func CompileAll(ctx context.Context, methods []Method, cfg Config) ([]Result, error) {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	results := make([]Result, len(methods))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, m := range methods {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			c, err := Compile(m, cfg)
			results[i] = Result{Name: m.Name(), Compiled: c, Err: err}
			if err != nil {
				Logger().Error("method failed", zap.String("method", m.Name()), zap.Error(err))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, ctx.Err()
}
