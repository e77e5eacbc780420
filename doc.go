// Package ilemit compiles structured method bodies into stack-machine IL for
// a CLR-style virtual machine.
//
// Code is produced through an emit context that tracks the evaluation stack
// type by type, fuses comparisons into conditional branches, runs a peephole
// pass over recently emitted instructions and patches branch targets once
// labels are marked.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	ilemit/              Root package, documentation only
//	├── types/           Type model, method and field descriptors, operator overloads
//	├── cil/             Opcodes, instructions, finished method bodies and listings
//	├── emit/            Emit context: type stack, labels, branches, peephole rules
//	├── block/           Structured code blocks and their lowering onto emit
//	├── compiler/        Per-method compilation and parallel batch compilation
//	├── irfile/          YAML method definitions parsed into blocks
//	├── errors/          Structured error types for debugging
//	└── cmd/ilc/         Command line listing tool with an interactive mode
//
// # Quick Start
//
// Compile a single method:
//
//	sig := &types.Method{
//	    DeclaringType: types.Class("Math"),
//	    Name:          "Abs",
//	    Return:        types.Int32,
//	    Params:        []*types.Type{types.Int32},
//	    Static:        true,
//	}
//	body := block.Seq{Blocks: []block.Block{
//	    block.If{
//	        Cond: block.Binary{Op: types.OpLt, Left: block.Arg{Index: 0}, Right: block.Int(0)},
//	        Then: block.Return{Value: block.Binary{Op: types.OpSub, Left: block.Int(0), Right: block.Arg{Index: 0}}},
//	    },
//	    block.Return{Value: block.Arg{Index: 0}},
//	}}
//
//	c, err := compiler.Compile(compiler.Method{Signature: sig, Body: body}, compiler.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	c.Body.WriteTo(os.Stdout)
//
// # Thread Safety
//
// An emit.Context belongs to one method and must be used by a single
// goroutine. compiler.CompileAll builds an independent context per method and
// runs them in parallel.
package ilemit
