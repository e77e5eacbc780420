// Package emit is the instruction emission engine.
//
// A Context owns everything needed to lower one method body into a linear
// CIL instruction stream: an instruction arena addressed by stable handles,
// the symbolic operand TypeStack, labels, the deferred patch queue, the
// flow-control scope stack, declared locals and the exception regions.
//
// # Labels and deferred patches
//
// Branches may name a Label before it is bound. EmitBranch appends a
// placeholder and queues a patch that waits on the label; MarkLabel binds
// the label to whichever instruction is appended next. Patches are indexed
// by the labels they wait on, so binding a label only visits the patches
// that depend on it. Ready patches apply in the order they were queued.
//
// Flush drains the queue one last time and discards anything still pending:
// an unconditional placeholder is removed, a conditional one becomes the
// pops its condition needed. Discards are logged and counted, and
// Config.StrictFlush turns them into an error.
//
// # Peephole rewriting
//
// After every Append the engine tries each Rule, longest window first. A
// window is eligible when it holds no placeholder, no instruction past the
// first is a branch target, and it does not straddle an exception region
// boundary. Replacements are appended through Append again, so they are
// optimized in turn. When the first instruction of a rewritten window was a
// branch target, references to it are forwarded to the first replacement
// (or a synthesized nop). Forwarding is recorded in the arena and resolved
// when the Body is produced, so labels and branch operands never need to be
// rewritten in place.
//
// BranchRules fuse the instructions that compute a branch condition with
// the conditional branch itself, for example ceq followed by brtrue
// becomes beq.
//
// # Verification
//
// Stack-effect contracts (Effect) describe how a block changes the
// TypeStack. Verify checks that emitting a block changed the depth by
// exactly its declared net effect, and Choice runs two arms on independent
// stacks and requires equal depths. Failures panic with an *errors.Error in
// PhaseVerify; the compiler package recovers them at the method boundary.
package emit
