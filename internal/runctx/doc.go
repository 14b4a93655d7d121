/*
Package runctx tracks the currently active transaction and span stack.

# Overview

A RunContext is an immutable snapshot: (current transaction, ordered stack
of active spans). Entering or leaving a span never edits a snapshot; it
produces a new one, and the active snapshot is swapped atomically.

# Strategies

Two Manager implementations decide where the active snapshot lives:

  - ModeContext: a snapshot cell travels inside context.Context. Each bound
    callback or goroutine started through the manager gets its own cell
    seeded with the snapshot active at creation time.
  - ModeGlobal: one process-wide cell. Bound callbacks swap the cell in,
    run, and restore the previous snapshot. Only correct when callbacks do
    not overlap, which is why ModeContext is the default.

# Usage

	mgr := runctx.NewManager(runctx.ModeContext, logger)
	ctx = mgr.Supersede(ctx, mgr.Active(ctx).EnterTrans(tx))

	// Timers and event sources run outside the caller's stack:
	time.AfterFunc(d, func() { mgr.Bind(mgr.Active(ctx), work)(context.Background()) })
*/
package runctx
