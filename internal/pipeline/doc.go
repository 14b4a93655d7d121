/*
Package pipeline tracks events between "forwarded" and "sent".

# Overview

Every forwarded transaction or span is registered as in flight before its
encode+send goroutine starts, and released when that goroutine finishes,
whether it succeeded or not.

Flush waits only for the events in flight at the moment it is called.
Events submitted afterwards never delay it. An internal timeout bounds the
wait so one stuck send cannot starve every later flush; after the wait the
reporter itself is flushed.

# Usage

	p := pipeline.New(rep, pipeline.WithLogger(logger), pipeline.WithFlushTimeout(time.Second))
	p.Submit(span)            // span implements pipeline.Encoder
	err := p.Flush(ctx)       // blocks
	p.FlushFunc(func(err error) { ... })
*/
package pipeline
