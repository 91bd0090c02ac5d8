package utils

import "sync"

// GracefulContext - a context carrying a cancelation channel for cooperating routines
type GracefulContext interface {
	Done() <-chan struct{}
	Fail(err error)
	RunAsChild(callback func(GracefulContext)) GracefulRunner
}

// GracefulRunner - handle for a routine started through RunWithGracefulCancel
type GracefulRunner interface {
	// Cancel - requests termination and blocks until the routine finishes its cleanup
	Cancel()

	// Wait - blocks until the routine terminates, returns error passed to Fail (if any)
	Wait() error
}

// RunWithGracefulCancel - runs callback as a go routine and returns a runner handle.
// This is inspired by context but with the key difference that the cancel function waits until
// the handler finishes all the cleanup.
// @see https://blog.golang.org/context
func RunWithGracefulCancel(callback func(GracefulContext)) GracefulRunner {
	ctx := newGracefulCtx()

	go func() {
		callback(ctx)
		ctx.finish()
	}()

	return &gracefulRunner{ctx: ctx}
}

type gracefulCtx struct {
	cancelC  chan struct{}
	doneC    chan struct{}
	mu       sync.Mutex
	err      error
	children sync.WaitGroup
}

func newGracefulCtx() *gracefulCtx {
	return &gracefulCtx{
		cancelC: make(chan struct{}),
		doneC:   make(chan struct{}),
	}
}

func (c *gracefulCtx) Done() <-chan struct{} { return c.cancelC }

func (c *gracefulCtx) Fail(err error) {
	c.mu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.mu.Unlock()
}

func (c *gracefulCtx) RunAsChild(callback func(GracefulContext)) GracefulRunner {
	child := newGracefulCtx()

	c.children.Add(1)
	go func() {
		defer c.children.Done()
		callback(child)
		child.finish()
	}()

	// Propagate cancelation from parent to child
	go func() {
		select {
		case <-c.cancelC:
			child.cancel()
		case <-child.doneC:
		}
	}()

	return &gracefulRunner{ctx: child}
}

func (c *gracefulCtx) cancel() {
	c.mu.Lock()
	select {
	case <-c.cancelC:
	default:
		close(c.cancelC)
	}
	c.mu.Unlock()
}

func (c *gracefulCtx) finish() {
	c.children.Wait()
	close(c.doneC)
}

type gracefulRunner struct {
	ctx *gracefulCtx
}

func (r *gracefulRunner) Cancel() {
	r.ctx.cancel()
	<-r.ctx.doneC
}

func (r *gracefulRunner) Wait() error {
	<-r.ctx.doneC
	r.ctx.mu.Lock()
	defer r.ctx.mu.Unlock()
	return r.ctx.err
}
