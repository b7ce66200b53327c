// Package signal owns the parent cancellation scope handed to job
// contexts. A SIGINT or SIGTERM cancels the scope with the signal
// recorded as the cancellation cause, so the driver can tell an operator
// interrupt from a normal shutdown.
//
// Import rules:
//   - CAN import: std lib only
//   - MUST NOT import: internal packages (to avoid circular dependencies)
package signal

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// Handler cancels its context when the process receives SIGINT or SIGTERM.
type Handler struct {
	ctx      context.Context //nolint:containedctx // intentional: the handler manages the scope lifecycle
	cancel   context.CancelCauseFunc
	sigChan  chan os.Signal
	stopOnce sync.Once
}

// NewHandler derives the job scope from parent and starts listening for
// SIGINT and SIGTERM.
//
// Usage:
//
//	h := signal.NewHandler(ctx)
//	defer h.Stop()
//	job.InitializeJob(msg, h.Context())
func NewHandler(parent context.Context) *Handler {
	ctx, cancel := context.WithCancelCause(parent)
	h := &Handler{
		ctx:    ctx,
		cancel: cancel,
		// Buffer of 1 ensures signal.Notify doesn't drop a signal that
		// arrives while the handler is busy.
		sigChan: make(chan os.Signal, 1),
	}

	signal.Notify(h.sigChan, syscall.SIGINT, syscall.SIGTERM)
	go h.listen()

	return h
}

// listen cancels the scope on the first signal. Stop closes sigChan,
// which ends the goroutine.
func (h *Handler) listen() {
	sig, ok := <-h.sigChan
	if !ok {
		return
	}
	h.cancel(fmt.Errorf("received signal %s", sig))
}

// Context returns the job-scope context. Pass it as the parent
// cancellation scope of job contexts.
func (h *Handler) Context() context.Context {
	return h.ctx
}

// Cause reports why the scope ended: the signal-carrying error after an
// interrupt, context.Canceled after a plain Stop, nil while the scope is
// still live.
func (h *Handler) Cause() error {
	return context.Cause(h.ctx)
}

// Stop unregisters the signal handler and releases the scope. Safe to
// call more than once.
func (h *Handler) Stop() {
	h.stopOnce.Do(func() {
		signal.Stop(h.sigChan)
		close(h.sigChan)
		h.cancel(context.Canceled)
	})
}
