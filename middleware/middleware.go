package middleware

import (
	"context"

	"github.com/zeni/ledgerflow/workflow"
)

// Handler is the terminal function that executes step logic.
type Handler = workflow.StepFunc

// Middleware wraps a Handler with cross-cutting logic. It receives the
// current context, the step being executed, and the next handler to call.
type Middleware = workflow.StepMiddleware

// Chain composes multiple middleware into a single Middleware.
// Middleware are applied right-to-left: the first middleware in the
// list is the outermost wrapper.
//
// Example: Chain(logging, recover, tracing) executes as:
//
//	logging → recover → tracing → step
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, step *workflow.StepInfo, next Handler) error {
		// Build the chain from the end backwards.
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			prev := h
			h = func(ctx context.Context) error {
				return mw(ctx, step, prev)
			}
		}
		return h(ctx)
	}
}
