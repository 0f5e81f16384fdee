package rbac

import "context"

type principalContextKey struct{}

type evaluatorContextKey struct{}

// ContextWithPrincipal stores the verified principal in context.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal stored by the gate.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok
}

// ContextWithEvaluator stores the request scoped evaluator.
func ContextWithEvaluator(ctx context.Context, ev *Evaluator) context.Context {
	return context.WithValue(ctx, evaluatorContextKey{}, ev)
}

// EvaluatorFromContext returns the request evaluator. A missing evaluator
// yields nil, which denies every check.
func EvaluatorFromContext(ctx context.Context) *Evaluator {
	ev, _ := ctx.Value(evaluatorContextKey{}).(*Evaluator)
	return ev
}
