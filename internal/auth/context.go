package auth

import "context"

type operatorContextKey struct{}

// WithOperator attaches an operator to the context.
func WithOperator(ctx context.Context, op *Operator) context.Context {
	if op == nil {
		return ctx
	}
	return context.WithValue(ctx, operatorContextKey{}, op)
}

// OperatorFromContext retrieves an operator from the context.
func OperatorFromContext(ctx context.Context) (*Operator, bool) {
	op, ok := ctx.Value(operatorContextKey{}).(*Operator)
	return op, ok
}
