package ports

import "context"

// Confirmer asks the user to confirm a destructive action.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, prompt string) bool

func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) bool {
	return f(ctx, prompt)
}

var (
	// AlwaysConfirm accepts every prompt.
	AlwaysConfirm Confirmer = ConfirmFunc(func(context.Context, string) bool { return true })
	// NeverConfirm declines every prompt.
	NeverConfirm Confirmer = ConfirmFunc(func(context.Context, string) bool { return false })
)
