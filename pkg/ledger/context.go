package ledger

import "context"

type referenceKey struct{}

// WithReference attaches an idempotency reference to ctx. Payments recorded
// while serving ctx use it, so a replayed request fails with ErrDuplicatePayment.
func WithReference(ctx context.Context, ref string) context.Context {
	if ref == "" {
		return ctx
	}
	return context.WithValue(ctx, referenceKey{}, ref)
}

// ReferenceFrom returns the reference attached by WithReference, or "".
func ReferenceFrom(ctx context.Context) string {
	ref, _ := ctx.Value(referenceKey{}).(string)
	return ref
}

// DerivedReference returns ref with suffix appended, or "" when ref is empty
// so the store assigns a fresh one.
func DerivedReference(ref, suffix string) string {
	if ref == "" {
		return ""
	}
	return ref + ":" + suffix
}
