package notifications

import "context"

type ctxKey struct{}

// WithStore returns a copy of ctx carrying s.
func WithStore(ctx context.Context, s *Store) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// Lookup returns the store attached to ctx, or ErrNoStore.
func Lookup(ctx context.Context) (*Store, error) {
	s, ok := ctx.Value(ctxKey{}).(*Store)
	if !ok || s == nil {
		return nil, ErrNoStore
	}
	return s, nil
}

// FromContext returns the store attached to ctx and panics with ErrNoStore
// when there is none. A missing store is a wiring bug, not a runtime
// condition.
func FromContext(ctx context.Context) *Store {
	s, err := Lookup(ctx)
	if err != nil {
		panic(err)
	}
	return s
}
