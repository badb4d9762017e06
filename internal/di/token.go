package di

import "sync"

// Token is a typed key for a service. The type parameter makes lookups
// compile-time safe without exposing the container's string keys.
type Token[T any] struct {
	name string
}

// NewToken creates a token. Names must be unique across the application;
// the convention is "<context>.<Service>" for public services and
// "<context>:<service>" for private ones.
func NewToken[T any](name string) Token[T] {
	return Token[T]{name: name}
}

// String returns the token name.
func (t Token[T]) String() string {
	return t.name
}

// lazyService defers construction until first lookup so modules can
// register in any order.
type lazyService[T any] struct {
	once    sync.Once
	factory func(ServiceRegistry) T
	value   T
}

// RegisterToken registers a factory under the token. The factory runs at
// most once, on first GetToken.
func RegisterToken[T any](c Container, t Token[T], factory func(ServiceRegistry) T) {
	c.Register(t.name, &lazyService[T]{factory: factory})
}

// GetToken resolves the token, constructing the service on first use.
func GetToken[T any](r ServiceRegistry, t Token[T]) T {
	svc := r.MustGet(t.name)
	if l, ok := svc.(*lazyService[T]); ok {
		l.once.Do(func() { l.value = l.factory(r) })
		return l.value
	}
	return svc.(T)
}
