// Package di provides a minimal service container for module wiring.
// Modules register constructed services under string tokens at startup;
// lookups after startup are read-only.
package di

import (
	"fmt"
	"sync"
)

// ServiceRegistry is the read-only view handed to consumers.
type ServiceRegistry interface {
	Get(token string) (any, bool)
	MustGet(token string) any
}

// Container is the mutable registry used during module registration.
type Container interface {
	ServiceRegistry
	Register(token string, service any)
}

type container struct {
	services map[string]any
	mu       sync.RWMutex
}

// NewContainer creates an empty container.
func NewContainer() Container {
	return &container{services: make(map[string]any)}
}

func (c *container) Register(token string, service any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.services[token]; exists {
		panic(fmt.Sprintf("di: token %q already registered", token))
	}
	c.services[token] = service
}

func (c *container) Get(token string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.services[token]
	return s, ok
}

func (c *container) MustGet(token string) any {
	s, ok := c.Get(token)
	if !ok {
		panic(fmt.Sprintf("di: token %q not registered", token))
	}
	return s
}

// Resolve fetches and type-asserts a service in one step.
func Resolve[T any](r ServiceRegistry, token string) T {
	return r.MustGet(token).(T)
}
