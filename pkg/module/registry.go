// Copyright 2026 © The Onyx Authors
// SPDX-License-Identifier: Apache-2.0

package module

import (
	"fmt"
	"sync"

	"github.com/jllopis/onyx/pkg/errors"
)

// Registry is a name-unique, concurrency-safe set of modules. Registration
// order is preserved for listing.
type Registry[T Module] struct {
	mu    sync.RWMutex
	items map[string]T
	order []string
}

// NewRegistry returns an empty registry.
func NewRegistry[T Module]() *Registry[T] {
	return &Registry[T]{items: make(map[string]T)}
}

// Register adds m. A name already in use is rejected and the registry is left
// unchanged.
func (r *Registry[T]) Register(m T) error {
	name := m.Name()
	if name == "" {
		return errors.New(errors.CodeInvalidInput, "module name is required", nil)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.items == nil {
		r.items = make(map[string]T)
	}
	if _, exists := r.items[name]; exists {
		return errors.New(errors.CodeDuplicateName, fmt.Sprintf("%s %q already registered", m.Kind(), name), nil).
			WithContext("name", name)
	}
	r.items[name] = m
	r.order = append(r.order, name)
	return nil
}

// Unregister removes the module with the given name.
func (r *Registry[T]) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[name]; !ok {
		return false
	}
	delete(r.items, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Get returns the module registered under name.
func (r *Registry[T]) Get(name string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.items[name]
	return m, ok
}

// List returns the modules in registration order.
func (r *Registry[T]) List() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]T, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.items[name])
	}
	return out
}

// Modules implements Source.
func (r *Registry[T]) Modules() []Module {
	items := r.List()
	out := make([]Module, len(items))
	for i, m := range items {
		out[i] = m
	}
	return out
}

// Len returns the number of registered modules.
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// Source yields modules an agent may choose from.
type Source interface {
	Modules() []Module
}

// SourceFunc adapts a function to Source.
type SourceFunc func() []Module

// Modules implements Source.
func (f SourceFunc) Modules() []Module { return f() }

// Index builds a name lookup over modules. Later duplicates are ignored.
func Index(modules []Module) map[string]Module {
	out := make(map[string]Module, len(modules))
	for _, m := range modules {
		if _, ok := out[m.Name()]; ok {
			continue
		}
		out[m.Name()] = m
	}
	return out
}
