// Copyright 2026 © The Onyx Authors
// SPDX-License-Identifier: Apache-2.0

// Package module describes capabilities that agents can act through.
//
// A Module is a named, described set of callable Methods. Channels, services
// and the agent's own capability set all satisfy the same interface and are
// resolved by name through a Registry, never through reflection.
package module

import (
	"context"
	"fmt"
	"strings"
)

// Kind tells channels (talk to the user) apart from services (do work).
type Kind string

const (
	KindChannel Kind = "channel"
	KindService Kind = "service"
	KindOther   Kind = "other"
)

// Args are the materialized arguments for a method call.
type Args map[string]any

// String returns the string argument under key, or "".
func (a Args) String(key string) string {
	v, _ := a[key].(string)
	return v
}

// Map returns the object argument under key, or nil.
func (a Args) Map(key string) map[string]any {
	v, _ := a[key].(map[string]any)
	return v
}

// Performer executes a method. It is the only place side effects happen.
type Performer func(ctx context.Context, args Args) (any, error)

// Schema is a JSON Schema object describing a method's parameters.
type Schema map[string]any

// Method is a callable operation of a Module.
type Method struct {
	Name        string
	Description string
	Parameters  Schema
	Perform     Performer
}

// Module is a named capability exposing callable methods.
type Module interface {
	Kind() Kind
	Name() string
	Description() string
	Methods() []Method
}

// Static is an immutable Module built from a fixed method list.
type Static struct {
	kind        Kind
	name        string
	description string
	methods     []Method
}

// New returns a Static module.
func New(kind Kind, name, description string, methods ...Method) *Static {
	ms := make([]Method, len(methods))
	copy(ms, methods)
	return &Static{kind: kind, name: name, description: description, methods: ms}
}

func (s *Static) Kind() Kind          { return s.kind }
func (s *Static) Name() string        { return s.name }
func (s *Static) Description() string { return s.description }

// Methods returns a copy of the module's methods.
func (s *Static) Methods() []Method {
	out := make([]Method, len(s.methods))
	copy(out, s.methods)
	return out
}

// FindMethod looks up a method by name.
func FindMethod(m Module, name string) (Method, bool) {
	for _, method := range m.Methods() {
		if method.Name == name {
			return method, true
		}
	}
	return Method{}, false
}

// Label renders a module as an option label: "[SERVICE] name - description".
func Label(m Module) string {
	return fmt.Sprintf("[%s] %s - %s", strings.ToUpper(string(m.Kind())), m.Name(), m.Description())
}

type described struct {
	Module
	description string
}

func (d described) Description() string { return d.description }

// WithDescriptionPrefix returns m with prefix prepended to its description.
func WithDescriptionPrefix(m Module, prefix string) Module {
	return described{Module: m, description: prefix + m.Description()}
}

// Object builds an object schema from properties and required names.
func Object(properties map[string]any, required ...string) Schema {
	if required == nil {
		required = []string{}
	}
	return Schema{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

// StringProp describes a string property.
func StringProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

// ObjectProp describes a free-form object property.
func ObjectProp(description string) map[string]any {
	return map[string]any{"type": "object", "description": description}
}
