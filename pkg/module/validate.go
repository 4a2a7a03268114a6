// Copyright 2026 © The Onyx Authors
// SPDX-License-Identifier: Apache-2.0

package module

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/jllopis/onyx/pkg/errors"
)

// Validator checks method arguments against their parameter schema. Compiled
// schemas are cached per module/method pair.
type Validator struct {
	mu    sync.Mutex
	cache map[string]*jsonschema.Schema
}

// NewValidator returns a Validator with an empty cache.
func NewValidator() *Validator {
	return &Validator{cache: make(map[string]*jsonschema.Schema)}
}

// Validate returns a CodeSchemaViolation error if args do not satisfy the
// method's parameters. Methods without a schema accept anything.
func (v *Validator) Validate(moduleName string, m Method, args Args) error {
	if len(m.Parameters) == 0 {
		return nil
	}
	schema, err := v.compiled(moduleName, m)
	if err != nil {
		return err
	}
	doc, err := normalize(args)
	if err != nil {
		return errors.New(errors.CodeSchemaViolation, "arguments are not JSON encodable", err).
			WithContext("method", m.Name)
	}
	if err := schema.Validate(doc); err != nil {
		return errors.New(errors.CodeSchemaViolation, fmt.Sprintf("invalid arguments for %s", m.Name), err).
			WithContext("module", moduleName).
			WithContext("method", m.Name).
			WithRecoverable(true)
	}
	return nil
}

func (v *Validator) compiled(moduleName string, m Method) (*jsonschema.Schema, error) {
	key := moduleName + "/" + m.Name
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.cache == nil {
		v.cache = make(map[string]*jsonschema.Schema)
	}
	if s, ok := v.cache[key]; ok {
		return s, nil
	}
	raw, err := json.Marshal(m.Parameters)
	if err != nil {
		return nil, errors.New(errors.CodeInvalidInput, "parameter schema is not JSON encodable", err)
	}
	url := "mem://onyx/" + key + ".json"
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(url, strings.NewReader(string(raw))); err != nil {
		return nil, errors.New(errors.CodeInvalidInput, "invalid parameter schema", err).WithContext("method", m.Name)
	}
	s, err := c.Compile(url)
	if err != nil {
		return nil, errors.New(errors.CodeInvalidInput, "invalid parameter schema", err).WithContext("method", m.Name)
	}
	v.cache[key] = s
	return s, nil
}

// normalize round-trips args through JSON so numbers and nested values have
// the shapes the schema validator expects.
func normalize(args Args) (any, error) {
	if args == nil {
		args = Args{}
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Invoke validates args and runs the method. Handler errors and panics are
// reported as CodeActionFailed.
func (v *Validator) Invoke(ctx context.Context, moduleName string, m Method, args Args) (out any, err error) {
	if err := v.Validate(moduleName, m, args); err != nil {
		return nil, err
	}
	if m.Perform == nil {
		return nil, errors.New(errors.CodeMethodNotFound, fmt.Sprintf("method %s has no handler", m.Name), nil).
			WithContext("module", moduleName)
	}
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = errors.New(errors.CodeActionFailed, fmt.Sprintf("%s.%s panicked", moduleName, m.Name), fmt.Errorf("%v", r)).
				WithRecoverable(true)
		}
	}()
	out, err = m.Perform(ctx, args)
	if err != nil {
		if errors.HasCode(err, errors.CodeActionFailed) {
			return nil, err
		}
		return nil, errors.New(errors.CodeActionFailed, fmt.Sprintf("%s.%s failed", moduleName, m.Name), err).
			WithContext("module", moduleName).
			WithContext("method", m.Name).
			WithRecoverable(true)
	}
	return out, nil
}
