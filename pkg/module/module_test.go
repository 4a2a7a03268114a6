// Copyright 2026 © The Onyx Authors
// SPDX-License-Identifier: Apache-2.0

package module

import (
	"context"
	"errors"
	"testing"

	oerrors "github.com/jllopis/onyx/pkg/errors"
)

func echoMethod() Method {
	return Method{
		Name:        "echo",
		Description: "echo the text back",
		Parameters:  Object(map[string]any{"text": StringProp("text to echo")}, "text"),
		Perform: func(_ context.Context, args Args) (any, error) {
			return args.String("text"), nil
		},
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry[Module]()
	if err := r.Register(New(KindService, "echo-service", "echoes", echoMethod())); err != nil {
		t.Fatalf("register: %v", err)
	}
	err := r.Register(New(KindService, "echo-service", "another", echoMethod()))
	if !oerrors.HasCode(err, oerrors.CodeDuplicateName) {
		t.Fatalf("expected duplicate name error, got %v", err)
	}
	if r.Len() != 1 {
		t.Fatalf("registry cardinality changed: %d", r.Len())
	}
	got, _ := r.Get("echo-service")
	if got.Description() != "echoes" {
		t.Fatalf("original registration was overwritten")
	}
}

func TestRegistryOrderAndUnregister(t *testing.T) {
	r := NewRegistry[Module]()
	for _, name := range []string{"b", "a", "c"} {
		if err := r.Register(New(KindOther, name, name)); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}
	if !r.Unregister("a") || r.Unregister("missing") {
		t.Fatalf("unexpected unregister results")
	}
	mods := r.Modules()
	if len(mods) != 2 || mods[0].Name() != "b" || mods[1].Name() != "c" {
		t.Fatalf("unexpected order: %v", mods)
	}
}

func TestLabelAndPrefix(t *testing.T) {
	m := New(KindChannel, "server", "http transport")
	if got := Label(m); got != "[CHANNEL] server - http transport" {
		t.Fatalf("unexpected label %q", got)
	}
	p := WithDescriptionPrefix(m, "(*PRIMARY CHANNEL) ")
	if p.Description() != "(*PRIMARY CHANNEL) http transport" || p.Name() != "server" {
		t.Fatalf("unexpected prefixed module: %s %s", p.Name(), p.Description())
	}
}

func TestValidatorRejectsMissingRequired(t *testing.T) {
	v := NewValidator()
	err := v.Validate("echo-service", echoMethod(), Args{})
	if !oerrors.HasCode(err, oerrors.CodeSchemaViolation) {
		t.Fatalf("expected schema violation, got %v", err)
	}
	if err := v.Validate("echo-service", echoMethod(), Args{"text": "hi"}); err != nil {
		t.Fatalf("valid args rejected: %v", err)
	}
}

func TestValidatorTypeMismatch(t *testing.T) {
	v := NewValidator()
	err := v.Validate("echo-service", echoMethod(), Args{"text": 42})
	if !oerrors.HasCode(err, oerrors.CodeSchemaViolation) {
		t.Fatalf("expected schema violation, got %v", err)
	}
}

func TestInvoke(t *testing.T) {
	v := NewValidator()
	out, err := v.Invoke(context.Background(), "echo-service", echoMethod(), Args{"text": "hello"})
	if err != nil || out != "hello" {
		t.Fatalf("unexpected result %v, %v", out, err)
	}

	failing := Method{Name: "fail", Perform: func(context.Context, Args) (any, error) {
		return nil, errors.New("disk full")
	}}
	_, err = v.Invoke(context.Background(), "x", failing, nil)
	if !oerrors.HasCode(err, oerrors.CodeActionFailed) {
		t.Fatalf("expected action failure, got %v", err)
	}

	panicking := Method{Name: "panic", Perform: func(context.Context, Args) (any, error) {
		panic("boom")
	}}
	_, err = v.Invoke(context.Background(), "x", panicking, nil)
	if !oerrors.HasCode(err, oerrors.CodeActionFailed) {
		t.Fatalf("expected panic to surface as action failure, got %v", err)
	}
}

func TestFindMethod(t *testing.T) {
	m := New(KindService, "s", "d", echoMethod())
	if _, ok := FindMethod(m, "echo"); !ok {
		t.Fatalf("expected echo")
	}
	if _, ok := FindMethod(m, "none"); ok {
		t.Fatalf("unexpected method")
	}
}
