package main

import (
	"bytes"
	stderrors "errors"
	"strings"
	"testing"

	"github.com/fatih/color"

	"github.com/jllopis/onyx/pkg/config"
	"github.com/jllopis/onyx/pkg/errors"
	"github.com/jllopis/onyx/pkg/llm"
)

func TestWriteErrorShowsCodeAndHint(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	err := withHint(errors.New(errors.CodeInvalidInput, "bad value", stderrors.New("boom")), "fix it")
	writeError(&buf, err)

	out := buf.String()
	if !strings.Contains(out, "Error [") || !strings.Contains(out, "bad value: boom") {
		t.Fatalf("unexpected output %q", out)
	}
	if !strings.Contains(out, "Hint: fix it") {
		t.Fatalf("hint missing from %q", out)
	}
}

func TestWriteErrorPlain(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	writeError(&buf, stderrors.New("plain failure"))
	if got := buf.String(); got != "Error: plain failure\n" {
		t.Fatalf("unexpected output %q", got)
	}
}

func TestNewProvider(t *testing.T) {
	for _, name := range []string{"", "ollama", "openai", "anthropic", "mock"} {
		p, err := newProvider(config.LLMConfig{Provider: name, Model: "m", APIKey: "k"})
		if err != nil || p == nil {
			t.Fatalf("provider %q: %v", name, err)
		}
	}
	if _, ok := mustProvider(t, "mock").(*llm.MockProvider); !ok {
		t.Fatalf("mock provider has the wrong type")
	}

	_, err := newProvider(config.LLMConfig{Provider: "nope"})
	var ce *cliError
	if !stderrors.As(err, &ce) || ce.hint == "" {
		t.Fatalf("expected a hinted error, got %v", err)
	}
}

func mustProvider(t *testing.T, name string) llm.Provider {
	t.Helper()
	p, err := newProvider(config.LLMConfig{Provider: name})
	if err != nil {
		t.Fatalf("provider %q: %v", name, err)
	}
	return p
}

func TestRootRegistersCommands(t *testing.T) {
	want := map[string]bool{"serve": false, "chat": false, "config": false, "mcp": false, "version": false}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Fatalf("command %s not registered", name)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	versionCmd.Run(versionCmd, nil)
	if !strings.HasPrefix(buf.String(), "onyx version dev") {
		t.Fatalf("unexpected version output %q", buf.String())
	}
}
