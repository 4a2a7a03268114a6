package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.LLM.Provider != "ollama" {
		t.Errorf("expected default provider ollama, got %s", cfg.LLM.Provider)
	}
	if cfg.Agent.MaxStepRetries != 3 || cfg.Agent.MaxSectionLength != 100 {
		t.Errorf("unexpected agent defaults: %+v", cfg.Agent)
	}
	if !cfg.Agent.AbortOnRequiredFailure {
		t.Errorf("required failures should abort by default")
	}
	if cfg.LLM.Timeout != 60*time.Second {
		t.Errorf("expected 60s oracle timeout, got %s", cfg.LLM.Timeout)
	}
	if cfg.History.Backend != "memory" || cfg.Server.Addr != ":8080" {
		t.Errorf("unexpected defaults: %+v %+v", cfg.History, cfg.Server)
	}
	if len(cfg.Records.Formats) != 2 {
		t.Errorf("expected md and json record formats, got %v", cfg.Records.Formats)
	}
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("ONYX_LLM_PROVIDER", "openai")
	t.Setenv("ONYX_AGENT_MAX_STEP_RETRIES", "5")
	t.Setenv("ONYX_SERVICES_FILE_ROOT", "/srv/files")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.LLM.Provider != "openai" {
		t.Errorf("expected provider openai from env, got %s", cfg.LLM.Provider)
	}
	if cfg.Agent.MaxStepRetries != 5 {
		t.Errorf("expected max_step_retries 5 from env, got %d", cfg.Agent.MaxStepRetries)
	}
	if cfg.Services.File.Root != "/srv/files" {
		t.Errorf("expected nested env key, got %q", cfg.Services.File.Root)
	}
}

func TestLoadWithProfile(t *testing.T) {
	dir := t.TempDir()
	basePath := filepath.Join(dir, "config.yaml")
	writeFile(t, basePath, `
llm:
  provider: "ollama"
  model: "llama3.1"
log:
  level: "info"
`)
	writeFile(t, filepath.Join(dir, "config.dev.yaml"), `
llm:
  provider: "mock"
log:
  level: "debug"
`)

	tests := []struct {
		profile      string
		wantProvider string
		wantLevel    string
	}{
		{"", "ollama", "info"},
		{"dev", "mock", "debug"},
		{"prod", "ollama", "info"},
	}
	for _, tc := range tests {
		t.Run("profile="+tc.profile, func(t *testing.T) {
			cfg, err := LoadWithProfile(basePath, tc.profile)
			if err != nil {
				t.Fatalf("LoadWithProfile failed: %v", err)
			}
			if cfg.LLM.Provider != tc.wantProvider || cfg.Log.Level != tc.wantLevel {
				t.Errorf("got %s/%s, want %s/%s", cfg.LLM.Provider, cfg.Log.Level, tc.wantProvider, tc.wantLevel)
			}
			if cfg.LLM.Model != "llama3.1" {
				t.Errorf("base values must survive the profile merge, got %s", cfg.LLM.Model)
			}
		})
	}
}

func TestLoadWithCLIOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "onyx.yaml")
	writeFile(t, path, "llm:\n  provider: ollama\n  model: model-a\n")
	t.Setenv("ONYX_LLM_PROVIDER", "openai")

	cfg, err := LoadWithCLI([]string{
		"serve",
		"--config", path,
		"--set", "llm.provider=anthropic",
		"--set=agent.verbose=true",
		"--set", "agent.max_concurrent=4",
		"--set", "telemetry.otlp_headers.x-api-key=secret-token",
		`--set`, `mcp.servers={"demo":{"transport":"http","url":"http://localhost:8080"}}`,
	})
	if err != nil {
		t.Fatalf("LoadWithCLI failed: %v", err)
	}
	if cfg.LLM.Provider != "anthropic" {
		t.Fatalf("expected cli override to beat env, got %s", cfg.LLM.Provider)
	}
	if cfg.LLM.Model != "model-a" {
		t.Fatalf("expected file value, got %s", cfg.LLM.Model)
	}
	if !cfg.Agent.Verbose || cfg.Agent.MaxConcurrent != 4 {
		t.Fatalf("unexpected agent overrides: %+v", cfg.Agent)
	}
	if cfg.Telemetry.OTLPHeaders["x-api-key"] != "secret-token" {
		t.Fatalf("expected header override, got %v", cfg.Telemetry.OTLPHeaders)
	}
	server, ok := cfg.MCP.Servers["demo"]
	if !ok || server.URL != "http://localhost:8080" || server.Transport != "http" {
		t.Fatalf("unexpected MCP server override: %+v", cfg.MCP.Servers)
	}
}

func TestParseCLIOverridesErrors(t *testing.T) {
	for _, args := range [][]string{
		{"--config"},
		{"--set"},
		{"--set", "invalid"},
		{"--set", "=value"},
	} {
		if _, err := parseCLIOverrides(args); err == nil {
			t.Fatalf("expected error for %v", args)
		}
	}
}

func TestProfileConfigPath(t *testing.T) {
	if got := ProfileConfigPath("/etc/onyx/config.yaml", "dev"); got != "/etc/onyx/config.dev.yaml" {
		t.Fatalf("unexpected profile path %s", got)
	}
}

func TestYAMLOmitsSecrets(t *testing.T) {
	cfg, err := LoadWith(Options{Overrides: []string{"llm.api_key=sk-secret", "discord.token=tok"}})
	if err != nil {
		t.Fatalf("LoadWith failed: %v", err)
	}
	if cfg.LLM.APIKey != "sk-secret" {
		t.Fatalf("override not applied")
	}
	out, err := cfg.YAML()
	if err != nil {
		t.Fatalf("YAML failed: %v", err)
	}
	if strings.Contains(string(out), "sk-secret") || strings.Contains(string(out), "tok\n") {
		t.Fatalf("secrets leaked into dump:\n%s", out)
	}
	if !strings.Contains(string(out), "max_step_retries: 3") {
		t.Fatalf("expected agent section in dump:\n%s", out)
	}
}
