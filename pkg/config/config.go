// Package config loads Onyx settings from defaults, a YAML file, ONYX_*
// environment variables and --set overrides, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment overrides.
const EnvPrefix = "ONYX_"

type Config struct {
	Log       LogConfig       `koanf:"log" yaml:"log"`
	Telemetry TelemetryConfig `koanf:"telemetry" yaml:"telemetry"`
	LLM       LLMConfig       `koanf:"llm" yaml:"llm"`
	Agent     AgentConfig     `koanf:"agent" yaml:"agent"`
	Pipeline  PipelineConfig  `koanf:"pipeline" yaml:"pipeline"`
	Records   RecordsConfig   `koanf:"records" yaml:"records"`
	History   HistoryConfig   `koanf:"history" yaml:"history"`
	Server    ServerConfig    `koanf:"server" yaml:"server"`
	Discord   DiscordConfig   `koanf:"discord" yaml:"discord"`
	Services  ServicesConfig  `koanf:"services" yaml:"services"`
	MCP       MCPConfig       `koanf:"mcp" yaml:"mcp"`
}

type LogConfig struct {
	Level  string `koanf:"level" yaml:"level"`
	Format string `koanf:"format" yaml:"format"` // json, text
}

type TelemetryConfig struct {
	Exporter           string            `koanf:"exporter" yaml:"exporter"` // none, stdout, otlp
	OTLPEndpoint       string            `koanf:"otlp_endpoint" yaml:"otlp_endpoint"`
	OTLPInsecure       bool              `koanf:"otlp_insecure" yaml:"otlp_insecure"`
	OTLPTimeoutSeconds int               `koanf:"otlp_timeout_seconds" yaml:"otlp_timeout_seconds"`
	OTLPHeaders        map[string]string `koanf:"otlp_headers" yaml:"otlp_headers,omitempty"`
}

type LLMConfig struct {
	Provider      string        `koanf:"provider" yaml:"provider"` // openai, anthropic, ollama, mock
	Model         string        `koanf:"model" yaml:"model"`
	PlanningModel string        `koanf:"planning_model" yaml:"planning_model"`
	BaseURL       string        `koanf:"base_url" yaml:"base_url"`
	APIKey        string        `koanf:"api_key" yaml:"-"`
	Timeout       time.Duration `koanf:"timeout" yaml:"timeout"`
	MaxRetries    int           `koanf:"max_retries" yaml:"max_retries"`
	// RateLimit is the sustained oracle calls per second; 0 disables limiting.
	RateLimit float64 `koanf:"rate_limit" yaml:"rate_limit"`
	Burst     int     `koanf:"burst" yaml:"burst"`
}

type AgentConfig struct {
	Verbose                bool `koanf:"verbose" yaml:"verbose"`
	MaxStepRetries         int  `koanf:"max_step_retries" yaml:"max_step_retries"`
	MaxSectionLength       int  `koanf:"max_section_length" yaml:"max_section_length"`
	AbortOnRequiredFailure bool `koanf:"abort_on_required_failure" yaml:"abort_on_required_failure"`
	// MaxConcurrent caps running agents; 0 means unlimited.
	MaxConcurrent int `koanf:"max_concurrent" yaml:"max_concurrent"`
}

type PipelineConfig struct {
	// HistoryWindow is how many recent messages the mode decision sees.
	HistoryWindow int `koanf:"history_window" yaml:"history_window"`
	// Verify asks whether a direct reply already covers the extracted actions.
	Verify bool `koanf:"verify" yaml:"verify"`
	// Planning generates one plan of action per message instead of one agent
	// per action group.
	Planning bool `koanf:"planning" yaml:"planning"`
}

type RecordsConfig struct {
	Dir        string   `koanf:"dir" yaml:"dir"`
	Formats    []string `koanf:"formats" yaml:"formats"`
	SQLitePath string   `koanf:"sqlite_path" yaml:"sqlite_path"`
}

type HistoryConfig struct {
	Backend     string `koanf:"backend" yaml:"backend"` // memory, file, redis
	Dir         string `koanf:"dir" yaml:"dir"`
	RedisURL    string `koanf:"redis_url" yaml:"redis_url"`
	MaxMessages int    `koanf:"max_messages" yaml:"max_messages"`
}

type ServerConfig struct {
	Addr string `koanf:"addr" yaml:"addr"`
}

type DiscordConfig struct {
	Token string `koanf:"token" yaml:"-"`
}

type ServicesConfig struct {
	File  FileServiceConfig  `koanf:"file" yaml:"file"`
	HTTP  HTTPServiceConfig  `koanf:"http" yaml:"http"`
	Email EmailServiceConfig `koanf:"email" yaml:"email"`
}

type FileServiceConfig struct {
	Enabled bool   `koanf:"enabled" yaml:"enabled"`
	Root    string `koanf:"root" yaml:"root"`
}

type HTTPServiceConfig struct {
	Enabled bool          `koanf:"enabled" yaml:"enabled"`
	Timeout time.Duration `koanf:"timeout" yaml:"timeout"`
}

type EmailServiceConfig struct {
	Enabled  bool   `koanf:"enabled" yaml:"enabled"`
	Host     string `koanf:"host" yaml:"host"`
	Port     int    `koanf:"port" yaml:"port"`
	Username string `koanf:"username" yaml:"username"`
	Password string `koanf:"password" yaml:"-"`
	From     string `koanf:"from" yaml:"from"`
}

type MCPConfig struct {
	Servers map[string]MCPServerConfig `koanf:"servers" yaml:"servers,omitempty"`
}

type MCPServerConfig struct {
	Transport string   `koanf:"transport" yaml:"transport"` // stdio, http
	Command   string   `koanf:"command" yaml:"command,omitempty"`
	Args      []string `koanf:"args" yaml:"args,omitempty"`
	URL       string   `koanf:"url" yaml:"url,omitempty"`
}

var defaults = map[string]any{
	"log.level":                       "info",
	"log.format":                      "text",
	"telemetry.exporter":              "none",
	"telemetry.otlp_insecure":         false,
	"telemetry.otlp_timeout_seconds":  10,
	"llm.provider":                    "ollama",
	"llm.model":                       "qwen2.5-coder:7b-instruct-q5_K_M",
	"llm.planning_model":              "",
	"llm.base_url":                    "",
	"llm.api_key":                     "",
	"llm.timeout":                     "60s",
	"llm.max_retries":                 2,
	"llm.rate_limit":                  0,
	"llm.burst":                       1,
	"agent.verbose":                   false,
	"agent.max_step_retries":          3,
	"agent.max_section_length":        100,
	"agent.abort_on_required_failure": true,
	"agent.max_concurrent":            0,
	"pipeline.history_window":         10,
	"pipeline.verify":                 false,
	"pipeline.planning":               false,
	"records.dir":                     "./data",
	"records.formats":                 []string{"md", "json"},
	"records.sqlite_path":             "",
	"history.backend":                 "memory",
	"history.dir":                     "./data/history",
	"history.redis_url":               "redis://localhost:6379/0",
	"history.max_messages":            500,
	"server.addr":                     ":8080",
	"discord.token":                   "",
	"services.file.enabled":           true,
	"services.file.root":              "./data/files",
	"services.http.enabled":           true,
	"services.http.timeout":           "30s",
	"services.email.enabled":          false,
	"services.email.host":             "",
	"services.email.port":             587,
	"services.email.username":         "",
	"services.email.password":         "",
	"services.email.from":             "",
}

// Options selects the sources of a load.
type Options struct {
	Path    string
	Profile string
	// Overrides are "key=value" pairs applied last. Values are parsed as
	// YAML, so numbers, booleans and JSON objects keep their type.
	Overrides []string
}

// Load reads the configuration at path (optional) with env overrides.
func Load(path string) (*Config, error) {
	return LoadWith(Options{Path: path})
}

// LoadWithProfile loads path and then its profile sibling
// (config.yaml + "dev" -> config.dev.yaml) when it exists.
func LoadWithProfile(path, profile string) (*Config, error) {
	return LoadWith(Options{Path: path, Profile: profile})
}

// LoadWithCLI parses --config, --profile (alias --env) and repeated --set
// flags from args and loads accordingly. Unknown arguments are ignored.
func LoadWithCLI(args []string) (*Config, error) {
	opts, err := parseCLIOverrides(args)
	if err != nil {
		return nil, err
	}
	return LoadWith(opts)
}

// LoadWith loads a configuration from opts.
func LoadWith(opts Options) (*Config, error) {
	k := koanf.New(".")
	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return nil, err
		}
	}

	if opts.Path != "" {
		if err := k.Load(file.Provider(opts.Path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load %s: %w", opts.Path, err)
		}
		if opts.Profile != "" {
			profilePath := ProfileConfigPath(opts.Path, opts.Profile)
			if _, err := os.Stat(profilePath); err == nil {
				if err := k.Load(file.Provider(profilePath), yaml.Parser()); err != nil {
					return nil, fmt.Errorf("load %s: %w", profilePath, err)
				}
			}
		}
	}

	// ONYX_AGENT_MAX_STEP_RETRIES -> agent.max_step_retries
	known := make(map[string]string, len(defaults))
	for key := range defaults {
		known[strings.ReplaceAll(key, ".", "_")] = key
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		name := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		if key, ok := known[name]; ok {
			return key
		}
		return strings.Replace(name, "_", ".", 1)
	}), nil); err != nil {
		return nil, err
	}

	for _, kv := range opts.Overrides {
		key, value, err := parseOverride(kv)
		if err != nil {
			return nil, err
		}
		if err := k.Set(key, value); err != nil {
			return nil, fmt.Errorf("apply override %q: %w", kv, err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ProfileConfigPath returns the profile-specific sibling of path.
func ProfileConfigPath(path, profile string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "." + profile + ext
}

func parseCLIOverrides(args []string) (Options, error) {
	var opts Options
	for i := 0; i < len(args); i++ {
		arg := args[i]
		name, value, hasValue := strings.Cut(arg, "=")
		switch name {
		case "--config", "--profile", "--env", "--set":
		default:
			continue
		}
		if !hasValue {
			if i+1 >= len(args) {
				return Options{}, fmt.Errorf("missing value for %s", name)
			}
			i++
			value = args[i]
		}
		switch name {
		case "--config":
			opts.Path = value
		case "--profile", "--env":
			opts.Profile = value
		case "--set":
			if _, _, err := parseOverride(value); err != nil {
				return Options{}, err
			}
			opts.Overrides = append(opts.Overrides, value)
		}
	}
	return opts, nil
}

func parseOverride(kv string) (string, any, error) {
	key, raw, ok := strings.Cut(kv, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return "", nil, fmt.Errorf("invalid override %q, want key=value", kv)
	}
	var value any
	if err := yamlv3.Unmarshal([]byte(raw), &value); err != nil || value == nil {
		value = raw
	}
	return key, value, nil
}

// YAML renders cfg without secrets.
func (c *Config) YAML() ([]byte, error) {
	return yamlv3.Marshal(c)
}
