package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_OverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `{
		"general": {"model": "deepseek-chat", "maxIterations": 5}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.General.Model != "deepseek-chat" {
		t.Fatalf("model = %q", cfg.General.Model)
	}
	if cfg.General.MaxIterations != 5 {
		t.Fatalf("maxIterations = %d", cfg.General.MaxIterations)
	}
	// Untouched fields keep their defaults.
	if cfg.General.MaxHistory != Defaults().General.MaxHistory {
		t.Fatalf("maxHistory = %d", cfg.General.MaxHistory)
	}
	if !cfg.Channels.CLI.Enabled {
		t.Fatal("cli channel should default to enabled")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	path := writeConfig(t, `{not json`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	t.Setenv("NANOBOT_TEST_TOKEN", "tok-12345")
	path := writeConfig(t, `{
		"channels": {"telegram": {"enabled": true, "token": "${NANOBOT_TEST_TOKEN}"}}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Channels.Telegram.Token != "tok-12345" {
		t.Fatalf("token = %q", cfg.Channels.Telegram.Token)
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("NANOBOT_SET", "value")
	os.Unsetenv("NANOBOT_UNSET")

	cases := []struct {
		in, want string
	}{
		{"${NANOBOT_SET}", "value"},
		{"prefix-${NANOBOT_SET}-suffix", "prefix-value-suffix"},
		{"${NANOBOT_UNSET:-fallback}", "fallback"},
		{"${NANOBOT_SET:-fallback}", "value"},
		{"${NANOBOT_UNSET}", "${NANOBOT_UNSET}"},
		{"no vars here", "no vars here"},
	}
	for _, tc := range cases {
		if got := ExpandEnvVars(tc.in); got != tc.want {
			t.Errorf("ExpandEnvVars(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestValidate_Boundaries(t *testing.T) {
	ok := func() *Config { return Defaults() }

	cases := []struct {
		name   string
		mutate func(*Config)
		errHas string
	}{
		{"empty model", func(c *Config) { c.General.Model = "" }, "general.model"},
		{"iterations too low", func(c *Config) { c.General.MaxIterations = 0 }, "maxIterations"},
		{"iterations too high", func(c *Config) { c.General.MaxIterations = 201 }, "maxIterations"},
		{"history too low", func(c *Config) { c.General.MaxHistory = 0 }, "maxHistory"},
		{"concurrency too high", func(c *Config) { c.General.MaxConcurrentMessages = 101 }, "maxConcurrentMessages"},
		{"shell timeout", func(c *Config) { c.Tools.Shell.TimeoutSeconds = 0 }, "timeoutSeconds"},
		{"websocket port", func(c *Config) { c.Channels.WebSocket.Port = 70000 }, "websocket.port"},
		{"api port", func(c *Config) { c.API.Port = -1 }, "api.port"},
	}
	for _, tc := range cases {
		cfg := ok()
		tc.mutate(cfg)
		err := Validate(cfg)
		if err == nil {
			t.Errorf("%s: expected validation error", tc.name)
			continue
		}
		if !strings.Contains(err.Error(), tc.errHas) {
			t.Errorf("%s: error %q missing %q", tc.name, err.Error(), tc.errHas)
		}
	}

	if err := Validate(ok()); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	cfg := Defaults()
	cfg.General.Model = "qwen-max"
	cfg.Channels.Telegram.Enabled = true
	cfg.Channels.Telegram.Token = "abc"

	path := filepath.Join(t.TempDir(), "sub", "config.json")
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.General.Model != "qwen-max" || !loaded.Channels.Telegram.Enabled {
		t.Fatalf("loaded = %+v", loaded.General)
	}
}

func TestGetByPath(t *testing.T) {
	cfg := Defaults()
	cfg.General.Model = "glm-4.6"

	got, err := GetByPath(cfg, "general.model")
	if err != nil {
		t.Fatalf("GetByPath: %v", err)
	}
	if got != "glm-4.6" {
		t.Fatalf("got = %v", got)
	}

	if _, err := GetByPath(cfg, "general.nonsense"); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestSetByPath_TypeCoercion(t *testing.T) {
	cfg := Defaults()

	if err := SetByPath(cfg, "general.maxIterations", "12"); err != nil {
		t.Fatalf("SetByPath: %v", err)
	}
	if cfg.General.MaxIterations != 12 {
		t.Fatalf("maxIterations = %d", cfg.General.MaxIterations)
	}

	if err := SetByPath(cfg, "channels.telegram.enabled", "true"); err != nil {
		t.Fatalf("SetByPath: %v", err)
	}
	if !cfg.Channels.Telegram.Enabled {
		t.Fatal("enabled not set")
	}

	if err := SetByPath(cfg, "general.model", "moonshot-v1-8k"); err != nil {
		t.Fatalf("SetByPath: %v", err)
	}
	if cfg.General.Model != "moonshot-v1-8k" {
		t.Fatalf("model = %q", cfg.General.Model)
	}
}

func TestSanitize_MasksSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Channels.Telegram.Token = "1234567890:AAH-longtelegramtoken"
	cfg.Channels.Slack.BotToken = "short"
	cfg.API.APIKey = "sk-verysecretapikey"

	clean := Sanitize(cfg)
	if clean.Channels.Telegram.Token == cfg.Channels.Telegram.Token {
		t.Fatal("telegram token not masked")
	}
	if !strings.HasPrefix(clean.Channels.Telegram.Token, "1234") {
		t.Fatalf("mask = %q", clean.Channels.Telegram.Token)
	}
	if clean.Channels.Slack.BotToken != "***" {
		t.Fatalf("short token mask = %q", clean.Channels.Slack.BotToken)
	}
	// Original untouched.
	if cfg.API.APIKey != "sk-verysecretapikey" {
		t.Fatal("Sanitize mutated the original")
	}
}

func TestExpandPath_Home(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir")
	}
	if got := ExpandPath("~/x/y"); got != filepath.Join(home, "x", "y") {
		t.Fatalf("got = %q", got)
	}
	if got := ExpandPath("/abs/path"); got != "/abs/path" {
		t.Fatalf("got = %q", got)
	}
}
