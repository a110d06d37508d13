package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bus.Servers[0] != "nats://localhost:4222" {
		t.Fatalf("expected default server, got %v", cfg.Bus.Servers)
	}
	if cfg.Subtitles.MaxWordsPerCue != 5 {
		t.Fatalf("expected 5 words per cue, got %d", cfg.Subtitles.MaxWordsPerCue)
	}
	if cfg.TTS.Mode != "mock" {
		t.Fatalf("expected mock tts mode, got %q", cfg.TTS.Mode)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "narrator.yaml")
	data := []byte(`runtime_name: narrator-test
tts:
  mode: exec
  command: "edge-tts-bridge --rate +0%"
  voice: zh-CN-XiaoxiaoNeural
subtitles:
  max_words_per_cue: 8
jobs:
  output_dir: /tmp/narrator
  audio_extension: .ogg
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RuntimeName != "narrator-test" {
		t.Fatalf("unexpected runtime name %q", cfg.RuntimeName)
	}
	if cfg.TTS.Command != "edge-tts-bridge --rate +0%" {
		t.Fatalf("unexpected tts command %q", cfg.TTS.Command)
	}
	if cfg.Subtitles.MaxWordsPerCue != 8 {
		t.Fatalf("expected 8 words per cue, got %d", cfg.Subtitles.MaxWordsPerCue)
	}
	if cfg.Jobs.AudioExtension != ".ogg" {
		t.Fatalf("unexpected audio extension %q", cfg.Jobs.AudioExtension)
	}
	if cfg.HTTP.Port != 8080 {
		t.Fatalf("expected default http port to survive partial file, got %d", cfg.HTTP.Port)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LOQA_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("LOQA_BUS_USERNAME", "alice")
	t.Setenv("LOQA_BUS_PASSWORD", "secret")
	t.Setenv("LOQA_BUS_TLS_INSECURE", "true")
	t.Setenv("LOQA_BUS_CONNECT_TIMEOUT_MS", "5000")
	t.Setenv("LOQA_EVENT_STORE_PATH", "./tmp.db")
	t.Setenv("LOQA_EVENT_STORE_RETENTION_MODE", "persistent")
	t.Setenv("LOQA_EVENT_STORE_RETENTION_DAYS", "7")
	t.Setenv("LOQA_EVENT_STORE_MAX_JOBS", "123")
	t.Setenv("LOQA_EVENT_STORE_VACUUM_ON_START", "true")
	t.Setenv("LOQA_TTS_VOICE", "en-GB-SoniaNeural")
	t.Setenv("LOQA_TTS_WORD_TICKS", "1000000")
	t.Setenv("LOQA_SUBTITLES_MAX_WORDS_PER_CUE", "3")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Bus.Username != "alice" || cfg.Bus.Password != "secret" {
		t.Fatalf("expected credentials override")
	}
	if !cfg.Bus.TLSInsecure {
		t.Fatal("expected tls insecure override true")
	}
	if cfg.Bus.ConnectTimeout != 5000 {
		t.Fatalf("expected timeout 5000, got %d", cfg.Bus.ConnectTimeout)
	}
	if cfg.EventStore.Path != "./tmp.db" {
		t.Fatalf("expected event store path override")
	}
	if cfg.EventStore.RetentionMode != "persistent" {
		t.Fatalf("expected event store retention mode override")
	}
	if cfg.EventStore.RetentionDays != 7 {
		t.Fatalf("expected event store retention days override")
	}
	if cfg.EventStore.MaxJobs != 123 {
		t.Fatalf("expected event store max jobs override")
	}
	if !cfg.EventStore.VacuumOnStart {
		t.Fatalf("expected event store vacuum flag override")
	}
	if cfg.TTS.Voice != "en-GB-SoniaNeural" {
		t.Fatalf("expected voice override, got %q", cfg.TTS.Voice)
	}
	if cfg.TTS.WordTicks != 1000000 {
		t.Fatalf("expected word ticks override, got %d", cfg.TTS.WordTicks)
	}
	if cfg.Subtitles.MaxWordsPerCue != 3 {
		t.Fatalf("expected max words override, got %d", cfg.Subtitles.MaxWordsPerCue)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(*Config){
		"exec without command": func(c *Config) { c.TTS.Mode = "exec"; c.TTS.Command = "" },
		"unknown tts mode":     func(c *Config) { c.TTS.Mode = "cloud" },
		"zero words per cue":   func(c *Config) { c.Subtitles.MaxWordsPerCue = 0 },
		"bad retention":        func(c *Config) { c.EventStore.RetentionMode = "forever" },
		"bad log level":        func(c *Config) { c.Telemetry.LogLevel = "verbose" },
		"extension no dot":     func(c *Config) { c.Jobs.AudioExtension = "mp3" },
		"no servers":           func(c *Config) { c.Bus.Embedded = false; c.Bus.Servers = nil },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			if err := validate(cfg); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestValidateSkipsBusWhenDisabled(t *testing.T) {
	cfg := Default()
	cfg.Bus.Enabled = false
	cfg.Bus.Embedded = false
	cfg.Bus.Servers = nil
	if err := validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
