package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func runCLI(t *testing.T, args []string, stdin string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "narrator.yaml")
	content := "tts:\n  mode: mock\n  word_ticks: 1000000\n  gap_ticks: 0\njobs:\n  output_dir: " + filepath.Join(dir, "out") + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestSynthWritesAudioAndSubtitles(t *testing.T) {
	cfgPath := writeConfig(t)
	audio := filepath.Join(t.TempDir(), "hello.mp3")

	out, _, err := runCLI(t, []string{"--config", cfgPath, "synth", "--out", audio, "--voice", "en-US-GuyNeural", "Hello world today。"}, "")
	if err != nil {
		t.Fatalf("synth: %v", err)
	}
	requireContains(t, out, audio)
	requireContains(t, out, "1 cue, 3 words")

	srt, err := os.ReadFile(strings.TrimSuffix(audio, ".mp3") + ".srt")
	if err != nil {
		t.Fatalf("read srt: %v", err)
	}
	want := "1\n00:00:00,000 --> 00:00:00,300\nHello world today.\n\n"
	if string(srt) != want {
		t.Fatalf("unexpected srt %q", srt)
	}
}

func TestSynthReadsStdinAndHonoursMaxWords(t *testing.T) {
	cfgPath := writeConfig(t)
	audio := filepath.Join(t.TempDir(), "stdin.mp3")

	out, _, err := runCLI(t, []string{"--config", cfgPath, "synth", "-f", "-", "-o", audio, "--max-words", "2"}, "a b c d e")
	if err != nil {
		t.Fatalf("synth: %v", err)
	}
	requireContains(t, out, "3 cues, 5 words")
}

func TestSynthRejectsBadInput(t *testing.T) {
	cfgPath := writeConfig(t)
	cases := map[string][]string{
		"no text":       {"--config", cfgPath, "synth"},
		"two sources":   {"--config", cfgPath, "synth", "--text", "a", "b"},
		"unknown voice": {"--config", cfgPath, "synth", "--voice", "xx-XX-Nobody", "hello"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			if _, _, err := runCLI(t, args, ""); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestVoicesListsSortedTSV(t *testing.T) {
	cfgPath := writeConfig(t)
	out, _, err := runCLI(t, []string{"--config", cfgPath, "voices"}, "")
	if err != nil {
		t.Fatalf("voices: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 6 {
		t.Fatalf("expected header and 5 voices, got %q", out)
	}
	if lines[0] != "Voice\tLocale\tGender" || !strings.HasPrefix(lines[1], "en-US-AriaNeural\t") {
		t.Fatalf("unexpected listing %q", out)
	}

	out, _, err = runCLI(t, []string{"--config", cfgPath, "voices", "--locale", "zh-CN"}, "")
	if err != nil {
		t.Fatalf("voices --locale: %v", err)
	}
	if strings.Count(out, "\n") != 2 {
		t.Fatalf("expected a single zh-CN voice, got %q", out)
	}
}

func TestInspectSummarizesCues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.srt")
	srt := "1\n00:00:00,000 --> 00:00:01,500\nHello there\n\n2\n00:00:01,500 --> 00:00:02,250\nfriend\n\n"
	if err := os.WriteFile(path, []byte(srt), 0o644); err != nil {
		t.Fatalf("write srt: %v", err)
	}
	out, _, err := runCLI(t, []string{"inspect", path}, "")
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	requireContains(t, out, "1\t00:00:00,000\t00:00:01,500\t2\tHello there")
	requireContains(t, out, "2 cues, 3 words, ends at 00:00:02,250")
}

func TestVersion(t *testing.T) {
	out, _, err := runCLI(t, []string{"version"}, "")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	requireContains(t, out, version)
}
