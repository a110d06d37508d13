package job

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/gofrs/flock"

	"github.com/loqalabs/loqa-narrator/internal/eventstore"
	"github.com/loqalabs/loqa-narrator/internal/ingest"
	"github.com/loqalabs/loqa-narrator/internal/protocol"
	"github.com/loqalabs/loqa-narrator/internal/tts"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type memoryJournal struct {
	mu     sync.Mutex
	jobs   []eventstore.Job
	events []string
}

func (m *memoryJournal) AppendJob(_ context.Context, job eventstore.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs = append(m.jobs, job)
	return nil
}

func (m *memoryJournal) Record(_ context.Context, _, _, eventType string, _ any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, eventType)
	return nil
}

func (m *memoryJournal) types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.events...)
}

// scriptedSynth replays a fixed event list.
type scriptedSynth struct {
	events []protocol.StreamEvent
}

func (s scriptedSynth) Synthesize(ctx context.Context, _ tts.SynthRequest) (<-chan protocol.StreamEvent, <-chan error) {
	out := make(chan protocol.StreamEvent)
	errs := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errs)
		for _, evt := range s.events {
			select {
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			case out <- evt:
			}
		}
	}()
	return out, errs
}

func (scriptedSynth) Voices(context.Context) ([]tts.Voice, error) { return nil, nil }

func newTestRunner(t *testing.T, synth tts.Synthesizer, journal Journal) *Runner {
	t.Helper()
	return NewRunner(synth, journal, Options{
		MaxWordsPerCue: 5,
		DefaultVoice:   "en-US-AriaNeural",
		OutputDir:      t.TempDir(),
		AudioExtension: ".mp3",
	}, newLogger())
}

func TestRunnerWritesAudioAndSubtitles(t *testing.T) {
	journal := &memoryJournal{}
	runner := newTestRunner(t, tts.NewMockSynth(1_000_000, 0), journal)
	audioPath := filepath.Join(t.TempDir(), "nested", "greeting.mp3")

	result, err := runner.Run(context.Background(), Request{Text: "Hello world today", AudioPath: audioPath})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.ID == "" {
		t.Fatal("expected a job id to be assigned")
	}
	if result.AudioBytes != 3*320 || result.WordCount != 3 || result.CueCount != 1 {
		t.Fatalf("unexpected result %+v", result)
	}

	audio, err := os.ReadFile(audioPath)
	if err != nil {
		t.Fatalf("read audio: %v", err)
	}
	if int64(len(audio)) != result.AudioBytes {
		t.Fatalf("audio file has %d bytes, result says %d", len(audio), result.AudioBytes)
	}

	if result.SubtitlePath != strings.TrimSuffix(audioPath, ".mp3")+".srt" {
		t.Fatalf("unexpected subtitle path %s", result.SubtitlePath)
	}
	srt, err := os.ReadFile(result.SubtitlePath)
	if err != nil {
		t.Fatalf("read subtitles: %v", err)
	}
	want := "1\n00:00:00,000 --> 00:00:00,300\nHello world today\n\n"
	if string(srt) != want {
		t.Fatalf("unexpected srt %q", srt)
	}

	got := journal.types()
	if len(got) != 2 || got[0] != eventstore.TypeJobStarted || got[1] != eventstore.TypeJobCompleted {
		t.Fatalf("unexpected journal events %v", got)
	}
	if len(journal.jobs) != 1 || journal.jobs[0].Voice != "en-US-AriaNeural" {
		t.Fatalf("unexpected journaled jobs %+v", journal.jobs)
	}
}

func TestRunnerFailureKeepsPartialAudio(t *testing.T) {
	journal := &memoryJournal{}
	synth := scriptedSynth{events: []protocol.StreamEvent{
		{Type: protocol.EventAudio, Data: []byte("partial")},
		{Type: protocol.EventWordBoundary, Offset: 0, Duration: 10, Text: "Hi"},
		{Type: "SentenceBoundary", Text: "Hi."},
	}}
	runner := newTestRunner(t, synth, journal)
	audioPath := filepath.Join(t.TempDir(), "out.mp3")

	result, err := runner.Run(context.Background(), Request{Text: "Hi.", AudioPath: audioPath})
	if !errors.Is(err, ingest.ErrUnsupportedEventKind) {
		t.Fatalf("expected ErrUnsupportedEventKind, got %v", err)
	}
	if result.AudioBytes != int64(len("partial")) {
		t.Fatalf("unexpected audio bytes %d", result.AudioBytes)
	}
	audio, err := os.ReadFile(audioPath)
	if err != nil {
		t.Fatalf("partial audio should remain: %v", err)
	}
	if string(audio) != "partial" {
		t.Fatalf("unexpected audio %q", audio)
	}
	if _, err := os.Stat(SubtitlePath(audioPath)); !os.IsNotExist(err) {
		t.Fatalf("no subtitle file should be written, stat err=%v", err)
	}
	got := journal.types()
	if len(got) != 2 || got[1] != eventstore.TypeJobFailed {
		t.Fatalf("unexpected journal events %v", got)
	}
}

func TestRunnerRejectsInvalidRequests(t *testing.T) {
	runner := NewRunner(tts.NewMockSynth(1, 0), nil, Options{}, newLogger())
	cases := map[string]Request{
		"empty text": {Text: "   ", Voice: "v", AudioPath: "out.mp3"},
		"no voice":   {Text: "hello", AudioPath: "out.mp3"},
		"no output":  {Text: "hello", Voice: "v"},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := runner.Run(context.Background(), req); !errors.Is(err, ErrInvalidRequest) {
				t.Fatalf("expected ErrInvalidRequest, got %v", err)
			}
		})
	}
}

func TestRunnerRejectsLockedOutput(t *testing.T) {
	runner := newTestRunner(t, tts.NewMockSynth(1_000_000, 0), nil)
	audioPath := filepath.Join(t.TempDir(), "locked.mp3")

	held := flock.New(lockPath(audioPath))
	locked, err := held.TryLock()
	if err != nil || !locked {
		t.Fatalf("failed to hold lock: locked=%v err=%v", locked, err)
	}
	t.Cleanup(func() { _ = held.Unlock() })

	if _, err := runner.Run(context.Background(), Request{Text: "hello", AudioPath: audioPath}); !errors.Is(err, ErrOutputBusy) {
		t.Fatalf("expected ErrOutputBusy, got %v", err)
	}
	if _, err := os.Stat(audioPath); !os.IsNotExist(err) {
		t.Fatalf("audio file should not be created while locked, stat err=%v", err)
	}
}

func TestPrepareAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	runner := NewRunner(tts.NewMockSynth(1, 0), nil, Options{DefaultVoice: "en-US-GuyNeural", OutputDir: dir}, newLogger())

	req, err := runner.Prepare(Request{Text: "  你好。  "})
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if req.ID == "" {
		t.Fatal("expected generated id")
	}
	if req.Text != "你好." {
		t.Fatalf("text not normalized: %q", req.Text)
	}
	if req.Voice != "en-US-GuyNeural" {
		t.Fatalf("unexpected voice %s", req.Voice)
	}
	if req.AudioPath != filepath.Join(dir, req.ID+".mp3") {
		t.Fatalf("unexpected audio path %s", req.AudioPath)
	}

	again, err := runner.Prepare(req)
	if err != nil || again != req {
		t.Fatalf("prepare should be idempotent: %+v %v", again, err)
	}
}

func TestSubtitlePath(t *testing.T) {
	cases := map[string]string{
		"out/speech.mp3":  "out/speech.srt",
		"speech":          "speech.srt",
		"a.b/speech.webm": "a.b/speech.srt",
	}
	for in, want := range cases {
		if got := SubtitlePath(in); got != want {
			t.Fatalf("SubtitlePath(%q) = %q, want %q", in, got, want)
		}
	}
}
