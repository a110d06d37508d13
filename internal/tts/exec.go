package tts

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	"github.com/loqalabs/loqa-narrator/internal/protocol"
	"github.com/mattn/go-shellwords"
)

// maxEventLine bounds one NDJSON event; audio chunks arrive base64 encoded.
const maxEventLine = 4 << 20

type execSynth struct {
	cmd []string
}

type execRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

// NewExecSynth drives an external TTS bridge. The command receives a JSON
// request on stdin and writes one JSON stream event per line to stdout.
// Invoked with --list-voices it must print a JSON array of voices.
func NewExecSynth(command string) (Synthesizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse tts command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("tts command empty")
	}
	return &execSynth{cmd: args}, nil
}

func (e *execSynth) Synthesize(ctx context.Context, req SynthRequest) (<-chan protocol.StreamEvent, <-chan error) {
	events := make(chan protocol.StreamEvent)
	errs := make(chan error, 1)
	go func() {
		defer close(events)
		defer close(errs)

		data, err := json.Marshal(execRequest{Text: req.Text, Voice: req.Voice})
		if err != nil {
			errs <- err
			return
		}

		cmd := exec.CommandContext(ctx, e.cmd[0], e.cmd[1:]...)
		cmd.Stdin = bytes.NewReader(data)
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			errs <- err
			return
		}
		if err := cmd.Start(); err != nil {
			errs <- fmt.Errorf("start tts command: %w", err)
			return
		}

		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 64*1024), maxEventLine)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			var evt protocol.StreamEvent
			if err := json.Unmarshal(line, &evt); err != nil {
				errs <- fmt.Errorf("decode tts event: %w", err)
				_ = cmd.Process.Kill()
				_ = cmd.Wait()
				return
			}
			select {
			case <-ctx.Done():
				errs <- ctx.Err()
				_ = cmd.Wait()
				return
			case events <- evt:
			}
		}
		scanErr := scanner.Err()
		if scanErr != nil {
			_ = cmd.Process.Kill()
		}
		if err := cmd.Wait(); err != nil {
			errs <- fmt.Errorf("tts command failed: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
			return
		}
		if scanErr != nil {
			errs <- fmt.Errorf("read tts output: %w", scanErr)
		}
	}()
	return events, errs
}

func (e *execSynth) Voices(ctx context.Context) ([]Voice, error) {
	args := append(append([]string{}, e.cmd[1:]...), "--list-voices")
	cmd := exec.CommandContext(ctx, e.cmd[0], args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("list voices failed: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}
	var voices []Voice
	if err := json.Unmarshal(stdout.Bytes(), &voices); err != nil {
		return nil, fmt.Errorf("decode voices: %w", err)
	}
	return voices, nil
}
