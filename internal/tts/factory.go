package tts

import (
	"fmt"

	"github.com/loqalabs/loqa-narrator/internal/config"
)

// New builds the synthesizer selected by cfg.Mode.
func New(cfg config.TTSConfig) (Synthesizer, error) {
	switch cfg.Mode {
	case "mock":
		return NewMockSynth(cfg.WordTicks, cfg.GapTicks), nil
	case "exec":
		return NewExecSynth(cfg.Command)
	default:
		return nil, fmt.Errorf("unsupported tts mode %q", cfg.Mode)
	}
}
