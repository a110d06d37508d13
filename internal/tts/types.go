package tts

import (
	"context"

	"github.com/loqalabs/loqa-narrator/internal/protocol"
)

// SynthRequest contains parameters to synthesize speech.
type SynthRequest struct {
	JobID string
	Text  string
	Voice string
}

// Voice describes one selectable synthesizer voice.
type Voice struct {
	Name      string `json:"Name"`
	ShortName string `json:"ShortName"`
	Locale    string `json:"Locale,omitempty"`
	Gender    string `json:"Gender,omitempty"`
}

// Synthesizer is the contract for producing a synthesis stream. Events are
// delivered in stream order; the event channel closes when the stream ends and
// at most one error is sent before the error channel closes.
type Synthesizer interface {
	Synthesize(ctx context.Context, req SynthRequest) (<-chan protocol.StreamEvent, <-chan error)
	Voices(ctx context.Context) ([]Voice, error)
}
