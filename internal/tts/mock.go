package tts

import (
	"context"
	"strings"

	"github.com/loqalabs/loqa-narrator/internal/protocol"
)

const mockFrameSize = 320

var mockVoices = []Voice{
	{Name: "Microsoft Server Speech Text to Speech Voice (fr-FR, DeniseNeural)", ShortName: "fr-FR-DeniseNeural", Locale: "fr-FR", Gender: "Female"},
	{Name: "Microsoft Server Speech Text to Speech Voice (zh-CN, XiaoxiaoNeural)", ShortName: "zh-CN-XiaoxiaoNeural", Locale: "zh-CN", Gender: "Female"},
	{Name: "Microsoft Server Speech Text to Speech Voice (en-US, GuyNeural)", ShortName: "en-US-GuyNeural", Locale: "en-US", Gender: "Male"},
	{Name: "Microsoft Server Speech Text to Speech Voice (en-GB, SoniaNeural)", ShortName: "en-GB-SoniaNeural", Locale: "en-GB", Gender: "Female"},
	{Name: "Microsoft Server Speech Text to Speech Voice (en-US, AriaNeural)", ShortName: "en-US-AriaNeural", Locale: "en-US", Gender: "Female"},
}

type mockSynth struct {
	wordTicks int64
	gapTicks  int64
}

// NewMockSynth returns a deterministic synthesizer that emits one
// word-boundary and one audio frame per whitespace separated word.
func NewMockSynth(wordTicks, gapTicks int64) Synthesizer {
	return &mockSynth{wordTicks: wordTicks, gapTicks: gapTicks}
}

func (m *mockSynth) Synthesize(ctx context.Context, req SynthRequest) (<-chan protocol.StreamEvent, <-chan error) {
	events := make(chan protocol.StreamEvent)
	errs := make(chan error, 1)
	go func() {
		defer close(events)
		defer close(errs)

		offset := int64(0)
		for i, word := range strings.Fields(req.Text) {
			if err := ctx.Err(); err != nil {
				errs <- err
				return
			}
			frame := make([]byte, mockFrameSize)
			for j := range frame {
				frame[j] = byte(i)
			}
			batch := []protocol.StreamEvent{
				{Type: protocol.EventWordBoundary, Offset: offset, Duration: m.wordTicks, Text: word},
				{Type: protocol.EventAudio, Data: frame},
			}
			for _, evt := range batch {
				select {
				case <-ctx.Done():
					errs <- ctx.Err()
					return
				case events <- evt:
				}
			}
			offset += m.wordTicks + m.gapTicks
		}
	}()
	return events, errs
}

func (m *mockSynth) Voices(context.Context) ([]Voice, error) {
	return append([]Voice(nil), mockVoices...), nil
}
