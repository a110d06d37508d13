// Package ingest demultiplexes a synthesis stream into an audio sink and a
// subtitle cue builder.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/loqalabs/loqa-narrator/internal/protocol"
)

// ErrUnsupportedEventKind is returned for stream events with an unknown tag.
var ErrUnsupportedEventKind = errors.New("unsupported event kind")

// WordSink receives word-boundary events in stream order.
type WordSink interface {
	Ingest(evt protocol.StreamEvent) error
}

// Stats summarizes one consumed stream.
type Stats struct {
	AudioBytes     int64
	AudioChunks    int
	WordBoundaries int
}

// Run consumes events until the stream ends, writing audio payloads to audio
// and forwarding word boundaries to words. The first failure aborts the run;
// audio already written is left in place. Run does not buffer audio and does
// not start goroutines.
func Run(ctx context.Context, events <-chan protocol.StreamEvent, errs <-chan error, audio io.Writer, words WordSink) (Stats, error) {
	var stats Stats
	for events != nil || errs != nil {
		select {
		case evt, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if err := route(evt, audio, words, &stats); err != nil {
				return stats, err
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil {
				return stats, fmt.Errorf("synthesis stream: %w", err)
			}
		case <-ctx.Done():
			return stats, ctx.Err()
		}
	}
	return stats, nil
}

func route(evt protocol.StreamEvent, audio io.Writer, words WordSink, stats *Stats) error {
	switch evt.Type {
	case protocol.EventAudio:
		n, err := audio.Write(evt.Data)
		stats.AudioBytes += int64(n)
		if err != nil {
			return fmt.Errorf("write audio: %w", err)
		}
		if n != len(evt.Data) {
			return fmt.Errorf("write audio: %w", io.ErrShortWrite)
		}
		stats.AudioChunks++
	case protocol.EventWordBoundary:
		if err := words.Ingest(evt); err != nil {
			return fmt.Errorf("word boundary at offset %d: %w", evt.Offset, err)
		}
		stats.WordBoundaries++
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedEventKind, evt.Type)
	}
	return nil
}
