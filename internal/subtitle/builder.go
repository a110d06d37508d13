package subtitle

import (
	"errors"
	"fmt"

	"github.com/loqalabs/loqa-narrator/internal/protocol"
)

var (
	// ErrInvalidEventType is returned when Ingest receives anything other
	// than a well-formed word-boundary event.
	ErrInvalidEventType = errors.New("invalid event type")
	// ErrFinalized is returned when Ingest is called after MergeAdjacent.
	ErrFinalized = errors.New("cue builder finalized")
)

// Phase tracks where a Builder is in its lifecycle.
type Phase int

const (
	PhaseAccumulating Phase = iota
	PhaseFinalized
)

func (p Phase) String() string {
	switch p {
	case PhaseAccumulating:
		return "accumulating"
	case PhaseFinalized:
		return "finalized"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Builder turns word-boundary events into subtitle cues. A Builder serves a
// single synthesis job and is not safe for concurrent use.
type Builder struct {
	maxWords int
	phase    Phase
	cues     []Cue
}

// NewBuilder returns a Builder that merges cues up to maxWords words.
// Values below 1 select DefaultMaxWordsPerCue.
func NewBuilder(maxWords int) *Builder {
	if maxWords < 1 {
		maxWords = DefaultMaxWordsPerCue
	}
	return &Builder{maxWords: maxWords}
}

// Ingest appends one raw cue for a word-boundary event.
func (b *Builder) Ingest(evt protocol.StreamEvent) error {
	if evt.Type != protocol.EventWordBoundary {
		return fmt.Errorf("%w: expected %q, got %q", ErrInvalidEventType, protocol.EventWordBoundary, evt.Type)
	}
	return b.IngestWord(WordBoundary{Offset: evt.Offset, Duration: evt.Duration, Text: evt.Text})
}

// IngestWord is Ingest for an already decoded word boundary.
func (b *Builder) IngestWord(wb WordBoundary) error {
	if b.phase == PhaseFinalized {
		return ErrFinalized
	}
	if wb.Offset < 0 || wb.Duration < 0 {
		return fmt.Errorf("%w: negative ticks (offset=%d duration=%d)", ErrInvalidEventType, wb.Offset, wb.Duration)
	}
	b.cues = append(b.cues, Cue{
		Index:   len(b.cues) + 1,
		Start:   TicksToDuration(wb.Offset),
		End:     TicksToDuration(wb.Offset + wb.Duration),
		Content: wb.Text,
	})
	return nil
}

// MergeAdjacent merges neighbouring cues in place and finalizes the builder.
func (b *Builder) MergeAdjacent() {
	b.cues = Merge(b.cues, b.maxWords)
	b.phase = PhaseFinalized
}

// Serialize renders the current cue list as SRT. It does not merge.
func (b *Builder) Serialize() string {
	return Format(b.cues)
}

// Cues returns a copy of the current cue list.
func (b *Builder) Cues() []Cue {
	return append([]Cue(nil), b.cues...)
}

func (b *Builder) Len() int { return len(b.cues) }

func (b *Builder) Phase() Phase { return b.phase }

// Merge folds cues left to right. The accumulator absorbs the next cue while
// it holds fewer than maxWords words, so a merged cue can overshoot maxWords
// by the size of the last cue absorbed. Merged cues keep the first cue's
// index and start.
func Merge(cues []Cue, maxWords int) []Cue {
	if len(cues) == 0 {
		return nil
	}
	if maxWords < 1 {
		maxWords = DefaultMaxWordsPerCue
	}

	merged := make([]Cue, 0, len(cues))
	current := cues[0]
	for _, cue := range cues[1:] {
		if WordCount(current.Content) < maxWords {
			current = Cue{
				Index:   current.Index,
				Start:   current.Start,
				End:     cue.End,
				Content: current.Content + " " + cue.Content,
			}
			continue
		}
		merged = append(merged, current)
		current = cue
	}
	return append(merged, current)
}
