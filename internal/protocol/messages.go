package protocol

import "time"

// Stream event tags emitted by speech synthesizers.
const (
	EventAudio        = "audio"
	EventWordBoundary = "word-boundary"
)

// StreamEvent is one item of a synthesis stream. Audio events carry Data;
// word-boundary events carry Offset, Duration and Text, with times in
// 100ns ticks relative to stream start.
type StreamEvent struct {
	Type     string `json:"type"`
	Data     []byte `json:"data,omitempty"`
	Offset   int64  `json:"offset,omitempty"`
	Duration int64  `json:"duration,omitempty"`
	Text     string `json:"text,omitempty"`
}

// SynthesisRequest asks the narrator to render text into audio and subtitles.
type SynthesisRequest struct {
	JobID     string `json:"job_id,omitempty"`
	Text      string `json:"text"`
	Voice     string `json:"voice,omitempty"`
	AudioPath string `json:"audio_path,omitempty"`
	TraceID   string `json:"trace_id,omitempty"`
}

// Job states reported in JobStatus.
const (
	JobAccepted  = "accepted"
	JobRejected  = "rejected"
	JobSucceeded = "succeeded"
	JobFailed    = "failed"
)

// JobStatus is published whenever a job changes state.
type JobStatus struct {
	JobID        string    `json:"job_id"`
	State        string    `json:"state"`
	Error        string    `json:"error,omitempty"`
	AudioPath    string    `json:"audio_path,omitempty"`
	SubtitlePath string    `json:"subtitle_path,omitempty"`
	AudioBytes   int64     `json:"audio_bytes,omitempty"`
	CueCount     int       `json:"cue_count,omitempty"`
	TraceID      string    `json:"trace_id,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

const (
	SubjectJobRequest = "tts.job.request"
	SubjectJobStatus  = "tts.job.status"
)
