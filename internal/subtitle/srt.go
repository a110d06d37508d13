package subtitle

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const timingSeparator = " --> "

// Format renders cues as an SRT document. Records are renumbered from 1 in
// list order; cues with blank content are dropped since SRT cannot express
// them. Cues with zero or negative duration are kept so no word timing is
// lost. Every record, including the last, ends with a blank line.
func Format(cues []Cue) string {
	var sb strings.Builder
	index := 1
	for _, cue := range cues {
		content := legalContent(cue.Content)
		if strings.TrimSpace(content) == "" {
			continue
		}
		sb.WriteString(strconv.Itoa(index))
		sb.WriteByte('\n')
		sb.WriteString(FormatTimestamp(cue.Start))
		sb.WriteString(timingSeparator)
		sb.WriteString(FormatTimestamp(cue.End))
		sb.WriteByte('\n')
		sb.WriteString(content)
		sb.WriteString("\n\n")
		index++
	}
	return sb.String()
}

// legalContent removes blank lines, which would otherwise end the record early.
func legalContent(content string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	if !strings.Contains(content, "\n") {
		return content
	}
	lines := strings.Split(content, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

// FormatTimestamp renders d as HH:MM:SS,mmm, truncating to milliseconds.
// Negative durations clamp to zero; hours are not capped at 99.
func FormatTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := int64(d / time.Hour)
	d -= time.Duration(h) * time.Hour
	m := int64(d / time.Minute)
	d -= time.Duration(m) * time.Minute
	s := int64(d / time.Second)
	d -= time.Duration(s) * time.Second
	ms := int64(d / time.Millisecond)
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// ParseTimestamp parses HH:MM:SS,mmm. A period is accepted in place of the comma.
func ParseTimestamp(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, errors.New("empty timestamp")
	}
	value = strings.Replace(value, ".", ",", 1)
	hmsMillis := strings.Split(value, ",")
	if len(hmsMillis) != 2 {
		return 0, fmt.Errorf("invalid timestamp %q: missing millis", value)
	}
	hms := strings.Split(hmsMillis[0], ":")
	if len(hms) != 3 {
		return 0, fmt.Errorf("invalid timestamp %q: expected h:m:s", value)
	}
	parts := make([]int, 0, 4)
	for _, field := range append(hms, hmsMillis[1]) {
		n, err := strconv.Atoi(field)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid timestamp %q", value)
		}
		parts = append(parts, n)
	}
	return time.Duration(parts[0])*time.Hour +
		time.Duration(parts[1])*time.Minute +
		time.Duration(parts[2])*time.Second +
		time.Duration(parts[3])*time.Millisecond, nil
}

// Parse reads an SRT document. Index lines are kept as written; multi-line
// content is joined with "\n".
func Parse(data []byte) ([]Cue, error) {
	blocks := splitBlocks(string(data))
	cues := make([]Cue, 0, len(blocks))
	for n, block := range blocks {
		cue, err := parseBlock(block)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", n+1, err)
		}
		cues = append(cues, cue)
	}
	return cues, nil
}

func splitBlocks(s string) [][]string {
	s = strings.TrimPrefix(s, "\ufeff")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	var (
		blocks  [][]string
		current []string
	)
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimRight(line, " \t")
		if line == "" {
			if len(current) > 0 {
				blocks = append(blocks, current)
				current = nil
			}
			continue
		}
		current = append(current, line)
	}
	if len(current) > 0 {
		blocks = append(blocks, current)
	}
	return blocks
}

func parseBlock(lines []string) (Cue, error) {
	if len(lines) < 2 {
		return Cue{}, errors.New("srt block too short")
	}
	index, err := strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil {
		return Cue{}, fmt.Errorf("parse index %q: %w", lines[0], err)
	}
	bounds := strings.Split(lines[1], "-->")
	if len(bounds) != 2 {
		return Cue{}, errors.New("invalid timing separator")
	}
	start, err := ParseTimestamp(bounds[0])
	if err != nil {
		return Cue{}, fmt.Errorf("start time: %w", err)
	}
	end, err := ParseTimestamp(bounds[1])
	if err != nil {
		return Cue{}, fmt.Errorf("end time: %w", err)
	}
	return Cue{
		Index:   index,
		Start:   start,
		End:     end,
		Content: strings.Join(lines[2:], "\n"),
	}, nil
}
