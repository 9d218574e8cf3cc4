// Package format renders an ordered transcript into exportable text
// representations. All functions are pure; only finalized entries are
// emitted and entries with empty text are skipped here, not upstream.
package format

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/caplight/caplight/internal/caption"
)

// Kind names an export representation.
type Kind string

const (
	KindText     Kind = "text"
	KindSRT      Kind = "srt"
	KindWebVTT   Kind = "webvtt"
	KindMarkdown Kind = "markdown"
	KindJSON     Kind = "json"
	KindSpeakers Kind = "speakers"
)

// ParseKind maps a user-supplied name onto a Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindText:
		return KindText, nil
	case KindSRT:
		return KindSRT, nil
	case KindWebVTT, Kind("vtt"):
		return KindWebVTT, nil
	case KindMarkdown, Kind("md"):
		return KindMarkdown, nil
	case KindJSON:
		return KindJSON, nil
	case KindSpeakers:
		return KindSpeakers, nil
	}
	return "", fmt.Errorf("unknown export format %q", s)
}

// Format renders the transcript in the given kind. sessionStart is the zero
// point for elapsed timecodes; when zero, the first emitted entry's recorded
// start time is used instead.
func Format(entries []caption.TranscriptEntry, kind Kind, sessionStart time.Time) (string, error) {
	cues := emittable(entries)
	if sessionStart.IsZero() && len(cues) > 0 {
		sessionStart = cues[0].StartTime
	}

	switch kind {
	case KindText:
		return formatText(cues), nil
	case KindSRT:
		return formatCues(cues, sessionStart, srtTimecode, ""), nil
	case KindWebVTT:
		return formatCues(cues, sessionStart, vttTimecode, "WEBVTT\n\n"), nil
	case KindMarkdown:
		return formatMarkdown(cues, sessionStart), nil
	case KindJSON:
		return formatJSON(cues)
	case KindSpeakers:
		return formatSpeakers(cues), nil
	}
	return "", fmt.Errorf("unknown export format %q", kind)
}

func emittable(entries []caption.TranscriptEntry) []caption.TranscriptEntry {
	var out []caption.TranscriptEntry
	for _, e := range entries {
		if e.IsFinal && strings.TrimSpace(e.Text) != "" {
			out = append(out, e)
		}
	}
	return out
}

func formatText(entries []caption.TranscriptEntry) string {
	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "[%s] %s: %s\n", localClock(e.Timestamp), speakerOrDefault(e.Speaker), e.Text)
	}
	return b.String()
}

// formatCues renders numbered cue blocks for SRT and WebVTT, which differ
// only in header and millisecond separator.
func formatCues(entries []caption.TranscriptEntry, sessionStart time.Time, tc func(time.Duration) string, header string) string {
	var b strings.Builder
	b.WriteString(header)
	for i, e := range entries {
		fmt.Fprintf(&b, "%d\n", i+1)
		fmt.Fprintf(&b, "%s --> %s\n", tc(e.StartTime.Sub(sessionStart)), tc(e.EndTime.Sub(sessionStart)))
		b.WriteString(e.Text)
		b.WriteString("\n\n")
	}
	return b.String()
}

func formatMarkdown(entries []caption.TranscriptEntry, sessionStart time.Time) string {
	var b strings.Builder
	b.WriteString("# Transcript\n\n")
	if len(entries) > 0 {
		fmt.Fprintf(&b, "- Started: %s\n", sessionStart.Format(time.RFC1123))
		fmt.Fprintf(&b, "- Entries: %d\n", len(entries))
		b.WriteString("\n---\n\n")
	}
	for _, e := range entries {
		fmt.Fprintf(&b, "**[%s] %s:** %s\n\n", localClock(e.Timestamp), speakerOrDefault(e.Speaker), e.Text)
	}
	return b.String()
}

func formatJSON(entries []caption.TranscriptEntry) (string, error) {
	if entries == nil {
		entries = []caption.TranscriptEntry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal transcript: %w", err)
	}
	return string(data), nil
}

// formatSpeakers groups consecutive entries from the same speaker under one
// heading.
func formatSpeakers(entries []caption.TranscriptEntry) string {
	var b strings.Builder
	current := ""
	for _, e := range entries {
		speaker := speakerOrDefault(e.Speaker)
		if speaker != current {
			if current != "" {
				b.WriteString("\n")
			}
			fmt.Fprintf(&b, "%s:\n", speaker)
			current = speaker
		}
		fmt.Fprintf(&b, "  %s\n", e.Text)
	}
	return b.String()
}

func speakerOrDefault(s string) string {
	if s == "" {
		return "You"
	}
	return s
}

func localClock(t time.Time) string {
	return t.Format("3:04:05 PM")
}
