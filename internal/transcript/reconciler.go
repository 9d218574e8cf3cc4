// Package transcript reconciles a stream of interim and final recognition
// results into an ordered, deduplicated transcript.
package transcript

import (
	"time"

	"github.com/caplight/caplight/internal/caption"
)

// Result is one recognition result handed to the reconciler. Batched
// recognizer events are applied one result at a time, in order.
type Result struct {
	Text       string
	Confidence float64
	IsFinal    bool
	Speaker    string
	At         time.Time
}

// Reconciler maintains the at-most-one-trailing-interim invariant:
// recognizers re-emit a growing interim transcript for the utterance in
// progress, so naive accumulation would duplicate text. All entries before
// the tail are final and never touched again.
//
// Not safe for concurrent use; callers deliver results in arrival order
// from a single recognizer instance.
type Reconciler struct {
	entries        []caption.TranscriptEntry
	utteranceStart time.Time
	clock          func() time.Time
}

func New() *Reconciler {
	return &Reconciler{clock: time.Now}
}

// Apply folds one recognition result into the transcript and returns the
// appended entry. Empty text is reconciled like any other result so that
// ordering guarantees hold for downstream consumers; formatters filter.
func (r *Reconciler) Apply(res Result) caption.TranscriptEntry {
	at := res.At
	if at.IsZero() {
		at = r.clock()
	}
	if r.utteranceStart.IsZero() {
		r.utteranceStart = at
	}

	// Drop the provisional tail, keep everything finalized.
	if n := len(r.entries); n > 0 && !r.entries[n-1].IsFinal {
		r.entries = r.entries[:n-1]
	}

	entry := caption.TranscriptEntry{
		Text:       res.Text,
		Timestamp:  at,
		StartTime:  r.utteranceStart,
		EndTime:    at,
		Confidence: res.Confidence,
		IsFinal:    res.IsFinal,
		Speaker:    res.Speaker,
	}
	r.entries = append(r.entries, entry)

	if res.IsFinal {
		// The next utterance starts its own clock.
		r.utteranceStart = time.Time{}
	}
	return entry
}

// Entries returns a copy of the current ordered transcript.
func (r *Reconciler) Entries() []caption.TranscriptEntry {
	return append([]caption.TranscriptEntry(nil), r.entries...)
}

// FinalCount returns the number of finalized entries.
func (r *Reconciler) FinalCount() int {
	n := len(r.entries)
	if n > 0 && !r.entries[n-1].IsFinal {
		return n - 1
	}
	return n
}

// HasInterim reports whether a provisional entry is pending at the tail.
func (r *Reconciler) HasInterim() bool {
	n := len(r.entries)
	return n > 0 && !r.entries[n-1].IsFinal
}

// Reset discards the transcript and the utterance clock.
func (r *Reconciler) Reset() {
	r.entries = nil
	r.utteranceStart = time.Time{}
}
