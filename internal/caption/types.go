package caption

import "time"

// TranscriptEntry is one utterance fragment produced by the recognizer.
// Interim entries are provisional and may be replaced; final entries are
// immutable once appended.
type TranscriptEntry struct {
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	Confidence float64   `json:"confidence,omitempty"`
	IsFinal    bool      `json:"is_final"`
	Speaker    string    `json:"speaker,omitempty"`
}

// Session is one continuous captioning activity window. It owns its
// transcript exclusively; ordering is insertion order.
type Session struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	StartTime  time.Time         `json:"start_time"`
	EndTime    time.Time         `json:"end_time"`
	Language   string            `json:"language"`
	Transcript []TranscriptEntry `json:"transcript"`
}

// FinalEntries returns the finalized prefix of the transcript.
func (s *Session) FinalEntries() []TranscriptEntry {
	var out []TranscriptEntry
	for _, e := range s.Transcript {
		if e.IsFinal {
			out = append(out, e)
		}
	}
	return out
}

// Clone returns a deep copy safe to hand across goroutines.
func (s *Session) Clone() Session {
	dup := *s
	dup.Transcript = append([]TranscriptEntry(nil), s.Transcript...)
	return dup
}
