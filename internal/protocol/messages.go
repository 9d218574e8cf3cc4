package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/caplight/caplight/internal/caption"
)

// MessageTypeCaptionUpdate tags envelopes carrying a single transcript
// entry from one participant to the others.
const MessageTypeCaptionUpdate = "caption-update"

// CaptionUpdate is the payload shared with other participants whenever
// a final transcript entry is produced locally.
type CaptionUpdate struct {
	SessionID string                  `json:"sessionId"`
	Entry     caption.TranscriptEntry `json:"entry"`
	SenderID  string                  `json:"senderId"`
}

// Envelope wraps bus payloads with a type tag so receivers can route
// without guessing at the body shape.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// EncodeCaptionUpdate wraps the update in a typed envelope.
func EncodeCaptionUpdate(update CaptionUpdate) ([]byte, error) {
	data, err := json.Marshal(update)
	if err != nil {
		return nil, fmt.Errorf("marshal caption update: %w", err)
	}
	return json.Marshal(Envelope{Type: MessageTypeCaptionUpdate, Data: data})
}

// DecodeCaptionUpdate unwraps an envelope, rejecting foreign types.
func DecodeCaptionUpdate(raw []byte) (CaptionUpdate, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return CaptionUpdate{}, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.Type != MessageTypeCaptionUpdate {
		return CaptionUpdate{}, fmt.Errorf("unexpected message type %q", env.Type)
	}
	var update CaptionUpdate
	if err := json.Unmarshal(env.Data, &update); err != nil {
		return CaptionUpdate{}, fmt.Errorf("unmarshal caption update: %w", err)
	}
	return update, nil
}

const (
	// SubjectCaptionUpdates carries caption-update envelopes between
	// participants.
	SubjectCaptionUpdates = "caption.updates"
)
