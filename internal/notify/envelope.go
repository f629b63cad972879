package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang/snappy"
	"github.com/google/uuid"
)

// Wire markers. A plain JSON envelope always starts with '{'.
const (
	markerSnappy byte = 's'
	markerJSON   byte = '{'
)

// Envelope wraps every published event
type Envelope struct {
	MessageID   string          `json:"message_id"`
	EventType   string          `json:"event_type"`
	PublisherID string          `json:"publisher_id"`
	Timestamp   time.Time       `json:"timestamp"`
	Payload     json.RawMessage `json:"payload"`
}

// NewEnvelope marshals payload into a fresh envelope
func NewEnvelope(event, publisherID string, payload interface{}) (*Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}
	return &Envelope{
		MessageID:   uuid.NewString(),
		EventType:   event,
		PublisherID: publisherID,
		Timestamp:   time.Now().UTC(),
		Payload:     raw,
	}, nil
}

// Encode renders the envelope, snappy-compressed behind a one byte marker
// when compress is set
func (e *Envelope) Encode(compress bool) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal envelope: %w", err)
	}
	if !compress {
		return data, nil
	}
	out := make([]byte, 1, 1+snappy.MaxEncodedLen(len(data)))
	out[0] = markerSnappy
	return append(out, snappy.Encode(nil, data)...), nil
}

// DecodeEnvelope reads either wire form
func DecodeEnvelope(data []byte) (*Envelope, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty envelope")
	}

	switch data[0] {
	case markerSnappy:
		decoded, err := snappy.Decode(nil, data[1:])
		if err != nil {
			return nil, fmt.Errorf("snappy decompress failed: %w", err)
		}
		data = decoded
	case markerJSON:
	default:
		return nil, fmt.Errorf("unknown envelope marker %q", data[0])
	}

	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}
	return &e, nil
}
