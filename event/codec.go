package event

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrMalformedEvent marks wire data that cannot become a valid event. Such
// messages are dropped and dead-lettered, never retried, because redelivery
// cannot repair a syntactically broken message.
var ErrMalformedEvent = errors.New("malformed event")

// Encode serializes the envelope for transport.
func (e Envelope) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope %s: %w", e.EventID, err)
	}
	return data, nil
}

// Decode parses a wire message into an envelope and its typed payload. The
// original event ID and timestamp are preserved exactly as produced. Any
// missing required field or unrecognized discriminator yields an error
// wrapping ErrMalformedEvent.
func Decode(data []byte) (Envelope, Payload, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, nil, fmt.Errorf("%w: undecodable envelope: %v", ErrMalformedEvent, err)
	}
	if env.EventID == uuid.Nil {
		return Envelope{}, nil, fmt.Errorf("%w: missing eventId", ErrMalformedEvent)
	}
	if env.Timestamp.IsZero() {
		return Envelope{}, nil, fmt.Errorf("%w: missing timestamp", ErrMalformedEvent)
	}

	payload, err := CreatePayload(env.EventType)
	if err != nil {
		return Envelope{}, nil, err
	}
	if err := json.Unmarshal(env.Payload, payload); err != nil {
		return Envelope{}, nil, fmt.Errorf("%w: undecodable %s payload: %v", ErrMalformedEvent, env.EventType, err)
	}
	if err := payload.Validate(); err != nil {
		return Envelope{}, nil, fmt.Errorf("%w: invalid %s payload: %v", ErrMalformedEvent, env.EventType, err)
	}
	return env, payload, nil
}
