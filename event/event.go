package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type is the discriminator that identifies the concrete payload carried by
// an envelope.
type Type string

// Stage completion events consumed by the coordinator.
const (
	TypeVideoCreationStarted Type = "VideoCreationStarted"
	TypeMusicReady           Type = "MusicReady"
	TypeImageReady           Type = "ImageReady"
	TypeSEOReady             Type = "SEOReady"
	TypeVideoReady           Type = "VideoReady"
	TypeVideoPublished       Type = "VideoPublished"
)

// Coordination triggers emitted by the coordinator.
const (
	TypeAssemblyRequested Type = "AssemblyRequested"
	TypePublishRequested  Type = "PublishRequested"
)

// Envelope is the wire representation shared by every domain event. The
// event ID is the sole identity used for equality and deduplication; the
// timestamp is the producer's creation time and is not globally ordered.
type Envelope struct {
	EventID   uuid.UUID       `json:"eventId"`
	Timestamp time.Time       `json:"timestamp"`
	EventType Type            `json:"eventType"`
	Payload   json.RawMessage `json:"payload"`
}

// New wraps a payload in a fresh envelope. The event ID and timestamp are
// always generated here; publishers never supply them.
func New(p Payload) (Envelope, error) {
	if err := p.Validate(); err != nil {
		return Envelope{}, fmt.Errorf("invalid %s payload: %w", p.EventType(), err)
	}
	data, err := json.Marshal(p)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal %s payload: %w", p.EventType(), err)
	}
	return Envelope{
		EventID:   uuid.New(),
		Timestamp: time.Now().UTC(),
		EventType: p.EventType(),
		Payload:   data,
	}, nil
}
