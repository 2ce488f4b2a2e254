package event

import (
	"fmt"
	"sync"
)

// PayloadFactory is a function that creates a new, empty payload instance.
type PayloadFactory func() Payload

var (
	payloadRegistry = make(map[Type]PayloadFactory)
	mu              sync.RWMutex
)

// RegisterPayload associates a payload type with a factory for it. It should
// be called during initialization and panics if a type is registered twice.
func RegisterPayload[T Payload](p T) {
	mu.Lock()
	defer mu.Unlock()

	if _, ok := payloadRegistry[p.EventType()]; ok {
		panic(fmt.Sprintf("event type '%s' is already registered", p.EventType()))
	}
	// The factory returns a pointer so the codec can unmarshal into it.
	// Payload methods use value receivers, so *T satisfies Payload too.
	payloadRegistry[p.EventType()] = func() Payload {
		return any(new(T)).(Payload)
	}
}

// CreatePayload instantiates an empty payload for the given discriminator.
// It returns an error wrapping ErrMalformedEvent if the type is unknown,
// since an unrecognized discriminator on the wire is a malformed message.
func CreatePayload(t Type) (Payload, error) {
	mu.RLock()
	defer mu.RUnlock()

	factory, ok := payloadRegistry[t]
	if !ok {
		return nil, fmt.Errorf("%w: unknown event type '%s'", ErrMalformedEvent, t)
	}
	return factory(), nil
}

func init() {
	RegisterPayload(VideoCreationStarted{})
	RegisterPayload(MusicReady{})
	RegisterPayload(ImageReady{})
	RegisterPayload(SEOReady{})
	RegisterPayload(VideoReady{})
	RegisterPayload(VideoPublished{})
	RegisterPayload(AssemblyRequested{})
	RegisterPayload(PublishRequested{})
}
