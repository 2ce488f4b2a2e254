package messagebus

import "github.com/YusufTuran34/ContentOrganizerEvent/event"

// ChannelFor returns the bus channel carrying an event type. Each event type
// travels on its own channel, named after the type, matching the producers
// upstream of the coordinator.
func ChannelFor(t event.Type) string { return string(t) }

// StageChannels lists the inbound channels the coordinator subscribes to.
func StageChannels() []string {
	types := []event.Type{
		event.TypeVideoCreationStarted,
		event.TypeMusicReady,
		event.TypeImageReady,
		event.TypeSEOReady,
		event.TypeVideoReady,
		event.TypeVideoPublished,
	}
	channels := make([]string, len(types))
	for i, t := range types {
		channels[i] = ChannelFor(t)
	}
	return channels
}
