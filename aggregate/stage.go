package aggregate

import (
	"strings"

	"github.com/YusufTuran34/ContentOrganizerEvent/event"
)

// Stage is a bit set of completed production stages.
type Stage uint8

const (
	StageMusic Stage = 1 << iota
	StageImage
	StageSEO
	StageVideo
	StagePublish
)

// AssemblyInputs are the stages that must all complete before video assembly
// can be requested.
const AssemblyInputs = StageMusic | StageImage | StageSEO

// StageFor maps a stage completion event type to its flag. VideoCreationStarted
// carries no stage: it only originates the aggregate.
func StageFor(t event.Type) (Stage, bool) {
	switch t {
	case event.TypeMusicReady:
		return StageMusic, true
	case event.TypeImageReady:
		return StageImage, true
	case event.TypeSEOReady:
		return StageSEO, true
	case event.TypeVideoReady:
		return StageVideo, true
	case event.TypeVideoPublished:
		return StagePublish, true
	default:
		return 0, false
	}
}

// Has reports whether every flag in want is set.
func (s Stage) Has(want Stage) bool { return s&want == want }

func (s Stage) String() string {
	if s == 0 {
		return "none"
	}
	var names []string
	for _, part := range []struct {
		flag Stage
		name string
	}{
		{StageMusic, "music"},
		{StageImage, "image"},
		{StageSEO, "seo"},
		{StageVideo, "video"},
		{StagePublish, "publish"},
	} {
		if s.Has(part.flag) {
			names = append(names, part.name)
		}
	}
	return strings.Join(names, "+")
}
