package aggregate

import "fmt"

// Status is the coordinator-owned lifecycle state of a project.
type Status int

const (
	StatusInProgress Status = iota
	StatusReadyForAssembly
	StatusAssembling
	StatusPublished
	StatusStalled
	StatusFailed
)

var statusNames = map[Status]string{
	StatusInProgress:       "IN_PROGRESS",
	StatusReadyForAssembly: "READY_FOR_ASSEMBLY",
	StatusAssembling:       "ASSEMBLING",
	StatusPublished:        "PUBLISHED",
	StatusStalled:          "STALLED",
	StatusFailed:           "FAILED",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Terminal reports whether the project can no longer change state. STALLED is
// deliberately not terminal: a late event arrival revives a stalled project.
func (s Status) Terminal() bool {
	return s == StatusPublished || s == StatusFailed
}

// MarshalText stores statuses by name so externalized aggregates stay
// readable and stable across releases.
func (s Status) MarshalText() ([]byte, error) {
	name, ok := statusNames[s]
	if !ok {
		return nil, fmt.Errorf("unknown status %d", int(s))
	}
	return []byte(name), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	for status, name := range statusNames {
		if name == string(text) {
			*s = status
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", string(text))
}
