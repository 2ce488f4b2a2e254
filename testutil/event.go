package testutil

import (
	"time"

	"github.com/google/uuid"

	"github.com/YusufTuran34/ContentOrganizerEvent/event"
)

// EnvelopeAt wraps a payload in an envelope with a fixed timestamp, so tests
// can exercise last-writer-wins ordering deterministically.
func EnvelopeAt(p event.Payload, ts time.Time) event.Envelope {
	env, err := event.New(p)
	if err != nil {
		panic(err)
	}
	env.Timestamp = ts
	return env
}

// Redeliver returns a copy of an envelope, simulating an at-least-once
// transport redelivering the same event (same event ID).
func Redeliver(env event.Envelope) event.Envelope {
	return env
}

// MusicReady builds a minimal valid music payload for a project.
func MusicReady(projectID string) event.MusicReady {
	return event.MusicReady{
		ProjectID: projectID,
		MusicID:   uuid.NewString(),
		MusicURL:  "https://cdn.example.com/music/lofi-01.mp3",
		Genre:     "lofi",
		Duration:  3600,
	}
}

// ImageReady builds a minimal valid image payload for a project.
func ImageReady(projectID string) event.ImageReady {
	return event.ImageReady{
		ProjectID: projectID,
		ImageIDs:  []string{uuid.NewString()},
		ImageURLs: []string{"https://cdn.example.com/images/cover-01.png"},
		Style:     "anime",
	}
}

// SEOReady builds a minimal valid SEO payload for a project.
func SEOReady(projectID string) event.SEOReady {
	return event.SEOReady{
		ProjectID:            projectID,
		OptimizedTitle:       "Lofi Beats to Relax To",
		OptimizedDescription: "One hour of chill lofi beats.",
		Keywords:             []string{"lofi", "chill"},
		Tags:                 []string{"lofi", "study music"},
		Thumbnail:            "https://cdn.example.com/thumbs/cover-01.png",
	}
}

// VideoReady builds a minimal valid video payload for a project.
func VideoReady(projectID string) event.VideoReady {
	return event.VideoReady{
		ProjectID:  projectID,
		VideoID:    uuid.NewString(),
		VideoURL:   "https://cdn.example.com/videos/final-01.mp4",
		Duration:   3600,
		Resolution: "1920x1080",
	}
}

// VideoPublished builds a minimal valid publication payload for a project.
func VideoPublished(projectID string) event.VideoPublished {
	return event.VideoPublished{
		ProjectID:      projectID,
		YouTubeVideoID: "yt-" + uuid.NewString()[:8],
		YouTubeURL:     "https://youtube.com/watch?v=abc123",
		Status:         "public",
		PublishedAt:    time.Now().UTC(),
	}
}

// VideoCreationStarted builds the originating payload for a project.
func VideoCreationStarted(projectID string) event.VideoCreationStarted {
	return event.VideoCreationStarted{
		ProjectID:   projectID,
		Title:       "Lofi Mix",
		Description: "Relaxing lofi mix",
		Tags:        "lofi,chill",
	}
}
