package event

import (
	"errors"
	"fmt"
	"time"
)

// Payload is the interface implemented by every concrete event payload.
// ProjectID correlates the event to a production project and is required on
// every stage event.
type Payload interface {
	EventType() Type
	Project() string
	Validate() error
}

func requireField(name, value string) error {
	if value == "" {
		return fmt.Errorf("required field %q is missing", name)
	}
	return nil
}

// VideoCreationStarted originates a project. Delivery order is not
// guaranteed, so any other stage event may arrive first and create the
// aggregate instead.
type VideoCreationStarted struct {
	ProjectID   string `json:"projectId"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Tags        string `json:"tags"`
}

func (p VideoCreationStarted) EventType() Type { return TypeVideoCreationStarted }
func (p VideoCreationStarted) Project() string { return p.ProjectID }
func (p VideoCreationStarted) Validate() error { return requireField("projectId", p.ProjectID) }

// MusicReady announces that the music selection stage completed.
type MusicReady struct {
	ProjectID string `json:"projectId"`
	MusicID   string `json:"musicId"`
	MusicURL  string `json:"musicUrl"`
	Genre     string `json:"genre"`
	Duration  int    `json:"duration"`
}

func (p MusicReady) EventType() Type { return TypeMusicReady }
func (p MusicReady) Project() string { return p.ProjectID }
func (p MusicReady) Validate() error {
	return errors.Join(
		requireField("projectId", p.ProjectID),
		requireField("musicId", p.MusicID),
	)
}

// ImageReady announces that the image generation stage completed.
type ImageReady struct {
	ProjectID string   `json:"projectId"`
	ImageIDs  []string `json:"imageIds"`
	ImageURLs []string `json:"imageUrls"`
	Style     string   `json:"style"`
}

func (p ImageReady) EventType() Type { return TypeImageReady }
func (p ImageReady) Project() string { return p.ProjectID }
func (p ImageReady) Validate() error {
	if err := requireField("projectId", p.ProjectID); err != nil {
		return err
	}
	if len(p.ImageIDs) == 0 {
		return fmt.Errorf("required field %q is missing", "imageIds")
	}
	return nil
}

// SEOReady announces that the metadata optimization stage completed.
type SEOReady struct {
	ProjectID            string   `json:"projectId"`
	OptimizedTitle       string   `json:"optimizedTitle"`
	OptimizedDescription string   `json:"optimizedDescription"`
	Keywords             []string `json:"keywords"`
	Tags                 []string `json:"tags"`
	Thumbnail            string   `json:"thumbnail"`
}

func (p SEOReady) EventType() Type { return TypeSEOReady }
func (p SEOReady) Project() string { return p.ProjectID }
func (p SEOReady) Validate() error {
	return errors.Join(
		requireField("projectId", p.ProjectID),
		requireField("optimizedTitle", p.OptimizedTitle),
	)
}

// VideoReady announces that video assembly completed.
type VideoReady struct {
	ProjectID  string `json:"projectId"`
	VideoID    string `json:"videoId"`
	VideoURL   string `json:"videoUrl"`
	Duration   int    `json:"duration"`
	Resolution string `json:"resolution"`
}

func (p VideoReady) EventType() Type { return TypeVideoReady }
func (p VideoReady) Project() string { return p.ProjectID }
func (p VideoReady) Validate() error {
	return errors.Join(
		requireField("projectId", p.ProjectID),
		requireField("videoId", p.VideoID),
	)
}

// VideoPublished announces that the external platform accepted the video.
type VideoPublished struct {
	ProjectID      string    `json:"projectId"`
	YouTubeVideoID string    `json:"youtubeVideoId"`
	YouTubeURL     string    `json:"youtubeUrl"`
	Status         string    `json:"status"`
	PublishedAt    time.Time `json:"publishedAt"`
}

func (p VideoPublished) EventType() Type { return TypeVideoPublished }
func (p VideoPublished) Project() string { return p.ProjectID }
func (p VideoPublished) Validate() error {
	return errors.Join(
		requireField("projectId", p.ProjectID),
		requireField("youtubeVideoId", p.YouTubeVideoID),
	)
}

// AssemblyRequested is the coordination trigger consumed by the video
// assembly adapter. It carries the merged inputs the adapter needs so it
// does not have to query the coordinator back.
type AssemblyRequested struct {
	ProjectID string      `json:"projectId"`
	Music     *MusicReady `json:"music"`
	Images    *ImageReady `json:"images"`
	SEO       *SEOReady   `json:"seo"`
}

func (p AssemblyRequested) EventType() Type { return TypeAssemblyRequested }
func (p AssemblyRequested) Project() string { return p.ProjectID }
func (p AssemblyRequested) Validate() error { return requireField("projectId", p.ProjectID) }

// PublishRequested is the coordination trigger consumed by the publication
// adapter once an assembled video is available.
type PublishRequested struct {
	ProjectID string      `json:"projectId"`
	Video     *VideoReady `json:"video"`
	SEO       *SEOReady   `json:"seo"`
}

func (p PublishRequested) EventType() Type { return TypePublishRequested }
func (p PublishRequested) Project() string { return p.ProjectID }
func (p PublishRequested) Validate() error { return requireField("projectId", p.ProjectID) }
