package model

import "time"

// SceneSource tells detected scenes apart from hand-authored ones.
type SceneSource string

const (
	SceneSourceDetected SceneSource = "detected"
	SceneSourceManual   SceneSource = "manual"
)

// Scene is a stored, timed portion of an episode.
type Scene struct {
	ID              string           `json:"id"`
	EpisodeID       string           `json:"episodeId"`
	SceneNumber     int              `json:"sceneNumber"`
	Name            string           `json:"name"`
	Type            string           `json:"type,omitempty"`
	StartTime       float64          `json:"startTime"`
	EndTime         float64          `json:"endTime"`
	Duration        float64          `json:"duration"`
	Metadata        SceneMetadata    `json:"metadata"`
	ThumbnailKey    *string          `json:"thumbnailKey,omitempty"`
	Characteristics *Characteristics `json:"characteristics,omitempty"`
	Source          SceneSource      `json:"source"`
	CreatedAt       time.Time        `json:"createdAt"`
}

// SceneMetadata carries authoring hints used for cue generation.
type SceneMetadata struct {
	IconsNeeded         []string `json:"icons_needed,omitempty"`
	InteractiveElements []string `json:"interactive_elements,omitempty"`
}

// Segment is one contiguous time range of a video.
type Segment struct {
	Index     int     `json:"index"`
	StartTime float64 `json:"startTime"`
	EndTime   float64 `json:"endTime"`
	Duration  float64 `json:"duration"`
}

// CutEvent is a detected scene boundary.
type CutEvent struct {
	Number      int     `json:"number"`
	Timestamp   float64 `json:"timestamp"`
	ChangeScore float64 `json:"changeScore"`
}

type VideoMetadata struct {
	Duration   float64 `json:"duration"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	FrameRate  float64 `json:"frameRate"`
	VideoCodec string  `json:"videoCodec"`
	AudioCodec string  `json:"audioCodec,omitempty"`
	Size       int64   `json:"size"`
	Bitrate    int64   `json:"bitrate"`
}

type Brightness string

const (
	BrightnessDark   Brightness = "dark"
	BrightnessNormal Brightness = "normal"
	BrightnessBright Brightness = "bright"
)

type Characteristics struct {
	Brightness     Brightness `json:"brightness"`
	Motion         string     `json:"motion"`
	HasMusic       bool       `json:"hasMusic"`
	HasTextOverlay bool       `json:"hasTextOverlay"`
	AverageLuma    *float64   `json:"averageLuma,omitempty"`
}

// DefaultCharacteristics is used whenever analysis cannot run.
func DefaultCharacteristics() Characteristics {
	return Characteristics{
		Brightness: BrightnessNormal,
		Motion:     "medium",
	}
}

// CharacteristicsResult is best-effort; Warnings explains any fallback.
type CharacteristicsResult struct {
	Characteristics Characteristics `json:"characteristics"`
	Warnings        []string        `json:"warnings,omitempty"`
}

// ExtractedFrame is a still image written to local disk.
type ExtractedFrame struct {
	Timestamp float64 `json:"timestamp"`
	Path      string  `json:"path"`
}

// SegmentRequest drives the full segmentation pipeline for one video.
type SegmentRequest struct {
	EpisodeID string  `json:"episodeId" validate:"required"`
	VideoID   string  `json:"videoId" validate:"required"`
	// VideoPath is resolved inside the media work dir.
	VideoPath string  `json:"videoPath"`
	Bucket    string  `json:"bucket"`
	Key       string  `json:"key"`
	Threshold float64 `json:"threshold" validate:"gte=0,lt=1"`
	// GenerateCues chains cue generation after segmentation.
	GenerateCues bool `json:"generateCues"`
}

type SegmentationResult struct {
	EpisodeID string        `json:"episodeId"`
	VideoID   string        `json:"videoId"`
	Metadata  VideoMetadata `json:"metadata"`
	Cuts      []CutEvent    `json:"cuts"`
	Scenes    []Scene       `json:"scenes"`
	Warnings  []string      `json:"warnings,omitempty"`
}
