package model

import "time"

type ArtifactCategory string

const (
	ArtifactRawFootage     ArtifactCategory = "raw_footage"
	ArtifactProcessedVideo ArtifactCategory = "processed_video"
	ArtifactTrainingVideo  ArtifactCategory = "training_video"
	ArtifactFrameThumbnail ArtifactCategory = "frame_thumbnail"
)

// ArtifactReference locates a stored object.
type ArtifactReference struct {
	Category    ArtifactCategory `json:"category"`
	Bucket      string           `json:"bucket"`
	Key         string           `json:"key"`
	ContentType string           `json:"contentType"`
	Size        int64            `json:"size"`
	URL         string           `json:"url,omitempty"`
	ExpiresAt   *time.Time       `json:"expiresAt,omitempty"`
}

// CleanupResult reports a best-effort deletion. Failures land in Warnings.
type CleanupResult struct {
	Bucket   string   `json:"bucket"`
	Key      string   `json:"key"`
	Deleted  bool     `json:"deleted"`
	Warnings []string `json:"warnings,omitempty"`
}

type PresignRequest struct {
	Bucket     string `json:"bucket" validate:"required"`
	Key        string `json:"key" validate:"required"`
	TTLSeconds int    `json:"ttlSeconds" validate:"gte=0"`
}
