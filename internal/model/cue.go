package model

import "time"

type CueAction string

const (
	CueActionAppear      CueAction = "appear"
	CueActionOpen        CueAction = "open"
	CueActionDisappear   CueAction = "disappear"
	CueActionClose       CueAction = "close"
	CueActionHighlight   CueAction = "highlight"
	CueActionStateChange CueAction = "state_change"
)

type CueStatus string

const (
	CueStatusSuggested CueStatus = "suggested"
	CueStatusApproved  CueStatus = "approved"
	CueStatusRejected  CueStatus = "rejected"
)

// CueSource records which generation step produced a cue.
type CueSource string

const (
	CueSourceSceneMetadata   CueSource = "scene_metadata"
	CueSourceSceneInference  CueSource = "scene_inference"
	CueSourcePersistentIcons CueSource = "persistent_icons"
	CueSourceAIAnalysis      CueSource = "ai_analysis"
	CueSourceManual          CueSource = "manual"
)

// GenerationMethod is the overall method reported for a generation call.
type GenerationMethod string

const (
	MethodExisting      GenerationMethod = "existing"
	MethodSceneMetadata GenerationMethod = "scene_metadata"
	MethodAIAnalysis    GenerationMethod = "ai_analysis"
)

// IconCue is a timed instruction to show or change a UI icon.
type IconCue struct {
	ID                   string    `json:"id"`
	EpisodeID            string    `json:"episodeId"`
	AssetID              *string   `json:"assetId,omitempty"`
	Timestamp            float64   `json:"timestamp"`
	DurationMs           int       `json:"durationMs"`
	SlotID               string    `json:"slotId"`
	Action               CueAction `json:"action"`
	Transition           string    `json:"transition"`
	Easing               string    `json:"easing"`
	AssetRole            string    `json:"assetRole,omitempty"`
	IconState            *string   `json:"iconState,omitempty"`
	IsAnchor             bool      `json:"isAnchor"`
	AnchorName           *string   `json:"anchorName,omitempty"`
	Status               CueStatus `json:"status"`
	GeneratedBy          CueSource `json:"generatedBy"`
	GenerationConfidence float64   `json:"generationConfidence"`
	Notes                *string   `json:"notes,omitempty"`
	CreatedAt            time.Time `json:"createdAt"`
	UpdatedAt            time.Time `json:"updatedAt"`
}

type GenerateOptions struct {
	Regenerate bool `json:"regenerate"`
}

type GenerationResult struct {
	EpisodeID  string           `json:"episodeId"`
	Cues       []IconCue        `json:"cues"`
	Method     GenerationMethod `json:"method"`
	DurationMs int64            `json:"durationMs"`
}

// CueFilter narrows cue listings. Sort is "timestamp" (default) or "slot".
type CueFilter struct {
	Status CueStatus
	SlotID string
	Sort   string
}

type CreateCueRequest struct {
	Timestamp  *float64  `json:"timestamp" validate:"required,gte=0"`
	SlotID     string    `json:"slotId" validate:"required"`
	Action     CueAction `json:"action" validate:"required,oneof=appear open disappear close highlight state_change"`
	AssetRole  string    `json:"assetRole"`
	AssetID    *string   `json:"assetId"`
	DurationMs int       `json:"durationMs" validate:"gte=0"`
	Transition string    `json:"transition"`
	Easing     string    `json:"easing"`
	IconState  *string   `json:"iconState"`
	Notes      *string   `json:"notes"`
}

// UpdateCueRequest is a partial update; nil fields are left unchanged.
type UpdateCueRequest struct {
	Timestamp  *float64   `json:"timestamp" validate:"omitempty,gte=0"`
	SlotID     *string    `json:"slotId"`
	Action     *CueAction `json:"action" validate:"omitempty,oneof=appear open disappear close highlight state_change"`
	AssetRole  *string    `json:"assetRole"`
	DurationMs *int       `json:"durationMs" validate:"omitempty,gte=0"`
	Transition *string    `json:"transition"`
	Easing     *string    `json:"easing"`
	IconState  *string    `json:"iconState"`
	Notes      *string    `json:"notes"`
}

type SetAnchorRequest struct {
	AnchorName string `json:"anchorName" validate:"required"`
}

type RejectCueRequest struct {
	Notes string `json:"notes"`
}

type BulkResult struct {
	EpisodeID string `json:"episodeId"`
	Updated   int    `json:"updated"`
}

type ExportFormat string

const (
	ExportJSON     ExportFormat = "json"
	ExportMarkdown ExportFormat = "markdown"
	ExportCSV      ExportFormat = "csv"
)
