package model

import (
	"encoding/json"
	"time"
)

// JobStatus represents the lifecycle state of a render job
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// ProcessingMethod selects which kind of remote worker executes the render
type ProcessingMethod string

const (
	ProcessingRemoteFunction    ProcessingMethod = "remote_function"
	ProcessingDedicatedInstance ProcessingMethod = "dedicated_instance"
)

// RenderJob is one request to render an edit plan into a finished video.
type RenderJob struct {
	ID                        string           `json:"id"`
	EpisodeID                 string           `json:"episodeId"`
	EditPlanID                string           `json:"editPlanId"`
	Status                    JobStatus        `json:"status"`
	ProcessingMethod          ProcessingMethod `json:"processingMethod"`
	ComplexityScore           float64          `json:"complexityScore"`
	ProgressPercentage        int              `json:"progressPercentage"`
	EstimatedDurationSeconds  int              `json:"estimatedDurationSeconds"`
	StartedAt                 *time.Time       `json:"startedAt,omitempty"`
	CompletedAt               *time.Time       `json:"completedAt,omitempty"`
	ProcessingDurationSeconds *int             `json:"processingDurationSeconds,omitempty"`
	OutputKey                 *string          `json:"outputKey,omitempty"`
	OutputURL                 *string          `json:"outputUrl,omitempty"`
	ErrorMessage              *string          `json:"errorMessage,omitempty"`
	WorkerRequestID           *string          `json:"workerRequestId,omitempty"`
	WorkerInstanceID          *string          `json:"workerInstanceId,omitempty"`
	Version                   int              `json:"version"`
	CreatedAt                 time.Time        `json:"createdAt"`
	UpdatedAt                 time.Time        `json:"updatedAt"`
}

// CreateJobRequest is the input to job creation. EditStructure is an opaque
// snapshot forwarded to the worker; only totalDuration is read here.
type CreateJobRequest struct {
	EpisodeID        string           `json:"episodeId" validate:"required"`
	EditPlanID       string           `json:"editPlanId" validate:"required"`
	ProcessingMethod ProcessingMethod `json:"processingMethod" validate:"required,oneof=remote_function dedicated_instance"`
	ComplexityScore  float64          `json:"complexityScore" validate:"gte=0,lte=1"`
	EditStructure    json.RawMessage  `json:"editStructure" validate:"required"`
}

// WorkerMeta identifies the worker that picked up a job.
type WorkerMeta struct {
	RequestID  string `json:"requestId,omitempty"`
	InstanceID string `json:"instanceId,omitempty"`
}

type ProgressRequest struct {
	Progress *int `json:"progress" validate:"required,gte=0,lte=100"`
}

type JobResult struct {
	OutputKey string `json:"outputKey" validate:"required"`
	OutputURL string `json:"outputUrl"`
}

type FailJobRequest struct {
	Message string `json:"message" validate:"required"`
}

// QueueDepth is a snapshot of approximate message counts.
type QueueDepth struct {
	Available int `json:"available"`
	InFlight  int `json:"inFlight"`
	Delayed   int `json:"delayed"`
}

type QueueStats struct {
	Queue      QueueDepth        `json:"queue"`
	DeadLetter QueueDepth        `json:"deadLetter"`
	Jobs       map[JobStatus]int `json:"jobs"`
}
