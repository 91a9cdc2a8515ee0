package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/episodeline/pipeline/internal/apperr"
	"github.com/episodeline/pipeline/internal/logging"
	"github.com/episodeline/pipeline/internal/model"
	"github.com/episodeline/pipeline/internal/repository"
)

const maxUpdateAttempts = 3

// JobPublisher hands a job to the remote worker.
type JobPublisher interface {
	SendProcessingJob(ctx context.Context, job *model.RenderJob, editStructure json.RawMessage) (string, error)
}

// JobStats reads queue depth for the stats endpoint.
type JobStats interface {
	GetQueueStats(ctx context.Context) (model.QueueDepth, error)
	GetDeadLetterStats(ctx context.Context) (model.QueueDepth, error)
}

// JobService orchestrates the render job lifecycle:
// queued -> processing -> completed | failed.
type JobService struct {
	jobs      JobStore
	publisher JobPublisher
	stats     JobStats
	validator *validator.Validate
	log       logrus.FieldLogger
	now       func() time.Time
}

func NewJobService(jobs JobStore, queue *QueueService, v *validator.Validate, log logrus.FieldLogger) *JobService {
	return &JobService{
		jobs:      jobs,
		publisher: queue,
		stats:     queue,
		validator: v,
		log:       logging.WithComponent(log, "orchestrator"),
		now:       time.Now,
	}
}

// CreateAndQueueJob persists a queued job and publishes it. When publishing
// fails the same job is marked failed and returned along with the error.
func (s *JobService) CreateAndQueueJob(ctx context.Context, req *model.CreateJobRequest) (*model.RenderJob, error) {
	const op = "CreateAndQueueJob"
	if err := validateStruct(s.validator, op, req); err != nil {
		return nil, err
	}

	totalDuration, err := editStructureDuration(req.EditStructure)
	if err != nil {
		return nil, apperr.ValidationFields(op, err.Error(), map[string]string{"editStructure": "totalDuration"})
	}

	now := s.now()
	job := &model.RenderJob{
		ID:                       uuid.New().String(),
		EpisodeID:                req.EpisodeID,
		EditPlanID:               req.EditPlanID,
		Status:                   model.JobStatusQueued,
		ProcessingMethod:         req.ProcessingMethod,
		ComplexityScore:          req.ComplexityScore,
		EstimatedDurationSeconds: int(math.Ceil(2 * totalDuration)),
		CreatedAt:                now,
		UpdatedAt:                now,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, storeError(op, "job", err)
	}

	log := s.log.WithFields(logrus.Fields{"job_id": job.ID, "episode_id": job.EpisodeID})

	if _, err := s.publisher.SendProcessingJob(ctx, job, req.EditStructure); err != nil {
		log.WithError(err).Warn("job enqueue failed")
		msg := "enqueue failed: " + rootCause(err).Error()
		failed, uerr := s.mutate(ctx, op, job.ID, func(j *model.RenderJob) (bool, error) {
			if j.Status != model.JobStatusQueued {
				return false, nil
			}
			completed := s.now()
			j.Status = model.JobStatusFailed
			j.ErrorMessage = &msg
			j.CompletedAt = &completed
			return true, nil
		})
		if uerr != nil {
			// The stored row is still queued, so no failed job is reported.
			log.WithError(uerr).Error("failed to record enqueue failure")
			return nil, errors.Join(err, uerr)
		}
		return failed, err
	}

	log.WithField("estimated_seconds", job.EstimatedDurationSeconds).Info("job queued")
	return job, nil
}

func (s *JobService) GetJob(ctx context.Context, jobID string) (*model.RenderJob, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, storeError("GetJob", "job", err)
	}
	return job, nil
}

func (s *JobService) ListEpisodeJobs(ctx context.Context, episodeID string) ([]model.RenderJob, error) {
	jobs, err := s.jobs.ListByEpisode(ctx, episodeID)
	if err != nil {
		return nil, storeError("ListEpisodeJobs", "jobs", err)
	}
	return jobs, nil
}

// MarkJobStarted moves a queued job to processing. Repeated delivery of the
// same start is a no-op.
func (s *JobService) MarkJobStarted(ctx context.Context, jobID string, meta model.WorkerMeta) (*model.RenderJob, error) {
	const op = "MarkJobStarted"
	return s.mutate(ctx, op, jobID, func(job *model.RenderJob) (bool, error) {
		switch job.Status {
		case model.JobStatusProcessing:
			return false, nil
		case model.JobStatusQueued:
		default:
			return false, apperr.InvalidState(op, fmt.Sprintf("cannot start a %s job", job.Status))
		}

		started := s.now()
		job.Status = model.JobStatusProcessing
		job.StartedAt = &started
		if meta.RequestID != "" {
			job.WorkerRequestID = &meta.RequestID
		}
		if meta.InstanceID != "" {
			job.WorkerInstanceID = &meta.InstanceID
		}
		return true, nil
	})
}

// UpdateProgress records progress for a processing job. Progress never
// moves backwards; a lower value is ignored.
func (s *JobService) UpdateProgress(ctx context.Context, jobID string, progress int) (*model.RenderJob, error) {
	const op = "UpdateProgress"
	if progress < 0 || progress > 100 {
		return nil, apperr.ValidationFields(op, "progress must be between 0 and 100", map[string]string{"progress": "range"})
	}

	return s.mutate(ctx, op, jobID, func(job *model.RenderJob) (bool, error) {
		if job.Status != model.JobStatusProcessing {
			return false, apperr.InvalidState(op, fmt.Sprintf("cannot update progress of a %s job", job.Status))
		}
		if progress <= job.ProgressPercentage {
			return false, nil
		}
		job.ProgressPercentage = progress
		return true, nil
	})
}

func (s *JobService) MarkJobCompleted(ctx context.Context, jobID string, result model.JobResult) (*model.RenderJob, error) {
	const op = "MarkJobCompleted"
	if err := validateStruct(s.validator, op, &result); err != nil {
		return nil, err
	}

	job, err := s.mutate(ctx, op, jobID, func(job *model.RenderJob) (bool, error) {
		switch job.Status {
		case model.JobStatusCompleted:
			return false, nil
		case model.JobStatusProcessing:
		default:
			return false, apperr.InvalidState(op, fmt.Sprintf("cannot complete a %s job", job.Status))
		}

		completed := s.now()
		job.Status = model.JobStatusCompleted
		job.CompletedAt = &completed
		job.ProgressPercentage = 100
		job.OutputKey = &result.OutputKey
		if result.OutputURL != "" {
			job.OutputURL = &result.OutputURL
		}
		job.ProcessingDurationSeconds = elapsedSeconds(job.StartedAt, completed)
		return true, nil
	})
	if err == nil {
		logging.WithJob(s.log, jobID).Info("job completed")
	}
	return job, err
}

// MarkJobFailed moves any non-terminal job to failed.
func (s *JobService) MarkJobFailed(ctx context.Context, jobID, message string) (*model.RenderJob, error) {
	const op = "MarkJobFailed"
	if message == "" {
		return nil, apperr.ValidationFields(op, "failure message is required", map[string]string{"message": "required"})
	}

	job, err := s.mutate(ctx, op, jobID, func(job *model.RenderJob) (bool, error) {
		switch job.Status {
		case model.JobStatusFailed:
			return false, nil
		case model.JobStatusCompleted:
			return false, apperr.InvalidState(op, "cannot fail a completed job")
		}

		completed := s.now()
		job.Status = model.JobStatusFailed
		job.CompletedAt = &completed
		job.ErrorMessage = &message
		job.ProcessingDurationSeconds = elapsedSeconds(job.StartedAt, completed)
		return true, nil
	})
	if err == nil {
		s.log.WithFields(logrus.Fields{"job_id": jobID, "reason": message}).Warn("job failed")
	}
	return job, err
}

// GetQueueStats merges queue depth with per-status job counts.
func (s *JobService) GetQueueStats(ctx context.Context) (*model.QueueStats, error) {
	const op = "GetQueueStats"

	main, err := s.stats.GetQueueStats(ctx)
	if err != nil {
		return nil, err
	}
	dlq, err := s.stats.GetDeadLetterStats(ctx)
	if err != nil {
		return nil, err
	}
	counts, err := s.jobs.CountByStatus(ctx)
	if err != nil {
		return nil, storeError(op, "jobs", err)
	}

	return &model.QueueStats{Queue: main, DeadLetter: dlq, Jobs: counts}, nil
}

// mutate reads the job, applies change and writes it back under the
// version guard, re-reading on a lost race. apply returns false when the
// job is already in the requested state.
func (s *JobService) mutate(ctx context.Context, op, jobID string, apply func(job *model.RenderJob) (bool, error)) (*model.RenderJob, error) {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		job, err := s.jobs.Get(ctx, jobID)
		if err != nil {
			return nil, storeError(op, "job", err)
		}

		changed, err := apply(job)
		if err != nil {
			return nil, err
		}
		if !changed {
			return job, nil
		}

		err = s.jobs.Update(ctx, job)
		if errors.Is(err, repository.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, storeError(op, "job", err)
		}
		return job, nil
	}
	return nil, apperr.Conflict(op, "job was modified concurrently")
}

func editStructureDuration(raw json.RawMessage) (float64, error) {
	var es struct {
		TotalDuration *float64 `json:"totalDuration"`
	}
	if err := json.Unmarshal(raw, &es); err != nil {
		return 0, fmt.Errorf("editStructure must be a JSON object")
	}
	if es.TotalDuration == nil {
		return 0, fmt.Errorf("editStructure.totalDuration is required")
	}
	if *es.TotalDuration < 0 || math.IsNaN(*es.TotalDuration) {
		return 0, fmt.Errorf("editStructure.totalDuration must not be negative")
	}
	return *es.TotalDuration, nil
}

func elapsedSeconds(started *time.Time, completed time.Time) *int {
	if started == nil {
		return nil
	}
	d := int(math.Round(completed.Sub(*started).Seconds()))
	if d < 0 {
		d = 0
	}
	return &d
}

func rootCause(err error) error {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}
