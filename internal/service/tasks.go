package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/episodeline/pipeline/internal/apperr"
	"github.com/episodeline/pipeline/internal/logging"
	"github.com/episodeline/pipeline/internal/model"
)

const (
	TaskTypeSegment = "segment:process"
	TaskTypeCues    = "cues:generate"

	QueueSegment = "segment"
	QueueCues    = "cues"
)

// TaskEnqueuer is satisfied by *asynq.Client.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type CueTaskPayload struct {
	EpisodeID  string `json:"episodeId"`
	Regenerate bool   `json:"regenerate"`
}

func NewSegmentTask(req *model.SegmentRequest) (*asynq.Task, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSegment, data), nil
}

func NewCueTask(p CueTaskPayload) (*asynq.Task, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeCues, data), nil
}

// TaskDispatcher schedules segmentation and cue generation in the
// background worker.
type TaskDispatcher struct {
	client    TaskEnqueuer
	validator *validator.Validate
	log       logrus.FieldLogger
}

func NewTaskDispatcher(client TaskEnqueuer, v *validator.Validate, log logrus.FieldLogger) *TaskDispatcher {
	return &TaskDispatcher{
		client:    client,
		validator: v,
		log:       logging.WithComponent(log, "tasks"),
	}
}

// EnqueueSegmentation schedules SegmentVideo and returns the task id.
func (d *TaskDispatcher) EnqueueSegmentation(ctx context.Context, req *model.SegmentRequest) (string, error) {
	const op = "EnqueueSegmentation"
	if err := validateStruct(d.validator, op, req); err != nil {
		return "", err
	}
	if req.VideoPath == "" && (req.Bucket == "" || req.Key == "") {
		return "", apperr.ValidationFields(op, "either videoPath or bucket and key are required",
			map[string]string{"videoPath": "required_without"})
	}

	task, err := NewSegmentTask(req)
	if err != nil {
		return "", fmt.Errorf("failed to create task: %w", err)
	}
	return d.enqueue(ctx, op, task, QueueSegment, req.EpisodeID)
}

// EnqueueCueGeneration schedules GenerateFromEpisode and returns the task id.
func (d *TaskDispatcher) EnqueueCueGeneration(ctx context.Context, episodeID string, regenerate bool) (string, error) {
	const op = "EnqueueCueGeneration"
	if episodeID == "" {
		return "", apperr.ValidationFields(op, "episodeId is required", map[string]string{"episodeId": "required"})
	}

	task, err := NewCueTask(CueTaskPayload{EpisodeID: episodeID, Regenerate: regenerate})
	if err != nil {
		return "", fmt.Errorf("failed to create task: %w", err)
	}
	return d.enqueue(ctx, op, task, QueueCues, episodeID)
}

func (d *TaskDispatcher) enqueue(ctx context.Context, op string, task *asynq.Task, queue, episodeID string) (string, error) {
	info, err := d.client.EnqueueContext(ctx, task,
		asynq.Queue(queue),
		asynq.MaxRetry(3),
		asynq.Timeout(30*time.Minute),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		return "", apperr.Upstream(op, fmt.Errorf("failed to enqueue task: %w", err))
	}

	d.log.WithFields(logrus.Fields{"task_id": info.ID, "type": task.Type(), "episode_id": episodeID}).Info("task enqueued")
	return info.ID, nil
}
