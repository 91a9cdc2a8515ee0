package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/episodeline/pipeline/internal/apperr"
	"github.com/episodeline/pipeline/internal/logging"
	"github.com/episodeline/pipeline/internal/model"
)

// Segmenter is satisfied by *service.SegmentService.
type Segmenter interface {
	SegmentVideo(ctx context.Context, req *model.SegmentRequest) (*model.SegmentationResult, error)
}

// CueScheduler is satisfied by *service.TaskDispatcher.
type CueScheduler interface {
	EnqueueCueGeneration(ctx context.Context, episodeID string, regenerate bool) (string, error)
}

// SegmentWorker runs scene segmentation tasks
type SegmentWorker struct {
	segmenter Segmenter
	cues      CueScheduler
	log       logrus.FieldLogger
}

func NewSegmentWorker(segmenter Segmenter, cues CueScheduler, log logrus.FieldLogger) *SegmentWorker {
	return &SegmentWorker{
		segmenter: segmenter,
		cues:      cues,
		log:       logging.WithComponent(log, "segment-worker"),
	}
}

// ProcessTask handles a segment:process task. When the request asks for
// it, cue generation is scheduled once the scenes are stored.
func (w *SegmentWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var req model.SegmentRequest
	if err := json.Unmarshal(t.Payload(), &req); err != nil {
		return fmt.Errorf("failed to unmarshal segment payload: %v: %w", err, asynq.SkipRetry)
	}

	log := logging.WithEpisode(w.log, req.EpisodeID).WithField("video_id", req.VideoID)
	log.Info("starting segmentation")

	res, err := w.segmenter.SegmentVideo(ctx, &req)
	if err != nil {
		log.WithError(err).Error("segmentation failed")
		return retryable(err)
	}
	for _, warning := range res.Warnings {
		log.Warn(warning)
	}
	log.WithFields(logrus.Fields{"scenes": len(res.Scenes), "cuts": len(res.Cuts)}).Info("segmentation completed")

	if req.GenerateCues && w.cues != nil {
		taskID, err := w.cues.EnqueueCueGeneration(ctx, req.EpisodeID, true)
		if err != nil {
			// Scenes are already stored, so the task itself succeeded.
			log.WithError(err).Error("failed to schedule cue generation")
			return nil
		}
		log.WithField("task_id", taskID).Info("cue generation scheduled")
	}
	return nil
}

// retryable marks errors that cannot succeed on a later attempt so asynq
// archives the task instead of retrying it.
func retryable(err error) error {
	switch apperr.KindOf(err) {
	case apperr.KindValidation, apperr.KindNotFound, apperr.KindInvalidState:
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	default:
		return err
	}
}
