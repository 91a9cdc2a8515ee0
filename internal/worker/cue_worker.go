package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/episodeline/pipeline/internal/logging"
	"github.com/episodeline/pipeline/internal/model"
	"github.com/episodeline/pipeline/internal/service"
)

// CueGenerator is satisfied by *service.CueService.
type CueGenerator interface {
	GenerateFromEpisode(ctx context.Context, episodeID string, opts model.GenerateOptions) (*model.GenerationResult, error)
}

// CueWorker runs cue generation tasks
type CueWorker struct {
	generator CueGenerator
	log       logrus.FieldLogger
}

func NewCueWorker(generator CueGenerator, log logrus.FieldLogger) *CueWorker {
	return &CueWorker{
		generator: generator,
		log:       logging.WithComponent(log, "cue-worker"),
	}
}

// ProcessTask handles a cues:generate task. A conflict means another
// generation holds the episode lock, so the task is retried later.
func (w *CueWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p service.CueTaskPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("failed to unmarshal cue payload: %v: %w", err, asynq.SkipRetry)
	}

	log := logging.WithEpisode(w.log, p.EpisodeID)
	res, err := w.generator.GenerateFromEpisode(ctx, p.EpisodeID, model.GenerateOptions{Regenerate: p.Regenerate})
	if err != nil {
		log.WithError(err).Error("cue generation failed")
		return retryable(err)
	}

	log.WithFields(logrus.Fields{
		"method":      res.Method,
		"cues":        len(res.Cues),
		"duration_ms": res.DurationMs,
	}).Info("cue generation completed")
	return nil
}
