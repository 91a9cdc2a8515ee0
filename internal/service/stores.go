package service

import (
	"context"
	"errors"

	"github.com/episodeline/pipeline/internal/apperr"
	"github.com/episodeline/pipeline/internal/model"
	"github.com/episodeline/pipeline/internal/repository"
)

// JobStore persists render jobs. Update must fail with
// repository.ErrVersionConflict when the row changed since it was read.
type JobStore interface {
	Create(ctx context.Context, job *model.RenderJob) error
	Get(ctx context.Context, id string) (*model.RenderJob, error)
	ListByEpisode(ctx context.Context, episodeID string) ([]model.RenderJob, error)
	Update(ctx context.Context, job *model.RenderJob) error
	CountByStatus(ctx context.Context) (map[model.JobStatus]int, error)
}

type SceneStore interface {
	ListByEpisode(ctx context.Context, episodeID string) ([]model.Scene, error)
	ReplaceDetected(ctx context.Context, episodeID string, scenes []model.Scene) error
}

type EpisodeStore interface {
	GetEpisode(ctx context.Context, id string) (*model.Episode, error)
	LatestScript(ctx context.Context, episodeID string) (*model.EpisodeScript, error)
	Formula(ctx context.Context, episodeID string) (*model.EpisodeFormula, error)
	LatestAssetID(ctx context.Context, episodeID, role string) (*string, error)
	SlotMappings(ctx context.Context) (map[string]model.IconSlotMapping, error)
}

type CueStore interface {
	ListByEpisode(ctx context.Context, episodeID string, filter model.CueFilter) ([]model.IconCue, error)
	ListAnchors(ctx context.Context, episodeID string) ([]model.IconCue, error)
	CountByEpisode(ctx context.Context, episodeID string) (int, error)
	Get(ctx context.Context, id string) (*model.IconCue, error)
	Create(ctx context.Context, cue *model.IconCue) error
	SaveGenerated(ctx context.Context, episodeID string, cues []model.IconCue, replaceSuggested bool) (int, error)
	Update(ctx context.Context, cue *model.IconCue) error
	Delete(ctx context.Context, id string) error
	BulkSetStatus(ctx context.Context, episodeID string, from, to model.CueStatus) (int, error)
}

// storeError classifies a repository error for callers.
func storeError(op, what string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return apperr.NotFound(op, what+" not found")
	case errors.Is(err, repository.ErrVersionConflict):
		return apperr.Conflict(op, what+" was modified concurrently")
	case errors.Is(err, repository.ErrDuplicate):
		return apperr.Conflict(op, what+" already exists")
	default:
		return &apperr.Error{Kind: apperr.KindInternal, Op: op, Msg: "datastore error", Err: err}
	}
}
