package service

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/episodeline/pipeline/internal/apperr"
	"github.com/episodeline/pipeline/internal/logging"
	"github.com/episodeline/pipeline/internal/client"
	"github.com/episodeline/pipeline/internal/model"
)

const generationLockTTL = 2 * time.Minute

// CueService generates and curates icon cues for episodes.
type CueService struct {
	cues      CueStore
	scenes    SceneStore
	episodes  EpisodeStore
	ai        client.AIClient
	locker    client.Locker
	validator *validator.Validate
	log       logrus.FieldLogger
	now       func() time.Time
}

func NewCueService(cues CueStore, scenes SceneStore, episodes EpisodeStore, ai client.AIClient, locker client.Locker,
	v *validator.Validate, log logrus.FieldLogger) *CueService {
	return &CueService{
		cues:      cues,
		scenes:    scenes,
		episodes:  episodes,
		ai:        ai,
		locker:    locker,
		validator: v,
		log:       logging.WithComponent(log, "cues"),
		now:       time.Now,
	}
}

// GenerateFromEpisode builds suggested cues for an episode. Without
// Regenerate, an episode that already has cues is returned unchanged.
// Only one generation per episode runs at a time; a concurrent call gets
// a conflict.
func (s *CueService) GenerateFromEpisode(ctx context.Context, episodeID string, opts model.GenerateOptions) (*model.GenerationResult, error) {
	const op = "GenerateFromEpisode"
	started := s.now()
	if episodeID == "" {
		return nil, apperr.ValidationFields(op, "episodeId is required", map[string]string{"episodeId": "required"})
	}

	log := s.log.WithFields(logrus.Fields{"episode_id": episodeID, "regenerate": opts.Regenerate})

	// An unreachable lock store is not fatal: the unique cue index keeps
	// the first write.
	release, ok, err := s.locker.Acquire(ctx, "cues:"+episodeID, generationLockTTL)
	switch {
	case err != nil:
		log.WithError(err).Warn("generation lock unavailable, continuing without it")
	case !ok:
		return nil, apperr.Conflict(op, "cue generation already running for this episode")
	default:
		defer release()
	}

	if !opts.Regenerate {
		n, err := s.cues.CountByEpisode(ctx, episodeID)
		if err != nil {
			return nil, storeError(op, "cues", err)
		}
		if n > 0 {
			existing, err := s.cues.ListByEpisode(ctx, episodeID, model.CueFilter{})
			if err != nil {
				return nil, storeError(op, "cues", err)
			}
			log.WithField("count", n).Info("returning existing cues")
			return s.result(episodeID, existing, model.MethodExisting, started), nil
		}
	}

	ec, err := s.loadContext(ctx, op, episodeID)
	if err != nil {
		return nil, err
	}
	mappings, err := s.episodes.SlotMappings(ctx)
	if err != nil {
		return nil, storeError(op, "slot mappings", err)
	}

	outcome := sceneMetadataCues(ec.Scenes, mappings, func(name string) {
		log.WithField("icon", name).Warn("no slot mapping, skipping")
	})

	var generated []model.IconCue
	var method model.GenerationMethod
	switch outcome.kind {
	case outcomeProduced:
		generated, method = outcome.cues, model.MethodSceneMetadata
	default:
		generated, method = s.aiCues(ctx, ec, log), model.MethodAIAnalysis
	}
	generated = append(generated, persistentAnchors()...)

	if err := s.prepareGenerated(ctx, episodeID, generated); err != nil {
		return nil, storeError(op, "assets", err)
	}
	inserted, err := s.cues.SaveGenerated(ctx, episodeID, generated, opts.Regenerate)
	if err != nil {
		return nil, storeError(op, "cues", err)
	}

	all, err := s.cues.ListByEpisode(ctx, episodeID, model.CueFilter{})
	if err != nil {
		return nil, storeError(op, "cues", err)
	}

	log.WithFields(logrus.Fields{"method": method, "generated": len(generated), "inserted": inserted}).Info("cues generated")
	return s.result(episodeID, all, method, started), nil
}

// aiCues asks the AI model for suggestions. Any failure yields no cues.
func (s *CueService) aiCues(ctx context.Context, ec *model.EpisodeContext, log logrus.FieldLogger) []model.IconCue {
	if ec.Script == nil || ec.Script.Content == "" {
		log.Info("no script for AI analysis")
		return nil
	}
	if s.ai == nil || !s.ai.IsConfigured() {
		log.Debug("AI client not configured")
		return nil
	}

	text, err := s.ai.ChatCompletion(ctx, cueSystemPrompt, buildCuePrompt(ec))
	if err != nil {
		if errors.Is(err, client.ErrAIUnavailable) {
			log.WithError(err).Warn("AI unavailable, using anchors only")
		} else {
			log.WithError(err).Error("AI analysis failed")
		}
		return nil
	}

	cues, err := parseAISuggestions(text)
	if err != nil {
		log.WithError(err).Warn("could not parse AI suggestions")
		return nil
	}
	return cues
}

func (s *CueService) loadContext(ctx context.Context, op, episodeID string) (*model.EpisodeContext, error) {
	ep, err := s.episodes.GetEpisode(ctx, episodeID)
	if err != nil {
		return nil, storeError(op, "episode", err)
	}
	scenes, err := s.scenes.ListByEpisode(ctx, episodeID)
	if err != nil {
		return nil, storeError(op, "scenes", err)
	}
	formula, err := s.episodes.Formula(ctx, episodeID)
	if err != nil {
		return nil, storeError(op, "formula", err)
	}
	script, err := s.episodes.LatestScript(ctx, episodeID)
	if err != nil {
		return nil, storeError(op, "script", err)
	}
	return &model.EpisodeContext{Episode: *ep, Scenes: scenes, Formula: formula, Script: script}, nil
}

// prepareGenerated stamps ids, status and asset links onto generated cues.
func (s *CueService) prepareGenerated(ctx context.Context, episodeID string, cues []model.IconCue) error {
	assets := map[string]*string{}
	now := s.now().UTC()
	for i := range cues {
		c := &cues[i]
		c.ID = uuid.New().String()
		c.EpisodeID = episodeID
		c.Status = model.CueStatusSuggested
		c.CreatedAt, c.UpdatedAt = now, now

		if c.AssetRole == "" {
			continue
		}
		id, seen := assets[c.AssetRole]
		if !seen {
			var err error
			id, err = s.episodes.LatestAssetID(ctx, episodeID, c.AssetRole)
			if err != nil {
				return err
			}
			assets[c.AssetRole] = id
		}
		c.AssetID = id
	}
	return nil
}

func (s *CueService) result(episodeID string, cues []model.IconCue, method model.GenerationMethod, started time.Time) *model.GenerationResult {
	return &model.GenerationResult{
		EpisodeID:  episodeID,
		Cues:       cues,
		Method:     method,
		DurationMs: s.now().Sub(started).Milliseconds(),
	}
}

func (s *CueService) ListCues(ctx context.Context, episodeID string, filter model.CueFilter) ([]model.IconCue, error) {
	const op = "ListCues"
	switch filter.Status {
	case "", model.CueStatusSuggested, model.CueStatusApproved, model.CueStatusRejected:
	default:
		return nil, apperr.ValidationFields(op, "unknown status filter", map[string]string{"status": "oneof"})
	}
	switch filter.Sort {
	case "", "timestamp", "slot":
	default:
		return nil, apperr.ValidationFields(op, "sort must be timestamp or slot", map[string]string{"sort": "oneof"})
	}

	cues, err := s.cues.ListByEpisode(ctx, episodeID, filter)
	if err != nil {
		return nil, storeError(op, "cues", err)
	}
	return cues, nil
}

func (s *CueService) GetCue(ctx context.Context, id string) (*model.IconCue, error) {
	cue, err := s.cues.Get(ctx, id)
	if err != nil {
		return nil, storeError("GetCue", "cue", err)
	}
	return cue, nil
}

// CreateCue adds a hand-placed cue. Manual cues start approved.
func (s *CueService) CreateCue(ctx context.Context, episodeID string, req *model.CreateCueRequest) (*model.IconCue, error) {
	const op = "CreateCue"
	if err := validateStruct(s.validator, op, req); err != nil {
		return nil, err
	}
	if _, err := s.episodes.GetEpisode(ctx, episodeID); err != nil {
		return nil, storeError(op, "episode", err)
	}

	now := s.now().UTC()
	cue := &model.IconCue{
		ID:                   uuid.New().String(),
		EpisodeID:            episodeID,
		AssetID:              req.AssetID,
		Timestamp:            *req.Timestamp,
		DurationMs:           req.DurationMs,
		SlotID:               req.SlotID,
		Action:               req.Action,
		Transition:           req.Transition,
		Easing:               req.Easing,
		AssetRole:            req.AssetRole,
		IconState:            req.IconState,
		Status:               model.CueStatusApproved,
		GeneratedBy:          model.CueSourceManual,
		GenerationConfidence: 1.0,
		Notes:                req.Notes,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if cue.DurationMs == 0 {
		cue.DurationMs = defaultCueMs
	}
	if cue.Transition == "" {
		cue.Transition = defaultTransition
	}
	if cue.Easing == "" {
		cue.Easing = defaultEasing
	}
	if cue.AssetID == nil && cue.AssetRole != "" {
		id, err := s.episodes.LatestAssetID(ctx, episodeID, cue.AssetRole)
		if err != nil {
			return nil, storeError(op, "asset", err)
		}
		cue.AssetID = id
	}

	if err := s.cues.Create(ctx, cue); err != nil {
		return nil, storeError(op, "cue", err)
	}
	return cue, nil
}

// UpdateCue applies the non-nil fields of req.
func (s *CueService) UpdateCue(ctx context.Context, id string, req *model.UpdateCueRequest) (*model.IconCue, error) {
	const op = "UpdateCue"
	if err := validateStruct(s.validator, op, req); err != nil {
		return nil, err
	}
	if req.SlotID != nil && *req.SlotID == "" {
		return nil, apperr.ValidationFields(op, "slotId must not be empty", map[string]string{"slotId": "required"})
	}

	return s.modify(ctx, op, id, func(c *model.IconCue) {
		if req.Timestamp != nil {
			c.Timestamp = *req.Timestamp
		}
		if req.SlotID != nil {
			c.SlotID = *req.SlotID
		}
		if req.Action != nil {
			c.Action = *req.Action
		}
		if req.AssetRole != nil {
			c.AssetRole = *req.AssetRole
		}
		if req.DurationMs != nil {
			c.DurationMs = *req.DurationMs
		}
		if req.Transition != nil {
			c.Transition = *req.Transition
		}
		if req.Easing != nil {
			c.Easing = *req.Easing
		}
		if req.IconState != nil {
			c.IconState = req.IconState
		}
		if req.Notes != nil {
			c.Notes = req.Notes
		}
	})
}

func (s *CueService) DeleteCue(ctx context.Context, id string) error {
	if err := s.cues.Delete(ctx, id); err != nil {
		return storeError("DeleteCue", "cue", err)
	}
	return nil
}

func (s *CueService) ApproveCue(ctx context.Context, id string) (*model.IconCue, error) {
	return s.modify(ctx, "ApproveCue", id, func(c *model.IconCue) {
		c.Status = model.CueStatusApproved
	})
}

func (s *CueService) RejectCue(ctx context.Context, id, notes string) (*model.IconCue, error) {
	return s.modify(ctx, "RejectCue", id, func(c *model.IconCue) {
		c.Status = model.CueStatusRejected
		if notes != "" {
			c.Notes = &notes
		}
	})
}

func (s *CueService) ApproveAllSuggested(ctx context.Context, episodeID string) (*model.BulkResult, error) {
	return s.bulk(ctx, "ApproveAllSuggested", episodeID, model.CueStatusApproved)
}

func (s *CueService) RejectAllSuggested(ctx context.Context, episodeID string) (*model.BulkResult, error) {
	return s.bulk(ctx, "RejectAllSuggested", episodeID, model.CueStatusRejected)
}

func (s *CueService) ListAnchors(ctx context.Context, episodeID string) ([]model.IconCue, error) {
	cues, err := s.cues.ListAnchors(ctx, episodeID)
	if err != nil {
		return nil, storeError("ListAnchors", "cues", err)
	}
	return cues, nil
}

func (s *CueService) SetAnchor(ctx context.Context, id string, req *model.SetAnchorRequest) (*model.IconCue, error) {
	const op = "SetAnchor"
	if err := validateStruct(s.validator, op, req); err != nil {
		return nil, err
	}
	return s.modify(ctx, op, id, func(c *model.IconCue) {
		c.IsAnchor = true
		c.AnchorName = &req.AnchorName
	})
}

func (s *CueService) RemoveAnchor(ctx context.Context, id string) (*model.IconCue, error) {
	return s.modify(ctx, "RemoveAnchor", id, func(c *model.IconCue) {
		c.IsAnchor = false
		c.AnchorName = nil
	})
}

func (s *CueService) modify(ctx context.Context, op, id string, change func(c *model.IconCue)) (*model.IconCue, error) {
	cue, err := s.cues.Get(ctx, id)
	if err != nil {
		return nil, storeError(op, "cue", err)
	}
	change(cue)
	if err := s.cues.Update(ctx, cue); err != nil {
		return nil, storeError(op, "cue", err)
	}
	return cue, nil
}

func (s *CueService) bulk(ctx context.Context, op, episodeID string, to model.CueStatus) (*model.BulkResult, error) {
	n, err := s.cues.BulkSetStatus(ctx, episodeID, model.CueStatusSuggested, to)
	if err != nil {
		return nil, storeError(op, "cues", err)
	}
	logging.WithEpisode(s.log, episodeID).WithFields(logrus.Fields{"status": to, "updated": n}).Info("bulk status change")
	return &model.BulkResult{EpisodeID: episodeID, Updated: n}, nil
}
