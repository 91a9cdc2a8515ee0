package service

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/episodeline/pipeline/internal/apperr"
	"github.com/episodeline/pipeline/internal/config"
	"github.com/episodeline/pipeline/internal/logging"
	"github.com/episodeline/pipeline/internal/media"
	"github.com/episodeline/pipeline/internal/model"
)

const defaultSceneThreshold = 0.4

// SegmentArtifacts is the storage the segmenter needs: fetching source
// footage and publishing thumbnails.
type SegmentArtifacts interface {
	DownloadFile(ctx context.Context, bucket, key string) ([]byte, error)
	UploadFrameThumbnail(ctx context.Context, data []byte, videoID string, sceneNumber int) (*model.ArtifactReference, error)
}

// SegmentService splits videos into scenes at detected cuts.
type SegmentService struct {
	analyzer  media.Analyzer
	artifacts SegmentArtifacts
	scenes    SceneStore
	episodes  EpisodeStore
	cfg       config.MediaConfig
	validator *validator.Validate
	log       logrus.FieldLogger
	now       func() time.Time
}

func NewSegmentService(analyzer media.Analyzer, artifacts SegmentArtifacts, scenes SceneStore, episodes EpisodeStore,
	cfg *config.MediaConfig, v *validator.Validate, log logrus.FieldLogger) *SegmentService {
	return &SegmentService{
		analyzer:  analyzer,
		artifacts: artifacts,
		scenes:    scenes,
		episodes:  episodes,
		cfg:       *cfg,
		validator: v,
		log:       logging.WithComponent(log, "segmenter"),
		now:       time.Now,
	}
}

func (s *SegmentService) GetMetadata(ctx context.Context, path string) (*model.VideoMetadata, error) {
	if path == "" {
		return nil, apperr.Validation("GetMetadata", "video path is required")
	}
	return s.analyzer.Probe(ctx, path)
}

// DetectCuts finds scene boundaries whose change score exceeds threshold.
// A zero threshold uses the configured default.
func (s *SegmentService) DetectCuts(ctx context.Context, path string, threshold float64) ([]model.CutEvent, error) {
	threshold, err := s.threshold("DetectCuts", threshold)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return nil, apperr.Validation("DetectCuts", "video path is required")
	}
	return s.analyzer.DetectCuts(ctx, path, threshold)
}

// ExtractFrames writes one still per timestamp into outDir.
func (s *SegmentService) ExtractFrames(ctx context.Context, path string, timestamps []float64, outDir string) ([]model.ExtractedFrame, error) {
	frames := make([]model.ExtractedFrame, len(timestamps))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism())

	for i, ts := range timestamps {
		i, ts := i, ts
		out := filepath.Join(outDir, fmt.Sprintf("frame_%03d.jpg", i+1))
		g.Go(func() error {
			if err := s.analyzer.ExtractFrame(gctx, path, ts, out); err != nil {
				return err
			}
			frames[i] = model.ExtractedFrame{Timestamp: ts, Path: out}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return frames, nil
}

// AnalyzeCharacteristics classifies brightness over at most the first five
// seconds of a range. It never fails; problems fall back to defaults and
// are reported as warnings.
func (s *SegmentService) AnalyzeCharacteristics(ctx context.Context, path string, start, duration float64) model.CharacteristicsResult {
	result := model.CharacteristicsResult{Characteristics: model.DefaultCharacteristics()}
	if duration <= 0 {
		result.Warnings = append(result.Warnings, "empty range, using default characteristics")
		return result
	}

	luma, err := s.analyzer.AverageLuma(ctx, path, start, math.Min(duration, media.CharacteristicsWindow))
	if err != nil {
		s.log.WithError(err).WithField("start", start).Debug("characteristics analysis failed")
		result.Warnings = append(result.Warnings, fmt.Sprintf("characteristics at %.2fs: %v", start, err))
		return result
	}

	result.Characteristics.AverageLuma = &luma
	result.Characteristics.Brightness = media.ClassifyBrightness(luma)
	return result
}

// BuildSegments turns cut points into contiguous segments covering
// [0, total]. Cuts outside (0, total) and duplicates are dropped, so n
// usable cuts always give n+1 segments of positive length.
func BuildSegments(cuts []model.CutEvent, total float64) []model.Segment {
	if total <= 0 {
		return nil
	}

	points := make([]float64, 0, len(cuts))
	for _, c := range cuts {
		if c.Timestamp > 0 && c.Timestamp < total {
			points = append(points, c.Timestamp)
		}
	}
	sort.Float64s(points)

	segments := make([]model.Segment, 0, len(points)+1)
	start := 0.0
	for _, p := range points {
		if p <= start {
			continue
		}
		segments = append(segments, newSegment(len(segments), start, p))
		start = p
	}
	return append(segments, newSegment(len(segments), start, total))
}

func newSegment(index int, start, end float64) model.Segment {
	return model.Segment{Index: index, StartTime: start, EndTime: end, Duration: end - start}
}

// SegmentVideo runs the full pipeline for one video and replaces the
// episode's detected scenes with the result.
func (s *SegmentService) SegmentVideo(ctx context.Context, req *model.SegmentRequest) (*model.SegmentationResult, error) {
	const op = "SegmentVideo"
	if err := validateStruct(s.validator, op, req); err != nil {
		return nil, err
	}
	threshold, err := s.threshold(op, req.Threshold)
	if err != nil {
		return nil, err
	}
	if req.VideoPath == "" && (req.Bucket == "" || req.Key == "") {
		return nil, apperr.ValidationFields(op, "either videoPath or bucket and key are required",
			map[string]string{"videoPath": "required_without"})
	}
	var localPath string
	if req.VideoPath != "" {
		if localPath, err = s.localVideoPath(op, req.VideoPath); err != nil {
			return nil, err
		}
	}
	if _, err := s.episodes.GetEpisode(ctx, req.EpisodeID); err != nil {
		return nil, storeError(op, "episode", err)
	}

	log := s.log.WithFields(logrus.Fields{"episode_id": req.EpisodeID, "video_id": req.VideoID})

	if s.cfg.WorkDir != "" {
		if err := os.MkdirAll(s.cfg.WorkDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create work dir: %w", err)
		}
	}
	workDir, err := os.MkdirTemp(s.cfg.WorkDir, "segment-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	videoPath := localPath
	if videoPath == "" {
		videoPath, err = s.fetchSource(ctx, req, workDir)
		if err != nil {
			return nil, err
		}
	}

	meta, err := s.analyzer.Probe(ctx, videoPath)
	if err != nil {
		return nil, err
	}
	cuts, err := s.analyzer.DetectCuts(ctx, videoPath, threshold)
	if err != nil {
		return nil, err
	}
	segments := BuildSegments(cuts, meta.Duration)
	log.WithFields(logrus.Fields{"cuts": len(cuts), "segments": len(segments)}).Info("video segmented")

	result := &model.SegmentationResult{
		EpisodeID: req.EpisodeID,
		VideoID:   req.VideoID,
		Metadata:  *meta,
		Cuts:      cuts,
		Scenes:    make([]model.Scene, len(segments)),
	}

	var mu sync.Mutex
	warn := func(w ...string) {
		mu.Lock()
		result.Warnings = append(result.Warnings, w...)
		mu.Unlock()
	}

	now := s.now().UTC()
	g := new(errgroup.Group)
	g.SetLimit(s.parallelism())
	for i, seg := range segments {
		i, seg := i, seg
		g.Go(func() error {
			scene := model.Scene{
				ID:          uuid.New().String(),
				EpisodeID:   req.EpisodeID,
				SceneNumber: i + 1,
				Name:        fmt.Sprintf("Scene %d", i+1),
				Type:        string(model.SceneSourceDetected),
				StartTime:   seg.StartTime,
				EndTime:     seg.EndTime,
				Duration:    seg.Duration,
				Source:      model.SceneSourceDetected,
				CreatedAt:   now,
			}

			key, err := s.thumbnail(ctx, videoPath, workDir, req.VideoID, scene.SceneNumber, seg)
			if err != nil {
				log.WithError(err).WithField("scene", scene.SceneNumber).Warn("thumbnail skipped")
				warn(fmt.Sprintf("thumbnail for scene %d: %v", scene.SceneNumber, err))
			} else {
				scene.ThumbnailKey = &key
			}

			chars := s.AnalyzeCharacteristics(ctx, videoPath, seg.StartTime, seg.Duration)
			scene.Characteristics = &chars.Characteristics
			warn(chars.Warnings...)

			result.Scenes[i] = scene
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := s.scenes.ReplaceDetected(ctx, req.EpisodeID, result.Scenes); err != nil {
		return nil, storeError(op, "scenes", err)
	}
	return result, nil
}

func (s *SegmentService) ListScenes(ctx context.Context, episodeID string) ([]model.Scene, error) {
	scenes, err := s.scenes.ListByEpisode(ctx, episodeID)
	if err != nil {
		return nil, storeError("ListScenes", "scenes", err)
	}
	return scenes, nil
}

func (s *SegmentService) fetchSource(ctx context.Context, req *model.SegmentRequest, workDir string) (string, error) {
	data, err := s.artifacts.DownloadFile(ctx, req.Bucket, req.Key)
	if err != nil {
		return "", err
	}
	local := filepath.Join(workDir, "source"+filepath.Ext(req.Key))
	if err := os.WriteFile(local, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to stage source video: %w", err)
	}
	return local, nil
}

// thumbnail grabs the segment's midpoint frame and uploads it.
func (s *SegmentService) thumbnail(ctx context.Context, videoPath, workDir, videoID string, sceneNumber int, seg model.Segment) (string, error) {
	out := filepath.Join(workDir, "frames", fmt.Sprintf("scene_%d.jpg", sceneNumber))
	if err := s.analyzer.ExtractFrame(ctx, videoPath, seg.StartTime+seg.Duration/2, out); err != nil {
		return "", err
	}
	data, err := os.ReadFile(out)
	if err != nil {
		return "", err
	}
	ref, err := s.artifacts.UploadFrameThumbnail(ctx, data, videoID, sceneNumber)
	if err != nil {
		return "", err
	}
	return ref.Key, nil
}

func (s *SegmentService) threshold(op string, t float64) (float64, error) {
	if t == 0 {
		t = s.cfg.DefaultThreshold
		if t == 0 {
			t = defaultSceneThreshold
		}
	}
	if t <= 0 || t >= 1 {
		return 0, apperr.ValidationFields(op, "threshold must be between 0 and 1", map[string]string{"threshold": "range"})
	}
	return t, nil
}

func (s *SegmentService) parallelism() int {
	if s.cfg.MaxConcurrent < 1 {
		return 1
	}
	return s.cfg.MaxConcurrent
}

// localVideoPath resolves a caller-supplied path against the media work
// dir. Relative paths are joined to it; nothing may resolve outside it.
func (s *SegmentService) localVideoPath(op, p string) (string, error) {
	root := s.cfg.WorkDir
	if root == "" {
		root = os.TempDir()
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve work dir: %w", err)
	}

	resolved := filepath.Clean(p)
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(root, resolved)
	}
	rel, err := filepath.Rel(root, resolved)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", apperr.ValidationFields(op, "videoPath must be inside the media work directory",
			map[string]string{"videoPath": "outside work dir"})
	}
	return resolved, nil
}
