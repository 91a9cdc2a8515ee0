package service

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/episodeline/pipeline/internal/apperr"
	"github.com/episodeline/pipeline/internal/config"
	"github.com/episodeline/pipeline/internal/logging"
	"github.com/episodeline/pipeline/internal/model"
)

func cutsAt(ts ...float64) []model.CutEvent {
	out := make([]model.CutEvent, len(ts))
	for i, t := range ts {
		out[i] = model.CutEvent{Number: i + 1, Timestamp: t, ChangeScore: 0.5}
	}
	return out
}

func TestBuildSegments(t *testing.T) {
	tests := []struct {
		name  string
		cuts  []model.CutEvent
		total float64
		want  [][2]float64
	}{
		{"no cuts", nil, 30, [][2]float64{{0, 30}}},
		{"two cuts", cutsAt(10, 20), 30, [][2]float64{{0, 10}, {10, 20}, {20, 30}}},
		{"unsorted", cutsAt(20, 10), 30, [][2]float64{{0, 10}, {10, 20}, {20, 30}}},
		{"out of range dropped", cutsAt(0, 15, 30, 45), 30, [][2]float64{{0, 15}, {15, 30}}},
		{"duplicates dropped", cutsAt(12, 12), 30, [][2]float64{{0, 12}, {12, 30}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildSegments(tt.cuts, tt.total)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d segments, want %d: %+v", len(got), len(tt.want), got)
			}
			for i, seg := range got {
				if seg.Index != i || seg.StartTime != tt.want[i][0] || seg.EndTime != tt.want[i][1] {
					t.Errorf("segment %d = %+v, want %v", i, seg, tt.want[i])
				}
				if seg.Duration <= 0 {
					t.Errorf("segment %d has non-positive duration", i)
				}
			}
		})
	}
}

func TestBuildSegments_ContiguousCover(t *testing.T) {
	total := 97.3
	segs := BuildSegments(cutsAt(3.1, 40.2, 41.0, 96.9), total)
	if len(segs) != 5 {
		t.Fatalf("expected 5 segments, got %d", len(segs))
	}
	if segs[0].StartTime != 0 || segs[len(segs)-1].EndTime != total {
		t.Errorf("segments do not cover [0, %v]", total)
	}
	sum := 0.0
	for i := range segs {
		if i > 0 && segs[i].StartTime != segs[i-1].EndTime {
			t.Errorf("gap between segment %d and %d", i-1, i)
		}
		sum += segs[i].Duration
	}
	if math.Abs(sum-total) > 1e-9 {
		t.Errorf("durations sum to %v, want %v", sum, total)
	}
}

func newSegmentService(t *testing.T, stores *testStores, analyzer *fakeAnalyzer, storage *fakeStorage) *SegmentService {
	t.Helper()
	cfg := &config.MediaConfig{MaxConcurrent: 2, WorkDir: t.TempDir(), DefaultThreshold: 0.4}
	artifacts := newArtifactService(storage)
	return NewSegmentService(analyzer, artifacts, stores.scenes, stores.episodes, cfg, NewValidator(), logging.Discard())
}

func TestDetectCuts_ThresholdSensitivity(t *testing.T) {
	stores := openStores(t)
	analyzer := &fakeAnalyzer{cuts: []model.CutEvent{
		{Timestamp: 4, ChangeScore: 0.35},
		{Timestamp: 9, ChangeScore: 0.55},
		{Timestamp: 15, ChangeScore: 0.92},
	}}
	svc := newSegmentService(t, stores, analyzer, newFakeStorage())
	ctx := context.Background()

	low, err := svc.DetectCuts(ctx, "v.mp4", 0.3)
	if err != nil {
		t.Fatal(err)
	}
	def, err := svc.DetectCuts(ctx, "v.mp4", 0)
	if err != nil {
		t.Fatal(err)
	}
	high, err := svc.DetectCuts(ctx, "v.mp4", 0.9)
	if err != nil {
		t.Fatal(err)
	}
	if len(low) != 3 || len(def) != 2 || len(high) != 1 {
		t.Errorf("cut counts = %d/%d/%d, want 3/2/1", len(low), len(def), len(high))
	}

	for _, bad := range []float64{-0.1, 1, 1.5} {
		if _, err := svc.DetectCuts(ctx, "v.mp4", bad); !apperr.Is(err, apperr.KindValidation) {
			t.Errorf("threshold %v: expected validation error, got %v", bad, err)
		}
	}
}

func TestAnalyzeCharacteristics(t *testing.T) {
	stores := openStores(t)
	analyzer := &fakeAnalyzer{luma: 42}
	svc := newSegmentService(t, stores, analyzer, newFakeStorage())

	res := svc.AnalyzeCharacteristics(context.Background(), "v.mp4", 0, 12)
	if res.Characteristics.Brightness != model.BrightnessDark {
		t.Errorf("brightness = %s, want dark", res.Characteristics.Brightness)
	}
	if analyzer.lumaCalls[0] != 5 {
		t.Errorf("analysis window = %v, want 5", analyzer.lumaCalls[0])
	}

	analyzer.lumaErr = errors.New("ffmpeg missing")
	res = svc.AnalyzeCharacteristics(context.Background(), "v.mp4", 0, 3)
	if res.Characteristics != model.DefaultCharacteristics() {
		t.Errorf("expected defaults on failure, got %+v", res.Characteristics)
	}
	if len(res.Warnings) != 1 {
		t.Errorf("expected one warning, got %v", res.Warnings)
	}
}

func TestSegmentVideo(t *testing.T) {
	stores := openStores(t)
	stores.seedEpisode(t, "ep-1", "Pilot")
	stores.seedScene(t, "ep-1", 99, "Hand placed", 0, 5, model.SceneMetadata{})

	storage := newFakeStorage()
	analyzer := &fakeAnalyzer{
		meta: model.VideoMetadata{Duration: 30, Width: 1920, Height: 1080},
		cuts: []model.CutEvent{{Timestamp: 10, ChangeScore: 0.7}, {Timestamp: 20, ChangeScore: 0.8}},
		luma: 200,
	}
	svc := newSegmentService(t, stores, analyzer, storage)

	req := &model.SegmentRequest{EpisodeID: "ep-1", VideoID: "vid-1", VideoPath: "videos/pilot.mp4"}
	res, err := svc.SegmentVideo(context.Background(), req)
	if err != nil {
		t.Fatalf("SegmentVideo() error = %v", err)
	}
	if len(res.Scenes) != 3 {
		t.Fatalf("expected 3 scenes, got %d", len(res.Scenes))
	}
	for i, s := range res.Scenes {
		if s.SceneNumber != i+1 || s.Source != model.SceneSourceDetected {
			t.Errorf("scene %d = %+v", i, s)
		}
		if s.ThumbnailKey == nil || !storage.has("thumbs", *s.ThumbnailKey) {
			t.Errorf("scene %d thumbnail missing", i)
		}
		if s.Characteristics == nil || s.Characteristics.Brightness != model.BrightnessBright {
			t.Errorf("scene %d characteristics = %+v", i, s.Characteristics)
		}
	}
	if len(res.Warnings) != 0 {
		t.Errorf("unexpected warnings %v", res.Warnings)
	}

	scenes, err := svc.ListScenes(context.Background(), "ep-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(scenes) != 4 {
		t.Errorf("expected 3 detected + 1 manual scene, got %d", len(scenes))
	}

	// Re-running replaces detected scenes instead of accumulating them.
	if _, err := svc.SegmentVideo(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	scenes, _ = svc.ListScenes(context.Background(), "ep-1")
	if len(scenes) != 4 {
		t.Errorf("after rerun expected 4 scenes, got %d", len(scenes))
	}
}

func TestSegmentVideo_BestEffortSideChannels(t *testing.T) {
	stores := openStores(t)
	stores.seedEpisode(t, "ep-1", "Pilot")

	storage := newFakeStorage()
	analyzer := &fakeAnalyzer{
		meta:     model.VideoMetadata{Duration: 12},
		frameErr: errors.New("frame grab failed"),
		lumaErr:  errors.New("signalstats failed"),
	}
	svc := newSegmentService(t, stores, analyzer, storage)

	res, err := svc.SegmentVideo(context.Background(), &model.SegmentRequest{EpisodeID: "ep-1", VideoID: "v", VideoPath: "v.mp4"})
	if err != nil {
		t.Fatalf("side-channel failures must not fail segmentation: %v", err)
	}
	if len(res.Scenes) != 1 {
		t.Fatalf("expected a single scene, got %d", len(res.Scenes))
	}
	if res.Scenes[0].ThumbnailKey != nil {
		t.Error("expected no thumbnail")
	}
	if *res.Scenes[0].Characteristics != model.DefaultCharacteristics() {
		t.Errorf("expected default characteristics, got %+v", res.Scenes[0].Characteristics)
	}
	if len(res.Warnings) != 2 {
		t.Errorf("expected 2 warnings, got %v", res.Warnings)
	}
}

func TestSegmentVideo_FromStorage(t *testing.T) {
	stores := openStores(t)
	stores.seedEpisode(t, "ep-1", "Pilot")

	storage := newFakeStorage()
	storage.objects["raw/episodes/ep-1/source.mp4"] = []byte("video")
	analyzer := &fakeAnalyzer{meta: model.VideoMetadata{Duration: 8}, luma: 100}
	svc := newSegmentService(t, stores, analyzer, storage)

	res, err := svc.SegmentVideo(context.Background(), &model.SegmentRequest{
		EpisodeID: "ep-1", VideoID: "v", Bucket: "raw", Key: "episodes/ep-1/source.mp4",
	})
	if err != nil {
		t.Fatalf("SegmentVideo() error = %v", err)
	}
	if len(res.Scenes) != 1 {
		t.Errorf("expected 1 scene, got %d", len(res.Scenes))
	}

	_, err = svc.SegmentVideo(context.Background(), &model.SegmentRequest{
		EpisodeID: "ep-1", VideoID: "v", Bucket: "raw", Key: "missing.mp4",
	})
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("expected not found for missing source, got %v", err)
	}
}

func TestSegmentVideo_Errors(t *testing.T) {
	stores := openStores(t)
	stores.seedEpisode(t, "ep-1", "Pilot")
	analyzer := &fakeAnalyzer{probeErr: apperr.Upstream("Probe", errors.New("exit 1"))}
	svc := newSegmentService(t, stores, analyzer, newFakeStorage())
	ctx := context.Background()

	if _, err := svc.SegmentVideo(ctx, &model.SegmentRequest{EpisodeID: "ep-1", VideoID: "v"}); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("no source: expected validation, got %v", err)
	}
	if _, err := svc.SegmentVideo(ctx, &model.SegmentRequest{EpisodeID: "nope", VideoID: "v", VideoPath: "v.mp4"}); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("unknown episode: expected not found, got %v", err)
	}
	if _, err := svc.SegmentVideo(ctx, &model.SegmentRequest{EpisodeID: "ep-1", VideoID: "v", VideoPath: "v.mp4"}); !apperr.Is(err, apperr.KindUpstream) {
		t.Errorf("probe failure: expected upstream, got %v", err)
	}
}

func TestSegmentVideo_PathConfinedToWorkDir(t *testing.T) {
	stores := openStores(t)
	stores.seedEpisode(t, "ep-1", "Pilot")
	analyzer := &fakeAnalyzer{meta: model.VideoMetadata{Duration: 6}, luma: 100}
	svc := newSegmentService(t, stores, analyzer, newFakeStorage())
	ctx := context.Background()

	for _, path := range []string{"/etc/passwd", "../secret.mp4", "clips/../../x.mp4", "."} {
		_, err := svc.SegmentVideo(ctx, &model.SegmentRequest{EpisodeID: "ep-1", VideoID: "v", VideoPath: path})
		if !apperr.Is(err, apperr.KindValidation) {
			t.Errorf("videoPath %q: expected validation error, got %v", path, err)
		}
	}
	if len(analyzer.probed) != 0 {
		t.Fatalf("rejected paths reached the analyzer: %v", analyzer.probed)
	}

	inside := filepath.Join(svc.cfg.WorkDir, "clips", "a.mp4")
	for _, path := range []string{"clips/a.mp4", inside, "concat:clips/a.mp4"} {
		if _, err := svc.SegmentVideo(ctx, &model.SegmentRequest{EpisodeID: "ep-1", VideoID: "v", VideoPath: path}); err != nil {
			t.Fatalf("videoPath %q: %v", path, err)
		}
	}
	for _, got := range analyzer.probed {
		if !strings.HasPrefix(got, svc.cfg.WorkDir+string(filepath.Separator)) {
			t.Errorf("analyzer received %q outside %s", got, svc.cfg.WorkDir)
		}
	}
}
