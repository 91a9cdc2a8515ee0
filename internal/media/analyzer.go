// Package media wraps ffmpeg and ffprobe for scene analysis. All calls share
// a bounded pool of subprocess slots.
package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/episodeline/pipeline/internal/apperr"
	"github.com/episodeline/pipeline/internal/logging"
	"github.com/episodeline/pipeline/internal/model"
)

// Analyzer inspects local video files.
type Analyzer interface {
	Probe(ctx context.Context, path string) (*model.VideoMetadata, error)
	DetectCuts(ctx context.Context, path string, threshold float64) ([]model.CutEvent, error)
	ExtractFrame(ctx context.Context, path string, at float64, outPath string) error
	AverageLuma(ctx context.Context, path string, start, duration float64) (float64, error)
}

type Options struct {
	FFmpegPath    string
	FFprobePath   string
	MaxConcurrent int
	Timeout       time.Duration
	Logger        logrus.FieldLogger
	// Command replaces process execution, for tests.
	Command CommandFunc
}

// FFmpeg implements Analyzer with the ffmpeg/ffprobe binaries
type FFmpeg struct {
	ffmpeg  string
	ffprobe string
	pool    *pool
}

func NewFFmpeg(opts Options) *FFmpeg {
	if opts.FFmpegPath == "" {
		opts.FFmpegPath = "ffmpeg"
	}
	if opts.FFprobePath == "" {
		opts.FFprobePath = "ffprobe"
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &FFmpeg{
		ffmpeg:  opts.FFmpegPath,
		ffprobe: opts.FFprobePath,
		pool:    newPool(opts.MaxConcurrent, opts.Timeout, opts.Command, logging.WithComponent(log, "media")),
	}
}

func (f *FFmpeg) Probe(ctx context.Context, path string) (*model.VideoMetadata, error) {
	out, err := f.pool.run(ctx, f.ffprobe, probeArgs(path)...)
	if err != nil {
		return nil, apperr.Upstream("Probe", err)
	}
	meta, err := parseProbe(out)
	if err != nil {
		return nil, apperr.Parse("Probe", err)
	}
	return meta, nil
}

func (f *FFmpeg) DetectCuts(ctx context.Context, path string, threshold float64) ([]model.CutEvent, error) {
	out, err := f.pool.run(ctx, f.ffmpeg, sceneArgs(path, threshold)...)
	if err != nil {
		return nil, apperr.Upstream("DetectCuts", err)
	}
	return parseSceneScores(out, threshold), nil
}

func (f *FFmpeg) ExtractFrame(ctx context.Context, path string, at float64, outPath string) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("failed to create frame directory: %w", err)
	}
	if _, err := f.pool.run(ctx, f.ffmpeg, frameArgs(path, at, outPath)...); err != nil {
		return apperr.Upstream("ExtractFrame", err)
	}
	return nil
}

func (f *FFmpeg) AverageLuma(ctx context.Context, path string, start, duration float64) (float64, error) {
	if duration > CharacteristicsWindow {
		duration = CharacteristicsWindow
	}
	out, err := f.pool.run(ctx, f.ffmpeg, lumaArgs(path, start, duration)...)
	if err != nil {
		return 0, apperr.Upstream("AverageLuma", err)
	}
	luma, ok := parseAverageLuma(out)
	if !ok {
		return 0, apperr.Parse("AverageLuma", fmt.Errorf("no luma samples"))
	}
	return luma, nil
}
