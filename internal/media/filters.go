package media

import (
	"bufio"
	"bytes"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/episodeline/pipeline/internal/model"
)

const (
	sceneScoreKey = "lavfi.scene_score="
	lumaKey       = "lavfi.signalstats.YAVG="

	darkLumaBelow   = 60.0
	brightLumaAbove = 180.0

	// CharacteristicsWindow caps how much of a scene is sampled for luma.
	CharacteristicsWindow = 5.0
)

// inputURL pins inputs to the file protocol so a path can never select
// another ffmpeg protocol handler.
func inputURL(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return "file:" + path
}

func sceneArgs(path string, threshold float64) []string {
	filter := fmt.Sprintf("select='gt(scene,%s)',metadata=print:file=-", formatSeconds(threshold))
	return []string{"-hide_banner", "-nostats", "-i", inputURL(path), "-vf", filter, "-an", "-f", "null", "-"}
}

func frameArgs(path string, at float64, outPath string) []string {
	return []string{"-hide_banner", "-loglevel", "error", "-ss", formatSeconds(at), "-i", inputURL(path),
		"-frames:v", "1", "-q:v", "2", "-y", outPath}
}

func lumaArgs(path string, start, duration float64) []string {
	return []string{"-hide_banner", "-nostats", "-ss", formatSeconds(start), "-t", formatSeconds(duration),
		"-i", inputURL(path), "-vf", "signalstats,metadata=print:key=lavfi.signalstats.YAVG:file=-", "-an", "-f", "null", "-"}
}

// parseSceneScores reads metadata=print output and returns one cut per frame
// whose scene score is strictly above threshold, numbered from 1.
func parseSceneScores(out []byte, threshold float64) []model.CutEvent {
	var (
		cuts    []model.CutEvent
		ptsTime = -1.0
	)

	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if idx := strings.Index(line, "pts_time:"); idx >= 0 {
			field := strings.Fields(line[idx+len("pts_time:"):])
			if len(field) > 0 {
				if v, err := strconv.ParseFloat(field[0], 64); err == nil {
					ptsTime = v
				}
			}
			continue
		}
		if !strings.HasPrefix(line, sceneScoreKey) || ptsTime < 0 {
			continue
		}
		score, err := strconv.ParseFloat(strings.TrimPrefix(line, sceneScoreKey), 64)
		if err != nil || score <= threshold {
			continue
		}
		cuts = append(cuts, model.CutEvent{
			Number:      len(cuts) + 1,
			Timestamp:   ptsTime,
			ChangeScore: score,
		})
		ptsTime = -1
	}
	return cuts
}

// parseAverageLuma averages every YAVG sample in the output.
func parseAverageLuma(out []byte) (float64, bool) {
	var sum float64
	var n int

	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, lumaKey) {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimPrefix(line, lumaKey), 64)
		if err != nil {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

func ClassifyBrightness(luma float64) model.Brightness {
	switch {
	case luma < darkLumaBelow:
		return model.BrightnessDark
	case luma > brightLumaAbove:
		return model.BrightnessBright
	default:
		return model.BrightnessNormal
	}
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}
