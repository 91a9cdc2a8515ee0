package media

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/episodeline/pipeline/internal/model"
)

type probeResult struct {
	Streams []probeStream `json:"streams"`
	Format  probeFormat   `json:"format"`
}

type probeStream struct {
	CodecType    string `json:"codec_type"`
	CodecName    string `json:"codec_name"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	RFrameRate   string `json:"r_frame_rate"`
	AvgFrameRate string `json:"avg_frame_rate"`
	Duration     string `json:"duration"`
}

type probeFormat struct {
	Duration string `json:"duration"`
	Size     string `json:"size"`
	BitRate  string `json:"bit_rate"`
}

func probeArgs(path string) []string {
	return []string{"-v", "error", "-print_format", "json", "-show_format", "-show_streams", inputURL(path)}
}

// parseProbe turns ffprobe JSON into video metadata. A file without a video
// stream or a positive duration is rejected.
func parseProbe(data []byte) (*model.VideoMetadata, error) {
	var res probeResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("invalid ffprobe output: %w", err)
	}

	meta := &model.VideoMetadata{
		Duration: parseFloat(res.Format.Duration),
		Size:     int64(parseFloat(res.Format.Size)),
		Bitrate:  int64(parseFloat(res.Format.BitRate)),
	}

	var video *probeStream
	for i := range res.Streams {
		s := &res.Streams[i]
		switch s.CodecType {
		case "video":
			if video == nil {
				video = s
			}
		case "audio":
			if meta.AudioCodec == "" {
				meta.AudioCodec = s.CodecName
			}
		}
	}
	if video == nil {
		return nil, fmt.Errorf("no video stream found")
	}

	meta.VideoCodec = video.CodecName
	meta.Width = video.Width
	meta.Height = video.Height
	meta.FrameRate = parseFrameRate(video.RFrameRate)
	if meta.FrameRate == 0 {
		meta.FrameRate = parseFrameRate(video.AvgFrameRate)
	}
	if meta.Duration <= 0 {
		meta.Duration = parseFloat(video.Duration)
	}
	if meta.Duration <= 0 {
		return nil, fmt.Errorf("video duration unavailable")
	}

	return meta, nil
}

// parseFrameRate accepts "30", "29.97" or a fraction like "30000/1001".
func parseFrameRate(s string) float64 {
	num, den, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		return parseFloat(num)
	}
	d := parseFloat(den)
	if d == 0 {
		return 0
	}
	return parseFloat(num) / d
}

func parseFloat(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" || s == "N/A" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
