package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"

	"github.com/reknow/combine-video/internal/timestamp"
)

// ProbeResult holds video file information
type ProbeResult struct {
	Format  ProbeFormat   `json:"format"`
	Streams []ProbeStream `json:"streams"`
}

// ProbeFormat holds format-level information
type ProbeFormat struct {
	Filename   string            `json:"filename"`
	FormatName string            `json:"format_name"`
	Duration   string            `json:"duration"`
	Size       string            `json:"size"`
	BitRate    string            `json:"bit_rate"`
	Tags       map[string]string `json:"tags,omitempty"`
}

// ProbeStream holds stream-level information
type ProbeStream struct {
	Index        int               `json:"index"`
	CodecName    string            `json:"codec_name"`
	CodecType    string            `json:"codec_type"` // video, audio
	Width        int               `json:"width,omitempty"`
	Height       int               `json:"height,omitempty"`
	PixFmt       string            `json:"pix_fmt,omitempty"`
	FrameRate    string            `json:"r_frame_rate,omitempty"`
	AvgFrameRate string            `json:"avg_frame_rate,omitempty"`
	Duration     string            `json:"duration,omitempty"`
	NbFrames     string            `json:"nb_frames,omitempty"`
	Tags         map[string]string `json:"tags,omitempty"`
}

// Probe analyzes a video file and returns metadata
func (f *FFmpeg) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	}

	cmd := exec.CommandContext(ctx, f.probePath, args...)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	return parseProbe(output)
}

func parseProbe(output []byte) (*ProbeResult, error) {
	var result ProbeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}
	return &result, nil
}

// VideoInfo returns simplified video information
type VideoInfo struct {
	Width     int
	Height    int
	Duration  float64
	Framerate float64
	Codec     string
}

// GetVideoInfo returns simplified video information
func (f *FFmpeg) GetVideoInfo(ctx context.Context, path string) (*VideoInfo, error) {
	probe, err := f.Probe(ctx, path)
	if err != nil {
		return nil, err
	}
	return probe.videoInfo()
}

func (p *ProbeResult) videoInfo() (*VideoInfo, error) {
	info := &VideoInfo{}
	found := false

	for _, stream := range p.Streams {
		if stream.CodecType != "video" {
			continue
		}
		info.Width = stream.Width
		info.Height = stream.Height
		info.Codec = stream.CodecName

		// Parse framerate (format: "30/1" or "30000/1001")
		if stream.AvgFrameRate != "" && stream.AvgFrameRate != "0/0" {
			info.Framerate = parseFramerate(stream.AvgFrameRate)
		} else if stream.FrameRate != "" {
			info.Framerate = parseFramerate(stream.FrameRate)
		}
		found = true
		break
	}
	if !found || info.Width <= 0 || info.Height <= 0 {
		return nil, fmt.Errorf("no video stream in %s", p.Format.Filename)
	}

	if p.Format.Duration != "" {
		info.Duration, _ = strconv.ParseFloat(p.Format.Duration, 64)
	}

	return info, nil
}

// parseFramerate parses a framerate string like "30/1" or "30000/1001"
func parseFramerate(s string) float64 {
	var num, den int
	if n, _ := fmt.Sscanf(s, "%d/%d", &num, &den); n == 2 && den != 0 {
		return float64(num) / float64(den)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return 0
}

// container tags that carry the recording date, in order of preference
var (
	recordedTags = []string{"date", "DATE_RECORDED", "com.apple.quicktime.creationdate", "recorded_date"}
	encodedTags  = []string{"creation_time", "encoded_date", "DATE_ENCODED"}
)

// RecordedDate returns the recorded date from the container tags.
func (f *FFmpeg) RecordedDate(ctx context.Context, path string) (string, error) {
	probe, err := f.Probe(ctx, path)
	if err != nil {
		return "", err
	}
	return probe.tag(recordedTags), nil
}

// EncodedDate returns the encoded date, normalised for timestamp.Parse.
func (f *FFmpeg) EncodedDate(ctx context.Context, path string) (string, error) {
	probe, err := f.Probe(ctx, path)
	if err != nil {
		return "", err
	}
	raw := probe.tag(encodedTags)
	if raw == "" {
		return "", nil
	}
	return timestamp.FormatEncodedDate(raw)
}

func (p *ProbeResult) tag(keys []string) string {
	for _, key := range keys {
		if v := p.Format.Tags[key]; v != "" {
			return v
		}
	}
	for _, stream := range p.Streams {
		for _, key := range keys {
			if v := stream.Tags[key]; v != "" {
				return v
			}
		}
	}
	return ""
}
