// Package ffmpeg is the video I/O collaborator of the compositor. Container
// and codec handling is delegated to the ffmpeg and ffprobe binaries; this
// package only moves raw RGBA frames through their pipes.
package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// FFmpeg wraps FFmpeg binary execution
type FFmpeg struct {
	binaryPath string
	probePath  string
}

// New locates ffmpeg and ffprobe. Explicit paths win over PATH lookup.
func New(ffmpegPath, ffprobePath string) (*FFmpeg, error) {
	var err error
	if ffmpegPath == "" {
		if ffmpegPath, err = findBinary("ffmpeg"); err != nil {
			return nil, fmt.Errorf("ffmpeg not found: %w", err)
		}
	}
	if ffprobePath == "" {
		if ffprobePath, err = findBinary("ffprobe"); err != nil {
			return nil, fmt.Errorf("ffprobe not found: %w", err)
		}
	}

	return &FFmpeg{
		binaryPath: ffmpegPath,
		probePath:  ffprobePath,
	}, nil
}

// findBinary locates a binary in PATH or common locations
func findBinary(name string) (string, error) {
	if path, err := exec.LookPath(name); err == nil {
		return path, nil
	}

	var paths []string
	switch runtime.GOOS {
	case "darwin":
		paths = []string{
			"/opt/homebrew/bin/" + name,
			"/usr/local/bin/" + name,
		}
	case "linux":
		paths = []string{
			"/usr/bin/" + name,
			"/usr/local/bin/" + name,
		}
	case "windows":
		paths = []string{
			"C:\\ffmpeg\\bin\\" + name + ".exe",
			"C:\\Program Files\\ffmpeg\\bin\\" + name + ".exe",
		}
	}

	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("%s not found in PATH or common locations", name)
}

// Version returns the FFmpeg version string
func (f *FFmpeg) Version(ctx context.Context) (string, error) {
	cmd := exec.CommandContext(ctx, f.binaryPath, "-version")
	output, err := cmd.Output()
	if err != nil {
		return "", err
	}

	lines := strings.Split(string(output), "\n")
	if len(lines) > 0 {
		return strings.TrimSpace(lines[0]), nil
	}
	return "", fmt.Errorf("no version output")
}
