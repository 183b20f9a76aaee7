// Package timestamp resolves the absolute start time of a recording.
//
// Recordings carry their start either in a sidecar text file next to the
// video or in the container metadata. Both hold a local date/time qualified
// by a Finnish timezone token (EET, EEST) or a numeric +0200/+0300 offset;
// everything is converted to UTC epoch seconds.
package timestamp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/reknow/combine-video/internal/logger"
)

var (
	// ErrTimestampMissing is returned when neither a sidecar file nor the
	// container metadata yields a timestamp string.
	ErrTimestampMissing = errors.New("timestamp missing")

	// ErrTimezoneMissing is returned for strings with no zone token and no offset.
	ErrTimezoneMissing = errors.New("timezone missing")

	// ErrUnrecognizedTimezone is returned for offsets other than +0200 and +0300.
	ErrUnrecognizedTimezone = errors.New("unrecognized timezone")
)

const (
	eetOffset  = 2 * 60 * 60
	eestOffset = 3 * 60 * 60
)

// sidecar suffixes written by the capture application
var captureNames = []string{"capture0.avi", "capture1.avi"}

// MetadataReader reads date fields from a container. Implemented by the
// ffmpeg package; kept as an interface so resolution is testable without
// ffprobe.
type MetadataReader interface {
	RecordedDate(ctx context.Context, path string) (string, error)
	EncodedDate(ctx context.Context, path string) (string, error)
}

// Resolver produces start epochs for video files.
type Resolver struct {
	meta MetadataReader
}

// NewResolver creates a Resolver. meta may be nil, in which case only
// sidecar files are consulted.
func NewResolver(meta MetadataReader) *Resolver {
	return &Resolver{meta: meta}
}

// SidecarPath returns the timestamp file that belongs to a video path.
func SidecarPath(videoPath string) string {
	for _, name := range captureNames {
		if strings.Contains(videoPath, name) {
			return strings.Replace(videoPath, name, "starttime.txt", 1)
		}
	}
	return videoPath + ".txt"
}

// Resolve returns the start epoch of path plus offset seconds.
func (r *Resolver) Resolve(ctx context.Context, path string, offset int64) (int64, error) {
	timestring, err := r.lookup(ctx, path)
	if err != nil {
		return 0, err
	}

	epoch, err := Parse(timestring)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}

	if offset != 0 {
		logger.Info("Timestamp", "Using an offset of %d for %s", offset, path)
	}
	return epoch + offset, nil
}

func (r *Resolver) lookup(ctx context.Context, path string) (string, error) {
	timefn := SidecarPath(path)
	if line, err := readFirstLine(timefn); err == nil && line != "" {
		logger.Debug("Timestamp", "Found timestamp file [%s]: %s", timefn, line)
		return line, nil
	}

	if r.meta != nil {
		logger.Info("Timestamp", "Timestamp file [%s] not usable, analyzing %s metadata", timefn, path)
		if s, err := r.meta.RecordedDate(ctx, path); err == nil && s != "" {
			logger.Info("Timestamp", "  found recorded date: %s", s)
			return s, nil
		}
		logger.Debug("Timestamp", "  recorded date not found")
		if s, err := r.meta.EncodedDate(ctx, path); err == nil && s != "" {
			logger.Info("Timestamp", "  found encoded date: %s", s)
			return s, nil
		}
		logger.Debug("Timestamp", "  encoded date not found")
	}

	return "", fmt.Errorf("%s: %w", path, ErrTimestampMissing)
}

func readFirstLine(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", err
		}
		return "", fmt.Errorf("%s: empty timestamp file", path)
	}
	return strings.TrimSpace(scanner.Text()), nil
}

// Parse converts a timezone-qualified local date/time into UTC epoch
// seconds. Accepted forms:
//
//	2015-03-05T12:00:00EET
//	2015-03-05 12:00:00EEST
//	2015-03-05T12:00:00+0200
func Parse(s string) (int64, error) {
	timestring := strings.TrimSpace(s)
	var tzinsecs int64

	switch {
	case strings.Contains(timestring, "EEST"):
		timestring = strings.Replace(timestring, "EEST", "", 1)
		tzinsecs = eestOffset
	case strings.Contains(timestring, "EET"):
		timestring = strings.Replace(timestring, "EET", "", 1)
		tzinsecs = eetOffset
	default:
		parts := strings.Split(timestring, "+")
		if len(parts) < 2 {
			return 0, fmt.Errorf("%w: [%s]", ErrTimezoneMissing, s)
		}
		timestring = parts[0]
		switch zone := strings.TrimSpace(parts[1]); zone {
		case "0200":
			tzinsecs = eetOffset
		case "0300":
			tzinsecs = eestOffset
		default:
			return 0, fmt.Errorf("%w: [%s]", ErrUnrecognizedTimezone, zone)
		}
	}

	timestring = strings.TrimSpace(strings.Replace(timestring, "T", " ", 1))

	t, err := parseNaive(timestring)
	if err != nil {
		return 0, err
	}
	return t.Unix() - tzinsecs, nil
}

var naiveLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006/01/02 15:04:05",
}

// parseNaive interprets the string as if it were UTC; the caller subtracts
// the zone offset afterwards.
func parseNaive(s string) (time.Time, error) {
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable time [%s]", s)
}

// ParseEEST parses a time column that carries no zone of its own and is
// known to be recorded in EEST (heart-rate logs).
func ParseEEST(s string) (int64, error) {
	return Parse(strings.TrimSpace(s) + "EEST")
}

// FormatEncodedDate normalises a container "encoded" date into the string
// form Parse understands. Both "UTC 2015-03-05 10:00:00" and ISO-8601
// creation times are accepted; the result is tagged EEST, matching what the
// capture rigs wrote.
func FormatEncodedDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrTimestampMissing
	}

	fields := strings.Fields(s)
	if len(fields) == 3 {
		return fields[1] + "T" + fields[2] + "EEST", nil
	}

	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.Format("2006-01-02T15:04:05") + "EEST", nil
	}
	if len(fields) == 2 {
		return fields[0] + "T" + fields[1] + "EEST", nil
	}
	return "", fmt.Errorf("unrecognized encoded date [%s]", s)
}
