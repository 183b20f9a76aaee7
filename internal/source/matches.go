package source

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

// ErrMatchesMissing is returned when the slide reference source has no
// readable matches file
var ErrMatchesMissing = errors.New("slide matches file missing")

// MatchesPath returns the matches file that belongs to a video
func MatchesPath(videoPath string) string {
	return videoPath + ".matches.txt"
}

// Match is one line of a matches file
type Match struct {
	Frame int
	Slide string // "" repeats the previous line's slide
}

// SlideMatches maps a source frame index to the slide shown at that frame
type SlideMatches map[int]string

// Lookup returns the slide for frame, if any
func (m SlideMatches) Lookup(frame int) (string, bool) {
	s, ok := m[frame]
	return s, ok
}

// Lines returns the table as explicit, frame-ordered match lines
func (m SlideMatches) Lines() []Match {
	lines := make([]Match, 0, len(m))
	for f, s := range m {
		lines = append(lines, Match{Frame: f, Slide: s})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].Frame < lines[j].Frame })
	return lines
}

// Expand builds the frame table from match lines. An omitted slide repeats
// the previous one. When two consecutive lines name the same slide every
// index between them is filled with that slide; gaps between different
// slides stay unset. Expanding the Lines of an expanded table yields the
// same table.
func Expand(lines []Match) SlideMatches {
	m := make(SlideMatches, len(lines))
	prevFrame := -1
	prevSlide := ""
	for _, l := range lines {
		slide := l.Slide
		if slide == "" {
			slide = prevSlide
		}
		if slide == "" {
			prevFrame = l.Frame
			continue
		}
		m[l.Frame] = slide
		if slide == prevSlide {
			for i := l.Frame - 1; i > prevFrame; i-- {
				m[i] = slide
			}
		}
		prevFrame = l.Frame
		prevSlide = slide
	}
	return m
}

// ParseMatches reads "frameIndex [slideFilename]" lines. Blank lines are
// ignored.
func ParseMatches(r io.Reader) ([]Match, error) {
	var lines []Match
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		frame, err := strconv.Atoi(fields[0])
		if err != nil || frame < 0 {
			return nil, fmt.Errorf("line %d: bad frame index %q", lineNo, fields[0])
		}
		m := Match{Frame: frame}
		if len(fields) > 1 {
			m.Slide = fields[1]
		}
		lines = append(lines, m)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

// LoadMatches reads and expands the matches file of videoPath
func LoadMatches(videoPath string) (SlideMatches, error) {
	path := MatchesPath(videoPath)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMatchesMissing, err)
	}
	defer f.Close()

	lines, err := ParseMatches(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return Expand(lines), nil
}
