// Package source turns command-line source descriptors into the flat entry
// table the compositor pulls frames from: start epochs, continuation chains,
// slot compaction and the slide matches of the reference source.
package source

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sort"

	"github.com/reknow/combine-video/internal/logger"
	"github.com/reknow/combine-video/internal/render"
)

// ErrNoSources is returned when every descriptor was skipped
var ErrNoSources = errors.New("no usable sources")

// NoSlot disables an optional slot role
const NoSlot = -1

// Status of a source entry
type Status int

const (
	Pending   Status = iota // continuation waiting for its predecessor
	Active                  // being pulled
	Exhausted               // no more frames
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Active:
		return "active"
	case Exhausted:
		return "exhausted"
	}
	return "unknown"
}

// FrameReader yields decoded frames in order until it returns an error
type FrameReader interface {
	ReadFrame() (*image.RGBA, error)
	Close() error
}

// OpenFunc opens a video for sequential reading
type OpenFunc func(ctx context.Context, path string) (FrameReader, error)

// Resolver resolves the absolute start epoch of a video
type Resolver interface {
	Resolve(ctx context.Context, path string, offset int64) (int64, error)
}

// Options assigns the optional slot roles
type Options struct {
	SlideSlot       int            // slot whose matches drive the slide, NoSlot for none
	StartSlot       int            // slot that marks the recording start, NoSlot for none
	PerspectiveSlot int            // slot that gets perspective correction, NoSlot for none
	Transform       *render.Matrix // homography for PerspectiveSlot
}

// DefaultOptions returns options with every role disabled
func DefaultOptions() Options {
	return Options{SlideSlot: NoSlot, StartSlot: NoSlot, PerspectiveSlot: NoSlot}
}

// Entry is one video in the flat source table
type Entry struct {
	Slot         int
	Path         string
	StartEpoch   int64 // informational for continuations
	Status       Status
	CurrentFrame int
	Continuation bool
	Successor    int // index into Registry.Entries, -1 for none
	Matches      SlideMatches
	Transform    *render.Matrix

	reader   FrameReader
	duration float64
}

// ReadFrame pulls the next frame from the entry's video
func (e *Entry) ReadFrame() (*image.RGBA, error) {
	return e.reader.ReadFrame()
}

// Registry holds every source entry in descriptor order
type Registry struct {
	Entries []*Entry

	MinEpoch         int64
	RecordStartEpoch int64
	HasStartSlot     bool // a start slot was configured and resolved

	slots   []int
	slotIdx map[int]int
}

type durationer interface {
	Duration() float64
}

// Build opens every descriptor's video, resolves start epochs and links
// continuations. A timestamp failure skips that stream with a warning unless
// it is the only stream. Any other failure closes what was opened and
// returns the error.
func Build(ctx context.Context, descs []Descriptor, opts Options, open OpenFunc, resolver Resolver) (*Registry, error) {
	r := &Registry{}
	skippedPrev := false

	for i, d := range descs {
		if d.Continuation {
			if i == 0 || len(r.Entries) == 0 {
				r.Close()
				return nil, fmt.Errorf("%w: %s has no predecessor", ErrInvalidContinuation, d)
			}
			if skippedPrev {
				r.Close()
				return nil, fmt.Errorf("%w: predecessor of %s was skipped", ErrInvalidContinuation, d)
			}
			if pred := r.Entries[len(r.Entries)-1]; pred.Slot != d.Slot {
				r.Close()
				return nil, fmt.Errorf("%w: %s follows slot %d", ErrInvalidContinuation, d, pred.Slot)
			}
		}

		reader, err := open(ctx, d.Path)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("open source %s: %w", d.Path, err)
		}

		e := &Entry{
			Slot:         d.Slot,
			Path:         d.Path,
			Continuation: d.Continuation,
			Successor:    -1,
			reader:       reader,
		}
		if dr, ok := reader.(durationer); ok {
			e.duration = dr.Duration()
		}

		if d.Continuation {
			pred := r.Entries[len(r.Entries)-1]
			pred.Successor = len(r.Entries)
			e.Status = Pending
			e.StartEpoch = pred.StartEpoch + int64(pred.duration)
		} else {
			start, err := resolver.Resolve(ctx, d.Path, d.Offset)
			if err != nil {
				reader.Close()
				if len(descs) == 1 {
					r.Close()
					return nil, fmt.Errorf("source %s: %w", d.Path, err)
				}
				logger.Warn("Registry", "Skipping %s: %v", d.Path, err)
				skippedPrev = true
				continue
			}
			e.StartEpoch = start
			e.Status = Active
		}
		skippedPrev = false

		if d.Slot == opts.SlideSlot {
			matches, err := LoadMatches(d.Path)
			if err != nil {
				reader.Close()
				r.Close()
				return nil, fmt.Errorf("source %s: %w", d.Path, err)
			}
			e.Matches = matches
			logger.Info("Registry", "Loaded %d slide matches for %s", len(matches), d.Path)
		}
		if d.Slot == opts.PerspectiveSlot && opts.Transform != nil {
			e.Transform = opts.Transform
		}

		logger.Info("Registry", "Source %s slot %d start %d (%s)", d.Path, d.Slot, e.StartEpoch, e.Status)
		r.Entries = append(r.Entries, e)
	}

	if len(r.Entries) == 0 {
		return nil, ErrNoSources
	}

	r.compactSlots()
	r.resolveEpochs(opts.StartSlot)
	return r, nil
}

func (r *Registry) compactSlots() {
	r.slotIdx = make(map[int]int)
	for _, e := range r.Entries {
		if _, ok := r.slotIdx[e.Slot]; !ok {
			r.slotIdx[e.Slot] = 0
			r.slots = append(r.slots, e.Slot)
		}
	}
	sort.Ints(r.slots)
	for i, s := range r.slots {
		r.slotIdx[s] = i
	}
}

func (r *Registry) resolveEpochs(startSlot int) {
	first := true
	for _, e := range r.Entries {
		if e.Continuation {
			continue
		}
		if first || e.StartEpoch < r.MinEpoch {
			r.MinEpoch = e.StartEpoch
		}
		first = false
		if startSlot != NoSlot && e.Slot == startSlot {
			if !r.HasStartSlot || e.StartEpoch < r.RecordStartEpoch {
				r.RecordStartEpoch = e.StartEpoch
			}
			r.HasStartSlot = true
		}
	}
	if !r.HasStartSlot {
		if startSlot != NoSlot {
			logger.Warn("Registry", "No source in start slot %d, recording from the first frame", startSlot)
		}
		r.RecordStartEpoch = r.MinEpoch
	}
}

// SlotCount returns the number of distinct slots
func (r *Registry) SlotCount() int {
	return len(r.slots)
}

// Slots returns the distinct slot numbers in ascending order
func (r *Registry) Slots() []int {
	return append([]int(nil), r.slots...)
}

// LayoutIndex maps a slot number to its compacted position
func (r *Registry) LayoutIndex(slot int) int {
	idx, ok := r.slotIdx[slot]
	if !ok {
		return -1
	}
	return idx
}

// ActiveCount returns how many entries are currently active
func (r *Registry) ActiveCount() int {
	n := 0
	for _, e := range r.Entries {
		if e.Status == Active {
			n++
		}
	}
	return n
}

// Done reports whether no entry can produce frames any more
func (r *Registry) Done() bool {
	return r.ActiveCount() == 0
}

// Exhaust marks entry i exhausted, releases its reader and returns its
// successor index or -1.
func (r *Registry) Exhaust(i int) int {
	e := r.Entries[i]
	if e.Status == Exhausted {
		return -1
	}
	e.Status = Exhausted
	if err := e.reader.Close(); err != nil {
		logger.Debug("Registry", "Closing %s: %v", e.Path, err)
	}
	logger.Info("Registry", "Source %s exhausted after %d frames", e.Path, e.CurrentFrame)
	return e.Successor
}

// Activate switches a pending continuation to active
func (r *Registry) Activate(i int) {
	e := r.Entries[i]
	if e.Status != Pending {
		return
	}
	e.Status = Active
	logger.Info("Registry", "Continuation %s activated in slot %d", e.Path, e.Slot)
}

// Close releases every reader that is still open
func (r *Registry) Close() {
	for _, e := range r.Entries {
		if e.Status != Exhausted {
			e.reader.Close()
		}
	}
}
