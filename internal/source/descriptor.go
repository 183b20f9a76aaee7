package source

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrInvalidDescriptor is returned for a malformed slot:path[:offset|C] argument
	ErrInvalidDescriptor = errors.New("invalid source descriptor")

	// ErrInvalidContinuation is returned when a continuation has no usable predecessor
	ErrInvalidContinuation = errors.New("invalid continuation")
)

// Descriptor is one parsed command-line source argument
type Descriptor struct {
	Slot         int
	Path         string
	Offset       int64 // seconds added to the resolved start
	Continuation bool  // plays after the preceding descriptor in the same slot
}

func (d Descriptor) String() string {
	switch {
	case d.Continuation:
		return fmt.Sprintf("%d:%s:C", d.Slot, d.Path)
	case d.Offset != 0:
		return fmt.Sprintf("%d:%s:%d", d.Slot, d.Path, d.Offset)
	}
	return fmt.Sprintf("%d:%s", d.Slot, d.Path)
}

// ParseDescriptor parses "slot:path", "slot:path:offset" or "slot:path:C".
// The third field is a continuation marker when it is C or c, otherwise a
// signed integer offset in seconds.
func ParseDescriptor(arg string) (Descriptor, error) {
	parts := strings.Split(arg, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return Descriptor{}, fmt.Errorf("%w: %q: want slot:path[:offset|C]", ErrInvalidDescriptor, arg)
	}

	slot, err := strconv.Atoi(parts[0])
	if err != nil {
		return Descriptor{}, fmt.Errorf("%w: %q: slot %q is not an integer", ErrInvalidDescriptor, arg, parts[0])
	}
	if slot < 0 {
		return Descriptor{}, fmt.Errorf("%w: %q: negative slot", ErrInvalidDescriptor, arg)
	}
	if parts[1] == "" {
		return Descriptor{}, fmt.Errorf("%w: %q: empty path", ErrInvalidDescriptor, arg)
	}

	d := Descriptor{Slot: slot, Path: parts[1]}
	if len(parts) == 3 {
		switch parts[2] {
		case "C", "c":
			d.Continuation = true
		default:
			off, err := strconv.ParseInt(parts[2], 10, 64)
			if err != nil {
				return Descriptor{}, fmt.Errorf("%w: %q: offset %q is not an integer", ErrInvalidDescriptor, arg, parts[2])
			}
			d.Offset = off
		}
	}
	return d, nil
}

// ParseDescriptors parses every argument and checks continuation placement.
// It does not touch the filesystem.
func ParseDescriptors(args []string) ([]Descriptor, error) {
	descs := make([]Descriptor, 0, len(args))
	for i, arg := range args {
		d, err := ParseDescriptor(arg)
		if err != nil {
			return nil, err
		}
		if d.Continuation {
			if i == 0 {
				return nil, fmt.Errorf("%w: %q is the first source", ErrInvalidContinuation, arg)
			}
			if prev := descs[i-1]; prev.Slot != d.Slot {
				return nil, fmt.Errorf("%w: %q follows slot %d", ErrInvalidContinuation, arg, prev.Slot)
			}
		}
		descs = append(descs, d)
	}
	return descs, nil
}
