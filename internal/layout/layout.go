// Package layout maps a slot count and slide mode to a fixed canvas
// geometry. The table is closed: combinations it does not list are
// rejected instead of falling back to a guess.
package layout

import (
	"errors"
	"fmt"
	"image"
)

// ErrUnsupportedLayout is returned for slot counts the table does not cover.
var ErrUnsupportedLayout = errors.New("unsupported layout")

// Cell dimensions of a single source
const (
	CellWidth  = 640
	CellHeight = 360
)

// Kind tags the arrangement a Layout was built from
type Kind int

const (
	Unsupported Kind = iota
	SlideColumn      // 1 slot, slide above the camera
	SlideBeside      // 2 slots stacked left, slide right at double size
	SlideCorner      // 3 slots, slide in the bottom-right cell
	Stack            // 2 slots, 1x2 vertical
	Feature          // 3 slots, slot 0 double size on the right
	Grid             // 4-9 slots in a row-major grid
)

var kindNames = map[Kind]string{
	Unsupported: "unsupported",
	SlideColumn: "slide-column",
	SlideBeside: "slide-beside",
	SlideCorner: "slide-corner",
	Stack:       "stack",
	Feature:     "feature",
	Grid:        "grid",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Layout is the canvas geometry of one run
type Layout struct {
	Kind  Kind
	Size  image.Point
	Cells []image.Rectangle // one per compacted slot
	Slide image.Rectangle   // empty without a slide region
}

// HasSlide reports whether the layout reserves a slide region
func (l Layout) HasSlide() bool {
	return !l.Slide.Empty()
}

func cell(col, row int) image.Rectangle {
	return image.Rect(col*CellWidth, row*CellHeight, (col+1)*CellWidth, (row+1)*CellHeight)
}

func rect(x, y, w, h int) image.Rectangle {
	return image.Rect(x, y, x+w, y+h)
}

// Select returns the layout for slotCount sources. slideMode reserves a
// region for presentation slides.
func Select(slotCount int, slideMode bool) (Layout, error) {
	if slideMode {
		switch slotCount {
		case 1:
			return Layout{
				Kind:  SlideColumn,
				Size:  image.Pt(CellWidth, 2*CellHeight),
				Cells: []image.Rectangle{cell(0, 1)},
				Slide: cell(0, 0),
			}, nil
		case 2:
			return Layout{
				Kind:  SlideBeside,
				Size:  image.Pt(3*CellWidth, 2*CellHeight),
				Cells: []image.Rectangle{cell(0, 0), cell(0, 1)},
				Slide: rect(CellWidth, 0, 2*CellWidth, 2*CellHeight),
			}, nil
		case 3:
			return Layout{
				Kind:  SlideCorner,
				Size:  image.Pt(2*CellWidth, 2*CellHeight),
				Cells: []image.Rectangle{cell(1, 0), cell(0, 0), cell(0, 1)},
				Slide: cell(1, 1),
			}, nil
		}
		return Layout{}, fmt.Errorf("%w: %d slots with slides", ErrUnsupportedLayout, slotCount)
	}

	switch slotCount {
	case 2:
		return Layout{
			Kind:  Stack,
			Size:  image.Pt(CellWidth, 2*CellHeight),
			Cells: []image.Rectangle{cell(0, 0), cell(0, 1)},
		}, nil
	case 3:
		return Layout{
			Kind: Feature,
			Size: image.Pt(3*CellWidth, 2*CellHeight),
			Cells: []image.Rectangle{
				rect(CellWidth, 0, 2*CellWidth, 2*CellHeight),
				cell(0, 0),
				cell(0, 1),
			},
		}, nil
	case 4:
		return grid(slotCount, 2, 2), nil
	case 5, 6:
		return grid(slotCount, 3, 2), nil
	case 7, 8, 9:
		return grid(slotCount, 3, 3), nil
	}
	return Layout{}, fmt.Errorf("%w: %d slots without slides", ErrUnsupportedLayout, slotCount)
}

func grid(slotCount, cols, rows int) Layout {
	l := Layout{
		Kind:  Grid,
		Size:  image.Pt(cols*CellWidth, rows*CellHeight),
		Cells: make([]image.Rectangle, 0, slotCount),
	}
	for i := 0; i < slotCount; i++ {
		l.Cells = append(l.Cells, cell(i%cols, i/cols))
	}
	return l
}
