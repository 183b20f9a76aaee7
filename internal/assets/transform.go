package assets

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/reknow/combine-video/internal/render"
)

// TransformKey is the document key holding the homography
const TransformKey = "M"

type storedMatrix struct {
	Rows int       `yaml:"rows"`
	Cols int       `yaml:"cols"`
	Dt   string    `yaml:"dt"`
	Data []float64 `yaml:"data"`
}

// ParseTransform reads a 3x3 matrix stored either as an OpenCV FileStorage
// "!!opencv-matrix" mapping or as a plain nested list.
func ParseTransform(data []byte) (render.Matrix, error) {
	// FileStorage writes "%YAML:1.0", which is not a valid directive.
	if bytes.HasPrefix(data, []byte("%YAML:")) {
		if i := bytes.IndexByte(data, '\n'); i >= 0 {
			data = data[i+1:]
		} else {
			data = nil
		}
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return render.Matrix{}, fmt.Errorf("parse transform: %w", err)
	}
	if len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return render.Matrix{}, errors.New("transform: expected a mapping document")
	}

	root := doc.Content[0]
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value == TransformKey {
			return decodeMatrix(root.Content[i+1])
		}
	}
	return render.Matrix{}, fmt.Errorf("transform: key %q not found", TransformKey)
}

func decodeMatrix(n *yaml.Node) (render.Matrix, error) {
	var m render.Matrix
	var flat []float64

	switch n.Kind {
	case yaml.MappingNode:
		n.Tag = "!!map"
		var sm storedMatrix
		if err := n.Decode(&sm); err != nil {
			return m, fmt.Errorf("transform: %w", err)
		}
		if sm.Rows != 3 || sm.Cols != 3 {
			return m, fmt.Errorf("transform: matrix is %dx%d, want 3x3", sm.Rows, sm.Cols)
		}
		flat = sm.Data
	case yaml.SequenceNode:
		var rows [][]float64
		if err := n.Decode(&rows); err != nil {
			return m, fmt.Errorf("transform: %w", err)
		}
		if len(rows) != 3 {
			return m, fmt.Errorf("transform: %d rows, want 3", len(rows))
		}
		for _, r := range rows {
			if len(r) != 3 {
				return m, fmt.Errorf("transform: row of %d values, want 3", len(r))
			}
			flat = append(flat, r...)
		}
	default:
		return m, errors.New("transform: matrix must be a mapping or a list")
	}

	if len(flat) != 9 {
		return m, fmt.Errorf("transform: %d values, want 9", len(flat))
	}
	for i, v := range flat {
		m[i/3][i%3] = v
	}
	if _, err := m.Invert(); err != nil {
		return m, fmt.Errorf("transform: %w", err)
	}
	return m, nil
}

// LoadTransform reads the perspective matrix file
func LoadTransform(path string) (render.Matrix, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return render.Matrix{}, fmt.Errorf("transform: %w", err)
	}
	return ParseTransform(data)
}
