package assets

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/reknow/combine-video/internal/timestamp"
)

// Heart-rate export columns
const (
	hrColumns     = 6
	hrValueColumn = 2
	hrTimeColumn  = 5
)

// HeartRate maps an epoch second to a reading
type HeartRate map[int64]float64

// Lookup returns the reading for epoch, if any
func (h HeartRate) Lookup(epoch int64) (float64, bool) {
	v, ok := h[epoch]
	return v, ok
}

// ParseHeartRate reads a semicolon separated export with a header row. The
// reading is column 2 and the local EEST time column 5.
func ParseHeartRate(r io.Reader) (HeartRate, error) {
	cr := csv.NewReader(r)
	cr.Comma = ';'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	if _, err := cr.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return HeartRate{}, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	h := make(HeartRate)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		line, _ := cr.FieldPos(0)
		if len(rec) != hrColumns {
			return nil, fmt.Errorf("line %d: unable to parse [%s]", line, strings.Join(rec, ";"))
		}

		value, err := strconv.ParseFloat(strings.TrimSpace(rec[hrValueColumn]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad reading %q", line, rec[hrValueColumn])
		}
		epoch, err := timestamp.ParseEEST(rec[hrTimeColumn])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		h[epoch] = value
	}
	return h, nil
}

// LoadHeartRate reads a heart-rate export from disk
func LoadHeartRate(path string) (HeartRate, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("heart rate data: %w", err)
	}
	defer f.Close()

	h, err := ParseHeartRate(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return h, nil
}
