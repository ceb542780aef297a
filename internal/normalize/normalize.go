// Package normalize turns raw bulk input (an uploaded CSV file or inline
// numeric rows) into a rectangular feature matrix of a fixed width.
package normalize

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// DefaultFeatures is the number of traffic features the classifier expects.
const DefaultFeatures = 46

// sniffLen is how much of an upload is inspected for a content signature.
const sniffLen = 3072

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// SchemaError reports input whose shape or content cannot be normalized.
// It is always caller-fixable.
type SchemaError struct {
	// Columns is the observed column count, or -1 when rows disagree.
	Columns int
	Reason  string
}

func (e *SchemaError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	return fmt.Sprintf("invalid column count: %d", e.Columns)
}

func invalidDimensions() *SchemaError {
	return &SchemaError{Columns: -1, Reason: "invalid dimensions"}
}

// Normalizer validates and reshapes input to Features columns. A Features+1
// column input is accepted and its trailing (label) column dropped.
type Normalizer struct {
	Features int
}

// New creates a Normalizer for the given feature width. Non-positive widths
// fall back to DefaultFeatures.
func New(features int) *Normalizer {
	if features <= 0 {
		features = DefaultFeatures
	}
	return &Normalizer{Features: features}
}

// FromRows normalizes an inline collection of numeric rows. The input is not
// modified; every output row is a fresh slice.
func (n *Normalizer) FromRows(rows [][]float64) ([][]float64, error) {
	if len(rows) == 0 {
		return [][]float64{}, nil
	}
	width := len(rows[0])
	for _, row := range rows[1:] {
		if len(row) != width {
			return nil, invalidDimensions()
		}
	}
	keep, err := n.keepColumns(width)
	if err != nil {
		return nil, err
	}

	out := make([][]float64, len(rows))
	for i, row := range rows {
		for j := 0; j < keep; j++ {
			if !isFinite(row[j]) {
				return nil, &SchemaError{
					Columns: width,
					Reason:  fmt.Sprintf("non-numeric value at row %d, column %d", i+1, j+1),
				}
			}
		}
		out[i] = append(make([]float64, 0, keep), row[:keep]...)
	}
	return out, nil
}

// FromFile normalizes an uploaded tabular file. The name must carry a .csv
// extension and the content must sniff as text.
func (n *Normalizer) FromFile(name string, r io.Reader) ([][]float64, error) {
	if !strings.EqualFold(filepath.Ext(name), ".csv") {
		return nil, &SchemaError{Columns: 0, Reason: fmt.Sprintf("unsupported file type %q: expected .csv", filepath.Ext(name))}
	}

	head := make([]byte, sniffLen)
	nr, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	// Spreadsheet exports often prefix a UTF-8 byte order mark.
	head = bytes.TrimPrefix(head[:nr], utf8BOM)
	if !isText(mimetype.Detect(head)) {
		return nil, &SchemaError{Columns: 0, Reason: "file content is not tabular text"}
	}

	return n.FromCSV(io.MultiReader(bytes.NewReader(head), r))
}

// FromCSV parses comma separated records and normalizes them. A leading
// record without any numeric cell is treated as a header and skipped.
func (n *Normalizer) FromCSV(r io.Reader) ([][]float64, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	var (
		rows  [][]float64
		width = -1
		keep  int
		line  int
	)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &SchemaError{Columns: width, Reason: fmt.Sprintf("malformed csv: %v", err)}
		}
		line++
		if line == 1 && isHeader(rec) {
			continue
		}

		if width < 0 {
			width = len(rec)
			if keep, err = n.keepColumns(width); err != nil {
				return nil, err
			}
		} else if len(rec) != width {
			return nil, invalidDimensions()
		}

		row := make([]float64, keep)
		for j := 0; j < keep; j++ {
			v, err := parseCell(rec[j])
			if err != nil {
				return nil, &SchemaError{
					Columns: width,
					Reason:  fmt.Sprintf("non-numeric value %q at line %d, column %d", rec[j], line, j+1),
				}
			}
			row[j] = v
		}
		rows = append(rows, row)
	}

	if rows == nil {
		rows = [][]float64{}
	}
	return rows, nil
}

// keepColumns returns how many leading columns of a width-wide row are
// features.
func (n *Normalizer) keepColumns(width int) (int, error) {
	switch width {
	case n.Features, n.Features + 1:
		return n.Features, nil
	default:
		return 0, &SchemaError{
			Columns: width,
			Reason:  fmt.Sprintf("expected %d or %d columns, got %d", n.Features, n.Features+1, width),
		}
	}
}

func parseCell(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if !isFinite(v) {
		return 0, fmt.Errorf("non-finite value %q", s)
	}
	return v, nil
}

func isHeader(rec []string) bool {
	for _, cell := range rec {
		if _, err := parseCell(cell); err == nil {
			return false
		}
	}
	return true
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func isText(m *mimetype.MIME) bool {
	for ; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}
