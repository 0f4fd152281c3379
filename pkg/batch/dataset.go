// Package batch grades every row of one tabular dataset: it reads a CSV
// export, finds the description and comment columns, fans rows out to a
// risk.Analyzer and appends grade and explanation columns.
package batch

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/denizumutdereli/npsrisk/pkg/textnorm"
)

var (
	ErrEmptyDataset   = errors.New("dataset has no data rows")
	ErrColumnNotFound = errors.New("column not found")
	ErrColumnExists   = errors.New("output column already exists")
	ErrTooManyRows    = errors.New("dataset exceeds row limit")
)

// Dataset is an in-memory table. Every row has len(Header) cells.
type Dataset struct {
	Header []string
	Rows   [][]string
}

// ReadOptions controls CSV parsing.
type ReadOptions struct {
	// HeaderRow is the 1-based line holding column titles; earlier lines
	// are skipped. Zero means 1.
	HeaderRow int
	// Delimiter defaults to ','.
	Delimiter rune
	// MaxRows rejects larger datasets. Zero means unlimited.
	MaxRows int
}

// ReadCSV parses r into a Dataset. Blank lines are skipped and short rows
// are padded to the header width.
func ReadCSV(r io.Reader, opts ReadOptions) (*Dataset, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	if opts.Delimiter != 0 {
		cr.Comma = opts.Delimiter
	}
	headerRow := opts.HeaderRow
	if headerRow < 1 {
		headerRow = 1
	}

	ds := &Dataset{}
	line := 0
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		line++
		if line < headerRow {
			continue
		}
		if ds.Header == nil {
			ds.Header = cleanHeader(rec)
			continue
		}
		if blank(rec) {
			continue
		}
		if opts.MaxRows > 0 && len(ds.Rows) >= opts.MaxRows {
			return nil, fmt.Errorf("%w: more than %d rows", ErrTooManyRows, opts.MaxRows)
		}
		ds.Rows = append(ds.Rows, fit(rec, len(ds.Header)))
	}

	if ds.Header == nil {
		return nil, fmt.Errorf("%w: no header at line %d", ErrEmptyDataset, headerRow)
	}
	if len(ds.Rows) == 0 {
		return nil, ErrEmptyDataset
	}
	return ds, nil
}

// WriteCSV writes the header and rows of ds.
func WriteCSV(w io.Writer, ds *Dataset, delimiter rune) error {
	cw := csv.NewWriter(w)
	if delimiter != 0 {
		cw.Comma = delimiter
	}
	if err := cw.Write(ds.Header); err != nil {
		return err
	}
	if err := cw.WriteAll(ds.Rows); err != nil {
		return err
	}
	return cw.Error()
}

// Index returns the position of the column whose folded title equals
// name's folded form, or -1.
func (d *Dataset) Index(name string) int {
	want := textnorm.Normalize(name)
	if want == "" {
		return -1
	}
	for i, h := range d.Header {
		if textnorm.Normalize(h) == want {
			return i
		}
	}
	return -1
}

// Detect returns the first column whose folded title contains any hint.
func (d *Dataset) Detect(hints ...string) int {
	for i, h := range d.Header {
		folded := textnorm.Normalize(h)
		for _, hint := range hints {
			if strings.Contains(folded, textnorm.Normalize(hint)) {
				return i
			}
		}
	}
	return -1
}

// AppendColumn adds a column named name with one value per row.
func (d *Dataset) AppendColumn(name string, values []string) error {
	if d.Index(name) >= 0 {
		return fmt.Errorf("%w: %q", ErrColumnExists, name)
	}
	if len(values) != len(d.Rows) {
		return fmt.Errorf("append %q: %d values for %d rows", name, len(values), len(d.Rows))
	}
	d.Header = append(d.Header, name)
	for i := range d.Rows {
		d.Rows[i] = append(d.Rows[i], values[i])
	}
	return nil
}

func cleanHeader(rec []string) []string {
	out := make([]string, len(rec))
	for i, h := range rec {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		out[i] = strings.TrimSpace(h)
	}
	return out
}

func blank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func fit(rec []string, width int) []string {
	if len(rec) == width {
		return rec
	}
	out := make([]string, width)
	copy(out, rec)
	return out
}
