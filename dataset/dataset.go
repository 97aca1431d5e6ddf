// Package dataset loads connectivity matrices and response variables from
// headerless CSV files.
package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/neurocpm/pkg/errors"
)

// HCP100FileFormat is the per-subject DTI file name inside an HCP100 folder.
const HCP100FileFormat = "sub%03d_DTI_fibers_HCP.csv"

// ReadMatrixCSV parses a headerless numeric CSV into a dense matrix. Every
// row must have the same number of fields.
func ReadMatrixCSV(r io.Reader) (*mat.Dense, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	records, err := cr.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "dataset: reading CSV")
	}
	if len(records) == 0 || len(records[0]) == 0 {
		return nil, errors.NewModelError("dataset.ReadMatrixCSV", "empty data", errors.ErrEmptyData)
	}

	rows, cols := len(records), len(records[0])
	data := make([]float64, 0, rows*cols)
	for i, rec := range records {
		for j, field := range rec {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, errors.NewValueError("dataset.ReadMatrixCSV",
					fmt.Sprintf("row %d, column %d: %q is not a number", i+1, j+1, field))
			}
			data = append(data, v)
		}
	}
	return mat.NewDense(rows, cols, data), nil
}

// ReadVectorCSV parses a CSV holding either a single row or a single column.
func ReadVectorCSV(r io.Reader) ([]float64, error) {
	m, err := ReadMatrixCSV(r)
	if err != nil {
		return nil, err
	}
	rows, cols := m.Dims()
	switch {
	case rows == 1:
		return mat.Row(nil, 0, m), nil
	case cols == 1:
		return mat.Col(nil, 0, m), nil
	default:
		return nil, errors.NewValueError("dataset.ReadVectorCSV",
			fmt.Sprintf("expected a single row or column, got %dx%d", rows, cols))
	}
}

// LoadMatrixCSV reads a matrix from the CSV file at path.
func LoadMatrixCSV(path string) (*mat.Dense, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "dataset: opening %s", path)
	}
	defer f.Close()

	m, err := ReadMatrixCSV(f)
	if err != nil {
		return nil, errors.Wrapf(err, "dataset: %s", path)
	}
	return m, nil
}

// LoadVectorCSV reads a vector from the CSV file at path.
func LoadVectorCSV(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "dataset: opening %s", path)
	}
	defer f.Close()

	v, err := ReadVectorCSV(f)
	if err != nil {
		return nil, errors.Wrapf(err, "dataset: %s", path)
	}
	return v, nil
}

// DefaultHCP100Subjects returns the subject ids 1..100.
func DefaultHCP100Subjects() []int {
	ids := make([]int, 100)
	for i := range ids {
		ids[i] = i + 1
	}
	return ids
}

// LoadHCP100DTI loads the structural connectivity matrices (regions ×
// regions) of the given HCP100 subjects from dir. A nil subjects slice loads
// all 100 subjects.
func LoadHCP100DTI(dir string, subjects []int) ([]*mat.Dense, error) {
	if subjects == nil {
		subjects = DefaultHCP100Subjects()
	}
	out := make([]*mat.Dense, 0, len(subjects))
	for _, sub := range subjects {
		m, err := LoadMatrixCSV(filepath.Join(dir, fmt.Sprintf(HCP100FileFormat, sub)))
		if err != nil {
			return nil, err
		}
		if r, c := m.Dims(); r != c {
			return nil, errors.NewShapeMismatchError("dataset.LoadHCP100DTI",
				fmt.Sprintf("subject %d matrix must be square", sub), r, c)
		}
		out = append(out, m)
	}
	return out, nil
}

// WriteMatrixCSV writes m as a headerless CSV, one matrix row per line.
func WriteMatrixCSV(w io.Writer, m mat.Matrix) error {
	rows, cols := m.Dims()
	cw := csv.NewWriter(w)
	rec := make([]string, cols)
	for i := 0; i < rows; i++ {
		for j := range rec {
			rec[j] = strconv.FormatFloat(m.At(i, j), 'g', -1, 64)
		}
		if err := cw.Write(rec); err != nil {
			return errors.Wrap(err, "dataset: writing CSV")
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "dataset: writing CSV")
}

// SaveMatrixCSV writes m to the CSV file at path.
func SaveMatrixCSV(path string, m mat.Matrix) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "dataset: creating %s", path)
	}
	defer f.Close()

	if err := WriteMatrixCSV(f, m); err != nil {
		return errors.Wrapf(err, "dataset: %s", path)
	}
	return errors.Wrapf(f.Close(), "dataset: closing %s", path)
}
