// Package embeddings reads embedding CSV files.
//
// The expected layout is a header row
//
//	filenames,embedding_0,...,embedding_{d-1},labels
//
// followed by one row per image.
package embeddings

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/PauloBoaventura/lightly/pkg/models"
)

const (
	// FileNameColumn is the header of the first column
	FileNameColumn = "filenames"
	// LabelColumn is the header of the last column
	LabelColumn = "labels"
	// EmbeddingColumnPrefix prefixes every embedding column header
	EmbeddingColumnPrefix = "embedding_"
)

// Read parses the embeddings CSV at path. Every format violation is
// reported as ErrInvalidValue.
func Read(path string) ([]models.EmbeddingRow, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: embeddings file %s does not exist", models.ErrInvalidValue, path)
		}
		return nil, fmt.Errorf("failed to open embeddings file: %w", err)
	}
	defer func() { _ = f.Close() }()

	rows, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rows, nil
}

// Parse reads embedding rows from r
func Parse(r io.Reader) ([]models.EmbeddingRow, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: embeddings file is empty", models.ErrInvalidValue)
		}
		return nil, invalidCSV(err)
	}
	dim, err := checkHeader(header)
	if err != nil {
		return nil, err
	}

	var rows []models.EmbeddingRow
	seen := make(map[string]int)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, invalidCSV(err)
		}
		line, _ := reader.FieldPos(0)

		row, err := parseRow(record, dim)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", models.ErrInvalidValue, line, err)
		}
		if prev, ok := seen[row.FileName]; ok {
			return nil, fmt.Errorf("%w: line %d: duplicate file name %q (first seen on line %d)",
				models.ErrInvalidValue, line, row.FileName, prev)
		}
		seen[row.FileName] = line
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: embeddings file has no rows", models.ErrInvalidValue)
	}
	return rows, nil
}

// checkHeader validates the header row and returns the embedding dimension
func checkHeader(header []string) (int, error) {
	if len(header) < 3 {
		return 0, fmt.Errorf("%w: header must contain %s, at least one %s* column and %s, got %v",
			models.ErrInvalidValue, FileNameColumn, EmbeddingColumnPrefix, LabelColumn, header)
	}
	if h := strings.TrimSpace(header[0]); h != FileNameColumn {
		return 0, fmt.Errorf("%w: first column must be %q, got %q", models.ErrInvalidValue, FileNameColumn, h)
	}
	if h := strings.TrimSpace(header[len(header)-1]); h != LabelColumn {
		return 0, fmt.Errorf("%w: last column must be %q, got %q", models.ErrInvalidValue, LabelColumn, h)
	}
	for _, h := range header[1 : len(header)-1] {
		if !strings.HasPrefix(strings.TrimSpace(h), EmbeddingColumnPrefix) {
			return 0, fmt.Errorf("%w: unexpected column %q, embedding columns must start with %q",
				models.ErrInvalidValue, h, EmbeddingColumnPrefix)
		}
	}
	return len(header) - 2, nil
}

func parseRow(record []string, dim int) (models.EmbeddingRow, error) {
	// csv.Reader already enforces a constant field count per file
	if len(record) != dim+2 {
		return models.EmbeddingRow{}, fmt.Errorf("expected %d columns, got %d", dim+2, len(record))
	}

	name := strings.TrimSpace(record[0])
	if name == "" {
		return models.EmbeddingRow{}, fmt.Errorf("empty file name")
	}

	values := make([]float64, dim)
	for i, s := range record[1 : dim+1] {
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return models.EmbeddingRow{}, fmt.Errorf("%s%d of %s is not a number: %q", EmbeddingColumnPrefix, i, name, s)
		}
		values[i] = v
	}

	label, err := strconv.Atoi(strings.TrimSpace(record[dim+1]))
	if err != nil {
		return models.EmbeddingRow{}, fmt.Errorf("label of %s is not an integer: %q", name, record[dim+1])
	}

	return models.EmbeddingRow{FileName: name, Embedding: values, Label: label}, nil
}

func invalidCSV(err error) error {
	var parseErr *csv.ParseError
	if errors.As(err, &parseErr) && errors.Is(parseErr.Err, csv.ErrFieldCount) {
		return fmt.Errorf("%w: line %d: inconsistent number of columns", models.ErrInvalidValue, parseErr.Line)
	}
	return fmt.Errorf("%w: malformed csv: %v", models.ErrInvalidValue, err)
}

// Batches splits rows into consecutive batches of at most size rows
func Batches(rows []models.EmbeddingRow, size int) [][]models.EmbeddingRow {
	if size < 1 {
		size = 1
	}
	batches := make([][]models.EmbeddingRow, 0, (len(rows)+size-1)/size)
	for start := 0; start < len(rows); start += size {
		end := min(start+size, len(rows))
		batches = append(batches, rows[start:end])
	}
	return batches
}
