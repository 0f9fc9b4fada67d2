// Package parser turns raw CSV file bytes into row field lists.
package parser

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"unicode/utf8"
)

// ErrInvalidEncoding marks files whose bytes are not valid UTF-8 text.
var ErrInvalidEncoding = errors.New("file is not valid UTF-8")

// Rows parses data as UTF-8 comma-separated text and returns every row's
// fields, including rows too short to yield a record — callers decide what
// counts as malformed. Empty input yields an empty slice. Invalid encoding
// or a reader-level parse failure fails the whole file.
func Rows(data []byte) ([][]string, error) {
	if len(data) == 0 {
		return nil, nil
	}
	if !utf8.Valid(data) {
		return nil, ErrInvalidEncoding
	}

	r := csv.NewReader(bytes.NewReader(data))
	// Files arrive with ragged rows; field-count enforcement happens later,
	// per row, where short rows are counted but not inserted.
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	return rows, nil
}
