// Package models defines the data structures moved between the ingestion
// pipeline, the document store, and the control API.
package models

import (
	"path"
	"strings"
)

// StatusPending is the initial status every ingested record starts with.
const StatusPending = "pending"

// CollectionMode selects how a remote file maps to its target collection.
type CollectionMode string

const (
	// ModePerFile derives one collection per file from the file's base name.
	ModePerFile CollectionMode = "per_file"
	// ModeFixed writes every file into a single configured collection.
	ModeFixed CollectionMode = "fixed"
)

// Valid reports whether the mode is one of the supported values.
func (m CollectionMode) Valid() bool {
	return m == ModePerFile || m == ModeFixed
}

// RowRecord is one deduplicatable document parsed from a CSV row.
// URLID is the natural dedup key and must be non-empty.
type RowRecord struct {
	URLID    string `json:"url_id"`
	InputURL string `json:"input_url"`
	Status   string `json:"status"`
}

// NewRowRecord builds a record from a raw CSV row. Rows with fewer than two
// fields or an empty first field carry no usable record; the second return
// value is false and callers must treat the row as malformed.
func NewRowRecord(fields []string) (RowRecord, bool) {
	if len(fields) < 2 || fields[0] == "" {
		return RowRecord{}, false
	}
	return RowRecord{
		URLID:    fields[0],
		InputURL: fields[1],
		Status:   StatusPending,
	}, true
}

// FileTask pairs a remote object key with the collection its rows land in.
// The mapping is fixed at job start and never changes during a run.
type FileTask struct {
	RemoteKey  string
	Collection string
}

// CollectionFor derives the target collection name for a remote key.
// In per_file mode the collection is the key's base name without extension;
// in fixed mode it is the configured name. The result is sanitized so it is
// always usable as a document-store table name.
func CollectionFor(key string, mode CollectionMode, fixed string) string {
	if mode == ModeFixed {
		return sanitizeCollection(fixed)
	}
	base := path.Base(key)
	return sanitizeCollection(strings.TrimSuffix(base, path.Ext(base)))
}

// sanitizeCollection replaces everything outside [A-Za-z0-9_] with an
// underscore. Remote keys may contain dots and dashes that table names can't.
func sanitizeCollection(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}

// Outcome classifies one dedup-insert attempt.
type Outcome int

const (
	// OutcomeInserted means a new document was stored.
	OutcomeInserted Outcome = iota
	// OutcomeDuplicate means a document with the same url_id already exists.
	OutcomeDuplicate
	// OutcomeError means the backend rejected the write.
	OutcomeError
)

// String returns the outcome name used in logs.
func (o Outcome) String() string {
	switch o {
	case OutcomeInserted:
		return "inserted"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeError:
		return "error"
	default:
		return "unknown"
	}
}
