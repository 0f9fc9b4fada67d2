package db

import (
	"errors"
	"fmt"
	"strings"

	"github.com/surrealdb/surrealdb.go"
)

// Sentinel errors for store operations. Check with errors.Is.
var (
	// ErrDuplicate indicates a record with the same dedup key already exists
	// in the target collection. The unique index on url_id rejects the write,
	// which the store reports as a skipped-duplicate outcome, not a failure.
	ErrDuplicate = errors.New("record already exists")

	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")
)

// wrapQueryError inspects a SurrealDB error and wraps it with the matching
// sentinel. Unique-index violations surface as query errors whose message
// names the index; everything else passes through unchanged.
func wrapQueryError(err error) error {
	if err == nil {
		return nil
	}

	var queryErr *surrealdb.QueryError
	if errors.As(err, &queryErr) {
		msg := queryErr.Message
		if strings.Contains(msg, "already contains") || strings.Contains(msg, "already exists") {
			return fmt.Errorf("%w: %s", ErrDuplicate, msg)
		}
	}

	return err
}
