package repository

import (
	"context"

	"recordapi/internal/model"
)

// Handle identifies one stored document. It is the store's own key for the
// inserted row or document, not the record id, which is not guaranteed unique.
type Handle string

// RecordRepository is the document store for records. No business logic here,
// strictly persistence operations.
type RecordRepository interface {
	// Ping checks that the store is reachable. Callers bound the wait through ctx.
	Ping(ctx context.Context) error

	// Insert stores a new record document and returns its handle.
	Insert(ctx context.Context, rec *model.Record) (Handle, error)

	// AppendFilename appends filename to the attached files of the document behind h.
	// Returns ErrNotModified when no document was changed. Calling it twice with
	// the same filename may duplicate the entry but never loses data.
	AppendFilename(ctx context.Context, h Handle, filename string) error

	// FindByID returns the first stored document carrying the record id.
	FindByID(ctx context.Context, id string) (*model.Record, error)

	// List returns a paginated list of records and total rows count.
	List(ctx context.Context, pq PageQuery) (*PageResult[model.Record], error)
}

// PageQuery holds limit/offset pagination parameters.
type PageQuery struct {
	Limit  int
	Offset int
}

// PageResult is a generic pagination result wrapper.
// T is typically a model type.
type PageResult[T any] struct {
	Items []T
	Total int
}
