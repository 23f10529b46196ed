package worker

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Report accumulates the outcome of one cascade invocation: deleted row
// counts per table, removed blobs and vector collections, attempted
// filtered vector deletions and the failures encountered along the way.
// A cascade never returns an error; everything lands here and the caller
// decides whether to log, warn or surface it.
//
// Reports are created fresh per invocation, merged upward when a cascade
// invokes sub-cascades and discarded after logging. They are never stored.
// All methods are safe for concurrent use, so pool-parallel cleanup tasks
// can record into a shared report.
type Report struct {
	mu sync.Mutex

	rowsDeleted     map[string]int64
	rowsSoftDeleted map[string]int64

	blobsDeleted       int64
	collectionsDropped int64
	vectorDeletions    int64
	modelsDetached     int64

	errs []string
}

// NewReport returns an empty report.
func NewReport() *Report {
	return &Report{
		rowsDeleted:     map[string]int64{},
		rowsSoftDeleted: map[string]int64{},
	}
}

// AddRows records n hard-deleted rows for a table.
func (r *Report) AddRows(table string, n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rowsDeleted[table] += n
}

// AddRowCounts records hard-deleted rows for several tables at once.
func (r *Report) AddRowCounts(counts map[string]int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for table, n := range counts {
		r.rowsDeleted[table] += n
	}
}

// AddSoftDeletedRows records n soft-deleted rows for a table.
func (r *Report) AddSoftDeletedRows(table string, n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rowsSoftDeleted[table] += n
}

// AddBlobsDeleted records n removed object storage blobs.
func (r *Report) AddBlobsDeleted(n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blobsDeleted += n
}

// IncCollectionsDropped records one removed vector collection.
func (r *Report) IncCollectionsDropped() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.collectionsDropped++
}

// IncVectorDeletions records one attempted filtered vector deletion.
func (r *Report) IncVectorDeletions() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vectorDeletions++
}

// AddModelsDetached records n model definitions that no longer reference a
// deleted knowledge base.
func (r *Report) AddModelsDetached(n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modelsDetached += n
}

// Errorf records a failure without interrupting the cascade.
func (r *Report) Errorf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, fmt.Sprintf(format, args...))
}

// Merge folds a sub-cascade report into this one.
func (r *Report) Merge(other *Report) {
	if other == nil || other == r {
		return
	}
	other.mu.Lock()
	defer other.mu.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()

	for table, n := range other.rowsDeleted {
		r.rowsDeleted[table] += n
	}
	for table, n := range other.rowsSoftDeleted {
		r.rowsSoftDeleted[table] += n
	}
	r.blobsDeleted += other.blobsDeleted
	r.collectionsDropped += other.collectionsDropped
	r.vectorDeletions += other.vectorDeletions
	r.modelsDetached += other.modelsDetached
	r.errs = append(r.errs, other.errs...)
}

// RowsDeleted returns the hard-deleted row count for a table.
func (r *Report) RowsDeleted(table string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rowsDeleted[table]
}

// TotalRowsDeleted returns the hard-deleted row count across all tables.
func (r *Report) TotalRowsDeleted() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total int64
	for _, n := range r.rowsDeleted {
		total += n
	}
	return total
}

// RowsSoftDeleted returns the soft-deleted row count for a table.
func (r *Report) RowsSoftDeleted(table string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rowsSoftDeleted[table]
}

// BlobsDeleted returns the removed blob count.
func (r *Report) BlobsDeleted() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.blobsDeleted
}

// CollectionsDropped returns the removed vector collection count.
func (r *Report) CollectionsDropped() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.collectionsDropped
}

// VectorDeletions returns the attempted filtered vector deletion count.
func (r *Report) VectorDeletions() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.vectorDeletions
}

// ModelsDetached returns the updated model definition count.
func (r *Report) ModelsDetached() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.modelsDetached
}

// Errors returns a copy of the recorded failures.
func (r *Report) Errors() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.errs...)
}

// HasErrors reports whether any failure was recorded.
func (r *Report) HasErrors() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errs) > 0
}

// ZapFields renders the report for structured logging.
func (r *Report) ZapFields() []zap.Field {
	r.mu.Lock()
	defer r.mu.Unlock()

	fields := []zap.Field{
		zap.Any("rows_deleted", r.rowsDeleted),
		zap.Int64("blobs_deleted", r.blobsDeleted),
		zap.Int64("collections_dropped", r.collectionsDropped),
		zap.Int64("vector_deletions", r.vectorDeletions),
	}
	if len(r.rowsSoftDeleted) > 0 {
		fields = append(fields, zap.Any("rows_soft_deleted", r.rowsSoftDeleted))
	}
	if r.modelsDetached > 0 {
		fields = append(fields, zap.Int64("models_detached", r.modelsDetached))
	}
	if len(r.errs) > 0 {
		fields = append(fields, zap.Strings("errors", r.errs))
	}
	return fields
}
