package trace

import (
	"context"
	"iter"
)

// ReadOptions are passed from the analyser to a Source for every trace.
type ReadOptions struct {
	// Filters is a coarse pre-filter: when non-nil, only records matching
	// at least one pair need to be yielded. nil means all records.
	Filters []Pair
	// Sort requests chronological re-sorting by storage timestamp.
	Sort bool
	// Live makes the sequence follow the trace until ctx is cancelled
	// instead of ending at EOF.
	Live bool
}

// Source decodes trace records. Records returns a lazy sequence for one
// trace path. An error yielded by the sequence (missing file, empty file,
// undecodable content) ends that trace and is attributed to path.
//
// Cancellation is the source's responsibility: when ctx is done the
// sequence must end. The analyser never polls ctx itself.
type Source interface {
	Records(ctx context.Context, path string, opts ReadOptions) iter.Seq2[*Record, error]
}
