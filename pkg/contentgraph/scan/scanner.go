package scan

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/tendant/content-graph/pkg/contentgraph"
)

// DefaultBatchSize is the page size used when ScanOptions.BatchSize is zero.
const DefaultBatchSize = 100

// ContentLister is the slice of the repository a Scanner pages through.
type ContentLister interface {
	ListContent(ctx context.Context, filter contentgraph.ContentFilter) ([]*contentgraph.Content, error)
}

// Scanner pages through stored contents and hands each one to a processor.
type Scanner struct {
	lister ContentLister
	logger *slog.Logger
}

// New creates a new Scanner instance.
func New(lister ContentLister, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{lister: lister, logger: logger}
}

// ScanOptions configures the scan operation.
type ScanOptions struct {
	// Filter narrows the contents visited. Limit and Offset are managed by the scanner.
	Filter contentgraph.ContentFilter

	// Processor is required unless DryRun is set
	Processor ContentProcessor

	BatchSize int

	// DryRun counts and logs contents without processing them
	DryRun bool

	// OnProgress is called after each batch
	OnProgress func(processed, found int64)
}

// ScanResult contains statistics about the scan operation.
type ScanResult struct {
	TotalFound     int64
	TotalProcessed int64
	TotalFailed    int64
	FailedIDs      []uuid.UUID
}

// Scan visits every content matching opts.Filter. A processor error marks
// that content as failed and scanning continues; listing errors and context
// cancellation stop the scan and return the partial result.
func (s *Scanner) Scan(ctx context.Context, opts ScanOptions) (*ScanResult, error) {
	result := &ScanResult{}

	if !opts.DryRun && opts.Processor == nil {
		return result, errors.New("processor is required when DryRun is false")
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}

	filter := opts.Filter
	filter.Limit = opts.BatchSize
	filter.Offset = 0
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		batch, err := s.lister.ListContent(ctx, filter)
		if err != nil {
			return result, &contentgraph.StorageError{Op: "list", Err: err}
		}
		result.TotalFound += int64(len(batch))

		for _, content := range batch {
			if opts.DryRun {
				s.logger.InfoContext(ctx, "dry run", "content_id", content.ID, "type", content.Type, "title", content.Title)
				result.TotalProcessed++
				continue
			}

			if err := opts.Processor.Process(ctx, content); err != nil {
				result.TotalFailed++
				result.FailedIDs = append(result.FailedIDs, content.ID)
				s.logger.WarnContext(ctx, "failed to process content", "content_id", content.ID, "err", err)
				continue
			}
			result.TotalProcessed++
		}

		if opts.OnProgress != nil {
			opts.OnProgress(result.TotalProcessed+result.TotalFailed, result.TotalFound)
		}

		if len(batch) < opts.BatchSize {
			break
		}
		filter.Offset += opts.BatchSize
	}

	return result, nil
}

// ForEach processes every content matching filter with fn.
//
//	scanner.ForEach(ctx, contentgraph.ContentFilter{Tag: "draft"}, func(ctx context.Context, c *contentgraph.Content) error {
//	    return publish(ctx, c)
//	})
func (s *Scanner) ForEach(ctx context.Context, filter contentgraph.ContentFilter, fn func(context.Context, *contentgraph.Content) error) (*ScanResult, error) {
	return s.Scan(ctx, ScanOptions{
		Filter:    filter,
		Processor: ProcessorFunc(fn),
	})
}
