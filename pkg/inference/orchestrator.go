package inference

import (
	"context"
	"fmt"
)

// RunBatches partitions refs into ceil(N/B) batches preserving submission
// order, assigns each batch a device round-robin across the configured
// devices (a single CPU executor when none are configured), and invokes the
// collaborator once per batch. Batches run strictly one at a time: batch N
// completes before batch N+1 is submitted, and a failing batch aborts the
// whole run with no partial results; accelerator memory state is not
// safely resumable mid-batch.
//
// The concatenated output preserves the input order exactly: for any N >= 0
// and B >= 1 it equals the result of one unbatched run over the whole
// sequence.
func RunBatches(ctx context.Context, engine SliceEngine, refs []SliceRef, opts BatchOptions) ([]SliceResult, error) {
	if opts.BatchSize < 1 {
		return nil, fmt.Errorf("inference: batch size must be >= 1, got %d", opts.BatchSize)
	}

	devices := opts.Devices
	if len(devices) == 0 {
		devices = []int{CPUDevice}
	}

	numBatches := (len(refs) + opts.BatchSize - 1) / opts.BatchSize
	results := make([]SliceResult, 0, len(refs))

	for b := 0; b < numBatches; b++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("inference: canceled before batch %d/%d: %w", b+1, numBatches, err)
		}

		start := b * opts.BatchSize
		end := start + opts.BatchSize
		if end > len(refs) {
			end = len(refs)
		}
		batch := refs[start:end]
		device := devices[b%len(devices)]

		batchResults, err := engine.Infer(ctx, batch, device, opts)
		if err != nil {
			return nil, fmt.Errorf("inference: batch %d/%d on device %d: %w", b+1, numBatches, device, err)
		}
		if len(batchResults) != len(batch) {
			return nil, fmt.Errorf("inference: batch %d/%d returned %d results for %d slices",
				b+1, numBatches, len(batchResults), len(batch))
		}

		results = append(results, batchResults...)
	}

	return results, nil
}
