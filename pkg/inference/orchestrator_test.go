package inference

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bodycomp/internal/models"
)

// fakeEngine records every batch call and returns one mask per slice.
type fakeEngine struct {
	calls   [][]SliceRef
	devices []int
	failOn  int // 1-based batch number to fail on, 0 = never
}

func (f *fakeEngine) Infer(_ context.Context, refs []SliceRef, device int, _ BatchOptions) ([]SliceResult, error) {
	f.calls = append(f.calls, refs)
	f.devices = append(f.devices, device)
	if f.failOn > 0 && len(f.calls) == f.failOn {
		return nil, errors.New("device out of memory")
	}
	results := make([]SliceResult, 0, len(refs))
	for _, r := range refs {
		results = append(results, SliceResult{
			Path: r.Path,
			Mask: &models.SegmentationMask{Labels: []uint8{1}, Width: 1, Height: 1},
		})
	}
	return results, nil
}

func makeRefs(n int) []SliceRef {
	refs := make([]SliceRef, 0, n)
	for i := 0; i < n; i++ {
		refs = append(refs, SliceRef{Path: fmt.Sprintf("slice_%03d.dcm", i)})
	}
	return refs
}

func TestRunBatchesOrderPreservation(t *testing.T) {
	tests := []struct {
		n, batchSize int
		wantBatches  int
	}{
		{0, 1, 0},
		{1, 1, 1},
		{5, 2, 3},
		{6, 2, 3},
		{4, 8, 1},
		{7, 3, 3},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("n=%d_b=%d", tt.n, tt.batchSize), func(t *testing.T) {
			engine := &fakeEngine{}
			refs := makeRefs(tt.n)

			results, err := RunBatches(context.Background(), engine, refs, BatchOptions{BatchSize: tt.batchSize})
			require.NoError(t, err)
			require.Len(t, results, tt.n)
			assert.Len(t, engine.calls, tt.wantBatches)

			// Concatenated output equals the unbatched sequence order
			for i, res := range results {
				assert.Equal(t, refs[i].Path, res.Path)
			}
		})
	}
}

func TestRunBatchesInvalidBatchSize(t *testing.T) {
	_, err := RunBatches(context.Background(), &fakeEngine{}, makeRefs(3), BatchOptions{BatchSize: 0})
	require.Error(t, err)
}

func TestRunBatchesDeviceRoundRobin(t *testing.T) {
	engine := &fakeEngine{}
	opts := BatchOptions{BatchSize: 2, Devices: []int{0, 1, 2}}

	_, err := RunBatches(context.Background(), engine, makeRefs(10), opts)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 0, 1}, engine.devices)
}

func TestRunBatchesCPUFallback(t *testing.T) {
	engine := &fakeEngine{}
	_, err := RunBatches(context.Background(), engine, makeRefs(3), BatchOptions{BatchSize: 2})
	require.NoError(t, err)
	assert.Equal(t, []int{CPUDevice, CPUDevice}, engine.devices)
}

func TestRunBatchesFailureAbortsRun(t *testing.T) {
	engine := &fakeEngine{failOn: 2}

	results, err := RunBatches(context.Background(), engine, makeRefs(6), BatchOptions{BatchSize: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch 2/3")
	// No partial-result continuation
	assert.Nil(t, results)
	assert.Len(t, engine.calls, 2)
}

func TestRunBatchesResultCountMismatch(t *testing.T) {
	short := &shortEngine{}
	_, err := RunBatches(context.Background(), short, makeRefs(4), BatchOptions{BatchSize: 4})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "returned 1 results for 4 slices")
}

type shortEngine struct{}

func (s *shortEngine) Infer(_ context.Context, refs []SliceRef, _ int, _ BatchOptions) ([]SliceResult, error) {
	return []SliceResult{{Path: refs[0].Path}}, nil
}

func TestRunBatchesCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	engine := &fakeEngine{}
	_, err := RunBatches(ctx, engine, makeRefs(4), BatchOptions{BatchSize: 2})
	require.Error(t, err)
	assert.Empty(t, engine.calls)
}
