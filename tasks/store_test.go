package tasks

import (
	"encoding/binary"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/janelia-flyem/voxeld/voxeld"
)

func testGrid(t *testing.T, shape voxeld.Shape) *voxeld.VoxelGrid {
	n, err := shape.NumElements()
	if err != nil {
		t.Fatalf("bad test shape: %v\n", err)
	}
	data := make([]float64, n)
	for i := range data {
		data[i] = float64(i + 1)
	}
	grid, err := voxeld.NewVoxelGrid(shape, data)
	if err != nil {
		t.Fatalf("couldn't create test grid: %v\n", err)
	}
	return grid
}

func decodeFloat64LE(data []byte) []float64 {
	values := make([]float64, len(data)/8)
	for i := range values {
		values[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[8*i:]))
	}
	return values
}

func TestChunkMapPartition(t *testing.T) {
	testCases := []struct {
		dataLength, chunkSize int
		want                  []ChunkDescriptor
	}{
		{8, 1000000, []ChunkDescriptor{{0, 0, 8}}},
		{10, 5, []ChunkDescriptor{{0, 0, 5}, {1, 5, 10}}},
		{10, 3, []ChunkDescriptor{{0, 0, 3}, {1, 3, 6}, {2, 6, 9}, {3, 9, 10}}},
	}
	for _, tc := range testCases {
		chunks := ChunkMap(tc.dataLength, tc.chunkSize)
		if len(chunks) != len(tc.want) {
			t.Errorf("ChunkMap(%d, %d): got %d chunks, expected %d\n",
				tc.dataLength, tc.chunkSize, len(chunks), len(tc.want))
			continue
		}
		for i, chunk := range chunks {
			if chunk != tc.want[i] {
				t.Errorf("ChunkMap(%d, %d)[%d]: got %+v, expected %+v\n",
					tc.dataLength, tc.chunkSize, i, chunk, tc.want[i])
			}
		}
		// Contiguity invariants hold for any map.
		if chunks[0].Start != 0 || chunks[len(chunks)-1].End != tc.dataLength {
			t.Errorf("ChunkMap(%d, %d) doesn't cover [0, %d)\n", tc.dataLength, tc.chunkSize, tc.dataLength)
		}
		for i := 1; i < len(chunks); i++ {
			if chunks[i].Start != chunks[i-1].End {
				t.Errorf("ChunkMap(%d, %d) has a gap at chunk %d\n", tc.dataLength, tc.chunkSize, i)
			}
		}
	}
}

func TestTaskLifecycle(t *testing.T) {
	store := NewStore()
	grid := testGrid(t, voxeld.Shape{2, 5, 1}) // 10 elements
	chunks := ChunkMap(grid.Len(), 3)
	id := store.Create("test.vasp", 1234, 3, chunks)

	// Before completion every chunk is still processing.
	result := store.TakeChunk(id, 0)
	if result.Outcome != TakeProcessing {
		t.Errorf("expected TakeProcessing before parse completes, got %v\n", result.Outcome)
	}

	store.CompleteSuccess(id, grid)

	// Concatenating all chunks in order must reproduce the flat array.
	var all []float64
	for i := range chunks {
		result := store.TakeChunk(id, i)
		if result.Outcome != TakeReady {
			t.Fatalf("chunk %d: expected TakeReady, got %v\n", i, result.Outcome)
		}
		if len(result.Data) != 8*(chunks[i].End-chunks[i].Start) {
			t.Errorf("chunk %d: expected %d bytes, got %d\n",
				i, 8*(chunks[i].End-chunks[i].Start), len(result.Data))
		}
		all = append(all, decodeFloat64LE(result.Data)...)
	}
	if len(all) != grid.Len() {
		t.Fatalf("expected %d total values, got %d\n", grid.Len(), len(all))
	}
	for i, v := range all {
		if v != float64(i+1) {
			t.Errorf("value %d: expected %d, got %f\n", i, i+1, v)
		}
	}

	// Every chunk is one-shot.
	for i := range chunks {
		result := store.TakeChunk(id, i)
		if result.Outcome != TakeAlreadyTaken {
			t.Errorf("chunk %d refetch: expected TakeAlreadyTaken, got %v\n", i, result.Outcome)
		}
	}
}

func TestTakeChunkErrors(t *testing.T) {
	store := NewStore()
	grid := testGrid(t, voxeld.Shape{2, 2, 2})
	chunks := ChunkMap(grid.Len(), 4)
	id := store.Create("test.vasp", 99, 4, chunks)

	if result := store.TakeChunk("no-such-task", 0); result.Outcome != TakeUnknownTask {
		t.Errorf("expected TakeUnknownTask, got %v\n", result.Outcome)
	}
	if result := store.TakeChunk(id, -1); result.Outcome != TakeBadIndex {
		t.Errorf("expected TakeBadIndex for negative index, got %v\n", result.Outcome)
	}
	if result := store.TakeChunk(id, len(chunks)); result.Outcome != TakeBadIndex {
		t.Errorf("expected TakeBadIndex past last chunk, got %v\n", result.Outcome)
	}

	store.CompleteFailure(id, "bad value token")
	result := store.TakeChunk(id, 0)
	if result.Outcome != TakeTaskFailed {
		t.Errorf("expected TakeTaskFailed after failure, got %v\n", result.Outcome)
	}
	if result.FailReason != "bad value token" {
		t.Errorf("expected failure reason to propagate, got %q\n", result.FailReason)
	}

	// A late success must not resurrect a failed task.
	store.CompleteSuccess(id, grid)
	if result := store.TakeChunk(id, 0); result.Outcome != TakeTaskFailed {
		t.Errorf("failed task resurrected by late completion: %v\n", result.Outcome)
	}
}

func TestConcurrentTakeIsOneShot(t *testing.T) {
	store := NewStore()
	grid := testGrid(t, voxeld.Shape{8, 8, 8})
	chunks := ChunkMap(grid.Len(), 64)
	id := store.Create("race.vasp", 0, 64, chunks)
	store.CompleteSuccess(id, grid)

	const fetchers = 64
	for index := range chunks {
		var wg sync.WaitGroup
		var ready, taken int64
		var mu sync.Mutex
		for f := 0; f < fetchers; f++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				result := store.TakeChunk(id, index)
				mu.Lock()
				defer mu.Unlock()
				switch result.Outcome {
				case TakeReady:
					ready++
				case TakeAlreadyTaken:
					taken++
				default:
					t.Errorf("chunk %d: unexpected outcome %v\n", index, result.Outcome)
				}
			}()
		}
		wg.Wait()
		if ready != 1 {
			t.Errorf("chunk %d: expected exactly 1 TakeReady from %d fetchers, got %d\n",
				index, fetchers, ready)
		}
		if taken != fetchers-1 {
			t.Errorf("chunk %d: expected %d TakeAlreadyTaken, got %d\n", index, fetchers-1, taken)
		}
	}
}

func TestSweep(t *testing.T) {
	store := NewStore()
	chunks := ChunkMap(10, 5)
	oldID := store.Create("old.vasp", 0, 5, chunks)
	if store.Len() != 1 {
		t.Fatalf("expected 1 task, got %d\n", store.Len())
	}

	// Nothing is old enough yet.
	if removed := store.Sweep(time.Hour); removed != 0 {
		t.Errorf("expected no tasks swept, got %d\n", removed)
	}

	// Everything is older than a zero TTL.
	time.Sleep(10 * time.Millisecond)
	if removed := store.Sweep(0); removed != 1 {
		t.Errorf("expected 1 task swept, got %d\n", removed)
	}
	if result := store.TakeChunk(oldID, 0); result.Outcome != TakeUnknownTask {
		t.Errorf("swept task still resolvable: %v\n", result.Outcome)
	}
}

func TestStatus(t *testing.T) {
	store := NewStore()
	grid := testGrid(t, voxeld.Shape{2, 2, 2})
	chunks := ChunkMap(grid.Len(), 4)
	id := store.Create("status.vasp", 321, 4, chunks)

	statuses := store.Status()
	if len(statuses) != 1 {
		t.Fatalf("expected 1 status, got %d\n", len(statuses))
	}
	if statuses[0].State != "parsing" || statuses[0].Unconsumed != 2 {
		t.Errorf("bad initial status: %+v\n", statuses[0])
	}

	store.CompleteSuccess(id, grid)
	store.TakeChunk(id, 0)
	statuses = store.Status()
	if statuses[0].State != "ready" || statuses[0].Unconsumed != 1 {
		t.Errorf("bad post-take status: %+v\n", statuses[0])
	}
	if statuses[0].MemoryBytes <= 0 {
		t.Errorf("expected positive memory estimate, got %d\n", statuses[0].MemoryBytes)
	}
}
