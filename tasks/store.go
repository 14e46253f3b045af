/*
Package tasks tracks in-flight and completed preprocessing tasks for the
voxeld process.  A task is created when a preprocess request is accepted,
is filled in by a background parse, and hands out each of its chunks
exactly once.  Consumed chunk bytes are dropped immediately so repeated
client polling cannot grow resident memory.
*/
package tasks

import (
	"encoding/binary"
	"math"
	"sync"
	"time"

	"github.com/DmitriyVTitov/size"
	"github.com/twinj/uuid"

	"github.com/janelia-flyem/voxeld/voxeld"
)

// ChunkDescriptor is a half-open element range [Start, End) into a grid's
// flat data.
type ChunkDescriptor struct {
	Index int `json:"index"`
	Start int `json:"start"`
	End   int `json:"end"`
}

// ChunkMap partitions [0, dataLength) into contiguous descriptors of at
// most chunkSize elements.  chunkSize must be positive.
func ChunkMap(dataLength, chunkSize int) []ChunkDescriptor {
	chunks := make([]ChunkDescriptor, 0, (dataLength+chunkSize-1)/chunkSize)
	for start := 0; start < dataLength; start += chunkSize {
		end := start + chunkSize
		if end > dataLength {
			end = dataLength
		}
		chunks = append(chunks, ChunkDescriptor{Index: len(chunks), Start: start, End: end})
	}
	return chunks
}

type taskState uint8

const (
	stateParsing taskState = iota
	stateReady
	stateFailed
)

func (s taskState) String() string {
	switch s {
	case stateParsing:
		return "parsing"
	case stateReady:
		return "ready"
	case stateFailed:
		return "failed"
	}
	return "unknown"
}

type slotState uint8

const (
	slotPending slotState = iota
	slotAvailable
	slotConsumed
)

type chunkSlot struct {
	state slotState
	data  []byte
}

// Task holds the server-side state for one preprocess call.  All mutation
// of state and slots goes through the task mutex; the installed grid is
// immutable and needs no locking once published.
type Task struct {
	mu sync.Mutex

	id        string
	file      string
	fileSize  int64
	chunkSize int
	chunks    []ChunkDescriptor

	state      taskState
	failReason string
	slots      []chunkSlot
	unconsumed int
	created    time.Time
}

// TakeOutcome enumerates the results of a chunk fetch.
type TakeOutcome uint8

const (
	// TakeUnknownTask means the task id is not in the store.
	TakeUnknownTask TakeOutcome = iota

	// TakeBadIndex means the chunk index is outside the task's chunk map.
	TakeBadIndex

	// TakeTaskFailed means the background parse failed; the reason is in
	// TakeResult.FailReason.
	TakeTaskFailed

	// TakeProcessing means the background parse has not completed yet.
	TakeProcessing

	// TakeReady means the chunk bytes were consumed by this call and are
	// in TakeResult.Data.  No later call can get them again.
	TakeReady

	// TakeAlreadyTaken means an earlier call consumed this chunk.
	TakeAlreadyTaken
)

// TakeResult is the outcome of Store.TakeChunk.
type TakeResult struct {
	Outcome    TakeOutcome
	Chunk      ChunkDescriptor
	Data       []byte
	FailReason string
}

// TaskStatus is a read-only snapshot of one task for status reporting.
type TaskStatus struct {
	ID          string `json:"task_id"`
	File        string `json:"file"`
	State       string `json:"state"`
	Chunks      int    `json:"chunks"`
	Unconsumed  int    `json:"unconsumed_chunks"`
	MemoryBytes int    `json:"memory_bytes"`
	AgeSeconds  int    `json:"age_seconds"`
}

// Store is the process-wide task registry.  The outer map lock is never
// held across chunk materialization or any I/O.
type Store struct {
	mu    sync.RWMutex
	tasks map[string]*Task
}

func NewStore() *Store {
	return &Store{tasks: make(map[string]*Task)}
}

// Create allocates a parsing task covering the given chunk map and returns
// its id, a random hyphenated hex string.
func (s *Store) Create(file string, fileSize int64, chunkSize int, chunks []ChunkDescriptor) string {
	task := &Task{
		id:         uuid.NewV4().String(),
		file:       file,
		fileSize:   fileSize,
		chunkSize:  chunkSize,
		chunks:     chunks,
		state:      stateParsing,
		slots:      make([]chunkSlot, len(chunks)),
		unconsumed: len(chunks),
		created:    time.Now(),
	}
	s.mu.Lock()
	s.tasks[task.id] = task
	s.mu.Unlock()
	return task.id
}

func (s *Store) get(id string) *Task {
	s.mu.RLock()
	task := s.tasks[id]
	s.mu.RUnlock()
	return task
}

// CompleteSuccess moves a parsing task to ready, materializing every
// chunk's bytes as little-endian float64 views over the grid.  The byte
// slices are built before the task lock is taken so fetches are not
// blocked behind the encoding cost.  A second completion call on the same
// task is ignored.
func (s *Store) CompleteSuccess(id string, grid *voxeld.VoxelGrid) {
	task := s.get(id)
	if task == nil {
		voxeld.Errorf("Completion for unknown task %s dropped\n", id)
		return
	}

	encoded := make([][]byte, len(task.chunks))
	for i, chunk := range task.chunks {
		values, err := grid.Range(chunk.Start, chunk.End)
		if err != nil {
			s.CompleteFailure(id, err.Error())
			return
		}
		encoded[i] = encodeFloat64LE(values)
	}

	task.mu.Lock()
	defer task.mu.Unlock()
	if task.state != stateParsing {
		voxeld.Errorf("Task %s completed twice; second completion ignored\n", id)
		return
	}
	for i := range task.slots {
		task.slots[i] = chunkSlot{state: slotAvailable, data: encoded[i]}
	}
	task.state = stateReady
}

// CompleteFailure moves a parsing task to failed.  Every future chunk
// fetch on the task reports the reason.
func (s *Store) CompleteFailure(id, reason string) {
	task := s.get(id)
	if task == nil {
		voxeld.Errorf("Failure for unknown task %s dropped: %s\n", id, reason)
		return
	}
	task.mu.Lock()
	defer task.mu.Unlock()
	if task.state != stateParsing {
		voxeld.Errorf("Task %s completed twice; failure %q ignored\n", id, reason)
		return
	}
	task.state = stateFailed
	task.failReason = reason
}

// TakeChunk resolves a (task id, chunk index) pair.  On TakeReady the
// returned bytes are handed to exactly one caller: the slot moves to
// consumed under the task lock, so two concurrent fetches of the same
// chunk linearize with one TakeReady and one TakeAlreadyTaken.
func (s *Store) TakeChunk(id string, index int) TakeResult {
	task := s.get(id)
	if task == nil {
		return TakeResult{Outcome: TakeUnknownTask}
	}

	task.mu.Lock()
	defer task.mu.Unlock()

	if index < 0 || index >= len(task.chunks) {
		return TakeResult{Outcome: TakeBadIndex}
	}
	if task.state == stateFailed {
		return TakeResult{Outcome: TakeTaskFailed, FailReason: task.failReason}
	}

	chunk := task.chunks[index]
	switch task.slots[index].state {
	case slotPending:
		return TakeResult{Outcome: TakeProcessing, Chunk: chunk}
	case slotAvailable:
		data := task.slots[index].data
		task.slots[index] = chunkSlot{state: slotConsumed}
		task.unconsumed--
		return TakeResult{Outcome: TakeReady, Chunk: chunk, Data: data}
	default:
		return TakeResult{Outcome: TakeAlreadyTaken, Chunk: chunk}
	}
}

// Sweep removes tasks older than maxAge and returns how many were removed.
func (s *Store) Sweep(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, task := range s.tasks {
		if task.created.Before(cutoff) {
			delete(s.tasks, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of tasks currently held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}

// Status snapshots every held task, including its approximate resident
// size, for the server status endpoint.
func (s *Store) Status() []TaskStatus {
	s.mu.RLock()
	held := make([]*Task, 0, len(s.tasks))
	for _, task := range s.tasks {
		held = append(held, task)
	}
	s.mu.RUnlock()

	now := time.Now()
	statuses := make([]TaskStatus, 0, len(held))
	for _, task := range held {
		task.mu.Lock()
		statuses = append(statuses, TaskStatus{
			ID:          task.id,
			File:        task.file,
			State:       task.state.String(),
			Chunks:      len(task.chunks),
			Unconsumed:  task.unconsumed,
			MemoryBytes: size.Of(task.slots),
			AgeSeconds:  int(now.Sub(task.created).Seconds()),
		})
		task.mu.Unlock()
	}
	return statuses
}

// encodeFloat64LE renders values as little-endian IEEE-754 doubles, the
// wire format for chunk bodies.
func encodeFloat64LE(values []float64) []byte {
	buf := make([]byte, 8*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(v))
	}
	return buf
}
