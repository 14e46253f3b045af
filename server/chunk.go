/*
	This file serves individual grid chunks.  A chunk is delivered to
	exactly one fetch; the slot is taken before the body write, so a client
	that disconnects mid-body forfeits that chunk rather than forcing the
	server to retain every consumed buffer for replay.
*/

package server

import (
	"net/http"
	"strconv"

	"github.com/janelia-flyem/voxeld/tasks"
	"github.com/janelia-flyem/voxeld/voxeld"
)

// chunkHandler resolves GET /voxel-grid/chunk?task_id=...&chunk_index=...
// to raw little-endian float64 bytes, a still-processing notice, or an
// error.
func chunkHandler(w http.ResponseWriter, r *http.Request) {
	timedLog := voxeld.NewTimeLog()

	queryStrings := r.URL.Query()
	taskID := queryStrings.Get("task_id")
	if taskID == "" {
		BadRequest(w, r, "missing required 'task_id' query parameter")
		return
	}
	indexStr := queryStrings.Get("chunk_index")
	if indexStr == "" {
		BadRequest(w, r, "missing required 'chunk_index' query parameter")
		return
	}
	index, err := strconv.Atoi(indexStr)
	if err != nil {
		BadRequest(w, r, "chunk_index must be an integer, got %q", indexStr)
		return
	}

	result := taskStore.TakeChunk(taskID, index)
	switch result.Outcome {
	case tasks.TakeUnknownTask:
		errorJSON(w, http.StatusBadRequest, "unknown task id",
			map[string]interface{}{"task_id": taskID})

	case tasks.TakeBadIndex:
		errorJSON(w, http.StatusBadRequest, "chunk index out of range",
			map[string]interface{}{"task_id": taskID, "chunk_index": index})

	case tasks.TakeTaskFailed:
		errorJSON(w, http.StatusInternalServerError, "task failed: "+result.FailReason,
			map[string]interface{}{"task_id": taskID})

	case tasks.TakeProcessing:
		sendJSON(w, http.StatusAccepted, map[string]interface{}{
			"status":      "processing",
			"task_id":     taskID,
			"chunk_index": index,
		})

	case tasks.TakeAlreadyTaken:
		errorJSON(w, http.StatusBadRequest, "chunk was already taken",
			map[string]interface{}{"task_id": taskID, "chunk_index": index})

	case tasks.TakeReady:
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("X-Chunk-Index", strconv.Itoa(result.Chunk.Index))
		w.Header().Set("X-Chunk-Start", strconv.Itoa(result.Chunk.Start))
		w.Header().Set("X-Chunk-End", strconv.Itoa(result.Chunk.End))
		w.Header().Set("X-Chunk-Length", strconv.Itoa(len(result.Data)))
		w.Header().Set("X-Chunk-Task", taskID)
		if _, err := w.Write(result.Data); err != nil {
			// The chunk is gone either way; the client must re-preprocess.
			voxeld.Errorf("Write of chunk %d for task %s aborted: %v\n", index, taskID, err)
			return
		}
		timedLog.Infof("HTTP %s: %s (%d bytes)", r.Method, r.URL, len(result.Data))
	}
}
