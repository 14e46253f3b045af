/*
	This file implements the preprocess coordinator.  A preprocess request
	is answered as soon as the file header has been probed for its shape;
	the expensive tokenization of the grid body happens on a background
	goroutine while the client starts polling for chunks.
*/

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/janelia-flyem/voxeld/parsers"
	"github.com/janelia-flyem/voxeld/tasks"
	"github.com/janelia-flyem/voxeld/voxeld"

	"github.com/dustin/go-humanize"
)

// PreprocessResponse describes an accepted preprocessing task, including
// the chunk map clients will fetch against.
type PreprocessResponse struct {
	TaskID     string                  `json:"task_id"`
	File       string                  `json:"file"`
	FileSize   int64                   `json:"file_size"`
	Shape      voxeld.Shape            `json:"shape"`
	DataLength int                     `json:"data_length"`
	ChunkSize  int                     `json:"chunk_size"`
	Chunks     []tasks.ChunkDescriptor `json:"chunks"`
}

// validateFilename rejects any name that could resolve outside the
// resource directory.  Must be checked before touching the filesystem.
func validateFilename(file string) error {
	if file == "" {
		return fmt.Errorf("empty filename")
	}
	if strings.ContainsAny(file, "/\\") {
		return fmt.Errorf("filename %q must not contain path separators", file)
	}
	if file == "." || file == ".." {
		return fmt.Errorf("filename %q does not name a file in the resource directory", file)
	}
	return nil
}

// voxelGridHandler accepts preprocess requests via query parameters:
// GET /voxel-grid?file=<filename>&chunk_size=<elements>
func voxelGridHandler(w http.ResponseWriter, r *http.Request) {
	queryStrings := r.URL.Query()
	file := queryStrings.Get("file")
	if file == "" {
		BadRequest(w, r, "missing required 'file' query parameter")
		return
	}
	chunkSizeStr := queryStrings.Get("chunk_size")
	if chunkSizeStr == "" {
		BadRequest(w, r, "missing required 'chunk_size' query parameter (elements per chunk)")
		return
	}
	chunkSize, err := strconv.Atoi(chunkSizeStr)
	if err != nil || chunkSize <= 0 {
		BadRequest(w, r, "chunk_size must be a positive integer, got %q", chunkSizeStr)
		return
	}
	runPreprocess(w, r, file, chunkSize, queryStrings.Get("session_id"))
}

// preprocessHandler accepts the same request as a POSTed JSON body:
// {"file": ..., "chunk_size": ..., "session_id": ...}
func preprocessHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		File      string `json:"file"`
		ChunkSize int    `json:"chunk_size"`
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, r, "malformed JSON body: %v", err)
		return
	}
	if req.File == "" {
		BadRequest(w, r, "missing required 'file' field")
		return
	}
	if req.ChunkSize <= 0 {
		BadRequest(w, r, "chunk_size must be a positive integer, got %d", req.ChunkSize)
		return
	}
	runPreprocess(w, r, req.File, req.ChunkSize, req.SessionID)
}

// runPreprocess validates the request, probes the file for its shape,
// allocates the task, and kicks off the background parse.  The response is
// written before the grid body has been read.
func runPreprocess(w http.ResponseWriter, r *http.Request, file string, chunkSize int, sessionID string) {
	timedLog := voxeld.NewTimeLog()
	requestStart := unixMS()

	if err := validateFilename(file); err != nil {
		BadRequest(w, r, "%v", err)
		return
	}

	path := filepath.Join(ResourceDir(), file)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		NotFound(w, r, "file %q not found in resource directory", file)
		return
	}

	parser := parsers.ForFile(file)
	if parser == nil {
		errorJSON(w, http.StatusBadRequest,
			fmt.Sprintf("no parser for file %q", file),
			map[string]interface{}{
				"file":                 file,
				"supported_extensions": parsers.SupportedExtensions(),
			})
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		ServerError(w, r, "couldn't read %q: %v", file, err)
		return
	}

	shape, err := parser.Probe(data)
	if err != nil {
		ServerError(w, r, "couldn't probe %q with %s parser: %v", file, parser.Name(), err)
		return
	}
	dataLength, err := shape.NumElements()
	if err != nil {
		ServerError(w, r, "bad shape probed from %q: %v", file, err)
		return
	}

	chunks := tasks.ChunkMap(dataLength, chunkSize)
	taskID := taskStore.Create(file, info.Size(), chunkSize, chunks)
	go backgroundParse(parser, taskID, file, data, sessionID)

	recordPerf(sessionID, "preprocess", requestStart, fmt.Sprintf("preprocess %s", file))
	timedLog.Infof("Preprocessed %s (%s) into %d chunks as task %s",
		file, humanize.Bytes(uint64(info.Size())), len(chunks), taskID)

	sendJSON(w, http.StatusOK, PreprocessResponse{
		TaskID:     taskID,
		File:       file,
		FileSize:   info.Size(),
		Shape:      shape,
		DataLength: dataLength,
		ChunkSize:  chunkSize,
		Chunks:     chunks,
	})
}

// backgroundParse runs the full tokenization on already-loaded bytes and
// completes the task.  Parses are CPU-bound and hold large buffers, so a
// semaphore keeps only a few running at once; the rest queue here without
// blocking any request handler.
func backgroundParse(p parsers.Parser, taskID, file string, data []byte, sessionID string) {
	timedLog := voxeld.NewTimeLog()
	parseStart := unixMS()

	if err := parseSem.Acquire(context.Background(), 1); err != nil {
		taskStore.CompleteFailure(taskID, fmt.Sprintf("parse scheduling failed: %v", err))
		return
	}
	defer parseSem.Release(1)

	grid, err := p.Parse(file, data)
	if err != nil {
		taskStore.CompleteFailure(taskID, err.Error())
		recordPerf(sessionID, "parse_file", parseStart, fmt.Sprintf("parse of %s failed", file))
		timedLog.Errorf("Background parse of %q failed for task %s: %v", file, taskID, err)
		return
	}
	recordPerf(sessionID, "parse_file", parseStart, fmt.Sprintf("parsed %s for task %s", file, taskID))
	taskStore.CompleteSuccess(taskID, grid)
	timedLog.Infof("Background parse of %q (%s values) completed for task %s",
		file, humanize.Comma(int64(grid.Len())), taskID)
}
