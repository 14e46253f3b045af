/*
	This file sets up the HTTP mux and shared handler helpers.  All error
	responses are JSON objects with at least an "error" message so browser
	clients get something structured regardless of status code.
*/

package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/janelia-flyem/voxeld/parsers"
	"github.com/janelia-flyem/voxeld/voxeld"

	"github.com/rs/cors"
	"github.com/wblakecaldwell/profiler"
	"github.com/zenazn/goji/web"
	"github.com/zenazn/goji/web/middleware"
)

const (
	// WebHelpText is returned by the root endpoint's message field.
	WebHelpText = "voxeld voxel grid service"

	// VoxelGridEndpoint is advertised by the root endpoint.
	VoxelGridEndpoint = "/voxel-grid?file=<filename>&chunk_size=<elements>"
)

var webMux struct {
	*web.Mux
	routesSetup bool
}

func init() {
	webMux.Mux = web.New()
}

// initRoutes installs middleware and all http handlers.  Idempotent so
// tests and Initialize can both trigger it.
func initRoutes() {
	if webMux.routesSetup {
		return
	}
	webMux.Use(middleware.RequestID)
	webMux.Use(middleware.Recoverer)
	webMux.Use(middleware.AutomaticOptions)

	webMux.Get("/", rootHandler)
	webMux.Get("/voxel-grid", voxelGridHandler)
	webMux.Post("/voxel-grid/preprocess", preprocessHandler)
	webMux.Get("/voxel-grid/chunk", chunkHandler)
	webMux.Get("/performance", performanceHandler)
	webMux.Get("/server/tasks", serverTasksHandler)

	// Memory profiling handlers register themselves on the default mux.
	profiler.AddMemoryProfilingHandlers()
	webMux.Handle("/profiler/*", http.DefaultServeMux)

	webMux.routesSetup = true
}

// ServeSingleHTTP fulfills one http request using the voxeld mux without a
// running server.  Used by tests.
func ServeSingleHTTP(w http.ResponseWriter, r *http.Request) {
	if !webMux.routesSetup {
		initRoutes()
	}
	webMux.ServeHTTP(w, r)
}

// serveHTTP listens and serves requests, wrapping the mux with CORS
// handling for browser-based visualization clients.  Stay-alive
// connections can't hog goroutines for more than an hour.
func serveHTTP() error {
	address := HTTPAddress()
	voxeld.Infof("Web server listening at %s ...\n", address)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: corsOrigins(),
		AllowedMethods: []string{"GET", "POST"},
		ExposedHeaders: []string{
			"X-Chunk-Index", "X-Chunk-Start", "X-Chunk-End",
			"X-Chunk-Length", "X-Chunk-Task",
		},
	})
	src := &http.Server{
		Addr:        address,
		ReadTimeout: 1 * time.Hour,
		Handler:     corsHandler.Handler(webMux),
	}
	return src.ListenAndServe()
}

// Serve initializes server state and blocks serving HTTP requests.
func Serve() error {
	if err := Initialize(); err != nil {
		return err
	}
	return serveHTTP()
}

// --- JSON helpers ---

func sendJSON(w http.ResponseWriter, status int, payload interface{}) {
	jsonBytes, err := json.Marshal(payload)
	if err != nil {
		voxeld.Errorf("Couldn't marshal JSON response: %v\n", err)
		http.Error(w, `{"error": "internal JSON encoding failure"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(jsonBytes)
}

// errorJSON writes a JSON error body with the given message plus any
// contextual fields.
func errorJSON(w http.ResponseWriter, status int, msg string, fields map[string]interface{}) {
	body := map[string]interface{}{"error": msg}
	for k, v := range fields {
		body[k] = v
	}
	sendJSON(w, status, body)
}

// BadRequest writes a JSON client-error response and logs it with the
// offending URL.
func BadRequest(w http.ResponseWriter, r *http.Request, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	voxeld.Errorf("Bad request (%s): %s\n", r.URL, msg)
	errorJSON(w, http.StatusBadRequest, msg, nil)
}

// NotFound writes a JSON not-found response and logs it.
func NotFound(w http.ResponseWriter, r *http.Request, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	voxeld.Errorf("Not found (%s): %s\n", r.URL, msg)
	errorJSON(w, http.StatusNotFound, msg, nil)
}

// ServerError writes a JSON server-error response and logs it.
func ServerError(w http.ResponseWriter, r *http.Request, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	voxeld.Errorf("Server error (%s): %s\n", r.URL, msg)
	errorJSON(w, http.StatusInternalServerError, msg, nil)
}

// --- simple handlers ---

// rootHandler describes the service and its supported formats.
func rootHandler(w http.ResponseWriter, r *http.Request) {
	info := map[string]interface{}{
		"message":              WebHelpText,
		"endpoint":             VoxelGridEndpoint,
		"supported_extensions": parsers.SupportedExtensions(),
		"resource_dir":         ResourceDir(),
	}
	if note := Note(); note != "" {
		info["note"] = note
	}
	sendJSON(w, http.StatusOK, info)
}

// serverTasksHandler reports every held task with its approximate resident
// memory, useful when watching a long-running process.
func serverTasksHandler(w http.ResponseWriter, r *http.Request) {
	statuses := taskStore.Status()
	sendJSON(w, http.StatusOK, map[string]interface{}{
		"task_count": len(statuses),
		"tasks":      statuses,
	})
}
