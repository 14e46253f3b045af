/*
	This file manages the lifecycle of a voxeld server process: shared state
	initialization, the periodic task sweeper, and graceful shutdown.
*/

package server

import (
	"fmt"
	"sync"
	"time"

	"github.com/janelia-flyem/voxeld/tasks"
	"github.com/janelia-flyem/voxeld/voxeld"

	"golang.org/x/sync/semaphore"
)

var (
	// taskStore is the process-wide registry of preprocessing tasks.
	taskStore *tasks.Store

	// perfStore keeps per-session timing records for clients that ask
	// for them.
	perfStore *performanceStore

	// parseSem bounds the number of simultaneous background parses.
	parseSem *semaphore.Weighted

	// shutdownCh is closed to stop the sweeper goroutine.
	shutdownCh chan struct{}

	initMu      sync.Mutex
	initialized bool
)

// Initialize sets up shared server state from the loaded configuration and
// starts the task sweeper.  It must be called before serving requests.
func Initialize() error {
	initMu.Lock()
	defer initMu.Unlock()

	if err := checkResourceDir(); err != nil {
		return err
	}

	taskStore = tasks.NewStore()
	perfStore = newPerformanceStore()
	parseSem = semaphore.NewWeighted(int64(tc.Tasks.MaxConcurrentParses))
	initRoutes()

	if initialized {
		// Reinitialized (e.g. between tests): the old sweeper is stopped
		// and a new one started against the fresh stores.
		close(shutdownCh)
	}
	shutdownCh = make(chan struct{})
	go sweeper(taskStore, perfStore, shutdownCh)
	initialized = true

	voxeld.Infof("Serving voxel grids from %s\n", ResourceDir())
	voxeld.Infof("Task TTL %d minutes, swept every %d minutes\n",
		tc.Tasks.TTLMinutes, tc.Tasks.SweepMinutes)
	return nil
}

// sweeper periodically drops tasks and performance sessions past their TTL.
func sweeper(ts *tasks.Store, ps *performanceStore, done chan struct{}) {
	interval := time.Duration(tc.Tasks.SweepMinutes) * time.Minute
	ttl := time.Duration(tc.Tasks.TTLMinutes) * time.Minute
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if removed := ts.Sweep(ttl); removed > 0 {
				voxeld.Infof("Swept %d expired tasks, %d remaining\n", removed, ts.Len())
			}
			if removed := ps.sweep(ttl); removed > 0 {
				voxeld.Debugf("Swept %d expired performance sessions\n", removed)
			}
		}
	}
}

// Shutdown stops background goroutines, waiting briefly so outstanding
// requests can finish.
func Shutdown() {
	initMu.Lock()
	defer initMu.Unlock()
	if !initialized {
		return
	}
	close(shutdownCh)
	initialized = false

	delay := tc.Server.ShutdownDelay
	if delay > 0 {
		fmt.Printf("Waiting %d seconds for any HTTP requests to drain...\n", delay)
		time.Sleep(time.Duration(delay) * time.Second)
	}
	voxeld.Infof("Shutting down voxeld server.\n")
}
