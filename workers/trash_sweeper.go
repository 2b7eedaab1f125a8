package workers

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/camden-git/mediagallery/services"
)

// Sweeper is the part of the trash service the ticker drives.
type Sweeper interface {
	Sweep(ctx context.Context) (services.SweepResult, error)
}

// TrashSweeper runs the trash sweep on a fixed interval until stopped.
type TrashSweeper struct {
	Sweeper  Sweeper
	Interval time.Duration
	Wg       sync.WaitGroup
	StopChan chan struct{}

	Mutex   sync.Mutex
	running bool
	lastRun time.Time
}

// NewTrashSweeper starts the ticker. An interval of zero or less disables it
// and returns nil; sweeps then only happen through the sweep command.
func NewTrashSweeper(sweeper Sweeper, interval time.Duration) *TrashSweeper {
	if interval <= 0 {
		log.Println("trash sweeper: disabled (interval is 0)")
		return nil
	}
	ts := &TrashSweeper{
		Sweeper:  sweeper,
		Interval: interval,
		StopChan: make(chan struct{}),
	}
	ts.Wg.Add(1)
	go ts.loop()
	log.Printf("trash sweeper: started, sweeping every %v", interval)
	return ts
}

func (ts *TrashSweeper) loop() {
	defer ts.Wg.Done()
	ticker := time.NewTicker(ts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ts.RunOnce()
		case <-ts.StopChan:
			log.Println("trash sweeper: stopping, stop signal received")
			return
		}
	}
}

// RunOnce sweeps unless a sweep is already in progress. It reports whether
// a sweep ran.
func (ts *TrashSweeper) RunOnce() bool {
	ts.Mutex.Lock()
	if ts.running {
		ts.Mutex.Unlock()
		log.Println("trash sweeper: previous sweep still running, skipping tick")
		return false
	}
	ts.running = true
	ts.Mutex.Unlock()

	defer func() {
		ts.Mutex.Lock()
		ts.running = false
		ts.lastRun = time.Now()
		ts.Mutex.Unlock()
	}()

	// a sweep gets at most one interval so a stuck filesystem cannot pile up runs
	ctx, cancel := context.WithTimeout(context.Background(), ts.Interval)
	defer cancel()
	go func() {
		select {
		case <-ts.StopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	if _, err := ts.Sweeper.Sweep(ctx); err != nil {
		log.Printf("trash sweeper: ERROR sweep failed: %v", err)
	}
	return true
}

func (ts *TrashSweeper) LastRun() time.Time {
	ts.Mutex.Lock()
	defer ts.Mutex.Unlock()
	return ts.lastRun
}

func (ts *TrashSweeper) Stop() {
	if ts == nil {
		return
	}
	log.Println("Stopping trash sweeper...")
	close(ts.StopChan)
	ts.Wg.Wait()
	log.Println("Trash sweeper stopped")
}
