package workers

import (
	"context"
	"log"
	"sync"

	"github.com/camden-git/mediagallery/services"
)

// MonitorRunner is the part of the monitor service the queue drives.
type MonitorRunner interface {
	Run(ctx context.Context, opts services.MonitorOptions) (services.MonitorReport, error)
}

// MonitorJob asks for a scan of one user's tree.
type MonitorJob struct {
	UserID int64 `json:"user_id"`
	Rescan bool  `json:"rescan"`
}

// MonitorQueue runs folder-monitor scans off the request path. A user with a
// scan already queued or running is not queued twice.
type MonitorQueue struct {
	JobQueue chan MonitorJob
	Runner   MonitorRunner
	Wg       sync.WaitGroup
	StopChan chan struct{}
	Pending  map[int64]bool
	Mutex    sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
}

func NewMonitorQueue(runner MonitorRunner, queueSize, numWorkers int) *MonitorQueue {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &MonitorQueue{
		JobQueue: make(chan MonitorJob, queueSize),
		Runner:   runner,
		StopChan: make(chan struct{}),
		Pending:  make(map[int64]bool),
		ctx:      ctx,
		cancel:   cancel,
	}
	q.Wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go q.worker(i)
	}
	log.Printf("started %d monitor worker(s) with queue size %d", numWorkers, queueSize)
	return q
}

func (q *MonitorQueue) worker(id int) {
	defer q.Wg.Done()
	for {
		select {
		case job, ok := <-q.JobQueue:
			if !ok {
				log.Printf("monitor worker %d stopping: job queue closed", id)
				return
			}
			log.Printf("monitor worker %d scanning user %d", id, job.UserID)
			if _, err := q.Runner.Run(q.ctx, services.MonitorOptions{Rescan: job.Rescan, UserIDs: []int64{job.UserID}}); err != nil {
				log.Printf("monitor worker %d: ERROR scanning user %d: %v", id, job.UserID, err)
			}
			q.Mutex.Lock()
			delete(q.Pending, job.UserID)
			q.Mutex.Unlock()

		case <-q.StopChan:
			log.Printf("monitor worker %d stopping: stop signal received", id)
			return
		}
	}
}

// Enqueue queues a scan unless one is already pending for the user or the
// queue is full.
func (q *MonitorQueue) Enqueue(job MonitorJob) bool {
	q.Mutex.Lock()
	if q.Pending[job.UserID] {
		q.Mutex.Unlock()
		return false
	}
	q.Pending[job.UserID] = true
	q.Mutex.Unlock()

	select {
	case q.JobQueue <- job:
		return true
	default:
		log.Printf("WARNING: monitor job queue full, dropping scan for user %d", job.UserID)
		q.Mutex.Lock()
		delete(q.Pending, job.UserID)
		q.Mutex.Unlock()
		return false
	}
}

func (q *MonitorQueue) Stop() {
	log.Println("Stopping monitor workers...")
	q.cancel()
	close(q.StopChan)
	q.Wg.Wait()
	log.Println("All monitor workers stopped")
}
