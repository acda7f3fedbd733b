package jobs

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"
)

// Job is a self-scheduling background task. Each job names its own next run.
type Job interface {
	Run(ctx context.Context) error
	GetNextRunTime() time.Time
}

// JobStatus is one job's entry in the health report.
type JobStatus struct {
	Name      string    `json:"name"`
	NextRunAt time.Time `json:"next_run_at"`
	LastRunAt time.Time `json:"last_run_at,omitempty"`
	LastError string    `json:"last_error,omitempty"`
}

// JobScheduler runs registered jobs on their own timers and reschedules
// each one after it completes.
type JobScheduler struct {
	jobs    map[string]Job
	timers  map[string]*time.Timer
	lastRun map[string]time.Time
	lastErr map[string]string
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewJobScheduler creates a new job scheduler
func NewJobScheduler() *JobScheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &JobScheduler{
		jobs:    make(map[string]Job),
		timers:  make(map[string]*time.Timer),
		lastRun: make(map[string]time.Time),
		lastErr: make(map[string]string),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Register adds a job to the scheduler
func (s *JobScheduler) Register(name string, job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs[name] = job
	log.Printf("✅ [SCHEDULER] Registered job: %s", name)
}

// Start begins running all registered jobs
func (s *JobScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	s.running = true
	log.Printf("🚀 [SCHEDULER] Starting job scheduler with %d jobs", len(s.jobs))

	for name, job := range s.jobs {
		s.scheduleJob(name, job)
	}
	return nil
}

func (s *JobScheduler) scheduleJob(name string, job Job) {
	nextRun := job.GetNextRunTime()
	log.Printf("⏰ [SCHEDULER] Job '%s' scheduled for %s", name, nextRun.Format(time.RFC3339))

	s.timers[name] = time.AfterFunc(time.Until(nextRun), func() {
		s.runJob(name, job)
	})
}

func (s *JobScheduler) runJob(name string, job Job) {
	s.wg.Add(1)
	defer s.wg.Done()

	log.Printf("▶️  [SCHEDULER] Running job: %s", name)
	start := time.Now()
	err := job.Run(s.ctx)
	if err != nil {
		log.Printf("❌ [SCHEDULER] Job '%s' failed: %v", name, err)
	} else {
		log.Printf("✅ [SCHEDULER] Job '%s' completed in %v", name, time.Since(start))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastRun[name] = start.UTC()
	s.lastErr[name] = ""
	if err != nil {
		s.lastErr[name] = err.Error()
	}
	if s.running {
		s.scheduleJob(name, job)
	}
}

// Stop gracefully stops all jobs
func (s *JobScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}

	log.Println("🛑 [SCHEDULER] Stopping job scheduler...")
	s.running = false
	for name, timer := range s.timers {
		timer.Stop()
		log.Printf("⏹️  [SCHEDULER] Stopped job: %s", name)
	}
	s.timers = make(map[string]*time.Timer)
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	log.Println("✅ [SCHEDULER] Job scheduler stopped")
}

// RunNow immediately runs a specific job (useful for testing)
func (s *JobScheduler) RunNow(name string) error {
	s.mu.Lock()
	job, exists := s.jobs[name]
	s.mu.Unlock()

	if !exists {
		log.Printf("⚠️  [SCHEDULER] Job '%s' not found", name)
		return nil
	}

	log.Printf("🚀 [SCHEDULER] Running job '%s' immediately", name)
	err := job.Run(s.ctx)

	s.mu.Lock()
	s.lastRun[name] = time.Now().UTC()
	s.lastErr[name] = ""
	if err != nil {
		s.lastErr[name] = err.Error()
	}
	s.mu.Unlock()
	return err
}

// GetStatus reports every registered job, ordered by name. Served on the
// health endpoint.
func (s *JobScheduler) GetStatus() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	statuses := make([]JobStatus, 0, len(s.jobs))
	for name, job := range s.jobs {
		statuses = append(statuses, JobStatus{
			Name:      name,
			NextRunAt: job.GetNextRunTime(),
			LastRunAt: s.lastRun[name],
			LastError: s.lastErr[name],
		})
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })
	return statuses
}
