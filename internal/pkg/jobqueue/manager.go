package jobqueue

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/InvoiceFox/internal/pkg/cache"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/env"
)

// TrialSweeper emits notices for trial windows that have closed.
type TrialSweeper interface {
	NotifyExpiredTrials(ctx context.Context) (int, error)
}

// Manager manages the global job queue and background tasks
type Manager struct {
	queue         *Queue
	sweeper       TrialSweeper
	trialInterval time.Duration
	trialTicker   *time.Ticker
	stopCh        chan struct{}
	wg            sync.WaitGroup
	mu            sync.Mutex
	running       bool
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// GetManager returns the global job queue manager (singleton)
func GetManager() *Manager {
	managerOnce.Do(func() {
		workerCount := 5
		if v, err := strconv.Atoi(env.GetEnv("JOB_QUEUE_WORKERS", "5")); err == nil && v > 0 {
			workerCount = v
		}
		globalManager = NewManager(NewQueue(cache.GetClient(), workerCount))
	})
	return globalManager
}

// NewManager wraps a queue. Most callers use GetManager.
func NewManager(queue *Queue) *Manager {
	return &Manager{
		queue:         queue,
		trialInterval: 15 * time.Minute,
		stopCh:        make(chan struct{}),
	}
}

// GetQueue returns the managed job queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// SetTrialSweeper schedules s every interval once the manager is started.
func (m *Manager) SetTrialSweeper(s TrialSweeper, interval time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweeper = s
	if interval > 0 {
		m.trialInterval = interval
	}
}

// Start starts the job queue and background tasks
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so manager can be restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[JobQueue Manager] Starting job queue and background tasks")

	m.queue.Start()

	if m.sweeper != nil {
		m.trialTicker = time.NewTicker(m.trialInterval)
		m.wg.Add(1)
		go m.trialWorker(m.trialTicker, m.stopCh)
	}

	log.Info("[JobQueue Manager] Started successfully")
}

// Stop stops the job queue and background tasks
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}

	log.Info("[JobQueue Manager] Stopping job queue and background tasks...")
	if m.trialTicker != nil {
		m.trialTicker.Stop()
	}
	close(m.stopCh)
	m.running = false
	m.mu.Unlock()

	m.wg.Wait()
	m.queue.Stop()

	log.Info("[JobQueue Manager] Stopped successfully")
}

// trialWorker periodically enqueues trial_ended notices
func (m *Manager) trialWorker(ticker *time.Ticker, stopCh chan struct{}) {
	defer m.wg.Done()
	log.Infof("[JobQueue Manager] Started trial sweep worker (interval: %s)", m.trialInterval)

	for {
		select {
		case <-stopCh:
			log.Info("[JobQueue Manager] Trial sweep worker stopping")
			return
		case <-ticker.C:
			if _, err := m.RunTrialSweepOnce(context.Background()); err != nil {
				log.Errorf("[JobQueue Manager] Trial sweep error: %v", err)
			}
		}
	}
}

// RunTrialSweepOnce runs a single trial sweep.
func (m *Manager) RunTrialSweepOnce(ctx context.Context) (int, error) {
	m.mu.Lock()
	s := m.sweeper
	m.mu.Unlock()
	if s == nil {
		return 0, nil
	}

	n, err := s.NotifyExpiredTrials(ctx)
	if err == nil && n > 0 {
		log.Infof("[JobQueue Manager] Trial sweep found %d expired trials", n)
	}
	return n, err
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
