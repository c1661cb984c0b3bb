package jobqueue

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/HenrikVollan/KakaoBoks/app/repository"
	"github.com/HenrikVollan/KakaoBoks/internal/pkg/database"
	"github.com/HenrikVollan/KakaoBoks/internal/pkg/env"
	"github.com/HenrikVollan/KakaoBoks/internal/pkg/subscription"
	"github.com/gofiber/fiber/v2/log"
)

const failedEventRetryBatch = 50

// Manager manages the global job queue and background tasks
type Manager struct {
	queue       *Queue
	sweepTicker *time.Ticker
	retryTicker *time.Ticker
	stopCh      chan struct{}
	wg          sync.WaitGroup
	mu          sync.Mutex
	running     bool
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// GetManager returns the global job queue manager (singleton)
func GetManager() *Manager {
	managerOnce.Do(func() {
		workerCount := envInt("JOB_QUEUE_WORKERS", 3)
		globalManager = &Manager{
			queue:  NewQueue(workerCount),
			stopCh: make(chan struct{}),
		}
	})
	return globalManager
}

// GetQueue returns the managed job queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
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

	sweepInterval := time.Duration(envInt("DUNNING_SWEEP_INTERVAL_MIN", 60)) * time.Minute
	retryInterval := time.Duration(envInt("EVENT_RETRY_INTERVAL_MIN", 5)) * time.Minute

	m.sweepTicker = time.NewTicker(sweepInterval)
	m.wg.Add(1)
	go m.dunningSweepWorker()

	m.retryTicker = time.NewTicker(retryInterval)
	m.wg.Add(1)
	go m.failedEventRetryWorker()
}

// Stop stops the job queue and background tasks
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	close(m.stopCh)
	if m.sweepTicker != nil {
		m.sweepTicker.Stop()
	}
	if m.retryTicker != nil {
		m.retryTicker.Stop()
	}
	m.wg.Wait()
	m.queue.Stop()
	m.running = false
	log.Info("[JobQueue Manager] Stopped")
}

// dunningSweepWorker cancels PAST_DUE subscriptions whose retry window has
// elapsed. The window length is policy, read from the environment.
func (m *Manager) dunningSweepWorker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			return
		case <-m.sweepTicker.C:
			window := time.Duration(envInt("DUNNING_RETRY_WINDOW_DAYS", 14)) * 24 * time.Hour
			svc := subscription.NewServiceFromDB(database.GetDB(), NewQueueNotifier(m.queue))
			swept, err := svc.SweepPastDue(context.Background(), window, time.Now())
			if err != nil {
				log.Errorf("[JobQueue Manager] Dunning sweep failed: %v", err)
				continue
			}
			if swept > 0 {
				log.Infof("[JobQueue Manager] Dunning sweep cancelled %d subscriptions", swept)
			}
		}
	}
}

// failedEventRetryWorker enqueues reprocess jobs for ledger events that were
// admitted but stored a processing error.
func (m *Manager) failedEventRetryWorker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			return
		case <-m.retryTicker.C:
			factory := repository.GetGlobalFactory()
			if factory == nil {
				continue
			}
			events, err := factory.GetWebhookEventRepository().ListFailed(failedEventRetryBatch)
			if err != nil {
				log.Errorf("[JobQueue Manager] Failed-event scan error: %v", err)
				continue
			}
			for _, ev := range events {
				// Stale references and state-dependent ignores are final;
				// only transient errors retry.
				if subscription.IsFinalProcessingError(ev.ProcessingError) {
					continue
				}
				payload := ReprocessEventJobPayload{EventID: ev.ID}
				if _, err := m.queue.EnqueueJob(JobTypeReprocessEvent, payload.ToMap()); err != nil {
					log.Errorf("[JobQueue Manager] Failed to enqueue reprocess for event %d: %v", ev.ID, err)
				}
			}
		}
	}
}

func envInt(key string, def int) int {
	if v, err := strconv.Atoi(env.GetEnv(key, "")); err == nil && v > 0 {
		return v
	}
	return def
}
