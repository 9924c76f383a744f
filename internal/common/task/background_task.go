package task

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type task struct {
	function    func(ctx context.Context)
	interval    time.Duration
	metricName  string
	stopChannel chan bool
}

// BackgroundTaskManager runs registered functions on a fixed interval until
// they are stopped or the manager's context is cancelled.  A task that is
// mid-tick when shutdown begins is allowed to finish.
// Not threadsafe; register and stop from a single goroutine.
type BackgroundTaskManager struct {
	ctx           context.Context
	tasks         []*task
	metricsPrefix string
	wg            *sync.WaitGroup
}

func NewBackgroundTaskManager(ctx context.Context, metricsPrefix string) *BackgroundTaskManager {
	return &BackgroundTaskManager{
		ctx:           ctx,
		tasks:         []*task{},
		metricsPrefix: metricsPrefix,
		wg:            &sync.WaitGroup{},
	}
}

// Register starts running backgroundTask every interval.  The first run
// happens immediately.
func (m *BackgroundTaskManager) Register(backgroundTask func(ctx context.Context), interval time.Duration, metricName string) {
	task := &task{
		function:    backgroundTask,
		interval:    interval,
		metricName:  metricName,
		stopChannel: make(chan bool),
	}
	m.startBackgroundTask(task)
	m.tasks = append(m.tasks, task)
}

// StopAll stops all tasks and waits up to timeout for in-flight ticks to
// complete.  Returns true if the wait timed out.
func (m *BackgroundTaskManager) StopAll(timeout time.Duration) bool {
	m.stopTasks()
	return m.waitForShutdownCompletion(timeout)
}

func (m *BackgroundTaskManager) startBackgroundTask(task *task) {
	taskDurationHistogram := promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    m.metricsPrefix + task.metricName + "_latency_seconds",
			Help:    "Background loop " + task.metricName + " latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 15),
		})

	runOnce := func() {
		start := time.Now()
		task.function(m.ctx)
		taskDurationHistogram.Observe(time.Since(start).Seconds())
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		runOnce()
		for {
			select {
			case <-time.After(task.interval):
			case <-task.stopChannel:
				return
			case <-m.ctx.Done():
				return
			}
			runOnce()
		}
	}()
}

func (m *BackgroundTaskManager) waitForShutdownCompletion(timeout time.Duration) bool {
	c := make(chan struct{})
	go func() {
		defer close(c)
		m.wg.Wait()
	}()
	select {
	case <-c:
		return false
	case <-time.After(timeout):
		return true
	}
}

func (m *BackgroundTaskManager) stopTasks() {
	for _, task := range m.tasks {
		close(task.stopChannel)
	}
}
