package prometheus

import (
	"context"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// SchedulerSnapshotProvider provides current scheduler stats snapshots.
// *core.Scheduler satisfies this.
type SchedulerSnapshotProvider interface {
	WorkerCount() int
	QueuedTaskCount() int
	RunningTaskCount() int
	SuspendedFiberCount() int
	FiberCount() int
	IsShuttingDown() bool
}

// SnapshotPoller periodically exports scheduler snapshots into Prometheus gauges.
type SnapshotPoller struct {
	interval time.Duration

	schedulersMu sync.RWMutex
	schedulers   map[string]SchedulerSnapshotProvider

	schedulerQueued    *prom.GaugeVec
	schedulerRunning   *prom.GaugeVec
	schedulerSuspended *prom.GaugeVec
	schedulerFibers    *prom.GaugeVec
	schedulerWorkers   *prom.GaugeVec
	schedulerStopping  *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	queued := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "fibersched",
		Name:      "scheduler_queued",
		Help:      "Items waiting in worker queues per scheduler.",
	}, []string{"scheduler"})
	running := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "fibersched",
		Name:      "scheduler_running",
		Help:      "Tasks started and not yet finished per scheduler.",
	}, []string{"scheduler"})
	suspended := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "fibersched",
		Name:      "scheduler_suspended_fibers",
		Help:      "Fibers currently parked per scheduler.",
	}, []string{"scheduler"})
	fibers := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "fibersched",
		Name:      "scheduler_fibers",
		Help:      "Live fiber goroutines per scheduler.",
	}, []string{"scheduler"})
	workers := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "fibersched",
		Name:      "scheduler_workers",
		Help:      "Worker count per scheduler.",
	}, []string{"scheduler"})
	stopping := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "fibersched",
		Name:      "scheduler_shutting_down",
		Help:      "Scheduler shutdown state (1=shutting down, 0=accepting).",
	}, []string{"scheduler"})

	var err error
	if queued, err = registerCollector(reg, queued); err != nil {
		return nil, err
	}
	if running, err = registerCollector(reg, running); err != nil {
		return nil, err
	}
	if suspended, err = registerCollector(reg, suspended); err != nil {
		return nil, err
	}
	if fibers, err = registerCollector(reg, fibers); err != nil {
		return nil, err
	}
	if workers, err = registerCollector(reg, workers); err != nil {
		return nil, err
	}
	if stopping, err = registerCollector(reg, stopping); err != nil {
		return nil, err
	}

	return &SnapshotPoller{
		interval:           interval,
		schedulers:         make(map[string]SchedulerSnapshotProvider),
		schedulerQueued:    queued,
		schedulerRunning:   running,
		schedulerSuspended: suspended,
		schedulerFibers:    fibers,
		schedulerWorkers:   workers,
		schedulerStopping:  stopping,
	}, nil
}

// AddScheduler adds or replaces a scheduler snapshot provider by name.
func (p *SnapshotPoller) AddScheduler(name string, provider SchedulerSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	if name == "" {
		name = "scheduler"
	}
	p.schedulersMu.Lock()
	p.schedulers[name] = provider
	p.schedulersMu.Unlock()
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.running {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	p.stateMu.Unlock()

	go p.loop(pollCtx)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.running = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *SnapshotPoller) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.collectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.collectOnce()
		}
	}
}

func (p *SnapshotPoller) collectOnce() {
	p.schedulersMu.RLock()
	for name, provider := range p.schedulers {
		p.schedulerQueued.WithLabelValues(name).Set(float64(provider.QueuedTaskCount()))
		p.schedulerRunning.WithLabelValues(name).Set(float64(provider.RunningTaskCount()))
		p.schedulerSuspended.WithLabelValues(name).Set(float64(provider.SuspendedFiberCount()))
		p.schedulerFibers.WithLabelValues(name).Set(float64(provider.FiberCount()))
		p.schedulerWorkers.WithLabelValues(name).Set(float64(provider.WorkerCount()))
		if provider.IsShuttingDown() {
			p.schedulerStopping.WithLabelValues(name).Set(1)
		} else {
			p.schedulerStopping.WithLabelValues(name).Set(0)
		}
	}
	p.schedulersMu.RUnlock()
}
