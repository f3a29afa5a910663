package pipeline

import (
	"context"
	"sync"
	"time"

	"fieldDispatch/business/bandit"
	"fieldDispatch/pkg/logger"
)

// Pool runs a fixed set of workers over the consumer plus one sweeper that
// settles reward timeouts. Stop is graceful: workers finish the event they
// hold before exiting, so a commit is never abandoned mid-transaction.
type Pool struct {
	service *Service
	bandit  *bandit.Service

	workerCount   int
	rewardTimeout time.Duration
	sweepInterval time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPool(service *Service, banditSvc *bandit.Service, workerCount int, rewardTimeout time.Duration) *Pool {
	if workerCount <= 0 {
		workerCount = 1
	}
	return &Pool{
		service:       service,
		bandit:        banditSvc,
		workerCount:   workerCount,
		rewardTimeout: rewardTimeout,
		sweepInterval: rewardTimeout / 2,
	}
}

func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)

	logger.Info("starting worker pool", "workers", p.workerCount)

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.runWorker(ctx, i)
	}

	p.wg.Add(1)
	go p.runSweeper(ctx)
}

// Stop signals all workers and blocks until in-flight events are settled.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	logger.Info("worker pool drained")
}

func (p *Pool) runWorker(ctx context.Context, id int) {
	defer p.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}

		leased, err := p.service.consumer.Poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("poll failed", "worker", id, "error", err)
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}
		if leased == nil {
			continue
		}

		// the event is processed on the background context so shutdown
		// lets the commit finish; the lease, not the context, bounds it
		outcome, err := p.service.ProcessOne(context.Background(), leased)
		if err != nil {
			logger.Error("event processing failed",
				"worker", id,
				"event_id", leased.Event.EventID,
				"error", err,
			)
			continue
		}
		if outcome != "" {
			logger.Info("event processed",
				"worker", id,
				"event_id", leased.Event.EventID,
				"outcome", outcome,
			)
		}
	}
}

func (p *Pool) runSweeper(ctx context.Context) {
	defer p.wg.Done()

	interval := p.sweepInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.bandit.ResolveTimeouts(ctx, p.rewardTimeout)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Error("reward timeout sweep failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("reward timeouts settled", "count", n)
			}
		}
	}
}
