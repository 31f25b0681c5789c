package worker

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"rockguard/internal/logger"
	"rockguard/internal/metrics"
	"rockguard/internal/models"
)

// Publisher defines the interface for publishing envelopes
type Publisher interface {
	Publish(ctx context.Context, envelope *models.Envelope) error
	PublishBatch(ctx context.Context, envelopes []*models.Envelope) error
}

// Pool drains the notification event queue in batches and hands them to a
// Publisher. Closing the queue lets workers flush what is left and exit.
type Pool struct {
	publisher    Publisher
	envelopeChan <-chan *models.Envelope
	workers      int
	batchSize    int
	batchTimeout time.Duration
	flushTimeout time.Duration

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	// Metrics
	processed atomic.Uint64
	failed    atomic.Uint64
	batches   atomic.Uint64
}

// Config holds worker pool configuration
type Config struct {
	Publisher    Publisher
	EnvelopeChan <-chan *models.Envelope
	Workers      int
	BatchSize    int
	BatchTimeout time.Duration
	// FlushTimeout bounds the final publish of a worker on shutdown.
	FlushTimeout time.Duration
}

// NewPool creates a new worker pool
func NewPool(cfg Config) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 100 * time.Millisecond
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = 5 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		publisher:    cfg.Publisher,
		envelopeChan: cfg.EnvelopeChan,
		workers:      cfg.Workers,
		batchSize:    cfg.BatchSize,
		batchTimeout: cfg.BatchTimeout,
		flushTimeout: cfg.FlushTimeout,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start begins processing envelopes
func (p *Pool) Start() {
	log := logger.WithComponent("worker_pool")
	log.Info().
		Int("workers", p.workers).
		Int("batch_size", p.batchSize).
		Dur("batch_timeout", p.batchTimeout).
		Msg("starting worker pool")

	metrics.WorkerQueueCapacity.Set(float64(cap(p.envelopeChan)))

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Wait blocks until every worker has exited. Workers exit once the queue
// is closed and drained, or after Stop.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Stop cancels the workers and waits for them to flush their batches.
func (p *Pool) Stop() {
	log := logger.WithComponent("worker_pool")
	log.Info().Msg("stopping worker pool")
	p.cancel()
	p.wg.Wait()
	log.Info().
		Uint64("processed", p.processed.Load()).
		Uint64("failed", p.failed.Load()).
		Msg("worker pool stopped")
}

// worker processes envelopes from the channel
func (p *Pool) worker(id int) {
	defer p.wg.Done()

	log := logger.WithComponent("worker").With().Int("worker_id", id).Logger()

	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("worker panic recovered")
			metrics.PanicsRecovered.WithLabelValues("worker").Inc()
		}
	}()

	log.Debug().Msg("worker started")
	defer log.Debug().Msg("worker stopped")

	batch := make([]*models.Envelope, 0, p.batchSize)
	timer := time.NewTimer(p.batchTimeout)
	defer timer.Stop()

	flush := func() {
		ctx, cancel := context.WithTimeout(context.Background(), p.flushTimeout)
		defer cancel()
		p.publishBatch(ctx, batch)
	}

	for {
		select {
		case <-p.ctx.Done():
			flush()
			return

		case envelope, ok := <-p.envelopeChan:
			if !ok {
				flush()
				return
			}

			batch = append(batch, envelope)
			metrics.WorkerQueueSize.Set(float64(len(p.envelopeChan)))

			if len(batch) >= p.batchSize {
				p.publishBatch(p.ctx, batch)
				batch = batch[:0]
				timer.Reset(p.batchTimeout)
			}

		case <-timer.C:
			if len(batch) > 0 {
				p.publishBatch(p.ctx, batch)
				batch = batch[:0]
			}
			timer.Reset(p.batchTimeout)
		}
	}
}

// publishBatch publishes a batch of envelopes, falling back to one-by-one
// delivery when the batch write fails.
func (p *Pool) publishBatch(parent context.Context, batch []*models.Envelope) {
	if len(batch) == 0 {
		return
	}

	log := logger.WithComponent("worker")
	start := time.Now()

	batchID := uuid.NewString()
	for i, envelope := range batch {
		envelope.WithBatch(batchID, i)
	}

	ctx, cancel := context.WithTimeout(parent, 10*time.Second)
	defer cancel()

	err := p.publisher.PublishBatch(ctx, batch)
	duration := time.Since(start)
	metrics.WorkerBatchPublishDuration.Observe(duration.Seconds())
	p.batches.Add(1)

	if err == nil {
		log.Debug().
			Str("batch_id", batchID).
			Int("batch_size", len(batch)).
			Dur("duration", duration).
			Msg("batch published")
		p.processed.Add(uint64(len(batch)))
		metrics.WorkerProcessedTotal.Add(float64(len(batch)))
		return
	}

	log.Error().
		Err(err).
		Str("batch_id", batchID).
		Int("batch_size", len(batch)).
		Dur("duration", duration).
		Msg("failed to publish batch")

	p.publishIndividually(parent, batch)
}

// publishIndividually tries to publish each envelope separately
func (p *Pool) publishIndividually(parent context.Context, batch []*models.Envelope) {
	log := logger.WithComponent("worker")
	log.Warn().Int("count", len(batch)).Msg("attempting individual publish for failed batch")

	for _, envelope := range batch {
		ctx, cancel := context.WithTimeout(parent, 5*time.Second)
		err := p.publisher.Publish(ctx, envelope)
		cancel()

		if err != nil {
			log.Error().
				Err(err).
				Str("event_kind", string(envelope.Event.Kind)).
				Str("notification_id", envelope.Event.NotificationID).
				Str("session_id", envelope.PartitionKey).
				Msg("failed to publish envelope individually")
			p.failed.Add(1)
			metrics.WorkerFailedTotal.Inc()
			continue
		}

		p.processed.Add(1)
		metrics.WorkerProcessedTotal.Inc()
	}
}

// Stats returns worker pool statistics
func (p *Pool) Stats() Stats {
	return Stats{
		Processed: p.processed.Load(),
		Failed:    p.failed.Load(),
		Batches:   p.batches.Load(),
		Queued:    len(p.envelopeChan),
		Capacity:  cap(p.envelopeChan),
	}
}

// Stats holds worker pool metrics
type Stats struct {
	Processed uint64 `json:"processed"`
	Failed    uint64 `json:"failed"`
	Batches   uint64 `json:"batches"`
	Queued    int    `json:"queued"`
	Capacity  int    `json:"capacity"`
}
