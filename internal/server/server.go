package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rockguard/internal/alerts"
	"rockguard/internal/config"
	"rockguard/internal/handlers"
	"rockguard/internal/kafka"
	"rockguard/internal/logger"
	"rockguard/internal/metrics"
	"rockguard/internal/middleware"
	"rockguard/internal/models"
	"rockguard/internal/notifications"
	"rockguard/internal/session"
	"rockguard/internal/state"
	"rockguard/internal/worker"
)

// Server wires the notification store, the session provider, the alert
// dispatcher and the optional Kafka event feed behind one HTTP API.
type Server struct {
	cfg  *config.Config
	node string

	state      state.StateStore
	sessions   *session.Provider
	store      *notifications.Store
	dispatcher *alerts.Dispatcher
	limiter    *middleware.IPRateLimiter

	// event feed, nil when no brokers are configured
	envelopeChan chan *models.Envelope
	producer     *kafka.Producer
	workerPool   *worker.Pool

	httpServer *http.Server
	listener   net.Listener
	ready      chan struct{}
	wg         sync.WaitGroup
}

// New constructs a Server with given config.
func New(cfg *config.Config) *Server {
	node := cfg.Notifications.Node
	if node == "" {
		node, _ = os.Hostname()
		if node == "" {
			node = "unknown"
		}
	}
	return &Server{cfg: cfg, node: node, ready: make(chan struct{})}
}

// Run starts every component and blocks until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	log := logger.WithComponent("server")
	log.Info().Str("node", s.node).Msg("server starting")

	if err := s.setup(ctx); err != nil {
		log.Error().Err(err).Msg("failed to start")
		s.teardown()
		return err
	}

	ln, err := net.Listen("tcp", s.cfg.HTTP.Addr)
	if err != nil {
		s.teardown()
		return fmt.Errorf("listen %s: %w", s.cfg.HTTP.Addr, err)
	}
	s.listener = ln
	close(s.ready)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		log.Info().Str("addr", ln.Addr().String()).Msg("starting HTTP server")
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	if s.limiter != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.limiter.Run(ctx)
		}()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.reportStats(ctx)
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	return s.shutdown()
}

// Ready is closed once the HTTP listener is bound.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound listen address. Only valid after Ready.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// setup builds every component without starting the HTTP listener.
func (s *Server) setup(ctx context.Context) error {
	if err := s.initState(ctx); err != nil {
		return fmt.Errorf("failed to initialize session state: %w", err)
	}
	s.sessions = session.NewProvider(s.state, s.cfg.Session.Key)

	if err := s.initEventFeed(); err != nil {
		return fmt.Errorf("failed to initialize event feed: %w", err)
	}

	s.initStore()
	s.dispatcher = alerts.NewDispatcher(s.store, nil)

	if s.cfg.RateLimit.Enabled {
		s.limiter = middleware.NewIPRateLimiter(s.cfg.RateLimit.RequestsPerMinute, s.cfg.RateLimit.Burst)
	}

	s.httpServer = &http.Server{
		Addr:         s.cfg.HTTP.Addr,
		Handler:      s.routes(),
		ReadTimeout:  s.cfg.HTTP.ReadTimeout,
		WriteTimeout: s.cfg.HTTP.WriteTimeout,
		IdleTimeout:  s.cfg.HTTP.IdleTimeout,
	}
	return nil
}

// initState selects the session persistence backend
func (s *Server) initState(ctx context.Context) error {
	log := logger.WithComponent("server")

	if s.cfg.Session.Backend != "redis" {
		s.state = state.NewMemoryStore()
		log.Info().Msg("session state in memory")
		return nil
	}

	store, err := state.NewRedisStore(ctx, state.RedisConfig{
		Addr:     s.cfg.Redis.Addr,
		Password: s.cfg.Redis.Password,
		DB:       s.cfg.Redis.DB,
		Prefix:   s.cfg.Redis.Prefix,
		TTL:      s.cfg.Redis.TTL,
	})
	if err != nil {
		return err
	}
	s.state = store
	log.Info().Str("addr", s.cfg.Redis.Addr).Msg("session state in redis")
	return nil
}

// initEventFeed starts the Kafka producer and its worker pool when brokers
// are configured.
func (s *Server) initEventFeed() error {
	log := logger.WithComponent("server")
	if !s.cfg.EventFeedEnabled() {
		log.Info().Msg("event feed disabled")
		return nil
	}

	producer, err := kafka.NewProducer(
		s.cfg.Kafka.Brokers,
		s.cfg.Kafka.Topic,
		s.cfg.Kafka.Producer,
		kafka.WithBreaker(s.cfg.Breaker),
	)
	if err != nil {
		return err
	}
	s.producer = producer

	s.envelopeChan = make(chan *models.Envelope, s.cfg.Notifications.QueueSize)
	s.workerPool = worker.NewPool(worker.Config{
		Publisher:    producer,
		EnvelopeChan: s.envelopeChan,
		Workers:      s.cfg.Kafka.Workers,
		BatchSize:    s.cfg.Kafka.Producer.BatchSize,
		BatchTimeout: s.cfg.Kafka.Producer.BatchTimeout,
	})
	s.workerPool.Start()

	log.Info().
		Strs("brokers", s.cfg.Kafka.Brokers).
		Str("topic", s.cfg.Kafka.Topic).
		Int("workers", s.cfg.Kafka.Workers).
		Msg("event feed initialized")
	return nil
}

func (s *Server) initStore() {
	opts := []notifications.Option{
		notifications.WithGenerator(notifications.GeneratorConfig{
			Enabled:     s.cfg.Generator.Enabled,
			Interval:    s.cfg.Generator.Interval,
			Probability: s.cfg.Generator.Probability,
		}),
	}
	if s.cfg.Notifications.SeedDemo {
		opts = append(opts, notifications.WithSeed(models.DemoSeed()))
	}
	if s.envelopeChan != nil {
		opts = append(opts, notifications.WithSink(notifications.NewChannelSink(s.envelopeChan, s.node)))
	}
	s.store = notifications.New(opts...)
}

// routes builds the HTTP handler tree. API routes are wrapped per pattern
// so the logging middleware sees the matched route.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	wrap := func(h http.Handler) http.Handler {
		mws := []func(http.Handler) http.Handler{middleware.Recovery, middleware.Logging}
		if s.limiter != nil {
			mws = append(mws, s.limiter.Handler)
		}
		mws = append(mws, middleware.WithStore(s.store))
		return middleware.Chain(h, mws...)
	}

	handlers.NewNotificationsHandler(s.cfg.HTTP.MaxBodySize).Register(mux, wrap)
	handlers.NewSessionHandler(s.sessions).Register(mux, wrap)
	handlers.NewAlertsHandler(s.dispatcher, s.sessions).Register(mux, wrap)

	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /stats", s.statsHandler)
	mux.Handle("GET /metrics", promhttp.Handler())

	return mux
}

// shutdown performs graceful shutdown
func (s *Server) shutdown() error {
	log := logger.WithComponent("server")
	log.Info().Msg("initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	log.Info().Msg("stopping HTTP server")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	s.teardown()
	s.wg.Wait()

	log.Info().Msg("server stopped gracefully")
	return nil
}

// teardown stops the store before the event feed so no event is emitted
// into a closed queue.
func (s *Server) teardown() {
	log := logger.WithComponent("server")

	if s.store != nil {
		s.store.Close()
	}

	if s.workerPool != nil {
		close(s.envelopeChan)

		done := make(chan struct{})
		go func() {
			s.workerPool.Wait()
			close(done)
		}()

		select {
		case <-done:
			log.Info().Msg("workers drained the event queue")
		case <-time.After(15 * time.Second):
			log.Warn().Msg("worker drain timeout, cancelling")
		}
		s.workerPool.Stop()
	}

	if s.producer != nil {
		if err := s.producer.Close(); err != nil {
			log.Error().Err(err).Msg("producer close error")
		}
	}

	if s.state != nil {
		if err := s.state.Close(); err != nil {
			log.Error().Err(err).Msg("session state close error")
		}
	}
}

// reportStats periodically logs statistics
func (s *Server) reportStats(ctx context.Context) {
	log := logger.WithComponent("server")
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := s.stats()
			if s.envelopeChan != nil {
				metrics.WorkerQueueSize.Set(float64(len(s.envelopeChan)))
			}

			ev := log.Info().
				Int("notifications", stats.Notifications.All).
				Int("unread", stats.Notifications.Unread).
				Int("alerts", stats.Notifications.Alerts).
				Int("dispatched", stats.AlertsDispatched)
			if stats.Worker != nil {
				ev = ev.
					Uint64("worker_processed", stats.Worker.Processed).
					Uint64("worker_failed", stats.Worker.Failed).
					Int("queue_size", stats.Worker.Queued)
			}
			if stats.Producer != nil {
				ev = ev.
					Uint64("producer_sent", stats.Producer.MessagesSent).
					Uint64("producer_failed", stats.Producer.MessagesFailed).
					Str("breaker", stats.Producer.BreakerState)
			}
			ev.Msg("stats")
		}
	}
}

// Stats is served on /stats.
type Stats struct {
	Node             string               `json:"node"`
	Session          string               `json:"session"`
	Notifications    models.TabCounts     `json:"notifications"`
	AlertsDispatched int                  `json:"alerts_dispatched"`
	Worker           *worker.Stats        `json:"worker,omitempty"`
	Producer         *kafka.ProducerStats `json:"producer,omitempty"`
}

func (s *Server) stats() Stats {
	st := Stats{
		Node:             s.node,
		Session:          s.store.Session(),
		Notifications:    s.store.Snapshot().Counts(),
		AlertsDispatched: len(s.dispatcher.History()),
	}
	if s.workerPool != nil {
		ws := s.workerPool.Stats()
		st.Worker = &ws
	}
	if s.producer != nil {
		ps := s.producer.Stats()
		st.Producer = &ps
	}
	return st
}

// healthHandler handles health check requests
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	w.Header().Set("Content-Type", "application/json")

	if s.producer != nil {
		if err := s.producer.HealthCheck(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":       "healthy",
		"unread_count": s.store.UnreadCount(),
		"event_feed":   s.producer != nil,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	})
}

// statsHandler returns current statistics
func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(s.stats())
}
