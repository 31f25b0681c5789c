package notifications

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"rockguard/internal/logger"
	"rockguard/internal/metrics"
	"rockguard/internal/models"
)

// ErrNoStore is raised when a store is used outside its lifecycle: a nil or
// zero-value *Store, or a context without one attached.
var ErrNoStore = errors.New("notifications: store not initialized, construct it with notifications.New")

// Origin labels where a notification came from. It only feeds metrics.
type Origin string

const (
	OriginAPI       Origin = "api"
	OriginGenerator Origin = "generator"
	OriginDispatch  Origin = "dispatch"
	OriginSeed      Origin = "seed"
)

// EventSink receives lifecycle events. Emit is called with the store lock
// held and must not block.
type EventSink interface {
	Emit(session string, event *models.Event)
}

// Store is the in-memory notification state of one session. All methods
// are safe for concurrent use; each mutation is applied atomically.
type Store struct {
	mu sync.Mutex

	// newest first
	items []models.Notification

	subs    map[uint64]chan models.Snapshot
	nextSub uint64

	session string
	clock   Clock
	rand    Rand
	newID   func() string
	sink    EventSink
	gen     GeneratorConfig
	seed    []models.SeedRecord
	log     zerolog.Logger

	stop   chan struct{}
	wg     sync.WaitGroup
	closed bool
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces the wall clock, mostly for tests.
func WithClock(c Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithRand replaces the generator's random source.
func WithRand(r Rand) Option {
	return func(s *Store) { s.rand = r }
}

// WithIDFunc replaces the id generator (uuid v4 by default).
func WithIDFunc(fn func() string) Option {
	return func(s *Store) { s.newID = fn }
}

// WithSink attaches an event sink for lifecycle events.
func WithSink(sink EventSink) Option {
	return func(s *Store) { s.sink = sink }
}

// WithSession names the session this store belongs to.
func WithSession(id string) Option {
	return func(s *Store) { s.session = id }
}

// WithGenerator overrides the synthetic generator settings.
func WithGenerator(cfg GeneratorConfig) Option {
	return func(s *Store) { s.gen = cfg }
}

// WithoutGenerator disables the synthetic generator.
func WithoutGenerator() Option {
	return func(s *Store) { s.gen.Enabled = false }
}

// WithSeed preloads the store. Records are given newest first.
func WithSeed(records []models.SeedRecord) Option {
	return func(s *Store) { s.seed = records }
}

// New creates a store and starts its synthetic generator when enabled.
// Callers must Close the store to stop the generator.
func New(opts ...Option) *Store {
	s := &Store{
		subs:  make(map[uint64]chan models.Snapshot),
		clock: systemClock{},
		newID: uuid.NewString,
		gen:   DefaultGeneratorConfig(),
		stop:  make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.rand == nil {
		s.rand = newRand()
	}
	if s.session == "" {
		s.session = uuid.NewString()
	}
	s.log = logger.WithSession("notification_store", s.session)

	s.loadSeed()

	if s.gen.Enabled {
		s.startGenerator()
	}

	s.log.Info().
		Int("seeded", len(s.items)).
		Bool("generator", s.gen.Enabled).
		Msg("notification store created")

	return s
}

func (s *Store) loadSeed() {
	if len(s.seed) == 0 {
		return
	}

	now := s.clock.Now()
	for _, rec := range s.seed {
		n := s.stamp(rec.Payload, now.Add(-rec.Age))
		n.Read = rec.Read
		s.items = append(s.items, n)
		metrics.NotificationsAdded.WithLabelValues(string(n.Type), string(OriginSeed)).Inc()
	}
	metrics.NotificationsUnread.Set(float64(models.CountUnread(s.items)))
}

// Session returns the session id the store was created for.
func (s *Store) Session() string {
	s.mustInit()
	return s.session
}

// Add stamps a new notification and puts it at the front of the list.
func (s *Store) Add(p models.Payload) models.Notification {
	return s.AddFrom(OriginAPI, p)
}

// AddFrom is Add with an explicit origin label.
func (s *Store) AddFrom(origin Origin, p models.Payload) models.Notification {
	s.mustInit()

	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.stamp(p, s.clock.Now())

	s.items = append(s.items, models.Notification{})
	copy(s.items[1:], s.items)
	s.items[0] = n

	metrics.NotificationsAdded.WithLabelValues(string(n.Type), string(origin)).Inc()
	s.log.Debug().
		Str("notification_id", n.ID).
		Str("type", string(n.Type)).
		Str("origin", string(origin)).
		Msg("notification added")

	created := n
	s.emitLocked(models.EventAdded, n.ID, &created)
	s.publishLocked()

	return n
}

// MarkAsRead marks one notification read. Unknown or already-read ids are
// ignored.
func (s *Store) MarkAsRead(id string) {
	s.mustInit()

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 || s.items[i].Read {
		return
	}

	s.items[i].Read = true
	s.emitLocked(models.EventRead, id, nil)
	s.publishLocked()
}

// MarkAllAsRead marks every notification read.
func (s *Store) MarkAllAsRead() {
	s.mustInit()

	s.mu.Lock()
	defer s.mu.Unlock()

	changed := false
	for i := range s.items {
		if !s.items[i].Read {
			s.items[i].Read = true
			changed = true
		}
	}
	if !changed {
		return
	}

	s.emitLocked(models.EventReadAll, "", nil)
	s.publishLocked()
}

// Delete removes the notification with the given id, if any.
func (s *Store) Delete(id string) {
	s.mustInit()

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return
	}

	s.items = append(s.items[:i], s.items[i+1:]...)

	metrics.NotificationsDeleted.Inc()
	s.log.Debug().Str("notification_id", id).Msg("notification deleted")

	s.emitLocked(models.EventDeleted, id, nil)
	s.publishLocked()
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() models.Snapshot {
	s.mustInit()

	s.mu.Lock()
	defer s.mu.Unlock()
	return models.NewSnapshot(s.items)
}

// UnreadCount is derived from the list on every call.
func (s *Store) UnreadCount() int {
	s.mustInit()

	s.mu.Lock()
	defer s.mu.Unlock()
	return models.CountUnread(s.items)
}

// Subscribe returns a channel carrying the current snapshot followed by the
// latest snapshot after every change. Only the newest pending snapshot is
// kept, so slow readers skip intermediate states. The returned function
// unsubscribes and closes the channel.
func (s *Store) Subscribe() (<-chan models.Snapshot, func()) {
	s.mustInit()

	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan models.Snapshot, 1)
	if s.closed {
		close(ch)
		return ch, func() {}
	}

	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	ch <- models.NewSnapshot(s.items)
	metrics.NotificationSubscribers.Inc()

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
			metrics.NotificationSubscribers.Dec()
		}
	}
	return ch, cancel
}

// Close stops the generator, waits for it to exit and closes every
// subscriber channel. It is safe to call more than once.
func (s *Store) Close() {
	s.mustInit()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.stop)
	s.mu.Unlock()

	// the generator may be waiting on mu, so wait without holding it
	s.wg.Wait()

	s.mu.Lock()
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
		metrics.NotificationSubscribers.Dec()
	}
	// the event queue may be closed after the store, stop feeding it
	s.sink = nil
	s.mu.Unlock()

	s.log.Info().Msg("notification store closed")
}

func (s *Store) stamp(p models.Payload, at time.Time) models.Notification {
	return models.Notification{
		ID:        s.newID(),
		Type:      p.Type,
		Title:     p.Title,
		Message:   p.Message,
		Timestamp: at,
		Read:      false,
		Location:  p.Location,
		Severity:  p.Severity,
	}
}

func (s *Store) indexLocked(id string) int {
	for i := range s.items {
		if s.items[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) emitLocked(kind models.EventKind, id string, n *models.Notification) {
	if s.sink == nil {
		return
	}
	s.sink.Emit(s.session, &models.Event{
		Kind:           kind,
		NotificationID: id,
		Notification:   n,
		OccurredAt:     s.clock.Now().UTC(),
	})
}

func (s *Store) publishLocked() {
	snap := models.NewSnapshot(s.items)
	metrics.NotificationsUnread.Set(float64(snap.UnreadCount))

	for _, ch := range s.subs {
		// drop the stale pending snapshot; we are the only sender
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}

func (s *Store) mustInit() {
	if s == nil || s.clock == nil {
		panic(ErrNoStore)
	}
}
