package notifications

import (
	"context"
	"errors"
	"math/rand"
	"reflect"
	"testing"
	"time"

	"rockguard/internal/models"
)

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	opts = append([]Option{WithoutGenerator(), WithClock(newFakeClock())}, opts...)
	s := New(opts...)
	t.Cleanup(s.Close)
	return s
}

func payload(title string) models.Payload {
	return models.Payload{Type: models.TypeAlert, Title: title, Message: "M"}
}

func checkUnreadInvariant(t *testing.T, s *Store) {
	t.Helper()
	snap := s.Snapshot()
	want := 0
	for _, n := range snap.Notifications {
		if !n.Read {
			want++
		}
	}
	if snap.UnreadCount != want {
		t.Fatalf("snapshot unread = %d, counted %d", snap.UnreadCount, want)
	}
	if got := s.UnreadCount(); got != want {
		t.Fatalf("UnreadCount() = %d, counted %d", got, want)
	}
}

func TestStoreScenario(t *testing.T) {
	s := newTestStore(t)

	n := s.Add(models.Payload{Type: models.TypeAlert, Title: "T", Message: "M"})

	snap := s.Snapshot()
	if len(snap.Notifications) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(snap.Notifications))
	}
	if snap.UnreadCount != 1 {
		t.Errorf("expected unread 1, got %d", snap.UnreadCount)
	}
	got := snap.Notifications[0]
	if got.Read {
		t.Error("new notification should be unread")
	}
	if got.ID == "" || got.ID != n.ID {
		t.Errorf("unexpected id %q (returned %q)", got.ID, n.ID)
	}
	if got.Timestamp.IsZero() {
		t.Error("timestamp not stamped")
	}

	s.MarkAsRead(n.ID)
	if c := s.UnreadCount(); c != 0 {
		t.Errorf("expected unread 0 after MarkAsRead, got %d", c)
	}

	s.Delete(n.ID)
	if l := len(s.Snapshot().Notifications); l != 0 {
		t.Errorf("expected empty store after Delete, got %d", l)
	}
}

func TestStoreNewestFirst(t *testing.T) {
	s := newTestStore(t)

	s.Add(payload("A"))
	s.Add(payload("B"))
	s.Add(payload("C"))

	var titles []string
	for _, n := range s.Snapshot().Notifications {
		titles = append(titles, n.Title)
	}
	if want := []string{"C", "B", "A"}; !reflect.DeepEqual(titles, want) {
		t.Errorf("order = %v, want %v", titles, want)
	}
}

func TestStoreAcceptsPayloadAsGiven(t *testing.T) {
	s := newTestStore(t)

	in := models.Payload{Type: "urgent", Title: "", Message: "  raw  ", Severity: "dire"}
	n := s.Add(in)

	if n.Type != in.Type || n.Title != in.Title || n.Message != in.Message || n.Severity != in.Severity {
		t.Errorf("payload altered on add: %+v", n)
	}
	if s.UnreadCount() != 1 {
		t.Errorf("unread = %d", s.UnreadCount())
	}
}

func TestStoreStampsFromClock(t *testing.T) {
	clk := newFakeClock()
	s := newTestStore(t, WithClock(clk))

	first := s.Add(payload("A"))
	clk.Advance(time.Minute)
	s.MarkAsRead(first.ID)

	got := s.Snapshot().Notifications[0]
	if !got.Timestamp.Equal(first.Timestamp) {
		t.Errorf("timestamp changed from %v to %v", first.Timestamp, got.Timestamp)
	}
	if !got.Timestamp.Equal(newFakeClock().Now()) {
		t.Errorf("timestamp %v not taken from clock", got.Timestamp)
	}
}

func TestStoreUniqueIDs(t *testing.T) {
	s := New(WithoutGenerator())
	defer s.Close()

	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		n := s.Add(payload("x"))
		if seen[n.ID] {
			t.Fatalf("duplicate id %q", n.ID)
		}
		seen[n.ID] = true
	}
}

func TestMarkAsReadIdempotent(t *testing.T) {
	s := newTestStore(t, WithIDFunc(sequentialIDs()))
	a := s.Add(payload("A"))
	s.Add(payload("B"))

	s.MarkAsRead(a.ID)
	once := s.Snapshot()
	s.MarkAsRead(a.ID)
	twice := s.Snapshot()

	if !reflect.DeepEqual(once, twice) {
		t.Errorf("second MarkAsRead changed state:\n%+v\n%+v", once, twice)
	}
	if twice.UnreadCount != 1 {
		t.Errorf("expected unread 1, got %d", twice.UnreadCount)
	}

	// unknown id is a no-op
	s.MarkAsRead("missing")
	if !reflect.DeepEqual(twice, s.Snapshot()) {
		t.Error("MarkAsRead on unknown id changed state")
	}
}

func TestMarkAllAsRead(t *testing.T) {
	s := newTestStore(t)

	s.MarkAllAsRead()
	if c := s.UnreadCount(); c != 0 {
		t.Fatalf("empty store unread = %d", c)
	}

	for i := 0; i < 5; i++ {
		s.Add(payload("x"))
	}
	s.MarkAsRead(s.Snapshot().Notifications[2].ID)

	s.MarkAllAsRead()
	if c := s.UnreadCount(); c != 0 {
		t.Errorf("expected unread 0, got %d", c)
	}

	before := s.Snapshot()
	s.MarkAllAsRead()
	if !reflect.DeepEqual(before, s.Snapshot()) {
		t.Error("MarkAllAsRead on read store changed state")
	}
}

func TestDeleteRemovesExactlyOne(t *testing.T) {
	s := newTestStore(t)
	s.Add(payload("A"))
	b := s.Add(payload("B"))
	s.Add(payload("C"))

	s.Delete(b.ID)
	snap := s.Snapshot()
	if len(snap.Notifications) != 2 {
		t.Fatalf("expected 2 left, got %d", len(snap.Notifications))
	}
	for _, n := range snap.Notifications {
		if n.ID == b.ID {
			t.Fatal("deleted notification still present")
		}
	}

	s.Delete(b.ID)
	if !reflect.DeepEqual(snap, s.Snapshot()) {
		t.Error("second Delete changed state")
	}
}

func TestUnreadInvariantRandomOps(t *testing.T) {
	s := newTestStore(t)
	r := rand.New(rand.NewSource(7))

	var ids []string
	for i := 0; i < 500; i++ {
		switch op := r.Intn(4); {
		case op == 0 || len(ids) == 0:
			ids = append(ids, s.Add(payload("x")).ID)
		case op == 1:
			s.MarkAsRead(ids[r.Intn(len(ids))])
		case op == 2:
			if r.Intn(10) == 0 {
				s.MarkAllAsRead()
			}
		default:
			s.Delete(ids[r.Intn(len(ids))])
		}
		checkUnreadInvariant(t, s)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	s := newTestStore(t)
	s.Add(payload("A"))

	snap := s.Snapshot()
	snap.Notifications[0].Read = true
	snap.Notifications[0].Title = "changed"

	got := s.Snapshot().Notifications[0]
	if got.Read || got.Title != "A" {
		t.Errorf("store mutated through snapshot: %+v", got)
	}
}

func TestSubscribeDeliversLatest(t *testing.T) {
	s := newTestStore(t)

	ch, cancel := s.Subscribe()
	defer cancel()

	initial := <-ch
	if len(initial.Notifications) != 0 {
		t.Fatalf("expected empty initial snapshot, got %d", len(initial.Notifications))
	}

	// nobody reads between these, only the newest state is pending
	s.Add(payload("A"))
	s.Add(payload("B"))
	s.Add(payload("C"))

	select {
	case snap := <-ch:
		if len(snap.Notifications) != 3 || snap.UnreadCount != 3 {
			t.Errorf("unexpected snapshot: %d items, %d unread", len(snap.Notifications), snap.UnreadCount)
		}
	case <-time.After(time.Second):
		t.Fatal("no snapshot delivered")
	}

	select {
	case snap := <-ch:
		t.Fatalf("unexpected extra snapshot: %+v", snap)
	default:
	}

	// no-op mutations do not broadcast
	s.MarkAsRead("missing")
	s.Delete("missing")
	select {
	case <-ch:
		t.Fatal("no-op mutation broadcast a snapshot")
	default:
	}
}

func TestSubscribeCancel(t *testing.T) {
	s := newTestStore(t)

	ch, cancel := s.Subscribe()
	<-ch
	cancel()
	cancel()

	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after cancel")
	}

	// store keeps working without subscribers
	s.Add(payload("A"))
	if s.UnreadCount() != 1 {
		t.Error("store broken after unsubscribe")
	}
}

func TestCloseClosesSubscribers(t *testing.T) {
	s := New(WithoutGenerator())

	ch, cancel := s.Subscribe()
	<-ch

	s.Close()
	s.Close()
	cancel()

	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after Close")
	}

	late, _ := s.Subscribe()
	if _, ok := <-late; ok {
		t.Fatal("subscribing to a closed store should yield a closed channel")
	}
}

func TestNilStorePanics(t *testing.T) {
	tests := []struct {
		name string
		call func(s *Store)
	}{
		{"nil add", func(s *Store) { s.Add(payload("x")) }},
		{"nil snapshot", func(s *Store) { s.Snapshot() }},
		{"nil mark", func(s *Store) { s.MarkAsRead("x") }},
		{"nil delete", func(s *Store) { s.Delete("x") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				r := recover()
				err, ok := r.(error)
				if !ok || !errors.Is(err, ErrNoStore) {
					t.Fatalf("expected ErrNoStore panic, got %v", r)
				}
			}()
			tt.call(nil)
		})
	}

	t.Run("zero value", func(t *testing.T) {
		defer func() {
			if r := recover(); r != ErrNoStore {
				t.Fatalf("expected ErrNoStore panic, got %v", r)
			}
		}()
		var s Store
		s.MarkAllAsRead()
	})
}

func TestFromContext(t *testing.T) {
	s := newTestStore(t)
	ctx := WithStore(context.Background(), s)

	if got := FromContext(ctx); got != s {
		t.Fatal("FromContext returned a different store")
	}

	if _, err := Lookup(context.Background()); !errors.Is(err, ErrNoStore) {
		t.Errorf("Lookup without store: got %v", err)
	}

	defer func() {
		if r := recover(); r != ErrNoStore {
			t.Fatalf("expected ErrNoStore panic, got %v", r)
		}
	}()
	FromContext(context.Background())
}

func TestSeed(t *testing.T) {
	clk := newFakeClock()
	s := newTestStore(t, WithClock(clk), WithSeed(models.DemoSeed()))

	snap := s.Snapshot()
	if len(snap.Notifications) != 3 {
		t.Fatalf("expected 3 seeded, got %d", len(snap.Notifications))
	}
	if snap.UnreadCount != 2 {
		t.Errorf("expected 2 unread, got %d", snap.UnreadCount)
	}
	if age := clk.Now().Sub(snap.Notifications[0].Timestamp); age != 30*time.Minute {
		t.Errorf("first seed age = %v", age)
	}
	for i := 1; i < len(snap.Notifications); i++ {
		if snap.Notifications[i].Timestamp.After(snap.Notifications[i-1].Timestamp) {
			t.Error("seed not newest first")
		}
	}

	// new items go before the seed
	s.Add(payload("new"))
	if s.Snapshot().Notifications[0].Title != "new" {
		t.Error("added notification not at the front")
	}
}

func TestSinkReceivesChanges(t *testing.T) {
	sink := &recordingSink{}
	s := newTestStore(t, WithSink(sink), WithSession("sess-1"))

	a := s.Add(payload("A"))
	s.MarkAsRead(a.ID)
	s.MarkAsRead(a.ID)
	s.Add(payload("B"))
	s.MarkAllAsRead()
	s.MarkAllAsRead()
	s.Delete(a.ID)
	s.Delete(a.ID)

	want := []models.EventKind{
		models.EventAdded,
		models.EventRead,
		models.EventAdded,
		models.EventReadAll,
		models.EventDeleted,
	}
	if got := sink.kinds(); !reflect.DeepEqual(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}

	first := sink.events[0]
	if first.Notification == nil || first.Notification.ID != a.ID {
		t.Errorf("added event missing notification: %+v", first)
	}
	if s.Session() != "sess-1" {
		t.Errorf("session = %q", s.Session())
	}
}

func TestChannelSinkDropsWhenFull(t *testing.T) {
	ch := make(chan *models.Envelope, 1)
	s := newTestStore(t, WithSink(NewChannelSink(ch, "node-a")), WithSession("sess-2"))

	s.Add(payload("A"))
	s.Add(payload("B"))

	if len(ch) != 1 {
		t.Fatalf("expected 1 queued envelope, got %d", len(ch))
	}
	env := <-ch
	if env.PartitionKey != "sess-2" || env.Node != "node-a" {
		t.Errorf("unexpected envelope routing: %+v", env)
	}
	if env.Event.Notification.Title != "A" {
		t.Errorf("expected first event to be kept, got %q", env.Event.Notification.Title)
	}
}
