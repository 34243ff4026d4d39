package status

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/kbukum/podflow/errors"
)

var (
	// ErrActive is returned by Reset while an executor owns any node.
	ErrActive = errors.New(errors.ErrCodeNodeActive,
		"nodes are active; reset is only allowed between runs", http.StatusConflict)
	// ErrClaimed is returned by Writer when the node already has a writer.
	ErrClaimed = errors.New(errors.ErrCodeNodeActive,
		"node already has a writer", http.StatusConflict)
	// ErrTransition is returned for a write the state machine forbids.
	ErrTransition = errors.New(errors.ErrCodeConflict,
		"status transition not allowed", http.StatusConflict)
	// ErrReleased is returned for writes through a released Writer.
	ErrReleased = errors.New(errors.ErrCodeConflict,
		"writer released", http.StatusConflict)
)

// Entry is one node's row.
type Entry struct {
	Status    Status    `json:"status"`
	Progress  int       `json:"progress"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Event is emitted for every write. Seq increases by one per write across
// the whole store.
type Event struct {
	Seq    uint64 `json:"seq"`
	NodeID string `json:"nodeId"`
	Entry  Entry  `json:"entry"`
	Reset  bool   `json:"reset,omitempty"`
}

// Snapshot is a point-in-time copy of the table.
type Snapshot struct {
	Version uint64           `json:"version"`
	Entries map[string]Entry `json:"entries"`
}

// Status returns id's status; unknown nodes read as IDLE.
func (s Snapshot) Status(id string) Status {
	if e, ok := s.Entries[id]; ok {
		return e.Status
	}
	return Idle
}

// Store is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	entries map[string]Entry
	claims  map[string]*Writer
	version uint64
	now     func() time.Time

	subs    map[int]chan Event
	nextSub int
	changed chan struct{}
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		entries: make(map[string]Entry),
		claims:  make(map[string]*Writer),
		subs:    make(map[int]chan Event),
		changed: make(chan struct{}, 1),
		now:     time.Now,
	}
}

// Reset replaces the table with ids at IDLE and progress 0. It fails with
// ErrActive while any writer is held or any entry is active.
func (s *Store) Reset(ids []string) error {
	return s.reset(ids, true)
}

// ResetNodes sets ids to IDLE and progress 0 and leaves other rows alone.
// Like Reset it is refused while anything is active.
func (s *Store) ResetNodes(ids []string) error {
	return s.reset(ids, false)
}

func (s *Store) reset(ids []string, replace bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var busy []string
	for id := range s.claims {
		busy = append(busy, id)
	}
	for id, e := range s.entries {
		if e.Status.Active() && s.claims[id] == nil {
			busy = append(busy, id)
		}
	}
	if len(busy) > 0 {
		return ErrActive.WithDetail("nodes", busy)
	}

	if replace {
		s.entries = make(map[string]Entry, len(ids))
	}
	at := s.now()
	for _, id := range ids {
		e := Entry{Status: Idle, UpdatedAt: at}
		s.entries[id] = e
		s.publish(id, e, true)
	}
	return nil
}

// Writer claims the single writer for id. The claim lasts until the writer
// records a terminal status or is released.
func (s *Store) Writer(id string) (*Writer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, errors.NotFound("node", id)
	}
	if s.claims[id] != nil {
		return nil, ErrClaimed.WithDetail("node_id", id)
	}
	if e.Status != Idle {
		return nil, ErrTransition.WithDetail("node_id", id).WithDetail("from", e.Status)
	}
	w := &Writer{store: s, id: id}
	s.claims[id] = w
	return w, nil
}

// Get returns id's entry.
func (s *Store) Get(id string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	return e, ok
}

// Snapshot copies the table.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := Snapshot{Version: s.version, Entries: make(map[string]Entry, len(s.entries))}
	for id, e := range s.entries {
		out.Entries[id] = e
	}
	return out
}

// Version is the sequence number of the latest write.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Active lists nodes currently claimed by a writer.
func (s *Store) Active() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.claims))
	for id := range s.claims {
		ids = append(ids, id)
	}
	return ids
}

// Subscribe returns a channel receiving every subsequent event, and a
// function that ends the subscription. Events are dropped for a subscriber
// whose buffer is full.
func (s *Store) Subscribe(buffer int) (<-chan Event, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan Event, buffer)
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			close(ch)
			s.mu.Unlock()
		})
	}
}

// Changed is signalled after writes. Signals coalesce, so one receive may
// stand for many writes. Intended for a single consumer.
func (s *Store) Changed() <-chan struct{} {
	return s.changed
}

// publish must be called with s.mu held.
func (s *Store) publish(id string, e Entry, reset bool) {
	s.version++
	ev := Event{Seq: s.version, NodeID: id, Entry: e, Reset: reset}
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	select {
	case s.changed <- struct{}{}:
	default:
	}
}

// write applies fn to id's entry under the lock on behalf of w.
func (s *Store) write(w *Writer, fn func(e *Entry) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.claims[w.id] != w {
		return ErrReleased.WithDetail("node_id", w.id)
	}
	e := s.entries[w.id]
	if err := fn(&e); err != nil {
		return err
	}
	e.UpdatedAt = s.now()
	s.entries[w.id] = e
	if e.Status.Terminal() {
		delete(s.claims, w.id)
	}
	s.publish(w.id, e, false)
	return nil
}

func (s *Store) release(w *Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claims[w.id] != w {
		return
	}
	delete(s.claims, w.id)
	if e := s.entries[w.id]; e.Status.Active() {
		e.Status = Failed
		e.Error = "writer released before a terminal status"
		e.UpdatedAt = s.now()
		s.entries[w.id] = e
		s.publish(w.id, e, false)
	}
}

// Writer is the exclusive write handle for one node.
type Writer struct {
	store *Store
	id    string
}

// NodeID returns the node this writer owns.
func (w *Writer) NodeID() string { return w.id }

// Entry reads the node's current row.
func (w *Writer) Entry() (Entry, bool) { return w.store.Get(w.id) }

// Transition moves the node one step along the state machine. Entering
// QUEUED resets progress to 0; entering COMPLETED requires progress 100.
func (w *Writer) Transition(to Status) error {
	return w.store.write(w, func(e *Entry) error {
		if !CanTransition(e.Status, to) {
			return ErrTransition.WithDetail("node_id", w.id).WithDetail("from", e.Status).WithDetail("to", to)
		}
		if to == Completed && e.Progress < 100 {
			return ErrTransition.WithDetail("node_id", w.id).
				WithDetail("reason", fmt.Sprintf("progress %d below 100", e.Progress))
		}
		if to == Queued {
			e.Progress = 0
		}
		e.Status = to
		return nil
	})
}

// Progress records p while PROCESSING. Values must stay within 0..100 and
// never decrease.
func (w *Writer) Progress(p int) error {
	return w.store.write(w, func(e *Entry) error {
		if e.Status != Processing {
			return ErrTransition.WithDetail("node_id", w.id).WithDetail("reason", "progress outside PROCESSING")
		}
		if p < e.Progress || p > 100 {
			return ErrTransition.WithDetail("node_id", w.id).
				WithDetail("reason", fmt.Sprintf("progress %d after %d", p, e.Progress))
		}
		e.Progress = p
		return nil
	})
}

// Fail records FAILED with cause and releases the writer.
func (w *Writer) Fail(cause error) error {
	return w.terminate(Failed, cause)
}

// Cancel records CANCELLED with cause and releases the writer.
func (w *Writer) Cancel(cause error) error {
	return w.terminate(Cancelled, cause)
}

func (w *Writer) terminate(to Status, cause error) error {
	return w.store.write(w, func(e *Entry) error {
		if !CanTransition(e.Status, to) {
			return ErrTransition.WithDetail("node_id", w.id).WithDetail("from", e.Status).WithDetail("to", to)
		}
		e.Status = to
		if cause != nil {
			e.Error = cause.Error()
		}
		return nil
	})
}

// Release drops the claim. A node still active at that point is recorded
// as FAILED so it cannot be left owned by nobody. Safe to call after a
// terminal write.
func (w *Writer) Release() {
	w.store.release(w)
}
