package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/kbukum/podflow/logger"
	"github.com/kbukum/podflow/resilience"
	"github.com/kbukum/podflow/status"
)

// Source is the status feed a mirror copies from.
type Source interface {
	Subscribe(buffer int) (<-chan status.Event, func())
	Status() status.Snapshot
}

// StatusMirror copies the status table into a Redis hash and republishes
// every event on a pub/sub channel. Writes are retried and guarded by a
// circuit breaker; after any lost write the next event rewrites the whole
// hash.
type StatusMirror struct {
	client  *Client
	src     Source
	log     *logger.Logger
	retry   resilience.RetryConfig
	breaker *resilience.CircuitBreaker

	mu      sync.Mutex
	applied uint64
	dirty   bool
	errs    int
	lastErr error
}

// MirrorOption configures a StatusMirror.
type MirrorOption func(*mirrorOptions)

type mirrorOptions struct {
	now func() time.Time
}

// WithClock sets the circuit breaker's clock.
func WithClock(now func() time.Time) MirrorOption {
	return func(o *mirrorOptions) { o.now = now }
}

// NewStatusMirror returns a mirror of src into client.
func NewStatusMirror(client *Client, src Source, log *logger.Logger, opts ...MirrorOption) *StatusMirror {
	if log == nil {
		log = logger.Nop()
	}
	var o mirrorOptions
	for _, opt := range opts {
		opt(&o)
	}
	cfg := client.cfg
	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = cfg.WriteAttempts
	m := &StatusMirror{client: client, src: src, log: log, retry: retry}
	m.breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:        "redis-mirror",
		MaxFailures: cfg.BreakerFailures,
		Timeout:     cfg.breakerCooldown(),
		Now:         o.now,
		OnStateChange: func(name string, from, to resilience.State) {
			log.Warn("mirror circuit state changed", logger.Fields("breaker", name, "from", from.String(), "to", to.String()))
		},
	})
	return m
}

// exec runs one write through the breaker with retries.
func (m *StatusMirror) exec(ctx context.Context, write func(ctx context.Context) error) error {
	return m.breaker.Execute(func() error {
		return resilience.RetryFunc(ctx, m.retry, func() error { return write(ctx) })
	})
}

// Sync rewrites the whole hash from the current snapshot.
func (m *StatusMirror) Sync(ctx context.Context) error {
	snap := m.src.Status()
	cfg := m.client.cfg
	fields := make(map[string]any, len(snap.Entries))
	for id, e := range snap.Entries {
		raw, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", id, err)
		}
		fields[id] = raw
	}

	err := m.exec(ctx, func(ctx context.Context) error {
		pipe := m.client.rdb.TxPipeline()
		pipe.Del(ctx, cfg.StatusKey())
		if len(fields) > 0 {
			pipe.HSet(ctx, cfg.StatusKey(), fields)
		}
		pipe.Set(ctx, cfg.VersionKey(), strconv.FormatUint(snap.Version, 10), 0)
		_, err := pipe.Exec(ctx)
		return err
	})
	if err != nil {
		return m.fail(fmt.Errorf("redis status sync: %w", err))
	}

	m.mu.Lock()
	if snap.Version > m.applied {
		m.applied = snap.Version
	}
	m.dirty = false
	m.mu.Unlock()
	return nil
}

// Apply mirrors one event. A reset event, or any event after a lost write,
// triggers a full Sync so the hash matches the store again. Events older
// than the last written version are still published but do not overwrite
// the hash.
func (m *StatusMirror) Apply(ctx context.Context, ev status.Event) error {
	cfg := m.client.cfg
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	m.mu.Lock()
	stale := ev.Seq <= m.applied
	dirty := m.dirty
	m.mu.Unlock()

	if (ev.Reset || dirty) && !stale {
		if err := m.Sync(ctx); err != nil {
			return err
		}
		stale = true
	}

	entry, err := json.Marshal(ev.Entry)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	err = m.exec(ctx, func(ctx context.Context) error {
		pipe := m.client.rdb.TxPipeline()
		if !stale {
			pipe.HSet(ctx, cfg.StatusKey(), ev.NodeID, entry)
			pipe.Set(ctx, cfg.VersionKey(), strconv.FormatUint(ev.Seq, 10), 0)
		}
		pipe.Publish(ctx, cfg.StatusChannel(), payload)
		_, err := pipe.Exec(ctx)
		return err
	})
	if err != nil {
		return m.fail(fmt.Errorf("redis status apply: %w", err))
	}

	if !stale {
		m.mu.Lock()
		if ev.Seq > m.applied {
			m.applied = ev.Seq
		}
		m.mu.Unlock()
	}
	return nil
}

// Run subscribes to the source, writes an initial snapshot and applies
// events until ctx is done or the subscription closes.
func (m *StatusMirror) Run(ctx context.Context) error {
	events, unsubscribe := m.src.Subscribe(m.client.cfg.Buffer)
	defer unsubscribe()
	return m.Forward(ctx, events)
}

// Forward is Run over an existing subscription.
func (m *StatusMirror) Forward(ctx context.Context, events <-chan status.Event) error {
	if err := m.Sync(ctx); err != nil {
		m.log.Warn("initial status sync failed", logger.ErrorFields("sync", err))
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := m.Apply(ctx, ev); err != nil && ctx.Err() == nil {
				m.log.Warn("status mirror write failed", logger.Fields(
					logger.FieldNodeID, ev.NodeID, "seq", ev.Seq, "error", err.Error()))
			}
		}
	}
}

// Applied returns the highest store version written to the hash.
func (m *StatusMirror) Applied() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applied
}

// CircuitState reports whether mirroring is currently suspended.
func (m *StatusMirror) CircuitState() resilience.State {
	return m.breaker.State()
}

// Errors returns the number of failed writes and the most recent error.
func (m *StatusMirror) Errors() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errs, m.lastErr
}

func (m *StatusMirror) fail(err error) error {
	m.mu.Lock()
	m.errs++
	m.lastErr = err
	m.dirty = true
	m.mu.Unlock()
	return err
}

// ReadStatus loads the mirrored hash back as a snapshot. Used by tools and
// tests that observe the mirror from outside the process.
func ReadStatus(ctx context.Context, client *Client) (status.Snapshot, error) {
	cfg := client.cfg
	raw, err := client.rdb.HGetAll(ctx, cfg.StatusKey()).Result()
	if err != nil {
		return status.Snapshot{}, fmt.Errorf("read status hash: %w", err)
	}
	snap := status.Snapshot{Entries: make(map[string]status.Entry, len(raw))}
	for id, v := range raw {
		var e status.Entry
		if err := json.Unmarshal([]byte(v), &e); err != nil {
			return status.Snapshot{}, fmt.Errorf("decode %s: %w", id, err)
		}
		snap.Entries[id] = e
	}
	if v, err := client.rdb.Get(ctx, cfg.VersionKey()).Uint64(); err == nil {
		snap.Version = v
	}
	return snap, nil
}
