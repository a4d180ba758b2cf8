// Package cursor implements the cursor protocol over running queries: the
// first batch comes back with the query, later batches are fetched by
// cursor id, and an id of zero means the result is exhausted.
package cursor

import (
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/brimdata/docpipe"
	"github.com/brimdata/docpipe/dperr"
	"github.com/brimdata/docpipe/zbuf"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const DefaultBatchSize = 101

// Source is a running query.  Close stops it and releases everything it
// holds.
type Source interface {
	zbuf.Puller
	Close() error
}

// Batch is one response of the cursor protocol.
type Batch struct {
	ID        int64
	Namespace string
	Documents []*docpipe.Document
}

type Config struct {
	BatchSize   int
	IdleTimeout time.Duration
	Logger      *zap.Logger
}

type Manager struct {
	batchSize   int
	idleTimeout time.Duration
	logger      *zap.Logger
	now         func() time.Time

	mu      sync.Mutex
	cursors map[int64]*entry
}

type entry struct {
	id       int64
	ns       string
	src      Source
	pending  []*docpipe.Document
	lastUsed time.Time
	busy     bool
}

func NewManager(conf Config) *Manager {
	if conf.BatchSize <= 0 {
		conf.BatchSize = DefaultBatchSize
	}
	if conf.Logger == nil {
		conf.Logger = zap.NewNop()
	}
	return &Manager{
		batchSize:   conf.BatchSize,
		idleTimeout: conf.IdleTimeout,
		logger:      conf.Logger.Named("cursor"),
		now:         time.Now,
		cursors:     make(map[int64]*entry),
	}
}

// Open registers src and returns its first batch.  When src is exhausted
// by the first batch it is closed and the batch carries id 0.
func (m *Manager) Open(src Source, ns string, batchSize int) (Batch, error) {
	e := &entry{ns: ns, src: src, busy: true}
	docs, eos, err := m.fill(e, batchSize)
	if err != nil || eos {
		err = multierr.Append(err, src.Close())
		if err != nil {
			return Batch{}, err
		}
		return Batch{Namespace: ns, Documents: docs}, nil
	}
	m.mu.Lock()
	e.id = m.newID()
	e.busy = false
	e.lastUsed = m.now()
	m.cursors[e.id] = e
	m.mu.Unlock()
	m.logger.Debug("cursor opened", zap.Int64("id", e.id), zap.String("ns", ns))
	return Batch{ID: e.id, Namespace: ns, Documents: docs}, nil
}

// GetMore returns the next batch of cursor id.  A cursor whose query
// fails is removed.
func (m *Manager) GetMore(id int64, batchSize int) (Batch, error) {
	m.mu.Lock()
	e, ok := m.cursors[id]
	if !ok {
		m.mu.Unlock()
		return Batch{}, dperr.ErrCursorNotFound(id)
	}
	if e.busy {
		m.mu.Unlock()
		return Batch{}, dperr.E(dperr.InvalidArgument, dperr.Code(292), "cursor id %d is already in use", id)
	}
	e.busy = true
	m.mu.Unlock()

	docs, eos, err := m.fill(e, batchSize)
	if err != nil || eos {
		m.remove(id)
		err = multierr.Append(err, e.src.Close())
		if err != nil {
			return Batch{}, err
		}
		return Batch{Namespace: e.ns, Documents: docs}, nil
	}
	m.mu.Lock()
	e.busy = false
	e.lastUsed = m.now()
	m.mu.Unlock()
	return Batch{ID: id, Namespace: e.ns, Documents: docs}, nil
}

// Kill closes the cursors in ids, cancelling their queries.
func (m *Manager) Kill(ids ...int64) (killed, notFound []int64, err error) {
	for _, id := range ids {
		e := m.remove(id)
		if e == nil {
			notFound = append(notFound, id)
			continue
		}
		killed = append(killed, id)
		err = multierr.Append(err, e.src.Close())
	}
	if len(killed) > 0 {
		m.logger.Debug("cursors killed", zap.Int64s("ids", killed))
	}
	return killed, notFound, err
}

// Reap kills the cursors that have been idle longer than the idle
// timeout and returns how many it killed.
func (m *Manager) Reap() (int, error) {
	if m.idleTimeout <= 0 {
		return 0, nil
	}
	deadline := m.now().Add(-m.idleTimeout)
	var ids []int64
	m.mu.Lock()
	for id, e := range m.cursors {
		if !e.busy && e.lastUsed.Before(deadline) {
			ids = append(ids, id)
		}
	}
	m.mu.Unlock()
	if len(ids) == 0 {
		return 0, nil
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	killed, _, err := m.Kill(ids...)
	m.logger.Info("idle cursors reaped", zap.Int("count", len(killed)))
	return len(killed), err
}

// Run reaps idle cursors until done is closed.
func (m *Manager) Run(done <-chan struct{}) {
	if m.idleTimeout <= 0 {
		return
	}
	ticker := time.NewTicker(m.idleTimeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if _, err := m.Reap(); err != nil {
				m.logger.Warn("reaping cursors", zap.Error(err))
			}
		}
	}
}

// Close kills every open cursor.
func (m *Manager) Close() error {
	m.mu.Lock()
	ids := make([]int64, 0, len(m.cursors))
	for id := range m.cursors {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	_, _, err := m.Kill(ids...)
	return err
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.cursors)
}

func (m *Manager) remove(id int64) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.cursors[id]
	if !ok {
		return nil
	}
	delete(m.cursors, id)
	return e
}

// newID returns an unused random positive id.  The caller holds m.mu.
func (m *Manager) newID() int64 {
	for {
		id := rand.Int63()
		if _, ok := m.cursors[id]; id != 0 && !ok {
			return id
		}
	}
}

// fill collects up to n documents from e, keeping the rest of the last
// batch for the next call.  A negative n means the default batch size and
// zero returns nothing without pulling.
func (m *Manager) fill(e *entry, n int) ([]*docpipe.Document, bool, error) {
	if n < 0 {
		n = m.batchSize
	}
	var out []*docpipe.Document
	for len(out) < n {
		if len(e.pending) == 0 {
			batch, err := e.src.Pull(false)
			if err != nil {
				return nil, false, err
			}
			if batch == nil {
				return out, true, nil
			}
			e.pending = append([]*docpipe.Document(nil), batch.Documents()...)
			batch.Unref()
			continue
		}
		k := n - len(out)
		if k > len(e.pending) {
			k = len(e.pending)
		}
		out = append(out, e.pending[:k]...)
		e.pending = e.pending[k:]
	}
	return out, false, nil
}
