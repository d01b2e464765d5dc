/*
store.go - Single-owner ledger state with copy-on-write mutations

PURPOSE:
  Store owns the current Snapshot and exposes every mutation the
  application performs. Each mutation works on a deep copy of the current
  snapshot and installs it only if the whole operation succeeded, so a
  failed call leaves the previous state untouched.

CONSISTENCY:
  Mutations update stock and debt incrementally (no full recompute per
  operation). The result must stay equivalent to RecalculateAllDebts over
  the same history; the Sanitizer re-derives it on every import.

CONCURRENCY:
  One logical writer. The mutex serialises callers that share a Store (for
  example HTTP handlers); it is not a multi-writer merge mechanism.

SEE ALSO:
  - lifecycle.go: Order create / cancel / delete
  - bookkeeping.go: Stock adjustment, fees, expenses, repayments
  - catalog.go: Products, batches, customers, payees
*/
package ledger

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

// isoLayout matches the timestamps written by the legacy client.
const isoLayout = "2006-01-02T15:04:05.000Z07:00"

// Store is the owned ledger state.
type Store struct {
	mu    sync.Mutex
	snap  Snapshot
	now   func() time.Time
	newID func() string
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used to stamp new records.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides the generator used for records without an id.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) { s.newID = fn }
}

// NewStore creates a Store holding the empty ledger.
func NewStore(opts ...Option) *Store {
	return NewStoreFrom(NewSnapshot(), opts...)
}

// NewStoreFrom creates a Store holding a copy of snap. snap is expected to
// be canonical (the output of Sanitize or of another Store).
func NewStoreFrom(snap Snapshot, opts ...Option) *Store {
	s := &Store{
		snap:  snap.Clone(),
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Clone()
}

// Replace installs a new state wholesale. Used by import; the caller is
// responsible for sanitizing snap first.
func (s *Store) Replace(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap.Clone()
}

// Reset restores the empty ledger.
func (s *Store) Reset() {
	s.Replace(NewSnapshot())
}

// update runs fn against a private copy and commits it only on success.
func (s *Store) update(fn func(next *Snapshot) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.snap.Clone()
	if err := fn(&next); err != nil {
		return err
	}
	s.snap = next
	return nil
}

func (s *Store) stamp() string {
	return s.now().UTC().Format(isoLayout)
}

func (s *Store) id(existing string) string {
	if existing != "" {
		return existing
	}
	return s.newID()
}

// orderNo renders ORD + yyyyMMdd + HHmm + three random digits.
func (s *Store) orderNo() string {
	t := s.now()
	return fmt.Sprintf("ORD%s%03d", t.Format("200601021504"), rand.Intn(1000))
}
