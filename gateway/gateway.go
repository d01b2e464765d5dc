/*
gateway.go - Persistence boundary of the ledger

PURPOSE:
  Binds the in-memory ledger.Store to durable storage and to the optional
  cloud backup. Everything that enters from outside (stored payload, pasted
  text) goes through the sanitizer here; everything that leaves is an
  encoded snapshot.

LOAD:
  payload absent         -> empty ledger
  payload not an object  -> empty ledger, raw bytes stashed as corrupt backup
  otherwise              -> sanitize, stash raw bytes if every order was
                            lost, install the cleaned snapshot

MUTATE / FLUSH:
  Mutate runs one Store operation and flushes on success. Flush writes the
  snapshot JSON and, if a Backup sink is configured, starts an upload in
  the background. Upload failures are logged and counted, never returned.
  Every write path holds writeMu from the change through Save, so the
  stored payload is always the latest acknowledged state.

SEE ALSO:
  - ledger/sanitize.go: what "sanitize" means
  - gateway/s3.go: S3-compatible Backup sink
  - store/sqlite: production SnapshotStore
*/
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/warp/trade-ledger/ledger"
	"github.com/warp/trade-ledger/metrics"
)

// Metadata keys kept next to the snapshot.
const (
	MetaLastExport = "last_export_at"
	MetaLastBackup = "last_backup_at"
)

// SnapshotStore persists the serialized ledger. Load and LoadCorruptBackup
// return nil when nothing has been stored.
type SnapshotStore interface {
	Save(ctx context.Context, payload []byte) error
	Load(ctx context.Context) ([]byte, error)
	SaveCorruptBackup(ctx context.Context, payload []byte) error
	LoadCorruptBackup(ctx context.Context) ([]byte, error)
	SetMeta(ctx context.Context, key, value string) error
	Meta(ctx context.Context, key string) (string, error)
}

// Backup receives encoded snapshots for off-site storage.
type Backup interface {
	Upload(ctx context.Context, key string, body []byte) error
}

type Service struct {
	ledger *ledger.Store
	store  SnapshotStore
	log    zerolog.Logger

	backup        Backup
	backupTimeout time.Duration
	now           func() time.Time

	// writeMu orders ledger changes with the saves that persist them.
	writeMu  sync.Mutex
	inflight sync.WaitGroup
}

type Option func(*Service)

// WithBackup enables background uploads after every flush.
func WithBackup(b Backup, timeout time.Duration) Option {
	return func(s *Service) {
		s.backup = b
		s.backupTimeout = timeout
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(l *ledger.Store, st SnapshotStore, log zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		ledger:        l,
		store:         st,
		log:           log,
		backupTimeout: 30 * time.Second,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ledger exposes the bound store for read access.
func (s *Service) Ledger() *ledger.Store {
	return s.ledger
}

// =============================================================================
// LOAD / FLUSH
// =============================================================================

// Load installs the stored snapshot. Only storage failures are returned;
// a damaged payload degrades to the empty ledger.
func (s *Service) Load(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	payload, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	if payload == nil {
		s.log.Info().Msg("no stored snapshot, starting with an empty ledger")
		s.ledger.Reset()
		return nil
	}

	rep, err := ledger.SanitizeJSON(payload)
	if err != nil {
		s.log.Error().Err(err).Int("bytes", len(payload)).Msg("stored snapshot unreadable, starting with an empty ledger")
		if err := s.store.SaveCorruptBackup(ctx, payload); err != nil {
			return fmt.Errorf("save corrupt backup: %w", err)
		}
		s.ledger.Reset()
		return nil
	}

	if err := s.afterSanitize(ctx, rep); err != nil {
		return err
	}
	s.ledger.Replace(rep.Snapshot)
	s.log.Info().
		Int("orders", len(rep.Snapshot.Orders)).
		Int("products", len(rep.Snapshot.Products)).
		Int("customers", len(rep.Snapshot.Customers)).
		Msg("ledger loaded")
	return nil
}

// Flush writes the current snapshot and schedules a cloud backup.
func (s *Service) Flush(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.flush(ctx)
}

func (s *Service) flush(ctx context.Context) error {
	snap := s.ledger.Snapshot()
	snap.Timestamp = s.now().UnixMilli()
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := s.store.Save(ctx, payload); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	if s.backup != nil {
		s.scheduleBackup(snap)
	}
	return nil
}

// Mutate applies fn to the ledger and flushes when it succeeds. op names
// the operation in metrics and logs.
func (s *Service) Mutate(ctx context.Context, op string, fn func(*ledger.Store) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	err := fn(s.ledger)
	metrics.MutationsTotal.WithLabelValues(op, metrics.Result(err)).Inc()
	if err != nil {
		s.log.Debug().Err(err).Str("op", op).Msg("mutation rejected")
		return err
	}
	return s.flush(ctx)
}

// =============================================================================
// IMPORT / EXPORT
// =============================================================================

// Import replaces the ledger with a decoded transport text. Structural
// failures leave the current state untouched.
func (s *Service) Import(ctx context.Context, text string) (ledger.Report, error) {
	rep, err := ledger.DecodeReport(text)
	if err != nil {
		metrics.ImportsTotal.WithLabelValues("rejected").Inc()
		var de *ledger.DecodeError
		if errors.As(err, &de) {
			s.log.Warn().Str("stage", de.Stage).Err(err).Msg("import rejected")
		}
		return ledger.Report{}, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.afterSanitize(ctx, rep); err != nil {
		return ledger.Report{}, err
	}

	s.ledger.Replace(rep.Snapshot)
	result := "ok"
	if rep.OrdersWiped() {
		result = "wiped"
	}
	metrics.ImportsTotal.WithLabelValues(result).Inc()
	s.log.Info().Int("orders", len(rep.Snapshot.Orders)).Int("dropped", rep.TotalDropped()).Msg("ledger imported")

	if err := s.flush(ctx); err != nil {
		return rep, err
	}
	return rep, nil
}

// Export encodes the current ledger for transport and records the time.
func (s *Service) Export(ctx context.Context) (string, error) {
	snap := s.ledger.Snapshot()
	now := s.now()
	snap.Timestamp = now.UnixMilli()
	text, err := ledger.Encode(snap)
	if err != nil {
		return "", err
	}
	if err := s.store.SetMeta(ctx, MetaLastExport, now.UTC().Format(time.RFC3339)); err != nil {
		s.log.Warn().Err(err).Msg("failed to record export time")
	}
	return text, nil
}

// Reset wipes the ledger back to its empty state and flushes.
func (s *Service) Reset(ctx context.Context) error {
	return s.Mutate(ctx, "reset", func(l *ledger.Store) error {
		l.Reset()
		return nil
	})
}

// CorruptBackup returns the most recently stashed raw payload, or nil.
func (s *Service) CorruptBackup(ctx context.Context) ([]byte, error) {
	return s.store.LoadCorruptBackup(ctx)
}

// afterSanitize logs drops and stashes the raw payload of a wiped import.
func (s *Service) afterSanitize(ctx context.Context, rep ledger.Report) error {
	for collection, n := range rep.Dropped {
		metrics.SanitizerDroppedTotal.WithLabelValues(collection).Add(float64(n))
		s.log.Warn().Str("collection", collection).Int("dropped", n).Msg("sanitizer dropped records")
	}
	if !rep.OrdersWiped() {
		return nil
	}
	s.log.Warn().Int("bytes", len(rep.CorruptBackup)).Msg("sanitization removed all orders, keeping corrupt backup")
	if err := s.store.SaveCorruptBackup(ctx, rep.CorruptBackup); err != nil {
		return fmt.Errorf("save corrupt backup: %w", err)
	}
	return nil
}

// ReconcileDebts rebuilds cached debts from history. The ledger is flushed
// only when some customer's debt changed.
func (s *Service) ReconcileDebts(ctx context.Context) ([]ledger.DebtDrift, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	drift := s.ledger.ReconcileDebts()
	metrics.MutationsTotal.WithLabelValues("reconcile_debts", "ok").Inc()
	if len(drift) == 0 {
		return drift, nil
	}
	for _, d := range drift {
		s.log.Warn().
			Str("customer", d.CustomerID).
			Float64("cached", d.Cached).
			Float64("rebuilt", d.Rebuilt).
			Msg("cached debt drifted from history")
	}
	return drift, s.flush(ctx)
}

// =============================================================================
// STATUS
// =============================================================================

// Status summarises the ledger and its backup state.
type Status struct {
	Orders       int    `json:"orders"`
	Products     int    `json:"products"`
	Customers    int    `json:"customers"`
	LastExportAt string `json:"lastExportAt"`
	LastBackupAt string `json:"lastBackupAt"`
	BackupOn     bool   `json:"backupEnabled"`
}

func (s *Service) Status(ctx context.Context) (Status, error) {
	snap := s.ledger.Snapshot()
	st := Status{
		Orders:    len(snap.Orders),
		Products:  len(snap.Products),
		Customers: len(snap.Customers),
		BackupOn:  s.backup != nil,
	}
	var err error
	if st.LastExportAt, err = s.store.Meta(ctx, MetaLastExport); err != nil {
		return Status{}, err
	}
	if st.LastBackupAt, err = s.store.Meta(ctx, MetaLastBackup); err != nil {
		return Status{}, err
	}
	return st, nil
}

// =============================================================================
// CLOUD BACKUP
// =============================================================================

// BackupKey names the object for a backup taken at t.
func BackupKey(t time.Time) string {
	return "snapshots/ledger_" + t.UTC().Format("20060102_150405") + ".txt"
}

func (s *Service) scheduleBackup(snap ledger.Snapshot) {
	text, err := ledger.Encode(snap)
	if err != nil {
		s.log.Error().Err(err).Msg("backup encode failed")
		return
	}
	at := s.now()
	key := BackupKey(at)

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.backupTimeout)
		defer cancel()

		err := s.backup.Upload(ctx, key, []byte(text))
		metrics.BackupUploadsTotal.WithLabelValues(metrics.Result(err)).Inc()
		if err != nil {
			s.log.Error().Err(err).Str("key", key).Msg("cloud backup failed")
			return
		}
		if err := s.store.SetMeta(ctx, MetaLastBackup, at.UTC().Format(time.RFC3339)); err != nil {
			s.log.Warn().Err(err).Msg("failed to record backup time")
		}
		s.log.Info().Str("key", key).Int("bytes", len(text)).Msg("cloud backup uploaded")
	}()
}

// Wait blocks until in-flight backups have finished.
func (s *Service) Wait() {
	s.inflight.Wait()
}
