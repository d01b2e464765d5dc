package gateway_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/trade-ledger/gateway"
	"github.com/warp/trade-ledger/ledger"
	"github.com/warp/trade-ledger/ledger/store"
)

var march10 = time.Date(2025, time.March, 10, 9, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return march10 }

type recordingBackup struct {
	mu      sync.Mutex
	uploads map[string][]byte
	err     error
}

func (b *recordingBackup) Upload(_ context.Context, key string, body []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	if b.uploads == nil {
		b.uploads = make(map[string][]byte)
	}
	b.uploads[key] = body
	return nil
}

func newService(t *testing.T, st gateway.SnapshotStore, opts ...gateway.Option) *gateway.Service {
	t.Helper()
	opts = append([]gateway.Option{gateway.WithClock(fixedClock)}, opts...)
	return gateway.New(ledger.NewStore(), st, zerolog.Nop(), opts...)
}

func addCustomer(name string) func(*ledger.Store) error {
	return func(l *ledger.Store) error {
		_, err := l.AddCustomer(ledger.Customer{ID: "c-1", Name: name})
		return err
	}
}

// =============================================================================
// LOAD
// =============================================================================

func TestLoad_NothingStored_EmptyLedger(t *testing.T) {
	svc := newService(t, store.NewMemory())

	require.NoError(t, svc.Load(context.Background()))

	assert.Equal(t, ledger.NewSnapshot(), svc.Ledger().Snapshot())
}

func TestLoad_UnreadablePayload_EmptyLedgerAndBackup(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	require.NoError(t, mem.Save(ctx, []byte("<<not json>>")))
	svc := newService(t, mem)

	require.NoError(t, svc.Load(ctx))

	assert.Equal(t, ledger.NewSnapshot(), svc.Ledger().Snapshot())
	backup, _ := svc.CorruptBackup(ctx)
	assert.Equal(t, "<<not json>>", string(backup))
}

func TestLoad_AllOrdersLost_BacksUpRawPayload(t *testing.T) {
	// GIVEN: A stored payload whose only order has no id
	// WHEN: The ledger is loaded
	// THEN: The cleaned ledger is installed and the raw payload is kept
	ctx := context.Background()
	mem := store.NewMemory()
	raw := `{"customers":[{"id":"c-1","name":"Zhang","totalDebt":40}],"orders":[{"totalAmount":40}]}`
	require.NoError(t, mem.Save(ctx, []byte(raw)))
	svc := newService(t, mem)

	require.NoError(t, svc.Load(ctx))

	snap := svc.Ledger().Snapshot()
	assert.Empty(t, snap.Orders)
	c, ok := snap.Customer("c-1")
	require.True(t, ok)
	assert.Equal(t, 0.0, c.TotalDebt)
	backup, _ := mem.LoadCorruptBackup(ctx)
	assert.Equal(t, raw, string(backup))
}

func TestFlushThenLoad_RestoresLedger(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	first := newService(t, mem)
	require.NoError(t, first.Mutate(ctx, "add_customer", addCustomer("Zhang")))

	second := newService(t, mem)
	require.NoError(t, second.Load(ctx))

	c, ok := second.Ledger().Snapshot().Customer("c-1")
	require.True(t, ok)
	assert.Equal(t, "Zhang", c.Name)
	assert.Equal(t, march10.UnixMilli(), second.Ledger().Snapshot().Timestamp)
}

// =============================================================================
// MUTATE
// =============================================================================

func TestMutate_FailedOperation_NotFlushed(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	svc := newService(t, mem)

	err := svc.Mutate(ctx, "add_customer", addCustomer(""))

	assert.ErrorIs(t, err, ledger.ErrInvalidInput)
	data, _ := mem.Load(ctx)
	assert.Nil(t, data)
}

type failingStore struct {
	*store.Memory
}

func (failingStore) Save(context.Context, []byte) error { return errors.New("disk full") }

func TestMutate_StorageFailure_Returned(t *testing.T) {
	svc := newService(t, failingStore{store.NewMemory()})

	err := svc.Mutate(context.Background(), "add_customer", addCustomer("Zhang"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

// stallingStore holds its first Save until release is closed.
type stallingStore struct {
	*store.Memory
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (s *stallingStore) Save(ctx context.Context, payload []byte) error {
	first := false
	s.once.Do(func() { first = true })
	if first {
		close(s.entered)
		<-s.release
	}
	return s.Memory.Save(ctx, payload)
}

func addPayee(name string) func(*ledger.Store) error {
	return func(l *ledger.Store) error { return l.AddPayee(name) }
}

func TestMutate_ConcurrentWrites_LatestStatePersisted(t *testing.T) {
	// GIVEN: A mutation whose save is stalled in the store
	// WHEN: A second mutation arrives before the first save lands
	// THEN: The persisted payload carries both changes
	ctx := context.Background()
	st := &stallingStore{
		Memory:  store.NewMemory(),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	svc := newService(t, st)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		assert.NoError(t, svc.Mutate(ctx, "add_payee", addPayee("甲")))
	}()
	<-st.entered
	go func() {
		defer wg.Done()
		assert.NoError(t, svc.Mutate(ctx, "add_payee", addPayee("乙")))
	}()
	time.Sleep(20 * time.Millisecond)
	close(st.release)
	wg.Wait()

	reloaded := newService(t, st.Memory)
	require.NoError(t, reloaded.Load(ctx))
	payees := reloaded.Ledger().Snapshot().Payees
	assert.Contains(t, payees, "甲")
	assert.Contains(t, payees, "乙")
	assert.Equal(t, svc.Ledger().Snapshot().Payees, payees)
}

// =============================================================================
// IMPORT / EXPORT
// =============================================================================

func TestImport_ReplacesAndFlushes(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	source := newService(t, store.NewMemory())
	require.NoError(t, source.Mutate(ctx, "add_customer", addCustomer("Zhang")))
	text, err := source.Export(ctx)
	require.NoError(t, err)

	svc := newService(t, mem)
	rep, err := svc.Import(ctx, text)
	require.NoError(t, err)

	assert.False(t, rep.OrdersWiped())
	_, ok := svc.Ledger().Snapshot().Customer("c-1")
	assert.True(t, ok)
	stored, _ := mem.Load(ctx)
	assert.NotNil(t, stored, "import is flushed")
}

func TestImport_Rejected_StateUntouched(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, store.NewMemory())
	require.NoError(t, svc.Mutate(ctx, "add_customer", addCustomer("Zhang")))
	before := svc.Ledger().Snapshot()

	_, err := svc.Import(ctx, "definitely not a backup")

	assert.True(t, ledger.IsDecodeError(err))
	assert.Equal(t, before, svc.Ledger().Snapshot())
}

func TestImport_AllOrdersLost_KeepsBackup(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	svc := newService(t, mem)
	doc := `{"type":"FRUIT_SYNC","orders":[{"note":"no id"}]}`

	rep, err := svc.Import(ctx, doc)
	require.NoError(t, err)

	assert.True(t, rep.OrdersWiped())
	backup, _ := mem.LoadCorruptBackup(ctx)
	assert.Equal(t, doc, string(backup))
}

func TestExport_RecordsTimeAndRoundTrips(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, store.NewMemory())
	require.NoError(t, svc.Mutate(ctx, "add_customer", addCustomer("张三")))

	text, err := svc.Export(ctx)
	require.NoError(t, err)

	snap, err := ledger.Decode(text)
	require.NoError(t, err)
	c, _ := snap.Customer("c-1")
	assert.Equal(t, "张三", c.Name)
	assert.Equal(t, march10.UnixMilli(), snap.Timestamp)

	st, err := svc.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-10T09:30:00Z", st.LastExportAt)
	assert.Equal(t, 2, st.Customers)
}

func TestReset_FlushesEmptyLedger(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	svc := newService(t, mem)
	require.NoError(t, svc.Mutate(ctx, "add_customer", addCustomer("Zhang")))

	require.NoError(t, svc.Reset(ctx))

	reloaded := newService(t, mem)
	require.NoError(t, reloaded.Load(ctx))
	_, ok := reloaded.Ledger().Snapshot().Customer("c-1")
	assert.False(t, ok)
}

// =============================================================================
// CLOUD BACKUP
// =============================================================================

func TestFlush_UploadsBackupInBackground(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	backup := &recordingBackup{}
	svc := newService(t, mem, gateway.WithBackup(backup, time.Second))

	require.NoError(t, svc.Mutate(ctx, "add_customer", addCustomer("Zhang")))
	svc.Wait()

	body, ok := backup.uploads["snapshots/ledger_20250310_093000.txt"]
	require.True(t, ok)
	snap, err := ledger.Decode(string(body))
	require.NoError(t, err)
	_, found := snap.Customer("c-1")
	assert.True(t, found)

	st, err := svc.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.BackupOn)
	assert.Equal(t, "2025-03-10T09:30:00Z", st.LastBackupAt)
}

func TestFlush_BackupFailure_OnlyLogged(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	svc := newService(t, mem, gateway.WithBackup(&recordingBackup{err: errors.New("network down")}, time.Second))

	require.NoError(t, svc.Mutate(ctx, "add_customer", addCustomer("Zhang")))
	svc.Wait()

	last, _ := mem.Meta(ctx, gateway.MetaLastBackup)
	assert.Empty(t, last)
	stored, _ := mem.Load(ctx)
	assert.NotNil(t, stored, "local save unaffected")
}

func TestBackupKey(t *testing.T) {
	shanghai := time.FixedZone("CST", 8*3600)

	key := gateway.BackupKey(time.Date(2025, 3, 10, 17, 30, 5, 0, shanghai))

	assert.Equal(t, "snapshots/ledger_20250310_093005.txt", key)
}

func TestReconcileDebts_FlushesOnlyOnDrift(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	svc := newService(t, mem)

	drift, err := svc.ReconcileDebts(ctx)
	require.NoError(t, err)
	assert.Empty(t, drift)
	data, _ := mem.Load(ctx)
	assert.Nil(t, data, "nothing to heal, nothing written")

	require.NoError(t, svc.Mutate(ctx, "add_customer", addCustomer("Zhang")))
	require.NoError(t, svc.Mutate(ctx, "add_order", func(l *ledger.Store) error {
		_, err := l.AddOrder(ledger.Order{ID: "o-1", CustomerID: "c-1", TotalAmount: 40})
		return err
	}))
	require.NoError(t, svc.Mutate(ctx, "add_repayment", func(l *ledger.Store) error {
		_, err := l.AddRepayment(ledger.Repayment{CustomerID: "c-1", Amount: 50})
		return err
	}))
	require.NoError(t, svc.Mutate(ctx, "add_order", func(l *ledger.Store) error {
		_, err := l.AddOrder(ledger.Order{ID: "o-2", CustomerID: "c-1", TotalAmount: 30})
		return err
	}))

	drift, err = svc.ReconcileDebts(ctx)
	require.NoError(t, err)
	require.Len(t, drift, 1)
	assert.Equal(t, 30.0, drift[0].Cached)
	assert.Equal(t, 20.0, drift[0].Rebuilt)
}
