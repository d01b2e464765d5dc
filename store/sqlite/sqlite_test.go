package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/trade-ledger/ledger"
	"github.com/warp/trade-ledger/store/sqlite"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestStore_LoadEmpty(t *testing.T) {
	st := newStore(t)

	data, err := st.Load(context.Background())

	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestStore_SaveLoad_RoundTripsEncodedLedger(t *testing.T) {
	// GIVEN: An encoded ledger with non-ASCII names
	// WHEN: It is saved twice and loaded
	// THEN: The latest payload comes back byte for byte
	ctx := context.Background()
	st := newStore(t)
	first := []byte(`{"type":"FRUIT_SYNC","orders":[]}`)
	snap := ledger.NewSnapshot()
	snap.Payees = append(snap.Payees, "小李")
	text, err := ledger.Encode(snap)
	require.NoError(t, err)

	require.NoError(t, st.Save(ctx, first))
	require.NoError(t, st.Save(ctx, []byte(text)))

	data, err := st.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, text, string(data))

	back, err := ledger.Decode(string(data))
	require.NoError(t, err)
	assert.Contains(t, back.Payees, "小李")
}

func TestStore_CorruptBackupsAreAppendOnly(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	none, err := st.LoadCorruptBackup(ctx)
	require.NoError(t, err)
	assert.Nil(t, none)

	require.NoError(t, st.SaveCorruptBackup(ctx, []byte(`{"orders":[1]}`)))
	require.NoError(t, st.SaveCorruptBackup(ctx, []byte(`{"orders":[2]}`)))

	latest, err := st.LoadCorruptBackup(ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"orders":[2]}`, string(latest))

	all, err := st.ListCorruptBackups(ctx, 10)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, `{"orders":[1]}`, string(all[1].Payload))
	assert.False(t, all[0].CreatedAt.IsZero())
}

func TestStore_Meta(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	v, err := st.Meta(ctx, "last_backup_at")
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, st.SetMeta(ctx, "last_backup_at", "a"))
	require.NoError(t, st.SetMeta(ctx, "last_backup_at", "b"))
	v, err = st.Meta(ctx, "last_backup_at")
	require.NoError(t, err)
	assert.Equal(t, "b", v)
}

func TestStore_Reset(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	require.NoError(t, st.Save(ctx, []byte("x")))
	require.NoError(t, st.SaveCorruptBackup(ctx, []byte("y")))

	require.NoError(t, st.Reset(ctx))

	data, _ := st.Load(ctx)
	assert.Nil(t, data)
	backup, _ := st.LoadCorruptBackup(ctx)
	assert.Nil(t, backup)
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")

	st, err := sqlite.New(path)
	require.NoError(t, err)
	require.NoError(t, st.Save(ctx, []byte("payload")))
	require.NoError(t, st.Close())

	st, err = sqlite.New(path)
	require.NoError(t, err)
	defer st.Close()
	data, err := st.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}
