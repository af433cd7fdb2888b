package journal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/grailfinance/tokenbank/internal/domain"
)

func newTestStore(t *testing.T) *WALStore {
	t.Helper()
	store, err := NewWALStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})
	return store
}

func depositEvent(id string) domain.VaultEvent {
	return domain.VaultEvent{
		ID:        id,
		Timestamp: time.Now().UTC(),
		Kind:      domain.EventDeposit,
		Asset:     "0x0000000000000000000000000000000000000000",
		Amount:    "100",
	}
}

func TestAppendAndReplay(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Append(depositEvent("a")))
	require.NoError(t, store.Append(depositEvent("b")))
	require.NoError(t, store.Append(depositEvent("c")))

	records, err := store.EventsAfter(0)
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.Equal(t, "a", records[0].Event.ID)
	require.Equal(t, "c", records[2].Event.ID)

	records, err = store.EventsAfter(records[1].Index)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "c", records[0].Event.ID)
}

func TestEventsAfterCurrentIndexIsEmpty(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Append(depositEvent("a")))

	records, err := store.EventsAfter(store.CurrentIndex())
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestAppendRequiresKind(t *testing.T) {
	store := newTestStore(t)

	err := store.Append(domain.VaultEvent{ID: "x"})
	require.Error(t, err)
}

func TestUninitializedStore(t *testing.T) {
	var store *WALStore

	require.Error(t, store.Append(depositEvent("a")))
	_, err := store.EventsAfter(0)
	require.Error(t, err)
	require.Equal(t, uint64(0), store.CurrentIndex())
}
