package storage

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"bancored/crypto"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "banco.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("  ")
	require.ErrorIs(t, err, ErrPathRequired)
}

func TestCreateUserAndPasswordHash(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	hash, err := crypto.HashPassword("Correct_pass1!")
	require.NoError(t, err)
	require.NoError(t, store.CreateUser(ctx, "persist", hash))

	stored, ok, err := store.PasswordHash(ctx, "persist")
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, strings.HasPrefix(stored, "$argon2"), "stored hash %q", stored)

	_, ok, err = store.PasswordHash(ctx, "nobody")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCreateUserDuplicate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateUser(ctx, "dup", "hash-one"))
	err := store.CreateUser(ctx, "dup", "hash-two")
	require.ErrorIs(t, err, ErrUserExists)

	// The original hash must survive the failed insert.
	stored, ok, err := store.PasswordHash(ctx, "dup")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "hash-one", stored)
}

func TestUsernamesAreCaseSensitive(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateUser(ctx, "Alice", "h1"))
	require.NoError(t, store.CreateUser(ctx, "alice", "h2"))
}

func TestAdmitNonceOnce(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	nonce, err := crypto.NewNonce()
	require.NoError(t, err)

	admitted, err := store.AdmitNonce(ctx, nonce, 5*time.Minute)
	require.NoError(t, err)
	require.True(t, admitted)

	admitted, err = store.AdmitNonce(ctx, nonce, 5*time.Minute)
	require.NoError(t, err)
	require.False(t, admitted, "replayed nonce must not be admitted")
}

func TestAdmitNonceConcurrent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	nonce, err := crypto.NewNonce()
	require.NoError(t, err)

	const workers = 8
	var admitted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.AdmitNonce(ctx, nonce, 5*time.Minute)
			require.NoError(t, err)
			if ok {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int64(1), admitted.Load(), "exactly one concurrent admission must win")
}

func TestSweepExpiredNonces(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	expired, err := crypto.NewNonce()
	require.NoError(t, err)
	fresh, err := crypto.NewNonce()
	require.NoError(t, err)

	admitted, err := store.AdmitNonce(ctx, expired, -time.Minute)
	require.NoError(t, err)
	require.True(t, admitted)
	admitted, err = store.AdmitNonce(ctx, fresh, 5*time.Minute)
	require.NoError(t, err)
	require.True(t, admitted)

	removed, err := store.SweepExpiredNonces(ctx, time.Now())
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)

	// A swept value becomes admissible again; an unswept one stays blocked.
	admitted, err = store.AdmitNonce(ctx, expired, 5*time.Minute)
	require.NoError(t, err)
	require.True(t, admitted)
	admitted, err = store.AdmitNonce(ctx, fresh, 5*time.Minute)
	require.NoError(t, err)
	require.False(t, admitted)

	// Sweeping is idempotent.
	removed, err = store.SweepExpiredNonces(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Zero(t, removed)
}

func TestAppendAndListTransactions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.AppendTransaction(ctx, "alice", "ES1234567890", "ES0987654321", 100.50, true)
	require.NoError(t, err)
	second, err := store.AppendTransaction(ctx, "alice", "ES0987654321", "ES1234567890", 12.34, true)
	require.NoError(t, err)
	require.Greater(t, second, first, "ids must be monotonically increasing")

	_, err = store.AppendTransaction(ctx, "bob", "X", "Y", 1, true)
	require.NoError(t, err)

	txs, err := store.TransactionsByUser(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, txs, 2)
	require.Equal(t, second, txs[0].ID, "most recent first")
	require.Equal(t, 12.34, txs[0].Cantidad)
	require.Equal(t, "ES1234567890", txs[1].CuentaOrigen)
	require.True(t, txs[0].MACVerificado)

	txs, err = store.TransactionsByUser(ctx, "nobody")
	require.NoError(t, err)
	require.Empty(t, txs)
}
