package service_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hussein-Mazeh/genvault/internal/prompt"
	"github.com/Hussein-Mazeh/genvault/internal/service"
	"github.com/Hussein-Mazeh/genvault/internal/vault"
	"github.com/Hussein-Mazeh/genvault/internal/vault/vaulttest"
)

func TestFirstSaveThenReveal(t *testing.T) {
	ctx := context.Background()
	store := vaulttest.NewMemStore()
	p := answers(once("hunter2"), once("hunter2"))
	svc := newService(t, store, p)

	info, err := svc.SaveEntry(ctx, "Tr0ub4dor&3", vault.EntryPassword)
	require.NoError(t, err)
	assert.Equal(t, int64(1), info.ID)
	assert.Equal(t, vault.EntryPassword, info.Type)
	assert.True(t, p.request(0).Initializing)

	_, err = store.Master(ctx)
	require.NoError(t, err, "first save must create the master record")
	ids, err := store.EntryIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, ids)

	got, err := svc.RevealEntry(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Tr0ub4dor&3", got)
	assert.False(t, p.request(1).Initializing)
	assert.Equal(t, 2, p.calls(), "unremembered keys are not cached")
}

func TestRevealWithWrongPassword(t *testing.T) {
	ctx := context.Background()
	store := vaulttest.NewMemStore()
	svc := newService(t, store, answers(once("hunter2"), once("wrong")))

	_, err := svc.SaveEntry(ctx, "Tr0ub4dor&3", vault.EntryPassword)
	require.NoError(t, err)

	got, err := svc.RevealEntry(ctx, 1)
	assert.ErrorIs(t, err, vault.ErrIncorrectPassword)
	assert.Empty(t, got)

	e, err := store.Entry(ctx, 1)
	require.NoError(t, err, "entry must survive a failed reveal")
	assert.NotContains(t, string(e.Ciphertext), "Tr0ub4dor&3")
}

func TestRememberedKeySkipsPrompt(t *testing.T) {
	ctx := context.Background()
	p := answers(remember("hunter2"))
	svc := newService(t, vaulttest.NewMemStore(), p)

	_, err := svc.SaveEntry(ctx, "alpha", vault.EntryUsername)
	require.NoError(t, err)
	_, err = svc.SaveEntry(ctx, "correct horse battery staple", vault.EntryPassphrase)
	require.NoError(t, err)

	got, err := svc.RevealEntry(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "correct horse battery staple", got)
	assert.Equal(t, 1, p.calls())

	_, ok := svc.Unlocked()
	assert.True(t, ok)
}

func TestSessionExpires(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	p := answers(remember("hunter2"))
	svc := newService(t, vaulttest.NewMemStore(), p, service.WithClock(clock.Now))

	_, err := svc.SaveEntry(ctx, "alpha", vault.EntryUsername)
	require.NoError(t, err)

	expires, ok := svc.Unlocked()
	require.True(t, ok)
	assert.Equal(t, clock.Now().Add(vault.DefaultSessionTTL), expires)

	clock.Advance(vault.DefaultSessionTTL - time.Second)
	_, err = svc.RevealEntry(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, p.calls())

	clock.Advance(time.Second)
	_, err = svc.RevealEntry(ctx, 1)
	assert.ErrorIs(t, err, vault.ErrUserCancelled, "expired session must prompt again")
	assert.Equal(t, 2, p.calls())
}

func TestSessionTTLOption(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	svc := newService(t, vaulttest.NewMemStore(), answers(remember("hunter2")),
		service.WithClock(clock.Now), service.WithSessionTTL(5*time.Minute))

	_, err := svc.SaveEntry(ctx, "alpha", vault.EntryUsername)
	require.NoError(t, err)

	expires, ok := svc.Unlocked()
	require.True(t, ok)
	assert.Equal(t, clock.Now().Add(5*time.Minute), expires)
}

func TestSaveEvictsOldest(t *testing.T) {
	ctx := context.Background()
	store := vaulttest.NewMemStore()
	svc := newService(t, store, answers(remember("hunter2")))

	for i := 1; i <= vault.MaxEntries+1; i++ {
		info, err := svc.SaveEntry(ctx, "secret", vault.EntryPassword)
		require.NoError(t, err)
		require.Equal(t, int64(i), info.ID)
	}

	ids, err := store.EntryIDs(ctx)
	require.NoError(t, err)
	require.Len(t, ids, vault.MaxEntries)
	assert.Equal(t, int64(2), ids[0])
	assert.Equal(t, int64(vault.MaxEntries+1), ids[len(ids)-1])

	_, err = svc.RevealEntry(ctx, 1)
	assert.ErrorIs(t, err, vault.ErrEntryNotFound)
}

func TestCancelledPromptWritesNothing(t *testing.T) {
	ctx := context.Background()
	store := vaulttest.NewMemStore()
	svc := newService(t, store, answers())

	_, err := svc.SaveEntry(ctx, "Tr0ub4dor&3", vault.EntryPassword)
	assert.ErrorIs(t, err, vault.ErrUserCancelled)

	_, err = store.Master(ctx)
	assert.ErrorIs(t, err, vault.ErrNotInitialized)
	ids, err := store.EntryIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestEmptyPassphraseRejected(t *testing.T) {
	ctx := context.Background()
	store := vaulttest.NewMemStore()
	svc := newService(t, store, answers(once("")))

	_, err := svc.SaveEntry(ctx, "Tr0ub4dor&3", vault.EntryPassword)
	assert.ErrorIs(t, err, vault.ErrEmptyPassphrase)

	_, err = store.Master(ctx)
	assert.ErrorIs(t, err, vault.ErrNotInitialized)
}

func TestNilPrompterCancels(t *testing.T) {
	svc := newService(t, vaulttest.NewMemStore(), nil)

	_, err := svc.SaveEntry(context.Background(), "x", vault.EntryPassword)
	assert.ErrorIs(t, err, vault.ErrUserCancelled)
}

func TestInvalidEntryType(t *testing.T) {
	p := answers(remember("hunter2"))
	svc := newService(t, vaulttest.NewMemStore(), p)

	_, err := svc.SaveEntry(context.Background(), "x", vault.EntryType("pin"))
	assert.ErrorIs(t, err, vault.ErrInvalidEntryType)
	assert.Zero(t, p.calls(), "type is checked before prompting")
}

func TestStorageFailureAbortsSave(t *testing.T) {
	ctx := context.Background()
	mem := vaulttest.NewMemStore()
	faulty := &vaulttest.FaultyStore{Store: mem}
	svc := newService(t, faulty, answers(remember("hunter2")))

	_, err := svc.SaveEntry(ctx, "first", vault.EntryPassword)
	require.NoError(t, err)

	faulty.EntryIDsErr = errors.New("disk gone")
	_, err = svc.SaveEntry(ctx, "second", vault.EntryPassword)
	assert.ErrorIs(t, err, vault.ErrStorageUnavailable)

	faulty.EntryIDsErr = nil
	faulty.InsertErr = errors.New("disk full")
	_, err = svc.SaveEntry(ctx, "third", vault.EntryPassword)
	assert.ErrorIs(t, err, vault.ErrStorageUnavailable)

	ids, err := mem.EntryIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, ids)
}

func TestEvictionFailureAbortsSave(t *testing.T) {
	ctx := context.Background()
	mem := vaulttest.NewMemStore()
	faulty := &vaulttest.FaultyStore{Store: mem}
	svc := newService(t, faulty, answers(remember("hunter2")), service.WithMaxEntries(2))

	for i := 0; i < 2; i++ {
		_, err := svc.SaveEntry(ctx, "x", vault.EntryPassword)
		require.NoError(t, err)
	}

	faulty.DeleteEntriesErr = errors.New("locked")
	_, err := svc.SaveEntry(ctx, "y", vault.EntryPassword)
	assert.ErrorIs(t, err, vault.ErrStorageUnavailable)

	ids, err := mem.EntryIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, ids, "no insert without eviction")
}

func TestMasterUnavailable(t *testing.T) {
	faulty := &vaulttest.FaultyStore{Store: vaulttest.NewMemStore(), MasterErr: errors.New("io")}
	p := answers(once("hunter2"))
	svc := newService(t, faulty, p)

	_, err := svc.SaveEntry(context.Background(), "x", vault.EntryPassword)
	assert.ErrorIs(t, err, vault.ErrStorageUnavailable)
	assert.Zero(t, p.calls())
}

func TestTamperedEntryClearsSession(t *testing.T) {
	ctx := context.Background()
	store := vaulttest.NewMemStore()
	p := answers(remember("hunter2"))
	svc := newService(t, store, p)

	_, err := svc.SaveEntry(ctx, "Tr0ub4dor&3", vault.EntryPassword)
	require.NoError(t, err)

	e, err := store.Entry(ctx, 1)
	require.NoError(t, err)
	e.Ciphertext[0] ^= 0x01
	store.PutEntry(e)

	_, err = svc.RevealEntry(ctx, 1)
	assert.ErrorIs(t, err, vault.ErrDecryptionFailed)

	_, ok := svc.Unlocked()
	assert.False(t, ok, "decryption failure must drop the session key")
}

func TestRelabelledEntryFails(t *testing.T) {
	ctx := context.Background()
	store := vaulttest.NewMemStore()
	svc := newService(t, store, answers(remember("hunter2")))

	_, err := svc.SaveEntry(ctx, "Tr0ub4dor&3", vault.EntryPassword)
	require.NoError(t, err)

	e, err := store.Entry(ctx, 1)
	require.NoError(t, err)
	e.Type = vault.EntryUsername
	store.PutEntry(e)

	_, err = svc.RevealEntry(ctx, 1)
	assert.ErrorIs(t, err, vault.ErrDecryptionFailed)
}

func TestSwappedEntriesFail(t *testing.T) {
	ctx := context.Background()
	store := vaulttest.NewMemStore()
	svc := newService(t, store, answers(remember("hunter2"), remember("hunter2")))

	_, err := svc.SaveEntry(ctx, "one", vault.EntryPassword)
	require.NoError(t, err)
	_, err = svc.SaveEntry(ctx, "two", vault.EntryPassword)
	require.NoError(t, err)

	a, err := store.Entry(ctx, 1)
	require.NoError(t, err)
	b, err := store.Entry(ctx, 2)
	require.NoError(t, err)
	a.Nonce, a.Ciphertext, b.Nonce, b.Ciphertext = b.Nonce, b.Ciphertext, a.Nonce, a.Ciphertext
	store.PutEntry(a)
	store.PutEntry(b)

	_, err = svc.RevealEntry(ctx, 1)
	assert.ErrorIs(t, err, vault.ErrDecryptionFailed)
	_, err = svc.RevealEntry(ctx, 2)
	assert.ErrorIs(t, err, vault.ErrDecryptionFailed)
}

func TestMalformedEntryIsCorrupted(t *testing.T) {
	ctx := context.Background()
	store := vaulttest.NewMemStore()
	svc := newService(t, store, answers(remember("hunter2")))

	_, err := svc.SaveEntry(ctx, "x", vault.EntryPassword)
	require.NoError(t, err)

	e, err := store.Entry(ctx, 1)
	require.NoError(t, err)
	e.Nonce = e.Nonce[:4]
	store.PutEntry(e)

	_, err = svc.RevealEntry(ctx, 1)
	assert.ErrorIs(t, err, vault.ErrVaultCorrupted)
}

func TestDeleteRequiresKey(t *testing.T) {
	ctx := context.Background()
	store := vaulttest.NewMemStore()
	p := answers(once("hunter2"))
	svc := newService(t, store, p)

	_, err := svc.SaveEntry(ctx, "x", vault.EntryPassword)
	require.NoError(t, err)

	err = svc.DeleteEntry(ctx, 1)
	assert.ErrorIs(t, err, vault.ErrUserCancelled)
	_, err = store.Entry(ctx, 1)
	require.NoError(t, err, "entry must survive an unauthorised delete")

	p.push(remember("hunter2"))
	require.NoError(t, svc.DeleteEntry(ctx, 1))
	_, err = store.Entry(ctx, 1)
	assert.ErrorIs(t, err, vault.ErrEntryNotFound)

	assert.ErrorIs(t, svc.DeleteEntry(ctx, 1), vault.ErrEntryNotFound)
}

func TestDeleteWithWrongPassword(t *testing.T) {
	ctx := context.Background()
	store := vaulttest.NewMemStore()
	svc := newService(t, store, answers(once("hunter2"), once("wrong")))

	_, err := svc.SaveEntry(ctx, "x", vault.EntryPassword)
	require.NoError(t, err)

	assert.ErrorIs(t, svc.DeleteEntry(ctx, 1), vault.ErrIncorrectPassword)
	_, err = store.Entry(ctx, 1)
	assert.NoError(t, err)
}

func TestResetVault(t *testing.T) {
	ctx := context.Background()
	store := vaulttest.NewMemStore()
	p := answers(remember("hunter2"))
	svc := newService(t, store, p)

	_, err := svc.SaveEntry(ctx, "x", vault.EntryPassword)
	require.NoError(t, err)

	require.NoError(t, svc.ResetVault(ctx))

	_, ok := svc.Unlocked()
	assert.False(t, ok)
	initialized, err := svc.Initialized(ctx)
	require.NoError(t, err)
	assert.False(t, initialized)
	entries, err := svc.ListEntries(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)

	p.push(remember("a new passphrase"))
	info, err := svc.SaveEntry(ctx, "y", vault.EntryPassword)
	require.NoError(t, err)
	assert.Equal(t, int64(2), info.ID, "ids are not reused after reset")
	assert.True(t, p.request(1).Initializing)

	got, err := svc.RevealEntry(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "y", got)
}

func TestListEntriesNeedsNoKey(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := vaulttest.NewMemStore()
	p := answers(once("hunter2"), once("hunter2"))
	svc := newService(t, store, p, service.WithClock(clock.Now))

	_, err := svc.SaveEntry(ctx, "alice", vault.EntryUsername)
	require.NoError(t, err)
	clock.Advance(time.Minute)
	_, err = svc.SaveEntry(ctx, "Tr0ub4dor&3", vault.EntryPassword)
	require.NoError(t, err)
	calls := p.calls()

	entries, err := svc.ListEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, service.EntryInfo{ID: 1, Type: vault.EntryUsername, CreatedAt: clock.Now().Add(-time.Minute)}, entries[0])
	assert.Equal(t, service.EntryInfo{ID: 2, Type: vault.EntryPassword, CreatedAt: clock.Now()}, entries[1])
	assert.Equal(t, calls, p.calls())
}

func TestLockForgetsKey(t *testing.T) {
	ctx := context.Background()
	p := answers(remember("hunter2"))
	svc := newService(t, vaulttest.NewMemStore(), p)

	_, err := svc.SaveEntry(ctx, "x", vault.EntryPassword)
	require.NoError(t, err)

	svc.Lock()
	_, ok := svc.Unlocked()
	assert.False(t, ok)

	_, err = svc.RevealEntry(ctx, 1)
	assert.ErrorIs(t, err, vault.ErrUserCancelled)
}

func TestConcurrentSavesRespectLimit(t *testing.T) {
	ctx := context.Background()
	store := vaulttest.NewMemStore()
	svc := newService(t, store, answers(remember("hunter2")), service.WithMaxEntries(5))

	_, err := svc.SaveEntry(ctx, "warmup", vault.EntryPassword)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.SaveEntry(ctx, "x", vault.EntryPassword)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	ids, err := store.EntryIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{17, 18, 19, 20, 21}, ids)
}

// blockingPrompter holds every prompt until release is closed.
type blockingPrompter struct {
	entered chan struct{}
	release chan struct{}
	mu      sync.Mutex
	calls   int
}

func (p *blockingPrompter) Prompt(ctx context.Context, _ prompt.Request) (prompt.Result, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	p.entered <- struct{}{}
	<-p.release
	return once("hunter2"), nil
}

func TestConcurrentUnlockSharesPrompt(t *testing.T) {
	ctx := context.Background()
	p := &blockingPrompter{entered: make(chan struct{}, 2), release: make(chan struct{})}
	svc := newService(t, vaulttest.NewMemStore(), p)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	save := func() {
		defer wg.Done()
		_, err := svc.SaveEntry(ctx, "x", vault.EntryPassword)
		errs <- err
	}

	wg.Add(1)
	go save()
	<-p.entered

	wg.Add(1)
	go save()
	time.Sleep(100 * time.Millisecond)
	close(p.release)

	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, 1, p.calls)
}

func TestLogsNeverContainSecrets(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	log := zerolog.New(&buf).Level(zerolog.DebugLevel)
	svc := newService(t, vaulttest.NewMemStore(), answers(remember("hunter2")), service.WithLogger(log))

	_, err := svc.SaveEntry(ctx, "Tr0ub4dor&3", vault.EntryPassword)
	require.NoError(t, err)
	_, err = svc.RevealEntry(ctx, 1)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"op":"save"`)
	assert.Contains(t, out, `"op":"reveal"`)
	assert.Contains(t, out, `"op_id":`)
	assert.NotContains(t, out, "hunter2")
	assert.NotContains(t, out, "Tr0ub4dor&3")
}

func TestUnlockCreatesVault(t *testing.T) {
	ctx := context.Background()
	store := vaulttest.NewMemStore()
	p := answers(remember("hunter2"))
	svc := newService(t, store, p)

	require.NoError(t, svc.Unlock(ctx))

	initialized, err := svc.Initialized(ctx)
	require.NoError(t, err)
	assert.True(t, initialized)
	assert.True(t, p.request(0).Initializing)

	require.NoError(t, svc.Unlock(ctx))
	assert.Equal(t, 1, p.calls(), "second unlock uses the cached key")
}

// blockingResetStore holds Reset until release is closed.
type blockingResetStore struct {
	*vaulttest.MemStore
	entered chan struct{}
	release chan struct{}
}

func (s *blockingResetStore) Reset(ctx context.Context) error {
	close(s.entered)
	<-s.release
	return s.MemStore.Reset(ctx)
}

func TestSaveDuringResetUsesNewVault(t *testing.T) {
	ctx := context.Background()
	store := &blockingResetStore{
		MemStore: vaulttest.NewMemStore(),
		entered:  make(chan struct{}),
		release:  make(chan struct{}),
	}
	p := answers(once("hunter2"), remember("hunter2"), remember("hunter2"), once("hunter2"))
	svc := newService(t, store, p)

	_, err := svc.SaveEntry(ctx, "first", vault.EntryPassword)
	require.NoError(t, err)

	resetErr := make(chan error, 1)
	go func() { resetErr <- svc.ResetVault(ctx) }()
	<-store.entered

	saveErr := make(chan error, 1)
	go func() {
		_, err := svc.SaveEntry(ctx, "orphan", vault.EntryPassword)
		saveErr <- err
	}()

	// Let the save verify against the old master record and queue behind
	// the reset.
	require.Eventually(t, func() bool { return p.calls() >= 2 }, 5*time.Second, 10*time.Millisecond)
	time.Sleep(500 * time.Millisecond)
	close(store.release)

	require.NoError(t, <-resetErr)
	require.NoError(t, <-saveErr)

	initialized, err := svc.Initialized(ctx)
	require.NoError(t, err)
	require.True(t, initialized, "an entry must never outlive its master record")

	entries, err := svc.ListEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(2), entries[0].ID)

	got, err := svc.RevealEntry(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "orphan", got)
}

func TestResetDuringUnlockDoesNotCacheStaleKey(t *testing.T) {
	ctx := context.Background()
	store := &blockingResetStore{
		MemStore: vaulttest.NewMemStore(),
		entered:  make(chan struct{}),
		release:  make(chan struct{}),
	}
	p := answers(once("hunter2"), remember("hunter2"))
	svc := newService(t, store, p)

	_, err := svc.SaveEntry(ctx, "first", vault.EntryPassword)
	require.NoError(t, err)

	resetErr := make(chan error, 1)
	go func() { resetErr <- svc.ResetVault(ctx) }()
	<-store.entered

	unlockErr := make(chan error, 1)
	go func() { unlockErr <- svc.Unlock(ctx) }()
	require.NoError(t, <-unlockErr, "the old master record is still in place")

	close(store.release)
	require.NoError(t, <-resetErr)

	_, ok := svc.Unlocked()
	assert.False(t, ok, "a key for the old vault must not survive the reset")
}

func TestCloseDestroysSessionKey(t *testing.T) {
	ctx := context.Background()
	cache := vault.NewSessionCache()
	svc := service.New(vaulttest.NewMemStore(), answers(remember("hunter2")), service.WithSessionCache(cache))

	_, err := svc.SaveEntry(ctx, "x", vault.EntryPassword)
	require.NoError(t, err)
	key, ok := cache.Get()
	require.True(t, ok)

	require.NoError(t, svc.Close())
	assert.True(t, key.Destroyed())
}

func TestCancelledLeaderDoesNotFailJoiner(t *testing.T) {
	p := &blockingPrompter{entered: make(chan struct{}, 2), release: make(chan struct{})}
	svc := newService(t, vaulttest.NewMemStore(), p)

	leaderCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	leaderErr := make(chan error, 1)
	go func() { leaderErr <- svc.Unlock(leaderCtx) }()
	<-p.entered

	joinerErr := make(chan error, 1)
	go func() { joinerErr <- svc.Unlock(context.Background()) }()
	time.Sleep(100 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-leaderErr, context.Canceled, "the leader returns as soon as its own ctx is done")

	close(p.release)
	require.NoError(t, <-joinerErr)

	initialized, err := svc.Initialized(context.Background())
	require.NoError(t, err)
	assert.True(t, initialized)
}

func TestCancelledJoinerReturnsPromptly(t *testing.T) {
	p := &blockingPrompter{entered: make(chan struct{}, 2), release: make(chan struct{})}
	svc := newService(t, vaulttest.NewMemStore(), p)

	leaderErr := make(chan error, 1)
	go func() { leaderErr <- svc.Unlock(context.Background()) }()
	<-p.entered

	joinerCtx, cancel := context.WithCancel(context.Background())
	joinerErr := make(chan error, 1)
	go func() { joinerErr <- svc.Unlock(joinerCtx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	assert.ErrorIs(t, <-joinerErr, context.Canceled)

	close(p.release)
	require.NoError(t, <-leaderErr)
}
