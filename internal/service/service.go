// Package service is the vault's top-level API. It owns the session cache,
// drives the passphrase prompt and serialises every mutation of the store.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/Hussein-Mazeh/genvault/internal/prompt"
	"github.com/Hussein-Mazeh/genvault/internal/vault"
	"github.com/Hussein-Mazeh/genvault/krypto"
)

// Prompter supplies the passphrase when no session key is cached.
type Prompter interface {
	Prompt(ctx context.Context, req prompt.Request) (prompt.Result, error)
}

// EntryInfo is the plaintext metadata of a stored entry.
type EntryInfo struct {
	ID        int64
	Type      vault.EntryType
	CreatedAt time.Time
}

// Service exposes the vault operations to the CLI.
type Service struct {
	store    vault.Store
	prompter Prompter
	cache    *vault.SessionCache
	protocol vault.Protocol

	log        zerolog.Logger
	now        func() time.Time
	ttl        time.Duration
	maxEntries int

	mu     sync.Mutex // serialises save, delete and reset
	unlock singleflight.Group

	// keyMu guards epoch and every Set on cache. epoch counts completed
	// resets; a key verified in an older epoch is never cached or used to
	// write.
	keyMu sync.Mutex
	epoch uint64
}

// unlocked is a verified key and the reset epoch it was verified in.
type unlocked struct {
	key   *krypto.Key
	epoch uint64
}

// New returns a service over store. The service owns store from here on and
// closes it in Close.
func New(store vault.Store, prompter Prompter, opts ...Option) *Service {
	s := &Service{
		store:      store,
		prompter:   prompter,
		log:        zerolog.Nop(),
		now:        time.Now,
		ttl:        vault.DefaultSessionTTL,
		maxEntries: vault.MaxEntries,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cache == nil {
		s.cache = vault.NewSessionCache(vault.WithClock(s.now))
	}
	s.protocol.Store = store
	s.protocol.Now = s.now
	return s
}

// Close destroys the session key and closes the store. The service must not
// be used afterwards.
func (s *Service) Close() error {
	s.cache.Destroy()
	if s.store == nil {
		return nil
	}
	return s.store.Close()
}

// SaveEntry encrypts value and stores it, evicting the oldest entries first
// if the vault is full. It returns the new entry's metadata.
func (s *Service) SaveEntry(ctx context.Context, value string, typ vault.EntryType) (EntryInfo, error) {
	log := s.opLogger("save")

	if !typ.Valid() {
		return EntryInfo{}, fmt.Errorf("%w: %q", vault.ErrInvalidEntryType, typ)
	}

	key, release, err := s.lockWithKey(ctx, log)
	if err != nil {
		return EntryInfo{}, s.fail(log, err)
	}
	defer release()

	evicted, err := vault.EnforceLimit(ctx, s.store, s.maxEntries)
	if err != nil {
		return EntryInfo{}, s.fail(log, err)
	}
	if len(evicted) > 0 {
		log.Debug().Int("count", len(evicted)).Int64("last_id", evicted[len(evicted)-1]).Msg("evicted oldest entries")
	}

	e, err := s.store.InsertEntry(ctx, typ, s.now(), func(id int64) ([]byte, []byte, error) {
		nonce, ciphertext, err := krypto.Seal(key, []byte(value), vault.EntryAAD(id, typ))
		if err != nil {
			return nil, nil, fmt.Errorf("encrypt entry: %w", err)
		}
		return nonce, ciphertext, nil
	})
	if err != nil {
		return EntryInfo{}, s.fail(log, err)
	}

	log.Info().Int64("id", e.ID).Str("type", string(e.Type)).Msg("entry saved")
	return infoOf(e), nil
}

// RevealEntry decrypts entry id. An authentication failure clears the
// session key and is reported as vault.ErrDecryptionFailed.
func (s *Service) RevealEntry(ctx context.Context, id int64) (string, error) {
	log := s.opLogger("reveal")

	key, _, err := s.key(ctx, log)
	if err != nil {
		return "", s.fail(log, err)
	}

	e, err := s.store.Entry(ctx, id)
	if err != nil {
		return "", s.fail(log, err)
	}
	if err := e.Validate(); err != nil {
		s.cache.Clear()
		return "", s.fail(log, err)
	}

	plaintext, err := krypto.Open(key, e.Nonce, e.Ciphertext, vault.EntryAAD(e.ID, e.Type))
	if err != nil {
		s.cache.Clear()
		if errors.Is(err, krypto.ErrAuthentication) {
			return "", s.fail(log, fmt.Errorf("entry %d: %w", id, vault.ErrDecryptionFailed))
		}
		return "", s.fail(log, fmt.Errorf("decrypt entry %d: %w", id, err))
	}

	log.Info().Int64("id", id).Msg("entry revealed")
	return string(plaintext), nil
}

// DeleteEntry removes entry id. A valid key is required even though nothing
// is decrypted.
func (s *Service) DeleteEntry(ctx context.Context, id int64) error {
	log := s.opLogger("delete")

	_, release, err := s.lockWithKey(ctx, log)
	if err != nil {
		return s.fail(log, err)
	}
	defer release()

	if err := s.store.DeleteEntry(ctx, id); err != nil {
		return s.fail(log, err)
	}
	log.Info().Int64("id", id).Msg("entry deleted")
	return nil
}

// ResetVault clears the session key, then deletes every entry and the
// master record. No passphrase is needed.
func (s *Service) ResetVault(ctx context.Context) error {
	log := s.opLogger("reset")

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache.Clear()
	err := s.store.Reset(ctx)

	// Unlocks that started before the reset may still finish against the
	// old master record. Bumping the epoch keeps their keys out of the
	// cache and out of any later write.
	s.keyMu.Lock()
	s.epoch++
	s.cache.Clear()
	s.keyMu.Unlock()

	if err != nil {
		return s.fail(log, err)
	}
	log.Info().Msg("vault reset")
	return nil
}

// ListEntries returns entry metadata in ascending id order. It needs no key.
func (s *Service) ListEntries(ctx context.Context) ([]EntryInfo, error) {
	entries, err := s.store.Entries(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]EntryInfo, 0, len(entries))
	for _, e := range entries {
		out = append(out, infoOf(e))
	}
	return out, nil
}

// Initialized reports whether the vault has a master record.
func (s *Service) Initialized(ctx context.Context) (bool, error) {
	_, err := s.store.Master(ctx)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, vault.ErrNotInitialized):
		return false, nil
	default:
		return false, err
	}
}

// Unlock obtains the vault key, creating the vault on first use. The key is
// cached only if the prompter asked to remember it.
func (s *Service) Unlock(ctx context.Context) error {
	log := s.opLogger("unlock")
	if _, _, err := s.key(ctx, log); err != nil {
		return s.fail(log, err)
	}
	return nil
}

// Lock forgets the session key.
func (s *Service) Lock() {
	s.cache.Clear()
	s.log.Debug().Str("op", "lock").Msg("session locked")
}

// Unlocked reports whether a session key is cached and when it expires.
func (s *Service) Unlocked() (time.Time, bool) {
	return s.cache.ExpiresAt()
}

// lockWithKey obtains a key and takes s.mu. If a reset completed while the
// key was being obtained, the key belongs to the old vault and is dropped in
// favour of a fresh unlock. The caller must call release.
func (s *Service) lockWithKey(ctx context.Context, log zerolog.Logger) (*krypto.Key, func(), error) {
	for {
		key, epoch, err := s.key(ctx, log)
		if err != nil {
			return nil, nil, err
		}

		s.mu.Lock()
		if epoch == s.currentEpoch() {
			return key, s.mu.Unlock, nil
		}
		s.mu.Unlock()
		log.Debug().Msg("vault was reset during unlock, unlocking again")
	}
}

// key returns the cached session key or prompts for the passphrase and
// verifies it, along with the reset epoch the key belongs to.
//
// Concurrent callers share one prompt. The shared unlock runs under the
// context of the caller that started it; each caller still returns as soon
// as its own ctx is done, and a caller whose ctx is live retries when the
// shared unlock was cancelled by someone else.
func (s *Service) key(ctx context.Context, log zerolog.Logger) (*krypto.Key, uint64, error) {
	for {
		if key, epoch, ok := s.cachedKey(); ok {
			return key, epoch, nil
		}

		ch := s.unlock.DoChan("unlock", func() (any, error) {
			if key, epoch, ok := s.cachedKey(); ok {
				return unlocked{key: key, epoch: epoch}, nil
			}
			return s.unlockVault(ctx, log)
		})

		select {
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		case r := <-ch:
			if r.Err != nil {
				if r.Shared && ctx.Err() == nil && isCancellation(r.Err) {
					log.Debug().Msg("shared unlock cancelled by another caller, retrying")
					continue
				}
				return nil, 0, r.Err
			}
			if r.Shared {
				log.Debug().Msg("joined in-flight unlock")
			}
			u := r.Val.(unlocked)
			return u.key, u.epoch, nil
		}
	}
}

func (s *Service) cachedKey() (*krypto.Key, uint64, bool) {
	s.keyMu.Lock()
	defer s.keyMu.Unlock()
	key, ok := s.cache.Get()
	return key, s.epoch, ok
}

func (s *Service) currentEpoch() uint64 {
	s.keyMu.Lock()
	defer s.keyMu.Unlock()
	return s.epoch
}

func (s *Service) unlockVault(ctx context.Context, log zerolog.Logger) (unlocked, error) {
	if s.prompter == nil {
		return unlocked{}, vault.ErrUserCancelled
	}

	epoch := s.currentEpoch()
	initialized, err := s.Initialized(ctx)
	if err != nil {
		return unlocked{}, err
	}

	res, err := s.prompter.Prompt(ctx, prompt.Request{Initializing: !initialized})
	if err != nil {
		return unlocked{}, fmt.Errorf("prompt passphrase: %w", err)
	}
	if res.Cancelled {
		return unlocked{}, vault.ErrUserCancelled
	}
	if res.Passphrase == "" {
		return unlocked{}, vault.ErrEmptyPassphrase
	}

	start := s.now()
	key, err := s.protocol.DeriveAndVerify(ctx, res.Passphrase)
	if err != nil {
		return unlocked{}, err
	}
	log.Debug().Bool("created", !initialized).Dur("elapsed", s.now().Sub(start)).Msg("vault unlocked")

	if res.Remember {
		s.keyMu.Lock()
		if s.epoch == epoch {
			s.cache.Set(key, s.ttl)
		}
		s.keyMu.Unlock()
	}
	return unlocked{key: key, epoch: epoch}, nil
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (s *Service) opLogger(op string) zerolog.Logger {
	return s.log.With().Str("op", op).Str("op_id", uuid.NewString()).Logger()
}

// fail logs err at a level matching its kind and returns it unchanged.
func (s *Service) fail(log zerolog.Logger, err error) error {
	switch {
	case errors.Is(err, vault.ErrUserCancelled),
		errors.Is(err, context.Canceled):
		log.Debug().Err(err).Msg("operation cancelled")
	case errors.Is(err, vault.ErrIncorrectPassword),
		errors.Is(err, vault.ErrDecryptionFailed),
		errors.Is(err, vault.ErrEmptyPassphrase),
		errors.Is(err, vault.ErrEntryNotFound):
		log.Warn().Err(err).Msg("operation rejected")
	default:
		log.Error().Err(err).Msg("operation failed")
	}
	return err
}

func infoOf(e vault.Entry) EntryInfo {
	return EntryInfo{ID: e.ID, Type: e.Type, CreatedAt: e.CreatedAt}
}
