package service

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/Hussein-Mazeh/genvault/internal/vault"
	"github.com/Hussein-Mazeh/genvault/krypto"
)

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. The default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Service) { s.log = log }
}

// WithClock replaces time.Now for timestamps and session expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSessionCache shares an existing cache instead of creating one.
func WithSessionCache(cache *vault.SessionCache) Option {
	return func(s *Service) { s.cache = cache }
}

// WithSessionTTL sets how long a remembered key stays cached.
func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithKDFParams overrides the key derivation parameters.
func WithKDFParams(p krypto.PBKDF2Params) Option {
	return func(s *Service) { s.protocol.Params = p }
}

// WithMaxEntries lowers the entry cap. Values outside 1..vault.MaxEntries
// are ignored.
func WithMaxEntries(n int) Option {
	return func(s *Service) {
		if n >= 1 && n <= vault.MaxEntries {
			s.maxEntries = n
		}
	}
}
