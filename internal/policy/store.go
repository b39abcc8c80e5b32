package policy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"hostwatch/internal/logger"
	"hostwatch/internal/metrics"
)

// Store holds the active policy set. Readers get a private copy; writers are
// serialized and replace the set atomically, so a sweep never observes a
// partial update.
type Store struct {
	backend Backend
	mounts  []string

	mu  sync.Mutex
	cur atomic.Pointer[Set]
}

// NewStore loads the stored set, falling back to Defaults(mounts) when
// nothing is stored or the stored set is invalid. mounts are the disk mounts
// that may be configured.
func NewStore(ctx context.Context, backend Backend, mounts []string) (*Store, error) {
	s := &Store{backend: backend, mounts: append([]string(nil), mounts...)}
	log := logger.WithComponent("policy")

	defaults := Defaults(mounts)
	loaded, err := backend.Load(ctx, defaults)
	switch {
	case errors.Is(err, ErrNoStoredPolicy):
		log.Info().Msg("no stored policy, using defaults")
		loaded = defaults
	case err != nil:
		return nil, fmt.Errorf("load policy: %w", err)
	}

	valid, err := Validate(loaded, s.mounts)
	if err != nil {
		log.Warn().Err(err).Msg("stored policy is invalid, using defaults")
		valid = defaults
	}
	s.cur.Store(&valid)
	return s, nil
}

// Mounts returns the disk mounts that may be configured.
func (s *Store) Mounts() []string {
	return append([]string(nil), s.mounts...)
}

// Get returns a snapshot of the active set.
func (s *Store) Get() Set {
	return s.cur.Load().Clone()
}

// Put validates and persists set, then makes it active. On error the previous
// set stays in effect.
func (s *Store) Put(ctx context.Context, set Set) error {
	valid, err := Validate(set, s.mounts)
	if err != nil {
		metrics.PolicyUpdatesTotal.WithLabelValues("rejected").Inc()
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.install(ctx, valid); err != nil {
		return err
	}
	metrics.PolicyUpdatesTotal.WithLabelValues("applied").Inc()
	return nil
}

// Reset installs the defaults and returns them.
func (s *Store) Reset(ctx context.Context) (Set, error) {
	d := Defaults(s.mounts)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.install(ctx, d); err != nil {
		return Set{}, err
	}
	metrics.PolicyUpdatesTotal.WithLabelValues("reset").Inc()
	return d.Clone(), nil
}

// SetGlobalEnabled toggles the master switch and returns the resulting set.
func (s *Store) SetGlobalEnabled(ctx context.Context, enabled bool) (Set, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cur.Load().Clone()
	next.GlobalEnabled = enabled
	if err := s.install(ctx, next); err != nil {
		return Set{}, err
	}
	metrics.PolicyUpdatesTotal.WithLabelValues("applied").Inc()
	return next.Clone(), nil
}

// install must be called with mu held.
func (s *Store) install(ctx context.Context, set Set) error {
	if err := s.backend.Save(ctx, set); err != nil {
		return fmt.Errorf("persist policy: %w", err)
	}
	stored := set.Clone()
	s.cur.Store(&stored)
	return nil
}
