package config

import "sync/atomic"

// Store publishes config snapshots. A published snapshot is never modified, so readers may
// keep using it for as long as they want, e.g. for a whole connection lifetime, while new
// connections pick up the most recent one.
type Store struct {
	current atomic.Pointer[Config]
}

// NewStore validates and publishes the initial config. Nil stands for Default().
func NewStore(cfg *Config) (*Store, error) {
	if cfg == nil {
		cfg = Default()
	}

	s := new(Store)
	if err := s.Store(cfg); err != nil {
		return nil, err
	}

	return s, nil
}

// Load returns the current snapshot. It must not be modified.
func (s *Store) Load() *Config {
	return s.current.Load()
}

// Store validates the config and publishes its copy as a new snapshot. The passed config may
// be safely modified afterward.
func (s *Store) Store(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.current.Store(cfg.Clone())
	return nil
}

// Update publishes a modified copy of the current snapshot. Concurrent updates are applied one
// after another, so none is lost.
func (s *Store) Update(fn func(cfg *Config)) error {
	for {
		old := s.current.Load()
		cfg := old.Clone()
		fn(cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}

		if s.current.CompareAndSwap(old, cfg) {
			return nil
		}
	}
}
