package vocab

import "sync"

// Store lazily loads the agent configuration on first use and caches it for
// the life of the process. Safe for concurrent use; the cached Config is
// immutable and shared by reference.
type Store struct {
	dir  string
	once sync.Once
	cfg  *Config
	err  error
}

// NewStore creates a Store reading from the given agent config directory.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Get returns the cached configuration, loading it on the first call.
func (s *Store) Get() (*Config, error) {
	s.once.Do(func() {
		s.cfg, s.err = Load(s.dir)
	})
	return s.cfg, s.err
}
