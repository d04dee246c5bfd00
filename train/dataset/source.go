package dataset

import (
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/twoears/scenetcn/train"
)

// Source reads scene instance files from a filesystem, optionally keeping the
// most recently decoded instances in an LRU cache so later epochs skip the
// decode. Cached instances are shared and must not be modified by callers.
//
// Thread-safety: safe for concurrent use by multiple loaders.
type Source struct {
	fs    afero.Fs
	cache *lru.Cache // nil when caching is disabled

	mu    sync.Mutex
	reads int
	hits  int
}

// NewSource creates a Source on fs caching up to cacheSize decoded instances;
// cacheSize 0 disables the cache.
func NewSource(fs afero.Fs, cacheSize int) (*Source, error) {
	if cacheSize < 0 {
		return nil, errors.Wrapf(train.ErrConfiguration, "scene cache size must be non-negative, got %d", cacheSize)
	}
	s := &Source{fs: fs}
	if cacheSize > 0 {
		c, err := lru.New(cacheSize)
		if err != nil {
			return nil, errors.Wrap(err, "creating scene cache")
		}
		s.cache = c
	}
	return s, nil
}

// ReadScene implements train.SceneReader. Scene and fold ids missing from the
// file are taken from f.
func (s *Source) ReadScene(f train.SceneFile) (*train.SceneInstance, error) {
	if s.cache != nil {
		if v, ok := s.cache.Get(f.Path); ok {
			s.count(true)
			return v.(*train.SceneInstance), nil
		}
	}
	s.count(false)
	scene, err := ReadScene(s.fs, f.Path)
	if err != nil {
		return nil, err
	}
	if scene.Scene == 0 {
		scene.Scene = f.Scene
	}
	if scene.Fold == 0 {
		scene.Fold = f.Fold
	}
	if s.cache != nil {
		s.cache.Add(f.Path, scene)
	}
	return scene, nil
}

func (s *Source) count(hit bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if hit {
		s.hits++
	}
}

// Stats returns the number of reads and how many were served from the cache.
func (s *Source) Stats() (reads, hits int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads, s.hits
}
