package ml

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

const defaultRegistrySize = 16

// LoadModel loads the artifact at path and checks it holds the expected kind.
// An empty kind accepts any model.
func LoadModel(kind, path string) (Regressor, error) {
	artifact, err := LoadArtifact(path)
	if err != nil {
		return nil, err
	}
	if kind != "" && artifact.Kind != kind {
		return nil, fmt.Errorf("%w: %s holds %q, want %q", ErrUnknownModel, path, artifact.Kind, kind)
	}
	return artifact.Regressor(), nil
}

// Registry caches decoded artifacts by path. After Watch, entries are
// evicted as soon as their file is rewritten, so the next Load sees the
// artifact of the latest training run.
type Registry struct {
	cache  *lru.Cache[string, *Artifact]
	logger *zap.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	dirs    map[string]bool
}

func NewRegistry(size int, logger *zap.Logger) (*Registry, error) {
	if size <= 0 {
		size = defaultRegistrySize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cache, err := lru.New[string, *Artifact](size)
	if err != nil {
		return nil, err
	}
	return &Registry{
		cache:  cache,
		logger: logger,
		dirs:   make(map[string]bool),
	}, nil
}

func (r *Registry) Load(path string) (*Artifact, error) {
	key, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if artifact, ok := r.cache.Get(key); ok {
		return artifact, nil
	}

	artifact, err := LoadArtifact(key)
	if err != nil {
		return nil, err
	}
	r.cache.Add(key, artifact)
	r.watchDir(filepath.Dir(key))
	return artifact, nil
}

// Predict loads (or reuses) the artifact at path and scores features with it.
func (r *Registry) Predict(path string, features []float64) (float64, error) {
	artifact, err := r.Load(path)
	if err != nil {
		return 0, err
	}
	return artifact.Predict(features)
}

func (r *Registry) Invalidate(path string) {
	key, err := filepath.Abs(path)
	if err != nil {
		return
	}
	if r.cache.Remove(key) {
		r.logger.Debug("artifact evicted", zap.String("path", key))
	}
}

func (r *Registry) Len() int {
	return r.cache.Len()
}

// Watch starts evicting cached artifacts on file changes and blocks until ctx
// is done or the watcher fails.
func (r *Registry) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	r.mu.Lock()
	if r.watcher != nil {
		r.mu.Unlock()
		watcher.Close()
		return errors.New("registry is already watching")
	}
	r.watcher = watcher
	for _, key := range r.cache.Keys() {
		r.addDirLocked(filepath.Dir(key))
	}
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.watcher = nil
		r.dirs = make(map[string]bool)
		r.mu.Unlock()
		watcher.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				r.Invalidate(event.Name)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("artifact watcher error", zap.Error(err))
		}
	}
}

func (r *Registry) watchDir(dir string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.watcher != nil {
		r.addDirLocked(dir)
	}
}

func (r *Registry) addDirLocked(dir string) {
	if r.dirs[dir] {
		return
	}
	if err := r.watcher.Add(dir); err != nil {
		r.logger.Warn("cannot watch artifact directory", zap.String("dir", dir), zap.Error(err))
		return
	}
	r.dirs[dir] = true
}
