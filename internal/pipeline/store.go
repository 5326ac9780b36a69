package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/xia2/xia2-go/internal/errors"
	"github.com/xia2/xia2-go/internal/util"
)

const (
	// StateFileName is the name of the project state document in the working directory.
	StateFileName = "xia2.json"

	lockFileName   = ".xia2.lock"
	lockRetryDelay = 100 * time.Millisecond
)

// Store keeps the project state document of a working directory. Saves replace the document atomically.
type Store struct {
	path string
	lock *util.Lockfile
}

// NewStore returns the store of dir.
func NewStore(dir string) *Store {
	return &Store{
		path: filepath.Join(dir, StateFileName),
		lock: util.NewLockfile(filepath.Join(dir, lockFileName)),
	}
}

// Path returns the location of the state document.
func (store *Store) Path() string {
	return store.path
}

// Lock takes the working directory lock, so only one process drives a project at a time.
func (store *Store) Lock(ctx context.Context) error {
	if err := util.EnsureDirectory(filepath.Dir(store.path)); err != nil {
		return err
	}

	return store.lock.Lock(ctx, lockRetryDelay)
}

// Unlock releases the working directory lock.
func (store *Store) Unlock() error {
	return store.lock.Unlock()
}

// Load reads the project. A missing document yields a new project called name.
func (store *Store) Load(name string) (*Project, error) {
	data, err := os.ReadFile(store.path)
	if errors.Is(err, os.ErrNotExist) {
		return NewProject(name), nil
	}

	if err != nil {
		return nil, errors.New(err)
	}

	project := NewProject(name)
	if err := json.Unmarshal(data, project); err != nil {
		return nil, errors.Errorf("reading %s: %w", store.path, err)
	}

	return project, nil
}

// Save writes the project.
func (store *Store) Save(project *Project) error {
	data, err := json.MarshalIndent(project, "", "  ")
	if err != nil {
		return errors.New(err)
	}

	if err := util.EnsureDirectory(filepath.Dir(store.path)); err != nil {
		return err
	}

	return util.WriteFileAtomic(store.path, append(data, '\n'), 0o644)
}
