package selectors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"tunesmith/internal/fileutil"
)

// Store persists group orderings.
type Store interface {
	// Load returns every persisted group. A store that has never been
	// written returns an empty map and no error.
	Load(ctx context.Context) (map[string][]string, error)
	// SaveGroup re-reads the persisted document, replaces one group and
	// writes it back. It must not overwrite a document it failed to read.
	SaveGroup(ctx context.Context, group string, order []string) error
}

const (
	documentVersion = 1
	lockRetryDelay  = 50 * time.Millisecond
)

type document struct {
	Version int                 `json:"version"`
	Groups  map[string][]string `json:"groups"`
}

// FileStore keeps the registry in a JSON file guarded by an advisory lock so
// several tunesmith processes can share it.
type FileStore struct {
	path string
	mu   sync.Mutex
	lock *flock.Flock
}

// NewFileStore returns a store backed by path. The file is created on first save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, lock: flock.New(path + ".lock")}
}

// Path returns the backing file location.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Load(ctx context.Context) (map[string][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.acquire(ctx, false); err != nil {
		return nil, err
	}
	defer s.lock.Unlock()
	return s.read()
}

func (s *FileStore) SaveGroup(ctx context.Context, group string, order []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.acquire(ctx, true); err != nil {
		return err
	}
	defer s.lock.Unlock()

	groups, err := s.read()
	if err != nil {
		return fmt.Errorf("merge selector group %q: %w", group, err)
	}
	groups[group] = append([]string(nil), order...)
	data, err := json.MarshalIndent(document{Version: documentVersion, Groups: groups}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode selector registry: %w", err)
	}
	if err := fileutil.WriteFileAtomic(s.path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write selector registry: %w", err)
	}
	return nil
}

func (s *FileStore) acquire(ctx context.Context, exclusive bool) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create registry directory: %w", err)
	}
	var (
		ok  bool
		err error
	)
	if exclusive {
		ok, err = s.lock.TryLockContext(ctx, lockRetryDelay)
	} else {
		ok, err = s.lock.TryRLockContext(ctx, lockRetryDelay)
	}
	if err != nil {
		return fmt.Errorf("lock selector registry: %w", err)
	}
	if !ok {
		return errors.New("lock selector registry: not acquired")
	}
	return nil
}

func (s *FileStore) read() (map[string][]string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string][]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read selector registry: %w", err)
	}
	return decodeDocument(data)
}

// decodeDocument accepts the versioned document and the older bare
// group-to-list map.
func decodeDocument(data []byte) (map[string][]string, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("decode selector registry: %w", err)
	}
	if _, versioned := top["groups"]; versioned {
		var doc document
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decode selector registry: %w", err)
		}
		if doc.Groups == nil {
			doc.Groups = map[string][]string{}
		}
		return doc.Groups, nil
	}
	groups := make(map[string][]string, len(top))
	for name, raw := range top {
		var order []string
		if err := json.Unmarshal(raw, &order); err != nil {
			return nil, fmt.Errorf("decode selector group %q: %w", name, err)
		}
		groups[name] = order
	}
	return groups, nil
}

// MemoryStore is an in-process Store, mainly for tests.
type MemoryStore struct {
	mu      sync.Mutex
	groups  map[string][]string
	LoadErr error
	SaveErr error
	Saves   int
}

// NewMemoryStore seeds a MemoryStore with groups.
func NewMemoryStore(groups map[string][]string) *MemoryStore {
	m := &MemoryStore{groups: map[string][]string{}}
	for name, order := range groups {
		m.groups[name] = append([]string(nil), order...)
	}
	return m
}

func (m *MemoryStore) Load(context.Context) (map[string][]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LoadErr != nil {
		return nil, m.LoadErr
	}
	return cloneGroups(m.groups), nil
}

func (m *MemoryStore) SaveGroup(_ context.Context, group string, order []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LoadErr != nil {
		return m.LoadErr
	}
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.groups[group] = append([]string(nil), order...)
	m.Saves++
	return nil
}

// Group returns the persisted ordering of one group.
func (m *MemoryStore) Group(name string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.groups[name]...)
}

func cloneGroups(src map[string][]string) map[string][]string {
	out := make(map[string][]string, len(src))
	for name, order := range src {
		out[name] = append([]string(nil), order...)
	}
	return out
}
