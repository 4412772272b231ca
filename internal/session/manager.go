package session

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/hgi-dev/spackbridge/internal/config"
	"github.com/hgi-dev/spackbridge/internal/foundation/errors"
	"github.com/hgi-dev/spackbridge/internal/logfields"
)

// reposConfig is the repos.yaml written into every session. It lists the
// session's private repository ahead of the shared one so session recipes
// shadow global ones.
type reposConfig struct {
	Repos []string `yaml:"repos"`
}

// repoConfig is the repo.yaml marking the session's private spack repository.
type repoConfig struct {
	Repo struct {
		Namespace string `yaml:"namespace"`
	} `yaml:"repo"`
}

// Manager owns session lifecycle: directory layout, config files, the
// persistent registry, and per-session command serialization.
type Manager struct {
	root       string
	globalRepo string
	store      *Store

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager opens the registry and prepares the session root.
func NewManager(cfg config.SessionsConfig, globalRepo string) (*Manager, error) {
	store, err := NewStore(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	if err := os.MkdirAll(cfg.Root, 0o755); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("create session root: %w", err)
	}
	return &Manager{
		root:       cfg.Root,
		globalRepo: globalRepo,
		store:      store,
		locks:      make(map[string]*sync.Mutex),
	}, nil
}

// Close releases the registry.
func (m *Manager) Close() error {
	return m.store.Close()
}

// Create builds a new isolated session directory tree and registers it.
// On any failure the partially created tree is removed.
func (m *Manager) Create(namespace string) (*Context, error) {
	id := uuid.NewString()
	dir := filepath.Join(m.root, id)
	if namespace == "" {
		namespace = "session." + id[:8]
	}

	slog.Info("Creating session", logfields.Session(id), logfields.Path(dir), "namespace", namespace)

	sc, err := m.materialize(id, dir, namespace)
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}

	now := time.Now()
	sc.CreatedAt = now
	sc.LastUsed = now
	if err := m.store.Insert(sc); err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}
	return sc, nil
}

// materialize writes the on-disk layout for a session and returns its context.
func (m *Manager) materialize(id, dir, namespace string) (*Context, error) {
	repoDir := filepath.Join(dir, "spack-repo")
	packagesDir := filepath.Join(dir, "packages")
	for _, d := range []string{dir, repoDir, packagesDir, filepath.Join(repoDir, "packages")} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("create session directory %s: %w", d, err)
		}
	}

	repos := reposConfig{Repos: []string{repoDir, m.globalRepo}}
	reposPath := filepath.Join(dir, "repos.yaml")
	if err := writeYAML(reposPath, &repos); err != nil {
		return nil, err
	}

	var repo repoConfig
	repo.Repo.Namespace = namespace
	if err := writeYAML(filepath.Join(repoDir, "repo.yaml"), &repo); err != nil {
		return nil, err
	}

	return &Context{
		ID:          id,
		Dir:         dir,
		Namespace:   namespace,
		ReposConfig: reposPath,
		PackagesDir: packagesDir,
		RepoDir:     repoDir,
	}, nil
}

// Resolve looks up a session, recovering registry rows from disk when the
// database was lost but the directory survived. Unknown ids fail fast with a
// session error so no process is ever spawned against a missing workspace.
func (m *Manager) Resolve(id string) (*Context, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, errors.ValidationError("invalid session id").
			WithContext("session_id", id).Build()
	}

	sc, err := m.store.Get(id)
	if err != nil {
		return nil, err
	}
	if sc != nil {
		fillPaths(sc)
		return sc, nil
	}

	// Recover a session whose directory still exists on disk.
	dir := filepath.Join(m.root, id)
	if _, statErr := os.Stat(filepath.Join(dir, "repos.yaml")); statErr == nil {
		namespace := readNamespace(filepath.Join(dir, "spack-repo", "repo.yaml"))
		sc = &Context{ID: id, Dir: dir, Namespace: namespace, CreatedAt: time.Now(), LastUsed: time.Now()}
		fillPaths(sc)
		if err := m.store.Insert(sc); err != nil {
			return nil, err
		}
		slog.Info("Recovered existing session", logfields.Session(id))
		return sc, nil
	}

	return nil, errors.SessionError(fmt.Sprintf("session %s not found", id)).
		WithContext("session_id", id).Build()
}

// List returns all known sessions, dropping registry rows whose directories
// have vanished.
func (m *Manager) List() ([]*Context, error) {
	all, err := m.store.List()
	if err != nil {
		return nil, err
	}
	live := make([]*Context, 0, len(all))
	for _, sc := range all {
		if _, err := os.Stat(sc.Dir); err != nil {
			continue
		}
		fillPaths(sc)
		live = append(live, sc)
	}
	return live, nil
}

// Delete removes the session directory and its registry row.
func (m *Manager) Delete(id string) error {
	sc, err := m.Resolve(id)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(sc.Dir); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "remove session directory").
			WithContext("session_id", id).Build()
	}
	if err := m.store.Delete(id); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.locks, id)
	m.mu.Unlock()

	slog.Info("Session deleted", logfields.Session(id))
	return nil
}

// Touch records activity on a session for TTL accounting.
func (m *Manager) Touch(id string) {
	if err := m.store.Touch(id, time.Now()); err != nil {
		slog.Warn("Failed to touch session", logfields.Session(id), logfields.Error(err))
	}
}

// Lock serializes mutating commands against one session. Two concurrent
// installs into the same package directory would otherwise race. The
// returned function releases the lock.
func (m *Manager) Lock(id string) func() {
	m.mu.Lock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	m.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// FileEntry describes one entry in a session directory listing.
type FileEntry struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Type string `json:"type"`
}

// Files lists the session root entries and the session's package directories.
func (m *Manager) Files(id string) ([]FileEntry, []FileEntry, error) {
	sc, err := m.Resolve(id)
	if err != nil {
		return nil, nil, err
	}

	entries, err := os.ReadDir(sc.Dir)
	if err != nil {
		return nil, nil, errors.WrapError(err, errors.CategoryFileSystem, "list session directory").
			WithContext("session_id", id).Build()
	}

	var files []FileEntry
	for _, e := range entries {
		kind := "file"
		if e.IsDir() {
			kind = "directory"
		}
		files = append(files, FileEntry{Name: e.Name(), Path: e.Name(), Type: kind})
	}

	var packages []FileEntry
	pkgRoot := filepath.Join(sc.RepoDir, "packages")
	if pkgEntries, err := os.ReadDir(pkgRoot); err == nil {
		for _, e := range pkgEntries {
			if e.IsDir() {
				packages = append(packages, FileEntry{
					Name: e.Name(),
					Path: filepath.Join("spack-repo", "packages", e.Name()),
					Type: "directory",
				})
			}
		}
	}
	return files, packages, nil
}

// DeleteIdle removes sessions idle since before the cutoff and returns how
// many were removed.
func (m *Manager) DeleteIdle(cutoff time.Time) (int, error) {
	ids, err := m.store.IdleBefore(cutoff)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, id := range ids {
		if err := m.Delete(id); err != nil {
			slog.Warn("Failed to delete idle session", logfields.Session(id), logfields.Error(err))
			continue
		}
		removed++
	}
	return removed, nil
}

func fillPaths(sc *Context) {
	sc.ReposConfig = filepath.Join(sc.Dir, "repos.yaml")
	sc.PackagesDir = filepath.Join(sc.Dir, "packages")
	sc.RepoDir = filepath.Join(sc.Dir, "spack-repo")
}

func readNamespace(repoYAML string) string {
	data, err := os.ReadFile(repoYAML)
	if err != nil {
		return "unknown"
	}
	var rc repoConfig
	if err := yaml.Unmarshal(data, &rc); err != nil || rc.Repo.Namespace == "" {
		return "unknown"
	}
	return rc.Repo.Namespace
}

func writeYAML(path string, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
