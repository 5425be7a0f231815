// Package workspace manages the per-request scratch directories that hold
// uploaded containers and intermediate artifacts.
package workspace

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// dirPrefix names every workspace directory so stray ones are recognizable.
const dirPrefix = "jksconvert-"

// ErrInvalidName is returned for artifact names that are not plain file names.
var ErrInvalidName = errors.New("invalid artifact name")

// Workspace is an exclusively owned ephemeral directory.
type Workspace struct {
	id  string
	dir string
}

// ID returns the random identifier of the workspace.
func (w *Workspace) ID() string { return w.id }

// Dir returns the absolute directory path.
func (w *Workspace) Dir() string { return w.dir }

// Path returns the location of the named artifact inside the workspace.
func (w *Workspace) Path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(w.dir, name), nil
}

// Put writes data as the named artifact with owner-only permissions.
func (w *Workspace) Put(name string, data []byte) (string, error) {
	p, err := w.Path(name)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(p, data, 0600); err != nil {
		return "", fmt.Errorf("writing artifact %s: %w", name, err)
	}
	return p, nil
}

// Read returns the content of the named artifact.
func (w *Workspace) Read(name string) ([]byte, error) {
	p, err := w.Path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("reading artifact %s: %w", name, err)
	}
	return data, nil
}

// Manager creates and destroys workspaces under a root directory.
type Manager struct {
	root   string
	logger *slog.Logger
}

// NewManager returns a Manager rooted at root. An empty root uses
// os.TempDir.
func NewManager(root string, logger *slog.Logger) *Manager {
	if root == "" {
		root = os.TempDir()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{root: root, logger: logger}
}

// Root returns the directory workspaces are created in.
func (m *Manager) Root() string { return m.root }

// Acquire creates a fresh, empty workspace. The directory name carries a
// random UUID and is created with os.Mkdir, so an existing directory is never
// reused.
func (m *Manager) Acquire() (*Workspace, error) {
	id := uuid.NewString()
	dir := filepath.Join(m.root, dirPrefix+id)
	if err := os.Mkdir(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating workspace: %w", err)
	}
	m.logger.Debug("workspace acquired", "workspace", id)
	return &Workspace{id: id, dir: dir}, nil
}

// Release removes the workspace and everything in it. Failures are logged
// and otherwise ignored: the caller's response must not depend on cleanup.
func (m *Manager) Release(w *Workspace) {
	if w == nil {
		return
	}
	if err := os.RemoveAll(w.dir); err != nil {
		m.logger.Warn("workspace cleanup failed", "workspace", w.id, "error", err)
		return
	}
	m.logger.Debug("workspace released", "workspace", w.id)
}

// With acquires a workspace, runs fn, and releases the workspace on every
// exit path, including a panic in fn.
func (m *Manager) With(fn func(*Workspace) error) error {
	w, err := m.Acquire()
	if err != nil {
		return err
	}
	defer m.Release(w)
	return fn(w)
}
