package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/disk"
)

// IOError reports a scratch filesystem failure.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("scratch %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Workspace is the scratch directory shared by all pipeline runs. The
// directory itself is never removed; only the files runs put in it.
type Workspace struct {
	dir string
	now func() time.Time
}

// NewWorkspace returns a workspace rooted at dir. Nothing is created until
// EnsureWorkspace is called.
func NewWorkspace(dir string) *Workspace {
	return &Workspace{dir: dir, now: time.Now}
}

// Dir returns the workspace directory.
func (w *Workspace) Dir() string { return w.dir }

// EnsureWorkspace creates the directory if it does not exist yet.
func (w *Workspace) EnsureWorkspace() error {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return &IOError{Op: "mkdir", Path: w.dir, Err: err}
	}
	return nil
}

// WriteArtifact writes data to a new file called name inside the workspace.
// An existing file of the same name is an error, never overwritten.
func (w *Workspace) WriteArtifact(name string, data []byte) (string, error) {
	if err := w.EnsureWorkspace(); err != nil {
		return "", err
	}
	path := filepath.Join(w.dir, name)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return "", &IOError{Op: "create", Path: path, Err: err}
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return path, &IOError{Op: "write", Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return path, &IOError{Op: "close", Path: path, Err: err}
	}
	return path, nil
}

// ReadArtifact reads a finished artifact back into memory.
func (w *Workspace) ReadArtifact(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &IOError{Op: "read", Path: path, Err: err}
	}
	return data, nil
}

// DeleteArtifacts removes every path independently. Missing files are
// skipped; other failures are logged and counted, never returned.
func (w *Workspace) DeleteArtifacts(paths []string) int {
	failed := 0
	for _, p := range paths {
		if err := os.Remove(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			failed++
			log.Error().Err(err).Str("path", p).Msg("Failed to delete scratch artifact")
		}
	}
	return failed
}

// NewRun starts a run whose artifact names are keyed by a millisecond
// timestamp plus a random fragment, unique across concurrent runs.
func (w *Workspace) NewRun() *Run {
	key := fmt.Sprintf("%d_%s", w.now().UnixMilli(), uuid.NewString()[:8])
	return &Run{ws: w, key: key}
}

// Sweep deletes regular files in the workspace last modified more than
// maxAge ago. It returns the number of files removed.
func (w *Workspace) Sweep(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, &IOError{Op: "readdir", Path: w.dir, Err: err}
	}

	cutoff := w.now().Add(-maxAge)
	var stale []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			stale = append(stale, filepath.Join(w.dir, entry.Name()))
		}
	}
	failed := w.DeleteArtifacts(stale)
	return len(stale) - failed, nil
}

// FreeSpaceGB returns the free space left on the workspace filesystem.
func (w *Workspace) FreeSpaceGB() (float64, error) {
	usage, err := disk.Usage(w.dir)
	if err != nil {
		return 0, &IOError{Op: "statfs", Path: w.dir, Err: err}
	}
	return float64(usage.Free) / (1024 * 1024 * 1024), nil
}

// Run owns the artifacts of one pipeline execution. Every path handed out
// by Path or Write is tracked and removed by Cleanup.
type Run struct {
	ws  *Workspace
	key string

	mu    sync.Mutex
	paths []string
}

// Key returns the discriminator embedded in every artifact name of the run.
func (r *Run) Key() string { return r.key }

// Path reserves an artifact path for a producer that writes the file itself,
// such as the encoder. The path is tracked even if the producer fails midway.
func (r *Run) Path(name string) string {
	p := filepath.Join(r.ws.dir, name)
	r.track(p)
	return p
}

// Write persists data as a tracked artifact.
func (r *Run) Write(name string, data []byte) (string, error) {
	p, err := r.ws.WriteArtifact(name, data)
	if p != "" {
		r.track(p)
	}
	return p, err
}

// Read reads an artifact of this run.
func (r *Run) Read(path string) ([]byte, error) {
	return r.ws.ReadArtifact(path)
}

// Artifacts returns the tracked paths in creation order.
func (r *Run) Artifacts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.paths))
	copy(out, r.paths)
	return out
}

// Cleanup deletes every tracked artifact. Safe to call more than once.
func (r *Run) Cleanup() {
	paths := r.Artifacts()
	if failed := r.ws.DeleteArtifacts(paths); failed > 0 {
		log.Warn().Str("run", r.key).Int("failed", failed).Int("total", len(paths)).Msg("Scratch cleanup incomplete")
		return
	}
	log.Debug().Str("run", r.key).Int("artifacts", len(paths)).Msg("Cleaned up temporary files")
}

func (r *Run) track(p string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.paths {
		if existing == p {
			return
		}
	}
	r.paths = append(r.paths, p)
}
