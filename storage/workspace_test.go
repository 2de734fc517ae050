package storage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestEnsureWorkspaceIdempotent(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "temp")
	ws := NewWorkspace(dir)

	for i := 0; i < 2; i++ {
		if err := ws.EnsureWorkspace(); err != nil {
			t.Fatalf("EnsureWorkspace call %d failed: %v", i+1, err)
		}
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		t.Fatalf("workspace directory not created: %v", err)
	}
}

func TestWriteReadArtifact(t *testing.T) {
	ws := NewWorkspace(t.TempDir())

	path, err := ws.WriteArtifact("clip.mp4", []byte("moov"))
	if err != nil {
		t.Fatalf("WriteArtifact failed: %v", err)
	}
	data, err := ws.ReadArtifact(path)
	if err != nil {
		t.Fatalf("ReadArtifact failed: %v", err)
	}
	if string(data) != "moov" {
		t.Errorf("expected round trip content, got %q", data)
	}

	if _, err := ws.WriteArtifact("clip.mp4", []byte("again")); err == nil {
		t.Error("expected error writing over an existing artifact")
	}
}

func TestReadMissingArtifact(t *testing.T) {
	ws := NewWorkspace(t.TempDir())
	_, err := ws.ReadArtifact(filepath.Join(ws.Dir(), "missing.mp4"))

	var ioErr *IOError
	if !errors.As(err, &ioErr) {
		t.Fatalf("expected IOError, got %v", err)
	}
	if ioErr.Op != "read" {
		t.Errorf("expected read op, got %q", ioErr.Op)
	}
}

func TestWriteArtifactIOError(t *testing.T) {
	base := t.TempDir()
	// a regular file where the directory should be
	blocker := filepath.Join(base, "blocked")
	if err := os.WriteFile(blocker, nil, 0644); err != nil {
		t.Fatal(err)
	}
	ws := NewWorkspace(blocker)

	_, err := ws.WriteArtifact("a.mp4", []byte("x"))
	var ioErr *IOError
	if !errors.As(err, &ioErr) {
		t.Fatalf("expected IOError, got %v", err)
	}
}

func TestDeleteArtifactsToleratesMissing(t *testing.T) {
	ws := NewWorkspace(t.TempDir())
	kept, _ := ws.WriteArtifact("a.mp4", []byte("a"))
	missing := filepath.Join(ws.Dir(), "never-written.mp4")

	if failed := ws.DeleteArtifacts([]string{missing, kept}); failed != 0 {
		t.Errorf("expected no failures, got %d", failed)
	}
	if _, err := os.Stat(kept); !os.IsNotExist(err) {
		t.Errorf("expected %s to be deleted", kept)
	}
}

func TestDeleteArtifactsContinuesAfterFailure(t *testing.T) {
	ws := NewWorkspace(t.TempDir())
	// a non-empty directory cannot be removed with os.Remove
	stuck := filepath.Join(ws.Dir(), "stuck")
	os.MkdirAll(filepath.Join(stuck, "child"), 0755)
	after, _ := ws.WriteArtifact("b.mp4", []byte("b"))

	if failed := ws.DeleteArtifacts([]string{stuck, after}); failed != 1 {
		t.Errorf("expected exactly one failure, got %d", failed)
	}
	if _, err := os.Stat(after); !os.IsNotExist(err) {
		t.Error("deletion after a failure should still run")
	}
}

func TestRunKeysAreUnique(t *testing.T) {
	ws := NewWorkspace(t.TempDir())
	fixed := time.UnixMilli(1700000000000)
	ws.now = func() time.Time { return fixed }

	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		key := ws.NewRun().Key()
		if !strings.HasPrefix(key, "1700000000000_") {
			t.Fatalf("key %q should start with the timestamp", key)
		}
		if seen[key] {
			t.Fatalf("duplicate run key %q within one millisecond", key)
		}
		seen[key] = true
	}
}

func TestRunCleanupRemovesTrackedArtifacts(t *testing.T) {
	ws := NewWorkspace(t.TempDir())
	run := ws.NewRun()

	written, err := run.Write("video_"+run.Key()+"_0.mp4", []byte("a"))
	if err != nil {
		t.Fatal(err)
	}
	reserved := run.Path("final_" + run.Key() + ".mp4")
	os.WriteFile(reserved, []byte("f"), 0644)
	// reserved but never produced
	run.Path("mixed_audio_" + run.Key() + ".mp3")

	if got := len(run.Artifacts()); got != 3 {
		t.Fatalf("expected 3 tracked artifacts, got %d", got)
	}

	run.Cleanup()
	run.Cleanup()

	for _, p := range []string{written, reserved} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("expected %s to be removed", p)
		}
	}
	entries, _ := os.ReadDir(ws.Dir())
	if len(entries) != 0 {
		t.Errorf("workspace should be empty, found %d entries", len(entries))
	}
}

func TestRunPathTrackedOnce(t *testing.T) {
	ws := NewWorkspace(t.TempDir())
	run := ws.NewRun()
	run.Path("a.mp4")
	run.Path("a.mp4")
	if got := len(run.Artifacts()); got != 1 {
		t.Errorf("expected one tracked path, got %d", got)
	}
}

func TestSweepRemovesOnlyStaleFiles(t *testing.T) {
	ws := NewWorkspace(t.TempDir())
	old, _ := ws.WriteArtifact("old.mp4", []byte("o"))
	fresh, _ := ws.WriteArtifact("fresh.mp4", []byte("f"))
	os.MkdirAll(filepath.Join(ws.Dir(), "subdir"), 0755)

	past := time.Now().Add(-3 * time.Hour)
	if err := os.Chtimes(old, past, past); err != nil {
		t.Fatal(err)
	}

	removed, err := ws.Sweep(time.Hour)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 file removed, got %d", removed)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("stale file should be removed")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Error("fresh file should be kept")
	}
	if _, err := os.Stat(filepath.Join(ws.Dir(), "subdir")); err != nil {
		t.Error("directories are never swept")
	}
}

func TestSweepMissingWorkspace(t *testing.T) {
	ws := NewWorkspace(filepath.Join(t.TempDir(), "absent"))
	removed, err := ws.Sweep(time.Minute)
	if err != nil || removed != 0 {
		t.Errorf("expected no-op sweep, got %d, %v", removed, err)
	}
}

func TestFreeSpaceGB(t *testing.T) {
	ws := NewWorkspace(t.TempDir())
	free, err := ws.FreeSpaceGB()
	if err != nil {
		t.Fatalf("FreeSpaceGB failed: %v", err)
	}
	if free < 0 {
		t.Errorf("free space cannot be negative: %f", free)
	}
}
