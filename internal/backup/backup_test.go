package backup

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func stage(t *testing.T, dir, content string) string {
	t.Helper()
	staged, err := Stage(dir, 0o644, func(w io.Writer) error {
		_, err := io.WriteString(w, content)
		return err
	})
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	return staged
}

func TestReplaceInPlaceWithBackup(t *testing.T) {
	dir := t.TempDir()
	orig := filepath.Join(dir, "book.cbz")
	writeFile(t, orig, "old")

	staged := stage(t, dir, "new")
	bak, err := Replace(staged, Plan{Original: orig, Dest: orig, Keep: true})
	if err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if bak != orig+".bak" {
		t.Fatalf("backup path = %q", bak)
	}
	if got := readFile(t, orig); got != "new" {
		t.Fatalf("dest = %q, want new", got)
	}
	if got := readFile(t, bak); got != "old" {
		t.Fatalf("backup = %q, want old", got)
	}
	if _, err := os.Stat(staged); !os.IsNotExist(err) {
		t.Fatalf("staged file left behind: %v", err)
	}
}

func TestReplaceNumbersBackups(t *testing.T) {
	dir := t.TempDir()
	orig := filepath.Join(dir, "book.cbz")
	writeFile(t, orig, "v1")
	writeFile(t, orig+".bak", "v0")

	bak, err := Replace(stage(t, dir, "v2"), Plan{Original: orig, Dest: orig, Keep: true})
	if err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if bak != orig+".bak.1" {
		t.Fatalf("backup path = %q, want .bak.1", bak)
	}
	if got := readFile(t, orig+".bak"); got != "v0" {
		t.Fatalf("older backup overwritten: %q", got)
	}
}

func TestReplaceSupersedesOriginal(t *testing.T) {
	dir := t.TempDir()
	orig := filepath.Join(dir, "book.cbr")
	dest := filepath.Join(dir, "book.cbz")
	writeFile(t, orig, "rar")

	if _, err := Replace(stage(t, dir, "zip"), Plan{Original: orig, Dest: dest, Supersede: true}); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if _, err := os.Stat(orig); !os.IsNotExist(err) {
		t.Fatalf("original should be gone, stat err = %v", err)
	}
	if got := readFile(t, dest); got != "zip" {
		t.Fatalf("dest = %q", got)
	}
}

func TestReplaceSupersedeWithBackupKeepsOriginal(t *testing.T) {
	dir := t.TempDir()
	orig := filepath.Join(dir, "book.cbr")
	dest := filepath.Join(dir, "book.cbz")
	writeFile(t, orig, "rar")

	bak, err := Replace(stage(t, dir, "zip"), Plan{Original: orig, Dest: dest, Keep: true, Supersede: true})
	if err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if got := readFile(t, bak); got != "rar" {
		t.Fatalf("backup = %q", got)
	}
}

func TestReplaceBackupFailureLeavesOriginal(t *testing.T) {
	dir := t.TempDir()
	orig := filepath.Join(dir, "missing.cbz")
	staged := stage(t, dir, "new")

	_, err := Replace(staged, Plan{Original: orig, Dest: orig, Keep: true})
	if !errors.Is(err, ErrBackup) {
		t.Fatalf("expected ErrBackup, got %v", err)
	}
	if _, err := os.Stat(staged); !os.IsNotExist(err) {
		t.Fatalf("staged file should be removed, stat err = %v", err)
	}
	if _, err := os.Stat(orig); !os.IsNotExist(err) {
		t.Fatal("nothing should have been installed")
	}
}

func TestReplaceRestoresBackupOnInstallFailure(t *testing.T) {
	dir := t.TempDir()
	orig := filepath.Join(dir, "book.cbz")
	writeFile(t, orig, "old")

	// a non-empty directory at the destination makes the rename fail
	dest := filepath.Join(dir, "occupied")
	if err := os.MkdirAll(filepath.Join(dest, "child"), 0o755); err != nil {
		t.Fatal(err)
	}

	_, err := Replace(stage(t, dir, "new"), Plan{Original: orig, Dest: dest, Keep: true, Supersede: true})
	if err == nil {
		t.Fatal("expected install error")
	}
	if got := readFile(t, orig); got != "old" {
		t.Fatalf("original not restored: %q", got)
	}
}

func TestReplaceKeepsDestinationOnInstallFailure(t *testing.T) {
	dir := t.TempDir()
	// in place without backup: the original is also the destination
	dest := filepath.Join(dir, "book.cbz")
	if err := os.Mkdir(dest, 0o755); err != nil {
		t.Fatal(err)
	}

	staged := stage(t, dir, "new")
	if _, err := Replace(staged, Plan{Original: dest, Dest: dest, Supersede: true}); err == nil {
		t.Fatal("expected install error")
	}
	info, err := os.Stat(dest)
	if err != nil {
		t.Fatalf("destination removed after failed install: %v", err)
	}
	if !info.IsDir() {
		t.Fatal("destination was replaced despite the failed install")
	}
	if _, err := os.Stat(staged); !os.IsNotExist(err) {
		t.Fatalf("staged file left behind: %v", err)
	}
}

func TestStageRemovesTempOnWriteError(t *testing.T) {
	dir := t.TempDir()
	boom := errors.New("boom")
	if _, err := Stage(dir, 0o644, func(io.Writer) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}

func TestAcquireIsExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.cbz")
	writeFile(t, path, "data")

	lock, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer lock.Release()

	if _, err := Acquire(path); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
}
