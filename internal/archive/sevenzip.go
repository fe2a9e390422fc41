package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/bodgit/sevenzip"
)

// sevenZipBinaries are tried in order; 7zz is the upstream 7-Zip build, 7z
// and 7za come from p7zip.
var sevenZipBinaries = []string{"7zz", "7z", "7za"}

// SevenZipBinary returns the first 7-Zip executable found on PATH.
func SevenZipBinary() (string, error) {
	for _, name := range sevenZipBinaries {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", errors.New("no 7-Zip executable (7zz, 7z, 7za) found in PATH")
}

// writeSevenZip stages the entries in a scratch directory and lets 7-Zip pack
// them. Only file members are passed, in order, with recursion and wildcard
// matching disabled; directories are implied by member paths. The result is
// read back and rejected unless it lists exactly those members in order.
func writeSevenZip(ctx context.Context, w io.Writer, entries []Entry) error {
	bin, err := SevenZipBinary()
	if err != nil {
		return err
	}

	stage, err := os.MkdirTemp("", "comiconv-7z-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(stage)

	root := filepath.Join(stage, "root")
	if err := os.MkdirAll(root, 0o755); err != nil {
		return err
	}

	var (
		args    = []string{"a", "-t7z", "-bd", "-y", "-spd", "-r-", "-mqs=off"}
		members []string
	)
	out := filepath.Join(stage, "out.7z")
	args = append(args, out, "--")
	for _, e := range entries {
		rel := filepath.FromSlash(strings.TrimSuffix(e.Name, "/"))
		target := filepath.Join(root, rel)
		if err := stageEntry(target, e); err != nil {
			return fmt.Errorf("stage %s: %w", e.Name, err)
		}
		if e.Dir {
			continue
		}
		args = append(args, rel)
		members = append(members, e.Name)
	}
	if len(members) == 0 {
		return errors.New("7z archives need at least one file member")
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = root

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w: %s", filepath.Base(bin), err, strings.TrimSpace(stderr.String()))
	}

	packed, err := os.ReadFile(out)
	if err != nil {
		return err
	}
	if err := verifySevenZip(packed, members); err != nil {
		return err
	}
	_, err = w.Write(packed)
	return err
}

// verifySevenZip checks that the file members of packed match want, in order.
func verifySevenZip(packed []byte, want []string) error {
	zr, err := sevenzip.NewReader(bytes.NewReader(packed), int64(len(packed)))
	if err != nil {
		return fmt.Errorf("read back: %w", err)
	}

	got := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		got = append(got, f.Name)
	}
	if len(got) != len(want) {
		return fmt.Errorf("7-Zip stored %d members, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			return fmt.Errorf("7-Zip stored %q at position %d, want %q", got[i], i, want[i])
		}
	}
	return nil
}

func stageEntry(target string, e Entry) error {
	mode := entryMode(e)
	if e.Dir {
		if err := os.MkdirAll(target, 0o755); err != nil {
			return err
		}
	} else {
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if e.Link != "" {
			return os.Symlink(e.Link, target)
		}
		if err := os.WriteFile(target, e.Data, mode.Perm()|0o200); err != nil {
			return err
		}
	}
	mtime := entryTime(e)
	return os.Chtimes(target, mtime, mtime)
}
