// Package archive reads comic-book containers into ordered in-memory entries
// and writes them back out.
//
// Every reader makes a single pass over a fully buffered file and returns the
// members in the order the container stores them; that order is the page
// order and every writer reproduces it. ZIP and TAR use the standard library
// codecs, 7z is read with bodgit/sevenzip and written through the external 7z
// binary, and RAR is read-only (nwaples/rardecode), so TargetFormat downgrades
// it to ZIP.
package archive

import (
	"archive/tar"
	"errors"
	"io/fs"
	"time"
)

var (
	// ErrUnsupportedContainer marks input that is none of ZIP, TAR, 7z or RAR.
	ErrUnsupportedContainer = errors.New("unsupported container")
	// ErrCorruptArchive marks a container whose index or member data cannot be parsed.
	ErrCorruptArchive = errors.New("corrupt archive")
	// ErrWrite marks a failure to serialize the output container.
	ErrWrite = errors.New("archive write failed")
)

// Role tells the pipeline what to do with an entry.
type Role int

const (
	RolePassthrough Role = iota
	RoleImage
)

func (r Role) String() string {
	if r == RoleImage {
		return "image"
	}
	return "passthrough"
}

// Entry is one archive member. Data is owned by whichever pipeline stage
// holds the entry.
type Entry struct {
	Name     string
	Data     []byte
	Role     Role
	Dir      bool
	Link     string
	Mode     fs.FileMode
	Modified time.Time

	// Special keeps the header of a TAR member that is not a file, directory
	// or symlink (hard links, devices, FIFOs, global headers). A hard link's
	// Data is a copy of its target's, for containers that cannot link.
	Special *tar.Header
}

// Archive is the decoded content of one container file.
type Archive struct {
	Path    string
	Format  Format
	Entries []Entry
}

// Images counts the entries classified as images.
func (a *Archive) Images() int {
	n := 0
	for _, e := range a.Entries {
		if e.Role == RoleImage {
			n++
		}
	}
	return n
}

// Size sums the payload bytes of all entries.
func (a *Archive) Size() int64 {
	var n int64
	for _, e := range a.Entries {
		n += int64(len(e.Data))
	}
	return n
}
