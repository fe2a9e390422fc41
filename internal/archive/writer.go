package archive

import (
	"archive/tar"
	"archive/zip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"time"
)

// Write serializes entries, in order, as a container of the given format.
// Any rejected name or failed member write is reported as ErrWrite.
func Write(ctx context.Context, w io.Writer, format Format, entries []Entry) error {
	for _, e := range entries {
		if err := validateName(e.Name); err != nil {
			return fmt.Errorf("%w: %v", ErrWrite, err)
		}
	}

	var err error
	switch format {
	case FormatZIP:
		err = writeZIP(w, entries)
	case FormatTAR:
		err = writeTAR(w, entries)
	case FormatSevenZip:
		err = writeSevenZip(ctx, w, entries)
	default:
		return fmt.Errorf("%w: cannot write %s containers", ErrWrite, format)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	return nil
}

func validateName(name string) error {
	trimmed := strings.TrimSuffix(name, "/")
	if trimmed == "" {
		return fmt.Errorf("empty entry name")
	}
	if strings.ContainsRune(name, 0) {
		return fmt.Errorf("entry name %q contains NUL", name)
	}
	if strings.HasPrefix(name, "/") || strings.HasPrefix(name, `\`) || (len(name) > 1 && name[1] == ':') {
		return fmt.Errorf("entry name %q is absolute", name)
	}
	for _, seg := range strings.FieldsFunc(trimmed, func(r rune) bool { return r == '/' || r == '\\' }) {
		if seg == ".." {
			return fmt.Errorf("entry name %q escapes the archive root", name)
		}
	}
	return nil
}

func entryMode(e Entry) fs.FileMode {
	mode := e.Mode
	if e.Dir {
		if mode.Perm() == 0 {
			mode |= 0o755
		}
		return mode | fs.ModeDir
	}
	if e.Link != "" {
		return mode | fs.ModeSymlink | 0o777
	}
	if mode.Perm() == 0 {
		mode |= 0o644
	}
	return mode
}

func entryTime(e Entry) time.Time {
	if e.Modified.IsZero() {
		return time.Now()
	}
	return e.Modified
}

func writeZIP(w io.Writer, entries []Entry) error {
	zw := zip.NewWriter(w)

	for _, e := range entries {
		hdr := &zip.FileHeader{
			Name:     e.Name,
			Modified: entryTime(e),
			Method:   zip.Deflate,
		}
		hdr.SetMode(entryMode(e))

		body := e.Data
		switch {
		case e.Dir:
			if !strings.HasSuffix(hdr.Name, "/") {
				hdr.Name += "/"
			}
			hdr.Method = zip.Store
			body = nil
		case e.Link != "":
			body = []byte(e.Link)
		case e.Role == RoleImage:
			// image codecs are already compressed
			hdr.Method = zip.Store
		}

		fw, err := zw.CreateHeader(hdr)
		if err != nil {
			_ = zw.Close()
			return fmt.Errorf("add %s: %w", e.Name, err)
		}
		if _, err := fw.Write(body); err != nil {
			_ = zw.Close()
			return fmt.Errorf("write %s: %w", e.Name, err)
		}
	}

	return zw.Close()
}

func writeTAR(w io.Writer, entries []Entry) error {
	tw := tar.NewWriter(w)

	for _, e := range entries {
		mode := entryMode(e)
		hdr := &tar.Header{
			Name:    e.Name,
			Mode:    int64(mode.Perm()),
			ModTime: entryTime(e),
			Format:  tar.FormatPAX,
		}

		var body []byte
		switch {
		case e.Special != nil:
			special := *e.Special
			special.Name = e.Name
			special.Format = tar.FormatPAX
			special.Size = 0
			if special.Typeflag != tar.TypeLink {
				special.Size = int64(len(e.Data))
				body = e.Data
			}
			hdr = &special
		case e.Dir:
			hdr.Typeflag = tar.TypeDir
			if !strings.HasSuffix(hdr.Name, "/") {
				hdr.Name += "/"
			}
		case e.Link != "":
			hdr.Typeflag = tar.TypeSymlink
			hdr.Linkname = e.Link
		case e.Mode&fs.ModeSymlink != 0:
			hdr.Typeflag = tar.TypeSymlink
			hdr.Linkname = string(e.Data)
		default:
			hdr.Typeflag = tar.TypeReg
			hdr.Size = int64(len(e.Data))
			body = e.Data
		}

		if err := tw.WriteHeader(hdr); err != nil {
			_ = tw.Close()
			return fmt.Errorf("add %s: %w", e.Name, err)
		}
		if len(body) > 0 {
			if _, err := tw.Write(body); err != nil {
				_ = tw.Close()
				return fmt.Errorf("write %s: %w", e.Name, err)
			}
		}
	}

	return tw.Close()
}
