package archive

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/bodgit/sevenzip"
	"github.com/nwaples/rardecode/v2"
)

// ReadFile loads the whole container at path into memory and decodes it.
func ReadFile(path string) (*Archive, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	a, err := Read(data, path)
	if err != nil {
		return nil, err
	}
	a.Path = path
	return a, nil
}

// Read decodes a buffered container. name is only consulted for the
// extension fallback of format detection.
func Read(data []byte, name string) (*Archive, error) {
	format := DetectFormat(data, name)

	var (
		entries []Entry
		err     error
	)
	switch format {
	case FormatZIP:
		entries, err = readZIP(data)
	case FormatTAR:
		entries, err = readTAR(data)
	case FormatSevenZip:
		entries, err = readSevenZip(data)
	case FormatRAR:
		entries, err = readRAR(data)
	default:
		return nil, fmt.Errorf("%s: %w", name, ErrUnsupportedContainer)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", name, ErrCorruptArchive, err)
	}

	return &Archive{Format: format, Entries: entries}, nil
}

func readZIP(data []byte) ([]Entry, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(zr.File))
	for _, f := range zr.File {
		entry := Entry{
			Name:     f.Name,
			Mode:     f.Mode(),
			Modified: f.Modified,
		}
		if f.FileInfo().IsDir() {
			entry.Dir = true
			entries = append(entries, entry)
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", f.Name, err)
		}
		entry.Data, err = io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f.Name, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func readTAR(data []byte) ([]Entry, error) {
	tr := tar.NewReader(bytes.NewReader(data))

	var entries []Entry
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		entry := Entry{
			Name:     hdr.Name,
			Mode:     hdr.FileInfo().Mode(),
			Modified: hdr.ModTime,
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			entry.Dir = true
		case tar.TypeSymlink:
			entry.Link = hdr.Linkname
		case tar.TypeReg, tar.TypeCont, tar.TypeGNUSparse:
			entry.Data, err = io.ReadAll(tr)
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", hdr.Name, err)
			}
		case tar.TypeLink:
			special := *hdr
			entry.Special = &special
			entry.Data = linkTarget(entries, hdr.Linkname)
		default:
			special := *hdr
			entry.Special = &special
			entry.Data, err = io.ReadAll(tr)
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", hdr.Name, err)
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// linkTarget returns the data of the last earlier member named target.
func linkTarget(entries []Entry, target string) []byte {
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Name == target {
			return entries[i].Data
		}
	}
	return nil
}

func readSevenZip(data []byte) ([]Entry, error) {
	zr, err := sevenzip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(zr.File))
	for _, f := range zr.File {
		info := f.FileInfo()
		entry := Entry{
			Name:     f.Name,
			Mode:     info.Mode(),
			Modified: info.ModTime(),
		}
		if info.IsDir() {
			entry.Dir = true
			if !strings.HasSuffix(entry.Name, "/") {
				entry.Name += "/"
			}
			entries = append(entries, entry)
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", f.Name, err)
		}
		entry.Data, err = io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f.Name, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func readRAR(data []byte) ([]Entry, error) {
	rr, err := rardecode.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	var entries []Entry
	for {
		hdr, err := rr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		entry := Entry{
			Name:     hdr.Name,
			Mode:     hdr.Mode(),
			Modified: hdr.ModificationTime,
		}
		if hdr.IsDir {
			entry.Dir = true
			entries = append(entries, entry)
			continue
		}

		entry.Data, err = io.ReadAll(rr)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", hdr.Name, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
