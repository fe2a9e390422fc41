package archive

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
)

// Format is a container format comiconv knows how to read.
type Format int

const (
	FormatUnknown Format = iota
	FormatZIP
	FormatTAR
	FormatSevenZip
	FormatRAR
)

func (f Format) String() string {
	switch f {
	case FormatZIP:
		return "zip"
	case FormatTAR:
		return "tar"
	case FormatSevenZip:
		return "7z"
	case FormatRAR:
		return "rar"
	default:
		return "unknown"
	}
}

// Extension returns the comic-book extension conventionally used for the format.
func (f Format) Extension() string {
	switch f {
	case FormatZIP:
		return ".cbz"
	case FormatTAR:
		return ".cbt"
	case FormatSevenZip:
		return ".cb7"
	case FormatRAR:
		return ".cbr"
	default:
		return ""
	}
}

// Writable reports whether Write can emit the format.
func (f Format) Writable() bool {
	switch f {
	case FormatZIP, FormatTAR, FormatSevenZip:
		return true
	default:
		return false
	}
}

// TargetFormat maps a source format to the format it is written back as.
// RAR has no writer and downgrades to ZIP.
func TargetFormat(src Format) Format {
	if src == FormatRAR {
		return FormatZIP
	}
	return src
}

// ParseFormat accepts the names used on the command line and in config files.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "zip", "cbz":
		return FormatZIP, nil
	case "tar", "cbt":
		return FormatTAR, nil
	case "7z", "7zip", "sevenzip", "cb7":
		return FormatSevenZip, nil
	case "rar", "cbr":
		return FormatRAR, nil
	}
	return FormatUnknown, fmt.Errorf("invalid archive type %q (use zip, tar, 7z or rar)", s)
}

var (
	zipLocalSig  = []byte("PK\x03\x04")
	zipEmptySig  = []byte("PK\x05\x06")
	zipSpanSig   = []byte("PK\x07\x08")
	sevenZipSig  = []byte{'7', 'z', 0xbc, 0xaf, 0x27, 0x1c}
	rarSig       = []byte("Rar!\x1a\x07")
	tarMagic     = []byte("ustar")
	tarMagicOff  = 257
	extToFormats = map[string]Format{
		".cbz": FormatZIP,
		".zip": FormatZIP,
		".cbt": FormatTAR,
		".tar": FormatTAR,
		".cb7": FormatSevenZip,
		".7z":  FormatSevenZip,
		".cbr": FormatRAR,
		".rar": FormatRAR,
	}
)

// DetectFormat identifies the container from its magic bytes and falls back
// to the file extension of name when no signature matches.
func DetectFormat(data []byte, name string) Format {
	switch {
	case bytes.HasPrefix(data, zipLocalSig), bytes.HasPrefix(data, zipEmptySig), bytes.HasPrefix(data, zipSpanSig):
		return FormatZIP
	case bytes.HasPrefix(data, sevenZipSig):
		return FormatSevenZip
	case bytes.HasPrefix(data, rarSig):
		return FormatRAR
	case len(data) >= tarMagicOff+len(tarMagic) && bytes.Equal(data[tarMagicOff:tarMagicOff+len(tarMagic)], tarMagic):
		return FormatTAR
	}
	return extToFormats[strings.ToLower(filepath.Ext(name))]
}

// FormatForName returns the container conventionally stored under name's
// extension, or FormatUnknown.
func FormatForName(name string) Format {
	return extToFormats[strings.ToLower(filepath.Ext(name))]
}
