// Package archivetest builds container fixtures that the archive package can
// read but not write.
package archivetest

import (
	"encoding/binary"
	"hash/crc32"
	"time"
)

// File is one stored member of a fixture archive.
type File struct {
	Name     string
	Data     []byte
	Modified time.Time
}

// StoredRAR returns a RAR 4.x archive holding files uncompressed, in order.
func StoredRAR(files []File) []byte {
	out := []byte("Rar!\x1a\x07\x00")

	// main archive header: 13 bytes, no flags
	out = appendBlock(out, 0x73, 0, make([]byte, 6))

	for _, f := range files {
		name := []byte(f.Name)
		var b []byte
		b = binary.LittleEndian.AppendUint32(b, uint32(len(f.Data))) // packed size
		b = binary.LittleEndian.AppendUint32(b, uint32(len(f.Data))) // unpacked size
		b = append(b, 2)                                             // host OS: Windows
		b = binary.LittleEndian.AppendUint32(b, crc32.ChecksumIEEE(f.Data))
		b = binary.LittleEndian.AppendUint32(b, dosTime(f.Modified))
		b = append(b, 29, 0x30) // unpack version, store method
		b = binary.LittleEndian.AppendUint16(b, uint16(len(name)))
		b = binary.LittleEndian.AppendUint32(b, 0x20) // archive attribute
		b = append(b, name...)

		out = appendBlock(out, 0x74, 0x8000, b)
		out = append(out, f.Data...)
	}

	return appendBlock(out, 0x7b, 0, nil)
}

// appendBlock writes a block header: CRC16, type, flags, size, body. The CRC
// is the low half of the CRC32 over everything after the CRC field.
func appendBlock(out []byte, kind byte, flags uint16, body []byte) []byte {
	hdr := []byte{kind}
	hdr = binary.LittleEndian.AppendUint16(hdr, flags)
	hdr = binary.LittleEndian.AppendUint16(hdr, uint16(7+len(body)))
	hdr = append(hdr, body...)

	out = binary.LittleEndian.AppendUint16(out, uint16(crc32.ChecksumIEEE(hdr)))
	return append(out, hdr...)
}

func dosTime(t time.Time) uint32 {
	if t.IsZero() || t.Year() < 1980 {
		t = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return uint32(t.Year()-1980)<<25 |
		uint32(t.Month())<<21 |
		uint32(t.Day())<<16 |
		uint32(t.Hour())<<11 |
		uint32(t.Minute())<<5 |
		uint32(t.Second()/2)
}
