package processor

import (
	"comiconv/internal/archive"
	"comiconv/pkg/imgutil"
)

// Classify decides whether an entry is a convertible image. Only magic bytes
// count: a ".jpg" member with unrecognised content passes through untouched.
func Classify(e archive.Entry) archive.Role {
	if e.Dir || e.Link != "" || e.Special != nil || len(e.Data) == 0 {
		return archive.RolePassthrough
	}
	if imgutil.Detect(e.Data) == imgutil.KindUnknown {
		return archive.RolePassthrough
	}
	return archive.RoleImage
}

// ClassifyAll sets the role of every entry in place.
func ClassifyAll(entries []archive.Entry) {
	for i := range entries {
		entries[i].Role = Classify(entries[i])
	}
}
