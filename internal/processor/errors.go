package processor

import (
	"context"
	"errors"

	"comiconv/internal/archive"
	"comiconv/internal/backup"
	"comiconv/internal/codec"
	"comiconv/internal/remote"
)

var errorKinds = []struct {
	err  error
	kind string
}{
	{backup.ErrLocked, "Locked"},
	{backup.ErrBackup, "BackupError"},
	{remote.ErrRemoteTranscode, "RemoteTranscodeError"},
	{archive.ErrUnsupportedContainer, "UnsupportedContainer"},
	{archive.ErrCorruptArchive, "CorruptArchive"},
	{codec.ErrUnsupportedSourceCodec, "UnsupportedSourceCodec"},
	{codec.ErrEncodeFailure, "EncodeFailure"},
	{archive.ErrWrite, "WriteError"},
	{context.Canceled, "Canceled"},
}

// ErrorKind names the failure class of err for reports. Remote failures are
// reported as such even when the server named a codec error.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "Error"
}
