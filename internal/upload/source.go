package upload

import (
	"errors"
	"io"
	"os"
)

// ErrInvalidSource reports a data source that is neither a file path nor a
// byte stream.
var ErrInvalidSource = errors.New("upload: source is neither a file path nor a byte stream")

type sourceKind int

const (
	sourceInvalid sourceKind = iota
	sourceFile
	sourceStream
)

// Source is the data to upload: either a local file path or a sequential
// byte stream. The zero value is the invalid variant and fails any task it
// is used in.
type Source struct {
	kind   sourceKind
	path   string
	reader io.Reader
}

// FileSource uploads the contents of the local file at path.
func FileSource(path string) Source {
	return Source{kind: sourceFile, path: path}
}

// StreamSource uploads all bytes read from r. The reader is borrowed for
// the duration of the upload and is not closed afterwards.
func StreamSource(r io.Reader) Source {
	return Source{kind: sourceStream, reader: r}
}

// drainTo copies all source bytes into w. File-backed sources open a
// read-only handle scoped to this call.
func (s Source) drainTo(w io.Writer) (int64, error) {
	switch s.kind {
	case sourceFile:
		f, err := os.Open(s.path)
		if err != nil {
			return 0, err
		}
		defer f.Close()
		return io.Copy(w, f)
	case sourceStream:
		return io.Copy(w, s.reader)
	default:
		return 0, ErrInvalidSource
	}
}
