package source

import (
	"context"
	"fmt"
	"io"
	"os"
)

// FileSource ingests a file already present on the local filesystem,
// for example content dropped in by an operator.
type FileSource struct {
	path string
	file *os.File
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) Open(ctx context.Context) (io.ReadCloser, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	s.file = f
	return f, nil
}

func (s *FileSource) ExpectedLength() (int64, bool) {
	fi, err := os.Stat(s.path)
	if err != nil {
		return 0, false
	}

	return fi.Size(), true
}

func (s *FileSource) Close() error {
	if s.file != nil {
		err := s.file.Close()
		s.file = nil
		return err
	}

	return nil
}
