package credstore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// DefaultTokenFile is written in the working directory.
const DefaultTokenFile = ".schwab_tokens.json"

// FileSink writes the record as indented JSON, readable by the owner only.
type FileSink struct {
	Path string
}

// NewFileSink returns a sink writing to path, or DefaultTokenFile when empty.
func NewFileSink(path string) *FileSink {
	if path == "" {
		path = DefaultTokenFile
	}
	return &FileSink{Path: path}
}

// Save implements Sink. The file is replaced atomically.
func (s *FileSink) Save(_ context.Context, rec TokenRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode token record")
	}
	return errors.Wrapf(writeFileAtomic(s.Path, append(data, '\n'), 0600), "write %s", s.Path)
}

// writeFileAtomic writes to a temp file in the same directory and renames it over path.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
