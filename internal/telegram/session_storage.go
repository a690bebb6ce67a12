package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/gotd/td/session"
)

const sessionFileMode fs.FileMode = 0o600

// FileSessionStorage keeps the MTProto session in one JSON file under the
// state dir. A missing, empty or unreadable-as-JSON file means "log in
// again", never a startup failure.
type FileSessionStorage struct {
	Path string
	mux  sync.Mutex
}

var _ session.Storage = (*FileSessionStorage)(nil)

func (s *FileSessionStorage) LoadSession(context.Context) ([]byte, error) {
	s.mux.Lock()
	defer s.mux.Unlock()
	return readSessionFile(s.Path)
}

func (s *FileSessionStorage) StoreSession(_ context.Context, data []byte) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	return replaceFile(s.Path, data, sessionFileMode)
}

// Exists reports whether a usable session has been stored.
func (s *FileSessionStorage) Exists() bool {
	s.mux.Lock()
	defer s.mux.Unlock()
	_, err := readSessionFile(s.Path)
	return err == nil
}

func readSessionFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, session.ErrNotFound
	case err != nil:
		return nil, err
	case len(data) == 0 || !json.Valid(data):
		return nil, session.ErrNotFound
	}
	return data, nil
}

// replaceFile swaps path for data in one rename, so readers see either the
// previous content or the new one.
func replaceFile(path string, data []byte, mode fs.FileMode) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Chmod(mode); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
