package identity

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/parkapp/parkwatch/internal/conf"
	"github.com/parkapp/parkwatch/internal/errors"
)

// FileStore keeps the session identity in a YAML file.
type FileStore struct {
	path string
	key  string
	mu   sync.Mutex
}

// NewFileStore returns a store for path. An empty key uses user_id.
func NewFileStore(path, key string) *FileStore {
	if key == "" {
		key = conf.DefaultIdentityKey
	}
	return &FileStore{path: path, key: key}
}

// Path returns the location of the session file.
func (f *FileStore) Path() string {
	return f.path
}

// UserID implements Provider. A missing file or key is ErrNoIdentity.
func (f *FileStore) UserID(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.read()
	if err != nil {
		return "", err
	}
	id := strings.TrimSpace(values[f.key])
	if id == "" {
		return "", notFound("file")
	}
	return id, nil
}

// Save stores userID, keeping any other keys in the file.
func (f *FileStore) Save(userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return errors.Newf("user id must not be empty").
			Component("identity").
			Category(errors.CategoryValidation).
			Build()
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.read()
	if err != nil {
		return err
	}
	if values == nil {
		values = make(map[string]string)
	}
	values[f.key] = userID
	return f.write(values)
}

// Clear removes the user id. It is not an error if none is stored.
func (f *FileStore) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.read()
	if err != nil {
		return err
	}
	if _, ok := values[f.key]; !ok {
		return nil
	}
	delete(values, f.key)
	if len(values) == 0 {
		if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
			return errors.FileError(err, f.path, 0)
		}
		return nil
	}
	return f.write(values)
}

func (f *FileStore) read() (map[string]string, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.FileError(err, f.path, 0)
	}

	var values map[string]string
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, errors.New(err).
			Component("identity").
			Category(errors.CategoryIdentity).
			FileContext(f.path, int64(len(data))).
			Build()
	}
	return values, nil
}

// write replaces the file through a temporary file in the same directory.
func (f *FileStore) write(values map[string]string) error {
	data, err := yaml.Marshal(values)
	if err != nil {
		return errors.New(err).Component("identity").Category(errors.CategoryIdentity).Build()
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return errors.FileError(err, dir, 0)
	}
	tmp, err := os.CreateTemp(dir, ".session-*.yaml")
	if err != nil {
		return errors.FileError(err, dir, 0)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.FileError(err, tmpName, int64(len(data)))
	}
	if err := tmp.Close(); err != nil {
		return errors.FileError(err, tmpName, int64(len(data)))
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return errors.FileError(err, f.path, int64(len(data)))
	}
	return nil
}
