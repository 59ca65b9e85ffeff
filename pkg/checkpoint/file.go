package checkpoint

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/agentstation/crmsync/pkg/constants"
	"github.com/agentstation/crmsync/pkg/errors"
)

// FileStore keeps the checkpoint as a JSON document on local disk.
type FileStore struct {
	path string
}

// NewFileStore returns a store writing to path. An empty path selects
// constants.DefaultCheckpointPath.
func NewFileStore(path string) *FileStore {
	if path == "" {
		path = constants.DefaultCheckpointPath
	}
	return &FileStore{path: path}
}

// Path returns the checkpoint file location.
func (s *FileStore) Path() string {
	return s.path
}

// Save writes p to a temporary file in the same directory and renames it
// over the checkpoint, so a reader never observes a partial document.
func (s *FileStore) Save(ctx context.Context, p Progress) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(stamp(p), "", "  ")
	if err != nil {
		return errors.WrapParse("json", s.path, err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, constants.DirPermissions); err != nil {
		return errors.WrapIO("mkdir", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".checkpoint-*.tmp")
	if err != nil {
		return errors.WrapIO("create", dir, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // gone after a successful rename

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return errors.WrapIO("write", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return errors.WrapIO("sync", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return errors.WrapIO("close", tmpName, err)
	}
	if err := os.Chmod(tmpName, constants.SecureFilePermissions); err != nil {
		return errors.WrapIO("chmod", tmpName, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return errors.WrapIO("rename", s.path, err)
	}
	return nil
}

// Load reads the checkpoint file.
func (s *FileStore) Load(ctx context.Context) (*Progress, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.WrapIO("read", s.path, err)
	}

	var p Progress
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, errors.WrapParse("json", s.path, err)
	}
	return &p, nil
}

// Clear removes the checkpoint file.
func (s *FileStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return errors.WrapIO("remove", s.path, err)
	}
	return nil
}
