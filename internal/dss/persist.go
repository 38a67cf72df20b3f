package dss

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// Store persists the cached structure between runs.
//
// Load reports found=false when nothing has been saved yet. Save failures
// are logged by the Apartment and never propagated to callers.
type Store interface {
	Load(ctx context.Context) (zones []Zone, found bool, err error)
	Save(ctx context.Context, zones []Zone) error
}

// File permissions for the snapshot file and its directory.
const (
	snapshotDirPermissions  = 0750
	snapshotFilePermissions = 0600
)

// FileStore keeps the structure in a single file. Files ending in ".cbor"
// are CBOR-encoded, everything else is JSON.
type FileStore struct {
	path string
}

// NewFileStore returns a store backed by path. The file is created on the
// first Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the snapshot file location.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) isCBOR() bool {
	return strings.EqualFold(filepath.Ext(s.path), ".cbor")
}

// Load implements Store.
func (s *FileStore) Load(_ context.Context) ([]Zone, bool, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading snapshot: %w", err)
	}
	if len(data) == 0 {
		return nil, false, nil
	}

	var zones []Zone
	if s.isCBOR() {
		err = cbor.Unmarshal(data, &zones)
	} else {
		err = json.Unmarshal(data, &zones)
	}
	if err != nil {
		return nil, false, fmt.Errorf("decoding snapshot %s: %w", s.path, err)
	}
	return zones, true, nil
}

// Save implements Store. The file is replaced atomically.
func (s *FileStore) Save(_ context.Context, zones []Zone) error {
	var (
		data []byte
		err  error
	)
	if s.isCBOR() {
		data, err = cbor.Marshal(zones)
	} else {
		data, err = json.Marshal(zones)
	}
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, snapshotDirPermissions); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp snapshot: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck // write error takes precedence
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing snapshot: %w", err)
	}
	if err := os.Chmod(tmp.Name(), snapshotFilePermissions); err != nil {
		return fmt.Errorf("setting snapshot permissions: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replacing snapshot: %w", err)
	}
	return nil
}
