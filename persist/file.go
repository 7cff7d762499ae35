package persist

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/krisalay/query-cache/types"
)

// File permission constants for persisted records.
const (
	dirPerm  = 0o750 // Directory permissions: rwxr-x---
	filePerm = 0o600 // File permissions: rw-------
)

// File stores one JSON document per key under a base directory.
// Key text can hold any character, so file names are the SHA-256 of the key.
type File struct {
	baseDir string
}

// fileRecord is the on-disk format of a persisted entry.
type fileRecord struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// NewFile creates the base directory if needed.
func NewFile(baseDir string) (*File, error) {
	if err := os.MkdirAll(baseDir, dirPerm); err != nil {
		return nil, errors.Wrap(err, "create persist directory")
	}
	return &File{baseDir: baseDir}, nil
}

func (f *File) Load(_ context.Context, key string) (types.Record, bool, error) {
	data, err := os.ReadFile(filepath.Clean(f.path(key)))
	if errors.Is(err, os.ErrNotExist) {
		return types.Record{}, false, nil
	}
	if err != nil {
		return types.Record{}, false, errors.Wrapf(err, "read record %q", key)
	}

	var rec fileRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return types.Record{}, false, errors.Wrapf(err, "decode record %q", key)
	}
	return types.Record{Value: rec.Value, UpdatedAt: rec.UpdatedAt}, true, nil
}

// Put writes atomically through a temp file and a rename.
func (f *File) Put(_ context.Context, key string, rec types.Record) error {
	data, err := json.Marshal(fileRecord{Key: key, Value: rec.Value, UpdatedAt: rec.UpdatedAt})
	if err != nil {
		return errors.Wrapf(err, "encode record %q", key)
	}

	path := f.path(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, filePerm); err != nil {
		return errors.Wrapf(err, "write record %q", key)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrapf(err, "commit record %q", key)
	}
	return nil
}

func (f *File) Delete(_ context.Context, key string) error {
	err := os.Remove(f.path(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Wrapf(err, "delete record %q", key)
	}
	return nil
}

func (f *File) Clear(_ context.Context) error {
	if err := os.RemoveAll(f.baseDir); err != nil {
		return errors.Wrap(err, "clear persist directory")
	}
	if err := os.MkdirAll(f.baseDir, dirPerm); err != nil {
		return errors.Wrap(err, "recreate persist directory")
	}
	return nil
}

func (f *File) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(f.baseDir, hex.EncodeToString(sum[:])+".json")
}
