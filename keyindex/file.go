package keyindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
)

// FileSnapshots stores one JSON document per index on a billy filesystem.
type FileSnapshots struct {
	fs  billy.Filesystem
	dir string
}

// NewFileSnapshots stores snapshots under dir on fs.
func NewFileSnapshots(fs billy.Filesystem, dir string) *FileSnapshots {
	return &FileSnapshots{fs: fs, dir: dir}
}

// NewOSFileSnapshots stores snapshots in dir on the local disk.
func NewOSFileSnapshots(dir string) *FileSnapshots {
	return NewFileSnapshots(osfs.New(dir), ".")
}

// Load reads the snapshot for name.
func (s *FileSnapshots) Load(ctx context.Context, name string) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	p, err := s.path(name)
	if err != nil {
		return Snapshot{}, err
	}

	f, err := s.fs.Open(p)
	if errors.Is(err, os.ErrNotExist) {
		return Snapshot{}, ErrNoSnapshot
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("open %s: %w", p, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read %s: %w", p, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("parse %s: %w", p, err)
	}
	return snap, nil
}

// Save writes snap through a temporary file renamed into place.
func (s *FileSnapshots) Save(ctx context.Context, snap Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.path(snap.Name)
	if err != nil {
		return err
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}

	if s.dir != "" && s.dir != "." {
		if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
			return fmt.Errorf("mkdir %s: %w", s.dir, err)
		}
	}
	tmp := p + ".tmp"
	f, err := s.fs.Create(tmp)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("close %s: %w", tmp, err)
	}
	if err := s.fs.Rename(tmp, p); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}

func (s *FileSnapshots) path(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return path.Join(s.dir, name+".json"), nil
}

// Ensure FileSnapshots implements SnapshotStore
var _ SnapshotStore = (*FileSnapshots)(nil)
