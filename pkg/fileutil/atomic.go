// Package fileutil provides filesystem primitives: atomic writes with
// crash-safe backup semantics, bounded reads, and lazy directory scans.
package fileutil

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
)

// BackupSuffix is appended to the target path for the crash-safety copy.
const BackupSuffix = ".backup"

// AtomicWrite writes data to path via a sibling temp file, fsync, and rename.
// Interrupted writes leave the original file intact. The caller is
// responsible for ensuring the parent directory exists.
func AtomicWrite(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, ".pacc-atomic-*.tmp")
	if err != nil {
		return errors.Wrap(err, "creating temp file")
	}
	tmpName := tmp.Name()
	defer func() {
		if _, statErr := os.Stat(tmpName); statErr == nil {
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "writing temp file")
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return errors.Wrap(err, "setting file permissions")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "syncing temp file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "closing temp file")
	}
	if err := os.Rename(tmpName, path); err != nil {
		return errors.Wrap(err, "renaming temp file")
	}
	return nil
}

// AtomicWriteWithBackup is AtomicWrite preceded by a .backup copy of any
// existing target. The backup survives the write; callers that complete
// their transaction remove it with [RemoveBackup], and callers that fail
// restore it with [RestoreBackup].
func AtomicWriteWithBackup(path string, data []byte, perm os.FileMode) error {
	if _, err := os.Stat(path); err == nil {
		if err := copyFile(path, path+BackupSuffix); err != nil {
			return errors.Wrap(err, "creating backup")
		}
	}
	return AtomicWrite(path, data, perm)
}

// RestoreBackup moves <path>.backup over path, undoing a failed transaction.
// Returns false when no backup exists.
func RestoreBackup(path string) (bool, error) {
	backup := path + BackupSuffix
	if _, err := os.Stat(backup); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.Wrap(err, "checking backup")
	}
	if err := os.Rename(backup, path); err != nil {
		return false, errors.Wrap(err, "restoring backup")
	}
	return true, nil
}

// RemoveBackup deletes <path>.backup if present.
func RemoveBackup(path string) error {
	err := os.Remove(path + BackupSuffix)
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "removing backup")
	}
	return nil
}

// AtomicWriteJSON writes v as 2-space-indented JSON with a trailing newline.
// The file is created with 0644 permissions.
func AtomicWriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshaling JSON")
	}
	data = append(data, '\n')
	return AtomicWrite(path, data, 0o644)
}

// CopyFile copies src to dst preserving the source permissions. dst is
// written atomically.
func CopyFile(src, dst string) error {
	return copyFile(src, dst)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrap(err, "opening source")
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return errors.Wrap(err, "stating source")
	}

	data, err := io.ReadAll(in)
	if err != nil {
		return errors.Wrap(err, "reading source")
	}
	return AtomicWrite(dst, data, info.Mode().Perm())
}
