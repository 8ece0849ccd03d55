// Package filex provides small filesystem helpers shared by the ingestion
// pipeline: directory creation, cross-device safe moves, and best-effort
// removal for cleanup paths.
package filex

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// EnsureDir creates dir (and parents) if it does not exist yet and
// returns the same path.
func EnsureDir(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o770); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return dir, nil
}

// Move relocates src to dst. It tries a rename first and falls back to
// copy+remove when src and dst live on different filesystems (temp dirs
// are often separate mounts from the storage volume).
func Move(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o660)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return fmt.Errorf("copy %s -> %s: %w", src, dst, err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return fmt.Errorf("close %s: %w", dst, err)
	}

	return os.Remove(src)
}

// RemoveIfExists removes path, treating "already gone" as success.
// Cleanup paths must never fail over a missing file.
func RemoveIfExists(path string) error {
	err := os.Remove(path)
	if err == nil || os.IsNotExist(err) {
		return nil
	}
	return fmt.Errorf("remove %s: %w", path, err)
}

// SizeOf returns the byte size of the file at path.
func SizeOf(path string) (int64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}
	return fi.Size(), nil
}

// ReplaceWith atomically swaps the file at path with the file at newPath
// (both must be on the same filesystem; newPath is expected to sit next
// to path, e.g. "<path>.tmp").
func ReplaceWith(path, newPath string) error {
	if err := os.Rename(newPath, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// TempSibling returns a temp-file path placed next to path so that a later
// rename stays on one filesystem.
func TempSibling(path string) string {
	return filepath.Join(filepath.Dir(path), filepath.Base(path)+".tmp")
}
