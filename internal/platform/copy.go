package platform

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"syscall"
)

// CopyDir recursively copies src to dst. Regular files keep their bytes and
// permission bits, directories keep their permission bits, and symlinks are
// recreated pointing at the same target. dst must not exist.
func CopyDir(src, dst string) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return err
	}
	if !srcInfo.IsDir() {
		return fmt.Errorf("%s is not a directory", src)
	}
	if _, err := os.Lstat(dst); err == nil {
		return fmt.Errorf("copy destination %s already exists", dst)
	}

	if err := os.MkdirAll(dst, srcInfo.Mode().Perm()|0o700); err != nil {
		return err
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())

		switch {
		case entry.Type()&os.ModeSymlink != 0:
			if err := copySymlink(srcPath, dstPath); err != nil {
				return err
			}
		case entry.IsDir():
			if err := CopyDir(srcPath, dstPath); err != nil {
				return err
			}
		case entry.Type().IsRegular():
			if err := copyFile(srcPath, dstPath); err != nil {
				return err
			}
		}
		// Sockets, devices and pipes are not part of a project tree.
	}

	// Children are written first; apply the exact source bits last so
	// read-only directories can be filled.
	return Chmod(dst, srcInfo.Mode().Perm())
}

// Move renames src to dst, falling back to copy-then-remove when the rename
// crosses a device boundary.
func Move(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}

	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) || !errors.Is(linkErr.Err, syscall.EXDEV) {
		return err
	}

	if err := CopyDir(src, dst); err != nil {
		_ = os.RemoveAll(dst)
		return fmt.Errorf("moving %s to %s: %w", src, dst, err)
	}
	return os.RemoveAll(src)
}

// copyFile streams a single file from src to dst, preserving permissions.
func copyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return Chmod(dst, info.Mode().Perm())
}

// copySymlink recreates the link at src under dst. On Windows, where
// creating symlinks needs developer mode, it falls back to copying the
// resolved target file.
func copySymlink(src, dst string) error {
	target, err := os.Readlink(src)
	if err != nil {
		return err
	}

	err = os.Symlink(target, dst)
	if err == nil || runtime.GOOS != "windows" {
		return err
	}

	resolved := target
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(filepath.Dir(src), target)
	}
	info, statErr := os.Stat(resolved)
	if statErr != nil {
		return fmt.Errorf("symlink fallback for %s: %w", src, statErr)
	}
	if info.IsDir() {
		return CopyDir(resolved, dst)
	}
	return copyFile(resolved, dst)
}
