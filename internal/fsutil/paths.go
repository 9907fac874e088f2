package fsutil

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

// SwapExt replaces the extension of path with ext. The new extension must
// include its leading dot, e.g. SwapExt("a/b.vcf.bgz", ".tbi") == "a/b.vcf.tbi".
func SwapExt(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}

// AddPostfix inserts postfix between the base name and the extension of path,
// e.g. AddPostfix("x/s.bam", ".realigned") == "x/s.realigned.bam".
func AddPostfix(path, postfix string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + postfix + ext
}

// Exists reports whether path exists. Errors other than "not exist" are
// treated as existing, so callers fail later with a useful message.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil || !errors.Is(err, fs.ErrNotExist)
}

// MoveFile renames src to dst, creating the destination directory first. When
// the two paths live on different devices the file is copied and src removed.
func MoveFile(src, dst string) error {
	if dir := filepath.Dir(dst); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating directory for %s: %w", dst, err)
		}
	}

	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return err
	}

	if err := copyFile(src, dst); err != nil {
		_ = os.Remove(dst)
		return err
	}
	return os.Remove(src)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
