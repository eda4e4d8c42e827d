// Package staticfiles copies the static assets compiled into the binary to
// the directory the reverse proxy serves.
package staticfiles

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Result counts what Collect did.
type Result struct {
	Copied     int
	Unmodified int
}

// Options controls Collect.
type Options struct {
	// Clear removes root before copying.
	Clear bool
	// DryRun reports what would be copied without writing anything.
	DryRun bool
}

// Collect copies every file of src into root, keeping the directory layout.
// Files whose content already matches are left alone.
func Collect(src fs.FS, root string, opts Options) (Result, error) {
	var res Result
	if root == "" {
		return res, errors.New("static root must not be empty")
	}

	if opts.Clear && !opts.DryRun {
		if err := os.RemoveAll(root); err != nil {
			return res, fmt.Errorf("could not clear %s: %w", root, err)
		}
	}

	err := fs.WalkDir(src, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		data, err := fs.ReadFile(src, path)
		if err != nil {
			return fmt.Errorf("could not read %s: %w", path, err)
		}

		dst := filepath.Join(root, filepath.FromSlash(path))
		if existing, err := os.ReadFile(dst); err == nil && bytes.Equal(existing, data) {
			res.Unmodified++

			return nil
		}

		res.Copied++
		if opts.DryRun {
			return nil
		}
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil { //nolint: gosec
			return fmt.Errorf("could not create %s: %w", filepath.Dir(dst), err)
		}
		if err := os.WriteFile(dst, data, 0o644); err != nil { //nolint: gosec
			return fmt.Errorf("could not write %s: %w", dst, err)
		}

		return nil
	})
	if err != nil {
		return res, fmt.Errorf("could not collect static files: %w", err)
	}

	return res, nil
}
