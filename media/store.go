package media

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Store is the set of filesystem operations the services perform on the
// users, thumbs and trash trees.
type Store interface {
	Save(absPath string, data io.Reader) error
	Move(src, dst string) error
	Remove(absPath string) error
	EnsureDir(absDir string) error
	RemoveDirIfEmpty(absDir string) (bool, error)
	RemoveStrayFiles(absDir string) error
	PruneEmptyDirs(root string) error
	RemoveTree(absDir string) error
	Symlink(target, link string) error
}

// LocalStorage implements Store on the local filesystem. Every path must
// resolve inside one of the configured roots.
type LocalStorage struct {
	roots []string
}

func NewLocalStorage(roots ...string) (*LocalStorage, error) {
	resolved := make([]string, 0, len(roots))
	for _, root := range roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("invalid storage root '%s': %w", root, err)
		}
		if err := os.MkdirAll(abs, 0755); err != nil {
			return nil, fmt.Errorf("failed to create storage root '%s': %w", abs, err)
		}
		resolved = append(resolved, filepath.Clean(abs))
	}
	log.Printf("media.store: Initialized LocalStorage with roots %v", resolved)
	return &LocalStorage{roots: resolved}, nil
}

// checkPath rejects anything that escapes the configured roots.
func (ls *LocalStorage) checkPath(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path for '%s': %w", p, err)
	}
	abs = filepath.Clean(abs)
	for _, root := range ls.roots {
		if abs == root || strings.HasPrefix(abs, root+string(filepath.Separator)) {
			return abs, nil
		}
	}
	return "", fmt.Errorf("invalid path: access denied for '%s'", p)
}

func (ls *LocalStorage) isRoot(abs string) bool {
	for _, root := range ls.roots {
		if abs == root {
			return true
		}
	}
	return false
}

// Save writes data to absPath, creating parent directories.
func (ls *LocalStorage) Save(absPath string, data io.Reader) error {
	target, err := ls.checkPath(absPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create directory for '%s': %w", target, err)
	}

	outFile, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("failed to create destination file '%s': %w", target, err)
	}
	if _, err := io.Copy(outFile, data); err != nil {
		outFile.Close()
		os.Remove(target)
		return fmt.Errorf("failed to write data to '%s': %w", target, err)
	}
	if err := outFile.Close(); err != nil {
		return fmt.Errorf("failed to close '%s': %w", target, err)
	}
	log.Printf("media.store: Saved asset to %s", target)
	return nil
}

// Move renames src to dst, creating dst's parent. An existing dst is never
// replaced; the error wraps fs.ErrExist. It never falls back to a copy, so
// src and dst must live on the same filesystem.
func (ls *LocalStorage) Move(src, dst string) error {
	from, err := ls.checkPath(src)
	if err != nil {
		return err
	}
	to, err := ls.checkPath(dst)
	if err != nil {
		return err
	}
	if _, err := os.Lstat(to); err == nil {
		return fmt.Errorf("failed to move '%s' to '%s': %w", from, to, fs.ErrExist)
	}
	if err := os.MkdirAll(filepath.Dir(to), 0755); err != nil {
		return fmt.Errorf("failed to create directory for '%s': %w", to, err)
	}
	if err := os.Rename(from, to); err != nil {
		return fmt.Errorf("failed to move '%s' to '%s': %w", from, to, err)
	}
	return nil
}

// Remove deletes a single file. A missing file is returned as an error
// wrapping fs.ErrNotExist so callers can decide whether it matters.
func (ls *LocalStorage) Remove(absPath string) error {
	target, err := ls.checkPath(absPath)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil {
		return fmt.Errorf("failed to delete asset '%s': %w", target, err)
	}
	log.Printf("media.store: Deleted asset %s", target)
	return nil
}

func (ls *LocalStorage) EnsureDir(absDir string) error {
	target, err := ls.checkPath(absDir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(target, 0755); err != nil {
		return fmt.Errorf("failed to ensure directory '%s': %w", target, err)
	}
	return nil
}

// RemoveDirIfEmpty removes absDir when it has no entries. Roots are never removed.
func (ls *LocalStorage) RemoveDirIfEmpty(absDir string) (bool, error) {
	target, err := ls.checkPath(absDir)
	if err != nil {
		return false, err
	}
	if ls.isRoot(target) {
		return false, nil
	}
	entries, err := os.ReadDir(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read directory '%s': %w", target, err)
	}
	if len(entries) > 0 {
		return false, nil
	}
	if err := os.Remove(target); err != nil {
		return false, fmt.Errorf("failed to remove directory '%s': %w", target, err)
	}
	return true, nil
}

// RemoveStrayFiles deletes regular files and symlinks directly inside absDir.
// Subdirectories belong to child albums and are left alone.
func (ls *LocalStorage) RemoveStrayFiles(absDir string) error {
	target, err := ls.checkPath(absDir)
	if err != nil {
		return err
	}
	entries, err := os.ReadDir(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read directory '%s': %w", target, err)
	}
	var errs []error
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(target, entry.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PruneEmptyDirs removes empty directories below root, deepest first. root
// itself is kept.
func (ls *LocalStorage) PruneEmptyDirs(root string) error {
	target, err := ls.checkPath(root)
	if err != nil {
		return err
	}
	var dirs []string
	err = filepath.WalkDir(target, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if errors.Is(walkErr, fs.ErrNotExist) {
				return nil
			}
			return walkErr
		}
		if d.IsDir() && p != target {
			dirs = append(dirs, p)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk '%s': %w", target, err)
	}

	// longer paths are deeper, so children go before their parents
	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i]) > len(dirs[j]) })
	var errs []error
	for _, dir := range dirs {
		if _, err := ls.RemoveDirIfEmpty(dir); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RemoveTree deletes absDir and everything below it. Roots are refused.
func (ls *LocalStorage) RemoveTree(absDir string) error {
	target, err := ls.checkPath(absDir)
	if err != nil {
		return err
	}
	if ls.isRoot(target) {
		return fmt.Errorf("refusing to remove storage root '%s'", target)
	}
	if err := os.RemoveAll(target); err != nil {
		return fmt.Errorf("failed to remove '%s': %w", target, err)
	}
	log.Printf("media.store: Removed tree %s", target)
	return nil
}

// Symlink points link at target, replacing a stale link of the same name.
func (ls *LocalStorage) Symlink(target, link string) error {
	linkPath, err := ls.checkPath(link)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(linkPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory for link '%s': %w", linkPath, err)
	}
	if fi, err := os.Lstat(linkPath); err == nil && fi.Mode()&os.ModeSymlink != 0 {
		os.Remove(linkPath)
	}
	if err := os.Symlink(target, linkPath); err != nil {
		return fmt.Errorf("failed to link '%s' to '%s': %w", linkPath, target, err)
	}
	return nil
}
