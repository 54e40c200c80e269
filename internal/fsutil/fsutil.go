// Package fsutil provides the filesystem operations the bridge relies
// on: atomic writes and policy-filtered tree mirroring.
package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	cp "github.com/otiai10/copy"

	"github.com/sealbridge/sealrepos/internal/policy"
)

// AtomicWrite writes content to path via a temp file and rename, so
// readers never observe a partially written file.
func AtomicWrite(path string, content []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming into place: %w", err)
	}
	return nil
}

// MirrorTree rebuilds dst's admitted file set from src: every path the
// matcher admits is copied wholesale, and admitted files that no longer
// exist at src are removed from dst so deletions propagate. Version-
// control metadata (.git) is never mirrored. Paths the matcher rejects
// are left untouched on both sides.
//
// This is deliberately not a content-aware merge: the caller owns the
// ordering of mirror directions and the conflict consequences.
func MirrorTree(src, dst string, matcher *policy.Matcher) error {
	opts := cp.Options{
		OnSymlink: func(string) cp.SymlinkAction { return cp.Skip },
		Skip: func(info os.FileInfo, srcPath, dstPath string) (bool, error) {
			rel, err := filepath.Rel(src, srcPath)
			if err != nil {
				return true, err
			}
			rel = filepath.ToSlash(rel)
			if rel == "." {
				return false, nil
			}
			if rel == ".git" || strings.HasPrefix(rel, ".git/") {
				return true, nil
			}
			// Directories are only pruned when excluded outright;
			// include filtering applies to files so that a closed
			// policy can still admit files in nested directories.
			if info.IsDir() {
				return !matcher.MatchPrefix(rel), nil
			}
			return !matcher.Match(rel), nil
		},
	}

	if err := cp.Copy(src, dst, opts); err != nil {
		return fmt.Errorf("mirroring %s -> %s: %w", src, dst, err)
	}
	if err := pruneRemoved(src, dst, matcher); err != nil {
		return fmt.Errorf("pruning %s: %w", dst, err)
	}
	return nil
}

// pruneRemoved deletes admitted files under dst that src no longer
// carries. Rejected paths and .git stay untouched, so the destination's
// out-of-policy content survives the mirror.
func pruneRemoved(src, dst string, matcher *policy.Matcher) error {
	return filepath.WalkDir(dst, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dst, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}
		if d.IsDir() {
			if rel == ".git" || !matcher.MatchPrefix(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !matcher.Match(rel) {
			return nil
		}
		if _, err := os.Stat(filepath.Join(src, filepath.FromSlash(rel))); os.IsNotExist(err) {
			return os.Remove(p)
		}
		return nil
	})
}
