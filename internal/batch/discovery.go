package batch

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// skippableDirs contains directory names that cannot contain certificates or
// keys and are skipped during recursive walks.
var skippableDirs = map[string]bool{
	".git":         true,
	".hg":          true,
	".svn":         true,
	"node_modules": true,
	"__pycache__":  true,
	".venv":        true,
}

// Discover lists the files under rootDir whose extension (matched without the
// leading dot, case-insensitively) is in extensions. Only direct children are
// considered unless recursive is set. The result is sorted by full path.
func Discover(rootDir string, extensions []string, recursive bool) ([]string, error) {
	info, err := os.Stat(rootDir)
	if err != nil {
		return nil, &DiscoveryError{Root: rootDir, Err: err}
	}
	if !info.IsDir() {
		return nil, &DiscoveryError{Root: rootDir, Err: errors.New("not a directory")}
	}

	want := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		want[strings.ToLower(strings.TrimPrefix(ext, "."))] = true
	}
	matches := func(name string) bool {
		ext := strings.TrimPrefix(filepath.Ext(name), ".")
		return ext != "" && want[strings.ToLower(ext)]
	}

	var paths []string
	if !recursive {
		entries, err := os.ReadDir(rootDir)
		if err != nil {
			return nil, &DiscoveryError{Root: rootDir, Err: err}
		}
		for _, e := range entries {
			path := filepath.Join(rootDir, e.Name())
			if matches(e.Name()) && isRegularFile(path, e) {
				paths = append(paths, path)
			}
		}
		slices.Sort(paths)
		return paths, nil
	}

	err = filepath.WalkDir(rootDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == rootDir {
				return err
			}
			slog.Warn("skipping unreadable path", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != rootDir && skippableDirs[d.Name()] {
				return fs.SkipDir
			}
			return nil
		}
		if matches(d.Name()) && isRegularFile(path, d) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, &DiscoveryError{Root: rootDir, Err: err}
	}
	slices.Sort(paths)
	return paths, nil
}

// isRegularFile accepts regular files and symlinks that resolve to one.
func isRegularFile(path string, d fs.DirEntry) bool {
	if d.Type().IsRegular() {
		return true
	}
	if d.Type()&fs.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
