package engine

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/kirosync/kirosync/internal/parser"
)

// DiscoverTaskFiles walks the given directories and returns every markdown
// file, in walk order. Hidden directories are skipped.
func DiscoverTaskFiles(dirs []string) ([]string, error) {
	var files []string
	for _, dir := range dirs {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() {
				if name := d.Name(); strings.HasPrefix(name, ".") && path != dir {
					return filepath.SkipDir
				}
				return nil
			}
			if strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", dir, err)
		}
	}
	return files, nil
}

// parseAll reads and parses every task file under the configured spec dirs.
// Unreadable files become per-file errors; a failed directory walk is
// returned separately because it means the task set is unknown, not empty.
func (e *Engine) parseAll() ([]parser.Task, []TaskError, error) {
	var (
		tasks []parser.Task
		errs  []TaskError
	)

	files, err := DiscoverTaskFiles(e.specDirs)
	if err != nil {
		return nil, nil, err
	}

	for _, file := range files {
		content, err := os.ReadFile(file) // #nosec G304 - discovered under configured dirs
		if err != nil {
			errs = append(errs, TaskError{FilePath: file, Err: err})
			continue
		}
		tasks = append(tasks, parser.Parse(string(content), file)...)
	}
	return tasks, errs, nil
}
