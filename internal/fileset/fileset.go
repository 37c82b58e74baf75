// Package fileset scans build output into transfer tasks and computes the
// remote files left obsolete by a deployment.
package fileset

import (
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"strings"

	"sitedeploy/internal/remote"
	"sitedeploy/internal/services/transfer"
)

// Scan walks root and returns one upload task per regular file, excluding
// paths matched by patterns. Remote paths are slash-separated and relative
// to the deployment root.
func Scan(root string, patterns []string) ([]transfer.Task, error) {
	var tasks []transfer.Task
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if Excluded(rel, patterns) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		tasks = append(tasks, transfer.Task{
			LocalPath:  p,
			RemotePath: rel,
			Size:       info.Size(),
			Overwrite:  true,
			CreateDirs: true,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan output directory %s: %w", root, err)
	}
	return tasks, nil
}

// TotalBytes sums the sizes of all tasks.
func TotalBytes(tasks []transfer.Task) int64 {
	var total int64
	for _, t := range tasks {
		total += t.Size
	}
	return total
}

// Excluded reports whether rel matches any glob pattern, either as a full
// relative path or by base name.
func Excluded(rel string, patterns []string) bool {
	if len(patterns) == 0 {
		return false
	}
	norm := filepath.ToSlash(rel)
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if matched, _ := path.Match(p, norm); matched {
			return true
		}
		if matched, _ := path.Match(p, path.Base(norm)); matched {
			return true
		}
		// Directory prefix patterns like "logs/" exclude whole subtrees.
		if strings.HasSuffix(p, "/") && strings.HasPrefix(norm, p) {
			return true
		}
	}
	return false
}

// Obsolete returns the remote paths present in entries but absent from the
// uploaded set, skipping directories and excluded patterns. These are the
// candidates for the cleanup stage.
func Obsolete(entries []remote.Entry, uploaded map[string]struct{}, patterns []string) []string {
	var obsolete []string
	for _, e := range entries {
		if e.IsDir {
			continue
		}
		rel := strings.TrimPrefix(path.Clean(e.Path), "/")
		if _, ok := uploaded[rel]; ok {
			continue
		}
		if Excluded(rel, patterns) {
			continue
		}
		obsolete = append(obsolete, rel)
	}
	return obsolete
}
