package fileset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitedeploy/internal/remote"
)

func writeTree(t *testing.T, names map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range names {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return dir
}

// TestScan tests build output scanning
func TestScan(t *testing.T) {
	t.Run("Should produce one task per file with slash-relative remote paths", func(t *testing.T) {
		dir := writeTree(t, map[string]string{
			"index.html":   "<html/>",
			"css/site.css": "body{}",
			"js/app.js":    "void 0",
		})

		tasks, err := Scan(dir, nil)
		require.NoError(t, err)
		require.Len(t, tasks, 3)

		paths := make(map[string]int64)
		for _, task := range tasks {
			paths[task.RemotePath] = task.Size
			assert.True(t, task.Overwrite)
			assert.True(t, task.CreateDirs)
			assert.True(t, filepath.IsAbs(task.LocalPath))
		}
		assert.Equal(t, int64(7), paths["index.html"])
		assert.Contains(t, paths, "css/site.css")
		assert.Contains(t, paths, "js/app.js")
	})

	t.Run("Should honor exclude patterns", func(t *testing.T) {
		dir := writeTree(t, map[string]string{
			"index.html":     "x",
			"debug.log":      "x",
			"logs/today.txt": "x",
			"logs/old.txt":   "x",
		})

		tasks, err := Scan(dir, []string{"*.log", "logs/"})
		require.NoError(t, err)
		require.Len(t, tasks, 1)
		assert.Equal(t, "index.html", tasks[0].RemotePath)
	})

	t.Run("Should fail on a missing directory", func(t *testing.T) {
		_, err := Scan(filepath.Join(t.TempDir(), "absent"), nil)
		assert.Error(t, err)
	})
}

// TestTotalBytes tests the size aggregation
func TestTotalBytes(t *testing.T) {
	t.Run("Should sum all task sizes", func(t *testing.T) {
		dir := writeTree(t, map[string]string{
			"a.txt": "12345",
			"b.txt": "123",
		})
		tasks, err := Scan(dir, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(8), TotalBytes(tasks))
	})
}

// TestExcluded tests the glob matching rules
func TestExcluded(t *testing.T) {
	t.Run("Should match the full relative path", func(t *testing.T) {
		assert.True(t, Excluded("web.config", []string{"web.config"}))
		assert.False(t, Excluded("other.config", []string{"web.config"}))
	})

	t.Run("Should match by base name", func(t *testing.T) {
		assert.True(t, Excluded("deep/nested/file.tmp", []string{"*.tmp"}))
	})

	t.Run("Should match whole subtrees with a trailing slash", func(t *testing.T) {
		assert.True(t, Excluded("logs/2026/app.log", []string{"logs/"}))
		assert.False(t, Excluded("logs.txt", []string{"logs/"}))
	})

	t.Run("Should ignore empty patterns", func(t *testing.T) {
		assert.False(t, Excluded("anything", []string{"", "  "}))
	})
}

// TestObsolete tests remote cleanup candidate selection
func TestObsolete(t *testing.T) {
	t.Run("Should report remote files missing from the uploaded set", func(t *testing.T) {
		entries := []remote.Entry{
			{Path: "index.html"},
			{Path: "/old/page.html"},
			{Path: "assets", IsDir: true},
		}
		uploaded := map[string]struct{}{"index.html": {}}

		obsolete := Obsolete(entries, uploaded, nil)

		assert.Equal(t, []string{"old/page.html"}, obsolete)
	})

	t.Run("Should never report excluded paths", func(t *testing.T) {
		entries := []remote.Entry{
			{Path: "app_offline.htm"},
			{Path: "stale.txt"},
		}

		obsolete := Obsolete(entries, map[string]struct{}{}, []string{"app_offline.htm"})

		assert.Equal(t, []string{"stale.txt"}, obsolete)
	})

	t.Run("Should report nothing when everything was uploaded", func(t *testing.T) {
		entries := []remote.Entry{{Path: "a"}, {Path: "b"}}
		uploaded := map[string]struct{}{"a": {}, "b": {}}

		assert.Empty(t, Obsolete(entries, uploaded, nil))
	})
}
