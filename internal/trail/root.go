package trailrunner

import (
	"os"
	"path/filepath"
)

// RootMarkers lists the file and directory names whose presence identifies a
// project root, in priority order. Markers are checked in this order at each
// level, so a level containing both ".git" and "go.mod" resolves to the
// ".git" entry.
var RootMarkers = []string{".git", ".hg", "go.mod"}

// ProjectRoot finds the project root by walking upward from path through its
// ancestors until one contains a root marker. The closest marked ancestor
// wins. When no ancestor carries a marker, the resolved starting directory
// itself is returned: root discovery degrades, it never fails.
func ProjectRoot(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}

	start := abs
	if info, err := os.Stat(abs); err != nil || !info.IsDir() {
		start = filepath.Dir(abs)
	}

	for dir := start; ; {
		for _, marker := range RootMarkers {
			if _, err := os.Lstat(filepath.Join(dir, marker)); err == nil {
				return dir
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return start
}
