package trailrunner

import (
	"errors"
	"iter"
	"os"
	"path/filepath"
	"strings"

	"github.com/karrick/godirwalk"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
)

// errStopWalk aborts the traversal when the consumer stops ranging.
var errStopWalk = errors.New("stop walk")

// Walk lazily yields every significant file under path. The project root
// and its ignore files are discovered first; excluded paths are dropped
// with last-match-wins resolution and survivors must match the include
// pattern. Files arrive in deterministic depth-first sorted order.
//
// Each call re-walks from scratch: the returned sequence keeps no cursor
// state, so ranging it twice produces the same paths twice (filesystem
// permitting). Unreadable directories and malformed ignore files are logged
// and skipped, never fatal.
func (r *Runner) Walk(path string) iter.Seq[string] {
	return func(yield func(string) bool) {
		r.walkTree(path, yield)
	}
}

func (r *Runner) walkTree(start string, yield func(string) bool) {
	abs, err := filepath.Abs(start)
	if err != nil {
		r.logger.Warn("cannot resolve walk root", zap.String("path", start), zap.Error(err))
		return
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}

	base := ProjectRoot(abs)
	ignore := newIgnoreSet(r.includePattern(), r.logger)

	info, err := os.Stat(abs)
	if err != nil {
		r.logger.Warn("cannot stat walk root", zap.String("path", abs), zap.Error(err))
		return
	}
	if !info.IsDir() {
		// Walking a single file: apply the same rules, yield at most once.
		loadAncestorIgnores(ignore, base, filepath.Dir(abs))
		if rel, ok := relParts(base, abs); ok {
			if filepath.Base(abs) != IgnoreFileName &&
				!ignore.Excluded(rel, false) &&
				ignore.Included(strings.Join(rel, "/")) {
				yield(abs)
			}
		}
		return
	}

	loadAncestorIgnores(ignore, base, abs)

	// Real paths of every directory this walk has descended into. A symlink
	// whose target is already here is a cycle (or a second route to the same
	// subtree) and is not followed again. Scoped to this walk only.
	visited := map[string]bool{abs: true}

	err = godirwalk.Walk(abs, &godirwalk.Options{
		FollowSymbolicLinks: true,
		Callback: func(path string, de *godirwalk.Dirent) error {
			if path == abs {
				return nil
			}
			rel, ok := relParts(base, path)
			if !ok {
				return nil
			}

			isDir, err := de.IsDirOrSymlinkToDir()
			if err != nil {
				r.logger.Warn("cannot classify entry", zap.String("path", path), zap.Error(err))
				return godirwalk.SkipThis
			}

			if isDir {
				if vcsMetaDirs[de.Name()] {
					return godirwalk.SkipThis
				}
				real, err := filepath.EvalSymlinks(path)
				if err != nil {
					r.logger.Warn("cannot resolve directory", zap.String("path", path), zap.Error(err))
					return godirwalk.SkipThis
				}
				if visited[real] {
					// Second route to a subtree already walked, through a
					// symlink cycle or alias. Each target is descended at
					// most once per walk.
					return godirwalk.SkipThis
				}
				visited[real] = true

				if ignore.Excluded(rel, true) {
					if !ignore.HasNegation() {
						return godirwalk.SkipThis
					}
					// A negation may rescue something beneath; descend and
					// filter file by file instead of pruning.
					return nil
				}
				ignore.AddDir(rel, path)
				return nil
			}

			if de.Name() == IgnoreFileName {
				return nil
			}
			if ignore.Excluded(rel, false) {
				return nil
			}
			if !ignore.Included(strings.Join(rel, "/")) {
				return nil
			}
			if !yield(path) {
				return errStopWalk
			}
			return nil
		},
		ErrorCallback: func(path string, err error) godirwalk.ErrorAction {
			if errors.Is(err, errStopWalk) {
				return godirwalk.Halt
			}
			r.logger.Warn("skipping unreadable path", zap.String("path", path), zap.Error(err))
			return godirwalk.SkipNode
		},
	})
	if err != nil && !errors.Is(err, errStopWalk) {
		r.logger.Warn("walk ended early", zap.String("root", abs), zap.Error(err))
	}
}

// loadAncestorIgnores loads ignore files from the project root down to the
// walk start, so rules declared above the start still apply to everything
// beneath it.
func loadAncestorIgnores(ig *IgnoreSet, base, start string) {
	ig.AddDir(nil, base)
	rel, err := filepath.Rel(base, start)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return
	}
	raw := strings.Split(filepath.ToSlash(rel), "/")
	domain := make([]string, len(raw))
	for i, p := range raw {
		domain[i] = norm.NFC.String(p)
	}
	dir := base
	for i, part := range raw {
		dir = filepath.Join(dir, part)
		ig.AddDir(domain[:i+1], dir)
	}
}

// relParts returns path's components relative to base, NFC-normalized the
// same way patterns are at parse time.
func relParts(base, path string) ([]string, bool) {
	rel, err := filepath.Rel(base, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return nil, false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	for i, p := range parts {
		parts[i] = norm.NFC.String(p)
	}
	return parts, true
}
