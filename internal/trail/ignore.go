package trailrunner

import (
	"bufio"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
)

// IgnoreFileName is the per-directory pattern file read during a walk.
const IgnoreFileName = ".gitignore"

// IncludePattern selects which files a walk yields after exclusion rules
// have run. It is matched against the slash-separated path relative to the
// project root. Override it (or use WithInclude / config) to target other
// suffixes.
var IncludePattern = regexp.MustCompile(`.+\.go$`)

// vcsMetaDirs are never descended into, matching git's own behavior of not
// walking version-control metadata.
var vcsMetaDirs = map[string]bool{
	".git": true,
	".hg":  true,
	".svn": true,
}

// IgnoreSet is the ordered collection of gitignore patterns discovered for a
// single walk. Patterns from deeper directories are appended after their
// ancestors', so the matcher's reverse scan gives last-match-wins semantics:
// a later negation reverses an earlier exclusion.
//
// An IgnoreSet belongs to one walk invocation and is rebuilt per walk root.
type IgnoreSet struct {
	patterns    []gitignore.Pattern
	matcher     gitignore.Matcher
	hasNegation bool
	loaded      map[string]bool
	include     *regexp.Regexp
	logger      *zap.Logger
}

func newIgnoreSet(include *regexp.Regexp, logger *zap.Logger) *IgnoreSet {
	if include == nil {
		include = IncludePattern
	}
	return &IgnoreSet{
		matcher: gitignore.NewMatcher(nil),
		loaded:  map[string]bool{},
		include: include,
		logger:  logger,
	}
}

// AddDir parses the ignore file in dir, if any, anchoring its patterns to
// domain (the dir's path components relative to the walk base). Calling it
// twice for the same directory is a no-op. A file that cannot be read is
// skipped with a warning; the walk is never aborted over a bad ignore file.
func (s *IgnoreSet) AddDir(domain []string, dir string) {
	if s.loaded[dir] {
		return
	}
	s.loaded[dir] = true

	f, err := os.Open(filepath.Join(dir, IgnoreFileName))
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("skipping unreadable ignore file",
				zap.String("dir", dir), zap.Error(err))
		}
		return
	}
	defer f.Close()

	// The domain slice outlives this call inside compiled patterns; copy it
	// so callers may reuse their backing array.
	domain = append([]string(nil), domain...)

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = norm.NFC.String(line)
		if strings.HasPrefix(line, "!") {
			s.hasNegation = true
		}
		s.patterns = append(s.patterns, gitignore.ParsePattern(line, domain))
	}
	if err := scanner.Err(); err != nil {
		s.logger.Warn("ignore file truncated mid-read",
			zap.String("dir", dir), zap.Error(err))
	}
	s.matcher = gitignore.NewMatcher(s.patterns)
}

// Excluded reports whether the path (as components relative to the walk
// base) is excluded after last-match-wins resolution.
func (s *IgnoreSet) Excluded(path []string, isDir bool) bool {
	return s.matcher.Match(path, isDir)
}

// Included reports whether a yielded file's relative slash path matches the
// include pattern.
func (s *IgnoreSet) Included(relPath string) bool {
	return s.include.MatchString(relPath)
}

// Gitignore parses the ignore file in dir, if any, into a standalone
// IgnoreSet anchored at dir. Useful for testing rules outside a walk; a walk
// builds its own set covering every directory level.
func Gitignore(dir string) *IgnoreSet {
	s := newIgnoreSet(nil, zap.NewNop())
	s.AddDir(nil, dir)
	return s
}

// HasNegation reports whether any parsed pattern was a negation. While a
// negation is present, excluded directories must still be descended so a
// later pattern can rescue a nested path; without one they are pruned
// outright, which bounds traversal cost.
func (s *IgnoreSet) HasNegation() bool {
	return s.hasNegation
}
