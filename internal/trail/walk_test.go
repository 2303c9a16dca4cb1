package trailrunner

import (
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"testing"

	"go.uber.org/zap"
)

// writeTree creates a temp project rooted by a .git marker and populates it
// with the given files (slash-separated paths relative to the root).
func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}
	if err := os.Mkdir(filepath.Join(root, ".git"), 0o755); err != nil {
		t.Fatal(err)
	}
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func quietRunner(opts ...Option) *Runner {
	return NewRunner(append([]Option{WithLogger(zap.NewNop())}, opts...)...)
}

// walkRel collects a walk's output as slash paths relative to root.
func walkRel(t *testing.T, r *Runner, root, start string) []string {
	t.Helper()
	var out []string
	for path := range r.Walk(start) {
		rel, err := filepath.Rel(root, path)
		if err != nil {
			t.Fatalf("path %q outside root %q: %v", path, root, err)
		}
		out = append(out, filepath.ToSlash(rel))
	}
	return out
}

func TestWalkDeterministicSortedOrder(t *testing.T) {
	root := writeTree(t, map[string]string{
		"zeta.go":       "",
		"alpha.go":      "",
		"sub/middle.go": "",
		"sub/early.go":  "",
	})

	r := quietRunner()
	first := walkRel(t, r, root, root)
	second := walkRel(t, r, root, root)

	want := []string{"alpha.go", "sub/early.go", "sub/middle.go", "zeta.go"}
	if !slices.Equal(first, want) {
		t.Errorf("walk order = %v, want %v", first, want)
	}
	if !slices.Equal(first, second) {
		t.Errorf("repeated walk differs: %v vs %v", first, second)
	}
}

func TestWalkRespectsGitignore(t *testing.T) {
	root := writeTree(t, map[string]string{
		".gitignore":      "vendor/\n*.gen.go\n",
		"main.go":         "",
		"types.gen.go":    "",
		"vendor/lib.go":   "",
		"pkg/util.go":     "",
		"pkg/util.gen.go": "",
	})

	got := walkRel(t, quietRunner(), root, root)
	want := []string{"main.go", "pkg/util.go"}
	if !slices.Equal(got, want) {
		t.Errorf("walk = %v, want %v", got, want)
	}
}

func TestWalkNegationRescuesNestedFile(t *testing.T) {
	root := writeTree(t, map[string]string{
		".gitignore":    "build/\n!build/keep.go\n",
		"build/keep.go": "",
		"build/drop.go": "",
		"main.go":       "",
	})

	got := walkRel(t, quietRunner(), root, root)
	want := []string{"build/keep.go", "main.go"}
	if !slices.Equal(got, want) {
		t.Errorf("walk = %v, want %v", got, want)
	}
}

func TestWalkNestedIgnoreFileScopedToItsDirectory(t *testing.T) {
	root := writeTree(t, map[string]string{
		"sub/.gitignore": "secret.go\n",
		"sub/secret.go":  "",
		"sub/open.go":    "",
		"secret.go":      "",
	})

	got := walkRel(t, quietRunner(), root, root)
	want := []string{"secret.go", "sub/open.go"}
	if !slices.Equal(got, want) {
		t.Errorf("walk = %v, want %v", got, want)
	}
}

func TestWalkAncestorIgnoreAppliesWhenStartingInSubdir(t *testing.T) {
	root := writeTree(t, map[string]string{
		".gitignore":      "*.gen.go\n",
		"sub/real.go":     "",
		"sub/fake.gen.go": "",
	})

	got := walkRel(t, quietRunner(), root, filepath.Join(root, "sub"))
	want := []string{"sub/real.go"}
	if !slices.Equal(got, want) {
		t.Errorf("walk = %v, want %v", got, want)
	}
}

func TestWalkSkipsVCSDirsAndIgnoreFiles(t *testing.T) {
	root := writeTree(t, map[string]string{
		".git/hooks/hook.go": "",
		".hg/store.go":       "",
		".gitignore":         "",
		"main.go":            "",
		"notes.txt":          "",
	})

	// Include everything so only the implicit exclusions apply.
	r := quietRunner(WithInclude(regexp.MustCompile(`.+`)))
	got := walkRel(t, r, root, root)
	want := []string{"main.go", "notes.txt"}
	if !slices.Equal(got, want) {
		t.Errorf("walk = %v, want %v", got, want)
	}
}

func TestWalkSymlinkCycleTerminates(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a/file.go": "",
	})
	if err := os.Symlink(filepath.Join(root, "a"), filepath.Join(root, "a", "loop")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	got := walkRel(t, quietRunner(), root, root)
	want := []string{"a/file.go"}
	if !slices.Equal(got, want) {
		t.Errorf("walk = %v, want %v", got, want)
	}
}

func TestWalkSymlinkTargetVisitedOnce(t *testing.T) {
	root := writeTree(t, map[string]string{
		"real/file.go": "",
		"main.go":      "",
	})
	if err := os.Symlink(filepath.Join(root, "real"), filepath.Join(root, "alias")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	got := walkRel(t, quietRunner(), root, root)
	count := 0
	for _, p := range got {
		if filepath.Base(p) == "file.go" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("file.go yielded %d times, want once (walk = %v)", count, got)
	}
}

func TestWalkUnreadableDirSkipped(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("running as root; permission bits are not enforced")
	}
	root := writeTree(t, map[string]string{
		"ok/fine.go":     "",
		"locked/deep.go": "",
	})
	locked := filepath.Join(root, "locked")
	if err := os.Chmod(locked, 0o000); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chmod(locked, 0o755) })

	got := walkRel(t, quietRunner(), root, root)
	want := []string{"ok/fine.go"}
	if !slices.Equal(got, want) {
		t.Errorf("walk = %v, want %v", got, want)
	}
}

func TestWalkSingleFile(t *testing.T) {
	root := writeTree(t, map[string]string{
		"only.go":  "",
		"skip.txt": "",
	})

	r := quietRunner()
	got := walkRel(t, r, root, filepath.Join(root, "only.go"))
	if !slices.Equal(got, []string{"only.go"}) {
		t.Errorf("walk of file = %v, want [only.go]", got)
	}

	got = walkRel(t, r, root, filepath.Join(root, "skip.txt"))
	if len(got) != 0 {
		t.Errorf("walk of non-matching file = %v, want empty", got)
	}
}

func TestWalkStopsWhenConsumerBreaks(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a.go": "", "b.go": "", "c.go": "", "d.go": "",
	})

	var got []string
	for path := range quietRunner().Walk(root) {
		got = append(got, path)
		if len(got) == 2 {
			break
		}
	}
	if len(got) != 2 {
		t.Errorf("collected %d paths after break, want 2", len(got))
	}
}
