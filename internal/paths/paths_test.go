package paths

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCanonicalize(t *testing.T) {
	repoRoot := t.TempDir()

	subdir := filepath.Join(repoRoot, "src", "pkg")
	if err := os.MkdirAll(subdir, 0755); err != nil {
		t.Fatal(err)
	}
	file := filepath.Join(subdir, "main.py")
	if err := os.WriteFile(file, []byte("x = 1\n"), 0644); err != nil {
		t.Fatal(err)
	}

	t.Run("existing file", func(t *testing.T) {
		got, err := Canonicalize(file, repoRoot)
		if err != nil {
			t.Fatalf("Canonicalize() error = %v", err)
		}
		if got != "src/pkg/main.py" {
			t.Errorf("Canonicalize() = %q, want %q", got, "src/pkg/main.py")
		}
	})

	t.Run("missing file uses path as-is", func(t *testing.T) {
		missing := filepath.Join(repoRoot, "src", "new.py")
		got, err := Canonicalize(missing, repoRoot)
		if err != nil {
			t.Fatalf("Canonicalize() error = %v", err)
		}
		if got != "src/new.py" {
			t.Errorf("Canonicalize() = %q, want %q", got, "src/new.py")
		}
	})

	t.Run("forward slashes only", func(t *testing.T) {
		got, err := Canonicalize(file, repoRoot)
		if err != nil {
			t.Fatal(err)
		}
		if strings.Contains(got, "\\") {
			t.Errorf("Canonicalize() = %q contains backslash", got)
		}
	})
}

func TestIsWithinRepo(t *testing.T) {
	repoRoot := t.TempDir()
	inside := filepath.Join(repoRoot, "a", "b.py")
	outside := filepath.Join(filepath.Dir(repoRoot), "elsewhere.py")

	if !IsWithinRepo(inside, repoRoot) {
		t.Errorf("IsWithinRepo(%q) = false, want true", inside)
	}
	if IsWithinRepo(outside, repoRoot) {
		t.Errorf("IsWithinRepo(%q) = true, want false", outside)
	}
}

func TestJoinRepo(t *testing.T) {
	tests := []struct {
		name      string
		canonical string
		wantTail  []string
	}{
		{"simple", "src/main.py", []string{"src", "main.py"}},
		{"backslashes normalized", "src\\win.py", []string{"src", "win.py"}},
		{"single segment", "README.md", []string{"README.md"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := JoinRepo("/repo", tt.canonical)
			want := filepath.Join(append([]string{"/repo"}, tt.wantTail...)...)
			if got != want {
				t.Errorf("JoinRepo() = %q, want %q", got, want)
			}
		})
	}
}

func TestRepoKey(t *testing.T) {
	t.Run("stable", func(t *testing.T) {
		a := RepoKey("/home/user/project")
		b := RepoKey("/home/user/project")
		if a != b {
			t.Errorf("RepoKey not stable: %q vs %q", a, b)
		}
	})

	t.Run("distinct per path", func(t *testing.T) {
		a := RepoKey("/home/user/project")
		b := RepoKey("/home/user/other")
		if a == b {
			t.Error("RepoKey should differ for different paths")
		}
	})

	t.Run("length", func(t *testing.T) {
		if got := RepoKey("/x"); len(got) != 16 {
			t.Errorf("RepoKey length = %d, want 16", len(got))
		}
	})
}

func TestCacheDir(t *testing.T) {
	t.Run("override wins", func(t *testing.T) {
		got := CacheDir("/repo", "/custom/cache")
		if !strings.HasPrefix(got, filepath.FromSlash("/custom/cache")) {
			t.Errorf("CacheDir() = %q, want prefix /custom/cache", got)
		}
		if !strings.HasSuffix(got, RepoKey("/repo")) {
			t.Errorf("CacheDir() = %q, want suffix %q", got, RepoKey("/repo"))
		}
	})

	t.Run("default under user cache", func(t *testing.T) {
		got := CacheDir("/repo", "")
		if !strings.Contains(got, "locus") {
			t.Errorf("CacheDir() = %q, want to contain 'locus'", got)
		}
	})
}

func TestStateDir(t *testing.T) {
	got := StateDir("/repo")
	if got != filepath.Join("/repo", DotDir) {
		t.Errorf("StateDir() = %q, want %q", got, filepath.Join("/repo", DotDir))
	}
}
