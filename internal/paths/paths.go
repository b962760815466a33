// Package paths normalizes file paths and derives the per-repository
// cache locations used by the snapshot store.
package paths

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
)

// DotDir is the per-repository state directory created at the repo root.
const DotDir = ".locus"

// Canonicalize converts an absolute path to a repo-relative canonical path:
// symlinks resolved, relative to the repo root, forward slashes.
func Canonicalize(absolutePath string, repoRoot string) (string, error) {
	resolved, err := filepath.EvalSymlinks(absolutePath)
	if err != nil {
		// If the file doesn't exist yet, use the path as-is
		if os.IsNotExist(err) {
			resolved = absolutePath
		} else {
			return "", err
		}
	}

	repoRootResolved, err := filepath.EvalSymlinks(repoRoot)
	if err != nil {
		if os.IsNotExist(err) {
			repoRootResolved = repoRoot
		} else {
			return "", err
		}
	}

	relativePath, err := filepath.Rel(repoRootResolved, resolved)
	if err != nil {
		return "", err
	}

	return filepath.ToSlash(relativePath), nil
}

// IsWithinRepo checks if a path is within the repository root.
func IsWithinRepo(path string, repoRoot string) bool {
	canonical, err := Canonicalize(path, repoRoot)
	if err != nil {
		return false
	}
	return !strings.HasPrefix(canonical, "..")
}

// Normalize converts backslashes to forward slashes in an already-relative path.
func Normalize(path string) string {
	return filepath.ToSlash(path)
}

// JoinRepo joins a repo root with a canonical forward-slash path using the
// OS-specific separator.
func JoinRepo(repoRoot string, canonicalPath string) string {
	normalized := strings.ReplaceAll(canonicalPath, "\\", "/")
	parts := strings.Split(normalized, "/")
	return filepath.Join(append([]string{repoRoot}, parts...)...)
}

// RepoKey returns the stable cache key for a repository: the first 16 hex
// characters of the SHA-256 of its absolute path. Two checkouts at different
// locations index independently.
func RepoKey(repoRoot string) string {
	abs, err := filepath.Abs(repoRoot)
	if err != nil {
		abs = repoRoot
	}
	sum := sha256.Sum256([]byte(filepath.ToSlash(abs)))
	return hex.EncodeToString(sum[:])[:16]
}

// CacheDir returns the per-repository cache directory under the user cache
// root, creating nothing. An explicit override wins when non-empty.
func CacheDir(repoRoot, override string) string {
	if override != "" {
		return filepath.Join(override, RepoKey(repoRoot))
	}
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, "locus", RepoKey(repoRoot))
}

// StateDir returns the repo-local .locus directory path.
func StateDir(repoRoot string) string {
	return filepath.Join(repoRoot, DotDir)
}
