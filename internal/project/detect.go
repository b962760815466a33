// Package project detects what kind of repository is being indexed: the
// primary language from manifest files and a display name from the manifest
// contents. The result feeds status output and the build report.
package project

import (
	"encoding/json"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"locus/internal/paths"
)

// Language represents a programming language.
type Language string

const (
	LangGo         Language = "go"
	LangTypeScript Language = "typescript"
	LangJavaScript Language = "javascript"
	LangPython     Language = "python"
	LangRust       Language = "rust"
	LangJava       Language = "java"
	LangUnknown    Language = "unknown"
)

// Info stores detected project information.
type Info struct {
	Name         string    `json:"name,omitempty"`
	Language     Language  `json:"language"`
	ManifestPath string    `json:"manifestPath,omitempty"`
	DetectedAt   time.Time `json:"detectedAt"`
}

// Detect inspects a repository root and returns what it finds. Detection
// never fails: an unrecognized repository comes back as LangUnknown named
// after its directory.
func Detect(root string) *Info {
	info := &Info{
		Language:   LangUnknown,
		DetectedAt: time.Now().UTC(),
	}

	lang, manifest, ok := DetectLanguage(root)
	if ok {
		info.Language = lang
		info.ManifestPath = manifest
		info.Name = manifestName(root, manifest)
	}
	if info.Name == "" {
		abs, err := filepath.Abs(root)
		if err != nil {
			abs = root
		}
		info.Name = filepath.Base(abs)
	}
	return info
}

// DetectLanguage detects the primary language of a project from manifest
// files. Returns the language, manifest path, and whether detection
// succeeded.
func DetectLanguage(root string) (Language, string, bool) {
	// Check for manifest files in priority order
	manifests := []struct {
		path string
		lang Language
	}{
		{"go.mod", LangGo},
		{"package.json", LangTypeScript}, // Assume TS for package.json, refine below
		{"Cargo.toml", LangRust},
		{"pyproject.toml", LangPython},
		{"requirements.txt", LangPython},
		{"setup.py", LangPython},
		{"pom.xml", LangJava},
		{"build.gradle", LangJava},
	}

	for _, m := range manifests {
		fullPath := filepath.Join(root, m.path)
		if _, err := os.Stat(fullPath); err == nil {
			lang := m.lang
			// Refine TypeScript vs JavaScript check
			if m.path == "package.json" {
				lang = detectJSorTS(root)
			}
			return lang, m.path, true
		}
	}

	return LangUnknown, "", false
}

// detectJSorTS checks if a project is TypeScript or JavaScript.
func detectJSorTS(root string) Language {
	if _, err := os.Stat(filepath.Join(root, "tsconfig.json")); err == nil {
		return LangTypeScript
	}
	if hasFileWithExt(root, ".ts") {
		return LangTypeScript
	}
	return LangJavaScript
}

// hasFileWithExt checks if any file with the given extension exists in the
// root or its src directory.
func hasFileWithExt(root, ext string) bool {
	entries, err := os.ReadDir(root)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ext {
			return true
		}
	}
	srcDir := filepath.Join(root, "src")
	if entries, err := os.ReadDir(srcDir); err == nil {
		for _, e := range entries {
			if !e.IsDir() && filepath.Ext(e.Name()) == ext {
				return true
			}
		}
	}
	return false
}

// manifestName extracts the project's declared name from a manifest.
// Returns "" when the manifest carries none or cannot be read.
func manifestName(root, manifest string) string {
	fullPath := filepath.Join(root, manifest)
	switch manifest {
	case "go.mod":
		return goModuleName(fullPath)
	case "package.json":
		return packageJSONName(fullPath)
	case "pyproject.toml":
		return pyprojectName(fullPath)
	case "Cargo.toml":
		return cargoName(fullPath)
	}
	return ""
}

// goModuleName returns the last element of the module path in a go.mod.
func goModuleName(fullPath string) string {
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if modulePath, ok := strings.CutPrefix(line, "module "); ok {
			return path.Base(strings.TrimSpace(modulePath))
		}
	}
	return ""
}

func packageJSONName(fullPath string) string {
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return ""
	}
	var pkg struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return ""
	}
	return pkg.Name
}

// pyprojectName reads [project].name, falling back to the poetry section
// older projects use.
func pyprojectName(fullPath string) string {
	var doc struct {
		Project struct {
			Name string `toml:"name"`
		} `toml:"project"`
		Tool struct {
			Poetry struct {
				Name string `toml:"name"`
			} `toml:"poetry"`
		} `toml:"tool"`
	}
	if _, err := toml.DecodeFile(fullPath, &doc); err != nil {
		return ""
	}
	if doc.Project.Name != "" {
		return doc.Project.Name
	}
	return doc.Tool.Poetry.Name
}

func cargoName(fullPath string) string {
	var doc struct {
		Package struct {
			Name string `toml:"name"`
		} `toml:"package"`
	}
	if _, err := toml.DecodeFile(fullPath, &doc); err != nil {
		return ""
	}
	return doc.Package.Name
}

// SaveInfo saves detected project information to .locus/project.json.
func SaveInfo(root string, info *Info) error {
	stateDir := paths.StateDir(root)
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(stateDir, "project.json"), data, 0o644)
}

// LoadInfo loads project information from .locus/project.json.
func LoadInfo(root string) (*Info, error) {
	data, err := os.ReadFile(filepath.Join(paths.StateDir(root), "project.json"))
	if err != nil {
		return nil, err
	}

	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, err
	}

	return &info, nil
}

// DisplayName returns a human-readable name for the language.
func DisplayName(lang Language) string {
	switch lang {
	case LangGo:
		return "Go"
	case LangTypeScript:
		return "TypeScript"
	case LangJavaScript:
		return "JavaScript"
	case LangPython:
		return "Python"
	case LangRust:
		return "Rust"
	case LangJava:
		return "Java"
	default:
		return "Unknown"
	}
}
