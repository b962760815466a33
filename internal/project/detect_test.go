package project

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// Helper to create a temp directory with files and their contents.
func setupTestDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for f, content := range files {
		path := filepath.Join(dir, f)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("failed to create dir for %s: %v", f, err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("failed to create file %s: %v", f, err)
		}
	}
	return dir
}

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		name     string
		files    map[string]string
		wantLang Language
		wantOk   bool
	}{
		{
			name:     "Go project",
			files:    map[string]string{"go.mod": "module example.com/app\n", "main.go": ""},
			wantLang: LangGo,
			wantOk:   true,
		},
		{
			name:     "TypeScript project",
			files:    map[string]string{"package.json": "{}", "tsconfig.json": "{}", "src/index.ts": ""},
			wantLang: LangTypeScript,
			wantOk:   true,
		},
		{
			name:     "TypeScript project without tsconfig",
			files:    map[string]string{"package.json": "{}", "src/index.ts": ""},
			wantLang: LangTypeScript,
			wantOk:   true,
		},
		{
			name:     "JavaScript project",
			files:    map[string]string{"package.json": "{}", "src/index.js": ""},
			wantLang: LangJavaScript,
			wantOk:   true,
		},
		{
			name:     "Python project with pyproject.toml",
			files:    map[string]string{"pyproject.toml": "", "src/main.py": ""},
			wantLang: LangPython,
			wantOk:   true,
		},
		{
			name:     "Python project with requirements.txt",
			files:    map[string]string{"requirements.txt": "", "app.py": ""},
			wantLang: LangPython,
			wantOk:   true,
		},
		{
			name:     "Rust project",
			files:    map[string]string{"Cargo.toml": "", "src/main.rs": ""},
			wantLang: LangRust,
			wantOk:   true,
		},
		{
			name:     "Java Maven project",
			files:    map[string]string{"pom.xml": "", "src/main/java/App.java": ""},
			wantLang: LangJava,
			wantOk:   true,
		},
		{
			name:     "Unknown project",
			files:    map[string]string{"README.md": "", "random.txt": ""},
			wantLang: LangUnknown,
			wantOk:   false,
		},
		{
			name:     "Empty directory",
			files:    map[string]string{},
			wantLang: LangUnknown,
			wantOk:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := setupTestDir(t, tt.files)
			lang, _, ok := DetectLanguage(dir)
			if lang != tt.wantLang {
				t.Errorf("language = %s, want %s", lang, tt.wantLang)
			}
			if ok != tt.wantOk {
				t.Errorf("ok = %v, want %v", ok, tt.wantOk)
			}
		})
	}
}

func TestDetectLanguagePriority(t *testing.T) {
	// go.mod outranks package.json when both are present
	dir := setupTestDir(t, map[string]string{
		"go.mod":       "module example.com/tool\n",
		"package.json": `{"name": "tool-frontend"}`,
	})
	lang, manifest, ok := DetectLanguage(dir)
	if !ok || lang != LangGo || manifest != "go.mod" {
		t.Errorf("got (%s, %s, %v), want (go, go.mod, true)", lang, manifest, ok)
	}
}

func TestDetectName(t *testing.T) {
	tests := []struct {
		name     string
		files    map[string]string
		wantName string
	}{
		{
			name:     "go.mod module path",
			files:    map[string]string{"go.mod": "module github.com/acme/widget\n\ngo 1.22\n"},
			wantName: "widget",
		},
		{
			name:     "package.json name",
			files:    map[string]string{"package.json": `{"name": "my-app", "version": "1.0.0"}`},
			wantName: "my-app",
		},
		{
			name: "pyproject project table",
			files: map[string]string{
				"pyproject.toml": "[project]\nname = \"dataflow\"\nversion = \"0.3.1\"\n",
			},
			wantName: "dataflow",
		},
		{
			name: "pyproject poetry fallback",
			files: map[string]string{
				"pyproject.toml": "[tool.poetry]\nname = \"legacy-svc\"\n",
			},
			wantName: "legacy-svc",
		},
		{
			name: "Cargo package table",
			files: map[string]string{
				"Cargo.toml": "[package]\nname = \"rustybits\"\nedition = \"2021\"\n",
			},
			wantName: "rustybits",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := setupTestDir(t, tt.files)
			info := Detect(dir)
			if info.Name != tt.wantName {
				t.Errorf("name = %q, want %q", info.Name, tt.wantName)
			}
		})
	}
}

func TestDetectFallsBackToDirectoryName(t *testing.T) {
	dir := setupTestDir(t, map[string]string{"notes.txt": "hi"})
	info := Detect(dir)
	if info.Language != LangUnknown {
		t.Errorf("language = %s, want unknown", info.Language)
	}
	if info.Name != filepath.Base(dir) {
		t.Errorf("name = %q, want directory name %q", info.Name, filepath.Base(dir))
	}
	if info.DetectedAt.IsZero() {
		t.Error("DetectedAt should be stamped")
	}
}

func TestDetectUnreadableManifestName(t *testing.T) {
	// A manifest that exists but declares no name falls back to the dir name.
	dir := setupTestDir(t, map[string]string{"pyproject.toml": "[build-system]\nrequires = []\n"})
	info := Detect(dir)
	if info.Language != LangPython {
		t.Errorf("language = %s, want python", info.Language)
	}
	if info.Name != filepath.Base(dir) {
		t.Errorf("name = %q, want directory name", info.Name)
	}
}

func TestSaveAndLoadInfo(t *testing.T) {
	dir := t.TempDir()

	original := &Info{
		Name:         "widget",
		Language:     LangGo,
		ManifestPath: "go.mod",
		DetectedAt:   time.Now().UTC().Truncate(time.Second),
	}
	if err := SaveInfo(dir, original); err != nil {
		t.Fatalf("SaveInfo: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, ".locus", "project.json")); err != nil {
		t.Fatalf("project.json missing: %v", err)
	}

	loaded, err := LoadInfo(dir)
	if err != nil {
		t.Fatalf("LoadInfo: %v", err)
	}
	if loaded.Name != original.Name || loaded.Language != original.Language {
		t.Errorf("loaded = %+v, want %+v", loaded, original)
	}
	if !loaded.DetectedAt.Equal(original.DetectedAt) {
		t.Errorf("DetectedAt = %v, want %v", loaded.DetectedAt, original.DetectedAt)
	}
}

func TestLoadInfoMissing(t *testing.T) {
	if _, err := LoadInfo(t.TempDir()); err == nil {
		t.Error("LoadInfo without a saved file should error")
	}
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		lang Language
		want string
	}{
		{LangGo, "Go"},
		{LangTypeScript, "TypeScript"},
		{LangJavaScript, "JavaScript"},
		{LangPython, "Python"},
		{LangRust, "Rust"},
		{LangJava, "Java"},
		{LangUnknown, "Unknown"},
		{Language("weird"), "Unknown"},
	}
	for _, tt := range tests {
		if got := DisplayName(tt.lang); got != tt.want {
			t.Errorf("DisplayName(%s) = %q, want %q", tt.lang, got, tt.want)
		}
	}
}
