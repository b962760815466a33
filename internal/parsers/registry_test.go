package parsers

import (
	"context"
	"errors"
	"strings"
	"testing"

	"locus/internal/kg"
	"locus/internal/logging"
)

type fakeParser struct {
	canParse bool
	result   *ParseResult
	err      error
	panics   bool
}

func (f *fakeParser) CanParse(path string) bool { return f.canParse }

func (f *fakeParser) Parse(ctx context.Context, path string, source []byte) (*ParseResult, error) {
	if f.panics {
		panic("boom")
	}
	return f.result, f.err
}

func (f *fakeParser) SupportedKinds() []kg.EntityKind {
	return []kg.EntityKind{kg.KindFile}
}

func TestRegistryParserFor(t *testing.T) {
	reg := NewRegistry(logging.Nop())
	md := NewMarkdownParser()
	reg.Register("markdown", md, ".md", ".markdown")

	if got := reg.ParserFor("docs/readme.md"); got != md {
		t.Error("extension match should resolve the markdown parser")
	}
	if got := reg.ParserFor("DOCS/README.MD"); got != md {
		t.Error("extension match should be case-insensitive")
	}
	if got := reg.ParserFor("main.rs"); got != nil {
		t.Error("unclaimed extension should resolve to nil")
	}
}

func TestRegistryCanParseProbe(t *testing.T) {
	reg := NewRegistry(logging.Nop())
	probe := &fakeParser{canParse: true, result: &ParseResult{}}
	reg.Register("probe", probe) // claims no extension

	if got := reg.ParserFor("strange.xyz"); got != probe {
		t.Error("CanParse probe should find parsers without extension claims")
	}
}

func TestRegistryLastRegisteredWins(t *testing.T) {
	var buf strings.Builder
	log := logging.NewLogger(logging.Config{Level: logging.WarnLevel, Format: logging.JSONFormat, Output: &buf})

	reg := NewRegistry(log)
	first := &fakeParser{}
	second := &fakeParser{}
	reg.Register("first", first, ".q")
	reg.Register("second", second, ".q")

	if got := reg.ParserFor("file.q"); got != Parser(second) {
		t.Error("later registration should own the extension")
	}
	if !strings.Contains(buf.String(), "last parser wins") {
		t.Error("collision should log a warning")
	}
}

func TestRegistryParseSwallowsErrors(t *testing.T) {
	reg := NewRegistry(logging.Nop())
	reg.Register("bad", &fakeParser{err: errors.New("syntax error")}, ".bad")

	res := reg.Parse(context.Background(), "x.bad", []byte("content"))
	if res == nil {
		t.Fatal("Parse must never return nil")
	}
	if len(res.Entities) != 0 {
		t.Error("failed parse should yield an empty result")
	}
}

func TestRegistryParseRecoversPanic(t *testing.T) {
	reg := NewRegistry(logging.Nop())
	reg.Register("panicky", &fakeParser{panics: true}, ".pan")

	res := reg.Parse(context.Background(), "x.pan", []byte("content"))
	if res == nil || len(res.Entities) != 0 {
		t.Error("a panicking parser should yield an empty result, not crash the scan")
	}
}

func TestRegistryParseUnknownFile(t *testing.T) {
	reg := NewRegistry(logging.Nop())
	res := reg.Parse(context.Background(), "binary.png", []byte{0x89, 0x50})
	if res == nil || len(res.Entities) != 0 {
		t.Error("unknown file types should yield an empty result")
	}
}

func TestRegistryValidationDropsBadEntities(t *testing.T) {
	good := kg.NewEntity(kg.KindFunction, "a.bad", "ok", 1, 2)
	bad := kg.NewEntity(kg.KindFunction, "a.bad", "", 1, 2)
	rel := kg.NewRelationship(kg.RelCalls, good.ID, bad.ID)

	reg := NewRegistry(logging.Nop())
	reg.Register("fixture", &fakeParser{result: &ParseResult{
		Entities:      []*kg.Entity{good, bad},
		Relationships: []*kg.Relationship{rel},
	}}, ".bad")

	res := reg.Parse(context.Background(), "a.bad", nil)
	if len(res.Entities) != 1 {
		t.Fatalf("expected 1 surviving entity, got %d", len(res.Entities))
	}
	if res.Entities[0].Name != "ok" {
		t.Error("wrong entity survived validation")
	}
	if len(res.Relationships) != 0 {
		t.Error("relationships pointing at dropped entities must be dropped too")
	}
}

func TestRegistrySupportedExtensions(t *testing.T) {
	reg := NewRegistry(logging.Nop())
	RegisterDefaults(reg)

	exts := reg.SupportedExtensions()
	if len(exts) == 0 {
		t.Fatal("no extensions registered")
	}
	for i := 1; i < len(exts); i++ {
		if exts[i-1] >= exts[i] {
			t.Fatal("extensions should be sorted")
		}
	}

	found := map[string]bool{}
	for _, e := range exts {
		found[e] = true
	}
	if !found[".md"] || !found[".html"] {
		t.Error("markup extensions should be registered in every build")
	}
	if CodeAvailable() && (!found[".py"] || !found[".go"]) {
		t.Error("code extensions should be registered when cgo is available")
	}
}

func TestCountLines(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   int
	}{
		{"empty", "", 1},
		{"one line no newline", "hello", 1},
		{"one line with newline", "hello\n", 1},
		{"three lines", "a\nb\nc", 3},
		{"trailing newline", "a\nb\nc\n", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := countLines([]byte(tt.source)); got != tt.want {
				t.Errorf("countLines(%q) = %d, want %d", tt.source, got, tt.want)
			}
		})
	}
}
