package parsers

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gmtext "github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"

	"locus/internal/kg"
)

// MarkdownParser extracts headings, sections, fenced code blocks, and links
// from markdown documents via the goldmark AST. Pure Go, available in every
// build.
type MarkdownParser struct {
	md goldmark.Markdown
}

func NewMarkdownParser() *MarkdownParser {
	return &MarkdownParser{md: goldmark.New()}
}

func (p *MarkdownParser) CanParse(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return true
	}
	return false
}

func (p *MarkdownParser) SupportedKinds() []kg.EntityKind {
	return []kg.EntityKind{
		kg.KindModule, kg.KindHeading, kg.KindTextSection,
		kg.KindCodeBlock, kg.KindLink,
	}
}

type headingInfo struct {
	level     int
	text      string
	startLine int
}

func (p *MarkdownParser) Parse(ctx context.Context, path string, source []byte) (*ParseResult, error) {
	res := &ParseResult{}
	totalLines := countLines(source)

	moduleName := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	module := kg.NewEntity(kg.KindModule, path, moduleName, 1, totalLines)
	res.Entities = append(res.Entities, module)

	body, bodyOffset := splitFrontMatter(source, module)

	// goldmark reports byte offsets; the table maps them back to lines
	lines := newLineIndex(source)
	lineAt := func(offset int) int {
		return lines.lineOf(offset + bodyOffset)
	}

	doc := p.md.Parser().Parse(gmtext.NewReader(body))

	var headings []headingInfo
	curLine := 1

	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if n.Type() == ast.TypeBlock && n.Lines().Len() > 0 {
			curLine = lineAt(n.Lines().At(0).Start)
		}

		switch node := n.(type) {
		case *ast.Heading:
			text := strings.TrimSpace(inlineText(node, body))
			if text == "" {
				return ast.WalkContinue, nil
			}
			line := curLine
			h := kg.NewEntity(kg.KindHeading, path, capString(text, 100), line, line)
			h.SetMeta("level", fmt.Sprintf("%d", node.Level))
			res.Entities = append(res.Entities, h)
			headings = append(headings, headingInfo{level: node.Level, text: text, startLine: line})

		case *ast.FencedCodeBlock:
			if node.Lines().Len() == 0 {
				return ast.WalkContinue, nil
			}
			bodyStart := lineAt(node.Lines().At(0).Start)
			bodyEnd := lineAt(node.Lines().At(node.Lines().Len() - 1).Stop - 1)
			fenceLine := bodyStart - 1
			if fenceLine < 1 {
				fenceLine = 1
			}
			lang := string(node.Language(body))
			if lang == "" {
				lang = "plain"
			}
			cb := kg.NewEntity(kg.KindCodeBlock, path,
				fmt.Sprintf("code_block_%s_%d", lang, fenceLine), fenceLine, bodyEnd+1)
			cb.SetMeta("language", lang)
			cb.Snippet = capString(segmentsText(node.Lines(), body), 200)
			res.Entities = append(res.Entities, cb)

		case *ast.Link:
			dest := string(node.Destination)
			if dest == "" {
				return ast.WalkContinue, nil
			}
			link := kg.NewEntity(kg.KindLink, path, capString(dest, 200), curLine, curLine)
			link.SetMeta("href", dest)
			link.SetMeta("refType", "link")
			if text := strings.TrimSpace(inlineText(node, body)); text != "" {
				link.SetMeta("text", capString(text, 100))
			}
			res.Entities = append(res.Entities, link)

		case *ast.AutoLink:
			dest := string(node.URL(body))
			if dest == "" {
				return ast.WalkContinue, nil
			}
			link := kg.NewEntity(kg.KindLink, path, capString(dest, 200), curLine, curLine)
			link.SetMeta("href", dest)
			link.SetMeta("refType", "link")
			res.Entities = append(res.Entities, link)

		case *ast.CodeSpan:
			text := strings.TrimSpace(inlineText(node, body))
			if !looksLikeFilePath(text) {
				return ast.WalkContinue, nil
			}
			ref := kg.NewEntity(kg.KindLink, path, capString(text, 200), curLine, curLine)
			ref.SetMeta("href", text)
			ref.SetMeta("refType", "codePath")
			res.Entities = append(res.Entities, ref)
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, err
	}

	res.Entities = append(res.Entities, markdownSections(headings, totalLines, path)...)
	return res, nil
}

// markdownSections emits one text_section per heading spanning the lines up
// to the next heading of the same or a higher level.
func markdownSections(headings []headingInfo, totalLines int, path string) []*kg.Entity {
	var out []*kg.Entity
	for i, h := range headings {
		start := h.startLine + 1
		end := totalLines
		for j := i + 1; j < len(headings); j++ {
			if headings[j].level <= h.level {
				end = headings[j].startLine - 1
				break
			}
		}
		if end < start {
			continue
		}
		section := kg.NewEntity(kg.KindTextSection, path,
			"section_"+capString(h.text, 30), start, end)
		section.SetMeta("heading", capString(h.text, 100))
		out = append(out, section)
	}
	return out
}

// splitFrontMatter strips a leading YAML front-matter block, recording title
// and tags on the module entity. Returns the remaining body and its byte
// offset in the original source.
func splitFrontMatter(source []byte, module *kg.Entity) ([]byte, int) {
	if !bytes.HasPrefix(source, []byte("---\n")) && !bytes.HasPrefix(source, []byte("---\r\n")) {
		return source, 0
	}
	rest := source[bytes.IndexByte(source, '\n')+1:]
	end := bytes.Index(rest, []byte("\n---"))
	if end < 0 {
		return source, 0
	}
	fm := rest[:end]
	after := rest[end+len("\n---"):]
	if nl := bytes.IndexByte(after, '\n'); nl >= 0 {
		after = after[nl+1:]
	} else {
		after = nil
	}

	var meta map[string]interface{}
	if err := yaml.Unmarshal(fm, &meta); err == nil {
		if title, ok := meta["title"].(string); ok && title != "" {
			module.SetMeta("title", title)
		}
		switch tags := meta["tags"].(type) {
		case string:
			module.SetMeta("tags", tags)
		case []interface{}:
			var parts []string
			for _, t := range tags {
				if s, ok := t.(string); ok {
					parts = append(parts, s)
				}
			}
			if len(parts) > 0 {
				module.SetMeta("tags", strings.Join(parts, ","))
			}
		}
	}
	return after, len(source) - len(after)
}

// lineIndex maps byte offsets to 1-indexed line numbers.
type lineIndex struct {
	starts []int
}

func newLineIndex(source []byte) *lineIndex {
	starts := []int{0}
	for i, b := range source {
		if b == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &lineIndex{starts: starts}
}

func (li *lineIndex) lineOf(offset int) int {
	if offset < 0 {
		return 1
	}
	return sort.Search(len(li.starts), func(i int) bool {
		return li.starts[i] > offset
	})
}

func inlineText(n ast.Node, source []byte) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			sb.Write(t.Segment.Value(source))
		case *ast.String:
			sb.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return sb.String()
}

func segmentsText(segs *gmtext.Segments, source []byte) string {
	var sb strings.Builder
	for i := 0; i < segs.Len(); i++ {
		seg := segs.At(i)
		sb.Write(seg.Value(source))
	}
	return sb.String()
}

func capString(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// looksLikeFilePath guesses whether an inline code span names a repo file.
func looksLikeFilePath(s string) bool {
	if s == "" || len(s) > 200 {
		return false
	}
	if strings.ContainsAny(s, " \t\n") {
		return false
	}
	if !strings.Contains(s, "/") {
		return false
	}
	return strings.Contains(filepath.Base(s), ".")
}
