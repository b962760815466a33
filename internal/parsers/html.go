package parsers

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"

	"locus/internal/kg"
)

// HTMLParser tokenizes HTML with x/net/html. The tokenizer survives
// arbitrarily malformed markup, which real-world HTML requires; line numbers
// come from counting newlines in the raw token stream.
type HTMLParser struct{}

func NewHTMLParser() *HTMLParser {
	return &HTMLParser{}
}

func (p *HTMLParser) CanParse(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		return true
	}
	return false
}

func (p *HTMLParser) SupportedKinds() []kg.EntityKind {
	return []kg.EntityKind{kg.KindModule, kg.KindHTMLElement}
}

// structuralTags are always captured even without an id attribute.
var structuralTags = map[string]bool{
	"html": true, "head": true, "body": true, "header": true,
	"footer": true, "nav": true, "main": true, "section": true,
	"article": true, "aside": true, "form": true, "table": true,
}

func (p *HTMLParser) Parse(ctx context.Context, path string, source []byte) (*ParseResult, error) {
	res := &ParseResult{}

	moduleName := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	module := kg.NewEntity(kg.KindModule, path, moduleName, 1, countLines(source))
	res.Entities = append(res.Entities, module)

	z := html.NewTokenizer(bytes.NewReader(source))
	line := 1
	inTitle := false

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			// EOF or a tokenizer failure; either way return what we have
			break
		}
		raw := z.Raw()
		tokenLine := line
		line += bytes.Count(raw, []byte{'\n'})

		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			tag := tok.Data
			attrs := make(map[string]string, len(tok.Attr))
			for _, a := range tok.Attr {
				attrs[strings.ToLower(a.Key)] = a.Val
			}

			if tag == "title" && tt == html.StartTagToken {
				inTitle = true
			}

			switch tag {
			case "link":
				if strings.Contains(strings.ToLower(attrs["rel"]), "stylesheet") && attrs["href"] != "" {
					el := kg.NewEntity(kg.KindHTMLElement, path, "link", tokenLine, tokenLine)
					el.SetMeta("href", attrs["href"])
					el.SetMeta("refType", "stylesheet")
					res.Entities = append(res.Entities, el)
				}
				continue
			case "script":
				if attrs["src"] != "" {
					el := kg.NewEntity(kg.KindHTMLElement, path, "script", tokenLine, tokenLine)
					el.SetMeta("src", attrs["src"])
					el.SetMeta("refType", "script")
					res.Entities = append(res.Entities, el)
				}
				continue
			}

			id := attrs["id"]
			if !structuralTags[tag] && id == "" {
				continue
			}
			name := tag
			if id != "" {
				name = tag + "#" + id
			}
			el := kg.NewEntity(kg.KindHTMLElement, path, name, tokenLine, tokenLine)
			el.SetMeta("tag", tag)
			if id != "" {
				el.SetMeta("id", id)
			}
			if class := attrs["class"]; class != "" {
				el.SetMeta("class", capString(class, 100))
			}
			res.Entities = append(res.Entities, el)

		case html.TextToken:
			if inTitle {
				if title := strings.TrimSpace(string(raw)); title != "" {
					module.SetMeta("title", capString(title, 200))
				}
				inTitle = false
			}

		case html.EndTagToken:
			tok := z.Token()
			if tok.Data == "title" {
				inTitle = false
			}
		}
	}

	return res, nil
}
