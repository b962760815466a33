package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"locus/internal/builder"
	"locus/internal/kg"
	"locus/internal/query"
)

// OutputFormat selects how responses are rendered.
type OutputFormat string

const (
	FormatJSON  OutputFormat = "json"
	FormatHuman OutputFormat = "human"
)

// FormatResponse renders a response in the requested format.
func FormatResponse(resp interface{}, format OutputFormat) (string, error) {
	switch format {
	case FormatJSON:
		return formatJSON(resp)
	case FormatHuman:
		return formatHuman(resp)
	default:
		return "", fmt.Errorf("unsupported format: %s", format)
	}
}

func formatJSON(resp interface{}) (string, error) {
	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(data), nil
}

func formatHuman(resp interface{}) (string, error) {
	switch v := resp.(type) {
	case *builder.Report:
		return formatReportHuman(v), nil
	case *query.SearchResponse:
		return formatSearchHuman(v), nil
	case *query.EntityDetails:
		return formatEntityHuman(v), nil
	case *query.FileEntitiesResponse:
		return formatFileHuman(v), nil
	case *query.RelatedResponse:
		return formatRelatedHuman(v), nil
	case *query.Status:
		return formatStatusHuman(v), nil
	case *kg.RankOutput:
		return formatRankHuman(v), nil
	case *StatsResponse:
		return formatStatsHuman(v), nil
	case *PathResponse:
		return formatPathHuman(v), nil
	default:
		// Unknown types fall back to JSON.
		return formatJSON(resp)
	}
}

// shortID truncates a build id for one-line output.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// provenanceLine is the footer carried by every query response.
func provenanceLine(p query.Provenance) string {
	cached := ""
	if p.Cached {
		cached = ", cached"
	}
	return fmt.Sprintf("%dms%s, build %s", p.QueryDurationMs, cached, shortID(p.BuildID))
}

// summaryLine renders one entity summary as "[kind] name  path:start".
func summaryLine(s kg.Summary) string {
	return fmt.Sprintf("[%s] %s  %s:%d", s.Kind, s.Name, s.Path, s.StartLine)
}

func formatReportHuman(r *builder.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Indexed %s in %dms (build %s)\n", r.RepoRoot, r.DurationMs, shortID(r.BuildID))
	fmt.Fprintf(&b, "  scanned:  %d files (%d skipped), %d directories\n",
		r.FilesScanned, r.FilesSkipped, r.Directories)
	fmt.Fprintf(&b, "  parsed:   %d files (%d uncovered, %d failed)\n",
		r.FilesParsed, r.FilesUncovered, r.ParseFailures)
	fmt.Fprintf(&b, "  graph:    %d entities, %d relationships (%d discovered, %d dropped)\n",
		r.Entities, r.Relationships, r.DiscoveredEdges, r.DroppedEdges)

	if len(r.Stages) > 0 {
		parts := make([]string, 0, len(r.Stages))
		for _, st := range r.Stages {
			parts = append(parts, fmt.Sprintf("%s %dms", st.Stage, st.DurationMs))
		}
		fmt.Fprintf(&b, "  stages:   %s\n", strings.Join(parts, ", "))
	}
	if len(r.ParserCoverage) > 0 {
		langs := make([]string, 0, len(r.ParserCoverage))
		for lang := range r.ParserCoverage {
			langs = append(langs, lang)
		}
		sort.Strings(langs)
		parts := make([]string, 0, len(langs))
		for _, lang := range langs {
			parts = append(parts, fmt.Sprintf("%s %d", lang, r.ParserCoverage[lang]))
		}
		fmt.Fprintf(&b, "  parsers:  %s\n", strings.Join(parts, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatSearchHuman(resp *query.SearchResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Results for %q (mode: %s)\n", resp.Query, resp.Mode)
	if len(resp.Results) == 0 {
		b.WriteString("  no matches\n")
	}
	for i, r := range resp.Results {
		fmt.Fprintf(&b, "  %2d. %.4f  %s\n", i+1, r.Score, summaryLine(r.Summary))
		if r.Summary.Docstring != "" {
			fmt.Fprintf(&b, "      %s\n", r.Summary.Docstring)
		}
	}
	b.WriteString("\n" + provenanceLine(resp.Provenance))
	return b.String()
}

func formatEntityHuman(d *query.EntityDetails) string {
	var b strings.Builder
	e := d.Entity
	fmt.Fprintf(&b, "[%s] %s\n", e.Kind, e.Name)
	fmt.Fprintf(&b, "  id:    %s\n", e.ID)
	fmt.Fprintf(&b, "  where: %s:%d-%d\n", e.Path, e.StartLine, e.EndLine)
	if e.Docstring != "" {
		fmt.Fprintf(&b, "  doc:   %s\n", e.Docstring)
	}
	if d.Container != nil {
		fmt.Fprintf(&b, "  container: %s\n", summaryLine(*d.Container))
	}
	if len(d.Contained) > 0 {
		fmt.Fprintf(&b, "  contains (%d):\n", len(d.Contained))
		for _, s := range d.Contained {
			fmt.Fprintf(&b, "    %s\n", summaryLine(s))
		}
	}
	writeGrouped(&b, "dependencies", d.Dependencies)
	writeGrouped(&b, "dependents", d.Dependents)
	b.WriteString("\n" + provenanceLine(d.Provenance))
	return b.String()
}

// writeGrouped renders one direction of an entity's non-containment edges,
// grouped by relationship kind in stable order.
func writeGrouped(b *strings.Builder, title string, groups map[kg.RelationshipKind][]kg.Summary) {
	if len(groups) == 0 {
		return
	}
	kinds := make([]string, 0, len(groups))
	for kind := range groups {
		kinds = append(kinds, string(kind))
	}
	sort.Strings(kinds)

	fmt.Fprintf(b, "  %s:\n", title)
	for _, kind := range kinds {
		entries := groups[kg.RelationshipKind(kind)]
		fmt.Fprintf(b, "    %s (%d):\n", kind, len(entries))
		for _, s := range entries {
			fmt.Fprintf(b, "      %s\n", summaryLine(s))
		}
	}
}

func formatFileHuman(resp *query.FileEntitiesResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%d entities)\n", resp.Path, len(resp.Entities))
	for _, s := range resp.Entities {
		fmt.Fprintf(&b, "  %4d  [%s] %s\n", s.StartLine, s.Kind, s.Name)
	}
	b.WriteString("\n" + provenanceLine(resp.Provenance))
	return b.String()
}

func formatRelatedHuman(resp *query.RelatedResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Related to %s (relation: %s)\n", resp.EntityID, resp.Relation)
	if len(resp.Results) == 0 {
		b.WriteString("  none\n")
	}
	for _, r := range resp.Results {
		fmt.Fprintf(&b, "  %s\n", summaryLine(r.Summary))
	}
	b.WriteString("\n" + provenanceLine(resp.Provenance))
	return b.String()
}

func formatStatusHuman(s *query.Status) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Repository: %s\n", s.RepoRoot)
	if s.Project != nil {
		name := s.Project.Name
		if name == "" {
			name = "(unnamed)"
		}
		fmt.Fprintf(&b, "  project:  %s (%s)", name, s.Project.Language)
		if s.Project.ManifestPath != "" {
			fmt.Fprintf(&b, ", manifest %s", s.Project.ManifestPath)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "  database: %s\n", s.DBPath)

	if s.Snapshot == nil {
		b.WriteString("Snapshot: none\n")
	} else {
		b.WriteString("Snapshot\n")
		fmt.Fprintf(&b, "  build:         %s\n", shortID(s.Snapshot.BuildID))
		fmt.Fprintf(&b, "  created:       %s\n", s.Snapshot.CreatedAt.Format("2006-01-02 15:04:05 MST"))
		fmt.Fprintf(&b, "  entities:      %d\n", s.Snapshot.Entities)
		fmt.Fprintf(&b, "  relationships: %d\n", s.Snapshot.Relationships)
	}
	fmt.Fprintf(&b, "  loaded: %v\n", s.Loaded)
	if s.Fresh {
		b.WriteString("  fresh:  yes\n")
	} else {
		fmt.Fprintf(&b, "  fresh:  no (%s)\n", s.FreshReason)
	}
	fmt.Fprintf(&b, "Cache: %d entries, %d hits, %d misses\n",
		s.Cache.Size, s.Cache.Hits, s.Cache.Misses)
	return strings.TrimRight(b.String(), "\n")
}

func formatRankHuman(out *kg.RankOutput) string {
	var b strings.Builder
	converged := "converged"
	if !out.Converged {
		converged = "not converged"
	}
	fmt.Fprintf(&b, "Centrality over %d nodes, %d edges (%d iterations, %s)\n",
		out.TotalNodes, out.TotalEdges, out.Iterations, converged)
	for i, r := range out.Results {
		fmt.Fprintf(&b, "  %2d. %.6f  [%s] %s  %s\n", i+1, r.Score, r.Kind, r.Name, r.EntityID)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatStatsHuman(resp *StatsResponse) string {
	var b strings.Builder
	s := resp.Stats
	fmt.Fprintf(&b, "Graph: %d entities, %d relationships, %d files\n",
		s.EntityCount, s.RelationshipCount, s.FileCount)

	if len(s.EntitiesByKind) > 0 {
		b.WriteString("  entities by kind:\n")
		for _, line := range kindCounts(s.EntitiesByKind) {
			fmt.Fprintf(&b, "    %s\n", line)
		}
	}
	if len(s.EdgesByKind) > 0 {
		b.WriteString("  edges by kind:\n")
		for _, line := range kindCounts(s.EdgesByKind) {
			fmt.Fprintf(&b, "    %s\n", line)
		}
	}
	if len(s.MostConnected) > 0 {
		b.WriteString("  most connected:\n")
		for _, d := range s.MostConnected {
			fmt.Fprintf(&b, "    %4d  %s  %s\n", d.Degree, d.Name, d.EntityID)
		}
	}

	if resp.Circular != nil {
		if len(resp.Circular) == 0 {
			b.WriteString("No circular dependencies.\n")
		} else {
			fmt.Fprintf(&b, "Circular dependencies (%d):\n", len(resp.Circular))
			for i, cycle := range resp.Circular {
				fmt.Fprintf(&b, "  %d. %s\n", i+1, strings.Join(cycle, " -> "))
			}
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// kindCounts renders a histogram sorted by count, then name.
func kindCounts[K ~string](m map[K]int) []string {
	type entry struct {
		name  string
		count int
	}
	entries := make([]entry, 0, len(m))
	for kind, n := range m {
		entries = append(entries, entry{string(kind), n})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].name < entries[j].name
	})
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("%s: %d", e.name, e.count))
	}
	return lines
}

func formatPathHuman(resp *PathResponse) string {
	var b strings.Builder
	if !resp.Found {
		fmt.Fprintf(&b, "No path from %s to %s within the hop limit.", resp.From, resp.To)
		return b.String()
	}
	fmt.Fprintf(&b, "Path (%d hops)\n", len(resp.Hops)-1)
	for i, s := range resp.Hops {
		prefix := "  "
		if i > 0 {
			prefix = "  -> "
		}
		fmt.Fprintf(&b, "%s%s\n", prefix, summaryLine(s))
	}
	return strings.TrimRight(b.String(), "\n")
}
