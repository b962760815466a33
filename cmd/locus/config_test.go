package main

import (
	"strings"
	"testing"

	"locus/internal/config"
)

func TestLookupKey(t *testing.T) {
	cfg := config.DefaultConfig()
	m, err := configMap(cfg)
	if err != nil {
		t.Fatalf("configMap: %v", err)
	}

	v, ok := lookupKey(m, "search.topK")
	if !ok {
		t.Fatal("search.topK should exist")
	}
	// JSON round-trips numbers as float64.
	if v.(float64) != float64(cfg.Search.TopK) {
		t.Errorf("search.topK = %v, want %d", v, cfg.Search.TopK)
	}

	if _, ok := lookupKey(m, "search.nope"); ok {
		t.Error("unknown leaf should not resolve")
	}
	if _, ok := lookupKey(m, "nope.topK"); ok {
		t.Error("unknown section should not resolve")
	}
	if _, ok := lookupKey(m, "search.topK.deeper"); ok {
		t.Error("descending through a scalar should not resolve")
	}
}

func TestSetKey(t *testing.T) {
	m, err := configMap(config.DefaultConfig())
	if err != nil {
		t.Fatalf("configMap: %v", err)
	}

	if err := setKey(m, "watch.debounceMs", float64(750)); err != nil {
		t.Fatalf("setKey: %v", err)
	}
	v, _ := lookupKey(m, "watch.debounceMs")
	if v.(float64) != 750 {
		t.Errorf("watch.debounceMs = %v after set, want 750", v)
	}

	if err := setKey(m, "watch.bogus", 1); err == nil {
		t.Error("unknown key should be rejected")
	} else if !strings.Contains(err.Error(), "unknown config key") {
		t.Errorf("unexpected error: %v", err)
	}

	if err := setKey(m, "bogus.debounceMs", 1); err == nil {
		t.Error("unknown section should be rejected")
	} else if !strings.Contains(err.Error(), "unknown config section") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestFlattenConfig(t *testing.T) {
	m, err := configMap(config.DefaultConfig())
	if err != nil {
		t.Fatalf("configMap: %v", err)
	}

	var lines []string
	flattenConfig("", m, &lines)

	if len(lines) == 0 {
		t.Fatal("expected flattened lines")
	}
	for i := 1; i < len(lines); i++ {
		if lines[i-1] >= lines[i] {
			t.Fatalf("lines not sorted: %q before %q", lines[i-1], lines[i])
		}
	}

	var sawTopK, sawNested bool
	for _, line := range lines {
		if strings.HasPrefix(line, "search.topK = ") {
			sawTopK = true
		}
		if strings.HasPrefix(line, "search.fusion.textWeight = ") {
			sawNested = true
		}
		if strings.Contains(line, "{") {
			t.Errorf("unflattened object leaked into output: %q", line)
		}
	}
	if !sawTopK {
		t.Error("missing search.topK line")
	}
	if !sawNested {
		t.Error("missing nested search.fusion.textWeight line")
	}
}
