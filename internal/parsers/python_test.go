//go:build cgo

package parsers

import (
	"context"
	"testing"

	"locus/internal/kg"
)

func TestPythonParse(t *testing.T) {
	source := []byte(`"""App module."""
import os
from models import base

class Animal:
    """Base animal."""

    def speak(self):
        return "..."

class Dog(Animal):
    def speak(self):
        return "woof"

def main():
    d = Dog()
    d.speak()
    helper()

def helper():
    pass
`)

	p := NewPythonParser()
	res, err := p.Parse(context.Background(), "src/app.py", source)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	byKind := map[kg.EntityKind][]*kg.Entity{}
	for _, e := range res.Entities {
		byKind[e.Kind] = append(byKind[e.Kind], e)
	}

	if len(byKind[kg.KindModule]) != 1 {
		t.Fatalf("want one module, got %d", len(byKind[kg.KindModule]))
	}
	module := byKind[kg.KindModule][0]
	if module.Name != "app" {
		t.Errorf("module name = %q, want app", module.Name)
	}
	if module.Docstring != "App module." {
		t.Errorf("module docstring = %q", module.Docstring)
	}

	if len(byKind[kg.KindClass]) != 2 {
		t.Fatalf("want 2 classes, got %d", len(byKind[kg.KindClass]))
	}
	var animal *kg.Entity
	for _, c := range byKind[kg.KindClass] {
		if c.Name == "Animal" {
			animal = c
		}
	}
	if animal == nil {
		t.Fatal("Animal class not found")
	}
	if animal.Docstring != "Base animal." {
		t.Errorf("class docstring = %q", animal.Docstring)
	}
	if animal.StartLine != 5 {
		t.Errorf("Animal starts at %d, want 5", animal.StartLine)
	}

	if len(byKind[kg.KindFunction]) != 2 {
		t.Errorf("want 2 functions, got %d", len(byKind[kg.KindFunction]))
	}
	if len(byKind[kg.KindMethod]) != 2 {
		t.Fatalf("want 2 methods, got %d", len(byKind[kg.KindMethod]))
	}
	for _, m := range byKind[kg.KindMethod] {
		parent, ok := m.Meta("parentClass")
		if !ok || (parent != "Animal" && parent != "Dog") {
			t.Errorf("method %s has parentClass %q", m.ID, parent)
		}
	}

	imports := map[string]bool{}
	for _, imp := range byKind[kg.KindImport] {
		mod, _ := imp.Meta("module")
		imports[mod] = true
	}
	if !imports["os"] || !imports["models"] {
		t.Errorf("imports = %v, want os and models", imports)
	}
}

func TestPythonInherits(t *testing.T) {
	source := []byte(`class Animal:
    pass

class Dog(Animal):
    pass

class Cat(Stranger):
    pass
`)

	p := NewPythonParser()
	res, err := p.Parse(context.Background(), "zoo.py", source)
	if err != nil {
		t.Fatal(err)
	}

	var inherits []*kg.Relationship
	for _, r := range res.Relationships {
		if r.Kind == kg.RelInherits {
			inherits = append(inherits, r)
		}
	}
	// Dog -> Animal resolves; Cat -> Stranger is not declared here and is skipped
	if len(inherits) != 1 {
		t.Fatalf("want 1 INHERITS edge, got %d", len(inherits))
	}
	animalID := kg.EntityID(kg.KindClass, "zoo.py", "Animal", 1)
	dogID := kg.EntityID(kg.KindClass, "zoo.py", "Dog", 4)
	if inherits[0].SourceID != dogID || inherits[0].TargetID != animalID {
		t.Errorf("INHERITS = %s -> %s", inherits[0].SourceID, inherits[0].TargetID)
	}
}

func TestPythonCalls(t *testing.T) {
	source := []byte(`def helper():
    pass

def main():
    helper()
    print("not declared here")
`)

	p := NewPythonParser()
	res, err := p.Parse(context.Background(), "calls.py", source)
	if err != nil {
		t.Fatal(err)
	}

	var calls []*kg.Relationship
	for _, r := range res.Relationships {
		if r.Kind == kg.RelCalls {
			calls = append(calls, r)
		}
	}
	if len(calls) != 1 {
		t.Fatalf("want 1 CALLS edge, got %d", len(calls))
	}
	if calls[0].Confidence != 0.8 {
		t.Errorf("CALLS confidence = %v, want 0.8", calls[0].Confidence)
	}
	mainID := kg.EntityID(kg.KindFunction, "calls.py", "main", 4)
	helperID := kg.EntityID(kg.KindFunction, "calls.py", "helper", 1)
	if calls[0].SourceID != mainID || calls[0].TargetID != helperID {
		t.Errorf("CALLS = %s -> %s", calls[0].SourceID, calls[0].TargetID)
	}
}

func TestPythonDecorators(t *testing.T) {
	source := []byte(`@app.route("/")
@cached
def index():
    pass
`)

	p := NewPythonParser()
	res, err := p.Parse(context.Background(), "web.py", source)
	if err != nil {
		t.Fatal(err)
	}

	var fn *kg.Entity
	for _, e := range res.Entities {
		if e.Kind == kg.KindFunction && e.Name == "index" {
			fn = e
		}
	}
	if fn == nil {
		t.Fatal("index function not found")
	}
	deco, _ := fn.Meta("decorators")
	if deco != `app.route("/"),cached` {
		t.Errorf("decorators = %q", deco)
	}
}

func TestPythonNestedFunctionIsNotMethod(t *testing.T) {
	source := []byte(`class Box:
    def outer(self):
        def inner():
            pass
        return inner
`)

	p := NewPythonParser()
	res, err := p.Parse(context.Background(), "box.py", source)
	if err != nil {
		t.Fatal(err)
	}

	for _, e := range res.Entities {
		if e.Name == "inner" && e.Kind != kg.KindFunction {
			t.Errorf("inner is %s, want plain function", e.Kind)
		}
		if e.Name == "outer" && e.Kind != kg.KindMethod {
			t.Errorf("outer is %s, want method", e.Kind)
		}
	}
}

func TestPythonSyntaxErrorStillYields(t *testing.T) {
	// tree-sitter is error-tolerant; a broken file still produces a module
	source := []byte("def broken(:\n    whatever\n")

	p := NewPythonParser()
	res, err := p.Parse(context.Background(), "bad.py", source)
	if err != nil {
		t.Fatalf("error-tolerant parse should not fail: %v", err)
	}
	if len(res.Entities) == 0 {
		t.Error("module entity should exist even for unparseable source")
	}
}
