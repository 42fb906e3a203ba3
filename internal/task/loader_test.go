package task

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const loanYAML = `
type: loan
title: Personal loan
steps:
  - name: amount
    prompt: How much?
    kind: amount
    min: 500
    max: 25000
    required: true
  - name: purpose
    prompt: What for?
    required: true
`

func TestParseDefinitionYAML(t *testing.T) {
	def, err := ParseDefinitionYAML([]byte(loanYAML))
	if err != nil {
		t.Fatalf("ParseDefinitionYAML: %v", err)
	}
	if def.Type != TypeLoan || def.Title != "Personal loan" {
		t.Fatalf("def = %+v", def)
	}
	if len(def.Steps) != 2 {
		t.Fatalf("steps = %v", def.Steps)
	}
	if def.Steps[0].Max != 25000 {
		t.Fatalf("max = %v", def.Steps[0].Max)
	}
	// Kind defaults to text when omitted.
	if def.Steps[1].Kind != KindText {
		t.Fatalf("kind = %q", def.Steps[1].Kind)
	}
}

func TestParseDefinitionYAMLRejectsGarbage(t *testing.T) {
	if _, err := ParseDefinitionYAML([]byte("   ")); err == nil {
		t.Fatal("empty payload accepted")
	}
	if _, err := ParseDefinitionYAML([]byte("{{nope")); err == nil {
		t.Fatal("malformed yaml accepted")
	}
	if _, err := ParseDefinitionYAML([]byte("title: no type here")); err == nil {
		t.Fatal("definition without a type accepted")
	}
}

func TestLoadDefinitionReader(t *testing.T) {
	def, err := LoadDefinitionReader(strings.NewReader(loanYAML))
	if err != nil {
		t.Fatalf("LoadDefinitionReader: %v", err)
	}
	if def.Type != TypeLoan {
		t.Fatalf("type = %q", def.Type)
	}
}

func TestLoadDirOverridesBuiltins(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "loan.yaml"), []byte(loanYAML), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	lib := DefaultLibrary()
	if err := lib.LoadDir(dir); err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	def, ok := lib.Get(TypeLoan)
	if !ok {
		t.Fatal("loan definition missing after override")
	}
	if def.Title != "Personal loan" || len(def.Steps) != 2 {
		t.Fatalf("override not applied: %+v", def)
	}
	// Untouched builtins survive.
	if _, ok := lib.Get(TypeCardBlock); !ok {
		t.Fatal("card block definition lost")
	}
}

func TestLoadDirMissingDirectoryIsFine(t *testing.T) {
	lib := DefaultLibrary()
	if err := lib.LoadDir(filepath.Join(t.TempDir(), "nope")); err != nil {
		t.Fatalf("LoadDir on missing dir: %v", err)
	}
}

func TestLoadDirPropagatesBrokenFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("steps: {"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	lib := DefaultLibrary()
	if err := lib.LoadDir(dir); err == nil {
		t.Fatal("broken definition file accepted")
	}
}
