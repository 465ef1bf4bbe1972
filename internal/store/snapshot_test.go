package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type fixture struct {
	Name  string            `json:"name"`
	Count int               `json:"count"`
	Tags  map[string]string `json:"tags"`
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	in := fixture{Name: "alpha", Count: 3, Tags: map[string]string{"k": "v"}}

	if err := Save(path, in); err != nil {
		t.Fatalf("Save: %v", err)
	}

	var out fixture
	if ok := Load(path, &out); !ok {
		t.Fatal("Load returned ok=false for existing snapshot")
	}
	if out.Name != in.Name || out.Count != in.Count || out.Tags["k"] != "v" {
		t.Errorf("round trip mismatch: got %+v, want %+v", out, in)
	}
}

func TestLoadMissingFile(t *testing.T) {
	out := fixture{Name: "untouched"}
	if ok := Load(filepath.Join(t.TempDir(), "absent.json"), &out); ok {
		t.Error("Load returned ok=true for missing file")
	}
	if out.Name != "untouched" {
		t.Errorf("Load modified target on missing file: %+v", out)
	}
}

func TestLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	var out fixture
	if ok := Load(path, &out); ok {
		t.Error("Load returned ok=true for corrupt file")
	}
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	if err := Save(path, fixture{Name: "a"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	// Overwrite to exercise rename over an existing file.
	if err := Save(path, fixture{Name: "b"}); err != nil {
		t.Fatalf("Save overwrite: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}

	var out fixture
	if !Load(path, &out) {
		t.Fatal("Load failed after overwrite")
	}
	if out.Name != "b" {
		t.Errorf("got %q after overwrite, want %q", out.Name, "b")
	}
}
