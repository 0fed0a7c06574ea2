package service

import (
	"os"
	"path/filepath"
	"testing"
)

const validTheme = `{
	"styles": {"tilezen": [
		{"when": "kind == 'road'", "technique": "solid-line", "lineColor": "#00f"}
	]}
}`

func TestThemeServiceSaveAndGet(t *testing.T) {
	s := NewThemeService(t.TempDir())

	if err := s.Save("day", []byte(validTheme), "json"); err != nil {
		t.Fatal(err)
	}

	th, ok := s.Get("day")
	if !ok {
		t.Fatal("saved theme not found")
	}
	if _, err := th.StyleSet("tilezen"); err != nil {
		t.Fatal(err)
	}

	files := s.List()
	if len(files) != 1 || files[0].ID != "day" || files[0].Format != "json" {
		t.Fatalf("list = %+v", files)
	}
	if len(files[0].StyleSets) != 1 || files[0].StyleSets[0] != "tilezen" {
		t.Fatalf("style sets = %v", files[0].StyleSets)
	}
}

func TestThemeServiceRejectsInvalid(t *testing.T) {
	s := NewThemeService(t.TempDir())

	cases := map[string]struct {
		id   string
		data string
	}{
		"bad json":          {"a", `{broken`},
		"bad style set":     {"b", `{"styles": {"s": [{"when": "true", "technique": "sparkles"}]}}`},
		"missing when":      {"c", `{"styles": {"s": [{"technique": "fill"}]}}`},
		"path traversal id": {"../../etc/passwd", validTheme},
	}
	for name, tc := range cases {
		if err := s.Save(tc.id, []byte(tc.data), "json"); err == nil {
			t.Errorf("%s: save accepted", name)
		}
	}
	if len(s.List()) != 0 {
		t.Fatalf("rejected themes were stored: %+v", s.List())
	}
}

func TestThemeServiceRejectedUpdateKeepsPrevious(t *testing.T) {
	s := NewThemeService(t.TempDir())
	if err := s.Save("day", []byte(validTheme), "json"); err != nil {
		t.Fatal(err)
	}

	bad := `{"styles": {"tilezen": [{"when": "true", "technique": "nope"}]}}`
	if err := s.Save("day", []byte(bad), "json"); err == nil {
		t.Fatal("invalid update accepted")
	}

	if _, err := s.DecoderFor("day", "tilezen"); err != nil {
		t.Fatalf("previous version unusable after rejected update: %v", err)
	}
}

func TestThemeServiceYAML(t *testing.T) {
	s := NewThemeService(t.TempDir())

	doc := "styles:\n  base:\n    - when: \"true\"\n      technique: fill\n"
	if err := s.Save("night", []byte(doc), "yaml"); err != nil {
		t.Fatal(err)
	}
	files := s.List()
	if len(files) != 1 || files[0].Format != "yaml" {
		t.Fatalf("list = %+v", files)
	}
}

func TestThemeServiceSaveResolvesExtends(t *testing.T) {
	s := NewThemeService(t.TempDir())

	base := `{
		"styles": {"tilezen": [
			{"when": "true", "technique": "solid-line", "lineColor": ["ref", "roadColor"]}
		]},
		"definitions": {"roadColor": {"type": "color", "value": "#f00"}}
	}`
	if err := s.Save("base", []byte(base), "json"); err != nil {
		t.Fatal(err)
	}

	child := `{
		"extends": "base.json",
		"definitions": {"roadColor": {"type": "color", "value": "#800"}}
	}`
	if err := s.Save("night", []byte(child), "json"); err != nil {
		t.Fatal(err)
	}

	// Styles came from the base; the definition from the child.
	th, ok := s.Get("night")
	if !ok {
		t.Fatal("saved child theme not found")
	}
	if _, err := th.StyleSet("tilezen"); err != nil {
		t.Fatalf("extends not flattened on save: %v", err)
	}
	v, err := th.Definitions.ResolveRef("roadColor")
	if err != nil || v != "#800" {
		t.Fatalf("roadColor = %v err=%v, want #800", v, err)
	}
	if _, err := s.DecoderFor("night", "tilezen"); err != nil {
		t.Fatal(err)
	}

	// A dangling extends target fails validation instead of being deferred
	// to the next restart.
	orphan := `{"extends": "missing.json"}`
	if err := s.Save("orphan", []byte(orphan), "json"); err == nil {
		t.Fatal("extends to a missing base accepted")
	}
}

func TestThemeServiceLoadsFromDisk(t *testing.T) {
	dir := t.TempDir()
	themes := filepath.Join(dir, "themes")
	if err := os.MkdirAll(themes, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(themes, "day.json"), []byte(validTheme), 0644); err != nil {
		t.Fatal(err)
	}
	// Broken files are skipped, not fatal.
	if err := os.WriteFile(filepath.Join(themes, "broken.json"), []byte("{nope"), 0644); err != nil {
		t.Fatal(err)
	}

	s := NewThemeService(dir)
	if _, ok := s.Get("day"); !ok {
		t.Fatal("on-disk theme not loaded")
	}
	if _, ok := s.Get("broken"); ok {
		t.Fatal("broken theme loaded")
	}
}

func TestDecoderCacheInvalidation(t *testing.T) {
	s := NewThemeService(t.TempDir())
	if err := s.Save("day", []byte(validTheme), "json"); err != nil {
		t.Fatal(err)
	}

	d1, err := s.DecoderFor("day", "tilezen")
	if err != nil {
		t.Fatal(err)
	}
	d2, err := s.DecoderFor("day", "tilezen")
	if err != nil {
		t.Fatal(err)
	}
	if d1 != d2 {
		t.Fatal("repeated lookups compiled twice")
	}

	if err := s.Save("day", []byte(validTheme), "json"); err != nil {
		t.Fatal(err)
	}
	d3, err := s.DecoderFor("day", "tilezen")
	if err != nil {
		t.Fatal(err)
	}
	if d3 == d1 {
		t.Fatal("update did not invalidate the decoder cache")
	}
}

func TestEvaluatorSourceIdentifier(t *testing.T) {
	s := NewThemeService(t.TempDir())
	if err := s.Save("day", []byte(validTheme), "json"); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Decoder("day/tilezen"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Decoder("day"); err == nil {
		t.Fatal("identifier without style set accepted")
	}
	if _, err := s.Decoder("night/tilezen"); err == nil {
		t.Fatal("unknown theme accepted")
	}
	if _, err := s.Decoder("day/missing"); err == nil {
		t.Fatal("unknown style set accepted")
	}
}

func TestDeleteTheme(t *testing.T) {
	s := NewThemeService(t.TempDir())
	if err := s.Save("day", []byte(validTheme), "json"); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete("day"); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Get("day"); ok {
		t.Fatal("deleted theme still loaded")
	}
	if _, err := s.Decoder("day/tilezen"); err == nil {
		t.Fatal("deleted theme still decodable")
	}
	if err := s.Delete("day"); err == nil {
		t.Fatal("double delete succeeded")
	}
}
