package sym

import (
	"testing"
	"unicode/utf8"
)

func TestNameAndFromNameAreBidirectional(t *testing.T) {
	for glyph, name := range glyphToName {
		got, ok := nameToGlyph[name]
		if !ok {
			t.Errorf("glyphToName has %q → %q, but nameToGlyph has no entry for %q", glyph, name, name)
			continue
		}
		if got != glyph {
			t.Errorf("bidirectional mismatch: Name(%q) = %q, but FromName(%q) = %q", glyph, name, name, got)
		}
	}

	for name, glyph := range nameToGlyph {
		got, ok := glyphToName[glyph]
		if !ok {
			t.Errorf("nameToGlyph has %q → %q, but glyphToName has no entry for %q", name, glyph, glyph)
			continue
		}
		if got != name {
			t.Errorf("bidirectional mismatch: FromName(%q) = %q, but Name(%q) = %q", name, glyph, glyph, got)
		}
	}
}

func TestMapsHaveSameSize(t *testing.T) {
	if len(glyphToName) != len(nameToGlyph) {
		t.Errorf("map size mismatch: glyphToName has %d entries, nameToGlyph has %d",
			len(glyphToName), len(nameToGlyph))
	}
}

func TestRegistryGlyphsAreValidUnicode(t *testing.T) {
	for _, e := range registry {
		if !utf8.ValidString(e.glyph) {
			t.Errorf("glyph %q is not valid UTF-8", e.glyph)
		}
		if utf8.RuneCountInString(e.glyph) == 0 {
			t.Errorf("glyph for symbol %q is empty", e.name)
		}
	}
}

func TestNoDuplicateGlyphs(t *testing.T) {
	seen := make(map[string]string, len(registry))
	for _, e := range registry {
		if prev, ok := seen[e.glyph]; ok {
			t.Errorf("duplicate glyph %q: used by both %q and %q", e.glyph, prev, e.name)
		}
		seen[e.glyph] = e.name
	}
}

func TestNoDuplicateNames(t *testing.T) {
	seen := make(map[string]string, len(registry))
	for _, e := range registry {
		if prev, ok := seen[e.name]; ok {
			t.Errorf("duplicate name %q: maps to both %q and %q", e.name, prev, e.glyph)
		}
		seen[e.name] = e.glyph
	}
}

func TestEveryRegistryEntryHasDescription(t *testing.T) {
	for _, e := range registry {
		if e.description == "" {
			t.Errorf("registry entry %q has no description", e.name)
		}
	}
}

func TestKnownSymbols(t *testing.T) {
	if !Known(Surge) {
		t.Errorf("Known(%q) = false, want true", Surge)
	}
	if Known("x") {
		t.Error(`Known("x") = true, want false`)
	}
	if got := Name(DB); got != "db" {
		t.Errorf("Name(DB) = %q, want %q", got, "db")
	}
	if got := FromName("surge"); got != Surge {
		t.Errorf("FromName(\"surge\") = %q, want %q", got, Surge)
	}
	if got := Describe(SurgeClose); got == "" {
		t.Error("Describe(SurgeClose) returned empty description")
	}
}
