package source

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestExpandBackfillsSameSlide(t *testing.T) {
	lines, err := ParseMatches(strings.NewReader("0 intro.png\n10 intro.png\n"))
	if err != nil {
		t.Fatal(err)
	}
	m := Expand(lines)
	for i := 0; i <= 10; i++ {
		if s, ok := m.Lookup(i); !ok || s != "intro.png" {
			t.Fatalf("frame %d = %q %v, want intro.png", i, s, ok)
		}
	}
	if _, ok := m.Lookup(11); ok {
		t.Fatal("frame 11 should be unset")
	}
}

func TestExpandLeavesGapBetweenSlides(t *testing.T) {
	m := Expand([]Match{{0, "intro.png"}, {10, "other.png"}})
	for i := 1; i < 10; i++ {
		if _, ok := m.Lookup(i); ok {
			t.Fatalf("frame %d should be unset", i)
		}
	}
	if s, _ := m.Lookup(10); s != "other.png" {
		t.Fatalf("frame 10 = %q", s)
	}
}

func TestExpandOmittedNameRepeats(t *testing.T) {
	lines, err := ParseMatches(strings.NewReader("3 a.png\n6\n\n9 b.png\n"))
	if err != nil {
		t.Fatal(err)
	}
	m := Expand(lines)
	want := SlideMatches{3: "a.png", 4: "a.png", 5: "a.png", 6: "a.png", 9: "b.png"}
	if !reflect.DeepEqual(m, want) {
		t.Fatalf("m = %v, want %v", m, want)
	}
	if _, ok := m.Lookup(0); ok {
		t.Fatal("indices before the first match must be unset")
	}
}

func TestExpandIdempotent(t *testing.T) {
	m := Expand([]Match{{0, "a"}, {4, "a"}, {6, "b"}, {8, ""}, {12, "a"}, {20, "a"}})
	again := Expand(m.Lines())
	if !reflect.DeepEqual(m, again) {
		t.Fatalf("re-expansion changed table:\n%v\n%v", m, again)
	}
}

func TestParseMatchesBadIndex(t *testing.T) {
	if _, err := ParseMatches(strings.NewReader("0 a\nten b\n")); err == nil {
		t.Fatal("expected error")
	}
}

func TestLoadMatches(t *testing.T) {
	video := filepath.Join(t.TempDir(), "lecture.avi")
	if err := os.WriteFile(MatchesPath(video), []byte("0 s1.png\n2 s1.png\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	m, err := LoadMatches(video)
	if err != nil {
		t.Fatal(err)
	}
	if len(m) != 3 {
		t.Fatalf("m = %v", m)
	}

	if _, err := LoadMatches(filepath.Join(t.TempDir(), "none.avi")); !errors.Is(err, ErrMatchesMissing) {
		t.Fatalf("missing file err = %v", err)
	}
}
