package source

import (
	"errors"
	"testing"
)

func TestParseDescriptor(t *testing.T) {
	tests := []struct {
		in   string
		want Descriptor
	}{
		{"0:a.avi", Descriptor{Slot: 0, Path: "a.avi"}},
		{"2:cam/b.mp4:-3", Descriptor{Slot: 2, Path: "cam/b.mp4", Offset: -3}},
		{"1:b.avi:15", Descriptor{Slot: 1, Path: "b.avi", Offset: 15}},
		{"1:b.avi:C", Descriptor{Slot: 1, Path: "b.avi", Continuation: true}},
		{"1:b.avi:c", Descriptor{Slot: 1, Path: "b.avi", Continuation: true}},
	}
	for _, tt := range tests {
		got, err := ParseDescriptor(tt.in)
		if err != nil {
			t.Errorf("ParseDescriptor(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDescriptor(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestParseDescriptorInvalid(t *testing.T) {
	for _, in := range []string{
		"a.avi",
		"x:a.avi",
		"-1:a.avi",
		"0:",
		"0:a.avi:soon",
		"0:a:b:c",
	} {
		if _, err := ParseDescriptor(in); !errors.Is(err, ErrInvalidDescriptor) {
			t.Errorf("ParseDescriptor(%q) err = %v, want ErrInvalidDescriptor", in, err)
		}
	}
}

func TestParseDescriptorsContinuation(t *testing.T) {
	descs, err := ParseDescriptors([]string{"0:a.avi", "0:b.avi:C", "1:c.avi"})
	if err != nil {
		t.Fatal(err)
	}
	if len(descs) != 3 || !descs[1].Continuation {
		t.Fatalf("descs = %+v", descs)
	}

	if _, err := ParseDescriptors([]string{"0:a.avi:C"}); !errors.Is(err, ErrInvalidContinuation) {
		t.Errorf("first continuation err = %v", err)
	}
	if _, err := ParseDescriptors([]string{"0:a.avi", "1:b.avi:C"}); !errors.Is(err, ErrInvalidContinuation) {
		t.Errorf("cross-slot continuation err = %v", err)
	}
	if _, err := ParseDescriptors([]string{"0:a.avi", "zz"}); !errors.Is(err, ErrInvalidDescriptor) {
		t.Errorf("bad second descriptor err = %v", err)
	}
}
