package collection

import (
	"testing"

	"github.com/Zigurattt/Visual-Assistant-AI/internal/geo"
)

func TestToggle_AddThenRemoveSameImage(t *testing.T) {
	s := NewStore(nil)
	img := []byte{0xff, 0xd8, 0x01}

	if saved := s.Toggle("Mug", img, nil, nil); !saved {
		t.Fatalf("expected first toggle to save")
	}
	if !s.Exists(img) {
		t.Fatalf("expected item to exist")
	}
	if saved := s.Toggle("Mug", img, nil, nil); saved {
		t.Fatalf("expected second toggle to remove")
	}
	if s.Exists(img) {
		t.Fatalf("expected item removed")
	}
}

func TestSave_AssignsIDAndKeepsLocation(t *testing.T) {
	s := NewStore(nil)
	loc := &geo.Location{Latitude: 41.0, Longitude: 29.0}
	item := s.Save("Lamp", []byte{1}, loc, nil)
	if item.ID == "" {
		t.Fatalf("expected assigned id")
	}
	items := s.Items()
	if len(items) != 1 || items[0].Location == nil || items[0].Location.Latitude != 41.0 {
		t.Fatalf("location not persisted: %+v", items)
	}
}

func TestRemove_UnknownID(t *testing.T) {
	s := NewStore(nil)
	if s.Remove("nope") {
		t.Fatalf("expected false for unknown id")
	}
}

func TestItems_NewestFirst(t *testing.T) {
	s := NewStore(nil)
	s.Save("a", []byte{1}, nil, nil)
	s.Save("b", []byte{2}, nil, nil)
	items := s.Items()
	if len(items) != 2 || items[0].Name != "b" {
		t.Fatalf("expected newest first, got %+v", items)
	}
}
