package collection

import (
	"bytes"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Zigurattt/Visual-Assistant-AI/internal/analysis"
	"github.com/Zigurattt/Visual-Assistant-AI/internal/geo"
)

// Item is a saved identification.
type Item struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Image     []byte           `json:"-"`
	Timestamp time.Time        `json:"timestamp"`
	Location  *geo.Location    `json:"location,omitempty"`
	Result    *analysis.Result `json:"result,omitempty"`
}

// Snapshots uploads captured frames to remote storage. Optional; upload
// failures are logged and do not block a save.
type Snapshots interface {
	Upload(key, contentType string, data []byte) error
}

// Store keeps the user's saved items. Same captured image saved twice is
// treated as the same item.
type Store struct {
	mu    sync.Mutex
	items []Item
	snaps Snapshots
}

func NewStore(snaps Snapshots) *Store {
	return &Store{snaps: snaps}
}

// Save adds the item and returns it with an assigned id. The captured
// frame is mirrored to snapshot storage when configured.
func (s *Store) Save(name string, image []byte, loc *geo.Location, result *analysis.Result) Item {
	item := Item{
		ID:        uuid.NewString(),
		Name:      name,
		Image:     image,
		Timestamp: time.Now(),
		Location:  loc,
		Result:    result,
	}
	s.mu.Lock()
	s.items = append(s.items, item)
	s.mu.Unlock()

	if s.snaps != nil && len(image) > 0 {
		go func() {
			if err := s.snaps.Upload(item.ID+".jpg", "image/jpeg", image); err != nil {
				log.Printf("collection: snapshot upload failed: %v", err)
			}
		}()
	}
	return item
}

// Remove deletes by id and reports whether anything was removed.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, it := range s.items {
		if it.ID == id {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return true
		}
	}
	return false
}

// Exists reports whether the same image is already saved.
func (s *Store) Exists(image []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findByImage(image) >= 0
}

// Toggle saves the item, or removes it when the same image is already in
// the collection. It reports whether the item is saved afterwards.
func (s *Store) Toggle(name string, image []byte, loc *geo.Location, result *analysis.Result) bool {
	s.mu.Lock()
	if i := s.findByImage(image); i >= 0 {
		id := s.items[i].ID
		s.mu.Unlock()
		s.Remove(id)
		return false
	}
	s.mu.Unlock()
	s.Save(name, image, loc, result)
	return true
}

// Items returns a copy of the saved items, newest first.
func (s *Store) Items() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Item, len(s.items))
	copy(out, s.items)
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func (s *Store) findByImage(image []byte) int {
	for i, it := range s.items {
		if bytes.Equal(it.Image, image) {
			return i
		}
	}
	return -1
}
