package geo

import (
	"log"
	"sync"
)

// Location is a device position fix.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Cache holds the latest device-reported position. The state machine reads
// it once at the moment a structured result is produced; position failures
// are logged and never surfaced as session errors.
type Cache struct {
	mu  sync.Mutex
	loc *Location
}

func NewCache() *Cache { return &Cache{} }

// Update records a fresh fix from the device.
func (c *Cache) Update(lat, lon float64) {
	c.mu.Lock()
	c.loc = &Location{Latitude: lat, Longitude: lon}
	c.mu.Unlock()
}

// Fail notes a device geolocation failure.
func (c *Cache) Fail(reason string) {
	log.Printf("geo: device reported failure: %s", reason)
}

// Current returns the latest fix, if any.
func (c *Cache) Current() (Location, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loc == nil {
		return Location{}, false
	}
	return *c.loc, true
}
