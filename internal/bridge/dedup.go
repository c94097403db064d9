package bridge

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Dedup suppresses alert floods. A device with an active alarm re-sends the
// notification every second or so for as long as the condition holds; only
// the first sighting within the window gets through.
type Dedup struct {
	cache  *lru.Cache[string, time.Time]
	window time.Duration
}

func NewDedup(size int, window time.Duration) *Dedup {
	if size <= 0 {
		size = 4096
	}
	c, _ := lru.New[string, time.Time](size)
	return &Dedup{cache: c, window: window}
}

// IsDuplicate reports whether key was already seen within the window and
// records the sighting.
func (d *Dedup) IsDuplicate(key string) bool {
	if addedAt, ok := d.cache.Get(key); ok {
		if time.Since(addedAt) < d.window {
			return true
		}
		// Expired but still in the LRU; fall through and refresh it.
	}
	d.cache.Add(key, time.Now())
	return false
}

// BuildDedupKey identifies one alert occurrence. The timestamp is bucketed
// by the window so repeated pushes of the same ongoing alarm, each carrying
// a slightly newer timestamp, collapse onto one key.
func BuildDedupKey(serial, uniqueID string, occurredAt time.Time, window time.Duration) string {
	if window <= 0 {
		window = time.Second
	}
	ts := occurredAt.Truncate(window).Unix()
	return fmt.Sprintf("%s|%s|%d", serial, uniqueID, ts)
}
