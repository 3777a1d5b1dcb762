package speech

import "sync"

// AudioCache holds synthesized audio keyed by the utterance identifier
// it was generated for. Entries are write-once: replaying the same
// utterance reuses the stored bytes instead of paying for a second
// synthesis round trip.
type AudioCache struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func NewAudioCache() *AudioCache {
	return &AudioCache{entries: make(map[string][]byte)}
}

// Get returns the cached audio for id, if any.
func (c *AudioCache) Get(id string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	audio, ok := c.entries[id]
	return audio, ok
}

// Put stores audio for id unless an entry already exists.
func (c *AudioCache) Put(id string, audio []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[id]; ok {
		return
	}
	c.entries[id] = audio
}

// All returns a snapshot of every cached entry, used when a
// conversation is exported alongside its audio.
func (c *AudioCache) All() map[string][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string][]byte, len(c.entries))
	for id, audio := range c.entries {
		out[id] = audio
	}
	return out
}

// Len reports the number of cached entries.
func (c *AudioCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
