package cache

import (
	"maps"
	"time"
)

// Metadata describes a cached payload. It is persisted next to the payload
// for TTL evaluation and diagnostics.
type Metadata struct {
	// WrittenAt is when the entry was stored.
	WrittenAt time.Time `json:"written_at"`

	// URL is the request URL the payload was fetched from.
	URL string `json:"url"`

	// Params are the query parameters of the request.
	Params map[string]string `json:"params"`
}

// Entry is a cached response body with its metadata. Entries are never
// patched; a new write replaces the previous entry wholesale.
type Entry struct {
	Data []byte   `json:"data"`
	Meta Metadata `json:"meta"`
}

// NewEntry builds an entry for key holding data, stamped with the current time.
func NewEntry(key Key, data []byte) *Entry {
	return &Entry{
		Data: data,
		Meta: Metadata{
			WrittenAt: time.Now().UTC(),
			URL:       key.URL,
			Params:    maps.Clone(key.Params),
		},
	}
}

// Age returns how long ago the entry was written.
func (e *Entry) Age() time.Duration {
	return time.Since(e.Meta.WrittenAt)
}

// IsExpired reports whether the entry is older than ttl.
// A ttl of 0 means entries never expire.
func (e *Entry) IsExpired(ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	return e.Age() > ttl
}
