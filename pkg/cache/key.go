package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"

	json "github.com/goccy/go-json"
)

// Key identifies a cached API response.
type Key struct {
	// URL is the fully resolved request URL without query string.
	URL string

	// Params are the query parameters sent with the request.
	Params map[string]string
}

// Canonical returns the canonical serialization hashed by String:
// a JSON array of the URL and the parameter pairs sorted by name.
//
// Example:
//
//	["https://api/x",[["a","1"],["b","2"]]]
func (k Key) Canonical() []byte {
	names := make([]string, 0, len(k.Params))
	for name := range k.Params {
		names = append(names, name)
	}
	sort.Strings(names)

	pairs := make([][2]string, 0, len(names))
	for _, name := range names {
		pairs = append(pairs, [2]string{name, k.Params[name]})
	}

	// Strings and string pairs always marshal.
	data, _ := json.Marshal([]any{k.URL, pairs})
	return data
}

// String returns the lowercase hex SHA-256 digest of Canonical.
func (k Key) String() string {
	sum := sha256.Sum256(k.Canonical())
	return hex.EncodeToString(sum[:])
}
