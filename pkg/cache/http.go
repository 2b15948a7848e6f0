package cache

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
)

// HeaderCache is set on responses synthesized from a cache entry.
const HeaderCache = "X-Cache"

// ResponseToEntry reads the body of resp into a new entry for key.
// The response body is restored so the caller can still consume it.
func ResponseToEntry(resp *http.Response, key Key) (*Entry, error) {
	if resp == nil {
		return nil, fmt.Errorf("response cannot be nil")
	}
	if resp.Body == nil {
		return NewEntry(key, nil), nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	resp.Body.Close()

	// Restore body for caller
	resp.Body = io.NopCloser(bytes.NewReader(body))

	return NewEntry(key, body), nil
}

// EntryToResponse synthesizes a 200 response carrying the cached payload.
func EntryToResponse(entry *Entry) *http.Response {
	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("Content-Length", strconv.Itoa(len(entry.Data)))
	header.Set(HeaderCache, "HIT")

	return &http.Response{
		Status:        "200 OK",
		StatusCode:    http.StatusOK,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(entry.Data)),
		ContentLength: int64(len(entry.Data)),
	}
}

// IsCached reports whether resp was served from the cache.
func IsCached(resp *http.Response) bool {
	return resp != nil && resp.Header.Get(HeaderCache) == "HIT"
}
