package cache

import (
	"testing"
	"time"
)

func TestEntry_IsExpired(t *testing.T) {
	tests := []struct {
		name      string
		writtenAt time.Time
		ttl       time.Duration
		want      bool
	}{
		{
			name:      "ttl zero never expires",
			writtenAt: time.Now().Add(-24 * 365 * time.Hour),
			ttl:       0,
			want:      false,
		},
		{
			name:      "fresh entry",
			writtenAt: time.Now().Add(-1 * time.Minute),
			ttl:       time.Hour,
			want:      false,
		},
		{
			name:      "expired entry",
			writtenAt: time.Now().Add(-2 * time.Hour),
			ttl:       time.Hour,
			want:      true,
		},
		{
			name:      "just expired",
			writtenAt: time.Now().Add(-61 * time.Second),
			ttl:       time.Minute,
			want:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := &Entry{Meta: Metadata{WrittenAt: tt.writtenAt}}
			if got := entry.IsExpired(tt.ttl); got != tt.want {
				t.Errorf("IsExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewEntry(t *testing.T) {
	params := map[string]string{"date": "2024-01-01"}
	key := Key{URL: "https://api.example/x", Params: params}

	entry := NewEntry(key, []byte(`{"data":[]}`))

	if entry.Meta.URL != key.URL {
		t.Errorf("URL = %v, want %v", entry.Meta.URL, key.URL)
	}
	if entry.Meta.Params["date"] != "2024-01-01" {
		t.Errorf("Params = %v, want date param", entry.Meta.Params)
	}
	if entry.Age() > time.Second {
		t.Errorf("Age() = %v, want near zero", entry.Age())
	}

	// Metadata must not alias the caller's map.
	params["date"] = "changed"
	if entry.Meta.Params["date"] != "2024-01-01" {
		t.Error("entry params changed with caller map")
	}
}
