package storage

import (
	"bytes"
	"strings"
	"testing"
)

func TestGetSerializer(t *testing.T) {
	tests := []struct {
		format string
		valid  bool
	}{
		{"json", true},
		{"", true},
		{"json+gzip", true},
		{"invalid", false},
	}

	for _, test := range tests {
		serializer, err := GetSerializer(test.format)
		if test.valid && err != nil {
			t.Fatalf("Failed to get serializer for format %s: %v", test.format, err)
		}
		if !test.valid && err == nil {
			t.Fatalf("Should return error for invalid format %s", test.format)
		}
		if test.valid && serializer == nil {
			t.Fatalf("Serializer should not be nil for format %s", test.format)
		}
	}
}

func TestSerializersRoundTrip(t *testing.T) {
	type post struct {
		ID    string   `json:"id"`
		Title string   `json:"title"`
		Tags  []string `json:"tags"`
	}
	original := post{ID: "1", Title: "Hello", Tags: []string{"go", "cache"}}

	for _, format := range []string{FormatJSON, FormatJSONGzip} {
		t.Run(format, func(t *testing.T) {
			serializer, err := GetSerializer(format)
			if err != nil {
				t.Fatalf("GetSerializer failed: %v", err)
			}

			data, err := serializer.Marshal(original)
			if err != nil {
				t.Fatalf("Failed to marshal: %v", err)
			}

			var result post
			if err := serializer.Unmarshal(data, &result); err != nil {
				t.Fatalf("Failed to unmarshal: %v", err)
			}
			if result.ID != original.ID || result.Title != original.Title || len(result.Tags) != 2 {
				t.Fatalf("Round trip mismatch: %+v", result)
			}
		})
	}
}

func TestGzipSerializerCompresses(t *testing.T) {
	payload := strings.Repeat(`{"title":"repeated"}`, 500)

	plain, _ := NewJSONSerializer().Marshal(payload)
	compressed, err := NewGzipSerializer(NewJSONSerializer()).Marshal(payload)
	if err != nil {
		t.Fatalf("Failed to marshal: %v", err)
	}
	if len(compressed) >= len(plain) {
		t.Fatalf("Expected compressed output smaller than %d bytes, got %d", len(plain), len(compressed))
	}
	if !bytes.HasPrefix(compressed, []byte{0x1f, 0x8b}) {
		t.Fatal("Expected gzip header")
	}
}

func TestGzipSerializerRejectsPlainInput(t *testing.T) {
	var out string
	if err := NewGzipSerializer(NewJSONSerializer()).Unmarshal([]byte(`"plain"`), &out); err == nil {
		t.Fatal("Expected error for non-gzip input")
	}
}
