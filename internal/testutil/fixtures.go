// Package testutil provides shared test fixtures for backend tests.
package testutil

import (
	"bytes"
	"image"
	"image/png"
	"time"
)

// TinyPNG returns an in-memory PNG byte slice with the requested dimensions.
func TinyPNG(t interface {
	Helper()
	Fatalf(string, ...any)
}, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	buf := bytes.NewBuffer(nil)
	if err := png.Encode(buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// FutureISO returns an RFC3339 UTC timestamp the given duration after now.
func FutureISO(d time.Duration) string {
	return time.Now().UTC().Add(d).Format(time.RFC3339)
}

// PastISO returns an RFC3339 UTC timestamp the given duration before now.
func PastISO(d time.Duration) string {
	return time.Now().UTC().Add(-d).Format(time.RFC3339)
}
