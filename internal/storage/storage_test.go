package storage

import (
	"context"
	"regexp"
	"strings"
	"testing"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"forum", "forum"},
		{"my folder/../x", "my_folder____x"},
		{"ok-name_1", "ok-name_1"},
	}
	for _, tt := range tests {
		if got := Sanitize(tt.in); got != tt.want {
			t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewKey(t *testing.T) {
	key := NewKey("forum", "media", "../../etc/My Pic.PNG")

	re := regexp.MustCompile(`^forum/media/[0-9a-f-]{36}_My_Pic\.PNG$`)
	if !re.MatchString(key) {
		t.Errorf("NewKey() = %q", key)
	}
	if NewKey("forum", "media", "a.png") == NewKey("forum", "media", "a.png") {
		t.Error("keys must be unique")
	}
	if !strings.HasSuffix(NewKey("forum", "media", ""), "_file") {
		t.Error("empty filename should fall back to file")
	}
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore("https://cdn.example/")
	ctx := context.Background()

	url, err := store.Put(ctx, "forum/media/a.png", strings.NewReader("png"), 3, "image/png")
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if url != "https://cdn.example/forum/media/a.png" {
		t.Errorf("Put() url = %q", url)
	}
	key, ok := store.KeyFromURL(url)
	if !ok || key != "forum/media/a.png" {
		t.Errorf("KeyFromURL() = %q, %v", key, ok)
	}
	if _, ok := store.KeyFromURL("https://elsewhere.example/x"); ok {
		t.Error("foreign URL should not map to a key")
	}

	data, ct, ok := store.Object(key)
	if !ok || string(data) != "png" || ct != "image/png" {
		t.Errorf("Object() = %q, %q, %v", data, ct, ok)
	}
	if err := store.Delete(ctx, key); err != nil || store.Len() != 0 {
		t.Errorf("Delete() err=%v len=%d", err, store.Len())
	}
}
