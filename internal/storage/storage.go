// Package storage puts uploaded objects into a blob store and returns public URLs.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ObjectStore stores blobs under keys
type ObjectStore interface {
	// Put stores body under key and returns its public URL
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
	// Delete removes the object stored under key
	Delete(ctx context.Context, key string) error
	// KeyFromURL maps a public URL produced by Put back to its key
	KeyFromURL(url string) (string, bool)
}

var unsafeKeyChars = regexp.MustCompile(`[^a-zA-Z0-9_\-]`)

// Sanitize replaces every character outside [a-zA-Z0-9_-] with an underscore
func Sanitize(s string) string {
	return unsafeKeyChars.ReplaceAllString(s, "_")
}

// sanitizeFilename keeps the extension dot so stored names stay recognizable
func sanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	base, ext := name, ""
	if i := strings.LastIndex(name, "."); i > 0 {
		base, ext = name[:i], name[i+1:]
	}
	base = Sanitize(base)
	if base == "" {
		base = "file"
	}
	if ext = Sanitize(ext); ext != "" {
		return base + "." + ext
	}
	return base
}

// NewKey builds folder/subfolder/<uuid>_<filename>
func NewKey(folder, subfolder, filename string) string {
	return fmt.Sprintf("%s/%s/%s_%s", Sanitize(folder), Sanitize(subfolder), uuid.NewString(), sanitizeFilename(filename))
}

// MemoryStore keeps objects in memory. It backs local development when no
// bucket is configured, and tests.
type MemoryStore struct {
	mu      sync.Mutex
	baseURL string
	objects map[string][]byte
	types   map[string]string
}

// NewMemoryStore creates an in-memory store serving URLs under baseURL
func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		objects: make(map[string][]byte),
		types:   make(map[string]string),
	}
}

// Put implements ObjectStore
func (m *MemoryStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, body); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = buf.Bytes()
	m.types[key] = contentType
	return m.baseURL + "/" + key, nil
}

// Delete implements ObjectStore
func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	delete(m.types, key)
	return nil
}

// KeyFromURL implements ObjectStore
func (m *MemoryStore) KeyFromURL(url string) (string, bool) {
	key, ok := strings.CutPrefix(url, m.baseURL+"/")
	return key, ok && key != ""
}

// Object returns a stored object and its content type
func (m *MemoryStore) Object(key string) ([]byte, string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	return data, m.types[key], ok
}

// Len returns the number of stored objects
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}
