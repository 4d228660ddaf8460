package media

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/toonranks/toonranks/internal/apperr"
	"github.com/toonranks/toonranks/internal/db"
	"github.com/toonranks/toonranks/internal/db/dbtest"
	"github.com/toonranks/toonranks/internal/models"
	"github.com/toonranks/toonranks/internal/storage"
	"github.com/toonranks/toonranks/pkg/config"
)

var testLimits = config.MediaConfig{
	MaxImageBytes: 300 * 1024,
	MaxGIFBytes:   1 << 20,
	MaxImageDim:   1024,
	MaxGIFDim:     512,
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func gifBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewPaletted(image.Rect(0, 0, w, h), color.Palette{color.Black, color.White})
	var buf bytes.Buffer
	if err := gif.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode gif: %v", err)
	}
	return buf.Bytes()
}

type setup struct {
	svc      *Service
	repo     *db.Repository
	store    *storage.MemoryStore
	user     *models.User
	threadID int64
	postID   int64
}

func newSetup(t *testing.T) *setup {
	t.Helper()
	ctx := context.Background()
	database := dbtest.New(t)
	repo := db.NewRepository(database.DB)

	user := &models.User{Username: "uploader", PasswordHash: "x", Role: models.RoleGeneral, RegisteredAt: time.Now().UTC()}
	if err := db.NewUserRepository(repo).Create(ctx, user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	now := time.Now().UTC()
	thread := &models.Thread{Title: "Pics", AuthorID: models.NullID(user.ID), CreatedAt: now, UpdatedAt: now, LastPostAt: now, PostCount: 1}
	if err := db.NewThreadRepository(repo).Create(ctx, thread); err != nil {
		t.Fatalf("create thread: %v", err)
	}
	post := &models.Post{ThreadID: thread.ID, AuthorID: models.NullID(user.ID), ContentMarkdown: "op", CreatedAt: now, UpdatedAt: now}
	if err := db.NewPostRepository(repo).Create(ctx, post); err != nil {
		t.Fatalf("create post: %v", err)
	}

	store := storage.NewMemoryStore("https://cdn.example")
	return &setup{
		svc:      NewService(repo, store, testLimits),
		repo:     repo,
		store:    store,
		user:     user,
		threadID: thread.ID,
		postID:   post.ID,
	}
}

func TestUploadStoresImage(t *testing.T) {
	s := newSetup(t)
	ctx := context.Background()

	res, err := s.svc.Upload(ctx, s.user, Upload{
		ThreadID:    s.threadID,
		PostID:      &s.postID,
		Filename:    "My Cover.PNG",
		ContentType: "image/png",
		Data:        pngBytes(t, 64, 32),
	})
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if res.Width == nil || *res.Width != 64 || *res.Height != 32 {
		t.Errorf("dimensions = %v x %v", res.Width, res.Height)
	}
	if !strings.HasPrefix(res.URL, "https://cdn.example/forum/media/") || !strings.HasSuffix(res.URL, "_My_Cover.PNG") {
		t.Errorf("url = %s", res.URL)
	}

	key, ok := s.store.KeyFromURL(res.URL)
	if !ok {
		t.Fatalf("KeyFromURL(%s) failed", res.URL)
	}
	if _, contentType, found := s.store.Object(key); !found || contentType != "image/png" {
		t.Errorf("stored object = %v, %s", found, contentType)
	}

	media, err := db.NewMediaRepository(s.repo).ListByThread(ctx, s.threadID)
	if err != nil || len(media) != 1 {
		t.Fatalf("media rows = %d, %v", len(media), err)
	}
	if media[0].StorageKey != key || !media[0].PostID.Valid || media[0].UploaderID.Int64 != s.user.ID {
		t.Errorf("media row = %+v", media[0])
	}
}

func TestUploadValidation(t *testing.T) {
	s := newSetup(t)
	ctx := context.Background()

	bigNoise := append(pngBytes(t, 4, 4), bytes.Repeat([]byte{0x42}, 300*1024)...)
	otherPost := int64(9999)

	tests := []struct {
		name        string
		upload      Upload
		wantKind    apperr.Kind
		wantMessage string
	}{
		{"unsupported type", Upload{ContentType: "image/svg+xml", Data: []byte("<svg/>")}, apperr.KindValidation, "Unsupported image type."},
		{"empty file", Upload{ContentType: "image/png"}, apperr.KindValidation, "Empty file."},
		{"content mismatch", Upload{ContentType: "image/png", Data: gifBytes(t, 4, 4)}, apperr.KindValidation, "File content does not match its type."},
		{"image too large", Upload{ContentType: "image/png", Data: bigNoise}, apperr.KindValidation, "Image too large (max 300 KB)."},
		{"image dimensions", Upload{ContentType: "image/png", Data: pngBytes(t, 1100, 10)}, apperr.KindValidation, "Image dimensions too large (max 1024×1024)."},
		{"gif dimensions", Upload{ContentType: "image/gif", Data: gifBytes(t, 600, 20)}, apperr.KindValidation, "GIF dimensions too large (max 512×512)."},
		{"post from elsewhere", Upload{PostID: &otherPost, ContentType: "image/png", Data: pngBytes(t, 4, 4)}, apperr.KindNotFound, "Post not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.upload.ThreadID = s.threadID
			_, err := s.svc.Upload(ctx, s.user, tt.upload)
			var e *apperr.Error
			if !errors.As(err, &e) || e.Kind != tt.wantKind || e.Message != tt.wantMessage {
				t.Errorf("Upload() = %v, want %s %q", err, tt.wantKind, tt.wantMessage)
			}
		})
	}

	if _, err := s.svc.Upload(ctx, s.user, Upload{ThreadID: 4242, ContentType: "image/png", Data: pngBytes(t, 4, 4)}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing thread = %v", err)
	}
	if s.store.Len() != 0 {
		t.Errorf("rejected uploads reached storage: %d objects", s.store.Len())
	}
}

func TestUploadAllowsUndecodableImage(t *testing.T) {
	s := newSetup(t)

	// A valid PNG signature followed by garbage sniffs as PNG but has no readable header
	data := append([]byte("\x89PNG\r\n\x1a\n"), []byte("not really an image")...)
	res, err := s.svc.Upload(context.Background(), s.user, Upload{ThreadID: s.threadID, ContentType: "image/png", Data: data})
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if res.Width != nil || res.Height != nil {
		t.Errorf("dimensions should be unknown, got %v x %v", res.Width, res.Height)
	}
}

func TestUploadGIF(t *testing.T) {
	s := newSetup(t)
	res, err := s.svc.Upload(context.Background(), s.user, Upload{ThreadID: s.threadID, Filename: "dance.gif", ContentType: "image/gif", Data: gifBytes(t, 320, 240)})
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if res.Mime != "image/gif" || *res.Width != 320 {
		t.Errorf("result = %+v", res)
	}
}

type failingStore struct{ *storage.MemoryStore }

func (failingStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	return "", errors.New("bucket unavailable")
}

func TestUploadStoreFailure(t *testing.T) {
	s := newSetup(t)
	svc := NewService(s.repo, failingStore{storage.NewMemoryStore("https://cdn.example")}, testLimits)

	_, err := svc.Upload(context.Background(), s.user, Upload{ThreadID: s.threadID, ContentType: "image/png", Data: pngBytes(t, 4, 4)})
	if !errors.Is(err, apperr.ErrUpstreamFailure) {
		t.Errorf("Upload() = %v, want upstream failure", err)
	}
}

func TestHumanBytes(t *testing.T) {
	if got := humanBytes(1 << 20); got != "1 MB" {
		t.Errorf("humanBytes(1MiB) = %q", got)
	}
	if got := humanBytes(307200); got != "300 KB" {
		t.Errorf("humanBytes(300KiB) = %q", got)
	}
}
