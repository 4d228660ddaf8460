package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/toonranks/toonranks/internal/auth"
	"github.com/toonranks/toonranks/internal/db"
	"github.com/toonranks/toonranks/internal/db/dbtest"
	"github.com/toonranks/toonranks/internal/forum"
	"github.com/toonranks/toonranks/internal/media"
	"github.com/toonranks/toonranks/internal/models"
	"github.com/toonranks/toonranks/internal/moderation"
	"github.com/toonranks/toonranks/internal/readinglist"
	"github.com/toonranks/toonranks/internal/series"
	"github.com/toonranks/toonranks/internal/storage"
	"github.com/toonranks/toonranks/pkg/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	engine *gin.Engine
	repo   *db.Repository
	tokens *auth.TokenManager
}

func newTestServer(t *testing.T, rateLimit bool) *testServer {
	t.Helper()
	database := dbtest.New(t)
	repo := db.NewRepository(database.DB)
	store := storage.NewMemoryStore("https://cdn.example")

	tokens, err := auth.NewTokenManager(&config.SecurityConfig{JWTSecret: "0123456789abcdef0123456789abcdef"})
	if err != nil {
		t.Fatalf("NewTokenManager() error = %v", err)
	}
	authSvc := auth.NewService(repo, tokens,
		auth.NewRecaptchaVerifier(config.CaptchaConfig{Enabled: false}, nil),
		auth.NewEmailSender(config.EmailConfig{}),
		"https://toonranks.example/verify")

	router := NewRouter(Deps{
		Auth: authSvc,
		Forum: forum.NewService(repo, moderation.NewFilter(moderation.NewProfanity(), nil), store, nil, config.ForumConfig{
			MaxThreadsPerUser: 10,
			DefaultPageSize:   20,
			MaxPageSize:       100,
		}),
		Media: media.NewService(repo, store, config.MediaConfig{
			MaxImageBytes: 300 * 1024,
			MaxGIFBytes:   1 << 20,
			MaxImageDim:   1024,
			MaxGIFDim:     512,
		}),
		Series:       series.NewService(repo, store, nil),
		ReadingLists: readinglist.NewService(repo, 2),
		Database:     database,
		RateLimit:    rateLimit,
	})
	return &testServer{engine: router.Engine(), repo: repo, tokens: tokens}
}

// tokenFor creates a verified account directly and returns its bearer token
func (s *testServer) tokenFor(t *testing.T, name string, role models.Role) string {
	t.Helper()
	u := &models.User{Username: name, PasswordHash: "x", Role: role, IsVerified: true, RegisteredAt: time.Now().UTC()}
	if err := db.NewUserRepository(s.repo).Create(context.Background(), u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	token, err := s.tokens.IssueAccessToken(u)
	if err != nil {
		t.Fatalf("IssueAccessToken() error = %v", err)
	}
	return token
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d, body %s", rec.Code, want, rec.Body.String())
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, false)
	rec := s.do(t, http.MethodGet, "/health", "", nil)
	expectStatus(t, rec, http.StatusOK)

	var body map[string]string
	decode(t, rec, &body)
	if body["database"] != "ok" || body["cache"] != "disabled" {
		t.Errorf("health body = %v", body)
	}
}

func TestAuthFlow(t *testing.T) {
	s := newTestServer(t, false)

	rec := s.do(t, http.MethodPost, "/auth/signup", "", map[string]string{
		"username": "reader", "email": "reader@example.com", "password": "hunter22",
	})
	expectStatus(t, rec, http.StatusOK)
	var signup auth.SignupResult
	decode(t, rec, &signup)

	rec = s.do(t, http.MethodPost, "/auth/login", "", map[string]string{"username": "reader", "password": "hunter22"})
	expectStatus(t, rec, http.StatusForbidden)

	rec = s.do(t, http.MethodGet, "/auth/verify-email?token="+signup.Token, "", nil)
	expectStatus(t, rec, http.StatusOK)

	rec = s.do(t, http.MethodPost, "/auth/login", "", map[string]string{"username": "reader", "password": "hunter22"})
	expectStatus(t, rec, http.StatusOK)
	var login auth.LoginResult
	decode(t, rec, &login)
	if login.AccessToken == "" || login.TokenType != "bearer" {
		t.Errorf("login = %+v", login)
	}

	rec = s.do(t, http.MethodPost, "/auth/signup", "", map[string]string{
		"username": "other", "email": "not-an-email", "password": "hunter22",
	})
	expectStatus(t, rec, http.StatusBadRequest)
	var payload map[string]any
	decode(t, rec, &payload)
	if payload["field"] != "email" {
		t.Errorf("validation payload = %v", payload)
	}

	rec = s.do(t, http.MethodPost, "/auth/resend-verification", "", map[string]string{"email": "nobody@example.com"})
	expectStatus(t, rec, http.StatusOK)
}

func TestForumFlow(t *testing.T) {
	s := newTestServer(t, false)
	alice := s.tokenFor(t, "alice", models.RoleGeneral)
	bob := s.tokenFor(t, "bob", models.RoleGeneral)
	admin := s.tokenFor(t, "root", models.RoleAdmin)

	rec := s.do(t, http.MethodPost, "/forum/threads", "", map[string]any{"title": "Hello", "first_post_markdown": "hi"})
	expectStatus(t, rec, http.StatusUnauthorized)
	if rec.Header().Get("WWW-Authenticate") != "Bearer" {
		t.Errorf("missing WWW-Authenticate header")
	}

	rec = s.do(t, http.MethodPost, "/forum/threads", alice, map[string]any{"title": "   ", "first_post_markdown": "hi"})
	expectStatus(t, rec, http.StatusBadRequest)

	rec = s.do(t, http.MethodPost, "/forum/threads", alice, map[string]any{"title": "Best manhwa of 2024", "first_post_markdown": "Discuss."})
	expectStatus(t, rec, http.StatusOK)
	var thread forum.ThreadOut
	decode(t, rec, &thread)
	base := fmt.Sprintf("/forum/threads/%d", thread.ID)

	rec = s.do(t, http.MethodPost, base+"/posts", bob, map[string]any{"content_markdown": "Solo Leveling"})
	expectStatus(t, rec, http.StatusOK)
	var reply forum.PostOut
	decode(t, rec, &reply)

	rec = s.do(t, http.MethodPost, base+"/posts", bob, map[string]any{"content_markdown": "what the fuck"})
	expectStatus(t, rec, http.StatusBadRequest)
	var profanity map[string]any
	decode(t, rec, &profanity)
	if profanity["code"] != "PROFANITY_REJECTED" {
		t.Errorf("profanity payload = %v", profanity)
	}

	rec = s.do(t, http.MethodPost, fmt.Sprintf("%s/posts/%d/heart", base, reply.ID), alice, nil)
	expectStatus(t, rec, http.StatusOK)
	var heart forum.HeartResult
	decode(t, rec, &heart)
	if !heart.Hearted || heart.HeartCount != 1 {
		t.Errorf("heart = %+v", heart)
	}

	rec = s.do(t, http.MethodGet, base+"/posts-paged?page=1&page_size=10", alice, nil)
	expectStatus(t, rec, http.StatusOK)
	var paged forum.PagedThreadView
	decode(t, rec, &paged)
	if len(paged.Posts) != 2 || paged.TotalRoots != 1 || !paged.Posts[1].Hearted {
		t.Errorf("paged view = %+v", paged)
	}

	rec = s.do(t, http.MethodPatch, base+"/lock", alice, nil)
	expectStatus(t, rec, http.StatusForbidden)
	rec = s.do(t, http.MethodPatch, base+"/lock", admin, nil)
	expectStatus(t, rec, http.StatusOK)
	var locked forum.ThreadOut
	decode(t, rec, &locked)
	if !locked.Locked {
		t.Fatal("empty lock body should flip the flag")
	}

	rec = s.do(t, http.MethodPost, base+"/posts", bob, map[string]any{"content_markdown": "late"})
	expectStatus(t, rec, http.StatusLocked)

	rec = s.do(t, http.MethodDelete, fmt.Sprintf("%s/posts/%d/mine", base, reply.ID), admin, nil)
	expectStatus(t, rec, http.StatusForbidden)
	rec = s.do(t, http.MethodDelete, fmt.Sprintf("%s/posts/%d/mine", base, reply.ID), bob, nil)
	expectStatus(t, rec, http.StatusNoContent)

	rec = s.do(t, http.MethodGet, "/forum/threads?author=alice", "", nil)
	expectStatus(t, rec, http.StatusOK)
	var threads []forum.ThreadOut
	decode(t, rec, &threads)
	if len(threads) != 1 || threads[0].PostCount != 1 {
		t.Errorf("threads = %+v", threads)
	}

	rec = s.do(t, http.MethodGet, "/forum/threads/abc", "", nil)
	expectStatus(t, rec, http.StatusBadRequest)

	rec = s.do(t, http.MethodDelete, base, bob, nil)
	expectStatus(t, rec, http.StatusForbidden)
	rec = s.do(t, http.MethodDelete, base, alice, nil)
	expectStatus(t, rec, http.StatusNoContent)
	rec = s.do(t, http.MethodGet, base, "", nil)
	expectStatus(t, rec, http.StatusNotFound)
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// multipartBody builds a form with text fields and one file part
func multipartBody(t *testing.T, fields map[string]string, fileField, filename, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, fileField, filename))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, w.FormDataContentType()
}

func (s *testServer) upload(t *testing.T, path, token string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	return rec
}

func TestMediaUpload(t *testing.T) {
	s := newTestServer(t, false)
	alice := s.tokenFor(t, "alice", models.RoleGeneral)

	rec := s.do(t, http.MethodPost, "/forum/threads", alice, map[string]any{"title": "Fan art", "first_post_markdown": "look"})
	expectStatus(t, rec, http.StatusOK)
	var thread forum.ThreadOut
	decode(t, rec, &thread)

	body, ct := multipartBody(t, map[string]string{"thread_id": fmt.Sprint(thread.ID)}, "file", "art.png", "image/png", pngBytes(t))
	rec = s.upload(t, "/forum/media/upload", alice, body, ct)
	expectStatus(t, rec, http.StatusOK)
	var res media.Result
	decode(t, rec, &res)
	if res.Mime != "image/png" || res.Width == nil || *res.Width != 4 {
		t.Errorf("upload result = %+v", res)
	}

	body, ct = multipartBody(t, nil, "file", "art.png", "image/png", pngBytes(t))
	rec = s.upload(t, "/forum/media/upload", alice, body, ct)
	expectStatus(t, rec, http.StatusBadRequest)

	body, ct = multipartBody(t, map[string]string{"thread_id": fmt.Sprint(thread.ID)}, "file", "notes.txt", "text/plain", []byte("hello"))
	rec = s.upload(t, "/forum/media/upload", alice, body, ct)
	expectStatus(t, rec, http.StatusBadRequest)
}

func TestSeriesAndReadingLists(t *testing.T) {
	s := newTestServer(t, false)
	reader := s.tokenFor(t, "reader", models.RoleGeneral)
	admin := s.tokenFor(t, "root", models.RoleAdmin)

	fields := map[string]string{"title": "Omniscient Reader", "type": "MANHWA", "status": "ONGOING"}
	body, ct := multipartBody(t, fields, "cover", "cover.png", "image/png", pngBytes(t))
	rec := s.upload(t, "/series", reader, body, ct)
	expectStatus(t, rec, http.StatusForbidden)

	body, ct = multipartBody(t, fields, "cover", "cover.png", "image/png", pngBytes(t))
	rec = s.upload(t, "/series", admin, body, ct)
	expectStatus(t, rec, http.StatusOK)
	var created series.SeriesOut
	decode(t, rec, &created)

	rec = s.do(t, http.MethodPost, fmt.Sprintf("/series-details/%d/vote", created.ID), reader, map[string]any{"category": "Art", "score": 9})
	expectStatus(t, rec, http.StatusOK)
	rec = s.do(t, http.MethodPost, fmt.Sprintf("/series-details/%d/vote", created.ID), reader, map[string]any{"category": "Art", "score": 7})
	expectStatus(t, rec, http.StatusForbidden)

	rec = s.do(t, http.MethodGet, "/series/rankings", "", nil)
	expectStatus(t, rec, http.StatusOK)
	var ranked []series.RankedSeries
	decode(t, rec, &ranked)
	if len(ranked) != 1 || ranked[0].Rank == nil || *ranked[0].Rank != 1 {
		t.Errorf("rankings = %+v", ranked)
	}

	rec = s.do(t, http.MethodPost, "/reading-lists", reader, map[string]string{"name": "Weekly"})
	expectStatus(t, rec, http.StatusCreated)
	var list readinglist.ListOut
	decode(t, rec, &list)

	rec = s.do(t, http.MethodPost, fmt.Sprintf("/reading-lists/%d/items", list.ID), reader, map[string]int64{"series_id": created.ID})
	expectStatus(t, rec, http.StatusOK)
	decode(t, rec, &list)
	if len(list.Items) != 1 || list.Items[0].Title != "Omniscient Reader" {
		t.Errorf("list = %+v", list)
	}

	rec = s.do(t, http.MethodPost, "/reading-lists", reader, map[string]string{"name": "Weekly"})
	expectStatus(t, rec, http.StatusConflict)
	rec = s.do(t, http.MethodPost, "/reading-lists", reader, map[string]string{"name": "Monthly"})
	expectStatus(t, rec, http.StatusCreated)
	rec = s.do(t, http.MethodPost, "/reading-lists", reader, map[string]string{"name": "Yearly"})
	expectStatus(t, rec, http.StatusForbidden)

	rec = s.do(t, http.MethodDelete, fmt.Sprintf("/series/%d", created.ID), admin, nil)
	expectStatus(t, rec, http.StatusNoContent)
	rec = s.do(t, http.MethodGet, "/reading-lists/me", reader, nil)
	expectStatus(t, rec, http.StatusOK)
	var lists []readinglist.ListOut
	decode(t, rec, &lists)
	for _, l := range lists {
		if len(l.Items) != 0 {
			t.Errorf("list %q still references a deleted series", l.Name)
		}
	}
}

func TestRateLimitedRoutes(t *testing.T) {
	s := newTestServer(t, true)
	alice := s.tokenFor(t, "alice", models.RoleGeneral)

	for i := 0; i < limitThreadCreate; i++ {
		rec := s.do(t, http.MethodPost, "/forum/threads", alice, map[string]any{"title": fmt.Sprintf("Thread %d", i), "first_post_markdown": "x"})
		expectStatus(t, rec, http.StatusOK)
	}
	rec := s.do(t, http.MethodPost, "/forum/threads", alice, map[string]any{"title": "One too many", "first_post_markdown": "x"})
	expectStatus(t, rec, http.StatusTooManyRequests)

	var body map[string]string
	decode(t, rec, &body)
	if body["code"] != rateLimitedCode || body["detail"] != rateLimitedDetail {
		t.Errorf("429 body = %v", body)
	}

	// other routes keep their own budget
	rec = s.do(t, http.MethodGet, "/forum/threads", "", nil)
	expectStatus(t, rec, http.StatusOK)
}

func TestRateLimiterRefillsAndSweeps(t *testing.T) {
	rl := NewRateLimiter()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	if !rl.allow("a", 2) || !rl.allow("a", 2) {
		t.Fatal("burst should allow two requests")
	}
	if rl.allow("a", 2) {
		t.Fatal("third request in the same instant should be refused")
	}
	if !rl.allow("b", 2) {
		t.Error("keys must not share buckets")
	}

	now = now.Add(30 * time.Second)
	if !rl.allow("a", 2) {
		t.Error("one token should refill after 30s")
	}

	now = now.Add(visitorIdleTTL + time.Minute)
	rl.allow("c", 2)
	if len(rl.visitors) != 1 {
		t.Errorf("idle visitors not swept, have %d", len(rl.visitors))
	}
}
