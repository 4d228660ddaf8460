package series

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"github.com/toonranks/toonranks/internal/apperr"
	"github.com/toonranks/toonranks/internal/cache"
	"github.com/toonranks/toonranks/internal/db"
	"github.com/toonranks/toonranks/internal/db/dbtest"
	"github.com/toonranks/toonranks/internal/models"
	"github.com/toonranks/toonranks/internal/storage"
)

type fixture struct {
	svc   *Service
	repo  *db.Repository
	store *storage.MemoryStore
	mr    *miniredis.Miniredis
	user  *models.User
	admin *models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	database := dbtest.New(t)
	repo := db.NewRepository(database.DB)
	store := storage.NewMemoryStore("https://cdn.example")

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := &fixture{
		svc:   NewService(repo, store, cache.NewWithClient(client, time.Minute)),
		repo:  repo,
		store: store,
		mr:    mr,
	}
	f.user = f.newUser(t, "reader", models.RoleGeneral)
	f.admin = f.newUser(t, "root", models.RoleAdmin)
	return f
}

func (f *fixture) newUser(t *testing.T, name string, role models.Role) *models.User {
	t.Helper()
	u := &models.User{Username: name, PasswordHash: "x", Role: role, RegisteredAt: time.Now().UTC()}
	if err := db.NewUserRepository(f.repo).Create(context.Background(), u); err != nil {
		t.Fatalf("create user %s: %v", name, err)
	}
	return u
}

func (f *fixture) create(t *testing.T, title, seriesType string) *SeriesOut {
	t.Helper()
	out, err := f.svc.Create(context.Background(), f.admin,
		CreateInput{Title: title, Type: seriesType, Status: "ongoing", Author: "A", Artist: "B"},
		&Cover{Filename: "cover.png", ContentType: "image/png", Data: []byte("png")})
	if err != nil {
		t.Fatalf("Create(%q) error = %v", title, err)
	}
	return out
}

func (f *fixture) vote(t *testing.T, user *models.User, id int64, category models.VoteCategory, score int) {
	t.Helper()
	if _, err := f.svc.Vote(context.Background(), user, id, string(category), score); err != nil {
		t.Fatalf("Vote(%s, %d) error = %v", category, score, err)
	}
}

func TestFinalScore(t *testing.T) {
	if got := FinalScore(nil); got != 0 {
		t.Errorf("FinalScore(nil) = %v", got)
	}
	d := &models.SeriesDetail{StoryTotal: 18, StoryCount: 2, ArtTotal: 6, ArtCount: 1}
	// (9 + 0 + 0 + 6 + 0) / 5
	if got := FinalScore(d); got != 3 {
		t.Errorf("FinalScore() = %v, want 3", got)
	}
}

func TestRankOrdersAndNumbers(t *testing.T) {
	series := []models.Series{{ID: 1, Title: "A"}, {ID: 2, Title: "B"}, {ID: 3, Title: "C"}, {ID: 4, Title: "D"}}
	details := map[int64]models.SeriesDetail{
		1: {StoryTotal: 5, StoryCount: 1},
		3: {StoryTotal: 10, StoryCount: 1},
		4: {StoryTotal: 5, StoryCount: 1},
	}
	got := rank(series, details)

	wantIDs := []int64{3, 1, 4, 2}
	wantRanks := []int{1, 2, 3, 0}
	for i, r := range got {
		if r.ID != wantIDs[i] {
			t.Errorf("position %d id = %d, want %d", i, r.ID, wantIDs[i])
		}
		if wantRanks[i] == 0 {
			if r.Rank != nil {
				t.Errorf("series %d should be unranked, got %d", r.ID, *r.Rank)
			}
			continue
		}
		if r.Rank == nil || *r.Rank != wantRanks[i] {
			t.Errorf("series %d rank = %v, want %d", r.ID, r.Rank, wantRanks[i])
		}
	}
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, "Solo Leveling", "manhwa")
	cover := &Cover{Filename: "c.png", ContentType: "image/png", Data: []byte("png")}

	tests := []struct {
		name  string
		actor *models.User
		in    CreateInput
		cover *Cover
		kind  error
	}{
		{"not admin", f.user, CreateInput{Title: "X", Type: "MANGA"}, cover, apperr.ErrForbidden},
		{"blank title", f.admin, CreateInput{Title: "  ", Type: "MANGA"}, cover, apperr.ErrValidation},
		{"bad type", f.admin, CreateInput{Title: "X", Type: "comic"}, cover, apperr.ErrValidation},
		{"bad status", f.admin, CreateInput{Title: "X", Type: "MANGA", Status: "cancelled"}, cover, apperr.ErrValidation},
		{"no cover", f.admin, CreateInput{Title: "X", Type: "MANGA"}, nil, apperr.ErrValidation},
		{"duplicate title", f.admin, CreateInput{Title: "Solo Leveling", Type: "MANHWA"}, cover, apperr.ErrConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, tt.actor, tt.in, tt.cover)
			if !errors.Is(err, tt.kind) {
				t.Errorf("Create() error = %v, want %v", err, tt.kind)
			}
		})
	}
	if f.store.Len() != 1 {
		t.Errorf("store holds %d objects, want 1", f.store.Len())
	}
}

func TestCreateStoresCover(t *testing.T) {
	f := newFixture(t)
	out := f.create(t, "Tower of God", "MANHWA")

	if out.Status != models.StatusOngoing {
		t.Errorf("status = %q, want %q", out.Status, models.StatusOngoing)
	}
	key, ok := f.store.KeyFromURL(out.CoverURL)
	if !ok {
		t.Fatalf("cover url %q not served by the store", out.CoverURL)
	}
	if _, ct, ok := f.store.Object(key); !ok || ct != "image/png" {
		t.Errorf("stored cover = %v %q", ok, ct)
	}
}

func TestVote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.create(t, "Berserk", "MANGA")

	f.vote(t, f.user, s.ID, models.CategoryStory, 8)
	f.vote(t, f.user, s.ID, models.CategoryArt, 10)

	_, err := f.svc.Vote(ctx, f.user, s.ID, string(models.CategoryStory), 3)
	if !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("second vote on a category error = %v, want forbidden", err)
	}

	for _, bad := range []struct {
		category string
		score    int
	}{{"Plot", 5}, {string(models.CategoryStory), 0}, {string(models.CategoryStory), 11}} {
		if _, err := f.svc.Vote(ctx, f.admin, s.ID, bad.category, bad.score); !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("Vote(%q, %d) error = %v, want validation", bad.category, bad.score, err)
		}
	}
	if _, err := f.svc.Vote(ctx, f.user, 9999, string(models.CategoryStory), 5); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Vote on missing series error = %v, want not found", err)
	}

	f.vote(t, f.admin, s.ID, models.CategoryStory, 6)

	detail, err := f.svc.Detail(ctx, f.user, s.ID)
	if err != nil {
		t.Fatalf("Detail() error = %v", err)
	}
	if detail.StoryCount != 2 || detail.StoryTotal != 14 {
		t.Errorf("story = %v/%d, want 14/2", detail.StoryTotal, detail.StoryCount)
	}
	if detail.Averages[string(models.CategoryStory)] != 7 {
		t.Errorf("story average = %v, want 7", detail.Averages[string(models.CategoryStory)])
	}
	if detail.VoteScores[string(models.CategoryArt)] != 10 || len(detail.VoteScores) != 2 {
		t.Errorf("viewer scores = %v", detail.VoteScores)
	}
	if detail.VoteCounts[string(models.CategoryStory)] != 2 || detail.VoteCounts[string(models.CategoryWorldBuilding)] != 0 {
		t.Errorf("vote counts = %v", detail.VoteCounts)
	}

	summary, err := f.svc.Summary(ctx, s.ID)
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if summary.VoteCount != 2 {
		t.Errorf("vote_count = %d, want 2 distinct voters", summary.VoteCount)
	}
}

func TestDetailWithoutVotes(t *testing.T) {
	f := newFixture(t)
	s := f.create(t, "Vagabond", "MANGA")

	detail, err := f.svc.Detail(context.Background(), nil, s.ID)
	if err != nil {
		t.Fatalf("Detail() error = %v", err)
	}
	if detail.Synopsis != "" || detail.StoryCount != 0 || len(detail.VoteScores) != 0 {
		t.Errorf("unexpected detail %+v", detail)
	}
	if len(detail.Averages) != len(models.VoteCategories) {
		t.Errorf("averages = %v", detail.Averages)
	}

	if _, err := f.svc.Detail(context.Background(), nil, 424242); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Detail() on missing series error = %v", err)
	}
}

func TestRankingsCacheAndInvalidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.create(t, "Alpha", "MANGA")
	b := f.create(t, "Beta", "MANHWA")
	f.create(t, "Gamma", "MANHUA")

	f.vote(t, f.user, a.ID, models.CategoryStory, 4)
	f.vote(t, f.user, b.ID, models.CategoryStory, 9)

	got, err := f.svc.Rankings(ctx, "", 1, 0)
	if err != nil {
		t.Fatalf("Rankings() error = %v", err)
	}
	if len(got) != 3 || got[0].ID != b.ID || got[1].ID != a.ID || got[2].Rank != nil {
		t.Fatalf("unexpected ranking %+v", got)
	}
	if !f.mr.Exists("toonranks:" + rankingCachePrefix) {
		t.Error("full ranking was not cached")
	}

	f.vote(t, f.admin, a.ID, models.CategoryStory, 10)
	f.vote(t, f.admin, a.ID, models.CategoryArt, 10)
	if f.mr.Exists("toonranks:" + rankingCachePrefix) {
		t.Error("vote did not invalidate the ranking cache")
	}

	got, err = f.svc.Rankings(ctx, "", 1, 0)
	if err != nil {
		t.Fatalf("Rankings() error = %v", err)
	}
	if got[0].ID != a.ID || *got[0].Rank != 1 {
		t.Errorf("after votes first = %d, want %d", got[0].ID, a.ID)
	}

	manhwa, err := f.svc.Rankings(ctx, "manhwa", 1, 0)
	if err != nil {
		t.Fatalf("Rankings(manhwa) error = %v", err)
	}
	if len(manhwa) != 1 || manhwa[0].ID != b.ID {
		t.Errorf("manhwa ranking = %+v", manhwa)
	}

	page2, err := f.svc.Rankings(ctx, "", 2, 2)
	if err != nil {
		t.Fatalf("Rankings(page 2) error = %v", err)
	}
	if len(page2) != 1 {
		t.Errorf("page 2 has %d items, want 1", len(page2))
	}

	if _, err := f.svc.Rankings(ctx, "comic", 1, 0); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("unknown type error = %v", err)
	}
	if _, err := f.svc.Rankings(ctx, "", 1, 51); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("oversized page error = %v", err)
	}
}

func TestSearch(t *testing.T) {
	f := newFixture(t)
	f.create(t, "The Breaker", "MANHWA")
	f.create(t, "Breaker: New Waves", "MANHWA")
	f.create(t, "Monster", "MANGA")

	got, err := f.svc.Search(context.Background(), "breaker")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("Search() returned %d results, want 2", len(got))
	}
	if _, err := f.svc.Search(context.Background(), " "); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("blank query error = %v", err)
	}
}

func TestUpdateSynopsisAndDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.create(t, "Oyasumi Punpun", "MANGA")
	f.create(t, "Homunculus", "MANGA")

	title := "Goodnight Punpun"
	status := "complete"
	out, err := f.svc.Update(ctx, f.admin, s.ID, UpdateInput{Title: &title, Status: &status})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if out.Title != title || out.Status != models.StatusComplete || out.Author != "A" {
		t.Errorf("Update() = %+v", out)
	}

	taken := "Homunculus"
	if _, err := f.svc.Update(ctx, f.admin, s.ID, UpdateInput{Title: &taken}); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("rename onto existing title error = %v", err)
	}
	if _, err := f.svc.Update(ctx, f.user, s.ID, UpdateInput{Title: &title}); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("non-admin update error = %v", err)
	}

	detail, err := f.svc.SetSynopsis(ctx, f.admin, s.ID, "  A boy grows up.  ")
	if err != nil {
		t.Fatalf("SetSynopsis() error = %v", err)
	}
	if detail.Synopsis != "A boy grows up." {
		t.Errorf("synopsis = %q", detail.Synopsis)
	}

	f.vote(t, f.user, s.ID, models.CategoryStory, 10)
	if err := f.svc.Delete(ctx, f.user, s.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("non-admin delete error = %v", err)
	}
	if err := f.svc.Delete(ctx, f.admin, s.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := f.svc.Summary(ctx, s.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Summary() after delete error = %v", err)
	}
	if f.store.Len() != 1 {
		t.Errorf("store holds %d objects after delete, want 1", f.store.Len())
	}
	n, err := db.NewVoteRepository(f.repo).CountByUserSeries(ctx, f.user.ID, s.ID)
	if err != nil || n != 0 {
		t.Errorf("votes left after delete = %d (%v)", n, err)
	}
}
