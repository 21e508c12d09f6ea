package behavior

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/gvargas9/smartterapist/internal/database"
	"github.com/gvargas9/smartterapist/internal/models"
	"github.com/gvargas9/smartterapist/internal/store"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store.New(db)
}

func seedClient(t *testing.T, st *store.Store) *models.Client {
	t.Helper()
	ctx := context.Background()
	u := &models.User{Email: uuid.NewString() + "@example.com", Role: models.RoleClient}
	if err := st.CreateUser(ctx, u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	c := &models.Client{UserID: u.ID}
	if err := st.CreateClient(ctx, c); err != nil {
		t.Fatalf("create client: %v", err)
	}
	return c
}

func seedPreset(t *testing.T, st *store.Store, name string, active bool) *models.Behavior {
	t.Helper()
	ctx := context.Background()
	admin := &models.User{Email: uuid.NewString() + "@example.com", Role: models.RoleAdmin}
	if err := st.CreateUser(ctx, admin); err != nil {
		t.Fatalf("create admin: %v", err)
	}
	b := &models.Behavior{
		Name:           name,
		PromptTemplate: "Respond warmly about {{topic}}.",
		IsActive:       true,
		CreatedBy:      admin.ID,
	}
	if err := st.CreateBehavior(ctx, b); err != nil {
		t.Fatalf("create behavior: %v", err)
	}
	if !active {
		b.IsActive = false
		if err := st.UpdateBehavior(ctx, b); err != nil {
			t.Fatalf("retire behavior: %v", err)
		}
	}
	return b
}

func TestResolveNoAssignments(t *testing.T) {
	st := newTestStore(t)
	r := NewResolver(st, nil)
	client := seedClient(t, st)

	preset, err := r.Resolve(context.Background(), client.ID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if preset != nil {
		t.Fatalf("expected no preset, got %+v", preset)
	}
}

func TestAssignSwitchesActivePreset(t *testing.T) {
	st := newTestStore(t)
	r := NewResolver(st, nil)
	ctx := context.Background()
	client := seedClient(t, st)
	b1 := seedPreset(t, st, "grounding", true)
	b2 := seedPreset(t, st, "breathing", true)

	if _, err := r.Assign(ctx, client.ID, b1.ID, true); err != nil {
		t.Fatalf("assign b1: %v", err)
	}
	preset, err := r.Resolve(ctx, client.ID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if preset == nil || preset.ID != b1.ID {
		t.Fatalf("expected b1 active, got %+v", preset)
	}

	if _, err := r.Assign(ctx, client.ID, b2.ID, true); err != nil {
		t.Fatalf("assign b2: %v", err)
	}
	preset, err = r.Resolve(ctx, client.ID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if preset == nil || preset.ID != b2.ID {
		t.Fatalf("expected b2 active, got %+v", preset)
	}

	active, err := st.ListAssignments(ctx, client.ID, true)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 1 || active[0].BehaviorID != b2.ID {
		t.Fatalf("expected exactly one active link, got %+v", active)
	}
	all, err := st.ListAssignments(ctx, client.ID, false)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("switch should keep history, got %d rows", len(all))
	}
}

func TestAssignRejectsInactivePreset(t *testing.T) {
	st := newTestStore(t)
	r := NewResolver(st, nil)
	client := seedClient(t, st)
	retired := seedPreset(t, st, "retired", false)

	_, err := r.Assign(context.Background(), client.ID, retired.ID, true)
	if !store.IsInvalid(err) || !errors.Is(err, store.ErrInactiveBehavior) {
		t.Fatalf("expected inactive-preset rejection, got %v", err)
	}
}

func TestUnassign(t *testing.T) {
	st := newTestStore(t)
	r := NewResolver(st, nil)
	ctx := context.Background()
	client := seedClient(t, st)
	b := seedPreset(t, st, "grounding", true)

	if _, err := r.Assign(ctx, client.ID, b.ID, true); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if err := r.Unassign(ctx, client.ID, b.ID); err != nil {
		t.Fatalf("unassign: %v", err)
	}
	preset, err := r.Resolve(ctx, client.ID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if preset != nil {
		t.Fatalf("expected no preset after unassign, got %+v", preset)
	}
	if err := r.Unassign(ctx, client.ID, b.ID); !store.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestResolvePicksSmallestOnDuplicateActives(t *testing.T) {
	st := newTestStore(t)
	r := NewResolver(st, nil)
	ctx := context.Background()
	client := seedClient(t, st)
	b1 := seedPreset(t, st, "one", true)
	b2 := seedPreset(t, st, "two", true)

	// Store-level upserts skip the resolver, leaving two active links.
	if _, err := st.UpsertAssignment(ctx, client.ID, b1.ID, true); err != nil {
		t.Fatalf("upsert b1: %v", err)
	}
	if _, err := st.UpsertAssignment(ctx, client.ID, b2.ID, true); err != nil {
		t.Fatalf("upsert b2: %v", err)
	}

	want := b1.ID
	if b2.ID.String() < b1.ID.String() {
		want = b2.ID
	}
	preset, err := r.Resolve(ctx, client.ID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if preset == nil || preset.ID != want {
		t.Fatalf("expected deterministic pick %v, got %+v", want, preset)
	}
}

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewCache(rdb, time.Minute), mr
}

func TestResolveServesFromCache(t *testing.T) {
	st := newTestStore(t)
	cache, _ := newTestCache(t)
	r := NewResolver(st, cache)
	ctx := context.Background()
	client := seedClient(t, st)
	b := seedPreset(t, st, "grounding", true)

	if _, err := r.Assign(ctx, client.ID, b.ID, true); err != nil {
		t.Fatalf("assign: %v", err)
	}
	preset, err := r.Resolve(ctx, client.ID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if preset == nil || preset.ID != b.ID {
		t.Fatalf("expected preset, got %+v", preset)
	}

	// A store-level delete bypasses invalidation; a repeat resolve must
	// come from the cache and still see the preset.
	if err := st.DeleteAssignment(ctx, client.ID, b.ID); err != nil {
		t.Fatalf("delete assignment: %v", err)
	}
	preset, err = r.Resolve(ctx, client.ID)
	if err != nil {
		t.Fatalf("cached resolve: %v", err)
	}
	if preset == nil || preset.ID != b.ID {
		t.Fatalf("expected cached preset, got %+v", preset)
	}

	cache.Invalidate(ctx, client.ID)
	preset, err = r.Resolve(ctx, client.ID)
	if err != nil {
		t.Fatalf("fresh resolve: %v", err)
	}
	if preset != nil {
		t.Fatalf("expected nil after invalidation, got %+v", preset)
	}
}

func TestResolveCachesMisses(t *testing.T) {
	st := newTestStore(t)
	cache, mr := newTestCache(t)
	r := NewResolver(st, cache)
	ctx := context.Background()
	client := seedClient(t, st)

	preset, err := r.Resolve(ctx, client.ID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if preset != nil {
		t.Fatalf("expected nil, got %+v", preset)
	}
	got, err := mr.Get(cacheKey(client.ID))
	if err != nil {
		t.Fatalf("cache entry missing: %v", err)
	}
	if got != noneMarker {
		t.Fatalf("expected none marker, got %q", got)
	}
}

func TestAssignInvalidatesCache(t *testing.T) {
	st := newTestStore(t)
	cache, _ := newTestCache(t)
	r := NewResolver(st, cache)
	ctx := context.Background()
	client := seedClient(t, st)
	b1 := seedPreset(t, st, "one", true)
	b2 := seedPreset(t, st, "two", true)

	if _, err := r.Assign(ctx, client.ID, b1.ID, true); err != nil {
		t.Fatalf("assign b1: %v", err)
	}
	if _, err := r.Resolve(ctx, client.ID); err != nil {
		t.Fatalf("warm cache: %v", err)
	}
	if _, err := r.Assign(ctx, client.ID, b2.ID, true); err != nil {
		t.Fatalf("assign b2: %v", err)
	}
	preset, err := r.Resolve(ctx, client.ID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if preset == nil || preset.ID != b2.ID {
		t.Fatalf("stale cache after reassign: %+v", preset)
	}
}

func TestWatchInvalidationsDropsEntries(t *testing.T) {
	st := newTestStore(t)
	cache, mr := newTestCache(t)
	r := NewResolver(st, cache)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	client := seedClient(t, st)
	b := seedPreset(t, st, "grounding", true)

	if _, err := r.Assign(ctx, client.ID, b.ID, true); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := r.Resolve(ctx, client.ID); err != nil {
		t.Fatalf("warm cache: %v", err)
	}
	if !mr.Exists(cacheKey(client.ID)) {
		t.Fatalf("cache entry not written")
	}

	r.WatchInvalidations(ctx)
	if _, err := st.UpsertAssignment(ctx, client.ID, b.ID, false); err != nil {
		t.Fatalf("store-level change: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for mr.Exists(cacheKey(client.ID)) {
		if time.Now().After(deadline) {
			t.Fatalf("cache entry never invalidated")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNilCacheIsNoOp(t *testing.T) {
	var c *Cache
	ctx := context.Background()
	id := uuid.New()
	if _, ok := c.Get(ctx, id); ok {
		t.Fatalf("nil cache reported a hit")
	}
	c.Put(ctx, id, nil)
	c.Invalidate(ctx, id)
}
