package cache

import (
	"errors"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore(t.TempDir())
	if err != nil {
		t.Fatalf("OpenStore failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreOpenClose(t *testing.T) {
	store, err := OpenStore(t.TempDir())
	if err != nil {
		t.Fatalf("OpenStore failed: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}

func TestStoreGetPut(t *testing.T) {
	store := openTestStore(t)

	repo := "https://repo.packagist.org"
	entry := &Entry{
		Body:         []byte(`{"packages":{}}`),
		LastModified: "Mon, 02 Jan 2026 15:04:05 GMT",
		FetchedAt:    time.Now().UnixNano(),
	}

	if err := store.Put(repo, "p2/monolog/monolog~dev.json", entry, 0); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := store.Get(repo, "p2/monolog/monolog~dev.json")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if string(got.Body) != string(entry.Body) {
		t.Errorf("Body = %q, want %q", got.Body, entry.Body)
	}
	if got.LastModified != entry.LastModified {
		t.Errorf("LastModified = %q, want %q", got.LastModified, entry.LastModified)
	}
	if got.Version != CacheVersion {
		t.Errorf("Version = %d, want %d", got.Version, CacheVersion)
	}
}

func TestStoreGetNotFound(t *testing.T) {
	store := openTestStore(t)

	_, err := store.Get("https://nowhere.example", "p2/a/b~dev.json")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreDelete(t *testing.T) {
	store := openTestStore(t)

	repo := "https://repo.example"
	if err := store.Put(repo, "doc", &Entry{Body: []byte("x")}, 0); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(repo, "doc"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Get(repo, "doc"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestStoreDeletePrefix(t *testing.T) {
	store := openTestStore(t)

	for _, p := range []string{"a", "b", "c"} {
		if err := store.Put("https://one.example", p, &Entry{Body: []byte(p)}, 0); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.Put("https://two.example", "a", &Entry{Body: []byte("a")}, 0); err != nil {
		t.Fatal(err)
	}

	if err := store.DeletePrefix("https://one.example"); err != nil {
		t.Fatalf("DeletePrefix failed: %v", err)
	}

	n, err := store.Count("https://one.example")
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("Count(one) = %d, want 0", n)
	}
	n, err = store.Count("")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("Count(all) = %d, want 1", n)
	}
}

func TestKeyRoundTrip(t *testing.T) {
	key := MakeKey("https://repo.example", "p2/acme/lib~dev.json")
	repo, path := ParseKey(key)
	if repo != "https://repo.example" || path != "p2/acme/lib~dev.json" {
		t.Errorf("ParseKey = %q, %q", repo, path)
	}

	repo, path = ParseKey([]byte("bare"))
	if repo != "bare" || path != "" {
		t.Errorf("ParseKey(bare) = %q, %q", repo, path)
	}
}

func TestCacheLookupHonorsTTL(t *testing.T) {
	c, err := Open(t.TempDir(), time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	now := time.Date(2026, 1, 2, 15, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	if err := c.Save("https://repo.example", "doc", []byte("body"), ""); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if _, err := c.Lookup("https://repo.example", "doc"); err != nil {
		t.Fatalf("Lookup of fresh entry failed: %v", err)
	}

	now = now.Add(2 * time.Hour)
	if _, err := c.Lookup("https://repo.example", "doc"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Lookup of expired entry = %v, want ErrNotFound", err)
	}

	stale, err := c.Stale("https://repo.example", "doc")
	if err != nil {
		t.Fatalf("Stale failed: %v", err)
	}
	if string(stale.Body) != "body" {
		t.Errorf("Stale body = %q", stale.Body)
	}
}

func TestCacheClearAll(t *testing.T) {
	c, err := Open(t.TempDir(), 0)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	for _, p := range []string{"a", "b"} {
		if err := c.Save("https://repo.example", p, []byte(p), ""); err != nil {
			t.Fatal(err)
		}
	}
	if n, _ := c.Len(); n != 2 {
		t.Fatalf("Len = %d, want 2", n)
	}
	if err := c.ClearAll(); err != nil {
		t.Fatalf("ClearAll failed: %v", err)
	}
	if n, _ := c.Len(); n != 0 {
		t.Errorf("Len after ClearAll = %d, want 0", n)
	}
	if err := c.Invalidate("https://repo.example", "missing"); err != nil {
		t.Errorf("Invalidate of missing entry = %v", err)
	}
}
