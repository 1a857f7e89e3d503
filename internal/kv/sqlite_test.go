package kv

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *SQLite {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "kv.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLite_GetMissing(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	var out string
	found, err := db.Get(ctx, "nope", &out)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if found {
		t.Error("missing key should report found=false")
	}
}

func TestSQLite_SetGetRoundtrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	type record struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	if err := db.Set(ctx, "rec", record{Name: "go", Count: 3}); err != nil {
		t.Fatalf("set: %v", err)
	}

	var got record
	found, err := db.Get(ctx, "rec", &got)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !found {
		t.Fatal("key should be found after set")
	}
	if got.Name != "go" || got.Count != 3 {
		t.Errorf("got %+v, want {go 3}", got)
	}

	// Overwrite replaces, never duplicates.
	if err := db.Set(ctx, "rec", record{Name: "go", Count: 4}); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if _, err := db.Get(ctx, "rec", &got); err != nil {
		t.Fatalf("get after overwrite: %v", err)
	}
	if got.Count != 4 {
		t.Errorf("count = %d, want 4 after overwrite", got.Count)
	}
}

func TestSQLite_SetMultiple(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.SetMultiple(ctx, map[string]any{
		"a": 1,
		"b": "two",
	}); err != nil {
		t.Fatalf("set multiple: %v", err)
	}

	got, err := db.GetMultiple(ctx, []string{"a", "b", "missing"})
	if err != nil {
		t.Fatalf("get multiple: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2", len(got))
	}
	var a int
	if err := json.Unmarshal(got["a"], &a); err != nil || a != 1 {
		t.Errorf("a = %d (%v), want 1", a, err)
	}
	if _, ok := got["missing"]; ok {
		t.Error("missing key should not appear in result")
	}
}

func TestSQLite_Remove(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Set(ctx, "k1", "v"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := db.Set(ctx, "k2", "v"); err != nil {
		t.Fatalf("set: %v", err)
	}

	// Removing an absent key is not an error.
	if err := db.Remove(ctx, "absent"); err != nil {
		t.Errorf("remove absent: %v", err)
	}

	if err := db.RemoveMultiple(ctx, []string{"k1", "k2"}); err != nil {
		t.Fatalf("remove multiple: %v", err)
	}
	var out string
	if found, _ := db.Get(ctx, "k1", &out); found {
		t.Error("k1 should be gone")
	}
	if found, _ := db.Get(ctx, "k2", &out); found {
		t.Error("k2 should be gone")
	}
}

func TestSQLite_PersistsAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.db")
	ctx := context.Background()

	db, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := db.Set(ctx, "k", "durable"); err != nil {
		t.Fatalf("set: %v", err)
	}
	db.Close()

	db2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db2.Close()

	var out string
	found, err := db2.Get(ctx, "k", &out)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !found || out != "durable" {
		t.Errorf("got (%v, %q), want (true, durable)", found, out)
	}
}
