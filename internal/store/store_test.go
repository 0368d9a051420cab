package store

import (
	"errors"
	"testing"
)

// TestDBLookup tests typed lookup behavior against missing, matching and
// mismatching entries.
func TestDBLookup(t *testing.T) {
	t.Run("missing key returns ErrKeyNotFound", func(t *testing.T) {
		db := NewDB()

		_, err := db.Lookup("nope", KindSet)
		if !errors.Is(err, ErrKeyNotFound) {
			t.Errorf("Expected ErrKeyNotFound, got %v", err)
		}
	})

	t.Run("matching kind returns the entry", func(t *testing.T) {
		db := NewDB()

		e, inserted := db.AddOrFind("k")
		if !inserted {
			t.Fatal("Expected insertion of new key")
		}
		e.Kind = KindString
		e.Value = "v"

		got, err := db.Lookup("k", KindString)
		if err != nil {
			t.Fatalf("Lookup failed: %v", err)
		}
		if got != e {
			t.Error("Lookup returned a different entry")
		}
	})

	t.Run("kind mismatch returns ErrWrongType", func(t *testing.T) {
		db := NewDB()

		e, _ := db.AddOrFind("k")
		e.Kind = KindString
		e.Value = "v"

		_, err := db.Lookup("k", KindSet)
		if !errors.Is(err, ErrWrongType) {
			t.Errorf("Expected ErrWrongType, got %v", err)
		}
	})
}

// TestDBAddOrFind verifies locate-or-create semantics.
func TestDBAddOrFind(t *testing.T) {
	db := NewDB()

	e1, inserted := db.AddOrFind("k")
	if !inserted {
		t.Fatal("Expected first AddOrFind to insert")
	}

	e2, inserted := db.AddOrFind("k")
	if inserted {
		t.Error("Expected second AddOrFind to find, not insert")
	}
	if e1 != e2 {
		t.Error("Expected the same entry on both calls")
	}

	if db.Len() != 1 {
		t.Errorf("Expected 1 key, got %d", db.Len())
	}
}

// TestDBDelete verifies deletion by entry, including stale entries.
func TestDBDelete(t *testing.T) {
	db := NewDB()

	e, _ := db.AddOrFind("k")
	if !db.Delete(e) {
		t.Error("Expected delete of present entry to succeed")
	}
	if db.Find("k") != nil {
		t.Error("Expected key to be absent after delete")
	}

	// Deleting again is a no-op.
	if db.Delete(e) {
		t.Error("Expected delete of stale entry to report false")
	}
	if db.Delete(nil) {
		t.Error("Expected delete of nil entry to report false")
	}
}

// TestDBUpdateBrackets verifies that PreUpdate/PostUpdate bump versions
// and the database update counter.
func TestDBUpdateBrackets(t *testing.T) {
	db := NewDB()

	e, _ := db.AddOrFind("k")
	if e.Version() != 0 {
		t.Fatalf("Expected fresh entry version 0, got %d", e.Version())
	}

	db.PreUpdate(e)
	e.Value = "v1"
	db.PostUpdate(e)

	db.PreUpdate(e)
	e.Value = "v2"
	db.PostUpdate(e)

	if e.Version() != 2 {
		t.Errorf("Expected version 2, got %d", e.Version())
	}
	if db.Updates() != 2 {
		t.Errorf("Expected 2 completed update brackets, got %d", db.Updates())
	}
}
