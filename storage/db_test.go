package storage

import (
	"errors"
	"testing"
)

func TestMemDBRoundTrip(t *testing.T) {
	db := NewMemDB()
	defer db.Close()

	if _, err := db.Get([]byte("missing")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
	ok, err := db.Has([]byte("missing"))
	if err != nil || ok {
		t.Fatalf("Has missing = (%v, %v)", ok, err)
	}

	if err := db.Put([]byte("k"), []byte("v1")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := db.Get([]byte("k"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "v1" {
		t.Fatalf("value = %q", got)
	}
	ok, err = db.Has([]byte("k"))
	if err != nil || !ok {
		t.Fatalf("Has = (%v, %v)", ok, err)
	}

	if err := db.Put([]byte("k"), []byte("v2")); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, _ = db.Get([]byte("k"))
	if string(got) != "v2" {
		t.Fatalf("value after overwrite = %q", got)
	}
}

func TestMemDBCopiesValues(t *testing.T) {
	db := NewMemDB()
	value := []byte("original")
	if err := db.Put([]byte("k"), value); err != nil {
		t.Fatalf("Put: %v", err)
	}
	value[0] = 'X'

	got, err := db.Get([]byte("k"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "original" {
		t.Fatalf("stored value mutated: %q", got)
	}

	got[0] = 'Y'
	again, _ := db.Get([]byte("k"))
	if string(again) != "original" {
		t.Fatalf("returned slice aliases storage: %q", again)
	}
}

func TestMemDBIterate(t *testing.T) {
	db := NewMemDB()
	for _, k := range []string{"a/2", "a/1", "b/1", "a/3"} {
		if err := db.Put([]byte(k), []byte(k)); err != nil {
			t.Fatalf("Put %s: %v", k, err)
		}
	}

	var seen []string
	err := db.Iterate([]byte("a/"), func(key, value []byte) (bool, error) {
		seen = append(seen, string(key))
		return true, nil
	})
	if err != nil {
		t.Fatalf("Iterate: %v", err)
	}
	want := []string{"a/1", "a/2", "a/3"}
	if len(seen) != len(want) {
		t.Fatalf("seen = %v", seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("seen = %v, want %v", seen, want)
		}
	}

	// Early stop.
	seen = nil
	err = db.Iterate([]byte("a/"), func(key, value []byte) (bool, error) {
		seen = append(seen, string(key))
		return false, nil
	})
	if err != nil || len(seen) != 1 {
		t.Fatalf("early stop: seen=%v err=%v", seen, err)
	}

	// Error propagation.
	wantErr := errors.New("boom")
	err = db.Iterate([]byte("a/"), func(key, value []byte) (bool, error) {
		return false, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("got %v, want boom", err)
	}
}
