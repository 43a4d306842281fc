package history

import (
	"strconv"
	"testing"
	"time"
)

func TestRecordAssignsIDAndTimestamp(t *testing.T) {
	t.Parallel()
	log := New(4)
	entry := log.Record(Entry{Method: "GET", URL: "https://example.com"})
	if entry.ID == "" {
		t.Fatal("expected generated id")
	}
	if entry.ExecutedAt.IsZero() {
		t.Fatal("expected timestamp")
	}
	if log.Len() != 1 {
		t.Fatalf("len = %d", log.Len())
	}
}

func TestRingEvictsOldestNewestFirst(t *testing.T) {
	t.Parallel()
	log := New(3)
	for i := 1; i <= 5; i++ {
		log.Record(Entry{ID: strconv.Itoa(i), Method: "GET", URL: "https://example.com"})
	}
	if log.Len() != 3 {
		t.Fatalf("len = %d, want 3", log.Len())
	}
	got := log.All()
	want := []string{"5", "4", "3"}
	for i, entry := range got {
		if entry.ID != want[i] {
			t.Fatalf("entry %d = %q, want %q (all: %v)", i, entry.ID, want[i], got)
		}
	}
}

func TestFindByFingerprint(t *testing.T) {
	t.Parallel()
	log := New(10)
	fp := Fingerprint("GET", "https://example.com/users", nil)
	other := Fingerprint("GET", "https://example.com/orders", nil)
	log.Record(Entry{ID: "a", Fingerprint: fp})
	log.Record(Entry{ID: "b", Fingerprint: other})
	log.Record(Entry{ID: "c", Fingerprint: fp})

	got := log.Find(fp)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ID != "c" || got[1].ID != "a" {
		t.Fatalf("unexpected order: %v", got)
	}
}

func TestClear(t *testing.T) {
	t.Parallel()
	log := New(2)
	log.Record(Entry{ID: "a"})
	log.Record(Entry{ID: "b"})
	log.Clear()
	if log.Len() != 0 || len(log.All()) != 0 {
		t.Fatal("clear left entries behind")
	}
	entry := log.Record(Entry{ID: "c", ExecutedAt: time.Now()})
	if all := log.All(); len(all) != 1 || all[0].ID != entry.ID {
		t.Fatalf("record after clear broken: %v", all)
	}
}

func TestFingerprintBoundaries(t *testing.T) {
	t.Parallel()
	if Fingerprint("GET", "https://a", []byte("b")) == Fingerprint("GET", "https://ab", nil) {
		t.Fatal("field boundary collision")
	}
	if Fingerprint("get", "https://a", nil) != Fingerprint("GET", "https://a", nil) {
		t.Fatal("method should compare case-insensitively")
	}
	if Fingerprint("GET", "https://a", []byte("x")) == Fingerprint("GET", "https://a", []byte("y")) {
		t.Fatal("body must contribute to the fingerprint")
	}
}

func TestSnip(t *testing.T) {
	t.Parallel()
	if got := Snip([]byte("hello"), 10); got != "hello" {
		t.Fatalf("got %q", got)
	}
	if got := Snip([]byte("hello world"), 5); got != "hello..." {
		t.Fatalf("got %q", got)
	}
	if got := Snip([]byte("hello"), 0); got != "hello" {
		t.Fatalf("got %q", got)
	}
}
