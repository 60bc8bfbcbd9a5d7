package chopin_test

import (
	"testing"

	"github.com/chopinframework/chopd/internal/chopin"
)

func TestContextStoreAppendOrderAndUnknownId(t *testing.T) {
	s := chopin.NewContextStore()
	s.Create("req-1")

	if !s.Append("req-1", []byte("a")) {
		t.Fatal("Append on known id returned false")
	}
	if !s.Append("req-1", []byte("b")) {
		t.Fatal("Append on known id returned false")
	}
	if s.Append("req-unknown", []byte("c")) {
		t.Fatal("Append on unknown id returned true, want false")
	}

	got := s.Get("req-1")
	want := []string{"a", "b"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("Get(req-1) = %v, want %v", got, want)
	}
}

func TestContextStoreCreateIsIdempotent(t *testing.T) {
	s := chopin.NewContextStore()
	s.Create("req-1")
	s.Append("req-1", []byte("a"))
	s.Create("req-1") // must not wipe history

	got := s.Get("req-1")
	if len(got) != 1 || got[0] != "a" {
		t.Fatalf("Get(req-1) after re-Create = %v, want [a]", got)
	}
}

func TestLogStoreCompleteAndFail(t *testing.T) {
	logs := chopin.NewLogStore()
	ctx := chopin.NewContextStore()

	logs.Append(&chopin.LogEntry{RequestId: "1"})
	logs.Append(&chopin.LogEntry{RequestId: "2"})

	logs.Complete("1", &chopin.Response{Status: 200, Body: "ok"})
	logs.Fail("2", "boom")

	snap := logs.Snapshot(ctx)
	if len(snap) != 2 {
		t.Fatalf("Snapshot length = %d, want 2", len(snap))
	}
	if snap[0].Response == nil || snap[0].Response.Status != 200 {
		t.Fatalf("entry 1 Response = %+v, want Status 200", snap[0].Response)
	}
	if snap[1].ResponseError != "boom" {
		t.Fatalf("entry 2 ResponseError = %q, want %q", snap[1].ResponseError, "boom")
	}
	for _, e := range snap {
		if e.Contexts == nil {
			t.Fatalf("entry %s Contexts = nil, want non-nil empty slice", e.RequestId)
		}
	}
}
