package fixture_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/chopinframework/chopd/internal/fixture"
)

func TestHealthz(t *testing.T) {
	srv := fixture.NewServer()
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

// TestSlowTracksConcurrency drives N concurrent POST /slow requests
// directly at the fixture (bypassing any proxy), then checks that the
// /slow?max query answers 200. The reported maximum is only meaningful
// once something in front of the fixture serializes calls, so its value
// is not asserted here.
func TestSlowTracksConcurrency(t *testing.T) {
	srv := fixture.NewServer()
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	const n = 4
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := http.Post(ts.URL+"/slow", "application/json", nil)
			if err != nil {
				t.Errorf("POST /slow: %v", err)
				return
			}
			resp.Body.Close()
		}()
	}
	wg.Wait()

	resp, err := http.Get(ts.URL + "/slow?max=1")
	if err != nil {
		t.Fatalf("GET /slow?max: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestItemsCreateAndList(t *testing.T) {
	srv := fixture.NewServer()
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	resp, err := http.Post(ts.URL+"/api/items", "application/json", strings.NewReader(`{"name":"gamma","value":30}`))
	if err != nil {
		t.Fatalf("POST /api/items: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}

	listResp, err := http.Get(ts.URL + "/api/items")
	if err != nil {
		t.Fatalf("GET /api/items: %v", err)
	}
	defer listResp.Body.Close()
	if listResp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", listResp.StatusCode)
	}
}
