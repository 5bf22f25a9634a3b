package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHubClientFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/casts" {
			t.Errorf("path = %q, want /v1/casts", r.URL.Path)
		}
		if got := r.URL.Query().Get("channel"); got != "degen" {
			t.Errorf("channel = %q, want degen", got)
		}
		if got := r.URL.Query().Get("limit"); got != "50" {
			t.Errorf("limit = %q, want 50", got)
		}
		fmt.Fprint(w, `{"casts":[
			{"hash":"0xb","author_fid":19841,"username":"bob","text":"second","timestamp":"2026-03-01T12:01:00Z","likes":1},
			{"hash":"0xa","author_fid":3621,"username":"alice","text":"first","timestamp":"2026-03-01T12:00:00Z","recasts":2}
		]}`)
	}))
	defer srv.Close()

	h := NewHubClient(srv.URL, 5*time.Second, 100)
	casts, err := h.FetchCasts(context.Background(), "degen", time.Time{}, 50)
	if err != nil {
		t.Fatalf("FetchCasts: %v", err)
	}
	if len(casts) != 2 {
		t.Fatalf("casts = %d, want 2", len(casts))
	}
	// Out-of-order upstream response is re-sorted by timestamp.
	if casts[0].ID != "0xa" || casts[1].ID != "0xb" {
		t.Errorf("order = %s, %s, want 0xa then 0xb", casts[0].ID, casts[1].ID)
	}
	if casts[0].AuthorID != "3621" {
		t.Errorf("author = %q, want the FID as string", casts[0].AuthorID)
	}
	if casts[0].Reposts != 2 {
		t.Errorf("reposts = %d, want recasts mapped to 2", casts[0].Reposts)
	}
}

func TestHubClientSinceParam(t *testing.T) {
	var gotSince string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSince = r.URL.Query().Get("since")
		fmt.Fprint(w, `{"casts":[]}`)
	}))
	defer srv.Close()

	h := NewHubClient(srv.URL, 5*time.Second, 100)
	since := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if _, err := h.FetchCasts(context.Background(), "ch", since, 10); err != nil {
		t.Fatal(err)
	}
	if gotSince != "2026-03-01T12:00:00Z" {
		t.Errorf("since param = %q", gotSince)
	}
}

func TestHubClientServerErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	h := NewHubClient(srv.URL, 5*time.Second, 100)
	_, err := h.FetchCasts(context.Background(), "ch", time.Time{}, 10)
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("5xx error = %v, want ErrUnavailable", err)
	}
}

func TestHubClientClientErrorTerminal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such channel", http.StatusNotFound)
	}))
	defer srv.Close()

	h := NewHubClient(srv.URL, 5*time.Second, 100)
	_, err := h.FetchCasts(context.Background(), "ch", time.Time{}, 10)
	if err == nil {
		t.Fatal("4xx did not error")
	}
	if errors.Is(err, ErrUnavailable) {
		t.Errorf("4xx marked transient: %v", err)
	}
}

func TestHubClientConnectionRefused(t *testing.T) {
	// A server that is immediately closed leaves a port nothing listens on.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	h := NewHubClient(url, time.Second, 100)
	_, err := h.FetchCasts(context.Background(), "ch", time.Time{}, 10)
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("connection failure = %v, want ErrUnavailable", err)
	}
}

func TestHubClientContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	h := NewHubClient(srv.URL, 10*time.Second, 100)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := h.FetchCasts(ctx, "ch", time.Time{}, 10)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("cancelled fetch = %v, want context deadline", err)
	}
}

func TestHubClientMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"casts": [truncated`)
	}))
	defer srv.Close()

	h := NewHubClient(srv.URL, 5*time.Second, 100)
	_, err := h.FetchCasts(context.Background(), "ch", time.Time{}, 10)
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("malformed body = %v, want ErrUnavailable (retry next tick)", err)
	}
}

func TestSimSourceOrderedAndBounded(t *testing.T) {
	s := NewSimSource(1)
	batch, err := s.FetchCasts(context.Background(), "test", time.Time{}, 10)
	if err != nil {
		t.Fatalf("FetchCasts: %v", err)
	}
	if len(batch) == 0 {
		t.Fatal("sim returned no casts on first poll")
	}
	if len(batch) > 10 {
		t.Errorf("batch = %d casts, want at most the limit 10", len(batch))
	}
	for i := 1; i < len(batch); i++ {
		if batch[i].Timestamp.Before(batch[i-1].Timestamp) {
			t.Fatalf("timestamps out of order at %d: %v before %v",
				i, batch[i].Timestamp, batch[i-1].Timestamp)
		}
	}
	for _, c := range batch {
		if !c.Valid() {
			t.Errorf("sim emitted invalid cast %+v", c)
		}
	}
}

func TestSimSourceUniqueIDs(t *testing.T) {
	s := NewSimSource(7)
	seen := make(map[string]bool)
	for i := 0; i < 5; i++ {
		batch, err := s.FetchCasts(context.Background(), "test", time.Time{}, 100)
		if err != nil {
			t.Fatal(err)
		}
		for _, c := range batch {
			if seen[c.ID] {
				t.Fatalf("duplicate cast ID %s", c.ID)
			}
			seen[c.ID] = true
		}
	}
}

func TestSimSourceCancelled(t *testing.T) {
	s := NewSimSource(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.FetchCasts(ctx, "test", time.Time{}, 10); err == nil {
		t.Error("cancelled context did not error")
	}
}

func TestSimSourceBurstsEventually(t *testing.T) {
	s := NewSimSource(3)

	// The first poll of a channel is always a burst: several authors
	// posting the same phrase.
	batch, err := s.FetchCasts(context.Background(), "test", time.Time{}, 100)
	if err != nil {
		t.Fatal(err)
	}
	texts := make(map[string]int)
	authors := make(map[string]bool)
	for _, c := range batch {
		texts[c.Text]++
		authors[c.AuthorID] = true
	}
	maxRepeat := 0
	for _, n := range texts {
		if n > maxRepeat {
			maxRepeat = n
		}
	}
	if maxRepeat < 3 {
		t.Errorf("burst poll max phrase repetition = %d, want >= 3", maxRepeat)
	}
	if len(authors) < 3 {
		t.Errorf("burst poll distinct authors = %d, want >= 3", len(authors))
	}
}
