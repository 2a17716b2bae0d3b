package twitchapi

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
)

func newTokenServer(t *testing.T, calls *atomic.Int32, token string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if got := r.FormValue("grant_type"); got != "client_credentials" {
			t.Errorf("grant_type = %q, want client_credentials", got)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":%q,"expires_in":3600,"token_type":"bearer"}`, token)
	}))
}

func TestTokenSourceCachesToken(t *testing.T) {
	var calls atomic.Int32
	srv := newTokenServer(t, &calls, "tok-1")
	defer srv.Close()

	ts := &TokenSource{ClientID: "id", ClientSecret: "secret", TokenURL: srv.URL}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		tok, err := ts.Get(ctx)
		if err != nil {
			t.Fatalf("Get #%d: %v", i, err)
		}
		if tok != "tok-1" {
			t.Errorf("Get #%d = %q, want tok-1", i, tok)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("token endpoint hit %d times, want 1", got)
	}
}

func TestTokenSourceInvalidateForcesRefresh(t *testing.T) {
	var calls atomic.Int32
	srv := newTokenServer(t, &calls, "tok-x")
	defer srv.Close()

	ts := &TokenSource{ClientID: "id", ClientSecret: "secret", TokenURL: srv.URL}
	ctx := context.Background()

	if _, err := ts.Get(ctx); err != nil {
		t.Fatalf("Get: %v", err)
	}
	ts.Invalidate()
	if _, err := ts.Get(ctx); err != nil {
		t.Fatalf("Get after Invalidate: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("token endpoint hit %d times, want 2", got)
	}
}

func TestTokenSourceMissingCredentials(t *testing.T) {
	ts := &TokenSource{}
	if _, err := ts.Get(context.Background()); err == nil {
		t.Fatal("expected error without client id/secret")
	}
}

func helixPair(t *testing.T, streamsHandler http.HandlerFunc) (*HelixClient, func()) {
	t.Helper()
	var calls atomic.Int32
	tokenSrv := newTokenServer(t, &calls, "app-token")
	helixSrv := httptest.NewServer(streamsHandler)
	hc := &HelixClient{
		AppTokenSource: &TokenSource{ClientID: "id", ClientSecret: "secret", TokenURL: tokenSrv.URL},
		ClientID:       "id",
		BaseURL:        helixSrv.URL,
	}
	return hc, func() { tokenSrv.Close(); helixSrv.Close() }
}

func TestGetStreamsEmptyInput(t *testing.T) {
	hc := &HelixClient{AppTokenSource: &TokenSource{}}
	streams, err := hc.GetStreams(context.Background(), nil)
	if err != nil {
		t.Fatalf("GetStreams: %v", err)
	}
	if streams != nil {
		t.Errorf("expected nil result, got %v", streams)
	}
}

func TestGetStreamsReturnsLive(t *testing.T) {
	hc, closeAll := helixPair(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Client-Id"); got != "id" {
			t.Errorf("Client-Id = %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer app-token" {
			t.Errorf("Authorization = %q", got)
		}
		logins := r.URL.Query()["user_login"]
		if len(logins) != 2 {
			t.Errorf("user_login = %v, want 2 entries", logins)
		}
		fmt.Fprint(w, `{"data":[{"id":"555","user_login":"alpha","title":"hi","started_at":"2026-08-30T10:00:00Z"}]}`)
	})
	defer closeAll()

	streams, err := hc.GetStreams(context.Background(), []string{"alpha", "beta"})
	if err != nil {
		t.Fatalf("GetStreams: %v", err)
	}
	if len(streams) != 1 || streams[0].ID != "555" || streams[0].UserLogin != "alpha" {
		t.Errorf("streams = %+v", streams)
	}
}

func TestGetStreamsRetriesOnceOn401(t *testing.T) {
	var calls atomic.Int32
	hc, closeAll := helixPair(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"data":[{"id":"9","user_login":"alpha","title":"back"}]}`)
	})
	defer closeAll()

	streams, err := hc.GetStreams(context.Background(), []string{"alpha"})
	if err != nil {
		t.Fatalf("GetStreams: %v", err)
	}
	if len(streams) != 1 || streams[0].ID != "9" {
		t.Errorf("streams = %+v", streams)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("helix hit %d times, want 2", got)
	}
}

func TestGetStreamsGivesUpOnSecond401(t *testing.T) {
	var calls atomic.Int32
	hc, closeAll := helixPair(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})
	defer closeAll()

	if _, err := hc.GetStreams(context.Background(), []string{"alpha"}); err == nil {
		t.Fatal("expected error after repeated 401")
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("helix hit %d times, want exactly 2", got)
	}
}

func TestGetStreamsBatchesLargeInput(t *testing.T) {
	var mu sync.Mutex
	var perBatch []int
	hc, closeAll := helixPair(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		perBatch = append(perBatch, len(r.URL.Query()["user_login"]))
		mu.Unlock()
		fmt.Fprint(w, `{"data":[]}`)
	})
	defer closeAll()

	logins := make([]string, 250)
	for i := range logins {
		logins[i] = fmt.Sprintf("user%d", i)
	}
	if _, err := hc.GetStreams(context.Background(), logins); err != nil {
		t.Fatalf("GetStreams: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	want := []int{100, 100, 50}
	if len(perBatch) != len(want) {
		t.Fatalf("batches = %d, want %d", len(perBatch), len(want))
	}
	for i, n := range perBatch {
		if n != want[i] {
			t.Errorf("batch %d carried %d logins, want %d", i, n, want[i])
		}
	}
}
