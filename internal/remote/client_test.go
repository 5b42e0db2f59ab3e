package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/studiowebux/reviewload/internal/types"
)

type capturedRequest struct {
	method      string
	path        string
	contentType string
	body        map[string]any
}

func newCaptureServer(t *testing.T, status int, response string) (*httptest.Server, func() []capturedRequest) {
	t.Helper()
	var mu sync.Mutex
	var captured []capturedRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		captured = append(captured, capturedRequest{
			method:      r.Method,
			path:        r.URL.Path,
			contentType: r.Header.Get("Content-Type"),
			body:        body,
		})
		mu.Unlock()
		w.WriteHeader(status)
		w.Write([]byte(response))
	}))
	t.Cleanup(server.Close)

	return server, func() []capturedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]capturedRequest(nil), captured...)
	}
}

func TestClient_Endpoints(t *testing.T) {
	server, requests := newCaptureServer(t, http.StatusCreated, `{"pr":{"assigned_reviewers":["u1"]}}`)
	client, err := NewClient(Options{BaseURL: server.URL + "/"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	ctx := context.Background()

	team := types.Team{TeamName: "load-team-1", Members: []types.TeamMember{{UserID: "u1", Username: "user-1", IsActive: true}}}
	if _, err := client.CreateTeam(ctx, team); err != nil {
		t.Fatalf("CreateTeam: %v", err)
	}
	res, err := client.CreatePullRequest(ctx, types.CreatePullRequest{ID: "pr-1", Name: "Feature #1", AuthorID: "u1"})
	if err != nil {
		t.Fatalf("CreatePullRequest: %v", err)
	}
	if _, err := client.MergePullRequest(ctx, types.MergePullRequest{ID: "pr-1"}); err != nil {
		t.Fatalf("MergePullRequest: %v", err)
	}
	if _, err := client.ReassignReviewer(ctx, types.ReassignReviewer{ID: "pr-1", OldUserID: "u1"}); err != nil {
		t.Fatalf("ReassignReviewer: %v", err)
	}

	if res.Status != http.StatusCreated || string(res.Body) != `{"pr":{"assigned_reviewers":["u1"]}}` {
		t.Errorf("unexpected result %+v", res)
	}
	if res.RequestSize == 0 || res.ResponseSize != len(res.Body) {
		t.Errorf("sizes not recorded: %+v", res)
	}

	got := requests()
	if len(got) != 4 {
		t.Fatalf("expected 4 requests, got %d", len(got))
	}
	wantPaths := []string{PathTeamAdd, PathPullRequestCreate, PathPullRequestMerge, PathPullRequestReassign}
	for i, want := range wantPaths {
		if got[i].method != http.MethodPost || got[i].path != want {
			t.Errorf("request %d: expected POST %s, got %s %s", i, want, got[i].method, got[i].path)
		}
		if got[i].contentType != "application/json" {
			t.Errorf("request %d: unexpected content type %q", i, got[i].contentType)
		}
	}

	if got[0].body["team_name"] != "load-team-1" {
		t.Errorf("team body missing team_name: %v", got[0].body)
	}
	members, _ := got[0].body["members"].([]any)
	if len(members) != 1 || members[0].(map[string]any)["is_active"] != true {
		t.Errorf("unexpected members %v", got[0].body["members"])
	}
	if got[1].body["pull_request_id"] != "pr-1" || got[1].body["pull_request_name"] != "Feature #1" || got[1].body["author_id"] != "u1" {
		t.Errorf("unexpected create body %v", got[1].body)
	}
	if got[2].body["pull_request_id"] != "pr-1" {
		t.Errorf("unexpected merge body %v", got[2].body)
	}
	if got[3].body["old_user_id"] != "u1" {
		t.Errorf("unexpected reassign body %v", got[3].body)
	}
}

func TestClient_NonSuccessIsResult(t *testing.T) {
	server, _ := newCaptureServer(t, http.StatusConflict, `{"error":{"code":"PR_MERGED"}}`)
	client, err := NewClient(Options{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	res, err := client.MergePullRequest(context.Background(), types.MergePullRequest{ID: "pr-1"})
	if err != nil {
		t.Fatalf("a received response is not an error: %v", err)
	}
	if res.Status != http.StatusConflict || res.IsStatus(http.StatusOK) {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestClient_TransportError(t *testing.T) {
	client, err := NewClient(Options{BaseURL: "http://127.0.0.1:1", RequestTimeout: time.Second})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	res, err := client.CreateTeam(context.Background(), types.Team{TeamName: "t"})
	if err == nil {
		t.Fatal("expected a transport error")
	}
	if res != nil {
		t.Errorf("expected no result on transport error, got %+v", res)
	}
}

func TestClient_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, err := NewClient(Options{BaseURL: server.URL, RequestTimeout: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, err := client.MergePullRequest(context.Background(), types.MergePullRequest{ID: "pr"}); err == nil {
		t.Error("expected timeout error")
	}
}

func TestClient_RateLimit(t *testing.T) {
	server, requests := newCaptureServer(t, http.StatusOK, `{}`)
	client, err := NewClient(Options{BaseURL: server.URL, RatePerSecond: 10})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	// Burst of 10, then 10/s: 15 requests need at least ~500ms
	start := time.Now()
	for i := 0; i < 15; i++ {
		if _, err := client.MergePullRequest(context.Background(), types.MergePullRequest{ID: "pr"}); err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed < 400*time.Millisecond {
		t.Errorf("rate limit not applied, 15 requests took %v", elapsed)
	}
	if got := len(requests()); got != 15 {
		t.Errorf("expected 15 requests, got %d", got)
	}
}

func TestClient_RateLimitHonorsContext(t *testing.T) {
	server, _ := newCaptureServer(t, http.StatusOK, `{}`)
	client, err := NewClient(Options{BaseURL: server.URL, RatePerSecond: 0.5})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	ctx := context.Background()
	if _, err := client.MergePullRequest(ctx, types.MergePullRequest{ID: "pr"}); err != nil {
		t.Fatalf("first request should use the burst: %v", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if _, err := client.MergePullRequest(ctx, types.MergePullRequest{ID: "pr"}); err == nil {
		t.Error("expected the limiter wait to fail with the context")
	}
}

func TestNewClient_Validation(t *testing.T) {
	if _, err := NewClient(Options{}); err == nil {
		t.Error("expected error for empty base URL")
	}
	if _, err := NewClient(Options{BaseURL: "localhost:8080"}); err == nil {
		t.Error("expected error for base URL without scheme")
	}
	if _, err := NewClient(Options{BaseURL: "https://svc", TLS: &types.TLSConfig{CAFile: "/does/not/exist.pem"}}); err == nil {
		t.Error("expected error for missing CA file")
	}
	if _, err := NewClient(Options{BaseURL: "https://svc", TLS: &types.TLSConfig{InsecureSkipVerify: true}}); err != nil {
		t.Errorf("insecure TLS should be accepted: %v", err)
	}
}

func TestClient_TLS(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	strict, err := NewClient(Options{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, err := strict.MergePullRequest(context.Background(), types.MergePullRequest{ID: "pr"}); err == nil {
		t.Error("self-signed certificate should be rejected by default")
	}

	insecure, err := NewClient(Options{BaseURL: server.URL, TLS: &types.TLSConfig{InsecureSkipVerify: true}})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	res, err := insecure.MergePullRequest(context.Background(), types.MergePullRequest{ID: "pr"})
	if err != nil || res.Status != http.StatusOK {
		t.Errorf("insecure client should reach the server: %v %+v", err, res)
	}
}
