//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"testing"
	"time"
)

// baseURL points at a running API instance; override via BLOG_API_URL.
var baseURL = "http://localhost:3000"

func TestMain(m *testing.M) {
	if url := os.Getenv("BLOG_API_URL"); url != "" {
		baseURL = url
	}

	if !checkService(baseURL+"/health", 5*time.Second) {
		fmt.Fprintf(os.Stderr, "Error: blog API not available at %s\n", baseURL)
		fmt.Fprintf(os.Stderr, "Please start it with: go run ./cmd/blog-api\n")
		os.Exit(1)
	}

	os.Exit(m.Run())
}

func checkService(url string, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

func postJSON(t *testing.T, path, token string, payload any) (*http.Response, map[string]any) {
	t.Helper()

	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+path, bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()

	var body map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&body)

	return resp, body
}

func TestHealth(t *testing.T) {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

// TestAuthorJourney walks the whole publishing flow: register, log in,
// create a draft, publish it and read it back by slug.
func TestAuthorJourney(t *testing.T) {
	email := fmt.Sprintf("e2e-%d@example.com", time.Now().UnixNano())

	resp, _ := postJSON(t, "/v1/auth/register", "", map[string]any{
		"name":     "E2E Author",
		"email":    email,
		"password": "a long enough password",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status = %d, want 201", resp.StatusCode)
	}

	resp, login := postJSON(t, "/v1/auth/login", "", map[string]any{
		"email":    email,
		"password": "a long enough password",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d, want 200", resp.StatusCode)
	}
	token, _ := login["token"].(string)
	if token == "" {
		t.Fatal("login response carried no token")
	}

	title := fmt.Sprintf("E2E Post %d", time.Now().UnixNano())
	resp, created := postJSON(t, "/v1/posts", token, map[string]any{
		"title":   title,
		"content": "content long enough to pass validation",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create post status = %d, want 201", resp.StatusCode)
	}
	postID, _ := created["id"].(string)
	slug, _ := created["slug"].(string)
	if postID == "" || slug == "" {
		t.Fatalf("create response = %v, want id and slug", created)
	}
	if published, _ := created["is_published"].(bool); published {
		t.Error("new post must start as a draft")
	}

	resp, published := postJSON(t, "/v1/posts/"+postID+"/publish", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("publish status = %d, want 200", resp.StatusCode)
	}
	if isPublished, _ := published["is_published"].(bool); !isPublished {
		t.Error("publish did not flip the state")
	}

	getResp, err := http.Get(baseURL + "/v1/posts/slug/" + slug)
	if err != nil {
		t.Fatalf("get by slug: %v", err)
	}
	defer getResp.Body.Close()
	if getResp.StatusCode != http.StatusOK {
		t.Errorf("get by slug status = %d, want 200", getResp.StatusCode)
	}
}

func TestAnonymousWritesRejected(t *testing.T) {
	resp, _ := postJSON(t, "/v1/posts", "", map[string]any{
		"title":   "Should Not Work",
		"content": "anonymous writes must be rejected",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestLoginRateLimited(t *testing.T) {
	payload := map[string]any{
		"email":    "nobody@example.com",
		"password": "definitely wrong",
	}

	sawLimit := false
	for i := 0; i < 20; i++ {
		resp, _ := postJSON(t, "/v1/auth/login", "", payload)
		if resp.StatusCode == http.StatusTooManyRequests {
			sawLimit = true
			break
		}
	}

	if !sawLimit {
		t.Error("expected repeated login failures to hit the guard")
	}
}
