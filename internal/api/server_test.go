package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/org/passvault/internal/crypto"
	"github.com/org/passvault/internal/storage"
	"github.com/org/passvault/internal/vault"
)

// --- helpers ---

func newTestVault(t *testing.T, store storage.Store) *vault.Vault {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	c, err := crypto.NewCipher(key)
	if err != nil {
		t.Fatalf("creating cipher: %v", err)
	}
	v, err := vault.New(store, c, vault.WithAuditor(InstrumentAuditor(nil)))
	if err != nil {
		t.Fatalf("creating vault: %v", err)
	}
	return v
}

func newTestStore(t *testing.T) *storage.SQLiteStore {
	t.Helper()
	store, err := storage.Open(context.Background(), filepath.Join(t.TempDir(), "vault.db"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newTestServer(t *testing.T, cfg Config) (http.Handler, *storage.SQLiteStore) {
	t.Helper()
	store := newTestStore(t)
	srv := NewServer(newTestVault(t, store), cfg)
	return srv.BuildRouter(), store
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("X-Vault-Token", token)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var result map[string]any
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("decoding response: %v (body: %s)", err, w.Body.String())
	}
	return result
}

func createCredential(t *testing.T, handler http.Handler, service, username, password string) int64 {
	t.Helper()
	w := doJSON(t, handler, http.MethodPost, "/v1/credentials", map[string]string{
		"service": service, "username": username, "password": password,
	}, "")
	if w.Code != http.StatusCreated {
		t.Fatalf("create failed: %d %s", w.Code, w.Body.String())
	}
	return int64(decodeBody(t, w)["id"].(float64))
}

// --- tests ---

func TestHealthEndpoint(t *testing.T) {
	handler, _ := newTestServer(t, Config{})
	createCredential(t, handler, "GitHub", "alice", "Secr3t!")

	w := doJSON(t, handler, http.MethodGet, "/v1/sys/health", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %v", body["status"])
	}
	if body["credentials"] != float64(1) {
		t.Errorf("expected 1 credential, got %v", body["credentials"])
	}
}

func TestHealthUnavailableWhenStoreClosed(t *testing.T) {
	handler, store := newTestServer(t, Config{})
	_ = store.Close()

	w := doJSON(t, handler, http.MethodGet, "/v1/sys/health", nil, "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
}

func TestCredentialLifecycle(t *testing.T) {
	handler, _ := newTestServer(t, Config{})

	id := createCredential(t, handler, "GitHub", "alice", "Secr3t!")
	if id != 1 {
		t.Errorf("expected id 1, got %d", id)
	}

	// Reveal
	w := doJSON(t, handler, http.MethodPost, fmt.Sprintf("/v1/credentials/%d/reveal", id), nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("reveal failed: %d %s", w.Code, w.Body.String())
	}
	if cc := w.Header().Get("Cache-Control"); cc != "no-store" {
		t.Errorf("expected Cache-Control no-store, got %q", cc)
	}
	if pw := decodeBody(t, w)["password"]; pw != "Secr3t!" {
		t.Errorf("expected password Secr3t!, got %v", pw)
	}

	// Update username only
	w = doJSON(t, handler, http.MethodPatch, fmt.Sprintf("/v1/credentials/%d", id), map[string]string{"username": "alice2"}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("update failed: %d %s", w.Code, w.Body.String())
	}
	if u := decodeBody(t, w)["username"]; u != "alice2" {
		t.Errorf("expected username alice2, got %v", u)
	}

	// Get
	w = doJSON(t, handler, http.MethodGet, fmt.Sprintf("/v1/credentials/%d", id), nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("get failed: %d %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["service"] != "GitHub" || body["username"] != "alice2" {
		t.Errorf("unexpected summary: %v", body)
	}
	if _, ok := body["password"]; ok {
		t.Error("summary must not carry a password")
	}

	// Secret unchanged by username update
	w = doJSON(t, handler, http.MethodPost, fmt.Sprintf("/v1/credentials/%d/reveal", id), nil, "")
	if pw := decodeBody(t, w)["password"]; pw != "Secr3t!" {
		t.Errorf("expected password unchanged, got %v", pw)
	}

	// Delete
	w = doJSON(t, handler, http.MethodDelete, fmt.Sprintf("/v1/credentials/%d", id), nil, "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete failed: %d %s", w.Code, w.Body.String())
	}
	w = doJSON(t, handler, http.MethodGet, fmt.Sprintf("/v1/credentials/%d", id), nil, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", w.Code)
	}
}

func TestListAndSearch(t *testing.T) {
	handler, _ := newTestServer(t, Config{})
	createCredential(t, handler, "GitHub", "alice", "a")
	createCredential(t, handler, "Mail", "bob", "b")
	last := createCredential(t, handler, "GitLab", "carol", "c")

	w := doJSON(t, handler, http.MethodGet, "/v1/credentials", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("list failed: %d %s", w.Code, w.Body.String())
	}
	data := decodeBody(t, w)["data"].([]any)
	if len(data) != 3 {
		t.Fatalf("expected 3 credentials, got %d", len(data))
	}
	if first := data[0].(map[string]any); first["id"] != float64(last) {
		t.Errorf("expected newest first, got id %v", first["id"])
	}
	for _, item := range data {
		if _, ok := item.(map[string]any)["password"]; ok {
			t.Error("list must not carry passwords")
		}
	}

	w = doJSON(t, handler, http.MethodGet, "/v1/credentials?q=git", nil, "")
	data = decodeBody(t, w)["data"].([]any)
	if len(data) != 2 {
		t.Errorf("expected 2 search results, got %d", len(data))
	}
}

func TestListEmptyReturnsArray(t *testing.T) {
	handler, _ := newTestServer(t, Config{})

	w := doJSON(t, handler, http.MethodGet, "/v1/credentials", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("list failed: %d", w.Code)
	}
	data, ok := decodeBody(t, w)["data"].([]any)
	if !ok || len(data) != 0 {
		t.Errorf("expected empty array, got %v", data)
	}
}

func TestCreateValidation(t *testing.T) {
	handler, store := newTestServer(t, Config{})

	w := doJSON(t, handler, http.MethodPost, "/v1/credentials", map[string]string{
		"service": "", "username": "alice", "password": "x",
	}, "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/credentials", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed body, got %d", rec.Code)
	}

	n, err := store.Count(context.Background())
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Errorf("expected no rows after rejected input, got %d", n)
	}
}

func TestUpdateValidation(t *testing.T) {
	handler, _ := newTestServer(t, Config{})
	id := createCredential(t, handler, "GitHub", "alice", "pw")

	w := doJSON(t, handler, http.MethodPatch, fmt.Sprintf("/v1/credentials/%d", id), map[string]string{}, "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty patch, got %d", w.Code)
	}
	w = doJSON(t, handler, http.MethodPatch, "/v1/credentials/999", map[string]string{"username": "x"}, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestInvalidAndMissingIDs(t *testing.T) {
	handler, _ := newTestServer(t, Config{})

	w := doJSON(t, handler, http.MethodGet, "/v1/credentials/abc", nil, "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for non-numeric id, got %d", w.Code)
	}
	w = doJSON(t, handler, http.MethodPost, "/v1/credentials/999/reveal", nil, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for reveal of missing id, got %d", w.Code)
	}
	w = doJSON(t, handler, http.MethodDelete, "/v1/credentials/999", nil, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for delete of missing id, got %d", w.Code)
	}
	body := decodeBody(t, w)
	if errs, ok := body["errors"].([]any); !ok || len(errs) != 1 {
		t.Errorf("expected errors array, got %v", body)
	}
}

func TestRevealWithWrongKey(t *testing.T) {
	store := newTestStore(t)
	writer := NewServer(newTestVault(t, store), Config{}).BuildRouter()
	id := createCredential(t, writer, "GitHub", "alice", "Secr3t!")

	reader := NewServer(newTestVault(t, store), Config{}).BuildRouter()
	w := doJSON(t, reader, http.MethodPost, fmt.Sprintf("/v1/credentials/%d/reveal", id), nil, "")
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d %s", w.Code, w.Body.String())
	}
	if bytes.Contains(w.Body.Bytes(), []byte("password")) {
		t.Errorf("error body should not look like a reveal result: %s", w.Body.String())
	}
}

func TestAPITokenRequired(t *testing.T) {
	handler, _ := newTestServer(t, Config{APIToken: "s3cr3t-token"})

	w := doJSON(t, handler, http.MethodGet, "/v1/credentials", nil, "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", w.Code)
	}
	w = doJSON(t, handler, http.MethodGet, "/v1/credentials", nil, "wrong")
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403 with wrong token, got %d", w.Code)
	}
	w = doJSON(t, handler, http.MethodGet, "/v1/credentials", nil, "s3cr3t-token")
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 with token, got %d", w.Code)
	}

	// Health stays public
	w = doJSON(t, handler, http.MethodGet, "/v1/sys/health", nil, "")
	if w.Code != http.StatusOK {
		t.Errorf("expected public health, got %d", w.Code)
	}
}

func TestRequestIDHeader(t *testing.T) {
	handler, _ := newTestServer(t, Config{})

	w1 := doJSON(t, handler, http.MethodGet, "/v1/sys/health", nil, "")
	w2 := doJSON(t, handler, http.MethodGet, "/v1/sys/health", nil, "")
	id1, id2 := w1.Header().Get("X-Request-ID"), w2.Header().Get("X-Request-ID")
	if id1 == "" || id2 == "" {
		t.Fatal("expected X-Request-ID on every response")
	}
	if id1 == id2 {
		t.Error("request ids should be unique")
	}
}

func TestRateLimit(t *testing.T) {
	handler, _ := newTestServer(t, Config{RateLimit: 1, RateBurst: 1})

	w := doJSON(t, handler, http.MethodGet, "/v1/sys/health", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected first request to pass, got %d", w.Code)
	}
	w = doJSON(t, handler, http.MethodGet, "/v1/sys/health", nil, "")
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	handler, _ := newTestServer(t, Config{})
	createCredential(t, handler, "GitHub", "alice", "pw")

	w := doJSON(t, handler, http.MethodGet, "/metrics", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	for _, name := range []string{"passvault_requests_total", "passvault_vault_operations_total"} {
		if !bytes.Contains(w.Body.Bytes(), []byte(name)) {
			t.Errorf("expected metric %s in output", name)
		}
	}
}
