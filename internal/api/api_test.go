package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/starford/othala/internal/index"
	"github.com/starford/othala/internal/noteservice"
	"github.com/starford/othala/internal/search"
	"github.com/starford/othala/internal/testutil"
)

// testEnv sets up a temp vault, SQLite DB, service, engine, and router.
// An empty token means auth is disabled.
func testEnv(t *testing.T, authToken string) http.Handler {
	t.Helper()

	db := testutil.TestDB(t)
	_, store := testutil.TestVault(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	maintainer := index.NewMaintainer(db, store, logger)
	svc := noteservice.NewService(store, db, maintainer)
	engine := search.NewEngine(db, store, logger)
	return NewRouter(svc, engine, authToken != "", authToken, nil)
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestNoteCRUD(t *testing.T) {
	router := testEnv(t, "")

	w := doJSON(t, router, http.MethodPost, "/notes", map[string]string{
		"path":    "notes/hello.md",
		"content": "---\ntitle: Hello\n---\n\n# Hello\nWorld\n",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	var created noteservice.NoteDetail
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}
	if created.ID == "" || created.Title != "Hello" {
		t.Fatalf("created = %+v", created)
	}

	w = doJSON(t, router, http.MethodGet, "/notes/"+created.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}

	w = doJSON(t, router, http.MethodPut, "/notes/"+created.ID, map[string]string{
		"content": "# Changed\n",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("update status = %d, body = %s", w.Code, w.Body.String())
	}
	var updated noteservice.NoteDetail
	_ = json.Unmarshal(w.Body.Bytes(), &updated)
	if updated.Title != "Changed" {
		t.Errorf("updated title = %q", updated.Title)
	}

	w = doJSON(t, router, http.MethodDelete, "/notes/"+created.ID, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", w.Code)
	}
	w = doJSON(t, router, http.MethodGet, "/notes/"+created.ID, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d", w.Code)
	}
}

func TestCreateNoteValidation(t *testing.T) {
	router := testEnv(t, "")

	w := doJSON(t, router, http.MethodPost, "/notes", map[string]string{"path": "x.md"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing content status = %d", w.Code)
	}

	w = doJSON(t, router, http.MethodPost, "/notes", map[string]string{"path": "x.md", "content": "a"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d", w.Code)
	}
	w = doJSON(t, router, http.MethodPost, "/notes", map[string]string{"path": "x.md", "content": "b"})
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate create status = %d", w.Code)
	}
}

func TestSimpleSearchEndpoint(t *testing.T) {
	router := testEnv(t, "")
	w := doJSON(t, router, http.MethodPost, "/notes", map[string]string{
		"path":    "notes/s.md",
		"content": "# Searchable\n\ncontains xylophone\n",
	})
	if w.Code != http.StatusCreated {
		t.Fatal(w.Body.String())
	}

	w = doJSON(t, router, http.MethodGet, "/search?q=xylophone", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("search status = %d", w.Code)
	}
	var resp struct {
		Results []json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 1 {
		t.Errorf("results = %d", len(resp.Results))
	}
}

func TestAdvancedSearchEndpoint(t *testing.T) {
	router := testEnv(t, "")
	_ = doJSON(t, router, http.MethodPost, "/notes", map[string]string{
		"path":    "notes/a.md",
		"content": "---\ntitle: A\nstatus: open\n---\n\nbody\n",
	})
	_ = doJSON(t, router, http.MethodPost, "/notes", map[string]string{
		"path":    "notes/b.md",
		"content": "---\ntitle: B\nstatus: done\n---\n\nbody\n",
	})

	w := doJSON(t, router, http.MethodPost, "/search/advanced", map[string]any{
		"metadata": []map[string]any{{"key": "status", "op": "=", "value": "open"}},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("advanced status = %d, body = %s", w.Code, w.Body.String())
	}
	var page search.Page
	if err := json.Unmarshal(w.Body.Bytes(), &page); err != nil {
		t.Fatal(err)
	}
	if page.Total != 1 || len(page.Results) != 1 {
		t.Errorf("page = %+v", page)
	}

	// Bad operator surfaces as a 400, not a 500.
	w = doJSON(t, router, http.MethodPost, "/search/advanced", map[string]any{
		"metadata": []map[string]any{{"key": "status", "op": "BOGUS", "value": "x"}},
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid operator status = %d", w.Code)
	}
}

func TestRawSearchEndpoint(t *testing.T) {
	router := testEnv(t, "")
	_ = doJSON(t, router, http.MethodPost, "/notes", map[string]string{
		"path": "notes/r.md", "content": "# R\n",
	})

	w := doJSON(t, router, http.MethodPost, "/search/raw", map[string]any{
		"query": "SELECT COUNT(*) AS total FROM notes",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("raw status = %d, body = %s", w.Code, w.Body.String())
	}
	var res search.RawResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if !res.Aggregated || len(res.Rows) != 1 {
		t.Errorf("res = %+v", res)
	}

	w = doJSON(t, router, http.MethodPost, "/search/raw", map[string]any{
		"query": "DROP TABLE notes",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("forbidden query status = %d", w.Code)
	}
}

func TestReindexEndpoint(t *testing.T) {
	router := testEnv(t, "")
	_ = doJSON(t, router, http.MethodPost, "/notes", map[string]string{
		"path": "notes/one.md", "content": "# One\n",
	})

	w := doJSON(t, router, http.MethodPost, "/reindex", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("reindex status = %d", w.Code)
	}
	var resp struct {
		Processed int `json:"processed"`
		Total     int `json:"total"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 1 || resp.Processed != 1 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestAuthMiddleware(t *testing.T) {
	router := testEnv(t, "secret-token")

	req := httptest.NewRequest(http.MethodGet, "/notes", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token status = %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/notes", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token status = %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/notes", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("valid token status = %d", w.Code)
	}
}
