package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/MrSnakeDoc/shelf/internal/auth"
	"github.com/MrSnakeDoc/shelf/internal/backend"
	"github.com/MrSnakeDoc/shelf/internal/bookmarks"
	"github.com/MrSnakeDoc/shelf/internal/domain"
	"github.com/MrSnakeDoc/shelf/internal/feed"
	"github.com/MrSnakeDoc/shelf/internal/httpserver/deps"
	"github.com/MrSnakeDoc/shelf/internal/httpserver/mw"
	"github.com/MrSnakeDoc/shelf/internal/logger"
	"github.com/MrSnakeDoc/shelf/internal/store/memory"
)

type testServer struct {
	*httptest.Server
	repo *memory.Store
}

func newTestServer(t *testing.T, checks map[string]deps.Check) *testServer {
	t.Helper()
	authSvc := auth.NewService(auth.NewMemoryStore(), time.Hour, logger.Nop()).WithHashCost(bcrypt.MinCost)
	repo := memory.NewStore()
	hub := feed.NewHub()

	d := deps.Deps{
		Logger:         logger.Nop(),
		StartTime:      time.Now(),
		Version:        "test",
		Auth:           authSvc,
		Platform:       backend.New(authSvc, repo, hub, logger.Nop()),
		ReadyChecks:    checks,
		AuthRateBurst:  100,
		AuthRateRefill: time.Second,
		RefreshTimeout: time.Second,
		ImportMaxBytes: 1 << 16,
	}

	srv := httptest.NewServer(NewRouter(d))
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, repo: repo}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req, err := http.NewRequest(method, s.URL+path, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (s *testServer) login(t *testing.T, email string) string {
	t.Helper()
	creds := map[string]string{"email": email, "password": "password123"}
	resp := s.do(t, http.MethodPost, "/api/auth/signup", "", creds)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/api/auth/login", "", creds)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotEmpty(t, out.Token)
	return out.Token
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, nil)
	resp := s.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]any](t, resp)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["version"])
}

func TestReadyz(t *testing.T) {
	ok := newTestServer(t, map[string]deps.Check{
		"storage": func(context.Context) error { return nil },
	})
	assert.Equal(t, http.StatusOK, ok.do(t, http.MethodGet, "/readyz", "", nil).StatusCode)

	failing := newTestServer(t, map[string]deps.Check{
		"storage": func(context.Context) error { return nil },
		"redis":   func(context.Context) error { return errors.New("connection refused") },
	})
	resp := failing.do(t, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	body := decode[map[string]any](t, resp)
	assert.Equal(t, false, body["ready"])
}

func TestAuthFlow(t *testing.T) {
	s := newTestServer(t, nil)
	creds := map[string]string{"email": "alice@example.com", "password": "password123"}

	assert.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/auth/signup", "", creds).StatusCode)
	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodPost, "/api/auth/signup", "", creds).StatusCode)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/auth/signup", "",
		map[string]string{"email": "bob@example.com", "password": "short"}).StatusCode)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/auth/signup", "", "{not json").StatusCode)

	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodPost, "/api/auth/login", "",
		map[string]string{"email": "alice@example.com", "password": "wrong-password"}).StatusCode)

	resp := s.do(t, http.MethodPost, "/api/auth/login", "", creds)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var cookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == mw.SessionCookie {
			cookie = c
		}
	}
	require.NotNil(t, cookie, "login must set the session cookie")
	assert.True(t, cookie.HttpOnly)

	// The cookie alone authenticates.
	req, err := http.NewRequest(http.MethodGet, s.URL+"/api/bookmarks", nil)
	require.NoError(t, err)
	req.AddCookie(cookie)
	listResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = listResp.Body.Close()
	assert.Equal(t, http.StatusOK, listResp.StatusCode)

	token := cookie.Value
	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodPost, "/api/auth/logout", token, nil).StatusCode)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/bookmarks", token, nil).StatusCode)
}

func TestBookmarksRequireSession(t *testing.T) {
	s := newTestServer(t, nil)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/bookmarks", "", nil).StatusCode)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodPost, "/api/bookmarks", "nope",
		map[string]string{"title": "Go", "url": "https://go.dev"}).StatusCode)
}

func TestAddListDelete(t *testing.T) {
	s := newTestServer(t, nil)
	alice := s.login(t, "alice@example.com")
	bob := s.login(t, "bob@example.com")

	resp := s.do(t, http.MethodPost, "/api/bookmarks", alice, map[string]string{"title": " Go ", "url": "https://go.dev"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	added := decode[struct {
		Bookmark     domain.Bookmark         `json:"bookmark"`
		Notification *bookmarks.Notification `json:"notification"`
	}](t, resp)
	assert.Equal(t, "Go", added.Bookmark.Title)
	require.NotNil(t, added.Notification)
	assert.Equal(t, bookmarks.LevelSuccess, added.Notification.Level)

	list := decode[struct {
		Items []domain.Bookmark `json:"items"`
	}](t, s.do(t, http.MethodGet, "/api/bookmarks", alice, nil))
	require.Len(t, list.Items, 1)
	assert.Equal(t, added.Bookmark.ID, list.Items[0].ID)

	bobList := decode[struct {
		Items []domain.Bookmark `json:"items"`
	}](t, s.do(t, http.MethodGet, "/api/bookmarks", bob, nil))
	assert.Empty(t, bobList.Items)

	// Bob cannot delete Alice's row; zero rows is still success.
	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, "/api/bookmarks/"+added.Bookmark.ID, bob, nil).StatusCode)
	assert.Equal(t, 1, s.repo.Count())

	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, "/api/bookmarks/"+added.Bookmark.ID, alice, nil).StatusCode)
	assert.Equal(t, 0, s.repo.Count())

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodDelete, "/api/bookmarks/not-an-id", alice, nil).StatusCode)
}

func TestAddRejectsInvalidURL(t *testing.T) {
	s := newTestServer(t, nil)
	token := s.login(t, "alice@example.com")

	tests := []struct {
		name  string
		body  map[string]string
		field string
	}{
		{name: "relative url", body: map[string]string{"title": "Docs", "url": "/docs"}, field: "url"},
		{name: "not a url", body: map[string]string{"title": "Docs", "url": "not a url"}, field: "url"},
		{name: "missing title", body: map[string]string{"title": "  ", "url": "https://go.dev"}, field: "title"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := s.do(t, http.MethodPost, "/api/bookmarks", token, tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			body := decode[map[string]string](t, resp)
			assert.Equal(t, tt.field, body["field"])
			assert.Equal(t, 0, s.repo.Count(), "nothing may reach storage")
		})
	}
}

func TestImport(t *testing.T) {
	s := newTestServer(t, nil)
	token := s.login(t, "alice@example.com")

	doc := `---
- Developer:
    - Github:
        - abbr: GH
          href: https://github.com/
    - Broken:
        - href: /relative
`
	resp := s.do(t, http.MethodPost, "/api/bookmarks/import", token, doc)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	report := decode[struct {
		Added   int `json:"added"`
		Skipped []struct {
			Title string `json:"title"`
		} `json:"skipped"`
	}](t, resp)
	assert.Equal(t, 1, report.Added)
	require.Len(t, report.Skipped, 1)
	assert.Equal(t, "Broken", report.Skipped[0].Title)
	assert.Equal(t, 1, s.repo.Count())

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/bookmarks/import?kind=widgets", token, doc).StatusCode)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/bookmarks/import", token, "[unclosed").StatusCode)
	assert.Equal(t, http.StatusRequestEntityTooLarge, s.do(t, http.MethodPost, "/api/bookmarks/import", token,
		strings.Repeat("#", 1<<16+1)).StatusCode)
}

type frame struct {
	Type         string                  `json:"type"`
	State        *bookmarks.State        `json:"state"`
	Notification *bookmarks.Notification `json:"notification"`
	Error        string                  `json:"error"`
	Field        string                  `json:"field"`
}

func dialLive(t *testing.T, s *testServer, token string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(s.URL, "http")+"/api/live", &websocket.DialOptions{HTTPHeader: header})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

// awaitFrame reads until match returns true or the deadline passes.
func awaitFrame(t *testing.T, conn *websocket.Conn, match func(frame) bool) frame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	for {
		var f frame
		require.NoError(t, wsjson.Read(ctx, conn, &f))
		if match(f) {
			return f
		}
	}
}

func readyWith(n int) func(frame) bool {
	return func(f frame) bool {
		return f.Type == "state" && f.State != nil && f.State.Phase == bookmarks.PhaseReady && len(f.State.Items) == n
	}
}

func TestLiveSessionsConverge(t *testing.T) {
	s := newTestServer(t, nil)
	token := s.login(t, "alice@example.com")

	first := dialLive(t, s, token)
	second := dialLive(t, s, token)
	awaitFrame(t, first, readyWith(0))
	awaitFrame(t, second, readyWith(0))

	ctx := context.Background()
	require.NoError(t, wsjson.Write(ctx, first, map[string]string{"op": "add", "title": "Go", "url": "https://go.dev"}))

	note := awaitFrame(t, first, func(f frame) bool { return f.Type == "notification" })
	assert.Equal(t, bookmarks.LevelSuccess, note.Notification.Level)

	// The other tab converges through the change feed alone.
	st := awaitFrame(t, second, readyWith(1)).State
	id := st.Items[0].ID

	require.NoError(t, wsjson.Write(ctx, second, map[string]string{"op": "delete", "id": id}))
	awaitFrame(t, first, readyWith(0))
}

func TestLiveRejectsInvalidInput(t *testing.T) {
	s := newTestServer(t, nil)
	conn := dialLive(t, s, s.login(t, "alice@example.com"))
	awaitFrame(t, conn, readyWith(0))

	require.NoError(t, wsjson.Write(context.Background(), conn, map[string]string{"op": "add", "title": "Docs", "url": "/docs"}))
	f := awaitFrame(t, conn, func(f frame) bool { return f.Type == "error" })
	assert.Equal(t, "url", f.Field)
	assert.Equal(t, 0, s.repo.Count())

	require.NoError(t, wsjson.Write(context.Background(), conn, map[string]string{"op": "explode"}))
	f = awaitFrame(t, conn, func(f frame) bool { return f.Type == "error" })
	assert.Contains(t, f.Error, "unknown op")
}

func TestLiveAnonymous(t *testing.T) {
	s := newTestServer(t, nil)
	conn := dialLive(t, s, "")
	awaitFrame(t, conn, readyWith(0))

	require.NoError(t, wsjson.Write(context.Background(), conn, map[string]string{"op": "add", "title": "Go", "url": "https://go.dev"}))
	f := awaitFrame(t, conn, func(f frame) bool { return f.Type == "notification" })
	assert.Equal(t, bookmarks.LevelError, f.Notification.Level)
	assert.Equal(t, 0, s.repo.Count())
}
