package http

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visualmatch/console/config"
	"github.com/visualmatch/console/internal/domain"
	"github.com/visualmatch/console/internal/infrastructure/cache"
	"github.com/visualmatch/console/internal/infrastructure/metrics"
	"github.com/visualmatch/console/internal/infrastructure/preferences"
	"github.com/visualmatch/console/internal/infrastructure/searchapi"
	"github.com/visualmatch/console/internal/usecase"
)

// TestMain sets up test environment before running tests
func TestMain(m *testing.M) {
	// Set Gin to test mode once for all tests
	gin.SetMode(gin.TestMode)

	// Run tests
	exitCode := m.Run()

	// Exit with the test result code
	os.Exit(exitCode)
}

var pngData = []byte("\x89PNG\r\n\x1a\nfake image payload")

// fakeSearchAPI stands in for the visual search backend
type fakeSearchAPI struct {
	server *httptest.Server

	mu            sync.Mutex
	healthy       bool
	searchStatus  int
	searchCalls   int
	lastFilters   string
	lastTextQuery string
	lastImageTopK string
}

func newFakeSearchAPI(t *testing.T) *fakeSearchAPI {
	api := &fakeSearchAPI{healthy: true, searchStatus: http.StatusOK}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		api.mu.Lock()
		healthy := api.healthy
		api.mu.Unlock()
		if !healthy {
			writeJSON(w, http.StatusOK, `{"ok":false,"error":"index missing"}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"status":"ok","version":"1.2.0"}`)
	})
	mux.HandleFunc("GET /categories", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `["shoes","sneakers","handbags"]`)
	})
	mux.HandleFunc("GET /tags", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `["running","leather"]`)
	})
	mux.HandleFunc("POST /search", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			writeJSON(w, http.StatusBadRequest, `{"detail":"bad form"}`)
			return
		}
		api.mu.Lock()
		api.searchCalls++
		api.lastFilters = r.FormValue("filters")
		status := api.searchStatus
		api.mu.Unlock()

		if status != http.StatusOK {
			writeJSON(w, status, `{"detail":"index not ready"}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"items":[{"id":"p1","title":"Red Shoe","imageUrl":"http://x/1.jpg","price":49.99,"distanceScore":0.12}],"total":1,"tookMs":42}`)
	})
	mux.HandleFunc("POST /search-text", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Query string `json:"query"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		api.mu.Lock()
		api.lastTextQuery = body.Query
		api.mu.Unlock()
		writeJSON(w, http.StatusOK, `{"total":1,"top_k":5,"results":[{"filename":"boot.jpg","url":"/images/boot.jpg","score":0.9}]}`)
	})
	mux.HandleFunc("POST /search-image", func(w http.ResponseWriter, r *http.Request) {
		if _, _, err := r.FormFile("file"); err != nil {
			writeJSON(w, http.StatusBadRequest, `{"detail":"file is required"}`)
			return
		}
		api.mu.Lock()
		api.lastImageTopK = r.URL.Query().Get("top_k")
		status := api.searchStatus
		api.mu.Unlock()
		if status != http.StatusOK {
			writeJSON(w, status, `{"detail":"index not ready"}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"total":1,"top_k":3,"results":[{"filename":"sneaker.jpg","url":"/images/sneaker.jpg","score":0.8}]}`)
	})
	mux.HandleFunc("POST /precompute", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"ok":true}`)
	})
	mux.HandleFunc("GET /products/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "p1" {
			writeJSON(w, http.StatusNotFound, `{"detail":"unknown product"}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"id":"p1","title":"Red Shoe","imageUrl":"http://x/1.jpg","price":49.99}`)
	})
	mux.HandleFunc("GET /items", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `[{"filename":"a.jpg","url":"/images/a.jpg"}]`)
	})

	api.server = httptest.NewServer(mux)
	t.Cleanup(api.server.Close)
	return api
}

func (a *fakeSearchAPI) set(fn func(*fakeSearchAPI)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fn(a)
}

// apiCalls is what the fake API has seen so far
type apiCalls struct {
	searchCalls   int
	lastFilters   string
	lastTextQuery string
	lastImageTopK string
}

func (a *fakeSearchAPI) snapshot() apiCalls {
	a.mu.Lock()
	defer a.mu.Unlock()
	return apiCalls{
		searchCalls:   a.searchCalls,
		lastFilters:   a.lastFilters,
		lastTextQuery: a.lastTextQuery,
		lastImageTopK: a.lastImageTopK,
	}
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(body))
}

// testEnv is a fully wired console backed by the fake search API
type testEnv struct {
	router  *gin.Engine
	api     *fakeSearchAPI
	session *usecase.Session
	uploads *usecase.UploadController
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Port:           "8080",
			Environment:    "test",
			AllowedOrigins: []string{"http://localhost:*", "https://console.example.com"},
		},
		Cache: config.CacheConfig{
			Type: "memory",
			TTL:  time.Hour,
		},
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	api := newFakeSearchAPI(t)
	client := searchapi.NewClient(api.server.URL)
	m := metrics.New()

	session := usecase.NewSession(client, nil, usecase.SessionConfig{
		Text:     client,
		Image:    client,
		Recorder: m,
		ToastTTL: time.Minute,
	})
	t.Cleanup(func() { session.Close() })

	filters := usecase.NewFilterController(domain.PatchFrom(session.Filters()), session.SetFilters)

	memCache := cache.NewMemoryCache()
	t.Cleanup(func() { memCache.Close() })
	previews := usecase.NewCachePreviewStore(memCache, time.Hour)

	uploads := usecase.NewUploadController(previews, func(ctx context.Context, files []domain.ImageFile) error {
		_, err := session.Submit(ctx, files)
		return err
	})
	t.Cleanup(func() { uploads.Close() })

	paste := usecase.NewPasteBus()
	require.NoError(t, uploads.Mount(paste))

	system := usecase.NewSystemColorScheme(domain.ThemeLight)
	theme := usecase.NewThemeSetting(preferences.NewFileStore(filepath.Join(t.TempDir(), "prefs.yaml")), system, nil)
	theme.OnChange(m.ApplyTheme)
	theme.Init()
	t.Cleanup(theme.Close)

	handler := NewHandler(HandlerDeps{
		Session:  session,
		Filters:  filters,
		Uploads:  uploads,
		Paste:    paste,
		Previews: previews,
		Theme:    theme,
		System:   system,
		Catalog:  client,
	})
	if handler == nil {
		t.Fatal("NewHandler returned nil")
	}

	router := SetupRouter(testConfig(), handler, nil, m)
	if router == nil {
		t.Fatal("SetupRouter returned nil *gin.Engine")
	}

	return &testEnv{router: router, api: api, session: session, uploads: uploads}
}

func (e *testEnv) do(method, path string, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) doMultipart(path string, form *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, form)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

type formPart struct {
	field       string
	filename    string
	contentType string
	data        []byte
}

// multipartForm builds a form body; parts without a filename become plain fields
func multipartForm(t *testing.T, parts ...formPart) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for _, p := range parts {
		if p.filename == "" {
			require.NoError(t, writer.WriteField(p.field, string(p.data)))
			continue
		}
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", `form-data; name="`+p.field+`"; filename="`+p.filename+`"`)
		if p.contentType != "" {
			header.Set("Content-Type", p.contentType)
		}
		part, err := writer.CreatePart(header)
		require.NoError(t, err)
		_, err = part.Write(p.data)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	return &buf, writer.FormDataContentType()
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to unmarshal response %q: %v", w.Body.String(), err)
	}
	return response
}

// TestHealthCheckEndpoint tests the health check endpoint
func TestHealthCheckEndpoint(t *testing.T) {
	t.Run("returns healthy status", func(t *testing.T) {
		env := newTestEnv(t)

		w := env.do(http.MethodGet, "/health", "")

		if w.Code != http.StatusOK {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusOK)
		}

		response := decodeBody(t, w)
		if response["status"] != "healthy" {
			t.Errorf("status = %v, want healthy", response["status"])
		}
		if response["service"] != "visualmatch-console" {
			t.Errorf("service = %v, want visualmatch-console", response["service"])
		}
		version, ok := response["version"].(string)
		if !ok || strings.TrimSpace(version) == "" {
			t.Errorf("version = %v, want non-empty string", response["version"])
		}
	})

	t.Run("accepts GET requests only", func(t *testing.T) {
		env := newTestEnv(t)

		for _, method := range []string{"POST", "PUT", "DELETE", "PATCH"} {
			w := env.do(method, "/health", "")
			if w.Code != http.StatusNotFound {
				t.Errorf("Method %s: Status = %d, want %d", method, w.Code, http.StatusNotFound)
			}
		}
	})
}

func TestSessionEndpoints(t *testing.T) {
	t.Run("refresh loads health and metadata", func(t *testing.T) {
		env := newTestEnv(t)

		w := env.do(http.MethodPost, "/api/v1/session/refresh", "")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var snap usecase.SessionSnapshot
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
		assert.True(t, snap.Health.Online)
		assert.Equal(t, []string{"shoes", "sneakers", "handbags"}, snap.Categories)
		assert.Equal(t, []string{"running", "leather"}, snap.Tags)
		assert.Equal(t, domain.DefaultFilters(), snap.Filters)
		assert.Nil(t, snap.Results)

		health := decodeBody(t, env.do(http.MethodGet, "/health", ""))
		assert.Equal(t, map[string]interface{}{"checked": true, "online": true}, health["searchApi"])
	})

	t.Run("unhealthy API is surfaced without a toast", func(t *testing.T) {
		env := newTestEnv(t)
		env.api.set(func(a *fakeSearchAPI) { a.healthy = false })

		w := env.do(http.MethodPost, "/api/v1/session/refresh", "")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)

		snap := env.session.Snapshot()
		assert.False(t, snap.Health.Online)
		assert.Empty(t, snap.Toasts)
		assert.Len(t, snap.Categories, 3)
	})
}

func TestUploadEndpoint(t *testing.T) {
	t.Run("drop runs a search and serves previews", func(t *testing.T) {
		env := newTestEnv(t)

		form, contentType := multipartForm(t,
			formPart{field: "files", filename: "a.png", data: pngData},
			formPart{field: "files", filename: "b.png", contentType: "image/png", data: pngData},
		)
		w := env.doMultipart("/api/v1/uploads?source=drop", form, contentType)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var resp struct {
			Results  domain.SearchResponse `json:"results"`
			Previews []usecase.Preview     `json:"previews"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 1, resp.Results.Total)
		require.Len(t, resp.Previews, 2)
		assert.Equal(t, "a.png", resp.Previews[0].Name)

		preview := env.do(http.MethodGet, resp.Previews[0].URL, "")
		require.Equal(t, http.StatusOK, preview.Code)
		assert.Equal(t, "image/png", preview.Header().Get("Content-Type"))
		assert.Equal(t, pngData, preview.Body.Bytes())

		assert.Equal(t, 1, env.api.snapshot().searchCalls)
	})

	t.Run("results view renders the search", func(t *testing.T) {
		env := newTestEnv(t)

		form, contentType := multipartForm(t, formPart{field: "files", filename: "shoe.png", data: pngData})
		require.Equal(t, http.StatusOK, env.doMultipart("/api/v1/uploads", form, contentType).Code)

		w := env.do(http.MethodGet, "/api/v1/view/results", "")
		require.Equal(t, http.StatusOK, w.Code)

		var view usecase.ResultsView
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
		require.Len(t, view.Cards, 1)
		assert.Equal(t, "Red Shoe", view.Cards[0].Title)
		assert.Equal(t, "$49.99", view.Cards[0].PriceLabel)
		assert.Equal(t, "0.120", view.Cards[0].ScoreLabel)
		assert.Equal(t, "42 ms", view.ElapsedLabel)
	})

	t.Run("search failure keeps prior results and shows one error toast", func(t *testing.T) {
		env := newTestEnv(t)

		form, contentType := multipartForm(t, formPart{field: "files", filename: "shoe.png", data: pngData})
		require.Equal(t, http.StatusOK, env.doMultipart("/api/v1/uploads", form, contentType).Code)

		env.api.set(func(a *fakeSearchAPI) { a.searchStatus = http.StatusInternalServerError })
		form, contentType = multipartForm(t, formPart{field: "files", filename: "shoe.png", data: pngData})
		w := env.doMultipart("/api/v1/uploads", form, contentType)

		assert.Equal(t, http.StatusBadGateway, w.Code)
		assert.Equal(t, "index not ready", decodeBody(t, w)["error"])

		snap := env.session.Snapshot()
		require.NotNil(t, snap.Results)
		assert.Equal(t, 1, snap.Results.Total)
		require.Len(t, snap.Toasts, 1)
		assert.Equal(t, domain.ToastError, snap.Toasts[0].Kind)
		assert.Equal(t, "index not ready", snap.Toasts[0].Message)
	})

	t.Run("rejects bad requests", func(t *testing.T) {
		env := newTestEnv(t)

		form, contentType := multipartForm(t, formPart{field: "files", filename: "a.png", data: pngData})
		w := env.doMultipart("/api/v1/uploads?source=camera", form, contentType)
		assert.Equal(t, http.StatusBadRequest, w.Code)

		form, contentType = multipartForm(t, formPart{field: "other", data: []byte("x")})
		w = env.doMultipart("/api/v1/uploads", form, contentType)
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w = env.do(http.MethodPost, "/api/v1/uploads", `{"files":[]}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)

		assert.Equal(t, 0, env.api.snapshot().searchCalls)
	})

	t.Run("search carries the current filters", func(t *testing.T) {
		env := newTestEnv(t)

		w := env.do(http.MethodPost, "/api/v1/filters/actions", `{"action":"toggleColor","value":"red"}`)
		require.Equal(t, http.StatusOK, w.Code)

		form, contentType := multipartForm(t, formPart{field: "files", filename: "a.png", data: pngData})
		require.Equal(t, http.StatusOK, env.doMultipart("/api/v1/uploads", form, contentType).Code)

		var sent domain.Filters
		require.NoError(t, json.Unmarshal([]byte(env.api.snapshot().lastFilters), &sent))
		assert.Equal(t, []string{"red"}, sent.Colors)
	})
}

func TestClipboardEndpoint(t *testing.T) {
	t.Run("pasted image is searched", func(t *testing.T) {
		env := newTestEnv(t)

		form, contentType := multipartForm(t,
			formPart{field: "items", filename: "clip.png", data: pngData},
			formPart{field: "text", data: []byte("hello")},
		)
		w := env.doMultipart("/api/v1/clipboard", form, contentType)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		response := decodeBody(t, w)
		assert.Equal(t, float64(1), response["listeners"])
		assert.Len(t, response["previews"], 1)
		assert.Equal(t, 1, env.api.snapshot().searchCalls)
	})

	t.Run("text only paste is ignored", func(t *testing.T) {
		env := newTestEnv(t)

		form, contentType := multipartForm(t, formPart{field: "text", data: []byte("hello")})
		w := env.doMultipart("/api/v1/clipboard", form, contentType)
		require.Equal(t, http.StatusOK, w.Code)

		assert.Empty(t, env.uploads.Previews())
		assert.Equal(t, 0, env.api.snapshot().searchCalls)
	})
}

func TestFilterEndpoints(t *testing.T) {
	t.Run("actions update the session filters", func(t *testing.T) {
		env := newTestEnv(t)

		w := env.do(http.MethodPost, "/api/v1/filters/actions", `{"action":"priceMax","value":"abc"}`)
		require.Equal(t, http.StatusOK, w.Code)

		var filters domain.Filters
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &filters))
		assert.Equal(t, domain.PriceRange{Min: 0, Max: 0}, filters.Price)
		assert.Equal(t, filters, env.session.Filters())
	})

	t.Run("sync normalizes the price range", func(t *testing.T) {
		env := newTestEnv(t)

		w := env.do(http.MethodPut, "/api/v1/filters", `{"q":"boots","price":[500,100]}`)
		require.Equal(t, http.StatusOK, w.Code)

		var filters domain.Filters
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &filters))
		assert.Equal(t, "boots", filters.Query)
		assert.Equal(t, domain.PriceRange{Min: 100, Max: 500}, filters.Price)
		assert.Equal(t, "boots", env.session.Filters().Query)
	})

	t.Run("clear restores defaults", func(t *testing.T) {
		env := newTestEnv(t)
		env.do(http.MethodPost, "/api/v1/filters/actions", `{"action":"toggleTag","value":"logo"}`)

		w := env.do(http.MethodDelete, "/api/v1/filters", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, domain.DefaultFilters(), env.session.Filters())
	})

	t.Run("invalid actions are rejected", func(t *testing.T) {
		env := newTestEnv(t)

		assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/api/v1/filters/actions", `{"action":"explode"}`).Code)
		assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/api/v1/filters/actions", `{"value":"red"}`).Code)
		assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/api/v1/filters/actions", `{"action":"inStock","value":"maybe"}`).Code)
	})

	t.Run("suggest uses loaded metadata", func(t *testing.T) {
		env := newTestEnv(t)
		require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/api/v1/session/refresh", "").Code)

		w := env.do(http.MethodGet, "/api/v1/filters/suggest?q=red+running+sneakrs", "")
		require.Equal(t, http.StatusOK, w.Code)

		var suggestion usecase.FilterSuggestion
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &suggestion))
		assert.Equal(t, "sneakers", suggestion.Category)
		assert.Equal(t, []string{"running"}, suggestion.Tags)
		assert.Equal(t, []string{"red"}, suggestion.Colors)

		assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/api/v1/filters/suggest", "").Code)
	})
}

func TestSearchEndpoints(t *testing.T) {
	t.Run("text search cleans the query", func(t *testing.T) {
		env := newTestEnv(t)

		w := env.do(http.MethodPost, "/api/v1/search/text", `{"query":"Cheap black boots size 9","topK":5}`)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var resp domain.SearchResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Len(t, resp.Items, 1)
		assert.Equal(t, "boot", resp.Items[0].Title)
		assert.Equal(t, env.api.server.URL+"/images/boot.jpg", resp.Items[0].ImageURL)
		assert.Equal(t, "black boots", env.api.snapshot().lastTextQuery)
	})

	t.Run("text search requires a query", func(t *testing.T) {
		env := newTestEnv(t)
		assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/api/v1/search/text", `{"topK":5}`).Code)
	})

	t.Run("image search replaces results", func(t *testing.T) {
		env := newTestEnv(t)

		form, contentType := multipartForm(t,
			formPart{field: "file", filename: "query.png", data: pngData},
			formPart{field: "topK", data: []byte("3")},
		)
		w := env.doMultipart("/api/v1/search/image", form, contentType)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var resp domain.SearchResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Len(t, resp.Items, 1)
		assert.Equal(t, "sneaker", resp.Items[0].Title)
		assert.Equal(t, "3", env.api.snapshot().lastImageTopK)
		assert.Equal(t, 0, env.api.snapshot().searchCalls, "filtered search is not used")

		snap := env.session.Snapshot()
		require.NotNil(t, snap.Results)
		assert.Equal(t, "sneaker", snap.Results.Items[0].Title)
	})

	t.Run("image search defaults topK", func(t *testing.T) {
		env := newTestEnv(t)

		form, contentType := multipartForm(t, formPart{field: "file", filename: "query.png", data: pngData})
		w := env.doMultipart("/api/v1/search/image", form, contentType)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, "24", env.api.snapshot().lastImageTopK)
	})

	t.Run("image search failure shows an error toast", func(t *testing.T) {
		env := newTestEnv(t)
		env.api.set(func(a *fakeSearchAPI) { a.searchStatus = http.StatusInternalServerError })

		form, contentType := multipartForm(t, formPart{field: "file", filename: "query.png", data: pngData})
		w := env.doMultipart("/api/v1/search/image", form, contentType)
		assert.Equal(t, http.StatusBadGateway, w.Code)
		assert.Equal(t, "index not ready", decodeBody(t, w)["error"])

		toasts := env.session.Snapshot().Toasts
		require.Len(t, toasts, 1)
		assert.Equal(t, domain.ToastError, toasts[0].Kind)
	})

	t.Run("image search rejects bad input", func(t *testing.T) {
		env := newTestEnv(t)

		form, contentType := multipartForm(t, formPart{field: "topK", data: []byte("3")})
		assert.Equal(t, http.StatusBadRequest, env.doMultipart("/api/v1/search/image", form, contentType).Code)

		form, contentType = multipartForm(t,
			formPart{field: "file", filename: "query.png", data: pngData},
			formPart{field: "topK", data: []byte("many")},
		)
		assert.Equal(t, http.StatusBadRequest, env.doMultipart("/api/v1/search/image", form, contentType).Code)

		form, contentType = multipartForm(t, formPart{field: "file", filename: "empty.png", data: []byte{}})
		assert.Equal(t, http.StatusBadRequest, env.doMultipart("/api/v1/search/image", form, contentType).Code)
		assert.Empty(t, env.api.snapshot().lastImageTopK)
	})

	t.Run("cancel with nothing in flight", func(t *testing.T) {
		env := newTestEnv(t)

		w := env.do(http.MethodDelete, "/api/v1/search", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, false, decodeBody(t, w)["canceled"])
	})
}

func TestCatalogEndpoint(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/api/v1/catalog?limit=5", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Items  []domain.CatalogItem `json:"items"`
		Offset int                  `json:"offset"`
		Limit  int                  `json:"limit"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Items, 1)
	assert.Equal(t, env.api.server.URL+"/images/a.jpg", resp.Items[0].URL)
	assert.Equal(t, 5, resp.Limit)

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/api/v1/catalog?limit=abc", "").Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/api/v1/catalog?limit=0", "").Code)
}

func TestProductEndpoints(t *testing.T) {
	t.Run("get product", func(t *testing.T) {
		env := newTestEnv(t)

		w := env.do(http.MethodGet, "/api/v1/products/p1", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "Red Shoe", decodeBody(t, w)["title"])

		w = env.do(http.MethodGet, "/api/v1/products/nope", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "unknown product", decodeBody(t, w)["error"])
	})

	t.Run("similar and favorite are not available yet", func(t *testing.T) {
		env := newTestEnv(t)

		assert.Equal(t, http.StatusNotImplemented, env.do(http.MethodPost, "/api/v1/products/p1/similar", "").Code)
		assert.Equal(t, http.StatusNotImplemented, env.do(http.MethodPost, "/api/v1/products/p1/favorite", "").Code)

		toasts := env.session.Snapshot().Toasts
		require.Len(t, toasts, 2)
		assert.Equal(t, domain.ToastInfo, toasts[0].Kind)
		assert.Equal(t, 0, env.api.snapshot().searchCalls)
	})
}

func TestSelectionEndpoints(t *testing.T) {
	env := newTestEnv(t)

	form, contentType := multipartForm(t, formPart{field: "files", filename: "a.png", data: pngData})
	require.Equal(t, http.StatusOK, env.doMultipart("/api/v1/uploads", form, contentType).Code)

	w := env.do(http.MethodPost, "/api/v1/selection/p1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Red Shoe", decodeBody(t, w)["title"])
	require.NotNil(t, env.session.Snapshot().Selected)

	w = env.do(http.MethodPost, "/api/v1/keys/Escape", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeBody(t, w)["handled"])
	assert.Nil(t, env.session.Snapshot().Selected)

	w = env.do(http.MethodPost, "/api/v1/keys/Enter", "")
	assert.Equal(t, false, decodeBody(t, w)["handled"])

	env.do(http.MethodPost, "/api/v1/selection/p1", "")
	assert.Equal(t, http.StatusNoContent, env.do(http.MethodDelete, "/api/v1/selection", "").Code)
	assert.Nil(t, env.session.Snapshot().Selected)
}

func TestToastEndpoint(t *testing.T) {
	env := newTestEnv(t)
	toast := env.session.PushToast(domain.ToastInfo, "hello")

	assert.Equal(t, http.StatusNoContent, env.do(http.MethodDelete, "/api/v1/toasts/"+toast.ID, "").Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodDelete, "/api/v1/toasts/"+toast.ID, "").Code)
}

func TestPrecomputeEndpoint(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/v1/precompute", "")
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, true, decodeBody(t, w)["ok"])

	toasts := env.session.Snapshot().Toasts
	require.Len(t, toasts, 1)
	assert.Equal(t, domain.ToastSuccess, toasts[0].Kind)
}

func TestThemeEndpoints(t *testing.T) {
	env := newTestEnv(t)

	theme := decodeBody(t, env.do(http.MethodGet, "/api/v1/theme", ""))
	assert.Equal(t, "light", theme["theme"])
	assert.Equal(t, false, theme["explicit"])

	// Follows the OS while nothing is stored
	theme = decodeBody(t, env.do(http.MethodPost, "/api/v1/theme/system", `{"theme":"dark"}`))
	assert.Equal(t, "dark", theme["theme"])

	theme = decodeBody(t, env.do(http.MethodPut, "/api/v1/theme", `{"theme":"light"}`))
	assert.Equal(t, "light", theme["theme"])
	assert.Equal(t, true, theme["explicit"])

	// An explicit choice wins over later OS changes
	env.do(http.MethodPost, "/api/v1/theme/system", `{"theme":"light"}`)
	theme = decodeBody(t, env.do(http.MethodPost, "/api/v1/theme/system", `{"theme":"dark"}`))
	assert.Equal(t, "light", theme["theme"])
	assert.Equal(t, "dark", theme["system"])

	theme = decodeBody(t, env.do(http.MethodPost, "/api/v1/theme/toggle", ""))
	assert.Equal(t, "dark", theme["theme"])

	// The applied theme is exported as a gauge
	metricsBody := env.do(http.MethodGet, "/metrics", "").Body.String()
	assert.Contains(t, metricsBody, `visualmatch_theme_applied{theme="dark"} 1`)
	assert.Contains(t, metricsBody, `visualmatch_theme_applied{theme="light"} 0`)

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPut, "/api/v1/theme", `{"theme":"sepia"}`).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/api/v1/theme/system", `{}`).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.do(http.MethodGet, "/health", "")

	w := env.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `visualmatch_http_requests_total{method="GET",route="/health",status="200"} 1`)
}

// TestCORSIntegration tests CORS headers work end-to-end with full router
func TestCORSIntegration(t *testing.T) {
	t.Run("health endpoint has CORS for the dev server", func(t *testing.T) {
		env := newTestEnv(t)

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("Origin", "http://localhost:5173")
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusOK)
		}
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
			t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, "http://localhost:5173")
		}
		if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
			t.Errorf("Access-Control-Allow-Credentials = %q, want %q", got, "true")
		}
	})

	t.Run("api endpoint has CORS for the deployed console", func(t *testing.T) {
		env := newTestEnv(t)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/session", nil)
		req.Header.Set("Origin", "https://console.example.com")
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)

		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://console.example.com" {
			t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, "https://console.example.com")
		}
	})
}

// TestRecoveryMiddleware tests panic recovery
func TestRecoveryMiddleware(t *testing.T) {
	t.Run("recovers from panic without crashing server", func(t *testing.T) {
		env := newTestEnv(t)

		env.router.GET("/panic", func(c *gin.Context) {
			panic("test panic")
		})

		w := env.do(http.MethodGet, "/panic", "")

		// Gin's default recovery returns 500
		if w.Code != http.StatusInternalServerError {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusInternalServerError)
		}
	})
}

// TestAPIVersioning tests that API v1 routes are correctly versioned
func TestAPIVersioning(t *testing.T) {
	env := newTestEnv(t)

	if w := env.do(http.MethodGet, "/api/v1/session", ""); w.Code != http.StatusOK {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusOK)
	}

	for _, path := range []string{"/api/session", "/session", "/api/v2/session"} {
		if w := env.do(http.MethodGet, path, ""); w.Code != http.StatusNotFound {
			t.Errorf("Path %s: Status = %d, want %d", path, w.Code, http.StatusNotFound)
		}
	}
}

// TestJSONResponses tests that API responses are valid JSON
func TestJSONResponses(t *testing.T) {
	endpoints := []struct {
		method string
		path   string
	}{
		{"GET", "/health"},
		{"GET", "/api/v1/session"},
		{"GET", "/api/v1/view/results"},
		{"GET", "/api/v1/theme"},
		{"POST", "/api/v1/products/p1/similar"},
	}

	for _, endpoint := range endpoints {
		t.Run(endpoint.method+" "+endpoint.path, func(t *testing.T) {
			env := newTestEnv(t)

			w := env.do(endpoint.method, endpoint.path, "")

			gotContentType := w.Header().Get("Content-Type")
			wantContentType := "application/json; charset=utf-8"
			if gotContentType != wantContentType {
				t.Errorf("Content-Type = %q, want %q", gotContentType, wantContentType)
			}

			var response map[string]interface{}
			if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
				t.Errorf("Response should be valid JSON, got error: %v", err)
			}
		})
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid request", domain.ErrInvalidRequest, http.StatusBadRequest},
		{"product not found", domain.ErrProductNotFound, http.StatusNotFound},
		{"preview gone", domain.ErrCacheMiss, http.StatusNotFound},
		{"canceled", domain.ErrSearchCanceled, http.StatusConflict},
		{"not implemented", domain.ErrNotImplemented, http.StatusNotImplemented},
		{"api unavailable", domain.ErrAPIUnavailable, http.StatusServiceUnavailable},
		{"uploader closed", usecase.ErrUploaderClosed, http.StatusServiceUnavailable},
		{"api error", &domain.APIError{StatusCode: 500, Status: "500 Internal Server Error"}, http.StatusBadGateway},
		{"unknown", assert.AnError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusFor(tt.err); got != tt.want {
				t.Errorf("statusFor() = %d, want %d", got, tt.want)
			}
		})
	}
}
