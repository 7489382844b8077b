package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recipescan/internal/api"
	"recipescan/internal/extract"
	"recipescan/internal/platform/events"
	"recipescan/internal/platform/metrics"
	"recipescan/internal/recipe"
)

const testUser = "user-1"

// mockExtractor is a mock of the extraction pipeline.
type mockExtractor struct {
	recipe   *recipe.Recipe
	err      error
	calls    int
	mimeType string
}

func (m *mockExtractor) ExtractRecipe(ctx context.Context, data []byte, mimeType string) (*recipe.Recipe, error) {
	m.calls++
	m.mimeType = mimeType
	if m.err != nil {
		return nil, m.err
	}
	return m.recipe, nil
}

// mockModels is a mock of the model lister.
type mockModels struct {
	models []string
	err    error
}

func (m *mockModels) ListModels(ctx context.Context) ([]string, error) {
	return m.models, m.err
}

// mockRecipeStore is a mock of the RecipeStore.
type mockRecipeStore struct {
	recipes map[string]*recipe.StoredRecipe
}

// NewMockRecipeStore creates a new mockRecipeStore.
func NewMockRecipeStore() *mockRecipeStore {
	return &mockRecipeStore{recipes: make(map[string]*recipe.StoredRecipe)}
}

func (m *mockRecipeStore) FindByUserAndFingerprint(ctx context.Context, userID, fingerprint string) (*recipe.StoredRecipe, error) {
	for _, r := range m.recipes {
		if r.UserID == userID && r.FileHash != nil && *r.FileHash == fingerprint {
			return r, nil
		}
	}
	return nil, nil
}

func (m *mockRecipeStore) Create(ctx context.Context, r *recipe.StoredRecipe) error {
	if r.FileHash != nil {
		if existing, _ := m.FindByUserAndFingerprint(ctx, r.UserID, *r.FileHash); existing != nil {
			return recipe.ErrDuplicate
		}
	}
	c := *r
	m.recipes[r.ID] = &c
	return nil
}

func (m *mockRecipeStore) Get(ctx context.Context, userID, id string) (*recipe.StoredRecipe, error) {
	r, ok := m.recipes[id]
	if !ok || r.UserID != userID {
		return nil, nil
	}
	c := *r
	return &c, nil
}

func (m *mockRecipeStore) List(ctx context.Context, userID string) ([]*recipe.StoredRecipe, error) {
	var out []*recipe.StoredRecipe
	for _, r := range m.recipes {
		if r.UserID == userID {
			c := *r
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *mockRecipeStore) Update(ctx context.Context, r *recipe.StoredRecipe) error {
	if _, ok := m.recipes[r.ID]; !ok {
		return recipe.ErrNotFound
	}
	c := *r
	m.recipes[r.ID] = &c
	return nil
}

func (m *mockRecipeStore) Delete(ctx context.Context, userID, id string) error {
	r, ok := m.recipes[id]
	if !ok || r.UserID != userID {
		return recipe.ErrNotFound
	}
	delete(m.recipes, id)
	return nil
}

// mockCache is a mock of the fingerprint cache.
type mockCache struct {
	recipes     map[string]*recipe.StoredRecipe
	lookups     int
	invalidated []string
}

func (m *mockCache) Lookup(ctx context.Context, fingerprint string) (*recipe.StoredRecipe, error) {
	m.lookups++
	return m.recipes[fingerprint], nil
}

func (m *mockCache) Invalidate(ctx context.Context, fingerprint string) error {
	m.invalidated = append(m.invalidated, fingerprint)
	return nil
}

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu        sync.Mutex
	events    []events.Event
	deadlines []time.Time
}

func (p *recordingPublisher) Publish(ctx context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	deadline, _ := ctx.Deadline()
	p.deadlines = append(p.deadlines, deadline)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.Type
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type testServer struct {
	router    *gin.Engine
	extractor *mockExtractor
	store     *mockRecipeStore
	cache     *mockCache
	events    *recordingPublisher
	metrics   *metrics.Metrics
	uploadDir string
}

func newTestServer(t *testing.T, opts ...api.Option) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ts := &testServer{
		extractor: &mockExtractor{recipe: &recipe.Recipe{
			RecipeName:   "Pancakes",
			Ingredients:  []recipe.Ingredient{{Quantity: "2", Unit: "cups", Item: "flour"}},
			Instructions: []recipe.InstructionStep{{StepNumber: 1, Text: "Mix"}},
		}},
		store:     NewMockRecipeStore(),
		cache:     &mockCache{recipes: map[string]*recipe.StoredRecipe{}},
		events:    &recordingPublisher{},
		metrics:   metrics.New(prometheus.NewRegistry()),
		uploadDir: t.TempDir(),
	}

	opts = append([]api.Option{
		api.WithUploadDir(ts.uploadDir),
		api.WithEvents(ts.events),
		api.WithMetrics(ts.metrics),
	}, opts...)
	handler := api.NewHandler(ts.extractor, &mockModels{models: []string{"gemini-2.5-flash", "gemini-2.5-pro"}}, ts.store, ts.cache, opts...)
	ts.router = api.NewRouter(handler, api.RouterConfig{Metrics: ts.metrics})
	return ts
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	ts.router.ServeHTTP(rr, req)
	return rr
}

func (ts *testServer) doJSON(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", testUser)
	return ts.do(req)
}

func (ts *testServer) doMultipart(t *testing.T, path, filename string, data []byte, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	// Create a new multipart writer
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("X-User-ID", testUser)
	return ts.do(req)
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

type scanResult struct {
	Success    bool          `json:"success"`
	RecipeData recipe.Recipe `json:"recipe_data"`
	Image      *string       `json:"image"`
	Filename   string        `json:"filename"`
	Cached     bool          `json:"cached"`
	FileHash   string        `json:"file_hash"`
}

type errorResult struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func TestAPI_RequiresUserID(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/recipes", nil)
	rr := ts.do(req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "unauthenticated", decode[errorResult](t, rr).Code)
}

func TestScanFile_Extracts(t *testing.T) {
	ts := newTestServer(t)
	data := pngBytes(t, 10, 10)

	rr := ts.doMultipart(t, "/api/scan/file", "card.png", data, nil)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	res := decode[scanResult](t, rr)
	assert.True(t, res.Success)
	assert.False(t, res.Cached)
	assert.Equal(t, "Pancakes", res.RecipeData.RecipeName)
	assert.Equal(t, recipe.Fingerprint(data), res.FileHash)
	assert.Equal(t, "card.png", res.Filename)
	assert.Equal(t, 1, ts.extractor.calls)
	assert.Equal(t, "image/png", ts.extractor.mimeType)
	assert.Equal(t, 1, ts.cache.lookups)
	assert.Equal(t, []events.Type{events.RecipeScanned}, ts.events.types())
}

func TestScanFile_CacheHit(t *testing.T) {
	ts := newTestServer(t)
	data := pngBytes(t, 10, 10)
	fp := recipe.Fingerprint(data)
	previewPath := "/uploads/previews/" + fp + ".png"
	ts.cache.recipes[fp] = &recipe.StoredRecipe{
		ID:       "r-1",
		UserID:   "someone-else",
		Recipe:   recipe.Recipe{RecipeName: "Cached Soup"},
		FileHash: &fp,
		Image:    &previewPath,
	}

	rr := ts.doMultipart(t, "/api/scan/file", "soup.png", data, nil)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	res := decode[scanResult](t, rr)
	assert.True(t, res.Cached)
	assert.Equal(t, "Cached Soup", res.RecipeData.RecipeName)
	require.NotNil(t, res.Image)
	assert.Equal(t, previewPath, *res.Image)
	assert.Zero(t, ts.extractor.calls)
}

func TestScanFile_DebugSkipsCache(t *testing.T) {
	ts := newTestServer(t)
	data := pngBytes(t, 10, 10)
	ts.cache.recipes[recipe.Fingerprint(data)] = &recipe.StoredRecipe{Recipe: recipe.Recipe{RecipeName: "Cached Soup"}}

	rr := ts.doMultipart(t, "/api/scan/file", "soup.png", data, map[string]string{"debug": "true"})

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	res := decode[scanResult](t, rr)
	assert.False(t, res.Cached)
	assert.Equal(t, "Pancakes", res.RecipeData.RecipeName)
	assert.Zero(t, ts.cache.lookups)
	assert.Equal(t, 1, ts.extractor.calls)
}

func TestScanFile_UnsupportedType(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.doMultipart(t, "/api/scan/file", "card.gif", []byte("GIF89a"), nil)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "invalid_input", decode[errorResult](t, rr).Code)
	assert.Zero(t, ts.extractor.calls)
	assert.Zero(t, ts.cache.lookups)
}

func TestScanFile_ErrorStatuses(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"rate limited", extract.NewError(extract.ErrRateLimited, "API quota exceeded", nil), http.StatusTooManyRequests, "rate_limited"},
		{"malformed", extract.NewError(extract.ErrMalformedResponse, "no JSON object", nil), http.StatusBadGateway, "malformed_response"},
		{"upstream", extract.NewError(extract.ErrUpstreamUnavailable, "", errors.New("connection reset")), http.StatusBadGateway, "upstream_unavailable"},
		{"timeout", extract.NewError(extract.ErrUpstreamUnavailable, "", context.DeadlineExceeded), http.StatusRequestTimeout, "timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.extractor.err = tt.err

			rr := ts.doMultipart(t, "/api/scan/file", "card.jpg", []byte{0xff, 0xd8, 0xff}, nil)

			assert.Equal(t, tt.status, rr.Code)
			res := decode[errorResult](t, rr)
			assert.Equal(t, tt.code, res.Code)
			assert.NotEmpty(t, res.Error)
			assert.Empty(t, ts.events.types())
		})
	}
}

func TestUploadThenScan(t *testing.T) {
	ts := newTestServer(t)
	data := pngBytes(t, 1200, 30)

	// Upload the file
	rr := ts.doMultipart(t, "/api/uploads", "Recipe Card.PNG", data, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	upload := decode[struct {
		Filename string  `json:"filename"`
		Filepath string  `json:"filepath"`
		FileHash string  `json:"file_hash"`
		Image    *string `json:"image"`
	}](t, rr)

	fp := recipe.Fingerprint(data)
	assert.Equal(t, fp, upload.FileHash)
	assert.Equal(t, filepath.Join(ts.uploadDir, fp+".png"), upload.Filepath)
	require.NotNil(t, upload.Image)
	assert.Equal(t, "/uploads/previews/"+fp+".png", *upload.Image)

	// The preview is scaled down to 800px wide
	f, err := os.Open(filepath.Join(ts.uploadDir, "previews", fp+".png"))
	require.NoError(t, err)
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, 800, cfg.Width)

	// The preview is served statically
	preview := ts.do(httptest.NewRequest(http.MethodGet, *upload.Image, nil))
	assert.Equal(t, http.StatusOK, preview.Code)

	// Scan the uploaded file
	rr = ts.doJSON(t, http.MethodPost, "/api/scan", map[string]any{
		"filename": upload.Filename,
		"filepath": upload.Filepath,
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	res := decode[scanResult](t, rr)
	assert.Equal(t, fp, res.FileHash)
	assert.Equal(t, "Recipe Card.PNG", res.Filename)
	require.NotNil(t, res.Image)
	assert.Equal(t, *upload.Image, *res.Image)
	assert.Equal(t, "image/png", ts.extractor.mimeType)
}

func TestScan_RelativePathInsideUploadDir(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, os.WriteFile(filepath.Join(ts.uploadDir, "menu.pdf"), []byte("%PDF-1.4"), 0o644))

	rr := ts.doJSON(t, http.MethodPost, "/api/scan", map[string]any{"filepath": "menu.pdf"})

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "application/pdf", ts.extractor.mimeType)
	res := decode[scanResult](t, rr)
	assert.Equal(t, "menu.pdf", res.Filename)
	assert.Nil(t, res.Image)
}

func TestScan_RejectsPathOutsideUploadDir(t *testing.T) {
	ts := newTestServer(t)
	outside := filepath.Join(t.TempDir(), "secret.png")
	require.NoError(t, os.WriteFile(outside, pngBytes(t, 1, 1), 0o644))

	for _, p := range []string{"../secret.png", "../../etc/passwd", outside, ""} {
		rr := ts.doJSON(t, http.MethodPost, "/api/scan", map[string]any{"filepath": p})
		assert.Equal(t, http.StatusBadRequest, rr.Code, p)
	}
	assert.Zero(t, ts.extractor.calls)
}

func TestScan_MissingFile(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.doJSON(t, http.MethodPost, "/api/scan", map[string]any{"filepath": "nope.png"})

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "not_found", decode[errorResult](t, rr).Code)
}

func TestRecipes_CreateListGetDelete(t *testing.T) {
	ts := newTestServer(t)
	fp := recipe.Fingerprint([]byte("card"))

	// Create a new recipe
	rr := ts.doJSON(t, http.MethodPost, "/api/recipes", map[string]any{
		"recipe_name": "  Pancakes  ",
		"servings":    4,
		"ingredients": []map[string]string{{"quantity": "2", "unit": "cups", "item": "flour", "notes": ""}},
		"instructions": []map[string]any{
			{"step_number": 3, "text": "Mix"},
			{"step_number": 4, "text": "  "},
			{"step_number": 9, "text": "Cook"},
		},
		"nutrition": map[string]any{"calories": 250, "protein_g": nil, "_ai_estimated": true, "_servings_used": 4},
		"file_hash": fp,
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	created := decode[recipe.StoredRecipe](t, rr)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, testUser, created.UserID)
	assert.Equal(t, "Pancakes", created.RecipeName)
	assert.Equal(t, []recipe.InstructionStep{{StepNumber: 1, Text: "Mix"}, {StepNumber: 2, Text: "Cook"}}, created.Instructions)
	require.NotNil(t, created.Nutrition)
	require.NotNil(t, created.Nutrition.Calories)
	assert.Equal(t, 250.0, *created.Nutrition.Calories)
	assert.Nil(t, created.Nutrition.ProteinG)
	assert.True(t, created.NutritionAIEstimated)
	require.NotNil(t, created.NutritionServingsUsed)
	assert.Equal(t, 4, *created.NutritionServingsUsed)

	// Saving the same file twice conflicts
	rr = ts.doJSON(t, http.MethodPost, "/api/recipes", map[string]any{"recipe_name": "Again", "file_hash": fp})
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "duplicate", decode[errorResult](t, rr).Code)

	// List
	rr = ts.doJSON(t, http.MethodGet, "/api/recipes", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	list := decode[struct {
		Recipes []recipe.StoredRecipe `json:"recipes"`
		Count   int                   `json:"count"`
	}](t, rr)
	assert.Equal(t, 1, list.Count)

	// Get
	rr = ts.doJSON(t, http.MethodGet, "/api/recipes/"+created.ID, nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	// Delete
	rr = ts.doJSON(t, http.MethodDelete, "/api/recipes/"+created.ID, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{fp}, ts.cache.invalidated)

	rr = ts.doJSON(t, http.MethodGet, "/api/recipes/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	assert.Equal(t, []events.Type{events.RecipeSaved, events.RecipeDeleted}, ts.events.types())
}

func TestRecipes_CreateValidation(t *testing.T) {
	ts := newTestServer(t)

	for name, body := range map[string]string{
		"missing name":  `{"servings": 2}`,
		"blank name":    `{"recipe_name": "   "}`,
		"bad servings":  `{"recipe_name": "Soup", "servings": "four"}`,
		"bad file hash": `{"recipe_name": "Soup", "file_hash": "abc"}`,
		"not json":      `{"recipe_name":`,
		"bad nutrition": `{"recipe_name": "Soup", "nutrition": {"calories": "lots"}}`,
		"not an object": `["Soup"]`,
	} {
		rr := ts.doJSON(t, http.MethodPost, "/api/recipes", body)
		assert.Equal(t, http.StatusBadRequest, rr.Code, name)
	}
	assert.Empty(t, ts.store.recipes)
}

func TestRecipes_PartialUpdate(t *testing.T) {
	ts := newTestServer(t)
	fp := recipe.Fingerprint([]byte("card"))

	rr := ts.doJSON(t, http.MethodPost, "/api/recipes", map[string]any{
		"recipe_name":  "Pancakes",
		"description":  "Fluffy",
		"author":       "Ana",
		"servings":     4,
		"ingredients":  []map[string]string{{"item": "flour"}},
		"instructions": []map[string]any{{"step_number": 1, "text": "Mix"}},
		"file_hash":    fp,
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	created := decode[recipe.StoredRecipe](t, rr)

	rr = ts.doJSON(t, http.MethodPut, "/api/recipes/"+created.ID, `{
		"recipe_name": "",
		"description": null,
		"servings": 6,
		"ingredients": [],
		"instructions": [{"step_number": 5, "text": "Whisk"}, {"step_number": 6, "text": "Fry"}],
		"nutrition": {"calories": 310}
	}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	updated := decode[recipe.StoredRecipe](t, rr)

	assert.Equal(t, "Pancakes", updated.RecipeName)
	assert.Nil(t, updated.Description)
	require.NotNil(t, updated.Author)
	assert.Equal(t, "Ana", *updated.Author)
	require.NotNil(t, updated.Servings)
	assert.Equal(t, 6, *updated.Servings)
	assert.Equal(t, []recipe.Ingredient{{Item: "flour"}}, updated.Ingredients)
	assert.Equal(t, []recipe.InstructionStep{{StepNumber: 1, Text: "Whisk"}, {StepNumber: 2, Text: "Fry"}}, updated.Instructions)
	require.NotNil(t, updated.Nutrition)
	assert.Equal(t, 310.0, *updated.Nutrition.Calories)
	assert.False(t, updated.NutritionAIEstimated)
	assert.Equal(t, []string{fp}, ts.cache.invalidated)
}

func TestRecipes_OtherUsersAreHidden(t *testing.T) {
	ts := newTestServer(t)
	ts.store.recipes["r-9"] = &recipe.StoredRecipe{ID: "r-9", UserID: "user-2", Recipe: recipe.Recipe{RecipeName: "Secret"}}

	assert.Equal(t, http.StatusNotFound, ts.doJSON(t, http.MethodGet, "/api/recipes/r-9", nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.doJSON(t, http.MethodPut, "/api/recipes/r-9", `{"recipe_name": "Mine"}`).Code)
	assert.Equal(t, http.StatusNotFound, ts.doJSON(t, http.MethodDelete, "/api/recipes/r-9", nil).Code)
	assert.Equal(t, "Secret", ts.store.recipes["r-9"].RecipeName)
}

func TestListModels(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.doJSON(t, http.MethodGet, "/api/models", nil)

	require.Equal(t, http.StatusOK, rr.Code)
	res := decode[struct {
		Success bool     `json:"success"`
		Models  []string `json:"models"`
		Count   int      `json:"count"`
	}](t, rr)
	assert.True(t, res.Success)
	assert.Equal(t, 2, res.Count)
	assert.Equal(t, []string{"gemini-2.5-flash", "gemini-2.5-pro"}, res.Models)
}

func TestHealth(t *testing.T) {
	ok := newTestServer(t, api.WithHealthCheck("database", func(context.Context) error { return nil }))
	rr := ok.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	failing := newTestServer(t,
		api.WithHealthCheck("database", func(context.Context) error { return nil }),
		api.WithHealthCheck("redis", func(context.Context) error { return errors.New("connection refused") }),
	)
	rr = failing.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	res := decode[struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}](t, rr)
	assert.Equal(t, "unavailable", res.Status)
	assert.Equal(t, map[string]string{"database": "ok", "redis": "connection refused"}, res.Checks)
}

func TestMetricsMiddleware(t *testing.T) {
	ts := newTestServer(t)

	ts.doJSON(t, http.MethodGet, "/api/recipes", nil)
	ts.doJSON(t, http.MethodGet, "/api/recipes", nil)
	ts.doJSON(t, http.MethodGet, "/api/recipes/missing", nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(ts.metrics.HTTPRequestsTotal.WithLabelValues("GET", "/api/recipes", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ts.metrics.HTTPRequestsTotal.WithLabelValues("GET", "/api/recipes/:id", "404")))
}

func TestBodyLimit_JSONRoutes(t *testing.T) {
	ts := newTestServer(t)
	notes := strings.Repeat("a", 2<<20)

	// Declared Content-Length over the limit
	rr := ts.doJSON(t, http.MethodPost, "/api/recipes", map[string]any{
		"recipe_name": "Soup",
		"ingredients": []map[string]string{{"item": "leek", "notes": notes}},
	})
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	assert.Equal(t, "too_large", decode[errorResult](t, rr).Code)
	assert.Empty(t, ts.store.recipes)

	// Streamed body with no Content-Length
	body := `{"recipe_name": "Soup", "description": "` + notes + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/recipes", io.MultiReader(strings.NewReader(body)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", testUser)
	rr = ts.do(req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	assert.Equal(t, "too_large", decode[errorResult](t, rr).Code)
	assert.Empty(t, ts.store.recipes)

	rr = ts.doJSON(t, http.MethodPut, "/api/recipes/any", map[string]any{"description": notes})
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}

func TestBodyLimit_Uploads(t *testing.T) {
	ts := newTestServer(t, api.WithMaxUploadBytes(1024))

	// Whole body over the upload limit plus multipart overhead
	big := bytes.Repeat([]byte{0xff}, 256<<10)
	rr := ts.doMultipart(t, "/api/uploads", "card.png", big, nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	assert.Equal(t, "too_large", decode[errorResult](t, rr).Code)

	rr = ts.doMultipart(t, "/api/scan/file", "card.png", big, nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)

	// Body within the overhead but the file itself over the limit
	rr = ts.doMultipart(t, "/api/uploads", "card.png", bytes.Repeat([]byte{0xff}, 2048), nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	assert.Equal(t, "too_large", decode[errorResult](t, rr).Code)

	entries, err := os.ReadDir(ts.uploadDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Zero(t, ts.extractor.calls)

	// Small files still go through
	rr = ts.doMultipart(t, "/api/scan/file", "card.png", []byte("tiny"), nil)
	assert.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
}

func TestEvents_PublishedWithBoundedContext(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.doJSON(t, http.MethodPost, "/api/recipes", map[string]any{"recipe_name": "Soup"})
	require.Equal(t, http.StatusCreated, rr.Code)
	rr = ts.doMultipart(t, "/api/scan/file", "card.png", pngBytes(t, 4, 4), nil)
	require.Equal(t, http.StatusOK, rr.Code)

	require.Len(t, ts.events.deadlines, 2)
	for _, d := range ts.events.deadlines {
		require.False(t, d.IsZero())
		assert.WithinDuration(t, time.Now(), d, 5*time.Second)
	}
}

func TestRecipes_FlagsWithoutNutritionAreNotEchoed(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.doJSON(t, http.MethodPost, "/api/recipes", map[string]any{
		"recipe_name":             "Soup",
		"nutrition":               nil,
		"nutrition_ai_estimated":  true,
		"nutrition_servings_used": 4,
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	created := decode[recipe.StoredRecipe](t, rr)
	assert.Nil(t, created.Nutrition)
	assert.False(t, created.NutritionAIEstimated)
	assert.Nil(t, created.NutritionServingsUsed)

	rr = ts.doJSON(t, http.MethodPut, "/api/recipes/"+created.ID, `{"nutrition_ai_estimated": true}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.False(t, decode[recipe.StoredRecipe](t, rr).NutritionAIEstimated)
}
