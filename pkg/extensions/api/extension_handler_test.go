package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/jwtauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/content-extensions/pkg/extensions"
	"github.com/tendant/content-extensions/pkg/extensions/catalog"
	"github.com/tendant/content-extensions/pkg/extensions/store/memory"
)

// setupExtensionHandlerTest seeds course C with two components and extension type E.
func setupExtensionHandlerTest(t *testing.T, opts ...HandlerOption) (http.Handler, *memory.Store) {
	ctx := context.Background()
	store := memory.New()
	seed := []struct {
		docType string
		doc     extensions.Document
	}{
		{extensions.TypeCourse, extensions.Document{"_id": "C", "title": "Course"}},
		{extensions.TypeConfig, extensions.Document{"_id": "cfg-C", "_courseId": "C"}},
		{extensions.TypeComponent, extensions.Document{"_id": "c1", "_courseId": "C"}},
		{extensions.TypeComponent, extensions.Document{"_id": "c2", "_courseId": "C"}},
		{extensions.TypeExtensionType, extensions.Document{
			"_id":             "ext-E",
			"name":            "adapt-E",
			"extension":       "E",
			"version":         "1.0",
			"targetAttribute": "E_data",
			"properties": map[string]interface{}{
				"pluginLocations": map[string]interface{}{
					"properties": map[string]interface{}{
						"component": map[string]interface{}{
							"properties": map[string]interface{}{
								"enabled": map[string]interface{}{"type": "boolean"},
							},
						},
					},
				},
			},
		}},
	}
	for _, s := range seed {
		require.NoError(t, store.Create(ctx, s.docType, s.doc))
	}

	service, err := extensions.New(extensions.WithStore(store))
	require.NoError(t, err)

	return NewExtensionHandler(service, opts...).Routes(), store
}

func postJSON(t *testing.T, router http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeStatus(t *testing.T, w *httptest.ResponseRecorder) StatusResponse {
	t.Helper()
	var resp StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestExtensionHandler_EnableDisable(t *testing.T) {
	router, store := setupExtensionHandlerTest(t)

	body, err := json.Marshal(ExtensionsRequest{Extensions: []string{"ext-E"}})
	require.NoError(t, err)

	w := postJSON(t, router, "/extension/enable/C", string(body))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decodeStatus(t, w).Success)

	for _, id := range []string{"c1", "c2"} {
		doc, ok := store.Get(extensions.TypeComponent, id)
		require.True(t, ok)
		assert.Equal(t, map[string]interface{}{"E_data": map[string]interface{}{"enabled": nil}}, doc[extensions.FieldExtensions])
	}
	cfg, _ := store.Get(extensions.TypeConfig, "cfg-C")
	assert.Contains(t, cfg.EnabledExtensions(), "E")

	req := httptest.NewRequest(http.MethodGet, "/extension/enabled/C", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	var enabled EnabledResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &enabled))
	assert.Equal(t, extensions.EnabledExtension{ID: "ext-E", Version: "1.0", TargetAttribute: "E_data"}, enabled.Enabled["E"])

	w = postJSON(t, router, "/extension/disable/C", string(body))
	require.Equal(t, http.StatusOK, w.Code)

	doc, _ := store.Get(extensions.TypeComponent, "c1")
	assert.Empty(t, doc.Extensions())
	cfg, _ = store.Get(extensions.TypeConfig, "cfg-C")
	assert.NotContains(t, cfg.EnabledExtensions(), "E")
}

func TestExtensionHandler_ExtensionsNotAnArray(t *testing.T) {
	router, _ := setupExtensionHandlerTest(t)

	for name, body := range map[string]string{
		"Missing": `{}`,
		"Null":    `{"extensions": null}`,
		"String":  `{"extensions": "ext-E"}`,
		"Object":  `{"extensions": {"0": "ext-E"}}`,
		"NotJSON": `extensions=ext-E`,
	} {
		t.Run(name, func(t *testing.T) {
			w := postJSON(t, router, "/extension/enable/C", body)
			assert.Equal(t, http.StatusNotFound, w.Code)
			assert.False(t, decodeStatus(t, w).Success)
		})
	}
}

func TestExtensionHandler_DomainErrors(t *testing.T) {
	router, _ := setupExtensionHandlerTest(t)

	t.Run("EmptyList", func(t *testing.T) {
		w := postJSON(t, router, "/extension/enable/C", `{"extensions": []}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("NonStringID", func(t *testing.T) {
		w := postJSON(t, router, "/extension/enable/C", `{"extensions": [42]}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("UnknownCourse", func(t *testing.T) {
		w := postJSON(t, router, "/extension/enable/missing", `{"extensions": ["ext-E"]}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		resp := decodeStatus(t, w)
		assert.False(t, resp.Success)
		assert.NotEmpty(t, resp.Message)
	})

	t.Run("InvalidContentType", func(t *testing.T) {
		w := postJSON(t, router, "/content/course", `{"_courseId": "C"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

// failingService fails every call with an infrastructure error.
type failingService struct {
	extensions.Service
}

func (failingService) Apply(ctx context.Context, courseID string, action extensions.Action, ids []string) error {
	return &extensions.StoreError{Op: "update", DocType: "component", Err: errors.New("connection reset")}
}

func TestExtensionHandler_InfrastructureError(t *testing.T) {
	router := NewExtensionHandler(failingService{}).Routes()

	w := postJSON(t, router, "/extension/disable/C", `{"extensions": ["ext-E"]}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, decodeStatus(t, w).Message, "connection reset")
}

func TestExtensionHandler_CreateContent(t *testing.T) {
	router, store := setupExtensionHandlerTest(t)
	require.Equal(t, http.StatusOK, postJSON(t, router, "/extension/enable/C", `{"extensions": ["ext-E"]}`).Code)

	w := postJSON(t, router, "/content/component", `{"_courseId": "C", "title": "New"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var doc extensions.Document
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.NotEmpty(t, doc.ID())
	assert.Equal(t, map[string]interface{}{"E_data": map[string]interface{}{"enabled": nil}}, doc.Extensions())

	stored, ok := store.Get(extensions.TypeComponent, doc.ID())
	require.True(t, ok)
	assert.Equal(t, "New", stored["title"])
}

func TestExtensionHandler_ListExtensionTypes(t *testing.T) {
	router, _ := setupExtensionHandlerTest(t)

	req := httptest.NewRequest(http.MethodGet, "/extension", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp []ExtensionTypeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	assert.Equal(t, "ext-E", resp[0].ID)
	assert.Equal(t, "E_data", resp[0].TargetAttribute)
	assert.Equal(t, []string{"component"}, resp[0].Locations)
}

type stubSyncer struct {
	report *catalog.SyncReport
}

func (s stubSyncer) Sync(ctx context.Context) (*catalog.SyncReport, error) {
	return s.report, nil
}

func TestExtensionHandler_SyncCatalog(t *testing.T) {
	t.Run("NotConfigured", func(t *testing.T) {
		router, _ := setupExtensionHandlerTest(t)
		w := postJSON(t, router, "/extension/sync", "")
		assert.Equal(t, http.StatusNotImplemented, w.Code)
	})

	t.Run("Report", func(t *testing.T) {
		report := &catalog.SyncReport{Installed: []catalog.InstallResult{{ID: "x", Name: "adapt-x", Version: "1.0.0", Outcome: catalog.OutcomeInstalled}}}
		router, _ := setupExtensionHandlerTest(t, WithCatalog(stubSyncer{report: report}))
		w := postJSON(t, router, "/extension/sync", "")
		require.Equal(t, http.StatusOK, w.Code)

		var got catalog.SyncReport
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		require.Len(t, got.Installed, 1)
		assert.Equal(t, "adapt-x", got.Installed[0].Name)
	})
}

func TestExtensionHandler_JWTGuard(t *testing.T) {
	ja := jwtauth.New("HS256", []byte("test-secret"), nil)
	router, _ := setupExtensionHandlerTest(t, WithJWTAuth(ja))

	w := postJSON(t, router, "/extension/enable/C", `{"extensions": ["ext-E"]}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	_, token, err := ja.Encode(map[string]interface{}{"sub": "author-1"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/extension/enable/C", bytes.NewBufferString(`{"extensions": ["ext-E"]}`))
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}
