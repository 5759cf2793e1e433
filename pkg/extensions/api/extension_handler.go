package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth"
	"github.com/go-chi/render"

	"github.com/tendant/content-extensions/internal/logger"
	"github.com/tendant/content-extensions/pkg/extensions"
	"github.com/tendant/content-extensions/pkg/extensions/catalog"
	"github.com/tendant/content-extensions/pkg/extensions/lock"
)

// Syncer runs a catalog sync.
type Syncer interface {
	Sync(ctx context.Context) (*catalog.SyncReport, error)
}

// ExtensionHandler serves the extension enable/disable endpoints and their read-side
// companions.
type ExtensionHandler struct {
	service extensions.Service
	catalog Syncer
	locker  lock.Locker
	auth    *jwtauth.JWTAuth
	log     *logger.Logger
}

// HandlerOption configures an ExtensionHandler.
type HandlerOption func(*ExtensionHandler)

// WithCatalog enables POST /extension/sync.
func WithCatalog(s Syncer) HandlerOption {
	return func(h *ExtensionHandler) {
		h.catalog = s
	}
}

// WithLocker sets the per-course lock used around enable and disable.
func WithLocker(l lock.Locker) HandlerOption {
	return func(h *ExtensionHandler) {
		if l != nil {
			h.locker = l
		}
	}
}

// WithJWTAuth requires a valid bearer token on every route.
func WithJWTAuth(ja *jwtauth.JWTAuth) HandlerOption {
	return func(h *ExtensionHandler) {
		h.auth = ja
	}
}

// WithLogger sets the handler logger.
func WithLogger(l *logger.Logger) HandlerOption {
	return func(h *ExtensionHandler) {
		if l != nil {
			h.log = l
		}
	}
}

func NewExtensionHandler(service extensions.Service, opts ...HandlerOption) *ExtensionHandler {
	h := &ExtensionHandler{
		service: service,
		locker:  lock.NewMemory(),
		log:     logger.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns the router for extension and content endpoints
func (h *ExtensionHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(RecoveryMiddleware(h.log))
	r.Use(LoggingMiddleware(h.log))

	r.Group(func(r chi.Router) {
		if h.auth != nil {
			r.Use(jwtauth.Verifier(h.auth))
			r.Use(jwtauth.Authenticator)
		}
		r.Post("/extension/enable/{courseId}", h.EnableExtensions)
		r.Post("/extension/disable/{courseId}", h.DisableExtensions)
		r.Get("/extension/enabled/{courseId}", h.GetEnabledExtensions)
		r.Get("/extension", h.ListExtensionTypes)
		r.Post("/extension/sync", h.SyncCatalog)
		r.Post("/content/{type}", h.CreateContent)
	})
	return r
}

// ExtensionsRequest is the enable/disable request body
type ExtensionsRequest struct {
	Extensions []string `json:"extensions"`
}

// StatusResponse is returned by mutating endpoints
type StatusResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// EnabledResponse lists a course's enabled extensions
type EnabledResponse struct {
	Success bool                                   `json:"success"`
	Enabled map[string]extensions.EnabledExtension `json:"enabled"`
}

// ExtensionTypeResponse describes one installed extension type
type ExtensionTypeResponse struct {
	ID              string   `json:"_id"`
	Name            string   `json:"name"`
	DisplayName     string   `json:"displayName,omitempty"`
	Extension       string   `json:"extension,omitempty"`
	Version         string   `json:"version"`
	TargetAttribute string   `json:"targetAttribute"`
	Locations       []string `json:"locations"`
}

// EnableExtensions enables extensions for a course
func (h *ExtensionHandler) EnableExtensions(w http.ResponseWriter, r *http.Request) {
	h.applyExtensions(w, r, extensions.ActionEnable)
}

// DisableExtensions disables extensions for a course
func (h *ExtensionHandler) DisableExtensions(w http.ResponseWriter, r *http.Request) {
	h.applyExtensions(w, r, extensions.ActionDisable)
}

func (h *ExtensionHandler) applyExtensions(w http.ResponseWriter, r *http.Request, action extensions.Action) {
	courseID := chi.URLParam(r, "courseId")

	ids, ok := decodeExtensionIDs(r)
	if !ok {
		// A body without an extensions array does not address this resource.
		h.writeStatus(w, r, http.StatusNotFound, "extensions must be an array of extension ids")
		return
	}

	unlock, err := h.locker.Lock(r.Context(), courseID)
	if err != nil {
		h.log.Error("Failed to lock course", "course", courseID, "error", err)
		h.writeStatus(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	defer unlock()

	if err := h.service.Apply(r.Context(), courseID, action, ids); err != nil {
		h.log.Error("Failed to apply extensions", "course", courseID, "action", action, "error", err)
		h.writeError(w, r, err)
		return
	}

	render.JSON(w, r, StatusResponse{Success: true})
}

// decodeExtensionIDs reads {extensions: [...]}. It reports false when the field is missing,
// null or not an array. Non-string elements fail validation later as empty ids.
func decodeExtensionIDs(r *http.Request) ([]string, bool) {
	var body map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return nil, false
	}
	raw, ok := body["extensions"]
	if !ok {
		return nil, false
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return nil, false
	}

	var items []interface{}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, false
	}
	ids := make([]string, len(items))
	for i, item := range items {
		if s, ok := item.(string); ok {
			ids[i] = s
		}
	}
	return ids, true
}

// GetEnabledExtensions returns a course's enabled-extensions registry
func (h *ExtensionHandler) GetEnabledExtensions(w http.ResponseWriter, r *http.Request) {
	courseID := chi.URLParam(r, "courseId")

	enabled, err := h.service.EnabledExtensions(r.Context(), courseID)
	if err != nil {
		h.log.Error("Failed to read enabled extensions", "course", courseID, "error", err)
		h.writeError(w, r, err)
		return
	}
	render.JSON(w, r, EnabledResponse{Success: true, Enabled: enabled})
}

// ListExtensionTypes lists installed extension types
func (h *ExtensionHandler) ListExtensionTypes(w http.ResponseWriter, r *http.Request) {
	descriptors, err := h.service.ListExtensionTypes(r.Context())
	if err != nil {
		h.log.Error("Failed to list extension types", "error", err)
		h.writeError(w, r, err)
		return
	}

	resp := make([]ExtensionTypeResponse, 0, len(descriptors))
	for _, d := range descriptors {
		locations := make([]string, 0, len(d.Locations))
		for _, loc := range d.Locations {
			locations = append(locations, loc.Key)
		}
		resp = append(resp, ExtensionTypeResponse{
			ID:              d.ID,
			Name:            d.Name,
			DisplayName:     d.DisplayName,
			Extension:       d.Extension,
			Version:         d.Version,
			TargetAttribute: d.Attribute(),
			Locations:       locations,
		})
	}
	render.JSON(w, r, resp)
}

// SyncCatalog installs or upgrades extension types from the manifest store
func (h *ExtensionHandler) SyncCatalog(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		h.writeStatus(w, r, http.StatusNotImplemented, "extension catalog is not configured")
		return
	}

	report, err := h.catalog.Sync(r.Context())
	if err != nil {
		h.log.Error("Failed to sync extension catalog", "error", err)
		h.writeStatus(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	render.JSON(w, r, report)
}

// CreateContent creates a content document with extension defaults applied
func (h *ExtensionHandler) CreateContent(w http.ResponseWriter, r *http.Request) {
	contentType := chi.URLParam(r, "type")

	var draft extensions.Document
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		h.log.Error("Failed to decode request", "error", err)
		h.writeStatus(w, r, http.StatusBadRequest, err.Error())
		return
	}

	doc, err := h.service.CreateContent(r.Context(), contentType, draft)
	if err != nil {
		h.log.Error("Failed to create content", "type", contentType, "error", err)
		h.writeError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, doc)
}

func (h *ExtensionHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	if extensions.IsDomainError(err) {
		status = http.StatusBadRequest
	}
	h.writeStatus(w, r, status, err.Error())
}

func (h *ExtensionHandler) writeStatus(w http.ResponseWriter, r *http.Request, status int, message string) {
	render.Status(r, status)
	render.JSON(w, r, StatusResponse{Success: false, Message: message})
}
