// Package server implements the management API and its WebSocket
// update stream.
package server

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/getmasq/masq/internal/alias"
	"github.com/getmasq/masq/internal/api"
	"github.com/getmasq/masq/internal/auth"
	"github.com/getmasq/masq/internal/db"
	"github.com/getmasq/masq/internal/events"
	"github.com/getmasq/masq/internal/models"
	"github.com/getmasq/masq/internal/proxy"
	"github.com/getmasq/masq/internal/rewrite"
)

const maxRequestBody = 1 << 20 // rewrite previews carry whole bodies

// APIServer handles the REST API for alias and route management.
type APIServer struct {
	DB         *sql.DB
	Logger     *zap.Logger
	Bus        *events.Bus
	Persistent *alias.Store
	Volatile   *alias.Store
	Pipeline   *rewrite.Pipeline
	Hub        *Hub
}

// AuthMiddleware enforces API key authentication once any key exists.
// A fresh install has no keys and stays open, matching a local
// development setup; generating the first key locks the API down.
// HEAD / is always open so liveness probes need no credentials.
func (s *APIServer) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead && r.URL.Path == "/" {
			next.ServeHTTP(w, r)
			return
		}

		count, err := db.CountAPIKeys(r.Context(), s.DB)
		if err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "backing store unavailable"})
			return
		}
		if count == 0 {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		apiKey := strings.TrimPrefix(authHeader, "Bearer ")

		prefix, _, err := auth.ParseAPIKey(apiKey)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}

		storedKey, err := db.GetAPIKeyByPrefix(r.Context(), s.DB, prefix)
		if err != nil || storedKey == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		if storedKey.RevokedAt != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		if !auth.VerifyAPIKey(apiKey, storedKey.KeyHash) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Handler returns the HTTP handler for the management API.
func (s *APIServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("HEAD /{$}", s.handleHealth)
	mux.HandleFunc("POST /aliases", s.handleRedact)
	mux.HandleFunc("GET /aliases", s.handleRevealBatch)
	mux.HandleFunc("GET /aliases/{publicAlias}", s.handleRevealOne)
	mux.HandleFunc("POST /aliases/cleanup", s.handleCleanup)
	mux.HandleFunc("GET /route", s.handleListRoutes)
	mux.HandleFunc("POST /route", s.handleCreateRoute)
	mux.HandleFunc("GET /route/{id}", s.handleGetRoute)
	mux.HandleFunc("DELETE /route/{id}", s.handleDeleteRoute)
	mux.HandleFunc("POST /rewrite", s.handleRewrite)
	if s.Hub != nil {
		mux.HandleFunc("GET /updates", s.Hub.handleUpdates)
	}

	return s.AuthMiddleware(mux)
}

func (s *APIServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *APIServer) handleRedact(w http.ResponseWriter, r *http.Request) {
	var req api.RedactRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}
	if len(req.Data) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "data required"})
		return
	}

	resp := api.RedactResponse{Data: make([]api.AliasRecord, 0, len(req.Data))}
	for _, entry := range req.Data {
		if entry.Value == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "value required"})
			return
		}

		store := s.Persistent
		switch models.StoreMode(entry.Store) {
		case models.StorePersistent, "":
		case models.StoreVolatile:
			store = s.Volatile
		default:
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown store"})
			return
		}

		scheme := entry.Format
		if scheme == "" {
			scheme = alias.SchemeUUID
		}

		rec, created, err := store.Redact(r.Context(), entry.Value, scheme)
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		if created && s.Bus != nil {
			s.Bus.Publish(events.AliasCreated(rec.PublicAlias, rec.GenerationScheme, rec.ExpiresAt != nil))
		}
		resp.Data = append(resp.Data, aliasRecord(rec))
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *APIServer) handleRevealBatch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "q required"})
		return
	}

	resp := api.RevealResponse{Data: make([]api.AliasRecord, 0)}
	for _, publicAlias := range strings.Split(q, ",") {
		publicAlias = strings.TrimSpace(publicAlias)
		if publicAlias == "" {
			continue
		}
		rec, err := s.Persistent.GetByAlias(r.Context(), publicAlias)
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		if rec == nil {
			continue
		}
		resp.Data = append(resp.Data, aliasRecord(rec))
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *APIServer) handleRevealOne(w http.ResponseWriter, r *http.Request) {
	publicAlias := r.PathValue("publicAlias")
	rec, err := s.Persistent.GetByAlias(r.Context(), publicAlias)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if rec == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "alias not found"})
		return
	}
	writeJSON(w, http.StatusOK, aliasRecord(rec))
}

func (s *APIServer) handleCleanup(w http.ResponseWriter, r *http.Request) {
	count, err := alias.Cleanup(r.Context(), s.DB)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if count > 0 && s.Bus != nil {
		s.Bus.Publish(events.AliasSwept(count))
	}
	writeJSON(w, http.StatusOK, api.CleanupResponse{Count: count})
}

func (s *APIServer) handleListRoutes(w http.ResponseWriter, r *http.Request) {
	routes, err := db.ListRoutes(r.Context(), s.DB)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	resp := api.ListRoutesResponse{Routes: make([]api.RouteInfo, 0, len(routes))}
	for _, route := range routes {
		resp.Routes = append(resp.Routes, routeInfo(route))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *APIServer) handleCreateRoute(w http.ResponseWriter, r *http.Request) {
	var req api.RouteSpec
	if !s.decodeRequest(w, r, &req) {
		return
	}

	direction := models.RouteDirection(req.Direction)
	if req.Direction == "" {
		direction = models.DirectionInbound
	}
	if !direction.Valid() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown direction"})
		return
	}

	route := &models.Route{
		ID:        req.ID,
		Direction: direction,
		Rules:     req.Rules,
		CreatedAt: time.Now().UnixMilli(),
	}
	if route.ID == "" {
		route.ID = uuid.NewString()
	}
	if req.DestinationOverrideEndpoint != "" {
		if err := proxy.ValidateEndpoint(req.DestinationOverrideEndpoint); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "destination override must be host:port"})
			return
		}
		ep := req.DestinationOverrideEndpoint
		route.DestinationOverrideEndpoint = &ep
	}

	if err := db.InsertRoute(r.Context(), s.DB, route); err != nil {
		s.writeStoreError(w, err)
		return
	}
	if s.Bus != nil {
		s.Bus.Publish(events.RouteCreated(route.ID, string(route.Direction), route.OverrideEndpoint()))
	}
	writeJSON(w, http.StatusOK, routeInfo(route))
}

func (s *APIServer) handleGetRoute(w http.ResponseWriter, r *http.Request) {
	route, err := db.GetRoute(r.Context(), s.DB, r.PathValue("id"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if route == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "route not found"})
		return
	}
	writeJSON(w, http.StatusOK, routeInfo(route))
}

func (s *APIServer) handleDeleteRoute(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	deleted, err := db.DeleteRoute(r.Context(), s.DB, id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if !deleted {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "route not found"})
		return
	}
	if s.Bus != nil {
		s.Bus.Publish(events.RouteDeleted(id))
	}
	writeJSON(w, http.StatusOK, api.DeleteRouteResponse{Deleted: true})
}

func (s *APIServer) handleRewrite(w http.ResponseWriter, r *http.Request) {
	var req api.RewriteRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}

	phase := models.RewritePhase(req.Phase)
	if phase != models.PhaseRequest && phase != models.PhaseResponse {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "phase must be request or response"})
		return
	}

	route, err := db.GetRoute(r.Context(), s.DB, req.RouteID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if route == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "route not found"})
		return
	}

	out, err := s.Pipeline.Apply(r.Context(), route.Rules, phase, []byte(req.Body))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "rewrite failed"})
		return
	}
	writeJSON(w, http.StatusOK, api.RewriteResponse{Body: string(out)})
}

// decodeRequest reads a size-capped JSON body into dst, rejecting
// unknown fields and trailing data. An empty body decodes to the zero
// value; handlers validate required fields themselves.
func (s *APIServer) decodeRequest(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && err != io.EOF {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "request body too large"})
			return false
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return false
	}
	if dec.Decode(&struct{}{}) != io.EOF {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unexpected trailing data"})
		return false
	}
	return true
}

// writeStoreError maps store and repository failures onto the API's
// error vocabulary. Values never appear in responses or logs.
func (s *APIServer) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case db.IsDuplicateKey(err):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "duplicate key"})
	case db.IsUnavailable(err):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "backing store unavailable"})
	case errors.Is(err, alias.ErrUnknownScheme):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown generation scheme"})
	default:
		if s.Logger != nil {
			s.Logger.Error("request failed", zap.Error(err))
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func aliasRecord(a *models.Alias) api.AliasRecord {
	rec := api.AliasRecord{
		Value:       a.Value,
		PublicAlias: a.PublicAlias,
		Format:      a.GenerationScheme,
		Store:       string(models.StorePersistent),
		CreatedAt:   formatMillis(a.CreatedAt),
	}
	if a.ExpiresAt != nil {
		rec.Store = string(models.StoreVolatile)
		expires := formatMillis(*a.ExpiresAt)
		rec.ExpiresAt = &expires
	}
	return rec
}

func routeInfo(r *models.Route) api.RouteInfo {
	return api.RouteInfo{
		ID:                          r.ID,
		Direction:                   string(r.Direction),
		DestinationOverrideEndpoint: r.DestinationOverrideEndpoint,
		Rank:                        r.Rank,
		Rules:                       r.Rules,
		CreatedAt:                   formatMillis(r.CreatedAt),
	}
}

func formatMillis(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(data); err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}
