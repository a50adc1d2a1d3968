/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package api serves the production context, andon and device endpoints
// next to the broadcast websocket and the Prometheus scrape endpoint.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/mfreeman451/lineradar/pkg/escalation"
	httpx "github.com/mfreeman451/lineradar/pkg/http"
	"github.com/mfreeman451/lineradar/pkg/models"
	"github.com/mfreeman451/lineradar/pkg/prodctx"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

const (
	maxBodyBytes        = 1 << 20
	defaultHistoryLimit = 50
)

type APIServer struct {
	router   *mux.Router
	handler  http.Handler
	srv      *http.Server
	contexts ContextService
	andons   AndonService
	devices  DeviceStatusProvider
	latency  LatencyProvider
	stats    BroadcastStats
	snaps    SnapshotReader
	ws       http.Handler
	metrics  http.Handler
	origins  []string
	logger   *zap.Logger
}

type Option func(*APIServer)

func WithContexts(c ContextService) Option { return func(s *APIServer) { s.contexts = c } }

func WithAndons(a AndonService) Option { return func(s *APIServer) { s.andons = a } }

func WithDevices(d DeviceStatusProvider) Option { return func(s *APIServer) { s.devices = d } }

func WithLatency(l LatencyProvider) Option { return func(s *APIServer) { s.latency = l } }

func WithBroadcast(ws http.Handler, stats BroadcastStats) Option {
	return func(s *APIServer) {
		s.ws = ws
		s.stats = stats
	}
}

func WithSnapshots(r SnapshotReader) Option { return func(s *APIServer) { s.snaps = r } }

func WithMetricsHandler(h http.Handler) Option { return func(s *APIServer) { s.metrics = h } }

func WithAllowedOrigins(origins []string) Option { return func(s *APIServer) { s.origins = origins } }

func WithLogger(l *zap.Logger) Option { return func(s *APIServer) { s.logger = l } }

func NewAPIServer(opts ...Option) *APIServer {
	s := &APIServer{
		router: mux.NewRouter(),
		logger: zap.NewNop(),
	}

	for _, o := range opts {
		o(s)
	}

	s.setupRoutes()

	origins := s.origins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: len(s.origins) > 0,
		MaxAge:           300,
	})

	s.handler = c.Handler(s.router)
	s.srv = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

func (s *APIServer) setupRoutes() {
	s.router.Use(httpx.RequestLogger(s.logger))

	if s.ws != nil {
		s.router.Handle("/ws", s.ws).Methods(http.MethodGet)
	}

	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}

	api := s.router.PathPrefix("/api").Subrouter()

	if s.contexts != nil {
		api.HandleFunc("/context/{equipment}", s.getContext).Methods(http.MethodGet)
		api.HandleFunc("/context/{equipment}", s.updateContext).Methods(http.MethodPost)
		api.HandleFunc("/context/{equipment}/history", s.getContextHistory).Methods(http.MethodGet)
	}

	if s.andons != nil {
		api.HandleFunc("/andon", s.listAndons).Methods(http.MethodGet)
		api.HandleFunc("/andon", s.reportAndon).Methods(http.MethodPost)
		api.HandleFunc("/andon/{id}", s.getAndon).Methods(http.MethodGet)
		api.HandleFunc("/andon/{id}/acknowledge", s.acknowledgeAndon).Methods(http.MethodPost)
		api.HandleFunc("/andon/{id}/resolve", s.closeAndon(s.andons.Resolve)).Methods(http.MethodPost)
		api.HandleFunc("/andon/{id}/cancel", s.closeAndon(s.andons.Cancel)).Methods(http.MethodPost)
	}

	if s.devices != nil {
		api.HandleFunc("/devices", s.getDevices).Methods(http.MethodGet)
	}

	if s.latency != nil {
		api.HandleFunc("/devices/{id}/latency", s.getDeviceLatency).Methods(http.MethodGet)
	}

	if s.stats != nil {
		api.HandleFunc("/broadcast/stats", s.getBroadcastStats).Methods(http.MethodGet)
	}

	if s.snaps != nil {
		api.HandleFunc("/snapshot", s.getSnapshot).Methods(http.MethodGet)
	}
}

// Handler returns the router wrapped with CORS handling.
func (s *APIServer) Handler() http.Handler {
	return s.handler
}

// Start serves until Shutdown is called. Start after Shutdown returns nil
// without serving.
func (s *APIServer) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	err = s.srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}

	return err
}

func (s *APIServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *APIServer) getContext(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["equipment"]

	if !s.contexts.Known(code) {
		s.writeError(w, http.StatusNotFound, "unknown equipment "+code)
		return
	}

	s.writeJSON(w, http.StatusOK, s.contexts.Get(code))
}

func (s *APIServer) updateContext(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["equipment"]

	var change models.ContextChange
	if !s.decode(w, r, &change) {
		return
	}

	if change.Source == "" {
		change.Source = prodctx.SourceAPI
	}

	pc, err := s.contexts.Apply(r.Context(), code, change)

	switch {
	case err == nil:
		s.writeJSON(w, http.StatusOK, pc)
	case errors.Is(err, prodctx.ErrUnknownEquipment):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, prodctx.ErrEmptyChange), errors.Is(err, prodctx.ErrInvalidChangeover):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, prodctx.ErrContextWriteConflict):
		s.writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error("context update failed", zap.String("equipment", code), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "context update failed")
	}
}

func (s *APIServer) getContextHistory(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["equipment"]

	if !s.contexts.Known(code) {
		s.writeError(w, http.StatusNotFound, "unknown equipment "+code)
		return
	}

	limit := defaultHistoryLimit

	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}

		limit = n
	}

	history, err := s.contexts.History(r.Context(), code, limit)
	if err != nil {
		s.logger.Error("context history failed", zap.String("equipment", code), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "history unavailable")

		return
	}

	if history == nil {
		history = []models.ContextHistory{}
	}

	s.writeJSON(w, http.StatusOK, history)
}

func (s *APIServer) listAndons(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.andons.List(r.URL.Query().Get("equipment")))
}

func (s *APIServer) reportAndon(w http.ResponseWriter, r *http.Request) {
	var t models.AndonTrigger
	if !s.decode(w, r, &t) {
		return
	}

	ev, created, err := s.andons.Report(r.Context(), t)
	if err != nil {
		s.andonError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}

	s.writeJSON(w, status, andonResponse{Created: created, Event: ev})
}

func (s *APIServer) getAndon(w http.ResponseWriter, r *http.Request) {
	ev, err := s.andons.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.andonError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, ev)
}

func (s *APIServer) acknowledgeAndon(w http.ResponseWriter, r *http.Request) {
	var req AcknowledgeRequest
	if !s.decode(w, r, &req) {
		return
	}

	ev, err := s.andons.Acknowledge(r.Context(), mux.Vars(r)["id"], req.By, req.Level)
	if err != nil {
		s.andonError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, ev)
}

func (s *APIServer) closeAndon(
	fn func(ctx context.Context, id, by, note string) (models.AndonEvent, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CloseRequest
		if !s.decode(w, r, &req) {
			return
		}

		ev, err := fn(r.Context(), mux.Vars(r)["id"], req.By, req.Note)
		if err != nil {
			s.andonError(w, err)
			return
		}

		s.writeJSON(w, http.StatusOK, ev)
	}
}

func (s *APIServer) andonError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, escalation.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, escalation.ErrInvalidTrigger):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, escalation.ErrInvalidTransition), errors.Is(err, escalation.ErrStaleLevel):
		s.writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error("andon request failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "andon request failed")
	}
}

func (s *APIServer) getDevices(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.devices.Status())
}

func (s *APIServer) getDeviceLatency(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	samples := s.latency.GetSamples(id)
	if samples == nil {
		s.writeError(w, http.StatusNotFound, "no samples for device "+id)
		return
	}

	s.writeJSON(w, http.StatusOK, samples)
}

func (s *APIServer) getBroadcastStats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.stats.Stats())
}

// getSnapshot returns the cached context and OEE of every ?equipment=.
func (s *APIServer) getSnapshot(w http.ResponseWriter, r *http.Request) {
	codes := r.URL.Query()["equipment"]
	if len(codes) == 0 {
		s.writeError(w, http.StatusBadRequest, "at least one equipment is required")
		return
	}

	res, err := s.snaps.Resync(r.Context(), codes)
	if err != nil {
		s.logger.Warn("snapshot resync failed", zap.Error(err))
		s.writeError(w, http.StatusServiceUnavailable, "snapshot cache unavailable")

		return
	}

	s.writeJSON(w, http.StatusOK, res)
}

func (s *APIServer) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}

	return true
}

func (s *APIServer) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("error encoding response", zap.Error(err))
	}
}

func (s *APIServer) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}
