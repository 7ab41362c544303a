package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/abogushcoder/annotation-platform/internal/export"
	"github.com/abogushcoder/annotation-platform/internal/ingest"
	"github.com/abogushcoder/annotation-platform/internal/model"
)

// AgentStore resolves agents for the sync trigger.
type AgentStore interface {
	GetAgent(ctx context.Context, id uuid.UUID) (*model.Agent, error)
}

// SyncService runs one agent import and reports counts.
type SyncService interface {
	SyncAgent(ctx context.Context, agent *model.Agent) ingest.Stats
}

// ExportService builds and audits fine-tuning datasets.
type ExportService interface {
	BuildDataset(ctx context.Context, req export.Request) (*export.Dataset, error)
	LogExport(ctx context.Context, ds *export.Dataset, exportedBy *uuid.UUID) error
}

type Server struct {
	router   *chi.Mux
	port     int
	agents   AgentStore
	syncer   SyncService
	exporter ExportService
	logger   *slog.Logger
}

// NewServer wires the HTTP surface. authToken is optional: when empty the
// API is open, otherwise the /api/v1 routes require it as a bearer token.
func NewServer(port int, authToken string, agents AgentStore, syncer SyncService, exporter ExportService, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router:   router,
		port:     port,
		agents:   agents,
		syncer:   syncer,
		exporter: exporter,
		logger:   logger,
	}

	router.Get("/health", s.health)
	router.Route("/api/v1", func(r chi.Router) {
		if authToken != "" {
			r.Use(requireToken(authToken))
		}
		r.Post("/agents/{agentID}/sync", s.syncAgent)
		r.Get("/export", s.exportDataset)
	})

	return s
}

func requireToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer "+token {
				writeError(w, http.StatusUnauthorized, "missing or invalid token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("API server starting", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) syncAgent(w http.ResponseWriter, r *http.Request) {
	agentID, err := uuid.Parse(chi.URLParam(r, "agentID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid agent id")
		return
	}

	agent, err := s.agents.GetAgent(r.Context(), agentID)
	if err != nil {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}

	stats := s.syncer.SyncAgent(r.Context(), agent)
	writeJSON(w, http.StatusOK, stats)
}

// exportDataset builds a dataset from the approved pool and streams it as
// a download: a train/validation zip when split is requested, plain JSONL
// otherwise. An under-minimum dataset is refused with 422 and the
// dataset-level warnings.
func (s *Server) exportDataset(w http.ResponseWriter, r *http.Request) {
	req, err := parseExportRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ds, err := s.exporter.BuildDataset(r.Context(), req)
	if err != nil {
		s.logger.Error("dataset build failed", "error", err)
		writeError(w, http.StatusInternalServerError, "dataset build failed")
		return
	}

	if ds.Blocked() {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":    "dataset below minimum size",
			"examples": len(ds.Examples),
			"warnings": ds.Warnings,
		})
		return
	}

	now := time.Now().UTC()
	if req.TrainRatio > 0 {
		train, val := export.SplitTrainValidation(ds.Examples, req.TrainRatio, nil)
		archive, err := export.BuildSplitArchive(train, val, now)
		if err != nil {
			s.logger.Error("archive build failed", "error", err)
			writeError(w, http.StatusInternalServerError, "archive build failed")
			return
		}
		w.Header().Set("Content-Type", "application/zip")
		w.Header().Set("Content-Disposition",
			fmt.Sprintf(`attachment; filename="training_data_%s.zip"`, now.Format("2006-01-02")))
		w.WriteHeader(http.StatusOK)
		w.Write(archive)
	} else {
		jsonl, err := export.ExportJSONL(ds.Examples)
		if err != nil {
			s.logger.Error("jsonl build failed", "error", err)
			writeError(w, http.StatusInternalServerError, "jsonl build failed")
			return
		}
		w.Header().Set("Content-Type", "application/jsonl")
		w.Header().Set("Content-Disposition",
			fmt.Sprintf(`attachment; filename="training_data_%s.jsonl"`, now.Format("2006-01-02")))
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(jsonl))
	}

	if err := s.exporter.LogExport(r.Context(), ds, req.ExportedBy); err != nil {
		s.logger.Warn("failed to record export", "error", err)
	}
}

func parseExportRequest(r *http.Request) (export.Request, error) {
	q := r.URL.Query()
	req := export.Request{Options: export.DefaultOptions()}

	var err error
	if req.IncludeSystemPrompt, err = boolParam(q.Get("system_prompt"), true); err != nil {
		return req, fmt.Errorf("invalid system_prompt: %w", err)
	}
	if req.IncludeTools, err = boolParam(q.Get("tools"), true); err != nil {
		return req, fmt.Errorf("invalid tools: %w", err)
	}
	if req.IncludeRAGContext, err = boolParam(q.Get("rag"), true); err != nil {
		return req, fmt.Errorf("invalid rag: %w", err)
	}
	if req.ToolCallsOnly, err = boolParam(q.Get("tool_calls_only"), false); err != nil {
		return req, fmt.Errorf("invalid tool_calls_only: %w", err)
	}

	if v := q.Get("agent_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return req, fmt.Errorf("invalid agent_id")
		}
		req.AgentID = &id
	}
	req.Tag = q.Get("tag")

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return req, fmt.Errorf("invalid limit")
		}
		req.Limit = n
	}

	if v := q.Get("split"); v != "" {
		ratio, err := strconv.ParseFloat(v, 64)
		if err != nil || ratio <= 0 || ratio >= 1 {
			return req, fmt.Errorf("invalid split: want a ratio in (0, 1)")
		}
		req.TrainRatio = ratio
	}

	if v := q.Get("exported_by"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return req, fmt.Errorf("invalid exported_by")
		}
		req.ExportedBy = &id
	}

	return req, nil
}

func boolParam(v string, def bool) (bool, error) {
	if v == "" {
		return def, nil
	}
	return strconv.ParseBool(v)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
