package daemon

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"fileforge/internal/api"
	"fileforge/internal/config"
	"fileforge/internal/logging"
	"fileforge/internal/orchestrator"
	"fileforge/internal/services"
)

// maxUploadBytes bounds a single upload request body.
const maxUploadBytes = 2 << 30

type apiServer struct {
	bind   string
	token  string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}

	srv := &apiServer{
		bind:   bind,
		token:  strings.TrimSpace(cfg.Paths.APIToken),
		logger: logger,
		daemon: d,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/files", srv.withAuth(srv.handleFiles))
	mux.HandleFunc("/api/files/", srv.withAuth(srv.handleFileSubtree))
	mux.HandleFunc("/api/jobs/", srv.withAuth(srv.handleJob))
	mux.HandleFunc("/api/status", srv.withAuth(srv.handleStatus))
	if d.metrics != nil {
		mux.Handle("/metrics", d.metrics.Handler())
	}

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// Addr returns the bound listener address, or empty before start.
func (s *apiServer) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) withAuth(next http.HandlerFunc) http.HandlerFunc {
	if s.token == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		presented, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(presented), []byte(s.token)) != 1 {
			s.writeError(w, http.StatusUnauthorized, "missing or invalid bearer token")
			return
		}
		next(w, r)
	}
}

// handleFiles serves POST /api/files (upload) and GET /api/files?owner=.
func (s *apiServer) handleFiles(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleUpload(w, r)
	case http.MethodGet:
		s.handleList(w, r)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *apiServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.writeError(w, http.StatusBadRequest, "expected multipart form upload")
		return
	}
	part, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "missing file part")
		return
	}
	defer func() { _ = part.Close() }()

	owner := strings.TrimSpace(r.FormValue("owner"))
	file, err := s.daemon.Service().Upload(r.Context(), orchestrator.UploadRequest{
		OwnerID:     owner,
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Body:        part,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	// An optional actions field starts a pipeline in the same request.
	if raw := strings.TrimSpace(r.FormValue("actions")); raw != "" {
		var requested []api.ActionRequest
		if err := json.Unmarshal([]byte(raw), &requested); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid actions field")
			return
		}
		actions := make([]orchestrator.ActionRequest, 0, len(requested))
		for _, action := range requested {
			actions = append(actions, orchestrator.ActionRequest{Kind: action.Kind, Params: action.Params})
		}
		if _, _, err := s.daemon.Service().StartPipeline(r.Context(), file.ID, actions); err != nil {
			s.writeServiceError(w, err)
			return
		}
	}

	view, err := s.daemon.Service().FileView(r.Context(), file.ID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, api.UploadResponse{File: api.FileItemFromView(view)})
}

func (s *apiServer) handleList(w http.ResponseWriter, r *http.Request) {
	owner := strings.TrimSpace(r.URL.Query().Get("owner"))
	views, err := s.daemon.Service().ListFiles(r.Context(), owner)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	files := make([]api.FileItem, 0, len(views))
	for _, view := range views {
		files = append(files, api.FileItemFromView(view))
	}
	s.writeJSON(w, http.StatusOK, api.FileListResponse{Files: files})
}

// handleFileSubtree routes /api/files/{id}, /api/files/{id}/pipeline, and
// /api/files/{id}/content.
func (s *apiServer) handleFileSubtree(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/files/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		s.writeError(w, http.StatusNotFound, "file not found")
		return
	}

	switch sub {
	case "":
		switch r.Method {
		case http.MethodGet:
			s.handleFileDetail(w, r, id)
		case http.MethodDelete:
			s.handleFileDelete(w, r, id)
		default:
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	case "pipeline":
		if r.Method != http.MethodPost {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.handlePipeline(w, r, id)
	case "content":
		if r.Method != http.MethodGet {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.handleDownload(w, r, id)
	default:
		s.writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *apiServer) handleFileDetail(w http.ResponseWriter, r *http.Request, id string) {
	view, err := s.daemon.Service().FileView(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FileResponse{File: api.FileItemFromView(view)})
}

func (s *apiServer) handleFileDelete(w http.ResponseWriter, r *http.Request, id string) {
	if err := s.daemon.Service().Delete(r.Context(), id); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handlePipeline(w http.ResponseWriter, r *http.Request, id string) {
	var req api.PipelineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid pipeline request body")
		return
	}
	actions := make([]orchestrator.ActionRequest, 0, len(req.Actions))
	for _, action := range req.Actions {
		actions = append(actions, orchestrator.ActionRequest{Kind: action.Kind, Params: action.Params})
	}
	pipeline, jobs, err := s.daemon.Service().StartPipeline(r.Context(), id, actions)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, api.PipelineResponse{
		Pipeline: api.PipelineFromRecords(pipeline, jobs),
	})
}

func (s *apiServer) handleDownload(w http.ResponseWriter, r *http.Request, id string) {
	file, rc, err := s.daemon.Service().Download(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	defer func() { _ = rc.Close() }()

	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.OriginalName))
	if file.SizeBytes > 0 {
		w.Header().Set("Content-Length", fmt.Sprintf("%d", file.SizeBytes))
	}
	if _, err := io.Copy(w, rc); err != nil {
		s.log().Warn("download stream interrupted",
			logging.String(logging.FieldFileID, id), logging.Error(err))
	}
}

func (s *apiServer) handleJob(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	if id == "" || strings.Contains(id, "/") {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	job, err := s.daemon.Service().Job(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.JobResponse{Job: api.JobItemFromRecord(job)})
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	summary, err := s.daemon.Service().Status(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.StatusFromSummary(summary))
}

func (s *apiServer) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrValidation):
		s.writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}

func (s *apiServer) log() *slog.Logger {
	return logging.NewComponentLogger(s.logger, "api-server")
}
