package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/healthassist/internal/config"
	"github.com/hyperjump/healthassist/internal/models"
	"github.com/hyperjump/healthassist/internal/schema"
	"github.com/hyperjump/healthassist/internal/storage"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"models": s.models.Models(),
	}
	if h := s.service.History(); h != nil {
		n, err := h.CountPredictions(r.Context(), "")
		if err != nil {
			s.logger.Error("status: count predictions failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp["predictions"] = n
	}
	if s.watch != nil {
		resp["watch_directories"] = s.watch.Directories()
	}

	cfg := s.config
	resp["config"] = map[string]interface{}{
		"models_directory": cfg.Models.Directory,
		"database_path":    cfg.Storage.DatabasePath,
		"history_enabled":  s.service.History() != nil,
		"max_upload_bytes": cfg.Server.MaxUploadBytes,
	}
	paths := []string{cfg.Models.Directory}
	if s.service.History() != nil {
		paths = append(paths, cfg.Storage.DatabasePath)
	}
	if n, err := storage.DiskUsageBytes(paths...); err == nil {
		resp["disk_usage_bytes"] = n
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListDiseases(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"diseases": schema.All()})
}

func (s *Server) handleGetDisease(w http.ResponseWriter, r *http.Request) {
	sch, err := schema.Lookup(chi.URLParam(r, "disease"))
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, sch)
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	disease := chi.URLParam(r, "disease")
	var input models.PredictInput
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload())
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil && !errors.Is(err, io.EOF) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondFailure(w, err)
			return
		}
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	var record *models.PatientRecord
	if input.Record != nil {
		record = models.NewPatientRecord(models.SourceManual)
		for k, v := range input.Record {
			record.Set(k, v)
		}
	}
	s.logger.Debug("predict request", zap.String("disease", disease), zap.Int("record_fields", record.Len()), zap.Int("overrides", len(input.Overrides)))
	d, err := s.service.Diagnose(r.Context(), disease, record, input.Overrides)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, d)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	disease := chi.URLParam(r, "disease")
	if _, err := schema.Lookup(disease); err != nil {
		s.respondFailure(w, err)
		return
	}
	upload, err := s.readUpload(w, r)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	s.logger.Debug("report request",
		zap.String("disease", disease),
		zap.String("filename", upload.filename),
		zap.Int("bytes", len(upload.content)))
	d, err := s.service.DiagnoseReport(r.Context(), disease, upload.filename, upload.content, upload.patient, upload.overrides)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, d)
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	upload, err := s.readUpload(w, r)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	res, err := s.service.ExtractReport(upload.filename, upload.content, upload.patient)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	h := s.service.History()
	if h == nil {
		s.respondError(w, http.StatusNotImplemented, "history not enabled")
		return
	}
	q := models.HistoryQuery{}
	if d := r.URL.Query().Get("disease"); d != "" {
		key, err := schema.Canonical(d)
		if err != nil {
			s.respondFailure(w, err)
			return
		}
		q.Disease = key
	}
	var err error
	if q.Offset, err = intParam(r, "offset"); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if q.Limit, err = intParam(r, "limit"); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := q.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	items, err := h.ListPredictions(r.Context(), q)
	if err != nil {
		s.logger.Error("list history failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	total, err := h.CountPredictions(r.Context(), q.Disease)
	if err != nil {
		s.logger.Error("count history failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if items == nil {
		items = []*models.Prediction{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"predictions": items,
		"total":       total,
		"offset":      q.Offset,
		"limit":       q.Limit,
	})
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	h := s.service.History()
	if h == nil {
		s.respondError(w, http.StatusNotImplemented, "history not enabled")
		return
	}
	p, err := h.GetPrediction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "prediction not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeleteHistory(w http.ResponseWriter, r *http.Request) {
	h := s.service.History()
	if h == nil {
		s.respondError(w, http.StatusNotImplemented, "history not enabled")
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.DeletePrediction(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "prediction not found")
			return
		}
		s.logger.Error("delete history failed", zap.String("id", id), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

func (s *Server) handleWatchDirectoriesList(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	dirs := s.watch.Directories()
	if dirs == nil {
		dirs = []string{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"directories": dirs})
}

func (s *Server) handleWatchDirectoriesAdd(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	var req struct {
		Path string `json:"path"`
		Sync *bool  `json:"sync"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	abs, err := filepath.Abs(req.Path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	if info, err := os.Stat(abs); err == nil && !info.IsDir() {
		s.respondError(w, http.StatusBadRequest, "path is not a directory")
		return
	}
	syncExisting := req.Sync == nil || *req.Sync
	if err := s.watch.AddDirectory(abs, syncExisting); err != nil {
		s.logger.Error("watch add directory failed", zap.String("path", abs), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.persistWatchDirectories()
	s.respondJSON(w, http.StatusCreated, map[string]string{"path": abs, "status": "added"})
}

func (s *Server) handleWatchDirectoriesRemove(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		var body struct {
			Path string `json:"path"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			path = body.Path
		}
	}
	if path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required (query or body)")
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	if err := s.watch.RemoveDirectory(abs); err != nil {
		s.logger.Error("watch remove directory failed", zap.String("path", abs), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.persistWatchDirectories()
	s.respondJSON(w, http.StatusOK, map[string]string{"path": abs, "status": "removed"})
}

// persistWatchDirectories writes the current watch roots to the config file.
// A write failure is logged; the running watcher keeps the change.
func (s *Server) persistWatchDirectories() {
	if s.configPath == "" {
		return
	}
	s.configMu.Lock()
	defer s.configMu.Unlock()
	s.config.Watch.Directories = s.watch.Directories()
	if err := config.Save(s.configPath, s.config); err != nil {
		s.logger.Warn("failed to persist watch config", zap.String("config_path", s.configPath), zap.Error(err))
	}
}

func intParam(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", name, v)
	}
	return n, nil
}

// respondFailure maps pipeline errors to HTTP statuses.
func (s *Server) respondFailure(w http.ResponseWriter, err error) {
	var ce *models.ConversionError
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &ce):
		s.respondJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error": models.InvalidNumberMessage,
			"field": ce.Field,
			"value": ce.Value,
		})
	case errors.As(err, &tooLarge):
		s.respondError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit))
	case errors.Is(err, models.ErrUnknownDisease):
		s.respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrMissingNameColumn), errors.Is(err, models.ErrUnreadableFile), errors.Is(err, errMissingFile):
		s.respondError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("request failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
