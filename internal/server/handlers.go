package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hyperjump/kotae/internal/apperr"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
	"go.uber.org/zap"
)

// multipartOverhead is allowed on top of max_file_bytes for form boundaries and fields.
const multipartOverhead = 1 << 20

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"message": "Server is running",
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("chat request",
		zap.Int("message_length", len(req.Message)),
		zap.String("document_id", req.DocumentID),
		zap.Bool("interview_mode", req.InterviewMode))
	resp, err := s.chat.Answer(r.Context(), req)
	if err != nil {
		s.respondAppError(w, "chat failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	maxBytes := s.config.Ingest.MaxFileBytes
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, http.StatusBadRequest, fmt.Sprintf("document too large (max %d bytes)", maxBytes))
			return
		}
		s.respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	isInterview := false
	if v := strings.TrimSpace(r.FormValue("is_interview")); v != "" {
		isInterview, err = strconv.ParseBool(v)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "is_interview must be a boolean")
			return
		}
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !indexer.ExtensionAllowed(ext, s.config.Ingest.AllowedExtensions) {
		s.respondError(w, http.StatusBadRequest,
			fmt.Sprintf("unsupported file type %q (allowed: %s)", ext, strings.Join(s.config.Ingest.AllowedExtensions, ", ")))
		return
	}
	content, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "failed to read file")
		return
	}
	if int64(len(content)) > maxBytes {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("document too large (max %d bytes)", maxBytes))
		return
	}
	text, err := extract.NewExtractor().ExtractBytes(content, ext)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("failed to read %s: %v", header.Filename, err))
		return
	}

	s.logger.Debug("upload request",
		zap.String("filename", header.Filename),
		zap.Int("bytes", len(content)),
		zap.Bool("is_interview", isInterview))
	result, err := s.indexer.Upload(r.Context(), models.UploadInput{
		Text:        text,
		Filename:    header.Filename,
		IsInterview: isInterview,
	})
	if err != nil {
		s.respondAppError(w, "upload failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page", 1)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := queryInt(r, "limit", 10)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := s.indexer.List(r.Context(), page, limit)
	if err != nil {
		s.respondAppError(w, "list documents failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete document request", zap.String("id", id))
	result, err := s.indexer.Delete(r.Context(), id)
	if err != nil {
		s.respondAppError(w, "deletion failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleDeleteAllDocuments(w http.ResponseWriter, r *http.Request) {
	result, err := s.indexer.DeleteAll(r.Context())
	if err != nil {
		s.respondAppError(w, "clear failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docCount, err := s.storage.CountDocuments(ctx)
	if err != nil {
		s.logger.Error("status: count documents failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	chunkCount, err := s.storage.CountChunks(ctx)
	if err != nil {
		s.logger.Error("status: count chunks failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := map[string]interface{}{
		"documents": docCount,
		"chunks":    chunkCount,
		"status":    models.StatusSuccess,
	}
	if vectors, err := s.engine.VectorCount(ctx); err == nil {
		resp["vectors"] = vectors
	} else {
		s.logger.Warn("status: count vectors failed", zap.Error(err))
	}

	cfg := s.config
	paths := s.storage.Paths()
	if s.engine.IndexType() == string(vector.IndexTypeBolt) {
		paths = append(paths, cfg.Storage.VectorPath)
	}
	if diskBytes, err := storage.DiskUsageBytes(paths...); err == nil {
		resp["disk_usage_bytes"] = diskBytes
	}
	if s.watch != nil {
		resp["watch_directories"] = s.watch.Directories()
	}
	resp["config"] = map[string]interface{}{
		"vector_index_type":    s.engine.IndexType(),
		"embedding_provider":   cfg.Embedding.Provider,
		"embedding_model":      cfg.Embedding.Model,
		"embedding_dimensions": cfg.Embedding.Dimensions,
		"completion_provider":  cfg.Completion.Provider,
		"completion_model":     cfg.Completion.Model,
		"chunk_size":           cfg.Ingest.ChunkSize,
		"chunk_overlap":        cfg.Ingest.ChunkOverlap,
		"database_path":        cfg.Storage.DatabasePath,
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return n, nil
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message, "status": "error"})
}

// respondAppError maps err to its status code. Server errors are logged.
func (s *Server) respondAppError(w http.ResponseWriter, msg string, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(msg, zap.Error(err))
	} else {
		s.logger.Debug(msg, zap.Error(err))
	}
	s.respondError(w, status, err.Error())
}
