package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path"
	"time"

	"github.com/govai/console/internal/auth"
	"github.com/govai/console/internal/domain"
	"github.com/govai/console/internal/service"
	"github.com/govai/console/internal/storage"
)

// FileHandler handles organization file uploads.
//
// Routes handled:
//   - POST /api/files       -> Upload
//   - GET  /api/files/{id}  -> Link
type FileHandler struct {
	quota         service.QuotaService
	storage       storage.Storage
	maxUploadSize int64
	linkTTL       time.Duration
	logger        *slog.Logger
}

// NewFileHandler creates a new FileHandler.
func NewFileHandler(quota service.QuotaService, store storage.Storage, maxUploadSize int64, logger *slog.Logger) *FileHandler {
	return &FileHandler{
		quota:         quota,
		storage:       store,
		maxUploadSize: maxUploadSize,
		linkTTL:       15 * time.Minute,
		logger:        logger,
	}
}

// RegisterRoutes registers file routes behind the tenant middleware.
func (h *FileHandler) RegisterRoutes(mux *http.ServeMux, tenant func(http.Handler) http.Handler) {
	mux.Handle("POST /api/files", tenant(http.HandlerFunc(h.Upload)))
	mux.Handle("GET /api/files/{id}", tenant(http.HandlerFunc(h.Link)))
}

// FileResponse describes a stored file.
type FileResponse struct {
	ID          string  `json:"id"`
	Key         string  `json:"key"`
	Size        int64   `json:"size"`
	SizeMB      float64 `json:"size_mb"`
	ContentType string  `json:"content_type"`
	URL         string  `json:"url,omitempty"`
}

// Upload stores a multipart file field named "file". The file's size in MB
// is reserved against the storage limit before it is written.
func (h *FileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	const op = "files.upload"

	org := auth.GetOrganization(r.Context())
	if org == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	// Allow multipart overhead on top of the file itself.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize+1<<20)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			ErrorResponse(w, r, h.logger, domain.Errorf(domain.ETOOLARGE, op, "File exceeds the maximum upload size"))
			return
		}
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "Request must be multipart/form-data"))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		ValidationErrorResponse(w, r, h.logger, domain.NewValidationError(op, "file", "a file is required"))
		return
	}
	defer file.Close()

	if header.Size <= 0 {
		ValidationErrorResponse(w, r, h.logger, domain.NewValidationError(op, "file", "file is empty"))
		return
	}
	if header.Size > h.maxUploadSize {
		ErrorResponse(w, r, h.logger, domain.Errorf(domain.ETOOLARGE, op, "File exceeds the maximum upload size"))
		return
	}

	provided := header.Header.Get("Content-Type")
	if provided == "application/octet-stream" {
		provided = ""
	}
	contentType := storage.DetectContentType(provided, header.Filename, file)
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		InternalErrorResponse(w, r, h.logger, err)
		return
	}
	if !storage.IsAllowedUploadType(contentType) {
		ValidationErrorResponse(w, r, h.logger, domain.NewValidationError(op, "file", "file type is not allowed"))
		return
	}

	res, err := h.quota.Reserve(r.Context(), org.ID, org.PlanID, domain.MetricStorageMB, storage.BytesToMB(header.Size))
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	key := storage.FileKey(org.ID, header.Filename)
	info, err := h.storage.Put(r.Context(), key, file, storage.PutOptions{
		ContentType: contentType,
		MaxSize:     header.Size,
	})
	if err != nil {
		if rerr := h.quota.Release(context.WithoutCancel(r.Context()), res); rerr != nil {
			h.logger.Error("failed to release storage reservation", "organization_id", org.ID, "error", rerr)
		}
		ErrorResponse(w, r, h.logger, storage.ToDomain(op, err))
		return
	}

	if err := h.quota.Commit(context.WithoutCancel(r.Context()), res, storage.BytesToMB(info.Size)); err != nil {
		h.logger.Error("failed to commit storage usage",
			"organization_id", org.ID,
			"key", key,
			"error", err,
		)
	}

	h.logger.Info("file uploaded",
		"organization_id", org.ID,
		"key", key,
		"size", info.Size,
		"content_type", contentType,
	)

	resp := FileResponse{
		ID:          path.Base(key),
		Key:         key,
		Size:        info.Size,
		SizeMB:      storage.BytesToMB(info.Size),
		ContentType: contentType,
	}
	if url, err := h.storage.URL(r.Context(), key, h.linkTTL); err == nil {
		resp.URL = url
	}
	writeJSON(w, http.StatusCreated, resp)
}

// Link returns a time-limited download URL for one of the organization's files.
func (h *FileHandler) Link(w http.ResponseWriter, r *http.Request) {
	const op = "files.link"

	org := auth.GetOrganization(r.Context())
	if org == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	id := r.PathValue("id")
	if id == "" || id != path.Base(id) || id == "." || id == ".." {
		NotFoundResponse(w, r, h.logger)
		return
	}
	key := storage.OrganizationPrefix(org.ID) + "files/" + id

	ok, err := h.storage.Exists(r.Context(), key)
	if err != nil {
		ErrorResponse(w, r, h.logger, storage.ToDomain(op, err))
		return
	}
	if !ok {
		NotFoundResponse(w, r, h.logger)
		return
	}

	url, err := h.storage.URL(r.Context(), key, h.linkTTL)
	if err != nil {
		ErrorResponse(w, r, h.logger, storage.ToDomain(op, err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "url": url})
}
