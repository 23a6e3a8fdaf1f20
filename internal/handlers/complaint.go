package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hazardwatch/apiserver/internal/services"
	"github.com/hazardwatch/apiserver/internal/session"
	"github.com/hazardwatch/apiserver/internal/storage"
)

const (
	defaultMaxPhotoBytes = 10 << 20
	formFieldPhoto       = "photo"
)

// PhotoUploader stores a complaint photo and returns its reference.
type PhotoUploader interface {
	PutPhoto(ctx context.Context, owner uuid.UUID, filename string, r io.Reader, size int64, contentType string) (storage.Photo, error)
}

// ComplaintHandler provides HTTP handlers for complaints.
type ComplaintHandler struct {
	complaints    *services.ComplaintService
	photos        PhotoUploader
	maxPhotoBytes int64
}

// NewComplaintHandler constructs a handler. photos may be nil when no
// object storage is configured.
func NewComplaintHandler(complaints *services.ComplaintService, photos PhotoUploader, maxPhotoBytes int64) *ComplaintHandler {
	if maxPhotoBytes <= 0 {
		maxPhotoBytes = defaultMaxPhotoBytes
	}
	return &ComplaintHandler{
		complaints:    complaints,
		photos:        photos,
		maxPhotoBytes: maxPhotoBytes,
	}
}

// ComplaintRouter registers complaint routes on the given router.
func ComplaintRouter(r chi.Router, handler *ComplaintHandler) {
	r.Use(RequireAuth)
	r.Post("/", handler.Create)
	r.Post("/photos", handler.UploadPhoto)
	r.Get("/mine", handler.ListMine)
	r.Get("/{id}", handler.Get)
	r.Patch("/{id}", handler.Update)
}

type CreateComplaintRequest struct {
	Category    string   `json:"category"`
	Description string   `json:"description"`
	ImageURL    string   `json:"image_url"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
	Address     *string  `json:"address"`
}

type UpdateComplaintRequest struct {
	Status     *string `json:"status"`
	AdminNotes *string `json:"admin_notes"`
}

// Create files a complaint for the current user.
func (h *ComplaintHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateComplaintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	view, err := h.complaints.Create(r.Context(), session.FromContext(r.Context()), services.CreateComplaintInput{
		Category:    req.Category,
		Description: req.Description,
		ImageURL:    req.ImageURL,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
		Address:     req.Address,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// UploadPhoto accepts a multipart photo and returns the image reference
// to submit with the complaint.
func (h *ComplaintHandler) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	if h.photos == nil {
		writeError(w, http.StatusServiceUnavailable, "photo storage is not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxPhotoBytes+(1<<20))
	if err := r.ParseMultipartForm(h.maxPhotoBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "photo too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	file, header, err := r.FormFile(formFieldPhoto)
	if err != nil {
		writeError(w, http.StatusBadRequest, "photo is required")
		return
	}
	defer file.Close()

	if header.Size > h.maxPhotoBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "photo too large")
		return
	}

	snap := session.FromContext(r.Context())
	photo, err := h.photos.PutPhoto(r.Context(), snap.Identity.UserID, header.Filename, file, header.Size, header.Header.Get("Content-Type"))
	if err != nil {
		if errors.Is(err, storage.ErrUnsupportedMediaType) {
			writeServiceError(w, err)
			return
		}
		writeError(w, http.StatusBadGateway, "failed to store photo")
		return
	}
	writeJSON(w, http.StatusCreated, photo)
}

// ListMine returns the caller's complaints, newest first.
func (h *ComplaintHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	views, err := h.complaints.ListMine(r.Context(), session.FromContext(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

// Get returns one complaint to its owner or a covering admin.
func (h *ComplaintHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid complaint id")
		return
	}
	view, err := h.complaints.Get(r.Context(), session.FromContext(r.Context()), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Update changes status and/or admin notes.
func (h *ComplaintHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid complaint id")
		return
	}

	var req UpdateComplaintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	view, err := h.complaints.Transition(r.Context(), session.FromContext(r.Context()), id, services.ComplaintPatch{
		Status:     req.Status,
		AdminNotes: req.AdminNotes,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
