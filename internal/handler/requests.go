package handler

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/aryan0dhankhar/requestdesk/internal/apperr"
	"github.com/aryan0dhankhar/requestdesk/internal/service"
)

// multipartOverhead is allowed on top of the upload limit for form framing.
const multipartOverhead = 1 << 20

// RequestHandler serves /api/requests.
type RequestHandler struct {
	requests       *service.RequestService
	maxUploadBytes int64
	logger         *slog.Logger
}

func NewRequestHandler(requests *service.RequestService, maxUploadBytes int64, logger *slog.Logger) *RequestHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RequestHandler{requests: requests, maxUploadBytes: maxUploadBytes, logger: logger}
}

type CreateRequestResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	RequestID string `json:"requestId"`
	Status    string `json:"status"`
}

type RequestDetailResponse struct {
	Success bool                   `json:"success"`
	Request *service.RequestDetail `json:"request"`
}

type StatusChangeRequest struct {
	ToStatus string `json:"toStatus"`
	Reason   string `json:"reason"`
}

type CommentRequest struct {
	Content string `json:"content"`
}

type CommentResponse struct {
	Success bool                 `json:"success"`
	Message string               `json:"message"`
	Comment *service.CommentView `json:"comment"`
}

type FileResponse struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	File    *service.FileView `json:"file"`
}

// Create handles POST /api/requests
func (h *RequestHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var in service.CreateRequestInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	req, err := h.requests.Create(r.Context(), user, in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, CreateRequestResponse{
		Success:   true,
		Message:   "Solicitud creada correctamente",
		RequestID: req.ID,
		Status:    string(req.Status),
	})
}

// List handles GET /api/requests?status=&clientId=&search=&skip=&limit=
func (h *RequestHandler) List(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	skip, err := queryInt(r, "skip", 0)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	q := r.URL.Query()
	page, err := h.requests.List(r.Context(), user, service.ListRequestsInput{
		Status:   q.Get("status"),
		ClientID: q.Get("clientId"),
		Search:   q.Get("search"),
		Skip:     skip,
		Limit:    limit,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// Get handles GET /api/requests/{id}
func (h *RequestHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	detail, err := h.requests.Get(r.Context(), user, r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, RequestDetailResponse{Success: true, Request: detail})
}

// Update handles PUT /api/requests/{id}
func (h *RequestHandler) Update(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var in service.UpdateRequestInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.requests.Update(r.Context(), user, r.PathValue("id"), in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "Solicitud actualizada correctamente"})
}

// Delete handles DELETE /api/requests/{id}
func (h *RequestHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.requests.Delete(r.Context(), user, r.PathValue("id")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "Solicitud eliminada correctamente"})
}

// ChangeStatus handles PATCH /api/requests/{id}/status
func (h *RequestHandler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var in StatusChangeRequest
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	change, err := h.requests.ChangeStatus(r.Context(), user, r.PathValue("id"), in.ToStatus, in.Reason)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{
		Success: true,
		Message: "Estado actualizado a " + string(change.ToStatus),
	})
}

// AddComment handles POST /api/requests/{id}/comments
func (h *RequestHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var in CommentRequest
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	view, err := h.requests.AddComment(r.Context(), user, r.PathValue("id"), in.Content)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, CommentResponse{Success: true, Message: "Comentario añadido correctamente", Comment: view})
}

// Submit handles POST /api/requests/{id}/submit
func (h *RequestHandler) Submit(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if _, err := h.requests.Submit(r.Context(), user, r.PathValue("id")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "Solicitud enviada correctamente para revisión"})
}

// UploadFile handles POST /api/requests/{id}/files with a multipart "file" part.
func (h *RequestHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartOverhead)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		writeError(w, r, h.logger, multipartError(err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, h.logger, apperr.Validation("file is required"))
		return
	}
	defer file.Close()

	view, err := h.requests.AttachFile(r.Context(), user, r.PathValue("id"),
		header.Filename, header.Header.Get("Content-Type"), header.Size, file)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, FileResponse{Success: true, Message: "Archivo subido correctamente", File: view})
}

// DownloadFile handles GET /api/requests/{id}/files/{fileID}
func (h *RequestHandler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	meta, body, err := h.requests.OpenFile(r.Context(), user, r.PathValue("id"), r.PathValue("fileID"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", meta.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": meta.Filename}))
	if meta.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(meta.Size, 10))
	}
	if _, err := io.Copy(w, body); err != nil {
		h.logger.Warn("file download interrupted",
			slog.String("file_id", meta.ID),
			slog.String("error", err.Error()),
		)
	}
}

func multipartError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return apperr.Validation("upload too large")
	}
	return apperr.Validation("invalid multipart form")
}
