package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/aryan0dhankhar/requestdesk/internal/apperr"
	"github.com/aryan0dhankhar/requestdesk/internal/service"
)

// ReceiptHandler serves /api/receipts. Every call is scoped to the caller.
type ReceiptHandler struct {
	receipts       *service.ReceiptService
	maxUploadBytes int64
	logger         *slog.Logger
}

func NewReceiptHandler(receipts *service.ReceiptService, maxUploadBytes int64, logger *slog.Logger) *ReceiptHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReceiptHandler{receipts: receipts, maxUploadBytes: maxUploadBytes, logger: logger}
}

type DataResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

type ListResponse struct {
	Success bool `json:"success"`
	Count   int  `json:"count"`
	Data    any  `json:"data"`
}

type ReceiptStatusRequest struct {
	Status string `json:"status"`
}

// Create handles POST /api/receipts (multipart)
func (h *ReceiptHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	in, image, cleanup, err := h.parseForm(w, r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	defer cleanup()

	rc, err := h.receipts.Create(r.Context(), user.ID, in, image)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, DataResponse{Success: true, Data: rc})
}

// List handles GET /api/receipts
func (h *ReceiptHandler) List(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	items, err := h.receipts.List(r.Context(), user.ID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, ListResponse{Success: true, Count: len(items), Data: items})
}

// Stats handles GET /api/receipts/stats
func (h *ReceiptHandler) Stats(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	st, err := h.receipts.Stats(r.Context(), user.ID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, DataResponse{Success: true, Data: st})
}

// Get handles GET /api/receipts/{id}
func (h *ReceiptHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	rc, err := h.receipts.Get(r.Context(), user.ID, r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, DataResponse{Success: true, Data: rc})
}

// Update handles PUT /api/receipts/{id} (multipart)
func (h *ReceiptHandler) Update(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	in, image, cleanup, err := h.parseForm(w, r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	defer cleanup()

	rc, err := h.receipts.Update(r.Context(), user.ID, r.PathValue("id"), in, image)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, DataResponse{Success: true, Data: rc})
}

// UpdateStatus handles PATCH /api/receipts/{id}/status
func (h *ReceiptHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req ReceiptStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	rc, err := h.receipts.UpdateStatus(r.Context(), user.ID, r.PathValue("id"), req.Status)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, DataResponse{Success: true, Data: rc})
}

// Delete handles DELETE /api/receipts/{id}
func (h *ReceiptHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.receipts.Delete(r.Context(), user.ID, r.PathValue("id")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "Receipt deleted successfully"})
}

// parseForm reads the receipt fields and the optional "image" part. Absent
// fields stay nil so updates can tell them apart from empty ones.
func (h *ReceiptHandler) parseForm(w http.ResponseWriter, r *http.Request) (service.ReceiptInput, *service.Attachment, func(), error) {
	var in service.ReceiptInput
	noop := func() {}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartOverhead)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		return in, nil, noop, multipartError(err)
	}
	form := r.MultipartForm
	cleanup := func() { _ = form.RemoveAll() }

	field := func(name string) *string {
		if vs, ok := form.Value[name]; ok && len(vs) > 0 {
			v := vs[0]
			return &v
		}
		return nil
	}
	in.CompanyName = field("companyName")
	in.FolioNumber = field("folioNumber")
	in.Date = field("date")
	in.Description = field("description")
	if raw := field("totalAmount"); raw != nil {
		amount, err := strconv.ParseFloat(strings.TrimSpace(*raw), 64)
		if err != nil {
			cleanup()
			return in, nil, noop, apperr.Validation("totalAmount must be a number")
		}
		in.TotalAmount = &amount
	}

	file, header, err := r.FormFile("image")
	switch {
	case errors.Is(err, http.ErrMissingFile):
		return in, nil, cleanup, nil
	case err != nil:
		cleanup()
		return in, nil, noop, apperr.Validation("invalid image upload")
	}
	ct := header.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "image/") {
		file.Close()
		cleanup()
		return in, nil, noop, apperr.Validation("image must be an image file")
	}
	image := &service.Attachment{
		Filename:    header.Filename,
		ContentType: ct,
		Size:        header.Size,
		Body:        file,
	}
	return in, image, func() {
		file.Close()
		cleanup()
	}, nil
}
