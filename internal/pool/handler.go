package pool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"qbank/internal/app/apiresp"
	"qbank/internal/auth"
	"qbank/internal/question"

	"github.com/go-chi/chi/v5"
)

const maxImportBytes = 10 << 20

type Handler struct {
	svc poolService
}

type poolService interface {
	CreatePool(ctx context.Context, in CreatePoolInput) (*Pool, error)
	ListPools(ctx context.Context, ownerID *int64) ([]Pool, error)
	GetPool(ctx context.Context, id int64) (*Pool, error)
	Authorize(ctx context.Context, poolID int64, user *auth.User) error
	SaveBatch(ctx context.Context, poolID int64, items []question.ApprovedQuestion) error
	ListQuestions(ctx context.Context, poolID int64) ([]Question, error)
	ExportExcel(ctx context.Context, poolID int64) ([]byte, error)
	ExportYAML(ctx context.Context, poolID int64) ([]byte, error)
	ImportExcel(ctx context.Context, poolID int64, r io.Reader) (*ImportReport, error)
}

type apiResponse struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

type createPoolRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) CreatePool(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, apiResponse{OK: false, Error: "unauthorized"})
		return
	}

	var req createPoolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid request body"})
		return
	}

	item, err := h.svc.CreatePool(r.Context(), CreatePoolInput{
		Name:        req.Name,
		Description: req.Description,
		OwnerID:     user.ID,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, apiResponse{OK: true, Data: item})
}

func (h *Handler) ListPools(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, apiResponse{OK: false, Error: "unauthorized"})
		return
	}

	var ownerID *int64
	ownerOnly := user.Role != auth.RoleAdmin
	if raw := strings.TrimSpace(r.URL.Query().Get("owner_only")); raw != "" && user.Role == auth.RoleAdmin {
		ownerOnly = raw == "1" || strings.EqualFold(raw, "true")
	}
	if ownerOnly {
		id := user.ID
		ownerID = &id
	}

	items, err := h.svc.ListPools(r.Context(), ownerID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: items})
}

func (h *Handler) GetPool(w http.ResponseWriter, r *http.Request) {
	poolID, ok := h.authorizedPoolID(w, r)
	if !ok {
		return
	}
	item, err := h.svc.GetPool(r.Context(), poolID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: item})
}

func (h *Handler) ListQuestions(w http.ResponseWriter, r *http.Request) {
	poolID, ok := h.authorizedPoolID(w, r)
	if !ok {
		return
	}
	items, err := h.svc.ListQuestions(r.Context(), poolID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: items})
}

type saveBatchRequest struct {
	Questions []question.ApprovedQuestion `json:"questions"`
}

// SaveBatch is the remote persistence endpoint: one request, one
// transaction.
func (h *Handler) SaveBatch(w http.ResponseWriter, r *http.Request) {
	poolID, ok := h.authorizedPoolID(w, r)
	if !ok {
		return
	}

	var req saveBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid request body"})
		return
	}
	if len(req.Questions) == 0 {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "questions must not be empty"})
		return
	}

	if err := h.svc.SaveBatch(r.Context(), poolID, req.Questions); err != nil {
		writeServiceError(w, r, err)
		return
	}
	log.Printf("pool: saved batch pool=%d items=%d", poolID, len(req.Questions))
	writeJSON(w, r, http.StatusCreated, apiResponse{OK: true, Data: map[string]any{
		"pool_id": poolID,
		"saved":   len(req.Questions),
	}})
}

func (h *Handler) ImportExcel(w http.ResponseWriter, r *http.Request) {
	poolID, ok := h.authorizedPoolID(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)
	if err := r.ParseMultipartForm(maxImportBytes); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid multipart form"})
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "file is required"})
		return
	}
	defer file.Close()

	report, err := h.svc.ImportExcel(r.Context(), poolID, file)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if report.SuccessRows == 0 && report.FailedRows > 0 {
		apiresp.WriteErrorData(w, r, http.StatusUnprocessableEntity, "no valid rows to import", report)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: report})
}

func (h *Handler) ExportExcel(w http.ResponseWriter, r *http.Request) {
	poolID, ok := h.authorizedPoolID(w, r)
	if !ok {
		return
	}
	data, err := h.svc.ExportExcel(r.Context(), poolID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeFile(w, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", fmt.Sprintf("pool-%d.xlsx", poolID), data)
}

func (h *Handler) ExportYAML(w http.ResponseWriter, r *http.Request) {
	poolID, ok := h.authorizedPoolID(w, r)
	if !ok {
		return
	}
	data, err := h.svc.ExportYAML(r.Context(), poolID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeFile(w, "application/yaml", fmt.Sprintf("pool-%d.yaml", poolID), data)
}

func (h *Handler) authorizedPoolID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, apiResponse{OK: false, Error: "unauthorized"})
		return 0, false
	}
	poolID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || poolID <= 0 {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid pool id"})
		return 0, false
	}
	if err := h.svc.Authorize(r.Context(), poolID, user); err != nil {
		writeServiceError(w, r, err)
		return 0, false
	}
	return poolID, true
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: err.Error()})
	case errors.Is(err, ErrPoolNotFound):
		writeJSON(w, r, http.StatusNotFound, apiResponse{OK: false, Error: err.Error()})
	case errors.Is(err, ErrForbidden):
		writeJSON(w, r, http.StatusForbidden, apiResponse{OK: false, Error: err.Error()})
	default:
		log.Printf("pool: %v", err)
		writeJSON(w, r, http.StatusInternalServerError, apiResponse{OK: false, Error: "internal error"})
	}
}

func writeFile(w http.ResponseWriter, contentType, name string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, payload apiResponse) {
	if payload.OK {
		apiresp.WriteOK(w, r, code, payload.Data)
		return
	}
	apiresp.WriteError(w, r, code, payload.Error)
}
