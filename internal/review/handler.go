package review

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"qbank/internal/app/apiresp"
	"qbank/internal/auth"
	"qbank/internal/generate"
	"qbank/internal/pool"
	"qbank/internal/question"

	"github.com/go-chi/chi/v5"
)

// Observer receives pipeline and commit outcomes for metrics.
type Observer interface {
	ObservePipeline(origin string, rep question.Report)
	ObserveCommit(ok bool, items int)
}

type sourceGenerator interface {
	FromPrompt(ctx context.Context, req generate.Request) (generate.Source, error)
	FromFile(ctx context.Context, name string, data []byte, req generate.Request) (generate.Source, error)
	MaxUploadBytes() int64
}

type poolAuthorizer interface {
	Authorize(ctx context.Context, poolID int64, user *auth.User) error
}

type HandlerConfig struct {
	Store            *Store
	Generator        sourceGenerator
	Pools            poolAuthorizer
	Committer        Committer
	Observer         Observer
	MaxBulkQuestions int
}

type Handler struct {
	store     *Store
	gen       sourceGenerator
	pools     poolAuthorizer
	committer Committer
	observer  Observer
	maxBulk   int
}

type apiResponse struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
	Code  string      `json:"-"`
}

type pasteRequest struct {
	Text       string `json:"text"`
	Count      int    `json:"count"`
	Difficulty string `json:"difficulty"`
}

type toggleRequest struct {
	Advance bool `json:"advance"`
}

type cursorRequest struct {
	Index int `json:"index"`
}

type commitRequest struct {
	PoolID int64 `json:"pool_id"`
}

type sessionView struct {
	ID            string               `json:"id"`
	Origin        string               `json:"origin"`
	State         State                `json:"state"`
	Cursor        int                  `json:"cursor"`
	ApprovedCount int                  `json:"approved_count"`
	Candidates    []question.Candidate `json:"candidates"`
	Report        question.Report      `json:"report"`
	Summary       string               `json:"summary"`
	ExpiresAt     time.Time            `json:"expires_at"`
}

func NewHandler(cfg HandlerConfig) *Handler {
	maxBulk := cfg.MaxBulkQuestions
	if maxBulk <= 0 {
		maxBulk = 100
	}
	return &Handler{
		store:     cfg.Store,
		gen:       cfg.Generator,
		pools:     cfg.Pools,
		committer: cfg.Committer,
		observer:  cfg.Observer,
		maxBulk:   maxBulk,
	}
}

func (h *Handler) CreateFromPaste(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, apiResponse{OK: false, Error: "unauthorized"})
		return
	}

	var req pasteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid request body"})
		return
	}

	src, err := generate.FromPaste(req.Text, req.Count, req.Difficulty, h.maxBulk)
	if err != nil {
		writeSourceError(w, r, err)
		return
	}
	h.startSession(w, r, user, src)
}

func (h *Handler) CreateFromPrompt(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, apiResponse{OK: false, Error: "unauthorized"})
		return
	}

	var req generate.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid request body"})
		return
	}

	src, err := h.gen.FromPrompt(r.Context(), req)
	if err != nil {
		writeSourceError(w, r, err)
		return
	}
	h.startSession(w, r, user, src)
}

func (h *Handler) CreateFromFile(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, apiResponse{OK: false, Error: "unauthorized"})
		return
	}

	limit := h.gen.MaxUploadBytes()
	r.Body = http.MaxBytesReader(w, r.Body, limit+(1<<20))
	if err := r.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, r, http.StatusRequestEntityTooLarge, apiResponse{OK: false, Error: "file too large"})
			return
		}
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid multipart form"})
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "file is required"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "failed to read file"})
		return
	}

	req := generate.Request{
		Difficulty:     r.FormValue("difficulty"),
		Model:          r.FormValue("model"),
		ShuffleOptions: formBool(r.FormValue("shuffle_options")),
	}
	if req.Count, err = formInt(r.FormValue("count")); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid count"})
		return
	}
	if req.OptionsPerQuestion, err = formInt(r.FormValue("options_per_question")); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid options_per_question"})
		return
	}

	src, err := h.gen.FromFile(r.Context(), header.Filename, data, req)
	if err != nil {
		writeSourceError(w, r, err)
		return
	}
	h.startSession(w, r, user, src)
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request, user *auth.User, src generate.Source) {
	res, err := src.Run()
	if h.observer != nil {
		h.observer.ObservePipeline(src.Origin, res.Report)
	}
	if err != nil {
		switch {
		case errors.Is(err, question.ErrNoCandidates):
			apiresp.WriteErrorCode(w, r, http.StatusUnprocessableEntity, "no_candidates", err.Error(), map[string]any{
				"report":  res.Report,
				"summary": res.Report.Summary(),
			})
		case errors.Is(err, question.ErrEmptyInput):
			writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: err.Error()})
		default:
			writeJSON(w, r, http.StatusInternalServerError, apiResponse{OK: false, Error: "internal error"})
		}
		return
	}

	entry, err := h.store.Create(user.ID, src.Origin, res)
	if err != nil {
		log.Printf("review: create session: %v", err)
		writeJSON(w, r, http.StatusInternalServerError, apiResponse{OK: false, Error: "internal error"})
		return
	}
	log.Printf("review: session=%s origin=%s user=%d %s warnings=%d",
		entry.ID, src.Origin, user.ID, res.Report.Summary(), len(res.Report.Warnings))
	writeJSON(w, r, http.StatusCreated, apiResponse{OK: true, Data: h.viewOf(entry)})
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.entryFromRequest(w, r)
	if !ok {
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: h.viewOf(entry)})
}

// ToggleCandidate flips approval. With advance set, the cursor moves to the
// item after the toggled one.
func (h *Handler) ToggleCandidate(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.entryFromRequest(w, r)
	if !ok {
		return
	}

	var req toggleRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid request body"})
			return
		}
	}

	candidateID := chi.URLParam(r, "candidateID")
	approved, err := entry.Session.ToggleApproval(candidateID)
	if err != nil {
		writeSessionError(w, r, err)
		return
	}

	snap := entry.Session.Snapshot()
	cursor := snap.Cursor
	if req.Advance && approved {
		for i, c := range snap.Candidates {
			if c.ID == candidateID {
				cursor = entry.Session.SetCursor(i + 1)
				break
			}
		}
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: map[string]any{
		"candidate_id":   candidateID,
		"approved":       approved,
		"cursor":         cursor,
		"approved_count": snap.ApprovedCount,
	}})
}

func (h *Handler) SetCursor(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.entryFromRequest(w, r)
	if !ok {
		return
	}

	var req cursorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid request body"})
		return
	}
	cursor := entry.Session.SetCursor(req.Index)
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: map[string]int{"cursor": cursor}})
}

func (h *Handler) Commit(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, apiResponse{OK: false, Error: "unauthorized"})
		return
	}
	entry, ok := h.entryFromRequest(w, r)
	if !ok {
		return
	}

	var req commitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid request body"})
		return
	}
	if req.PoolID <= 0 {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "pool_id is required"})
		return
	}
	if err := h.pools.Authorize(r.Context(), req.PoolID, user); err != nil {
		writeSessionError(w, r, err)
		return
	}

	n, err := entry.Session.Commit(r.Context(), h.committer, req.PoolID)
	if err != nil {
		if errors.Is(err, ErrCommitFailed) && h.observer != nil {
			h.observer.ObserveCommit(false, 0)
		}
		writeSessionError(w, r, err)
		return
	}
	if h.observer != nil {
		h.observer.ObserveCommit(true, n)
	}
	h.store.Delete(entry.ID)
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: map[string]any{
		"session_id": entry.ID,
		"pool_id":    req.PoolID,
		"committed":  n,
		"state":      StateClosed,
	}})
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.entryFromRequest(w, r)
	if !ok {
		return
	}
	if err := entry.Session.Cancel(); err != nil {
		writeSessionError(w, r, err)
		return
	}
	h.store.Delete(entry.ID)
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: map[string]any{
		"session_id": entry.ID,
		"state":      StateClosed,
	}})
}

func (h *Handler) entryFromRequest(w http.ResponseWriter, r *http.Request) (*Entry, bool) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, apiResponse{OK: false, Error: "unauthorized"})
		return nil, false
	}
	entry, err := h.store.Get(chi.URLParam(r, "id"), user.ID)
	if err != nil {
		writeSessionError(w, r, err)
		return nil, false
	}
	return entry, true
}

func (h *Handler) viewOf(e *Entry) sessionView {
	expiresAt, _ := h.store.ExpiresAt(e.ID)
	snap := e.Session.Snapshot()
	return sessionView{
		ID:            e.ID,
		Origin:        e.Origin,
		State:         snap.State,
		Cursor:        snap.Cursor,
		ApprovedCount: snap.ApprovedCount,
		Candidates:    snap.Candidates,
		Report:        e.Report,
		Summary:       e.Report.Summary(),
		ExpiresAt:     expiresAt,
	}
}

func writeSourceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, question.ErrEmptyInput), errors.Is(err, generate.ErrInvalidRequest):
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: err.Error()})
	case errors.Is(err, generate.ErrFileTooLarge):
		writeJSON(w, r, http.StatusRequestEntityTooLarge, apiResponse{OK: false, Error: err.Error()})
	case errors.Is(err, generate.ErrUnsupportedFile):
		writeJSON(w, r, http.StatusUnsupportedMediaType, apiResponse{OK: false, Error: err.Error()})
	case errors.Is(err, generate.ErrEmptyDocument):
		writeJSON(w, r, http.StatusUnprocessableEntity, apiResponse{OK: false, Error: err.Error()})
	case errors.Is(err, generate.ErrProviderUnavailable):
		writeJSON(w, r, http.StatusServiceUnavailable, apiResponse{OK: false, Error: err.Error()})
	case errors.Is(err, generate.ErrProviderFailed), errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, r, http.StatusBadGateway, apiResponse{OK: false, Error: "model request failed"})
	default:
		log.Printf("review: source: %v", err)
		writeJSON(w, r, http.StatusInternalServerError, apiResponse{OK: false, Error: "internal error"})
	}
}

func writeSessionError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrCandidateNotFound), errors.Is(err, pool.ErrPoolNotFound):
		writeJSON(w, r, http.StatusNotFound, apiResponse{OK: false, Error: err.Error()})
	case errors.Is(err, pool.ErrForbidden):
		writeJSON(w, r, http.StatusForbidden, apiResponse{OK: false, Error: err.Error()})
	case errors.Is(err, ErrNoApprovedItems):
		writeJSON(w, r, http.StatusConflict, apiResponse{OK: false, Error: err.Error(), Code: "no_approved_items"})
	case errors.Is(err, ErrCommitInProgress):
		writeJSON(w, r, http.StatusConflict, apiResponse{OK: false, Error: err.Error(), Code: "commit_in_progress"})
	case errors.Is(err, ErrInvalidState):
		writeJSON(w, r, http.StatusConflict, apiResponse{OK: false, Error: err.Error()})
	case errors.Is(err, pool.ErrInvalidInput):
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: err.Error()})
	case errors.Is(err, ErrCommitFailed):
		log.Printf("review: %v", err)
		writeJSON(w, r, http.StatusBadGateway, apiResponse{OK: false, Error: err.Error(), Code: "commit_failed"})
	default:
		log.Printf("review: %v", err)
		writeJSON(w, r, http.StatusInternalServerError, apiResponse{OK: false, Error: "internal error"})
	}
}

func formInt(v string) (int, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

func formBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "on", "yes":
		return true
	default:
		return false
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, payload apiResponse) {
	if payload.OK {
		apiresp.WriteOK(w, r, code, payload.Data)
		return
	}
	if payload.Code != "" {
		apiresp.WriteErrorCode(w, r, code, payload.Code, payload.Error, nil)
		return
	}
	apiresp.WriteError(w, r, code, payload.Error)
}
