package review

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"qbank/internal/auth"
	"qbank/internal/generate"
	"qbank/internal/pool"
	"qbank/internal/question"

	"github.com/go-chi/chi/v5"
)

const pastedQuiz = `1. What is 2+2?
A) 3
B) 4
Doğru Cevap: B

2. Capital of France?
A) Paris
B) Rome
Doğru Cevap: A

3. Broken question without options
Doğru Cevap: A`

type mockGenerator struct {
	fromPromptFn func(ctx context.Context, req generate.Request) (generate.Source, error)
	fromFileFn   func(ctx context.Context, name string, data []byte, req generate.Request) (generate.Source, error)
}

func (m *mockGenerator) FromPrompt(ctx context.Context, req generate.Request) (generate.Source, error) {
	if m.fromPromptFn == nil {
		return generate.Source{}, errors.New("not implemented")
	}
	return m.fromPromptFn(ctx, req)
}

func (m *mockGenerator) FromFile(ctx context.Context, name string, data []byte, req generate.Request) (generate.Source, error) {
	if m.fromFileFn == nil {
		return generate.Source{}, errors.New("not implemented")
	}
	return m.fromFileFn(ctx, name, data, req)
}

func (m *mockGenerator) MaxUploadBytes() int64 {
	return 1 << 20
}

type mockAuthorizer struct {
	authorizeFn func(ctx context.Context, poolID int64, user *auth.User) error
}

func (m *mockAuthorizer) Authorize(ctx context.Context, poolID int64, user *auth.User) error {
	if m.authorizeFn == nil {
		return nil
	}
	return m.authorizeFn(ctx, poolID, user)
}

type countingObserver struct {
	pipelines []question.Report
	commits   []bool
}

func (o *countingObserver) ObservePipeline(origin string, rep question.Report) {
	o.pipelines = append(o.pipelines, rep)
}

func (o *countingObserver) ObserveCommit(ok bool, items int) {
	o.commits = append(o.commits, ok)
}

var author = &auth.User{ID: 5, Username: "ayse", Role: auth.RoleAuthor}

func newTestHandler(gen sourceGenerator, committer Committer) (*Handler, *countingObserver) {
	obs := &countingObserver{}
	return NewHandler(HandlerConfig{
		Store:            NewStore(time.Hour),
		Generator:        gen,
		Pools:            &mockAuthorizer{},
		Committer:        committer,
		Observer:         obs,
		MaxBulkQuestions: 50,
	}), obs
}

func asUser(r *http.Request, u *auth.User) *http.Request {
	return r.WithContext(auth.ContextWithUser(r.Context(), u))
}

func decodeMap(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func withParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		rctx = chi.NewRouteContext()
	}
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func pasteSession(t *testing.T, h *Handler) string {
	t.Helper()
	body, _ := json.Marshal(map[string]any{"text": pastedQuiz, "count": 3})
	req := asUser(httptest.NewRequest(http.MethodPost, "/api/v1/review-sessions/paste", bytes.NewReader(body)), author)
	rr := httptest.NewRecorder()
	h.CreateFromPaste(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	data := decodeMap(t, rr)["data"].(map[string]any)
	return data["id"].(string)
}

func TestCreateFromPasteReportsRejectedBlocks(t *testing.T) {
	h, obs := newTestHandler(nil, nil)
	body, _ := json.Marshal(map[string]any{"text": pastedQuiz, "count": 3, "difficulty": "hard"})
	req := asUser(httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body)), author)
	rr := httptest.NewRecorder()

	h.CreateFromPaste(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	data := decodeMap(t, rr)["data"].(map[string]any)
	if data["state"] != "loaded" || data["summary"] != "parsed 2 of 3 requested" {
		t.Fatalf("unexpected session view %+v", data)
	}
	cands := data["candidates"].([]any)
	if len(cands) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(cands))
	}
	if cands[0].(map[string]any)["difficulty"] != "hard" {
		t.Fatalf("difficulty not applied: %+v", cands[0])
	}
	report := data["report"].(map[string]any)
	if report["rejected"].(float64) != 1 {
		t.Fatalf("expected one rejected block, got %+v", report)
	}
	if len(obs.pipelines) != 1 || obs.pipelines[0].Parsed != 2 {
		t.Fatalf("pipeline not observed: %+v", obs.pipelines)
	}
}

func TestCreateFromPasteEmptyText(t *testing.T) {
	h, _ := newTestHandler(nil, nil)
	req := asUser(httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"text":"   "}`)), author)
	rr := httptest.NewRecorder()
	h.CreateFromPaste(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestCreateFromPasteNothingParsedReturnsReport(t *testing.T) {
	h, _ := newTestHandler(nil, nil)
	body, _ := json.Marshal(map[string]any{"text": "1. Only a stem\n2. Another stem", "count": 2})
	req := asUser(httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body)), author)
	rr := httptest.NewRecorder()

	h.CreateFromPaste(rr, req)

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}
	resp := decodeMap(t, rr)
	data := resp["data"].(map[string]any)
	if data["summary"] != "parsed 0 of 2 requested" {
		t.Fatalf("unexpected summary %+v", data)
	}
	if h.store.Len() != 0 {
		t.Fatalf("no session should be stored")
	}
}

func TestCreateFromPromptMapsProviderErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "invalid", err: generate.ErrInvalidRequest, want: http.StatusBadRequest},
		{name: "unavailable", err: generate.ErrProviderUnavailable, want: http.StatusServiceUnavailable},
		{name: "failed", err: generate.ErrProviderFailed, want: http.StatusBadGateway},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h, _ := newTestHandler(&mockGenerator{
				fromPromptFn: func(ctx context.Context, req generate.Request) (generate.Source, error) {
					return generate.Source{}, tc.err
				},
			}, nil)
			req := asUser(httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"prompt":"photosynthesis","count":2}`)), author)
			rr := httptest.NewRecorder()
			h.CreateFromPrompt(rr, req)
			if rr.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rr.Code)
			}
		})
	}
}

func TestCreateFromPromptUsesModelOutput(t *testing.T) {
	h, _ := newTestHandler(&mockGenerator{
		fromPromptFn: func(ctx context.Context, req generate.Request) (generate.Source, error) {
			if req.Prompt != "arithmetic" || req.Count != 2 {
				t.Fatalf("unexpected request %+v", req)
			}
			return generate.Source{Origin: "prompt", Text: pastedQuiz, Requested: 2, Difficulty: question.DifficultyEasy}, nil
		},
	}, nil)
	req := asUser(httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"prompt":"arithmetic","count":2}`)), author)
	rr := httptest.NewRecorder()

	h.CreateFromPrompt(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	data := decodeMap(t, rr)["data"].(map[string]any)
	if data["origin"] != "prompt" || len(data["candidates"].([]any)) != 2 {
		t.Fatalf("unexpected view %+v", data)
	}
}

func TestCreateFromFilePassesFormFields(t *testing.T) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, _ := mw.CreateFormFile("file", "notes.txt")
	_, _ = fw.Write([]byte("The mitochondria is the powerhouse of the cell."))
	_ = mw.WriteField("count", "2")
	_ = mw.WriteField("options_per_question", "5")
	_ = mw.WriteField("shuffle_options", "true")
	_ = mw.Close()

	h, _ := newTestHandler(&mockGenerator{
		fromFileFn: func(ctx context.Context, name string, data []byte, req generate.Request) (generate.Source, error) {
			if name != "notes.txt" || len(data) == 0 {
				t.Fatalf("unexpected upload %q (%d bytes)", name, len(data))
			}
			if req.Count != 2 || req.OptionsPerQuestion != 5 || !req.ShuffleOptions {
				t.Fatalf("unexpected request %+v", req)
			}
			return generate.Source{}, generate.ErrUnsupportedFile
		},
	}, nil)
	req := httptest.NewRequest(http.MethodPost, "/", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()

	h.CreateFromFile(rr, asUser(req, author))

	if rr.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %d", rr.Code)
	}
}

func TestToggleWithAdvanceMovesCursor(t *testing.T) {
	h, _ := newTestHandler(nil, nil)
	id := pasteSession(t, h)
	entry, _ := h.store.Get(id, author.ID)
	first := entry.Session.Snapshot().Candidates[0].ID

	req := asUser(httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"advance":true}`)), author)
	req = withParam(withParam(req, "id", id), "candidateID", first)
	rr := httptest.NewRecorder()
	h.ToggleCandidate(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	data := decodeMap(t, rr)["data"].(map[string]any)
	if data["approved"] != true || data["cursor"].(float64) != 1 || data["approved_count"].(float64) != 1 {
		t.Fatalf("unexpected toggle response %+v", data)
	}
}

func TestToggleUnknownCandidate(t *testing.T) {
	h, _ := newTestHandler(nil, nil)
	id := pasteSession(t, h)
	req := asUser(httptest.NewRequest(http.MethodPost, "/", nil), author)
	req = withParam(withParam(req, "id", id), "candidateID", "nope")
	rr := httptest.NewRecorder()
	h.ToggleCandidate(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestGetSessionHiddenFromOtherUsers(t *testing.T) {
	h, _ := newTestHandler(nil, nil)
	id := pasteSession(t, h)
	other := &auth.User{ID: 99, Role: auth.RoleAuthor}
	req := withParam(asUser(httptest.NewRequest(http.MethodGet, "/", nil), other), "id", id)
	rr := httptest.NewRecorder()
	h.GetSession(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestSetCursorClampsThroughHandler(t *testing.T) {
	h, _ := newTestHandler(nil, nil)
	id := pasteSession(t, h)
	req := withParam(asUser(httptest.NewRequest(http.MethodPut, "/", bytes.NewBufferString(`{"index":42}`)), author), "id", id)
	rr := httptest.NewRecorder()
	h.SetCursor(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if decodeMap(t, rr)["data"].(map[string]any)["cursor"].(float64) != 1 {
		t.Fatalf("cursor should clamp to last index")
	}
}

func TestCommitWithoutApprovalsConflicts(t *testing.T) {
	saver := &fakeSaver{}
	h, _ := newTestHandler(nil, NewBatchCommitter(saver))
	id := pasteSession(t, h)

	req := withParam(asUser(httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"pool_id":3}`)), author), "id", id)
	rr := httptest.NewRecorder()
	h.Commit(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	errBody, _ := decodeMap(t, rr)["error"].(map[string]any)
	if errBody["code"] != "no_approved_items" {
		t.Fatalf("expected no_approved_items code, got %v", errBody)
	}
	if saver.calls != 0 {
		t.Fatalf("saver must not be called")
	}
}

func TestCommitPersistsAndClosesSession(t *testing.T) {
	saver := &fakeSaver{}
	h, obs := newTestHandler(nil, NewBatchCommitter(saver))
	id := pasteSession(t, h)
	entry, _ := h.store.Get(id, author.ID)
	second := entry.Session.Snapshot().Candidates[1].ID
	if _, err := entry.Session.ToggleApproval(second); err != nil {
		t.Fatalf("toggle: %v", err)
	}

	req := withParam(asUser(httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"pool_id":3}`)), author), "id", id)
	rr := httptest.NewRecorder()
	h.Commit(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if saver.calls != 1 || saver.poolID != 3 || len(saver.items) != 1 || saver.items[0].Stem != "Capital of France?" {
		t.Fatalf("unexpected saver state %+v", saver)
	}
	if _, err := h.store.Get(id, author.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("committed session should be removed, got %v", err)
	}
	if len(obs.commits) != 1 || !obs.commits[0] {
		t.Fatalf("commit not observed: %+v", obs.commits)
	}
}

func TestCommitFailureKeepsSessionForRetry(t *testing.T) {
	saver := &fakeSaver{err: pool.ErrPoolNotFound}
	h, obs := newTestHandler(nil, NewBatchCommitter(saver))
	id := pasteSession(t, h)
	entry, _ := h.store.Get(id, author.ID)
	if _, err := entry.Session.ToggleApproval(entry.Session.Snapshot().Candidates[0].ID); err != nil {
		t.Fatalf("toggle: %v", err)
	}

	req := withParam(asUser(httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"pool_id":3}`)), author), "id", id)
	rr := httptest.NewRecorder()
	h.Commit(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	snap := entry.Session.Snapshot()
	if snap.State != StateLoaded || snap.ApprovedCount != 1 {
		t.Fatalf("session should be intact after failure: %+v", snap)
	}
	if len(obs.commits) != 1 || obs.commits[0] {
		t.Fatalf("failed commit not observed: %+v", obs.commits)
	}
}

func TestCommitForbiddenPool(t *testing.T) {
	saver := &fakeSaver{}
	h, _ := newTestHandler(nil, NewBatchCommitter(saver))
	h.pools = &mockAuthorizer{authorizeFn: func(ctx context.Context, poolID int64, user *auth.User) error {
		return pool.ErrForbidden
	}}
	id := pasteSession(t, h)

	req := withParam(asUser(httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"pool_id":8}`)), author), "id", id)
	rr := httptest.NewRecorder()
	h.Commit(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestCancelRemovesSession(t *testing.T) {
	h, _ := newTestHandler(nil, nil)
	id := pasteSession(t, h)
	req := withParam(asUser(httptest.NewRequest(http.MethodDelete, "/", nil), author), "id", id)
	rr := httptest.NewRecorder()
	h.Cancel(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if h.store.Len() != 0 {
		t.Fatalf("cancelled session should be removed")
	}
}

func TestSessionViewWhileOtherRequestsRefreshExpiry(t *testing.T) {
	h, _ := newTestHandler(nil, nil)
	id := pasteSession(t, h)
	entry, err := h.store.Get(id, author.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = h.store.Get(id, author.ID)
		}()
		go func() {
			defer wg.Done()
			if v := h.viewOf(entry); v.ExpiresAt.IsZero() {
				t.Errorf("expected expiry in view")
			}
		}()
	}
	wg.Wait()
}

func TestToggleOffKeepsCursor(t *testing.T) {
	h, _ := newTestHandler(nil, nil)
	id := pasteSession(t, h)
	entry, _ := h.store.Get(id, author.ID)
	first := entry.Session.Snapshot().Candidates[0].ID

	toggle := func() map[string]any {
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"advance":true}`))
		req = withParam(withParam(asUser(req, author), "id", id), "candidateID", first)
		rr := httptest.NewRecorder()
		h.ToggleCandidate(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		data, _ := decodeMap(t, rr)["data"].(map[string]any)
		return data
	}

	if got := toggle(); got["approved"] != true || got["cursor"] != float64(1) {
		t.Fatalf("approve should advance, got %v", got)
	}
	entry.Session.SetCursor(0)
	if got := toggle(); got["approved"] != false || got["cursor"] != float64(0) {
		t.Fatalf("unapprove must not advance, got %v", got)
	}
}
