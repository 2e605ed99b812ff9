package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/brand-cli/internal/document"
	"github.com/sells-group/brand-cli/internal/lock"
	"github.com/sells-group/brand-cli/internal/model"
	"github.com/sells-group/brand-cli/internal/profile"
	"github.com/sells-group/brand-cli/internal/store"
)

const maxBodyBytes = 1 << 20

type reCrawlRequest struct {
	ActorID string `json:"actor_id" validate:"max=128"`
}

type reCrawlResponse struct {
	Profile *model.Profile `json:"profile"`
	Changes model.Changes  `json:"changes"`
}

type updateFieldRequest struct {
	profile.FieldUpdate
	EditorID string `json:"editor_id" validate:"required,max=128"`
}

type approveFieldRequest struct {
	Path     string `json:"path" validate:"required"`
	EditorID string `json:"editor_id" validate:"required,max=128"`
}

type acceptRequest struct {
	Changes   model.Changes               `json:"changes" validate:"required"`
	Decisions map[string]profile.Decision `json:"decisions" validate:"required,dive,keys,required,endkeys,oneof=accept reject"`
	EditorID  string                      `json:"editor_id" validate:"required,max=128"`
}

type acceptResponse struct {
	Profile  *model.Profile `json:"profile"`
	Rejected []string       `json:"rejected"`
	Pending  []string       `json:"pending"`
}

type listResponse struct {
	Profiles []model.Profile `json:"profiles"`
	Count    int             `json:"count"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok"}
	code := http.StatusOK
	if h.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.pinger.Ping(ctx); err != nil {
			resp["status"] = "degraded"
			resp["store"] = err.Error()
			code = http.StatusServiceUnavailable
		} else {
			resp["store"] = "ok"
		}
	}
	if h.breakers != nil {
		resp["breakers"] = h.breakers.States()
	}
	writeJSON(w, code, resp)
}

func (h *Handler) createProfile(w http.ResponseWriter, r *http.Request) {
	var req profile.CreateRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, err := h.svc.CreateFromExtraction(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handler) listProfiles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.ListFilter{
		OwnerID: q.Get("owner_id"),
		Status:  model.ProfileStatus(q.Get("status")),
	}
	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("limit must be a non-negative integer"))
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("offset must be a non-negative integer"))
		return
	}
	switch filter.Status {
	case "", model.StatusComplete, model.StatusNeedsReview, model.StatusInProgress:
	default:
		writeJSON(w, http.StatusBadRequest, errorBody(fmt.Sprintf("unknown status %q", filter.Status)))
		return
	}

	profiles, err := h.svc.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	if profiles == nil {
		profiles = []model.Profile{}
	}
	writeJSON(w, http.StatusOK, listResponse{Profiles: profiles, Count: len(profiles)})
}

func (h *Handler) getProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Get(r.Context(), chi.URLParam(r, "brandID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) deleteProfile(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "brandID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) reCrawl(w http.ResponseWriter, r *http.Request) {
	var req reCrawlRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}
	p, changes, err := h.svc.ReCrawl(r.Context(), chi.URLParam(r, "brandID"), req.ActorID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reCrawlResponse{Profile: p, Changes: changes})
}

func (h *Handler) updateField(w http.ResponseWriter, r *http.Request) {
	var req updateFieldRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, err := h.svc.UpdateField(r.Context(), chi.URLParam(r, "brandID"), req.FieldUpdate, req.EditorID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) approveField(w http.ResponseWriter, r *http.Request) {
	var req approveFieldRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, err := h.svc.ApproveField(r.Context(), chi.URLParam(r, "brandID"), req.Path, req.EditorID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) acceptChanges(w http.ResponseWriter, r *http.Request) {
	var req acceptRequest
	if !h.decode(w, r, &req) {
		return
	}
	review := profile.Review(req.Changes, req.Decisions)
	p, err := h.svc.AcceptChanges(r.Context(), chi.URLParam(r, "brandID"), review.Accepted, req.EditorID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acceptResponse{Profile: p, Rejected: review.Rejected, Pending: review.Pending})
}

func (h *Handler) getVersion(w http.ResponseWriter, r *http.Request) {
	v, err := h.svc.GetVersion(r.Context(), chi.URLParam(r, "brandID"), chi.URLParam(r, "versionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	if v == nil {
		writeJSON(w, http.StatusNotFound, errorBody("version not found"))
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) score(w http.ResponseWriter, r *http.Request) {
	b, err := h.svc.Score(r.Context(), chi.URLParam(r, "brandID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// decode reads a JSON body into dst and validates it. On failure it writes
// a 400 and returns false.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid request body"))
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(validationMessage(err)))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		return fmt.Sprintf("validation error: %s - %s", ve[0].Field(), ve[0].Tag())
	}
	return "validation error: invalid request"
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, eris.Errorf("api: bad integer %q", s)
	}
	return n, nil
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case eris.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case eris.Is(err, model.ErrAlreadyExists), eris.Is(err, model.ErrConflict):
		return http.StatusConflict
	case eris.Is(err, document.ErrInvalidPath):
		return http.StatusBadRequest
	case profile.IsExtractionFailed(err):
		return http.StatusBadGateway
	case eris.Is(err, lock.ErrNotAcquired), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		zap.L().Error("api: request failed", zap.Error(err))
		msg = "internal error"
	}
	writeJSON(w, code, errorBody(msg))
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("api: encode response", zap.Error(err))
	}
}
