package screens

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-console/internal/listsync"
	"github.com/odyssey-erp/odyssey-console/internal/notify"
	"github.com/odyssey-erp/odyssey-console/internal/platform/httpx"
)

const maxLongPoll = 30 * time.Second

// Feedback exposes the notifications raised by every session.
type Feedback interface {
	Active() []notify.Message
	Dismiss(id string) bool
}

// LoadingState exposes the shared loading indicator.
type LoadingState interface {
	Visible() bool
	Active() int
}

// Invalidator drops cached list responses.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Handler wires the console API endpoints.
type Handler struct {
	logger      *slog.Logger
	manager     *Manager
	feedback    Feedback
	loading     LoadingState
	invalidator Invalidator
	validator   *validator.Validate
}

// NewHandler constructs a Handler instance. invalidator may be nil.
func NewHandler(logger *slog.Logger, manager *Manager, feedback Feedback, loading LoadingState, invalidator Invalidator) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:      logger,
		manager:     manager,
		feedback:    feedback,
		loading:     loading,
		invalidator: invalidator,
		validator:   validator.New(),
	}
}

// MountRoutes registers the console API on r.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/screens", h.listScreens)
	r.Post("/screens/{screen}/sessions", h.openSession)
	r.Route("/sessions/{id}", func(r chi.Router) {
		r.Get("/", h.getSession)
		r.Delete("/", h.closeSession)
		r.Put("/fields/{field}", h.setField)
		r.Put("/sort", h.setSort)
		r.Put("/page", h.setPage)
		r.Put("/limit", h.setLimit)
		r.Post("/refresh", h.refresh)
	})
	r.Get("/feedback", h.getFeedback)
	r.Delete("/feedback/{id}", h.dismissFeedback)
	r.Post("/cache/invalidate", h.invalidateCache)
}

type sessionResponse struct {
	ID       string            `json:"id"`
	Screen   string            `json:"screen"`
	Title    string            `json:"title"`
	Snapshot listsync.Snapshot `json:"snapshot"`
}

type fieldRequest struct {
	Value any `json:"value"`
}

type sortRequest struct {
	By    string `json:"by" validate:"required"`
	Order string `json:"order" validate:"omitempty,oneof=asc desc"`
}

// pageRequest takes any page number; the engine clamps it into range.
type pageRequest struct {
	Page int `json:"page"`
}

type limitRequest struct {
	Limit int `json:"limit" validate:"gt=0"`
}

type feedbackResponse struct {
	Loading  bool             `json:"loading"`
	Pending  int              `json:"pending"`
	Messages []notify.Message `json:"messages"`
}

func (h *Handler) listScreens(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]any{"screens": h.manager.Catalog().List()})
}

func (h *Handler) openSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.manager.Open(chi.URLParam(r, "screen"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, sessionView(sess, sess.Latest()))
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	after, wait, err := parseLongPoll(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if wait <= 0 {
		httpx.JSON(w, http.StatusOK, sessionView(sess, sess.Engine().Snapshot()))
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), wait)
	defer cancel()
	httpx.JSON(w, http.StatusOK, sessionView(sess, sess.WaitNewer(ctx, after)))
}

func (h *Handler) closeSession(w http.ResponseWriter, r *http.Request) {
	if !h.manager.Close(chi.URLParam(r, "id")) {
		h.respondError(w, ErrSessionNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) setField(w http.ResponseWriter, r *http.Request) {
	var req fieldRequest
	h.mutate(w, r, &req, func(engine *listsync.Engine) error {
		return engine.SetField(chi.URLParam(r, "field"), req.Value)
	})
}

func (h *Handler) setSort(w http.ResponseWriter, r *http.Request) {
	var req sortRequest
	h.mutate(w, r, &req, func(engine *listsync.Engine) error {
		return engine.SetSort(listsync.Sort{By: req.By, Order: req.Order})
	})
}

func (h *Handler) setPage(w http.ResponseWriter, r *http.Request) {
	var req pageRequest
	h.mutate(w, r, &req, func(engine *listsync.Engine) error {
		return engine.SetPage(req.Page)
	})
}

func (h *Handler) setLimit(w http.ResponseWriter, r *http.Request) {
	var req limitRequest
	h.mutate(w, r, &req, func(engine *listsync.Engine) error {
		return engine.SetLimit(req.Limit)
	})
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, nil, func(engine *listsync.Engine) error {
		return engine.Refresh()
	})
}

// mutate decodes and validates body (when non-nil), applies fn to the
// session's engine and answers with the resulting snapshot.
func (h *Handler) mutate(w http.ResponseWriter, r *http.Request, body any, fn func(*listsync.Engine) error) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	if body != nil {
		if err := httpx.DecodeJSON(r, body); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
			return
		}
		if err := h.validator.Struct(body); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", validationDetail(err))
			return
		}
	}
	if err := fn(sess.Engine()); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sessionView(sess, sess.Engine().Snapshot()))
}

func (h *Handler) getFeedback(w http.ResponseWriter, r *http.Request) {
	resp := feedbackResponse{Messages: []notify.Message{}}
	if h.loading != nil {
		resp.Loading = h.loading.Visible()
		resp.Pending = h.loading.Active()
	}
	if h.feedback != nil {
		resp.Messages = h.feedback.Active()
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) dismissFeedback(w http.ResponseWriter, r *http.Request) {
	if h.feedback == nil || !h.feedback.Dismiss(chi.URLParam(r, "id")) {
		httpx.RespondError(w, fmt.Errorf("notification %w", httpx.ErrNotFound))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) invalidateCache(w http.ResponseWriter, r *http.Request) {
	if h.invalidator == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err := h.invalidator.Invalidate(r.Context()); err != nil {
		h.logger.Error("invalidate list cache", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("list cache invalidated")
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	sess, err := h.manager.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, err)
		return nil, false
	}
	return sess, true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	if errors.Is(err, listsync.ErrDisposed) {
		err = ErrSessionNotFound
	}
	if !isTaxonomy(err) {
		h.logger.Error("console api", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func isTaxonomy(err error) bool {
	for _, sentinel := range []error{httpx.ErrNotFound, httpx.ErrDuplicate, httpx.ErrValidation, httpx.ErrForbidden, httpx.ErrUnauthorized, httpx.ErrUpstream} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

func sessionView(sess *Session, snap listsync.Snapshot) sessionResponse {
	return sessionResponse{
		ID:       sess.ID,
		Screen:   sess.Screen.Name,
		Title:    sess.Screen.Title,
		Snapshot: snap,
	}
}

func parseLongPoll(r *http.Request) (uint64, time.Duration, error) {
	query := r.URL.Query()
	var after uint64
	if raw := query.Get("after"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return 0, 0, errors.New("after must be a version number")
		}
		after = v
	}
	var wait time.Duration
	if raw := query.Get("wait"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			return 0, 0, errors.New("wait must be a non-negative duration")
		}
		wait = min(d, maxLongPoll)
	}
	return after, wait, nil
}

func validationDetail(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fieldErr := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fieldErr.Field(), fieldErr.Tag()))
	}
	return strings.Join(msgs, "; ")
}
