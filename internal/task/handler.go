package task

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"regexp"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-task-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-task-go/internal/task/entity"
)

var numberString = regexp.MustCompile(`^[+-]?([0-9]*\.)?[0-9]+$`)

// Handler exposes the task endpoints. Every route expects RequireAuth to
// have placed the caller identity in the request context.
type Handler struct {
	svc    *Service
	cache  *Cache
	logger *zap.SugaredLogger
}

// NewHandler wires the handler; a nil cache disables list caching.
func NewHandler(svc *Service, cache *Cache, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, cache: cache, logger: logger}
}

// Register mounts the task routes on mux behind the given auth middleware.
func (h *Handler) Register(mux *http.ServeMux, requireAuth func(http.Handler) http.Handler) {
	mux.Handle("POST /tasks", requireAuth(http.HandlerFunc(h.Create)))
	mux.Handle("GET /tasks/populate", requireAuth(http.HandlerFunc(h.Populate)))
	mux.Handle("GET /tasks", requireAuth(http.HandlerFunc(h.List)))
	mux.Handle("GET /tasks/{id}", requireAuth(http.HandlerFunc(h.Get)))
	mux.Handle("PATCH /tasks/{id}", requireAuth(http.HandlerFunc(h.Update)))
	mux.Handle("DELETE /tasks/{id}", requireAuth(http.HandlerFunc(h.Delete)))
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFrom(r.Context())
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	var in CreateInput
	if !h.decode(w, r, &in) {
		return
	}
	t, err := h.svc.Create(r.Context(), in, id.ID)
	if err != nil {
		h.writeError(w, "create task", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, t)
}

func (h *Handler) Populate(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFrom(r.Context())
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	key := r.Header.Get("x-api-key")
	if key == "" {
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "API Key is missing"})
		return
	}
	res, err := h.svc.BulkPopulate(r.Context(), id.ID, key)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid API Key"})
			return
		}
		h.writeError(w, "populate tasks", err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFrom(r.Context())
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	params := r.URL.Query()
	q, err := ParseQuery(params)
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	load := func(ctx context.Context) (*Page, error) { return h.svc.FindAll(ctx, id.ID, q) }
	var page *Page
	if key, cacheable := CacheKey(&id, params); cacheable && h.cache != nil {
		page, err = h.cache.Fetch(r.Context(), key, load)
	} else {
		page, err = load(r.Context())
	}
	if err != nil {
		h.writeError(w, "list tasks", err)
		return
	}
	h.writeJSON(w, http.StatusOK, page)
}

// ParseQuery validates the list parameters. Unknown names and repeated
// values are rejected.
func ParseQuery(params url.Values) (Query, error) {
	var q Query
	for name, vals := range params {
		if len(vals) != 1 {
			return q, errors.New(name + " must be a single value")
		}
		v := vals[0]
		switch name {
		case "priority":
			p := entity.Priority(v)
			if !p.Valid() {
				return q, errors.New("priority must be one of low, medium, high")
			}
			q.Priority = p
		case "completed":
			switch v {
			case "true":
				b := true
				q.Completed = &b
			case "false":
				b := false
				q.Completed = &b
			default:
				return q, errors.New("completed must be a boolean value")
			}
		case "page":
			if !numberString.MatchString(v) {
				return q, errors.New("page must be a number string")
			}
			q.Page = v
		case "limit":
			if !numberString.MatchString(v) {
				return q, errors.New("limit must be a number string")
			}
			q.Limit = v
		default:
			return q, errors.New("property " + name + " should not exist")
		}
	}
	return q, nil
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFrom(r.Context())
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	t, err := h.svc.FindOne(r.Context(), r.PathValue("id"), id.ID)
	if err != nil {
		h.writeError(w, "get task", err)
		return
	}
	h.writeJSON(w, http.StatusOK, t)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFrom(r.Context())
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	var p Patch
	if !h.decode(w, r, &p) {
		return
	}
	t, err := h.svc.Update(r.Context(), r.PathValue("id"), id.ID, p)
	if err != nil {
		h.writeError(w, "update task", err)
		return
	}
	h.writeJSON(w, http.StatusOK, t)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFrom(r.Context())
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	if err := h.svc.Remove(r.Context(), r.PathValue("id"), id); err != nil {
		h.writeError(w, "delete task", err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		h.logger.Debugw("invalid task payload", "path", r.URL.Path, "err", err)
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return false
	}
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "task not found"})
	case errors.Is(err, ErrUnauthorized):
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "you do not have permission for this task"})
	case errors.Is(err, ErrInvalidTask):
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "title must be non-empty and priority one of low, medium, high"})
	default:
		h.logger.Errorw(op+" failed", "err", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": op + " failed"})
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
