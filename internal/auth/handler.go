package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
)

// Handler exposes HTTP endpoints for signup, login and refresh.
type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// SignupRequest request body for signup endpoint.
type SignupRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// bcrypt ignores input past 72 bytes and GenerateFromPassword rejects it.
const maxPasswordBytes = 72

func (r SignupRequest) validate() error {
	if n := utf8.RuneCountInString(r.Username); strings.TrimSpace(r.Username) == "" || n < 5 || n > 15 {
		return errors.New("username must be between 5 and 15 characters")
	}
	if n := utf8.RuneCountInString(r.Password); n < 9 || n > 20 {
		return errors.New("password must be between 9 and 20 characters")
	}
	if len(r.Password) > maxPasswordBytes {
		return errors.New("password must be at most 72 bytes")
	}
	return nil
}

// LoginRequest login payload.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RefreshRequest refresh payload.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := req.validate(); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	res, err := h.svc.Signup(r.Context(), req.Username, req.Password)
	if err != nil {
		h.writeError(w, "signup", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Username == "" || req.Password == "" {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "username and password are required"})
		return
	}
	pair, err := h.svc.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.writeError(w, "login", err)
		return
	}
	h.writeJSON(w, http.StatusOK, pair)
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "refreshToken is required"})
		return
	}
	pair, err := h.svc.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.writeError(w, "refresh", err)
		return
	}
	h.writeJSON(w, http.StatusOK, pair)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		h.logger.Debugw("invalid auth payload", "path", r.URL.Path, "err", err)
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return false
	}
	return true
}

// writeError maps the auth error taxonomy to status codes. Messages stay
// generic so responses never reveal whether a username exists.
func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrUserExists):
		h.writeJSON(w, http.StatusConflict, map[string]string{"error": "username already exists"})
	case errors.Is(err, ErrInvalidCredentials):
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
	case errors.Is(err, ErrInvalidOrExpiredToken), errors.Is(err, ErrTokenInvalid):
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid or expired refresh token"})
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
