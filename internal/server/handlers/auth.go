// Package handlers exposes the authentication commands over a thin JSON
// HTTP transport. The wire format is incidental; semantics live in the
// services layer.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/sessionkeeper/internal/common"
	"github.com/dmitrijs2005/sessionkeeper/internal/logging"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/auth"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// AuthHandler wires the HTTP endpoints to the AuthService commands.
type AuthHandler struct {
	auth   *services.AuthService
	minter *auth.Minter
	log    logging.Logger
}

func NewAuthHandler(authSvc *services.AuthService, minter *auth.Minter, log logging.Logger) *AuthHandler {
	return &AuthHandler{auth: authSvc, minter: minter, log: log}
}

// Router builds the full route tree, health endpoint included.
func (h *AuthHandler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.health)
	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/login", h.login)
		r.Post("/refresh", h.refresh)
		r.Group(func(r chi.Router) {
			r.Use(h.requireAccessToken)
			r.Post("/revoke", h.revoke)
			r.Post("/revoke-all", h.revokeAll)
		})
	})
	return r
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	UserID       string `json:"user_id"`
	RefreshToken string `json:"refresh_token"`
}

type revokeRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenPairResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (h *AuthHandler) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, common.NewError("BadRequest", "malformed request body", common.KindValidation))
		return
	}

	pair, err := h.auth.AuthenticateWithPassword(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, tokenPairResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

func (h *AuthHandler) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, common.NewError("BadRequest", "malformed request body", common.KindValidation))
		return
	}

	pair, err := h.auth.RefreshSession(r.Context(), req.UserID, req.RefreshToken)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, tokenPairResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

func (h *AuthHandler) revoke(w http.ResponseWriter, r *http.Request) {
	var req revokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, common.NewError("BadRequest", "malformed request body", common.KindValidation))
		return
	}

	if err := h.auth.RevokeSession(r.Context(), subjectFromContext(r), req.RefreshToken); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) revokeAll(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.RevokeAllSessions(r.Context(), subjectFromContext(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// requireAccessToken authenticates the request with a Bearer access token and
// stores the verified subject in the request context.
func (h *AuthHandler) requireAccessToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			h.writeError(w, r, common.NewError("MissingAccessToken", "bearer token required", common.KindUnauthenticated))
			return
		}

		claims, err := h.minter.Parse(token)
		if err != nil {
			h.writeError(w, r, common.WrapError("InvalidAccessToken", "access token rejected", common.KindUnauthenticated, err))
			return
		}

		next.ServeHTTP(w, r.WithContext(withSubject(r.Context(), claims.Subject)))
	})
}

func (h *AuthHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *AuthHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFromKind(common.KindOf(err))
	code, message := "InternalError", "internal error"

	var typed *common.Error
	if errors.As(err, &typed) {
		code = typed.Code
		// internal causes stay in the logs, not on the wire
		if typed.Kind != common.KindDatabase && typed.Kind != common.KindFailure {
			message = typed.Message
		}
	}
	if status >= http.StatusInternalServerError {
		h.log.Error(r.Context(), "request failed", "code", code, "error", err)
	}

	h.writeJSON(w, status, errorResponse{Error: code, Message: message})
}

func statusFromKind(kind common.Kind) int {
	switch kind {
	case common.KindValidation:
		return http.StatusBadRequest
	case common.KindUnauthenticated:
		return http.StatusUnauthorized
	case common.KindNotFound:
		return http.StatusNotFound
	case common.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
