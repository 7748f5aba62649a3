package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/school-api-nosql/internal/application/auth"
	"github.com/school-api-nosql/internal/domain"
	"github.com/school-api-nosql/internal/pkg/validate"
)

// SessionHandler handles login.
type SessionHandler struct {
	svc auth.Service
}

func NewSessionHandler(svc auth.Service) *SessionHandler { return &SessionHandler{svc: svc} }

func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		httpError(w, fmt.Errorf("%v: %w", err, domain.ErrBadRequest))
		return
	}
	res, err := h.svc.Login(r.Context(), req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AuthEnvelope{Bearer: res.Bearer, User: res.User})
}
