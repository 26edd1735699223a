package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/corpulate/platform/internal/app/domain/user"
	"github.com/corpulate/platform/internal/app/services/accounts"
)

// Auth responses carry token and user at the top level rather than under
// data, matching the contract the clients already consume.
type sessionResponse struct {
	Success bool      `json:"success"`
	Message string    `json:"message"`
	Token   string    `json:"token"`
	User    user.User `json:"user"`
}

func writeSession(w http.ResponseWriter, status int, message string, s accounts.Session) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(sessionResponse{
		Success: true,
		Message: message,
		Token:   s.Token,
		User:    s.User,
	})
}

func (h *handler) signup(w http.ResponseWriter, r *http.Request) {
	var in accounts.SignupInput
	if err := decodeJSON(r.Body, &in); err != nil {
		h.respondErr(w, r, err)
		return
	}
	session, err := h.app.Accounts.Signup(r.Context(), in)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	writeSession(w, http.StatusCreated, "User registered successfully", session)
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var in accounts.LoginInput
	if err := decodeJSON(r.Body, &in); err != nil {
		h.respondErr(w, r, err)
		return
	}
	session, err := h.app.Accounts.Login(r.Context(), in)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	writeSession(w, http.StatusOK, "Login successful", session)
}
