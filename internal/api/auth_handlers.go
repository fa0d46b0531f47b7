package api

import (
	"mime"
	"net/http"
	"strings"

	"github.com/soaringjerry/questionflow/internal/middleware"
	"github.com/soaringjerry/questionflow/internal/services"
	"github.com/soaringjerry/questionflow/internal/utils"
)

type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

func toUserResponse(u *services.User) userResponse {
	return userResponse{ID: u.ID, Email: u.Email, Name: u.Name}
}

func toTokenResponse(res *services.AuthResult) tokenResponse {
	return tokenResponse{AccessToken: res.Token, TokenType: res.TokenType}
}

// POST /api/register
func (rt *Router) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email                string `json:"email"`
		Name                 string `json:"name"`
		Password             string `json:"password"`
		PasswordConfirmation string `json:"password_confirmation"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	u, err := rt.auth.Register(r.Context(), services.RegisterRequest{
		Email:                req.Email,
		Name:                 req.Name,
		Password:             req.Password,
		PasswordConfirmation: req.PasswordConfirmation,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserResponse(u))
}

// POST /api/login accepts the OAuth2 password form (username, password) or the same fields as JSON.
func (rt *Router) handleLogin(w http.ResponseWriter, r *http.Request) {
	var username, password string
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch ct {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		username, password = r.PostFormValue("username"), r.PostFormValue("password")
	default:
		var req struct {
			Username string `json:"username"`
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		username, password = req.Username, req.Password
		if strings.TrimSpace(username) == "" {
			username = req.Email
		}
	}
	res, err := rt.auth.Login(r.Context(), username, password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTokenResponse(res))
}

// POST /api/logout; tokens are stateless so the client simply discards it.
func (rt *Router) handleLogout(w http.ResponseWriter, r *http.Request) {
	locale := middleware.LocaleFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"detail": utils.T(locale, "auth.logged_out")})
}

// POST /api/refresh-token
func (rt *Router) handleRefresh(w http.ResponseWriter, r *http.Request) {
	res, err := rt.auth.Refresh(r.Context(), currentUserID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTokenResponse(res))
}

// GET /api/me
func (rt *Router) handleMe(w http.ResponseWriter, r *http.Request) {
	u, err := rt.auth.CurrentUser(r.Context(), currentUserID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}
