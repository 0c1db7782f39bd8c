package httpapi

import (
	"errors"
	"net/http"

	"spaq.app/internal/audit"
	"spaq.app/internal/auth"
)

type registerRequest struct {
	Email            string `json:"email"`
	Password         string `json:"password"`
	Name             string `json:"name"`
	OrganizationName string `json:"organizationName"`
	TeamName         string `json:"teamName"`
}

type sessionResponse struct {
	User         *auth.User         `json:"user"`
	Organization *auth.Organization `json:"organization,omitempty"`
	Team         *auth.Team         `json:"team,omitempty"`
	AccessToken  string             `json:"accessToken"`
	RefreshToken string             `json:"refreshToken"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}

	reg, err := a.auth.Register(r.Context(), auth.RegisterParams{
		Email:            req.Email,
		Password:         req.Password,
		Name:             req.Name,
		OrganizationName: req.OrganizationName,
		TeamName:         req.TeamName,
	})
	switch {
	case errors.Is(err, auth.ErrAlreadyExists):
		writeError(w, r, http.StatusBadRequest, "email already registered")
		return
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		writeError(w, r, http.StatusInternalServerError, "registration failed")
		return
	}

	audit.LogEvent(r.Context(), "auth.register", map[string]any{
		"user_id": reg.User.ID,
		"team_id": reg.Team.ID,
		"org_id":  reg.Organization.ID,
	})
	writeData(w, r, http.StatusCreated, sessionResponse{
		User:         reg.User,
		Organization: reg.Organization,
		Team:         reg.Team,
		AccessToken:  reg.Tokens.AccessToken,
		RefreshToken: reg.Tokens.RefreshToken,
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "email and password are required")
		return
	}

	pair, user, err := a.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthorized) {
			writeError(w, r, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "login failed")
		return
	}

	_, team, org, err := a.auth.Profile(r.Context(), user.ID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "login failed")
		return
	}

	audit.LogEvent(r.Context(), "auth.login", map[string]any{
		"user_id": user.ID,
		"team_id": user.TeamID,
	})
	writeData(w, r, http.StatusOK, sessionResponse{
		User:         user,
		Organization: org,
		Team:         team,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil || req.RefreshToken == "" {
		writeError(w, r, http.StatusBadRequest, "refreshToken is required")
		return
	}

	token, exp, err := a.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrExpiredToken):
			writeError(w, r, http.StatusUnauthorized, "refresh token expired")
		case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrUnknownToken):
			writeError(w, r, http.StatusUnauthorized, "invalid refresh token")
		default:
			writeError(w, r, http.StatusInternalServerError, "refresh failed")
		}
		return
	}

	writeData(w, r, http.StatusOK, map[string]any{
		"accessToken": token,
		"expiresAt":   exp,
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	ident, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil || req.RefreshToken == "" {
		writeError(w, r, http.StatusBadRequest, "refreshToken is required")
		return
	}
	if err := a.auth.Revoke(r.Context(), req.RefreshToken); err != nil {
		writeError(w, r, http.StatusInternalServerError, "logout failed")
		return
	}
	audit.LogEvent(r.Context(), "auth.logout", map[string]any{"user_id": ident.UserID})
	writeData(w, r, http.StatusOK, map[string]any{"message": "logged out"})
}

// meResponse nests team and organization inside the user object.
type meResponse struct {
	*auth.User
	Team         *auth.Team         `json:"team"`
	Organization *auth.Organization `json:"organization"`
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	ident, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	user, team, org, err := a.auth.Profile(r.Context(), ident.UserID)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			unauthorized(w, r, "account no longer exists")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "profile lookup failed")
		return
	}
	writeData(w, r, http.StatusOK, map[string]any{
		"user": meResponse{User: user, Team: team, Organization: org},
	})
}
