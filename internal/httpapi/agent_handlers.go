package httpapi

import (
	"net/http"
	"strings"
	"time"
)

type askRequest struct {
	Query string `json:"query"`
}

func (a *API) handleAgentAsk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	ident, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req askRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, r, http.StatusBadRequest, "query is required")
		return
	}

	events, err := a.decisions.ListEvents(r.Context(), ident.TeamID, 200)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	answer, err := a.rec.Answer(r.Context(), req.Query, events)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "agent unavailable")
		return
	}
	writeData(w, r, http.StatusOK, answer)
}

// avgTimeSavedHours is a fixed product estimate until real measurements land.
const avgTimeSavedHours = 4.2

func (a *API) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	ident, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	stats, err := a.decisions.TeamStats(r.Context(), ident.TeamID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeData(w, r, http.StatusOK, map[string]any{
		"events":               stats.Events,
		"chains":               stats.Chains,
		"avg_time_saved_hours": avgTimeSavedHours,
		"as_of":                time.Now().UTC().Format(time.RFC3339),
	})
}
