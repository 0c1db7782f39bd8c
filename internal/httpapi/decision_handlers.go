package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"spaq.app/internal/audit"
	"spaq.app/internal/decisions"
	"spaq.app/internal/stream"
)

func writeDecisionError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, decisions.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "resource not found")
	case errors.Is(err, decisions.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func parseLimit(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

type createEventRequest struct {
	Title     string   `json:"title"`
	Context   string   `json:"context"`
	DecidedBy string   `json:"decidedBy"`
	Tags      []string `json:"tags"`
}

func (a *API) handleEventsCollection(w http.ResponseWriter, r *http.Request) {
	ident, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		if q := r.URL.Query().Get("q"); q != "" {
			events, err := a.decisions.SearchEvents(r.Context(), ident.TeamID, q, parseLimit(r, 50))
			if err != nil {
				writeDecisionError(w, r, err)
				return
			}
			writeData(w, r, http.StatusOK, map[string]any{"events": events, "query": q})
			return
		}
		events, err := a.decisions.ListEvents(r.Context(), ident.TeamID, parseLimit(r, 50))
		if err != nil {
			writeDecisionError(w, r, err)
			return
		}
		writeData(w, r, http.StatusOK, map[string]any{"events": events})

	case http.MethodPost:
		var req createEventRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid JSON body")
			return
		}
		decidedBy := strings.TrimSpace(req.DecidedBy)
		if decidedBy == "" {
			decidedBy = ident.UserID
		}
		created, err := a.decisions.CreateEvent(r.Context(), ident.TeamID, &decisions.Event{
			Title:     req.Title,
			Context:   req.Context,
			DecidedBy: decidedBy,
			Tags:      req.Tags,
		})
		if err != nil {
			writeDecisionError(w, r, err)
			return
		}
		a.publishActivity(stream.Activity{
			TeamID:    ident.TeamID,
			Kind:      "event.created",
			RecordID:  created.ID,
			Title:     created.Title,
			ActorID:   ident.UserID,
			Timestamp: time.Now().UTC(),
		})
		audit.LogEvent(r.Context(), "event.created", map[string]any{"event_id": created.ID})
		writeData(w, r, http.StatusCreated, map[string]any{"event": created})

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleEventResource(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/events/")
	if rest == "stream" {
		a.handleActivityStream(w, r)
		return
	}
	ident, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if rest == "" || strings.Contains(rest, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	event, err := a.decisions.GetEvent(r.Context(), ident.TeamID, rest)
	if err != nil {
		writeDecisionError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, map[string]any{"event": event})
}

type chainRequest struct {
	Name     string          `json:"name"`
	Document json.RawMessage `json:"document"`
}

func (a *API) handleChainsCollection(w http.ResponseWriter, r *http.Request) {
	ident, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		chains, err := a.decisions.ListChains(r.Context(), ident.TeamID)
		if err != nil {
			writeDecisionError(w, r, err)
			return
		}
		writeData(w, r, http.StatusOK, map[string]any{"chains": chains})

	case http.MethodPost:
		var req chainRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid JSON body")
			return
		}
		created, err := a.decisions.CreateChain(r.Context(), ident.TeamID, &decisions.Chain{
			Name:     req.Name,
			Document: req.Document,
		})
		if err != nil {
			writeDecisionError(w, r, err)
			return
		}
		a.publishActivity(stream.Activity{
			TeamID:    ident.TeamID,
			Kind:      "chain.created",
			RecordID:  created.ID,
			Title:     created.Name,
			ActorID:   ident.UserID,
			Timestamp: time.Now().UTC(),
		})
		audit.LogEvent(r.Context(), "chain.created", map[string]any{"chain_id": created.ID})
		writeData(w, r, http.StatusCreated, map[string]any{"chain": created})

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleChainResource(w http.ResponseWriter, r *http.Request) {
	ident, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/chains/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		chain, err := a.decisions.GetChain(r.Context(), ident.TeamID, id)
		if err != nil {
			writeDecisionError(w, r, err)
			return
		}
		writeData(w, r, http.StatusOK, map[string]any{"chain": chain})

	case http.MethodPut:
		var req chainRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid JSON body")
			return
		}
		updated, err := a.decisions.UpdateChain(r.Context(), ident.TeamID, id, req.Name, req.Document)
		if err != nil {
			writeDecisionError(w, r, err)
			return
		}
		a.publishActivity(stream.Activity{
			TeamID:    ident.TeamID,
			Kind:      "chain.updated",
			RecordID:  updated.ID,
			Title:     updated.Name,
			ActorID:   ident.UserID,
			Timestamp: time.Now().UTC(),
		})
		audit.LogEvent(r.Context(), "chain.updated", map[string]any{"chain_id": updated.ID})
		writeData(w, r, http.StatusOK, map[string]any{"chain": updated})

	case http.MethodDelete:
		if err := a.decisions.DeleteChain(r.Context(), ident.TeamID, id); err != nil {
			writeDecisionError(w, r, err)
			return
		}
		audit.LogEvent(r.Context(), "chain.deleted", map[string]any{"chain_id": id})
		writeData(w, r, http.StatusOK, map[string]any{"deleted": true})

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) publishActivity(act stream.Activity) {
	if a.activity != nil {
		a.activity.Publish(act)
	}
}
