package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/mchen/ripple/internal/friendgraph"
	"github.com/mchen/ripple/internal/models"
	"github.com/mchen/ripple/internal/profile"
)

type UserHandler struct {
	Profiles *profile.Service
	Graph    *friendgraph.Graph
}

func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	type CreateRequest struct {
		DisplayName string `json:"displayName"`
		Bio         string `json:"bio"`
	}

	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := h.Profiles.Create(r.Context(), req.DisplayName, req.Bio)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.Profiles.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var edit profile.ProfileEdit
	if err := json.NewDecoder(r.Body).Decode(&edit); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.Profiles.UpdateProfile(r.Context(), mux.Vars(r)["id"], edit); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *UserHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	if err := h.Profiles.Heartbeat(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *UserHandler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Profiles.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *UserHandler) SendRequest(w http.ResponseWriter, r *http.Request) {
	type SendRequest struct {
		From string `json:"from"`
		To   string `json:"to"`
	}

	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	created, err := h.Graph.SendRequest(r.Context(), req.From, req.To)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *UserHandler) PendingRequests(w http.ResponseWriter, r *http.Request) {
	reqs, err := h.Graph.PendingFor(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reqs)
}

func (h *UserHandler) ResolveRequest(w http.ResponseWriter, r *http.Request) {
	type ResolveRequest struct {
		Outcome models.RequestStatus `json:"outcome"`
	}

	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.Graph.Resolve(r.Context(), mux.Vars(r)["id"], req.Outcome); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
