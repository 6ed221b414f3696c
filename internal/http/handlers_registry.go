package http

import (
	"net/http"
	"strconv"

	"fatture/internal/core"
	"fatture/internal/registry"
)

type registryEntryResponse struct {
	ID      int64  `json:"id"`
	Kind    string `json:"kind"`
	Label   string `json:"label"`
	TaxCode string `json:"tax_code,omitempty"`
}

func toEntryResponse(e core.RegistryEntry) registryEntryResponse {
	return registryEntryResponse{
		ID:      e.ID,
		Kind:    e.Kind.String(),
		Label:   e.Label,
		TaxCode: e.TaxCode,
	}
}

// pathKind parses the {kind} path segment, accepting hyphenated names.
func pathKind(w http.ResponseWriter, r *http.Request) (core.Kind, bool) {
	kind, err := core.ParseKind(r.PathValue("kind"))
	if err != nil {
		writeError(w, r, err)
		return "", false
	}
	return kind, true
}

// pathID parses the {id} path segment.
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeBadRequest(w, "id must be a positive integer")
		return 0, false
	}
	return id, true
}

func (s *Server) handleRegistryList(w http.ResponseWriter, r *http.Request) {
	kind, ok := pathKind(w, r)
	if !ok {
		return
	}

	entries, err := s.registries.List(r.Context(), kind)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]registryEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEntryResponse(e))
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": out})
}

func (s *Server) handleRegistryCreate(w http.ResponseWriter, r *http.Request) {
	kind, ok := pathKind(w, r)
	if !ok {
		return
	}

	var req struct {
		Label   string `json:"label"`
		TaxCode string `json:"tax_code"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body: "+err.Error())
		return
	}

	id, err := s.registries.Create(r.Context(), registry.CreateParams{
		Kind:    kind,
		Label:   req.Label,
		TaxCode: req.TaxCode,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	entry, err := s.registries.Get(r.Context(), kind, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEntryResponse(entry))
}

func (s *Server) handleRegistryGet(w http.ResponseWriter, r *http.Request) {
	kind, ok := pathKind(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	entry, err := s.registries.Get(r.Context(), kind, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryResponse(entry))
}

func (s *Server) handleRegistryRename(w http.ResponseWriter, r *http.Request) {
	kind, ok := pathKind(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req struct {
		Label string `json:"label"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body: "+err.Error())
		return
	}

	if err := s.registries.Rename(r.Context(), kind, id, req.Label); err != nil {
		writeError(w, r, err)
		return
	}

	entry, err := s.registries.Get(r.Context(), kind, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryResponse(entry))
}

func (s *Server) handleRegistryDelete(w http.ResponseWriter, r *http.Request) {
	kind, ok := pathKind(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := s.registries.Delete(r.Context(), kind, id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
