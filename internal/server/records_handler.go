package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/bjarke-xyz/appstore-api/internal/domain"
	"github.com/bjarke-xyz/appstore-api/internal/store"
	"github.com/go-chi/chi/v5"
)

// recordHandlers serves one collection. Apps and users share the same
// handlers, parameterized by the collection's id field.
type recordHandlers struct {
	s          *server
	collection *store.Collection
}

func (s *server) records(c *store.Collection) recordHandlers {
	return recordHandlers{s: s, collection: c}
}

func (h recordHandlers) idPattern() string {
	return "/{" + h.collection.Spec().IDField + "}"
}

// id returns the decoded id path parameter. chi matches on URL.RawPath when
// the request has one (an escaped slash, for instance), and the parameter
// then arrives still escaped.
func (h recordHandlers) id(r *http.Request) (string, error) {
	raw := chi.URLParam(r, h.collection.Spec().IDField)
	if r.URL.RawPath == "" {
		return raw, nil
	}
	id, err := url.PathUnescape(raw)
	if err != nil {
		return "", fmt.Errorf("invalid %s %q: %w", h.collection.Spec().IDField, raw, domain.ErrMalformed)
	}
	return id, nil
}

func (h recordHandlers) list(w http.ResponseWriter, r *http.Request) {
	records, err := h.collection.List(r.Context())
	if err != nil {
		h.s.writeError(w, r, err)
		return
	}
	if records == nil {
		records = []domain.Record{}
	}
	h.s.jsonResponse(w, http.StatusOK, records)
}

func (h recordHandlers) get(w http.ResponseWriter, r *http.Request) {
	id, err := h.id(r)
	if err != nil {
		h.s.writeError(w, r, err)
		return
	}
	record, err := h.collection.Get(r.Context(), id)
	if err != nil {
		h.s.writeError(w, r, err)
		return
	}
	h.s.jsonResponse(w, http.StatusOK, record)
}

func (h recordHandlers) create(w http.ResponseWriter, r *http.Request) {
	input, err := h.s.decodeRecord(w, r)
	if err != nil {
		h.s.writeError(w, r, err)
		return
	}
	record, err := h.collection.Create(r.Context(), input)
	if err != nil {
		h.s.writeError(w, r, err)
		return
	}
	spec := h.collection.Spec()
	id, _ := record.ID(spec.IDField)
	w.Header().Set("Location", fmt.Sprintf("/api/%s/%s", spec.Name, url.PathEscape(id)))
	h.s.jsonResponse(w, http.StatusCreated, record)
}

func (h recordHandlers) update(w http.ResponseWriter, r *http.Request) {
	id, err := h.id(r)
	if err != nil {
		h.s.writeError(w, r, err)
		return
	}
	partial, err := h.s.decodeRecord(w, r)
	if err != nil {
		h.s.writeError(w, r, err)
		return
	}
	record, err := h.collection.Update(r.Context(), id, partial)
	if err != nil {
		h.s.writeError(w, r, err)
		return
	}
	h.s.jsonResponse(w, http.StatusOK, record)
}

func (h recordHandlers) delete(w http.ResponseWriter, r *http.Request) {
	id, err := h.id(r)
	if err != nil {
		h.s.writeError(w, r, err)
		return
	}
	if err := h.collection.Delete(r.Context(), id); err != nil {
		h.s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decodeRecord reads a single JSON object from the request body.
func (s *server) decodeRecord(w http.ResponseWriter, r *http.Request) (domain.Record, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	var record domain.Record
	if err := dec.Decode(&record); err != nil {
		return nil, fmt.Errorf("failed to decode input: %w: %w", domain.ErrMalformed, err)
	}
	if record == nil {
		return nil, fmt.Errorf("body must be a JSON object: %w", domain.ErrMalformed)
	}
	if dec.More() {
		return nil, fmt.Errorf("body must contain a single JSON object: %w", domain.ErrMalformed)
	}
	return record, nil
}
