package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/MrWong99/chordcoord/internal/chord"
	"github.com/MrWong99/chordcoord/internal/fretboard"
	"github.com/MrWong99/chordcoord/internal/observe"
	"github.com/MrWong99/chordcoord/internal/pitch"
	"github.com/MrWong99/chordcoord/internal/resilience"
	"github.com/MrWong99/chordcoord/internal/store"
	"github.com/MrWong99/chordcoord/internal/teacher"
	"github.com/MrWong99/chordcoord/pkg/provider/llm"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ─── Chords ──────────────────────────────────────────────────────────────────

type notesRequest struct {
	Notes []string `json:"notes"`
}

func (s *Server) handleIdentify(w http.ResponseWriter, r *http.Request) {
	var req notesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	res, err := s.chords.Identify(r.Context(), req.Notes)
	if err != nil {
		observe.Logger(r.Context()).Warn("api: identify failed", "err", err)
		writeError(w, upstreamStatus(err), "chord identification unavailable")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleChords(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"chords": chord.Names()})
}

func (s *Server) handleChord(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	notes, err := s.chords.Notes(r.Context(), name)
	switch {
	case errors.Is(err, chord.ErrNotFound):
		body := errorBody{Detail: "Chord not found"}
		if sug, ok := chord.Suggest(name); ok {
			body.Suggestion = sug
		}
		writeJSON(w, http.StatusNotFound, body)
	case err != nil:
		observe.Logger(r.Context()).Warn("api: chord lookup failed", "name", name, "err", err)
		writeError(w, upstreamStatus(err), "chord lookup unavailable")
	default:
		writeJSON(w, http.StatusOK, map[string][]string{"notes": notes})
	}
}

// ─── Tuner ───────────────────────────────────────────────────────────────────

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	hz, err := strconv.ParseFloat(r.URL.Query().Get("hz"), 64)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "query parameter hz must be a number")
		return
	}
	note, ok := pitch.Identify(hz)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"note": nil})
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// ─── Teacher ─────────────────────────────────────────────────────────────────

type conversation struct {
	Messages []llm.Message `json:"messages"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	t := s.teacher.Load()
	if t == nil {
		writeError(w, http.StatusServiceUnavailable, "no LLM provider is configured")
		return
	}
	var req conversation
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	msgs, err := t.Ask(r.Context(), req.Messages)
	switch {
	case errors.Is(err, teacher.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		observe.Logger(r.Context()).Warn("api: ask failed", "err", err)
		writeError(w, upstreamStatus(err), "the teacher is unavailable")
	default:
		writeJSON(w, http.StatusOK, conversation{Messages: msgs})
	}
}

// ─── Settings ────────────────────────────────────────────────────────────────

type tempoBody struct {
	BPM int `json:"bpm"`
}

func (s *Server) handleGetTempo(w http.ResponseWriter, r *http.Request) {
	bpm, err := s.store.Tempo(r.Context())
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tempoBody{BPM: bpm})
}

func (s *Server) handlePutTempo(w http.ResponseWriter, r *http.Request) {
	var req tempoBody
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.BPM <= 0 {
		writeError(w, http.StatusBadRequest, "bpm must be positive")
		return
	}
	if err := s.store.SaveTempo(r.Context(), req.BPM); err != nil {
		s.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// ─── Favorites ───────────────────────────────────────────────────────────────

type addFavoriteRequest struct {
	Name       string               `json:"name"`
	TuningName string               `json:"tuningName"`
	Positions  []fretboard.Position `json:"positions"`
}

type lookupRequest struct {
	TuningName string               `json:"tuningName"`
	Positions  []fretboard.Position `json:"positions"`
}

type renameRequest struct {
	CustomName string `json:"customName"`
}

func (s *Server) handleListFavorites(w http.ResponseWriter, r *http.Request) {
	favs, err := s.store.Favorites(r.Context())
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]store.Favorite{"favorites": favs})
}

func (s *Server) handleAddFavorite(w http.ResponseWriter, r *http.Request) {
	var req addFavoriteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	fav, err := s.store.AddFavorite(r.Context(), req.Name, req.TuningName, req.Positions)
	if errors.Is(err, store.ErrInvalidFavorite) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, fav)
}

func (s *Server) handleLookupFavorite(w http.ResponseWriter, r *http.Request) {
	var req lookupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	fav, ok, err := s.store.FindByPositions(r.Context(), req.Positions, req.TuningName)
	switch {
	case err != nil:
		s.storeError(w, r, err)
	case !ok:
		writeError(w, http.StatusNotFound, "Favorite not found")
	default:
		writeJSON(w, http.StatusOK, fav)
	}
}

func (s *Server) handleRenameFavorite(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	err := s.store.RenameFavorite(r.Context(), r.PathValue("id"), req.CustomName)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Favorite not found")
		return
	}
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemoveFavorite(w http.ResponseWriter, r *http.Request) {
	if err := s.store.RemoveFavorite(r.Context(), r.PathValue("id")); err != nil {
		s.storeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) storeError(w http.ResponseWriter, r *http.Request, err error) {
	observe.Logger(r.Context()).Error("api: store failure", "path", r.URL.Path, "err", err)
	writeError(w, http.StatusInternalServerError, "storage unavailable")
}

// upstreamStatus maps a dependency failure to 503 when its breaker is open
// and 502 otherwise.
func upstreamStatus(err error) int {
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return http.StatusServiceUnavailable
	}
	return http.StatusBadGateway
}
