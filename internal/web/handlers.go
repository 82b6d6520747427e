package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/MrWong99/sumirevox/internal/observe"
)

// decodeJSONStrict decodes the request body into v, rejecting unknown fields
// and trailing data.
func decodeJSONStrict(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("unexpected data after the JSON document")
	}
	return nil
}

func invalidJSON(w http.ResponseWriter, err error) {
	writeProblem(w, Problem{Title: "invalid json", Status: http.StatusBadRequest, Detail: err.Error()})
}

func pathInt64(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	v, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || v <= 0 {
		writeProblem(w, Problem{
			Title:  "invalid path",
			Status: http.StatusBadRequest,
			Detail: fmt.Sprintf("%s must be a positive integer", name),
		})
		return 0, false
	}
	return v, true
}

// snowflake is a Discord id that accepts both JSON numbers and strings.
// Browsers lose precision on numbers above 2^53, so clients usually send
// strings.
type snowflake int64

func (s *snowflake) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	v, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id %s", b)
	}
	*s = snowflake(v)
	return nil
}

// --- Dictionary ---

func (s *Server) listDictionary(w http.ResponseWriter, r *http.Request) {
	entries, err := s.dict.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

type upsertRequest struct {
	Word    string `json:"word"`
	Reading string `json:"reading"`
}

func (s *Server) upsertDictionary(w http.ResponseWriter, r *http.Request) {
	var req upsertRequest
	if err := decodeJSONStrict(w, r, &req); err != nil {
		invalidJSON(w, err)
		return
	}

	res, err := s.dict.UpsertWord(r.Context(), req.Word, req.Reading)
	if err != nil {
		p := problemFor(err)
		if res != nil {
			// Stale entries may already be gone; report what happened.
			p.Meta = map[string]any{"result": res}
		}
		observe.Logger(r.Context()).Warn("dictionary upsert failed", "word", req.Word, "err", err)
		writeProblem(w, p)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) deleteDictionary(w http.ResponseWriter, r *http.Request) {
	if err := s.dict.DeleteWord(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Guilds ---

func (s *Server) getGuildSettings(w http.ResponseWriter, r *http.Request) {
	guildID, ok := pathInt64(w, r, "guildID")
	if !ok {
		return
	}
	gs, err := s.settings.Get(r.Context(), guildID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, gs)
}

// putGuildSettings merges the fields present in the body into the stored
// document. Pairings of bot instances are edited through the autojoin routes
// only.
func (s *Server) putGuildSettings(w http.ResponseWriter, r *http.Request) {
	guildID, ok := pathInt64(w, r, "guildID")
	if !ok {
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		invalidJSON(w, err)
		return
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil {
		invalidJSON(w, err)
		return
	}
	if _, ok := probe["auto_join_config"]; ok {
		writeProblem(w, Problem{
			Title:  "invalid input",
			Status: http.StatusBadRequest,
			Detail: "auto_join_config is managed through /api/guilds/{guildID}/autojoin/{botID}",
		})
		return
	}

	unlock := s.locks.Lock(guildID)
	defer unlock()

	gs, err := s.settings.Get(r.Context(), guildID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	gs = gs.Clone()
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&gs); err != nil {
		invalidJSON(w, err)
		return
	}
	if err := s.settings.Set(r.Context(), guildID, gs); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, gs)
}

type autoJoinRequest struct {
	VoiceChannelID snowflake `json:"voice_channel_id"`
	TextChannelID  snowflake `json:"text_channel_id"`
}

func (s *Server) putAutoJoin(w http.ResponseWriter, r *http.Request) {
	guildID, ok := pathInt64(w, r, "guildID")
	if !ok {
		return
	}
	var req autoJoinRequest
	if err := decodeJSONStrict(w, r, &req); err != nil {
		invalidJSON(w, err)
		return
	}

	unlock := s.locks.Lock(guildID)
	defer unlock()

	err := s.settings.SetAutoJoinPairing(r.Context(), guildID, r.PathValue("botID"),
		int64(req.VoiceChannelID), int64(req.TextChannelID))
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deleteAutoJoin(w http.ResponseWriter, r *http.Request) {
	guildID, ok := pathInt64(w, r, "guildID")
	if !ok {
		return
	}

	unlock := s.locks.Lock(guildID)
	defer unlock()

	if err := s.settings.ClearAutoJoinPairing(r.Context(), guildID, r.PathValue("botID")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Reading ---

type readingResponse struct {
	Text     string `json:"text"`
	Reading  string `json:"reading"`
	Complete bool   `json:"complete"`
}

func (s *Server) suggestReading(w http.ResponseWriter, r *http.Request) {
	text := strings.TrimSpace(r.URL.Query().Get("text"))
	if text == "" {
		writeProblem(w, Problem{Title: "invalid input", Status: http.StatusBadRequest, Detail: "text must not be empty"})
		return
	}
	sug := s.reading.Suggest(text)
	writeJSON(w, http.StatusOK, readingResponse{Text: text, Reading: sug.Reading, Complete: sug.Complete})
}
