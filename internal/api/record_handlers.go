package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/simmonsip/trawler/internal/store"
	"github.com/simmonsip/trawler/internal/trawl"
)

func (s *Server) listCompetitors(w http.ResponseWriter, r *http.Request) {
	competitors, err := s.records.Competitors(r.Context())
	if err != nil {
		s.logger.Error("list competitors failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load competitors")
		return
	}
	if competitors == nil {
		competitors = []trawl.Competitor{}
	}
	writeJSON(w, http.StatusOK, competitors)
}

// replaceCompetitors swaps the whole list. The body must be a JSON array;
// anything else is rejected so a malformed client cannot wipe the list.
func (s *Server) replaceCompetitors(w http.ResponseWriter, r *http.Request) {
	var competitors []trawl.Competitor
	if err := decodeArray(r, &competitors); err != nil {
		writeError(w, http.StatusBadRequest, "body must be a JSON array")
		return
	}
	if err := s.records.ReplaceCompetitors(r.Context(), competitors); err != nil {
		s.logger.Error("replace competitors failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to save competitors")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) addCompetitor(w http.ResponseWriter, r *http.Request) {
	var competitor trawl.Competitor
	if err := json.NewDecoder(r.Body).Decode(&competitor); err != nil || competitor.URL == "" {
		writeError(w, http.StatusBadRequest, "competitor url is required")
		return
	}
	if err := s.records.AddCompetitor(r.Context(), competitor); err != nil {
		s.logger.Error("add competitor failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to save competitor")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) deleteCompetitor(w http.ResponseWriter, r *http.Request) {
	url := strings.TrimSpace(r.URL.Query().Get("url"))
	if url == "" {
		writeError(w, http.StatusBadRequest, "url query parameter is required")
		return
	}
	switch err := s.records.DeleteCompetitor(r.Context(), url); {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	case errors.Is(err, trawl.ErrNotFound):
		writeError(w, http.StatusNotFound, "competitor not found")
	default:
		s.logger.Error("delete competitor failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to delete competitor")
	}
}

func (s *Server) listKeywords(w http.ResponseWriter, r *http.Request) {
	keywords, err := s.records.KeywordRecords(r.Context())
	if err != nil {
		s.logger.Error("list keywords failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load keywords")
		return
	}
	if keywords == nil {
		keywords = []trawl.Keyword{}
	}
	writeJSON(w, http.StatusOK, keywords)
}

func (s *Server) replaceKeywords(w http.ResponseWriter, r *http.Request) {
	var keywords []trawl.Keyword
	if err := decodeArray(r, &keywords); err != nil {
		writeError(w, http.StatusBadRequest, "body must be a JSON array")
		return
	}
	if err := s.records.ReplaceKeywords(r.Context(), keywords); err != nil {
		s.logger.Error("replace keywords failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to save keywords")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) addKeyword(w http.ResponseWriter, r *http.Request) {
	var keyword trawl.Keyword
	if err := json.NewDecoder(r.Body).Decode(&keyword); err != nil || strings.TrimSpace(keyword.Phrase) == "" {
		writeError(w, http.StatusBadRequest, "keyword phrase is required")
		return
	}
	if err := s.records.AddKeyword(r.Context(), keyword); err != nil {
		s.logger.Error("add keyword failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to save keyword")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) deleteKeyword(w http.ResponseWriter, r *http.Request) {
	phrase := strings.TrimSpace(r.URL.Query().Get("keyword"))
	if phrase == "" {
		writeError(w, http.StatusBadRequest, "keyword query parameter is required")
		return
	}
	switch err := s.records.DeleteKeyword(r.Context(), phrase); {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	case errors.Is(err, trawl.ErrNotFound):
		writeError(w, http.StatusNotFound, "keyword not found")
	default:
		s.logger.Error("delete keyword failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to delete keyword")
	}
}

func (s *Server) listImages(w http.ResponseWriter, r *http.Request) {
	images, err := s.images.Images(r.Context())
	if err != nil {
		s.logger.Error("list images failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load image fingerprints")
		return
	}
	if images == nil {
		images = []trawl.ImageRecord{}
	}
	writeJSON(w, http.StatusOK, images)
}

// seed loads a CSV body into the record store. The kind query parameter
// selects which records the CSV replaces.
func (s *Server) seed(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Query().Get("kind") {
	case "competitors":
		competitors, err := store.ParseCompetitorsCSV(r.Body)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := s.records.ReplaceCompetitors(r.Context(), competitors); err != nil {
			s.logger.Error("seed competitors failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to save competitors")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "count": len(competitors)})
	case "keywords":
		keywords, err := store.ParseKeywordsCSV(r.Body)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := s.records.ReplaceKeywords(r.Context(), keywords); err != nil {
			s.logger.Error("seed keywords failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to save keywords")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "count": len(keywords)})
	default:
		writeError(w, http.StatusBadRequest, "kind must be competitors or keywords")
	}
}

// maxBodyBytes bounds record-replacement request bodies.
const maxBodyBytes = 4 << 20

// decodeArray rejects any body whose top-level JSON value is not an
// array.
func decodeArray(r *http.Request, out any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return err
	}
	trimmed := bytes.TrimLeft(body, " \t\r\n")
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return errors.New("expected JSON array")
	}
	return json.Unmarshal(body, out)
}
