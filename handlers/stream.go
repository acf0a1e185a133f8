// Package handlers contains the HTTP handlers for the addon and admin
// surfaces.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"magnetar/models"
	"magnetar/services/cascade"
)

// Resolver is the resolution surface the stream handler consumes.
type Resolver interface {
	Resolve(ctx context.Context, rawID string, requested models.ContentType) ([]models.MagnetRecord, error)
}

var _ Resolver = (*cascade.Service)(nil)

// StreamHandler serves the addon manifest and stream listings.
type StreamHandler struct {
	Resolver Resolver
	Version  string
}

func NewStreamHandler(resolver Resolver, version string) *StreamHandler {
	return &StreamHandler{Resolver: resolver, Version: version}
}

// Manifest serves the addon descriptor consumed by media clients.
func (h *StreamHandler) Manifest(w http.ResponseWriter, r *http.Request) {
	manifest := map[string]any{
		"id":          "com.magnetar.addon",
		"version":     h.Version,
		"name":        "Magnetar",
		"description": "Cascading magnet resolution with local indexes and anonymized remote search",
		"resources":   []string{"stream"},
		"types":       []string{"movie", "series", "anime"},
		"catalogs":    []any{},
		"idPrefixes":  []string{"tt", "kitsu", "mal", "anilist", "anidb", "tvdb"},
		"behaviorHints": map[string]any{
			"configurable": false,
			"p2p":          true,
		},
	}
	writeJSON(w, http.StatusOK, manifest)
}

type stream struct {
	Name          string         `json:"name"`
	Title         string         `json:"title"`
	InfoHash      string         `json:"infoHash"`
	FileIdx       int            `json:"fileIdx,omitempty"`
	BehaviorHints map[string]any `json:"behaviorHints,omitempty"`
}

// Streams resolves one identifier and renders the records as addon streams.
// An exhausted cascade is a 200 with an empty list: clients treat any error
// status as addon breakage.
func (h *StreamHandler) Streams(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	contentType := models.ContentType(vars["type"])
	rawID := strings.TrimSuffix(vars["id"], ".json")
	reqID := uuid.NewString()[:8]

	log.Printf("[stream] %s resolving type=%s id=%s", reqID, contentType, rawID)
	records, err := h.Resolver.Resolve(r.Context(), rawID, contentType)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			log.Printf("[stream] %s resolve failed: %v", reqID, err)
		}
		writeJSON(w, http.StatusOK, map[string]any{"streams": []stream{}})
		return
	}

	streams := make([]stream, 0, len(records))
	for _, rec := range records {
		streams = append(streams, stream{
			Name:     "Magnetar\n" + string(rec.Quality),
			Title:    streamTitle(rec),
			InfoHash: rec.InfoHash(),
			FileIdx:  rec.FileIdx,
			BehaviorHints: map[string]any{
				"bingeGroup": fmt.Sprintf("magnetar-%s-%s", rec.Source, rec.Quality),
			},
		})
	}
	log.Printf("[stream] %s returning %d streams", reqID, len(streams))
	writeJSON(w, http.StatusOK, map[string]any{"streams": streams})
}

// streamTitle renders the descriptive second line shown under the stream
// name: release name plus size, seeders and provider markers.
func streamTitle(rec models.MagnetRecord) string {
	parts := []string{rec.Name}
	var info []string
	if rec.Size != "" && rec.Size != "N/A" {
		info = append(info, "💾 "+rec.Size)
	}
	if rec.Seeders > 0 {
		info = append(info, fmt.Sprintf("👤 %d", rec.Seeders))
	}
	if rec.Provider != "" && rec.Provider != "unknown" {
		info = append(info, "⚙️ "+rec.Provider)
	}
	if len(info) > 0 {
		parts = append(parts, strings.Join(info, " "))
	}
	return strings.Join(parts, "\n")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("[handlers] encode response: %v", err)
	}
}
