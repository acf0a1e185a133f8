package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"magnetar/handlers"
)

// corsMiddleware opens the addon surface to browser-based media clients.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// NewRouter registers the addon and admin routes.
func NewRouter(stream *handlers.StreamHandler, admin *handlers.AdminHandler) *mux.Router {
	r := mux.NewRouter()
	r.Use(corsMiddleware)

	r.HandleFunc("/manifest.json", stream.Manifest).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/stream/{type}/{id}", stream.Streams).Methods(http.MethodGet, http.MethodOptions)

	r.HandleFunc("/api/status", admin.Status).Methods(http.MethodGet)
	r.HandleFunc("/api/stores/{name}/reload", admin.ReloadStore).Methods(http.MethodPost)
	r.HandleFunc("/api/cache/flush", admin.FlushCache).Methods(http.MethodPost)

	return r
}
