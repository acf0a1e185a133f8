package handlers

import (
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"magnetar/services/cascade"
)

// ReloadableStore is the store surface the admin endpoints operate on.
type ReloadableStore interface {
	Name() string
	Loaded() bool
	Count() int
	Reload() error
}

// AdminHandler serves the operational endpoints: status, store reload and
// cache flush.
type AdminHandler struct {
	Stores  map[string]ReloadableStore
	Cascade *cascade.Service
	Prober  interface{ Probe() bool }
}

func NewAdminHandler(stores map[string]ReloadableStore, svc *cascade.Service, prober interface{ Probe() bool }) *AdminHandler {
	return &AdminHandler{Stores: stores, Cascade: svc, Prober: prober}
}

// Status reports proxy reachability plus store and cache statistics.
func (h *AdminHandler) Status(w http.ResponseWriter, r *http.Request) {
	stores := make(map[string]any, len(h.Stores))
	for name, st := range h.Stores {
		stores[name] = map[string]any{
			"loaded":  st.Loaded(),
			"records": st.Count(),
		}
	}
	payload := map[string]any{
		"proxyReachable": h.Prober != nil && h.Prober.Probe(),
		"stores":         stores,
		"cacheEntries":   h.Cascade.Cache().Len(),
		"memoEntries":    h.Cascade.Memo().Len(),
	}
	writeJSON(w, http.StatusOK, payload)
}

// ReloadStore re-reads one bucket's backing file. The previous snapshot stays
// live when the reload fails.
func (h *AdminHandler) ReloadStore(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(mux.Vars(r)["name"])
	st, ok := h.Stores[name]
	if !ok {
		http.Error(w, fmt.Sprintf("unknown store %q", name), http.StatusNotFound)
		return
	}
	if err := st.Reload(); err != nil {
		log.Printf("[admin] reload %s failed: %v", name, err)
		http.Error(w, "reload failed, previous snapshot still active", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"store": name, "records": st.Count()})
}

// FlushCache drops every result-cache entry.
func (h *AdminHandler) FlushCache(w http.ResponseWriter, r *http.Request) {
	h.Cascade.Cache().Flush()
	writeJSON(w, http.StatusOK, map[string]any{"flushed": true})
}
