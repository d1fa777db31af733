// HTTP handlers for the /healthz liveness probe and the /debug/cache
// mapping-state introspection endpoint (SPEC_FULL.md §2, analogous to
// the host agent's own registerHandlers/healthHandler pair).
package app

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
)

func (a *App) registerHandlers(router *mux.Router) {
	router.HandleFunc("/healthz", a.healthzHandler).Methods("GET")
	router.HandleFunc("/debug/cache", a.debugCacheHandler).Methods("GET")
}

// healthzHandler reports liveness only; the filter has no external
// dependencies of its own to probe (spec.md §1 places the upstream
// graph out of scope).
func (a *App) healthzHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// debugCacheHandler reports an aggregate iterator.Stats snapshot across
// every Iterator this App has constructed, plus the shared fd-cache
// size, for operators inspecting memory growth.
func (a *App) debugCacheHandler(w http.ResponseWriter, r *http.Request) {
	a.itersMu.Lock()
	total := struct {
		Iterators       int `json:"iterators"`
		Traces          int `json:"traces"`
		TrackedVpids    int `json:"tracked_vpids"`
		FileDescriptors int `json:"file_descriptors"`
	}{Iterators: len(a.iters)}
	for _, it := range a.iters {
		s := it.Stats()
		total.Traces += s.Traces
		total.TrackedVpids += s.TrackedVpids
		total.FileDescriptors = s.FileDescriptors // shared cache, same value for every iterator
	}
	a.itersMu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(total)
}
